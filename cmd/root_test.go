package cmd

import (
	"bytes"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domainmocks "runnel.dev/pkg/runnel/internal/domain/mocks"
)

func TestMain(m *testing.M) {
	dir, err := os.MkdirTemp("", "runnel-cmd")
	if err != nil {
		panic(err)
	}

	viper.Set(logFilenameKey, filepath.Join(dir, "runnel.log"))

	code := m.Run()

	_ = os.RemoveAll(dir)

	os.Exit(code)
}

// withMockWorkflow swaps the package workflow for a mock for the duration of t.
func withMockWorkflow(t *testing.T) *domainmocks.MockWorkflow {
	t.Helper()

	mockWorkflow := domainmocks.NewMockWorkflow(t)

	originalWorkflow := workflow
	workflow = mockWorkflow

	t.Cleanup(func() { workflow = originalWorkflow })

	return mockWorkflow
}

func newTestRoot(sub *cobra.Command) (*cobra.Command, *bytes.Buffer) {
	out := &bytes.Buffer{}

	cmd := newRootCmd()
	cmd.AddCommand(sub)
	cmd.SetOut(out)
	cmd.SetErr(&bytes.Buffer{})

	return cmd, out
}

func TestNewRootCmd(t *testing.T) {
	cmd := newRootCmd()
	assert.Equal(t, "runnel", cmd.Use)
	assert.NotEmpty(t, cmd.Short)
	assert.Equal(t, rootLongDescription, cmd.Long)

	for _, name := range []string{outputFlagName, excludeFlagName, verboseFlagName} {
		assert.NotNil(t, cmd.PersistentFlags().Lookup(name), name)
	}
}

func TestRootCmd_HelpOutput(t *testing.T) {
	cmd := newRootCmd()
	output := &bytes.Buffer{}
	cmd.SetOut(output)
	cmd.SetErr(&bytes.Buffer{})

	cmd.SetArgs([]string{})
	err := cmd.Execute()

	require.NoError(t, err)
	assert.Contains(t, output.String(), "Usage:")
	assert.Contains(t, output.String(), "Supports Go-style path patterns")
}

func TestRootCmd_Subcommands(t *testing.T) {
	var names []string
	for _, c := range rootCmd.Commands() {
		names = append(names, c.Name())
	}

	for _, want := range []string{"init", "list", "merge", "run", "serve", "version", "view"} {
		assert.Contains(t, names, want)
	}
}

func TestInit(t *testing.T) {
	assert.NotNil(t, sourceFSAdapter)
	assert.NotNil(t, rustAdapter)
	assert.NotNil(t, reportStore)
	assert.NotNil(t, testAdapter)
	assert.NotNil(t, watchAdapter)
}

func TestCurrentWorkflow_InvalidExclude(t *testing.T) {
	originalWorkflow, originalWorkspace := workflow, workspace
	workflow, workspace = nil, nil

	t.Cleanup(func() {
		workflow, workspace = originalWorkflow, originalWorkspace
		viper.Set(excludeConfigKey, nil)
	})

	viper.Set(excludeConfigKey, []string{"("})

	_, err := currentWorkflow(newRootCmd())
	require.Error(t, err)
	assert.Nil(t, workspace)

	viper.Set(excludeConfigKey, []string{`^benches/`})

	wf, err := currentWorkflow(newRootCmd())
	require.NoError(t, err)
	assert.NotNil(t, wf)
	assert.NotNil(t, workspace)

	again, err := currentWorkflow(newRootCmd())
	require.NoError(t, err)
	assert.Same(t, wf, again)
}

func TestExecute(t *testing.T) {
	originalRootCmd := rootCmd
	defer func() { rootCmd = originalRootCmd }()

	mockCmd := &cobra.Command{
		Use: "test",
		RunE: func(_ *cobra.Command, _ []string) error {
			return nil
		},
	}
	mockCmd.SetOut(&bytes.Buffer{})
	mockCmd.SetErr(&bytes.Buffer{})
	mockCmd.SetArgs([]string{})

	rootCmd = mockCmd

	Execute()
}

func TestExecute_ProcessLevel_Failure(t *testing.T) {
	if os.Getenv("TEST_EXECUTE_SUBPROCESS_FAIL") == "1" {
		originalRootCmd := rootCmd
		mockCmd := &cobra.Command{
			Use: "test",
			RunE: func(_ *cobra.Command, _ []string) error {
				fmt.Fprintln(os.Stderr, "error occurred")
				return fmt.Errorf("command failed")
			},
		}
		mockCmd.SetOut(os.Stdout)
		mockCmd.SetErr(os.Stderr)
		mockCmd.SetArgs([]string{})
		rootCmd = mockCmd
		defer func() { rootCmd = originalRootCmd }()

		Execute() // exits with status 1
		return
	}

	cmd := exec.Command(os.Args[0], "-test.run=TestExecute_ProcessLevel_Failure")
	cmd.Env = append(os.Environ(), "TEST_EXECUTE_SUBPROCESS_FAIL=1")
	output, err := cmd.CombinedOutput()

	require.Error(t, err)

	var exitErr *exec.ExitError
	if assert.ErrorAs(t, err, &exitErr) {
		assert.Equal(t, 1, exitErr.ExitCode())
	}

	assert.Contains(t, string(output), "error occurred")
}
