// Package cmd provides the root command and CLI setup for runnel.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"runnel.dev/pkg/runnel/internal/adapter"
	"runnel.dev/pkg/runnel/internal/controller"
	"runnel.dev/pkg/runnel/internal/domain"
)

var sourceFSAdapter adapter.SourceFSAdapter
var rustAdapter adapter.RustSourceAdapter
var reportStore adapter.ReportStore
var testAdapter adapter.TestRunnerAdapter
var watchAdapter adapter.WatchAdapter

// workspace and workflow are built on first use so that flags and config
// are parsed by then. Tests replace workflow with a mock.
var workspace domain.Workspace
var workflow domain.Workflow

// reportsOutputDirFlag is a root-level flag shared by commands that read/write reports.
var reportsOutputDirFlag string

// excludePatterns is a root-level flag that filters files for applicable commands.
var excludePatterns []string

var verboseFlag bool

func init() {
	// Initialize shared dependencies.
	sourceFSAdapter = adapter.NewLocalSourceFSAdapter()
	rustAdapter = adapter.NewLocalRustSourceAdapter(sourceFSAdapter)
	reportStore = adapter.NewLocalReportStore()
	testAdapter = adapter.NewLocalTestRunnerAdapter()
	watchAdapter = adapter.NewLocalWatchAdapter(adapter.DefaultDebounce)
}

const pathPatternsHelp = `Supports Go-style path patterns:
  - ./...             recursively scan current directory for crates
  - ./crates/...      recursively scan the crates directory
  - ./core ./cli      scan the crates in these directories`

const rootLongDescription = `Runnel discovers the tests, benchmarks and binaries of Rust crates,
keeps them as a tree that is updated incrementally while sources change,
and runs them as cargo processes.

` + pathPatternsHelp

const listLongDescription = `List the runnables found under the given paths (default: ./...).

` + pathPatternsHelp

const runLongDescription = `Run runnables by id or id prefix. Ids of modules, crates or the
workspace run every test, bench and bin below them. Use --all to run everything.`

// rootCmd represents the base command when called without any subcommands.
var rootCmd = newRootCmd()

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:          "runnel",
		Short:        "Rust runnables explorer and runner",
		Long:         rootLongDescription,
		SilenceUsage: true,
		PersistentPreRun: func(_ *cobra.Command, _ []string) {
			configureLogger(viper.GetString(logFilenameKey), verboseFlag || viper.GetBool(logVerboseKey))
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Help()
		},
	}

	configureRootFlags(cmd)

	return cmd
}

func configureRootFlags(cmd *cobra.Command) {
	cmd.PersistentFlags().
		StringVarP(
			&reportsOutputDirFlag, outputFlagName, "o",
			viper.GetString(outputFlagName),
			"output directory for run reports",
		)
	bindFlagToConfig(cmd.PersistentFlags().Lookup(outputFlagName), outputFlagName)

	cmd.PersistentFlags().StringArrayVarP(&excludePatterns, excludeFlagName, "x", viper.GetStringSlice(excludeConfigKey), "exclude files matching regex (can be repeated)")
	bindFlagToConfig(cmd.PersistentFlags().Lookup(excludeFlagName), excludeConfigKey)

	cmd.PersistentFlags().BoolVarP(&verboseFlag, verboseFlagName, "v", false, "log at debug level")
}

// bindFlagToConfig wires a Cobra flag to a Viper key so config/env values feed the flag.
func bindFlagToConfig(flag *pflag.Flag, key string) {
	if flag == nil {
		cobra.CheckErr(fmt.Errorf("flag for config key %q not found", key))
		return
	}

	cobra.CheckErr(viper.BindPFlag(key, flag))
}

func currentWorkspace() (domain.Workspace, error) {
	if workspace != nil {
		return workspace, nil
	}

	ws, err := domain.NewWorkspace(sourceFSAdapter, rustAdapter, workspaceOptions())
	if err != nil {
		return nil, err
	}

	workspace = ws

	return workspace, nil
}

func currentWorkflow(cmd *cobra.Command) (domain.Workflow, error) {
	if workflow != nil {
		return workflow, nil
	}

	ws, err := currentWorkspace()
	if err != nil {
		return nil, err
	}

	ui := controller.NewUI(cmd, controller.IsTTY(os.Stdout))
	workflow = domain.NewWorkflow(ws, testAdapter, reportStore, watchAdapter, ui)

	return workflow, nil
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}
