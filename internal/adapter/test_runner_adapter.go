package adapter

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"sync"
)

const maxLineSize = 1 << 20

// CommandSpec describes one external command.
type CommandSpec struct {
	Program string
	Args    []string
	Dir     string
	Env     []string
}

// String renders the command line for logs and diagnostics.
func (c CommandSpec) String() string {
	return strings.Join(append([]string{c.Program}, c.Args...), " ")
}

// ProcessOutcome is what a finished process left behind.
type ProcessOutcome struct {
	ExitCode int
	Signaled bool
	// Err is set when waiting on the process failed, not for a non-zero exit.
	Err    error
	Stdout []string
	// StdoutErr is set when standard output could not be read to the end,
	// for example a line longer than the scanner buffer. Lines after it are
	// discarded.
	StdoutErr error
	Stderr    string
}

// Process is a started command.
type Process interface {
	// Done delivers the outcome exactly once when the process exits.
	Done() <-chan ProcessOutcome
	// Terminate asks the process, and its children where supported, to stop.
	Terminate() error
	Pid() int
}

// TestRunnerAdapter starts external test-runner processes without waiting
// for them.
type TestRunnerAdapter interface {
	Start(ctx context.Context, spec CommandSpec) (Process, error)
}

// LocalTestRunnerAdapter starts processes on the local machine with os/exec.
type LocalTestRunnerAdapter struct{}

// NewLocalTestRunnerAdapter constructs a LocalTestRunnerAdapter.
func NewLocalTestRunnerAdapter() *LocalTestRunnerAdapter {
	return &LocalTestRunnerAdapter{}
}

// Start launches spec. Standard output is read line by line while the
// process runs so a chatty runner never blocks on a full pipe.
func (a *LocalTestRunnerAdapter) Start(ctx context.Context, spec CommandSpec) (Process, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	cmd := exec.Command(spec.Program, spec.Args...)
	cmd.Dir = spec.Dir
	cmd.Env = append(os.Environ(), spec.Env...)
	setProcessGroup(cmd)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("stdout pipe: %w", err)
	}

	p := &localProcess{cmd: cmd, stdout: stdout, done: make(chan ProcessOutcome, 1)}
	cmd.Stderr = &p.stderr

	if err := cmd.Start(); err != nil {
		slog.Error("Failed to start process", "command", spec.String(), "error", err)
		return nil, fmt.Errorf("start %s: %w", spec.Program, err)
	}

	slog.Debug("Started process", "command", spec.String(), "pid", cmd.Process.Pid)

	go p.wait(bufio.NewScanner(stdout))

	return p, nil
}

type localProcess struct {
	cmd    *exec.Cmd
	stdout io.Reader
	stderr bytes.Buffer
	done   chan ProcessOutcome
	once   sync.Once
}

func (p *localProcess) wait(scanner *bufio.Scanner) {
	var out ProcessOutcome

	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)

	for scanner.Scan() {
		out.Stdout = append(out.Stdout, scanner.Text())
	}

	if err := scanner.Err(); err != nil {
		slog.Warn("Failed to read process output, discarding the rest", "pid", p.cmd.Process.Pid, "error", err)
		out.StdoutErr = err
		_, _ = io.Copy(io.Discard, p.stdout)
	}

	err := p.cmd.Wait()
	out.Stderr = p.stderr.String()

	var exitErr *exec.ExitError

	switch {
	case err == nil:
		out.ExitCode = 0
	case errors.As(err, &exitErr):
		out.ExitCode = exitErr.ExitCode()
		out.Signaled = out.ExitCode == -1
	default:
		out.Err = err
		out.ExitCode = -1
	}

	p.done <- out
}

func (p *localProcess) Done() <-chan ProcessOutcome { return p.done }

func (p *localProcess) Pid() int { return p.cmd.Process.Pid }

func (p *localProcess) Terminate() error {
	var err error

	p.once.Do(func() { err = terminate(p.cmd) })

	return err
}
