package domain

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"os"
	"slices"
	"strings"
	"sync"
	"time"

	"runnel.dev/pkg/runnel/internal/adapter"
	"runnel.dev/pkg/runnel/internal/domain/mirror"
	m "runnel.dev/pkg/runnel/internal/model"
)

// SnapshotSource hands out the latest published tree.
type SnapshotSource interface {
	Snapshot() *mirror.Snapshot
}

// ExecutorOptions configure an Executor.
type ExecutorOptions struct {
	Command CommandOptions
	// Timeout bounds a run. Zero disables it.
	Timeout time.Duration
	// Now replaces time.Now in tests.
	Now func() time.Time
}

type execution struct {
	process adapter.Process
	command adapter.CommandSpec
	started time.Time
}

// Executor runs runnables by id as external processes and tracks the latest
// status of each id. Its methods are safe for concurrent use.
type Executor interface {
	// Run starts every id that is not already running and returns the ids it started.
	Run(ctx context.Context, ids []m.ID) []m.ID
	// Poll collects finished processes without blocking and returns the new terminal statuses.
	Poll() []m.RunStatus
	// Abort requests termination of the running ids.
	Abort(ids []m.ID)
	// Results returns the terminal statuses recorded so far.
	Results() map[m.ID]m.RunStatus
	// Running returns the ids currently running.
	Running() []m.ID
}

type executor struct {
	runner  adapter.TestRunnerAdapter
	source  SnapshotSource
	opts    ExecutorOptions
	mu      sync.Mutex
	running map[m.ID]*execution
	status  map[m.ID]m.RunStatus
}

// NewExecutor constructs an Executor resolving ids through source and
// starting processes with runner.
func NewExecutor(runner adapter.TestRunnerAdapter, source SnapshotSource, opts ExecutorOptions) Executor {
	if opts.Now == nil {
		opts.Now = time.Now
	}

	return &executor{
		runner:  runner,
		source:  source,
		opts:    opts,
		running: make(map[m.ID]*execution),
		status:  make(map[m.ID]m.RunStatus),
	}
}

func (e *executor) Run(ctx context.Context, ids []m.ID) []m.ID {
	e.mu.Lock()
	defer e.mu.Unlock()

	snap := e.source.Snapshot()

	var started []m.ID

	for _, id := range ids {
		if _, ok := e.running[id]; ok {
			slog.Info("Skipping run request", "id", id, "error", ErrAlreadyRunning)
			continue
		}

		r, err := resolve(snap, id)
		if err != nil {
			e.fail(id, err)
			continue
		}

		spec, err := BuildCommand(r, e.opts.Command)
		if err != nil {
			e.fail(id, err)
			continue
		}

		proc, err := e.runner.Start(ctx, spec)
		if err != nil {
			e.fail(id, fmt.Errorf("%w: %s: %w", ErrSpawn, spec.String(), err))
			continue
		}

		slog.Info("Started runnable", "id", id, "name", r.Name, "command", spec.String())

		e.running[id] = &execution{process: proc, command: spec, started: e.opts.Now()}
		started = append(started, id)
	}

	return started
}

// resolve finds the executable runnable behind id.
func resolve(snap *mirror.Snapshot, id m.ID) (m.Runnable, error) {
	if snap == nil {
		return m.Runnable{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	entry, ok := snap.Lookup(id)
	if !ok {
		return m.Runnable{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	if entry.Runnable == nil {
		return m.Runnable{}, fmt.Errorf("%w: %s is a %s", ErrNotALeaf, id, entry.Kind)
	}

	if !entry.Runnable.IsFunction() {
		return m.Runnable{}, fmt.Errorf("%w: %s is a doctest", ErrNotExecutable, id)
	}

	return *entry.Runnable, nil
}

func (e *executor) fail(id m.ID, err error) {
	slog.Error("Failed to run runnable", "id", id, "error", err)

	e.status[id] = m.RunStatus{
		ID:         id,
		State:      m.StateErrored,
		Message:    err.Error(),
		ExitCode:   -1,
		FinishedAt: e.opts.Now(),
	}
}

func (e *executor) Poll() []m.RunStatus {
	e.mu.Lock()
	defer e.mu.Unlock()

	if len(e.running) == 0 {
		return nil
	}

	now := e.opts.Now()

	var finished []m.RunStatus

	for id, ex := range e.running {
		select {
		case out := <-ex.process.Done():
			st := e.finish(id, ex, out, now)
			finished = append(finished, st)
		default:
			if e.opts.Timeout <= 0 || now.Sub(ex.started) < e.opts.Timeout {
				continue
			}

			if err := ex.process.Terminate(); err != nil {
				slog.Warn("Failed to terminate timed out process", "id", id, "error", err)
			}

			delete(e.running, id)

			st := m.RunStatus{
				ID:         id,
				State:      m.StateErrored,
				Message:    fmt.Sprintf("%v after %s", ErrTimeout, e.opts.Timeout),
				Duration:   now.Sub(ex.started),
				ExitCode:   -1,
				FinishedAt: now,
			}
			slog.Warn("Runnable timed out", "id", id, "command", ex.command.String(), "timeout", e.opts.Timeout)

			e.status[id] = st
			finished = append(finished, st)
		}
	}

	slices.SortFunc(finished, func(a, b m.RunStatus) int { return cmp.Compare(a.ID, b.ID) })

	return finished
}

func (e *executor) finish(id m.ID, ex *execution, out adapter.ProcessOutcome, now time.Time) m.RunStatus {
	delete(e.running, id)

	rep := parseLibtest(out.Stdout)

	st := m.RunStatus{
		ID:         id,
		ExitCode:   out.ExitCode,
		FinishedAt: now,
		Tests:      rep.tests,
		Duration:   rep.duration,
		Message:    rep.message(),
	}

	if st.Duration == 0 {
		st.Duration = now.Sub(ex.started)
	}

	var err error

	switch {
	case out.Err != nil:
		st.State = m.StateErrored
		err = out.Err
	case out.ExitCode == 0:
		st.State = m.StatePassed
	case out.Signaled:
		st.State = m.StateFailed
		err = ErrSignaled
	default:
		st.State = m.StateFailed
		err = fmt.Errorf("%w: %d", ErrNonZeroExit, out.ExitCode)
	}

	if err != nil && st.Message == "" {
		st.Message = err.Error()
		if out.Stderr != "" {
			st.Message += "\n" + lastLines(out.Stderr, 20)
		}
	}

	if out.StdoutErr != nil {
		slog.Warn("Output of runnable was truncated", "id", id, "command", ex.command.String(), "error", out.StdoutErr)
		st.Message = strings.TrimSpace(st.Message + "\noutput truncated: " + out.StdoutErr.Error())
	}

	slog.Info("Runnable finished", "id", id, "state", st.State, "exitCode", out.ExitCode, "duration", st.Duration)

	e.status[id] = st

	return st
}

func (e *executor) Abort(ids []m.ID) {
	e.mu.Lock()
	defer e.mu.Unlock()

	for _, id := range ids {
		ex, ok := e.running[id]
		if !ok {
			slog.Warn("Abort requested for an id that is not running", "id", id)
			continue
		}

		if err := ex.process.Terminate(); err != nil && !errors.Is(err, os.ErrProcessDone) {
			slog.Warn("Failed to terminate process", "id", id, "pid", ex.process.Pid(), "error", err)
		}

		delete(e.running, id)
		slog.Info("Aborted runnable", "id", id, "command", ex.command.String())
	}
}

func (e *executor) Results() map[m.ID]m.RunStatus {
	e.mu.Lock()
	defer e.mu.Unlock()

	return maps.Clone(e.status)
}

func (e *executor) Running() []m.ID {
	e.mu.Lock()
	defer e.mu.Unlock()

	ids := make([]m.ID, 0, len(e.running))
	for id := range e.running {
		ids = append(ids, id)
	}

	slices.Sort(ids)

	return ids
}

func lastLines(s string, n int) string {
	lines := strings.Split(strings.TrimRight(s, "\n"), "\n")
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}

	return strings.Join(lines, "\n")
}
