package domain

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strconv"
	"time"

	"runnel.dev/pkg/runnel/internal/adapter"
	"runnel.dev/pkg/runnel/internal/controller"
	m "runnel.dev/pkg/runnel/internal/model"
)

// ListArgs contains the arguments for listing runnables.
type ListArgs struct {
	Paths  []string
	Format controller.Format
	// Watch keeps listing after the first tree and prints a diff per change.
	Watch bool
}

// RunArgs contains the arguments for running runnables.
type RunArgs struct {
	Paths []string
	// IDs are full ids or unique prefixes. Empty runs every function.
	IDs          []string
	Kinds        []m.FuncKind
	Parallel     int
	Timeout      time.Duration
	PollInterval time.Duration
	ShardIndex   int
	ShardCount   int
	Reports      m.Path
	Command      CommandOptions
}

// ViewArgs contains the arguments for viewing saved results.
type ViewArgs struct {
	Reports m.Path
}

// MergeArgs contains the arguments for merging sharded results.
type MergeArgs struct {
	Reports m.Path
}

// Workflow drives the CLI use cases on top of the workspace.
type Workflow interface {
	List(ctx context.Context, args ListArgs) error
	Run(ctx context.Context, args RunArgs) error
	View(ctx context.Context, args ViewArgs) error
	Merge(ctx context.Context, args MergeArgs) error
}

type workflow struct {
	adapter.ReportStore
	adapter.WatchAdapter
	controller.UI
	Workspace

	runner adapter.TestRunnerAdapter
}

// NewWorkflow creates a new Workflow instance with the provided dependencies.
func NewWorkflow(
	workspace Workspace,
	runner adapter.TestRunnerAdapter,
	reportStore adapter.ReportStore,
	watcher adapter.WatchAdapter,
	ui controller.UI,
) Workflow {
	return &workflow{
		ReportStore:  reportStore,
		WatchAdapter: watcher,
		UI:           ui,
		Workspace:    workspace,
		runner:       runner,
	}
}

func (w *workflow) List(ctx context.Context, args ListArgs) error {
	mode := controller.WithListMode()
	if args.Watch {
		mode = controller.WithWatchMode()
	}

	if err := w.Start(ctx, mode); err != nil {
		slog.Error("Failed to start workflow UI", "error", err)
		return err
	}
	defer w.Close(ctx)

	snap, _, err := w.Refresh(ctx, args.Paths)
	if err != nil {
		return fmt.Errorf("reconcile: %w", err)
	}

	if err := w.DisplayRunnables(ctx, snap.Root(), args.Format); err != nil {
		slog.Error("Failed to display runnables", "error", err)
		return fmt.Errorf("display: %w", err)
	}

	if !args.Watch {
		return nil
	}

	return w.follow(ctx, args.Paths, func(before, after m.AppendItem, patch m.Patch) error {
		return w.DisplayPatch(ctx, before, after, patch)
	})
}

// follow refreshes the workspace whenever a watched source changes and
// passes every non-empty patch to fn. It returns when ctx is done.
func (w *workflow) follow(ctx context.Context, paths []string, fn func(before, after m.AppendItem, patch m.Patch) error) error {
	changes, err := w.Watch(ctx, adapter.WatchRoots(paths))
	if err != nil {
		return fmt.Errorf("watch: %w", err)
	}

	for changed := range changes {
		slog.Debug("Sources changed", "files", len(changed))

		before := w.Snapshot().Root()

		snap, patch, err := w.Refresh(ctx, paths)
		if err != nil {
			if ctx.Err() != nil {
				break
			}

			slog.Warn("Refresh failed, keeping previous tree", "error", err)

			continue
		}

		if patch.IsEmpty() {
			continue
		}

		if err := fn(before, snap.Root(), patch); err != nil {
			return err
		}
	}

	return nil
}

func (w *workflow) Run(ctx context.Context, args RunArgs) error {
	snap, _, err := w.Refresh(ctx, args.Paths)
	if err != nil {
		return fmt.Errorf("reconcile: %w", err)
	}

	ids, err := ResolveIDs(snap, args.IDs)
	if err != nil {
		slog.Error("Failed to resolve ids", "ids", args.IDs, "error", err)
		return err
	}

	selected := Select(snap, Selection{
		IDs:        ids,
		Kinds:      args.Kinds,
		ShardIndex: args.ShardIndex,
		ShardCount: args.ShardCount,
	})

	byID := make(map[m.ID]m.Runnable, len(selected))
	queue := make([]m.ID, 0, len(selected))

	for _, r := range selected {
		byID[r.ID] = r
		queue = append(queue, r.ID)
	}

	if err := w.Start(ctx, controller.WithRunMode()); err != nil {
		slog.Error("Failed to start workflow UI", "error", err)
		return err
	}
	defer w.Close(ctx)

	w.DisplayRunPlan(ctx, controller.RunPlan{
		Runnables:  selected,
		Parallel:   args.Parallel,
		ShardIndex: args.ShardIndex,
		ShardCount: args.ShardCount,
	})

	exec := NewExecutor(w.runner, w.Workspace, ExecutorOptions{Command: args.Command, Timeout: args.Timeout})

	runErr := RunQueue(ctx, exec, queue, QueueOptions{
		Parallel:     args.Parallel,
		PollInterval: args.PollInterval,
		OnStart: func(id m.ID) {
			w.DisplayStarted(ctx, byID[id])
		},
	}, func(st m.RunStatus) {
		w.DisplayCompleted(ctx, byID[st.ID], st)
	})

	results := exec.Results()
	for id := range results {
		if _, ok := byID[id]; !ok {
			delete(results, id)
		}
	}

	report := NewReport(shardLabel(args.ShardIndex, args.ShardCount), selected, results)
	summary := m.Summarize(report.Results)

	w.DisplaySummary(ctx, summary)
	w.Wait(ctx)

	if err := w.SaveReport(reportDir(args.Reports, args.ShardIndex, args.ShardCount), report); err != nil {
		return fmt.Errorf("save report: %w", err)
	}

	if runErr != nil {
		return runErr
	}

	if !summary.OK() {
		return fmt.Errorf("%w: %d failed, %d errored", ErrRunFailed, summary.Failed, summary.Errored)
	}

	return nil
}

func shardLabel(index, count int) string {
	if count <= 1 {
		return ""
	}

	return fmt.Sprintf("%d/%d", index, count)
}

// reportDir is where a run's report goes: the output directory itself, or
// a shard_<index> directory below it for sharded runs.
func reportDir(reports m.Path, index, count int) m.Path {
	if count <= 1 {
		return reports
	}

	return m.Path(filepath.Join(string(reports), adapter.ShardPrefix+strconv.Itoa(index)))
}

func (w *workflow) View(ctx context.Context, args ViewArgs) error {
	report, err := w.LoadReport(args.Reports)
	if errors.Is(err, adapter.ErrNoReport) {
		if merged, mergeErr := w.mergeShards(args.Reports); mergeErr == nil {
			report, err = merged, nil
		}
	}

	if err != nil {
		return fmt.Errorf("load report: %w", err)
	}

	return w.DisplayReport(ctx, report)
}

func (w *workflow) Merge(ctx context.Context, args MergeArgs) error {
	merged, err := w.mergeShards(args.Reports)
	if err != nil {
		return err
	}

	if err := w.SaveReport(args.Reports, merged); err != nil {
		return fmt.Errorf("save merged report: %w", err)
	}

	slog.Info("Merged shard reports", "dir", args.Reports, "results", len(merged.Results))

	w.DisplaySummary(ctx, m.Summarize(merged.Results))

	return nil
}

func (w *workflow) mergeShards(dir m.Path) (m.Report, error) {
	shards, err := w.ShardDirs(dir)
	if err != nil {
		return m.Report{}, fmt.Errorf("list shards: %w", err)
	}

	if len(shards) == 0 {
		return m.Report{}, fmt.Errorf("%w in %s", ErrNoShards, dir)
	}

	reports := make([]m.Report, 0, len(shards))

	for _, shard := range shards {
		report, err := w.LoadReport(shard)
		if err != nil {
			slog.Error("Failed to load shard report", "dir", shard, "error", err)
			return m.Report{}, fmt.Errorf("load %s: %w", shard, err)
		}

		reports = append(reports, report)
	}

	return MergeReports(reports...), nil
}
