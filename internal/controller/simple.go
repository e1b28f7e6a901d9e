package controller

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	m "runnel.dev/pkg/runnel/internal/model"
)

// SimpleUI implements UI using cobra Command's output.
type SimpleUI struct {
	cmd *cobra.Command
}

// NewSimpleUI creates a new SimpleUI.
func NewSimpleUI(cmd *cobra.Command) *SimpleUI {
	return &SimpleUI{cmd: cmd}
}

// Start initializes the UI.
func (s *SimpleUI) Start(ctx context.Context, _ ...StartOption) error {
	return ctx.Err()
}

// Close finalizes the UI.
func (s *SimpleUI) Close(_ context.Context) {}

// Wait returns immediately: SimpleUI prints and continues.
func (s *SimpleUI) Wait(_ context.Context) {}

// DisplayRunnables prints the tree in the requested format.
func (s *SimpleUI) DisplayRunnables(ctx context.Context, root m.AppendItem, format Format) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	switch format {
	case FormatYAML, FormatJSON:
		out, err := EncodeTree(root, format)
		if err != nil {
			return err
		}

		s.printf("%s", out)
	case FormatTable:
		s.printf("%s", RenderRunnablesTable(root.Runnables()))
	default:
		tree := RenderTree(root)
		if tree == "" {
			s.printf("no runnables found\n")
			return nil
		}

		s.printf("%s", tree)
	}

	return nil
}

// DisplayPatch prints the edits of one refresh.
func (s *SimpleUI) DisplayPatch(ctx context.Context, before, after m.AppendItem, patch m.Patch) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	out, err := RenderPatch(before, after, patch)
	if err != nil {
		return err
	}

	s.printf("%s", out)

	return nil
}

// DisplayRunPlan shows what is about to run.
func (s *SimpleUI) DisplayRunPlan(ctx context.Context, plan RunPlan) {
	if ctx.Err() != nil {
		return
	}

	if plan.ShardCount > 0 {
		s.printf("Running %d runnable(s) with %d worker(s) (shard %d/%d)\n",
			len(plan.Runnables), plan.Parallel, plan.ShardIndex, plan.ShardCount)

		return
	}

	s.printf("Running %d runnable(s) with %d worker(s)\n", len(plan.Runnables), plan.Parallel)
}

// DisplayStarted announces a started run.
func (s *SimpleUI) DisplayStarted(ctx context.Context, r m.Runnable) {
	if ctx.Err() != nil {
		return
	}

	s.printf("Starting %s [%s]\n", runnableLabel(r), ShortID(r.ID))
}

// DisplayCompleted prints a finished run and, unless it passed, its message.
func (s *SimpleUI) DisplayCompleted(ctx context.Context, r m.Runnable, status m.RunStatus) {
	if ctx.Err() != nil {
		return
	}

	s.printf("Completed %s [%s] -> %s (%s)\n", runnableLabel(r), ShortID(r.ID), status.State, formatDuration(status.Duration))

	if status.State != m.StatePassed && status.Message != "" {
		s.printf("%s\n", status.Message)
	}
}

// DisplaySummary prints the final counts.
func (s *SimpleUI) DisplaySummary(ctx context.Context, summary m.Summary) {
	if ctx.Err() != nil {
		return
	}

	s.printf("%d passed, %d failed, %d errored\n", summary.Passed, summary.Failed, summary.Errored)
}

// DisplayReport prints saved results as a table.
func (s *SimpleUI) DisplayReport(ctx context.Context, report m.Report) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if len(report.Results) == 0 {
		s.printf("no results found\n")
		return nil
	}

	s.printf("%s", RenderResultsTable(report))

	return nil
}

func (s *SimpleUI) printf(format string, args ...any) {
	_, _ = fmt.Fprintf(s.cmd.OutOrStdout(), format, args...)
}
