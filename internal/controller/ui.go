// Package controller provides output adapters for displaying runnables and run results.
package controller

import (
	"context"
	"os"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	m "runnel.dev/pkg/runnel/internal/model"
)

// StartMode defines the mode of operation for the UI.
type StartMode int

// Available StartMode values.
const (
	ModeList StartMode = iota
	ModeRun
	ModeWatch
)

// StartOption is a functional option for Start method.
type StartOption func(*StartConfig)

// StartConfig holds configuration for starting the UI.
type StartConfig struct {
	mode StartMode
}

// WithListMode sets the UI to listing mode.
func WithListMode() StartOption {
	return func(c *StartConfig) {
		c.mode = ModeList
	}
}

// WithRunMode sets the UI to run mode.
func WithRunMode() StartOption {
	return func(c *StartConfig) {
		c.mode = ModeRun
	}
}

// WithWatchMode sets the UI to follow tree changes.
func WithWatchMode() StartOption {
	return func(c *StartConfig) {
		c.mode = ModeWatch
	}
}

func newStartConfig(options []StartOption) StartConfig {
	var cfg StartConfig
	for _, o := range options {
		o(&cfg)
	}

	return cfg
}

// RunPlan describes a run about to start.
type RunPlan struct {
	Runnables  []m.Runnable
	Parallel   int
	ShardIndex int
	ShardCount int
}

// UI defines how workflows report progress.
// Implementations can use different output methods (simple text, TUI, etc).
type UI interface {
	Start(ctx context.Context, options ...StartOption) error
	Close(ctx context.Context)
	Wait(ctx context.Context) // Wait for UI to finish (user closes it)
	DisplayRunnables(ctx context.Context, root m.AppendItem, format Format) error
	DisplayPatch(ctx context.Context, before, after m.AppendItem, patch m.Patch) error
	DisplayRunPlan(ctx context.Context, plan RunPlan)
	DisplayStarted(ctx context.Context, r m.Runnable)
	DisplayCompleted(ctx context.Context, r m.Runnable, status m.RunStatus)
	DisplaySummary(ctx context.Context, summary m.Summary)
	DisplayReport(ctx context.Context, report m.Report) error
}

// IsTTY reports whether f is an interactive terminal.
func IsTTY(f *os.File) bool {
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// NewUI picks the interactive TUI for terminals and plain output otherwise.
func NewUI(cmd *cobra.Command, tty bool) UI {
	if tty {
		return NewTUI(cmd)
	}

	return NewSimpleUI(cmd)
}
