package controller

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	m "runnel.dev/pkg/runnel/internal/model"
)

var (
	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("39"))
	mutedStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	passStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	failStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	spinnerStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("39"))
)

// TUI implements UI using Bubble Tea for the live run view. Listings and
// reports are printed like SimpleUI, with color.
type TUI struct {
	cmd    *cobra.Command
	simple *SimpleUI

	mu      sync.Mutex
	program *tea.Program
	done    chan struct{}
}

// NewTUI creates a new TUI.
func NewTUI(cmd *cobra.Command) *TUI {
	return &TUI{cmd: cmd, simple: NewSimpleUI(cmd)}
}

// Start launches the live view in run mode. Other modes print directly.
func (t *TUI) Start(ctx context.Context, options ...StartOption) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if newStartConfig(options).mode != ModeRun {
		return nil
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	program := tea.NewProgram(
		newRunModel(),
		tea.WithContext(ctx),
		tea.WithOutput(t.cmd.OutOrStdout()),
		tea.WithInput(nil),
	)
	done := make(chan struct{})

	go func() {
		defer close(done)

		if _, err := program.Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) && !errors.Is(err, tea.ErrInterrupted) {
			slog.Error("Run view stopped", "error", err)
		}
	}()

	t.program, t.done = program, done

	return nil
}

// Close stops the live view if it is still running.
func (t *TUI) Close(_ context.Context) {
	program, done := t.running()
	if program == nil {
		return
	}

	program.Quit()
	<-done
}

// Wait blocks until the live view has rendered its summary and exited.
func (t *TUI) Wait(ctx context.Context) {
	_, done := t.running()
	if done == nil {
		return
	}

	select {
	case <-done:
	case <-ctx.Done():
	}
}

func (t *TUI) running() (*tea.Program, chan struct{}) {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.program, t.done
}

func (t *TUI) send(msg tea.Msg) bool {
	program, _ := t.running()
	if program == nil {
		return false
	}

	program.Send(msg)

	return true
}

// DisplayRunnables prints the tree with colored runnable kinds.
func (t *TUI) DisplayRunnables(ctx context.Context, root m.AppendItem, format Format) error {
	if format != FormatTree {
		return t.simple.DisplayRunnables(ctx, root, format)
	}

	if err := ctx.Err(); err != nil {
		return err
	}

	tree := RenderTree(root)
	if tree == "" {
		t.simple.printf("%s\n", mutedStyle.Render("no runnables found"))
		return nil
	}

	for _, line := range strings.SplitAfter(tree, "\n") {
		t.simple.printf("%s", styleTreeLine(line))
	}

	return nil
}

func styleTreeLine(line string) string {
	body := strings.TrimLeft(line, " ")
	indent := line[:len(line)-len(body)]

	switch {
	case strings.HasPrefix(body, "crate "), strings.HasPrefix(body, "mod "):
		return indent + titleStyle.Render(strings.TrimSuffix(body, "\n")) + "\n"
	case strings.HasPrefix(body, "doctest "):
		return indent + mutedStyle.Render(strings.TrimSuffix(body, "\n")) + "\n"
	}

	return line
}

// DisplayPatch prints the edits of one refresh.
func (t *TUI) DisplayPatch(ctx context.Context, before, after m.AppendItem, patch m.Patch) error {
	return t.simple.DisplayPatch(ctx, before, after, patch)
}

// DisplayRunPlan fills the live view with the queued runnables.
func (t *TUI) DisplayRunPlan(ctx context.Context, plan RunPlan) {
	if !t.send(planMsg(plan)) {
		t.simple.DisplayRunPlan(ctx, plan)
	}
}

// DisplayStarted marks a runnable as running.
func (t *TUI) DisplayStarted(ctx context.Context, r m.Runnable) {
	if !t.send(startedMsg{id: r.ID}) {
		t.simple.DisplayStarted(ctx, r)
	}
}

// DisplayCompleted records a finished run.
func (t *TUI) DisplayCompleted(ctx context.Context, r m.Runnable, status m.RunStatus) {
	if !t.send(completedMsg{runnable: r, status: status}) {
		t.simple.DisplayCompleted(ctx, r, status)
	}
}

// DisplaySummary renders the final counts and ends the live view.
func (t *TUI) DisplaySummary(ctx context.Context, summary m.Summary) {
	if !t.send(summaryMsg(summary)) {
		t.simple.DisplaySummary(ctx, summary)
	}
}

// DisplayReport prints saved results.
func (t *TUI) DisplayReport(ctx context.Context, report m.Report) error {
	return t.simple.DisplayReport(ctx, report)
}

type (
	planMsg      RunPlan
	summaryMsg   m.Summary
	startedMsg   struct{ id m.ID }
	completedMsg struct {
		runnable m.Runnable
		status   m.RunStatus
	}
)

type runRow struct {
	runnable m.Runnable
	state    m.RunState
	duration time.Duration
	message  string
}

// runModel is the Bubble Tea model of the live run view.
type runModel struct {
	spinner spinner.Model
	plan    RunPlan
	rows    []runRow
	index   map[m.ID]int
	summary *m.Summary
}

func newRunModel() runModel {
	return runModel{
		spinner: spinner.New(spinner.WithSpinner(spinner.Dot), spinner.WithStyle(spinnerStyle)),
		index:   make(map[m.ID]int),
	}
}

func (rm runModel) Init() tea.Cmd {
	return rm.spinner.Tick
}

func (rm runModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case planMsg:
		rm.plan = RunPlan(msg)
		rm.rows = make([]runRow, 0, len(msg.Runnables))
		rm.index = make(map[m.ID]int, len(msg.Runnables))

		for i, r := range msg.Runnables {
			rm.rows = append(rm.rows, runRow{runnable: r, state: m.StateIdle})
			rm.index[r.ID] = i
		}

		return rm, nil
	case startedMsg:
		if i, ok := rm.index[msg.id]; ok {
			rm.rows[i].state = m.StateRunning
		}

		return rm, nil
	case completedMsg:
		i, ok := rm.index[msg.status.ID]
		if !ok {
			i = len(rm.rows)
			rm.rows = append(rm.rows, runRow{runnable: msg.runnable})
			rm.index[msg.status.ID] = i
		}

		rm.rows[i].state = msg.status.State
		rm.rows[i].duration = msg.status.Duration
		rm.rows[i].message = firstLine(msg.status.Message)

		return rm, nil
	case summaryMsg:
		s := m.Summary(msg)
		rm.summary = &s

		return rm, tea.Quit
	case spinner.TickMsg:
		var cmd tea.Cmd
		rm.spinner, cmd = rm.spinner.Update(msg)

		return rm, cmd
	}

	return rm, nil
}

func (rm runModel) View() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("runnel") + " ")

	done := 0

	for _, row := range rm.rows {
		if row.state.IsTerminal() {
			done++
		}
	}

	fmt.Fprintf(&b, "%d/%d done", done, len(rm.rows))

	if rm.plan.ShardCount > 0 {
		b.WriteString(mutedStyle.Render(fmt.Sprintf(" (shard %d/%d)", rm.plan.ShardIndex, rm.plan.ShardCount)))
	}

	b.WriteString("\n\n")

	for _, row := range rm.rows {
		if row.state == m.StateIdle || (row.state == m.StatePassed && rm.summary == nil) {
			continue
		}

		fmt.Fprintf(&b, "  %s %s", rm.icon(row.state), runnableLabel(row.runnable))

		if row.duration > 0 {
			b.WriteString(mutedStyle.Render(" " + formatDuration(row.duration)))
		}

		if row.message != "" && row.state != m.StatePassed {
			b.WriteString(mutedStyle.Render("  " + row.message))
		}

		b.WriteString("\n")
	}

	if rm.summary != nil {
		fmt.Fprintf(&b, "\n  %s, %s, %s\n",
			passStyle.Render(fmt.Sprintf("%d passed", rm.summary.Passed)),
			failStyle.Render(fmt.Sprintf("%d failed", rm.summary.Failed)),
			errorStyle.Render(fmt.Sprintf("%d errored", rm.summary.Errored)))
	}

	return b.String()
}

func (rm runModel) icon(state m.RunState) string {
	switch state {
	case m.StateRunning:
		return rm.spinner.View()
	case m.StatePassed:
		return passStyle.Render("✓")
	case m.StateFailed:
		return failStyle.Render("✗")
	case m.StateErrored:
		return errorStyle.Render("!")
	}

	return mutedStyle.Render("·")
}
