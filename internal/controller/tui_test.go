package controller

import (
	"context"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	m "runnel.dev/pkg/runnel/internal/model"
)

func update(t *testing.T, rm runModel, msg tea.Msg) (runModel, tea.Cmd) {
	t.Helper()

	next, cmd := rm.Update(msg)

	out, ok := next.(runModel)
	require.True(t, ok)

	return out, cmd
}

func TestRunModel(t *testing.T) {
	a := m.NewFunction("a", "adds", m.FuncTest, m.Location{})
	b := m.NewFunction("b", "bench_it", m.FuncBench, m.Location{})
	c := m.NewFunction("c", "main", m.FuncBin, m.Location{})

	rm := newRunModel()
	rm, _ = update(t, rm, planMsg{Runnables: []m.Runnable{a, b, c}, ShardIndex: 0, ShardCount: 2})

	view := rm.View()
	assert.Contains(t, view, "0/3 done")
	assert.Contains(t, view, "(shard 0/2)")
	assert.NotContains(t, view, "adds")

	rm, _ = update(t, rm, startedMsg{id: a.ID})
	rm, _ = update(t, rm, startedMsg{id: b.ID})
	assert.Contains(t, rm.View(), "test adds")

	rm, _ = update(t, rm, completedMsg{runnable: a, status: m.RunStatus{ID: a.ID, State: m.StatePassed, Duration: time.Second}})
	rm, _ = update(t, rm, completedMsg{runnable: b, status: m.RunStatus{ID: b.ID, State: m.StateFailed, Message: "exit status 101\nmore"}})

	view = rm.View()
	assert.Contains(t, view, "2/3 done")
	assert.NotContains(t, view, "test adds", "passed rows are hidden while running")
	assert.Contains(t, view, "bench bench_it")
	assert.Contains(t, view, "exit status 101")
	assert.NotContains(t, view, "more")

	rm, cmd := update(t, rm, summaryMsg{Passed: 1, Failed: 1})
	require.NotNil(t, cmd)
	assert.IsType(t, tea.QuitMsg{}, cmd())

	view = rm.View()
	assert.Contains(t, view, "test adds")
	assert.Contains(t, view, "1 passed")
	assert.Contains(t, view, "1 failed")
}

func TestRunModel_UnplannedCompletion(t *testing.T) {
	r := m.NewFunction("x", "late", m.FuncTest, m.Location{})

	rm, _ := update(t, newRunModel(), completedMsg{runnable: r, status: m.RunStatus{ID: r.ID, State: m.StateErrored, Message: "spawn failed"}})

	assert.Contains(t, rm.View(), "1/1 done")
	assert.Contains(t, rm.View(), "spawn failed")
}

func TestTUI_ListingWithoutLiveView(t *testing.T) {
	cmd, out := newTestCmd()
	ui := NewTUI(cmd)
	ctx := context.Background()

	session := sampleSession()

	require.NoError(t, ui.Start(ctx, WithListMode()))
	require.NoError(t, ui.DisplayRunnables(ctx, m.AppendItem{Session: &session}, FormatTree))
	ui.DisplaySummary(ctx, m.Summary{Passed: 2})
	ui.Wait(ctx)
	ui.Close(ctx)

	assert.Contains(t, out.String(), "test adds")
	assert.True(t, strings.HasSuffix(out.String(), "2 passed, 0 failed, 0 errored\n"))
}
