package domain

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"runnel.dev/pkg/runnel/internal/adapter"
	"runnel.dev/pkg/runnel/internal/domain/mirror"
	m "runnel.dev/pkg/runnel/internal/model"
)

func names(rs []m.Runnable) []string {
	out := make([]string, 0, len(rs))
	for _, r := range rs {
		if r.IsFunction() {
			out = append(out, r.Name)
		} else {
			out = append(out, "doctest "+r.Location.Path)
		}
	}

	return out
}

func moduleID(t *testing.T, snap *mirror.Snapshot, name string) m.ID {
	t.Helper()

	for _, r := range snap.Runnables() {
		for id := r.ID; id != ""; {
			e, ok := snap.Lookup(id)
			require.True(t, ok)

			if e.Kind == m.KindModule && e.Name == name {
				return id
			}

			id = e.Parent
		}
	}

	t.Fatalf("module %s not found", name)

	return ""
}

func TestSelect(t *testing.T) {
	snap, rs := testSnapshot(t)
	a := moduleID(t, snap, "a")

	tests := []struct {
		name string
		sel  Selection
		want []string
	}{
		{name: "all functions", sel: Selection{}, want: []string{"main", "t", "b", "dup", "dup"}},
		{name: "by kind", sel: Selection{Kinds: []m.FuncKind{m.FuncTest}}, want: []string{"t", "dup", "dup"}},
		{name: "below a module", sel: Selection{IDs: []m.ID{a}}, want: []string{"t", "b", "dup", "dup"}},
		{name: "named doctest", sel: Selection{IDs: []m.ID{rs["doctest a::t"].ID}}, want: []string{"doctest a::t"}},
		{name: "first shard", sel: Selection{ShardIndex: 0, ShardCount: 2}, want: []string{"main", "b", "dup"}},
		{name: "second shard", sel: Selection{ShardIndex: 1, ShardCount: 2}, want: []string{"t", "dup"}},
		{name: "unknown id", sel: Selection{IDs: []m.ID{"missing"}}, want: []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, names(Select(snap, tt.sel)))
		})
	}
}

func finishedProcess(code int) *fakeProcess {
	p := newFakeProcess()
	p.done <- adapter.ProcessOutcome{ExitCode: code}

	return p
}

func TestRunQueue_BoundedParallelism(t *testing.T) {
	snap, rs := testSnapshot(t)

	runner := &mockRunner{}
	runner.On("Start", mock.Anything, mock.Anything).Return(finishedProcess(0), nil).Once()
	runner.On("Start", mock.Anything, mock.Anything).Return(finishedProcess(101), nil).Once()

	ex := NewExecutor(runner, staticSource{snap: snap}, ExecutorOptions{})

	ids := []m.ID{rs["t"].ID, rs["b"].ID, rs["doctest a::t"].ID}

	var got []m.RunStatus

	err := RunQueue(context.Background(), ex, ids, QueueOptions{Parallel: 1, PollInterval: time.Millisecond}, func(st m.RunStatus) {
		assert.LessOrEqual(t, len(ex.Running()), 1)
		got = append(got, st)
	})
	require.NoError(t, err)

	require.Len(t, got, 3)
	assert.Equal(t, rs["t"].ID, got[0].ID)
	assert.Equal(t, m.StatePassed, got[0].State)
	assert.Equal(t, rs["b"].ID, got[1].ID)
	assert.Equal(t, m.StateFailed, got[1].State)
	assert.Equal(t, rs["doctest a::t"].ID, got[2].ID)
	assert.Equal(t, m.StateErrored, got[2].State)

	runner.AssertNumberOfCalls(t, "Start", 2)
	assert.Empty(t, ex.Running())
}

func TestRunQueue_CancelAborts(t *testing.T) {
	snap, rs := testSnapshot(t)

	proc := newFakeProcess()
	runner := &mockRunner{}
	runner.On("Start", mock.Anything, mock.Anything).Return(proc, nil).Once()

	ex := NewExecutor(runner, staticSource{snap: snap}, ExecutorOptions{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := RunQueue(ctx, ex, []m.ID{rs["t"].ID}, QueueOptions{PollInterval: time.Hour}, nil)
	require.ErrorIs(t, err, context.Canceled)

	assert.Equal(t, 1, proc.terminated)
	assert.Empty(t, ex.Running())
}

func TestResolveIDs(t *testing.T) {
	snap, rs := testSnapshot(t)
	b := rs["b"].ID

	t.Run("exact and prefix", func(t *testing.T) {
		ids, err := ResolveIDs(snap, []string{string(b), string(b)[:len(b)-1]})
		require.NoError(t, err)
		assert.Equal(t, []m.ID{b, b}, ids)
	})

	t.Run("unknown", func(t *testing.T) {
		_, err := ResolveIDs(snap, []string{"zz-missing"})
		require.ErrorIs(t, err, ErrNotFound)
		require.ErrorIs(t, err, ErrLookup)
	})

	t.Run("ambiguous", func(t *testing.T) {
		_, err := ResolveIDs(snap, []string{""})
		require.ErrorIs(t, err, ErrAmbiguousID)
	})
}
