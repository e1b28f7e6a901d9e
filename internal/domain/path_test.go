package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"runnel.dev/pkg/runnel/internal/domain/mirror"
	m "runnel.dev/pkg/runnel/internal/model"
)

func TestPathShrinkTo(t *testing.T) {
	p := NewPath("a")
	p.Push("b")
	p.Push("c")

	require.True(t, p.ShrinkTo("b"))
	assert.Equal(t, 2, p.Len())
	assert.Equal(t, m.ModuleID("b"), p.Tail().Origin)

	assert.False(t, p.ShrinkTo("z"))
	assert.Equal(t, 2, p.Len())
}

func TestLocateDiff(t *testing.T) {
	p := NewPath("a")

	idx, ok := LocateDiff(p)
	require.True(t, ok)
	assert.Equal(t, 0, idx)

	p.bind(0, 0)
	p.Push("b")
	p.Push("c")

	idx, ok = LocateDiff(p)
	require.True(t, ok)
	assert.Equal(t, 1, idx)

	p.bind(1, 1)
	p.bind(2, 2)

	_, ok = LocateDiff(p)
	assert.False(t, ok)
}

func TestSynthesizeBranch(t *testing.T) {
	s := mirror.NewStore()
	log := mirror.NewChangelog()
	newModule := func(origin m.ModuleID) m.Module {
		return m.Module{ID: m.NewID(string(origin)), Name: string(origin)}
	}

	p := NewPath("root")
	p.Push("a")
	require.NoError(t, SynthesizeBranch(s, log, p, 0, newModule, nil))

	for _, e := range p.Entries() {
		assert.True(t, e.Mirrored())
	}

	p.Push("b")
	idx, ok := LocateDiff(p)
	require.True(t, ok)
	require.NoError(t, SynthesizeBranch(s, log, p, idx, newModule, nil))

	patch := log.Consume()
	require.Len(t, patch.Appended, 3)
	assert.Equal(t, m.ID(""), patch.Appended[0].TargetID)
	assert.Equal(t, m.NewID("root"), patch.Appended[1].TargetID)
	assert.Equal(t, m.NewID("a"), patch.Appended[2].TargetID)

	require.Error(t, SynthesizeBranch(s, log, p, 5, newModule, nil))
}
