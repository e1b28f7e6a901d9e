package mirror

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	m "runnel.dev/pkg/runnel/internal/model"
)

func loc(path string, line int) m.Location {
	return m.Location{File: "src/lib.rs", Line: line, Path: path, Crate: "demo", Target: m.Target{Kind: m.TargetLib, Name: "demo"}}
}

func testFn(name string, line int) m.Runnable {
	return m.NewFunction(m.NewID("fn:"+name), name, m.FuncTest, loc(name, line))
}

func fileModule(content ...m.Content) m.Module {
	return m.Module{ID: m.NewID("mod:demo"), Name: "demo", Location: loc("", 1), Content: content}
}

func subModule(name string, line int, content ...m.Content) m.Content {
	return m.ModuleContent(m.Module{ID: m.NewID("mod:" + name), Name: name, Location: loc(name, line), Content: content})
}

func TestPublishAndAppend(t *testing.T) {
	s := NewStore()
	log := NewChangelog()

	root, err := PublishModule(s, log, fileModule())
	require.NoError(t, err)

	sub, err := root.AppendModule(m.Module{ID: m.NewID("mod:m"), Name: "m"})
	require.NoError(t, err)

	require.NoError(t, Module(s, log, sub).AppendRunnable(testFn("m::t", 3)))

	assert.Equal(t, 3, s.Len())

	h, ok := s.Lookup(m.NewID("fn:m::t"))
	require.True(t, ok)
	assert.Equal(t, m.KindRunnable, s.Kind(h))

	patch := log.Consume()
	assert.Equal(t, uint64(0), patch.Version)
	require.Len(t, patch.Appended, 3)
	assert.Equal(t, m.ID(""), patch.Appended[0].TargetID)
	assert.Equal(t, m.NewID("mod:demo"), patch.Appended[1].TargetID)
	assert.Equal(t, m.NewID("mod:m"), patch.Appended[2].TargetID)
	assert.True(t, log.IsEmpty())
	assert.Equal(t, uint64(1), log.Version())
}

func TestAppendDuplicateID(t *testing.T) {
	s := NewStore()
	log := NewChangelog()

	root, err := PublishModule(s, log, fileModule())
	require.NoError(t, err)

	require.NoError(t, root.AppendRunnable(testFn("t", 2)))

	before := s.Len()
	err = root.AppendRunnable(testFn("t", 2))
	require.ErrorIs(t, err, ErrDuplicateID)
	assert.Equal(t, before, s.Len())
	assert.Len(t, log.Consume().Appended, 2)
}

func TestAppendDuplicateInsideSubtree(t *testing.T) {
	s := NewStore()
	log := NewChangelog()

	root, err := PublishModule(s, log, fileModule())
	require.NoError(t, err)

	r := testFn("t", 2)
	_, err = root.AppendModule(m.Module{ID: m.NewID("mod:m"), Content: []m.Content{m.RunnableContent(r), m.RunnableContent(r)}})
	require.ErrorIs(t, err, ErrDuplicateID)
	assert.Equal(t, 1, s.Len())
}

func TestDelete(t *testing.T) {
	s := NewStore()
	log := NewChangelog()

	root, err := PublishModule(s, log, fileModule(subModule("m", 2, m.RunnableContent(testFn("m::t", 3)))))
	require.NoError(t, err)
	require.Equal(t, 3, s.Len())

	require.NoError(t, root.Delete(m.NewID("mod:m")))
	assert.Equal(t, 1, s.Len())

	_, ok := s.Lookup(m.NewID("fn:m::t"))
	assert.False(t, ok)

	err = root.Delete(m.NewID("mod:m"))
	require.ErrorIs(t, err, ErrChildNotFound)

	patch := log.Consume()
	require.Len(t, patch.Deleted, 1)
	assert.Equal(t, m.NewID("mod:m"), patch.Deleted[0].ItemID)
}

func TestUpdate(t *testing.T) {
	s := NewStore()
	log := NewChangelog()

	session, err := PublishSession(s, log, m.Session{ID: m.NewID("session")})
	require.NoError(t, err)

	krate, err := session.AppendCrate(m.Crate{ID: m.NewID("crate:demo"), Name: "demo"})
	require.NoError(t, err)

	name := "renamed"
	require.NoError(t, Crate(s, log, krate).Update(m.CrateChanges{Name: &name}))

	out, err := s.Export()
	require.NoError(t, err)
	assert.Equal(t, "renamed", out.Session.Crates[0].Name)

	err = s.apply(Handle(krate), m.Changes{Module: &m.ModuleChanges{Name: &name}})
	require.ErrorIs(t, err, ErrKindMismatch)
}

func TestAttachRejectsWrongKind(t *testing.T) {
	s := NewStore()
	log := NewChangelog()

	session, err := PublishSession(s, log, m.Session{ID: m.NewID("session")})
	require.NoError(t, err)

	_, err = s.attach(Handle(session.Handle()), m.AppendItem{Runnable: &m.Runnable{ID: "x"}})
	require.ErrorIs(t, err, ErrKindMismatch)
}

func TestMutatorOnMissingTarget(t *testing.T) {
	s := NewStore()
	log := NewChangelog()
	name := "x"

	for _, h := range []ModuleHandle{NoModule, ModuleHandle(7)} {
		mod := Module(s, log, h)

		require.ErrorIs(t, mod.AppendRunnable(m.Runnable{ID: m.NewID("fn:x")}), ErrUnknownTarget)
		require.ErrorIs(t, mod.Delete(m.NewID("fn:x")), ErrUnknownTarget)
		require.ErrorIs(t, mod.Update(m.ModuleChanges{Name: &name}), ErrUnknownTarget)
	}

	assert.True(t, log.Consume().IsEmpty())
}

func TestExportWithoutRoot(t *testing.T) {
	_, err := NewStore().Export()
	require.ErrorIs(t, err, ErrNoRoot)
}

func TestReplayFidelity(t *testing.T) {
	base := fileModule(subModule("a", 2, m.RunnableContent(testFn("a::t", 3))))

	s := NewStore()
	require.NoError(t, s.Load(m.AppendItem{Module: &base}))

	log := NewChangelog()
	root := Module(s, log, ModuleHandle(must(s.Root())))

	b, err := root.AppendModule(m.Module{ID: m.NewID("mod:b"), Name: "b"})
	require.NoError(t, err)
	require.NoError(t, Module(s, log, b).AppendRunnable(testFn("b::t", 6)))
	require.NoError(t, root.Delete(m.NewID("mod:a")))

	name := "file"
	require.NoError(t, root.Update(m.ModuleChanges{Name: &name}))

	after, err := s.Export()
	require.NoError(t, err)

	replayed, err := Replay(m.AppendItem{Module: &base}, log.Consume())
	require.NoError(t, err)

	if diff := cmp.Diff(after, replayed); diff != "" {
		t.Fatalf("replayed tree mismatch (-want +got):\n%s", diff)
	}
}

func TestReplayPublishedRoot(t *testing.T) {
	s := NewStore()
	log := NewChangelog()

	root, err := PublishModule(s, log, fileModule())
	require.NoError(t, err)
	require.NoError(t, root.AppendRunnable(testFn("t", 2)))

	want, err := s.Export()
	require.NoError(t, err)

	got, err := Replay(m.AppendItem{}, log.Consume())
	require.NoError(t, err)
	assert.Empty(t, cmp.Diff(want, got))
}

func TestReplayUnknownTarget(t *testing.T) {
	patch := m.Patch{Deleted: []m.Delete{{Seq: 1, TargetID: "nope", ItemID: "x"}}}

	_, err := Replay(m.AppendItem{}, patch)
	require.ErrorIs(t, err, ErrUnknownTarget)
}

func TestDiff(t *testing.T) {
	oldRoot := fileModule(
		subModule("a", 2, m.RunnableContent(testFn("a::t", 3))),
		subModule("b", 5, m.RunnableContent(testFn("b::t", 6))),
		m.RunnableContent(testFn("top", 9)),
	)

	moved := testFn("a::t", 4)
	newRoot := fileModule(
		subModule("a", 2, m.RunnableContent(moved), m.RunnableContent(testFn("a::u", 7))),
		m.RunnableContent(testFn("top", 9)),
		subModule("c", 11, m.RunnableContent(testFn("c::t", 12))),
	)

	tests := []struct {
		name string
		old  m.AppendItem
		next m.AppendItem
	}{
		{name: "incremental", old: m.AppendItem{Module: &oldRoot}, next: m.AppendItem{Module: &newRoot}},
		{name: "from nothing", old: m.AppendItem{}, next: m.AppendItem{Module: &newRoot}},
		{name: "unchanged", old: m.AppendItem{Module: &newRoot}, next: m.AppendItem{Module: &newRoot}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			log := NewChangelog()
			require.NoError(t, Diff(tt.old, tt.next, log))

			patch := log.Consume()

			got, err := Replay(tt.old, patch)
			require.NoError(t, err)

			if diff := cmp.Diff(tt.next, got); diff != "" {
				t.Fatalf("diff did not converge (-want +got):\n%s", diff)
			}

			if tt.name == "unchanged" {
				assert.True(t, patch.IsEmpty())
			}
		})
	}
}

func TestDiffRenameIsUpdate(t *testing.T) {
	oldRoot := fileModule(subModule("a", 2, m.RunnableContent(testFn("a::t", 3))))
	newRoot := fileModule(subModule("a", 2, m.RunnableContent(testFn("a::t", 3))))
	newRoot.Content[0].Module.Name = "renamed"

	log := NewChangelog()
	require.NoError(t, Diff(m.AppendItem{Module: &oldRoot}, m.AppendItem{Module: &newRoot}, log))

	patch := log.Consume()
	assert.Empty(t, patch.Appended)
	assert.Empty(t, patch.Deleted)
	require.Len(t, patch.Updated, 1)
	assert.Equal(t, "renamed", *patch.Updated[0].Changes.Module.Name)
	assert.Nil(t, patch.Updated[0].Changes.Module.Location)
}

func TestSnapshotLookup(t *testing.T) {
	s := NewStore()
	log := NewChangelog()

	_, err := PublishModule(s, log, fileModule(
		subModule("m", 2, m.RunnableContent(testFn("m::t", 3))),
		m.RunnableContent(testFn("u", 5)),
	))
	require.NoError(t, err)

	snap, err := Publish(s, 7)
	require.NoError(t, err)

	assert.Equal(t, uint64(7), snap.Version())
	assert.Equal(t, 4, snap.Len())

	e, ok := snap.Lookup(m.NewID("fn:m::t"))
	require.True(t, ok)
	require.NotNil(t, e.Runnable)
	assert.Equal(t, m.NewID("mod:m"), e.Parent)

	e, ok = snap.Lookup(m.NewID("mod:m"))
	require.True(t, ok)
	assert.Nil(t, e.Runnable)

	names := []string{}
	for _, r := range snap.Runnables() {
		names = append(names, r.Name)
	}

	assert.Equal(t, []string{"m::t", "u"}, names)
}

func must(h Handle, ok bool) Handle {
	if !ok {
		panic("no root")
	}

	return h
}
