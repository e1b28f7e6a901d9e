package domain

import (
	"context"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"runnel.dev/pkg/runnel/internal/domain/mirror"
	m "runnel.dev/pkg/runnel/internal/model"
)

const libFile = m.Path("src/lib.rs")

func reconcile(t *testing.T, p *fakeProvider) FileTree {
	t.Helper()

	tree, err := ReconcileFile(p, libFile)
	require.NoError(t, err)

	return tree
}

// shape renders a module tree as nested names so tests can compare structure
// without ids.
func shape(mod *m.Module) []string {
	if mod == nil {
		return nil
	}

	var out []string

	var walk func(prefix string, content []m.Content)

	walk = func(prefix string, content []m.Content) {
		for _, c := range content {
			switch {
			case c.Module != nil:
				out = append(out, prefix+"mod "+c.Module.Name)
				walk(prefix+"  ", c.Module.Content)
			case c.MacroCall != nil:
				out = append(out, prefix+"macro "+c.MacroCall.Name)
				walk(prefix+"  ", c.MacroCall.Content)
			case c.Runnable.Kind == m.RunnableDoctest:
				out = append(out, prefix+"doctest "+c.Runnable.Location.Path)
			default:
				out = append(out, prefix+string(c.Runnable.FuncKind)+" "+c.Runnable.Name)
			}
		}
	}

	out = append(out, "mod "+mod.Name)
	walk("  ", mod.Content)

	return out
}

func TestReconcileFile_MainOnly(t *testing.T) {
	p := newFakeProvider("demo", libFile)
	p.fn(p.rootID, "main")

	tree := reconcile(t, p)
	require.NotNil(t, tree.Root)

	runnables := tree.Root.Runnables()
	require.Len(t, runnables, 1)
	assert.Equal(t, m.FuncBin, runnables[0].FuncKind)
	assert.Equal(t, []string{"mod demo", "  bin main"}, shape(tree.Root))
}

func TestReconcileFile_TestModuleAndEmptyModule(t *testing.T) {
	p := newFakeProvider("demo", libFile)
	mod := p.module(p.rootID, "m", true)
	p.fn(mod, "t", "test")
	p.module(p.rootID, "empty", true)

	tree := reconcile(t, p)

	assert.Equal(t, []string{"mod demo", "  mod m", "    test t"}, shape(tree.Root))
}

func TestReconcileFile_NestedAncestors(t *testing.T) {
	p := newFakeProvider("demo", libFile)
	a := p.module(p.rootID, "a", true)
	b := p.module(a, "b", true)
	c := p.module(b, "c", true)
	p.fn(c, "t", "test")
	p.fn(a, "helper")

	tree := reconcile(t, p)

	assert.Equal(t, []string{"mod demo", "  mod a", "    mod b", "      mod c", "        test t"}, shape(tree.Root))

	a1 := tree.Root.Content[0].Module
	require.Len(t, a1.Content, 1)
	require.Len(t, a1.Content[0].Module.Content, 1)
	assert.Equal(t, "a::b::c::t", tree.Root.Runnables()[0].Location.Path)
}

func TestReconcileFile_TestWithDoctest(t *testing.T) {
	p := newFakeProvider("demo", libFile)
	mod := p.module(p.rootID, "m", true)
	p.documented(mod, m.DefFunction, "t", "```\nassert!(true);\n```", "test")

	tree := reconcile(t, p)

	assert.Equal(t, []string{"mod demo", "  mod m", "    doctest m::t", "    test t"}, shape(tree.Root))
}

func TestReconcileFile_SourceOrder(t *testing.T) {
	p := newFakeProvider("demo", libFile)
	p.fn(p.rootID, "first", "test")
	a := p.module(p.rootID, "a", true)
	p.fn(a, "inner_one", "test")
	b := p.module(a, "b", true)
	p.fn(b, "deep", "test")
	p.fn(a, "inner_two", "test")
	p.fn(p.rootID, "last", "test")

	tree := reconcile(t, p)

	want := []string{
		"mod demo",
		"  test first",
		"  mod a",
		"    test inner_one",
		"    mod b",
		"      test deep",
		"    test inner_two",
		"  test last",
	}
	assert.Equal(t, want, shape(tree.Root))
}

func TestReconcileFile_ImplsInSourceOrder(t *testing.T) {
	p := newFakeProvider("demo", libFile)
	p.fn(p.rootID, "before", "test")
	p.documented(p.rootID, m.DefImpl, "", "```\nFoo::new();\n```")
	p.fn(p.rootID, "after", "test")

	mod := p.module(p.rootID, "only_impls", true)
	p.documented(mod, m.DefImpl, "", "```\nx\n```")

	tree := reconcile(t, p)

	want := []string{
		"mod demo",
		"  test before",
		"  doctest ",
		"  test after",
		"  mod only_impls",
		"    doctest only_impls::",
	}
	assert.Equal(t, want, shape(tree.Root))
}

func TestReconcileFile_OutlineModuleNotEntered(t *testing.T) {
	p := newFakeProvider("demo", libFile)
	outline := p.module(p.rootID, "other", false)
	p.fn(outline, "t", "test")

	tree := reconcile(t, p)

	assert.Nil(t, tree.Root)
	assert.True(t, tree.Patch.IsEmpty())
}

func TestReconcileFile_DocumentedOutlineModule(t *testing.T) {
	p := newFakeProvider("demo", libFile)
	p.module(p.rootID, "other", false, "```", "other::run();", "```")

	tree := reconcile(t, p)

	assert.Equal(t, []string{"mod demo", "  doctest other"}, shape(tree.Root))
}

func TestReconcileFile_MacroGrouping(t *testing.T) {
	p := newFakeProvider("demo", libFile)
	mod := p.module(p.rootID, "m", true)
	t1 := p.fn(mod, "case_one", "test")
	t2 := p.fn(mod, "case_two", "test")
	p.fn(mod, "plain", "test")
	p.expandedFrom(t1, "call1", "cases")
	p.expandedFrom(t2, "call1", "cases")

	tree := reconcile(t, p)

	want := []string{
		"mod demo",
		"  mod m",
		"    macro cases",
		"      test case_one",
		"      test case_two",
		"    test plain",
	}
	assert.Equal(t, want, shape(tree.Root))
}

func TestReconcileFile_MacroProducedModule(t *testing.T) {
	p := newFakeProvider("demo", libFile)
	inner := p.module(p.rootID, "inner", true)
	p.expandedFrom(m.Definition{Key: string(inner)}, "call1", "gen")
	tt := p.fn(inner, "t", "test")
	p.expandedFrom(tt, "call1", "gen")
	deeper := p.module(inner, "deeper", true)
	p.expandedFrom(m.Definition{Key: string(deeper)}, "call1", "gen")
	u := p.fn(deeper, "u", "test")
	p.expandedFrom(u, "call1", "gen")
	p.fn(p.rootID, "plain", "test")

	tree := reconcile(t, p)

	want := []string{
		"mod demo",
		"  macro gen",
		"    mod inner",
		"      test t",
		"      mod deeper",
		"        test u",
		"  test plain",
	}
	assert.Equal(t, want, shape(tree.Root))
}

func TestReconcileFile_UnresolvedFile(t *testing.T) {
	p := newFakeProvider("demo", libFile)
	p.fn(p.rootID, "main")

	tree, err := ReconcileFile(p, "src/unknown.rs")
	require.NoError(t, err)
	assert.Nil(t, tree.Root)
	assert.True(t, tree.Patch.IsEmpty())
}

func TestReconcileFile_UnknownNames(t *testing.T) {
	p := newFakeProvider("", libFile)
	mod := p.module(p.rootID, "", true)
	p.fn(mod, "t", "test")

	tree := reconcile(t, p)

	assert.Equal(t, []string{"mod " + UnknownCrateName, "  mod " + UnknownModName, "    test t"}, shape(tree.Root))
}

func richProvider() *fakeProvider {
	p := newFakeProvider("demo", libFile)
	p.fn(p.rootID, "main")
	a := p.module(p.rootID, "a", true)
	p.documented(a, m.DefFunction, "t", "```\nx\n```", "test")
	p.fn(a, "b", "bench")
	p.module(a, "empty", true)
	dup := p.fn(a, "dup", "test")
	p.expandedFrom(dup, "call", "gen")
	dup2 := p.fn(a, "dup", "test")
	p.expandedFrom(dup2, "call", "gen")

	return p
}

func TestReconcileFile_Properties(t *testing.T) {
	p := richProvider()

	first := reconcile(t, p)
	second := reconcile(t, p)

	t.Run("idempotent", func(t *testing.T) {
		if diff := cmp.Diff(first.Root, second.Root); diff != "" {
			t.Fatalf("rebuild differs (-first +second):\n%s", diff)
		}
	})

	t.Run("unique ids", func(t *testing.T) {
		seen := map[m.ID]bool{}

		m.ModuleContent(*first.Root).Walk(func(c m.Content) bool {
			assert.False(t, seen[c.ID()], "duplicate id %s", c.ID())
			seen[c.ID()] = true

			return true
		})
		assert.Len(t, seen, 9)
	})

	t.Run("pruned", func(t *testing.T) {
		m.ModuleContent(*first.Root).Walk(func(c m.Content) bool {
			if c.Module != nil {
				assert.NotEmpty(t, c.Module.Runnables(), "module %s has no runnables", c.Module.Name)
			}

			return true
		})
	})

	t.Run("changelog replays to tree", func(t *testing.T) {
		replayed, err := mirror.Replay(m.AppendItem{}, first.Patch)
		require.NoError(t, err)

		if diff := cmp.Diff(first.Root, replayed.Module); diff != "" {
			t.Fatalf("replay differs (-want +got):\n%s", diff)
		}
	})
}

func TestReconcileCrateAndWorkspace(t *testing.T) {
	p := richProvider()
	cache, err := NewFileCache(8)
	require.NoError(t, err)

	krate := m.CrateSource{Name: "demo", Root: "/ws/demo"}
	files := []m.File{{FullPath: libFile, Hash: "h1"}, {FullPath: "src/nothing.rs", Hash: "h2"}}

	ct, err := ReconcileCrate(context.Background(), p, krate, files, 2, cache)
	require.NoError(t, err)

	assert.Equal(t, CrateID("demo"), ct.Crate.ID)
	require.Len(t, ct.Crate.Modules, 1)
	assert.Equal(t, 2, cache.Len())
	assert.Len(t, ct.Patch.Appended, 2)

	again, err := ReconcileCrate(context.Background(), p, krate, files, 1, cache)
	require.NoError(t, err)
	assert.Empty(t, cmp.Diff(ct.Crate, again.Crate))

	dep, err := ReconcileCrate(context.Background(), p, m.CrateSource{Name: "dep", Dependency: true}, files, 1, nil)
	require.NoError(t, err)

	wt, err := ReconcileWorkspace([]m.Crate{ct.Crate, dep.Crate})
	require.NoError(t, err)

	assert.Equal(t, SessionID(), wt.Session.ID)
	require.Len(t, wt.Session.Crates, 1)
	assert.Len(t, wt.Session.Runnables(), 6)
}
