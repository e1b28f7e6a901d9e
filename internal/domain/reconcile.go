package domain

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"

	"golang.org/x/sync/errgroup"

	"runnel.dev/pkg/runnel/internal/domain/mirror"
	m "runnel.dev/pkg/runnel/internal/model"
)

// FileTree is the result of reconciling one file: its module tree, nil when
// the file holds no runnables, and the edits that built it.
type FileTree struct {
	File  m.Path
	Root  *m.Module
	Patch m.Patch
}

// CrateTree is the per-crate aggregate of file trees.
type CrateTree struct {
	Crate m.Crate
	Patch m.Patch
}

// WorkspaceTree is the session-level aggregate of crate trees.
type WorkspaceTree struct {
	Session m.Session
	Patch   m.Patch
}

type frame struct {
	module m.ModuleID
	decls  []m.Definition
}

type macroKey struct {
	module mirror.ModuleHandle
	key    string
}

// walker rebuilds the mirror tree of one file.
type walker struct {
	provider SemanticProvider
	store    *mirror.Store
	log      *mirror.Changelog
	path     *Path
	ids      *idAllocator
	macros   map[macroKey]mirror.MacroCallHandle
	// expanded maps modules produced by a macro to the key of that call.
	expanded map[m.ModuleID]string
	// grouped holds the outermost macro modules, which nest under their call.
	grouped map[m.ModuleID]m.MacroCallRef
}

// ReconcileFile walks the declarations of file in source order and builds
// the tree of modules leading to its runnables. A file the provider cannot
// resolve yields an empty tree.
func ReconcileFile(p SemanticProvider, file m.Path) (FileTree, error) {
	result := FileTree{File: file}

	root, ok := p.ModuleForFile(file)
	if !ok {
		slog.Debug("File does not resolve to a module", "file", file)
		return result, nil
	}

	w := &walker{
		provider: p,
		store:    mirror.NewStore(),
		log:      mirror.NewChangelog(),
		path:     NewPath(root),
		ids:      newIDAllocator(),
		macros:   make(map[macroKey]mirror.MacroCallHandle),
		expanded: make(map[m.ModuleID]string),
		grouped:  make(map[m.ModuleID]m.MacroCallRef),
	}

	if err := w.walk(root); err != nil {
		slog.Error("Failed to reconcile file", "file", file, "error", err)
		return result, fmt.Errorf("reconcile %s: %w", file, err)
	}

	tree, err := w.store.Export()

	switch {
	case errors.Is(err, mirror.ErrNoRoot):
	case err != nil:
		return result, fmt.Errorf("export %s: %w", file, err)
	default:
		result.Root = tree.Module
	}

	result.Patch = w.log.Consume()

	return result, nil
}

func (w *walker) walk(root m.ModuleID) error {
	decls := w.declarationsOf(root)
	if len(decls) == 0 {
		return nil
	}

	stack := []frame{{module: root, decls: decls}}

	for len(stack) > 0 {
		top := &stack[len(stack)-1]
		def := top.decls[0]
		top.decls = top.decls[1:]

		if len(top.decls) == 0 {
			stack = stack[:len(stack)-1]
		}

		if !w.path.ShrinkTo(w.provider.ParentOf(def)) {
			slog.Warn("Declaration parent is not on the walked path", "key", def.Key)
			continue
		}

		if err := w.visit(def); err != nil {
			return err
		}

		if def.Kind != m.DefModule || !w.provider.IsInline(def.Module) {
			continue
		}

		if decls := w.declarationsOf(def.Module); len(decls) > 0 {
			if ref, ok := w.provider.MacroCallOf(def); ok {
				if !w.insideExpansion(ref.Key) {
					w.grouped[def.Module] = ref
				}

				w.expanded[def.Module] = ref.Key
			}

			w.path.Push(def.Module)
			stack = append(stack, frame{module: def.Module, decls: decls})
		}
	}

	return nil
}

// declarationsOf merges the impl blocks of module into its declarations by
// source offset.
func (w *walker) declarationsOf(module m.ModuleID) []m.Definition {
	decls := slices.Clone(w.provider.DeclarationsOf(module))
	decls = append(decls, w.provider.ImplsOf(module)...)

	slices.SortStableFunc(decls, func(a, b m.Definition) int { return cmp.Compare(a.Offset, b.Offset) })

	return decls
}

func (w *walker) visit(def m.Definition) error {
	found := Classify(w.provider, def)
	if len(found) == 0 {
		return nil
	}

	if diff, ok := LocateDiff(w.path); ok {
		if err := SynthesizeBranch(w.store, w.log, w.path, diff, w.newModule, w.container); err != nil {
			return err
		}
	}

	module := w.path.Tail().Mirror

	runnables := make([]m.Runnable, 0, len(found))
	for _, c := range found {
		runnables = append(runnables, w.newRunnable(def, c))
	}

	ref, ok := w.provider.MacroCallOf(def)
	if !ok || w.insideExpansion(ref.Key) {
		return mirror.Module(w.store, w.log, module).AppendRunnables(runnables...)
	}

	call, err := w.macroCall(module, ref)
	if err != nil {
		return err
	}

	return mirror.MacroCall(w.store, w.log, call).AppendRunnables(runnables...)
}

// insideExpansion reports whether the walked path already runs through a
// module produced by the macro call key.
func (w *walker) insideExpansion(key string) bool {
	for _, e := range w.path.Entries() {
		if k, ok := w.expanded[e.Origin]; ok && k == key {
			return true
		}
	}

	return false
}

// container appends macro-produced modules under their macro call node.
func (w *walker) container(parent mirror.ModuleHandle, origin m.ModuleID) (ModuleAppender, error) {
	ref, ok := w.grouped[origin]
	if !ok {
		return mirror.Module(w.store, w.log, parent), nil
	}

	call, err := w.macroCall(parent, ref)
	if err != nil {
		return nil, err
	}

	return mirror.MacroCall(w.store, w.log, call), nil
}

// macroCall returns the node grouping the expansions of ref under module,
// creating it on first use.
func (w *walker) macroCall(module mirror.ModuleHandle, ref m.MacroCallRef) (mirror.MacroCallHandle, error) {
	key := macroKey{module: module, key: ref.Key}
	if h, ok := w.macros[key]; ok {
		return h, nil
	}

	parentID := w.store.ID(mirror.Handle(module))
	call := m.MacroCall{
		ID:       w.ids.next("macro:" + string(parentID) + ":" + ref.Key),
		Name:     ref.Name,
		Location: ref.Location,
	}

	h, err := mirror.Module(w.store, w.log, module).AppendMacroCall(call)
	if err != nil {
		return h, fmt.Errorf("append macro call %s: %w", ref.Name, err)
	}

	w.macros[key] = h

	return h, nil
}

func (w *walker) newModule(origin m.ModuleID) m.Module {
	loc := w.provider.ModuleLocation(origin)

	var name string

	if w.provider.IsCrateRoot(origin) {
		name = loc.Crate
		if name == "" {
			name = UnknownCrateName
		}
	} else {
		n, ok := w.provider.ModuleName(origin)
		if !ok || n == "" {
			n = UnknownModName
		}

		name = n
	}

	return m.Module{
		ID:       w.ids.next("mod:" + scopeKey(loc) + "::" + loc.Path),
		Name:     name,
		Location: loc,
	}
}

func (w *walker) newRunnable(def m.Definition, c Classification) m.Runnable {
	loc := w.provider.LocationOf(def)
	path := w.provider.CanonicalPath(def)
	loc.Path = path

	if c.Kind == m.RunnableDoctest {
		return m.NewDoctest(w.ids.next("doctest:"+scopeKey(loc)+"::"+path+"#"+string(def.Kind)), loc)
	}

	return m.NewFunction(w.ids.next("fn:"+scopeKey(loc)+"::"+path+"#"+string(c.FuncKind)), c.Name, c.FuncKind, loc)
}

// ReconcileCrate reconciles every file of krate, in parallel when parallel
// is above one, and aggregates the file trees in file order. Files with a
// cached tree for their content hash are not walked again. Dependency crates
// yield an empty crate.
func ReconcileCrate(ctx context.Context, p SemanticProvider, krate m.CrateSource, files []m.File, parallel int, cache *FileCache) (CrateTree, error) {
	if krate.Dependency {
		slog.Debug("Skipping dependency crate", "crate", krate.Name)
		return CrateTree{}, nil
	}

	trees := make([]*m.Module, len(files))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(parallel, 1))

	for i, file := range files {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}

			if root, ok := cache.Get(krate.Name, file); ok {
				trees[i] = root
				return nil
			}

			tree, err := ReconcileFile(p, file.FullPath)
			if err != nil {
				return err
			}

			cache.Add(krate.Name, file, tree.Root)
			trees[i] = tree.Root

			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return CrateTree{}, fmt.Errorf("reconcile crate %s: %w", krate.Name, err)
	}

	name := krate.Name
	if name == "" {
		name = UnknownCrateName
	}

	s := mirror.NewStore()
	log := mirror.NewChangelog()

	cm, err := mirror.PublishCrate(s, log, m.Crate{ID: CrateID(name), Name: name, Root: krate.Root})
	if err != nil {
		return CrateTree{}, err
	}

	for _, root := range trees {
		if root == nil {
			continue
		}

		if _, err := cm.AppendModule(*root); err != nil {
			slog.Error("Failed to aggregate file tree", "crate", name, "file", root.Location.File, "error", err)
			return CrateTree{}, fmt.Errorf("aggregate %s: %w", root.Location.File, err)
		}
	}

	out, err := s.Export()
	if err != nil {
		return CrateTree{}, err
	}

	return CrateTree{Crate: *out.Crate, Patch: log.Consume()}, nil
}

// ReconcileWorkspace aggregates crate trees into the session root. Crates
// without runnables are left out.
func ReconcileWorkspace(crates []m.Crate) (WorkspaceTree, error) {
	s := mirror.NewStore()
	log := mirror.NewChangelog()

	sm, err := mirror.PublishSession(s, log, m.Session{ID: SessionID()})
	if err != nil {
		return WorkspaceTree{}, err
	}

	for _, krate := range crates {
		if len(krate.Modules) == 0 {
			continue
		}

		if _, err := sm.AppendCrate(krate); err != nil {
			slog.Error("Failed to aggregate crate", "crate", krate.Name, "error", err)
			return WorkspaceTree{}, fmt.Errorf("aggregate crate %s: %w", krate.Name, err)
		}
	}

	out, err := s.Export()
	if err != nil {
		return WorkspaceTree{}, err
	}

	return WorkspaceTree{Session: *out.Session, Patch: log.Consume()}, nil
}
