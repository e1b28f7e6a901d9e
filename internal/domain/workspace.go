package domain

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"regexp"
	"sync"

	"runnel.dev/pkg/runnel/internal/adapter"
	"runnel.dev/pkg/runnel/internal/domain/mirror"
	m "runnel.dev/pkg/runnel/internal/model"
)

// WorkspaceOptions configure a Workspace.
type WorkspaceOptions struct {
	// Exclude holds regular expressions; matching files are not reconciled.
	Exclude []string
	// Parallel bounds the files reconciled at once per crate.
	Parallel int
	// CacheSize is the number of file trees kept between refreshes.
	CacheSize int
}

// Workspace drives reconciliation over the crates found under a set of
// paths and publishes the result as versioned snapshots.
type Workspace interface {
	SnapshotSource
	// Refresh rebuilds the tree and returns the new snapshot together with
	// the edits turning the previous snapshot into it.
	Refresh(ctx context.Context, patterns []string) (*mirror.Snapshot, m.Patch, error)
	// File returns the tree of one source file from the last refresh.
	File(path m.Path) (*m.Module, bool)
}

type workspace struct {
	fs       adapter.SourceFSAdapter
	rust     adapter.RustSourceAdapter
	exclude  []*regexp.Regexp
	parallel int
	cache    *FileCache

	refreshMu sync.Mutex
	log       *mirror.Changelog

	mu       sync.RWMutex
	snapshot *mirror.Snapshot
	files    map[m.Path]*m.Module
}

// NewWorkspace constructs a Workspace reading crates through fs and parsing
// them with rust.
func NewWorkspace(fs adapter.SourceFSAdapter, rust adapter.RustSourceAdapter, opts WorkspaceOptions) (Workspace, error) {
	exclude := make([]*regexp.Regexp, 0, len(opts.Exclude))

	for _, pattern := range opts.Exclude {
		re, err := regexp.Compile(pattern)
		if err != nil {
			slog.Error("Invalid exclude pattern", "pattern", pattern, "error", err)
			return nil, fmt.Errorf("invalid exclude pattern %q: %w", pattern, err)
		}

		exclude = append(exclude, re)
	}

	cache, err := NewFileCache(opts.CacheSize)
	if err != nil {
		return nil, fmt.Errorf("create file cache: %w", err)
	}

	return &workspace{
		fs:       fs,
		rust:     rust,
		exclude:  exclude,
		parallel: opts.Parallel,
		cache:    cache,
		log:      mirror.NewChangelog(),
		snapshot: mirror.NewSnapshot(0, m.AppendItem{}),
		files:    make(map[m.Path]*m.Module),
	}, nil
}

func (w *workspace) Snapshot() *mirror.Snapshot {
	w.mu.RLock()
	defer w.mu.RUnlock()

	return w.snapshot
}

func (w *workspace) File(path m.Path) (*m.Module, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()

	mod, ok := w.files[m.Path(filepath.Clean(string(path)))]

	return mod, ok
}

func (w *workspace) Refresh(ctx context.Context, patterns []string) (*mirror.Snapshot, m.Patch, error) {
	w.refreshMu.Lock()
	defer w.refreshMu.Unlock()

	crates, err := w.fs.DiscoverCrates(ctx, patterns)
	if err != nil {
		slog.Error("Failed to discover crates", "patterns", patterns, "error", err)
		return nil, m.Patch{}, fmt.Errorf("discover crates: %w", err)
	}

	var trees []m.Crate

	files := make(map[m.Path]*m.Module)

	for _, krate := range crates {
		if krate.Dependency {
			continue
		}

		analysis, err := w.rust.Analyze(ctx, krate)
		if err != nil {
			slog.Error("Failed to analyze crate", "crate", krate.Name, "error", err)
			return nil, m.Patch{}, fmt.Errorf("analyze crate %s: %w", krate.Name, err)
		}

		tree, err := ReconcileCrate(ctx, analysis, krate, w.included(analysis.Files()), w.parallel, w.cache)
		if err != nil {
			return nil, m.Patch{}, err
		}

		for i := range tree.Crate.Modules {
			mod := &tree.Crate.Modules[i]
			files[mod.Location.File] = mod
		}

		trees = append(trees, tree.Crate)
	}

	session, err := ReconcileWorkspace(trees)
	if err != nil {
		return nil, m.Patch{}, err
	}

	next := m.AppendItem{Session: &session.Session}

	if err := mirror.Diff(w.Snapshot().Root(), next, w.log); err != nil {
		slog.Error("Failed to diff workspace trees", "error", err)
		return nil, m.Patch{}, fmt.Errorf("diff trees: %w", err)
	}

	patch := w.log.Consume()
	snap := mirror.NewSnapshot(patch.Version+1, next)

	w.mu.Lock()
	w.snapshot = snap
	w.files = files
	w.mu.Unlock()

	slog.Info("Workspace refreshed",
		"crates", len(session.Session.Crates),
		"runnables", len(snap.Runnables()),
		"edits", patch.Len(),
		"version", snap.Version())

	return snap, patch, nil
}

func (w *workspace) included(files []m.File) []m.File {
	if len(w.exclude) == 0 {
		return files
	}

	out := make([]m.File, 0, len(files))

	for _, f := range files {
		if w.excluded(f) {
			slog.Debug("Excluding file", "file", f.ShortPath)
			continue
		}

		out = append(out, f)
	}

	return out
}

func (w *workspace) excluded(f m.File) bool {
	for _, re := range w.exclude {
		if re.MatchString(filepath.ToSlash(string(f.ShortPath))) || re.MatchString(string(f.FullPath)) {
			return true
		}
	}

	return false
}
