// Package adapter contains the infrastructure adapters of the runnel CLI:
// filesystem and crate discovery, Rust source analysis, process execution
// and report storage.
package adapter

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/BurntSushi/toml"

	m "runnel.dev/pkg/runnel/internal/model"
)

const manifestName = "Cargo.toml"

// skippedDirs are never searched for crates.
var skippedDirs = map[string]struct{}{
	".git":         {},
	"target":       {},
	"node_modules": {},
}

// SourceFSAdapter abstracts filesystem-specific operations that the domain
// layer relies on when scanning user workspaces, so the workflow logic can be
// tested without touching the disk.
type SourceFSAdapter interface {
	// ReadFile loads a file from disk and returns its contents.
	ReadFile(path m.Path) ([]byte, error)

	// FileInfo returns metadata for a path.
	FileInfo(path m.Path) (os.FileInfo, error)

	// FindCrateRoot walks up from startPath to the nearest directory holding a Cargo.toml.
	FindCrateRoot(startPath m.Path) (m.Path, error)

	// DiscoverCrates resolves path patterns to the cargo packages they name.
	// "dir/..." searches recursively, "dir" names the crate in dir, and a .rs
	// file names the crate owning it.
	DiscoverCrates(ctx context.Context, patterns []string) ([]m.CrateSource, error)

	// RelPath returns the relative path from base to target.
	RelPath(base, target m.Path) (m.Path, error)
}

// LocalSourceFSAdapter is the os-backed SourceFSAdapter.
type LocalSourceFSAdapter struct{}

// NewLocalSourceFSAdapter constructs a LocalSourceFSAdapter instance.
func NewLocalSourceFSAdapter() *LocalSourceFSAdapter {
	return &LocalSourceFSAdapter{}
}

// ReadFile loads file contents from disk.
func (a *LocalSourceFSAdapter) ReadFile(path m.Path) ([]byte, error) {
	return os.ReadFile(string(path))
}

// FileInfo returns os.FileInfo metadata for the given path.
func (a *LocalSourceFSAdapter) FileInfo(path m.Path) (os.FileInfo, error) {
	return os.Stat(string(path))
}

// FindCrateRoot searches for Cargo.toml walking up the directory tree.
func (a *LocalSourceFSAdapter) FindCrateRoot(startPath m.Path) (m.Path, error) {
	dir := string(startPath)
	if info, err := os.Stat(dir); err != nil || !info.IsDir() {
		dir = filepath.Dir(dir)
	}

	for {
		if _, err := os.Stat(filepath.Join(dir, manifestName)); err == nil {
			return m.Path(dir), nil
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return "", fmt.Errorf("%s not found in any parent directory of %s", manifestName, startPath)
		}

		dir = parent
	}
}

// RelPath returns the relative path from base to target.
func (a *LocalSourceFSAdapter) RelPath(base, target m.Path) (m.Path, error) {
	rel, err := filepath.Rel(string(base), string(target))
	if err != nil {
		return "", err
	}

	return m.Path(rel), nil
}

type cargoManifest struct {
	Package   *cargoPackage   `toml:"package"`
	Lib       *cargoTarget    `toml:"lib"`
	Bin       []cargoTarget   `toml:"bin"`
	Test      []cargoTarget   `toml:"test"`
	Bench     []cargoTarget   `toml:"bench"`
	Example   []cargoTarget   `toml:"example"`
	Workspace *cargoWorkspace `toml:"workspace"`
}

type cargoPackage struct {
	Name string `toml:"name"`
}

type cargoTarget struct {
	Name string `toml:"name"`
	Path string `toml:"path"`
}

type cargoWorkspace struct {
	Members []string `toml:"members"`
	Exclude []string `toml:"exclude"`
}

// DiscoverCrates resolves patterns to cargo packages in discovery order.
func (a *LocalSourceFSAdapter) DiscoverCrates(ctx context.Context, patterns []string) ([]m.CrateSource, error) {
	if len(patterns) == 0 {
		patterns = []string{"./..."}
	}

	d := &discovery{fs: a, seen: make(map[string]struct{})}

	for _, pattern := range patterns {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		if err := d.pattern(pattern); err != nil {
			slog.Error("Failed to discover crates", "pattern", pattern, "error", err)
			return nil, fmt.Errorf("discover %s: %w", pattern, err)
		}
	}

	return d.crates, nil
}

type discovery struct {
	fs     *LocalSourceFSAdapter
	seen   map[string]struct{}
	crates []m.CrateSource
}

func (d *discovery) pattern(pattern string) error {
	if dir, ok := strings.CutSuffix(pattern, "..."); ok {
		dir = filepath.Clean(strings.TrimSuffix(dir, "/"))
		if dir == "" {
			dir = "."
		}

		return d.walk(dir)
	}

	info, err := os.Stat(pattern)
	if err != nil {
		return err
	}

	if !info.IsDir() {
		root, err := d.fs.FindCrateRoot(m.Path(pattern))
		if err != nil {
			return err
		}

		pattern = string(root)
	}

	return d.manifest(filepath.Join(pattern, manifestName))
}

func (d *discovery) walk(dir string) error {
	return filepath.WalkDir(dir, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		if entry.IsDir() {
			if _, skip := skippedDirs[entry.Name()]; skip && path != dir {
				return filepath.SkipDir
			}

			return nil
		}

		if entry.Name() != manifestName {
			return nil
		}

		return d.manifest(path)
	})
}

func (d *discovery) manifest(path string) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}

	if _, ok := d.seen[abs]; ok {
		return nil
	}

	d.seen[abs] = struct{}{}

	data, err := d.fs.ReadFile(m.Path(abs))
	if err != nil {
		return err
	}

	var manifest cargoManifest
	if _, err := toml.Decode(string(data), &manifest); err != nil {
		return fmt.Errorf("decode %s: %w", abs, err)
	}

	root := filepath.Dir(abs)

	if manifest.Package != nil {
		krate := m.CrateSource{
			Name:       manifest.Package.Name,
			Root:       m.Path(root),
			Manifest:   m.Path(abs),
			Targets:    targets(root, manifest),
			Dependency: isDependencyPath(root),
		}
		d.crates = append(d.crates, krate)

		slog.Debug("Discovered crate", "name", krate.Name, "root", root, "targets", len(krate.Targets), "dependency", krate.Dependency)
	}

	if manifest.Workspace == nil {
		return nil
	}

	for _, member := range manifest.Workspace.Members {
		matches, err := filepath.Glob(filepath.Join(root, member))
		if err != nil {
			return fmt.Errorf("workspace member %q: %w", member, err)
		}

		for _, match := range matches {
			if excluded(root, match, manifest.Workspace.Exclude) {
				continue
			}

			if _, err := os.Stat(filepath.Join(match, manifestName)); err != nil {
				continue
			}

			if err := d.manifest(filepath.Join(match, manifestName)); err != nil {
				return err
			}
		}
	}

	return nil
}

func excluded(root, dir string, patterns []string) bool {
	for _, p := range patterns {
		if ok, _ := filepath.Match(filepath.Join(root, p), dir); ok {
			return true
		}
	}

	return false
}

// isDependencyPath reports whether root lies in a build directory, a vendor
// directory or the cargo registry.
func isDependencyPath(root string) bool {
	parts := strings.Split(filepath.ToSlash(root), "/")

	for i, part := range parts {
		switch part {
		case "target", "vendor":
			return true
		case "registry":
			if i > 0 && parts[i-1] == ".cargo" {
				return true
			}
		}
	}

	return false
}

// targets lists the cargo targets of a package, explicit manifest entries
// first, then the conventional layout cargo discovers on its own.
func targets(root string, manifest cargoManifest) []m.TargetSource {
	pkg := manifest.Package.Name
	libName := strings.ReplaceAll(pkg, "-", "_")

	var out []m.TargetSource

	seen := make(map[string]struct{})
	add := func(kind m.TargetKind, name, path string) {
		path = filepath.Join(root, path)

		if _, ok := seen[path]; ok {
			return
		}

		if _, err := os.Stat(path); err != nil {
			return
		}

		seen[path] = struct{}{}
		out = append(out, m.TargetSource{Target: m.Target{Kind: kind, Name: name}, Root: m.Path(path)})
	}

	if lib := manifest.Lib; lib != nil {
		name := cmp.Or(lib.Name, libName)
		add(m.TargetLib, name, cmp.Or(lib.Path, "src/lib.rs"))
	} else {
		add(m.TargetLib, libName, "src/lib.rs")
	}

	explicit := []struct {
		kind    m.TargetKind
		entries []cargoTarget
		dir     string
	}{
		{m.TargetBin, manifest.Bin, "src/bin"},
		{m.TargetTest, manifest.Test, "tests"},
		{m.TargetBench, manifest.Bench, "benches"},
		{m.TargetExample, manifest.Example, "examples"},
	}

	for _, group := range explicit {
		for _, t := range group.entries {
			if t.Path != "" {
				add(group.kind, t.Name, t.Path)
				continue
			}

			if group.kind == m.TargetBin && t.Name == pkg {
				add(group.kind, t.Name, "src/main.rs")
			}

			add(group.kind, t.Name, filepath.Join(group.dir, t.Name+".rs"))
			add(group.kind, t.Name, filepath.Join(group.dir, t.Name, "main.rs"))
		}
	}

	add(m.TargetBin, pkg, "src/main.rs")

	for _, group := range explicit {
		for _, name := range conventionalTargets(filepath.Join(root, group.dir)) {
			add(group.kind, name, filepath.Join(group.dir, name+".rs"))
			add(group.kind, name, filepath.Join(group.dir, name, "main.rs"))
		}
	}

	return out
}

// conventionalTargets lists the targets cargo infers from dir: every x.rs
// and every x/main.rs.
func conventionalTargets(dir string) []string {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			slog.Warn("Failed to read target directory", "dir", dir, "error", err)
		}

		return nil
	}

	var names []string

	for _, e := range entries {
		name := e.Name()

		switch {
		case e.IsDir():
			if _, err := os.Stat(filepath.Join(dir, name, "main.rs")); err == nil {
				names = append(names, name)
			}
		case strings.HasSuffix(name, ".rs"):
			names = append(names, strings.TrimSuffix(name, ".rs"))
		}
	}

	slices.Sort(names)

	return names
}
