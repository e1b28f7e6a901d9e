package model

// Path represents a file system path.
type Path string

// File represents a source code file.
type File struct {
	ShortPath Path
	FullPath  Path
	Hash      string
	Target    Target
}

// CrateSource describes one cargo package found on disk.
type CrateSource struct {
	Name     string
	Root     Path // directory holding Cargo.toml
	Manifest Path
	Targets  []TargetSource
	// Dependency is set for registry and vendored crates and for crates
	// outside the workspace. They are never mirrored.
	Dependency bool
}

// TargetSource is one cargo target and its root file.
type TargetSource struct {
	Target Target
	Root   Path
}
