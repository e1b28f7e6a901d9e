// Package model defines the data structures of the runnables mirror tree.
package model

import "github.com/google/uuid"

// ID identifies a node of the mirror tree. IDs are unique within a Session.
type ID string

// idNamespace scopes the name-based UUIDs derived by NewID.
var idNamespace = uuid.MustParse("6c1f3b0e-52a4-4a39-9f0e-8f8f2d7e4b21")

// NewID derives a deterministic identifier from a semantic key. The same key
// always yields the same ID, so run/abort requests stay valid across rebuilds
// of an unchanged definition.
func NewID(key string) ID {
	return ID(uuid.NewSHA1(idNamespace, []byte(key)).String())
}

// FuncKind defines the kind of a runnable function.
type FuncKind string

const (
	// FuncTest is a function marked with a test-like attribute.
	FuncTest FuncKind = "test"
	// FuncBench is a function marked with a bare bench attribute.
	FuncBench FuncKind = "bench"
	// FuncBin is the entry point of a crate.
	FuncBin FuncKind = "bin"
)

// RunnableKind separates functions from documentation examples.
type RunnableKind string

const (
	// RunnableFunction is a test, benchmark or binary entry point.
	RunnableFunction RunnableKind = "function"
	// RunnableDoctest is a runnable code block in documentation.
	RunnableDoctest RunnableKind = "doctest"
)

// TargetKind is the kind of cargo target a source file belongs to.
type TargetKind string

// Available TargetKind values.
const (
	TargetLib     TargetKind = "lib"
	TargetBin     TargetKind = "bin"
	TargetTest    TargetKind = "test"
	TargetBench   TargetKind = "bench"
	TargetExample TargetKind = "example"
)

// Target is the cargo target owning a file.
type Target struct {
	Kind TargetKind `json:"kind" yaml:"kind"`
	Name string     `json:"name" yaml:"name"`
}

// Location is the semantic location of a tree node.
type Location struct {
	File   Path   `json:"file" yaml:"file"`
	Line   int    `json:"line" yaml:"line"`
	Column int    `json:"column" yaml:"column"`
	Path   string `json:"path,omitempty" yaml:"path,omitempty"` // canonical path inside the crate, e.g. "m::t"
	Crate  string `json:"crate,omitempty" yaml:"crate,omitempty"`
	Target Target `json:"target" yaml:"target"`
}

// Runnable is a leaf of the mirror tree. Runnables are immutable once created.
type Runnable struct {
	ID       ID           `json:"id" yaml:"id"`
	Kind     RunnableKind `json:"kind" yaml:"kind"`
	Name     string       `json:"name,omitempty" yaml:"name,omitempty"`
	FuncKind FuncKind     `json:"funcKind,omitempty" yaml:"funcKind,omitempty"`
	Location Location     `json:"location" yaml:"location"`
}

// NewFunction builds a function runnable.
func NewFunction(id ID, name string, kind FuncKind, loc Location) Runnable {
	return Runnable{ID: id, Kind: RunnableFunction, Name: name, FuncKind: kind, Location: loc}
}

// NewDoctest builds a doctest runnable.
func NewDoctest(id ID, loc Location) Runnable {
	return Runnable{ID: id, Kind: RunnableDoctest, Location: loc}
}

// IsFunction reports whether r is a test, bench or bin function.
func (r Runnable) IsFunction() bool {
	return r.Kind == RunnableFunction
}
