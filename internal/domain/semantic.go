package domain

import (
	m "runnel.dev/pkg/runnel/internal/model"
)

// SemanticProvider is the analysis layer the reconciliation walks over.
type SemanticProvider interface {
	// ModuleForFile resolves the module defined by file.
	ModuleForFile(file m.Path) (m.ModuleID, bool)
	// DeclarationsOf lists the declarations of module in source order.
	DeclarationsOf(module m.ModuleID) []m.Definition
	// ImplsOf lists the impl blocks of module.
	ImplsOf(module m.ModuleID) []m.Definition
	// IsInline reports whether module has its body in the declaring file.
	IsInline(module m.ModuleID) bool
	NameOf(def m.Definition) (string, bool)
	ModuleName(module m.ModuleID) (string, bool)
	ModuleLocation(module m.ModuleID) m.Location
	AttributesAndDocsOf(def m.Definition) m.Attrs
	IsCrateRoot(module m.ModuleID) bool
	// CanonicalPath is the path of def inside its crate, e.g. "m::t".
	CanonicalPath(def m.Definition) string
	LocationOf(def m.Definition) m.Location
	// MacroCallOf reports the item-position macro invocation def was expanded from.
	MacroCallOf(def m.Definition) (m.MacroCallRef, bool)
	// ParentOf returns the module declaring def.
	ParentOf(def m.Definition) m.ModuleID
}

// Placeholders used when the provider cannot name a node.
const (
	UnknownModName   = "UNKNOWN_MOD_NAME"
	UnknownCrateName = "UNKNOWN_CRATE_NAME"
)
