package model

// ModuleID is the opaque key a semantic provider hands out for a module.
type ModuleID string

// DefKind is the kind of a semantic definition.
type DefKind string

// Available DefKind values.
const (
	DefModule    DefKind = "module"
	DefFunction  DefKind = "function"
	DefStruct    DefKind = "struct"
	DefEnum      DefKind = "enum"
	DefUnion     DefKind = "union"
	DefTrait     DefKind = "trait"
	DefConst     DefKind = "const"
	DefStatic    DefKind = "static"
	DefTypeAlias DefKind = "type_alias"
	DefImpl      DefKind = "impl"
	DefOther     DefKind = "other"
)

// Definition is one declaration reported by a semantic provider.
type Definition struct {
	Kind DefKind
	// Key identifies the definition within its provider.
	Key string
	// Module is the module the definition declares; set for DefModule only.
	Module ModuleID
	// Offset is the byte offset of the declaration in its file.
	Offset int
}

// Attrs are the attribute paths and the raw documentation of a definition.
type Attrs struct {
	Paths []string
	Docs  string
}

// MacroCallRef identifies the item-position macro invocation a definition
// was expanded from.
type MacroCallRef struct {
	Key      string
	Name     string
	Location Location
}
