package model

// NodeKind is the closed set of mirror tree node kinds.
type NodeKind string

// Available NodeKind values.
const (
	KindSession   NodeKind = "session"
	KindCrate     NodeKind = "crate"
	KindModule    NodeKind = "module"
	KindMacroCall NodeKind = "macro_call"
	KindRunnable  NodeKind = "runnable"
)

// Module is a module that is an ancestor of at least one runnable.
type Module struct {
	ID       ID        `json:"id" yaml:"id"`
	Name     string    `json:"name" yaml:"name"`
	Location Location  `json:"location" yaml:"location"`
	Content  []Content `json:"content,omitempty" yaml:"content,omitempty"`
}

// MacroCall groups the runnables produced by one macro invocation.
type MacroCall struct {
	ID       ID        `json:"id" yaml:"id"`
	Name     string    `json:"name" yaml:"name"`
	Location Location  `json:"location" yaml:"location"`
	Content  []Content `json:"content,omitempty" yaml:"content,omitempty"`
}

// Content is one child of a Module or MacroCall. Exactly one field is set.
type Content struct {
	Module    *Module    `json:"module,omitempty" yaml:"module,omitempty"`
	MacroCall *MacroCall `json:"macroCall,omitempty" yaml:"macroCall,omitempty"`
	Runnable  *Runnable  `json:"runnable,omitempty" yaml:"runnable,omitempty"`
}

// ModuleContent wraps a module as content.
func ModuleContent(m Module) Content { return Content{Module: &m} }

// MacroCallContent wraps a macro call as content.
func MacroCallContent(mc MacroCall) Content { return Content{MacroCall: &mc} }

// RunnableContent wraps a runnable as content.
func RunnableContent(r Runnable) Content { return Content{Runnable: &r} }

// Kind returns the node kind held by c.
func (c Content) Kind() NodeKind {
	switch {
	case c.Module != nil:
		return KindModule
	case c.MacroCall != nil:
		return KindMacroCall
	default:
		return KindRunnable
	}
}

// ID returns the identifier of the held node.
func (c Content) ID() ID {
	switch {
	case c.Module != nil:
		return c.Module.ID
	case c.MacroCall != nil:
		return c.MacroCall.ID
	case c.Runnable != nil:
		return c.Runnable.ID
	}

	return ""
}

// Crate is a workspace crate and the file trees found in it.
type Crate struct {
	ID      ID       `json:"id" yaml:"id"`
	Name    string   `json:"name" yaml:"name"`
	Root    Path     `json:"root" yaml:"root"`
	Modules []Module `json:"modules,omitempty" yaml:"modules,omitempty"`
}

// Session is the workspace-level root.
type Session struct {
	ID     ID      `json:"id" yaml:"id"`
	Crates []Crate `json:"crates,omitempty" yaml:"crates,omitempty"`
}

// Walk visits c and all its descendants depth-first in content order.
// Returning false from fn stops the walk.
func (c Content) Walk(fn func(Content) bool) bool {
	if !fn(c) {
		return false
	}

	var children []Content

	switch {
	case c.Module != nil:
		children = c.Module.Content
	case c.MacroCall != nil:
		children = c.MacroCall.Content
	}

	for _, child := range children {
		if !child.Walk(fn) {
			return false
		}
	}

	return true
}

// Runnables returns every runnable below m in content order.
func (m Module) Runnables() []Runnable {
	var out []Runnable

	ModuleContent(m).Walk(func(c Content) bool {
		if c.Runnable != nil {
			out = append(out, *c.Runnable)
		}

		return true
	})

	return out
}

// Runnables returns every runnable of the session in tree order.
func (s Session) Runnables() []Runnable {
	var out []Runnable

	for _, krate := range s.Crates {
		out = append(out, krate.Runnables()...)
	}

	return out
}

// Runnables returns every runnable of the crate in tree order.
func (c Crate) Runnables() []Runnable {
	var out []Runnable

	for _, mod := range c.Modules {
		out = append(out, mod.Runnables()...)
	}

	return out
}
