package domain

import (
	"fmt"
	"strings"

	m "runnel.dev/pkg/runnel/internal/model"
)

type fakeModule struct {
	name   string
	path   string
	inline bool
	root   bool
	decls  []m.Definition
	impls  []m.Definition
}

type fakeDef struct {
	name   string
	attrs  m.Attrs
	parent m.ModuleID
	macro  *m.MacroCallRef
	line   int
}

// fakeProvider is an in-memory semantic provider for one file.
type fakeProvider struct {
	crate   string
	file    m.Path
	rootID  m.ModuleID
	modules map[m.ModuleID]*fakeModule
	defs    map[string]*fakeDef
	offset  int
}

func newFakeProvider(crate string, file m.Path) *fakeProvider {
	root := m.ModuleID("root")

	return &fakeProvider{
		crate:   crate,
		file:    file,
		rootID:  root,
		modules: map[m.ModuleID]*fakeModule{root: {name: crate, root: true, inline: true}},
		defs:    make(map[string]*fakeDef),
	}
}

func (f *fakeProvider) add(parent m.ModuleID, kind m.DefKind, name string, attrs m.Attrs) m.Definition {
	f.offset++
	def := m.Definition{Kind: kind, Key: fmt.Sprintf("def%d", f.offset), Offset: f.offset * 10}
	f.defs[def.Key] = &fakeDef{name: name, attrs: attrs, parent: parent, line: f.offset}

	mod := f.modules[parent]
	if kind == m.DefImpl {
		mod.impls = append(mod.impls, def)
	} else {
		mod.decls = append(mod.decls, def)
	}

	return def
}

func (f *fakeProvider) module(parent m.ModuleID, name string, inline bool, docs ...string) m.ModuleID {
	def := f.add(parent, m.DefModule, name, m.Attrs{Docs: strings.Join(docs, "\n")})
	id := m.ModuleID(def.Key)

	path := name
	if p := f.modules[parent].path; p != "" {
		path = p + "::" + name
	}

	f.modules[id] = &fakeModule{name: name, path: path, inline: inline}
	f.modules[parent].decls[len(f.modules[parent].decls)-1].Module = id

	return id
}

func (f *fakeProvider) fn(parent m.ModuleID, name string, attrs ...string) m.Definition {
	return f.add(parent, m.DefFunction, name, m.Attrs{Paths: attrs})
}

func (f *fakeProvider) documented(parent m.ModuleID, kind m.DefKind, name, docs string, attrs ...string) m.Definition {
	return f.add(parent, kind, name, m.Attrs{Paths: attrs, Docs: docs})
}

func (f *fakeProvider) expandedFrom(def m.Definition, key, macro string) {
	f.defs[def.Key].macro = &m.MacroCallRef{Key: key, Name: macro, Location: m.Location{File: f.file, Crate: f.crate}}
}

func (f *fakeProvider) ModuleForFile(file m.Path) (m.ModuleID, bool) {
	if file != f.file {
		return "", false
	}

	return f.rootID, true
}

func (f *fakeProvider) DeclarationsOf(module m.ModuleID) []m.Definition {
	return f.modules[module].decls
}

func (f *fakeProvider) ImplsOf(module m.ModuleID) []m.Definition {
	return f.modules[module].impls
}

func (f *fakeProvider) IsInline(module m.ModuleID) bool { return f.modules[module].inline }

func (f *fakeProvider) NameOf(def m.Definition) (string, bool) {
	name := f.defs[def.Key].name
	return name, name != ""
}

func (f *fakeProvider) ModuleName(module m.ModuleID) (string, bool) {
	name := f.modules[module].name
	return name, name != ""
}

func (f *fakeProvider) ModuleLocation(module m.ModuleID) m.Location {
	return m.Location{File: f.file, Path: f.modules[module].path, Crate: f.crate, Target: m.Target{Kind: m.TargetLib, Name: f.crate}}
}

func (f *fakeProvider) AttributesAndDocsOf(def m.Definition) m.Attrs { return f.defs[def.Key].attrs }

func (f *fakeProvider) IsCrateRoot(module m.ModuleID) bool { return f.modules[module].root }

func (f *fakeProvider) CanonicalPath(def m.Definition) string {
	d := f.defs[def.Key]
	if p := f.modules[d.parent].path; p != "" {
		return p + "::" + d.name
	}

	return d.name
}

func (f *fakeProvider) LocationOf(def m.Definition) m.Location {
	return m.Location{File: f.file, Line: f.defs[def.Key].line, Crate: f.crate, Target: m.Target{Kind: m.TargetLib, Name: f.crate}}
}

func (f *fakeProvider) MacroCallOf(def m.Definition) (m.MacroCallRef, bool) {
	if ref := f.defs[def.Key].macro; ref != nil {
		return *ref, true
	}

	return m.MacroCallRef{}, false
}

func (f *fakeProvider) ParentOf(def m.Definition) m.ModuleID { return f.defs[def.Key].parent }
