package adapter

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"path/filepath"
	"strconv"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/rust"

	m "runnel.dev/pkg/runnel/internal/model"
)

// RustSourceAdapter builds the semantic view of a crate from its sources.
type RustSourceAdapter interface {
	Analyze(ctx context.Context, krate m.CrateSource) (*CrateAnalysis, error)
}

// LocalRustSourceAdapter parses Rust sources with tree-sitter. The module
// tree follows `mod` declarations from every target root, the way cargo
// compiles a crate.
type LocalRustSourceAdapter struct {
	fs SourceFSAdapter
}

// NewLocalRustSourceAdapter constructs a LocalRustSourceAdapter reading files through fs.
func NewLocalRustSourceAdapter(fs SourceFSAdapter) *LocalRustSourceAdapter {
	return &LocalRustSourceAdapter{fs: fs}
}

type rustModule struct {
	id        m.ModuleID
	name      string
	path      string
	file      m.Path
	dir       string
	target    m.Target
	inline    bool
	root      bool
	line, col int
	innerDocs []string
	decls     []m.Definition
	impls     []m.Definition
}

type rustDef struct {
	name      string
	attrs     m.Attrs
	parent    m.ModuleID
	macro     *m.MacroCallRef
	line, col int
}

// CrateAnalysis is the parsed module tree of one crate. It is read-only once
// Analyze returns and safe for concurrent readers.
type CrateAnalysis struct {
	crate   string
	files   []m.File
	byFile  map[m.Path]m.ModuleID
	modules map[m.ModuleID]*rustModule
	defs    map[string]*rustDef
}

// Files returns the source files reached from the crate targets, in load order.
func (c *CrateAnalysis) Files() []m.File {
	return c.files
}

// position maps nodes of a reparsed macro body back into the file.
type position struct {
	offset int
	row    int
	col    int
}

type outline struct {
	root   bool
	id     m.ModuleID
	name   string
	path   string
	file   m.Path
	target m.Target
}

type scanner struct {
	ctx      context.Context
	fs       SourceFSAdapter
	parser   *sitter.Parser
	analysis *CrateAnalysis
	pending  []outline
}

// Analyze parses every file reachable from the targets of krate.
func (a *LocalRustSourceAdapter) Analyze(ctx context.Context, krate m.CrateSource) (*CrateAnalysis, error) {
	parser := sitter.NewParser()
	parser.SetLanguage(rust.GetLanguage())

	s := &scanner{
		ctx:    ctx,
		fs:     a.fs,
		parser: parser,
		analysis: &CrateAnalysis{
			crate:   krate.Name,
			byFile:  make(map[m.Path]m.ModuleID),
			modules: make(map[m.ModuleID]*rustModule),
			defs:    make(map[string]*rustDef),
		},
	}

	for _, t := range krate.Targets {
		name := t.Target.Name
		if t.Target.Kind == m.TargetLib {
			name = krate.Name
		}

		s.pending = append(s.pending, outline{root: true, id: fileModuleID(t.Root), name: name, file: t.Root, target: t.Target})

		if err := a.drain(s, krate); err != nil {
			return nil, err
		}
	}

	s.analysis.fingerprint()

	slog.Debug("Analyzed crate", "crate", krate.Name, "files", len(s.analysis.files), "modules", len(s.analysis.modules))

	return s.analysis, nil
}

func (a *LocalRustSourceAdapter) drain(s *scanner, krate m.CrateSource) error {
	for len(s.pending) > 0 {
		next := s.pending[0]
		s.pending = s.pending[1:]

		if _, ok := s.analysis.byFile[next.file]; ok {
			continue
		}

		if err := s.ctx.Err(); err != nil {
			return err
		}

		content, err := a.fs.ReadFile(next.file)
		if err != nil && !next.root {
			slog.Warn("Skipping unresolved module file", "file", next.file, "module", next.path, "error", err)
			continue
		}

		if err != nil {
			slog.Error("Failed to read source file", "file", next.file, "error", err)
			return fmt.Errorf("read %s: %w", next.file, err)
		}

		short, err := a.fs.RelPath(krate.Root, next.file)
		if err != nil {
			short = next.file
		}

		sum := sha256.Sum256(content)
		s.analysis.files = append(s.analysis.files, m.File{
			ShortPath: short,
			FullPath:  next.file,
			Hash:      hex.EncodeToString(sum[:]),
			Target:    next.target,
		})

		if err := s.file(next, content); err != nil {
			return err
		}
	}

	return nil
}

// fingerprint replaces the content hash of every file with a hash of all
// the file's tree is built from: its content, the module the file defines,
// and the name, path and inner docs of the outline modules it declares.
func (c *CrateAnalysis) fingerprint() {
	for i := range c.files {
		h := sha256.New()
		write := func(parts ...string) {
			for _, p := range parts {
				h.Write([]byte(p))
				h.Write([]byte{0})
			}
		}

		write(c.files[i].Hash)

		if mod, ok := c.modules[c.byFile[c.files[i].FullPath]]; ok {
			write(mod.name, mod.path, string(mod.target.Kind), mod.target.Name, strconv.FormatBool(mod.root))
			c.writeOutlineChildren(mod, write)
		}

		c.files[i].Hash = hex.EncodeToString(h.Sum(nil))
	}
}

func (c *CrateAnalysis) writeOutlineChildren(mod *rustModule, write func(...string)) {
	for _, def := range mod.decls {
		if def.Kind != m.DefModule {
			continue
		}

		child, ok := c.modules[def.Module]

		switch {
		case !ok:
			write("unresolved", string(def.Module))
		case child.inline:
			c.writeOutlineChildren(child, write)
		default:
			write(string(child.id), child.name, child.path)
			write(child.innerDocs...)
		}
	}
}

func fileModuleID(file m.Path) m.ModuleID {
	return m.ModuleID("file:" + string(file))
}

// moduleDir is where the outline children of a file module live.
func moduleDir(file m.Path, root bool) string {
	dir := filepath.Dir(string(file))

	base := filepath.Base(string(file))
	if root || base == "mod.rs" || base == "lib.rs" || base == "main.rs" {
		return dir
	}

	return filepath.Join(dir, strings.TrimSuffix(base, ".rs"))
}

func (s *scanner) file(o outline, content []byte) error {
	tree, err := s.parser.ParseCtx(s.ctx, nil, content)
	if err != nil {
		return fmt.Errorf("parse %s: %w", o.file, err)
	}
	defer tree.Close()

	root := tree.RootNode()
	if root.HasError() {
		slog.Debug("Source contains syntax errors", "file", o.file)
	}

	mod := &rustModule{
		id:     o.id,
		name:   o.name,
		path:   o.path,
		file:   o.file,
		dir:    moduleDir(o.file, o.root),
		target: o.target,
		root:   o.root,
		line:   1,
		col:    1,
	}

	s.analysis.modules[mod.id] = mod
	s.analysis.byFile[o.file] = mod.id

	s.scan(mod, root, content, position{}, nil)

	return nil
}

// scan reads the items of one container node into mod. Attributes and doc
// comments attach to the next item.
func (s *scanner) scan(mod *rustModule, container *sitter.Node, src []byte, base position, macro *m.MacroCallRef) {
	var (
		attrs []string
		docs  []string
		path  string
	)

	for i := 0; i < int(container.NamedChildCount()); i++ {
		n := container.NamedChild(i)

		switch n.Type() {
		case "line_comment", "block_comment":
			if doc, inner, ok := docComment(n.Content(src)); ok {
				if inner {
					mod.innerDocs = append(mod.innerDocs, doc)
				} else {
					docs = append(docs, doc)
				}
			}

			continue
		case "attribute_item", "inner_attribute_item":
			attrPath, value, hasValue := parseAttribute(n.Content(src))

			switch {
			case attrPath == "doc" && hasValue && n.Type() == "inner_attribute_item":
				mod.innerDocs = append(mod.innerDocs, value)
			case attrPath == "doc" && hasValue:
				docs = append(docs, value)
			case n.Type() == "attribute_item":
				attrs = append(attrs, attrPath)
				if attrPath == "path" && hasValue {
					path = value
				}
			}

			continue
		case "expression_statement":
			if n.NamedChildCount() > 0 && n.NamedChild(0).Type() == "macro_invocation" {
				n = n.NamedChild(0)
			}
		}

		if n.Type() == "macro_invocation" {
			s.expand(mod, n, src, base)
		} else if kind, name, ok := itemKind(n, src); ok {
			def := s.define(mod, n, kind, name, m.Attrs{Paths: attrs, Docs: strings.Join(docs, "\n")}, base, macro)

			if kind == m.DefModule {
				s.module(mod, n, def, name, path, src, base, macro)
			}
		}

		attrs, docs, path = nil, nil, ""
	}
}

func (s *scanner) define(mod *rustModule, n *sitter.Node, kind m.DefKind, name string, attrs m.Attrs, base position, macro *m.MacroCallRef) m.Definition {
	offset := base.offset + int(n.StartByte())
	def := m.Definition{Kind: kind, Key: fmt.Sprintf("%s@%d", mod.file, offset), Offset: offset}

	line, col := base.at(n.StartPoint())
	s.analysis.defs[def.Key] = &rustDef{name: name, attrs: attrs, parent: mod.id, macro: macro, line: line, col: col}

	if kind == m.DefImpl {
		mod.impls = append(mod.impls, def)
	} else {
		mod.decls = append(mod.decls, def)
	}

	return def
}

func (p position) at(pt sitter.Point) (int, int) {
	col := int(pt.Column) + 1
	if pt.Row == 0 {
		col += p.col
	}

	return p.row + int(pt.Row) + 1, col
}

// module registers the module declared by n. Inline bodies are scanned in
// place; outline modules are queued for loading from their own file.
func (s *scanner) module(parent *rustModule, n *sitter.Node, def m.Definition, name, pathAttr string, src []byte, base position, macro *m.MacroCallRef) {
	modPath := name
	if parent.path != "" {
		modPath = parent.path + "::" + name
	}

	idx := len(parent.decls) - 1

	body := n.ChildByFieldName("body")
	if body == nil {
		file := s.resolveOutline(parent, name, pathAttr)
		id := fileModuleID(file)
		parent.decls[idx].Module = id
		s.pending = append(s.pending, outline{id: id, name: name, path: modPath, file: file, target: parent.target})

		return
	}

	line, col := base.at(n.StartPoint())
	child := &rustModule{
		id:     m.ModuleID(def.Key),
		name:   name,
		path:   modPath,
		file:   parent.file,
		dir:    filepath.Join(parent.dir, name),
		target: parent.target,
		inline: true,
		line:   line,
		col:    col,
	}

	s.analysis.modules[child.id] = child
	parent.decls[idx].Module = child.id

	s.scan(child, body, src, base, macro)
}

func (s *scanner) resolveOutline(parent *rustModule, name, pathAttr string) m.Path {
	if pathAttr != "" {
		dir := parent.dir
		if !parent.inline {
			dir = filepath.Dir(string(parent.file))
		}

		return m.Path(filepath.Join(dir, pathAttr))
	}

	candidate := filepath.Join(parent.dir, name+".rs")
	if _, err := s.fs.FileInfo(m.Path(candidate)); err == nil {
		return m.Path(candidate)
	}

	return m.Path(filepath.Join(parent.dir, name, "mod.rs"))
}

// expand reparses the token tree of an item-position macro invocation as
// items. Definitions found there are grouped under the invocation.
func (s *scanner) expand(mod *rustModule, n *sitter.Node, src []byte, base position) {
	nameNode := n.ChildByFieldName("macro")
	if nameNode == nil {
		return
	}

	var body *sitter.Node

	for i := 0; i < int(n.NamedChildCount()); i++ {
		if c := n.NamedChild(i); c.Type() == "token_tree" {
			body = c
		}
	}

	if body == nil || body.EndByte()-body.StartByte() < 2 {
		return
	}

	inner := src[body.StartByte()+1 : body.EndByte()-1]

	tree, err := s.parser.ParseCtx(s.ctx, nil, inner)
	if err != nil {
		slog.Debug("Failed to parse macro body", "file", mod.file, "error", err)
		return
	}
	defer tree.Close()

	line, col := base.at(n.StartPoint())
	bodyRow, bodyCol := base.at(body.StartPoint())
	offset := base.offset + int(n.StartByte())

	ref := &m.MacroCallRef{
		Key:  fmt.Sprintf("%s@%d", mod.file, offset),
		Name: nameNode.Content(src),
		Location: m.Location{
			File:   mod.file,
			Line:   line,
			Column: col,
			Path:   mod.path,
			Crate:  s.analysis.crate,
			Target: mod.target,
		},
	}

	innerBase := position{
		offset: base.offset + int(body.StartByte()) + 1,
		row:    bodyRow - 1,
		col:    bodyCol,
	}

	s.scan(mod, tree.RootNode(), inner, innerBase, ref)
}

func itemKind(n *sitter.Node, src []byte) (m.DefKind, string, bool) {
	var kind m.DefKind

	switch n.Type() {
	case "function_item":
		kind = m.DefFunction
	case "mod_item":
		kind = m.DefModule
	case "struct_item":
		kind = m.DefStruct
	case "enum_item":
		kind = m.DefEnum
	case "union_item":
		kind = m.DefUnion
	case "trait_item":
		kind = m.DefTrait
	case "const_item":
		kind = m.DefConst
	case "static_item":
		kind = m.DefStatic
	case "type_item":
		kind = m.DefTypeAlias
	case "impl_item":
		return m.DefImpl, implName(n, src), true
	default:
		return "", "", false
	}

	name := ""
	if nameNode := n.ChildByFieldName("name"); nameNode != nil {
		name = nameNode.Content(src)
	}

	return kind, name, true
}

func implName(n *sitter.Node, src []byte) string {
	typ := n.ChildByFieldName("type")
	if typ == nil {
		return ""
	}

	if trait := n.ChildByFieldName("trait"); trait != nil {
		return trait.Content(src) + " for " + typ.Content(src)
	}

	return typ.Content(src)
}

// docComment recognizes outer (///, /** */) and inner (//!, /*! */) doc
// comments and returns their text.
func docComment(text string) (string, bool, bool) {
	text = strings.TrimRight(text, "\r\n")

	switch {
	case strings.HasPrefix(text, "////"):
		return "", false, false
	case strings.HasPrefix(text, "///"):
		return strings.TrimPrefix(text[3:], " "), false, true
	case strings.HasPrefix(text, "//!"):
		return strings.TrimPrefix(text[3:], " "), true, true
	case strings.HasPrefix(text, "/***"), text == "/**/":
		return "", false, false
	case strings.HasPrefix(text, "/**"):
		return blockDoc(text[3:]), false, true
	case strings.HasPrefix(text, "/*!"):
		return blockDoc(text[3:]), true, true
	}

	return "", false, false
}

func blockDoc(body string) string {
	body = strings.TrimSuffix(body, "*/")

	lines := strings.Split(body, "\n")
	for i, l := range lines {
		l = strings.TrimSpace(l)
		l = strings.TrimPrefix(l, "*")
		lines[i] = strings.TrimPrefix(l, " ")
	}

	return strings.TrimSpace(strings.Join(lines, "\n"))
}

// parseAttribute splits `#[path = value]` or `#[path(args)]` into the path
// text and, for the `=` form, the unquoted value.
func parseAttribute(text string) (string, string, bool) {
	text = strings.TrimSpace(text)
	text = strings.TrimPrefix(text, "#")
	text = strings.TrimPrefix(text, "!")
	text = strings.TrimSpace(text)
	text = strings.TrimPrefix(text, "[")
	text = strings.TrimSuffix(text, "]")
	text = strings.TrimSpace(text)

	end := strings.IndexFunc(text, func(r rune) bool {
		return !(r == '_' || r == ':' || r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9')
	})
	if end < 0 {
		return text, "", false
	}

	path := text[:end]

	rest := strings.TrimSpace(text[end:])
	if !strings.HasPrefix(rest, "=") {
		return path, "", false
	}

	return path, unquoteRust(strings.TrimSpace(rest[1:])), true
}

func unquoteRust(lit string) string {
	if strings.HasPrefix(lit, "r") {
		raw := strings.TrimPrefix(lit, "r")
		hashes := len(raw) - len(strings.TrimLeft(raw, "#"))
		raw = raw[hashes:]
		raw = strings.TrimSuffix(raw, strings.Repeat("#", hashes))

		return strings.TrimSuffix(strings.TrimPrefix(raw, `"`), `"`)
	}

	if s, err := strconv.Unquote(lit); err == nil {
		return s
	}

	return strings.TrimSuffix(strings.TrimPrefix(lit, `"`), `"`)
}

// ModuleForFile resolves the module defined by file.
func (c *CrateAnalysis) ModuleForFile(file m.Path) (m.ModuleID, bool) {
	id, ok := c.byFile[file]
	return id, ok
}

// DeclarationsOf lists the non-impl items of module in source order.
func (c *CrateAnalysis) DeclarationsOf(module m.ModuleID) []m.Definition {
	if mod, ok := c.modules[module]; ok {
		return mod.decls
	}

	return nil
}

// ImplsOf lists the impl blocks of module in source order.
func (c *CrateAnalysis) ImplsOf(module m.ModuleID) []m.Definition {
	if mod, ok := c.modules[module]; ok {
		return mod.impls
	}

	return nil
}

// IsInline reports whether module has its body in the declaring file.
func (c *CrateAnalysis) IsInline(module m.ModuleID) bool {
	mod, ok := c.modules[module]
	return ok && mod.inline
}

// NameOf returns the declared name of def.
func (c *CrateAnalysis) NameOf(def m.Definition) (string, bool) {
	d, ok := c.defs[def.Key]
	if !ok || d.name == "" {
		return "", false
	}

	return d.name, true
}

// ModuleName returns the name of module.
func (c *CrateAnalysis) ModuleName(module m.ModuleID) (string, bool) {
	mod, ok := c.modules[module]
	if !ok || mod.name == "" {
		return "", false
	}

	return mod.name, true
}

// ModuleLocation locates module: its declaration when inline, its file otherwise.
func (c *CrateAnalysis) ModuleLocation(module m.ModuleID) m.Location {
	mod, ok := c.modules[module]
	if !ok {
		return m.Location{Crate: c.crate}
	}

	return m.Location{
		File:   mod.file,
		Line:   mod.line,
		Column: mod.col,
		Path:   mod.path,
		Crate:  c.crate,
		Target: mod.target,
	}
}

// AttributesAndDocsOf returns the attribute paths and documentation of def.
// An outline module also carries the inner docs of its file.
func (c *CrateAnalysis) AttributesAndDocsOf(def m.Definition) m.Attrs {
	d, ok := c.defs[def.Key]
	if !ok {
		return m.Attrs{}
	}

	attrs := d.attrs

	if def.Kind == m.DefModule {
		if mod, ok := c.modules[def.Module]; ok && len(mod.innerDocs) > 0 {
			docs := append([]string{}, mod.innerDocs...)
			if attrs.Docs != "" {
				docs = append([]string{attrs.Docs}, docs...)
			}

			attrs.Docs = strings.Join(docs, "\n")
		}
	}

	return attrs
}

// IsCrateRoot reports whether module is the root file of a cargo target.
func (c *CrateAnalysis) IsCrateRoot(module m.ModuleID) bool {
	mod, ok := c.modules[module]
	return ok && mod.root
}

// CanonicalPath is the path of def inside its target, e.g. "m::t".
func (c *CrateAnalysis) CanonicalPath(def m.Definition) string {
	d, ok := c.defs[def.Key]
	if !ok {
		return ""
	}

	mod, ok := c.modules[d.parent]
	if !ok || mod.path == "" {
		return d.name
	}

	return mod.path + "::" + d.name
}

// LocationOf locates def in its file.
func (c *CrateAnalysis) LocationOf(def m.Definition) m.Location {
	d, ok := c.defs[def.Key]
	if !ok {
		return m.Location{Crate: c.crate}
	}

	loc := m.Location{Line: d.line, Column: d.col, Crate: c.crate}

	if mod, ok := c.modules[d.parent]; ok {
		loc.File = mod.file
		loc.Target = mod.target
	}

	return loc
}

// MacroCallOf reports the item-position macro invocation def was expanded from.
func (c *CrateAnalysis) MacroCallOf(def m.Definition) (m.MacroCallRef, bool) {
	d, ok := c.defs[def.Key]
	if !ok || d.macro == nil {
		return m.MacroCallRef{}, false
	}

	return *d.macro, true
}

// ParentOf returns the module declaring def.
func (c *CrateAnalysis) ParentOf(def m.Definition) m.ModuleID {
	if d, ok := c.defs[def.Key]; ok {
		return d.parent
	}

	return ""
}
