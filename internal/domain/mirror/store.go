// Package mirror holds the materialized runnables tree while it is being
// rebuilt, the typed mutators that are its only writers, and the changelog
// those mutators record into.
//
// Nodes live in an arena and are addressed by handles, so a traversal can keep
// references into a half-built tree without aliasing pointers. A finished tree
// is published as an immutable Snapshot; the Store itself is never shared with
// readers.
package mirror

import (
	"errors"
	"fmt"

	m "runnel.dev/pkg/runnel/internal/model"
)

var (
	// ErrChildNotFound is returned when deleting an id that is not a child of the target.
	ErrChildNotFound = errors.New("child not found")
	// ErrDuplicateID is returned when an appended item reuses an id already in the store.
	ErrDuplicateID = errors.New("duplicate id")
	// ErrKindMismatch is returned when replaying an edit whose item or changes
	// do not fit the target node kind.
	ErrKindMismatch = errors.New("node kind mismatch")
	// ErrNoRoot is returned when the store has no published root.
	ErrNoRoot = errors.New("no root published")
	// ErrUnknownTarget is returned when an edit references an id that is not in the store.
	ErrUnknownTarget = errors.New("unknown target")
)

// Handle addresses a node in a Store.
type Handle int

// NoHandle is the zero reference: no node.
const NoHandle Handle = -1

// Typed handles. Mutators are obtained from typed handles only, so the
// accepted append variants follow from the node kind at compile time.
type (
	SessionHandle   Handle
	CrateHandle     Handle
	ModuleHandle    Handle
	MacroCallHandle Handle
)

// NoModule is the unset module handle.
const NoModule ModuleHandle = ModuleHandle(NoHandle)

type node struct {
	kind     m.NodeKind
	id       m.ID
	name     string
	root     m.Path
	location m.Location
	runnable m.Runnable
	parent   Handle
	children []Handle
	dead     bool
}

// Store is the arena holding one tree under construction.
type Store struct {
	nodes []node
	index map[m.ID]Handle
	root  Handle
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{
		index: make(map[m.ID]Handle),
		root:  NoHandle,
	}
}

// Root returns the handle of the published root, if any.
func (s *Store) Root() (Handle, bool) {
	return s.root, s.root != NoHandle
}

// Lookup finds a live node by id in O(1).
func (s *Store) Lookup(id m.ID) (Handle, bool) {
	h, ok := s.index[id]
	return h, ok
}

// Kind returns the kind of the node at h.
func (s *Store) Kind(h Handle) m.NodeKind {
	return s.nodes[h].kind
}

// ID returns the id of the node at h.
func (s *Store) ID(h Handle) m.ID {
	return s.nodes[h].id
}

// Len returns the number of live nodes.
func (s *Store) Len() int {
	return len(s.index)
}

// Children returns the live children of h in order.
func (s *Store) Children(h Handle) []Handle {
	out := make([]Handle, len(s.nodes[h].children))
	copy(out, s.nodes[h].children)

	return out
}

// accepts is the single place encoding which child kinds a node kind holds.
func accepts(parent, child m.NodeKind) bool {
	switch parent {
	case m.KindSession:
		return child == m.KindCrate
	case m.KindCrate:
		return child == m.KindModule
	case m.KindModule, m.KindMacroCall:
		return child == m.KindModule || child == m.KindMacroCall || child == m.KindRunnable
	}

	return false
}

// setRoot replaces the whole tree with item.
func (s *Store) setRoot(item m.AppendItem) (Handle, error) {
	if item.IsZero() {
		return NoHandle, fmt.Errorf("%w: empty root item", ErrKindMismatch)
	}

	if item.Kind() == m.KindRunnable {
		return NoHandle, fmt.Errorf("%w: a runnable cannot be a root", ErrKindMismatch)
	}

	if err := NewStore().checkIDs(item); err != nil {
		return NoHandle, err
	}

	s.nodes = s.nodes[:0]
	s.index = make(map[m.ID]Handle)
	s.root = NoHandle

	h, err := s.insert(NoHandle, item)
	if err != nil {
		return NoHandle, err
	}

	s.root = h

	return h, nil
}

// attach appends item, with its whole subtree, as the last child of parent.
func (s *Store) live(h Handle) bool {
	return h >= 0 && int(h) < len(s.nodes) && !s.nodes[h].dead
}

func (s *Store) attach(parent Handle, item m.AppendItem) (Handle, error) {
	if !s.live(parent) {
		return NoHandle, ErrUnknownTarget
	}

	if !accepts(s.nodes[parent].kind, item.Kind()) {
		return NoHandle, fmt.Errorf("%w: %s cannot hold %s", ErrKindMismatch, s.nodes[parent].kind, item.Kind())
	}

	if err := s.checkIDs(item); err != nil {
		return NoHandle, err
	}

	return s.insert(parent, item)
}

// checkIDs rejects item before any write if one of its ids is taken, so a
// failed append leaves the store untouched.
func (s *Store) checkIDs(item m.AppendItem) error {
	seen := make(map[m.ID]struct{})

	var walk func(m.AppendItem) error

	walk = func(it m.AppendItem) error {
		id := it.ID()
		if _, ok := s.index[id]; ok {
			return fmt.Errorf("%w: %s", ErrDuplicateID, id)
		}

		if _, ok := seen[id]; ok {
			return fmt.Errorf("%w: %s", ErrDuplicateID, id)
		}

		seen[id] = struct{}{}

		for _, child := range childItems(it) {
			if err := walk(child); err != nil {
				return err
			}
		}

		return nil
	}

	return walk(item)
}

func childItems(item m.AppendItem) []m.AppendItem {
	var children []m.AppendItem

	switch {
	case item.Session != nil:
		for i := range item.Session.Crates {
			children = append(children, m.AppendItem{Crate: &item.Session.Crates[i]})
		}
	case item.Crate != nil:
		for i := range item.Crate.Modules {
			children = append(children, m.AppendItem{Module: &item.Crate.Modules[i]})
		}
	case item.Module != nil:
		children = contentItems(item.Module.Content)
	case item.MacroCall != nil:
		children = contentItems(item.MacroCall.Content)
	}

	return children
}

func (s *Store) insert(parent Handle, item m.AppendItem) (Handle, error) {
	id := item.ID()
	if _, exists := s.index[id]; exists {
		return NoHandle, fmt.Errorf("%w: %s", ErrDuplicateID, id)
	}

	n := node{kind: item.Kind(), id: id, parent: parent}

	switch {
	case item.Crate != nil:
		n.name, n.root = item.Crate.Name, item.Crate.Root
	case item.Module != nil:
		n.name, n.location = item.Module.Name, item.Module.Location
	case item.MacroCall != nil:
		n.name, n.location = item.MacroCall.Name, item.MacroCall.Location
	case item.Runnable != nil:
		n.runnable = *item.Runnable
		n.name, n.location = item.Runnable.Name, item.Runnable.Location
	}

	h := Handle(len(s.nodes))
	s.nodes = append(s.nodes, n)
	s.index[id] = h

	if parent != NoHandle {
		s.nodes[parent].children = append(s.nodes[parent].children, h)
	}

	for _, child := range childItems(item) {
		if _, err := s.insert(h, child); err != nil {
			return NoHandle, err
		}
	}

	return h, nil
}

func contentItems(content []m.Content) []m.AppendItem {
	out := make([]m.AppendItem, 0, len(content))

	for _, c := range content {
		out = append(out, m.AppendItem{Module: c.Module, MacroCall: c.MacroCall, Runnable: c.Runnable})
	}

	return out
}

// detach removes the child id of parent together with its subtree.
func (s *Store) detach(parent Handle, id m.ID) error {
	if !s.live(parent) {
		return ErrUnknownTarget
	}

	children := s.nodes[parent].children
	for i, h := range children {
		if s.nodes[h].id != id {
			continue
		}

		s.nodes[parent].children = append(children[:i:i], children[i+1:]...)
		s.kill(h)

		return nil
	}

	return fmt.Errorf("%w: %s in %s", ErrChildNotFound, id, s.nodes[parent].id)
}

func (s *Store) kill(h Handle) {
	stack := []Handle{h}
	for len(stack) > 0 {
		top := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		s.nodes[top].dead = true
		delete(s.index, s.nodes[top].id)
		stack = append(stack, s.nodes[top].children...)
	}
}

// apply writes field-level changes into the node at h.
func (s *Store) apply(h Handle, changes m.Changes) error {
	if !s.live(h) {
		return ErrUnknownTarget
	}

	n := &s.nodes[h]

	switch {
	case changes.Crate != nil && n.kind == m.KindCrate:
		if changes.Crate.Name != nil {
			n.name = *changes.Crate.Name
		}
	case changes.Module != nil && n.kind == m.KindModule:
		if changes.Module.Name != nil {
			n.name = *changes.Module.Name
		}

		if changes.Module.Location != nil {
			n.location = *changes.Module.Location
		}
	case changes.MacroCall != nil && n.kind == m.KindMacroCall:
		if changes.MacroCall.Name != nil {
			n.name = *changes.MacroCall.Name
		}

		if changes.MacroCall.Location != nil {
			n.location = *changes.MacroCall.Location
		}
	default:
		return fmt.Errorf("%w: changes do not fit %s %s", ErrKindMismatch, n.kind, n.id)
	}

	return nil
}

// Load replaces the store content with a copy of root.
func (s *Store) Load(root m.AppendItem) error {
	_, err := s.setRoot(root)
	return err
}

// Export copies the tree out of the arena.
func (s *Store) Export() (m.AppendItem, error) {
	if s.root == NoHandle {
		return m.AppendItem{}, ErrNoRoot
	}

	return s.exportItem(s.root), nil
}

func (s *Store) exportItem(h Handle) m.AppendItem {
	n := s.nodes[h]

	switch n.kind {
	case m.KindSession:
		session := m.Session{ID: n.id}
		for _, c := range n.children {
			session.Crates = append(session.Crates, *s.exportItem(c).Crate)
		}

		return m.AppendItem{Session: &session}
	case m.KindCrate:
		krate := m.Crate{ID: n.id, Name: n.name, Root: n.root}
		for _, c := range n.children {
			krate.Modules = append(krate.Modules, *s.exportItem(c).Module)
		}

		return m.AppendItem{Crate: &krate}
	case m.KindModule:
		mod := m.Module{ID: n.id, Name: n.name, Location: n.location, Content: s.exportContent(n.children)}
		return m.AppendItem{Module: &mod}
	case m.KindMacroCall:
		call := m.MacroCall{ID: n.id, Name: n.name, Location: n.location, Content: s.exportContent(n.children)}
		return m.AppendItem{MacroCall: &call}
	default:
		r := n.runnable
		return m.AppendItem{Runnable: &r}
	}
}

func (s *Store) exportContent(children []Handle) []m.Content {
	if len(children) == 0 {
		return nil
	}

	out := make([]m.Content, 0, len(children))

	for _, c := range children {
		item := s.exportItem(c)
		out = append(out, m.Content{Module: item.Module, MacroCall: item.MacroCall, Runnable: item.Runnable})
	}

	return out
}
