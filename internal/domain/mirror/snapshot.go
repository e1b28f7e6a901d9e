package mirror

import (
	m "runnel.dev/pkg/runnel/internal/model"
)

// Entry is the indexed view of one node of a Snapshot.
type Entry struct {
	Kind     m.NodeKind
	Name     string
	Location m.Location
	Parent   m.ID
	Runnable *m.Runnable
}

// Snapshot is a published, immutable tree with an id index. Readers share
// snapshots freely; a rebuild publishes a new one instead of changing it.
type Snapshot struct {
	version uint64
	root    m.AppendItem
	index   map[m.ID]Entry
	order   []m.ID
}

// Publish copies the tree of s into a new Snapshot.
func Publish(s *Store, version uint64) (*Snapshot, error) {
	root, err := s.Export()
	if err != nil {
		return nil, err
	}

	return NewSnapshot(version, root), nil
}

// NewSnapshot indexes root. The caller must not modify root afterwards.
func NewSnapshot(version uint64, root m.AppendItem) *Snapshot {
	snap := &Snapshot{
		version: version,
		root:    root,
		index:   make(map[m.ID]Entry),
	}

	if !root.IsZero() {
		snap.add("", root)
	}

	return snap
}

func (snap *Snapshot) add(parent m.ID, item m.AppendItem) {
	e := Entry{Kind: item.Kind(), Parent: parent}

	switch {
	case item.Crate != nil:
		e.Name = item.Crate.Name
	case item.Module != nil:
		e.Name, e.Location = item.Module.Name, item.Module.Location
	case item.MacroCall != nil:
		e.Name, e.Location = item.MacroCall.Name, item.MacroCall.Location
	case item.Runnable != nil:
		e.Name, e.Location, e.Runnable = item.Runnable.Name, item.Runnable.Location, item.Runnable
	}

	snap.index[item.ID()] = e
	snap.order = append(snap.order, item.ID())

	for _, child := range childItems(item) {
		snap.add(item.ID(), child)
	}
}

// Version returns the version the snapshot was published at.
func (snap *Snapshot) Version() uint64 { return snap.version }

// Root returns the published tree.
func (snap *Snapshot) Root() m.AppendItem { return snap.root }

// Len returns the number of indexed nodes.
func (snap *Snapshot) Len() int { return len(snap.index) }

// Lookup finds a node by id in O(1).
func (snap *Snapshot) Lookup(id m.ID) (Entry, bool) {
	e, ok := snap.index[id]
	return e, ok
}

// Runnables returns every leaf in tree order.
func (snap *Snapshot) Runnables() []m.Runnable {
	var out []m.Runnable

	for _, id := range snap.order {
		if r := snap.index[id].Runnable; r != nil {
			out = append(out, *r)
		}
	}

	return out
}

// IDs returns every indexed id in tree order.
func (snap *Snapshot) IDs() []m.ID {
	out := make([]m.ID, len(snap.order))
	copy(out, snap.order)

	return out
}
