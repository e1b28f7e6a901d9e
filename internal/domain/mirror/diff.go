package mirror

import (
	"fmt"
	"log/slog"

	m "runnel.dev/pkg/runnel/internal/model"
)

// Diff records into log the edits turning the published tree old into next.
// Nodes are matched by id. A node whose kind or leaf value changed, or that
// moved to another parent, is deleted and appended again; renamed or
// relocated nodes get an Update. When the roots differ the whole of next is
// published as a new root.
func Diff(old, next m.AppendItem, log *Changelog) error {
	if next.IsZero() {
		return fmt.Errorf("%w: empty tree", ErrNoRoot)
	}

	s := NewStore()

	if old.IsZero() || old.ID() != next.ID() || old.Kind() != next.Kind() {
		_, err := publish(s, log, next)
		return err
	}

	if err := s.Load(old); err != nil {
		return fmt.Errorf("load previous tree: %w", err)
	}

	parents := make(map[m.ID]m.ID)
	items := make(map[m.ID]m.AppendItem)
	indexItems(next, parents, items)

	if err := s.prune(log, s.root, parents, items); err != nil {
		return err
	}

	if err := s.merge(log, s.root, next); err != nil {
		return err
	}

	slog.Debug("Derived tree diff", "root", next.ID(), "edits", len(log.appended)+len(log.deleted)+len(log.updated))

	return nil
}

func indexItems(item m.AppendItem, parents map[m.ID]m.ID, items map[m.ID]m.AppendItem) {
	items[item.ID()] = item

	for _, child := range childItems(item) {
		parents[child.ID()] = item.ID()
		indexItems(child, parents, items)
	}
}

// prune deletes, top-down, every node of the loaded tree that does not
// survive into next under the same parent with a compatible value.
func (s *Store) prune(log *Changelog, h Handle, parents map[m.ID]m.ID, items map[m.ID]m.AppendItem) error {
	mu := mutator{store: s, log: log, target: h}

	for _, c := range s.Children(h) {
		n := s.nodes[c]

		item, ok := items[n.id]
		if !ok || parents[n.id] != s.nodes[h].id || !s.compatible(c, item) {
			if err := mu.delete(n.id); err != nil {
				return err
			}

			continue
		}

		if err := s.prune(log, c, parents, items); err != nil {
			return err
		}
	}

	return nil
}

func (s *Store) compatible(h Handle, item m.AppendItem) bool {
	n := s.nodes[h]
	if n.kind != item.Kind() {
		return false
	}

	switch n.kind {
	case m.KindRunnable:
		return n.runnable == *item.Runnable
	case m.KindCrate:
		return n.root == item.Crate.Root
	}

	return true
}

// merge brings the surviving children of h in line with next. Survivors are
// kept while they form a prefix of the new child order; the rest is deleted
// and appended again so content order always follows next.
func (s *Store) merge(log *Changelog, h Handle, next m.AppendItem) error {
	if err := s.updateFields(log, h, next); err != nil {
		return err
	}

	mu := mutator{store: s, log: log, target: h}
	kept := s.Children(h)
	wanted := childItems(next)

	i := 0
	for ; i < len(kept) && i < len(wanted); i++ {
		if s.nodes[kept[i]].id != wanted[i].ID() {
			break
		}

		if err := s.merge(log, kept[i], wanted[i]); err != nil {
			return err
		}
	}

	for _, c := range kept[i:] {
		if err := mu.delete(s.nodes[c].id); err != nil {
			return err
		}
	}

	for _, item := range wanted[i:] {
		if _, err := mu.append(item); err != nil {
			return err
		}
	}

	return nil
}

func (s *Store) updateFields(log *Changelog, h Handle, next m.AppendItem) error {
	n := s.nodes[h]
	mu := mutator{store: s, log: log, target: h}

	switch {
	case next.Crate != nil:
		if n.name != next.Crate.Name {
			name := next.Crate.Name
			return mu.update(m.Changes{Crate: &m.CrateChanges{Name: &name}})
		}
	case next.Module != nil:
		name, loc := fieldChanges(n, next.Module.Name, next.Module.Location)
		if name != nil || loc != nil {
			return mu.update(m.Changes{Module: &m.ModuleChanges{Name: name, Location: loc}})
		}
	case next.MacroCall != nil:
		name, loc := fieldChanges(n, next.MacroCall.Name, next.MacroCall.Location)
		if name != nil || loc != nil {
			return mu.update(m.Changes{MacroCall: &m.MacroCallChanges{Name: name, Location: loc}})
		}
	}

	return nil
}

func fieldChanges(n node, name string, loc m.Location) (*string, *m.Location) {
	var (
		newName *string
		newLoc  *m.Location
	)

	if n.name != name {
		newName = &name
	}

	if n.location != loc {
		newLoc = &loc
	}

	return newName, newLoc
}
