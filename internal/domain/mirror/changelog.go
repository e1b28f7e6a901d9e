package mirror

import (
	"sort"

	m "runnel.dev/pkg/runnel/internal/model"
)

// Changelog accumulates the structural edits of one reconciliation pass.
// It is owned by the caller of the pass and handed to the mutators
// explicitly; there is no process-wide changelog.
type Changelog struct {
	version  uint64
	seq      uint64
	appended []m.Append
	deleted  []m.Delete
	updated  []m.Update
}

// NewChangelog returns an empty changelog at version 0.
func NewChangelog() *Changelog {
	return &Changelog{}
}

// Version returns the version of the batch currently being accumulated.
func (c *Changelog) Version() uint64 {
	return c.version
}

// IsEmpty reports whether no edit was recorded since the last Consume.
func (c *Changelog) IsEmpty() bool {
	return len(c.appended) == 0 && len(c.deleted) == 0 && len(c.updated) == 0
}

// Consume hands out the current batch and resets the changelog: the three
// edit lists are cleared and the version is incremented.
func (c *Changelog) Consume() m.Patch {
	patch := m.Patch{
		Version:  c.version,
		Appended: c.appended,
		Deleted:  c.deleted,
		Updated:  c.updated,
	}

	c.version++
	c.appended = nil
	c.deleted = nil
	c.updated = nil

	return patch
}

func (c *Changelog) next() uint64 {
	c.seq++
	return c.seq
}

func (c *Changelog) recordAppend(target m.ID, item m.AppendItem) {
	c.appended = append(c.appended, m.Append{Seq: c.next(), TargetID: target, Item: item})
}

func (c *Changelog) recordDelete(target, item m.ID) {
	c.deleted = append(c.deleted, m.Delete{Seq: c.next(), TargetID: target, ItemID: item})
}

func (c *Changelog) recordUpdate(target m.ID, changes m.Changes) {
	c.updated = append(c.updated, m.Update{Seq: c.next(), TargetID: target, Changes: changes})
}

// edit is one entry of a patch restored to its place in the edit sequence.
type edit struct {
	seq    uint64
	append *m.Append
	delete *m.Delete
	update *m.Update
}

// ordered merges the three edit lists of p back into recording order.
func ordered(p m.Patch) []edit {
	edits := make([]edit, 0, p.Len())

	for i := range p.Appended {
		edits = append(edits, edit{seq: p.Appended[i].Seq, append: &p.Appended[i]})
	}

	for i := range p.Deleted {
		edits = append(edits, edit{seq: p.Deleted[i].Seq, delete: &p.Deleted[i]})
	}

	for i := range p.Updated {
		edits = append(edits, edit{seq: p.Updated[i].Seq, update: &p.Updated[i]})
	}

	sort.SliceStable(edits, func(i, j int) bool { return edits[i].seq < edits[j].seq })

	return edits
}
