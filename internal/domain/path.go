package domain

import (
	"fmt"

	"runnel.dev/pkg/runnel/internal/domain/mirror"
	m "runnel.dev/pkg/runnel/internal/model"
)

// Bijection pairs a semantic module with its mirror node, if one exists yet.
type Bijection struct {
	Origin m.ModuleID
	Mirror mirror.ModuleHandle
}

// Mirrored reports whether the mirror side is set.
func (b Bijection) Mirrored() bool {
	return b.Mirror != mirror.NoModule
}

// Path correlates the semantic path from the file root to the module being
// walked with the part of it already present in the mirror. Once an entry is
// unmirrored, every later entry is too.
type Path struct {
	entries []Bijection
}

// NewPath starts a path at the file root module.
func NewPath(root m.ModuleID) *Path {
	return &Path{entries: []Bijection{{Origin: root, Mirror: mirror.NoModule}}}
}

// Len returns the number of entries.
func (p *Path) Len() int { return len(p.entries) }

// Entries returns a copy of the entries, root first.
func (p *Path) Entries() []Bijection {
	out := make([]Bijection, len(p.entries))
	copy(out, p.entries)

	return out
}

// Tail returns the deepest entry.
func (p *Path) Tail() Bijection {
	return p.entries[len(p.entries)-1]
}

// Push descends into origin. The new entry is unmirrored.
func (p *Path) Push(origin m.ModuleID) {
	p.entries = append(p.entries, Bijection{Origin: origin, Mirror: mirror.NoModule})
}

// ShrinkTo drops trailing entries until the tail is origin. It returns false,
// leaving the path untouched, when origin is not on the path.
func (p *Path) ShrinkTo(origin m.ModuleID) bool {
	for i := len(p.entries) - 1; i >= 0; i-- {
		if p.entries[i].Origin == origin {
			p.entries = p.entries[:i+1]
			return true
		}
	}

	return false
}

func (p *Path) bind(i int, h mirror.ModuleHandle) {
	p.entries[i].Mirror = h
}

// LocateDiff returns the index of the first unmirrored entry, or false when
// the whole path is mirrored.
func LocateDiff(p *Path) (int, bool) {
	for i, e := range p.entries {
		if !e.Mirrored() {
			return i, true
		}
	}

	return 0, false
}

// ModuleAppender is a mirror node that takes child modules.
type ModuleAppender interface {
	AppendModule(mod m.Module) (mirror.ModuleHandle, error)
}

// ContainerFunc picks the node a synthesized module is appended to, given
// the mirror module of its path predecessor and its own origin.
type ContainerFunc func(parent mirror.ModuleHandle, origin m.ModuleID) (ModuleAppender, error)

// SynthesizeBranch creates the modules of the unmirrored suffix of p starting
// at diff. Index 0 publishes the file root. Each later module is appended
// under its predecessor, or under the node container picks for it when
// container is not nil, and every created node is bound back into p.
func SynthesizeBranch(s *mirror.Store, log *mirror.Changelog, p *Path, diff int, newModule func(m.ModuleID) m.Module, container ContainerFunc) error {
	if diff < 0 || diff >= len(p.entries) {
		return fmt.Errorf("diff index %d out of range [0, %d)", diff, len(p.entries))
	}

	for i := diff; i < len(p.entries); i++ {
		mod := newModule(p.entries[i].Origin)

		if i == 0 {
			root, err := mirror.PublishModule(s, log, mod)
			if err != nil {
				return fmt.Errorf("publish file root: %w", err)
			}

			p.bind(0, root.Handle())

			continue
		}

		var parent ModuleAppender = mirror.Module(s, log, p.entries[i-1].Mirror)

		if container != nil {
			c, err := container(p.entries[i-1].Mirror, p.entries[i].Origin)
			if err != nil {
				return err
			}

			parent = c
		}

		h, err := parent.AppendModule(mod)
		if err != nil {
			return fmt.Errorf("append module %s: %w", mod.Name, err)
		}

		p.bind(i, h)
	}

	return nil
}
