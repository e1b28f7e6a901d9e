package domain

import (
	"strconv"

	m "runnel.dev/pkg/runnel/internal/model"
)

// idAllocator derives node ids from semantic keys. A key repeated within one
// rebuild, such as two macro expansions of the same test, gets an ordinal.
type idAllocator struct {
	seen map[string]int
}

func newIDAllocator() *idAllocator {
	return &idAllocator{seen: make(map[string]int)}
}

func (a *idAllocator) next(key string) m.ID {
	n := a.seen[key]
	a.seen[key] = n + 1

	if n > 0 {
		key += "#" + strconv.Itoa(n)
	}

	return m.NewID(key)
}

// scopeKey names the crate target owning loc.
func scopeKey(loc m.Location) string {
	return loc.Crate + "/" + string(loc.Target.Kind) + ":" + loc.Target.Name
}

// SessionID is the id of the workspace root.
func SessionID() m.ID {
	return m.NewID("session")
}

// CrateID is the id of the crate named name.
func CrateID(name string) m.ID {
	return m.NewID("crate:" + name)
}
