package mirror

import (
	"log/slog"

	m "runnel.dev/pkg/runnel/internal/model"
)

// mutator is the shared write path: every structural write to a Store goes
// through it and is paired with exactly one changelog entry.
type mutator struct {
	store  *Store
	log    *Changelog
	target Handle
}

func (mu mutator) targetID() m.ID {
	return mu.store.nodes[mu.target].id
}

func (mu mutator) append(item m.AppendItem) (Handle, error) {
	h, err := mu.store.attach(mu.target, item)
	if err != nil {
		slog.Error("Failed to append item", "target", mu.target, "item", item.ID(), "error", err)
		return NoHandle, err
	}

	mu.log.recordAppend(mu.targetID(), item)

	return h, nil
}

func (mu mutator) delete(id m.ID) error {
	if err := mu.store.detach(mu.target, id); err != nil {
		slog.Error("Failed to delete item", "target", mu.target, "item", id, "error", err)
		return err
	}

	mu.log.recordDelete(mu.targetID(), id)

	return nil
}

func (mu mutator) update(changes m.Changes) error {
	if err := mu.store.apply(mu.target, changes); err != nil {
		slog.Error("Failed to update item", "target", mu.target, "error", err)
		return err
	}

	mu.log.recordUpdate(mu.targetID(), changes)

	return nil
}

func publish(s *Store, log *Changelog, item m.AppendItem) (Handle, error) {
	h, err := s.setRoot(item)
	if err != nil {
		slog.Error("Failed to publish root", "item", item.ID(), "error", err)
		return NoHandle, err
	}

	log.recordAppend("", item)

	return h, nil
}

// PublishSession makes session the root of s, replacing any previous tree.
func PublishSession(s *Store, log *Changelog, session m.Session) (SessionMutator, error) {
	h, err := publish(s, log, m.AppendItem{Session: &session})
	if err != nil {
		return SessionMutator{}, err
	}

	return SessionMutator{mutator{store: s, log: log, target: h}}, nil
}

// PublishCrate makes krate the root of s, replacing any previous tree.
func PublishCrate(s *Store, log *Changelog, krate m.Crate) (CrateMutator, error) {
	h, err := publish(s, log, m.AppendItem{Crate: &krate})
	if err != nil {
		return CrateMutator{}, err
	}

	return CrateMutator{mutator{store: s, log: log, target: h}}, nil
}

// PublishModule makes mod the root of s, replacing any previous tree.
func PublishModule(s *Store, log *Changelog, mod m.Module) (ModuleMutator, error) {
	h, err := publish(s, log, m.AppendItem{Module: &mod})
	if err != nil {
		return ModuleMutator{}, err
	}

	return ModuleMutator{contentMutator{mutator{store: s, log: log, target: h}}}, nil
}

// SessionMutator writes into a session node. A session holds crates.
type SessionMutator struct {
	mutator
}

// Session returns the mutator of the session node at h.
func Session(s *Store, log *Changelog, h SessionHandle) SessionMutator {
	return SessionMutator{mutator{store: s, log: log, target: Handle(h)}}
}

// Handle returns the typed handle of the target.
func (sm SessionMutator) Handle() SessionHandle { return SessionHandle(sm.target) }

// AppendCrate appends krate, with its modules, as the last crate of the session.
func (sm SessionMutator) AppendCrate(krate m.Crate) (CrateHandle, error) {
	h, err := sm.append(m.AppendItem{Crate: &krate})
	return CrateHandle(h), err
}

// Delete removes the crate id from the session.
func (sm SessionMutator) Delete(id m.ID) error { return sm.delete(id) }

// CrateMutator writes into a crate node. A crate holds file modules.
type CrateMutator struct {
	mutator
}

// Crate returns the mutator of the crate node at h.
func Crate(s *Store, log *Changelog, h CrateHandle) CrateMutator {
	return CrateMutator{mutator{store: s, log: log, target: Handle(h)}}
}

// Handle returns the typed handle of the target.
func (cm CrateMutator) Handle() CrateHandle { return CrateHandle(cm.target) }

// AppendModule appends mod, with its content, as the last module of the crate.
func (cm CrateMutator) AppendModule(mod m.Module) (ModuleHandle, error) {
	h, err := cm.append(m.AppendItem{Module: &mod})
	return ModuleHandle(h), err
}

// Delete removes the module id from the crate.
func (cm CrateMutator) Delete(id m.ID) error { return cm.delete(id) }

// Update applies crate-level changes.
func (cm CrateMutator) Update(changes m.CrateChanges) error {
	return cm.update(m.Changes{Crate: &changes})
}

// contentMutator is shared by the two node kinds holding Content.
type contentMutator struct {
	mutator
}

// AppendModule appends mod as the last content item.
func (cm contentMutator) AppendModule(mod m.Module) (ModuleHandle, error) {
	h, err := cm.append(m.AppendItem{Module: &mod})
	return ModuleHandle(h), err
}

// AppendMacroCall appends call as the last content item.
func (cm contentMutator) AppendMacroCall(call m.MacroCall) (MacroCallHandle, error) {
	h, err := cm.append(m.AppendItem{MacroCall: &call})
	return MacroCallHandle(h), err
}

// AppendRunnable appends r as the last content item.
func (cm contentMutator) AppendRunnable(r m.Runnable) error {
	_, err := cm.append(m.AppendItem{Runnable: &r})
	return err
}

// AppendRunnables appends rs in order, stopping at the first failure.
func (cm contentMutator) AppendRunnables(rs ...m.Runnable) error {
	for _, r := range rs {
		if err := cm.AppendRunnable(r); err != nil {
			return err
		}
	}

	return nil
}

// Delete removes the content item id.
func (cm contentMutator) Delete(id m.ID) error { return cm.delete(id) }

// ModuleMutator writes into a module node.
type ModuleMutator struct {
	contentMutator
}

// Module returns the mutator of the module node at h.
func Module(s *Store, log *Changelog, h ModuleHandle) ModuleMutator {
	return ModuleMutator{contentMutator{mutator{store: s, log: log, target: Handle(h)}}}
}

// Handle returns the typed handle of the target.
func (mm ModuleMutator) Handle() ModuleHandle { return ModuleHandle(mm.target) }

// Update renames or relocates the module.
func (mm ModuleMutator) Update(changes m.ModuleChanges) error {
	return mm.update(m.Changes{Module: &changes})
}

// MacroCallMutator writes into a macro call node.
type MacroCallMutator struct {
	contentMutator
}

// MacroCall returns the mutator of the macro call node at h.
func MacroCall(s *Store, log *Changelog, h MacroCallHandle) MacroCallMutator {
	return MacroCallMutator{contentMutator{mutator{store: s, log: log, target: Handle(h)}}}
}

// Handle returns the typed handle of the target.
func (mm MacroCallMutator) Handle() MacroCallHandle { return MacroCallHandle(mm.target) }

// Update renames or relocates the macro call.
func (mm MacroCallMutator) Update(changes m.MacroCallChanges) error {
	return mm.update(m.Changes{MacroCall: &changes})
}
