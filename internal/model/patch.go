package model

// AppendItem is the item carried by an Append edit. Exactly one field is set
// and it holds a snapshot of the item as it was when appended. Session is only
// valid when the item publishes a root.
type AppendItem struct {
	Session   *Session   `json:"session,omitempty" yaml:"session,omitempty"`
	Crate     *Crate     `json:"crate,omitempty" yaml:"crate,omitempty"`
	Module    *Module    `json:"module,omitempty" yaml:"module,omitempty"`
	MacroCall *MacroCall `json:"macroCall,omitempty" yaml:"macroCall,omitempty"`
	Runnable  *Runnable  `json:"runnable,omitempty" yaml:"runnable,omitempty"`
}

// ID returns the identifier of the appended item.
func (a AppendItem) ID() ID {
	switch {
	case a.Session != nil:
		return a.Session.ID
	case a.Crate != nil:
		return a.Crate.ID
	case a.Module != nil:
		return a.Module.ID
	case a.MacroCall != nil:
		return a.MacroCall.ID
	case a.Runnable != nil:
		return a.Runnable.ID
	}

	return ""
}

// Kind returns the node kind of the appended item.
func (a AppendItem) Kind() NodeKind {
	switch {
	case a.Session != nil:
		return KindSession
	case a.Crate != nil:
		return KindCrate
	case a.Module != nil:
		return KindModule
	case a.MacroCall != nil:
		return KindMacroCall
	default:
		return KindRunnable
	}
}

// Runnables returns every runnable at or below the item in tree order.
func (a AppendItem) Runnables() []Runnable {
	var out []Runnable

	collect := func(c Content) bool {
		if c.Runnable != nil {
			out = append(out, *c.Runnable)
		}

		return true
	}

	switch {
	case a.Session != nil:
		return a.Session.Runnables()
	case a.Crate != nil:
		return a.Crate.Runnables()
	case a.Module != nil:
		ModuleContent(*a.Module).Walk(collect)
	case a.MacroCall != nil:
		MacroCallContent(*a.MacroCall).Walk(collect)
	case a.Runnable != nil:
		out = append(out, *a.Runnable)
	}

	return out
}

// IsZero reports whether no item is set.
func (a AppendItem) IsZero() bool {
	return a.Session == nil && a.Crate == nil && a.Module == nil && a.MacroCall == nil && a.Runnable == nil
}

// CrateChanges renames a crate.
type CrateChanges struct {
	Name *string `json:"name,omitempty" yaml:"name,omitempty"`
}

// ModuleChanges renames or relocates a module.
type ModuleChanges struct {
	Name     *string   `json:"name,omitempty" yaml:"name,omitempty"`
	Location *Location `json:"location,omitempty" yaml:"location,omitempty"`
}

// MacroCallChanges renames or relocates a macro call.
type MacroCallChanges struct {
	Name     *string   `json:"name,omitempty" yaml:"name,omitempty"`
	Location *Location `json:"location,omitempty" yaml:"location,omitempty"`
}

// Changes is the field-level change carried by an Update edit. Exactly one
// field is set and it matches the kind of the updated node.
type Changes struct {
	Crate     *CrateChanges     `json:"crate,omitempty" yaml:"crate,omitempty"`
	Module    *ModuleChanges    `json:"module,omitempty" yaml:"module,omitempty"`
	MacroCall *MacroCallChanges `json:"macroCall,omitempty" yaml:"macroCall,omitempty"`
}

// Append adds Item as the last child of the node TargetID. An empty TargetID
// publishes Item as the root of the tree.
type Append struct {
	Seq      uint64     `json:"seq" yaml:"seq"`
	TargetID ID         `json:"targetId" yaml:"targetId"`
	Item     AppendItem `json:"item" yaml:"item"`
}

// Delete removes the child ItemID of the node TargetID.
type Delete struct {
	Seq      uint64 `json:"seq" yaml:"seq"`
	TargetID ID     `json:"targetId" yaml:"targetId"`
	ItemID   ID     `json:"itemId" yaml:"itemId"`
}

// Update applies Changes to the node TargetID.
type Update struct {
	Seq      uint64  `json:"seq" yaml:"seq"`
	TargetID ID      `json:"targetId" yaml:"targetId"`
	Changes  Changes `json:"changes" yaml:"changes"`
}

// Patch is one consumed batch of structural edits.
type Patch struct {
	Version  uint64   `json:"version" yaml:"version"`
	Appended []Append `json:"appended,omitempty" yaml:"appended,omitempty"`
	Deleted  []Delete `json:"deleted,omitempty" yaml:"deleted,omitempty"`
	Updated  []Update `json:"updated,omitempty" yaml:"updated,omitempty"`
}

// IsEmpty reports whether the patch carries no edits.
func (p Patch) IsEmpty() bool {
	return len(p.Appended) == 0 && len(p.Deleted) == 0 && len(p.Updated) == 0
}

// Len returns the number of edits in the patch.
func (p Patch) Len() int {
	return len(p.Appended) + len(p.Deleted) + len(p.Updated)
}
