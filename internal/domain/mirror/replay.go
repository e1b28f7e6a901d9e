package mirror

import (
	"fmt"

	m "runnel.dev/pkg/runnel/internal/model"
)

// Replay applies patch to a copy of base and returns the resulting tree.
// base may be zero when the patch publishes its own root. Edits are applied
// in the order they were recorded.
func Replay(base m.AppendItem, patch m.Patch) (m.AppendItem, error) {
	s := NewStore()

	if !base.IsZero() {
		if err := s.Load(base); err != nil {
			return m.AppendItem{}, fmt.Errorf("load base: %w", err)
		}
	}

	for _, e := range ordered(patch) {
		if err := s.replay(e); err != nil {
			return m.AppendItem{}, fmt.Errorf("replay edit %d: %w", e.seq, err)
		}
	}

	return s.Export()
}

func (s *Store) replay(e edit) error {
	switch {
	case e.append != nil:
		if e.append.TargetID == "" {
			_, err := s.setRoot(e.append.Item)
			return err
		}

		h, err := s.target(e.append.TargetID)
		if err != nil {
			return err
		}

		_, err = s.attach(h, e.append.Item)

		return err
	case e.delete != nil:
		h, err := s.target(e.delete.TargetID)
		if err != nil {
			return err
		}

		return s.detach(h, e.delete.ItemID)
	default:
		h, err := s.target(e.update.TargetID)
		if err != nil {
			return err
		}

		return s.apply(h, e.update.Changes)
	}
}

func (s *Store) target(id m.ID) (Handle, error) {
	h, ok := s.index[id]
	if !ok {
		return NoHandle, fmt.Errorf("%w: %s", ErrUnknownTarget, id)
	}

	return h, nil
}
