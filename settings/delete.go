package settings

import (
	"fmt"

	"github.com/pro0o/deslocado/types"
	"github.com/rs/zerolog/log"
)

// Delete removes value index of key, or every value when index is -1.
// Deleting index 0 promotes the value at index 1 to primary.
func (s *Store) Delete(key uint16, index int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.ready {
		return ErrNotInitialized
	}
	if index < -1 {
		return fmt.Errorf("%w: index %d", ErrInvalidArgument, index)
	}

	found := false
	cur := 0
	err := s.each(s.activeBase, types.MarkerSize, s.activeUsed, func(off int, h types.Header) (bool, error) {
		if h.Key != key {
			return true, nil
		}
		if s.pol.Has(h, types.FlagPrimary) {
			cur = 0
		}
		if !s.pol.Live(h) {
			return true, nil
		}

		addr := s.activeBase + uint32(off)
		if index == -1 || index == cur {
			s.pol.Mark(&h, types.FlagDeleted)
			if err := s.dev.Write(addr+types.DeleteMarkerOffset, h.DeleteGranule(s.pol)); err != nil {
				return false, fmt.Errorf("delete key %d at 0x%x: %w", key, addr, err)
			}
			found = true
		}
		if index == 0 && cur == 1 {
			s.pol.Mark(&h, types.FlagPrimary)
			if err := s.dev.Write(addr, h.FlagsGranule(s.pol)); err != nil {
				return false, fmt.Errorf("promote key %d at 0x%x: %w", key, addr, err)
			}
			log.Debug().Uint16("key", key).Uint32("addr", addr).Msg("Promoted value to index 0")
		}
		cur++
		return true, nil
	})
	if err != nil {
		return err
	}
	if !found {
		return ErrNotFound
	}
	return nil
}
