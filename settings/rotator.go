package settings

import (
	"fmt"

	"github.com/rs/zerolog/log"
)

// Wipe erases the whole settings area and starts over in the region that was
// not active, so repeated factory resets wear both regions.
// erase every page -> mark alternate region -> load
func (s *Store) Wipe() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	log.Info().Uint32("active", s.activeBase).Msg("Wipe started!!")

	for _, base := range s.regions {
		if err := s.eraseRegion(base); err != nil {
			return fmt.Errorf("wipe: %w", err)
		}
	}

	next := s.alternate(s.activeBase)
	if err := s.writeMarker(next); err != nil {
		return fmt.Errorf("wipe: %w", err)
	}

	if err := s.load(); err != nil {
		return fmt.Errorf("wipe: %w", err)
	}

	log.Info().Uint32("active", s.activeBase).Msg("Wipe complete!!")
	return nil
}
