package settings

import (
	"github.com/pro0o/deslocado/types"
	"github.com/rs/zerolog/log"
)

// load picks the active region and rebuilds its used size.
// region with marker -> active
// no marker anywhere -> erase both, mark the first
// scan records from the marker until one was never begun
func (s *Store) load() error {
	marked := make([]uint32, 0, len(s.regions))
	for _, base := range s.regions {
		ok, err := s.hasMarker(base)
		if err != nil {
			return err
		}
		if ok {
			marked = append(marked, base)
		}
	}

	switch len(marked) {
	case 0:
		log.Info().Msg("No active settings region, formatting!!")
		for _, base := range s.regions {
			if err := s.eraseRegion(base); err != nil {
				return err
			}
		}
		if err := s.writeMarker(s.regions[0]); err != nil {
			return err
		}
		s.activeBase = s.regions[0]
	case 1:
		s.activeBase = marked[0]
	default:
		// A compaction was cut off after the new region was committed but
		// before the old one was erased. Both hold the same live values.
		log.Warn().Uint32("keep", marked[0]).Uint32("erase", marked[1]).Msg("Both settings regions marked in use")
		if err := s.eraseRegion(marked[1]); err != nil {
			return err
		}
		s.activeBase = marked[0]
	}

	s.activeUsed = types.MarkerSize
	err := s.each(s.activeBase, types.MarkerSize, s.capacity, func(off int, h types.Header) (bool, error) {
		s.activeUsed = off + types.RecordSize(off, h, s.pol, s.pageSize)
		return true, nil
	})
	if err != nil {
		return err
	}
	if s.activeUsed > s.capacity {
		s.activeUsed = s.capacity
	}
	s.ready = true

	log.Debug().Uint32("base", s.activeBase).Int("used", s.activeUsed).Msg("Settings region loaded")

	// A torn header leaves programmed bytes past the frontier that the next
	// append could not program over.
	clean, err := s.frontierClean()
	if err != nil {
		return err
	}
	if !clean {
		log.Warn().Uint32("base", s.activeBase).Int("used", s.activeUsed).Msg("Torn record at frontier, compacting")
		if _, err := s.compact(); err != nil {
			return err
		}
	}
	return nil
}

// frontierClean reports whether the room for the next record is still erased.
func (s *Store) frontierClean() (bool, error) {
	n := types.HeaderSize + types.MaxValueSize
	if rem := s.capacity - s.activeUsed; rem < n {
		n = rem
	}
	if n <= 0 {
		return true, nil
	}
	return s.blank(s.activeBase+uint32(s.activeUsed), n)
}
