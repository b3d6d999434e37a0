package settings

import (
	"fmt"

	"github.com/pro0o/deslocado/types"
	"github.com/rs/zerolog/log"
)

// appendRecord writes a new record at the frontier of the active region,
// compacting first when it would not fit.
// header (begun) + payload -> one write
// flags granule (complete) -> second write
func (s *Store) appendRecord(key uint16, value []byte, primary bool) error {
	if len(value) > types.MaxValueSize {
		return fmt.Errorf("%w: value of %d bytes exceeds %d", ErrInvalidArgument, len(value), types.MaxValueSize)
	}

	size := types.HeaderSize + types.AlignLength(s.activeUsed, false, len(value), s.pageSize)
	if s.activeUsed+size > s.capacity {
		free, err := s.compact()
		if err != nil {
			return fmt.Errorf("compact before append: %w", err)
		}
		size = types.HeaderSize + types.AlignLength(s.activeUsed, false, len(value), s.pageSize)
		if free < size {
			log.Warn().Uint16("key", key).Int("need", size).Int("free", free).Msg("Settings full after compaction")
			return fmt.Errorf("%w: key %d needs %d bytes, %d free", ErrNoSpace, key, size, free)
		}
	}

	h := s.pol.NewHeader(key, len(value))
	s.pol.Mark(&h, types.FlagAddBegin)
	if primary {
		s.pol.Mark(&h, types.FlagPrimary)
	}

	addr := s.activeBase + uint32(s.activeUsed)
	if err := s.dev.Write(addr, append(h.Encode(s.pol), value...)); err != nil {
		return fmt.Errorf("write record for key %d: %w", key, err)
	}

	s.pol.Mark(&h, types.FlagAddComplete)
	if err := s.dev.Write(addr, h.FlagsGranule(s.pol)); err != nil {
		return fmt.Errorf("complete record for key %d: %w", key, err)
	}

	s.activeUsed += size
	return nil
}
