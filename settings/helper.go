package settings

import (
	"fmt"

	"github.com/pro0o/deslocado/types"
	"github.com/rs/zerolog/log"
)

func (s *Store) readHeader(addr uint32) (types.Header, error) {
	buf := make([]byte, types.HeaderSize)
	if err := s.dev.Read(addr, buf); err != nil {
		return types.Header{}, fmt.Errorf("read header at 0x%x: %w", addr, err)
	}
	return types.DecodeHeader(buf), nil
}

func (s *Store) readPayload(addr uint32, length int) ([]byte, error) {
	buf := make([]byte, length)
	if err := s.dev.Read(addr+types.HeaderSize, buf); err != nil {
		return nil, fmt.Errorf("read payload at 0x%x: %w", addr, err)
	}
	return buf, nil
}

// each walks the records of the region at base whose headers start in
// [from, to), oldest first. Offsets are relative to base. It stops at the
// first header that was never begun, or when fn returns false.
func (s *Store) each(base uint32, from, to int, fn func(off int, h types.Header) (bool, error)) error {
	off := from
	for off+types.HeaderSize <= to {
		h, err := s.readHeader(base + uint32(off))
		if err != nil {
			return err
		}
		if !s.pol.Has(h, types.FlagAddBegin) {
			return nil
		}
		if int(h.Length) > types.MaxValueSize {
			log.Warn().Uint32("addr", base+uint32(off)).Uint16("length", h.Length).Msg("Corrupt header, ending scan")
			return nil
		}

		more, err := fn(off, h)
		if err != nil {
			return err
		}
		if !more {
			return nil
		}
		off += types.RecordSize(off, h, s.pol, s.pageSize)
	}
	return nil
}

func (s *Store) eraseRegion(base uint32) error {
	for i := 0; i < s.activePages; i++ {
		addr := base + uint32(i*s.pageSize)
		if err := s.dev.ErasePage(addr); err != nil {
			return fmt.Errorf("erase page 0x%x: %w", addr, err)
		}
	}
	return nil
}

func (s *Store) writeMarker(base uint32) error {
	if err := s.dev.Write(base, types.Marker(s.pol)); err != nil {
		return fmt.Errorf("write in-use marker at 0x%x: %w", base, err)
	}
	return nil
}

func (s *Store) hasMarker(base uint32) (bool, error) {
	buf := make([]byte, types.MarkerSize)
	if err := s.dev.Read(base, buf); err != nil {
		return false, fmt.Errorf("read in-use marker at 0x%x: %w", base, err)
	}
	return types.IsMarker(buf), nil
}

// alternate is the region that is not at base.
func (s *Store) alternate(base uint32) uint32 {
	if base == s.regions[0] {
		return s.regions[1]
	}
	return s.regions[0]
}

// blank reports whether n bytes at addr are all at the erase value.
func (s *Store) blank(addr uint32, n int) (bool, error) {
	buf := make([]byte, n)
	if err := s.dev.Read(addr, buf); err != nil {
		return false, fmt.Errorf("read 0x%x: %w", addr, err)
	}
	for _, b := range buf {
		if b != byte(s.pol) {
			return false, nil
		}
	}
	return true, nil
}
