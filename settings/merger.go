package settings

import (
	"fmt"

	"github.com/pro0o/deslocado/types"
	"github.com/rs/zerolog/log"
)

// shadowed reports whether a live primary record for key appears in the
// region after offset from.
func (s *Store) shadowed(base uint32, from, to int, key uint16) (bool, error) {
	found := false
	err := s.each(base, from, to, func(off int, h types.Header) (bool, error) {
		if h.Key == key && s.pol.Live(h) && s.pol.Has(h, types.FlagPrimary) {
			found = true
			return false, nil
		}
		return true, nil
	})
	return found, err
}

// pageWriter packs compacted records into the staging page and programs a
// page each time it fills up.
type pageWriter struct {
	s     *Store
	base  uint32
	used  int
	page  int
	dirty bool
}

func (w *pageWriter) reset() {
	for i := range w.s.staging {
		w.s.staging[i] = byte(w.s.pol)
	}
	w.dirty = false
}

func (w *pageWriter) flush() error {
	if !w.dirty {
		return nil
	}
	addr := w.base + uint32(w.page)
	if err := w.s.dev.Write(addr, w.s.staging); err != nil {
		return fmt.Errorf("flush compacted page 0x%x: %w", addr, err)
	}
	w.reset()
	return nil
}

func (w *pageWriter) put(rec []byte) error {
	pageSize := w.s.pageSize
	if start := w.used - w.used%pageSize; start != w.page {
		if err := w.flush(); err != nil {
			return err
		}
		w.page = start
	}

	pos := w.used % pageSize
	n := copy(w.s.staging[pos:], rec)
	w.dirty = true
	if n < len(rec) {
		// record spills into the next page
		if err := w.flush(); err != nil {
			return err
		}
		w.page += pageSize
		copy(w.s.staging, rec[n:])
		w.dirty = true
	}
	w.used += len(rec)
	return nil
}

// compact packs the live records of the active region into the other region
// and makes it active. It returns the free bytes left in the new region.
// erase alternate region
// live && not shadowed by a later primary -> staged, compacted
// flush staged pages -> marker -> erase old region
func (s *Store) compact() (int, error) {
	oldBase, oldUsed := s.activeBase, s.activeUsed
	newBase := s.alternate(oldBase)

	log.Info().Uint32("from", oldBase).Uint32("to", newBase).Msg("Compaction started!!")

	if err := s.eraseRegion(newBase); err != nil {
		return 0, err
	}

	w := &pageWriter{s: s, base: newBase, used: types.MarkerSize}
	w.reset()

	kept, dropped := 0, 0
	err := s.each(oldBase, types.MarkerSize, oldUsed, func(off int, h types.Header) (bool, error) {
		if s.pol.Blank(h) {
			return false, nil
		}
		next := off + types.RecordSize(off, h, s.pol, s.pageSize)
		if !s.pol.Live(h) {
			dropped++
			return true, nil
		}

		hidden, err := s.shadowed(oldBase, next, oldUsed, h.Key)
		if err != nil {
			return false, err
		}
		if hidden {
			dropped++
			return true, nil
		}

		payload, err := s.readPayload(oldBase+uint32(off), int(h.Length))
		if err != nil {
			return false, err
		}

		s.pol.Mark(&h, types.FlagCompacted)
		rec := make([]byte, types.HeaderSize+types.AlignLength(0, true, int(h.Length), s.pageSize))
		for i := range rec {
			rec[i] = byte(s.pol)
		}
		copy(rec, h.Encode(s.pol))
		copy(rec[types.HeaderSize:], payload)

		if err := w.put(rec); err != nil {
			return false, err
		}
		kept++
		return true, nil
	})
	if err != nil {
		return 0, fmt.Errorf("compact region 0x%x: %w", oldBase, err)
	}

	if err := w.flush(); err != nil {
		return 0, err
	}

	// The marker commits the new region. Until it is written the old region
	// is the only one Init will pick.
	if err := s.writeMarker(newBase); err != nil {
		return 0, err
	}
	if err := s.eraseRegion(oldBase); err != nil {
		return 0, err
	}

	s.activeBase = newBase
	s.activeUsed = w.used

	free := s.capacity - s.activeUsed
	log.Info().Int("kept", kept).Int("dropped", dropped).Int("free", free).Msg("Compaction complete!!")
	return free, nil
}
