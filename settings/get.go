package settings

import (
	"fmt"
	"sort"

	"github.com/pro0o/deslocado/types"
)

// resolve finds the record holding value index of key. The whole region is
// scanned: a primary record resets the index, and a later match at the same
// index wins over an earlier one.
func (s *Store) resolve(key uint16, index int) (uint32, types.Header, bool, error) {
	var (
		addr  uint32
		match types.Header
		found bool
		cur   int
	)

	err := s.each(s.activeBase, types.MarkerSize, s.activeUsed, func(off int, h types.Header) (bool, error) {
		if h.Key != key {
			return true, nil
		}
		if s.pol.Has(h, types.FlagPrimary) {
			cur = 0
		}
		if s.pol.Live(h) {
			if cur == index {
				addr, match, found = s.activeBase+uint32(off), h, true
			}
			cur++
		}
		return true, nil
	})
	return addr, match, found, err
}

// Get returns a copy of value index of key.
func (s *Store) Get(key uint16, index int) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.ready {
		return nil, ErrNotInitialized
	}
	if index < 0 {
		return nil, fmt.Errorf("%w: index %d", ErrInvalidArgument, index)
	}

	addr, h, found, err := s.resolve(key, index)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, ErrNotFound
	}
	return s.readPayload(addr, int(h.Length))
}

// Read copies value index of key into buf, truncating it when buf is
// shorter, and returns the full length of the stored value. A nil buf only
// asks for the length.
func (s *Store) Read(key uint16, index int, buf []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.ready {
		return 0, ErrNotInitialized
	}
	if index < 0 {
		return 0, fmt.Errorf("%w: index %d", ErrInvalidArgument, index)
	}

	addr, h, found, err := s.resolve(key, index)
	if err != nil {
		return 0, err
	}
	if !found {
		return 0, ErrNotFound
	}

	n := min(len(buf), int(h.Length))
	if n > 0 {
		if err := s.dev.Read(addr+types.HeaderSize, buf[:n]); err != nil {
			return 0, fmt.Errorf("read payload at 0x%x: %w", addr, err)
		}
	}
	return int(h.Length), nil
}

// Entry is one resolved value of a key.
type Entry struct {
	Key   uint16
	Index int
	Value []byte
}

// Walk calls fn for every live value, ordered by key then index.
func (s *Store) Walk(fn func(e Entry) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.ready {
		return ErrNotInitialized
	}

	type slot struct {
		key   uint16
		index int
	}
	where := make(map[slot]uint32)
	lengths := make(map[slot]int)
	counters := make(map[uint16]int)

	err := s.each(s.activeBase, types.MarkerSize, s.activeUsed, func(off int, h types.Header) (bool, error) {
		if s.pol.Has(h, types.FlagPrimary) {
			counters[h.Key] = 0
		}
		if s.pol.Live(h) {
			sl := slot{key: h.Key, index: counters[h.Key]}
			where[sl] = s.activeBase + uint32(off)
			lengths[sl] = int(h.Length)
			counters[h.Key]++
		}
		return true, nil
	})
	if err != nil {
		return err
	}

	slots := make([]slot, 0, len(where))
	for sl := range where {
		slots = append(slots, sl)
	}
	sort.Slice(slots, func(i, j int) bool {
		if slots[i].key != slots[j].key {
			return slots[i].key < slots[j].key
		}
		return slots[i].index < slots[j].index
	})

	for _, sl := range slots {
		val, err := s.readPayload(where[sl], lengths[sl])
		if err != nil {
			return err
		}
		if err := fn(Entry{Key: sl.key, Index: sl.index, Value: val}); err != nil {
			return err
		}
	}
	return nil
}
