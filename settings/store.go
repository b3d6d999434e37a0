// Package settings stores small key-indexed values directly on NOR flash.
//
// The reserved flash area is split into two equal regions. One is active and
// carries an in-use marker; records are appended to it page by page. When the
// active region fills up, live records are packed into the other region and
// the two swap roles.
//
// A key can hold several values. The record flagged primary is index 0 and
// the values appended after it follow in log order.
package settings

import (
	"fmt"
	"sync"

	"github.com/pro0o/deslocado/config"
	"github.com/pro0o/deslocado/flash"
	"github.com/pro0o/deslocado/types"
)

type Store struct {
	mu sync.Mutex

	dev      flash.Device
	pol      types.Polarity
	pageSize int
	capacity int
	regions  [2]uint32

	activeBase  uint32
	activePages int
	activeUsed  int
	ready       bool

	// staging holds one page of compacted records before it is programmed.
	staging []byte
}

// Stats describes the active region.
type Stats struct {
	Region     int
	ActiveBase uint32
	UsedSize   int
	Capacity   int
}

// New binds a store to dev. Call Init before using it.
func New(dev flash.Device, cfg *config.Config) (*Store, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	cfg.FillDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if dev.PageSize() != cfg.PageSize {
		return nil, fmt.Errorf("%w: device page size %d, config %d",
			config.ErrInvalidConfig, dev.PageSize(), cfg.PageSize)
	}
	if dev.EraseValue() != cfg.EraseValue {
		return nil, fmt.Errorf("%w: device erases to 0x%02x, config 0x%02x",
			config.ErrInvalidConfig, dev.EraseValue(), cfg.EraseValue)
	}
	end := int(cfg.BaseAddress) + cfg.PageSize*cfg.TotalPages
	if end > dev.Size() {
		return nil, fmt.Errorf("%w: settings area ends at 0x%x, device has %d bytes",
			config.ErrInvalidConfig, end, dev.Size())
	}

	regionSize := cfg.RegionSize()
	return &Store{
		dev:         dev,
		pol:         types.Polarity(cfg.EraseValue),
		pageSize:    cfg.PageSize,
		capacity:    regionSize,
		regions:     [2]uint32{cfg.BaseAddress, cfg.BaseAddress + uint32(regionSize)},
		activePages: cfg.TotalPages / 2,
		staging:     make([]byte, cfg.PageSize),
	}, nil
}

// Init locates the active region, creating one on blank flash, and rebuilds
// the used size by scanning its records.
func (s *Store) Init() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.load()
}

// Deinit releases the store. The flash is left untouched.
func (s *Store) Deinit() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.ready = false
}

// Set replaces every value of key with value.
func (s *Store) Set(key uint16, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.ready {
		return ErrNotInitialized
	}
	return s.appendRecord(key, value, true)
}

// Add appends value to the values of key.
func (s *Store) Add(key uint16, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.ready {
		return ErrNotInitialized
	}

	_, _, found, err := s.resolve(key, 0)
	if err != nil {
		return err
	}
	return s.appendRecord(key, value, !found)
}

// Compact forces a compaction pass and returns the free bytes of the new
// active region.
func (s *Store) Compact() (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.ready {
		return 0, ErrNotInitialized
	}
	return s.compact()
}

func (s *Store) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()

	region := 0
	if s.activeBase == s.regions[1] {
		region = 1
	}
	return Stats{
		Region:     region,
		ActiveBase: s.activeBase,
		UsedSize:   s.activeUsed,
		Capacity:   s.capacity,
	}
}

// BeginChange, CommitChange and AbandonChange exist for callers that batch
// changes. Every write is applied immediately, so they do nothing.
func (s *Store) BeginChange() error   { return nil }
func (s *Store) CommitChange() error  { return nil }
func (s *Store) AbandonChange() error { return nil }
