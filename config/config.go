// Package config holds the flash geometry and options of a settings store.
package config

import (
	"errors"
	"fmt"
	"os"

	"github.com/pro0o/deslocado/types"
	"gopkg.in/yaml.v3"
)

const (
	defaultPageSize   = 0x800
	defaultTotalPages = 2
	defaultEraseValue = 0xFF
)

var ErrInvalidConfig = errors.New("invalid settings config")

// Config describes the flash area reserved for settings. The area starts at
// BaseAddress and spans TotalPages pages, split into two equal regions.
type Config struct {
	PageSize    int    `yaml:"page_size"`
	TotalPages  int    `yaml:"total_pages"`
	EraseValue  uint8  `yaml:"erase_value"`
	BaseAddress uint32 `yaml:"base_address"`

	// ImagePath is the flash image used by settingsctl.
	ImagePath string `yaml:"image_path"`
	// Strict makes the file device reject writes that would need an erase.
	Strict bool `yaml:"strict"`
}

func DefaultConfig() *Config {
	return &Config{
		PageSize:   defaultPageSize,
		TotalPages: defaultTotalPages,
		EraseValue: defaultEraseValue,
		ImagePath:  "settings.img",
	}
}

// FillDefaults sets zero geometry fields to their defaults. EraseValue is left
// alone since 0x00 is a valid erase value.
func (c *Config) FillDefaults() {
	def := DefaultConfig()
	if c.PageSize == 0 {
		c.PageSize = def.PageSize
	}
	if c.TotalPages == 0 {
		c.TotalPages = def.TotalPages
	}
	if c.ImagePath == "" {
		c.ImagePath = def.ImagePath
	}
}

// Validate checks the geometry can hold the region marker and one maximal
// record in a single page.
func (c *Config) Validate() error {
	minPage := types.MarkerSize + types.HeaderSize + types.MaxValueSize
	if c.PageSize < minPage || c.PageSize%types.WriteGranule != 0 {
		return fmt.Errorf("%w: page size %d must be a multiple of %d and at least %d",
			ErrInvalidConfig, c.PageSize, types.WriteGranule, minPage)
	}
	if c.TotalPages < 2 || c.TotalPages%2 != 0 {
		return fmt.Errorf("%w: total pages %d must be even and at least 2", ErrInvalidConfig, c.TotalPages)
	}
	if !types.Polarity(c.EraseValue).Valid() {
		return fmt.Errorf("%w: erase value 0x%02x must be 0x00 or 0xff", ErrInvalidConfig, c.EraseValue)
	}
	if int(c.BaseAddress)%c.PageSize != 0 {
		return fmt.Errorf("%w: base address 0x%x is not page aligned", ErrInvalidConfig, c.BaseAddress)
	}
	return nil
}

// RegionSize is the byte size of one of the two regions.
func (c *Config) RegionSize() int {
	return c.PageSize * c.TotalPages / 2
}

// Load reads a YAML config. Keys missing from the file keep their defaults.
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(raw, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	cfg.FillDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
