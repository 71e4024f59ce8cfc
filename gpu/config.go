// SPDX-License-Identifier: Unlicense OR MIT

package gpu

import (
	"bytes"
	"fmt"
	"os"

	"github.com/pelletier/go-toml/v2"
)

// Config holds the tunable policies of a Layer. The zero value is not
// the default configuration; use DefaultConfig.
type Config struct {
	Tiling TilingConfig `toml:"tiling"`
	Debug  DebugConfig  `toml:"debug"`
}

type TilingConfig struct {
	// ForceEmulation renders every target through tiles even when
	// the device supports off-screen targets.
	ForceEmulation bool `toml:"force_emulation"`
	// MaxTileSize bounds the tile size in both dimensions. Zero
	// selects the surface size.
	MaxTileSize int `toml:"max_tile_size"`
}

type DebugConfig struct {
	// Validate checks the consistency of the scope stack after every
	// scope ends.
	Validate bool `toml:"validate"`
}

// Option modifies the configuration passed to New.
type Option func(*Config)

// DefaultConfig returns the configuration used when New is called
// without options.
func DefaultConfig() Config {
	return Config{
		Debug: DebugConfig{Validate: true},
	}
}

// ParseConfig decodes a TOML configuration on top of DefaultConfig.
// Unknown keys are rejected.
func ParseConfig(data []byte) (Config, error) {
	cfg := DefaultConfig()
	dec := toml.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&cfg); err != nil {
		return Config{}, fmt.Errorf("gpu: parse config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// LoadConfig reads and parses the TOML configuration file at path.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("gpu: load config: %w", err)
	}
	return ParseConfig(data)
}

func (c Config) validate() error {
	if c.Tiling.MaxTileSize < 0 {
		return fmt.Errorf("gpu: negative max_tile_size %d", c.Tiling.MaxTileSize)
	}
	return nil
}

// WithConfig replaces the configuration.
func WithConfig(cfg Config) Option {
	return func(c *Config) {
		*c = cfg
	}
}

// WithForceEmulation selects tiled rendering for every target.
func WithForceEmulation() Option {
	return func(c *Config) {
		c.Tiling.ForceEmulation = true
	}
}

// WithMaxTileSize bounds the size of emulation tiles.
func WithMaxTileSize(size int) Option {
	return func(c *Config) {
		c.Tiling.MaxTileSize = size
	}
}
