// Package heapconfig provides the managed heap's configuration knobs
// (spec.md §6's INITIAL_SIZE and interactive) plus file loading and
// optional hot-reload, in the style of the teacher's internal/cli config
// loading but specialized to this module's needs.
//
// The heap itself persists nothing (spec.md §6: "Persisted state. None.").
// A config file is the one piece of on-disk state in this whole system,
// which is why it is the one place a format version is worth checking:
// a config written by an incompatible console version should fail loudly
// at load time rather than silently misconfigure the heap.
package heapconfig

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/Masterminds/semver/v3"
)

// FormatVersion is the config file schema version this build understands.
const FormatVersion = "1.0.0"

// compatRange is the version whose major number a config's format_version
// must share for this build to load it.
var compatRange = semver.MustParse("1.0.0")

// Config holds the tunables spec.md §6 lists under "Configuration".
type Config struct {
	FormatVersion       string `json:"format_version"`
	InitialRefTableSize int    `json:"initial_ref_table_size"`
	Interactive         bool   `json:"interactive"`
	ArenaSize           int    `json:"arena_size"`
}

// Default returns the configuration the heap uses when no file is given.
func Default() *Config {
	return &Config{
		FormatVersion:       FormatVersion,
		InitialRefTableSize: 64,
		Interactive:         false,
		ArenaSize:           4 << 20,
	}
}

// Load reads a JSON config file, defaulting missing fields, and rejects a
// file whose format_version is not compatible with this build.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}

		return nil, fmt.Errorf("heapconfig: read %s: %w", path, err)
	}

	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("heapconfig: parse %s: %w", path, err)
	}

	if cfg.FormatVersion == "" {
		cfg.FormatVersion = FormatVersion
	}

	fileVersion, err := semver.NewVersion(cfg.FormatVersion)
	if err != nil {
		return nil, fmt.Errorf("heapconfig: invalid format_version %q in %s: %w", cfg.FormatVersion, path, err)
	}

	if fileVersion.Major() != compatRange.Major() {
		return nil, fmt.Errorf("heapconfig: %s has format_version %s, incompatible with this build's %s",
			path, cfg.FormatVersion, FormatVersion)
	}

	return cfg, nil
}

// Save writes cfg to path as indented JSON, stamping the current
// FormatVersion.
func (c *Config) Save(path string) error {
	c.FormatVersion = FormatVersion

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("heapconfig: marshal: %w", err)
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("heapconfig: write %s: %w", path, err)
	}

	return nil
}
