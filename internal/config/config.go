// Package config implements A3: the on-disk configuration file (TOML,
// via github.com/BurntSushi/toml, the teacher's own config format) and
// its precedence resolution against command-line flags.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// File is the parsed shape of a par2.toml configuration file. Every
// field is optional: anything left unset falls through to the CLI's
// own flag defaults (spec's ambient "defaults -> config file -> flags"
// precedence chain).
type File struct {
	BlockSize       uint64 `toml:"block_size"`
	RecoveryBlocks  int    `toml:"recovery_blocks"`
	VolumeScheme    string `toml:"volume_scheme"` // "uniform" | "variable" | "limited"
	VolumeLimitSize uint64 `toml:"volume_limit_size"`
	Workers         int    `toml:"workers"`
	Quiet           bool   `toml:"quiet"`
	Verbose         bool   `toml:"verbose"`
	NoColor         bool   `toml:"no_color"`
}

// DefaultPaths returns where Load looks for a config file when the
// caller didn't name one explicitly: "./par2.toml", then
// "$HOME/.config/par2/par2.toml".
func DefaultPaths() []string {
	var out []string
	out = append(out, "par2.toml")
	if home, err := os.UserHomeDir(); err == nil {
		out = append(out, filepath.Join(home, ".config", "par2", "par2.toml"))
	}
	return out
}

// Load reads and parses a config file. If path is empty, it tries
// DefaultPaths() in order and returns a zero File (not an error) if
// none exist — an absent config file is normal, not a format error.
func Load(path string) (File, error) {
	if path == "" {
		for _, p := range DefaultPaths() {
			if _, err := os.Stat(p); err == nil {
				path = p
				break
			}
		}
		if path == "" {
			return File{}, nil
		}
	}
	var f File
	if _, err := toml.DecodeFile(path, &f); err != nil {
		return File{}, fmt.Errorf("config: %s: %w", path, err)
	}
	return f, nil
}

// Merge overlays flagSet values onto the config file's, with flagSet
// winning whenever its field differs from the type's zero value — the
// CLI layer only needs to pass through whatever flags the user
// actually typed, using the same zero-value-means-unset convention as
// the teacher's own minio/cli flag defaults.
func Merge(base File, override File) File {
	out := base
	if override.BlockSize != 0 {
		out.BlockSize = override.BlockSize
	}
	if override.RecoveryBlocks != 0 {
		out.RecoveryBlocks = override.RecoveryBlocks
	}
	if override.VolumeScheme != "" {
		out.VolumeScheme = override.VolumeScheme
	}
	if override.VolumeLimitSize != 0 {
		out.VolumeLimitSize = override.VolumeLimitSize
	}
	if override.Workers != 0 {
		out.Workers = override.Workers
	}
	out.Quiet = out.Quiet || override.Quiet
	out.Verbose = out.Verbose || override.Verbose
	out.NoColor = out.NoColor || override.NoColor
	return out
}
