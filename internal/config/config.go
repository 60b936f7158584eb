// Package config loads musicdbd's configuration from a TOML file located
// via the XDG base directory spec, with koanf supplying layered
// file-then-defaults resolution (spec §4.8, §6.4, §4.7).
package config

import (
	"os"

	"github.com/adrg/xdg"
	"github.com/knadh/koanf/parsers/toml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Config holds every tunable the daemon needs at startup. ListenAddress,
// LibraryDirectory, DatabasePath and CustomFilesDirectory can also be set by
// flags of `musicdbd serve`; the other fields come only from the file.
type Config struct {
	// ListenAddress is the TCP address the server frontend (spec §4.8)
	// accepts "main" and "get" connections on.
	ListenAddress string `koanf:"listen_address"`

	// LibraryDirectory roots relative song/cover paths (spec §3) and the
	// song-file-by-path and find-unused-song-files bulk verbs (spec §4.9).
	LibraryDirectory string `koanf:"library_directory"`

	// DatabasePath is where the Save command and `musicdbd import` write
	// the persisted catalog (spec §6.4).
	DatabasePath string `koanf:"database_path"`

	// CustomFilesDirectory roots the custom-file bulk verb (spec §4.9).
	// Empty disables that verb.
	CustomFilesDirectory string `koanf:"custom_files_directory"`

	// Cache holds the cache manager's tunables (spec §4.7).
	Cache CacheConfig `koanf:"cache"`

	// LogLevel is a logrus level name ("debug", "info", "warn", "error").
	LogLevel string `koanf:"log_level"`
}

// CacheConfig mirrors cache.Manager's constructor parameters in MiB so the
// config file stays human-writable.
type CacheConfig struct {
	MinAvailMemMiB uint64 `koanf:"min_avail_mem_mib"`
	MaxAvailMemMiB uint64 `koanf:"max_avail_mem_mib"`
	SongsToCache   int    `koanf:"songs_to_cache"`
}

// defaults seeds koanf before any file is loaded, so a missing or partial
// config file never leaves a field at its Go zero value.
func defaults() *Config {
	return &Config{
		ListenAddress:    "127.0.0.1:6632",
		LibraryDirectory: "",
		DatabasePath:     xdgPath("musicdbd", "database.bin"),
		Cache: CacheConfig{
			MinAvailMemMiB: 512,
			MaxAvailMemMiB: 2048,
			SongsToCache:   3,
		},
		LogLevel: "info",
	}
}

// xdgPath resolves a state file under the XDG state home, falling back to
// the bare relative name if XDG resolution fails (e.g. $HOME unset).
func xdgPath(app, name string) string {
	p, err := xdg.StateFile(app + "/" + name)
	if err != nil {
		return name
	}
	return p
}

// DefaultPath returns the config file musicdbd reads when none is given
// explicitly: $XDG_CONFIG_HOME/musicdbd/config.toml.
func DefaultPath() string {
	p, err := xdg.ConfigFile("musicdbd/config.toml")
	if err != nil {
		return "musicdbd.toml"
	}
	return p
}

// Load reads path (if it exists) over top of defaults() and returns the
// merged Config. A missing file is not an error: Load returns defaults()
// unmodified, matching first-run behavior.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if _, err := os.Stat(path); err == nil {
		if err := k.Load(file.Provider(path), toml.Parser()); err != nil {
			return nil, err
		}
	}

	// Unmarshal onto an already-defaulted struct: koanf/mapstructure only
	// overwrites fields the file actually set, leaving the rest at their
	// zero-value-free defaults (mirrors waves' internal/config Load).
	out := defaults()
	if err := k.Unmarshal("", out); err != nil {
		return nil, err
	}
	return out, nil
}
