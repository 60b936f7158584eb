package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "does-not-exist.toml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	want := defaults()
	if *cfg != *want {
		t.Fatalf("Load(missing) = %+v, want defaults %+v", cfg, want)
	}
}

func TestLoadOverlaysFileOnDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	toml := `
listen_address = "0.0.0.0:9000"
library_directory = "/music"

[cache]
songs_to_cache = 5
`
	if err := os.WriteFile(path, []byte(toml), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.ListenAddress != "0.0.0.0:9000" {
		t.Fatalf("ListenAddress = %q, want overridden value", cfg.ListenAddress)
	}
	if cfg.LibraryDirectory != "/music" {
		t.Fatalf("LibraryDirectory = %q, want overridden value", cfg.LibraryDirectory)
	}
	if cfg.Cache.SongsToCache != 5 {
		t.Fatalf("Cache.SongsToCache = %d, want 5", cfg.Cache.SongsToCache)
	}
	// Fields the file never mentioned keep their defaults.
	if cfg.Cache.MinAvailMemMiB != defaults().Cache.MinAvailMemMiB {
		t.Fatalf("Cache.MinAvailMemMiB = %d, want default", cfg.Cache.MinAvailMemMiB)
	}
	if cfg.LogLevel != "info" {
		t.Fatalf("LogLevel = %q, want default", cfg.LogLevel)
	}
}
