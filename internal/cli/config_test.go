package cli

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/depsight/depsight/pkg/errors"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig("")
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.ListenAddr != ":8080" {
		t.Errorf("ListenAddr = %q", cfg.ListenAddr)
	}
	if cfg.Store.Backend != "memory" {
		t.Errorf("store backend = %q", cfg.Store.Backend)
	}
	if cfg.Artifacts.Bucket != "depsight-artifacts" {
		t.Errorf("bucket = %q", cfg.Artifacts.Bucket)
	}
}

func TestLoadConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	content := `
listen_addr = ":9090"

[store]
backend = "mongodb"
mongo_uri = "mongodb://localhost:27017"

[feed]
concurrency = 4
cache_ttl = "2h"
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.ListenAddr != ":9090" {
		t.Errorf("ListenAddr = %q", cfg.ListenAddr)
	}
	if cfg.Store.Backend != "mongodb" || cfg.Store.MongoURI != "mongodb://localhost:27017" {
		t.Errorf("store = %+v", cfg.Store)
	}
	if cfg.Feed.Concurrency != 4 {
		t.Errorf("feed concurrency = %d", cfg.Feed.Concurrency)
	}
	if cfg.Feed.CacheTTL.Hours() != 2 {
		t.Errorf("cache ttl = %v", cfg.Feed.CacheTTL.Duration)
	}
	// Untouched sections keep their defaults.
	if cfg.Cache.Backend != "memory" {
		t.Errorf("cache backend = %q", cfg.Cache.Backend)
	}
}

func TestLoadConfigEnvOverride(t *testing.T) {
	t.Setenv("DEPSIGHT_LISTEN_ADDR", ":7070")
	t.Setenv("DEPSIGHT_CACHE_BACKEND", "redis")
	t.Setenv("DEPSIGHT_REDIS_DB", "3")

	cfg, err := LoadConfig("")
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.ListenAddr != ":7070" {
		t.Errorf("ListenAddr = %q", cfg.ListenAddr)
	}
	if cfg.Cache.Backend != "redis" || cfg.Cache.DB != 3 {
		t.Errorf("cache = %+v", cfg.Cache)
	}
}

func TestLoadConfigMissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "nope.toml"))
	if !errors.Is(err, errors.ErrCodeInvalidInput) {
		t.Fatalf("err = %v, want INVALID_INPUT", err)
	}
}
