package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadParsesSections(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	data := `
server:
  port: "9090"
log:
  mode: production
  level: debug
redis:
  addr: localhost:6379
  lock_ttl: 5s
postgres:
  url: postgres://u:p@localhost:5432/db
  auto_migrate: false
storage:
  driver: gcs
  gcs:
    bucket: uploads
    credentials_file: /secrets/sa.json
catalog:
  cache_ttl: 30s
assignment:
  allowed_extensions: [pdf, zip]
  max_file_size_mb: 25
`
	if err := os.WriteFile(path, []byte(data), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.Port != "9090" || cfg.Log.Mode != "production" || cfg.Log.Level != "debug" {
		t.Fatalf("unexpected server/log config: %+v %+v", cfg.Server, cfg.Log)
	}
	if cfg.Storage.Driver != StorageGCS || cfg.Storage.GCS.Bucket != "uploads" || cfg.Storage.GCS.CredentialsFile != "/secrets/sa.json" {
		t.Fatalf("unexpected storage config: %+v", cfg.Storage)
	}
	if len(cfg.Assignment.AllowedExtensions) != 2 || cfg.Assignment.MaxFileSizeMB != 25 {
		t.Fatalf("unexpected assignment config: %+v", cfg.Assignment)
	}
	if cfg.ShouldAutoMigrate() {
		t.Fatalf("auto_migrate false must be honoured")
	}
	if got := TTLDuration(cfg.Redis.LockTTL, time.Minute); got != 5*time.Second {
		t.Fatalf("expected 5s lock ttl, got %v", got)
	}
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.Port != "8080" || cfg.Storage.Driver != StorageMemory {
		t.Fatalf("expected defaults, got port %q driver %q", cfg.Server.Port, cfg.Storage.Driver)
	}
	if cfg.ShouldAutoMigrate() {
		t.Fatalf("no postgres url means no migrations")
	}
}

func TestLoadRejectsGCSWithoutBucket(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("storage:\n  driver: gcs\n"), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Fatalf("expected error for gcs without bucket")
	}
}

func TestTTLDuration(t *testing.T) {
	if got := TTLDuration("", time.Minute); got != time.Minute {
		t.Fatalf("empty should fall back, got %v", got)
	}
	if got := TTLDuration("bogus", time.Minute); got != time.Minute {
		t.Fatalf("invalid should fall back, got %v", got)
	}
	if got := TTLDuration("90s", time.Minute); got != 90*time.Second {
		t.Fatalf("expected 90s, got %v", got)
	}
}
