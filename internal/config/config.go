package config

import (
	"os"
	"time"

	"github.com/cockroachdb/errors"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Server struct {
		Port            string `yaml:"port"`
		ShutdownTimeout string `yaml:"shutdown_timeout"`
	} `yaml:"server"`
	Log struct {
		Mode  string `yaml:"mode"`
		Level string `yaml:"level"`
	} `yaml:"log"`
	Redis struct {
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
		LockTTL  string `yaml:"lock_ttl"`
	} `yaml:"redis"`
	Postgres struct {
		URL         string `yaml:"url"`
		AutoMigrate *bool  `yaml:"auto_migrate"`
	} `yaml:"postgres"`
	Storage struct {
		Driver string `yaml:"driver"`
		GCS    struct {
			Bucket          string `yaml:"bucket"`
			Prefix          string `yaml:"prefix"`
			CredentialsFile string `yaml:"credentials_file"`
			Endpoint        string `yaml:"endpoint"`
		} `yaml:"gcs"`
	} `yaml:"storage"`
	Catalog struct {
		CacheTTL string `yaml:"cache_ttl"`
	} `yaml:"catalog"`
	Assignment struct {
		AllowedExtensions []string `yaml:"allowed_extensions"`
		MaxFileSizeMB     int      `yaml:"max_file_size_mb"`
	} `yaml:"assignment"`
}

// Storage drivers.
const (
	StorageMemory = "memory"
	StorageGCS    = "gcs"
)

// Load reads YAML config from path. A missing file yields the defaults so the
// service can run fully in memory.
func Load(path string) (Config, error) {
	cfg := Config{}
	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return cfg, errors.Wrapf(err, "read config %s", path)
	default:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, errors.Wrapf(err, "parse config %s", path)
		}
	}
	cfg.applyDefaults()
	return cfg, cfg.validate()
}

func (c *Config) applyDefaults() {
	if c.Server.Port == "" {
		c.Server.Port = "8080"
	}
	if c.Log.Mode == "" {
		c.Log.Mode = "development"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Storage.Driver == "" {
		c.Storage.Driver = StorageMemory
	}
}

func (c Config) validate() error {
	switch c.Storage.Driver {
	case StorageMemory:
	case StorageGCS:
		if c.Storage.GCS.Bucket == "" {
			return errors.New("storage.gcs.bucket is required for the gcs driver")
		}
	default:
		return errors.Newf("unknown storage driver %q", c.Storage.Driver)
	}
	if c.Assignment.MaxFileSizeMB < 0 {
		return errors.Newf("assignment.max_file_size_mb must not be negative, got %d", c.Assignment.MaxFileSizeMB)
	}
	return nil
}

// ShouldAutoMigrate reports whether start should apply migrations itself.
func (c Config) ShouldAutoMigrate() bool {
	return c.Postgres.URL != "" && (c.Postgres.AutoMigrate == nil || *c.Postgres.AutoMigrate)
}

// TTLDuration parses a duration string or returns the fallback if empty.
func TTLDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}
	if d, err := time.ParseDuration(raw); err == nil {
		return d
	}
	return fallback
}
