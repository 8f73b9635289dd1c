// Package config handles loading and managing Inspectra configuration.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/inspectra/inspectra/pkg/grading"
)

// Config is the top-level Inspectra configuration, loaded from
// .inspectra/config.yaml and overridden by environment variables.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Grading  GradingConfig  `yaml:"grading"`
	Storage  StorageConfig  `yaml:"storage"`
}

// ServerConfig controls the HTTP daemon.
type ServerConfig struct {
	Port       string `yaml:"port"`
	APIKey     string `yaml:"api_key"`
	CORSOrigin string `yaml:"cors_origin"`
}

// DatabaseConfig controls the Postgres connection.
type DatabaseConfig struct {
	URL           string `yaml:"url"`
	AutoMigrate   bool   `yaml:"auto_migrate"`
	TypeCacheSize int    `yaml:"type_cache_size"`
}

// GradingConfig controls how inspections are graded.
type GradingConfig struct {
	// DefaultStrategy is used when a request names no strategy.
	DefaultStrategy string `yaml:"default_strategy"`
	// ReferenceFile is a YAML reference data file used by the CLI when no
	// database is available.
	ReferenceFile string `yaml:"reference_file"`
}

// StorageConfig selects the attachment backend.
type StorageConfig struct {
	Backend   string    `yaml:"backend"` // local, s3 or gcs
	LocalPath string    `yaml:"local_path"`
	S3        S3Config  `yaml:"s3"`
	GCS       GCSConfig `yaml:"gcs"`
}

// S3Config holds S3 or S3-compatible bucket settings.
type S3Config struct {
	Bucket    string `yaml:"bucket"`
	Region    string `yaml:"region"`
	Endpoint  string `yaml:"endpoint"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	Prefix    string `yaml:"prefix"`
}

// GCSConfig holds Google Cloud Storage bucket settings.
type GCSConfig struct {
	Bucket string `yaml:"bucket"`
	Prefix string `yaml:"prefix"`
}

// Storage backends.
const (
	BackendLocal = "local"
	BackendS3    = "s3"
	BackendGCS   = "gcs"
)

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:       "8080",
			CORSOrigin: "*",
		},
		Database: DatabaseConfig{
			URL:           "postgres://localhost:5432/inspectra?sslmode=disable",
			AutoMigrate:   true,
			TypeCacheSize: 256,
		},
		Grading: GradingConfig{
			DefaultStrategy: string(grading.DefaultKind),
		},
		Storage: StorageConfig{
			Backend:   BackendLocal,
			LocalPath: DataDir(),
		},
	}
}

// Load reads config from a YAML file, falling back to defaults for missing
// fields. A missing file yields the defaults.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("reading config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	return cfg, nil
}

// FindConfigFile looks for .inspectra/config.yaml starting from dir and
// walking up. Returns "" if none is found.
func FindConfigFile(dir string) string {
	for {
		candidate := filepath.Join(dir, ".inspectra", "config.yaml")
		if _, err := os.Stat(candidate); err == nil {
			return candidate
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}
		dir = parent
	}
}

// LoadDotEnv loads variables from the given .env files into the process
// environment. Missing files are skipped and existing variables win.
func LoadDotEnv(paths ...string) error {
	for _, p := range paths {
		if _, err := os.Stat(p); errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err := godotenv.Load(p); err != nil {
			return fmt.Errorf("loading %s: %w", p, err)
		}
	}
	return nil
}

// ApplyEnv overrides fields from environment variables read with getenv.
// Unset or empty variables leave the field untouched.
func (c *Config) ApplyEnv(getenv func(string) string) error {
	str := func(key string, dst *string) {
		if v := getenv(key); v != "" {
			*dst = v
		}
	}
	str("PORT", &c.Server.Port)
	str("API_KEY", &c.Server.APIKey)
	str("CORS_ORIGIN", &c.Server.CORSOrigin)
	str("DATABASE_URL", &c.Database.URL)
	str("DEFAULT_STRATEGY", &c.Grading.DefaultStrategy)
	str("REFERENCE_FILE", &c.Grading.ReferenceFile)
	str("STORAGE_BACKEND", &c.Storage.Backend)
	str("LOCAL_STORAGE_PATH", &c.Storage.LocalPath)
	str("S3_BUCKET", &c.Storage.S3.Bucket)
	str("S3_REGION", &c.Storage.S3.Region)
	str("S3_ENDPOINT", &c.Storage.S3.Endpoint)
	str("S3_ACCESS_KEY", &c.Storage.S3.AccessKey)
	str("S3_SECRET_KEY", &c.Storage.S3.SecretKey)
	str("S3_PREFIX", &c.Storage.S3.Prefix)
	str("GCS_BUCKET", &c.Storage.GCS.Bucket)
	str("GCS_PREFIX", &c.Storage.GCS.Prefix)

	if v := getenv("AUTO_MIGRATE"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("AUTO_MIGRATE: %w", err)
		}
		c.Database.AutoMigrate = b
	}
	if v := getenv("TYPE_CACHE_SIZE"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("TYPE_CACHE_SIZE: %w", err)
		}
		c.Database.TypeCacheSize = n
	}
	return nil
}

// Validate checks that the configuration can be used to start the service.
func (c *Config) Validate() error {
	if _, err := c.DefaultKind(); err != nil {
		return err
	}
	switch strings.ToLower(c.Storage.Backend) {
	case BackendLocal:
		if c.Storage.LocalPath == "" {
			return fmt.Errorf("storage: local_path is required for the local backend")
		}
	case BackendS3:
		if c.Storage.S3.Bucket == "" {
			return fmt.Errorf("storage: s3.bucket is required for the s3 backend")
		}
	case BackendGCS:
		if c.Storage.GCS.Bucket == "" {
			return fmt.Errorf("storage: gcs.bucket is required for the gcs backend")
		}
	default:
		return fmt.Errorf("storage: unknown backend %q", c.Storage.Backend)
	}
	if c.Database.TypeCacheSize < 0 {
		return fmt.Errorf("database: type_cache_size must not be negative")
	}
	return nil
}

// DefaultKind parses the configured default strategy.
func (c *Config) DefaultKind() (grading.Kind, error) {
	k, err := grading.ParseKind(c.Grading.DefaultStrategy)
	if err != nil {
		return "", fmt.Errorf("grading: %w", err)
	}
	return k, nil
}

// DataDir returns the default directory for local attachment storage.
func DataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), "inspectra", "attachments")
	}
	return filepath.Join(home, ".local", "share", "inspectra", "attachments")
}
