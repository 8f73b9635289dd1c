package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/inspectra/inspectra/pkg/grading"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Server.Port != "8080" {
		t.Errorf("expected default port 8080, got %q", cfg.Server.Port)
	}
	if cfg.Grading.DefaultStrategy != string(grading.KindCriteria) {
		t.Errorf("expected default strategy criteria, got %q", cfg.Grading.DefaultStrategy)
	}
	if cfg.Storage.Backend != BackendLocal {
		t.Errorf("expected local backend, got %q", cfg.Storage.Backend)
	}
	if !cfg.Database.AutoMigrate {
		t.Error("expected AutoMigrate to default to true")
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config should validate, got %v", err)
	}
}

func TestLoad(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		missing bool
		wantErr bool
		check   func(t *testing.T, cfg *Config)
	}{
		{
			name:    "non-existent file returns defaults",
			missing: true,
			check: func(t *testing.T, cfg *Config) {
				if cfg.Database.TypeCacheSize != 256 {
					t.Errorf("expected default cache size 256, got %d", cfg.Database.TypeCacheSize)
				}
			},
		},
		{
			name: "valid YAML overrides defaults",
			yaml: `
server:
  port: "9090"
grading:
  default_strategy: weights
storage:
  backend: s3
  s3:
    bucket: inspections
    prefix: media/
`,
			check: func(t *testing.T, cfg *Config) {
				if cfg.Server.Port != "9090" {
					t.Errorf("expected port 9090, got %q", cfg.Server.Port)
				}
				k, err := cfg.DefaultKind()
				if err != nil || k != grading.KindWeights {
					t.Errorf("expected weights, got %q (%v)", k, err)
				}
				if cfg.Storage.S3.Bucket != "inspections" || cfg.Storage.S3.Prefix != "media/" {
					t.Errorf("unexpected s3 config %+v", cfg.Storage.S3)
				}
				if cfg.Server.CORSOrigin != "*" {
					t.Errorf("expected untouched CORS origin, got %q", cfg.Server.CORSOrigin)
				}
			},
		},
		{
			name:    "invalid YAML returns error",
			yaml:    "{{invalid yaml",
			wantErr: true,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			dir := t.TempDir()
			path := filepath.Join(dir, "config.yaml")

			if !tc.missing {
				if err := os.WriteFile(path, []byte(tc.yaml), 0o644); err != nil {
					t.Fatalf("write test config: %v", err)
				}
			}

			cfg, err := Load(path)
			if tc.wantErr {
				if err == nil {
					t.Fatal("expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if tc.check != nil {
				tc.check(t, cfg)
			}
		})
	}
}

func TestApplyEnv(t *testing.T) {
	env := map[string]string{
		"PORT":             "7000",
		"DATABASE_URL":     "postgres://db/inspectra",
		"DEFAULT_STRATEGY": "avg_critical",
		"STORAGE_BACKEND":  "gcs",
		"GCS_BUCKET":       "bucket",
		"AUTO_MIGRATE":     "false",
		"TYPE_CACHE_SIZE":  "32",
	}
	cfg := DefaultConfig()
	if err := cfg.ApplyEnv(func(k string) string { return env[k] }); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Server.Port != "7000" {
		t.Errorf("expected port 7000, got %q", cfg.Server.Port)
	}
	if cfg.Database.URL != "postgres://db/inspectra" {
		t.Errorf("unexpected database url %q", cfg.Database.URL)
	}
	if cfg.Database.AutoMigrate {
		t.Error("expected AutoMigrate false")
	}
	if cfg.Database.TypeCacheSize != 32 {
		t.Errorf("expected cache size 32, got %d", cfg.Database.TypeCacheSize)
	}
	if cfg.Storage.Backend != BackendGCS || cfg.Storage.GCS.Bucket != "bucket" {
		t.Errorf("unexpected storage config %+v", cfg.Storage)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("expected valid config, got %v", err)
	}
}

func TestApplyEnvInvalid(t *testing.T) {
	for _, key := range []string{"AUTO_MIGRATE", "TYPE_CACHE_SIZE"} {
		t.Run(key, func(t *testing.T) {
			cfg := DefaultConfig()
			err := cfg.ApplyEnv(func(k string) string {
				if k == key {
					return "lots"
				}
				return ""
			})
			if err == nil || !strings.Contains(err.Error(), key) {
				t.Errorf("expected error naming %s, got %v", key, err)
			}
		})
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(cfg *Config)
		wantErr string
	}{
		{"unknown strategy", func(c *Config) { c.Grading.DefaultStrategy = "median" }, "grading"},
		{"unknown backend", func(c *Config) { c.Storage.Backend = "ftp" }, "unknown backend"},
		{"s3 without bucket", func(c *Config) { c.Storage.Backend = BackendS3 }, "s3.bucket"},
		{"gcs without bucket", func(c *Config) { c.Storage.Backend = BackendGCS }, "gcs.bucket"},
		{"local without path", func(c *Config) { c.Storage.LocalPath = "" }, "local_path"},
		{"negative cache size", func(c *Config) { c.Database.TypeCacheSize = -1 }, "type_cache_size"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tc.mutate(cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected error, got nil")
			}
			if !strings.Contains(err.Error(), tc.wantErr) {
				t.Errorf("expected error containing %q, got %v", tc.wantErr, err)
			}
		})
	}
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	if err := os.WriteFile(path, []byte("INSPECTRA_DOTENV_TEST=loaded\n"), 0o644); err != nil {
		t.Fatalf("write env file: %v", err)
	}
	t.Cleanup(func() { os.Unsetenv("INSPECTRA_DOTENV_TEST") })

	if err := LoadDotEnv(filepath.Join(dir, "missing.env"), path); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := os.Getenv("INSPECTRA_DOTENV_TEST"); got != "loaded" {
		t.Errorf("expected variable from .env, got %q", got)
	}
}

func TestFindConfigFile(t *testing.T) {
	t.Run("found in current directory", func(t *testing.T) {
		root := t.TempDir()
		configDir := filepath.Join(root, ".inspectra")
		if err := os.MkdirAll(configDir, 0o755); err != nil {
			t.Fatalf("create config dir: %v", err)
		}
		configPath := filepath.Join(configDir, "config.yaml")
		if err := os.WriteFile(configPath, []byte("{}"), 0o644); err != nil {
			t.Fatalf("write config: %v", err)
		}

		got := FindConfigFile(root)
		if got != configPath {
			t.Errorf("FindConfigFile = %q, want %q", got, configPath)
		}
	})

	t.Run("found in parent directory", func(t *testing.T) {
		root := t.TempDir()
		configDir := filepath.Join(root, ".inspectra")
		if err := os.MkdirAll(configDir, 0o755); err != nil {
			t.Fatalf("create config dir: %v", err)
		}
		configPath := filepath.Join(configDir, "config.yaml")
		if err := os.WriteFile(configPath, []byte("{}"), 0o644); err != nil {
			t.Fatalf("write config: %v", err)
		}

		sub := filepath.Join(root, "a", "b", "c")
		if err := os.MkdirAll(sub, 0o755); err != nil {
			t.Fatalf("create sub: %v", err)
		}

		got := FindConfigFile(sub)
		if got != configPath {
			t.Errorf("FindConfigFile = %q, want %q", got, configPath)
		}
	})

	t.Run("not found", func(t *testing.T) {
		root := t.TempDir()
		got := FindConfigFile(root)
		if got != "" {
			t.Errorf("FindConfigFile = %q, want empty", got)
		}
	})
}
