// Command inspectrad is the Inspectra HTTP service.
// It serves the inspection REST API, grade previews and a health check.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/inspectra/inspectra/internal/api"
	"github.com/inspectra/inspectra/internal/attachments"
	"github.com/inspectra/inspectra/internal/inspection"
	"github.com/inspectra/inspectra/internal/lookup"
	"github.com/inspectra/inspectra/internal/platform"
	"github.com/inspectra/inspectra/pkg/config"
)

// memoryDatabaseURL selects the in-memory store with YAML reference data,
// for local development without Postgres.
const memoryDatabaseURL = "memory"

func loadConfig() (*config.Config, error) {
	if err := config.LoadDotEnv(".env"); err != nil {
		return nil, err
	}

	cfg := config.DefaultConfig()
	if path := firstNonEmpty(os.Getenv("INSPECTRA_CONFIG"), findConfigFile()); path != "" {
		loaded, err := config.Load(path)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}
	if err := cfg.ApplyEnv(os.Getenv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func main() {
	cfg, err := loadConfig()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	defaultKind, _ := cfg.DefaultKind()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Initialize services
	store, refs, ping, closeDB, err := openStore(ctx, cfg)
	if err != nil {
		log.Fatalf("%v", err)
	}
	defer closeDB()

	files, err := openAttachments(ctx, cfg.Storage)
	if err != nil {
		log.Fatalf("open attachment storage: %v", err)
	}
	if c, ok := files.(io.Closer); ok {
		defer c.Close()
	}

	svc := inspection.NewService(inspection.NewAggregator(refs), store, files, defaultKind)

	// Set up HTTP routes
	mux := http.NewServeMux()
	api.NewHandler(svc).RegisterRoutes(mux)
	mux.HandleFunc("GET /healthz", healthHandler(ping))

	srv := &http.Server{
		Addr: ":" + cfg.Server.Port,
		Handler: api.Chain(mux,
			api.RequestLog,
			api.CORS(cfg.Server.CORSOrigin),
			api.APIKeyAuth(cfg.Server.APIKey),
		),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Printf("starting inspectrad on :%s (storage %s, default strategy %s)", cfg.Server.Port, cfg.Storage.Backend, defaultKind)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	<-ctx.Done()
	log.Println("shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown error: %v", err)
	}
}

// openStore connects the inspection store and reference data lookup. With
// the memory database URL both live in process and reference data is read
// from the configured YAML file.
func openStore(ctx context.Context, cfg *config.Config) (inspection.Store, lookup.Lookup, func(context.Context) error, func(), error) {
	if cfg.Database.URL == memoryDatabaseURL {
		if cfg.Grading.ReferenceFile == "" {
			return nil, nil, nil, nil, errors.New("REFERENCE_FILE is required with the memory database")
		}
		refs, err := lookup.LoadStatic(cfg.Grading.ReferenceFile)
		if err != nil {
			return nil, nil, nil, nil, err
		}
		log.Printf("using in-memory store with reference data from %s", cfg.Grading.ReferenceFile)
		ping := func(context.Context) error { return nil }
		return inspection.NewMemoryStore(), refs, ping, func() {}, nil
	}

	db, err := platform.OpenDB(ctx, cfg.Database.URL)
	if err != nil {
		return nil, nil, nil, nil, err
	}
	if cfg.Database.AutoMigrate {
		if err := platform.AutoMigrate(db); err != nil {
			db.Close()
			return nil, nil, nil, nil, err
		}
		if v, _, err := platform.MigrationVersion(db); err == nil {
			log.Printf("database schema at version %d", v)
		}
	}

	refs := lookup.NewPostgres(db, lookup.NewTypeCache(cfg.Database.TypeCacheSize))
	return inspection.NewPostgresStore(db), refs, db.PingContext, func() { db.Close() }, nil
}

func openAttachments(ctx context.Context, cfg config.StorageConfig) (attachments.Store, error) {
	switch strings.ToLower(cfg.Backend) {
	case config.BackendS3:
		return attachments.NewS3(ctx, attachments.S3Config{
			Bucket:    cfg.S3.Bucket,
			Region:    cfg.S3.Region,
			Endpoint:  cfg.S3.Endpoint,
			AccessKey: cfg.S3.AccessKey,
			SecretKey: cfg.S3.SecretKey,
			Prefix:    cfg.S3.Prefix,
		})
	case config.BackendGCS:
		return attachments.NewGCS(ctx, cfg.GCS.Bucket, cfg.GCS.Prefix)
	case config.BackendLocal:
		return attachments.NewLocal(cfg.LocalPath), nil
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
	}
}

func healthHandler(ping func(context.Context) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := ping(r.Context()); err != nil {
			http.Error(w, "database unreachable", http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
	}
}

func findConfigFile() string {
	cwd, err := os.Getwd()
	if err != nil {
		return ""
	}
	return config.FindConfigFile(cwd)
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
