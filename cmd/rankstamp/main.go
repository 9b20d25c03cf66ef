// Package main is the entry point for the RankStamp ordering service.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/rankstamp/rankstamp/internal/archive"
	"github.com/rankstamp/rankstamp/internal/config"
	"github.com/rankstamp/rankstamp/internal/liststore"
	"github.com/rankstamp/rankstamp/internal/logging"
	"github.com/rankstamp/rankstamp/internal/server"
)

func main() {
	configPath := flag.String("config", "rankstamp.yaml", "path to configuration file")
	port := flag.Int("port", 0, "override listening port (default: from config or 8080)")
	host := flag.String("host", "", "override listening host (default: from config or 0.0.0.0)")
	logLevel := flag.String("log-level", "", "log level: debug, info, warn, error (default: from config or info)")
	logFormat := flag.String("log-format", "", "log format: text, json (default: from config or text)")
	shutdownTimeout := flag.Int("shutdown-timeout", 0, "graceful shutdown timeout in seconds (default: from config or 30)")
	maxPayload := flag.Int("max-payload-bytes", 0, "maximum item payload size in bytes (default: from config or 1048576)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Command-line flags override config file values.
	if *port != 0 {
		cfg.Server.Port = *port
	}
	if *host != "" {
		cfg.Server.Host = *host
	}
	if *logLevel != "" {
		cfg.Logging.Level = *logLevel
	}
	if *logFormat != "" {
		cfg.Logging.Format = *logFormat
	}
	if *shutdownTimeout != 0 {
		cfg.Server.ShutdownTimeout = *shutdownTimeout
	}
	if *maxPayload != 0 {
		cfg.Server.MaxPayloadBytes = *maxPayload
	}

	// Initialize structured logging.
	logging.Setup(cfg.Logging.Level, cfg.Logging.Format, os.Stderr)

	store, err := openStore(context.Background(), cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize store: %v\n", err)
		os.Exit(1)
	}
	defer store.Close()

	arch, err := openArchive(context.Background(), cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize archive: %v\n", err)
		os.Exit(1)
	}

	opts := []server.ServerOption{server.WithStore(store)}
	if arch != nil {
		opts = append(opts, server.WithArchive(arch))
	}
	srv, err := server.New(cfg, opts...)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create server: %v\n", err)
		os.Exit(1)
	}

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)

	// Start the server in a goroutine so we can handle shutdown signals.
	errCh := make(chan error, 1)
	go func() {
		slog.Info("RankStamp listening", "addr", addr)
		if err := srv.ListenAndServe(addr); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	// SIGTERM/SIGINT handler: stop accepting connections, wait for in-flight
	// requests with a timeout, then exit.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		slog.Info("Received signal, shutting down", "signal", sig)

		// Give in-flight requests time to complete.
		ctx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.Server.ShutdownTimeout)*time.Second)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			slog.Error("Shutdown error", "error", err)
		}
		slog.Info("Server stopped")

	case err := <-errCh:
		if err != nil {
			fmt.Fprintf(os.Stderr, "server error: %v\n", err)
			os.Exit(1)
		}
	}
}

// openStore builds the list store named by store.engine in the config.
func openStore(ctx context.Context, cfg *config.Config) (liststore.Store, error) {
	switch cfg.Store.Engine {
	case "memory":
		slog.Info("Store initialized", "engine", "memory")
		return liststore.NewMemoryStore(), nil

	case "", "sqlite":
		dbPath := cfg.Store.SQLite.Path
		if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
			return nil, fmt.Errorf("creating sqlite directory: %w", err)
		}
		store, err := liststore.NewSQLiteStore(dbPath)
		if err != nil {
			return nil, err
		}
		slog.Info("Store initialized", "engine", "sqlite", "path", dbPath)
		return store, nil

	case "pebble":
		dir := cfg.Store.Pebble.Path
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating pebble directory: %w", err)
		}
		store, err := liststore.NewPebbleStore(dir)
		if err != nil {
			return nil, err
		}
		slog.Info("Store initialized", "engine", "pebble", "path", dir)
		return store, nil

	case "dynamodb":
		store, err := liststore.NewDynamoDBStore(&cfg.Store.DynamoDB)
		if err != nil {
			return nil, err
		}
		slog.Info("Store initialized", "engine", "dynamodb", "table", cfg.Store.DynamoDB.Table, "region", cfg.Store.DynamoDB.Region)
		return store, nil

	case "firestore":
		store, err := liststore.NewFirestoreStore(ctx, &cfg.Store.Firestore)
		if err != nil {
			return nil, err
		}
		slog.Info("Store initialized", "engine", "firestore", "project", cfg.Store.Firestore.ProjectID, "collection", cfg.Store.Firestore.Collection)
		return store, nil

	case "cosmos":
		store, err := liststore.NewCosmosStore(ctx, &cfg.Store.Cosmos)
		if err != nil {
			return nil, err
		}
		slog.Info("Store initialized", "engine", "cosmos", "database", cfg.Store.Cosmos.Database, "container", cfg.Store.Cosmos.Container)
		return store, nil

	default:
		return nil, fmt.Errorf("unknown store engine %q", cfg.Store.Engine)
	}
}

// openArchive builds the snapshot archive named by archive.backend in the
// config. An empty backend disables snapshots; the server then answers
// snapshot requests with 501.
func openArchive(ctx context.Context, cfg *config.Config) (archive.Backend, error) {
	switch cfg.Archive.Backend {
	case "", "none":
		slog.Info("Archive disabled; snapshot endpoints return 501")
		return nil, nil

	case "local":
		rootDir := cfg.Archive.Local.RootDir
		if err := os.MkdirAll(rootDir, 0o755); err != nil {
			return nil, fmt.Errorf("creating archive directory: %w", err)
		}
		backend, err := archive.NewLocalBackend(rootDir)
		if err != nil {
			return nil, err
		}
		slog.Info("Archive initialized", "backend", "local", "root", rootDir)
		return backend, nil

	case "s3":
		backend, err := archive.NewS3Backend(ctx, &cfg.Archive.S3)
		if err != nil {
			return nil, err
		}
		slog.Info("Archive initialized", "backend", "s3", "bucket", cfg.Archive.S3.Bucket, "region", cfg.Archive.S3.Region, "prefix", cfg.Archive.S3.Prefix)
		return backend, nil

	case "gcs":
		backend, err := archive.NewGCSBackend(ctx, &cfg.Archive.GCS)
		if err != nil {
			return nil, err
		}
		slog.Info("Archive initialized", "backend", "gcs", "bucket", cfg.Archive.GCS.Bucket, "project", cfg.Archive.GCS.Project, "prefix", cfg.Archive.GCS.Prefix)
		return backend, nil

	case "azure":
		backend, err := archive.NewAzureBackend(ctx, &cfg.Archive.Azure)
		if err != nil {
			return nil, err
		}
		slog.Info("Archive initialized", "backend", "azure", "container", cfg.Archive.Azure.Container, "prefix", cfg.Archive.Azure.Prefix)
		return backend, nil

	default:
		return nil, fmt.Errorf("unknown archive backend %q", cfg.Archive.Backend)
	}
}
