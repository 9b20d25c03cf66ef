// Package config handles loading and parsing of RankStamp configuration.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config is the top-level configuration for RankStamp.
type Config struct {
	Server        ServerConfig        `yaml:"server"`
	Logging       LoggingConfig       `yaml:"logging"`
	Store         StoreConfig         `yaml:"store"`
	Archive       ArchiveConfig       `yaml:"archive"`
	Observability ObservabilityConfig `yaml:"observability"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
	// ShutdownTimeout is how many seconds a graceful shutdown may take
	// before in-flight requests are cut off.
	ShutdownTimeout int `yaml:"shutdown_timeout"`
	// MaxPayloadBytes caps the size of a single item payload.
	MaxPayloadBytes int `yaml:"max_payload_bytes"`
	// DefaultPageSize is the item page size when the request names none.
	DefaultPageSize int `yaml:"default_page_size"`
	// MaxPageSize caps the item page size a request may ask for.
	MaxPageSize int `yaml:"max_page_size"`
}

// LoggingConfig holds structured logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: "debug", "info", "warn", or "error".
	Level string `yaml:"level"`
	// Format is the log output format: "text" or "json".
	Format string `yaml:"format"`
}

// StoreConfig holds list store settings.
type StoreConfig struct {
	// Engine is the list store engine: "memory", "sqlite", "pebble",
	// "dynamodb", "firestore", or "cosmos".
	Engine    string          `yaml:"engine"`
	SQLite    SQLiteConfig    `yaml:"sqlite"`
	Pebble    PebbleConfig    `yaml:"pebble"`
	DynamoDB  DynamoDBConfig  `yaml:"dynamodb"`
	Firestore FirestoreConfig `yaml:"firestore"`
	Cosmos    CosmosConfig    `yaml:"cosmos"`
}

// SQLiteConfig holds SQLite-specific list store settings.
type SQLiteConfig struct {
	// Path is the filesystem path for the SQLite database file.
	Path string `yaml:"path"`
}

// PebbleConfig holds Pebble-specific list store settings.
type PebbleConfig struct {
	// Path is the filesystem directory for the Pebble database.
	Path string `yaml:"path"`
}

// DynamoDBConfig holds DynamoDB-specific list store settings.
type DynamoDBConfig struct {
	// Table is the DynamoDB table name. The table must use pk/sk keys.
	Table string `yaml:"table"`
	// Region is the AWS region.
	Region string `yaml:"region"`
	// EndpointURL overrides the service endpoint, for local emulators.
	EndpointURL string `yaml:"endpoint_url"`
	// AccessKeyID and SecretAccessKey override the ambient AWS credentials.
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
}

// FirestoreConfig holds Firestore-specific list store settings.
type FirestoreConfig struct {
	// ProjectID is the GCP project ID.
	ProjectID string `yaml:"project_id"`
	// Collection is the Firestore collection holding list and item documents.
	Collection string `yaml:"collection"`
	// CredentialsFile is an optional service account key file path.
	CredentialsFile string `yaml:"credentials_file"`
}

// CosmosConfig holds Azure Cosmos DB-specific list store settings.
type CosmosConfig struct {
	// Endpoint is the Cosmos account endpoint URL.
	Endpoint string `yaml:"endpoint"`
	// Key is the Cosmos account master key.
	Key string `yaml:"key"`
	// Database and Container name the Cosmos container holding records.
	Database  string `yaml:"database"`
	Container string `yaml:"container"`
}

// ArchiveConfig holds snapshot archive settings.
type ArchiveConfig struct {
	// Backend is the archive backend: "local", "s3", "gcs", "azure", or
	// "" to disable snapshots.
	Backend string             `yaml:"backend"`
	Local   LocalArchiveConfig `yaml:"local"`
	S3      S3ArchiveConfig    `yaml:"s3"`
	GCS     GCSArchiveConfig   `yaml:"gcs"`
	Azure   AzureArchiveConfig `yaml:"azure"`
}

// LocalArchiveConfig holds local filesystem archive settings.
type LocalArchiveConfig struct {
	// RootDir is the base directory for snapshot files.
	RootDir string `yaml:"root_dir"`
}

// S3ArchiveConfig holds S3 archive settings.
type S3ArchiveConfig struct {
	Bucket string `yaml:"bucket"`
	Region string `yaml:"region"`
	// Prefix is an optional key prefix for all snapshot objects.
	Prefix string `yaml:"prefix"`
	// EndpointURL overrides the service endpoint, for S3-compatible stores.
	EndpointURL string `yaml:"endpoint_url"`
	// UsePathStyle switches to path-style addressing, required by most
	// S3-compatible endpoints.
	UsePathStyle bool `yaml:"use_path_style"`
	// AccessKeyID and SecretAccessKey override the ambient AWS credentials.
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
}

// GCSArchiveConfig holds Google Cloud Storage archive settings.
type GCSArchiveConfig struct {
	Bucket  string `yaml:"bucket"`
	Project string `yaml:"project"`
	// Prefix is an optional object name prefix for all snapshot objects.
	Prefix string `yaml:"prefix"`
}

// AzureArchiveConfig holds Azure Blob Storage archive settings.
type AzureArchiveConfig struct {
	Container string `yaml:"container"`
	// Account is the storage account name. Used to construct the account
	// URL: https://{account}.blob.core.windows.net
	Account string `yaml:"account"`
	// AccountURL is the full account URL. If empty, it is constructed from
	// Account.
	AccountURL string `yaml:"account_url"`
	// ConnectionString authenticates with a connection string instead of
	// the ambient Azure identity.
	ConnectionString string `yaml:"connection_string"`
	// Prefix is an optional blob name prefix for all snapshot objects.
	Prefix string `yaml:"prefix"`
}

// ObservabilityConfig holds metrics and health endpoint settings.
type ObservabilityConfig struct {
	// Metrics controls whether /metrics is exposed.
	Metrics bool `yaml:"metrics"`
	// HealthCheck controls whether /health pings the backends and reports
	// per-backend checks alongside the overall status.
	HealthCheck bool `yaml:"health_check"`
}

// Load reads a YAML configuration file from the given path and returns
// a parsed Config. It applies sensible defaults for unset values.
// If the primary path fails, it falls back to rankstamp.example.yaml
// in the same directory or parent directory.
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		// Try fallback paths
		fallbackPaths := []string{
			filepath.Join(filepath.Dir(path), "rankstamp.example.yaml"),
			filepath.Join(filepath.Dir(path), "..", "rankstamp.example.yaml"),
		}
		var fallbackErr error
		for _, fp := range fallbackPaths {
			data, fallbackErr = os.ReadFile(fp)
			if fallbackErr == nil {
				break
			}
		}
		if fallbackErr != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	// Apply defaults for empty fields that YAML didn't set
	applyDefaults(cfg)

	return cfg, nil
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8080,
			ShutdownTimeout: 30,
			MaxPayloadBytes: 1 << 20,
			DefaultPageSize: 100,
			MaxPageSize:     1000,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
		Store: StoreConfig{
			Engine: "sqlite",
			SQLite: SQLiteConfig{
				Path: "./data/rankstamp.db",
			},
			Pebble: PebbleConfig{
				Path: "./data/rankstamp.pebble",
			},
		},
		Archive: ArchiveConfig{
			Backend: "local",
			Local: LocalArchiveConfig{
				RootDir: "./data/snapshots",
			},
		},
		Observability: ObservabilityConfig{
			Metrics:     true,
			HealthCheck: true,
		},
	}
}

// applyDefaults fills in any fields that are still at their zero value
// after YAML unmarshaling.
func applyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "0.0.0.0"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = 30
	}
	if cfg.Server.MaxPayloadBytes == 0 {
		cfg.Server.MaxPayloadBytes = 1 << 20
	}
	if cfg.Server.DefaultPageSize == 0 {
		cfg.Server.DefaultPageSize = 100
	}
	if cfg.Server.MaxPageSize == 0 {
		cfg.Server.MaxPageSize = 1000
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "text"
	}
	if cfg.Store.Engine == "" {
		cfg.Store.Engine = "sqlite"
	}
	if cfg.Store.SQLite.Path == "" {
		cfg.Store.SQLite.Path = "./data/rankstamp.db"
	}
	if cfg.Store.Pebble.Path == "" {
		cfg.Store.Pebble.Path = "./data/rankstamp.pebble"
	}
	if cfg.Archive.Backend == "local" && cfg.Archive.Local.RootDir == "" {
		cfg.Archive.Local.RootDir = "./data/snapshots"
	}
	if cfg.Store.Firestore.Collection == "" {
		cfg.Store.Firestore.Collection = "rankstamp"
	}
}
