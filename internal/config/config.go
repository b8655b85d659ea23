package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultCollectionName is the annual satellite embedding collection.
const DefaultCollectionName = "GOOGLE/SATELLITE_EMBEDDING/V1/ANNUAL"

type Config struct {
	Remote  RemoteConfig  `yaml:"remote"`
	Ledger  LedgerConfig  `yaml:"ledger"`
	Storage StorageConfig `yaml:"storage"`
	Batch   BatchConfig   `yaml:"batch"`
	Catalog CatalogConfig `yaml:"catalog"`
	Logging LoggingConfig `yaml:"logging"`
	Metrics MetricsConfig `yaml:"metrics"`
}

// RemoteConfig identifies the compute-service billing project and default dataset.
type RemoteConfig struct {
	ProjectID             string `yaml:"remote_project_id"`
	DefaultCollectionName string `yaml:"default_collection_name"`
	CredentialsFile       string `yaml:"credentials_file"`
	Endpoint              string `yaml:"endpoint"`
}

type LedgerConfig struct {
	Path string `yaml:"path"`
}

// StorageConfig configures the object store used for batch manifests and
// ledger snapshots. An empty Backend disables it.
type StorageConfig struct {
	Backend    string `yaml:"backend"` // "" | "local" | "gcs" | "s3"
	Bucket     string `yaml:"bucket"`
	Prefix     string `yaml:"prefix"`
	LocalDir   string `yaml:"local_dir"`
	S3Endpoint string `yaml:"s3_endpoint"`
	S3Region   string `yaml:"s3_region"`
	URIScheme  string `yaml:"uri_scheme"` // scheme recorded in ledger output locations
}

type BatchConfig struct {
	OnError        string        `yaml:"on_error"` // "continue" | "abort"
	MaxSubmissions int           `yaml:"max_submissions"`
	SubmitInterval time.Duration `yaml:"submit_interval"`
	SkipExisting   bool          `yaml:"skip_existing"`
	WriteManifest  bool          `yaml:"write_manifest"`
}

// CatalogConfig points at the optional PostgreSQL run catalog.
type CatalogConfig struct {
	PostgresDSN string `yaml:"postgres_dsn"`
}

type LoggingConfig struct {
	Format string `yaml:"format"`
	Level  string `yaml:"level"`
}

type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Address string `yaml:"address"`
}

// Default returns the configuration used when neither a file nor the
// environment say otherwise.
func Default() Config {
	return Config{
		Remote: RemoteConfig{
			DefaultCollectionName: DefaultCollectionName,
		},
		Ledger: LedgerConfig{
			Path: "sqlite_aef_export.db",
		},
		Storage: StorageConfig{
			LocalDir:  "./data",
			URIScheme: "s3",
		},
		Batch: BatchConfig{
			OnError: "continue",
		},
		Logging: LoggingConfig{
			Format: "text",
			Level:  "info",
		},
		Metrics: MetricsConfig{
			Address: ":9090",
		},
	}
}

// Load builds the configuration from an optional YAML file followed by
// environment overrides. An empty path skips the file.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config file %s: %w", path, err)
		}
	}

	if err := applyEnv(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) error {
	// GOOGLE_CLOUD_PROJECT is what the gcloud tooling exports.
	cfg.Remote.ProjectID = firstEnv(cfg.Remote.ProjectID, "AEF_REMOTE_PROJECT_ID", "GOOGLE_CLOUD_PROJECT")
	cfg.Remote.DefaultCollectionName = firstEnv(cfg.Remote.DefaultCollectionName, "AEF_COLLECTION_NAME", "IMAGE_COLLECTION_NAME")
	cfg.Remote.CredentialsFile = firstEnv(cfg.Remote.CredentialsFile, "GOOGLE_APPLICATION_CREDENTIALS")
	cfg.Remote.Endpoint = getenvDefault("AEF_REMOTE_ENDPOINT", cfg.Remote.Endpoint)

	cfg.Ledger.Path = getenvDefault("LEDGER_PATH", cfg.Ledger.Path)

	cfg.Storage.Backend = getenvDefault("STORAGE_BACKEND", cfg.Storage.Backend)
	cfg.Storage.Bucket = getenvDefault("STORAGE_BUCKET", cfg.Storage.Bucket)
	cfg.Storage.Prefix = getenvDefault("STORAGE_PREFIX", cfg.Storage.Prefix)
	cfg.Storage.LocalDir = getenvDefault("LOCAL_DIR", cfg.Storage.LocalDir)
	cfg.Storage.S3Endpoint = getenvDefault("S3_ENDPOINT", cfg.Storage.S3Endpoint)
	cfg.Storage.S3Region = getenvDefault("S3_REGION", cfg.Storage.S3Region)
	cfg.Storage.URIScheme = getenvDefault("OUTPUT_URI_SCHEME", cfg.Storage.URIScheme)

	cfg.Batch.OnError = getenvDefault("BATCH_ON_ERROR", cfg.Batch.OnError)
	if v := os.Getenv("BATCH_MAX_SUBMISSIONS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("parse BATCH_MAX_SUBMISSIONS: %w", err)
		}
		cfg.Batch.MaxSubmissions = n
	}
	if v := os.Getenv("BATCH_SUBMIT_INTERVAL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("parse BATCH_SUBMIT_INTERVAL: %w", err)
		}
		cfg.Batch.SubmitInterval = d
	}
	if v := os.Getenv("BATCH_SKIP_EXISTING"); v != "" {
		cfg.Batch.SkipExisting = v == "true"
	}
	if v := os.Getenv("BATCH_WRITE_MANIFEST"); v != "" {
		cfg.Batch.WriteManifest = v == "true"
	}

	cfg.Catalog.PostgresDSN = getenvDefault("CATALOG_POSTGRES_DSN", cfg.Catalog.PostgresDSN)

	cfg.Logging.Format = getenvDefault("LOG_FORMAT", cfg.Logging.Format)
	cfg.Logging.Level = getenvDefault("LOG_LEVEL", cfg.Logging.Level)

	if v := os.Getenv("METRICS_ENABLED"); v != "" {
		cfg.Metrics.Enabled = v == "true"
	}
	cfg.Metrics.Address = getenvDefault("METRICS_ADDR", cfg.Metrics.Address)
	return nil
}

// Validate reports every problem with the configuration at once.
func (c Config) Validate() error {
	var errs []error

	if c.Remote.ProjectID == "" {
		errs = append(errs, errors.New("remote.remote_project_id is required (set GOOGLE_CLOUD_PROJECT)"))
	}
	if c.Remote.DefaultCollectionName == "" {
		errs = append(errs, errors.New("remote.default_collection_name must not be empty"))
	}
	if c.Ledger.Path == "" {
		errs = append(errs, errors.New("ledger.path must not be empty"))
	}

	switch c.Storage.Backend {
	case "":
	case "local":
		if c.Storage.LocalDir == "" {
			errs = append(errs, errors.New("storage.local_dir is required for the local backend"))
		}
	case "gcs", "s3":
		if c.Storage.Bucket == "" {
			errs = append(errs, fmt.Errorf("storage.bucket is required for the %s backend", c.Storage.Backend))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown storage backend: %s", c.Storage.Backend))
	}
	if c.Storage.URIScheme == "" {
		errs = append(errs, errors.New("storage.uri_scheme must not be empty"))
	}

	switch strings.ToLower(c.Batch.OnError) {
	case "continue", "abort":
	default:
		errs = append(errs, fmt.Errorf("batch.on_error must be continue or abort, got %q", c.Batch.OnError))
	}
	if c.Batch.MaxSubmissions < 0 {
		errs = append(errs, errors.New("batch.max_submissions must not be negative"))
	}
	if c.Batch.SubmitInterval < 0 {
		errs = append(errs, errors.New("batch.submit_interval must not be negative"))
	}
	if c.Batch.WriteManifest && c.Storage.Backend == "" {
		errs = append(errs, errors.New("batch.write_manifest requires a storage backend"))
	}

	return errors.Join(errs...)
}

func getenvDefault(key, def string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return def
}

func firstEnv(def string, keys ...string) string {
	for _, key := range keys {
		if val := os.Getenv(key); val != "" {
			return val
		}
	}
	return def
}
