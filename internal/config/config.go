// Package config loads server configuration from the environment.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"

	"github.com/PaulBabatuyi/urbanease/internal/upload"
)

const (
	StorageFilesystem = "filesystem"
	StorageS3         = "s3"
)

type Config struct {
	Dev         bool   `env:"URBANEASE_DEV" envDefault:"false"`
	HTTPAddr    string `env:"URBANEASE_HTTP_ADDR" envDefault:":8080"`
	GRPCAddr    string `env:"URBANEASE_GRPC_ADDR" envDefault:":50051"`
	MetricsAddr string `env:"URBANEASE_METRICS_ADDR" envDefault:":9090"`
	Tracing     bool   `env:"URBANEASE_TRACING" envDefault:"false"`

	// Empty DatabaseURL selects the in-memory store.
	DatabaseURL string `env:"URBANEASE_DATABASE_URL"`

	Storage StorageConfig
	JWT     JWTConfig
	Upload  UploadConfig
	Worker  WorkerConfig

	ShutdownTimeout time.Duration `env:"URBANEASE_SHUTDOWN_TIMEOUT" envDefault:"10s"`
}

type StorageConfig struct {
	Backend   string `env:"URBANEASE_STORAGE_BACKEND" envDefault:"filesystem"`
	Path      string `env:"URBANEASE_STORAGE_PATH" envDefault:"./data/files"`
	// PublicURL prefixes object references. Filesystem storage falls back
	// to the server's own /files/ route, S3 to the bucket URL.
	PublicURL string `env:"URBANEASE_STORAGE_PUBLIC_URL"`
	Bucket    string `env:"URBANEASE_S3_BUCKET"`
	Region    string `env:"URBANEASE_S3_REGION" envDefault:"us-east-1"`
	Endpoint  string `env:"URBANEASE_S3_ENDPOINT"`
}

type JWTConfig struct {
	Secret string        `env:"URBANEASE_JWT_SECRET"`
	Issuer string        `env:"URBANEASE_JWT_ISSUER" envDefault:"urbanease"`
	TTL    time.Duration `env:"URBANEASE_JWT_TTL" envDefault:"24h"`
}

type UploadConfig struct {
	MaxFileBytes int64 `env:"URBANEASE_UPLOAD_MAX_FILE_BYTES" envDefault:"5242880"`
	MaxFiles     int   `env:"URBANEASE_UPLOAD_MAX_FILES" envDefault:"10"`
	Sniff        bool  `env:"URBANEASE_UPLOAD_SNIFF" envDefault:"false"`
	Concurrency  int   `env:"URBANEASE_UPLOAD_CONCURRENCY" envDefault:"4"`
}

type WorkerConfig struct {
	PollInterval time.Duration `env:"URBANEASE_WORKER_POLL_INTERVAL" envDefault:"2s"`
	MaxRetries   int           `env:"URBANEASE_WORKER_MAX_RETRIES" envDefault:"3"`
}

// Load parses the environment and validates the result.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.JWT.Secret) == "" {
		errs = append(errs, errors.New("URBANEASE_JWT_SECRET is required"))
	}
	switch c.Storage.Backend {
	case StorageFilesystem:
		if c.Storage.Path == "" {
			errs = append(errs, errors.New("URBANEASE_STORAGE_PATH is required for filesystem storage"))
		}
	case StorageS3:
		if c.Storage.Bucket == "" {
			errs = append(errs, errors.New("URBANEASE_S3_BUCKET is required for s3 storage"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown storage backend %q", c.Storage.Backend))
	}
	if c.Upload.MaxFileBytes <= 0 {
		errs = append(errs, errors.New("URBANEASE_UPLOAD_MAX_FILE_BYTES must be positive"))
	}
	if c.Upload.Concurrency <= 0 {
		errs = append(errs, errors.New("URBANEASE_UPLOAD_CONCURRENCY must be positive"))
	}
	return errors.Join(errs...)
}

// FilesURL is the public URL of objects served by the HTTP server itself.
func (c Config) FilesURL() string {
	if c.Storage.PublicURL != "" {
		return c.Storage.PublicURL
	}
	host := c.HTTPAddr
	if strings.HasPrefix(host, ":") {
		host = "localhost" + host
	}
	return "http://" + host + "/files"
}

// UploadPolicy builds the gatekeeper policy from the upload settings.
func (c Config) UploadPolicy() upload.Policy {
	p := upload.DefaultPolicy()
	p.MaxFileBytes = c.Upload.MaxFileBytes
	p.MaxFiles = c.Upload.MaxFiles
	p.SniffContent = c.Upload.Sniff
	return p
}
