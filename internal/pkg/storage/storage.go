package storage

import (
	"context"
	"io"
)

// Storage is the backend creative media is written to
type Storage interface {
	// Put stores the object under key
	Put(ctx context.Context, key string, reader io.Reader, contentType string) error

	// Delete removes an object. Returns nil if it doesn't exist.
	Delete(ctx context.Context, key string) error

	// URL returns the public URL for key
	URL(key string) string
}

// Config selects and configures a backend. An empty S3Bucket means local disk.
type Config struct {
	S3Bucket    string
	S3Region    string
	S3Endpoint  string
	S3AccessKey string
	S3SecretKey string
	PublicURL   string
	LocalDir    string
}

// New returns S3 storage when a bucket is configured, local storage otherwise
func New(ctx context.Context, cfg Config) (Storage, error) {
	if cfg.S3Bucket != "" {
		return NewS3Storage(ctx, cfg)
	}
	return NewLocalStorage(cfg.LocalDir, cfg.PublicURL)
}
