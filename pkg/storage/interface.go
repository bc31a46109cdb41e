// Package storage holds user uploaded objects: resized avatars and chat
// media. Keys are slash separated paths such as "avatars/<user>/md.jpg".
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"
)

var (
	ErrNotFound           = errors.New("object not found")
	ErrPresignUnsupported = errors.New("presigned upload not supported by this storage driver")
)

// Storage is implemented by the local filesystem and S3 drivers.
type Storage interface {
	// Write stores r under key. size is -1 when unknown.
	Write(ctx context.Context, key string, r io.Reader, size int64, contentType string) error

	// Read opens key for reading. The caller closes it.
	Read(ctx context.Context, key string) (io.ReadCloser, error)

	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error

	Exists(ctx context.Context, key string) (bool, error)

	// GetURL returns a URL clients can fetch the content from.
	GetURL(ctx context.Context, key string, expires time.Duration) (string, error)

	// GetUploadURL returns a presigned PUT URL, or ErrPresignUnsupported.
	GetUploadURL(ctx context.Context, key, contentType string, expires time.Duration) (string, error)

	// TagObject sets a tag that bucket lifecycle rules can act on.
	TagObject(ctx context.Context, key, tagKey, tagValue string) error
}

// Config selects and configures a storage driver.
type Config struct {
	Driver string      `mapstructure:"driver"` // "local" or "s3"
	Local  LocalConfig `mapstructure:"local"`
	S3     S3Config    `mapstructure:"s3"`
}

// New creates the configured storage driver.
func New(ctx context.Context, cfg Config) (Storage, error) {
	switch cfg.Driver {
	case "s3":
		return NewS3Storage(ctx, cfg.S3)
	case "local", "":
		return NewLocalStorage(cfg.Local)
	default:
		return nil, fmt.Errorf("unsupported storage driver: %s", cfg.Driver)
	}
}
