package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// ErrInvalidKey is returned for keys that would resolve outside the base
// directory.
var ErrInvalidKey = errors.New("invalid object key")

// LocalConfig configures the filesystem driver.
type LocalConfig struct {
	BasePath string `mapstructure:"base_path"`
	// URLPrefix is where the HTTP server mounts BasePath, e.g. "/media".
	URLPrefix string `mapstructure:"url_prefix"`
}

// LocalStorage keeps objects as files under a base directory. The router
// serves that directory statically, so URLs are plain paths.
type LocalStorage struct {
	root      string
	urlPrefix string
}

func NewLocalStorage(cfg LocalConfig) (*LocalStorage, error) {
	root, err := filepath.Abs(cfg.BasePath)
	if err != nil {
		return nil, fmt.Errorf("resolve base path: %w", err)
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create base path: %w", err)
	}
	return &LocalStorage{root: root, urlPrefix: strings.TrimSuffix(cfg.URLPrefix, "/")}, nil
}

// BasePath returns the directory files are stored under.
func (s *LocalStorage) BasePath() string {
	return s.root
}

func (s *LocalStorage) resolve(key string) (string, error) {
	rel := filepath.Clean(filepath.FromSlash(strings.TrimPrefix(key, "/")))
	if rel == "." || !filepath.IsLocal(rel) {
		return "", fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	return filepath.Join(s.root, rel), nil
}

func missing(err error, key string) error {
	if errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	return err
}

// Write streams r into a temp file next to the target and renames it into
// place, so readers never see a partial avatar or upload.
func (s *LocalStorage) Write(_ context.Context, key string, r io.Reader, _ int64, _ string) error {
	path, err := s.resolve(key)
	if err != nil {
		return err
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, ".upload-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	_, copyErr := io.Copy(tmp, r)
	closeErr := tmp.Close()
	if err := errors.Join(copyErr, closeErr); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("write %s: %w", key, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("commit %s: %w", key, err)
	}
	return nil
}

func (s *LocalStorage) Read(_ context.Context, key string) (io.ReadCloser, error) {
	path, err := s.resolve(key)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, missing(err, key)
	}
	return f, nil
}

func (s *LocalStorage) Delete(_ context.Context, key string) error {
	path, err := s.resolve(key)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("delete %s: %w", key, err)
	}
	return nil
}

func (s *LocalStorage) Exists(_ context.Context, key string) (bool, error) {
	path, err := s.resolve(key)
	if err != nil {
		return false, err
	}
	info, err := os.Stat(path)
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return !info.IsDir(), nil
}

// GetURL returns the path the router serves key under. Local files never
// expire, so expires is ignored.
func (s *LocalStorage) GetURL(ctx context.Context, key string, _ time.Duration) (string, error) {
	ok, err := s.Exists(ctx, key)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	return s.urlPrefix + "/" + strings.TrimPrefix(key, "/"), nil
}

// GetUploadURL always fails; clients upload media through the API instead.
func (s *LocalStorage) GetUploadURL(context.Context, string, string, time.Duration) (string, error) {
	return "", ErrPresignUnsupported
}

// TagObject is a no-op. Lifecycle tagging only exists on S3.
func (s *LocalStorage) TagObject(context.Context, string, string, string) error { return nil }
