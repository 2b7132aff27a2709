package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
)

// LocalStore implements ObjectStore on a directory tree, e.g. a NAS mount.
type LocalStore struct {
	basePath string
	logger   *zap.Logger
}

// NewLocalStore creates basePath if needed.
func NewLocalStore(basePath string) (*LocalStore, error) {
	if basePath == "" {
		return nil, fmt.Errorf("local store base path is required")
	}
	if err := os.MkdirAll(basePath, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create base path %s: %w", basePath, err)
	}
	return &LocalStore{
		basePath: basePath,
		logger:   zap.L().Named("local-store"),
	}, nil
}

func (s *LocalStore) path(key string) (string, error) {
	clean := filepath.Clean(filepath.FromSlash(key))
	if clean == "." || clean == ".." || filepath.IsAbs(clean) || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("invalid key %q", key)
	}
	return filepath.Join(s.basePath, clean), nil
}

// PutFile copies filePath to key. The copy is written to a temporary file
// and renamed so readers never see a partial object.
func (s *LocalStore) PutFile(ctx context.Context, key, filePath string, opts ...PutOption) error {
	dst, err := s.path(key)
	if err != nil {
		return &StorageError{Op: "put_file", Key: key, Err: err, StatusCode: 400}
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	src, err := os.Open(filePath)
	if err != nil {
		return &StorageError{Op: "put_file", Key: key, Err: err}
	}
	defer src.Close()

	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return &StorageError{Op: "put_file", Key: key, Err: err, Retryable: true}
	}

	tmp, err := os.CreateTemp(filepath.Dir(dst), ".upload-*")
	if err != nil {
		return &StorageError{Op: "put_file", Key: key, Err: err, Retryable: true}
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	n, err := io.Copy(tmp, src)
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return &StorageError{Op: "put_file", Key: key, Err: err, Retryable: true}
	}
	if err := os.Rename(tmpName, dst); err != nil {
		return &StorageError{Op: "put_file", Key: key, Err: err, Retryable: true}
	}

	s.logger.Debug("Object stored", zap.String("key", key), zap.Int64("size", n))
	return nil
}

// HealthCheck verifies the base path is a writable directory.
func (s *LocalStore) HealthCheck(ctx context.Context) error {
	f, err := os.CreateTemp(s.basePath, ".health-*")
	if err != nil {
		return &StorageError{Op: "health_check", Err: err}
	}
	name := f.Name()
	f.Close()
	return os.Remove(name)
}
