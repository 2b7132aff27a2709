// Package storage ships finished event segments to an object store and keeps
// a metadata row per segment.
package storage

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
)

// ObjectStore is where finished segments end up.
type ObjectStore interface {
	PutFile(ctx context.Context, key, filePath string, opts ...PutOption) error
	HealthCheck(ctx context.Context) error
}

// PutOption configures PutFile.
type PutOption interface {
	applyPut(*putOptions)
}

type putOptions struct {
	ContentType string
	Metadata    map[string]string
}

type metadataOption map[string]string

func (o metadataOption) applyPut(opts *putOptions) {
	if opts.Metadata == nil {
		opts.Metadata = make(map[string]string, len(o))
	}
	for k, v := range o {
		opts.Metadata[k] = v
	}
}

// WithMetadata attaches user metadata to the object.
func WithMetadata(metadata map[string]string) PutOption {
	return metadataOption(metadata)
}

func resolvePutOptions(filePath string, opts []PutOption) *putOptions {
	options := &putOptions{ContentType: detectContentType(filePath)}
	for _, opt := range opts {
		opt.applyPut(options)
	}
	return options
}

// StorageError represents a storage operation error
type StorageError struct {
	Op         string
	Key        string
	Err        error
	StatusCode int
	Retryable  bool
}

func (e *StorageError) Error() string {
	if e.Key != "" {
		return e.Op + " " + e.Key + ": " + e.Err.Error()
	}
	return e.Op + ": " + e.Err.Error()
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// isRetryableStatus reports whether a request that failed with code may
// succeed when repeated. Client errors other than timeouts and throttling
// are final.
func isRetryableStatus(code int) bool {
	switch {
	case code == 408 || code == 429:
		return true
	case code >= 400 && code < 500:
		return false
	default:
		return true
	}
}

// IsAccessDenied returns true if the error indicates access was denied
func IsAccessDenied(err error) bool {
	var serr *StorageError
	if errors.As(err, &serr) {
		return serr.StatusCode == 403
	}
	return false
}

// detectContentType attempts to detect content type from file extension
func detectContentType(filename string) string {
	ext := strings.ToLower(filepath.Ext(filename))
	switch ext {
	case ".mkv":
		return "video/x-matroska"
	case ".webm":
		return "video/webm"
	case ".mp4":
		return "video/mp4"
	case ".avi":
		return "video/x-msvideo"
	case ".mov":
		return "video/quicktime"
	case ".png":
		return "image/png"
	default:
		return "application/octet-stream"
	}
}
