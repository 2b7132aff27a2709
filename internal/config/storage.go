package config

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/mikeyg42/eventcam/internal/recorder/storage"
)

// MinIOStorageConfig maps the storage section to the storage package type.
func MinIOStorageConfig(cfg *Config) storage.MinIOConfig {
	m := cfg.Storage.MinIO
	return storage.MinIOConfig{
		Endpoint:        m.Endpoint,
		AccessKeyID:     m.AccessKeyID,
		SecretAccessKey: m.SecretAccessKey,
		UseSSL:          m.UseSSL,
		Bucket:          m.Bucket,
		Region:          m.Region,
		Prefix:          m.Prefix,
		MaxUploads:      m.MaxUploads,
		ConnectTimeout:  m.ConnectTimeout,
		PartSize:        uint64(max(m.PartSize, 0)) * 1024 * 1024, // MB to bytes
	}
}

// UploaderConfig maps the upload settings to the storage package type.
func UploaderConfig(cfg *Config) storage.UploaderConfig {
	return storage.UploaderConfig{
		Workers:           cfg.Storage.UploadWorkers,
		QueueSize:         cfg.Storage.UploadQueue,
		MaxRetries:        cfg.Storage.UploadRetries,
		DateKeys:          !strings.EqualFold(cfg.Storage.Type, "local") || cfg.Storage.Local.UseDateHierarchy,
		Timeout:           cfg.Storage.UploadTimeout,
		DeleteAfterUpload: cfg.Storage.DeleteAfterUpload,
	}
}

// MetadataStoreConfig maps the metadata section to the storage package type.
func MetadataStoreConfig(cfg *Config) storage.SQLConfig {
	return storage.SQLConfig{
		Driver:          strings.ToLower(cfg.Metadata.Driver),
		DSN:             DatabaseDSN(cfg),
		MaxConnections:  cfg.Metadata.MaxConnections,
		ConnMaxLifetime: cfg.Metadata.ConnMaxLifetime,
	}
}

// DatabaseDSN returns the metadata connection string. An explicit dsn wins;
// for postgres one is built from the individual fields.
func DatabaseDSN(cfg *Config) string {
	m := cfg.Metadata
	if m.DSN != "" || !strings.EqualFold(m.Driver, "postgres") {
		return m.DSN
	}
	u := url.URL{
		Scheme:   "postgres",
		Host:     fmt.Sprintf("%s:%d", m.Host, m.Port),
		Path:     "/" + m.Database,
		RawQuery: "sslmode=" + url.QueryEscape(m.SSLMode),
	}
	if m.Username != "" {
		u.User = url.UserPassword(m.Username, m.Password)
	}
	return u.String()
}
