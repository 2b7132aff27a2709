package config

import (
	"fmt"

	"github.com/mikeyg42/eventcam/internal/secrets"
)

// OpenSecrets replaces every sealed credential with its plaintext. Plain
// values are left alone, so masterKey may be empty when nothing is sealed.
func (c *Config) OpenSecrets(masterKey string) error {
	fields := []struct {
		name  string
		value *string
	}{
		{"storage.minio.access_key_id", &c.Storage.MinIO.AccessKeyID},
		{"storage.minio.secret_access_key", &c.Storage.MinIO.SecretAccessKey},
		{"metadata.dsn", &c.Metadata.DSN},
		{"metadata.password", &c.Metadata.Password},
	}
	for _, f := range fields {
		plain, err := secrets.Open(*f.value, masterKey)
		if err != nil {
			return fmt.Errorf("%s: %w", f.name, err)
		}
		*f.value = plain
	}
	return nil
}
