package validate

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/mikeyg42/eventcam/internal/config"
)

func validConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.NewDefaultConfig()
	cfg.Recording.Dir = filepath.Join(t.TempDir(), "segments")
	return cfg
}

func TestEnvironmentAcceptsDefaults(t *testing.T) {
	cfg := validConfig(t)
	if err := Environment(cfg, false); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if info, err := os.Stat(cfg.Recording.Dir); err != nil || !info.IsDir() {
		t.Fatalf("recording dir should have been created: %v", err)
	}
}

func TestEnvironmentCollectsAllErrors(t *testing.T) {
	cfg := validConfig(t)
	cfg.Recording.Codec = "X-D!"
	cfg.Recording.Prefix = "a/b"
	cfg.Camera.MaskPath = filepath.Join(t.TempDir(), "missing.png")
	cfg.Feed.Addr = "localhost:99999"

	err := Environment(cfg, false)
	if err == nil {
		t.Fatal("expected error")
	}
	for _, part := range []string{"recording.codec", "recording.prefix", "camera.mask", "feed.addr"} {
		if !strings.Contains(err.Error(), part) {
			t.Errorf("expected %q in %v", part, err)
		}
	}
}

func TestEnvironmentChecks(t *testing.T) {
	testCases := []struct {
		name    string
		mutate  func(cfg *config.Config, dir string)
		errPart string
	}{
		{"camera name control chars", func(cfg *config.Config, dir string) { cfg.Camera.Name = "porch\x07" }, "camera.name"},
		{"mask is directory", func(cfg *config.Config, dir string) { cfg.Camera.MaskPath = dir }, "is a directory"},
		{"feed addr without port", func(cfg *config.Config, dir string) { cfg.Feed.Addr = "localhost" }, "feed.addr must be host:port"},
		{"minio host", func(cfg *config.Config, dir string) {
			cfg.Storage.Type = "minio"
			cfg.Storage.MinIO.Endpoint = "bad_host:9000"
		}, "invalid host"},
		{"sqlite dir", func(cfg *config.Config, dir string) {
			cfg.Metadata.Driver = "sqlite"
			cfg.Metadata.DSN = filepath.Join(dir, "nope", "events.db")
		}, "metadata.dsn"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := validConfig(t)
			tc.mutate(cfg, t.TempDir())
			err := Environment(cfg, false)
			if err == nil || !strings.Contains(err.Error(), tc.errPart) {
				t.Fatalf("expected error containing %q, got %v", tc.errPart, err)
			}
		})
	}
}

func TestEnvironmentAcceptsReachableSettings(t *testing.T) {
	cfg := validConfig(t)
	dir := t.TempDir()
	cfg.Storage.Type = "local"
	cfg.Storage.Local.BasePath = filepath.Join(dir, "archive")
	cfg.Metadata.Driver = "sqlite"
	cfg.Metadata.DSN = filepath.Join(dir, "events.db")
	cfg.Feed.Addr = ":8080"

	if err := Environment(cfg, false); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestEnvironmentMaskTemplateMode(t *testing.T) {
	cfg := validConfig(t)
	cfg.Recording.Codec = "bad codec"
	cfg.Camera.MaskPath = filepath.Join(t.TempDir(), "mask.png")

	// only the template destination matters when generating a mask
	if err := Environment(cfg, true); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	cfg.Camera.MaskPath = filepath.Join(t.TempDir(), "missing", "mask.png")
	if err := Environment(cfg, true); err == nil {
		t.Fatal("expected error for missing template directory")
	}

	painted := filepath.Join(t.TempDir(), "mask.png")
	if err := os.WriteFile(painted, []byte("painted"), 0o644); err != nil {
		t.Fatalf("write mask: %v", err)
	}
	cfg.Camera.MaskPath = painted
	err := Environment(cfg, true)
	if err == nil || !strings.Contains(err.Error(), "already exists") {
		t.Fatalf("expected refusal to overwrite the mask, got %v", err)
	}
}

func TestIsValidHostname(t *testing.T) {
	testCases := map[string]bool{
		"minio":             true,
		"minio.example.com": true,
		"-bad.example":      false,
		"under_score":       false,
		"":                  false,
	}
	for host, want := range testCases {
		if got := isValidHostname(host); got != want {
			t.Errorf("%q: expected %v, got %v", host, want, got)
		}
	}
}
