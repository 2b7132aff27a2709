package main

import (
	"bytes"
	"strings"
	"testing"

	"github.com/mikeyg42/eventcam/internal/config"
	"github.com/mikeyg42/eventcam/internal/secrets"
)

func TestFlagsOverrideConfig(t *testing.T) {
	opts, err := parseFlags([]string{"-input", "2", "-o", "porch", "-m", "roi.png", "-d", "3", "-name", "Porch", "-ts", "-events-addr", ":8080"})
	if err != nil {
		t.Fatalf("parseFlags failed: %v", err)
	}

	cfg := config.NewDefaultConfig()
	cfg.Camera.Input = "rtsp://from-file"
	cfg.Log.Level = "warn"
	opts.apply(cfg)

	if cfg.Camera.Input != "2" || cfg.Recording.Prefix != "porch" || cfg.Camera.MaskPath != "roi.png" {
		t.Errorf("flags not applied: %+v %+v", cfg.Camera, cfg.Recording)
	}
	if cfg.Camera.DebugStage != 3 || cfg.Camera.Name != "Porch" || !cfg.Camera.Timestamp {
		t.Errorf("flags not applied: %+v", cfg.Camera)
	}
	if cfg.Feed.Addr != ":8080" {
		t.Errorf("expected feed addr :8080, got %q", cfg.Feed.Addr)
	}
	// flags that were not given leave the file values alone
	if cfg.Log.Level != "warn" {
		t.Errorf("log level should come from the config, got %q", cfg.Log.Level)
	}
}

func TestFlagAliases(t *testing.T) {
	short, err := parseFlags([]string{"-i", "clip.avi", "-m", "a.png"})
	if err != nil {
		t.Fatalf("parseFlags failed: %v", err)
	}
	long, err := parseFlags([]string{"-input", "clip.avi", "-mask", "a.png"})
	if err != nil {
		t.Fatalf("parseFlags failed: %v", err)
	}

	a, b := config.NewDefaultConfig(), config.NewDefaultConfig()
	short.apply(a)
	long.apply(b)
	if a.Camera.Input != b.Camera.Input || a.Camera.MaskPath != b.Camera.MaskPath {
		t.Fatalf("aliases disagree: %+v vs %+v", a.Camera, b.Camera)
	}
}

func TestFlagsRejectStrayArguments(t *testing.T) {
	if _, err := parseFlags([]string{"-g", "extra"}); err == nil {
		t.Fatal("expected error for positional arguments")
	}
}

func TestGenerateMaskFlag(t *testing.T) {
	opts, err := parseFlags([]string{"-g"})
	if err != nil {
		t.Fatalf("parseFlags failed: %v", err)
	}
	if !opts.genMask {
		t.Fatal("expected -g to request a mask template")
	}
}

func TestSecretTool(t *testing.T) {
	var out bytes.Buffer
	opts, err := parseFlags([]string{"-gen-key"})
	if err != nil {
		t.Fatalf("parseFlags failed: %v", err)
	}
	if err := runSecretTool(opts, &out); err != nil {
		t.Fatalf("gen-key failed: %v", err)
	}
	key := strings.TrimSpace(out.String())

	t.Setenv(secrets.MasterKeyEnv, key)
	opts, err = parseFlags([]string{"-seal", "minio-secret"})
	if err != nil {
		t.Fatalf("parseFlags failed: %v", err)
	}
	out.Reset()
	if err := runSecretTool(opts, &out); err != nil {
		t.Fatalf("seal failed: %v", err)
	}
	plain, err := secrets.Open(strings.TrimSpace(out.String()), key)
	if err != nil || plain != "minio-secret" {
		t.Fatalf("sealed output does not open: %q, %v", plain, err)
	}

	t.Setenv(secrets.MasterKeyEnv, "")
	if err := runSecretTool(opts, &out); err == nil {
		t.Fatal("expected error without a master key")
	}
}
