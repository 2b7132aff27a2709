// Package validate checks a configuration against the machine it is about to
// run on: directories, files and addresses. Syntax checks live in
// config.Validate.
package validate

import (
	"fmt"
	"net"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/mikeyg42/eventcam/internal/config"
)

// Validator collects every problem instead of stopping at the first.
type Validator struct{ errors []string }

func (v *Validator) AddError(format string, args ...interface{}) {
	v.errors = append(v.errors, fmt.Sprintf(format, args...))
}
func (v *Validator) HasErrors() bool  { return len(v.errors) > 0 }
func (v *Validator) Errors() []string { return v.errors }

var (
	hostnameLabel = regexp.MustCompile(`^[a-zA-Z0-9]([a-zA-Z0-9\-]{0,61}[a-zA-Z0-9])?$`)
	fourCC        = regexp.MustCompile(`^[A-Za-z0-9 ]{4}$`)
)

// Environment runs the preflight checks. With generateMask only the checks
// needed to write a mask template apply.
func Environment(cfg *config.Config, generateMask bool) error {
	v := &Validator{}

	if generateMask {
		validateTemplateTarget(v, cfg.Camera.TemplatePath())
	} else {
		validateRecording(v, cfg)
		validateCamera(v, cfg)
		validateStorage(v, cfg)
		validateMetadata(v, cfg)
		validateFeed(v, cfg)
	}

	if v.HasErrors() {
		return fmt.Errorf("environment check failed:\n%s", strings.Join(v.Errors(), "\n"))
	}
	return nil
}

func validateRecording(v *Validator, cfg *config.Config) {
	if !fourCC.MatchString(cfg.Recording.Codec) {
		v.AddError("recording.codec %q is not a FourCC code", cfg.Recording.Codec)
	}
	if strings.ContainsAny(cfg.Recording.Prefix, `/\`) {
		v.AddError("recording.prefix %q must not contain path separators", cfg.Recording.Prefix)
	}
	checkWritableDir(v, "recording.dir", cfg.Recording.Dir)
}

func validateCamera(v *Validator, cfg *config.Config) {
	if strings.ContainsFunc(cfg.Camera.Name, func(r rune) bool { return r < 0x20 || r == 0x7f }) {
		v.AddError("camera.name contains control characters")
	}
	if cfg.Camera.MaskPath == "" {
		return
	}
	info, err := os.Stat(cfg.Camera.MaskPath)
	if err != nil {
		v.AddError("camera.mask %q: %v", cfg.Camera.MaskPath, err)
		return
	}
	if info.IsDir() {
		v.AddError("camera.mask %q is a directory", cfg.Camera.MaskPath)
	}
}

// validateTemplateTarget refuses to replace an existing file, which is
// usually the mask painted from an earlier template.
func validateTemplateTarget(v *Validator, path string) {
	if _, err := os.Stat(path); err == nil {
		v.AddError("camera.mask %q already exists; move it away or pass -m with a new file", path)
		return
	}
	checkParentDir(v, "camera.mask", path)
}

func validateStorage(v *Validator, cfg *config.Config) {
	switch strings.ToLower(cfg.Storage.Type) {
	case "local":
		checkWritableDir(v, "storage.local.base_path", cfg.Storage.Local.BasePath)
	case "minio":
		host, port, err := net.SplitHostPort(cfg.Storage.MinIO.Endpoint)
		if err != nil {
			host = cfg.Storage.MinIO.Endpoint
		} else {
			checkPort(v, "storage.minio.endpoint", port)
		}
		if net.ParseIP(host) == nil && !isValidHostname(host) {
			v.AddError("storage.minio.endpoint has an invalid host: %s", host)
		}
	}
}

func validateMetadata(v *Validator, cfg *config.Config) {
	if !strings.EqualFold(cfg.Metadata.Driver, "sqlite") {
		return
	}
	dsn := cfg.Metadata.DSN
	if dsn == ":memory:" || strings.HasPrefix(dsn, "file:") {
		return
	}
	checkParentDir(v, "metadata.dsn", dsn)
}

func validateFeed(v *Validator, cfg *config.Config) {
	if cfg.Feed.Addr == "" {
		return
	}
	host, port, err := net.SplitHostPort(cfg.Feed.Addr)
	if err != nil {
		v.AddError("feed.addr must be host:port: %v", err)
		return
	}
	if host != "" && host != "localhost" {
		if ip := net.ParseIP(host); ip == nil && !isValidHostname(host) {
			v.AddError("invalid hostname in feed.addr: %s", host)
		}
	}
	checkPort(v, "feed.addr", port)
}

// -----------------------------------------------------------------------------
// helpers
// -----------------------------------------------------------------------------

func checkPort(v *Validator, field, s string) {
	port, err := strconv.Atoi(s)
	if err != nil || port < 0 || port > 65535 {
		v.AddError("invalid port in %s: %s", field, s)
	}
}

// checkWritableDir creates dir if needed and proves it is writable.
func checkWritableDir(v *Validator, field, dir string) {
	if !isValidDirectoryPath(dir) {
		v.AddError("%s is not a valid directory path: %q", field, dir)
		return
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		v.AddError("cannot create %s %q: %v", field, dir, err)
		return
	}
	f, err := os.CreateTemp(dir, ".eventcam-permcheck-*")
	if err != nil {
		v.AddError("%s %q is not writable: %v", field, dir, err)
		return
	}
	path := f.Name()
	_ = f.Close()
	_ = os.Remove(path)
}

func checkParentDir(v *Validator, field, path string) {
	dir := filepath.Dir(path)
	info, err := os.Stat(dir)
	if err != nil {
		v.AddError("%s: directory %q: %v", field, dir, err)
		return
	}
	if !info.IsDir() {
		v.AddError("%s: %q is not a directory", field, dir)
	}
}

func isValidHostname(hostname string) bool {
	if len(hostname) == 0 || len(hostname) > 253 {
		return false
	}
	for _, l := range strings.Split(hostname, ".") {
		if !hostnameLabel.MatchString(l) {
			return false
		}
	}
	return true
}

func isValidDirectoryPath(path string) bool {
	if path == "" {
		return false
	}
	return filepath.Clean(path) != "" && !strings.Contains(path, "\x00")
}
