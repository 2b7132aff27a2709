// Package config holds the application configuration. Values come from
// NewDefaultConfig, are overlaid by an optional YAML file and finally by
// command line flags.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/mikeyg42/eventcam/internal/event"
	"github.com/mikeyg42/eventcam/internal/motion"
	"github.com/mikeyg42/eventcam/internal/recorder/recorderlog"
)

// Config holds all application configuration
type Config struct {
	Camera    CameraConfig       `yaml:"camera" json:"camera"`
	Motion    motion.Config      `yaml:"motion" json:"motion"`
	Recording RecordingConfig    `yaml:"recording" json:"recording"`
	Storage   StorageConfig      `yaml:"storage" json:"storage"`
	Metadata  MetadataConfig     `yaml:"metadata" json:"metadata"`
	Feed      FeedConfig         `yaml:"feed" json:"feed"`
	Log       recorderlog.Config `yaml:"log" json:"log"`
}

// CameraConfig describes the frame source and the per-frame decorations.
type CameraConfig struct {
	// Input is a device index ("0") or a file path / stream URL. Empty
	// opens device 0.
	Input       string `yaml:"input" json:"input"`
	OpenRetries int    `yaml:"open_retries" json:"open_retries"`

	Name      string `yaml:"name" json:"name"`
	Timestamp bool   `yaml:"timestamp" json:"timestamp"`
	MaskPath  string `yaml:"mask" json:"mask"`

	// DebugStage 0 disables the windows; 1-4 picks the debug image.
	DebugStage int `yaml:"debug_stage" json:"debug_stage"`
	// WaitKey is how long the viewer waits for a key press.
	WaitKey time.Duration `yaml:"wait_key" json:"wait_key"`
}

// DefaultMaskTemplate is where -g writes when no mask path is configured.
const DefaultMaskTemplate = "mask.png"

// TemplatePath returns the file a mask template is written to.
func (c CameraConfig) TemplatePath() string {
	if c.MaskPath == "" {
		return DefaultMaskTemplate
	}
	return c.MaskPath
}

// RecordingConfig controls where segments go and when they end.
type RecordingConfig struct {
	Dir       string `yaml:"dir" json:"dir"`
	Prefix    string `yaml:"prefix" json:"prefix"`
	Extension string `yaml:"extension" json:"extension"`
	Codec     string `yaml:"codec" json:"codec"`

	event.Config `yaml:",inline" json:"event"`
}

// StorageConfig selects where finished segments are uploaded.
type StorageConfig struct {
	Type  string      `yaml:"type" json:"type"` // none, local, minio
	MinIO MinIOConfig `yaml:"minio" json:"minio"`
	Local LocalConfig `yaml:"local" json:"local"`

	UploadWorkers     int           `yaml:"upload_workers" json:"upload_workers"`
	UploadQueue       int           `yaml:"upload_queue" json:"upload_queue"`
	UploadRetries     int           `yaml:"upload_retries" json:"upload_retries"`
	UploadTimeout     time.Duration `yaml:"upload_timeout" json:"upload_timeout"`
	DeleteAfterUpload bool          `yaml:"delete_after_upload" json:"delete_after_upload"`
}

// MinIOConfig contains MinIO-specific configuration
type MinIOConfig struct {
	Endpoint        string        `yaml:"endpoint" json:"endpoint"`
	AccessKeyID     string        `yaml:"access_key_id" json:"access_key_id"`
	SecretAccessKey string        `yaml:"secret_access_key" json:"secret_access_key"`
	UseSSL          bool          `yaml:"use_ssl" json:"use_ssl"`
	Bucket          string        `yaml:"bucket" json:"bucket"`
	Region          string        `yaml:"region" json:"region"`
	Prefix          string        `yaml:"prefix" json:"prefix"`
	MaxUploads      int           `yaml:"max_uploads" json:"max_uploads"`
	ConnectTimeout  time.Duration `yaml:"connect_timeout" json:"connect_timeout"`
	PartSize        int64         `yaml:"part_size_mb" json:"part_size_mb"`
}

// LocalConfig contains local storage configuration
type LocalConfig struct {
	BasePath string `yaml:"base_path" json:"base_path"`
	// UseDateHierarchy adds a YYYY/MM/DD level under the camera directory.
	// MinIO keys always carry it.
	UseDateHierarchy bool `yaml:"use_date_hierarchy" json:"use_date_hierarchy"`
}

// MetadataConfig selects the segment database. Driver "" disables it.
type MetadataConfig struct {
	Driver string `yaml:"driver" json:"driver"` // sqlite, postgres
	// DSN is a file path for sqlite and a connection URL for postgres. For
	// postgres it may be left empty and built from the fields below.
	DSN string `yaml:"dsn" json:"dsn"`

	Host     string `yaml:"host" json:"host"`
	Port     int    `yaml:"port" json:"port"`
	Database string `yaml:"database" json:"database"`
	Username string `yaml:"username" json:"username"`
	Password string `yaml:"password" json:"password"`
	SSLMode  string `yaml:"ssl_mode" json:"ssl_mode"`

	MaxConnections  int           `yaml:"max_connections" json:"max_connections"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" json:"conn_max_lifetime"`
}

// FeedConfig configures the websocket event feed. Empty Addr disables it.
type FeedConfig struct {
	Addr string `yaml:"addr" json:"addr"`
	Path string `yaml:"path" json:"path"`

	// Per-IP connection budget; zero ConnectRate disables limiting
	ConnectRate   int           `yaml:"connect_rate" json:"connect_rate"`
	ConnectWindow time.Duration `yaml:"connect_window" json:"connect_window"`
}

// NewDefaultConfig returns a Config with default values
func NewDefaultConfig() *Config {
	return &Config{
		Camera: CameraConfig{
			OpenRetries: 3,
			WaitKey:     133 * time.Millisecond,
		},
		Motion: motion.DefaultConfig(),
		Recording: RecordingConfig{
			Dir:       ".",
			Prefix:    event.DefaultPrefix,
			Extension: event.DefaultExtension,
			Codec:     "XVID",
			Config:    event.DefaultConfig(),
		},
		Storage: StorageConfig{
			Type: "none",
			MinIO: MinIOConfig{
				Endpoint:       "localhost:9000",
				Bucket:         "events",
				Region:         "us-east-1",
				MaxUploads:     4,
				ConnectTimeout: 30 * time.Second,
				PartSize:       16,
			},
			Local: LocalConfig{
				BasePath:         "archive",
				UseDateHierarchy: true,
			},
			UploadWorkers: 2,
			UploadQueue:   32,
			UploadRetries: 3,
			UploadTimeout: 5 * time.Minute,
		},
		Metadata: MetadataConfig{
			Host:            "localhost",
			Port:            5432,
			Database:        "eventcam",
			SSLMode:         "disable",
			MaxConnections:  10,
			ConnMaxLifetime: 5 * time.Minute,
		},
		Feed: FeedConfig{
			Path:          "/ws/events",
			ConnectRate:   10,
			ConnectWindow: time.Minute,
		},
		Log: recorderlog.DefaultConfig(),
	}
}

// Load reads a YAML file on top of the defaults. Unknown keys are an error.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes YAML on top of the defaults and validates the result.
func Parse(data []byte) (*Config, error) {
	cfg := NewDefaultConfig()

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	if err := c.Motion.Validate(); err != nil {
		return err
	}
	if err := c.Recording.Config.Validate(); err != nil {
		return err
	}
	if c.Camera.OpenRetries < 0 {
		return fmt.Errorf("camera.open_retries must not be negative, got %d", c.Camera.OpenRetries)
	}
	if c.Camera.DebugStage < 0 || c.Camera.DebugStage > 4 {
		return fmt.Errorf("camera.debug_stage must be within 0-4, got %d", c.Camera.DebugStage)
	}
	if c.Recording.Dir == "" {
		return fmt.Errorf("recording.dir is required")
	}
	if len(c.Recording.Codec) != 4 {
		return fmt.Errorf("recording.codec must be a four character code, got %q", c.Recording.Codec)
	}

	switch strings.ToLower(c.Storage.Type) {
	case "", "none":
	case "local":
		if c.Storage.Local.BasePath == "" {
			return fmt.Errorf("storage.local.base_path is required when using local storage")
		}
	case "minio":
		if c.Storage.MinIO.Endpoint == "" {
			return fmt.Errorf("storage.minio.endpoint is required when using MinIO")
		}
		if c.Storage.MinIO.Bucket == "" {
			return fmt.Errorf("storage.minio.bucket is required when using MinIO")
		}
		if c.Storage.MinIO.PartSize < 0 {
			return fmt.Errorf("storage.minio.part_size_mb must not be negative, got %d", c.Storage.MinIO.PartSize)
		}
	default:
		return fmt.Errorf("unknown storage.type %q", c.Storage.Type)
	}
	if c.UploadsEnabled() {
		if c.Storage.UploadWorkers <= 0 {
			return fmt.Errorf("storage.upload_workers must be positive")
		}
		if c.Storage.UploadQueue <= 0 {
			return fmt.Errorf("storage.upload_queue must be positive")
		}
		if c.Storage.UploadRetries < 0 {
			return fmt.Errorf("storage.upload_retries must not be negative")
		}
	}

	switch strings.ToLower(c.Metadata.Driver) {
	case "":
	case "sqlite":
		if c.Metadata.DSN == "" {
			return fmt.Errorf("metadata.dsn is required for sqlite")
		}
	case "postgres":
		if c.Metadata.DSN == "" && (c.Metadata.Host == "" || c.Metadata.Database == "") {
			return fmt.Errorf("metadata.host and metadata.database are required for postgres")
		}
	default:
		return fmt.Errorf("unknown metadata.driver %q", c.Metadata.Driver)
	}

	if c.Feed.Addr != "" && !strings.HasPrefix(c.Feed.Path, "/") {
		return fmt.Errorf("feed.path must start with '/', got %q", c.Feed.Path)
	}
	if c.Feed.ConnectRate < 0 {
		return fmt.Errorf("feed.connect_rate must not be negative, got %d", c.Feed.ConnectRate)
	}
	if c.Feed.ConnectRate > 0 && c.Feed.ConnectWindow <= 0 {
		return fmt.Errorf("feed.connect_window must be positive when connect_rate is set")
	}

	if _, err := recorderlog.ParseLevel(c.Log.Level); err != nil {
		return err
	}
	return nil
}

// UploadsEnabled reports whether finished segments are shipped anywhere.
func (c *Config) UploadsEnabled() bool {
	t := strings.ToLower(c.Storage.Type)
	return t != "" && t != "none"
}
