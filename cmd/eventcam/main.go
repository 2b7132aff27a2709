package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sys/unix"

	"github.com/mikeyg42/eventcam/internal/capture"
	"github.com/mikeyg42/eventcam/internal/config"
	"github.com/mikeyg42/eventcam/internal/event"
	"github.com/mikeyg42/eventcam/internal/feed"
	"github.com/mikeyg42/eventcam/internal/motion"
	"github.com/mikeyg42/eventcam/internal/overlay"
	"github.com/mikeyg42/eventcam/internal/pipeline"
	"github.com/mikeyg42/eventcam/internal/recorder"
	"github.com/mikeyg42/eventcam/internal/recorder/recorderlog"
	"github.com/mikeyg42/eventcam/internal/recorder/storage"
	"github.com/mikeyg42/eventcam/internal/secrets"
	"github.com/mikeyg42/eventcam/internal/validate"
)

const (
	shutdownTimeout    = 30 * time.Second
	healthCheckTimeout = 10 * time.Second
)

// Application struct that holds all components
type Application struct {
	config *config.Config
	logger *zap.Logger

	source    *capture.Camera
	detector  *motion.Detector
	publisher *pipeline.Publisher
	runner    *pipeline.Runner
	viewer    *overlay.Viewer

	metadata storage.MetadataStore
	minio    *storage.MinIOStore
	uploader *storage.Uploader
	hub      *feed.Hub
	limiter  *feed.RateLimiter
	server   *http.Server
}

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, "eventcam:", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	opts, err := parseFlags(args)
	if err != nil {
		return err
	}
	if opts.help {
		return nil
	}
	if opts.genKey || opts.has("seal") {
		return runSecretTool(opts, os.Stdout)
	}

	cfg := config.NewDefaultConfig()
	if opts.configPath != "" {
		if cfg, err = config.Load(opts.configPath); err != nil {
			return err
		}
	}
	if err := cfg.OpenSecrets(os.Getenv(secrets.MasterKeyEnv)); err != nil {
		return err
	}
	opts.apply(cfg)
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if err := validate.Environment(cfg, opts.genMask); err != nil {
		return err
	}

	logger, restore, err := recorderlog.Install(cfg.Log)
	if err != nil {
		return err
	}
	defer restore()

	// a closed stream socket must not kill the process
	signal.Ignore(unix.SIGPIPE)
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, unix.SIGTERM)
	defer stop()

	app := &Application{config: cfg, logger: logger}
	defer app.Cleanup()

	if err := app.openSource(ctx); err != nil {
		return err
	}

	if opts.genMask {
		return app.writeMaskTemplate()
	}

	if err := app.Initialize(ctx); err != nil {
		return fmt.Errorf("failed to initialize application: %w", err)
	}
	return app.Run(ctx)
}

// runSecretTool handles -gen-key and -seal.
func runSecretTool(opts *cliOptions, out io.Writer) error {
	if opts.genKey {
		key, err := secrets.GenerateMasterKey()
		if err != nil {
			return err
		}
		fmt.Fprintln(out, key)
		return nil
	}
	key := os.Getenv(secrets.MasterKeyEnv)
	if key == "" {
		return fmt.Errorf("%s must be set to seal a value", secrets.MasterKeyEnv)
	}
	sealed, err := secrets.Seal(opts.seal, key)
	if err != nil {
		return err
	}
	fmt.Fprintln(out, sealed)
	return nil
}

func (app *Application) openSource(ctx context.Context) error {
	src, err := capture.Open(ctx, app.config.Camera.Input, capture.Options{
		Retries: app.config.Camera.OpenRetries,
		Logger:  app.logger,
	})
	if err != nil {
		return err
	}
	app.source = src
	return nil
}

func (app *Application) writeMaskTemplate() error {
	path := app.config.Camera.TemplatePath()
	if err := capture.SaveMaskTemplate(app.source, path); err != nil {
		app.logger.Error("Exception converting image to PNG format", zap.Error(err))
		return err
	}
	app.logger.Info("Saved template for ROI Mask image.", zap.String("file", path))
	return nil
}

// Initialize builds everything downstream of the frame source.
func (app *Application) Initialize(ctx context.Context) error {
	cfg := app.config

	detector, err := motion.NewDetector(cfg.Motion, app.logger)
	if err != nil {
		return err
	}
	app.detector = detector

	if cfg.Camera.MaskPath != "" {
		mask, err := capture.LoadMask(cfg.Camera.MaskPath, app.source.Size())
		if err != nil {
			return err
		}
		err = detector.SetROI(mask)
		mask.Close()
		if err != nil {
			return fmt.Errorf("apply roi mask: %w", err)
		}
		app.logger.Info("Loaded ROI mask", zap.String("file", cfg.Camera.MaskPath))
	}

	if err := app.initArchive(ctx); err != nil {
		return err
	}
	if err := app.initFeed(); err != nil {
		return err
	}

	var (
		bc      pipeline.Broadcaster
		archive pipeline.Archiver
	)
	if app.hub != nil {
		bc = app.hub
	}
	if app.uploader != nil {
		archive = app.uploader
	}
	app.publisher = pipeline.NewPublisher(cfg.Camera.Name, bc, archive, app.logger)

	rec, err := recorder.NewRecorder(recorder.Config{
		Dir:       cfg.Recording.Dir,
		Prefix:    cfg.Recording.Prefix,
		Extension: cfg.Recording.Extension,
		FPS:       app.source.FPS(),
		Size:      app.source.Size(),
	}, recorder.VideoWriterFactory(cfg.Recording.Codec), app.publisher, app.logger)
	if err != nil {
		return err
	}

	var display pipeline.Display
	if cfg.Camera.DebugStage > 0 {
		app.viewer = overlay.NewViewer(motion.Stage(cfg.Camera.DebugStage), cfg.Camera.WaitKey)
		display = app.viewer
	}

	app.runner = pipeline.NewRunner(pipeline.Config{
		CameraName:    cfg.Camera.Name,
		Timestamp:     cfg.Camera.Timestamp,
		DebugContours: cfg.Camera.DebugStage > 0,
	}, app.source, detector, event.NewMachine(cfg.Recording.Config), rec, app.publisher, display, app.logger)
	return nil
}

func (app *Application) initArchive(ctx context.Context) error {
	cfg := app.config

	if cfg.Metadata.Driver != "" {
		meta, err := storage.NewSQLStore(ctx, config.MetadataStoreConfig(cfg))
		if err != nil {
			return fmt.Errorf("failed to open metadata store: %w", err)
		}
		app.metadata = meta
	}

	var store storage.ObjectStore
	switch strings.ToLower(cfg.Storage.Type) {
	case "minio":
		s, err := storage.NewMinIOStore(ctx, config.MinIOStorageConfig(cfg))
		if err != nil {
			return fmt.Errorf("failed to connect to MinIO: %w", err)
		}
		app.minio = s
		store = s
	case "local":
		s, err := storage.NewLocalStore(cfg.Storage.Local.BasePath)
		if err != nil {
			return err
		}
		store = s
	}

	if store == nil && app.metadata == nil {
		return nil
	}

	checkCtx, cancel := context.WithTimeout(ctx, healthCheckTimeout)
	defer cancel()
	if app.metadata != nil {
		if err := app.metadata.HealthCheck(checkCtx); err != nil {
			return fmt.Errorf("metadata store health check failed: %w", err)
		}
	}
	if store != nil {
		if err := store.HealthCheck(checkCtx); err != nil {
			return fmt.Errorf("object store health check failed: %w", err)
		}
	}

	app.uploader = storage.NewUploader(store, app.metadata, config.UploaderConfig(cfg), app.logger)
	return nil
}

func (app *Application) initFeed() error {
	cfg := app.config.Feed
	if cfg.Addr == "" {
		return nil
	}

	app.hub = feed.NewHub(app.logger)
	var handler http.Handler = app.hub
	if cfg.ConnectRate > 0 {
		app.limiter = feed.NewRateLimiter(cfg.ConnectRate, cfg.ConnectWindow)
		handler = app.limiter.Middleware(handler)
	}
	mux := http.NewServeMux()
	mux.Handle(cfg.Path, handler)
	app.server = &http.Server{
		Addr:              cfg.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		app.logger.Info("Event feed listening", zap.String("addr", cfg.Addr), zap.String("path", cfg.Path))
		if err := app.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			app.logger.Error("Event feed server failed", zap.Error(err))
		}
	}()
	return nil
}

// Run processes frames until the input ends, the user quits or a signal
// arrives.
func (app *Application) Run(ctx context.Context) error {
	err := app.runner.Run(ctx)
	if errors.Is(err, context.Canceled) {
		app.logger.Info("Interrupted")
		err = nil
	}
	if err != nil {
		app.logger.Error("Exception", zap.Error(err))
	}
	return err
}

// Cleanup releases everything in reverse order of creation.
func (app *Application) Cleanup() {
	if app.viewer != nil {
		app.viewer.Close()
	}

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if app.uploader != nil {
		if err := app.uploader.Close(ctx); err != nil {
			app.logger.Warn("Uploads still pending at shutdown", zap.Error(err))
		}
		s := app.uploader.Stats()
		app.logger.Info("Uploader stopped",
			zap.Uint64("uploaded", s.Uploaded),
			zap.Uint64("failed", s.Failed),
			zap.Uint64("dropped", s.Dropped))
	}
	if app.minio != nil {
		s := app.minio.Stats()
		app.logger.Info("MinIO totals",
			zap.Uint64("uploads", s.TotalUploads),
			zap.Uint64("bytes", s.UploadBytes),
			zap.Uint64("errors", s.UploadErrors))
	}
	if app.hub != nil {
		app.hub.Close()
	}
	if app.server != nil {
		app.server.Shutdown(ctx)
	}
	if app.limiter != nil {
		app.limiter.Close()
	}
	if app.metadata != nil {
		app.metadata.Close()
	}
	if app.detector != nil {
		app.detector.Close()
	}
	if app.source != nil {
		app.source.Close()
	}
}
