package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
)

// UploaderConfig sizes the upload worker pool.
type UploaderConfig struct {
	Workers   int
	QueueSize int
	// MaxRetries counts attempts after the first; 0 uploads once.
	MaxRetries   int
	RetryBackoff time.Duration
	// DateKeys puts a YYYY/MM/DD level into object keys.
	DateKeys bool
	// Timeout bounds one segment including retries.
	Timeout           time.Duration
	DeleteAfterUpload bool
}

// UploaderStats counts processed segments.
type UploaderStats struct {
	Uploaded uint64
	Failed   uint64
	Dropped  uint64
}

// Uploader records finished segments in the metadata store and ships them to
// the object store off the frame loop. Either store may be nil.
type Uploader struct {
	store  ObjectStore
	meta   MetadataStore
	config UploaderConfig
	logger *zap.Logger

	queue  chan *SegmentRecord
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu     sync.RWMutex
	closed bool

	uploaded atomic.Uint64
	failed   atomic.Uint64
	dropped  atomic.Uint64
}

// NewUploader starts the workers.
func NewUploader(store ObjectStore, meta MetadataStore, config UploaderConfig, logger *zap.Logger) *Uploader {
	if config.Workers <= 0 {
		config.Workers = 1
	}
	if config.QueueSize <= 0 {
		config.QueueSize = 16
	}
	if config.Timeout <= 0 {
		config.Timeout = 5 * time.Minute
	}
	if config.RetryBackoff <= 0 {
		config.RetryBackoff = 500 * time.Millisecond
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	ctx, cancel := context.WithCancel(context.Background())
	u := &Uploader{
		store:  store,
		meta:   meta,
		config: config,
		logger: logger.Named("uploader"),
		queue:  make(chan *SegmentRecord, config.QueueSize),
		ctx:    ctx,
		cancel: cancel,
	}

	for i := 0; i < config.Workers; i++ {
		u.wg.Add(1)
		go u.worker()
	}
	return u
}

// Enqueue hands a finished segment to the workers. It never blocks: when
// the queue is full the segment is left on disk and false is returned.
func (u *Uploader) Enqueue(rec *SegmentRecord) bool {
	u.mu.RLock()
	defer u.mu.RUnlock()
	if u.closed {
		return false
	}

	select {
	case u.queue <- rec:
		return true
	default:
		u.dropped.Add(1)
		u.logger.Warn("Upload queue full, segment left on disk",
			zap.String("path", rec.LocalPath),
			zap.Int("segment", rec.Number))
		return false
	}
}

// Close stops accepting segments and waits for the queue to drain. If ctx
// ends first the in-flight uploads are cancelled.
func (u *Uploader) Close(ctx context.Context) error {
	u.mu.Lock()
	if u.closed {
		u.mu.Unlock()
		return nil
	}
	u.closed = true
	close(u.queue)
	u.mu.Unlock()

	done := make(chan struct{})
	go func() {
		u.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		u.cancel()
		return nil
	case <-ctx.Done():
		u.cancel()
		<-done
		return ctx.Err()
	}
}

// Stats returns the running counters.
func (u *Uploader) Stats() UploaderStats {
	return UploaderStats{
		Uploaded: u.uploaded.Load(),
		Failed:   u.failed.Load(),
		Dropped:  u.dropped.Load(),
	}
}

func (u *Uploader) worker() {
	defer u.wg.Done()
	for rec := range u.queue {
		u.process(rec)
	}
}

func (u *Uploader) process(rec *SegmentRecord) {
	ctx, cancel := context.WithTimeout(u.ctx, u.config.Timeout)
	defer cancel()

	logger := u.logger.With(zap.String("id", rec.ID), zap.Int("segment", rec.Number))

	if info, err := os.Stat(rec.LocalPath); err == nil {
		rec.SizeBytes = info.Size()
	}
	if rec.Status == "" {
		rec.Status = StatusRecorded
	}

	// rows are only updated when this worker created them
	tracked := false
	if u.meta != nil {
		if err := u.meta.SaveSegment(ctx, rec); err != nil {
			logger.Error("Failed to save segment metadata", zap.Error(err))
		} else {
			tracked = true
		}
	}

	if u.store == nil {
		return
	}

	key := ObjectKey(rec, u.config.DateKeys)
	err := u.upload(ctx, key, rec)
	if err != nil {
		u.failed.Add(1)
		logger.Error("Segment upload failed", zap.String("key", key), zap.Error(err))
		if tracked {
			if merr := u.meta.MarkFailed(context.WithoutCancel(ctx), rec.ID, err.Error()); merr != nil {
				logger.Error("Failed to mark segment failed", zap.Error(merr))
			}
		}
		return
	}

	u.uploaded.Add(1)
	logger.Info("Segment uploaded", zap.String("key", key), zap.Int64("size", rec.SizeBytes))

	if tracked {
		if err := u.meta.MarkUploaded(ctx, rec.ID, key); err != nil {
			logger.Error("Failed to mark segment uploaded", zap.Error(err))
		}
	}
	if u.config.DeleteAfterUpload {
		if err := os.Remove(rec.LocalPath); err != nil {
			logger.Warn("Failed to remove local segment", zap.Error(err))
		}
	}
}

func (u *Uploader) upload(ctx context.Context, key string, rec *SegmentRecord) error {
	ebo := backoff.NewExponentialBackOff()
	ebo.InitialInterval = u.config.RetryBackoff
	ebo.Reset()
	bo := backoff.WithMaxRetries(ebo, uint64(max(u.config.MaxRetries, 0)))

	metadata := map[string]string{
		"session": rec.SessionID,
		"segment": fmt.Sprintf("%d", rec.Number),
		"frames":  fmt.Sprintf("%d", rec.Frames),
	}
	if rec.Camera != "" {
		metadata["camera"] = rec.Camera
	}

	op := func() error {
		err := u.store.PutFile(ctx, key, rec.LocalPath, WithMetadata(metadata))
		if err == nil {
			return nil
		}
		var serr *StorageError
		if IsAccessDenied(err) || (errors.As(err, &serr) && !serr.Retryable) {
			return backoff.Permanent(err)
		}
		return err
	}
	notify := func(err error, wait time.Duration) {
		u.logger.Warn("Retrying upload", zap.String("key", key), zap.Duration("wait", wait), zap.Error(err))
	}
	return backoff.RetryNotify(op, backoff.WithContext(bo, ctx), notify)
}

// ObjectKey places a segment under camera/[date/]session.
func ObjectKey(rec *SegmentRecord, dated bool) string {
	camera := rec.Camera
	if camera == "" {
		camera = "default"
	}
	if !dated {
		return path.Join(camera, rec.SessionID, filepath.Base(rec.LocalPath))
	}
	return path.Join(camera, rec.StartedAt.UTC().Format("2006/01/02"), rec.SessionID, filepath.Base(rec.LocalPath))
}
