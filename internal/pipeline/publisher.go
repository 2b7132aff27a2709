package pipeline

import (
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mikeyg42/eventcam/internal/feed"
	"github.com/mikeyg42/eventcam/internal/recorder"
	"github.com/mikeyg42/eventcam/internal/recorder/storage"
)

// Broadcaster receives segment notifications, e.g. feed.Hub.
type Broadcaster interface {
	Broadcast(msg feed.Message)
}

// Archiver receives finished segments, e.g. storage.Uploader.
type Archiver interface {
	Enqueue(rec *storage.SegmentRecord) bool
}

// Publisher tells the feed and the archive about segment boundaries. It is
// the recorder's Sink. Both targets are optional.
type Publisher struct {
	camera  string
	session string
	feed    Broadcaster
	archive Archiver
	logger  *zap.Logger

	finished atomic.Int64
}

// NewPublisher creates a publisher for one run. Every run gets a session id
// so segment numbers, which restart at 1, stay unique in the archive.
func NewPublisher(camera string, feed Broadcaster, archive Archiver, logger *zap.Logger) *Publisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Publisher{
		camera:  camera,
		session: uuid.NewString(),
		feed:    feed,
		archive: archive,
		logger:  logger.Named("publisher"),
	}
}

// Session returns the run's session id.
func (p *Publisher) Session() string { return p.session }

// Finished returns how many segments were published.
func (p *Publisher) Finished() int64 { return p.finished.Load() }

// SegmentStarted announces a new segment.
func (p *Publisher) SegmentStarted(id int, path string, at time.Time) {
	if p.feed == nil {
		return
	}
	p.feed.Broadcast(feed.Message{
		Type:      feed.TypeSegmentStart,
		Camera:    p.camera,
		Session:   p.session,
		SegmentID: id,
		File:      filepath.Base(path),
		Time:      at,
	})
}

// SegmentFinished implements recorder.Sink.
func (p *Publisher) SegmentFinished(seg recorder.Segment) {
	p.finished.Add(1)
	p.logger.Info("Segment finished",
		zap.Int("segment_id", seg.ID),
		zap.String("file", seg.Path),
		zap.Int64("frames", seg.Frames),
		zap.Duration("duration", seg.Duration()))

	if p.feed != nil {
		p.feed.Broadcast(feed.Message{
			Type:      feed.TypeSegmentStop,
			Camera:    p.camera,
			Session:   p.session,
			SegmentID: seg.ID,
			File:      filepath.Base(seg.Path),
			Frames:    seg.Frames,
			Time:      seg.EndedAt,
		})
	}

	if p.archive != nil {
		p.archive.Enqueue(&storage.SegmentRecord{
			ID:        uuid.NewString(),
			SessionID: p.session,
			Number:    seg.ID,
			Camera:    p.camera,
			LocalPath: seg.Path,
			Frames:    seg.Frames,
			StartedAt: seg.StartedAt,
			EndedAt:   seg.EndedAt,
		})
	}
}
