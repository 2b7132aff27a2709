// Package recorder turns recording events into segment files on disk.
package recorder

import (
	"errors"
	"fmt"
	"image"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"
	"gocv.io/x/gocv"

	"github.com/mikeyg42/eventcam/internal/event"
)

// FrameWriter appends frames to one segment file.
type FrameWriter interface {
	Write(frame gocv.Mat) error
	Close() error
}

// WriterFactory opens a new segment file.
type WriterFactory func(path string, fps float64, size image.Point) (FrameWriter, error)

// Segment describes one recorded event file.
type Segment struct {
	ID        int
	Path      string
	Frames    int64
	StartedAt time.Time
	EndedAt   time.Time
}

// Duration is the wall time between the first and the last frame.
func (s Segment) Duration() time.Duration {
	return s.EndedAt.Sub(s.StartedAt)
}

// Sink is told about every segment that was closed.
type Sink interface {
	SegmentFinished(seg Segment)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(seg Segment)

func (f SinkFunc) SegmentFinished(seg Segment) { f(seg) }

// Config names segment files and describes the stream written into them.
type Config struct {
	Dir       string
	Prefix    string
	Extension string
	FPS       float64
	Size      image.Point
}

// Recorder owns at most one open segment. It is driven from the frame loop
// and is not safe for concurrent use.
type Recorder struct {
	config  Config
	factory WriterFactory
	sink    Sink
	logger  *zap.Logger
	now     func() time.Time

	writer  FrameWriter
	current Segment
}

// NewRecorder creates the output directory. sink may be nil.
func NewRecorder(config Config, factory WriterFactory, sink Sink, logger *zap.Logger) (*Recorder, error) {
	if factory == nil {
		return nil, errors.New("writer factory is required")
	}
	if config.Dir == "" {
		config.Dir = "."
	}
	if err := os.MkdirAll(config.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create output directory %s: %w", config.Dir, err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Recorder{
		config:  config,
		factory: factory,
		sink:    sink,
		logger:  logger.Named("recorder"),
		now:     time.Now,
	}, nil
}

// Path returns the file a segment id is written to.
func (r *Recorder) Path(id int) string {
	return filepath.Join(r.config.Dir, event.SegmentName(r.config.Prefix, id, r.config.Extension))
}

// Recording reports whether a segment file is open.
func (r *Recorder) Recording() bool { return r.writer != nil }

// Current returns the open segment so far.
func (r *Recorder) Current() (Segment, bool) {
	return r.current, r.writer != nil
}

// Handle applies ev to the segment files. The frame of a Start event is the
// first frame of the new segment; the frame of a Stop event is not written.
// When the segment file cannot be opened the segment is skipped and its
// frames are dropped until the next Start.
func (r *Recorder) Handle(ev event.Event, frame gocv.Mat) error {
	switch ev.Kind {
	case event.Start:
		r.logger.Info("Motion Start", zap.Int("segment_id", ev.SegmentID))
		if r.writer != nil {
			r.finish()
		}
		if err := r.open(ev.SegmentID); err != nil {
			return err
		}
		return r.write(frame)
	case event.Continue:
		return r.write(frame)
	case event.Stop:
		r.logger.Info("MotionStop", zap.Int("segment_id", ev.SegmentID))
		r.finish()
	}
	return nil
}

func (r *Recorder) open(id int) error {
	path := r.Path(id)
	w, err := r.factory(path, r.config.FPS, r.config.Size)
	if err != nil {
		r.logger.Error("Cannot write to file",
			zap.String("file", path),
			zap.Float64("fps", r.config.FPS),
			zap.Int("width", r.config.Size.X),
			zap.Int("height", r.config.Size.Y),
			zap.Error(err))
		return fmt.Errorf("open segment %d: %w", id, err)
	}

	r.writer = w
	r.current = Segment{ID: id, Path: path, StartedAt: r.now()}
	r.logger.Info("Recording file",
		zap.String("file", path),
		zap.Float64("fps", r.config.FPS),
		zap.Int("width", r.config.Size.X),
		zap.Int("height", r.config.Size.Y))
	return nil
}

func (r *Recorder) write(frame gocv.Mat) error {
	if r.writer == nil {
		return nil
	}
	if err := r.writer.Write(frame); err != nil {
		return fmt.Errorf("write segment %d: %w", r.current.ID, err)
	}
	r.current.Frames++
	return nil
}

func (r *Recorder) finish() {
	if r.writer == nil {
		return
	}
	if err := r.writer.Close(); err != nil {
		r.logger.Error("Failed to close segment", zap.String("file", r.current.Path), zap.Error(err))
	}
	r.writer = nil
	r.current.EndedAt = r.now()

	seg := r.current
	r.current = Segment{}
	if r.sink != nil {
		r.sink.SegmentFinished(seg)
	}
}

// Close finalizes the open segment, if any, e.g. at end of stream.
func (r *Recorder) Close() error {
	r.finish()
	return nil
}
