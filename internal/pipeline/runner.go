// Package pipeline runs the per-frame loop: capture, detect, decide, annotate,
// record and display, strictly one frame at a time.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gocv.io/x/gocv"

	"github.com/mikeyg42/eventcam/internal/capture"
	"github.com/mikeyg42/eventcam/internal/event"
	"github.com/mikeyg42/eventcam/internal/motion"
	"github.com/mikeyg42/eventcam/internal/overlay"
	"github.com/mikeyg42/eventcam/internal/recorder"
)

// Display shows annotated frames; Show returns false when the user quits.
type Display interface {
	Show(frame gocv.Mat, det overlay.StageViewer) bool
}

// Config selects the per-frame decorations.
type Config struct {
	CameraName string
	Timestamp  bool
	// DebugContours draws the detector contours into recorded frames.
	DebugContours bool
}

// Stats summarises a run.
type Stats struct {
	Frames          int64
	Triggers        int64
	SegmentsStarted int64
	WriteErrors     int64
	Elapsed         time.Duration
}

// Runner owns the frame loop. Not safe for concurrent use.
type Runner struct {
	config    Config
	source    capture.Source
	detector  *motion.Detector
	machine   *event.Machine
	recorder  *recorder.Recorder
	publisher *Publisher
	display   Display
	logger    *zap.Logger
	now       func() time.Time

	stats Stats
}

// NewRunner wires the loop. publisher and display may be nil.
func NewRunner(config Config, source capture.Source, detector *motion.Detector, machine *event.Machine,
	rec *recorder.Recorder, publisher *Publisher, display Display, logger *zap.Logger) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{
		config:    config,
		source:    source,
		detector:  detector,
		machine:   machine,
		recorder:  rec,
		publisher: publisher,
		display:   display,
		logger:    logger.Named("pipeline"),
		now:       time.Now,
	}
}

// Run processes frames until the source ends, the display quits or ctx is
// cancelled, and finalizes any open segment before returning. The end of
// the stream and a quit are not errors; cancellation returns ctx.Err().
func (r *Runner) Run(ctx context.Context) error {
	start := r.now()
	defer func() {
		r.recorder.Close()
		r.stats.Elapsed = r.now().Sub(start)
		fields := []zap.Field{
			zap.Int64("frames", r.stats.Frames),
			zap.Int64("triggers", r.stats.Triggers),
			zap.Int64("segments", r.stats.SegmentsStarted),
			zap.Float64("max_area_seen", r.detector.GetStats().MaxAreaFracSeen),
			zap.Duration("elapsed", r.stats.Elapsed),
		}
		if r.publisher != nil {
			fields = append(fields, zap.Int64("published", r.publisher.Finished()))
		}
		r.logger.Info("Run finished", fields...)
	}()

	frame := gocv.NewMat()
	defer frame.Close()

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		if err := r.source.Read(&frame); err != nil {
			if errors.Is(err, capture.ErrEndOfStream) {
				r.logger.Info("End of stream")
				return nil
			}
			return fmt.Errorf("read frame: %w", err)
		}

		if !r.step(&frame) {
			r.logger.Info("Stopped by user")
			return nil
		}
	}
}

// step handles one frame and reports whether to keep going.
func (r *Runner) step(frame *gocv.Mat) bool {
	r.stats.Frames++

	trigger := r.detector.ProcessFrame(*frame)
	if trigger {
		r.stats.Triggers++
	}
	ev := r.machine.Next(trigger)
	if ev.Kind == event.Start || ev.Kind == event.Stop {
		v := r.detector.Result()
		r.logger.Debug("Recording state change",
			zap.Stringer("event", ev),
			zap.Int("momentum", r.machine.Momentum()),
			zap.Float64("max_area", v.MaxAreaFrac),
			zap.Float64("total_area", v.TotalAreaFrac))
	}

	overlay.Label(frame, r.config.CameraName)
	if r.config.Timestamp {
		overlay.Timestamp(frame, r.now())
	}
	if r.config.DebugContours && (ev.Kind == event.Start || ev.Kind == event.Continue) {
		overlay.Contours(frame, r.detector.Contours())
	}

	if err := r.recorder.Handle(ev, *frame); err != nil {
		r.stats.WriteErrors++
		r.logger.Debug("Recorder error", zap.Stringer("event", ev), zap.Error(err))
	}
	if ev.Kind == event.Start {
		r.stats.SegmentsStarted++
		if r.publisher != nil {
			if seg, ok := r.recorder.Current(); ok {
				r.publisher.SegmentStarted(seg.ID, seg.Path, seg.StartedAt)
			}
		}
	}

	if r.display != nil {
		return r.display.Show(*frame, r.detector)
	}
	return true
}

// Stats returns the counters of the last Run.
func (r *Runner) Stats() Stats { return r.stats }
