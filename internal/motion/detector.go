package motion

import (
	"fmt"
	"image"
	"time"

	"go.uber.org/zap"
	"gocv.io/x/gocv"

	"github.com/mikeyg42/eventcam/internal/imgconv"
)

// Stage selects one of the intermediate images for debug display.
type Stage int

const (
	StageBlurred Stage = iota + 1
	StageDelta
	StageBinary
	StageDilated
)

func (s Stage) String() string {
	switch s {
	case StageBlurred:
		return "blurred"
	case StageDelta:
		return "delta"
	case StageBinary:
		return "binary"
	case StageDilated:
		return "dilated"
	default:
		return fmt.Sprintf("stage(%d)", int(s))
	}
}

// Detector decides per frame whether motion is present by differencing it
// against the previous frame. It is not safe for concurrent use; run one
// Detector per stream.
type Detector struct {
	config Config
	logger *zap.Logger

	differencer *FrameDifferencer
	extractor   *BlobExtractor

	blobs  Blobs
	last   Verdict
	stats  MotionStats
	closed bool
}

// MotionStats counts what the detector has seen since creation.
type MotionStats struct {
	FramesProcessed   int64
	Triggers          int64
	LastTriggerTime   time.Time
	MaxAreaFracSeen   float64
	ProcessingTime    time.Duration
	LastProcessedTime time.Time
}

// NewDetector validates config and allocates the pipeline buffers.
func NewDetector(config Config, logger *zap.Logger) (*Detector, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid motion config: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Detector{
		config:      config,
		logger:      logger.Named("motion"),
		differencer: NewFrameDifferencer(config),
		extractor:   NewBlobExtractor(config),
		blobs:       Blobs{Contours: gocv.NewPointsVector(), Hierarchy: gocv.NewMat()},
	}, nil
}

// SetROI restricts detection to the non-zero pixels of mask.
func (d *Detector) SetROI(mask gocv.Mat) error {
	return d.differencer.SetROI(mask)
}

// ProcessFrame runs difference, blob extraction and judging on a BGR frame
// and reports whether it triggers. The first frame never triggers.
func (d *Detector) ProcessFrame(frame gocv.Mat) bool {
	start := time.Now()

	mask := d.differencer.Difference(frame)

	d.blobs.Close()
	d.blobs = d.extractor.Extract(mask)

	frameArea := float64(frame.Rows()) * float64(frame.Cols())
	d.last = Judge(ContourAreas(d.blobs.Contours), frameArea, d.config)

	d.logger.Debug("Frame analysed",
		zap.Float64("max_area", d.last.MaxAreaFrac),
		zap.Float64("total_area", d.last.TotalAreaFrac),
		zap.Int("contours", d.last.Contours),
		zap.Bool("trigger", d.last.Trigger))

	d.stats.FramesProcessed++
	if d.last.Trigger {
		d.stats.Triggers++
		d.stats.LastTriggerTime = start
	}
	if d.last.MaxAreaFrac > d.stats.MaxAreaFracSeen {
		d.stats.MaxAreaFracSeen = d.last.MaxAreaFrac
	}
	d.stats.ProcessingTime = time.Since(start)
	d.stats.LastProcessedTime = start

	return d.last.Trigger
}

// ProcessImage converts img to BGR and runs ProcessFrame on it.
func (d *Detector) ProcessImage(img image.Image) (bool, error) {
	frame, err := imgconv.ToMat(img)
	if err != nil {
		return false, fmt.Errorf("convert image: %w", err)
	}
	defer frame.Close()
	return d.ProcessFrame(frame), nil
}

// Contours returns the external contours of the last frame. The vector is
// owned by the detector and replaced on the next call.
func (d *Detector) Contours() gocv.PointsVector { return d.blobs.Contours }

// Hierarchy returns the contour hierarchy of the last frame.
func (d *Detector) Hierarchy() gocv.Mat { return d.blobs.Hierarchy }

// Result returns the verdict of the last frame.
func (d *Detector) Result() Verdict { return d.last }

// GetStats returns a copy of the running counters.
func (d *Detector) GetStats() MotionStats { return d.stats }

// Reset forgets the previous frame, e.g. after the source was reopened.
func (d *Detector) Reset() {
	d.differencer.Reset()
}

// View returns the intermediate image for stage. The Mat is owned by the
// detector and is empty before the first frame.
func (d *Detector) View(stage Stage) (gocv.Mat, bool) {
	switch stage {
	case StageBlurred:
		return d.differencer.Blurred(), true
	case StageDelta:
		return d.differencer.Delta(), true
	case StageBinary:
		return d.differencer.Binary(), true
	case StageDilated:
		return d.extractor.Dilated(), true
	default:
		return d.differencer.Blurred(), false
	}
}

// Close releases all native resources.
func (d *Detector) Close() error {
	if d.closed {
		return nil
	}
	d.closed = true

	d.blobs.Close()
	if err := d.extractor.Close(); err != nil {
		return fmt.Errorf("error closing blob extractor: %w", err)
	}
	if err := d.differencer.Close(); err != nil {
		return fmt.Errorf("error closing differencer: %w", err)
	}
	return nil
}
