package motion

import (
	"fmt"
	"image"

	"gocv.io/x/gocv"
)

// FrameDifferencer turns consecutive color frames into a binary change mask.
// It keeps exactly one previous frame.
type FrameDifferencer struct {
	cfg Config

	gray     gocv.Mat
	blurred  gocv.Mat
	previous gocv.Mat
	delta    gocv.Mat
	binary   gocv.Mat

	roi        gocv.Mat
	hasROI     bool
	firstFrame bool
}

// NewFrameDifferencer allocates the working buffers. Call Close when done.
func NewFrameDifferencer(cfg Config) *FrameDifferencer {
	return &FrameDifferencer{
		cfg:        cfg,
		gray:       gocv.NewMat(),
		blurred:    gocv.NewMat(),
		previous:   gocv.NewMat(),
		delta:      gocv.NewMat(),
		binary:     gocv.NewMat(),
		roi:        gocv.NewMat(),
		firstFrame: true,
	}
}

// SetROI installs a region-of-interest mask that is ANDed onto every
// difference mask. Non-zero pixels keep motion, zero pixels discard it.
// The mask must be single channel 8-bit and match the frame size.
func (d *FrameDifferencer) SetROI(mask gocv.Mat) error {
	if mask.Empty() {
		return fmt.Errorf("roi mask is empty")
	}
	if mask.Channels() != 1 || mask.Type() != gocv.MatTypeCV8U {
		return fmt.Errorf("roi mask must be single channel 8-bit, got type %v", mask.Type())
	}
	mask.CopyTo(&d.roi)
	d.hasROI = true
	return nil
}

// Difference returns the binary change mask between frame and the previous
// frame. The first call seeds the baseline and yields an all-zero mask.
// The returned Mat is owned by the differencer and is overwritten by the next
// call.
func (d *FrameDifferencer) Difference(frame gocv.Mat) gocv.Mat {
	if frame.Channels() > 1 {
		gocv.CvtColor(frame, &d.gray, gocv.ColorBGRToGray)
	} else {
		frame.CopyTo(&d.gray)
	}

	ksize := image.Pt(d.cfg.BlurSize, d.cfg.BlurSize)
	gocv.GaussianBlur(d.gray, &d.blurred, ksize, d.cfg.BlurSigma, d.cfg.BlurSigma, gocv.BorderDefault)

	if d.firstFrame {
		d.blurred.CopyTo(&d.previous)
		d.firstFrame = false
	}

	gocv.AbsDiff(d.previous, d.blurred, &d.delta)
	d.blurred.CopyTo(&d.previous)

	gocv.Threshold(d.delta, &d.binary, d.cfg.DiffThreshold, 255, gocv.ThresholdBinary)

	if d.hasROI {
		gocv.BitwiseAnd(d.binary, d.roi, &d.binary)
	}
	return d.binary
}

// Reset drops the baseline so the next frame is treated as the first one.
func (d *FrameDifferencer) Reset() {
	d.firstFrame = true
}

// Blurred returns the denoised grayscale frame of the last call.
func (d *FrameDifferencer) Blurred() gocv.Mat { return d.blurred }

// Delta returns the raw absolute difference of the last call.
func (d *FrameDifferencer) Delta() gocv.Mat { return d.delta }

// Binary returns the thresholded (and ROI masked) mask of the last call.
func (d *FrameDifferencer) Binary() gocv.Mat { return d.binary }

// Close releases the native buffers.
func (d *FrameDifferencer) Close() error {
	for _, m := range []*gocv.Mat{&d.gray, &d.blurred, &d.previous, &d.delta, &d.binary, &d.roi} {
		if err := m.Close(); err != nil {
			return err
		}
	}
	return nil
}
