// Package capture opens frame sources and handles the ROI mask files that go
// with them.
package capture

import (
	"context"
	"errors"
	"fmt"
	"image"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
	"gocv.io/x/gocv"
)

// DefaultFPS is assumed when the backend cannot report a frame rate, which
// is common for webcams and network streams.
const DefaultFPS = 25.0

// ErrEndOfStream is returned by Read once the source yields no more frames.
var ErrEndOfStream = errors.New("end of stream")

// Source delivers BGR frames of a fixed size.
type Source interface {
	Read(frame *gocv.Mat) error
	Size() image.Point
	FPS() float64
	Close() error
}

// Options tunes Open.
type Options struct {
	Retries      int
	RetryBackoff time.Duration
	Logger       *zap.Logger
}

// Camera is a Source backed by gocv.VideoCapture.
type Camera struct {
	cap  *gocv.VideoCapture
	size image.Point
	fps  float64
}

// Open opens input as a device index when it is numeric, otherwise as a
// file or stream URL. Empty input opens device 0.
func Open(ctx context.Context, input string, opts Options) (*Camera, error) {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("capture")

	if opts.RetryBackoff <= 0 {
		opts.RetryBackoff = time.Second
	}
	ebo := backoff.NewExponentialBackOff()
	ebo.InitialInterval = opts.RetryBackoff
	ebo.Reset()
	bo := backoff.WithContext(backoff.WithMaxRetries(ebo, uint64(max(opts.Retries, 0))), ctx)

	var vc *gocv.VideoCapture
	op := func() error {
		c, err := openCapture(input)
		if err != nil {
			return err
		}
		if !c.IsOpened() {
			c.Close()
			return fmt.Errorf("capture did not open")
		}
		vc = c
		return nil
	}
	notify := func(err error, wait time.Duration) {
		logger.Warn("Cannot open input, retrying",
			zap.String("input", input),
			zap.Duration("wait", wait),
			zap.Error(err))
	}
	if err := backoff.RetryNotify(op, bo, notify); err != nil {
		logger.Error("Cannot open input", zap.String("input", input), zap.Error(err))
		return nil, fmt.Errorf("cannot open '%s': %w", input, err)
	}

	cam := &Camera{
		cap: vc,
		size: image.Pt(
			int(vc.Get(gocv.VideoCaptureFrameWidth)),
			int(vc.Get(gocv.VideoCaptureFrameHeight)),
		),
		fps: vc.Get(gocv.VideoCaptureFPS),
	}
	if cam.fps <= 0 {
		cam.fps = DefaultFPS
	}

	logger.Info("Opened input",
		zap.String("input", input),
		zap.Int("width", cam.size.X),
		zap.Int("height", cam.size.Y),
		zap.Float64("fps", cam.fps))
	return cam, nil
}

func openCapture(input string) (*gocv.VideoCapture, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return gocv.VideoCaptureDevice(0)
	}
	if id, err := strconv.Atoi(input); err == nil {
		return gocv.VideoCaptureDevice(id)
	}
	return gocv.VideoCaptureFile(input)
}

// Read grabs the next frame into frame.
func (c *Camera) Read(frame *gocv.Mat) error {
	if ok := c.cap.Read(frame); !ok || frame.Empty() {
		return ErrEndOfStream
	}
	return nil
}

// Size is the frame size reported when the source was opened.
func (c *Camera) Size() image.Point { return c.size }

// FPS is the source frame rate, DefaultFPS when unknown.
func (c *Camera) FPS() float64 { return c.fps }

// Close releases the device or file.
func (c *Camera) Close() error {
	return c.cap.Close()
}
