package overlay

import (
	"time"

	"gocv.io/x/gocv"

	"github.com/mikeyg42/eventcam/internal/motion"
)

// StageViewer exposes the intermediate images of a detector.
type StageViewer interface {
	View(stage motion.Stage) (gocv.Mat, bool)
}

// Viewer shows the annotated input and one detector stage side by side.
type Viewer struct {
	input *gocv.Window
	debug *gocv.Window
	stage motion.Stage
	wait  int
}

// NewViewer opens the "Input" and "Debug" windows.
func NewViewer(stage motion.Stage, wait time.Duration) *Viewer {
	ms := int(wait / time.Millisecond)
	if ms <= 0 {
		ms = 1
	}
	return &Viewer{
		input: gocv.NewWindow("Input"),
		debug: gocv.NewWindow("Debug"),
		stage: stage,
		wait:  ms,
	}
}

// Show displays frame and the selected stage of det. It returns false when
// the user asked to quit with ESC or q.
func (v *Viewer) Show(frame gocv.Mat, det StageViewer) bool {
	v.input.IMShow(frame)
	if view, ok := det.View(v.stage); ok && !view.Empty() {
		v.debug.IMShow(view)
	}
	return !isQuitKey(v.input.WaitKey(v.wait))
}

func isQuitKey(key int) bool {
	switch key {
	case 27, 'q', 'Q':
		return true
	}
	return false
}

// Close destroys both windows.
func (v *Viewer) Close() error {
	if err := v.input.Close(); err != nil {
		return err
	}
	return v.debug.Close()
}
