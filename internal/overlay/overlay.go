// Package overlay draws the camera name, the clock and debug contours onto
// frames and shows the debug windows.
package overlay

import (
	"image"
	"image/color"
	"math/rand"
	"time"

	"gocv.io/x/gocv"
)

// TimestampLayout is the clock format burned into frames.
const TimestampLayout = "2006-01-02 15:04:05"

// contourSeed makes contour colors stable from frame to frame.
const contourSeed = 12345

var textColor = color.RGBA{R: 255, G: 0, B: 0, A: 255}

// Label writes the camera name in the top left corner. Empty names are
// skipped.
func Label(frame *gocv.Mat, name string) {
	if name == "" {
		return
	}
	gocv.PutText(frame, name, image.Pt(15, 25), gocv.FontHersheyPlain, 2, textColor, 2)
}

// Timestamp writes t, truncated to seconds, in the bottom left corner.
func Timestamp(frame *gocv.Mat, t time.Time) {
	text := t.Format(TimestampLayout)
	gocv.PutText(frame, text, image.Pt(15, frame.Rows()-15), gocv.FontHersheyPlain, 1, textColor, 2)
}

// Contours draws each contour one pixel wide in its own color on a black
// canvas and adds the canvas onto frame.
func Contours(frame *gocv.Mat, contours gocv.PointsVector) {
	if contours.Size() == 0 {
		return
	}

	drawing := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(0, 0, 0, 0), frame.Rows(), frame.Cols(), gocv.MatTypeCV8UC3)
	defer drawing.Close()

	rng := rand.New(rand.NewSource(contourSeed))
	for i := 0; i < contours.Size(); i++ {
		c := color.RGBA{
			R: uint8(rng.Intn(255)),
			G: uint8(rng.Intn(255)),
			B: uint8(rng.Intn(255)),
			A: 255,
		}
		gocv.DrawContours(&drawing, contours, i, c, 1)
	}
	gocv.Add(*frame, drawing, frame)
}
