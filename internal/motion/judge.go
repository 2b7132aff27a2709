package motion

import "gocv.io/x/gocv"

// Verdict is the outcome of judging one frame's contours.
type Verdict struct {
	Trigger       bool
	MaxAreaFrac   float64
	TotalAreaFrac float64
	Contours      int
}

// ContourAreas returns the absolute enclosed area of every contour.
func ContourAreas(contours gocv.PointsVector) []float64 {
	n := contours.Size()
	areas := make([]float64, 0, n)
	for i := 0; i < n; i++ {
		areas = append(areas, gocv.ContourArea(contours.At(i)))
	}
	return areas
}

// Judge applies the two-rule trigger: one blob larger than MaxAreaFraction of
// the frame, or all blobs together reaching TotalAreaFraction.
func Judge(areas []float64, frameArea float64, cfg Config) Verdict {
	v := Verdict{Contours: len(areas)}
	if frameArea <= 0 {
		return v
	}

	var total, largest float64
	for _, a := range areas {
		total += a
		if a > largest {
			largest = a
		}
	}

	v.MaxAreaFrac = largest / frameArea
	v.TotalAreaFrac = total / frameArea
	v.Trigger = v.MaxAreaFrac > cfg.MaxAreaFraction || v.TotalAreaFrac >= cfg.TotalAreaFraction
	return v
}
