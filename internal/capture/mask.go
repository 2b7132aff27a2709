package capture

import (
	"errors"
	"fmt"
	"image"
	"io/fs"
	"os"

	"gocv.io/x/gocv"
)

// maskThreshold separates painted from unpainted pixels in a mask image;
// lossy editors leave small non-zero values behind.
const maskThreshold = 15

// ErrTemplateExists is returned instead of overwriting a file, which may be
// a mask the user already painted.
var ErrTemplateExists = errors.New("mask template target already exists")

// SaveMaskTemplate writes the next frame of src as a PNG so an ROI mask can
// be painted over it. An existing file at path is never replaced.
func SaveMaskTemplate(src Source, path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("%w: %s", ErrTemplateExists, path)
	} else if !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("check mask template %s: %w", path, err)
	}

	frame := gocv.NewMat()
	defer frame.Close()

	if err := src.Read(&frame); err != nil {
		return fmt.Errorf("read template frame: %w", err)
	}
	if !gocv.IMWriteWithParams(path, frame, []int{gocv.IMWritePngCompression, 9}) {
		return fmt.Errorf("failed to write mask template %s", path)
	}
	return nil
}

// LoadMask reads a mask image as a binary single channel Mat: pixels above
// the threshold become 255, the rest 0. The image must match size. The
// caller owns the returned Mat.
func LoadMask(path string, size image.Point) (gocv.Mat, error) {
	img := gocv.IMRead(path, gocv.IMReadGrayScale)
	defer img.Close()

	if img.Empty() {
		return gocv.NewMat(), fmt.Errorf("cannot read mask file %s", path)
	}
	if img.Cols() != size.X || img.Rows() != size.Y {
		return gocv.NewMat(), fmt.Errorf("mask %s is %dx%d, frames are %dx%d",
			path, img.Cols(), img.Rows(), size.X, size.Y)
	}

	mask := gocv.NewMat()
	gocv.Threshold(img, &mask, maskThreshold, 255, gocv.ThresholdBinary)
	return mask, nil
}
