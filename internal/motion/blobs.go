package motion

import (
	"image"

	"gocv.io/x/gocv"
)

// BlobExtractor merges nearby motion pixels and traces the outer boundary of
// each resulting blob.
type BlobExtractor struct {
	kernel     gocv.Mat
	iterations int
	dilated    gocv.Mat
}

// NewBlobExtractor builds the rectangular structuring element once.
func NewBlobExtractor(cfg Config) *BlobExtractor {
	return &BlobExtractor{
		kernel:     gocv.GetStructuringElement(gocv.MorphRect, image.Pt(cfg.DilationSize, cfg.DilationSize)),
		iterations: cfg.DilationIterations,
		dilated:    gocv.NewMat(),
	}
}

// Blobs is one call's contour set. Hierarchy rows are OpenCV's
// [next, previous, first child, parent] links; with external retrieval every
// parent is -1. The caller owns Blobs and must Close it.
type Blobs struct {
	Contours  gocv.PointsVector
	Hierarchy gocv.Mat
}

// Close releases the contour storage.
func (b *Blobs) Close() {
	b.Contours.Close()
	b.Hierarchy.Close()
}

// Extract dilates mask and returns its external contours.
func (e *BlobExtractor) Extract(mask gocv.Mat) Blobs {
	mask.CopyTo(&e.dilated)
	// same result as cv::dilate with an iterations count
	for i := 0; i < e.iterations; i++ {
		gocv.Dilate(e.dilated, &e.dilated, e.kernel)
	}

	hierarchy := gocv.NewMat()
	contours := gocv.FindContoursWithParams(e.dilated, &hierarchy, gocv.RetrievalExternal, gocv.ChainApproxSimple)
	return Blobs{Contours: contours, Hierarchy: hierarchy}
}

// Dilated returns the dilated mask of the last call.
func (e *BlobExtractor) Dilated() gocv.Mat { return e.dilated }

// Close releases the kernel and working buffer.
func (e *BlobExtractor) Close() error {
	if err := e.kernel.Close(); err != nil {
		return err
	}
	return e.dilated.Close()
}
