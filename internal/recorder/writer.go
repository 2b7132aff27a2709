package recorder

import (
	"fmt"
	"image"

	"gocv.io/x/gocv"
)

// videoFileWriter adapts gocv.VideoWriter to FrameWriter.
type videoFileWriter struct {
	vw *gocv.VideoWriter
}

func (w *videoFileWriter) Write(frame gocv.Mat) error {
	return w.vw.Write(frame)
}

func (w *videoFileWriter) Close() error {
	return w.vw.Close()
}

// VideoWriterFactory writes color segments with the given FourCC codec,
// e.g. "XVID".
func VideoWriterFactory(codec string) WriterFactory {
	return func(path string, fps float64, size image.Point) (FrameWriter, error) {
		if fps <= 0 {
			return nil, fmt.Errorf("invalid frame rate %v", fps)
		}
		vw, err := gocv.VideoWriterFile(path, codec, fps, size.X, size.Y, true)
		if err != nil {
			return nil, err
		}
		if !vw.IsOpened() {
			vw.Close()
			return nil, fmt.Errorf("video writer for %s did not open", path)
		}
		return &videoFileWriter{vw: vw}, nil
	}
}
