// Package imgconv converts Go images into BGR gocv.Mat frames so callers that
// decode frames in pure Go can feed the OpenCV based detector.
package imgconv

import (
	"fmt"
	"image"
	"image/draw"

	"gocv.io/x/gocv"
)

// ToMat converts img to a 3 channel BGR Mat. Premultiplied RGBA pixels are
// unpremultiplied first. The caller owns the returned Mat.
func ToMat(img image.Image) (gocv.Mat, error) {
	if img == nil {
		return gocv.NewMat(), fmt.Errorf("imgconv: nil image")
	}
	bounds := img.Bounds()
	if bounds.Empty() {
		return gocv.NewMat(), fmt.Errorf("imgconv: empty image bounds")
	}

	switch im := img.(type) {
	case *image.Gray:
		return grayToBGR(im)
	case *image.NRGBA:
		return rgbaBytesToBGR(packNRGBA(im), im.Rect.Dx(), im.Rect.Dy())
	case *image.RGBA:
		return rgbaBytesToBGR(unpremultiply(im), im.Rect.Dx(), im.Rect.Dy())
	default:
		// YCbCr, paletted and friends go through the generic draw path
		nrgba := image.NewNRGBA(image.Rect(0, 0, bounds.Dx(), bounds.Dy()))
		draw.Draw(nrgba, nrgba.Bounds(), img, bounds.Min, draw.Src)
		return rgbaBytesToBGR(nrgba.Pix, bounds.Dx(), bounds.Dy())
	}
}

func rgbaBytesToBGR(pix []byte, w, h int) (gocv.Mat, error) {
	rgba, err := gocv.NewMatFromBytes(h, w, gocv.MatTypeCV8UC4, pix)
	if err != nil {
		return gocv.NewMat(), fmt.Errorf("imgconv: failed to create Mat from RGBA: %w", err)
	}
	defer rgba.Close()

	bgr := gocv.NewMat()
	gocv.CvtColor(rgba, &bgr, gocv.ColorRGBAToBGR)
	return bgr, nil
}

func grayToBGR(im *image.Gray) (gocv.Mat, error) {
	w, h := im.Rect.Dx(), im.Rect.Dy()
	buf := make([]byte, 0, w*h)
	for y := 0; y < h; y++ {
		off := im.PixOffset(im.Rect.Min.X, im.Rect.Min.Y+y)
		buf = append(buf, im.Pix[off:off+w]...)
	}

	gray, err := gocv.NewMatFromBytes(h, w, gocv.MatTypeCV8UC1, buf)
	if err != nil {
		return gocv.NewMat(), fmt.Errorf("imgconv: failed to create Mat from Gray: %w", err)
	}
	defer gray.Close()

	bgr := gocv.NewMat()
	gocv.CvtColor(gray, &bgr, gocv.ColorGrayToBGR)
	return bgr, nil
}

// packNRGBA copies the visible rectangle into a tightly packed buffer.
func packNRGBA(im *image.NRGBA) []byte {
	w, h := im.Rect.Dx(), im.Rect.Dy()
	if im.Stride == 4*w && im.Rect.Min.Eq(image.Point{}) {
		return im.Pix
	}
	buf := make([]byte, 0, 4*w*h)
	for y := 0; y < h; y++ {
		off := im.PixOffset(im.Rect.Min.X, im.Rect.Min.Y+y)
		buf = append(buf, im.Pix[off:off+4*w]...)
	}
	return buf
}

// unpremultiply avoids dark halos around translucent pixels.
func unpremultiply(im *image.RGBA) []byte {
	w, h := im.Rect.Dx(), im.Rect.Dy()
	buf := make([]byte, 4*w*h)
	dst := 0
	for y := 0; y < h; y++ {
		src := im.PixOffset(im.Rect.Min.X, im.Rect.Min.Y+y)
		for x := 0; x < w; x++ {
			r, g, b, a := im.Pix[src], im.Pix[src+1], im.Pix[src+2], im.Pix[src+3]
			if a > 0 && a < 255 {
				r = uint8(uint32(r) * 255 / uint32(a))
				g = uint8(uint32(g) * 255 / uint32(a))
				b = uint8(uint32(b) * 255 / uint32(a))
			}
			buf[dst], buf[dst+1], buf[dst+2], buf[dst+3] = r, g, b, a
			src += 4
			dst += 4
		}
	}
	return buf
}
