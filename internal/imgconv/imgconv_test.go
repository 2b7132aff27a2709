package imgconv

import (
	"image"
	"image/color"
	"testing"
)

func TestToMatChannelOrder(t *testing.T) {
	testCases := []struct {
		name string
		img  image.Image
	}{
		{"RGBA", fill(image.NewRGBA(image.Rect(0, 0, 4, 3)), color.RGBA{R: 200, G: 100, B: 50, A: 255})},
		{"NRGBA", fill(image.NewNRGBA(image.Rect(0, 0, 4, 3)), color.NRGBA{R: 200, G: 100, B: 50, A: 255})},
		{"Offset origin", fill(image.NewNRGBA(image.Rect(5, 7, 9, 10)), color.NRGBA{R: 200, G: 100, B: 50, A: 255})},
		{"Paletted", fill(image.NewPaletted(image.Rect(0, 0, 4, 3), color.Palette{color.RGBA{R: 200, G: 100, B: 50, A: 255}}), color.RGBA{R: 200, G: 100, B: 50, A: 255})},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			mat, err := ToMat(tc.img)
			if err != nil {
				t.Fatalf("ToMat failed: %v", err)
			}
			defer mat.Close()

			if mat.Rows() != 3 || mat.Cols() != 4 || mat.Channels() != 3 {
				t.Fatalf("unexpected shape %dx%dx%d", mat.Rows(), mat.Cols(), mat.Channels())
			}
			v := mat.GetVecbAt(1, 2)
			if v[0] != 50 || v[1] != 100 || v[2] != 200 {
				t.Fatalf("expected BGR 50,100,200 got %v", v)
			}
		})
	}
}

func TestToMatRejectsEmpty(t *testing.T) {
	if m, err := ToMat(nil); err == nil {
		m.Close()
		t.Fatal("expected error for nil image")
	}
	if m, err := ToMat(image.NewRGBA(image.Rectangle{})); err == nil {
		m.Close()
		t.Fatal("expected error for empty image")
	}
}

func fill[T settable](img T, c color.Color) T {
	b := img.Bounds()
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			img.Set(x, y, c)
		}
	}
	return img
}

type settable interface {
	image.Image
	Set(x, y int, c color.Color)
}
