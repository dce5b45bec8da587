package slide

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"testing"
)

func TestFlattenDropsAlpha(t *testing.T) {
	src := image.NewNRGBA(image.Rect(10, 20, 12, 22))
	src.SetNRGBA(10, 20, color.NRGBA{R: 200, G: 100, B: 50, A: 0})
	src.SetNRGBA(11, 21, color.NRGBA{R: 1, G: 2, B: 3, A: 255})

	rgb := Flatten(src)
	if w, h := rgb.Size(); w != 2 || h != 2 {
		t.Fatalf("expected 2x2 image, got %dx%d\n", w, h)
	}
	if rgb.Bounds().Min != (image.Point{}) {
		t.Errorf("expected bounds at origin, got %v\n", rgb.Bounds())
	}
	if c := rgb.At(0, 0).(color.RGBA); c != (color.RGBA{200, 100, 50, 255}) {
		t.Errorf("bad pixel (0,0): %v\n", c)
	}
	if c := rgb.At(1, 1).(color.RGBA); c != (color.RGBA{1, 2, 3, 255}) {
		t.Errorf("bad pixel (1,1): %v\n", c)
	}
	if len(rgb.Pix) != 12 {
		t.Errorf("expected 12 samples, got %d\n", len(rgb.Pix))
	}
}

func TestFlattenGray(t *testing.T) {
	src := image.NewGray(image.Rect(0, 0, 3, 1))
	src.Pix = []uint8{0, 128, 255}
	rgb := Flatten(src)
	expected := []uint8{0, 0, 0, 128, 128, 128, 255, 255, 255}
	if !bytes.Equal(rgb.Pix, expected) {
		t.Errorf("expected %v, got %v\n", expected, rgb.Pix)
	}
}

func TestDecodeImage(t *testing.T) {
	src := image.NewRGBA(image.Rect(0, 0, 4, 3))
	for i := range src.Pix {
		src.Pix[i] = uint8(i * 7)
	}
	for i := 3; i < len(src.Pix); i += 4 {
		src.Pix[i] = 255
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, src); err != nil {
		t.Fatal(err)
	}
	rgb, format, err := DecodeImage(buf.Bytes())
	if err != nil {
		t.Fatalf("unable to decode png: %v\n", err)
	}
	if format != "png" {
		t.Errorf("expected png format, got %q\n", format)
	}
	for y := 0; y < 3; y++ {
		for x := 0; x < 4; x++ {
			want := src.RGBAAt(x, y)
			got := rgb.At(x, y).(color.RGBA)
			if got != want {
				t.Fatalf("pixel (%d,%d): expected %v, got %v\n", x, y, want, got)
			}
		}
	}

	if _, _, err := DecodeImage([]byte("not an image")); err == nil {
		t.Errorf("expected error decoding garbage\n")
	}
}
