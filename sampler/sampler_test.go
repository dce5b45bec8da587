package sampler

import (
	"image"
	"math/rand"
	"testing"

	"github.com/histion/slidetile/slide"
)

func TestRandomCoordBounds(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	seen := make(map[[2]int]bool)
	for i := 0; i < 10000; i++ {
		x, y := RandomCoord(rng, 3, 5)
		if x < 0 || x >= 3 || y < 0 || y >= 5 {
			t.Fatalf("draw %d out of bounds: (%d, %d)\n", i, x, y)
		}
		seen[[2]int{x, y}] = true
	}
	if len(seen) != 15 {
		t.Errorf("expected all 15 positions drawn, got %d\n", len(seen))
	}
	if x, y := RandomCoord(rng, 1, 1); x != 0 || y != 0 {
		t.Errorf("expected (0, 0) for single tile slide, got (%d, %d)\n", x, y)
	}
	if x, y := RandomCoord(rng, 0, 10); x != 0 || y != 0 {
		t.Errorf("expected (0, 0) for empty bounds, got (%d, %d)\n", x, y)
	}
}

func TestRandomCoordReproducible(t *testing.T) {
	a := rand.New(rand.NewSource(7))
	b := rand.New(rand.NewSource(7))
	for i := 0; i < 100; i++ {
		ax, ay := RandomCoord(a, 1000, 1000)
		bx, by := RandomCoord(b, 1000, 1000)
		if ax != bx || ay != by {
			t.Fatalf("draw %d differs for identical seeds\n", i)
		}
	}
}

// patterned returns a size x size tile with alternating pixel values lo and hi.
func patterned(size int, lo, hi uint8) *slide.RGB {
	img := slide.NewRGB(image.Rect(0, 0, size, size))
	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			v := lo
			if (x+y)%2 == 1 {
				v = hi
			}
			img.SetRGB(x, y, v, v, v)
		}
	}
	return img
}

func TestValidator(t *testing.T) {
	v := DefaultValidator()
	tests := []struct {
		name   string
		lo, hi uint8
		valid  bool
	}{
		{"black", 0, 0, false},
		{"flat gray", 128, 128, false},
		{"white", 255, 255, false},
		{"checkerboard", 0, 255, true},
		{"dim noise", 0, 10, false},
		{"std exactly five", 15, 25, false},
		{"mean exactly ten", 4, 16, false},
		{"tissue", 150, 200, true},
	}
	for _, tc := range tests {
		if got := v.Valid(patterned(8, tc.lo, tc.hi)); got != tc.valid {
			mean, std := Stats(patterned(8, tc.lo, tc.hi))
			t.Errorf("%s: expected valid=%t, got %t (mean %f, std %f)\n", tc.name, tc.valid, got, mean, std)
		}
	}

	mean, std := Stats(patterned(4, 0, 255))
	if mean != 127.5 || std != 127.5 {
		t.Errorf("expected mean and std of 127.5, got %f and %f\n", mean, std)
	}
	if mean, std := Stats(slide.NewRGB(image.Rect(0, 0, 0, 0))); mean != 0 || std != 0 {
		t.Errorf("expected zero stats for empty image\n")
	}

	strict := Validator{MinStd: 200, MinMean: 0}
	if strict.Valid(patterned(8, 0, 255)) {
		t.Errorf("custom thresholds not applied\n")
	}
}

func numbered(w, h int) *slide.RGB {
	img := slide.NewRGB(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetRGB(x, y, uint8(x), uint8(y), uint8(10*y+x))
		}
	}
	return img
}

func pixel(img *slide.RGB, x, y int) [3]uint8 {
	i := img.PixOffset(x, y)
	return [3]uint8{img.Pix[i], img.Pix[i+1], img.Pix[i+2]}
}

func TestFlipsAndRotation(t *testing.T) {
	img := numbered(3, 2)

	h := FlipHorizontal(img)
	if pixel(h, 0, 0) != pixel(img, 2, 0) || pixel(h, 2, 1) != pixel(img, 0, 1) {
		t.Errorf("bad horizontal flip\n")
	}
	v := FlipVertical(img)
	if pixel(v, 0, 0) != pixel(img, 0, 1) || pixel(v, 2, 1) != pixel(img, 2, 0) {
		t.Errorf("bad vertical flip\n")
	}

	r := Rotate90(img, 1)
	if w, h := r.Size(); w != 2 || h != 3 {
		t.Fatalf("expected 2 x 3 after quarter turn, got %d x %d\n", w, h)
	}
	// Counterclockwise: the top right corner moves to the top left.
	if pixel(r, 0, 0) != pixel(img, 2, 0) || pixel(r, 1, 2) != pixel(img, 0, 1) {
		t.Errorf("bad counterclockwise rotation\n")
	}

	full := Rotate90(img, 4)
	for y := 0; y < 2; y++ {
		for x := 0; x < 3; x++ {
			if pixel(full, x, y) != pixel(img, x, y) {
				t.Fatalf("four quarter turns should be the identity\n")
			}
		}
	}
	half := Rotate90(img, 2)
	if pixel(half, 0, 0) != pixel(img, 2, 1) {
		t.Errorf("bad half turn\n")
	}
}

func TestAugmentKeepsContent(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	img := patterned(16, 10, 200)
	mean, std := Stats(img)
	for i := 0; i < 20; i++ {
		out := Augment(rng, img)
		if w, h := out.Size(); w != 16 || h != 16 {
			t.Fatalf("augmentation changed size to %d x %d\n", w, h)
		}
		if m, s := Stats(out); m != mean || s != std {
			t.Fatalf("augmentation changed pixel statistics\n")
		}
	}
}

func TestColorJitter(t *testing.T) {
	img := patterned(16, 60, 200)
	if out := ColorJitter(rand.New(rand.NewSource(1)), img, 0); out != img {
		t.Errorf("zero strength should return the tile unchanged\n")
	}

	a := ColorJitter(rand.New(rand.NewSource(9)), img, 0.3)
	b := ColorJitter(rand.New(rand.NewSource(9)), img, 0.3)
	if w, h := a.Size(); w != 16 || h != 16 {
		t.Fatalf("jitter changed size to %d x %d\n", w, h)
	}
	same, changed := true, false
	for y := 0; y < 16; y++ {
		for x := 0; x < 16; x++ {
			if pixel(a, x, y) != pixel(b, x, y) {
				same = false
			}
			if pixel(a, x, y) != pixel(img, x, y) {
				changed = true
			}
		}
	}
	if !same {
		t.Errorf("jitter with the same seed should be reproducible\n")
	}
	if !changed {
		t.Errorf("expected jitter to change some pixels\n")
	}

	gray := ColorJitter(rand.New(rand.NewSource(4)), patterned(8, 128, 128), DefaultColorJitter)
	for y := 0; y < 8; y++ {
		for x := 0; x < 8; x++ {
			p := pixel(gray, x, y)
			lo, hi := p[0], p[0]
			for _, c := range p[1:] {
				if c < lo {
					lo = c
				}
				if c > hi {
					hi = c
				}
			}
			if hi-lo > 1 {
				t.Fatalf("gray pixel gained color: %v\n", p)
			}
		}
	}
}
