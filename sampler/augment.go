package sampler

import (
	"image"
	"math"
	"math/rand"

	"github.com/histion/slidetile/slide"
)

// Augment applies a random horizontal flip, vertical flip and counterclockwise
// rotation by a multiple of 90 degrees.  Each flip happens with probability one half.
func Augment(rng *rand.Rand, img *slide.RGB) *slide.RGB {
	if rng.Float64() > 0.5 {
		img = FlipHorizontal(img)
	}
	if rng.Float64() > 0.5 {
		img = FlipVertical(img)
	}
	if k := rng.Intn(4); k > 0 {
		img = Rotate90(img, k)
	}
	return img
}

// DefaultColorJitter is a light jitter strength for stained tissue.
const DefaultColorJitter = 0.05

// ColorJitter scales brightness, contrast and saturation by factors drawn uniformly
// from [1-strength, 1+strength] and rotates hue by up to strength/2 of a full turn.
// A non-positive strength returns img unchanged.
func ColorJitter(rng *rand.Rand, img *slide.RGB, strength float64) *slide.RGB {
	if strength <= 0 {
		return img
	}
	factor := func() float64 { return 1 - strength + 2*strength*rng.Float64() }
	brightness, contrast, saturation := factor(), factor(), factor()
	hue := (rng.Float64() - 0.5) * strength * 2 * math.Pi

	w, h := img.Size()
	if w == 0 || h == 0 {
		return img
	}
	px := make([]float64, 0, 3*w*h)
	var lumaSum float64
	for y := 0; y < h; y++ {
		row := img.Pix[y*img.Stride : y*img.Stride+3*w]
		for x := 0; x < 3*w; x += 3 {
			r := float64(row[x]) * brightness
			g := float64(row[x+1]) * brightness
			b := float64(row[x+2]) * brightness
			px = append(px, r, g, b)
			lumaSum += luma(r, g, b)
		}
	}
	mean := lumaSum / float64(w*h)
	cos, sin := math.Cos(hue), math.Sin(hue)

	out := slide.NewRGB(image.Rect(0, 0, w, h))
	for k := 0; k < w*h; k++ {
		r, g, b := px[3*k], px[3*k+1], px[3*k+2]
		r, g, b = mean+contrast*(r-mean), mean+contrast*(g-mean), mean+contrast*(b-mean)
		l := luma(r, g, b)
		r, g, b = l+saturation*(r-l), l+saturation*(g-l), l+saturation*(b-l)

		// Hue rotates the chroma plane of YIQ.
		yy := luma(r, g, b)
		i := 0.596*r - 0.274*g - 0.322*b
		q := 0.211*r - 0.523*g + 0.312*b
		i, q = i*cos-q*sin, i*sin+q*cos
		r, g, b = yy+0.956*i+0.621*q, yy-0.272*i-0.647*q, yy-1.106*i+1.703*q

		y, x := k/w, k%w
		o := y*out.Stride + 3*x
		out.Pix[o], out.Pix[o+1], out.Pix[o+2] = clamp8(r), clamp8(g), clamp8(b)
	}
	return out
}

func luma(r, g, b float64) float64 {
	return 0.299*r + 0.587*g + 0.114*b
}

func clamp8(v float64) uint8 {
	switch {
	case v <= 0:
		return 0
	case v >= 255:
		return 255
	}
	return uint8(math.Round(v))
}

// FlipHorizontal mirrors an image left to right.
func FlipHorizontal(img *slide.RGB) *slide.RGB {
	w, h := img.Size()
	out := slide.NewRGB(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			copyPixel(out, w-1-x, y, img, x, y)
		}
	}
	return out
}

// FlipVertical mirrors an image top to bottom.
func FlipVertical(img *slide.RGB) *slide.RGB {
	w, h := img.Size()
	out := slide.NewRGB(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		src := img.Pix[y*img.Stride : y*img.Stride+3*w]
		copy(out.Pix[(h-1-y)*out.Stride:], src)
	}
	return out
}

// Rotate90 rotates an image counterclockwise by k quarter turns.
func Rotate90(img *slide.RGB, k int) *slide.RGB {
	k = ((k % 4) + 4) % 4
	for ; k > 0; k-- {
		w, h := img.Size()
		out := slide.NewRGB(image.Rect(0, 0, h, w))
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				copyPixel(out, y, w-1-x, img, x, y)
			}
		}
		img = out
	}
	return img
}

func copyPixel(dst *slide.RGB, dx, dy int, src *slide.RGB, sx, sy int) {
	si := sy*src.Stride + 3*sx
	di := dy*dst.Stride + 3*dx
	copy(dst.Pix[di:di+3], src.Pix[si:si+3])
}
