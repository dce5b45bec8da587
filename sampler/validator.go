package sampler

import (
	"math"

	"github.com/histion/slidetile/slide"
)

const (
	DefaultMinStd  = 5.0
	DefaultMinMean = 10.0
)

// Validator decides whether a tile carries tissue rather than background or a
// blank region.
type Validator struct {
	MinStd  float64
	MinMean float64
}

// DefaultValidator returns the standard thresholds.
func DefaultValidator() Validator {
	return Validator{MinStd: DefaultMinStd, MinMean: DefaultMinMean}
}

// Stats returns the mean and population standard deviation over every channel value
// of an image.
func Stats(img *slide.RGB) (mean, std float64) {
	w, h := img.Size()
	n := float64(3 * w * h)
	if n == 0 {
		return 0, 0
	}
	var sum, sumSq float64
	for y := 0; y < h; y++ {
		row := img.Pix[y*img.Stride : y*img.Stride+3*w]
		for _, v := range row {
			f := float64(v)
			sum += f
			sumSq += f * f
		}
	}
	mean = sum / n
	variance := sumSq/n - mean*mean
	if variance < 0 {
		variance = 0
	}
	return mean, math.Sqrt(variance)
}

// Valid returns true if the tile's spread and brightness both exceed the thresholds.
func (v Validator) Valid(img *slide.RGB) bool {
	mean, std := Stats(img)
	return std > v.MinStd && mean > v.MinMean
}
