/*
	This file supports the plain three-channel tile images handed to consumers.
	Any alpha channel is dropped rather than composited, so fully transparent
	pixels become black.
*/

package slide

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/webp"
)

// RGB is an in-memory image of 8-bit red, green and blue samples without alpha.
type RGB struct {
	// Pix holds the samples in R, G, B order, row by row.
	Pix    []uint8
	Stride int
	Rect   image.Rectangle
}

// NewRGB returns a black RGB image with the given bounds.
func NewRGB(r image.Rectangle) *RGB {
	w, h := r.Dx(), r.Dy()
	return &RGB{
		Pix:    make([]uint8, 3*w*h),
		Stride: 3 * w,
		Rect:   r,
	}
}

func (p *RGB) ColorModel() color.Model { return color.RGBAModel }

func (p *RGB) Bounds() image.Rectangle { return p.Rect }

func (p *RGB) At(x, y int) color.Color {
	if !(image.Point{x, y}.In(p.Rect)) {
		return color.RGBA{}
	}
	i := p.PixOffset(x, y)
	return color.RGBA{p.Pix[i], p.Pix[i+1], p.Pix[i+2], 0xff}
}

// PixOffset returns the index of the first sample of pixel (x, y) in Pix.
func (p *RGB) PixOffset(x, y int) int {
	return (y-p.Rect.Min.Y)*p.Stride + (x-p.Rect.Min.X)*3
}

// SetRGB sets the pixel at (x, y).
func (p *RGB) SetRGB(x, y int, r, g, b uint8) {
	if !(image.Point{x, y}.In(p.Rect)) {
		return
	}
	i := p.PixOffset(x, y)
	p.Pix[i], p.Pix[i+1], p.Pix[i+2] = r, g, b
}

// Size returns the width and height in pixels.
func (p *RGB) Size() (int, int) {
	return p.Rect.Dx(), p.Rect.Dy()
}

// Flatten converts any image into an RGB image whose bounds start at the origin.
// Alpha is discarded.
func Flatten(src image.Image) *RGB {
	if rgb, ok := src.(*RGB); ok {
		return rgb
	}
	b := src.Bounds()
	dst := NewRGB(image.Rect(0, 0, b.Dx(), b.Dy()))
	switch s := src.(type) {
	case *image.NRGBA:
		for y := 0; y < b.Dy(); y++ {
			si := s.PixOffset(b.Min.X, b.Min.Y+y)
			di := y * dst.Stride
			for x := 0; x < b.Dx(); x++ {
				dst.Pix[di], dst.Pix[di+1], dst.Pix[di+2] = s.Pix[si], s.Pix[si+1], s.Pix[si+2]
				si += 4
				di += 3
			}
		}
	case *image.Gray:
		for y := 0; y < b.Dy(); y++ {
			si := s.PixOffset(b.Min.X, b.Min.Y+y)
			di := y * dst.Stride
			for x := 0; x < b.Dx(); x++ {
				v := s.Pix[si]
				dst.Pix[di], dst.Pix[di+1], dst.Pix[di+2] = v, v, v
				si++
				di += 3
			}
		}
	default:
		for y := 0; y < b.Dy(); y++ {
			di := y * dst.Stride
			for x := 0; x < b.Dx(); x++ {
				c := color.NRGBAModel.Convert(src.At(b.Min.X+x, b.Min.Y+y)).(color.NRGBA)
				dst.Pix[di], dst.Pix[di+1], dst.Pix[di+2] = c.R, c.G, c.B
				di += 3
			}
		}
	}
	return dst
}

// DecodeImage decodes a PNG, JPEG or WebP payload and flattens it to RGB.
func DecodeImage(data []byte) (*RGB, string, error) {
	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, "", fmt.Errorf("unable to decode %d byte image: %w", len(data), err)
	}
	return Flatten(img), format, nil
}
