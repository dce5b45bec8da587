package pyramid

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"os"

	"github.com/klauspost/compress/zlib"

	"github.com/histion/slidetile/tiff"
)

// TestLevel describes one level of a synthetic pyramid written by WriteTestPyramid.
type TestLevel struct {
	Width, Height int
	TileSize      int
	Compression   uint16
	Samples       int // 1, 3 or 4; 0 means 3
}

// TestPixel is the color of pixel (x, y), given in level coordinates, of a synthetic
// pyramid level.
func TestPixel(level, x, y int) color.NRGBA {
	return color.NRGBA{R: uint8(x), G: uint8(y), B: uint8(40*level + 20), A: 0xff}
}

// EncodeTestPyramid returns a tiled TIFF (or BigTIFF) holding the given levels filled
// with TestPixel.
func EncodeTestPyramid(bigTIFF bool, levels []TestLevel) ([]byte, error) {
	b := tiff.NewBuilder(binary.LittleEndian, bigTIFF)
	for level, tl := range levels {
		samples := tl.Samples
		if samples == 0 {
			samples = 3
		}
		across := (tl.Width + tl.TileSize - 1) / tl.TileSize
		down := (tl.Height + tl.TileSize - 1) / tl.TileSize
		var offsets, counts []uint32
		for ty := 0; ty < down; ty++ {
			for tx := 0; tx < across; tx++ {
				data, err := encodeTestTile(level, tl, samples, tx, ty)
				if err != nil {
					return nil, err
				}
				offsets = append(offsets, uint32(b.AddBlob(data)))
				counts = append(counts, uint32(len(data)))
			}
		}
		bps := make([]uint16, samples)
		for i := range bps {
			bps[i] = 8
		}
		photometric := uint16(photometricRGB)
		if samples == 1 {
			photometric = photometricBlackIsZero
		}
		b.AddDirectory().
			Long(tiff.TagImageWidth, uint32(tl.Width)).
			Long(tiff.TagImageLength, uint32(tl.Height)).
			Short(tiff.TagBitsPerSample, bps...).
			Short(tiff.TagCompression, tl.Compression).
			Short(tiff.TagPhotometric, photometric).
			Short(tiff.TagSamplesPerPixel, uint16(samples)).
			Short(tiff.TagPlanarConfig, 1).
			Short(tiff.TagTileWidth, uint16(tl.TileSize)).
			Short(tiff.TagTileLength, uint16(tl.TileSize)).
			Long(tiff.TagTileOffsets, offsets...).
			Long(tiff.TagTileByteCounts, counts...)
	}
	return b.Bytes(), nil
}

// WriteTestPyramid writes EncodeTestPyramid output as a classic TIFF file.
func WriteTestPyramid(path string, levels []TestLevel) error {
	data, err := EncodeTestPyramid(false, levels)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

func encodeTestTile(level int, tl TestLevel, samples, tx, ty int) ([]byte, error) {
	ts := tl.TileSize
	if tl.Compression == compressionJPEG {
		img := image.NewNRGBA(image.Rect(0, 0, ts, ts))
		for y := 0; y < ts; y++ {
			for x := 0; x < ts; x++ {
				img.SetNRGBA(x, y, TestPixel(level, tx*ts+x, ty*ts+y))
			}
		}
		var buf bytes.Buffer
		if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 95}); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil
	}

	raw := make([]byte, 0, ts*ts*samples)
	for y := 0; y < ts; y++ {
		for x := 0; x < ts; x++ {
			c := TestPixel(level, tx*ts+x, ty*ts+y)
			switch samples {
			case 1:
				raw = append(raw, c.R)
			case 3:
				raw = append(raw, c.R, c.G, c.B)
			default:
				raw = append(raw, c.R, c.G, c.B, c.A)
			}
		}
	}
	switch tl.Compression {
	case compressionNone:
		return raw, nil
	case compressionDeflate, compressionDeflateOld:
		var buf bytes.Buffer
		zw := zlib.NewWriter(&buf)
		if _, err := zw.Write(raw); err != nil {
			return nil, err
		}
		if err := zw.Close(); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil
	}
	return nil, fmt.Errorf("test pyramids cannot encode compression %d", tl.Compression)
}
