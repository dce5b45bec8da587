package pyramid

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
	"io"

	"github.com/klauspost/compress/zlib"
	"golang.org/x/image/draw"
	"golang.org/x/image/tiff/lzw"
)

const (
	compressionNone        = 1
	compressionLZW         = 5
	compressionJPEG        = 7
	compressionDeflate     = 8
	compressionDeflateOld  = 32946
	photometricWhiteIsZero = 0
	photometricBlackIsZero = 1
	photometricRGB         = 2
	photometricYCbCr       = 6
	predictorHorizontal    = 2
)

func compressionSupported(c uint64) bool {
	switch c {
	case compressionNone, compressionLZW, compressionJPEG, compressionDeflate, compressionDeflateOld:
		return true
	}
	return false
}

// decodeTile turns one compressed tile payload into a tile-sized image.
func decodeTile(lvl *Level, data []byte) (*image.NRGBA, error) {
	if lvl.compression == compressionJPEG {
		return decodeJPEGTile(lvl, data)
	}
	if lvl.photometric == photometricYCbCr {
		return nil, fmt.Errorf("unsupported YCbCr photometric for compression %d", lvl.compression)
	}

	tw, th := int(lvl.TileWidth), int(lvl.TileHeight)
	rowSize := tw * lvl.samples
	raw := make([]byte, rowSize*th)
	var r io.Reader
	switch lvl.compression {
	case compressionNone:
		r = bytes.NewReader(data)
	case compressionLZW:
		lr := lzw.NewReader(bytes.NewReader(data), lzw.MSB, 8)
		defer lr.Close()
		r = lr
	case compressionDeflate, compressionDeflateOld:
		zr, err := zlib.NewReader(bytes.NewReader(data))
		if err != nil {
			return nil, err
		}
		defer zr.Close()
		r = zr
	default:
		return nil, fmt.Errorf("unsupported compression %d", lvl.compression)
	}
	if _, err := io.ReadFull(r, raw); err != nil {
		return nil, fmt.Errorf("decompressing tile: %w", err)
	}

	switch lvl.predictor {
	case 1:
	case predictorHorizontal:
		for y := 0; y < th; y++ {
			row := raw[y*rowSize : (y+1)*rowSize]
			for i := lvl.samples; i < rowSize; i++ {
				row[i] += row[i-lvl.samples]
			}
		}
	default:
		return nil, fmt.Errorf("unsupported predictor %d", lvl.predictor)
	}

	img := image.NewNRGBA(image.Rect(0, 0, tw, th))
	for y := 0; y < th; y++ {
		src := raw[y*rowSize : (y+1)*rowSize]
		dst := img.Pix[y*img.Stride : y*img.Stride+4*tw]
		for x := 0; x < tw; x++ {
			d := dst[4*x : 4*x+4]
			switch lvl.samples {
			case 1:
				v := src[x]
				if lvl.photometric == photometricWhiteIsZero {
					v = 255 - v
				}
				d[0], d[1], d[2], d[3] = v, v, v, 0xff
			case 3:
				d[0], d[1], d[2], d[3] = src[3*x], src[3*x+1], src[3*x+2], 0xff
			case 4:
				copy(d, src[4*x:4*x+4])
			}
		}
	}
	return img, nil
}

// decodeJPEGTile decodes an abbreviated JPEG stream, prefixing the shared tables
// if the level has them.
func decodeJPEGTile(lvl *Level, data []byte) (*image.NRGBA, error) {
	if len(lvl.jpegTables) >= 4 && len(data) >= 2 {
		spliced := make([]byte, 0, len(lvl.jpegTables)+len(data))
		spliced = append(spliced, lvl.jpegTables[:len(lvl.jpegTables)-2]...) // drop EOI
		spliced = append(spliced, data[2:]...)                                 // drop SOI
		data = spliced
	}
	src, err := jpeg.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decoding JPEG tile: %w", err)
	}
	img := image.NewNRGBA(image.Rect(0, 0, int(lvl.TileWidth), int(lvl.TileHeight)))
	draw.Draw(img, img.Bounds(), src, src.Bounds().Min, draw.Src)
	return img, nil
}
