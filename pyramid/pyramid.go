/*
	Package pyramid reads regions of local tiled pyramidal TIFF and BigTIFF slide files.
	Every tiled image directory of a file is one resolution level.  Levels are ordered
	from the largest (level 0) down, and region requests are given in level 0
	coordinates like other whole-slide libraries do.
*/
package pyramid

import (
	"fmt"
	"image"
	"os"
	"sort"

	"golang.org/x/image/draw"

	"github.com/histion/slidetile/slide"
	"github.com/histion/slidetile/tiff"
)

// Level is one resolution of a pyramid.
type Level struct {
	Width, Height         int64
	TileWidth, TileHeight int64
	Downsample            float64

	tilesAcross, tilesDown int64
	offsets, byteCounts    []uint64
	compression            uint64
	photometric            uint64
	predictor              uint64
	samples                int
	jpegTables             []byte
}

// File is an open pyramid.  It is safe for concurrent use.
type File struct {
	path   string
	f      *os.File
	levels []*Level
}

// Open parses the directories of a pyramid file.  The file stays open until Close.
func Open(path string) (*File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	timedLog := slide.NewTimeLog()
	_, dirs, err := tiff.ReadDirectories(f)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("pyramid %q: %w", path, err)
	}
	var levels []*Level
	for _, d := range dirs {
		if !d.Has(tiff.TagTileWidth) || !d.Has(tiff.TagTileOffsets) {
			continue
		}
		if d.UintOr(tiff.TagNewSubfileType, 0)&4 != 0 {
			continue // transparency mask
		}
		lvl, err := newLevel(d)
		if err != nil {
			f.Close()
			return nil, fmt.Errorf("pyramid %q directory at %d: %w", path, d.Offset, err)
		}
		levels = append(levels, lvl)
	}
	if len(levels) == 0 {
		f.Close()
		return nil, fmt.Errorf("pyramid %q has no tiled image directories", path)
	}
	sort.SliceStable(levels, func(i, j int) bool { return levels[i].Width > levels[j].Width })
	base := levels[0]
	for _, lvl := range levels {
		lvl.Downsample = (float64(base.Width)/float64(lvl.Width) + float64(base.Height)/float64(lvl.Height)) / 2
	}
	timedLog.Debugf("Opened pyramid %s with %d levels, %d x %d at level 0", path, len(levels), base.Width, base.Height)
	return &File{path: path, f: f, levels: levels}, nil
}

func newLevel(d *tiff.Directory) (*Level, error) {
	lvl := &Level{
		Width:       int64(d.UintOr(tiff.TagImageWidth, 0)),
		Height:      int64(d.UintOr(tiff.TagImageLength, 0)),
		TileWidth:   int64(d.UintOr(tiff.TagTileWidth, 0)),
		TileHeight:  int64(d.UintOr(tiff.TagTileLength, 0)),
		compression: d.UintOr(tiff.TagCompression, compressionNone),
		photometric: d.UintOr(tiff.TagPhotometric, photometricRGB),
		predictor:   d.UintOr(tiff.TagPredictor, 1),
		samples:     int(d.UintOr(tiff.TagSamplesPerPixel, 1)),
	}
	if lvl.Width <= 0 || lvl.Height <= 0 || lvl.TileWidth <= 0 || lvl.TileHeight <= 0 {
		return nil, fmt.Errorf("bad geometry %d x %d with %d x %d tiles", lvl.Width, lvl.Height, lvl.TileWidth, lvl.TileHeight)
	}
	if lvl.samples != 1 && lvl.samples != 3 && lvl.samples != 4 {
		return nil, fmt.Errorf("unsupported samples per pixel %d", lvl.samples)
	}
	bps, err := d.Uints(tiff.TagBitsPerSample)
	if err != nil {
		return nil, err
	}
	for _, b := range bps {
		if b != 8 {
			return nil, fmt.Errorf("unsupported bits per sample %v", bps)
		}
	}
	if pc := d.UintOr(tiff.TagPlanarConfig, 1); pc != 1 && lvl.samples > 1 {
		return nil, fmt.Errorf("unsupported planar configuration %d", pc)
	}
	if sf := d.UintOr(tiff.TagSampleFormat, 1); sf != 1 {
		return nil, fmt.Errorf("unsupported sample format %d", sf)
	}
	if !compressionSupported(lvl.compression) {
		return nil, fmt.Errorf("unsupported compression %d", lvl.compression)
	}
	if lvl.offsets, err = d.Uints(tiff.TagTileOffsets); err != nil {
		return nil, err
	}
	if lvl.byteCounts, err = d.Uints(tiff.TagTileByteCounts); err != nil {
		return nil, err
	}
	lvl.tilesAcross = (lvl.Width + lvl.TileWidth - 1) / lvl.TileWidth
	lvl.tilesDown = (lvl.Height + lvl.TileHeight - 1) / lvl.TileHeight
	n := lvl.tilesAcross * lvl.tilesDown
	if int64(len(lvl.offsets)) < n || int64(len(lvl.byteCounts)) < n {
		return nil, fmt.Errorf("expected %d tiles, have %d offsets and %d byte counts", n, len(lvl.offsets), len(lvl.byteCounts))
	}
	if lvl.compression == compressionJPEG {
		if lvl.jpegTables, err = d.Raw(tiff.TagJPEGTables); err != nil {
			return nil, err
		}
	}
	return lvl, nil
}

// Path returns the file path the pyramid was opened from.
func (p *File) Path() string {
	return p.path
}

// LevelCount returns the number of resolution levels.
func (p *File) LevelCount() int {
	return len(p.levels)
}

// Level returns the description of a level or nil if it does not exist.
func (p *File) Level(level int) *Level {
	if level < 0 || level >= len(p.levels) {
		return nil
	}
	return p.levels[level]
}

// LevelDownsample returns the factor between level 0 and the given level.
func (p *File) LevelDownsample(level int) float64 {
	if lvl := p.Level(level); lvl != nil {
		return lvl.Downsample
	}
	return 0
}

// LevelDimensions returns the width and height of a level.
func (p *File) LevelDimensions(level int) (width, height int64) {
	if lvl := p.Level(level); lvl != nil {
		return lvl.Width, lvl.Height
	}
	return 0, 0
}

// ReadRegion returns a w x h image of the given level whose top left corner is at
// (x0, y0) in level 0 coordinates.  Pixels outside the level are transparent black.
func (p *File) ReadRegion(x0, y0 int64, level, w, h int) (*image.NRGBA, error) {
	lvl := p.Level(level)
	if lvl == nil {
		return nil, fmt.Errorf("pyramid %q has no level %d", p.path, level)
	}
	if w <= 0 || h <= 0 {
		return nil, fmt.Errorf("bad region size %d x %d", w, h)
	}
	dst := image.NewNRGBA(image.Rect(0, 0, w, h))

	lx := int64(float64(x0) / lvl.Downsample)
	ly := int64(float64(y0) / lvl.Downsample)
	region := image.Rect(int(lx), int(ly), int(lx)+w, int(ly)+h)
	visible := region.Intersect(image.Rect(0, 0, int(lvl.Width), int(lvl.Height)))
	if visible.Empty() {
		return dst, nil
	}

	tw, th := int(lvl.TileWidth), int(lvl.TileHeight)
	for ty := visible.Min.Y / th; ty <= (visible.Max.Y-1)/th; ty++ {
		for tx := visible.Min.X / tw; tx <= (visible.Max.X-1)/tw; tx++ {
			tile, err := p.readTile(lvl, int64(tx), int64(ty))
			if err != nil {
				return nil, fmt.Errorf("pyramid %q level %d tile (%d, %d): %w", p.path, level, tx, ty, err)
			}
			tileRect := image.Rect(tx*tw, ty*th, (tx+1)*tw, (ty+1)*th).Intersect(visible)
			draw.Draw(dst, tileRect.Sub(region.Min), tile, tileRect.Min.Sub(image.Pt(tx*tw, ty*th)), draw.Src)
		}
	}
	return dst, nil
}

func (p *File) readTile(lvl *Level, tx, ty int64) (*image.NRGBA, error) {
	i := ty*lvl.tilesAcross + tx
	offset, count := lvl.offsets[i], lvl.byteCounts[i]
	if count == 0 {
		// sparse tile
		return image.NewNRGBA(image.Rect(0, 0, int(lvl.TileWidth), int(lvl.TileHeight))), nil
	}
	if count > 1<<30 {
		return nil, fmt.Errorf("tile of %d bytes is too large", count)
	}
	buf := make([]byte, count)
	if _, err := p.f.ReadAt(buf, int64(offset)); err != nil {
		return nil, err
	}
	return decodeTile(lvl, buf)
}

// Close releases the file handle.
func (p *File) Close() error {
	return p.f.Close()
}
