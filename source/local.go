package source

import (
	"context"

	"github.com/histion/slidetile/pyramid"
	"github.com/histion/slidetile/slide"
)

// Local reads tiles from pyramid files under a root directory.  It owns its handle
// cache, so Close must be called once the source is no longer needed.
type Local struct {
	cache    *pyramid.Cache
	tileSize int
}

var _ Source = (*Local)(nil)

// NewLocal returns a source over <root>/<filename>.tif pyramids.
func NewLocal(root string, tileSize int) *Local {
	return &Local{
		cache:    pyramid.NewCache(root),
		tileSize: tileSize,
	}
}

// FetchTile reads a tileSize square at the requested level.  Levels beyond the
// pyramid are clamped to its smallest level.  A missing pyramid file yields an error
// wrapping slide.ErrResourceNotFound.
func (l *Local) FetchTile(ctx context.Context, m slide.Metadata, x, y, level int) (*slide.RGB, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p, err := l.cache.Get(m.Filename)
	if err != nil {
		return nil, err
	}
	if level >= p.LevelCount() {
		level = p.LevelCount() - 1
	}
	if level < 0 {
		level = 0
	}
	ds := p.LevelDownsample(level)
	px, py := x*l.tileSize, y*l.tileSize
	x0, y0 := int64(float64(px)*ds), int64(float64(py)*ds)

	img, err := p.ReadRegion(x0, y0, level, l.tileSize, l.tileSize)
	if err != nil {
		return nil, err
	}
	return slide.Flatten(img), nil
}

// OpenFiles returns the number of pyramid files currently held open.
func (l *Local) OpenFiles() int {
	return l.cache.Len()
}

// Close releases every pyramid file handle.
func (l *Local) Close() error {
	return l.cache.Close()
}
