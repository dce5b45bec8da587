/*
	Package source fetches single RGB tiles of a slide, either from a local pyramid
	file or from a remote tile service.
*/
package source

import (
	"context"

	"github.com/histion/slidetile/slide"
)

// Source returns the tile at tile grid position (x, y) of a level of a slide.  The
// returned image is tile sized when the source behaves; callers still check.
type Source interface {
	FetchTile(ctx context.Context, m slide.Metadata, x, y, level int) (*slide.RGB, error)
	Close() error
}
