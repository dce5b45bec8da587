package sampler

import (
	"context"
	"errors"
	"fmt"
	"math/rand"

	"github.com/histion/slidetile/slide"
	"github.com/histion/slidetile/source"
)

const (
	DefaultTilesPerSlide = 100
	DefaultMaxAttempts   = 10
)

// ErrExhausted is returned when no valid tile was found within the attempt and slide
// switch budgets.
var ErrExhausted = errors.New("no valid tile found within sampling budget")

// Options configures a Dataset.  Zero values select the defaults.
type Options struct {
	TileSize      int
	Level         int
	TilesPerSlide int

	// MaxAttempts is the number of tiles tried on a slide before switching.
	MaxAttempts int

	// MaxSlideSwitches bounds how often one Get call may move to another slide.  The
	// default is the number of slides.
	MaxSlideSwitches int

	// Augment enables random flips and rotations of returned tiles.
	Augment bool

	// ColorJitter is the strength of a random color jitter applied to returned tiles.
	// Zero disables it.
	ColorJitter float64

	// Validator overrides the default content thresholds.
	Validator *Validator
}

// Sample is one valid tile.
type Sample struct {
	Coord    Coord
	Filename string
	Tile     *slide.RGB

	// Attempts counts the fetches made for this sample, Switches the slide changes.
	Attempts int
	Switches int
}

// Dataset serves random valid tiles from a fixed slide population.  It is not safe
// for concurrent use; run one Dataset per goroutine.
type Dataset struct {
	slides    []slide.Metadata
	src       source.Source
	rng       *rand.Rand
	opts      Options
	validator Validator
}

// NewDataset returns a dataset over usable slides.  The random source drives tile
// positions, slide switches and augmentation.
func NewDataset(slides []slide.Metadata, src source.Source, rng *rand.Rand, opts Options) (*Dataset, error) {
	if len(slides) == 0 {
		return nil, fmt.Errorf("dataset needs at least one slide")
	}
	if opts.TileSize <= 0 {
		return nil, fmt.Errorf("tile size must be positive, got %d", opts.TileSize)
	}
	for _, m := range slides {
		if !m.Usable() {
			return nil, fmt.Errorf("slide %s has no whole tiles", m.ID)
		}
	}
	if opts.TilesPerSlide <= 0 {
		opts.TilesPerSlide = DefaultTilesPerSlide
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = DefaultMaxAttempts
	}
	if opts.MaxSlideSwitches <= 0 {
		opts.MaxSlideSwitches = len(slides)
	}
	validator := DefaultValidator()
	if opts.Validator != nil {
		validator = *opts.Validator
	}
	return &Dataset{
		slides:    slides,
		src:       src,
		rng:       rng,
		opts:      opts,
		validator: validator,
	}, nil
}

// Len returns the nominal number of samples.
func (d *Dataset) Len() int {
	return len(d.slides) * d.opts.TilesPerSlide
}

type outcome int

const (
	valid outcome = iota
	retry
	switchSlide
)

// Get returns a valid tile starting from slide idx mod the population size.  A
// missing local slide file or a canceled context ends the call with that error.
func (d *Dataset) Get(ctx context.Context, idx int) (*Sample, error) {
	n := len(d.slides)
	cur := ((idx % n) + n) % n
	sample := &Sample{}
	tries := 0
	for {
		m := d.slides[cur]
		result, err := d.attempt(ctx, m, sample, tries)
		if err != nil {
			return nil, err
		}
		switch result {
		case valid:
			if d.opts.Augment {
				sample.Tile = Augment(d.rng, sample.Tile)
			}
			if d.opts.ColorJitter > 0 {
				sample.Tile = ColorJitter(d.rng, sample.Tile, d.opts.ColorJitter)
			}
			return sample, nil
		case retry:
			tries++
		case switchSlide:
			if sample.Switches >= d.opts.MaxSlideSwitches {
				slide.Warningf("Giving up after %d fetches across %d slide switches\n", sample.Attempts, sample.Switches)
				return nil, fmt.Errorf("%w: %d attempts, %d slide switches", ErrExhausted, sample.Attempts, sample.Switches)
			}
			sample.Switches++
			next := d.otherSlide(cur)
			slide.Debugf("No valid tile in %d attempts on slide %s, switching to %s\n",
				d.opts.MaxAttempts, m.ID, d.slides[next].ID)
			cur, tries = next, 0
		}
	}
}

// attempt fetches and checks one random tile of a slide.
func (d *Dataset) attempt(ctx context.Context, m slide.Metadata, sample *Sample, tries int) (outcome, error) {
	if tries >= d.opts.MaxAttempts {
		return switchSlide, nil
	}
	if err := ctx.Err(); err != nil {
		return retry, err
	}
	x, y := RandomCoord(d.rng, m.MaxTilesX, m.MaxTilesY)
	coord := Coord{ID: m.ID, X: x, Y: y, Level: d.opts.Level}
	sample.Attempts++

	tile, err := d.src.FetchTile(ctx, m, x, y, d.opts.Level)
	if err != nil {
		if errors.Is(err, slide.ErrResourceNotFound) {
			return retry, err
		}
		if ctx.Err() != nil {
			return retry, ctx.Err()
		}
		slide.Debugf("Rejected tile %s: %v\n", coord, err)
		return retry, nil
	}
	if w, h := tile.Size(); w != d.opts.TileSize || h != d.opts.TileSize {
		slide.Debugf("Rejected tile %s: size %d x %d\n", coord, w, h)
		return retry, nil
	}
	if !d.validator.Valid(tile) {
		return retry, nil
	}
	sample.Coord = coord
	sample.Filename = m.Filename
	sample.Tile = tile
	return valid, nil
}

// otherSlide picks a random slide different from cur, or cur if it is the only one.
func (d *Dataset) otherSlide(cur int) int {
	n := len(d.slides)
	if n == 1 {
		return cur
	}
	next := d.rng.Intn(n - 1)
	if next >= cur {
		next++
	}
	return next
}
