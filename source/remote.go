package source

import (
	"context"
	"encoding/binary"
	"fmt"
	"sync"
	"time"

	"github.com/coocood/freecache"

	"github.com/histion/slidetile/slide"
	"github.com/histion/slidetile/storageapi"
)

const (
	DefaultMaxRetries = 3
	DefaultRetryDelay = 100 * time.Millisecond
	DefaultTimeout    = 30 * time.Second
)

// RemoteOptions configures a Remote source.  Zero values select the defaults.
type RemoteOptions struct {
	// MaxRetries is the total number of attempts per tile.
	MaxRetries int

	// RetryDelay is multiplied by the attempt number to give the sleep after a
	// failed attempt.
	RetryDelay time.Duration

	// Timeout bounds a single attempt.
	Timeout time.Duration

	// CacheMB, if positive, keeps up to that many megabytes of encoded tiles.
	CacheMB int
}

// Remote fetches tiles from the tile service over one reusable connection.
type Remote struct {
	client *storageapi.Client
	opts   RemoteOptions
	cache  *freecache.Cache

	// sleep is replaced in tests.
	sleep func(time.Duration)

	healthOnce sync.Once
}

var _ Source = (*Remote)(nil)

// NewRemote returns a source using client.  The source owns the client.
func NewRemote(client *storageapi.Client, opts RemoteOptions) *Remote {
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = DefaultMaxRetries
	}
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = DefaultRetryDelay
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	r := &Remote{
		client: client,
		opts:   opts,
		sleep:  time.Sleep,
	}
	if opts.CacheMB > 0 {
		r.cache = freecache.NewCache(opts.CacheMB * 1024 * 1024)
		slide.Infof("Created freecache of ~ %d MB for remote tiles.\n", opts.CacheMB)
	}
	return r
}

// DialRemote connects to the tile service at addr.
func DialRemote(addr string, opts RemoteOptions) (*Remote, error) {
	client, err := storageapi.Dial(addr)
	if err != nil {
		return nil, fmt.Errorf("connecting to tile service %s: %w", addr, err)
	}
	return NewRemote(client, opts), nil
}

func cacheKey(id slide.SlideID, x, y, level int) []byte {
	k := make([]byte, 16+12)
	copy(k, id[:])
	binary.BigEndian.PutUint32(k[16:], uint32(level))
	binary.BigEndian.PutUint32(k[20:], uint32(x))
	binary.BigEndian.PutUint32(k[24:], uint32(y))
	return k
}

// FetchTile requests a tile, retrying failed calls with a linearly growing sleep.
// Exhausted retries and undecodable payloads yield a *slide.TileFetchError.
func (r *Remote) FetchTile(ctx context.Context, m slide.Metadata, x, y, level int) (*slide.RGB, error) {
	var key []byte
	if r.cache != nil {
		key = cacheKey(m.ID, x, y, level)
		data, err := r.cache.Get(key)
		if err == nil {
			if img, _, err := slide.DecodeImage(data); err == nil {
				return img, nil
			}
		} else if err != freecache.ErrNotFound {
			slide.Errorf("Unable to read tile cache: %v\n", err)
		}
	}

	var lastErr error
	for attempt := 1; attempt <= r.opts.MaxRetries; attempt++ {
		data, err := r.getTile(ctx, m.ID, x, y, level)
		if err == nil {
			img, format, err := slide.DecodeImage(data)
			if err != nil {
				slide.Warningf("Error decoding tile [%s, %d, %d, level %d]: %v\n", m.ID, x, y, level, err)
				return nil, &slide.TileFetchError{ID: m.ID, X: x, Y: y, Level: level, Attempts: attempt, Err: err}
			}
			slide.Debugf("Fetched %s tile [%s, %d, %d, level %d] (attempt %d)\n", format, m.ID, x, y, level, attempt)
			if r.cache != nil {
				if err := r.cache.Set(key, data, 0); err != nil {
					slide.Debugf("Unable to cache tile [%s, %d, %d, level %d]: %v\n", m.ID, x, y, level, err)
				}
			}
			return img, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		lastErr = err
		if attempt < r.opts.MaxRetries {
			r.sleep(time.Duration(attempt) * r.opts.RetryDelay)
		}
	}
	slide.Warningf("Failed to fetch tile [%s, %d, %d, level %d] after %d attempts: %v\n",
		m.ID, x, y, level, r.opts.MaxRetries, lastErr)
	return nil, &slide.TileFetchError{ID: m.ID, X: x, Y: y, Level: level, Attempts: r.opts.MaxRetries, Err: lastErr}
}

func (r *Remote) getTile(ctx context.Context, id slide.SlideID, x, y, level int) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, r.opts.Timeout)
	defer cancel()
	return r.client.GetTile(ctx, id, uint32(x), uint32(y), uint32(level))
}

// Health calls the service's liveness check.  Failures are logged as warnings and
// returned, but are never fatal to fetching.
func (r *Remote) Health(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, r.opts.Timeout)
	defer cancel()
	healthy, err := r.client.HealthCheck(ctx)
	if err != nil {
		slide.Warningf("Tile service health check failed: %v\n", err)
		return err
	}
	if !healthy {
		slide.Warningf("Tile service reports unhealthy\n")
		return fmt.Errorf("tile service reports unhealthy")
	}
	slide.Infof("Tile service is healthy\n")
	return nil
}

// CheckHealthOnce runs Health on the first call only.
func (r *Remote) CheckHealthOnce(ctx context.Context) {
	r.healthOnce.Do(func() {
		r.Health(ctx)
	})
}

// CacheStats returns the hit and miss counts of the tile cache.
func (r *Remote) CacheStats() (hits, misses int64) {
	if r.cache == nil {
		return 0, 0
	}
	return r.cache.HitCount(), r.cache.MissCount()
}

// Close closes the connection to the tile service.
func (r *Remote) Close() error {
	return r.client.Close()
}
