/*
Package rangeread fetches exact byte ranges of remote slide files.

Readers are stateless apart from their connections and never retry; callers decide
how to react to a *slide.NetworkError.  A Mux routes http(s) URLs to an HTTPReader
and gs://, s3:// and file:// URLs to gocloud.dev buckets opened on first use.
HTTPReader and Mux may be called from several goroutines; each bucket is opened once.
*/
package rangeread

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"path"
	"strings"
	"sync"

	"golang.org/x/sync/singleflight"
)

// Reader fetches the inclusive byte span [start, endInclusive] of a resource.
type Reader interface {
	GetRange(ctx context.Context, url string, start, endInclusive int64) ([]byte, error)
}

// Mux dispatches range reads by URL scheme.
type Mux struct {
	HTTP *HTTPReader

	mu      sync.RWMutex
	buckets map[string]*BucketReader
	group   singleflight.Group
}

// NewMux returns a Mux that uses the given HTTP reader for http and https URLs.
func NewMux(h *HTTPReader) *Mux {
	if h == nil {
		h = NewHTTPWithClient(nil)
	}
	return &Mux{HTTP: h, buckets: make(map[string]*BucketReader)}
}

// GetRange implements Reader.
func (m *Mux) GetRange(ctx context.Context, rawURL string, start, endInclusive int64) ([]byte, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("bad slide URL %q: %w", rawURL, err)
	}
	switch u.Scheme {
	case "http", "https":
		return m.HTTP.GetRange(ctx, rawURL, start, endInclusive)
	case "gs", "s3", "file":
		bucketURL, key := SplitObjectURL(u)
		if key == "" {
			return nil, fmt.Errorf("no object key in %q", rawURL)
		}
		b, err := m.bucket(ctx, bucketURL)
		if err != nil {
			return nil, err
		}
		return b.GetRange(ctx, key, start, endInclusive)
	default:
		return nil, fmt.Errorf("unsupported scheme %q in slide URL %q", u.Scheme, rawURL)
	}
}

// bucket returns the open bucket for a bucket URL, opening it on first use.
func (m *Mux) bucket(ctx context.Context, bucketURL string) (*BucketReader, error) {
	m.mu.RLock()
	b, found := m.buckets[bucketURL]
	m.mu.RUnlock()
	if found {
		return b, nil
	}
	v, err, _ := m.group.Do(bucketURL, func() (interface{}, error) {
		m.mu.RLock()
		b, found := m.buckets[bucketURL]
		m.mu.RUnlock()
		if found {
			return b, nil
		}
		b, err := OpenBucket(ctx, bucketURL)
		if err != nil {
			return nil, err
		}
		m.mu.Lock()
		m.buckets[bucketURL] = b
		m.mu.Unlock()
		return b, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*BucketReader), nil
}

// Len returns the number of open buckets.
func (m *Mux) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.buckets)
}

// Close releases every bucket opened by the Mux.
func (m *Mux) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	var errs []error
	for ref, b := range m.buckets {
		if err := b.Close(); err != nil {
			errs = append(errs, fmt.Errorf("closing bucket %q: %w", ref, err))
		}
		delete(m.buckets, ref)
	}
	return errors.Join(errs...)
}

// SplitObjectURL splits an object URL into its bucket URL and object key.  For
// file URLs the bucket is the containing directory.
func SplitObjectURL(u *url.URL) (bucketURL, key string) {
	var query string
	if u.RawQuery != "" {
		query = "?" + u.RawQuery
	}
	if u.Scheme == "file" {
		dir, file := path.Split(u.Path)
		return "file://" + strings.TrimSuffix(dir, "/") + query, file
	}
	return u.Scheme + "://" + u.Host + query, strings.TrimPrefix(u.Path, "/")
}
