package pyramid

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/histion/slidetile/slide"
)

// Extension is appended to a slide's filename stem to find its pyramid file.
const Extension = ".tif"

// Cache maps slide filenames to open pyramids under a root directory.  Pyramids are
// opened on first use and kept open until Close.
type Cache struct {
	root string

	mu    sync.RWMutex
	files map[string]*File
	group singleflight.Group
}

// NewCache returns an empty cache of pyramids stored under root.
func NewCache(root string) *Cache {
	return &Cache{
		root:  root,
		files: make(map[string]*File),
	}
}

// Root returns the directory holding the pyramid files.
func (c *Cache) Root() string {
	return c.root
}

// Get returns the open pyramid for a filename stem, opening <root>/<filename>.tif if
// this is the first request for it.  A missing file yields an error wrapping
// slide.ErrResourceNotFound.
func (c *Cache) Get(filename string) (*File, error) {
	c.mu.RLock()
	p, found := c.files[filename]
	c.mu.RUnlock()
	if found {
		return p, nil
	}

	v, err, _ := c.group.Do(filename, func() (interface{}, error) {
		c.mu.RLock()
		p, found := c.files[filename]
		c.mu.RUnlock()
		if found {
			return p, nil
		}
		path := filepath.Join(c.root, filename+Extension)
		p, err := Open(path)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				return nil, fmt.Errorf("pyramid file %s: %w", path, slide.ErrResourceNotFound)
			}
			return nil, err
		}
		c.mu.Lock()
		c.files[filename] = p
		c.mu.Unlock()
		return p, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*File), nil
}

// Len returns the number of open pyramids.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.files)
}

// Close closes every open pyramid.  The cache is empty afterwards and may be reused.
func (c *Cache) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	var errs []error
	for name, p := range c.files {
		if err := p.Close(); err != nil {
			errs = append(errs, fmt.Errorf("closing %s: %w", name, err))
		}
	}
	c.files = make(map[string]*File)
	if len(errs) > 0 {
		slide.Errorf("Failed to close %d pyramid(s)\n", len(errs))
	}
	return errors.Join(errs...)
}
