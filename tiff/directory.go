package tiff

import (
	"fmt"
	"io"
)

const maxDirectories = 4096

// Directory is a fully decoded image file directory of a local file.
type Directory struct {
	Offset  uint64
	Entries map[uint16]Entry

	header Header
	r      io.ReaderAt
}

// Has returns true if the directory holds the tag.
func (d *Directory) Has(tag uint16) bool {
	_, found := d.Entries[tag]
	return found
}

// Uint returns the first value of an integer tag.
func (d *Directory) Uint(tag uint16) (uint64, bool) {
	vals, err := d.Uints(tag)
	if err != nil || len(vals) == 0 {
		return 0, false
	}
	return vals[0], true
}

// UintOr returns the first value of an integer tag or def if it is absent.
func (d *Directory) UintOr(tag uint16, def uint64) uint64 {
	if v, ok := d.Uint(tag); ok {
		return v
	}
	return def
}

// Uints returns every value of an unsigned integer tag (BYTE, SHORT, LONG, LONG8,
// IFD or IFD8 types).
func (d *Directory) Uints(tag uint16) ([]uint64, error) {
	e, found := d.Entries[tag]
	if !found {
		return nil, nil
	}
	raw, err := d.Raw(tag)
	if err != nil {
		return nil, err
	}
	size := TypeSize(e.Type)
	vals := make([]uint64, 0, e.Count)
	order := d.header.Order
	for i := uint64(0); i < e.Count; i++ {
		b := raw[i*size : (i+1)*size]
		switch e.Type {
		case TypeByte, TypeUndefined:
			vals = append(vals, uint64(b[0]))
		case TypeShort:
			vals = append(vals, uint64(order.Uint16(b)))
		case TypeLong, TypeIFD:
			vals = append(vals, uint64(order.Uint32(b)))
		case TypeLong8, TypeIFD8:
			vals = append(vals, order.Uint64(b))
		default:
			return nil, fmt.Errorf("tag %d has non-integer type %d", tag, e.Type)
		}
	}
	return vals, nil
}

// Raw returns the complete payload bytes of a tag.
func (d *Directory) Raw(tag uint16) ([]byte, error) {
	e, found := d.Entries[tag]
	if !found {
		return nil, nil
	}
	total, ok := e.PayloadSize()
	if !ok {
		return nil, fmt.Errorf("tag %d has unknown type %d or bad count %d", tag, e.Type, e.Count)
	}
	if total <= d.header.InlineSize() {
		return e.Value[:total], nil
	}
	if total > 1<<31 {
		return nil, fmt.Errorf("tag %d payload of %d bytes is too large", tag, total)
	}
	buf := make([]byte, total)
	if _, err := d.r.ReadAt(buf, int64(d.header.Offset(e.Value))); err != nil {
		return nil, fmt.Errorf("reading tag %d payload: %w", tag, err)
	}
	return buf, nil
}

// ReadDirectories decodes the header and the whole chain of directories of a file.
func ReadDirectories(r io.ReaderAt) (Header, []*Directory, error) {
	head := make([]byte, MinHeaderSize)
	if _, err := r.ReadAt(head, 0); err != nil {
		return Header{}, nil, fmt.Errorf("%w: %v", ErrTruncated, err)
	}
	h, err := ParseHeader(head)
	if err != nil {
		return Header{}, nil, err
	}

	var dirs []*Directory
	visited := make(map[uint64]bool)
	for off := h.FirstIFD; off != 0; {
		if visited[off] {
			return h, nil, fmt.Errorf("directory loop at offset %d", off)
		}
		if len(dirs) >= maxDirectories {
			return h, nil, fmt.Errorf("more than %d directories", maxDirectories)
		}
		visited[off] = true

		d, next, err := readDirectory(r, h, off)
		if err != nil {
			return h, nil, err
		}
		dirs = append(dirs, d)
		off = next
	}
	return h, dirs, nil
}

func readDirectory(r io.ReaderAt, h Header, off uint64) (*Directory, uint64, error) {
	cs, es, nextSize := h.CountSize(), h.EntrySize(), h.InlineSize()
	countBuf := make([]byte, cs)
	if _, err := r.ReadAt(countBuf, int64(off)); err != nil {
		return nil, 0, fmt.Errorf("%w: directory count at %d: %v", ErrTruncated, off, err)
	}
	n := h.Count(countBuf)
	if n > 1<<16 {
		return nil, 0, fmt.Errorf("directory at %d claims %d entries", off, n)
	}
	buf := make([]byte, n*es+nextSize)
	if _, err := r.ReadAt(buf, int64(off+cs)); err != nil {
		return nil, 0, fmt.Errorf("%w: directory at %d: %v", ErrTruncated, off, err)
	}
	d := &Directory{
		Offset:  off,
		Entries: make(map[uint16]Entry, n),
		header:  h,
		r:       r,
	}
	for i := uint64(0); i < n; i++ {
		e := h.ParseEntry(buf[i*es : (i+1)*es])
		d.Entries[e.Tag] = e
	}
	return d, h.Offset(buf[n*es:]), nil
}
