package tiff

import (
	"encoding/binary"
	"sort"
)

// Builder assembles small TIFF or BigTIFF files in memory for tests.  Blobs are laid
// out right after the header in the order added, followed by the directories.
type Builder struct {
	Order   binary.ByteOrder
	BigTIFF bool

	blobs [][]byte
	size  uint64
	dirs  []*BuilderDirectory

	// FirstIFDOverride, if non-zero, is written as the first directory offset.
	FirstIFDOverride uint64
}

// BuilderDirectory collects the entries of one directory.
type BuilderDirectory struct {
	b       *Builder
	entries []builderEntry
}

type builderEntry struct {
	tag, typ uint16
	count    uint64
	data     []byte
}

// NewBuilder returns a builder for the given byte order and layout.
func NewBuilder(order binary.ByteOrder, bigTIFF bool) *Builder {
	b := &Builder{Order: order, BigTIFF: bigTIFF, size: 8}
	if bigTIFF {
		b.size = 16
	}
	return b
}

func (b *Builder) header() Header {
	return Header{Order: b.Order, BigTIFF: b.BigTIFF}
}

// AddBlob appends raw data and returns its file offset.
func (b *Builder) AddBlob(data []byte) uint64 {
	off := b.size
	b.blobs = append(b.blobs, data)
	b.size += uint64(len(data))
	return off
}

// Pad appends n zero bytes.
func (b *Builder) Pad(n int) {
	b.AddBlob(make([]byte, n))
}

// NextOffset returns the offset at which the next blob or first directory starts.
func (b *Builder) NextOffset() uint64 {
	return b.size
}

// AddDirectory appends a new, empty directory.
func (b *Builder) AddDirectory() *BuilderDirectory {
	d := &BuilderDirectory{b: b}
	b.dirs = append(b.dirs, d)
	return d
}

// Add appends an entry with an already encoded payload.
func (d *BuilderDirectory) Add(tag, typ uint16, count uint64, data []byte) *BuilderDirectory {
	d.entries = append(d.entries, builderEntry{tag: tag, typ: typ, count: count, data: data})
	return d
}

// Short adds a SHORT tag.
func (d *BuilderDirectory) Short(tag uint16, vals ...uint16) *BuilderDirectory {
	data := make([]byte, 2*len(vals))
	for i, v := range vals {
		d.b.Order.PutUint16(data[2*i:], v)
	}
	return d.Add(tag, TypeShort, uint64(len(vals)), data)
}

// Long adds a LONG tag.
func (d *BuilderDirectory) Long(tag uint16, vals ...uint32) *BuilderDirectory {
	data := make([]byte, 4*len(vals))
	for i, v := range vals {
		d.b.Order.PutUint32(data[4*i:], v)
	}
	return d.Add(tag, TypeLong, uint64(len(vals)), data)
}

// Long8 adds a LONG8 tag.
func (d *BuilderDirectory) Long8(tag uint16, vals ...uint64) *BuilderDirectory {
	data := make([]byte, 8*len(vals))
	for i, v := range vals {
		d.b.Order.PutUint64(data[8*i:], v)
	}
	return d.Add(tag, TypeLong8, uint64(len(vals)), data)
}

// ASCII adds a NUL-terminated ASCII tag.
func (d *BuilderDirectory) ASCII(tag uint16, s string) *BuilderDirectory {
	data := append([]byte(s), 0)
	return d.Add(tag, TypeASCII, uint64(len(data)), data)
}

// Undefined adds an UNDEFINED tag holding raw bytes.
func (d *BuilderDirectory) Undefined(tag uint16, data []byte) *BuilderDirectory {
	return d.Add(tag, TypeUndefined, uint64(len(data)), data)
}

func (d *BuilderDirectory) size(h Header) uint64 {
	n := uint64(len(d.entries))
	total := h.CountSize() + n*h.EntrySize() + h.InlineSize()
	for _, e := range d.entries {
		if uint64(len(e.data)) > h.InlineSize() {
			total += uint64(len(e.data)+1) &^ 1
		}
	}
	return total
}

// Bytes returns the assembled file.
func (b *Builder) Bytes() []byte {
	h := b.header()
	offsets := make([]uint64, len(b.dirs))
	end := b.size
	for i, d := range b.dirs {
		offsets[i] = end
		end += d.size(h)
	}
	out := make([]byte, end)

	if b.Order == binary.LittleEndian {
		copy(out, "II")
	} else {
		copy(out, "MM")
	}
	first := uint64(0)
	if len(offsets) > 0 {
		first = offsets[0]
	}
	if b.FirstIFDOverride != 0 {
		first = b.FirstIFDOverride
	}
	if b.BigTIFF {
		b.Order.PutUint16(out[2:], magicBig)
		b.Order.PutUint16(out[4:], 8)
		b.Order.PutUint64(out[8:], first)
	} else {
		b.Order.PutUint16(out[2:], magicClassic)
		b.Order.PutUint32(out[4:], uint32(first))
	}

	pos := uint64(8)
	if b.BigTIFF {
		pos = 16
	}
	for _, blob := range b.blobs {
		copy(out[pos:], blob)
		pos += uint64(len(blob))
	}

	for i, d := range b.dirs {
		entries := make([]builderEntry, len(d.entries))
		copy(entries, d.entries)
		sort.SliceStable(entries, func(x, y int) bool { return entries[x].tag < entries[y].tag })

		off := offsets[i]
		n := uint64(len(entries))
		b.putOffsetWidth(out[off:], h.CountSize(), n)
		entryPos := off + h.CountSize()
		extra := entryPos + n*h.EntrySize() + h.InlineSize()
		for _, e := range entries {
			p := out[entryPos:]
			b.Order.PutUint16(p[0:], e.tag)
			b.Order.PutUint16(p[2:], e.typ)
			var field []byte
			if b.BigTIFF {
				b.Order.PutUint64(p[4:], e.count)
				field = p[12:20]
			} else {
				b.Order.PutUint32(p[4:], uint32(e.count))
				field = p[8:12]
			}
			if uint64(len(e.data)) <= h.InlineSize() {
				copy(field, e.data)
			} else {
				b.putOffsetWidth(field, h.InlineSize(), extra)
				copy(out[extra:], e.data)
				extra += uint64(len(e.data)+1) &^ 1
			}
			entryPos += h.EntrySize()
		}
		next := uint64(0)
		if i+1 < len(offsets) {
			next = offsets[i+1]
		}
		b.putOffsetWidth(out[entryPos:], h.InlineSize(), next)
	}
	return out
}

func (b *Builder) putOffsetWidth(p []byte, width, v uint64) {
	switch width {
	case 2:
		b.Order.PutUint16(p, uint16(v))
	case 4:
		b.Order.PutUint32(p, uint32(v))
	default:
		b.Order.PutUint64(p, v)
	}
}
