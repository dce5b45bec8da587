package tiff

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// Tags consumed by this package.
const (
	TagNewSubfileType   uint16 = 254
	TagImageWidth       uint16 = 256
	TagImageLength      uint16 = 257
	TagBitsPerSample    uint16 = 258
	TagCompression      uint16 = 259
	TagPhotometric      uint16 = 262
	TagImageDescription uint16 = 270
	TagSamplesPerPixel  uint16 = 277
	TagPlanarConfig     uint16 = 284
	TagPredictor        uint16 = 317
	TagTileWidth        uint16 = 322
	TagTileLength       uint16 = 323
	TagTileOffsets      uint16 = 324
	TagTileByteCounts   uint16 = 325
	TagSampleFormat     uint16 = 339
	TagJPEGTables       uint16 = 347
)

// Field type codes.
const (
	TypeByte      uint16 = 1
	TypeASCII     uint16 = 2
	TypeShort     uint16 = 3
	TypeLong      uint16 = 4
	TypeRational  uint16 = 5
	TypeSByte     uint16 = 6
	TypeUndefined uint16 = 7
	TypeSShort    uint16 = 8
	TypeSLong     uint16 = 9
	TypeSRational uint16 = 10
	TypeFloat     uint16 = 11
	TypeDouble    uint16 = 12
	TypeIFD       uint16 = 13
	TypeLong8     uint16 = 16
	TypeSLong8    uint16 = 17
	TypeIFD8      uint16 = 18
)

var typeSizes = map[uint16]uint64{
	TypeByte:      1,
	TypeASCII:     1,
	TypeShort:     2,
	TypeLong:      4,
	TypeRational:  8,
	TypeSByte:     1,
	TypeUndefined: 1,
	TypeSShort:    2,
	TypeSLong:     4,
	TypeSRational: 8,
	TypeFloat:     4,
	TypeDouble:    8,
	TypeIFD:       4,
	TypeLong8:     8,
	TypeSLong8:    8,
	TypeIFD8:      8,
}

// TypeSize returns the byte width of one component of the given type, or 0 if the
// type is unknown.
func TypeSize(typ uint16) uint64 {
	return typeSizes[typ]
}

const (
	magicClassic = 42
	magicBig     = 43

	// MinHeaderSize is the number of bytes needed to decide the layout of any file.
	MinHeaderSize = 16
)

var (
	// ErrNotTIFF is returned for an unrecognized byte-order marker or magic value.
	ErrNotTIFF = errors.New("not a TIFF or BigTIFF file")

	// ErrTruncated is returned when a structure extends past the available bytes.
	ErrTruncated = errors.New("truncated TIFF structure")
)

// Header describes the layout of a classic TIFF or BigTIFF file.
type Header struct {
	Order    binary.ByteOrder
	BigTIFF  bool
	FirstIFD uint64
}

// ParseHeader decodes the file header from the first bytes of a file.
func ParseHeader(b []byte) (Header, error) {
	if len(b) < MinHeaderSize {
		return Header{}, ErrTruncated
	}
	var h Header
	switch string(b[0:2]) {
	case "II":
		h.Order = binary.LittleEndian
	case "MM":
		h.Order = binary.BigEndian
	default:
		return Header{}, fmt.Errorf("%w: byte order marker %q", ErrNotTIFF, b[0:2])
	}
	switch magic := h.Order.Uint16(b[2:4]); magic {
	case magicClassic:
		h.FirstIFD = uint64(h.Order.Uint32(b[4:8]))
	case magicBig:
		h.BigTIFF = true
		if offsetSize := h.Order.Uint16(b[4:6]); offsetSize != 8 {
			return Header{}, fmt.Errorf("%w: BigTIFF offset size %d", ErrNotTIFF, offsetSize)
		}
		h.FirstIFD = h.Order.Uint64(b[8:16])
	default:
		return Header{}, fmt.Errorf("%w: magic %d", ErrNotTIFF, magic)
	}
	return h, nil
}

// CountSize is the byte width of a directory's entry count.
func (h Header) CountSize() uint64 {
	if h.BigTIFF {
		return 8
	}
	return 2
}

// EntrySize is the byte width of one directory entry.
func (h Header) EntrySize() uint64 {
	if h.BigTIFF {
		return 20
	}
	return 12
}

// InlineSize is the largest value payload stored inside an entry, which is also the
// width of offsets.
func (h Header) InlineSize() uint64 {
	if h.BigTIFF {
		return 8
	}
	return 4
}

// Count decodes a directory entry count from b.
func (h Header) Count(b []byte) uint64 {
	if h.BigTIFF {
		return h.Order.Uint64(b)
	}
	return uint64(h.Order.Uint16(b))
}

// Offset decodes an offset-width unsigned value from b.
func (h Header) Offset(b []byte) uint64 {
	if h.BigTIFF {
		return h.Order.Uint64(b)
	}
	return uint64(h.Order.Uint32(b))
}

// Entry is one directory entry.  Value holds the raw value-or-offset field.
type Entry struct {
	Tag   uint16
	Type  uint16
	Count uint64
	Value []byte
}

// ParseEntry decodes one entry from b, which must hold EntrySize bytes.
func (h Header) ParseEntry(b []byte) Entry {
	e := Entry{
		Tag:  h.Order.Uint16(b[0:2]),
		Type: h.Order.Uint16(b[2:4]),
	}
	if h.BigTIFF {
		e.Count = h.Order.Uint64(b[4:12])
		e.Value = b[12:20]
	} else {
		e.Count = uint64(h.Order.Uint32(b[4:8]))
		e.Value = b[8:12]
	}
	return e
}

// PayloadSize returns the total byte size of an entry's value.  The bool is false
// for unknown types or sizes that overflow.
func (e Entry) PayloadSize() (uint64, bool) {
	size := TypeSize(e.Type)
	if size == 0 {
		return 0, false
	}
	if e.Count > (1<<63)/size {
		return 0, false
	}
	return size * e.Count, true
}

// Inline returns true if the entry's value is stored in the entry itself.
func (h Header) Inline(e Entry) bool {
	total, ok := e.PayloadSize()
	return ok && total <= h.InlineSize()
}

// DecodeUint decodes the first component of raw as an unsigned integer.  Only the
// SHORT, LONG, LONG8 and non-negative SLONG8 types yield a value.
func DecodeUint(order binary.ByteOrder, typ uint16, raw []byte) (uint64, bool) {
	switch typ {
	case TypeShort:
		if len(raw) >= 2 {
			return uint64(order.Uint16(raw)), true
		}
	case TypeLong:
		if len(raw) >= 4 {
			return uint64(order.Uint32(raw)), true
		}
	case TypeLong8:
		if len(raw) >= 8 {
			return order.Uint64(raw), true
		}
	case TypeSLong8:
		if len(raw) >= 8 {
			if v := int64(order.Uint64(raw)); v >= 0 {
				return uint64(v), true
			}
		}
	}
	return 0, false
}
