package tiff

import (
	"bytes"
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/histion/slidetile/rangeread"
	"github.com/histion/slidetile/slide"
)

const (
	// HeadSize is the size of the first read, enough for the header and first
	// directory of most slides.
	HeadSize = 64 * 1024

	// MaxValueRead caps the read of an out-of-line tag value.
	MaxValueRead = 256 * 1024

	// refetch margin added to a directory re-read
	refetchMargin = 16

	// upper bound on BigTIFF entry counts we are willing to fetch
	maxProbeEntries = 1 << 20
)

// ProbeResult holds what a probe learned about a remote slide.
type ProbeResult struct {
	Width          uint64
	HasWidth       bool
	Height         uint64
	HasHeight      bool
	Description    string
	HasDescription bool

	// Ranged is true if the header and first directory were parsed from range reads.
	// A false value means the file layout could not be understood, which differs
	// from a parsed directory that lacks the dimension tags.
	Ranged bool

	// Reads is the number of range requests issued.
	Reads int
}

// Dimensions returns the width and height if both tags were present.
func (p ProbeResult) Dimensions() (width, height uint64, ok bool) {
	return p.Width, p.Height, p.HasWidth && p.HasHeight
}

func (p ProbeResult) String() string {
	if !p.Ranged {
		return "unparseable"
	}
	w, h := "?", "?"
	if p.HasWidth {
		w = fmt.Sprintf("%d", p.Width)
	}
	if p.HasHeight {
		h = fmt.Sprintf("%d", p.Height)
	}
	return fmt.Sprintf("%s x %s px", w, h)
}

// probeTypes are the type codes the probe understands; entries of other types are
// skipped.
var probeTypes = map[uint16]bool{
	TypeByte:     true,
	TypeASCII:    true,
	TypeShort:    true,
	TypeLong:     true,
	TypeRational: true,
	TypeLong8:    true,
	TypeSLong8:   true,
}

type prober struct {
	ctx    context.Context
	reader rangeread.Reader
	url    string
	reads  int
}

func (p *prober) get(start, endInclusive uint64) ([]byte, error) {
	p.reads++
	return p.reader.GetRange(p.ctx, p.url, int64(start), int64(endInclusive))
}

// Probe determines the width, height and description of the first image directory
// of a remote TIFF or BigTIFF file using a few small range reads.  An unparseable or
// truncated layout yields a result with Ranged == false and a nil error.  Errors from
// the reader are returned.
func Probe(ctx context.Context, r rangeread.Reader, url string) (ProbeResult, error) {
	timedLog := slide.NewTimeLog()
	p := &prober{ctx: ctx, reader: r, url: url}
	result, err := p.probe()
	result.Reads = p.reads
	if err != nil {
		return result, err
	}
	timedLog.Debugf("Probed %s: %s in %d range reads", url, result, p.reads)
	return result, nil
}

func (p *prober) probe() (ProbeResult, error) {
	head, err := p.get(0, HeadSize-1)
	if err != nil {
		return ProbeResult{}, err
	}
	h, err := ParseHeader(head)
	if err != nil {
		slide.Debugf("Probe of %s failed: %v\n", p.url, err)
		return ProbeResult{}, nil
	}

	entries, err := p.directoryEntries(h, head)
	if err != nil {
		return ProbeResult{}, err
	}
	if entries == nil {
		slide.Debugf("Probe of %s failed: truncated first directory at offset %d\n", p.url, h.FirstIFD)
		return ProbeResult{}, nil
	}

	result := ProbeResult{Ranged: true}
	es := h.EntrySize()
	for i := uint64(0); i+es <= uint64(len(entries)); i += es {
		e := h.ParseEntry(entries[i : i+es])
		if e.Tag != TagImageWidth && e.Tag != TagImageLength && e.Tag != TagImageDescription {
			continue
		}
		if !probeTypes[e.Type] {
			continue
		}
		raw, ok, err := p.value(h, e)
		if err != nil {
			return ProbeResult{}, err
		}
		if !ok {
			slide.Debugf("Probe of %s failed: tag %d value offset out of range\n", p.url, e.Tag)
			return ProbeResult{}, nil
		}
		switch e.Tag {
		case TagImageWidth:
			result.Width, result.HasWidth = DecodeUint(h.Order, e.Type, raw)
		case TagImageLength:
			result.Height, result.HasHeight = DecodeUint(h.Order, e.Type, raw)
		case TagImageDescription:
			if i := bytes.IndexByte(raw, 0); i >= 0 {
				raw = raw[:i]
			}
			result.Description = strings.ToValidUTF8(string(raw), "�")
			result.HasDescription = true
		}
	}
	return result, nil
}

// directoryEntries returns the raw entry array of the first directory, refetching
// at most twice if the head does not contain it.  A nil slice with nil error means
// the directory is truncated.
func (p *prober) directoryEntries(h Header, head []byte) ([]byte, error) {
	cs, es := h.CountSize(), h.EntrySize()
	ifd := h.FirstIFD
	buf, pos := head, ifd

	if ifd > uint64(len(head)) || uint64(len(head))-ifd < cs {
		window := uint64(4096)
		if h.BigTIFF {
			window = 8192
		}
		if !inRange(ifd, window) {
			return nil, nil
		}
		chunk, err := p.get(ifd, ifd+window-1)
		if err != nil {
			return nil, err
		}
		if uint64(len(chunk)) < cs {
			return nil, nil
		}
		buf, pos = chunk, 0
	}

	n := h.Count(buf[pos : pos+cs])
	if n > maxProbeEntries {
		return nil, nil
	}
	need := cs + n*es
	if uint64(len(buf))-pos < need {
		if !inRange(ifd, need+refetchMargin+1) {
			return nil, nil
		}
		chunk, err := p.get(ifd, ifd+need+refetchMargin)
		if err != nil {
			return nil, err
		}
		if uint64(len(chunk)) < need {
			return nil, nil
		}
		buf, pos = chunk, 0
	}
	return buf[pos+cs : pos+need], nil
}

// value returns the raw payload of an entry, reading it from the file if it is not
// stored inline.  ok is false if the value lies beyond any addressable offset.
func (p *prober) value(h Header, e Entry) (raw []byte, ok bool, err error) {
	total, known := e.PayloadSize()
	if known && total <= h.InlineSize() {
		return e.Value[:total], true, nil
	}
	size := uint64(MaxValueRead)
	if known && total < size {
		size = total
	}
	off := h.Offset(e.Value)
	if !inRange(off, size) {
		return nil, false, nil
	}
	raw, err = p.get(off, off+size-1)
	return raw, err == nil, err
}

// inRange returns true if the span of size bytes at off has a representable end
// offset.
func inRange(off, size uint64) bool {
	return size <= math.MaxInt64 && off <= math.MaxInt64-size
}
