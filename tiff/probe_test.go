package tiff

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/histion/slidetile/slide"
)

// memReader serves byte ranges of an in-memory file and counts requests.
type memReader struct {
	data     []byte
	requests [][2]int64
	err      error
}

func (m *memReader) GetRange(ctx context.Context, url string, start, endInclusive int64) ([]byte, error) {
	m.requests = append(m.requests, [2]int64{start, endInclusive})
	if m.err != nil {
		return nil, m.err
	}
	if start < 0 || endInclusive < start {
		return nil, fmt.Errorf("bad byte range [%d, %d] for %s", start, endInclusive, url)
	}
	if start >= int64(len(m.data)) {
		return []byte{}, nil
	}
	end := endInclusive + 1
	if end > int64(len(m.data)) {
		end = int64(len(m.data))
	}
	return m.data[start:end], nil
}

func probeBytes(t *testing.T, data []byte) (ProbeResult, *memReader) {
	r := &memReader{data: data}
	result, err := Probe(context.Background(), r, "mem://slide")
	if err != nil {
		t.Fatalf("unexpected probe error: %v\n", err)
	}
	if result.Reads != len(r.requests) {
		t.Errorf("result reports %d reads, reader saw %d\n", result.Reads, len(r.requests))
	}
	return result, r
}

func checkDims(t *testing.T, result ProbeResult, width, height uint64) {
	t.Helper()
	if !result.Ranged {
		t.Fatalf("expected successful probe, got %+v\n", result)
	}
	w, h, ok := result.Dimensions()
	if !ok || w != width || h != height {
		t.Errorf("expected %d x %d, got %d x %d (ok %t)\n", width, height, w, h, ok)
	}
}

func TestProbeClassicLittleEndian(t *testing.T) {
	b := NewBuilder(binary.LittleEndian, false)
	b.AddDirectory().
		Short(TagImageWidth, 46000).
		Long(TagImageLength, 32914).
		Short(TagCompression, 7)
	result, r := probeBytes(t, b.Bytes())
	checkDims(t, result, 46000, 32914)
	if len(r.requests) != 1 {
		t.Errorf("inline SHORT width should need no extra read, got %d reads\n", len(r.requests))
	}
	if r.requests[0] != [2]int64{0, HeadSize - 1} {
		t.Errorf("expected first read of 64 KiB, got %v\n", r.requests[0])
	}
	if result.HasDescription {
		t.Errorf("expected no description\n")
	}
}

func TestProbeClassicBigEndian(t *testing.T) {
	b := NewBuilder(binary.BigEndian, false)
	b.AddDirectory().Long(TagImageWidth, 120000).Long(TagImageLength, 80000)
	result, _ := probeBytes(t, b.Bytes())
	checkDims(t, result, 120000, 80000)
}

func TestProbeBigTIFF(t *testing.T) {
	for _, order := range []binary.ByteOrder{binary.LittleEndian, binary.BigEndian} {
		b := NewBuilder(order, true)
		b.AddDirectory().
			Long8(TagImageWidth, 5000000000).
			Short(TagImageLength, 40000)
		result, r := probeBytes(t, b.Bytes())
		checkDims(t, result, 5000000000, 40000)
		if len(r.requests) != 1 {
			t.Errorf("%v: expected a single read, got %d\n", order, len(r.requests))
		}
	}
}

func TestProbeDescriptionOutOfLine(t *testing.T) {
	desc := "Aperio Image Library v12.0.15 46000x32914 [0,100 46000x32914] (240x240) JPEG/RGB Q=70|AppMag = 40|MPP = 0.2520"
	for _, big := range []bool{false, true} {
		b := NewBuilder(binary.LittleEndian, big)
		b.AddDirectory().
			Short(TagImageWidth, 46000).
			Short(TagImageLength, 32914).
			ASCII(TagImageDescription, desc)
		result, r := probeBytes(t, b.Bytes())
		checkDims(t, result, 46000, 32914)
		if len(r.requests) != 2 {
			t.Errorf("bigtiff=%t: expected exactly one extra read for the description, got %d reads\n", big, len(r.requests))
		}
		if !result.HasDescription || result.Description != desc {
			t.Errorf("bigtiff=%t: bad description %q\n", big, result.Description)
		}
	}
}

func TestProbeInlineDescription(t *testing.T) {
	b := NewBuilder(binary.LittleEndian, false)
	b.AddDirectory().Short(TagImageWidth, 10).Short(TagImageLength, 20).ASCII(TagImageDescription, "abc")
	result, r := probeBytes(t, b.Bytes())
	if len(r.requests) != 1 {
		t.Errorf("expected inline description, got %d reads\n", len(r.requests))
	}
	if result.Description != "abc" {
		t.Errorf("expected description truncated at NUL, got %q\n", result.Description)
	}
}

func TestProbeTagsAbsent(t *testing.T) {
	b := NewBuilder(binary.LittleEndian, false)
	b.AddDirectory().Short(TagCompression, 1)
	result, _ := probeBytes(t, b.Bytes())
	if !result.Ranged {
		t.Fatalf("directory parsed, so probe should report Ranged\n")
	}
	if result.HasWidth || result.HasHeight {
		t.Errorf("expected absent dimensions, got %+v\n", result)
	}
	if _, _, ok := result.Dimensions(); ok {
		t.Errorf("Dimensions should not be ok when tags are absent\n")
	}
}

func TestProbeUnparseable(t *testing.T) {
	short := []byte("II*\x00\x08\x00\x00\x00")
	result, _ := probeBytes(t, short)
	if result.Ranged || result.HasWidth || result.HasHeight {
		t.Errorf("expected failed probe for %d byte buffer, got %+v\n", len(short), result)
	}

	badMarker := make([]byte, 64)
	copy(badMarker, "XX*\x00")
	if result, _ := probeBytes(t, badMarker); result.Ranged {
		t.Errorf("expected failed probe for bad byte order marker\n")
	}

	badMagic := make([]byte, 64)
	copy(badMagic, "II\x2c\x00")
	if result, _ := probeBytes(t, badMagic); result.Ranged {
		t.Errorf("expected failed probe for bad magic\n")
	}

	b := NewBuilder(binary.LittleEndian, true)
	b.AddDirectory().Short(TagImageWidth, 1).Short(TagImageLength, 1)
	data := b.Bytes()
	binary.LittleEndian.PutUint16(data[4:], 4)
	if result, _ := probeBytes(t, data); result.Ranged {
		t.Errorf("expected failed probe for BigTIFF offset size 4\n")
	}
}

func TestProbeDirectoryBeyondHead(t *testing.T) {
	b := NewBuilder(binary.LittleEndian, false)
	b.Pad(HeadSize + 5000)
	ifd := b.NextOffset()
	b.AddDirectory().Long(TagImageWidth, 9000).Long(TagImageLength, 7000)
	result, r := probeBytes(t, b.Bytes())
	checkDims(t, result, 9000, 7000)
	if len(r.requests) != 2 {
		t.Fatalf("expected head plus one directory window, got %d reads\n", len(r.requests))
	}
	if r.requests[1][0] != int64(ifd) {
		t.Errorf("expected directory window at %d, got %v\n", ifd, r.requests[1])
	}
}

func TestProbeEntriesStraddleHead(t *testing.T) {
	for _, big := range []bool{false, true} {
		b := NewBuilder(binary.LittleEndian, big)
		hdr := uint64(8)
		if big {
			hdr = 16
		}
		// Directory count fits in the head, but the entries do not.
		b.Pad(int(HeadSize - hdr - 24))
		ifd := b.NextOffset()
		d := b.AddDirectory()
		for tag := uint16(280); tag < 290; tag++ {
			d.Short(tag, 1)
		}
		d.Long(TagImageWidth, 2048).Long(TagImageLength, 1024)
		result, r := probeBytes(t, b.Bytes())
		checkDims(t, result, 2048, 1024)
		if len(r.requests) != 2 {
			t.Fatalf("bigtiff=%t: expected one refetch, got %d reads\n", big, len(r.requests))
		}
		h := Header{BigTIFF: big}
		expectEnd := int64(ifd + h.CountSize() + 12*h.EntrySize() + refetchMargin)
		if r.requests[1] != [2]int64{int64(ifd), expectEnd} {
			t.Errorf("bigtiff=%t: expected refetch [%d, %d], got %v\n", big, ifd, expectEnd, r.requests[1])
		}
	}
}

func TestProbeTruncatedDirectory(t *testing.T) {
	data := make([]byte, 32)
	copy(data, "II*\x00")
	binary.LittleEndian.PutUint32(data[4:], 16)
	binary.LittleEndian.PutUint16(data[16:], 500) // claims 500 entries in a 32 byte file
	result, r := probeBytes(t, data)
	if result.Ranged {
		t.Errorf("expected failed probe for truncated directory, got %+v\n", result)
	}
	if len(r.requests) != 2 {
		t.Errorf("expected one refetch attempt, got %d reads\n", len(r.requests))
	}
}

func TestProbeHugeCountUsesCappedRead(t *testing.T) {
	b := NewBuilder(binary.LittleEndian, false)
	d := b.AddDirectory().Short(TagImageWidth, 100).Short(TagImageLength, 100)
	// Description claiming 10 MB out of line.
	field := make([]byte, 4)
	binary.LittleEndian.PutUint32(field, 8)
	d.entries = append(d.entries, builderEntry{tag: TagImageDescription, typ: TypeASCII, count: 10 << 20, data: field})
	result, r := probeBytes(t, b.Bytes())
	checkDims(t, result, 100, 100)
	if len(r.requests) != 2 {
		t.Fatalf("expected capped value read, got %d reads\n", len(r.requests))
	}
	if span := r.requests[1][1] - r.requests[1][0] + 1; span != MaxValueRead {
		t.Errorf("expected value read capped at %d bytes, got %d\n", MaxValueRead, span)
	}
}

func TestProbeOffsetBeyondInt64(t *testing.T) {
	b := NewBuilder(binary.LittleEndian, true)
	b.AddDirectory().Short(TagImageWidth, 1).Short(TagImageLength, 1)
	b.FirstIFDOverride = 0xFFFFFFFFFFFFFFF0
	result, r := probeBytes(t, b.Bytes())
	if result.Ranged {
		t.Errorf("expected failed result for directory offset past int64, got %+v\n", result)
	}
	if len(r.requests) != 1 {
		t.Errorf("expected only the head read, got %v\n", r.requests)
	}

	b = NewBuilder(binary.BigEndian, true)
	d := b.AddDirectory().Long8(TagImageWidth, 70000).Long8(TagImageLength, 60000)
	field := make([]byte, 8)
	binary.BigEndian.PutUint64(field, 0xFFFFFFFFFFFFFF00)
	d.entries = append(d.entries, builderEntry{tag: TagImageDescription, typ: TypeASCII, count: 4096, data: field})
	result, r = probeBytes(t, b.Bytes())
	if result.Ranged {
		t.Errorf("expected failed result for value offset past int64, got %+v\n", result)
	}
	if len(r.requests) != 1 {
		t.Errorf("expected no value read, got %v\n", r.requests)
	}
}

func TestProbeNetworkError(t *testing.T) {
	r := &memReader{err: &slide.NetworkError{URL: "mem://slide", Status: 503}}
	_, err := Probe(context.Background(), r, "mem://slide")
	var netErr *slide.NetworkError
	if !errors.As(err, &netErr) || netErr.Status != 503 {
		t.Errorf("expected NetworkError to bubble out, got %v\n", err)
	}
}

func TestProbeResultString(t *testing.T) {
	if s := (ProbeResult{}).String(); s != "unparseable" {
		t.Errorf("unexpected string %q\n", s)
	}
	s := ProbeResult{Ranged: true, Width: 5, HasWidth: true}.String()
	if !strings.Contains(s, "5 x ?") {
		t.Errorf("unexpected string %q\n", s)
	}
}
