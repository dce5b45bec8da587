package slide

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

// SlideID is the 16-byte binary identifier of a slide.
type SlideID [16]byte

// ParseSlideID converts a hex string, with or without hyphen separators, into
// its 16-byte binary form.
func ParseSlideID(s string) (SlideID, error) {
	clean := strings.ReplaceAll(strings.TrimSpace(s), "-", "")
	u, err := uuid.Parse(clean)
	if err != nil {
		return SlideID{}, fmt.Errorf("bad slide id %q: %w", s, err)
	}
	return SlideID(u), nil
}

// Bytes returns a copy of the identifier as a byte slice.
func (id SlideID) Bytes() []byte {
	b := make([]byte, 16)
	copy(b, id[:])
	return b
}

// String returns the canonical hyphenated form.
func (id SlideID) String() string {
	return uuid.UUID(id).String()
}

// Metadata describes one slide of the sampling population.
type Metadata struct {
	ID       SlideID
	Filename string
	Width    int64
	Height   int64

	// Number of whole tiles along each axis for the tile size used at load time.
	MaxTilesX int
	MaxTilesY int
}

// Usable returns true if the slide holds at least one whole tile along each axis.
func (m Metadata) Usable() bool {
	return m.MaxTilesX >= 1 && m.MaxTilesY >= 1
}

func (m Metadata) String() string {
	return fmt.Sprintf("slide %s (%s, %d x %d px)", m.ID, m.Filename, m.Width, m.Height)
}

// Record is the serialized form of a slide in JSON slide lists.
type Record struct {
	SlideID  string `json:"slide_id"`
	Filename string `json:"filename"`
	Width    int64  `json:"width"`
	Height   int64  `json:"height"`
}

// NewMetadata derives tile counts for the given tile size.  The returned bool is
// false if the slide is unusable at that tile size.
func NewMetadata(rec Record, tileSize int) (Metadata, bool, error) {
	if tileSize <= 0 {
		return Metadata{}, false, fmt.Errorf("tile size must be positive, got %d", tileSize)
	}
	id, err := ParseSlideID(rec.SlideID)
	if err != nil {
		return Metadata{}, false, err
	}
	filename := strings.TrimSpace(rec.Filename)
	if strings.HasSuffix(strings.ToLower(filename), ".tif") {
		filename = filename[:len(filename)-4]
	}
	m := Metadata{
		ID:        id,
		Filename:  filename,
		Width:     rec.Width,
		Height:    rec.Height,
		MaxTilesX: int(rec.Width / int64(tileSize)),
		MaxTilesY: int(rec.Height / int64(tileSize)),
	}
	return m, m.Usable(), nil
}

// LoadSlides reads a slide list from a CSV or JSON file, chosen by extension,
// and returns only the slides usable at the given tile size.
func LoadSlides(path string, tileSize int) ([]Metadata, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var recs []Record
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		recs, err = ReadJSONRecords(f)
	default:
		recs, err = ReadCSVRecords(f)
	}
	if err != nil {
		return nil, fmt.Errorf("slide list %s: %w", path, err)
	}
	slides, err := FromRecords(recs, tileSize)
	if err != nil {
		return nil, fmt.Errorf("slide list %s: %w", path, err)
	}
	Infof("Loaded %d usable slides of %d listed in %s (tile size %d)\n", len(slides), len(recs), path, tileSize)
	return slides, nil
}

// FromRecords converts records into metadata, silently dropping slides with
// fewer than one whole tile along either axis.
func FromRecords(recs []Record, tileSize int) ([]Metadata, error) {
	slides := make([]Metadata, 0, len(recs))
	for _, rec := range recs {
		m, usable, err := NewMetadata(rec, tileSize)
		if err != nil {
			return nil, err
		}
		if !usable {
			Debugf("Dropping %s: too small for %d px tiles\n", m, tileSize)
			continue
		}
		slides = append(slides, m)
	}
	return slides, nil
}

// ReadCSVRecords parses four-column rows of (identifier, filename, width, height).
// Rows with fewer columns are skipped.  A first row whose dimensions are not
// numeric is treated as a header.
func ReadCSVRecords(r io.Reader) ([]Record, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	var recs []Record
	for row := 0; ; row++ {
		fields, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		if len(fields) < 4 {
			continue
		}
		width, werr := strconv.ParseInt(strings.TrimSpace(fields[2]), 10, 64)
		height, herr := strconv.ParseInt(strings.TrimSpace(fields[3]), 10, 64)
		if werr != nil || herr != nil {
			if row == 0 {
				continue
			}
			return nil, fmt.Errorf("row %d: bad dimensions %q x %q", row+1, fields[2], fields[3])
		}
		recs = append(recs, Record{
			SlideID:  strings.TrimSpace(fields[0]),
			Filename: strings.TrimSpace(fields[1]),
			Width:    width,
			Height:   height,
		})
	}
	return recs, nil
}

// ReadJSONRecords parses a JSON array of slide records.
func ReadJSONRecords(r io.Reader) ([]Record, error) {
	var recs []Record
	if err := json.NewDecoder(r).Decode(&recs); err != nil {
		return nil, err
	}
	return recs, nil
}
