/*
	Package candidate decides which remote slides are worth fetching by probing their
	first image directory and comparing the level 0 dimensions against thresholds.
	Slides whose layout cannot be probed fall back to a file size heuristic.
*/
package candidate

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"net/url"
	"path"
	"regexp"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"

	"github.com/histion/slidetile/slide"
	"github.com/histion/slidetile/tiff"
)

const (
	DefaultMinWidth        = 50000
	DefaultMinHeight       = 50000
	DefaultMinFallbackSize = 600 * 1024 * 1024
)

// Candidate is a remote slide file.
type Candidate struct {
	URL      string
	FileSize int64
	Name     string
}

// Criteria are the acceptance thresholds.
type Criteria struct {
	MinWidth  uint64
	MinHeight uint64

	// MinFallbackSize is the smallest file accepted when the probe yields no
	// dimensions.
	MinFallbackSize int64

	// NameContains, if set, skips candidates whose name lacks the substring.
	NameContains string
}

// DefaultCriteria returns the standard thresholds.
func DefaultCriteria() Criteria {
	return Criteria{
		MinWidth:        DefaultMinWidth,
		MinHeight:       DefaultMinHeight,
		MinFallbackSize: DefaultMinFallbackSize,
	}
}

// Decision records the outcome for one candidate.  Its JSON form is also a valid
// slide list record.
type Decision struct {
	SlideID  string `json:"slide_id"`
	Filename string `json:"filename"`
	Width    uint64 `json:"width"`
	Height   uint64 `json:"height"`

	URL         string `json:"url"`
	FileSize    int64  `json:"file_size"`
	Ranged      bool   `json:"ranged"`
	Description string `json:"description,omitempty"`
	Accepted    bool   `json:"accepted"`
	Reason      string `json:"reason"`
}

var unsafeChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// SafeFilename replaces path separators and unusual characters with underscores.
func SafeFilename(name string) string {
	name = strings.ReplaceAll(name, "/", "_")
	return unsafeChars.ReplaceAllString(name, "_")
}

// SlideID returns the identifier of a candidate: the last URL path segment if it is a
// UUID, which is how slide archives address files, and otherwise a name based UUID
// derived from the URL.
func (c Candidate) SlideID() uuid.UUID {
	if u, err := url.Parse(c.URL); err == nil {
		if id, err := uuid.Parse(path.Base(u.Path)); err == nil {
			return id
		}
	}
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(c.URL))
}

// Filename returns the sanitized file name of a candidate.
func (c Candidate) Filename() string {
	name := c.Name
	if name == "" {
		name = c.SlideID().String() + ".svs"
	}
	return SafeFilename(name)
}

func (c Candidate) decision() Decision {
	return Decision{
		SlideID:  c.SlideID().String(),
		Filename: c.Filename(),
		URL:      c.URL,
		FileSize: c.FileSize,
	}
}

// Skip returns true if the candidate should not be probed at all.
func (crit Criteria) Skip(c Candidate) bool {
	return crit.NameContains != "" && !strings.Contains(c.Filename(), crit.NameContains)
}

// Decide applies the criteria to a probe result.
func (crit Criteria) Decide(c Candidate, result tiff.ProbeResult) Decision {
	d := c.decision()
	d.Ranged = result.Ranged
	d.Description = result.Description
	w, h, ok := result.Dimensions()
	d.Width, d.Height = result.Width, result.Height
	switch {
	case !ok && c.FileSize < crit.MinFallbackSize:
		d.Reason = fmt.Sprintf("dimensions unknown and file size %s below %s",
			humanize.Bytes(uint64(max(c.FileSize, 0))), humanize.Bytes(uint64(crit.MinFallbackSize)))
	case !ok:
		d.Accepted = true
		d.Reason = fmt.Sprintf("dimensions unknown, accepted by file size %s", humanize.Bytes(uint64(c.FileSize)))
	case w < crit.MinWidth || h < crit.MinHeight:
		d.Reason = fmt.Sprintf("%d x %d below %d x %d", w, h, crit.MinWidth, crit.MinHeight)
	default:
		d.Accepted = true
		d.Reason = fmt.Sprintf("%d x %d", w, h)
	}
	return d
}

// Failed returns the rejection of a candidate whose probe returned an error.
func Failed(c Candidate, err error) Decision {
	d := c.decision()
	var netErr *slide.NetworkError
	if errors.As(err, &netErr) && netErr.Status != 0 {
		d.Reason = fmt.Sprintf("probe failed with HTTP %d", netErr.Status)
	} else {
		d.Reason = fmt.Sprintf("probe failed: %v", err)
	}
	return d
}

// ReadCandidates parses rows of url,file_size[,name].  A first row whose size column
// is not a number is treated as a header.
func ReadCandidates(r io.Reader) ([]Candidate, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true
	var cands []Candidate
	for row := 0; ; row++ {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		if len(rec) < 2 || strings.TrimSpace(rec[0]) == "" {
			continue
		}
		size, err := strconv.ParseInt(strings.TrimSpace(rec[1]), 10, 64)
		if err != nil {
			if row == 0 {
				continue
			}
			return nil, fmt.Errorf("candidate row %d: bad file size %q", row+1, rec[1])
		}
		c := Candidate{URL: strings.TrimSpace(rec[0]), FileSize: size}
		if len(rec) > 2 {
			c.Name = strings.TrimSpace(rec[2])
		}
		cands = append(cands, c)
	}
	return cands, nil
}
