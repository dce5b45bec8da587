package candidate

import (
	"context"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/histion/slidetile/rangeread"
	"github.com/histion/slidetile/slide"
	"github.com/histion/slidetile/tiff"
)

// Evaluate probes one candidate and applies the criteria.  Probe errors become
// rejections.
func Evaluate(ctx context.Context, r rangeread.Reader, c Candidate, crit Criteria) Decision {
	result, err := tiff.Probe(ctx, r, c.URL)
	if err != nil {
		slide.Warningf("Probe of %s failed: %v\n", c.URL, err)
		return Failed(c, err)
	}
	d := crit.Decide(c, result)
	slide.Debugf("Candidate %s: accepted %t, %s\n", c.URL, d.Accepted, d.Reason)
	return d
}

// Report lists the decisions of a filter run in candidate order.
type Report struct {
	Accepted []Decision
	Rejected []Decision
	Skipped  int

	// Unprobed counts candidates never probed because the accepted limit was reached.
	Unprobed int

	// Surplus counts candidates accepted by probes already running when the limit
	// was reached.  They are not part of Accepted.
	Surplus int
}

// Total returns the number of candidates the report accounts for.
func (r Report) Total() int {
	return len(r.Accepted) + len(r.Rejected) + r.Skipped + r.Unprobed + r.Surplus
}

// Filter evaluates candidates with up to workers concurrent probes and stops
// probing once maxAccepted candidates were accepted (0 means no limit).  Accepted
// decisions beyond the limit are counted as surplus in candidate order.
func Filter(ctx context.Context, r rangeread.Reader, cands []Candidate, crit Criteria, maxAccepted, workers int) (Report, error) {
	if workers <= 0 {
		workers = 1
	}
	decisions := make([]*Decision, len(cands))
	var accepted atomic.Int64

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, c := range cands {
		if crit.Skip(c) {
			continue
		}
		if maxAccepted > 0 && accepted.Load() >= int64(maxAccepted) {
			break
		}
		i, c := i, c
		g.Go(func() error {
			if maxAccepted > 0 && accepted.Load() >= int64(maxAccepted) {
				return nil
			}
			if err := gctx.Err(); err != nil {
				return err
			}
			d := Evaluate(gctx, r, c, crit)
			if d.Accepted {
				accepted.Add(1)
			}
			decisions[i] = &d
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Report{}, err
	}

	var report Report
	for i, d := range decisions {
		switch {
		case d == nil && crit.Skip(cands[i]):
			report.Skipped++
		case d == nil:
			report.Unprobed++
		case !d.Accepted:
			report.Rejected = append(report.Rejected, *d)
		case maxAccepted <= 0 || len(report.Accepted) < maxAccepted:
			report.Accepted = append(report.Accepted, *d)
		default:
			report.Surplus++
		}
	}
	return report, nil
}
