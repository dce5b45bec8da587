// Command slideprobe pre-filters remote slide candidates by probing the first
// image directory of each file with a few HTTP range requests.

package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/dustin/go-humanize"

	"github.com/histion/slidetile/candidate"
	"github.com/histion/slidetile/config"
	"github.com/histion/slidetile/slide"
)

var (
	showHelp    = flag.Bool("help", false, "")
	runVerbose  = flag.Bool("verbose", false, "")
	configFile  = flag.String("config", "", "")
	candidates  = flag.String("candidates", "", "")
	outDir      = flag.String("out", "", "")
	maxAccepted = flag.Int("max", 0, "")
	numWorkers  = flag.Int("workers", 0, "")
	nameFilter  = flag.String("contains", "", "")
)

const helpMessage = `
slideprobe decides which remote slides are large enough to download

Usage: slideprobe [options] [candidates.csv]

      -config     =string   TOML configuration file.
      -candidates =string   CSV of url,file_size[,name] rows (overrides config).
      -out        =string   Directory receiving accepted.json and rejected.json.
      -max        =number   Stop after this many accepted slides (0 for no limit).
      -workers    =number   Number of concurrent probes.
      -contains   =string   Only probe candidates whose file name contains this text.
      -verbose    (flag)    Log each probe.
  -h, -help       (flag)    Show help message

Candidate URLs may use http, https, gs, s3 or file schemes.  The accepted list is a
valid slide list for tilesample.
`

func main() {
	flag.BoolVar(showHelp, "h", false, "Show help message")
	flag.Usage = func() { fmt.Print(helpMessage) }
	flag.Parse()
	if *showHelp {
		flag.Usage()
		os.Exit(0)
	}
	if err := run(); err != nil {
		slide.Criticalf("%v\n", err)
		slide.Shutdown()
		os.Exit(1)
	}
	slide.Shutdown()
}

func loadConfig() (config.Config, error) {
	if *configFile == "" {
		return config.Default(), nil
	}
	return config.Load(*configFile)
}

func run() error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if err := cfg.Logging.SetLogger(); err != nil {
		return err
	}
	if *runVerbose {
		slide.SetLogMode(slide.DebugMode)
	}

	p := cfg.Probe
	switch {
	case *candidates != "":
		p.Candidates = *candidates
	case flag.NArg() > 0:
		p.Candidates = flag.Arg(0)
	}
	if *outDir != "" {
		p.OutDir = *outDir
	}
	if *maxAccepted > 0 {
		p.MaxAccepted = *maxAccepted
	}
	if *numWorkers > 0 {
		p.Workers = *numWorkers
	}
	if *nameFilter != "" {
		p.NameContains = *nameFilter
	}
	if p.Candidates == "" {
		return fmt.Errorf("no candidate list given, see -help")
	}

	f, err := os.Open(p.Candidates)
	if err != nil {
		return err
	}
	cands, err := candidate.ReadCandidates(f)
	f.Close()
	if err != nil {
		return fmt.Errorf("candidate list %s: %w", p.Candidates, err)
	}

	reader, err := p.Reader()
	if err != nil {
		return err
	}
	defer reader.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	timedLog := slide.NewTimeLog()
	slide.Infof("Probing %d candidates from %s with %d workers\n", len(cands), p.Candidates, p.Workers)
	report, err := candidate.Filter(ctx, reader, cands, p.Criteria(), p.MaxAccepted, p.Workers)
	if err != nil {
		return err
	}
	var acceptedBytes uint64
	for _, d := range report.Accepted {
		acceptedBytes += uint64(max(d.FileSize, 0))
	}
	timedLog.Infof("Accepted %d (%s), rejected %d, skipped %d, unprobed %d, surplus %d of %d candidates",
		len(report.Accepted), humanize.Bytes(acceptedBytes), len(report.Rejected), report.Skipped,
		report.Unprobed, report.Surplus, len(cands))

	if err := os.MkdirAll(p.OutDir, 0755); err != nil {
		return err
	}
	if err := writeJSON(filepath.Join(p.OutDir, "accepted.json"), report.Accepted); err != nil {
		return err
	}
	return writeJSON(filepath.Join(p.OutDir, "rejected.json"), report.Rejected)
}

func writeJSON(path string, decisions []candidate.Decision) error {
	if decisions == nil {
		decisions = []candidate.Decision{}
	}
	data, err := json.MarshalIndent(decisions, "", "  ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, append(data, '\n'), 0644); err != nil {
		return fmt.Errorf("unable to write %s: %w", path, err)
	}
	slide.Infof("Wrote %d decisions to %s\n", len(decisions), path)
	return nil
}
