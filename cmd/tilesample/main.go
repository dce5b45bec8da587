// Command tilesample draws random, content-validated tiles from a slide population
// and writes them as PNG files, optionally uploading them to a tile service.

package main

import (
	"bytes"
	"context"
	"flag"
	"fmt"
	"image/png"
	"math/rand"
	"os"
	"os/signal"
	"path/filepath"
	"sync/atomic"
	"syscall"

	"github.com/dustin/go-humanize"
	"golang.org/x/sync/errgroup"

	"github.com/histion/slidetile/config"
	"github.com/histion/slidetile/sampler"
	"github.com/histion/slidetile/slide"
	"github.com/histion/slidetile/source"
	"github.com/histion/slidetile/storageapi"
)

var (
	showHelp   = flag.Bool("help", false, "")
	runVerbose = flag.Bool("verbose", false, "")
	configFile = flag.String("config", "", "")
	slidesFile = flag.String("slides", "", "")
	backend    = flag.String("backend", "", "")
	dataRoot   = flag.String("root", "", "")
	remoteAddr = flag.String("remote", "", "")
	numSamples = flag.Int("n", 0, "")
	numWorkers = flag.Int("workers", 0, "")
	seed       = flag.Int64("seed", 0, "")
	outDir     = flag.String("out", "", "")
	uploadAddr = flag.String("upload", "", "")
	augment    = flag.Bool("augment", false, "")
	jitter     = flag.Float64("jitter", 0, "")
)

const helpMessage = `
tilesample draws random tiles with tissue content from a list of slides

Usage: tilesample [options] [slides.json|slides.csv]

      -config   =string   TOML configuration file.
      -slides   =string   Slide list with slide_id, filename, width and height.
      -backend  =string   "local" pyramid files or "remote" tile service.
      -root     =string   Directory of local <filename>.tif pyramid files.
      -remote   =string   Address of the remote tile service.
      -n        =number   Number of tiles to sample.
      -workers  =number   Number of concurrent samplers, each with its own source.
      -seed     =number   Base random seed; worker i uses seed + i.
      -out      =string   Directory receiving PNG tiles.
      -upload   =string   Also store each tile in the tile service at this address.
      -augment  (flag)    Randomly flip and rotate tiles.
      -jitter   =number   Color jitter strength, e.g., 0.05.
      -verbose  (flag)    Run in verbose mode.
  -h, -help     (flag)    Show help message
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
	cfg := config.Default()
	if *configFile != "" {
		var err error
		if cfg, err = config.Load(*configFile); err != nil {
			return cfg, err
		}
	}
	s := &cfg.Sampling
	switch {
	case *slidesFile != "":
		s.Slides = *slidesFile
	case flag.NArg() > 0:
		s.Slides = flag.Arg(0)
	}
	if *backend != "" {
		s.Backend = *backend
	}
	if *numSamples > 0 {
		s.Samples = *numSamples
	}
	if *numWorkers > 0 {
		s.Workers = *numWorkers
	}
	if *seed != 0 {
		s.Seed = *seed
	}
	if *outDir != "" {
		s.OutDir = *outDir
	}
	if *augment {
		s.Augment = true
	}
	if *jitter > 0 {
		s.ColorJitter = *jitter
	}
	if *dataRoot != "" {
		cfg.Local.DataRoot = *dataRoot
	}
	if *remoteAddr != "" {
		cfg.Remote.Address = *remoteAddr
	}
	if s.Slides == "" {
		return cfg, fmt.Errorf("no slide list given, see -help")
	}
	if s.Workers <= 0 {
		s.Workers = 1
	}
	return cfg, cfg.Validate()
}

func newSource(ctx context.Context, cfg config.Config) (source.Source, error) {
	if cfg.Sampling.Backend == config.BackendLocal {
		return source.NewLocal(cfg.Local.DataRoot, cfg.Sampling.TileSize), nil
	}
	remote, err := source.DialRemote(cfg.Remote.Address, cfg.Remote.Options())
	if err != nil {
		return nil, err
	}
	if cfg.Remote.CheckHealth {
		remote.CheckHealthOnce(ctx)
	}
	return remote, nil
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

	s := cfg.Sampling
	slides, err := slide.LoadSlides(s.Slides, s.TileSize)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(s.OutDir, 0755); err != nil {
		return err
	}

	var uploader *storageapi.Client
	if *uploadAddr != "" {
		if uploader, err = storageapi.Dial(*uploadAddr); err != nil {
			return err
		}
		defer uploader.Close()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	timedLog := slide.NewTimeLog()
	var written, bytesOut, fetches atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	for w := 0; w < s.Workers; w++ {
		w := w
		g.Go(func() error {
			src, err := newSource(gctx, cfg)
			if err != nil {
				return err
			}
			defer src.Close()

			rng := rand.New(rand.NewSource(s.Seed + int64(w)))
			ds, err := sampler.NewDataset(slides, src, rng, s.Options())
			if err != nil {
				return err
			}
			for idx := w; idx < s.Samples; idx += s.Workers {
				sample, err := ds.Get(gctx, idx)
				if err != nil {
					return fmt.Errorf("sample %d: %w", idx, err)
				}
				fetches.Add(int64(sample.Attempts))
				n, err := saveSample(gctx, s.OutDir, idx, sample, uploader)
				if err != nil {
					return err
				}
				written.Add(1)
				bytesOut.Add(int64(n))
			}
			if remote, ok := src.(*source.Remote); ok {
				hits, misses := remote.CacheStats()
				slide.Debugf("Worker %d remote cache: %d hits, %d misses\n", w, hits, misses)
			}
			return nil
		})
	}
	err = g.Wait()
	timedLog.Infof("Wrote %d tiles (%s) to %s using %d fetches", written.Load(),
		humanize.Bytes(uint64(bytesOut.Load())), s.OutDir, fetches.Load())
	return err
}

// saveSample writes one tile as PNG and returns the encoded size.
func saveSample(ctx context.Context, dir string, idx int, sample *sampler.Sample, uploader *storageapi.Client) (int, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, sample.Tile); err != nil {
		return 0, fmt.Errorf("encoding tile %s: %w", sample.Coord, err)
	}
	c := sample.Coord
	name := fmt.Sprintf("%06d_%s_%d_%d_%d.png", idx, c.ID, c.Level, c.X, c.Y)
	if err := os.WriteFile(filepath.Join(dir, name), buf.Bytes(), 0644); err != nil {
		return 0, err
	}
	if uploader != nil {
		ok, err := uploader.PutTile(ctx, c.ID, uint32(c.X), uint32(c.Y), uint32(c.Level), buf.Bytes())
		if err != nil {
			return 0, fmt.Errorf("uploading tile %s: %w", c, err)
		}
		if !ok {
			slide.Warningf("Tile service refused tile %s\n", c)
		}
	}
	slide.Debugf("Saved %s from %s after %d attempts\n", name, sample.Filename, sample.Attempts)
	return buf.Len(), nil
}
