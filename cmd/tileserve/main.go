// Command tileserve runs the reference tile service over a directory of
// <uuid>/<level>/<x>_<y>.webp files.

package main

import (
	"flag"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/histion/slidetile/config"
	"github.com/histion/slidetile/slide"
	"github.com/histion/slidetile/storageapi"
)

var (
	showHelp   = flag.Bool("help", false, "")
	runVerbose = flag.Bool("verbose", false, "")
	configFile = flag.String("config", "", "")
	address    = flag.String("addr", "", "")
	tileRoot   = flag.String("root", "", "")
)

const helpMessage = `
tileserve serves stored tiles over gRPC

Usage: tileserve [options]

      -config   =string   TOML configuration file.
      -addr     =string   Listen address (default ":50051").
      -root     =string   Tile directory.
      -verbose  (flag)    Log every request.
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

func run() error {
	cfg := config.Default()
	if *configFile != "" {
		var err error
		if cfg, err = config.Load(*configFile); err != nil {
			return err
		}
	}
	if err := cfg.Logging.SetLogger(); err != nil {
		return err
	}
	if *runVerbose {
		slide.SetLogMode(slide.DebugMode)
	}
	if *address != "" {
		cfg.Serve.Address = *address
	}
	if *tileRoot != "" {
		cfg.Serve.Root = *tileRoot
	}
	if cfg.Serve.Root == "" {
		return fmt.Errorf("no tile directory given, see -help")
	}
	if err := os.MkdirAll(cfg.Serve.Root, 0755); err != nil {
		return err
	}

	lis, err := net.Listen("tcp", cfg.Serve.Address)
	if err != nil {
		return fmt.Errorf("unable to listen on %s: %w", cfg.Serve.Address, err)
	}
	s := storageapi.NewServer(&storageapi.FileStore{Root: cfg.Serve.Root})

	// Capture ctrl+c and other interrupts.  Then handle graceful shutdown.
	stopSig := make(chan os.Signal, 1)
	signal.Notify(stopSig, os.Interrupt, syscall.SIGTERM)
	go func() {
		sig := <-stopSig
		slide.Infof("Stop signal captured: %q.  Shutting down...\n", sig)
		stopped := make(chan struct{})
		go func() {
			s.GracefulStop()
			close(stopped)
		}()
		select {
		case <-stopped:
		case <-time.After(5 * time.Second):
			slide.Warningf("Graceful stop timed out, closing open connections\n")
			s.Stop()
		}
	}()

	slide.Infof("Serving tiles from %s on %s\n", cfg.Serve.Root, lis.Addr())
	return s.Serve(lis)
}
