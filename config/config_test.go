package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/histion/slidetile/candidate"
	"github.com/histion/slidetile/sampler"
	"github.com/histion/slidetile/slide"
	"github.com/histion/slidetile/source"
)

const testConfig = `
[logging]
logfile = "logs/slidetile.log"
max_log_size = 10
max_log_age = 7
level = "debug"

[probe]
candidates = "candidates.csv"
min_width = 40000
min_height = 30000
min_fallback_mb = 100
name_contains = "DX"
workers = 8
requests_per_second = 2.5

[sampling]
slides = "/abs/accepted.json"
backend = "remote"
tile_size = 512
level = 1
augment = true
color_jitter = 0.05
min_std = 7.5

[local]
data_root = "gs://bucket/slides"

[remote]
address = "tiles:50051"
retry_delay_ms = 250
timeout_seconds = 5
cache_mb = 64

[serve]
root = "tiles"
unknown_key = 1
`

func writeConfig(t *testing.T, text string) string {
	dir := t.TempDir()
	path := filepath.Join(dir, "slidetile.toml")
	if err := os.WriteFile(path, []byte(text), 0644); err != nil {
		t.Fatalf("couldn't write config: %v\n", err)
	}
	return path
}

func TestDefault(t *testing.T) {
	c := Default()
	if err := c.Validate(); err != nil {
		t.Fatalf("default config should validate: %v\n", err)
	}
	if crit := c.Probe.Criteria(); crit != candidate.DefaultCriteria() {
		t.Errorf("default criteria %+v differ from %+v\n", crit, candidate.DefaultCriteria())
	}
	opts := c.Remote.Options()
	if opts.MaxRetries != source.DefaultMaxRetries || opts.RetryDelay != source.DefaultRetryDelay || opts.Timeout != source.DefaultTimeout {
		t.Errorf("unexpected default remote options %+v\n", opts)
	}
	so := c.Sampling.Options()
	if so.TilesPerSlide != sampler.DefaultTilesPerSlide || so.MaxAttempts != sampler.DefaultMaxAttempts {
		t.Errorf("unexpected default sampling options %+v\n", so)
	}
	if *so.Validator != sampler.DefaultValidator() {
		t.Errorf("expected default validator, got %+v\n", *so.Validator)
	}
}

func TestLoad(t *testing.T) {
	path := writeConfig(t, testConfig)
	dir := filepath.Dir(path)
	c, err := Load(path)
	if err != nil {
		t.Fatalf("couldn't load config: %v\n", err)
	}
	if c.Logging.Logfile != filepath.Join(dir, "logs", "slidetile.log") {
		t.Errorf("logfile not made absolute: %q\n", c.Logging.Logfile)
	}
	if c.Logging.MaxSize != 10 || c.Logging.MaxAge != 7 || c.Logging.Level != "debug" {
		t.Errorf("bad logging section %+v\n", c.Logging)
	}
	if c.Probe.Candidates != filepath.Join(dir, "candidates.csv") {
		t.Errorf("candidates not made absolute: %q\n", c.Probe.Candidates)
	}
	if c.Probe.OutDir != filepath.Join(dir, "probe-out") {
		t.Errorf("default outdir should be relative to config: %q\n", c.Probe.OutDir)
	}
	if c.Sampling.Slides != "/abs/accepted.json" {
		t.Errorf("absolute path changed: %q\n", c.Sampling.Slides)
	}
	if c.Local.DataRoot != "gs://bucket/slides" {
		t.Errorf("URL changed: %q\n", c.Local.DataRoot)
	}
	if c.Serve.Root != filepath.Join(dir, "tiles") {
		t.Errorf("serve root not made absolute: %q\n", c.Serve.Root)
	}

	crit := c.Probe.Criteria()
	expected := candidate.Criteria{MinWidth: 40000, MinHeight: 30000, MinFallbackSize: 100 << 20, NameContains: "DX"}
	if crit != expected {
		t.Errorf("expected criteria %+v, got %+v\n", expected, crit)
	}
	if c.Probe.Workers != 8 || c.Probe.RequestsPerSecond != 2.5 {
		t.Errorf("bad probe section %+v\n", c.Probe)
	}
	if c.Probe.Timeout() != 60*time.Second {
		t.Errorf("expected default probe timeout, got %s\n", c.Probe.Timeout())
	}

	so := c.Sampling.Options()
	if so.TileSize != 512 || so.Level != 1 || !so.Augment || so.Validator.MinStd != 7.5 || so.Validator.MinMean != sampler.DefaultMinMean {
		t.Errorf("bad sampling options %+v (validator %+v)\n", so, *so.Validator)
	}
	if so.ColorJitter != 0.05 {
		t.Errorf("expected color jitter 0.05, got %g\n", so.ColorJitter)
	}
	if c.Sampling.Backend != BackendRemote {
		t.Errorf("expected remote backend, got %q\n", c.Sampling.Backend)
	}

	ro := c.Remote.Options()
	if ro.RetryDelay != 250*time.Millisecond || ro.Timeout != 5*time.Second || ro.CacheMB != 64 || ro.MaxRetries != source.DefaultMaxRetries {
		t.Errorf("bad remote options %+v\n", ro)
	}
	if c.Remote.Address != "tiles:50051" || !c.Remote.CheckHealth {
		t.Errorf("bad remote section %+v\n", c.Remote)
	}
}

func TestLoadErrors(t *testing.T) {
	if _, err := Load(""); err == nil {
		t.Errorf("expected error for empty filename\n")
	}
	if _, err := Load(filepath.Join(t.TempDir(), "missing.toml")); err == nil {
		t.Errorf("expected error for missing file\n")
	}
	if _, err := Load(writeConfig(t, "[sampling\n")); err == nil {
		t.Errorf("expected error for malformed TOML\n")
	}
	bad := map[string]string{
		"backend":  "[sampling]\nbackend = \"s3\"\n",
		"tilesize": "[sampling]\ntile_size = 0\n",
		"level":    "[sampling]\nlevel = -1\n",
		"loglevel": "[logging]\nlevel = \"chatty\"\n",
		"jitter":   "[sampling]\ncolor_jitter = 1.5\n",
	}
	for name, text := range bad {
		_, err := Load(writeConfig(t, text))
		if err == nil {
			t.Errorf("%s: expected validation error\n", name)
		}
	}
	_, err := Load(writeConfig(t, "[sampling]\nbackend = \"s3\"\n"))
	if err == nil || !strings.Contains(err.Error(), "s3") {
		t.Errorf("expected error naming the bad backend, got %v\n", err)
	}
}

func TestLoggingSetLogger(t *testing.T) {
	defer slide.SetLogMode(slide.LogMode())
	c := LoggingConfig{Level: "error"}
	if err := c.SetLogger(); err != nil {
		t.Fatalf("unexpected error: %v\n", err)
	}
	if slide.LogMode() != slide.ErrorMode {
		t.Errorf("expected error mode, got %v\n", slide.LogMode())
	}
	c.Level = "loud"
	if err := c.SetLogger(); err == nil {
		t.Errorf("expected error for unknown level\n")
	}
}

func TestProbeReader(t *testing.T) {
	p := Default().Probe
	mux, err := p.Reader()
	if err != nil {
		t.Fatalf("unexpected error: %v\n", err)
	}
	if mux.HTTP == nil {
		t.Errorf("expected an HTTP reader\n")
	}
	p.CredentialsFile = filepath.Join(t.TempDir(), "missing.json")
	if _, err := p.Reader(); err == nil {
		t.Errorf("expected error for missing credentials file\n")
	}
}
