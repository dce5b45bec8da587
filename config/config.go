/*
	Package config loads the TOML configuration shared by the slidetile commands.

	A configuration file looks like:

		[logging]
		logfile = "/var/log/slidetile.log"
		max_log_size = 500  # MB
		max_log_age = 30    # days
		level = "info"

		[probe]
		candidates = "candidates.csv"
		outdir = "probe-out"
		min_width = 50000
		min_height = 50000

		[sampling]
		slides = "probe-out/accepted.json"
		backend = "local"
		tile_size = 256
		level = 0

		[local]
		data_root = "/data/slides"

		[remote]
		address = "localhost:50051"
		max_retries = 3
		retry_delay_ms = 100

		[serve]
		address = ":50051"
		root = "/data/tiles"

	Relative paths are taken relative to the directory holding the file.
*/
package config

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/histion/slidetile/candidate"
	"github.com/histion/slidetile/rangeread"
	"github.com/histion/slidetile/sampler"
	"github.com/histion/slidetile/slide"
	"github.com/histion/slidetile/source"
)

const (
	BackendLocal  = "local"
	BackendRemote = "remote"
)

// Config is the complete configuration.
type Config struct {
	Logging  LoggingConfig  `toml:"logging"`
	Probe    ProbeConfig    `toml:"probe"`
	Sampling SamplingConfig `toml:"sampling"`
	Local    LocalConfig    `toml:"local"`
	Remote   RemoteConfig   `toml:"remote"`
	Serve    ServeConfig    `toml:"serve"`
}

// LoggingConfig adds a severity threshold to the log file settings.
type LoggingConfig struct {
	slide.LogConfig
	Level string `toml:"level"`
}

// ProbeConfig drives the candidate pre-filter.
type ProbeConfig struct {
	Candidates        string  `toml:"candidates"`
	OutDir            string  `toml:"outdir"`
	MinWidth          uint64  `toml:"min_width"`
	MinHeight         uint64  `toml:"min_height"`
	MinFallbackMB     int64   `toml:"min_fallback_mb"`
	NameContains      string  `toml:"name_contains"`
	MaxAccepted       int     `toml:"max_accepted"`
	Workers           int     `toml:"workers"`
	TimeoutSeconds    int     `toml:"timeout_seconds"`
	RequestsPerSecond float64 `toml:"requests_per_second"`
	CredentialsFile   string  `toml:"credentials_file"`
}

// SamplingConfig drives tile sampling.
type SamplingConfig struct {
	Slides           string  `toml:"slides"`
	Backend          string  `toml:"backend"`
	TileSize         int     `toml:"tile_size"`
	Level            int     `toml:"level"`
	TilesPerSlide    int     `toml:"tiles_per_slide"`
	MaxAttempts      int     `toml:"max_attempts"`
	MaxSlideSwitches int     `toml:"max_slide_switches"`
	MinStd           float64 `toml:"min_std"`
	MinMean          float64 `toml:"min_mean"`
	Augment          bool    `toml:"augment"`
	ColorJitter      float64 `toml:"color_jitter"`
	Seed             int64   `toml:"seed"`
	Workers          int     `toml:"workers"`
	Samples          int     `toml:"samples"`
	OutDir           string  `toml:"outdir"`
}

type LocalConfig struct {
	DataRoot string `toml:"data_root"`
}

// RemoteConfig locates and tunes the remote tile service client.
type RemoteConfig struct {
	Address        string `toml:"address"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
	MaxRetries     int    `toml:"max_retries"`
	RetryDelayMS   int    `toml:"retry_delay_ms"`
	CacheMB        int    `toml:"cache_mb"`
	CheckHealth    bool   `toml:"check_health"`
}

// ServeConfig configures the reference tile server.
type ServeConfig struct {
	Address string `toml:"address"`
	Root    string `toml:"root"`
}

// Default returns the configuration used when no file overrides a setting.
func Default() Config {
	return Config{
		Logging: LoggingConfig{
			LogConfig: slide.LogConfig{MaxSize: 500, MaxAge: 30},
			Level:     "info",
		},
		Probe: ProbeConfig{
			OutDir:         "probe-out",
			MinWidth:       candidate.DefaultMinWidth,
			MinHeight:      candidate.DefaultMinHeight,
			MinFallbackMB:  candidate.DefaultMinFallbackSize >> 20,
			Workers:        4,
			TimeoutSeconds: 60,
		},
		Sampling: SamplingConfig{
			Backend:       BackendLocal,
			TileSize:      256,
			TilesPerSlide: sampler.DefaultTilesPerSlide,
			MaxAttempts:   sampler.DefaultMaxAttempts,
			MinStd:        sampler.DefaultMinStd,
			MinMean:       sampler.DefaultMinMean,
			Seed:          1337,
			Workers:       1,
			Samples:       100,
			OutDir:        "tiles",
		},
		Remote: RemoteConfig{
			Address:        "localhost:50051",
			TimeoutSeconds: int(source.DefaultTimeout / time.Second),
			MaxRetries:     source.DefaultMaxRetries,
			RetryDelayMS:   int(source.DefaultRetryDelay / time.Millisecond),
			CheckHealth:    true,
		},
		Serve: ServeConfig{
			Address: ":50051",
		},
	}
}

// Load reads a TOML file over the defaults.
func Load(filename string) (Config, error) {
	c := Default()
	if filename == "" {
		return c, fmt.Errorf("no TOML configuration file provided")
	}
	md, err := toml.DecodeFile(filename, &c)
	if err != nil {
		return c, fmt.Errorf("could not decode TOML config %q: %v", filename, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		slide.Warningf("Ignoring unknown settings in %s: %s\n", filename, strings.Join(keys, ", "))
	}
	if err := c.convertPathsToAbsolute(filename); err != nil {
		return c, fmt.Errorf("could not convert relative paths to absolute paths in TOML config: %v", err)
	}
	if err := c.Validate(); err != nil {
		return c, err
	}
	return c, nil
}

func convertToAbsolute(path, dir string) (string, error) {
	if path == "" || filepath.IsAbs(path) {
		return path, nil
	}
	return filepath.Abs(filepath.Join(dir, path))
}

// convertPathsToAbsolute rewrites relative path settings in place, relative to the
// directory of the configuration file.  Object URLs are left alone.
func (c *Config) convertPathsToAbsolute(configPath string) error {
	configDir := filepath.Dir(configPath)
	paths := map[string]*string{
		"logging.logfile":        &c.Logging.Logfile,
		"probe.candidates":       &c.Probe.Candidates,
		"probe.outdir":           &c.Probe.OutDir,
		"probe.credentials_file": &c.Probe.CredentialsFile,
		"sampling.slides":        &c.Sampling.Slides,
		"sampling.outdir":        &c.Sampling.OutDir,
		"local.data_root":        &c.Local.DataRoot,
		"serve.root":             &c.Serve.Root,
	}
	for name, p := range paths {
		if strings.Contains(*p, "://") {
			continue
		}
		abs, err := convertToAbsolute(*p, configDir)
		if err != nil {
			return fmt.Errorf("error converting %s to absolute path: %q", name, *p)
		}
		*p = abs
	}
	return nil
}

// Validate checks settings that have no sensible fallback.
func (c Config) Validate() error {
	if _, err := slide.ParseLogMode(c.Logging.Level); err != nil {
		return err
	}
	switch c.Sampling.Backend {
	case BackendLocal, BackendRemote:
	default:
		return fmt.Errorf("sampling backend must be %q or %q, got %q", BackendLocal, BackendRemote, c.Sampling.Backend)
	}
	if c.Sampling.TileSize <= 0 {
		return fmt.Errorf("sampling tile_size must be positive, got %d", c.Sampling.TileSize)
	}
	if c.Sampling.Level < 0 {
		return fmt.Errorf("sampling level must not be negative, got %d", c.Sampling.Level)
	}
	if c.Sampling.ColorJitter < 0 || c.Sampling.ColorJitter >= 1 {
		return fmt.Errorf("sampling color_jitter must be in [0, 1), got %g", c.Sampling.ColorJitter)
	}
	return nil
}

// SetLogger applies the logging section.
func (c LoggingConfig) SetLogger() error {
	mode, err := slide.ParseLogMode(c.Level)
	if err != nil {
		return err
	}
	slide.SetLogMode(mode)
	c.LogConfig.SetLogger()
	return nil
}

// Criteria returns the candidate thresholds.
func (p ProbeConfig) Criteria() candidate.Criteria {
	return candidate.Criteria{
		MinWidth:        p.MinWidth,
		MinHeight:       p.MinHeight,
		MinFallbackSize: p.MinFallbackMB << 20,
		NameContains:    p.NameContains,
	}
}

// Timeout returns the per request timeout of probes.
func (p ProbeConfig) Timeout() time.Duration {
	return time.Duration(p.TimeoutSeconds) * time.Second
}

// Reader returns a range reader for http(s) and bucket URLs that honors the
// credentials, throttling and timeout settings.
func (p ProbeConfig) Reader() (*rangeread.Mux, error) {
	h, err := rangeread.NewHTTP(rangeread.HTTPOptions{
		Timeout:           p.Timeout(),
		CredentialsFile:   p.CredentialsFile,
		RequestsPerSecond: p.RequestsPerSecond,
	})
	if err != nil {
		return nil, err
	}
	return rangeread.NewMux(h), nil
}

// Options returns the dataset options.
func (s SamplingConfig) Options() sampler.Options {
	return sampler.Options{
		TileSize:         s.TileSize,
		Level:            s.Level,
		TilesPerSlide:    s.TilesPerSlide,
		MaxAttempts:      s.MaxAttempts,
		MaxSlideSwitches: s.MaxSlideSwitches,
		Augment:          s.Augment,
		ColorJitter:      s.ColorJitter,
		Validator:        &sampler.Validator{MinStd: s.MinStd, MinMean: s.MinMean},
	}
}

// Options returns the remote source options.
func (r RemoteConfig) Options() source.RemoteOptions {
	return source.RemoteOptions{
		MaxRetries: r.MaxRetries,
		RetryDelay: time.Duration(r.RetryDelayMS) * time.Millisecond,
		Timeout:    time.Duration(r.TimeoutSeconds) * time.Second,
		CacheMB:    r.CacheMB,
	}
}
