package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"

	appLog "openair/internal/log"
)

// Source formats.
const (
	FormatPackage = "package"
	FormatICS     = "ics"
)

// Source is one downloadable event package or calendar feed.
type Source struct {
	// ID is an internal identifier used for the cache directory and logging.
	ID string `yaml:"id" json:"id"`
	// Name is a human-friendly label. For ICS feeds it names the event.
	Name string `yaml:"name" json:"name"`
	// URL is where the zip package or calendar is published.
	URL string `yaml:"url" json:"url"`
	// Format is "package" (default) or "ics".
	Format string `yaml:"format,omitempty" json:"format,omitempty"`
	// Activate makes every newly installed version the active event.
	Activate bool `yaml:"activate,omitempty" json:"activate,omitempty"`
}

// OverviewConfig controls the overview screen.
type OverviewConfig struct {
	// Locations lists the location names shown, in order. Empty shows all.
	Locations []string `yaml:"locations" json:"locations"`
	// MaxSessions caps the sessions listed per location.
	MaxSessions int `yaml:"max_sessions" json:"max_sessions"`
	// NoticeMinutes is how long the date notice stays up after the previous
	// day's program ended.
	NoticeMinutes int `yaml:"notice_minutes" json:"notice_minutes"`
}

// CaptureConfig controls headless screenshots of the overview page.
type CaptureConfig struct {
	Enabled bool `yaml:"enabled" json:"enabled"`
	// URL defaults to the overview page served on Listen (see CaptureURL).
	URL string `yaml:"url" json:"url"`
	// Output defaults to <data_dir>/preview.png (see CaptureOutput).
	Output string `yaml:"output" json:"output"`
	Width  int    `yaml:"width" json:"width"`
	Height int    `yaml:"height" json:"height"`
}

// BasicAuthConfig holds HTTP Basic Auth credentials for the Web UI/API.
type BasicAuthConfig struct {
	Username string `yaml:"username" json:"username"`
	Password string `yaml:"password" json:"password"`
}

// Config is the top-level application configuration.
type Config struct {
	// Listen is the HTTP listen address for the Web UI and API.
	Listen string `yaml:"listen" json:"listen"`

	// Timezone is the IANA zone program times are written in (e.g. "Europe/Bratislava").
	Timezone string `yaml:"timezone" json:"timezone"`

	// DataDir holds event packages, the download cache and the record store.
	DataDir string `yaml:"data_dir" json:"data_dir"`

	// DBPath is the SQLite record store; see DatabasePath for the default.
	DBPath string `yaml:"db_path" json:"db_path"`

	// RefreshCron is a cron-style schedule string (e.g. "*/15 * * * *")
	// for re-downloading event packages.
	RefreshCron string `yaml:"refresh" json:"refresh"`

	// Sources is the list of event packages to download.
	Sources []Source `yaml:"sources" json:"sources"`

	Overview OverviewConfig `yaml:"overview" json:"overview"`

	// TimeShift moves the display clock, for rehearsing a festival day ahead of time.
	TimeShift time.Duration `yaml:"time_shift" json:"time_shift"`

	Capture CaptureConfig `yaml:"capture" json:"capture"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `yaml:"log_level" json:"log_level"`

	// BasicAuth, if non-nil, enables HTTP Basic Authentication on all endpoints
	// except /health.
	BasicAuth *BasicAuthConfig `yaml:"basic_auth,omitempty" json:"basic_auth,omitempty"`
}

// envOverrides are applied after the YAML file. Unset variables leave the
// file values alone.
type envOverrides struct {
	Listen            *string        `env:"OPENAIR_LISTEN"`
	Timezone          *string        `env:"OPENAIR_TIMEZONE"`
	DataDir           *string        `env:"OPENAIR_DATA_DIR"`
	DBPath            *string        `env:"OPENAIR_DB_PATH"`
	RefreshCron       *string        `env:"OPENAIR_REFRESH"`
	LogLevel          *string        `env:"OPENAIR_LOG_LEVEL"`
	TimeShift         *time.Duration `env:"OPENAIR_TIME_SHIFT"`
	Locations         []string       `env:"OPENAIR_OVERVIEW_LOCATIONS" envSeparator:","`
	MaxSessions       *int           `env:"OPENAIR_OVERVIEW_MAX_SESSIONS"`
	CaptureEnabled    *bool          `env:"OPENAIR_CAPTURE_ENABLED"`
	BasicAuthUsername *string        `env:"OPENAIR_BASIC_AUTH_USERNAME"`
	BasicAuthPassword *string        `env:"OPENAIR_BASIC_AUTH_PASSWORD"`
}

const (
	defaultListen      = "127.0.0.1:8080"
	defaultTimezone    = "Europe/Bratislava"
	defaultDataDir     = "./var/openair"
	defaultRefreshCron = "*/15 * * * *"
)

// DefaultConfig returns an in-memory default configuration.
func DefaultConfig() *Config {
	c := &Config{
		Listen:      defaultListen,
		Timezone:    defaultTimezone,
		DataDir:     defaultDataDir,
		RefreshCron: defaultRefreshCron,
		Sources:     []Source{},
		Overview: OverviewConfig{
			Locations:     []string{},
			MaxSessions:   3,
			NoticeMinutes: 60,
		},
		Capture: CaptureConfig{
			Width:  800,
			Height: 480,
		},
		LogLevel: "info",
	}
	c.Normalize()
	return c
}

// Normalize fills in missing/zero values with sensible defaults so that
// partially-filled configs still behave correctly.
func (c *Config) Normalize() {
	if c.Listen == "" {
		c.Listen = defaultListen
	}
	if c.Timezone == "" {
		c.Timezone = defaultTimezone
	}
	if c.DataDir == "" {
		c.DataDir = defaultDataDir
	}
	if c.RefreshCron == "" {
		c.RefreshCron = defaultRefreshCron
	}
	if c.Sources == nil {
		c.Sources = []Source{}
	}
	for i := range c.Sources {
		if c.Sources[i].ID == "" {
			c.Sources[i].ID = fmt.Sprintf("source-%d", i+1)
		}
		if c.Sources[i].Format == "" {
			c.Sources[i].Format = FormatPackage
		}
	}
	if c.Overview.Locations == nil {
		c.Overview.Locations = []string{}
	}
	if c.Overview.MaxSessions <= 0 {
		c.Overview.MaxSessions = 3
	}
	if c.Overview.NoticeMinutes < 0 {
		c.Overview.NoticeMinutes = 0
	}
	if c.Capture.Width <= 0 {
		c.Capture.Width = 800
	}
	if c.Capture.Height <= 0 {
		c.Capture.Height = 480
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
}

// Validate reports values that Normalize cannot repair.
func (c *Config) Validate() error {
	var errs []error
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		errs = append(errs, fmt.Errorf("timezone %q: %w", c.Timezone, err))
	}
	if _, err := cron.ParseStandard(c.RefreshCron); err != nil {
		errs = append(errs, fmt.Errorf("refresh %q: %w", c.RefreshCron, err))
	}
	if _, err := appLog.ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, err)
	}
	seen := make(map[string]bool)
	for _, s := range c.Sources {
		if s.URL == "" {
			errs = append(errs, fmt.Errorf("source %q has no url", s.ID))
		}
		if s.Format != FormatPackage && s.Format != FormatICS {
			errs = append(errs, fmt.Errorf("source %q: unknown format %q", s.ID, s.Format))
		}
		if seen[s.ID] {
			errs = append(errs, fmt.Errorf("duplicate source id %q", s.ID))
		}
		seen[s.ID] = true
	}
	if c.BasicAuth != nil && (c.BasicAuth.Username == "" || c.BasicAuth.Password == "") {
		errs = append(errs, errors.New("basic_auth needs both username and password"))
	}
	if len(errs) > 0 {
		return fmt.Errorf("config: %w", errors.Join(errs...))
	}
	return nil
}

// Location returns the configured time zone.
func (c *Config) Location() (*time.Location, error) {
	return time.LoadLocation(c.Timezone)
}

// NoticePeriod returns Overview.NoticeMinutes as a duration.
func (c *Config) NoticePeriod() time.Duration {
	return time.Duration(c.Overview.NoticeMinutes) * time.Minute
}

// DatabasePath returns DBPath, or <data_dir>/events.db when unset.
func (c *Config) DatabasePath() string {
	if c.DBPath != "" {
		return c.DBPath
	}
	return filepath.Join(c.DataDir, "events.db")
}

// CaptureURL returns Capture.URL, or the overview page served on Listen.
func (c *Config) CaptureURL() string {
	if c.Capture.URL != "" {
		return c.Capture.URL
	}
	return "http://" + c.Listen + "/overview"
}

// CaptureOutput returns Capture.Output, or <data_dir>/preview.png.
func (c *Config) CaptureOutput() string {
	if c.Capture.Output != "" {
		return c.Capture.Output
	}
	return filepath.Join(c.DataDir, "preview.png")
}

// PackagesDir is where downloaded and imported event packages are stored.
func (c *Config) PackagesDir() string {
	return filepath.Join(c.DataDir, "packages")
}

// CacheDir is the HTTP cache of the package fetcher.
func (c *Config) CacheDir() string {
	return filepath.Join(c.DataDir, "cache")
}

// Load loads configuration from the given YAML path, then applies
// OPENAIR_* environment overrides.
//
// Behavior:
//   - If the file does not exist:
//   - create parent directory if needed
//   - write a default config with 0600 perms
//   - continue with the default config
//   - If the file exists:
//   - read YAML and unmarshal into Config
//   - normalize defaults
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is empty")
	}

	var cfg *Config
	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		// First run: create default config file.
		cfg = DefaultConfig()
		if err := Save(path, cfg); err != nil {
			// Even if save fails, return cfg with error so caller can decide.
			return cfg, err
		}
		appLog.Info("config: wrote default config", "path", path)
	case err != nil:
		return nil, err
	default:
		cfg = &Config{}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	cfg.Normalize()
	return cfg, nil
}

func (c *Config) applyEnv() error {
	var o envOverrides
	if err := env.Parse(&o); err != nil {
		return fmt.Errorf("config: parse env: %w", err)
	}
	set := func(dst *string, v *string) {
		if v != nil {
			*dst = *v
		}
	}
	set(&c.Listen, o.Listen)
	set(&c.Timezone, o.Timezone)
	set(&c.DataDir, o.DataDir)
	set(&c.DBPath, o.DBPath)
	set(&c.RefreshCron, o.RefreshCron)
	set(&c.LogLevel, o.LogLevel)
	if o.TimeShift != nil {
		c.TimeShift = *o.TimeShift
	}
	if len(o.Locations) > 0 {
		c.Overview.Locations = make([]string, 0, len(o.Locations))
		for _, l := range o.Locations {
			if l = strings.TrimSpace(l); l != "" {
				c.Overview.Locations = append(c.Overview.Locations, l)
			}
		}
	}
	if o.MaxSessions != nil {
		c.Overview.MaxSessions = *o.MaxSessions
	}
	if o.CaptureEnabled != nil {
		c.Capture.Enabled = *o.CaptureEnabled
	}
	if o.BasicAuthUsername != nil || o.BasicAuthPassword != nil {
		if c.BasicAuth == nil {
			c.BasicAuth = &BasicAuthConfig{}
		}
		set(&c.BasicAuth.Username, o.BasicAuthUsername)
		set(&c.BasicAuth.Password, o.BasicAuthPassword)
	}
	return nil
}

// Save writes the given configuration to the specified path.
//
// Implementation details:
//   - Ensures parent directory exists (0700).
//   - Marshals cfg to YAML.
//   - Writes atomically via a temp file + rename.
//   - Ensures final file permissions are 0600.
func Save(path string, cfg *Config) error {
	if path == "" {
		return errors.New("config path is empty")
	}
	if cfg == nil {
		return errors.New("config is nil")
	}

	cfg.Normalize()

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return writeFileAtomic(path, data, 0o600)
}

// writeFileAtomic writes data to a temp file next to path and renames it
// over path, so readers never see a partial file.
func writeFileAtomic(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+"-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()

	// Ensure we clean up temp file on error.
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}

	// Flush and close before chmod/rename.
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}

	if err := os.Chmod(tmpName, perm); err != nil {
		return err
	}

	return os.Rename(tmpName, path)
}

// Save is a convenience method on Config that delegates to the package-level
// Save function.
func (c *Config) Save(path string) error {
	return Save(path, c)
}
