package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// NOTE: This file provides the configuration model and full YAML-based
// load/save behavior, including first-run config creation and 0600
// permissions.

const (
	defaultListen      = "127.0.0.1:8080"
	defaultTimezone    = "UTC"
	defaultLogLevel    = "info"
	defaultContentDir  = "content"
	defaultCacheDir    = "./cache/ics-cache"
	defaultRefreshCron = "*/30 * * * *"
	defaultPreviewSize = 5
	defaultRecentPosts = 5
	defaultHorizonDays = 365
	defaultBackfill    = 365
	defaultSiteTitle   = "My Site"
)

// FeedConfig describes a single ICS subscription that contributes
// appearances.
type FeedConfig struct {
	// URL is the ICS subscription endpoint.
	URL string `yaml:"url" json:"url"`
	// ID is an internal identifier used for de-dup and logging.
	ID string `yaml:"id" json:"id"`
	// Name is a human-friendly label.
	Name string `yaml:"name" json:"name"`
}

// SourceID returns the identifier used for events from this feed.
func (f FeedConfig) SourceID() string {
	switch {
	case f.ID != "":
		return f.ID
	case f.Name != "":
		return f.Name
	default:
		return f.URL
	}
}

// BasicAuthConfig holds HTTP Basic Auth credentials, typically for a
// staging deployment.
type BasicAuthConfig struct {
	Username string `yaml:"username" json:"username"`
	Password string `yaml:"password" json:"password"`
}

// SocialConfig holds handles for the social links block.
type SocialConfig struct {
	Twitter   string `yaml:"twitter,omitempty" json:"twitter,omitempty"`
	GitHub    string `yaml:"github,omitempty" json:"github,omitempty"`
	LinkedIn  string `yaml:"linkedin,omitempty" json:"linkedin,omitempty"`
	Instagram string `yaml:"instagram,omitempty" json:"instagram,omitempty"`
}

// SiteConfig is the identity shown in page titles and the hero section.
type SiteConfig struct {
	Title       string       `yaml:"title" json:"title"`
	Name        string       `yaml:"name" json:"name"`
	Tagline     string       `yaml:"tagline" json:"tagline"`
	Description string       `yaml:"description" json:"description"`
	Email       string       `yaml:"email,omitempty" json:"email,omitempty"`
	Social      SocialConfig `yaml:"social" json:"social"`
}

// Config is the top-level application configuration.
type Config struct {
	// Listen is the HTTP listen address.
	Listen string `yaml:"listen" json:"listen"`

	// BaseURL is the public origin, used for absolute links in the ICS export.
	BaseURL string `yaml:"base_url" json:"base_url"`

	// Timezone is the IANA timezone used to interpret date-only values and
	// to display dates (e.g. "Europe/Vienna").
	Timezone string `yaml:"timezone" json:"timezone"`

	LogLevel string `yaml:"log_level" json:"log_level"`

	Site SiteConfig `yaml:"site" json:"site"`

	// ContentDir holds pages/, posts/, talks/, workshops/ and appearances/.
	ContentDir string `yaml:"content_dir" json:"content_dir"`

	// CacheDir stores ETag/Last-Modified metadata and bodies of feeds.
	CacheDir string `yaml:"cache_dir" json:"cache_dir"`

	// Watch reloads content when files under ContentDir change.
	Watch bool `yaml:"watch" json:"watch"`

	// PreviewSize is how many appearances the home page shows.
	PreviewSize int `yaml:"preview_size" json:"preview_size"`

	// RecentPosts is how many posts the home page lists.
	RecentPosts int `yaml:"recent_posts" json:"recent_posts"`

	// RefreshCron is a cron-style schedule string (e.g. "*/30 * * * *")
	// used for periodic feed refresh.
	RefreshCron string `yaml:"refresh" json:"refresh"`

	// HorizonDays / BackfillDays bound recurrence expansion and feed
	// events around the current time.
	HorizonDays  int `yaml:"horizon_days" json:"horizon_days"`
	BackfillDays int `yaml:"backfill_days" json:"backfill_days"`

	// Feeds is the list of subscribed ICS sources.
	Feeds []FeedConfig `yaml:"feeds" json:"feeds"`

	// BasicAuth, if non-nil, enables HTTP Basic Authentication on all endpoints
	// except /health.
	BasicAuth *BasicAuthConfig `yaml:"basic_auth,omitempty" json:"basic_auth,omitempty"`
}

// DefaultConfig returns an in-memory default configuration.
func DefaultConfig() *Config {
	return &Config{
		Listen:       defaultListen,
		Timezone:     defaultTimezone,
		LogLevel:     defaultLogLevel,
		Site:         SiteConfig{Title: defaultSiteTitle},
		ContentDir:   defaultContentDir,
		CacheDir:     defaultCacheDir,
		Watch:        true,
		PreviewSize:  defaultPreviewSize,
		RecentPosts:  defaultRecentPosts,
		RefreshCron:  defaultRefreshCron,
		HorizonDays:  defaultHorizonDays,
		BackfillDays: defaultBackfill,
		Feeds:        []FeedConfig{},
		BasicAuth:    nil,
	}
}

// Normalize fills in missing/zero values with sensible defaults so that
// partially-filled configs (e.g., older versions) still behave correctly.
func (c *Config) Normalize() {
	if c.Listen == "" {
		c.Listen = defaultListen
	}
	if c.Timezone == "" {
		c.Timezone = defaultTimezone
	}
	if c.LogLevel == "" {
		c.LogLevel = defaultLogLevel
	}
	c.BaseURL = strings.TrimRight(c.BaseURL, "/")
	if c.Site.Title == "" {
		if c.Site.Name != "" {
			c.Site.Title = c.Site.Name
		} else {
			c.Site.Title = defaultSiteTitle
		}
	}
	if c.ContentDir == "" {
		c.ContentDir = defaultContentDir
	}
	if c.CacheDir == "" {
		c.CacheDir = defaultCacheDir
	}
	if c.PreviewSize <= 0 {
		c.PreviewSize = defaultPreviewSize
	}
	if c.RecentPosts <= 0 {
		c.RecentPosts = defaultRecentPosts
	}
	if c.RefreshCron == "" {
		c.RefreshCron = defaultRefreshCron
	}
	if c.HorizonDays <= 0 {
		c.HorizonDays = defaultHorizonDays
	}
	if c.BackfillDays < 0 {
		c.BackfillDays = defaultBackfill
	}
	if c.Feeds == nil {
		c.Feeds = []FeedConfig{}
	}
}

// Location resolves Timezone, falling back to UTC for unknown names.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// Load loads configuration from the given YAML path.
//
// Behavior:
//   - A ".env" file in the working directory is loaded first, if present.
//   - If the config file does not exist:
//   - create parent directory if needed
//   - write a default config with 0600 perms
//   - return the default config
//   - If the file exists:
//   - read YAML and unmarshal into Config
//   - normalize defaults
//   - FOLIO_* environment variables override file values.
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is empty")
	}

	// Missing .env is the common case.
	_ = godotenv.Load()

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			// First run: create default config file.
			cfg := DefaultConfig()
			saveErr := Save(path, cfg)
			applyEnv(cfg)
			cfg.Normalize()
			// Even if save fails, return cfg with error so caller can decide.
			return cfg, saveErr
		}
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}

	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	applyEnv(cfg)
	cfg.Normalize()

	return cfg, nil
}

// Parse decodes YAML config bytes and normalizes the result.
func Parse(data []byte) (*Config, error) {
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	cfg.Normalize()
	if _, err := time.LoadLocation(cfg.Timezone); err != nil {
		return nil, fmt.Errorf("invalid timezone %q: %w", cfg.Timezone, err)
	}
	return cfg, nil
}

// applyEnv overlays FOLIO_* environment variables.
func applyEnv(c *Config) {
	if v := os.Getenv("FOLIO_LISTEN"); v != "" {
		c.Listen = v
	}
	if v := os.Getenv("FOLIO_BASE_URL"); v != "" {
		c.BaseURL = v
	}
	if v := os.Getenv("FOLIO_CONTENT_DIR"); v != "" {
		c.ContentDir = v
	}
	if v := os.Getenv("FOLIO_LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
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

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".folio-config-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}

	if err := os.Chmod(tmpName, 0o600); err != nil {
		return err
	}

	return os.Rename(tmpName, path)
}

// Save is a convenience method on Config that delegates to the package-level
// Save function.
func (c *Config) Save(path string) error {
	return Save(path, c)
}
