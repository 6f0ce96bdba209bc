package postkit

import (
	"fmt"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/sirupsen/logrus"

	"github.com/eringen/postkit/blob"
)

// SiteConfig holds all configuration for a postkit site.
type SiteConfig struct {
	Name        string `toml:"name"`        // Site name (default "Blog")
	URL         string `toml:"url"`         // Canonical URL, also the base for relative asset fetches
	Description string `toml:"description"` // Site description for meta tags
	Author      string `toml:"author"`      // Admin display name

	Addr         string `toml:"addr"`          // Listen address (default ":3000")
	DatabasePath string `toml:"database_path"` // SQLite path (default "data/postkit.db")

	AdminPassword string `toml:"admin_password"` // Required: admin login password
	SessionSecret string `toml:"session_secret"` // Required: session encryption secret
	CookieSecure  bool   `toml:"cookie_secure"`  // Set true for HTTPS

	PostCacheTTL time.Duration `toml:"post_cache_ttl"` // default 5m

	LogLevel  string `toml:"log_level"`  // logrus level name (default "info")
	LogFormat string `toml:"log_format"` // "text" or "json"

	FetchTimeout    time.Duration `toml:"fetch_timeout"`    // asset fetch timeout (default 30s)
	MaxImportSize   int64         `toml:"max_import_size"`  // bytes accepted by the import endpoint
	CleanupSchedule string        `toml:"cleanup_schedule"` // orphan sweep cron spec, "off" disables

	Blob blob.Config `toml:"blob"`
}

func (c *SiteConfig) setDefaults() {
	if c.Name == "" {
		c.Name = "Blog"
	}
	if c.URL == "" {
		c.URL = "http://localhost:3000"
	}
	if c.Author == "" {
		c.Author = "Admin"
	}
	if c.Addr == "" {
		c.Addr = ":3000"
	}
	if c.DatabasePath == "" {
		c.DatabasePath = "data/postkit.db"
	}
	if c.PostCacheTTL == 0 {
		c.PostCacheTTL = 5 * time.Minute
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.LogFormat == "" {
		c.LogFormat = "text"
	}
	if c.FetchTimeout == 0 {
		c.FetchTimeout = 30 * time.Second
	}
	if c.MaxImportSize == 0 {
		c.MaxImportSize = 256 << 20
	}
	if c.CleanupSchedule == "" {
		c.CleanupSchedule = "@every 6h"
	}
	if c.Blob.Type == "" {
		c.Blob.Type = "filesystem"
	}
	if c.Blob.Type == "filesystem" && c.Blob.Root == "" {
		c.Blob.Root = "data/blobs"
	}
}

// LoadConfig reads a TOML file and applies environment overrides on top.
// An empty path reads the environment only.
func LoadConfig(path string) (SiteConfig, error) {
	var cfg SiteConfig
	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return SiteConfig{}, fmt.Errorf("read config %s: %w", path, err)
		}
	}
	if err := applyEnv(&cfg); err != nil {
		return SiteConfig{}, err
	}
	return cfg, nil
}

func applyEnv(cfg *SiteConfig) error {
	str := map[string]*string{
		"SITE_NAME":            &cfg.Name,
		"SITE_URL":             &cfg.URL,
		"SITE_DESCRIPTION":     &cfg.Description,
		"SITE_AUTHOR":          &cfg.Author,
		"ADDR":                 &cfg.Addr,
		"DATABASE_PATH":        &cfg.DatabasePath,
		"ADMIN_PASSWORD":       &cfg.AdminPassword,
		"SESSION_SECRET":       &cfg.SessionSecret,
		"LOG_LEVEL":            &cfg.LogLevel,
		"LOG_FORMAT":           &cfg.LogFormat,
		"CLEANUP_SCHEDULE":     &cfg.CleanupSchedule,
		"BLOB_TYPE":            &cfg.Blob.Type,
		"BLOB_ROOT":            &cfg.Blob.Root,
		"S3_BUCKET":            &cfg.Blob.S3Bucket,
		"S3_PREFIX":            &cfg.Blob.S3Prefix,
		"S3_REGION":            &cfg.Blob.S3Region,
		"S3_ENDPOINT":          &cfg.Blob.S3Endpoint,
		"S3_ACCESS_KEY_ID":     &cfg.Blob.S3AccessKeyID,
		"S3_SECRET_ACCESS_KEY": &cfg.Blob.S3SecretAccessKey,
	}
	for key, dst := range str {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	for key, dst := range map[string]*bool{
		"COOKIE_SECURE":     &cfg.CookieSecure,
		"S3_USE_PATH_STYLE": &cfg.Blob.S3UsePathStyle,
	} {
		if v := os.Getenv(key); v != "" {
			b, err := strconv.ParseBool(v)
			if err != nil {
				return fmt.Errorf("%s: %w", key, err)
			}
			*dst = b
		}
	}
	for key, dst := range map[string]*time.Duration{
		"POST_CACHE_TTL": &cfg.PostCacheTTL,
		"FETCH_TIMEOUT":  &cfg.FetchTimeout,
	} {
		if v := os.Getenv(key); v != "" {
			d, err := time.ParseDuration(v)
			if err != nil {
				return fmt.Errorf("%s: %w", key, err)
			}
			*dst = d
		}
	}
	if v := os.Getenv("MAX_IMPORT_SIZE"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("MAX_IMPORT_SIZE: %w", err)
		}
		cfg.MaxImportSize = n
	}
	return nil
}

// newLogger builds the App logger from the level and format settings.
func (c SiteConfig) newLogger() (*logrus.Logger, error) {
	l := logrus.New()
	level, err := logrus.ParseLevel(c.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("log_level: %w", err)
	}
	l.SetLevel(level)
	switch c.LogFormat {
	case "json":
		l.SetFormatter(&logrus.JSONFormatter{})
	case "text":
		l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	default:
		return nil, fmt.Errorf("log_format: unknown format %q", c.LogFormat)
	}
	return l, nil
}

// Option configures additional App behavior.
type Option func(*App)

// WithCustomRoutes registers additional routes on the Echo instance.
// The callback receives the App after the built-in routes are set up.
func WithCustomRoutes(fn func(*App)) Option {
	return func(a *App) {
		a.customRoutes = append(a.customRoutes, fn)
	}
}

// WithStaticDir sets the directory for user-owned static assets (default "public").
func WithStaticDir(dir string) Option {
	return func(a *App) {
		a.staticDir = dir
	}
}

// WithLogger replaces the logger built from the log settings.
func WithLogger(l *logrus.Logger) Option {
	return func(a *App) {
		a.Log = l
	}
}

// WithBlobStore replaces the blob backend selected by the [blob] section.
func WithBlobStore(s blob.Store) Option {
	return func(a *App) {
		a.Blobs = s
	}
}

// WithHTTPClient sets the client used to fetch remote assets during export.
func WithHTTPClient(c *http.Client) Option {
	return func(a *App) {
		a.httpClient = c
	}
}
