package postkit

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigFileAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "postkit.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
name = "Field Notes"
url = "https://notes.example.com"
admin_password = "from-file"
cleanup_schedule = "off"

[blob]
type = "s3"
s3_bucket = "notes"
`), 0o644))

	t.Setenv("ADMIN_PASSWORD", "from-env")
	t.Setenv("COOKIE_SECURE", "true")
	t.Setenv("FETCH_TIMEOUT", "5s")
	t.Setenv("MAX_IMPORT_SIZE", "1024")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "Field Notes", cfg.Name)
	assert.Equal(t, "from-env", cfg.AdminPassword)
	assert.True(t, cfg.CookieSecure)
	assert.Equal(t, 5*time.Second, cfg.FetchTimeout)
	assert.Equal(t, int64(1024), cfg.MaxImportSize)
	assert.Equal(t, "off", cfg.CleanupSchedule)
	assert.Equal(t, "s3", cfg.Blob.Type)
	assert.Equal(t, "notes", cfg.Blob.S3Bucket)
}

func TestLoadConfigRejectsBadEnv(t *testing.T) {
	for key, value := range map[string]string{
		"COOKIE_SECURE":   "maybe",
		"POST_CACHE_TTL":  "soon",
		"MAX_IMPORT_SIZE": "big",
	} {
		t.Run(key, func(t *testing.T) {
			t.Setenv(key, value)
			_, err := LoadConfig("")
			assert.ErrorContains(t, err, key)
		})
	}

	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.toml"))
	assert.Error(t, err)
}

func TestSetDefaults(t *testing.T) {
	var cfg SiteConfig
	cfg.setDefaults()
	assert.Equal(t, "Blog", cfg.Name)
	assert.Equal(t, ":3000", cfg.Addr)
	assert.Equal(t, "data/postkit.db", cfg.DatabasePath)
	assert.Equal(t, 5*time.Minute, cfg.PostCacheTTL)
	assert.Equal(t, 30*time.Second, cfg.FetchTimeout)
	assert.Equal(t, "@every 6h", cfg.CleanupSchedule)
	assert.Equal(t, "filesystem", cfg.Blob.Type)
	assert.Equal(t, "data/blobs", cfg.Blob.Root)

	mem := SiteConfig{Blob: cfg.Blob}
	mem.Blob.Type, mem.Blob.Root = "memory", ""
	mem.setDefaults()
	assert.Empty(t, mem.Blob.Root)
}

func TestNewLogger(t *testing.T) {
	l, err := SiteConfig{LogLevel: "debug", LogFormat: "json"}.newLogger()
	require.NoError(t, err)
	assert.Equal(t, logrus.DebugLevel, l.GetLevel())
	assert.IsType(t, &logrus.JSONFormatter{}, l.Formatter)

	_, err = SiteConfig{LogLevel: "loud", LogFormat: "text"}.newLogger()
	assert.Error(t, err)
	_, err = SiteConfig{LogLevel: "info", LogFormat: "xml"}.newLogger()
	assert.Error(t, err)
}
