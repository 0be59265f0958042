package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"scrapix/pkg/browser"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.True(t, cfg.Browser.Headless)

	// Selector table
	assert.Equal(t, "https://www.google.com/search?q=", cfg.Search.SearchURL)
	assert.Equal(t, "Images", cfg.Search.ImagesLinkText)
	assert.Equal(t, browser.ByClass("div", "F0uyec"), cfg.Search.Thumbnail)
	require.Len(t, cfg.Search.Images, 4)
	for i, class := range []string{"n3VNCb", "iPVvYb", "r48jcc", "pT0Scc"} {
		assert.Equal(t, browser.ByClass("img", class), cfg.Search.Images[i])
	}
	assert.Equal(t, browser.ByID("button", "W0wltc"), cfg.Search.Consent[0])
	assert.Len(t, cfg.Search.Consent, 2)
	assert.Contains(t, cfg.Search.Challenge.XPath, "recaptcha")
	assert.Equal(t, browser.ByText("*", "Images"), cfg.Search.ImagesLink())

	// Timeouts
	assert.Equal(t, 1*time.Second, cfg.Timeouts.Challenge)
	assert.Equal(t, 2*time.Second, cfg.Timeouts.ImagesLink)

	// Pacing
	assert.True(t, cfg.Pacing.Enabled)
	assert.Equal(t, Range{Min: time.Second, Max: 3 * time.Second}, cfg.Pacing.Settle)
	assert.Equal(t, Range{Min: 500 * time.Millisecond, Max: 2 * time.Second}, cfg.Pacing.Reveal)

	// Output
	assert.Equal(t, filepath.Join(".", ".cache", "scrapix"), cfg.Output.HomeDirectory)
	assert.Equal(t, "urls.json", cfg.Output.URLsFile)

	assert.Equal(t, "info", cfg.Logging.Level)
	assert.NoError(t, cfg.Validate())
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("SCRAPIX_HOME_DIR", "/tmp/scrapix-home")
	t.Setenv("SCRAPIX_IMAGES_LINK_TEXT", "Bilder")
	t.Setenv("SCRAPIX_THUMBNAIL_CLASS", "abc123")
	t.Setenv("SCRAPIX_IMAGE_CLASSES", "one, two")
	t.Setenv("SCRAPIX_HEADLESS", "false")
	t.Setenv("SCRAPIX_USER_AGENT", "test-agent")
	t.Setenv("SCRAPIX_CONCURRENT_DOWNLOADS", "8")
	t.Setenv("SCRAPIX_LOG_LEVEL", "debug")

	cfg := DefaultConfig()
	require.NoError(t, cfg.LoadFromEnv())

	assert.Equal(t, "/tmp/scrapix-home", cfg.Output.HomeDirectory)
	assert.Equal(t, "Bilder", cfg.Search.ImagesLinkText)
	assert.Equal(t, browser.ByClass("div", "abc123"), cfg.Search.Thumbnail)
	assert.Equal(t, []browser.Selector{browser.ByClass("img", "one"), browser.ByClass("img", "two")}, cfg.Search.Images)
	assert.False(t, cfg.Browser.Headless)
	assert.Equal(t, []string{"test-agent"}, cfg.Browser.UserAgents)
	assert.Equal(t, 8, cfg.Download.ConcurrentDownloads)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestLoadFromEnvRejectsMalformedValues(t *testing.T) {
	t.Setenv("SCRAPIX_HEADLESS", "sometimes")
	t.Setenv("SCRAPIX_CONCURRENT_DOWNLOADS", "many")

	cfg := DefaultConfig()
	err := cfg.LoadFromEnv()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "SCRAPIX_HEADLESS")
	assert.Contains(t, err.Error(), "SCRAPIX_CONCURRENT_DOWNLOADS")
}

func TestLoadFromFile(t *testing.T) {
	t.Run("valid yaml file", func(t *testing.T) {
		configPath := filepath.Join(t.TempDir(), "config.yaml")
		testConfig := `
browser:
  headless: false
  user_agents: ["agent-a", "agent-b"]

search:
  images_link_text: Immagini
  thumbnail:
    tag: div
    class: newThumb
  images:
    - tag: img
      class: big
  consent:
    - tag: button
      text: Reject all

timeouts:
  navigation: 45s
  challenge: 500ms
  consent: 1s
  images_link: 3s
  click: 2s

pacing:
  enabled: false

output:
  home_directory: /file/output
  urls_file: found.json

download:
  concurrent_downloads: 2
  download_timeout: 60s

logging:
  level: warn
`
		require.NoError(t, os.WriteFile(configPath, []byte(testConfig), 0644))

		cfg := DefaultConfig()
		require.NoError(t, cfg.LoadFromFile(configPath))

		assert.False(t, cfg.Browser.Headless)
		assert.Equal(t, []string{"agent-a", "agent-b"}, cfg.Browser.UserAgents)
		assert.Equal(t, "Immagini", cfg.Search.ImagesLinkText)
		assert.Equal(t, browser.ByClass("div", "newThumb"), cfg.Search.Thumbnail)
		assert.Equal(t, []browser.Selector{browser.ByClass("img", "big")}, cfg.Search.Images)
		assert.Equal(t, []browser.Selector{browser.ByText("button", "Reject all")}, cfg.Search.Consent)
		assert.Equal(t, 45*time.Second, cfg.Timeouts.Navigation)
		assert.Equal(t, 500*time.Millisecond, cfg.Timeouts.Challenge)
		assert.False(t, cfg.Pacing.Enabled)
		assert.Equal(t, "/file/output", cfg.Output.HomeDirectory)
		assert.Equal(t, "found.json", cfg.Output.URLsFile)
		assert.Equal(t, 2, cfg.Download.ConcurrentDownloads)
		assert.Equal(t, 60*time.Second, cfg.Download.DownloadTimeout)
		assert.Equal(t, "warn", cfg.Logging.Level)

		// Untouched sections keep their defaults.
		assert.Equal(t, "alt", cfg.Search.TitleAttribute)
		assert.NoError(t, cfg.Validate())
	})

	t.Run("invalid yaml", func(t *testing.T) {
		configPath := filepath.Join(t.TempDir(), "invalid.yaml")
		require.NoError(t, os.WriteFile(configPath, []byte("search:\n  images: [this is invalid\n"), 0644))

		err := DefaultConfig().LoadFromFile(configPath)
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "failed to parse config file")
	})

	t.Run("non-existent file", func(t *testing.T) {
		err := DefaultConfig().LoadFromFile("/non/existent/path/config.yaml")
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "failed to read config file")
	})
}

func TestFindConfigFile(t *testing.T) {
	t.Run("finds config in current directory", func(t *testing.T) {
		tempDir := t.TempDir()
		t.Setenv("HOME", tempDir)
		oldDir, _ := os.Getwd()
		defer os.Chdir(oldDir)
		require.NoError(t, os.Chdir(tempDir))

		require.NoError(t, os.WriteFile(filepath.Join(tempDir, ".scrapix.yaml"), []byte("logging:\n  level: debug\n"), 0644))

		assert.Equal(t, ".scrapix.yaml", DefaultConfig().findConfigFile())
	})

	t.Run("no config file found", func(t *testing.T) {
		tempDir := t.TempDir()
		t.Setenv("HOME", tempDir)
		oldDir, _ := os.Getwd()
		defer os.Chdir(oldDir)
		require.NoError(t, os.Chdir(tempDir))

		assert.Empty(t, DefaultConfig().findConfigFile())
	})
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*Config)
		wantErr string
	}{
		{
			name:   "defaults are valid",
			modify: func(*Config) {},
		},
		{
			name:    "missing images link text",
			modify:  func(c *Config) { c.Search.ImagesLinkText = "" },
			wantErr: "images link text is required",
		},
		{
			name:    "thumbnail without addressing mode",
			modify:  func(c *Config) { c.Search.Thumbnail = browser.Selector{Tag: "div"} },
			wantErr: "thumbnail",
		},
		{
			name:    "no image selectors",
			modify:  func(c *Config) { c.Search.Images = nil },
			wantErr: "at least one image selector",
		},
		{
			name:    "zero click timeout",
			modify:  func(c *Config) { c.Timeouts.Click = 0 },
			wantErr: "click timeout must be positive",
		},
		{
			name:    "inverted pacing range",
			modify:  func(c *Config) { c.Pacing.Reveal = Range{Min: 2 * time.Second, Max: time.Second} },
			wantErr: "reveal pacing range is invalid",
		},
		{
			name:    "too many downloads",
			modify:  func(c *Config) { c.Download.ConcurrentDownloads = 64 },
			wantErr: "should not exceed 32",
		},
		{
			name:    "unknown limiter",
			modify:  func(c *Config) { c.RateLimit.Strategy = "leaky" },
			wantErr: "unknown rate limit strategy",
		},
		{
			name:    "bad log level",
			modify:  func(c *Config) { c.Logging.Level = "loud" },
			wantErr: "invalid log level",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.modify(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestSaveAndReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")

	cfg := DefaultConfig()
	cfg.Search.ImagesLinkText = "Imágenes"
	cfg.Browser.UserAgents = []string{"agent"}
	cfg.Pacing.Enabled = false
	require.NoError(t, cfg.Save(path))

	loaded := DefaultConfig()
	require.NoError(t, loaded.LoadFromFile(path))
	assert.Equal(t, cfg, loaded)
}

func TestMergeCommandLineFlags(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MergeCommandLineFlags(map[string]interface{}{
		"headless":   false,
		"home":       "/flags/home",
		"concurrent": 6,
		"pacing":     false,
		"log-level":  "error",
		"no-color":   true,
	})

	assert.False(t, cfg.Browser.Headless)
	assert.Equal(t, "/flags/home", cfg.Output.HomeDirectory)
	assert.Equal(t, 6, cfg.Download.ConcurrentDownloads)
	assert.False(t, cfg.Pacing.Enabled)
	assert.Equal(t, "error", cfg.Logging.Level)
	assert.True(t, cfg.Logging.NoColor)
}

func TestLoadPrecedence(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("HOME", dir)
	oldDir, _ := os.Getwd()
	defer os.Chdir(oldDir)
	require.NoError(t, os.Chdir(dir))

	configPath := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte("logging:\n  level: warn\ndownload:\n  concurrent_downloads: 2\n"), 0644))
	t.Setenv("SCRAPIX_CONCURRENT_DOWNLOADS", "5")

	cfg, err := Load(configPath, map[string]interface{}{"log-level": "debug"})
	require.NoError(t, err)

	assert.Equal(t, 5, cfg.Download.ConcurrentDownloads, "env overrides file")
	assert.Equal(t, "debug", cfg.Logging.Level, "flags override file")
}

func TestLoadFailsValidation(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	_, err := Load("", map[string]interface{}{"log-level": "chatty"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "configuration validation failed")
}
