package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"scrapix/pkg/browser"
)

// Config holds all configuration options for scrapix
type Config struct {
	Browser     BrowserConfig     `yaml:"browser" json:"browser"`
	Search      SearchConfig      `yaml:"search" json:"search"`
	Timeouts    TimeoutConfig     `yaml:"timeouts" json:"timeouts"`
	Pacing      PacingConfig      `yaml:"pacing" json:"pacing"`
	Output      OutputConfig      `yaml:"output" json:"output"`
	Download    DownloadConfig    `yaml:"download" json:"download"`
	RateLimit   RateLimitConfig   `yaml:"rate_limit" json:"rate_limit"`
	Retry       RetryConfig       `yaml:"retry" json:"retry"`
	Diagnostics DiagnosticsConfig `yaml:"diagnostics" json:"diagnostics"`
	Logging     LoggingConfig     `yaml:"logging" json:"logging"`
}

// BrowserConfig controls the launched browser
type BrowserConfig struct {
	Headless     bool     `yaml:"headless" json:"headless"`
	UserAgents   []string `yaml:"user_agents" json:"user_agents"`
	ProbeAgent   bool     `yaml:"probe_user_agent" json:"probe_user_agent"`
	WindowWidth  int      `yaml:"window_width" json:"window_width"`
	WindowHeight int      `yaml:"window_height" json:"window_height"`
	ExecPath     string   `yaml:"exec_path" json:"exec_path"`
}

// SearchConfig is the site-specific selector table. Every entry is an
// external contract with the search engine's markup and may need updating
// when the markup changes.
type SearchConfig struct {
	SearchURL           string             `yaml:"search_url" json:"search_url"`
	ImagesLinkText      string             `yaml:"images_link_text" json:"images_link_text"`
	Thumbnail           browser.Selector   `yaml:"thumbnail" json:"thumbnail"`
	Images              []browser.Selector `yaml:"images" json:"images"`
	Challenge           browser.Selector   `yaml:"challenge" json:"challenge"`
	ChallengeIndicators []string           `yaml:"challenge_indicators" json:"challenge_indicators"`
	Consent             []browser.Selector `yaml:"consent" json:"consent"`
	SourceAttribute     string             `yaml:"source_attribute" json:"source_attribute"`
	TitleAttribute      string             `yaml:"title_attribute" json:"title_attribute"`
	SchemeMarker        string             `yaml:"scheme_marker" json:"scheme_marker"`
	ProxyMarker         string             `yaml:"proxy_marker" json:"proxy_marker"`
}

// ImagesLink returns the selector of the control switching to image results.
func (s SearchConfig) ImagesLink() browser.Selector {
	return browser.ByText("*", s.ImagesLinkText)
}

// TimeoutConfig holds the bounded waits of a session
type TimeoutConfig struct {
	Navigation time.Duration `yaml:"navigation" json:"navigation"`
	Challenge  time.Duration `yaml:"challenge" json:"challenge"`
	Consent    time.Duration `yaml:"consent" json:"consent"`
	ImagesLink time.Duration `yaml:"images_link" json:"images_link"`
	Click      time.Duration `yaml:"click" json:"click"`
}

// Range is a closed interval of durations
type Range struct {
	Min time.Duration `yaml:"min" json:"min"`
	Max time.Duration `yaml:"max" json:"max"`
}

// PacingConfig holds the human-like delays applied between interactions
type PacingConfig struct {
	Enabled bool  `yaml:"enabled" json:"enabled"`
	Settle  Range `yaml:"settle" json:"settle"`
	Reveal  Range `yaml:"reveal" json:"reveal"`
	Scroll  Range `yaml:"scroll" json:"scroll"`
	Gather  Range `yaml:"gather" json:"gather"`
}

// OutputConfig holds output directory configuration
type OutputConfig struct {
	HomeDirectory  string `yaml:"home_directory" json:"home_directory"`
	URLsFile       string `yaml:"urls_file" json:"urls_file"`
	ScreenshotFile string `yaml:"screenshot_file" json:"screenshot_file"`
	PageFile       string `yaml:"page_file" json:"page_file"`
	SessionFile    string `yaml:"session_file" json:"session_file"`
}

// DownloadConfig holds download-specific configuration
type DownloadConfig struct {
	ConcurrentDownloads int           `yaml:"concurrent_downloads" json:"concurrent_downloads"`
	DownloadTimeout     time.Duration `yaml:"download_timeout" json:"download_timeout"`
	OverwriteExisting   bool          `yaml:"overwrite_existing" json:"overwrite_existing"`
	// Headers are added to every image request, e.g. a Referer for hosts
	// that refuse hotlinking.
	Headers map[string]string `yaml:"headers,omitempty" json:"headers,omitempty"`
}

// RateLimitConfig holds rate limiting configuration for image hosts
type RateLimitConfig struct {
	Strategy          string `yaml:"strategy" json:"strategy"`
	RequestsPerMinute int    `yaml:"requests_per_minute" json:"requests_per_minute"`
	BurstSize         int    `yaml:"burst_size" json:"burst_size"`
}

// RetryConfig holds retry configuration for HTTP fetches
type RetryConfig struct {
	Enabled      bool          `yaml:"enabled" json:"enabled"`
	MaxAttempts  int           `yaml:"max_attempts" json:"max_attempts"`
	BaseDelay    time.Duration `yaml:"base_delay" json:"base_delay"`
	MaxDelay     time.Duration `yaml:"max_delay" json:"max_delay"`
	Multiplier   float64       `yaml:"multiplier" json:"multiplier"`
	JitterFactor float64       `yaml:"jitter_factor" json:"jitter_factor"`
}

// DiagnosticsConfig controls post-mortem capture
type DiagnosticsConfig struct {
	CaptureOnSuccess bool          `yaml:"capture_on_success" json:"capture_on_success"`
	CaptureTimeout   time.Duration `yaml:"capture_timeout" json:"capture_timeout"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level   string `yaml:"level" json:"level"`
	File    string `yaml:"file" json:"file"`
	NoColor bool   `yaml:"no_color" json:"no_color"`
}

// DefaultImageClasses are the classes of the enlarged image in the preview
// panel, most recent layout first.
var DefaultImageClasses = []string{"n3VNCb", "iPVvYb", "r48jcc", "pT0Scc"}

// DefaultConfig returns a Config instance with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Browser: BrowserConfig{
			Headless:     true,
			ProbeAgent:   true,
			WindowWidth:  1920,
			WindowHeight: 1080,
		},
		Search: SearchConfig{
			SearchURL:      "https://www.google.com/search?q=",
			ImagesLinkText: "Images",
			Thumbnail:      browser.ByClass("div", "F0uyec"),
			Images:         imageSelectors(DefaultImageClasses),
			Challenge: browser.ByXPath("iframe",
				"//iframe[starts-with(@name, 'a-') and starts-with(@src, 'https://www.google.com/recaptcha')]"),
			ChallengeIndicators: []string{
				`iframe[src^="https://www.google.com/recaptcha"]`,
				"form#captcha-form",
				"div#recaptcha",
			},
			Consent: []browser.Selector{
				browser.ByID("button", "W0wltc"),
				browser.ByID("button", "L2AGLb"),
			},
			SourceAttribute: "src",
			TitleAttribute:  "alt",
			SchemeMarker:    "http",
			ProxyMarker:     "encrypted",
		},
		Timeouts: TimeoutConfig{
			Navigation: 30 * time.Second,
			Challenge:  1 * time.Second,
			Consent:    2 * time.Second,
			ImagesLink: 2 * time.Second,
			Click:      3 * time.Second,
		},
		Pacing: PacingConfig{
			Enabled: true,
			Settle:  Range{Min: 1 * time.Second, Max: 3 * time.Second},
			Reveal:  Range{Min: 500 * time.Millisecond, Max: 2 * time.Second},
			Scroll:  Range{Min: 1 * time.Second, Max: 2 * time.Second},
			Gather:  Range{Min: 1 * time.Second, Max: 2 * time.Second},
		},
		Output: OutputConfig{
			HomeDirectory:  filepath.Join(".", ".cache", "scrapix"),
			URLsFile:       "urls.json",
			ScreenshotFile: "screenshot.png",
			PageFile:       "page.html",
			SessionFile:    "session.json",
		},
		Download: DownloadConfig{
			ConcurrentDownloads: 4,
			DownloadTimeout:     30 * time.Second,
			OverwriteExisting:   false,
		},
		RateLimit: RateLimitConfig{
			Strategy:          "token_bucket",
			RequestsPerMinute: 120,
			BurstSize:         10,
		},
		Retry: RetryConfig{
			Enabled:      true,
			MaxAttempts:  3,
			BaseDelay:    1 * time.Second,
			MaxDelay:     30 * time.Second,
			Multiplier:   2.0,
			JitterFactor: 0.1,
		},
		Diagnostics: DiagnosticsConfig{
			CaptureOnSuccess: true,
			CaptureTimeout:   10 * time.Second,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

func imageSelectors(classes []string) []browser.Selector {
	sels := make([]browser.Selector, 0, len(classes))
	for _, c := range classes {
		c = strings.TrimSpace(c)
		if c != "" {
			sels = append(sels, browser.ByClass("img", c))
		}
	}
	return sels
}

// LoadFromEnv loads configuration from environment variables
func (c *Config) LoadFromEnv() error {
	var errs []error

	if dir := os.Getenv("SCRAPIX_HOME_DIR"); dir != "" {
		c.Output.HomeDirectory = dir
	}
	if text := os.Getenv("SCRAPIX_IMAGES_LINK_TEXT"); text != "" {
		c.Search.ImagesLinkText = text
	}
	if class := os.Getenv("SCRAPIX_THUMBNAIL_CLASS"); class != "" {
		c.Search.Thumbnail = browser.ByClass(c.Search.Thumbnail.Tag, class)
	}
	if classes := os.Getenv("SCRAPIX_IMAGE_CLASSES"); classes != "" {
		c.Search.Images = imageSelectors(strings.Split(classes, ","))
	}
	if searchURL := os.Getenv("SCRAPIX_SEARCH_URL"); searchURL != "" {
		c.Search.SearchURL = searchURL
	}
	if ua := os.Getenv("SCRAPIX_USER_AGENT"); ua != "" {
		c.Browser.UserAgents = []string{ua}
	}
	if headless := os.Getenv("SCRAPIX_HEADLESS"); headless != "" {
		v, err := strconv.ParseBool(headless)
		if err != nil {
			errs = append(errs, fmt.Errorf("SCRAPIX_HEADLESS: %w", err))
		} else {
			c.Browser.Headless = v
		}
	}
	if concurrent := os.Getenv("SCRAPIX_CONCURRENT_DOWNLOADS"); concurrent != "" {
		v, err := strconv.Atoi(concurrent)
		if err != nil {
			errs = append(errs, fmt.Errorf("SCRAPIX_CONCURRENT_DOWNLOADS: %w", err))
		} else if v > 0 {
			c.Download.ConcurrentDownloads = v
		}
	}
	if rpm := os.Getenv("SCRAPIX_REQUESTS_PER_MINUTE"); rpm != "" {
		v, err := strconv.Atoi(rpm)
		if err != nil {
			errs = append(errs, fmt.Errorf("SCRAPIX_REQUESTS_PER_MINUTE: %w", err))
		} else if v > 0 {
			c.RateLimit.RequestsPerMinute = v
		}
	}
	if pacing := os.Getenv("SCRAPIX_PACING"); pacing != "" {
		c.Pacing.Enabled = strings.ToLower(pacing) != "off" && strings.ToLower(pacing) != "false"
	}
	if logLevel := os.Getenv("SCRAPIX_LOG_LEVEL"); logLevel != "" {
		c.Logging.Level = logLevel
	}
	if logFile := os.Getenv("SCRAPIX_LOG_FILE"); logFile != "" {
		c.Logging.File = logFile
	}

	return errors.Join(errs...)
}

// LoadFromFile loads configuration from a YAML file
func (c *Config) LoadFromFile(path string) error {
	if path == "" {
		path = c.findConfigFile()
		if path == "" {
			return nil // No config file found, not an error
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	return nil
}

// findConfigFile searches for config file in standard locations
func (c *Config) findConfigFile() string {
	home := os.Getenv("HOME")
	locations := []string{
		".scrapix.yaml",
		".scrapix.yml",
		filepath.Join(home, ".config", "scrapix", "config.yaml"),
		filepath.Join(home, ".config", "scrapix", "config.yml"),
	}

	for _, loc := range locations {
		if _, err := os.Stat(loc); err == nil {
			return loc
		}
	}

	return ""
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	var errs []error

	if c.Search.SearchURL == "" {
		errs = append(errs, errors.New("search URL is required"))
	}
	if c.Search.ImagesLinkText == "" {
		errs = append(errs, errors.New("images link text is required"))
	}
	if err := c.Search.Thumbnail.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("thumbnail: %w", err))
	}
	if len(c.Search.Images) == 0 {
		errs = append(errs, errors.New("at least one image selector is required"))
	}
	for i, sel := range c.Search.Images {
		if err := sel.Validate(); err != nil {
			errs = append(errs, fmt.Errorf("images[%d]: %w", i, err))
		}
	}
	if err := c.Search.Challenge.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("challenge: %w", err))
	}
	for i, sel := range c.Search.Consent {
		if err := sel.Validate(); err != nil {
			errs = append(errs, fmt.Errorf("consent[%d]: %w", i, err))
		}
	}
	if c.Search.SourceAttribute == "" || c.Search.TitleAttribute == "" {
		errs = append(errs, errors.New("source and title attributes are required"))
	}

	for name, d := range map[string]time.Duration{
		"navigation":  c.Timeouts.Navigation,
		"challenge":   c.Timeouts.Challenge,
		"consent":     c.Timeouts.Consent,
		"images_link": c.Timeouts.ImagesLink,
		"click":       c.Timeouts.Click,
	} {
		if d <= 0 {
			errs = append(errs, fmt.Errorf("%s timeout must be positive", name))
		}
	}

	for name, r := range map[string]Range{
		"settle": c.Pacing.Settle,
		"reveal": c.Pacing.Reveal,
		"scroll": c.Pacing.Scroll,
		"gather": c.Pacing.Gather,
	} {
		if r.Min < 0 || r.Max < r.Min {
			errs = append(errs, fmt.Errorf("%s pacing range is invalid", name))
		}
	}

	if c.Output.HomeDirectory == "" {
		errs = append(errs, errors.New("home directory is required"))
	}
	if c.Output.URLsFile == "" {
		errs = append(errs, errors.New("urls file name is required"))
	}

	if c.Download.ConcurrentDownloads <= 0 {
		errs = append(errs, errors.New("concurrent downloads must be positive"))
	}
	if c.Download.ConcurrentDownloads > 32 {
		errs = append(errs, errors.New("concurrent downloads should not exceed 32"))
	}
	if c.Download.DownloadTimeout <= 0 {
		errs = append(errs, errors.New("download timeout must be positive"))
	}

	if c.RateLimit.RequestsPerMinute <= 0 {
		errs = append(errs, errors.New("requests per minute must be positive"))
	}
	if c.RateLimit.BurstSize <= 0 {
		errs = append(errs, errors.New("burst size must be positive"))
	}
	switch c.RateLimit.Strategy {
	case "token_bucket", "sliding_window":
	default:
		errs = append(errs, fmt.Errorf("unknown rate limit strategy %q", c.RateLimit.Strategy))
	}

	if c.Retry.Enabled && c.Retry.MaxAttempts <= 0 {
		errs = append(errs, errors.New("max retry attempts must be positive"))
	}

	validLogLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true, "disabled": true,
	}
	if !validLogLevels[strings.ToLower(c.Logging.Level)] {
		errs = append(errs, errors.New("invalid log level"))
	}

	return errors.Join(errs...)
}

// Save saves the configuration to a file
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// MergeCommandLineFlags merges command line flags into the configuration.
// Only flags the user actually set should be present in the map.
func (c *Config) MergeCommandLineFlags(flags map[string]interface{}) {
	if headless, ok := flags["headless"].(bool); ok {
		c.Browser.Headless = headless
	}
	if home, ok := flags["home"].(string); ok && home != "" {
		c.Output.HomeDirectory = home
	}
	if concurrent, ok := flags["concurrent"].(int); ok && concurrent > 0 {
		c.Download.ConcurrentDownloads = concurrent
	}
	if pacing, ok := flags["pacing"].(bool); ok {
		c.Pacing.Enabled = pacing
	}
	if logLevel, ok := flags["log-level"].(string); ok && logLevel != "" {
		c.Logging.Level = logLevel
	}
	if noColor, ok := flags["no-color"].(bool); ok && noColor {
		c.Logging.NoColor = true
	}
}

// Load loads configuration from all sources with proper precedence
// Precedence order: Command line flags > Environment variables > .env file > Config file > Defaults
func Load(configPath string, flags map[string]interface{}) (*Config, error) {
	// Missing .env files are fine.
	_ = godotenv.Load(".env")
	_ = godotenv.Load(filepath.Join(os.Getenv("HOME"), ".scrapix.env"))

	config := DefaultConfig()

	if err := config.LoadFromFile(configPath); err != nil {
		return nil, fmt.Errorf("failed to load config file: %w", err)
	}

	if err := config.LoadFromEnv(); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	config.MergeCommandLineFlags(flags)

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return config, nil
}
