package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/pevans/substack2epub/archive"
	"github.com/pevans/substack2epub/auth"
	"github.com/pevans/substack2epub/scraper"
	"gopkg.in/yaml.v3"
)

// Environment variables read by Load.
const (
	EnvEmail      = "SUBSCRIBER_EMAIL"
	EnvPassword   = "SUBSCRIBER_PASSWORD"
	EnvConfigPath = "SUBSTACK2EPUB_CONFIG"
)

// CrawlConfig controls discovery and fetching.
type CrawlConfig struct {
	Limit       int           `yaml:"limit"` // -1 for every post
	TitleFilter string        `yaml:"title_filter"`
	Paywall     string        `yaml:"paywall"` // include, exclude or only
	MaxScrolls  int           `yaml:"max_scrolls"`
	ScrollDelay time.Duration `yaml:"scroll_delay"`
	WaitTimeout time.Duration `yaml:"wait_timeout"`
	RetryLimit  int           `yaml:"retry_limit"`
	RetryDelay  time.Duration `yaml:"retry_delay"`
}

// BookConfig controls the generated e-book.
type BookConfig struct {
	Language     string `yaml:"language"` // Empty: the feed's language, else "en"
	OutputDir    string `yaml:"output_dir"`
	Publisher    string `yaml:"publisher"`
	Description  string `yaml:"description"`
	FeedMetadata bool   `yaml:"feed_metadata"` // Read description and author from the RSS feed
}

// BrowserConfig controls the Chrome session.
type BrowserConfig struct {
	Headless      bool          `yaml:"headless"`
	ExecPath      string        `yaml:"exec_path"`
	UserAgent     string        `yaml:"user_agent"`
	ActionTimeout time.Duration `yaml:"action_timeout"`
}

// FileConfig represents the structure of ~/.substack2epub/config.yaml.
type FileConfig struct {
	Crawl     CrawlConfig       `yaml:"crawl"`
	Book      BookConfig        `yaml:"book"`
	Browser   BrowserConfig     `yaml:"browser"`
	Selectors scraper.Selectors `yaml:"selectors"`
}

// Config is the resolved configuration of one run.
type Config struct {
	FileConfig
	Credentials auth.Credentials
}

// Default returns the configuration used when no file or environment
// variable says otherwise.
func Default() FileConfig {
	return FileConfig{
		Crawl: CrawlConfig{
			Limit:       -1,
			Paywall:     string(archive.PaywallInclude),
			MaxScrolls:  1000,
			ScrollDelay: 500 * time.Millisecond,
			WaitTimeout: 30 * time.Second,
			RetryLimit:  5,
			RetryDelay:  1 * time.Second,
		},
		Book: BookConfig{
			OutputDir:    ".",
			Publisher:    "substack2epub",
			Description:  "generated by substack2epub",
			FeedMetadata: true,
		},
		Browser: BrowserConfig{
			Headless:      true,
			ActionTimeout: 60 * time.Second,
		},
		Selectors: scraper.DefaultSelectors(),
	}
}

// ConfigFilePath returns the config file location: $SUBSTACK2EPUB_CONFIG
// when set, ~/.substack2epub/config.yaml otherwise.
func ConfigFilePath() (string, error) {
	if path := os.Getenv(EnvConfigPath); path != "" {
		return path, nil
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user home directory: %w", err)
	}

	return filepath.Join(homeDir, ".substack2epub", "config.yaml"), nil
}

// LoadConfigFile reads path over the defaults. Keys missing from the file
// keep their default values. A missing file is not an error: the defaults
// are returned with loaded set to false.
func LoadConfigFile(path string) (cfg FileConfig, loaded bool, err error) {
	cfg = Default()

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return cfg, false, nil
	}
	if err != nil {
		return cfg, false, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Default(), false, fmt.Errorf("failed to parse config file: %w", err)
	}

	// Selectors explicitly set to "" fall back to the defaults too.
	cfg.Selectors = cfg.Selectors.Merge(scraper.DefaultSelectors())

	return cfg, true, nil
}

// Load resolves the configuration with precedence:
// 1. Environment variables (highest priority)
// 2. Configuration file
// 3. Default values (lowest priority)
func Load() (*Config, error) {
	path, err := ConfigFilePath()
	if err != nil {
		return nil, err
	}

	fileCfg, _, err := LoadConfigFile(path)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	cfg := &Config{
		FileConfig: fileCfg,
		Credentials: auth.Credentials{
			Email:    os.Getenv(EnvEmail),
			Password: os.Getenv(EnvPassword),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks values that would otherwise only fail mid-crawl.
func (c *Config) Validate() error {
	if _, err := archive.CompileTitleFilter(c.Crawl.TitleFilter); err != nil {
		return err
	}
	if _, err := archive.ParsePaywallPolicy(c.Crawl.Paywall); err != nil {
		return err
	}
	if c.Crawl.RetryLimit < 1 {
		return fmt.Errorf("retry_limit must be at least 1, got %d", c.Crawl.RetryLimit)
	}
	if c.Crawl.WaitTimeout <= 0 {
		return fmt.Errorf("wait_timeout must be positive, got %v", c.Crawl.WaitTimeout)
	}
	return nil
}
