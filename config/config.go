package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/yairfalse/kinos/types"
	"gopkg.in/yaml.v3"
)

// Config is the kinos runtime configuration
type Config struct {
	Region        string   `yaml:"region,omitempty"`
	TagKey        string   `yaml:"tag_key"`
	TagValues     []string `yaml:"tag_values"`
	RetentionDays int      `yaml:"retention_days"`
	SNSTopic      string   `yaml:"sns_topic,omitempty"`
	OTELEndpoint  string   `yaml:"otel_endpoint,omitempty"`

	Daemon  DaemonConfig  `yaml:"daemon,omitempty"`
	Catalog CatalogConfig `yaml:"catalog,omitempty"`
	Journal JournalConfig `yaml:"journal,omitempty"`
	Guard   GuardConfig   `yaml:"guard,omitempty"`
}

// DaemonConfig controls long-running mode
type DaemonConfig struct {
	Interval    time.Duration `yaml:"interval"`
	Schedule    string        `yaml:"schedule,omitempty"`
	MetricsAddr string        `yaml:"metrics_addr"`
}

// CatalogConfig locates the snapshot catalog
type CatalogConfig struct {
	Path string `yaml:"path"`
}

// JournalConfig locates the run journal
type JournalConfig struct {
	Dir           string `yaml:"dir"`
	RetentionDays int    `yaml:"retention_days"`
}

// GuardConfig locates optional rego hold policies
type GuardConfig struct {
	PolicyDir string `yaml:"policy_dir,omitempty"`
}

// ParseError marks a config file that could not be read as YAML. Callers
// log it and keep going with the returned defaults.
type ParseError struct {
	Err error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("config unusable, running with defaults: %v", e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// Default returns the built-in configuration. The empty region defers to
// the SDK's resolution chain (env, profile).
func Default() *Config {
	return &Config{
		TagKey:        "Snapshot",
		TagValues:     []string{"Yes"},
		RetentionDays: 7,
		Daemon: DaemonConfig{
			Interval:    24 * time.Hour,
			MetricsAddr: ":9090",
		},
		Catalog: CatalogConfig{Path: defaultPath("catalog.db")},
		Journal: JournalConfig{Dir: defaultPath("journal"), RetentionDays: 30},
	}
}

func defaultPath(name string) string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".kinos", name)
	}
	return filepath.Join(home, ".kinos", name)
}

// Load reads configuration from path. A missing file yields defaults
// silently; an unreadable or malformed one yields defaults plus a
// *ParseError. A file that parses but fails validation is an error.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path) // #nosec G304 -- path is intentional user input
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return Default(), &ParseError{Err: err}
	}

	// Unmarshal over the defaults so absent keys keep them and an
	// explicit zero wins
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return Default(), &ParseError{Err: err}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// Validate ensures config has required fields
func (c *Config) Validate() error {
	if c.TagKey == "" {
		return fmt.Errorf("tag_key is required")
	}
	if len(c.TagValues) == 0 {
		return fmt.Errorf("tag_values is required")
	}
	if c.RetentionDays < 0 {
		return fmt.Errorf("retention_days must be >= 0")
	}
	if c.Daemon.Schedule == "" && c.Daemon.Interval <= 0 {
		return fmt.Errorf("daemon interval must be positive")
	}
	return nil
}

// Filter returns the volume selection filter
func (c *Config) Filter() types.TagFilter {
	return types.TagFilter{Key: c.TagKey, Values: c.TagValues}
}
