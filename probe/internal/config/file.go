// Package config handles imgprobe configuration from YAML files.
package config

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level imgprobe configuration.
type Config struct {
	Browser BrowserConfig  `yaml:"browser"`
	Detect  DetectConfig   `yaml:"detect"`
	API     APIConfig      `yaml:"api"`
	Targets []TargetConfig `yaml:"targets"`
	Sinks   []SinkConfig   `yaml:"sinks"`
}

// BrowserConfig controls Chrome lifecycle.
type BrowserConfig struct {
	Remote            string        `yaml:"remote"`
	MemoryLimit       int64         `yaml:"memory_limit"`
	RecycleInterval   time.Duration `yaml:"recycle_interval"`
	ResourceBlocking  []string      `yaml:"resource_blocking"`
	Stealth           string        `yaml:"stealth"` // headless | headful
	XvfbDisplay       string        `yaml:"xvfb_display"`
	NavigationTimeout time.Duration `yaml:"navigation_timeout"`
}

// DetectConfig holds defaults shared by every target.
type DetectConfig struct {
	Timeout          time.Duration `yaml:"timeout"` // 0 = no deadline
	Concurrency      int           `yaml:"concurrency"`
	StaleStyleFilter bool          `yaml:"stale_style_filter"`
	// AllowPrivate lets the HTTP API and MCP tool probe loopback and
	// private hosts. Configured targets are trusted either way.
	AllowPrivate bool `yaml:"allow_private"`
}

// APIConfig configures the HTTP API.
type APIConfig struct {
	CORSOrigins []string `yaml:"cors_origins"`
}

// TargetConfig is one element to probe.
type TargetConfig struct {
	ID       string        `yaml:"id" json:"id"`
	URL      string        `yaml:"url" json:"url"`
	Selector string        `yaml:"selector" json:"selector"`
	Filter   string        `yaml:"filter" json:"filter,omitempty"` // regexp; empty = any source
	Timeout  time.Duration `yaml:"timeout" json:"-"`
}

// SinkConfig defines an output backend.
type SinkConfig struct {
	Type string `yaml:"type"` // stdout | webhook | sqlite
	URL  string `yaml:"url"`  // for webhook
	Path string `yaml:"path"` // for sqlite
}

// LoadFile reads and validates a YAML configuration file.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

// Parse decodes YAML, applies defaults and validates.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse: %w", err)
	}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// ApplyDefaults fills zero values.
func (c *Config) ApplyDefaults() {
	if c.Browser.MemoryLimit <= 0 {
		c.Browser.MemoryLimit = 1 << 30
	}
	if c.Browser.RecycleInterval <= 0 {
		c.Browser.RecycleInterval = 4 * time.Hour
	}
	if c.Browser.XvfbDisplay == "" {
		c.Browser.XvfbDisplay = ":99"
	}
	if c.Browser.Stealth == "" {
		c.Browser.Stealth = "headless"
	}
	if c.Browser.NavigationTimeout <= 0 {
		c.Browser.NavigationTimeout = 30 * time.Second
	}
	if c.Detect.Concurrency <= 0 {
		c.Detect.Concurrency = 4
	}
	for i := range c.Targets {
		if c.Targets[i].ID == "" {
			c.Targets[i].ID = fmt.Sprintf("target-%d", i+1)
		}
		if c.Targets[i].Timeout <= 0 {
			c.Targets[i].Timeout = c.Detect.Timeout
		}
	}
}

// Validate reports every problem found, joined.
func (c *Config) Validate() error {
	var errs []error

	switch c.Browser.Stealth {
	case "headless", "headful":
	default:
		errs = append(errs, fmt.Errorf("config: browser.stealth %q: want headless or headful", c.Browser.Stealth))
	}
	for _, r := range c.Browser.ResourceBlocking {
		if strings.EqualFold(r, "images") || strings.EqualFold(r, "image") {
			errs = append(errs, errors.New("config: browser.resource_blocking: images cannot be blocked"))
		}
	}

	seen := make(map[string]bool, len(c.Targets))
	for i, t := range c.Targets {
		if err := t.Validate(); err != nil {
			errs = append(errs, fmt.Errorf("config: targets[%d]: %w", i, err))
		}
		if seen[t.ID] {
			errs = append(errs, fmt.Errorf("config: targets[%d]: duplicate id %q", i, t.ID))
		}
		seen[t.ID] = true
	}

	for i, s := range c.Sinks {
		switch s.Type {
		case "stdout":
		case "webhook":
			if s.URL == "" {
				errs = append(errs, fmt.Errorf("config: sinks[%d]: webhook needs url", i))
			}
		case "sqlite":
			if s.Path == "" {
				errs = append(errs, fmt.Errorf("config: sinks[%d]: sqlite needs path", i))
			}
		default:
			errs = append(errs, fmt.Errorf("config: sinks[%d]: unknown type %q", i, s.Type))
		}
	}

	return errors.Join(errs...)
}

// Validate checks a single target.
func (t TargetConfig) Validate() error {
	if t.URL == "" {
		return errors.New("url is required")
	}
	if t.Selector == "" {
		return errors.New("selector is required")
	}
	if t.Filter != "" {
		if _, err := regexp.Compile(t.Filter); err != nil {
			return fmt.Errorf("filter: %w", err)
		}
	}
	return nil
}
