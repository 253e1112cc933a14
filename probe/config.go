package probe

import (
	"github.com/hazyhaar/imgprobe/probe/internal/config"
)

// Config is the imgprobe configuration.
type Config = config.Config

// BrowserConfig controls Chrome lifecycle.
type BrowserConfig = config.BrowserConfig

// DetectConfig holds detection defaults.
type DetectConfig = config.DetectConfig

// APIConfig configures the HTTP API.
type APIConfig = config.APIConfig

// Target is one element to probe: the page URL, a CSS selector for the
// element, an optional source filter regexp and a deadline.
type Target = config.TargetConfig

// SinkConfig defines an output backend.
type SinkConfig = config.SinkConfig

// LoadConfigFile reads a YAML config file, applies defaults and validates.
func LoadConfigFile(path string) (*Config, error) {
	return config.LoadFile(path)
}

