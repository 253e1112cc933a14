package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const sample = `
browser:
  remote: ws://127.0.0.1:9222/devtools/browser/abc
  resource_blocking: [fonts, media]
detect:
  timeout: 15s
  concurrency: 2
targets:
  - id: hero
    url: https://example.com
    selector: img.hero
    filter: '\.jpg$'
    timeout: 5s
  - url: https://example.com/about
    selector: .banner
sinks:
  - type: stdout
  - type: sqlite
    path: outcomes.db
`

func TestParse(t *testing.T) {
	cfg, err := Parse([]byte(sample))
	if err != nil {
		t.Fatal(err)
	}

	if cfg.Browser.Remote != "ws://127.0.0.1:9222/devtools/browser/abc" {
		t.Errorf("Remote: got %q", cfg.Browser.Remote)
	}
	if cfg.Browser.Stealth != "headless" {
		t.Errorf("Stealth default: got %q, want headless", cfg.Browser.Stealth)
	}
	if cfg.Browser.RecycleInterval != 4*time.Hour {
		t.Errorf("RecycleInterval default: got %v", cfg.Browser.RecycleInterval)
	}
	if cfg.Detect.Concurrency != 2 {
		t.Errorf("Concurrency: got %d, want 2", cfg.Detect.Concurrency)
	}
	if len(cfg.Targets) != 2 {
		t.Fatalf("Targets: got %d, want 2", len(cfg.Targets))
	}
	if cfg.Targets[0].Timeout != 5*time.Second {
		t.Errorf("Targets[0].Timeout: got %v, want 5s", cfg.Targets[0].Timeout)
	}
	if cfg.Targets[1].Timeout != 15*time.Second {
		t.Errorf("Targets[1].Timeout: got %v, want inherited 15s", cfg.Targets[1].Timeout)
	}
	if cfg.Targets[1].ID != "target-2" {
		t.Errorf("Targets[1].ID: got %q, want target-2", cfg.Targets[1].ID)
	}
	if cfg.Targets[0].Filter != `\.jpg$` {
		t.Errorf("Filter: got %q", cfg.Targets[0].Filter)
	}
}

func TestParse_DetectFlags(t *testing.T) {
	cfg, err := Parse([]byte(`
detect:
  stale_style_filter: true
  allow_private: true
api:
  cors_origins: [https://dash.example.com]
`))
	if err != nil {
		t.Fatal(err)
	}
	if !cfg.Detect.AllowPrivate {
		t.Error("AllowPrivate: got false, want true")
	}
	if !cfg.Detect.StaleStyleFilter {
		t.Error("StaleStyleFilter: got false, want true")
	}
	if cfg.Detect.Timeout != 0 {
		t.Errorf("Timeout: got %v, want 0", cfg.Detect.Timeout)
	}
	if len(cfg.API.CORSOrigins) != 1 {
		t.Errorf("CORSOrigins: got %v", cfg.API.CORSOrigins)
	}

	def, err := Parse([]byte("detect:\n  concurrency: 1\n"))
	if err != nil {
		t.Fatal(err)
	}
	if def.Detect.AllowPrivate {
		t.Error("AllowPrivate default: got true, want false")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{"missing url", "targets:\n  - selector: img\n", "url is required"},
		{"missing selector", "targets:\n  - url: https://x\n", "selector is required"},
		{"bad filter", "targets:\n  - url: https://x\n    selector: img\n    filter: '('\n", "filter"},
		{"duplicate id", "targets:\n  - {id: a, url: https://x, selector: img}\n  - {id: a, url: https://y, selector: img}\n", "duplicate id"},
		{"blocked images", "browser:\n  resource_blocking: [images]\n", "images cannot be blocked"},
		{"bad stealth", "browser:\n  stealth: invisible\n", "browser.stealth"},
		{"webhook without url", "sinks:\n  - type: webhook\n", "webhook needs url"},
		{"sqlite without path", "sinks:\n  - type: sqlite\n", "sqlite needs path"},
		{"unknown sink", "sinks:\n  - type: nats\n", "unknown type"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error %q does not mention %q", err, tt.want)
			}
		})
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "imgprobe.yaml")
	if err := os.WriteFile(path, []byte(sample), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if len(cfg.Sinks) != 2 {
		t.Errorf("Sinks: got %d, want 2", len(cfg.Sinks))
	}

	if _, err := LoadFile(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}
