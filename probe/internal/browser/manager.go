// Package browser owns the Chrome process behind imgprobe: launch or
// remote connect, periodic recycling, and tab leasing.
package browser

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
)

// ErrClosed is returned once the manager has been closed.
var ErrClosed = errors.New("browser: manager is closed")

// Mode selects how Chrome is run.
type Mode int

const (
	Headless Mode = iota // headless + stealth scripts
	Headful              // real window on an Xvfb display
)

// ParseMode maps the config spelling to a Mode.
func ParseMode(s string) (Mode, error) {
	switch s {
	case "", "headless":
		return Headless, nil
	case "headful":
		return Headful, nil
	}
	return Headless, fmt.Errorf("browser: unknown mode %q", s)
}

func (m Mode) String() string {
	if m == Headful {
		return "headful"
	}
	return "headless"
}

// Config configures the Manager.
type Config struct {
	// RemoteURL is the DevTools WebSocket of an external Chrome.
	// Empty launches a local one.
	RemoteURL string

	MemoryLimit       int64         // JS heap bytes; default 1GB
	RecycleInterval   time.Duration // default 4h
	ResourceBlocking  []string      // fonts, media, stylesheets; images are never blocked
	Mode              Mode
	XvfbDisplay       string        // default ":99"
	NavigationTimeout time.Duration // default 30s

	Logger *slog.Logger
}

func (c *Config) defaults() {
	if c.MemoryLimit <= 0 {
		c.MemoryLimit = 1 << 30
	}
	if c.RecycleInterval <= 0 {
		c.RecycleInterval = 4 * time.Hour
	}
	if c.XvfbDisplay == "" {
		c.XvfbDisplay = ":99"
	}
	if c.NavigationTimeout <= 0 {
		c.NavigationTimeout = 30 * time.Second
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Manager hands out tabs on a single Chrome. A recycle that comes due
// while tabs are open is deferred until the last one closes, so an
// in-flight probe never loses its page.
type Manager struct {
	cfg Config

	mu      sync.Mutex
	browser *rod.Browser
	lnch    *launcher.Launcher
	display *display
	startAt time.Time
	active  int
	due     bool
	closed  bool
}

// NewManager creates a Manager. Call Start before opening tabs.
func NewManager(cfg Config) *Manager {
	cfg.defaults()
	return &Manager{cfg: cfg}
}

// Start launches or connects Chrome and begins monitoring it until ctx
// is done.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrClosed
	}
	if m.browser != nil {
		return nil
	}
	if err := m.launch(); err != nil {
		return err
	}
	go m.monitor(ctx)
	return nil
}

// Close shuts Chrome and Xvfb down. Open tabs become unusable.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	m.cleanup()
	return nil
}

// Active returns the number of open tabs.
func (m *Manager) Active() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.active
}

// acquire leases the current browser for one tab.
func (m *Manager) acquire() (*rod.Browser, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, ErrClosed
	}
	if m.browser == nil {
		return nil, errors.New("browser: not started")
	}
	m.active++
	return m.browser, nil
}

// release returns a lease and runs a deferred recycle when idle.
func (m *Manager) release() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.active--
	if m.active == 0 && m.due && !m.closed {
		if err := m.recycleLocked(); err != nil {
			m.cfg.Logger.Error("browser: deferred recycle failed", "error", err)
		}
	}
}

func (m *Manager) launch() error {
	log := m.cfg.Logger

	if m.cfg.Mode == Headful && m.cfg.RemoteURL == "" && m.display == nil {
		d, err := startDisplay(m.cfg.XvfbDisplay, log)
		if err != nil {
			return fmt.Errorf("browser: xvfb: %w", err)
		}
		m.display = d
	}

	wsURL := m.cfg.RemoteURL
	if wsURL != "" {
		log.Info("browser: connecting to remote", "url", wsURL)
	} else {
		l := launcher.New().
			Headless(m.cfg.Mode == Headless).
			Set("disable-blink-features", "AutomationControlled")
		if m.cfg.Mode == Headful {
			l = l.Env("DISPLAY=" + m.cfg.XvfbDisplay)
		}
		u, err := l.Launch()
		if err != nil {
			m.stopDisplay()
			return fmt.Errorf("browser: launch: %w", err)
		}
		wsURL = u
		m.lnch = l
		log.Info("browser: launched local chrome", "url", wsURL, "mode", m.cfg.Mode)
	}

	b := rod.New().ControlURL(wsURL)
	if err := b.Connect(); err != nil {
		m.cleanup()
		return fmt.Errorf("browser: connect: %w", err)
	}
	if err := b.IgnoreCertErrors(true); err != nil {
		log.Warn("browser: ignore cert errors failed", "error", err)
	}

	m.browser = b
	m.startAt = time.Now()
	m.due = false
	return nil
}

func (m *Manager) recycleLocked() error {
	m.cfg.Logger.Info("browser: recycling", "uptime", time.Since(m.startAt))
	m.cleanup()
	if err := m.launch(); err != nil {
		return fmt.Errorf("browser: relaunch: %w", err)
	}
	return nil
}

func (m *Manager) cleanup() {
	if m.browser != nil {
		m.browser.Close()
		m.browser = nil
	}
	if m.lnch != nil {
		m.lnch.Cleanup()
		m.lnch = nil
	}
	m.stopDisplay()
}

func (m *Manager) stopDisplay() {
	if m.display == nil {
		return
	}
	if err := m.display.stop(); err != nil {
		m.cfg.Logger.Debug("browser: xvfb exit", "error", err)
	}
	m.display = nil
	m.cfg.Logger.Info("browser: xvfb stopped")
}

func (m *Manager) monitor(ctx context.Context) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		m.mu.Lock()
		if m.closed {
			m.mu.Unlock()
			return
		}
		if !m.due {
			m.due = m.overdueLocked()
		}
		if m.due && m.active == 0 {
			if err := m.recycleLocked(); err != nil {
				m.cfg.Logger.Error("browser: recycle failed", "error", err)
			}
		} else if m.due {
			m.cfg.Logger.Debug("browser: recycle deferred", "active_tabs", m.active)
		}
		m.mu.Unlock()
	}
}

func (m *Manager) overdueLocked() bool {
	if m.browser == nil {
		return false
	}
	if time.Since(m.startAt) > m.cfg.RecycleInterval {
		m.cfg.Logger.Info("browser: recycle interval reached")
		return true
	}
	used, err := heapUsage(m.browser)
	if err != nil {
		m.cfg.Logger.Debug("browser: heap check failed", "error", err)
		return false
	}
	if used > m.cfg.MemoryLimit {
		m.cfg.Logger.Info("browser: memory limit exceeded", "used", used, "limit", m.cfg.MemoryLimit)
		return true
	}
	return false
}

// heapUsage sums the JS heap of every open page.
func heapUsage(b *rod.Browser) (int64, error) {
	pages, err := b.Pages()
	if err != nil {
		return 0, err
	}
	var total int64
	for _, p := range pages {
		res, err := proto.RuntimeGetHeapUsage{}.Call(p)
		if err != nil {
			continue
		}
		total += int64(res.UsedSize)
	}
	return total, nil
}
