// Package probe runs image-load detection against live pages. A Prober
// owns one Chrome, opens a tab per target, waits for the selected
// element's image with imageloaded, and emits an outcome.Outcome to its
// sinks.
package probe

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/hazyhaar/imgprobe/imageloaded"
	"github.com/hazyhaar/imgprobe/outcome"
	"github.com/hazyhaar/imgprobe/probe/internal/browser"
	"github.com/hazyhaar/imgprobe/probe/internal/sink"
	"github.com/hazyhaar/imgprobe/probe/internal/urlguard"
	"github.com/hazyhaar/imgprobe/rodhost"
)

var (
	// ErrRejected marks a page URL refused by the URL guard.
	ErrRejected = errors.New("probe: page URL rejected")

	// errInvalidTarget marks a target rejected before any browser work.
	errInvalidTarget = errors.New("probe: invalid target")
)

// detectFunc resolves one target. It reports which image source was
// probed and its URL even when err is non-nil, when known.
type detectFunc func(ctx context.Context, t Target, filter imageloaded.Matcher) (outcome.Kind, string, error)

// Prober is the top-level orchestrator.
type Prober struct {
	cfg    *Config
	mgr    *browser.Manager
	sinkR  *sink.Router
	guard  *urlguard.Guard
	logger *slog.Logger
	detect detectFunc
}

// New creates a Prober. Call Start before Probe.
func New(cfg *Config, logger *slog.Logger, sinks ...Sink) (*Prober, error) {
	if logger == nil {
		logger = slog.Default()
	}
	mode, err := browser.ParseMode(cfg.Browser.Stealth)
	if err != nil {
		return nil, fmt.Errorf("probe: %w", err)
	}

	p := &Prober{
		cfg: cfg,
		mgr: browser.NewManager(browser.Config{
			RemoteURL:         cfg.Browser.Remote,
			MemoryLimit:       cfg.Browser.MemoryLimit,
			RecycleInterval:   cfg.Browser.RecycleInterval,
			ResourceBlocking:  cfg.Browser.ResourceBlocking,
			Mode:              mode,
			XvfbDisplay:       cfg.Browser.XvfbDisplay,
			NavigationTimeout: cfg.Browser.NavigationTimeout,
			Logger:            logger,
		}),
		sinkR:  sink.NewRouter(logger, sinks...),
		logger: logger,
	}
	if cfg.Detect.AllowPrivate {
		p.guard = urlguard.New(urlguard.AllowPrivate())
	} else {
		p.guard = urlguard.New()
	}
	p.detect = p.detectInBrowser
	return p, nil
}

// Start launches (or connects to) Chrome.
func (p *Prober) Start(ctx context.Context) error {
	if err := p.mgr.Start(ctx); err != nil {
		return fmt.Errorf("probe: start browser: %w", err)
	}
	return nil
}

// Stop closes the sinks and the browser.
func (p *Prober) Stop() error {
	sinkErr := p.sinkR.Close()
	if err := p.mgr.Close(); err != nil {
		return err
	}
	return sinkErr
}

// ActiveTabs returns the number of probes holding a browser tab.
func (p *Prober) ActiveTabs() int { return p.mgr.Active() }

// Probe detects the image of one target and emits the outcome to every
// sink. The returned error is a sink failure only: detection failures
// are reported in the outcome's Status and Error.
func (p *Prober) Probe(ctx context.Context, t Target) (outcome.Outcome, error) {
	start := time.Now()
	o := outcome.Outcome{
		ID:        outcome.NewID(),
		TargetID:  t.ID,
		PageURL:   t.URL,
		Selector:  t.Selector,
		Filter:    t.Filter,
		StartedAt: start.UnixMilli(),
	}

	kind, src, err := p.resolve(ctx, t)
	o.Kind, o.Source = kind, src
	o.DurationMs = time.Since(start).Milliseconds()
	o.Status = statusOf(err)
	if err != nil {
		o.Error = err.Error()
	}

	log := p.logger.With("target", t.ID, "url", t.URL, "status", o.Status, "duration_ms", o.DurationMs)
	if o.OK() {
		log.Info("probe: image loaded", "kind", o.Kind, "source", o.Source)
	} else {
		log.Warn("probe: image not loaded", "error", err)
	}

	if err := p.sinkR.Send(ctx, o); err != nil {
		return o, fmt.Errorf("probe: emit %s: %w", o.ID, err)
	}
	return o, nil
}

// ProbeGuarded is Probe for targets from untrusted callers. The page URL
// must pass the URL guard before anything runs, and the tab then refuses
// any document, redirect hop included, that the guard rejects. A URL
// refused up front returns an error matching ErrRejected and no outcome.
func (p *Prober) ProbeGuarded(ctx context.Context, t Target) (outcome.Outcome, error) {
	if err := p.guard.Check(ctx, t.URL); err != nil {
		return outcome.Outcome{}, fmt.Errorf("%w: %w", ErrRejected, err)
	}
	return p.Probe(context.WithValue(ctx, guardedKey{}, true), t)
}

type guardedKey struct{}

func guarded(ctx context.Context) bool {
	v, _ := ctx.Value(guardedKey{}).(bool)
	return v
}

func (p *Prober) resolve(ctx context.Context, t Target) (outcome.Kind, string, error) {
	if err := t.Validate(); err != nil {
		return "", "", fmt.Errorf("%w: %w", errInvalidTarget, err)
	}

	var filter imageloaded.Matcher
	if t.Filter != "" {
		re, err := regexp.Compile(t.Filter)
		if err != nil {
			return "", "", fmt.Errorf("%w: %w", imageloaded.ErrInvalidFilter, err)
		}
		filter = re
	}

	timeout := t.Timeout
	if timeout <= 0 {
		timeout = p.cfg.Detect.Timeout
	}
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	return p.detect(ctx, t, filter)
}

// RunAll probes every configured target, at most Detect.Concurrency at
// a time. Outcomes keep the order of the configured targets. The error
// is the first sink failure, if any.
func (p *Prober) RunAll(ctx context.Context) ([]outcome.Outcome, error) {
	out := make([]outcome.Outcome, len(p.cfg.Targets))

	var g errgroup.Group
	g.SetLimit(max(p.cfg.Detect.Concurrency, 1))
	for i, t := range p.cfg.Targets {
		g.Go(func() error {
			o, err := p.Probe(ctx, t)
			out[i] = o
			return err
		})
	}
	return out, g.Wait()
}

func (p *Prober) detectInBrowser(ctx context.Context, t Target, filter imageloaded.Matcher) (outcome.Kind, string, error) {
	var tabOpts []browser.TabOption
	if guarded(ctx) {
		tabOpts = append(tabOpts, browser.WithGuard(p.guard))
	}
	tab, err := p.mgr.OpenTab(ctx, t.URL, tabOpts...)
	if err != nil {
		return "", "", err
	}
	defer tab.Close()

	host, err := rodhost.New(ctx, tab.Page, p.logger)
	if err != nil {
		return "", "", err
	}
	defer host.Close()

	el, err := host.Query(ctx, t.Selector)
	if err != nil {
		return "", "", err
	}

	kind := outcome.KindBackground
	if _, ok := el.(imageloaded.Image); ok {
		kind = outcome.KindImage
	}

	opts := []imageloaded.Option{imageloaded.WithLogger(p.logger)}
	if p.cfg.Detect.StaleStyleFilter {
		opts = append(opts, imageloaded.WithStaleStyleFilter())
	}
	d, err := imageloaded.New(host, opts...).Start(ctx, el, filter)
	if err != nil {
		return kind, "", err
	}
	_, err = d.Wait(ctx)
	if rerr := tab.Rejected(); rerr != nil {
		// nothing about a refused page is reported
		return "", "", fmt.Errorf("probe: page left the guard: %w", rerr)
	}
	return kind, sourceOf(d, err), err
}

// sourceOf reports the URL that was loaded, or the one that failed.
func sourceOf(d *imageloaded.Detection, err error) string {
	var le *imageloaded.LoadError
	var de *imageloaded.DecodeError
	switch {
	case errors.As(err, &le):
		return le.Src
	case errors.As(err, &de):
		return de.Src
	case err != nil:
		return ""
	}
	return d.Source()
}

// statusOf classifies a detection error.
func statusOf(err error) outcome.Status {
	switch {
	case err == nil:
		return outcome.StatusLoaded
	case errors.Is(err, errInvalidTarget),
		errors.Is(err, urlguard.ErrScheme),
		errors.Is(err, urlguard.ErrPrivate),
		errors.Is(err, urlguard.ErrUnresolved),
		errors.Is(err, imageloaded.ErrInvalidElement),
		errors.Is(err, imageloaded.ErrInvalidFilter):
		return outcome.StatusInvalid
	case errors.Is(err, imageloaded.ErrLoadFailed):
		return outcome.StatusFailed
	case errors.Is(err, context.DeadlineExceeded):
		return outcome.StatusTimeout
	default:
		return outcome.StatusError
	}
}
