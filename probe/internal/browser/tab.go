package browser

import (
	"context"
	"fmt"
	"sync"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
)

const domReadyJS = `() => document.readyState !== 'loading' ? true :
	new Promise(r => document.addEventListener('DOMContentLoaded', () => r(true), { once: true }))`

// Guard vets the documents a tab loads: every navigation and redirect
// hop by URL, and every document response by the address it came from.
// *urlguard.Guard satisfies it.
type Guard interface {
	Check(ctx context.Context, rawURL string) error
	CheckAddr(addr string) error
}

// TabOption configures OpenTab.
type TabOption func(*Tab)

// WithGuard makes the tab refuse documents the guard rejects.
func WithGuard(g Guard) TabOption {
	return func(t *Tab) { t.guard = g }
}

// Tab is a leased page, navigated and ready for probing.
type Tab struct {
	Page    *rod.Page
	PageURL string

	mgr       *Manager
	guard     Guard
	router    *rod.HijackRouter
	stopWatch context.CancelFunc
	once      sync.Once

	mu       sync.Mutex
	rejected error
}

// OpenTab opens a page on the managed browser and navigates to pageURL.
// The caller must Close the tab to return the lease.
func (m *Manager) OpenTab(ctx context.Context, pageURL string, opts ...TabOption) (*Tab, error) {
	b, err := m.acquire()
	if err != nil {
		return nil, err
	}
	t := &Tab{PageURL: pageURL, mgr: m}
	for _, o := range opts {
		o(t)
	}

	if m.cfg.Mode == Headless {
		t.Page, err = stealth.Page(b)
	} else {
		t.Page, err = b.Page(proto.TargetCreateTarget{})
	}
	if err != nil {
		m.release()
		return nil, fmt.Errorf("browser: create tab: %w", err)
	}

	blocked := blockSet(m.cfg.ResourceBlocking)
	if len(blocked) > 0 || t.guard != nil {
		t.router = t.interceptRequests(ctx, blocked)
	}
	if t.guard != nil {
		t.watchResponses(ctx)
	}

	navCtx, cancel := context.WithTimeout(ctx, m.cfg.NavigationTimeout)
	defer cancel()

	navErr := t.Page.Context(navCtx).Navigate(pageURL)
	if err := t.Rejected(); err != nil {
		t.Close()
		return nil, fmt.Errorf("browser: navigate %s: %w", pageURL, err)
	}
	if navErr != nil {
		t.Close()
		return nil, fmt.Errorf("browser: navigate %s: %w", pageURL, navErr)
	}
	// Only the DOM is needed; images keep loading after this returns.
	if _, err := t.Page.Context(navCtx).Eval(domReadyJS); err != nil {
		m.cfg.Logger.Warn("browser: dom ready wait failed", "url", pageURL, "error", err)
	}

	if t.guard != nil {
		if err := t.checkLanded(ctx); err != nil {
			t.Close()
			return nil, fmt.Errorf("browser: navigate %s: %w", pageURL, err)
		}
	}
	return t, nil
}

// checkLanded re-checks the URL the page ended up on.
func (t *Tab) checkLanded(ctx context.Context) error {
	if err := t.Rejected(); err != nil {
		return err
	}
	info, err := t.Page.Info()
	if err != nil {
		return fmt.Errorf("page info: %w", err)
	}
	if err := t.guard.Check(ctx, info.URL); err != nil {
		t.reject(err)
		return err
	}
	return nil
}

// Rejected returns the first guard rejection seen by the tab, if any.
// Documents can still be refused after OpenTab returns, by a script
// navigation or a frame, so callers check again when done with the page.
func (t *Tab) Rejected() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.rejected
}

func (t *Tab) reject(err error) {
	t.mu.Lock()
	if t.rejected == nil {
		t.rejected = err
	}
	t.mu.Unlock()
	t.mgr.cfg.Logger.Warn("browser: document refused", "url", t.PageURL, "error", err)
}

// watchResponses rejects documents served from an address the guard
// refuses, whatever the host resolved to when it was checked.
func (t *Tab) watchResponses(ctx context.Context) {
	wctx, cancel := context.WithCancel(ctx)
	t.stopWatch = cancel
	wait := t.Page.Context(wctx).EachEvent(func(e *proto.NetworkResponseReceived) {
		if e.Type != proto.NetworkResourceTypeDocument || e.Response == nil {
			return
		}
		if err := t.guard.CheckAddr(e.Response.RemoteIPAddress); err != nil {
			t.reject(err)
		}
	})
	go wait()
}

// Close closes the page and returns the lease. Safe to call twice.
func (t *Tab) Close() error {
	var err error
	t.once.Do(func() {
		if t.stopWatch != nil {
			t.stopWatch()
		}
		if t.router != nil {
			t.router.Stop()
		}
		if t.Page != nil {
			err = t.Page.Close()
		}
		t.mgr.release()
	})
	return err
}
