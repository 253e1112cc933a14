// Package rodhost implements the imageloaded platform interfaces on a live
// go-rod page.
//
// Attribute mutations are observed by a MutationObserver injected per
// watch. Each mutation batch calls a runtime binding; the Host relays the
// Runtime.bindingCalled events to the matching subscription. Decode
// completion is awaited on a promise stored on the element.
package rodhost

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
	"github.com/google/uuid"

	"github.com/hazyhaar/imgprobe/imageloaded"
)

const bindingName = "__imageloaded_binding"

// notificationBuffer bounds undelivered notifications per subscription.
// Overflow is dropped: the watcher reads the live value on each delivery,
// so a full buffer already guarantees a later read.
const notificationBuffer = 16

// Host serves one page. Create it after navigation; Close it before the
// page is closed.
type Host struct {
	page   *rod.Page
	logger *slog.Logger
	ctx    context.Context
	cancel context.CancelFunc

	mu   sync.Mutex
	subs map[string]*subscription
}

var _ imageloaded.Host = (*Host)(nil)

// New registers the notification binding on page and starts relaying.
func New(ctx context.Context, page *rod.Page, logger *slog.Logger) (*Host, error) {
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(ctx)

	h := &Host{
		page:   page,
		logger: logger,
		ctx:    ctx,
		cancel: cancel,
		subs:   make(map[string]*subscription),
	}

	if err := (proto.RuntimeAddBinding{Name: bindingName}).Call(page); err != nil {
		cancel()
		return nil, fmt.Errorf("rodhost: add binding: %w", err)
	}

	// Subscribe now so no binding call is missed, consume in the background.
	wait := page.Context(ctx).EachEvent(h.onBinding)
	go wait()

	return h, nil
}

// Close stops every live subscription and the relay.
func (h *Host) Close() {
	h.mu.Lock()
	subs := make([]*subscription, 0, len(h.subs))
	for _, s := range h.subs {
		subs = append(subs, s)
	}
	h.mu.Unlock()

	for _, s := range subs {
		s.Stop()
	}
	h.cancel()
}

func (h *Host) onBinding(e *proto.RuntimeBindingCalled) {
	if e.Name != bindingName {
		return
	}
	var msg struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	}
	if err := json.Unmarshal([]byte(e.Payload), &msg); err != nil {
		h.logger.Warn("rodhost: parse binding payload", "error", err)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	s, ok := h.subs[msg.ID]
	if !ok {
		return
	}
	select {
	case s.ch <- imageloaded.Notification{Target: s.target, Name: msg.Name}:
	default:
		h.logger.Debug("rodhost: notification coalesced", "id", msg.ID, "name", msg.Name)
	}
}

// Query waits for the first element matching selector and wraps it. It
// blocks until the element exists or ctx ends.
func (h *Host) Query(ctx context.Context, selector string) (imageloaded.Element, error) {
	el, err := h.page.Context(ctx).Element(selector)
	if err != nil {
		return nil, fmt.Errorf("rodhost: query %q: %w", selector, err)
	}
	return h.Wrap(ctx, el)
}

// Wrap adapts a rod element. IMG elements come back as *Image.
func (h *Host) Wrap(ctx context.Context, el *rod.Element) (imageloaded.Element, error) {
	res, err := el.Context(ctx).Eval(`() => this.tagName || ''`)
	if err != nil {
		return nil, fmt.Errorf("rodhost: read tag name: %w", err)
	}
	e := &Element{host: h, el: el, tag: res.Value.Str()}
	if e.tag == "IMG" {
		return &Image{Element: e}, nil
	}
	return e, nil
}

// ObserveAttribute installs a MutationObserver filtered to name on el.
func (h *Host) ObserveAttribute(ctx context.Context, el imageloaded.Element, name string) (imageloaded.Subscription, error) {
	rel, err := unwrap(el)
	if err != nil {
		return nil, err
	}

	s := &subscription{
		host:   h,
		id:     uuid.NewString(),
		target: el,
		ch:     make(chan imageloaded.Notification, notificationBuffer),
	}

	// Registered before the observer exists so its first call is routed.
	h.mu.Lock()
	h.subs[s.id] = s
	h.mu.Unlock()

	if _, err := rel.Context(ctx).Eval(observeJS, s.id, name, bindingName); err != nil {
		s.forget()
		return nil, fmt.Errorf("rodhost: observe %s: %w", name, err)
	}
	return s, nil
}

// ComputedStyle reads getComputedStyle(el).getPropertyValue(property).
func (h *Host) ComputedStyle(ctx context.Context, el imageloaded.Element, property string) (string, error) {
	rel, err := unwrap(el)
	if err != nil {
		return "", err
	}
	res, err := rel.Context(ctx).Eval(`(p) => getComputedStyle(this).getPropertyValue(p)`, property)
	if err != nil {
		return "", fmt.Errorf("rodhost: computed style %s: %w", property, err)
	}
	return res.Value.Str(), nil
}

// NewImage creates a detached <img> owned by the caller.
func (h *Host) NewImage(ctx context.Context) (imageloaded.Image, error) {
	el, err := h.page.Context(ctx).ElementByJS(rod.Eval(`() => document.createElement('img')`))
	if err != nil {
		return nil, fmt.Errorf("rodhost: create image: %w", err)
	}
	return &Image{Element: &Element{host: h, el: el, tag: "IMG"}}, nil
}

const observeJS = `(id, name, binding) => {
	const reg = window.__imageloadedObservers || (window.__imageloadedObservers = {});
	const mo = new MutationObserver(() => {
		window[binding](JSON.stringify({id: id, name: name}));
	});
	mo.observe(this, {attributes: true, attributeFilter: [name]});
	reg[id] = mo;
}`

const disconnectJS = `(id) => {
	const reg = window.__imageloadedObservers;
	if (reg && reg[id]) {
		reg[id].disconnect();
		delete reg[id];
	}
}`

type subscription struct {
	host   *Host
	id     string
	target imageloaded.Element
	ch     chan imageloaded.Notification
	once   sync.Once
}

func (s *subscription) Notifications() <-chan imageloaded.Notification { return s.ch }

// Stop disconnects the page-side observer and closes the channel.
func (s *subscription) Stop() error {
	var err error
	s.once.Do(func() {
		s.forget()
		if _, e := s.host.page.Context(s.host.ctx).Eval(disconnectJS, s.id); e != nil {
			err = fmt.Errorf("rodhost: disconnect observer: %w", e)
		}
	})
	return err
}

// forget unregisters the subscription and closes its channel. The relay
// holds the same lock while sending, so no send can follow the close.
func (s *subscription) forget() {
	s.host.mu.Lock()
	defer s.host.mu.Unlock()
	if _, ok := s.host.subs[s.id]; ok {
		delete(s.host.subs, s.id)
		close(s.ch)
	}
}
