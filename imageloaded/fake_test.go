package imageloaded

import (
	"context"
	"sync"
	"testing"
	"time"
)

// fakeHost is an in-memory platform: tests mutate elements and fire decode
// results by hand.
type fakeHost struct {
	mu         sync.Mutex
	subs       []*fakeSub
	observed   int
	subscribed chan *fakeSub
	created    chan *fakeElement
}

func newFakeHost() *fakeHost {
	return &fakeHost{
		subscribed: make(chan *fakeSub, 16),
		created:    make(chan *fakeElement, 16),
	}
}

func (h *fakeHost) ObserveAttribute(_ context.Context, el Element, name string) (Subscription, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	s := &fakeSub{host: h, el: el, name: name, ch: make(chan Notification, 16)}
	h.subs = append(h.subs, s)
	h.observed++
	h.subscribed <- s
	return s, nil
}

func (h *fakeHost) ComputedStyle(_ context.Context, el Element, property string) (string, error) {
	fe := el.(*fakeElement)
	fe.mu.Lock()
	defer fe.mu.Unlock()
	return fe.computed[property], nil
}

func (h *fakeHost) NewImage(context.Context) (Image, error) {
	img := newFakeElement(h, "IMG")
	h.created <- img
	return img, nil
}

func (h *fakeHost) observeCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.observed
}

func (h *fakeHost) notify(el Element, name string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, s := range h.subs {
		if s.el != el || s.name != name || s.stopped {
			continue
		}
		select {
		case s.ch <- Notification{Target: el, Name: name}:
		default:
		}
	}
}

type fakeSub struct {
	host    *fakeHost
	el      Element
	name    string
	ch      chan Notification
	stopped bool
	stops   int
}

func (s *fakeSub) Notifications() <-chan Notification { return s.ch }

func (s *fakeSub) Stop() error {
	s.host.mu.Lock()
	defer s.host.mu.Unlock()
	s.stops++
	if !s.stopped {
		s.stopped = true
		close(s.ch)
	}
	return nil
}

func (s *fakeSub) isStopped() bool {
	s.host.mu.Lock()
	defer s.host.mu.Unlock()
	return s.stopped
}

// closeStream simulates the page going away.
func (s *fakeSub) closeStream() {
	s.host.mu.Lock()
	defer s.host.mu.Unlock()
	if !s.stopped {
		s.stopped = true
		close(s.ch)
	}
}

type fakeElement struct {
	host *fakeHost

	mu       sync.Mutex
	tag      string
	attrs    map[string]string
	reads    map[string][]string // scripted values returned before attrs
	inline   map[string]string
	computed map[string]string
	state    ImageState
	loads    []chan error
	loadCtxs []context.Context
	readErr  error

	armed   chan struct{}
	sourced chan string
}

func newFakeElement(h *fakeHost, tag string) *fakeElement {
	return &fakeElement{
		host:     h,
		tag:      tag,
		attrs:    map[string]string{},
		reads:    map[string][]string{},
		inline:   map[string]string{},
		computed: map[string]string{},
		armed:    make(chan struct{}, 16),
		sourced:  make(chan string, 16),
	}
}

func (e *fakeElement) TagName() string { return e.tag }

func (e *fakeElement) Attribute(_ context.Context, name string) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.readErr != nil {
		return "", e.readErr
	}
	if q := e.reads[name]; len(q) > 0 {
		e.reads[name] = q[1:]
		return q[0], nil
	}
	return e.attrs[name], nil
}

func (e *fakeElement) InlineStyle(_ context.Context, property string) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.inline[property], nil
}

func (e *fakeElement) State(context.Context) (ImageState, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	st := e.state
	st.Src = e.attrs["src"]
	return st, nil
}

func (e *fakeElement) OnLoad(ctx context.Context) (<-chan error, error) {
	e.mu.Lock()
	ch := make(chan error, 1)
	e.loads = append(e.loads, ch)
	e.loadCtxs = append(e.loadCtxs, ctx)
	e.mu.Unlock()
	e.armed <- struct{}{}
	return ch, nil
}

func (e *fakeElement) SetSource(_ context.Context, src string) error {
	e.mu.Lock()
	e.attrs["src"] = src
	e.mu.Unlock()
	e.sourced <- src
	return nil
}

func (e *fakeElement) setAttr(name, value string) {
	e.mu.Lock()
	e.attrs[name] = value
	e.mu.Unlock()
	e.host.notify(e, name)
}

func (e *fakeElement) setBackground(value string) {
	e.mu.Lock()
	e.inline[backgroundImage] = value
	e.computed[backgroundImage] = value
	e.mu.Unlock()
	e.host.notify(e, "style")
}

func (e *fakeElement) setState(st ImageState) {
	e.mu.Lock()
	e.state = st
	e.mu.Unlock()
}

// fire delivers a decode result to every armed listener.
func (e *fakeElement) fire(err error) {
	e.mu.Lock()
	loads := e.loads
	e.loads = nil
	e.mu.Unlock()
	for _, ch := range loads {
		ch <- err
		close(ch)
	}
}

const waitTimeout = 2 * time.Second

func waitSub(t *testing.T, h *fakeHost) *fakeSub {
	t.Helper()
	select {
	case s := <-h.subscribed:
		return s
	case <-time.After(waitTimeout):
		t.Fatal("no subscription")
		return nil
	}
}

func waitStopped(t *testing.T, s *fakeSub) {
	t.Helper()
	deadline := time.Now().Add(waitTimeout)
	for !s.isStopped() {
		if time.Now().After(deadline) {
			t.Fatal("subscription never stopped")
		}
		time.Sleep(time.Millisecond)
	}
}

func waitArmed(t *testing.T, e *fakeElement) {
	t.Helper()
	select {
	case <-e.armed:
	case <-time.After(waitTimeout):
		t.Fatal("load listeners never armed")
	}
}

// armedContexts returns the contexts the load listeners were armed with.
func (e *fakeElement) armedContexts() []context.Context {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]context.Context(nil), e.loadCtxs...)
}

// waitReleased fails unless every listener context of e ends.
func waitReleased(t *testing.T, e *fakeElement) {
	t.Helper()
	ctxs := e.armedContexts()
	if len(ctxs) == 0 {
		t.Fatal("load listeners never armed")
	}
	for i, ctx := range ctxs {
		select {
		case <-ctx.Done():
		case <-time.After(waitTimeout):
			t.Fatalf("listener %d still armed after the detection settled", i)
		}
	}
}

func waitCreated(t *testing.T, h *fakeHost) *fakeElement {
	t.Helper()
	select {
	case img := <-h.created:
		return img
	case <-time.After(waitTimeout):
		t.Fatal("no probe image created")
		return nil
	}
}

func waitSourced(t *testing.T, e *fakeElement) string {
	t.Helper()
	select {
	case src := <-e.sourced:
		return src
	case <-time.After(waitTimeout):
		t.Fatal("probe source never assigned")
		return ""
	}
}

// assertPending fails if p settles within a short window.
func assertPending(t *testing.T, p *Detection) {
	t.Helper()
	select {
	case <-p.Done():
		el, err := p.Wait(context.Background())
		t.Fatalf("settled early: el=%v err=%v", el, err)
	case <-time.After(50 * time.Millisecond):
	}
}

func waitResult(t *testing.T, p *Detection) (Element, error) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), waitTimeout)
	defer cancel()
	return p.Wait(ctx)
}
