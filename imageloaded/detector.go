// Package imageloaded detects when an element's image has finished loading.
//
// Two sources are covered: the src of an <img> element, and the computed
// background-image of any other element. When the reference is missing or
// does not match the caller's filter, the detector watches the src or style
// attribute until an acceptable value appears, then waits for the browser
// to finish fetching and decoding it.
//
// The platform (attribute mutations, decode events, style computation) is
// reached only through the Host interfaces; package rodhost implements them
// on top of a go-rod page.
package imageloaded

import (
	"context"
	"fmt"
	"log/slog"
	"reflect"
	"regexp"
	"strings"
	"sync"
)

// Matcher filters candidate source URLs. *regexp.Regexp satisfies it.
type Matcher interface {
	MatchString(s string) bool
}

// DefaultFilter accepts any source.
var DefaultFilter Matcher = regexp.MustCompile(`.?`)

// Detector routes detection requests to the direct-source or the
// background-image state machine.
type Detector struct {
	host             Host
	logger           *slog.Logger
	staleStyleFilter bool
}

// Option configures a Detector.
type Option func(*Detector)

// WithLogger sets the logger used for debug traces.
func WithLogger(l *slog.Logger) Option {
	return func(d *Detector) { d.logger = l }
}

// WithStaleStyleFilter tests the filter against the background URL seen
// before the watch started instead of the newly extracted one. This is the
// historical behaviour of the background path; with it, a style change can
// only be accepted when the initial URL already matched the filter.
func WithStaleStyleFilter() Option {
	return func(d *Detector) { d.staleStyleFilter = true }
}

// New creates a Detector over the given platform facilities.
func New(host Host, opts ...Option) *Detector {
	d := &Detector{host: host}
	for _, o := range opts {
		o(d)
	}
	if d.logger == nil {
		d.logger = slog.Default()
	}
	return d
}

// Detection is a detection in flight. It settles exactly once.
type Detection struct {
	done chan struct{}
	once sync.Once
	el   Element
	src  string
	err  error
}

func (p *Detection) settle(el Element, src string, err error) {
	p.once.Do(func() {
		p.el, p.src, p.err = el, src, err
		close(p.done)
	})
}

// Done is closed when the detection has settled.
func (p *Detection) Done() <-chan struct{} { return p.done }

// Source is the URL that loaded: the img src, or the background-image URL
// the detached image fetched. It is empty until Done is closed and after a
// failed detection.
func (p *Detection) Source() string {
	select {
	case <-p.done:
		return p.src
	default:
		return ""
	}
}

// Wait blocks until the detection settles or ctx ends. Abandoning the wait
// does not stop the detection; cancel the context given to Start for that.
func (p *Detection) Wait(ctx context.Context) (Element, error) {
	select {
	case <-p.done:
		return p.el, p.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Start validates its arguments and launches the detection. Invalid input
// is reported here, before anything runs. A nil filter means DefaultFilter.
// The returned Detection resolves with el once its image has loaded.
func (d *Detector) Start(ctx context.Context, el Element, filter Matcher) (*Detection, error) {
	if isNil(el) {
		return nil, fmt.Errorf("%w: %v", ErrInvalidElement, el)
	}
	tag := el.TagName()
	if tag == "" {
		return nil, fmt.Errorf("%w: %T has no tag name", ErrInvalidElement, el)
	}

	if filter == nil {
		filter = DefaultFilter
	} else if isNil(filter) {
		return nil, fmt.Errorf("%w: nil %T", ErrInvalidFilter, filter)
	}

	var run func(context.Context) (Element, string, error)
	if strings.EqualFold(tag, "img") {
		img, ok := el.(Image)
		if !ok {
			return nil, fmt.Errorf("%w: %T is an img without decode events", ErrInvalidElement, el)
		}
		run = func(ctx context.Context) (Element, string, error) {
			return d.sourceLoaded(ctx, el, img, filter)
		}
	} else {
		run = func(ctx context.Context) (Element, string, error) {
			return d.backgroundLoaded(ctx, el, filter)
		}
	}

	p := &Detection{done: make(chan struct{})}
	go func() { p.settle(run(ctx)) }()
	return p, nil
}

// Detect is Start followed by Wait.
func (d *Detector) Detect(ctx context.Context, el Element, filter Matcher) (Element, error) {
	p, err := d.Start(ctx, el, filter)
	if err != nil {
		return nil, err
	}
	return p.Wait(ctx)
}

// awaitLoad blocks on an armed OnLoad channel.
func awaitLoad(ctx context.Context, loaded <-chan error) error {
	select {
	case err, ok := <-loaded:
		if !ok {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return ErrDetached
		}
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func isNil(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Interface, reflect.Map, reflect.Slice, reflect.Func, reflect.Chan:
		return rv.IsNil()
	}
	return false
}
