package imageloaded

import (
	"context"
	"fmt"
)

// Accept is the outcome of a watch predicate: pending, or accepted with a
// payload. The zero value is pending.
type Accept[T any] struct {
	value T
	ok    bool
}

// Accepted stops the watch and hands v to the completion step.
func Accepted[T any](v T) Accept[T] { return Accept[T]{value: v, ok: true} }

// Pending keeps the watch running.
func Pending[T any]() Accept[T] { return Accept[T]{} }

// Value returns the payload and whether the value was accepted.
func (a Accept[T]) Value() (T, bool) { return a.value, a.ok }

// Predicate decides whether a newly observed value ends the watch.
type Predicate[T any] func(el Element, value string) Accept[T]

// ValueReader reads the watched value off the element after a change.
type ValueReader func(ctx context.Context, el Element, name string) (string, error)

func readAttribute(ctx context.Context, el Element, name string) (string, error) {
	return el.Attribute(ctx, name)
}

type watchConfig struct {
	read    ValueReader
	recheck bool
}

// WatchOption tunes Watch and WatchOnce.
type WatchOption func(*watchConfig)

// ReadWith replaces the default reader (Element.Attribute).
func ReadWith(r ValueReader) WatchOption {
	return func(c *watchConfig) { c.read = r }
}

// Recheck evaluates the predicate once against the current value as soon
// as the subscription is live. A change landing between the caller's own
// check and the subscription is then not lost.
func Recheck() WatchOption {
	return func(c *watchConfig) { c.recheck = true }
}

// Watching is a running attribute watch.
type Watching struct {
	done chan struct{}
	err  error
}

// Done is closed when the watch has ended. If a value was accepted, the
// completion callback has returned by then.
func (w *Watching) Done() <-chan struct{} { return w.done }

// Err is valid once Done is closed: nil after an accepted value,
// ctx.Err() after cancellation, ErrWatchClosed if the stream ended, or
// the read error that stopped the watch.
func (w *Watching) Err() error { return w.err }

// Watch observes attribute name on el. Every change notification reads the
// live value off el and passes it to onChange. The first accepted value
// stops the subscription and then calls onAccept with the payload, at most
// once. A failed read stops the watch without calling onAccept. A panic in
// onChange is not recovered.
func Watch[T any](ctx context.Context, obs Observer, el Element, name string,
	onChange Predicate[T], onAccept func(el Element, v T), opts ...WatchOption) (*Watching, error) {

	cfg := watchConfig{read: readAttribute}
	for _, o := range opts {
		o(&cfg)
	}

	sub, err := obs.ObserveAttribute(ctx, el, name)
	if err != nil {
		return nil, fmt.Errorf("imageloaded: observe %s: %w", name, err)
	}

	w := &Watching{done: make(chan struct{})}
	go runWatch(ctx, w, sub, el, name, cfg, onChange, onAccept)
	return w, nil
}

func runWatch[T any](ctx context.Context, w *Watching, sub Subscription, el Element, name string,
	cfg watchConfig, onChange Predicate[T], onAccept func(Element, T)) {

	defer close(w.done)

	// check reports whether the watch is over.
	check := func() bool {
		value, err := cfg.read(ctx, el, name)
		if err != nil {
			sub.Stop()
			if ctx.Err() != nil {
				w.err = ctx.Err()
			} else {
				w.err = fmt.Errorf("imageloaded: read %s: %w", name, err)
			}
			return true
		}
		v, ok := onChange(el, value).Value()
		if !ok {
			return false
		}
		sub.Stop()
		onAccept(el, v)
		return true
	}

	if cfg.recheck && check() {
		return
	}

	for {
		select {
		case <-ctx.Done():
			sub.Stop()
			w.err = ctx.Err()
			return
		case _, ok := <-sub.Notifications():
			if !ok {
				sub.Stop()
				w.err = ErrWatchClosed
				return
			}
			if check() {
				return
			}
		}
	}
}

// Change is the payload of WatchOnce.
type Change[T any] struct {
	Target Element
	Name   string
	Value  T
}

// WatchOnce is the blocking form of Watch: it returns the accepted payload.
// It fails only on cancellation, stream closure or a failed read.
func WatchOnce[T any](ctx context.Context, obs Observer, el Element, name string,
	pred Predicate[T], opts ...WatchOption) (Change[T], error) {

	var change Change[T]
	w, err := Watch(ctx, obs, el, name, pred, func(target Element, v T) {
		change = Change[T]{Target: target, Name: name, Value: v}
	}, opts...)
	if err != nil {
		return Change[T]{}, err
	}

	<-w.Done()
	if err := w.Err(); err != nil {
		return Change[T]{}, err
	}
	return change, nil
}
