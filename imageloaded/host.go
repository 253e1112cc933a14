package imageloaded

import "context"

// Element is a live DOM element. It is owned by the caller; the detector
// only reads from it.
type Element interface {
	// TagName returns the element's tag name as reported by the DOM
	// (upper case for HTML elements). Empty means "not an element".
	TagName() string

	// Attribute returns the current value of the named attribute as the
	// element reflects it: "src" yields the resolved URL.
	Attribute(ctx context.Context, name string) (string, error)

	// InlineStyle returns the browser-normalised value of one property of
	// the element's inline style, e.g. `url("a.png")` for background-image.
	InlineStyle(ctx context.Context, property string) (string, error)
}

// ImageState is the synchronous decode state of an image element.
type ImageState struct {
	Complete      bool   `json:"complete"`
	NaturalWidth  int    `json:"naturalWidth"`
	NaturalHeight int    `json:"naturalHeight"`
	Src           string `json:"src"`
}

// Decoded reports a finished load that produced a bitmap.
func (s ImageState) Decoded() bool {
	return s.Complete && s.NaturalWidth > 0 && s.NaturalHeight > 0
}

// Image is an image-bearing element with decode notifications.
type Image interface {
	Element

	// State reads the current decode state.
	State(ctx context.Context) (ImageState, error)

	// OnLoad arms one-shot load and error listeners. The returned channel
	// receives nil on load or a *DecodeError on failure, then closes. It
	// closes without a value if ctx ends first.
	OnLoad(ctx context.Context) (<-chan error, error)

	// SetSource assigns the image source.
	SetSource(ctx context.Context, src string) error
}

// Notification reports that a watched attribute changed. It carries no
// value: watchers read the live value off Target.
type Notification struct {
	Target Element
	Name   string
}

// Subscription is a live attribute observation.
type Subscription interface {
	// Notifications delivers changes in order. The channel is closed by
	// Stop or when the underlying page goes away.
	Notifications() <-chan Notification

	// Stop ends the observation. Safe to call more than once.
	Stop() error
}

// Observer subscribes to attribute mutations on a single element.
type Observer interface {
	ObserveAttribute(ctx context.Context, el Element, name string) (Subscription, error)
}

// StyleReader resolves computed style values.
type StyleReader interface {
	ComputedStyle(ctx context.Context, el Element, property string) (string, error)
}

// ImageFactory creates detached image elements used to probe URLs.
type ImageFactory interface {
	NewImage(ctx context.Context) (Image, error)
}

// Host bundles the platform facilities a Detector needs.
type Host interface {
	Observer
	StyleReader
	ImageFactory
}
