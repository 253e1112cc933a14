package imageloaded

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidElement is returned synchronously when the element argument
	// is nil or is not an element.
	ErrInvalidElement = errors.New("imageloaded: invalid element")

	// ErrInvalidFilter is returned synchronously when the filter is a nil
	// matcher.
	ErrInvalidFilter = errors.New("imageloaded: invalid filter")

	// ErrLoadFailed is matched by every load failure, see LoadError and
	// DecodeError.
	ErrLoadFailed = errors.New("imageloaded: load failed")

	// ErrWatchClosed means the observer closed the notification stream
	// before a value was accepted.
	ErrWatchClosed = errors.New("imageloaded: watch closed")

	// ErrDetached means decode notifications stopped without a result,
	// e.g. because the page was closed.
	ErrDetached = errors.New("imageloaded: image detached before load")
)

// LoadError reports an image that had already finished loading without
// producing a bitmap (complete, zero natural size).
type LoadError struct {
	Src string
}

func (e *LoadError) Error() string { return "load failed: " + e.Src }

func (e *LoadError) Unwrap() error { return ErrLoadFailed }

// DecodeError carries the error event fired by the platform when an image
// source fails to load.
type DecodeError struct {
	Src   string
	Event string // event type, usually "error"
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("imageloaded: %s event: %s", e.Event, e.Src)
}

func (e *DecodeError) Unwrap() error { return ErrLoadFailed }
