package sink

import (
	"context"

	"github.com/hazyhaar/imgprobe/outcome"
)

// Func is called once per outcome, in-process.
type Func func(ctx context.Context, o outcome.Outcome) error

// Callback hands outcomes to a Go function. Used when imgprobe is
// embedded as a library.
type Callback struct {
	fn Func
}

// NewCallback creates a Callback sink. A nil fn discards outcomes.
func NewCallback(fn Func) *Callback {
	return &Callback{fn: fn}
}

func (c *Callback) Send(ctx context.Context, o outcome.Outcome) error {
	if c.fn == nil {
		return nil
	}
	return c.fn(ctx, o)
}

func (c *Callback) Close() error { return nil }
