// Package sink delivers probe outcomes to output backends.
package sink

import (
	"context"

	"github.com/hazyhaar/imgprobe/outcome"
)

// Sink receives one outcome per probed target.
type Sink interface {
	Send(ctx context.Context, o outcome.Outcome) error
	Close() error
}
