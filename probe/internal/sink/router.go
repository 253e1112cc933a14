package sink

import (
	"context"
	"log/slog"

	"github.com/hazyhaar/imgprobe/outcome"
)

// Router fans out to every sink. A failing sink does not stop the
// others; the first error is returned.
type Router struct {
	sinks  []Sink
	logger *slog.Logger
}

// NewRouter creates a fan-out router.
func NewRouter(logger *slog.Logger, sinks ...Sink) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	return &Router{sinks: sinks, logger: logger}
}

// Len returns the number of downstream sinks.
func (r *Router) Len() int { return len(r.sinks) }

func (r *Router) Send(ctx context.Context, o outcome.Outcome) error {
	var firstErr error
	for _, s := range r.sinks {
		if err := s.Send(ctx, o); err != nil {
			r.logger.Warn("sink: send failed", "target", o.TargetID, "error", err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

func (r *Router) Close() error {
	var firstErr error
	for _, s := range r.sinks {
		if err := s.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
