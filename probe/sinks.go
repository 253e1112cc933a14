package probe

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/hazyhaar/imgprobe/probe/internal/sink"
)

// Sink receives one outcome per probed target.
type Sink = sink.Sink

// SinkFunc is the in-process callback signature.
type SinkFunc = sink.Func

// NewStdoutSink writes JSON lines to w (os.Stdout when nil).
func NewStdoutSink(w io.Writer) Sink { return sink.NewStdout(w) }

// NewWebhookSink POSTs outcomes to url with retry.
func NewWebhookSink(url string, logger *slog.Logger) Sink {
	if logger == nil {
		logger = slog.Default()
	}
	return sink.NewWebhook(url, sink.WithWebhookLogger(logger))
}

// NewCallbackSink delivers outcomes to fn.
func NewCallbackSink(fn SinkFunc) Sink { return sink.NewCallback(fn) }

// NewSQLiteSink appends outcomes to the image_outcomes table at path.
func NewSQLiteSink(path string) (Sink, error) {
	s, err := sink.OpenSQLite(path)
	if err != nil {
		return nil, err
	}
	return s, nil
}

// SinksFromConfig builds every configured sink. On error the sinks
// already opened are closed.
func SinksFromConfig(cfgs []SinkConfig, logger *slog.Logger) ([]Sink, error) {
	var out []Sink
	for _, c := range cfgs {
		var s Sink
		switch c.Type {
		case "stdout":
			s = NewStdoutSink(nil)
		case "webhook":
			s = NewWebhookSink(c.URL, logger)
		case "sqlite":
			var err error
			if s, err = NewSQLiteSink(c.Path); err != nil {
				closeAll(out)
				return nil, fmt.Errorf("probe: sink %s: %w", c.Type, err)
			}
		default:
			closeAll(out)
			return nil, fmt.Errorf("probe: unknown sink type %q", c.Type)
		}
		out = append(out, s)
	}
	return out, nil
}

func closeAll(sinks []Sink) {
	for _, s := range sinks {
		s.Close()
	}
}
