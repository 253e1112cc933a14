package sink

import (
	"context"
	"encoding/json"
	"io"
	"os"
	"sync"

	"github.com/hazyhaar/imgprobe/outcome"
)

// Stdout writes one JSON line per outcome.
type Stdout struct {
	mu  sync.Mutex
	enc *json.Encoder
}

// NewStdout creates a Stdout sink. If w is nil, os.Stdout is used.
func NewStdout(w io.Writer) *Stdout {
	if w == nil {
		w = os.Stdout
	}
	return &Stdout{enc: json.NewEncoder(w)}
}

func (s *Stdout) Send(_ context.Context, o outcome.Outcome) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.enc.Encode(o)
}

func (s *Stdout) Close() error { return nil }
