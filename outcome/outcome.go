// Package outcome defines the records emitted by imgprobe. Any consumer
// (webhook receivers, the SQLite store, custom pipelines) imports this
// package to decode them.
package outcome

import (
	"encoding/json"

	"github.com/google/uuid"
)

// Status is the result class of one probe.
type Status string

const (
	StatusLoaded  Status = "loaded"  // image fetched and decoded
	StatusFailed  Status = "failed"  // load or decode error reported by the page
	StatusTimeout Status = "timeout" // deadline hit before the image settled
	StatusInvalid Status = "invalid" // bad target: filter, selector or element
	StatusError   Status = "error"   // browser or transport failure
)

// Kind tells which image source was probed.
type Kind string

const (
	KindImage      Kind = "img"        // <img src>
	KindBackground Kind = "background" // computed background-image
)

// Outcome is the result of probing one target.
type Outcome struct {
	ID         string `json:"id"` // UUIDv7
	TargetID   string `json:"target_id"`
	PageURL    string `json:"page_url"`
	Selector   string `json:"selector"`
	Filter     string `json:"filter,omitempty"`
	Kind       Kind   `json:"kind,omitempty"`
	Status     Status `json:"status"`
	Source     string `json:"source,omitempty"` // resolved src or background URL
	Error      string `json:"error,omitempty"`
	StartedAt  int64  `json:"started_at"` // epoch milliseconds
	DurationMs int64  `json:"duration_ms"`
}

// OK reports a loaded image.
func (o Outcome) OK() bool { return o.Status == StatusLoaded }

// NewID returns a time-sortable outcome identifier.
func NewID() string {
	return uuid.Must(uuid.NewV7()).String()
}

// Marshal serialises an Outcome to JSON.
func Marshal(o *Outcome) ([]byte, error) {
	return json.Marshal(o)
}

// Unmarshal deserialises an Outcome from JSON.
func Unmarshal(data []byte) (*Outcome, error) {
	var o Outcome
	if err := json.Unmarshal(data, &o); err != nil {
		return nil, err
	}
	return &o, nil
}
