package outcome

import (
	"strings"
	"testing"

	"github.com/google/uuid"
)

func TestNewID(t *testing.T) {
	a, b := NewID(), NewID()
	if a == b {
		t.Fatalf("NewID not unique: %q", a)
	}
	u, err := uuid.Parse(a)
	if err != nil {
		t.Fatal(err)
	}
	if u.Version() != 7 {
		t.Errorf("version: got %d, want 7", u.Version())
	}
}

func TestMarshalOmitsEmpty(t *testing.T) {
	o := &Outcome{
		ID:       "id-1",
		TargetID: "hero",
		PageURL:  "https://example.com",
		Selector: "img.hero",
		Status:   StatusTimeout,
	}
	data, err := Marshal(o)
	if err != nil {
		t.Fatal(err)
	}
	s := string(data)
	for _, key := range []string{`"source"`, `"error"`, `"kind"`, `"filter"`} {
		if strings.Contains(s, key) {
			t.Errorf("%s present in %s", key, s)
		}
	}

	got, err := Unmarshal(data)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != StatusTimeout {
		t.Errorf("Status: got %q, want %q", got.Status, StatusTimeout)
	}
	if got.OK() {
		t.Error("timeout outcome reported OK")
	}
}

func TestUnmarshalInvalid(t *testing.T) {
	if _, err := Unmarshal([]byte("{")); err == nil {
		t.Error("expected error for truncated JSON")
	}
}
