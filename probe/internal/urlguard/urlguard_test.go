package urlguard

import (
	"context"
	"errors"
	"testing"
)

func fixedLookup(addrs map[string][]string) LookupFunc {
	return func(_ context.Context, host string) ([]string, error) {
		if a, ok := addrs[host]; ok {
			return a, nil
		}
		return nil, errors.New("no such host")
	}
}

func TestCheck(t *testing.T) {
	g := New(WithLookup(fixedLookup(map[string][]string{
		"example.com":   {"93.184.215.14"},
		"intranet.corp": {"10.0.0.7"},
		"mixed.example": {"93.184.215.14", "127.0.0.1"},
	})))

	tests := []struct {
		url  string
		want error
	}{
		{"https://example.com/", nil},
		{"http://unresolvable.example/", ErrUnresolved},
		{"http://127.0.0.1:8080/", ErrPrivate},
		{"http://[::1]/", ErrPrivate},
		{"http://169.254.169.254/latest/meta-data", ErrPrivate},
		{"https://intranet.corp/", ErrPrivate},
		{"https://mixed.example/", ErrPrivate},
		{"file:///etc/passwd", ErrScheme},
		{"javascript:alert(1)", ErrScheme},
	}
	for _, tt := range tests {
		err := g.Check(context.Background(), tt.url)
		if tt.want == nil {
			if err != nil {
				t.Errorf("Check(%q): got %v, want nil", tt.url, err)
			}
			continue
		}
		if !errors.Is(err, tt.want) {
			t.Errorf("Check(%q): got %v, want %v", tt.url, err, tt.want)
		}
	}
}

func TestCheckAddr(t *testing.T) {
	g := New()
	tests := []struct {
		addr string
		want error
	}{
		{"", nil},
		{"93.184.215.14", nil},
		{"[2606:2800:220:1::]", nil},
		{"127.0.0.1", ErrPrivate},
		{"169.254.169.254", ErrPrivate},
		{"[::1]", ErrPrivate},
		{"10.1.2.3", ErrPrivate},
	}
	for _, tt := range tests {
		err := g.CheckAddr(tt.addr)
		if tt.want == nil {
			if err != nil {
				t.Errorf("CheckAddr(%q): got %v, want nil", tt.addr, err)
			}
			continue
		}
		if !errors.Is(err, tt.want) {
			t.Errorf("CheckAddr(%q): got %v, want %v", tt.addr, err, tt.want)
		}
	}
	if err := g.CheckAddr("not-an-ip"); err == nil {
		t.Error("CheckAddr(not-an-ip): expected error")
	}
	if err := New(AllowPrivate()).CheckAddr("127.0.0.1"); err != nil {
		t.Errorf("CheckAddr with AllowPrivate: %v", err)
	}
}

func TestCheck_NoHost(t *testing.T) {
	if err := New().Check(context.Background(), "http:///path"); err == nil {
		t.Error("expected error for URL without host")
	}
}

func TestAllowPrivate(t *testing.T) {
	g := New(AllowPrivate())
	if err := g.Check(context.Background(), "http://127.0.0.1:3000/"); err != nil {
		t.Errorf("loopback with AllowPrivate: %v", err)
	}
	if err := g.Check(context.Background(), "ftp://127.0.0.1/"); !errors.Is(err, ErrScheme) {
		t.Errorf("scheme still enforced: got %v", err)
	}
}
