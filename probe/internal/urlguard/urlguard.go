// Package urlguard rejects page URLs that would point the browser at the
// prober's own network.
package urlguard

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"
)

var (
	ErrScheme     = errors.New("urlguard: only http and https pages can be probed")
	ErrPrivate    = errors.New("urlguard: page resolves to a private or loopback address")
	ErrUnresolved = errors.New("urlguard: page host does not resolve")
)

// LookupFunc resolves a host name to IP strings.
type LookupFunc func(ctx context.Context, host string) ([]string, error)

// Guard checks URLs before Chrome is sent to them.
type Guard struct {
	allowPrivate bool
	lookup       LookupFunc
}

// Option configures a Guard.
type Option func(*Guard)

// AllowPrivate disables the address check; only the scheme is enforced.
func AllowPrivate() Option {
	return func(g *Guard) { g.allowPrivate = true }
}

// WithLookup replaces the DNS resolver.
func WithLookup(fn LookupFunc) Option {
	return func(g *Guard) { g.lookup = fn }
}

// New creates a Guard.
func New(opts ...Option) *Guard {
	g := &Guard{lookup: net.DefaultResolver.LookupHost}
	for _, o := range opts {
		o(g)
	}
	return g
}

// Check validates rawURL. Host names are resolved and every address must
// be public. A host that does not resolve is rejected.
func (g *Guard) Check(ctx context.Context, rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("urlguard: %w", err)
	}
	switch strings.ToLower(u.Scheme) {
	case "http", "https":
	default:
		return ErrScheme
	}
	host := u.Hostname()
	if host == "" {
		return errors.New("urlguard: URL has no host")
	}
	if g.allowPrivate {
		return nil
	}

	if ip := net.ParseIP(host); ip != nil {
		if private(ip) {
			return ErrPrivate
		}
		return nil
	}
	addrs, err := g.lookup(ctx, host)
	if err != nil {
		return fmt.Errorf("%w: %s: %w", ErrUnresolved, host, err)
	}
	if len(addrs) == 0 {
		return fmt.Errorf("%w: %s", ErrUnresolved, host)
	}
	for _, a := range addrs {
		if ip := net.ParseIP(a); ip != nil && private(ip) {
			return fmt.Errorf("%w: %s -> %s", ErrPrivate, host, a)
		}
	}
	return nil
}

// CheckAddr validates the address a response actually came from, which
// catches hosts that resolved differently for the browser than for Check.
// An empty addr, as reported for cached responses, passes.
func (g *Guard) CheckAddr(addr string) error {
	if g.allowPrivate || addr == "" {
		return nil
	}
	ip := net.ParseIP(strings.Trim(addr, "[]"))
	if ip == nil {
		return fmt.Errorf("urlguard: bad remote address %q", addr)
	}
	if private(ip) {
		return fmt.Errorf("%w: remote %s", ErrPrivate, addr)
	}
	return nil
}

func private(ip net.IP) bool {
	return ip.IsLoopback() || ip.IsPrivate() || ip.IsUnspecified() ||
		ip.IsLinkLocalUnicast() || ip.IsLinkLocalMulticast()
}
