package browser

import (
	"context"
	"strings"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
)

func blockSet(types []string) map[string]bool {
	set := make(map[string]bool, len(types))
	for _, t := range types {
		set[strings.ToLower(t)] = true
	}
	return set
}

// interceptRequests fails requests for blocked resource types and, on a
// guarded tab, document requests the guard refuses. Every redirect hop
// is paused here as a request of its own.
func (t *Tab) interceptRequests(ctx context.Context, blocked map[string]bool) *rod.HijackRouter {
	router := t.Page.HijackRequests()
	router.MustAdd("*", func(h *rod.Hijack) {
		if !t.admit(ctx, blocked, h.Request.Type(), h.Request.URL().String()) {
			h.Response.Fail(proto.NetworkErrorReasonBlockedByClient)
			return
		}
		h.ContinueRequest(&proto.FetchContinueRequest{})
	})
	go router.Run()
	return router
}

// admit decides whether one intercepted request may proceed.
func (t *Tab) admit(ctx context.Context, blocked map[string]bool, resType proto.NetworkResourceType, rawURL string) bool {
	if t.guard != nil && resType == proto.NetworkResourceTypeDocument {
		if err := t.guard.Check(ctx, rawURL); err != nil {
			t.reject(err)
			return false
		}
	}
	return !shouldBlock(blocked, string(resType))
}

// shouldBlock maps a CDP resource type to its config name. Images are
// what is being probed and always pass.
func shouldBlock(blockSet map[string]bool, resType string) bool {
	switch lower := strings.ToLower(resType); lower {
	case "image":
		return false
	case "font":
		return blockSet["fonts"]
	case "media":
		return blockSet["media"]
	case "stylesheet":
		return blockSet["stylesheets"]
	default:
		return blockSet[lower]
	}
}
