package imageloaded

import (
	"context"
	"fmt"
)

// sourceLoaded waits for img to carry an acceptable src and for that src to
// finish loading. el is img as the caller passed it; the returned string is
// the src that loaded.
func (d *Detector) sourceLoaded(ctx context.Context, el Element, img Image, filter Matcher) (Element, string, error) {
	src, err := img.Attribute(ctx, "src")
	if err != nil {
		return nil, "", fmt.Errorf("imageloaded: read src: %w", err)
	}

	if src == "" || !filter.MatchString(src) {
		d.logger.Debug("imageloaded: waiting for src", "src", src)
		// Only the raw new value is tested; the element is not re-read.
		accept := func(_ Element, value string) Accept[bool] {
			if value != "" && filter.MatchString(value) {
				return Accepted(true)
			}
			return Pending[bool]()
		}
		if _, err := WatchOnce(ctx, d.host, img, "src", accept, Recheck()); err != nil {
			return nil, "", err
		}
	}

	// Listeners are armed before the state read: a load finishing in
	// between is seen by one of the two, and only one of them is used.
	// The unused one is released on return.
	lctx, cancel := context.WithCancel(ctx)
	defer cancel()
	loaded, err := img.OnLoad(lctx)
	if err != nil {
		return nil, "", fmt.Errorf("imageloaded: arm load listeners: %w", err)
	}
	st, err := img.State(ctx)
	if err != nil {
		return nil, "", fmt.Errorf("imageloaded: read image state: %w", err)
	}
	if st.Complete {
		if st.Decoded() {
			return el, st.Src, nil
		}
		return nil, "", &LoadError{Src: st.Src}
	}

	d.logger.Debug("imageloaded: waiting for decode", "src", st.Src)
	if err := awaitLoad(ctx, loaded); err != nil {
		return nil, "", err
	}
	return el, st.Src, nil
}
