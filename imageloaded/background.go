package imageloaded

import (
	"context"
	"fmt"
)

const backgroundImage = "background-image"

func inlineBackgroundImage(ctx context.Context, el Element, _ string) (string, error) {
	return el.InlineStyle(ctx, backgroundImage)
}

// backgroundLoaded waits for el to carry an acceptable background-image URL,
// then probes that URL through a detached image element. There is no
// already-loaded shortcut: the probe is always a fresh element. The returned
// string is the URL the probe loaded.
func (d *Detector) backgroundLoaded(ctx context.Context, el Element, filter Matcher) (Element, string, error) {
	raw, err := d.host.ComputedStyle(ctx, el, backgroundImage)
	if err != nil {
		return nil, "", fmt.Errorf("imageloaded: computed %s: %w", backgroundImage, err)
	}
	url, _ := BackgroundImageURL(raw)

	if url == "" || !filter.MatchString(url) {
		d.logger.Debug("imageloaded: waiting for background-image", "value", raw)
		initial := url
		accept := func(_ Element, value string) Accept[string] {
			next, ok := BackgroundImageURL(value)
			if !ok {
				return Pending[string]()
			}
			tested := next
			if d.staleStyleFilter {
				tested = initial
			}
			if !filter.MatchString(tested) {
				return Pending[string]()
			}
			return Accepted(next)
		}
		change, err := WatchOnce(ctx, d.host, el, "style", accept,
			ReadWith(inlineBackgroundImage), Recheck())
		if err != nil {
			return nil, "", err
		}
		url = change.Value
	}

	probe, err := d.host.NewImage(ctx)
	if err != nil {
		return nil, "", fmt.Errorf("imageloaded: create probe image: %w", err)
	}
	lctx, cancel := context.WithCancel(ctx)
	defer cancel()
	loaded, err := probe.OnLoad(lctx)
	if err != nil {
		return nil, "", fmt.Errorf("imageloaded: arm load listeners: %w", err)
	}
	if err := probe.SetSource(ctx, url); err != nil {
		return nil, "", fmt.Errorf("imageloaded: set probe source: %w", err)
	}

	d.logger.Debug("imageloaded: probing background-image", "url", url)
	if err := awaitLoad(ctx, loaded); err != nil {
		return nil, "", err
	}
	return el, url, nil
}
