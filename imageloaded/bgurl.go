package imageloaded

import "regexp"

var backgroundURLRe = regexp.MustCompile(`^url\("(.+)"\)$`)

// BackgroundImageURL extracts the URL from a resolved background-image
// value. Only the single, double-quoted form url("...") is recognised,
// which is how browsers serialise computed and inline values. It returns
// false for "", "none" and anything else.
func BackgroundImageURL(raw string) (string, bool) {
	if raw == "" || raw == "none" {
		return "", false
	}
	m := backgroundURLRe.FindStringSubmatch(raw)
	if m == nil {
		return "", false
	}
	return m[1], true
}
