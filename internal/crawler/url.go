package crawler

import (
	"fmt"
	"net/url"
	"path"
	"strings"
)

// NormalizeURL standardizes a URL for visited-set membership. It lowercases
// the scheme and host, removes default ports, strips the fragment,
// normalizes an empty path to "/", and sorts query parameters.
func NormalizeURL(rawURL string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return "", fmt.Errorf("parse url: %w", err)
	}

	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)

	if u.Scheme == "http" && strings.HasSuffix(u.Host, ":80") {
		u.Host = strings.TrimSuffix(u.Host, ":80")
	}
	if u.Scheme == "https" && strings.HasSuffix(u.Host, ":443") {
		u.Host = strings.TrimSuffix(u.Host, ":443")
	}

	u.Fragment = ""
	if u.Path == "" {
		u.Path = "/"
	}
	if u.RawQuery != "" {
		u.RawQuery = u.Query().Encode()
	}

	return u.String(), nil
}

// SameOrigin reports whether two URLs share scheme and host.
func SameOrigin(a, b *url.URL) bool {
	if a == nil || b == nil {
		return false
	}
	return strings.EqualFold(a.Scheme, b.Scheme) && strings.EqualFold(a.Host, b.Host)
}

// ValidateSeed reports whether raw could start a crawl without fetching
// anything. Callers that accept URLs from the outside use it to reject bad
// seeds before a job is submitted.
func ValidateSeed(raw string) error {
	_, err := parseSeed(raw)
	return err
}

// parseSeed validates that raw can start a crawl: it must parse as an
// absolute http(s) URL with a host.
func parseSeed(raw string) (*url.URL, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return nil, &InvalidSeedError{URL: raw, Reason: "empty url"}
	}
	u, err := url.Parse(trimmed)
	if err != nil {
		return nil, &InvalidSeedError{URL: raw, Reason: err.Error()}
	}
	if !u.IsAbs() || u.Host == "" {
		return nil, &InvalidSeedError{URL: raw, Reason: "must be an absolute url"}
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, &InvalidSeedError{URL: raw, Reason: fmt.Sprintf("unsupported scheme %q", u.Scheme)}
	}
	return u, nil
}

var skipExtensions = map[string]struct{}{
	".avi": {}, ".css": {}, ".gif": {}, ".gz": {}, ".ico": {}, ".jpeg": {},
	".jpg": {}, ".js": {}, ".mov": {}, ".mp3": {}, ".mp4": {}, ".pdf": {},
	".png": {}, ".svg": {}, ".tar": {}, ".ttf": {}, ".webp": {}, ".woff": {},
	".woff2": {}, ".zip": {},
}

// skippableResource reports whether the path points at a non-HTML asset
// that should never reach the frontier.
func skippableResource(u *url.URL) bool {
	ext := strings.ToLower(path.Ext(u.Path))
	_, ok := skipExtensions[ext]
	return ok
}
