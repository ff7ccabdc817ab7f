package crawler

import (
	"context"
	"net/url"
)

// Scope is the predicate deciding which URLs a crawl may fetch: same origin
// as the seed, and permitted by the robots policy.
type Scope struct {
	origin *url.URL
	robots RobotsPolicy
}

// NewScope builds the filter for one crawl run rooted at seed.
func NewScope(seed *url.URL, robots RobotsPolicy) *Scope {
	return &Scope{origin: seed, robots: robots}
}

// InScope reports whether rawURL shares the seed's origin (scheme + host).
// A URL that does not parse cannot share an origin and is out of scope.
func (s *Scope) InScope(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	return SameOrigin(u, s.origin)
}

// Allowed reports whether robots rules permit fetching rawURL.
func (s *Scope) Allowed(ctx context.Context, rawURL string) bool {
	if s.robots == nil {
		return true
	}
	return s.robots.Allowed(ctx, rawURL)
}
