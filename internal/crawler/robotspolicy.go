package crawler

import (
	"bufio"
	"context"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

// RobotsRuleSet holds the allow and disallow path prefixes collected for
// the wildcard user agent. The zero value allows everything; it is also the
// substitute whenever the robots file cannot be fetched or parsed.
type RobotsRuleSet struct {
	allows    []string
	disallows []string
}

// PathAllowed applies prefix matching with allow-overrides-disallow
// precedence: a path is blocked iff any disallow prefix matches it and no
// allow prefix does. Any match counts; rule order and prefix length never
// change the outcome.
func (r RobotsRuleSet) PathAllowed(p string) bool {
	if len(r.disallows) == 0 {
		return true
	}
	if p == "" {
		p = "/"
	}
	blocked := false
	for _, prefix := range r.disallows {
		if strings.HasPrefix(p, prefix) {
			blocked = true
			break
		}
	}
	if !blocked {
		return true
	}
	for _, prefix := range r.allows {
		if strings.HasPrefix(p, prefix) {
			return true
		}
	}
	return false
}

// Empty reports whether the rule set carries no directives.
func (r RobotsRuleSet) Empty() bool {
	return len(r.allows) == 0 && len(r.disallows) == 0
}

// ParseRobots reads a robots.txt body and collects the wildcard group's
// rules. Directive keywords are case-insensitive; '#' comments and blank
// lines are ignored; Allow and Disallow lines bind to the most recent
// User-agent group. Consecutive User-agent lines form one group.
// Non-wildcard groups are scanned but contribute nothing.
func ParseRobots(body io.Reader) RobotsRuleSet {
	var rules RobotsRuleSet
	wildcard := false
	inGroupHeader := false
	scanner := bufio.NewScanner(body)
	for scanner.Scan() {
		line := scanner.Text()
		if idx := strings.Index(line, "#"); idx >= 0 {
			line = line[:idx]
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		key, value, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		key = strings.ToLower(strings.TrimSpace(key))
		value = strings.TrimSpace(value)
		switch key {
		case "user-agent":
			if !inGroupHeader {
				wildcard = false
			}
			if value == "*" {
				wildcard = true
			}
			inGroupHeader = true
		case "allow":
			inGroupHeader = false
			if wildcard && value != "" {
				rules.allows = append(rules.allows, value)
			}
		case "disallow":
			inGroupHeader = false
			if wildcard && value != "" {
				rules.disallows = append(rules.disallows, value)
			}
		default:
			inGroupHeader = false
		}
	}
	return rules
}

// RobotsEnforcer fetches and caches one wildcard rule set per origin and
// applies it to candidate URLs.
type RobotsEnforcer struct {
	client    *http.Client
	userAgent string
	logger    *zap.Logger
	mu        sync.Mutex
	cache     map[string]RobotsRuleSet
}

// NewRobotsEnforcer builds a RobotsPolicy honoring the respect toggle;
// when respect is false every URL is allowed.
func NewRobotsEnforcer(respect bool, userAgent string, logger *zap.Logger) RobotsPolicy {
	if !respect {
		return allowAllPolicy{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RobotsEnforcer{
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
		userAgent: userAgent,
		logger:    logger,
		cache:     make(map[string]RobotsRuleSet),
	}
}

// Allowed implements RobotsPolicy. Malformed URLs are allowed: one bad link
// must not stop a crawl.
func (r *RobotsEnforcer) Allowed(ctx context.Context, rawURL string) bool {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return true
	}
	return r.rulesFor(ctx, parsed).PathAllowed(parsed.Path)
}

func (r *RobotsEnforcer) rulesFor(ctx context.Context, u *url.URL) RobotsRuleSet {
	key := strings.ToLower(u.Scheme + "://" + u.Host)
	r.mu.Lock()
	if rules, ok := r.cache[key]; ok {
		r.mu.Unlock()
		return rules
	}
	r.mu.Unlock()

	rules := r.fetch(ctx, u)

	r.mu.Lock()
	r.cache[key] = rules
	r.mu.Unlock()
	return rules
}

// fetch loads the origin's robots.txt. Every failure path returns the empty
// rule set so the crawl proceeds as if nothing were disallowed.
func (r *RobotsEnforcer) fetch(ctx context.Context, u *url.URL) RobotsRuleSet {
	robotsURL := u.Scheme + "://" + u.Host + "/robots.txt"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, robotsURL, nil)
	if err != nil {
		r.logger.Warn("robots request build failed; allowing access",
			zap.String("host", u.Host), zap.Error(err))
		return RobotsRuleSet{}
	}
	req.Header.Set("User-Agent", r.userAgent)
	resp, err := r.client.Do(req)
	if err != nil {
		r.logger.Warn("robots fetch failed; allowing access",
			zap.String("host", u.Host), zap.Error(err))
		return RobotsRuleSet{}
	}
	defer func() {
		if cerr := resp.Body.Close(); cerr != nil {
			r.logger.Debug("close robots body", zap.Error(cerr))
		}
	}()
	if resp.StatusCode != http.StatusOK {
		return RobotsRuleSet{}
	}
	return ParseRobots(io.LimitReader(resp.Body, 1<<20))
}

type allowAllPolicy struct{}

func (allowAllPolicy) Allowed(context.Context, string) bool { return true }
