package robots

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Gate answers "may this user agent fetch this page URL" using Manager's
// cached robots.txt rules. Prefix matching is used for rule patterns, with
// the longest matching pattern winning; Allow wins ties, per convention.
type Gate struct {
	UserAgent  string
	HTTPClient *http.Client

	manager *Manager
}

func (g *Gate) getManager() *Manager {
	if g.manager == nil {
		g.manager = &Manager{HTTPClient: g.HTTPClient, UserAgent: g.UserAgent}
	}
	return g.manager
}

// Allowed reports whether pageURL may be fetched. A page URL without a host,
// or rules the Manager cannot obtain (it returns an error), degrades to
// allowed. An unreachable robots.txt, or a 401, 403 or 5xx answer, comes back
// from the Manager as disallow-all rules, so the page is refused.
func (g *Gate) Allowed(ctx context.Context, pageURL string) (bool, error) {
	u, err := url.Parse(pageURL)
	if err != nil || u.Host == "" {
		return true, err
	}
	robotsURL := u.Scheme + "://" + u.Host + "/robots.txt"
	rules, _, err := g.getManager().Get(ctx, robotsURL)
	if err != nil {
		return true, nil
	}
	return rules.Allows(g.UserAgent, u.EscapedPath()), nil
}

// Allows reports whether path may be fetched by ua under these rules.
func (r Rules) Allows(ua, path string) bool {
	return r.IsAllowed(ua, path)
}

// IsAllowed evaluates the rules for ua against path (which may include a
// query string). The longest matching pattern wins; Allow wins ties, per the
// robots evaluation convention. Patterns support '*' wildcards and a '$' end
// anchor.
func (r Rules) IsAllowed(ua, path string) bool {
	group := selectGroup(r, ua)
	if group == nil {
		return true
	}
	return evaluate(group, path)
}

// CrawlDelayFor returns the crawl delay of the group matching ua, nil when
// no matching group declares one.
func (r Rules) CrawlDelayFor(ua string) *time.Duration {
	group := selectGroup(r, ua)
	if group == nil {
		return nil
	}
	return group.CrawlDelay
}

// IsPrivateHost reports whether host resolves to localhost or a private
// address range, for pre-request policy checks outside this package.
func IsPrivateHost(host string) bool {
	return isLocalOrPrivateHost(host)
}

func disallowAllRules() Rules {
	return Rules{Groups: []Group{{Agents: []string{"*"}, Disallow: []string{"/"}}}}
}

// selectGroup picks the most specific group for ua: an exact or substring
// agent match beats the wildcard group.
func selectGroup(rules Rules, ua string) *Group {
	lua := strings.ToLower(strings.TrimSpace(ua))
	var wildcard *Group
	for i := range rules.Groups {
		g := &rules.Groups[i]
		for _, agent := range g.Agents {
			la := strings.ToLower(strings.TrimSpace(agent))
			if la == "*" {
				if wildcard == nil {
					wildcard = g
				}
				continue
			}
			if lua != "" && strings.Contains(lua, la) {
				return g
			}
		}
	}
	return wildcard
}

func evaluate(g *Group, path string) bool {
	if path == "" {
		path = "/"
	}
	bestLen := -1
	allowed := true
	for _, p := range g.Allow {
		if n := matchLen(p, path); n > bestLen {
			bestLen = n
			allowed = true
		}
	}
	for _, p := range g.Disallow {
		if n := matchLen(p, path); n > bestLen {
			bestLen = n
			allowed = false
		}
	}
	return allowed
}

// matchLen returns the pattern length when pattern matches path, else -1.
// Patterns are anchored at the start, '*' matches any run of characters and
// a trailing '$' anchors the match to the end of the path. An empty pattern
// matches nothing, per the robots convention.
func matchLen(pattern, path string) int {
	pattern = strings.TrimSpace(pattern)
	if pattern == "" {
		return -1
	}
	anchored := strings.HasSuffix(pattern, "$")
	if anchored {
		pattern = strings.TrimSuffix(pattern, "$")
	}
	if patternMatches(pattern, path, anchored) {
		return len(pattern)
	}
	return -1
}

// patternMatches reports whether pattern (with '*' wildcards) matches path
// from the start, optionally requiring the match to consume the whole path.
func patternMatches(pattern, path string, toEnd bool) bool {
	segments := strings.Split(pattern, "*")
	pos := 0
	for i, seg := range segments {
		if seg == "" {
			continue
		}
		if i == 0 {
			if !strings.HasPrefix(path, seg) {
				return false
			}
			pos = len(seg)
			continue
		}
		if toEnd && i == len(segments)-1 {
			if !strings.HasSuffix(path[pos:], seg) {
				return false
			}
			pos = len(path)
			continue
		}
		idx := strings.Index(path[pos:], seg)
		if idx < 0 {
			return false
		}
		pos += idx + len(seg)
	}
	if !toEnd {
		return true
	}
	// With an end anchor, the final literal segment must reach the end of
	// the path (or a trailing '*' consumes the rest).
	if strings.HasSuffix(pattern, "*") {
		return true
	}
	if len(segments) == 1 {
		return pattern == path
	}
	return pos == len(path)
}
