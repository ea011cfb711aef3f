package search

import (
	"context"
	"net/url"
	"strings"
)

// Result represents a single search hit from any provider.
type Result struct {
	Title   string
	URL     string
	Snippet string
	Source  string // provider name for observability
}

// Provider is a minimal interface for search providers.
type Provider interface {
	Search(ctx context.Context, query string, limit int) ([]Result, error)
	Name() string
}

// DomainPolicy allows providers to filter or block results/requests by host.
// Implementations should treat Denylist as taking precedence over Allowlist.
type DomainPolicy struct {
    Allowlist []string
    Denylist  []string
}

// isDomainBlocked evaluates rawURL against allow/deny host lists. Deny wins;
// a non-empty allowlist blocks every host not on it. Matching is by exact
// host or parent-domain suffix.
func isDomainBlocked(rawURL string, allow, deny []string) (blocked bool, reason string) {
    u, err := url.Parse(strings.TrimSpace(rawURL))
    if err != nil || u.Host == "" {
        return false, ""
    }
    host := strings.ToLower(u.Hostname())
    for _, d := range deny {
        if hostMatches(host, d) {
            return true, "denylisted: " + d
        }
    }
    if len(allow) > 0 {
        for _, a := range allow {
            if hostMatches(host, a) {
                return false, ""
            }
        }
        return true, "not on allowlist"
    }
    return false, ""
}

func hostMatches(host, pattern string) bool {
    p := strings.ToLower(strings.TrimSpace(pattern))
    if p == "" {
        return false
    }
    return host == p || strings.HasSuffix(host, "."+p)
}
