package selecter

import (
	"net/url"
	"sort"
	"strings"

	"github.com/arkforge/codegen-rag/internal/search"
)

// Options configures selection constraints.
type Options struct {
	MaxTotal  int
	PerDomain int
	// MinSnippetChars drops results whose snippet carries fewer
	// non-whitespace characters. Zero disables the filter.
	MinSnippetChars int
	// PreferPrimary boosts documentation-style hosts over aggregators.
	PreferPrimary bool
	// PreferredLanguage boosts results whose URL advertises the language,
	// e.g. a "/en/" path segment or an "en." subdomain.
	PreferredLanguage string
}

// Select applies diversity-aware selection with per-domain caps.
func Select(results []search.Result, opt Options) []search.Result {
	if opt.MaxTotal <= 0 {
		opt.MaxTotal = 10
	}
	if opt.PerDomain <= 0 {
		opt.PerDomain = 3
	}
	// Normalize by URL host and dedupe by canonical URL string
	domainCounts := map[string]int{}
	seenURL := map[string]struct{}{}

	// Rank: preferred language and primary-source hosts first, then longer
	// snippets to increase signal.
	sorted := make([]search.Result, len(results))
	copy(sorted, results)
	sort.SliceStable(sorted, func(i, j int) bool {
		ri, rj := rank(sorted[i], opt), rank(sorted[j], opt)
		if ri != rj {
			return ri > rj
		}
		return len(sorted[i].Snippet) > len(sorted[j].Snippet)
	})

	out := make([]search.Result, 0, opt.MaxTotal)
	for _, r := range sorted {
		if opt.MinSnippetChars > 0 && nonWhitespaceLen(r.Snippet) < opt.MinSnippetChars {
			continue
		}
		u, err := url.Parse(strings.TrimSpace(r.URL))
		if err != nil || u.Host == "" {
			continue
		}
		canon := canonicalizeURL(u)
		if _, ok := seenURL[canon]; ok {
			continue
		}
		host := strings.ToLower(u.Host)
		if domainCounts[host] >= opt.PerDomain {
			continue
		}
		seenURL[canon] = struct{}{}
		domainCounts[host]++
		out = append(out, r)
		if len(out) >= opt.MaxTotal {
			break
		}
	}
	return out
}

func rank(r search.Result, opt Options) int {
	score := 0
	u, err := url.Parse(strings.TrimSpace(r.URL))
	if err != nil || u.Host == "" {
		return score
	}
	host := strings.ToLower(u.Host)
	if lang := strings.ToLower(strings.TrimSpace(opt.PreferredLanguage)); lang != "" {
		if strings.Contains(strings.ToLower(u.Path), "/"+lang+"/") || strings.HasPrefix(host, lang+".") {
			score += 2
		}
	}
	if opt.PreferPrimary && isPrimaryHost(host) {
		score++
	}
	return score
}

// isPrimaryHost flags hosts that typically carry first-party documentation.
func isPrimaryHost(host string) bool {
	for _, prefix := range []string{"docs.", "developer.", "dev.", "api."} {
		if strings.HasPrefix(host, prefix) {
			return true
		}
	}
	return strings.Contains(host, ".dev") || strings.Contains(host, "documentation")
}

func nonWhitespaceLen(s string) int {
	n := 0
	for _, r := range s {
		if r != ' ' && r != '\t' && r != '\n' && r != '\r' {
			n++
		}
	}
	return n
}

func canonicalizeURL(u *url.URL) string {
	// drop fragments and default ports; lower-case host
	u2 := *u
	u2.Fragment = ""
	u2.Host = strings.ToLower(u2.Host)
	if (u2.Scheme == "http" && strings.HasSuffix(u2.Host, ":80")) || (u2.Scheme == "https" && strings.HasSuffix(u2.Host, ":443")) {
		host := u2.Hostname()
		u2.Host = host
	}
	return u2.String()
}
