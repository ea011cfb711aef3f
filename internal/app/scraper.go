package app

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/arkforge/codegen-rag/internal/aggregate"
	"github.com/arkforge/codegen-rag/internal/evidence"
	"github.com/arkforge/codegen-rag/internal/extract"
	"github.com/arkforge/codegen-rag/internal/fetch"
	"github.com/arkforge/codegen-rag/internal/robots"
	"github.com/arkforge/codegen-rag/internal/search"
	sel "github.com/arkforge/codegen-rag/internal/select"
)

// webScraper adapts the search provider + fetch + extract stack to the
// orchestrator's OnlineScraper surface, returning ranked snippets as
// evidence items with online provenance.
type webScraper struct {
	provider search.Provider
	fetcher  *fetch.Client
	gate     *robots.Gate
	// limit caps how many results are returned per query.
	limit int
	// deepFetch, when true, fetches each selected page and replaces the
	// snippet with extracted readable text.
	deepFetch bool
}

func (a *App) buildScraper() *webScraper {
	if a.cfg.SearxURL == "" {
		return nil
	}
	httpClient := newHighThroughputHTTPClient(true)
	return &webScraper{
		provider: &search.SearxNG{
			BaseURL:    a.cfg.SearxURL,
			APIKey:     a.cfg.SearxKey,
			HTTPClient: httpClient,
			UserAgent:  a.cfg.SearxUA,
			Categories: "it",
		},
		fetcher: &fetch.Client{
			HTTPClient:        httpClient,
			UserAgent:         a.cfg.SearxUA,
			MaxAttempts:       2,
			PerRequestTimeout: 15 * time.Second,
			Cache:             a.httpCache,
			RedirectMaxHops:   5,
			MaxConcurrent:     8,
		},
		gate:      &robots.Gate{UserAgent: a.cfg.SearxUA, HTTPClient: httpClient},
		limit:     8,
		deepFetch: true,
	}
}

// Search implements orchestrator.OnlineScraper. Per-source failures are
// isolated: a page that cannot be fetched keeps its snippet text.
func (s *webScraper) Search(ctx context.Context, query string) ([]evidence.Item, error) {
	if s == nil || s.provider == nil {
		return nil, nil
	}
	results, err := s.provider.Search(ctx, query, s.limit*2)
	if err != nil {
		return nil, err
	}
	merged := aggregate.MergeAndNormalize([][]search.Result{results})
	selected := sel.Select(merged, sel.Options{MaxTotal: s.limit, PerDomain: 3})

	items := make([]evidence.Item, 0, len(selected))
	for i, r := range selected {
		text := r.Snippet
		if s.deepFetch && s.allowed(ctx, r.URL) {
			if body, _, err := s.fetcher.Scrape(ctx, r.URL, fetch.ScrapeOptions{Formats: []string{"text"}}, nil); err == nil {
				doc := extract.FromHTML(body)
				if doc.Text != "" {
					text = clipText(doc.Text, 4000)
				}
			} else {
				log.Debug().Err(err).Str("url", r.URL).Msg("page fetch failed; keeping snippet")
			}
		}
		items = append(items, evidence.Item{
			SourceID:   r.URL,
			Title:      r.Title,
			URL:        r.URL,
			Text:       text,
			Score:      1.0 / float64(i+1),
			Provenance: evidence.ProvenanceOnline,
			Extra:      map[string]string{"provider": s.provider.Name()},
		})
	}
	return evidence.Dedup(items), nil
}

func (s *webScraper) allowed(ctx context.Context, url string) bool {
	if s.gate == nil {
		return true
	}
	ok, err := s.gate.Allowed(ctx, url)
	if err != nil {
		return true
	}
	return ok
}

func clipText(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}
