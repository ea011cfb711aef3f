package llmtools

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/arkforge/codegen-rag/internal/analyzer"
	"github.com/arkforge/codegen-rag/internal/checker"
	"github.com/arkforge/codegen-rag/internal/evidence"
	"github.com/arkforge/codegen-rag/internal/extract"
	"github.com/arkforge/codegen-rag/internal/fetch"
	"github.com/arkforge/codegen-rag/internal/search"
)

// MinimalDeps bundles dependencies for the minimal tool surface.
type MinimalDeps struct {
	// Search provider (e.g., SearxNG or file-based). Required for web_search.
	SearchProvider search.Provider
	// Fetch client to retrieve URLs with policy enforcement. Required for fetch_url.
	FetchClient *fetch.Client
	// Extractor to convert HTML into main text. Defaults to HeuristicExtractor when nil.
	Extractor extract.Extractor
	// Store enables the local_search tool when non-nil.
	Store evidence.Store
	// Collection is the vector collection local_search queries.
	Collection string
	// Checker enables the check_code tool when non-nil.
	Checker *checker.Unified
	// MaxResultChars caps tool result payloads; larger bodies and extracts
	// are truncated in the response and retrievable in full via the
	// load_cached_body / load_cached_excerpt tools. Zero disables capping.
	MaxResultChars int
}

// inMemoryExcerptStore stores extracted documents keyed by deterministic ID.
type inMemoryExcerptStore struct {
	mu   sync.RWMutex
	data map[string]extractedDoc
}

type extractedDoc struct {
	ID    string `json:"id"`
	Title string `json:"title"`
	Text  string `json:"text"`
}

func newExcerptStore() *inMemoryExcerptStore {
	return &inMemoryExcerptStore{data: make(map[string]extractedDoc)}
}

func (s *inMemoryExcerptStore) put(doc extractedDoc) {
	s.mu.Lock()
	s.data[doc.ID] = doc
	s.mu.Unlock()
}

func (s *inMemoryExcerptStore) get(id string) (extractedDoc, bool) {
	s.mu.RLock()
	d, ok := s.data[id]
	s.mu.RUnlock()
	return d, ok
}

// inMemoryBodyStore stores full fetched bodies keyed by deterministic ID so
// truncated fetch_url results stay recoverable.
type inMemoryBodyStore struct {
	mu   sync.RWMutex
	data map[string]cachedBody
}

type cachedBody struct {
	ContentType string `json:"content_type"`
	Body        string `json:"body"`
}

func newBodyStore() *inMemoryBodyStore {
	return &inMemoryBodyStore{data: make(map[string]cachedBody)}
}

func (s *inMemoryBodyStore) put(id string, b cachedBody) {
	s.mu.Lock()
	s.data[id] = b
	s.mu.Unlock()
}

func (s *inMemoryBodyStore) get(id string) (cachedBody, bool) {
	s.mu.RLock()
	b, ok := s.data[id]
	s.mu.RUnlock()
	return b, ok
}

func sha256Hex(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}

func truncateTo(s string, max int) (string, bool) {
	if max <= 0 || len(s) <= max {
		return s, false
	}
	return s[:max], true
}

// NewMinimalRegistry registers the minimal tool surface:
//   - web_search
//   - fetch_url
//   - extract_main_text
//   - load_cached_excerpt (IDs produced by extract_main_text)
//   - load_cached_body (IDs produced by fetch_url)
//   - local_search (when an evidence store is configured)
//   - check_code (when a unified checker is configured)
func NewMinimalRegistry(deps MinimalDeps) (*Registry, error) {
	r := NewRegistry()
	store := newExcerptStore()
	bodies := newBodyStore()

	extractor := deps.Extractor
	if extractor == nil {
		extractor = extract.HeuristicExtractor{}
	}

	// web_search
	if deps.SearchProvider == nil {
		return nil, fmt.Errorf("NewMinimalRegistry: SearchProvider is nil")
	}
	webSearchSchema := json.RawMessage(`{
        "type":"object",
        "properties":{
            "q":{"type":"string"},
            "limit":{"type":"integer","minimum":1,"maximum":20}
        },
        "required":["q"]
    }`)
	if err := r.Register(ToolDefinition{
		StableName:   "web_search",
		SemVer:       "v1.0.0",
		Description:  "Search the public web and return results",
		JSONSchema:   webSearchSchema,
		Capabilities: []string{"search"},
		Handler: func(ctx context.Context, args json.RawMessage) (json.RawMessage, error) {
			var in struct {
				Q     string `json:"q"`
				Limit int    `json:"limit"`
			}
			if err := json.Unmarshal(args, &in); err != nil {
				return nil, fmt.Errorf("invalid args: %w", err)
			}
			q := strings.TrimSpace(in.Q)
			if q == "" {
				return nil, fmt.Errorf("missing q")
			}
			limit := in.Limit
			if limit <= 0 {
				limit = 10
			}
			if limit > 20 {
				limit = 20
			}
			results, err := deps.SearchProvider.Search(ctx, q, limit)
			if err != nil {
				return nil, err
			}
			// Marshal as stable JSON shape with sanitized URLs
			type outResult struct{ Title, URL, Snippet, Source string }
			out := struct {
				Results []outResult `json:"results"`
			}{Results: make([]outResult, 0, len(results))}
			for _, r := range results {
				cleaned := r.URL
				if u, err := urlParseMaybe(r.URL); err == nil && u.Scheme != "" && u.Host != "" {
					cleaned = sanitizeURLForSafety(u)
				}
				out.Results = append(out.Results, outResult{Title: r.Title, URL: cleaned, Snippet: r.Snippet, Source: r.Source})
			}
			return json.Marshal(out)
		},
	}); err != nil {
		return nil, err
	}

	// fetch_url
	if deps.FetchClient == nil {
		return nil, fmt.Errorf("NewMinimalRegistry: FetchClient is nil")
	}
	fetchURLSchema := json.RawMessage(`{
        "type":"object",
        "properties":{ "url": {"type":"string","format":"uri"} },
        "required":["url"]
    }`)
	if err := r.Register(ToolDefinition{
		StableName:   "fetch_url",
		SemVer:       "v1.0.0",
		Description:  "Fetch a URL with polite headers and return body",
		JSONSchema:   fetchURLSchema,
		Capabilities: []string{"fetch"},
		Handler: func(ctx context.Context, args json.RawMessage) (json.RawMessage, error) {
			var in struct {
				URL string `json:"url"`
			}
			if err := json.Unmarshal(args, &in); err != nil {
				return nil, fmt.Errorf("invalid args: %w", err)
			}
			u := strings.TrimSpace(in.URL)
			if u == "" {
				return nil, fmt.Errorf("missing url")
			}
			body, ct, err := deps.FetchClient.Get(ctx, u)
			if err != nil {
				return nil, err
			}
			full := string(body)
			id := sha256Hex(u + "\n" + full)
			bodies.put(id, cachedBody{ContentType: ct, Body: full})
			clipped, truncated := truncateTo(full, deps.MaxResultChars)
			out := struct {
				ContentType string `json:"content_type"`
				Body        string `json:"body"`
				Truncated   bool   `json:"truncated"`
				Bytes       int    `json:"bytes"`
				ID          string `json:"id"`
			}{ContentType: ct, Body: clipped, Truncated: truncated, Bytes: len(full), ID: id}
			return json.Marshal(out)
		},
	}); err != nil {
		return nil, err
	}

	// extract_main_text
	extractSchema := json.RawMessage(`{
        "type":"object",
        "properties":{
            "html":{"type":"string"},
            "content_type":{"type":"string"}
        },
        "required":["html"]
    }`)
	if err := r.Register(ToolDefinition{
		StableName:   "extract_main_text",
		SemVer:       "v1.0.0",
		Description:  "Extract readable title and text from HTML",
		JSONSchema:   extractSchema,
		Capabilities: []string{"extract"},
		Handler: func(_ context.Context, args json.RawMessage) (json.RawMessage, error) {
			var in struct {
				HTML        string `json:"html"`
				ContentType string `json:"content_type"`
			}
			if err := json.Unmarshal(args, &in); err != nil {
				return nil, fmt.Errorf("invalid args: %w", err)
			}
			html := strings.TrimSpace(in.HTML)
			if html == "" {
				return nil, fmt.Errorf("missing html")
			}
			doc := extractor.Extract([]byte(html))
			id := sha256Hex(doc.Title + "\n" + doc.Text)
			fullText := strings.TrimSpace(doc.Text)
			store.put(extractedDoc{ID: id, Title: strings.TrimSpace(doc.Title), Text: fullText})
			clipped, truncated := truncateTo(fullText, deps.MaxResultChars)
			out := struct {
				ID        string `json:"id"`
				Title     string `json:"title"`
				Text      string `json:"text"`
				Truncated bool   `json:"truncated"`
				Bytes     int    `json:"bytes"`
			}{ID: id, Title: strings.TrimSpace(doc.Title), Text: clipped, Truncated: truncated, Bytes: len(fullText)}
			return json.Marshal(out)
		},
	}); err != nil {
		return nil, err
	}

	// load_cached_excerpt
	loadSchema := json.RawMessage(`{
        "type":"object",
        "properties":{ "id": {"type":"string"} },
        "required":["id"]
    }`)
	if err := r.Register(ToolDefinition{
		StableName:   "load_cached_excerpt",
		SemVer:       "v1.0.0",
		Description:  "Load a previously extracted excerpt by ID",
		JSONSchema:   loadSchema,
		Capabilities: []string{"cache", "excerpt"},
		Handler: func(_ context.Context, args json.RawMessage) (json.RawMessage, error) {
			var in struct {
				ID string `json:"id"`
			}
			if err := json.Unmarshal(args, &in); err != nil {
				return nil, fmt.Errorf("invalid args: %w", err)
			}
			id := strings.TrimSpace(in.ID)
			if id == "" {
				return nil, fmt.Errorf("missing id")
			}
			if d, ok := store.get(id); ok {
				return json.Marshal(d)
			}
			return nil, fmt.Errorf("not found: %s", id)
		},
	}); err != nil {
		return nil, err
	}

	// load_cached_body
	if err := r.Register(ToolDefinition{
		StableName:   "load_cached_body",
		SemVer:       "v1.0.0",
		Description:  "Load the full body of a previously fetched URL by ID",
		JSONSchema:   loadSchema,
		Capabilities: []string{"cache", "fetch"},
		Handler: func(_ context.Context, args json.RawMessage) (json.RawMessage, error) {
			var in struct {
				ID string `json:"id"`
			}
			if err := json.Unmarshal(args, &in); err != nil {
				return nil, fmt.Errorf("invalid args: %w", err)
			}
			id := strings.TrimSpace(in.ID)
			if id == "" {
				return nil, fmt.Errorf("missing id")
			}
			if b, ok := bodies.get(id); ok {
				return json.Marshal(b)
			}
			return nil, fmt.Errorf("not found: %s", id)
		},
	}); err != nil {
		return nil, err
	}

	// local_search over the vector-backed evidence store
	if deps.Store != nil {
		localSchema := json.RawMessage(`{
            "type":"object",
            "properties":{
                "q":{"type":"string"},
                "limit":{"type":"integer","minimum":1,"maximum":20}
            },
            "required":["q"]
        }`)
		if err := r.Register(ToolDefinition{
			StableName:   "local_search",
			SemVer:       "v1.0.0",
			Description:  "Search the local documentation index and return ranked snippets",
			JSONSchema:   localSchema,
			Capabilities: []string{"search", "local"},
			Handler: func(ctx context.Context, args json.RawMessage) (json.RawMessage, error) {
				var in struct {
					Q     string `json:"q"`
					Limit int    `json:"limit"`
				}
				if err := json.Unmarshal(args, &in); err != nil {
					return nil, fmt.Errorf("invalid args: %w", err)
				}
				q := strings.TrimSpace(in.Q)
				if q == "" {
					return nil, fmt.Errorf("missing q")
				}
				limit := in.Limit
				if limit <= 0 {
					limit = 5
				}
				items, err := deps.Store.Search(ctx, deps.Collection, nil, q, limit)
				if err != nil {
					return nil, err
				}
				items = evidence.Dedup(items)
				type outItem struct {
					Title string  `json:"title"`
					URL   string  `json:"url"`
					Text  string  `json:"text"`
					Score float64 `json:"score"`
				}
				out := struct {
					Items []outItem `json:"items"`
				}{Items: make([]outItem, 0, len(items))}
				for _, it := range items {
					out.Items = append(out.Items, outItem{Title: it.Title, URL: it.URL, Text: it.Text, Score: it.Score})
				}
				return json.Marshal(out)
			},
		}); err != nil {
			return nil, err
		}
	}

	// check_code through the unified checker
	if deps.Checker != nil {
		checkSchema := json.RawMessage(`{
            "type":"object",
            "properties":{
                "code":{"type":"string"},
                "language":{"type":"string"}
            },
            "required":["code"]
        }`)
		if err := r.Register(ToolDefinition{
			StableName:   "check_code",
			SemVer:       "v1.0.0",
			Description:  "Run static analysis on a code snippet and return normalized issues and a score",
			JSONSchema:   checkSchema,
			Capabilities: []string{"analyze"},
			Handler: func(ctx context.Context, args json.RawMessage) (json.RawMessage, error) {
				var in struct {
					Code     string `json:"code"`
					Language string `json:"language"`
				}
				if err := json.Unmarshal(args, &in); err != nil {
					return nil, fmt.Errorf("invalid args: %w", err)
				}
				if strings.TrimSpace(in.Code) == "" {
					return nil, fmt.Errorf("missing code")
				}
				res := deps.Checker.Review(ctx, analyzer.ReviewRequest{
					Code:     in.Code,
					Language: analyzer.Language(strings.ToLower(strings.TrimSpace(in.Language))),
				})
				type outIssue struct {
					Severity string `json:"severity"`
					Message  string `json:"message"`
					Line     int    `json:"line"`
					Backend  string `json:"backend"`
				}
				out := struct {
					Language string     `json:"language"`
					Score    int        `json:"score"`
					Issues   []outIssue `json:"issues"`
				}{Language: string(res.Request.Language), Score: res.Score}
				for _, is := range res.Issues {
					out.Issues = append(out.Issues, outIssue{Severity: string(is.Severity), Message: is.Message, Line: is.Line, Backend: is.BackendID})
				}
				return json.Marshal(out)
			},
		}); err != nil {
			return nil, err
		}
	}

	return r, nil
}
