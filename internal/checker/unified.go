package checker

import (
	"context"
	"strings"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/arkforge/codegen-rag/internal/analyzer"
	"github.com/arkforge/codegen-rag/internal/validate"
)

// DispatchTable maps a detected language to the ordered back-end IDs that
// should review it. Back-end selection is data, not polymorphism.
type DispatchTable map[analyzer.Language][]string

// DefaultDispatch is the standard language-to-back-end matrix.
func DefaultDispatch(serverEnabled bool) DispatchTable {
	t := DispatchTable{
		analyzer.LangArkTS:      {"lint"},
		analyzer.LangTypeScript: {"lint"},
		analyzer.LangJavaScript: {"lint"},
		analyzer.LangC:          {"native"},
		analyzer.LangCPP:        {"native"},
	}
	if serverEnabled {
		for lang := range t {
			t[lang] = append(t[lang], "server")
		}
		for _, lang := range []analyzer.Language{analyzer.LangPython, analyzer.LangJava, analyzer.LangVue, analyzer.LangHTML, analyzer.LangCSS} {
			t[lang] = []string{"server"}
		}
	}
	return t
}

// Unified is the unified code checker: it detects language, dispatches to
// the configured back ends concurrently, and fuses their issues into one
// ReviewResult.
type Unified struct {
	Backends map[string]analyzer.Analyzer
	Dispatch DispatchTable
}

// Review implements the single Unified Checker operation.
func (u *Unified) Review(ctx context.Context, req analyzer.ReviewRequest) analyzer.ReviewResult {
	if req.Language == "" {
		req.Language = DetectLanguage(req.Code)
	}

	ids := u.Dispatch[req.Language]
	var backends []analyzer.Analyzer
	for _, id := range ids {
		if a, ok := u.Backends[id]; ok {
			backends = append(backends, a)
		}
	}
	if len(backends) == 0 {
		return analyzer.UnavailableResult(req, "unified", errNoBackend(req.Language))
	}

	results := make([]analyzer.ReviewResult, len(backends))
	g, gctx := errgroup.WithContext(ctx)
	for i, a := range backends {
		i, a := i, a
		g.Go(func() error {
			res, err := a.Review(gctx, req)
			if err != nil {
				res = analyzer.UnavailableResult(req, a.ID(), err)
			}
			results[i] = res
			return nil
		})
	}
	_ = g.Wait()

	res := merge(req, results)
	if res.Metadata["reason"] == "unavailable" && len(res.Suggestions) == 0 {
		res.Suggestions = []string{"supported languages: " + strings.Join(u.supportedLanguages(), ", ")}
	}
	if err := validate.ReviewResult(res); err != nil {
		log.Warn().Err(err).Msg("merged review violates result invariants")
	}
	return res
}

// supportedLanguages enumerates the languages any configured back end can
// review, in stable order.
func (u *Unified) supportedLanguages() []string {
	known := []analyzer.Language{
		analyzer.LangArkTS, analyzer.LangTypeScript, analyzer.LangJavaScript,
		analyzer.LangJava, analyzer.LangPython, analyzer.LangC, analyzer.LangCPP,
		analyzer.LangVue, analyzer.LangHTML, analyzer.LangCSS, analyzer.LangJSON,
	}
	var out []string
	for _, lang := range known {
		for _, a := range u.Backends {
			if a.SupportsLanguage(lang) {
				out = append(out, string(lang))
				break
			}
		}
	}
	return out
}

func merge(req analyzer.ReviewRequest, results []analyzer.ReviewResult) analyzer.ReviewResult {
	var issues []analyzer.Issue
	var reports []string
	var suggestions []string
	anyAvailable := false

	for _, r := range results {
		reports = append(reports, r.ReportText)
		suggestions = append(suggestions, r.Suggestions...)
		for _, is := range r.Issues {
			if is.BackendID == "" {
				is.BackendID = "unified"
			}
			issues = append(issues, normalizeSeverity(is))
		}
		if r.Metadata["reason"] != "unavailable" && r.Metadata["reason"] != "unsupported_language" {
			anyAvailable = true
		}
	}

	if !anyAvailable {
		res := analyzer.UnavailableResult(req, "unified", nil)
		res.Issues = issues
		res.Suggestions = suggestions
		return res
	}

	return analyzer.ReviewResult{
		Request:     req,
		ReportText:  strings.Join(reports, "\n---\n"),
		Issues:      issues,
		Suggestions: dedupStrings(suggestions),
		Score:       ScoreFromIssues(issues),
		Metadata:    map[string]string{"backend": "unified"},
	}
}

func normalizeSeverity(is analyzer.Issue) analyzer.Issue {
	switch is.Severity {
	case analyzer.SeverityError, analyzer.SeverityWarning, analyzer.SeverityInfo:
		return is
	default:
		is.Severity = analyzer.SeverityInfo
		return is
	}
}

// ScoreFromIssues recomputes the merged score from the fused issue list
// using the published per-category weight table (never average
// back-end scores).
func ScoreFromIssues(issues []analyzer.Issue) int {
	score := 100
	for _, is := range issues {
		cat := strings.ToUpper(is.Category)
		weights, ok := scoreTable[cat]
		if !ok {
			weights = genericWeights
		}
		score -= weights[is.Severity]
	}
	if score < 0 {
		score = 0
	}
	return score
}

var scoreTable = map[string]map[analyzer.Severity]int{
	"BUG": {
		analyzer.SeverityError:   20,
		analyzer.SeverityWarning: 10,
		analyzer.SeverityInfo:    5,
	},
	"VULNERABILITY": {
		analyzer.SeverityError:   25,
		analyzer.SeverityWarning: 15,
		analyzer.SeverityInfo:    8,
	},
	"CODE_SMELL": {
		analyzer.SeverityError:   8,
		analyzer.SeverityWarning: 4,
		analyzer.SeverityInfo:    2,
	},
	"SECURITY_HOTSPOT": {
		analyzer.SeverityError:   25,
		analyzer.SeverityWarning: 15,
		analyzer.SeverityInfo:    8,
	},
}

// genericWeights covers issues with no published category (e.g. lint/native
// back ends, which have no bug/vulnerability/code-smell kind). info-severity
// issues decrement by zero, matching the invariant that a result of purely
// informational findings still scores 100.
var genericWeights = map[analyzer.Severity]int{
	analyzer.SeverityError:   10,
	analyzer.SeverityWarning: 4,
	analyzer.SeverityInfo:    0,
}

func dedupStrings(in []string) []string {
	seen := map[string]struct{}{}
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s == "" {
			continue
		}
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}

type noBackendError string

func (e noBackendError) Error() string { return string(e) }

func errNoBackend(lang analyzer.Language) error {
	return noBackendError("no analyzer back end configured for language " + string(lang))
}
