// Package analyzer defines the normalized issue/review data model
// and the Analyzer contract that each external static-analysis back end
// implements.
package analyzer

import (
	"context"
	"errors"
	"time"
)

// Severity is the canonical issue severity, shared across every back end.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
	SeverityInfo    Severity = "info"
)

// Language is a detected source language (checker.DetectLanguage produces
// these; back ends declare which ones they accept).
type Language string

const (
	LangArkTS      Language = "arkts"
	LangTypeScript Language = "typescript"
	LangJavaScript Language = "javascript"
	LangJava       Language = "java"
	LangPython     Language = "python"
	LangC          Language = "c"
	LangCPP        Language = "cpp"
	LangVue        Language = "vue"
	LangHTML       Language = "html"
	LangCSS        Language = "css"
	LangJSON       Language = "json"
	LangUnknown    Language = "unknown"
)

// ReviewType selects the analysis profile a back end should run.
type ReviewType string

const (
	ReviewComprehensive ReviewType = "comprehensive"
	ReviewSyntax        ReviewType = "syntax"
	ReviewSecurity      ReviewType = "security"
	ReviewPerformance   ReviewType = "performance"
)

// Issue is one normalized finding.
type Issue struct {
	Severity  Severity
	Message   string
	FilePath  string
	Line      int
	Column    int
	RuleID    string
	Category  string
	FixHint   string
	BackendID string
}

// ReviewRequest is the input to a code review.
type ReviewRequest struct {
	OriginalQuery string
	Code          string
	Language      Language
	ReviewType    ReviewType
	Metadata      map[string]string
}

// ReviewResult is the output of a code review.
type ReviewResult struct {
	RequestID   string
	Request     ReviewRequest
	ReportText  string
	Issues      []Issue
	Suggestions []string
	Score       int
	Metadata    map[string]string
	Elapsed     time.Duration
}

// ErrUnsupportedLanguage is returned (wrapped into a ReviewResult, never
// thrown) when a back end does not accept the request's language.
var ErrUnsupportedLanguage = errors.New("analyzer: language not supported by this back end")

// ErrUnavailable indicates the external tool could not be reached at all.
var ErrUnavailable = errors.New("analyzer: back end unavailable")

// Analyzer is the back-end contract. Implementations share no base type:
// back-end selection is data (checker.DispatchTable), not polymorphism.
type Analyzer interface {
	// ID identifies the back end for Issue.BackendID and dispatch config.
	ID() string
	// IsAvailable reports whether the external tool can currently be
	// reached. It must have no side effects.
	IsAvailable(ctx context.Context) bool
	// SupportsLanguage reports whether this back end accepts lang.
	SupportsLanguage(lang Language) bool
	// Review runs the external tool against req and normalizes its output.
	// It never returns an error for ordinary analysis failures — an
	// unsupported language or unreachable tool yields a ReviewResult
	// carrying the explanation.
	Review(ctx context.Context, req ReviewRequest) (ReviewResult, error)
}

// NotSupportedResult builds the canonical "not supported" ReviewResult.
func NotSupportedResult(req ReviewRequest, backendID string) ReviewResult {
	return ReviewResult{
		Request:    req,
		ReportText: "language " + string(req.Language) + " is not supported by back end " + backendID,
		Score:      0,
		Metadata:   map[string]string{"backend": backendID, "reason": "unsupported_language"},
	}
}

// UnavailableResult builds the canonical fallback ReviewResult for when a
// back end cannot be reached at all.
func UnavailableResult(req ReviewRequest, backendID string, cause error) ReviewResult {
	msg := "analyzer back end " + backendID + " is unavailable"
	if cause != nil {
		msg += ": " + cause.Error()
	}
	return ReviewResult{
		Request:    req,
		ReportText: msg,
		Issues: []Issue{{
			Severity:  SeverityInfo,
			Message:   msg,
			BackendID: backendID,
		}},
		Score:    0,
		Metadata: map[string]string{"backend": backendID, "reason": "unavailable"},
	}
}

// TimeoutResult builds the error-shaped ReviewResult used when an analyzer
// subprocess or HTTP poll exceeds its configured budget: severity
// error, never fatal to the enclosing control loop.
func TimeoutResult(req ReviewRequest, backendID string, budget time.Duration) ReviewResult {
	msg := "analyzer back end " + backendID + " timed out after " + budget.String()
	return ReviewResult{
		Request:    req,
		ReportText: msg,
		Issues: []Issue{{
			Severity:  SeverityError,
			Message:   msg,
			BackendID: backendID,
		}},
		Score:    0,
		Metadata: map[string]string{"backend": backendID, "reason": "timeout"},
	}
}
