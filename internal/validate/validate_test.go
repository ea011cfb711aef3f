package validate

import (
	"errors"
	"testing"

	"github.com/arkforge/codegen-rag/internal/analyzer"
)

func TestReviewResultAcceptsCleanResult(t *testing.T) {
	res := analyzer.ReviewResult{Score: 100}
	if err := ReviewResult(res); err != nil {
		t.Fatalf("clean result rejected: %v", err)
	}
}

func TestReviewResultRejectsScoreOutOfRange(t *testing.T) {
	if err := ReviewResult(analyzer.ReviewResult{Score: 101}); !errors.Is(err, ErrScoreOutOfRange) {
		t.Fatalf("expected ErrScoreOutOfRange, got %v", err)
	}
	if err := ReviewResult(analyzer.ReviewResult{Score: -1}); !errors.Is(err, ErrScoreOutOfRange) {
		t.Fatalf("expected ErrScoreOutOfRange, got %v", err)
	}
}

func TestReviewResultRejectsMissingProvenance(t *testing.T) {
	res := analyzer.ReviewResult{
		Score:  90,
		Issues: []analyzer.Issue{{Severity: analyzer.SeverityError, Message: "boom"}},
	}
	if err := ReviewResult(res); err == nil {
		t.Fatal("issue without back-end id must be rejected")
	}
}

func TestReviewResultRejectsNonCanonicalSeverity(t *testing.T) {
	res := analyzer.ReviewResult{
		Score:  90,
		Issues: []analyzer.Issue{{Severity: "BLOCKER", Message: "boom", BackendID: "server"}},
	}
	if err := ReviewResult(res); err == nil {
		t.Fatal("non-canonical severity must be rejected")
	}
}

func TestReviewResultAllowsDegradedFallbacks(t *testing.T) {
	res := analyzer.ReviewResult{
		Score:    0,
		Metadata: map[string]string{"reason": "unavailable"},
	}
	if err := ReviewResult(res); err != nil {
		t.Fatalf("degraded fallback rejected: %v", err)
	}
}

func TestProjectRelative(t *testing.T) {
	cases := map[string]bool{
		"entry/src/main/ets/pages/Index.ets": true,
		"/etc/passwd":                        false,
		"entry/../../escape":                 false,
		"":                                   false,
		"entry\\windows\\path":               false,
	}
	for path, want := range cases {
		if got := ProjectRelative(path); got != want {
			t.Fatalf("ProjectRelative(%q) = %v, want %v", path, got, want)
		}
	}
}
