// Package validate checks the structural invariants of review results before
// they are consumed by the control loop: scores stay in range, severities are
// canonical and every issue names the back end that produced it.
package validate

import (
	"errors"
	"fmt"
	"strings"

	"github.com/arkforge/codegen-rag/internal/analyzer"
)

// ErrScoreOutOfRange indicates a review score outside [0,100].
var ErrScoreOutOfRange = errors.New("validate: score out of range")

// ReviewResult validates the invariants every merged review must satisfy.
// A violation is a programming error in a back end or the merge, not a user
// input problem; callers log it rather than failing the run.
func ReviewResult(res analyzer.ReviewResult) error {
	if res.Score < 0 || res.Score > 100 {
		return fmt.Errorf("%w: %d", ErrScoreOutOfRange, res.Score)
	}
	for i, is := range res.Issues {
		if err := issue(is); err != nil {
			return fmt.Errorf("issue %d: %w", i, err)
		}
	}
	if len(res.Issues) == 0 && res.Score != 100 && !isDegradedResult(res) {
		return fmt.Errorf("validate: zero issues but score %d", res.Score)
	}
	return nil
}

func issue(is analyzer.Issue) error {
	switch is.Severity {
	case analyzer.SeverityError, analyzer.SeverityWarning, analyzer.SeverityInfo:
	default:
		return fmt.Errorf("validate: non-canonical severity %q", is.Severity)
	}
	if strings.TrimSpace(is.Message) == "" {
		return errors.New("validate: empty issue message")
	}
	if strings.TrimSpace(is.BackendID) == "" {
		return errors.New("validate: issue missing back-end provenance")
	}
	if is.Line < 0 || is.Column < 0 {
		return errors.New("validate: negative line or column")
	}
	return nil
}

// isDegradedResult recognizes the canonical unavailable/unsupported/timeout
// fallbacks, which legitimately carry score 0 with few or no issues.
func isDegradedResult(res analyzer.ReviewResult) bool {
	switch res.Metadata["reason"] {
	case "unavailable", "unsupported_language", "timeout":
		return true
	}
	return false
}

// ProjectRelative reports whether a path looks like a clean project-relative
// file path: non-empty, no traversal, not absolute.
func ProjectRelative(path string) bool {
	p := strings.TrimSpace(path)
	if p == "" || strings.HasPrefix(p, "/") || strings.Contains(p, "..") {
		return false
	}
	return !strings.Contains(p, "\\")
}
