package analyzer

import (
	"bufio"
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

// LintAnalyzer is a lint-style back end for ArkTS,
// TypeScript and JavaScript, invoked as an external CLI over a code file
// written to a temp directory.
type LintAnalyzer struct {
	// Command is the CLI executable, e.g. "ark-lint". Empty means the back
	// end reports itself unavailable.
	Command string
	// Args are extra flags appended before the target file path.
	Args []string
	// Timeout bounds a single invocation; zero uses a 30s default.
	Timeout time.Duration
}

const lintExt = ".ets"

var lintIssueRe = regexp.MustCompile(`(?i)^\s*(?:\[(ERROR|WARN|WARNING|INFO)\]|(ERROR|WARN|WARNING|INFO))\s*[:\-]?\s*(.+?)(?:\s+at\s+line\s+(\d+)(?:,?\s*col(?:umn)?\s+(\d+))?)?$`)

func (a *LintAnalyzer) ID() string { return "lint" }

func (a *LintAnalyzer) IsAvailable(ctx context.Context) bool {
	if strings.TrimSpace(a.Command) == "" {
		return false
	}
	_, err := exec.LookPath(a.Command)
	return err == nil
}

func (a *LintAnalyzer) SupportsLanguage(lang Language) bool {
	switch lang {
	case LangArkTS, LangTypeScript, LangJavaScript:
		return true
	default:
		return false
	}
}

func (a *LintAnalyzer) Review(ctx context.Context, req ReviewRequest) (ReviewResult, error) {
	start := time.Now()
	if !a.SupportsLanguage(req.Language) {
		return NotSupportedResult(req, a.ID()), nil
	}
	if !a.IsAvailable(ctx) {
		return UnavailableResult(req, a.ID(), nil), nil
	}

	timeout := a.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	dir, err := os.MkdirTemp("", "lint-analyzer-*")
	if err != nil {
		return UnavailableResult(req, a.ID(), err), nil
	}
	defer os.RemoveAll(dir)

	target := filepath.Join(dir, "candidate"+lintExt)
	if err := os.WriteFile(target, []byte(req.Code), 0o644); err != nil {
		return UnavailableResult(req, a.ID(), err), nil
	}

	args := append(append([]string{}, a.Args...), target)
	cmd := exec.CommandContext(runCtx, a.Command, args...)
	out, runErr := cmd.CombinedOutput()
	elapsed := time.Since(start)

	if runCtx.Err() == context.DeadlineExceeded {
		res := TimeoutResult(req, a.ID(), timeout)
		res.Elapsed = elapsed
		return res, nil
	}

	report := string(out)
	issues := parseLintOutput(report, a.ID())
	if runErr != nil && len(issues) == 0 {
		log.Debug().Err(runErr).Str("backend", a.ID()).Msg("lint analyzer exited non-zero with no parsed issues")
	}

	return ReviewResult{
		Request:    req,
		ReportText: report,
		Issues:     issues,
		Score:      scoreFromIssues(issues),
		Metadata:   map[string]string{"backend": a.ID()},
		Elapsed:    elapsed,
	}, nil
}

func parseLintOutput(report, backendID string) []Issue {
	var issues []Issue
	sc := bufio.NewScanner(strings.NewReader(report))
	for sc.Scan() {
		line := sc.Text()
		m := lintIssueRe.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		sevToken := m[1]
		if sevToken == "" {
			sevToken = m[2]
		}
		issues = append(issues, Issue{
			Severity:  normalizeLintSeverity(sevToken),
			Message:   strings.TrimSpace(m[3]),
			Line:      atoiOr0(m[4]),
			Column:    atoiOr0(m[5]),
			BackendID: backendID,
		})
	}
	return issues
}

func normalizeLintSeverity(tok string) Severity {
	switch strings.ToUpper(strings.TrimSpace(tok)) {
	case "ERROR":
		return SeverityError
	case "WARN", "WARNING":
		return SeverityWarning
	default:
		return SeverityInfo
	}
}

func atoiOr0(s string) int {
	if s == "" {
		return 0
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0
	}
	return n
}

// scoreFromIssues applies the generic severity-weighted decrement used by
// back ends that have no published per-category weight table:
// error -10, warning -4, info 0, clamped to [0,100].
func scoreFromIssues(issues []Issue) int {
	score := 100
	for _, is := range issues {
		switch is.Severity {
		case SeverityError:
			score -= 10
		case SeverityWarning:
			score -= 4
		}
	}
	if score < 0 {
		score = 0
	}
	return score
}
