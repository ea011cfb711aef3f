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
)

// NativeAnalyzer is a native C/C++ static analyzer back end,
// invoked as an external CLI. Its per-tool timeout defaults to
// a wider bound than the lint tools since native analysis is
// typically slower than the lint-style tools.
type NativeAnalyzer struct {
	Command string
	Args    []string
	Timeout time.Duration
}

var nativeExtByLang = map[Language]string{
	LangC:   ".c",
	LangCPP: ".cpp",
}

// nativeIssueRe matches lines like:
//
//	file.cpp:42:9: error: use of undeclared identifier 'x' [clang-diagnostic-error]
var nativeIssueRe = regexp.MustCompile(`(?i)^.+?:(\d+):(\d+):\s*(error|warning|note|info)\s*:\s*(.+?)(?:\s*\[([\w.\-]+)\])?$`)

func (a *NativeAnalyzer) ID() string { return "native" }

func (a *NativeAnalyzer) IsAvailable(ctx context.Context) bool {
	if strings.TrimSpace(a.Command) == "" {
		return false
	}
	_, err := exec.LookPath(a.Command)
	return err == nil
}

func (a *NativeAnalyzer) SupportsLanguage(lang Language) bool {
	_, ok := nativeExtByLang[lang]
	return ok
}

func (a *NativeAnalyzer) Review(ctx context.Context, req ReviewRequest) (ReviewResult, error) {
	start := time.Now()
	if !a.SupportsLanguage(req.Language) {
		return NotSupportedResult(req, a.ID()), nil
	}
	if !a.IsAvailable(ctx) {
		return UnavailableResult(req, a.ID(), nil), nil
	}

	timeout := a.Timeout
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	dir, err := os.MkdirTemp("", "native-analyzer-*")
	if err != nil {
		return UnavailableResult(req, a.ID(), err), nil
	}
	defer os.RemoveAll(dir)

	target := filepath.Join(dir, "candidate"+nativeExtByLang[req.Language])
	if err := os.WriteFile(target, []byte(req.Code), 0o644); err != nil {
		return UnavailableResult(req, a.ID(), err), nil
	}

	args := append(append([]string{}, a.Args...), target)
	cmd := exec.CommandContext(runCtx, a.Command, args...)
	out, _ := cmd.CombinedOutput()
	elapsed := time.Since(start)

	if runCtx.Err() == context.DeadlineExceeded {
		res := TimeoutResult(req, a.ID(), timeout)
		res.Elapsed = elapsed
		return res, nil
	}

	report := string(out)
	issues := parseNativeOutput(report, a.ID())

	return ReviewResult{
		Request:    req,
		ReportText: report,
		Issues:     issues,
		Score:      scoreFromIssues(issues),
		Metadata:   map[string]string{"backend": a.ID()},
		Elapsed:    elapsed,
	}, nil
}

func parseNativeOutput(report, backendID string) []Issue {
	var issues []Issue
	sc := bufio.NewScanner(strings.NewReader(report))
	for sc.Scan() {
		m := nativeIssueRe.FindStringSubmatch(sc.Text())
		if m == nil {
			continue
		}
		line, _ := strconv.Atoi(m[1])
		col, _ := strconv.Atoi(m[2])
		issues = append(issues, Issue{
			Severity:  normalizeNativeSeverity(m[3]),
			Message:   strings.TrimSpace(m[4]),
			Line:      line,
			Column:    col,
			RuleID:    m[5],
			BackendID: backendID,
		})
	}
	return issues
}

func normalizeNativeSeverity(tok string) Severity {
	switch strings.ToLower(strings.TrimSpace(tok)) {
	case "error":
		return SeverityError
	case "warning":
		return SeverityWarning
	default:
		return SeverityInfo
	}
}
