// Package errfilter implements the Error Filter & Classifier:
// distinguishing true compiler/analyzer errors from noise, and classifying
// survivors into actionable ErrorAnalysis records.
package errfilter

import (
	"regexp"
	"strings"

	"github.com/arkforge/codegen-rag/internal/analyzer"
)

var (
	// arkCompileRe matches the ArkTS compiler's own summary line, e.g.
	// "COMPILE RESULT:FAIL {ERROR:2 WARN:0}".
	arkCompileRe = regexp.MustCompile(`(?i)COMPILE RESULT\s*:\s*\w+\s*\{\s*ERROR\s*:\s*(\d+)\s+WARN\s*:\s*(\d+)\s*\}`)
	// nativeLintRe matches the native linter's summary line, e.g.
	// "Defects: 2 Errors: 2 Warns: 0".
	nativeLintRe = regexp.MustCompile(`(?i)Defects\s*:\s*\d+\s+Errors\s*:\s*(\d+)\s+Warns\s*:\s*(\d+)`)

	successRe = regexp.MustCompile(`(?i)(BUILD SUCCESSFUL|compilation passed|COMPILE RESULT\s*:\s*PASS)`)
	statsRe   = regexp.MustCompile(`(?i)^\s*(defects|compile result|total (errors|issues))\s*:`)
	warningRe = regexp.MustCompile(`(?i)\bwarn(ing)?\b`)
)

// AuthoritativeErrorCount extracts the analyzer's own reported error count
// from its raw combined output, if present. ok is false when neither known
// summary-line pattern is found.
func AuthoritativeErrorCount(rawOutput string) (count int, ok bool) {
	if m := arkCompileRe.FindStringSubmatch(rawOutput); m != nil {
		return atoiSafe(m[1]), true
	}
	if m := nativeLintRe.FindStringSubmatch(rawOutput); m != nil {
		return atoiSafe(m[1]), true
	}
	return 0, false
}

// Filter removes noise from a raw issue list:
//  1. if the raw output carries an authoritative error count of zero, return empty;
//  2. drop success/statistics/non-error-severity-warning lines;
//  3. if that would erase every entry although some existed, retain the first
//     three as a safety net;
//  4. if the authoritative count is known and survivors exceed it, truncate.
func Filter(issues []analyzer.Issue, rawOutput string) []analyzer.Issue {
	count, haveCount := AuthoritativeErrorCount(rawOutput)
	if haveCount && count == 0 {
		return nil
	}

	survivors := make([]analyzer.Issue, 0, len(issues))
	for _, is := range issues {
		if isNoise(is) {
			continue
		}
		survivors = append(survivors, is)
	}

	if len(survivors) == 0 && len(issues) > 0 {
		n := 3
		if n > len(issues) {
			n = len(issues)
		}
		survivors = append(survivors, issues[:n]...)
	}

	if haveCount && len(survivors) > count {
		survivors = survivors[:count]
	}
	return survivors
}

func isNoise(is analyzer.Issue) bool {
	if successRe.MatchString(is.Message) || statsRe.MatchString(is.Message) {
		return true
	}
	if warningRe.MatchString(is.Message) && !strings.EqualFold(string(is.Severity), string(analyzer.SeverityError)) {
		return true
	}
	return false
}

func atoiSafe(s string) int {
	n := 0
	for _, ch := range s {
		if ch < '0' || ch > '9' {
			return n
		}
		n = n*10 + int(ch-'0')
	}
	return n
}
