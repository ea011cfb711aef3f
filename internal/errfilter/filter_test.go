package errfilter

import (
	"testing"

	"github.com/arkforge/codegen-rag/internal/analyzer"
)

func TestFilter_AuthoritativeZeroErrorsClearsAll(t *testing.T) {
	raw := "COMPILE RESULT:PASS {ERROR:0 WARN:0}"
	issues := []analyzer.Issue{{Severity: analyzer.SeverityError, Message: "some stale message"}}
	got := Filter(issues, raw)
	if len(got) != 0 {
		t.Fatalf("expected empty result when authoritative count is 0, got %+v", got)
	}
}

func TestFilter_DropsSuccessAndStatsLines(t *testing.T) {
	issues := []analyzer.Issue{
		{Severity: analyzer.SeverityInfo, Message: "BUILD SUCCESSFUL"},
		{Severity: analyzer.SeverityInfo, Message: "Defects: 0"},
		{Severity: analyzer.SeverityError, Message: "cannot find module 'foo'"},
	}
	got := Filter(issues, "")
	if len(got) != 1 || got[0].Message != "cannot find module 'foo'" {
		t.Fatalf("expected only the real error to survive, got %+v", got)
	}
}

func TestFilter_DropsNonErrorWarningPattern(t *testing.T) {
	issues := []analyzer.Issue{
		{Severity: analyzer.SeverityWarning, Message: "unused variable warning"},
		{Severity: analyzer.SeverityError, Message: "unexpected token"},
	}
	got := Filter(issues, "")
	if len(got) != 1 || got[0].Message != "unexpected token" {
		t.Fatalf("expected warning-pattern entry dropped, got %+v", got)
	}
}

func TestFilter_KeepsWarningPatternIfSeverityIsLiterallyError(t *testing.T) {
	issues := []analyzer.Issue{
		{Severity: analyzer.SeverityError, Message: "deprecation warning treated as error"},
	}
	got := Filter(issues, "")
	if len(got) != 1 {
		t.Fatalf("expected the error-severity entry to survive despite matching the warning pattern, got %+v", got)
	}
}

func TestFilter_SafetyNetRetainsFirstThree(t *testing.T) {
	raw := "COMPILE RESULT:FAIL {ERROR:2 WARN:0}"
	issues := []analyzer.Issue{
		{Severity: analyzer.SeverityWarning, Message: "warning one"},
		{Severity: analyzer.SeverityWarning, Message: "warning two"},
		{Severity: analyzer.SeverityWarning, Message: "warning three"},
		{Severity: analyzer.SeverityWarning, Message: "warning four"},
		{Severity: analyzer.SeverityWarning, Message: "warning five"},
	}
	got := Filter(issues, raw)
	if len(got) != 2 {
		t.Fatalf("expected safety net truncated to authoritative count 2, got %d: %+v", len(got), got)
	}
	if got[0].Message != "warning one" || got[1].Message != "warning two" {
		t.Fatalf("expected first entries retained in order, got %+v", got)
	}
}

func TestFilter_NeverErasesAllWhenNoneMatchAndNoAuthoritativeCount(t *testing.T) {
	issues := []analyzer.Issue{
		{Severity: analyzer.SeverityWarning, Message: "strange warning text"},
		{Severity: analyzer.SeverityWarning, Message: "another warning"},
	}
	got := Filter(issues, "")
	if len(got) != 2 {
		t.Fatalf("expected safety net to retain all when fewer than three existed, got %+v", got)
	}
}

func TestAuthoritativeErrorCount_NativeLinter(t *testing.T) {
	count, ok := AuthoritativeErrorCount("Defects: 3 Errors: 2 Warns: 1")
	if !ok || count != 2 {
		t.Fatalf("expected count 2, ok true, got %d %v", count, ok)
	}
}

func TestAuthoritativeErrorCount_Absent(t *testing.T) {
	_, ok := AuthoritativeErrorCount("nothing structured here")
	if ok {
		t.Fatalf("expected no authoritative count")
	}
}

func TestClassify_SyntaxError(t *testing.T) {
	is := analyzer.Issue{Severity: analyzer.SeverityError, Message: "syntax error: unexpected token '}'", FilePath: "unknown"}
	ea := Classify(is, "e1")
	if ea.Type != ErrorSyntax {
		t.Fatalf("expected syntax type, got %s", ea.Type)
	}
	if ea.Strategy.Approach != "reparse-and-correct" {
		t.Fatalf("unexpected strategy: %+v", ea.Strategy)
	}
}

func TestClassify_TargetInference_Resource(t *testing.T) {
	is := analyzer.Issue{Message: "missing resource entry in string.json", FilePath: ""}
	ea := Classify(is, "e2")
	if ea.TargetFile != resourceStringsFile {
		t.Fatalf("expected resource file inferred, got %s", ea.TargetFile)
	}
}

func TestClassify_TargetInference_PreservesProjectRelativePath(t *testing.T) {
	is := analyzer.Issue{Message: "type mismatch", FilePath: "entry/src/main/ets/pages/Detail.ets"}
	ea := Classify(is, "e3")
	if ea.TargetFile != "entry/src/main/ets/pages/Detail.ets" {
		t.Fatalf("expected existing project-relative path preserved, got %s", ea.TargetFile)
	}
}

func TestClassify_PriorityScoreOrdering(t *testing.T) {
	compileErr := Classify(analyzer.Issue{Severity: analyzer.SeverityError, Message: "compilation failed: fatal"}, "e4")
	unknownLow := Classify(analyzer.Issue{Severity: analyzer.SeverityInfo, Message: "something odd happened"}, "e5")
	if compileErr.PriorityScore <= unknownLow.PriorityScore {
		t.Fatalf("expected compilation/critical priority to outrank unknown/low: %d vs %d", compileErr.PriorityScore, unknownLow.PriorityScore)
	}
}
