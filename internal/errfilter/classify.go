package errfilter

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/arkforge/codegen-rag/internal/analyzer"
	"github.com/arkforge/codegen-rag/internal/validate"
)

// ErrorType enumerates the canonical error-type buckets.
type ErrorType string

const (
	ErrorSyntax      ErrorType = "syntax"
	ErrorImport      ErrorType = "import"
	ErrorResource    ErrorType = "resource"
	ErrorCompilation ErrorType = "compilation"
	ErrorType_Type   ErrorType = "type"
	ErrorUnknown     ErrorType = "unknown"
)

// Priority enumerates severity buckets used to order fix rounds.
type Priority string

const (
	PriorityCritical Priority = "critical"
	PriorityHigh     Priority = "high"
	PriorityMedium   Priority = "medium"
	PriorityLow      Priority = "low"
)

// FixStrategy is a fixed record looked up per ErrorType.
type FixStrategy struct {
	Approach    string
	CanAutoFix  bool
	PriorityTag string
}

// ErrorAnalysis is the classifier's output record for one issue.
type ErrorAnalysis struct {
	ErrorID           string
	OriginalMessage   string
	TargetFile        string
	RootCause         string
	LocationHint      string
	FixDescription    string
	SearchKeywords    []string
	Type              ErrorType
	Severity          Priority
	Strategy          FixStrategy
	PriorityScore     int
}

var (
	syntaxRe      = regexp.MustCompile(`(?i)\b(syntax error|unexpected token|expected .* but got|parse error|missing semicolon|unclosed)\b`)
	importRe      = regexp.MustCompile(`(?i)\b(cannot find module|unresolved import|module not found|import .* not found|no such module)\b`)
	resourceRe    = regexp.MustCompile(`(?i)\b(resource|string\.json|element|drawable|media resource)\b`)
	typeRe        = regexp.MustCompile(`(?i)\b(type mismatch|is not assignable to type|incompatible types|cannot convert|undefined property)\b`)
	compilationRe = regexp.MustCompile(`(?i)\b(compilation failed|build failed|compile error|ETS:ERROR)\b`)

	critRe   = regexp.MustCompile(`(?i)\b(fatal|blocker|critical)\b`)
	highRe   = regexp.MustCompile(`(?i)\b(error)\b`)
	mediumRe = regexp.MustCompile(`(?i)\b(major|warn(ing)?)\b`)

	resourceStringsFile = "entry/src/main/resources/base/element/string.json"
	moduleManifestFile  = "entry/src/main/module.json5"
	entryPageFile       = "entry/src/main/ets/pages/Index.ets"
)

var fixStrategies = map[ErrorType]FixStrategy{
	ErrorSyntax:      {Approach: "reparse-and-correct", CanAutoFix: true, PriorityTag: "high"},
	ErrorImport:      {Approach: "resolve-or-add-import", CanAutoFix: true, PriorityTag: "high"},
	ErrorResource:    {Approach: "add-or-correct-resource-entry", CanAutoFix: true, PriorityTag: "medium"},
	ErrorCompilation: {Approach: "full-file-regeneration", CanAutoFix: false, PriorityTag: "critical"},
	ErrorType_Type:   {Approach: "fix-type-annotation", CanAutoFix: true, PriorityTag: "medium"},
	ErrorUnknown:     {Approach: "manual-review", CanAutoFix: false, PriorityTag: "low"},
}

var typeWeight = map[ErrorType]int{
	ErrorCompilation: 40,
	ErrorSyntax:      30,
	ErrorImport:      25,
	ErrorType_Type:   20,
	ErrorResource:    15,
	ErrorUnknown:     5,
}

var severityWeight = map[Priority]int{
	PriorityCritical: 40,
	PriorityHigh:     30,
	PriorityMedium:   20,
	PriorityLow:      10,
}

// Classify produces an ErrorAnalysis for a single surviving Issue.
func Classify(is analyzer.Issue, id string) ErrorAnalysis {
	et := classifyType(is.Message)
	sev := classifySeverity(is.Message, is.Severity)
	strategy := fixStrategies[et]

	ea := ErrorAnalysis{
		ErrorID:         id,
		OriginalMessage: is.Message,
		TargetFile:      is.FilePath,
		RootCause:       deriveRootCause(et, is.Message),
		LocationHint:    locationHint(is),
		FixDescription:  "Apply " + strategy.Approach + " for a " + string(et) + " issue",
		SearchKeywords:  searchKeywords(is.Message),
		Type:            et,
		Severity:        sev,
		Strategy:        strategy,
	}
	ea.PriorityScore = typeWeight[et] + severityWeight[sev]
	ea.TargetFile = InferTargetFile(is.Message, is.FilePath)
	return ea
}

func classifyType(msg string) ErrorType {
	switch {
	case syntaxRe.MatchString(msg):
		return ErrorSyntax
	case importRe.MatchString(msg):
		return ErrorImport
	case resourceRe.MatchString(msg):
		return ErrorResource
	case typeRe.MatchString(msg):
		return ErrorType_Type
	case compilationRe.MatchString(msg):
		return ErrorCompilation
	default:
		return ErrorUnknown
	}
}

func classifySeverity(msg string, sev analyzer.Severity) Priority {
	switch {
	case critRe.MatchString(msg):
		return PriorityCritical
	case sev == analyzer.SeverityError || highRe.MatchString(msg):
		return PriorityHigh
	case mediumRe.MatchString(msg):
		return PriorityMedium
	default:
		return PriorityLow
	}
}

func deriveRootCause(et ErrorType, msg string) string {
	return strings.TrimSpace(strings.SplitN(msg, "\n", 2)[0])
}

func locationHint(is analyzer.Issue) string {
	if is.Line > 0 {
		return fmtLineCol(is.Line, is.Column)
	}
	return ""
}

func fmtLineCol(line, col int) string {
	if col > 0 {
		return strconv.Itoa(line) + ":" + strconv.Itoa(col)
	}
	return strconv.Itoa(line)
}

func searchKeywords(msg string) []string {
	words := strings.FieldsFunc(msg, func(r rune) bool {
		return !(r >= 'a' && r <= 'z') && !(r >= 'A' && r <= 'Z') && !(r >= '0' && r <= '9')
	})
	out := make([]string, 0, 5)
	seen := map[string]struct{}{}
	for _, w := range words {
		lw := strings.ToLower(w)
		if len(lw) < 4 {
			continue
		}
		if _, ok := seen[lw]; ok {
			continue
		}
		seen[lw] = struct{}{}
		out = append(out, lw)
		if len(out) >= 5 {
			break
		}
	}
	return out
}

// InferTargetFile assigns a project-relative file path to an issue whose raw
// form lacks one.
func InferTargetFile(message, rawPath string) string {
	p := strings.TrimSpace(rawPath)
	if p != "" && !strings.EqualFold(p, "unknown") && strings.HasPrefix(p, "entry/") && validate.ProjectRelative(p) {
		return p
	}
	lower := strings.ToLower(message)
	switch {
	case strings.Contains(lower, "resource") || strings.Contains(lower, "element") || strings.Contains(lower, "string.json"):
		return resourceStringsFile
	case strings.Contains(lower, "module.json5") || strings.Contains(lower, "manifest"):
		return moduleManifestFile
	case strings.Contains(lower, "build") || strings.Contains(lower, "compil"):
		return entryPageFile
	default:
		return entryPageFile
	}
}
