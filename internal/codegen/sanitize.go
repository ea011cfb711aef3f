package codegen

import (
	"regexp"
	"strings"

	"github.com/arkforge/codegen-rag/internal/llm"
)

var (
	fencedCodeRe = regexp.MustCompile("(?s)```(?:arkts|typescript|ets|ts)?\\s*\\n(.*?)```")

	firstCodeLineRe = regexp.MustCompile(`(?m)^\s*(import\s+|@Entry\b|@Component\b|@Observed\b|@Builder\b)`)

	docMarkerRe = regexp.MustCompile(`(?m)^\s*(?:[-*]\s|#{1,6}\s|\d+\.\s).*$|^\s*` + "```" + `.*$`)
	// colonHeadingRe matches a leading label line ending in a colon whose
	// content includes non-ASCII script characters.
	colonHeadingRe = regexp.MustCompile(`(?m)^[^\x00-\x7F]+.*:\s*$`)

	nonASCIIRe = regexp.MustCompile(`[^\x00-\x7F]+`)

	validationRe = regexp.MustCompile(`\bimport\s+|@Entry\b|@Component\b|\bstruct\b|\bbuild\s*\(\s*\)`)
)

// Sanitize applies the full output-sanitation pipeline to a raw
// LLM response. It returns GenerationError (never a template) when no valid
// code body can be located.
func Sanitize(raw, path string) (string, error) {
	text := llm.StripReasoningTags(raw)

	if m := fencedCodeRe.FindStringSubmatch(text); m != nil {
		text = m[1]
	} else if loc := firstCodeLineRe.FindStringIndex(text); loc != nil {
		text = text[loc[0]:]
	}

	text = stripDocumentationLines(text)
	text = stripNonASCIIStringLiterals(text)
	text = strings.TrimSpace(text)

	if !validationRe.MatchString(text) {
		return "", &GenerationError{Path: path, Reason: "no import/@Entry/@Component/struct/build() marker found in sanitized output"}
	}
	return text, nil
}

func stripDocumentationLines(text string) string {
	lines := strings.Split(text, "\n")
	out := make([]string, 0, len(lines))
	for _, line := range lines {
		if docMarkerRe.MatchString(line) {
			continue
		}
		if colonHeadingRe.MatchString(line) {
			continue
		}
		out = append(out, line)
	}
	return strings.Join(out, "\n")
}

// stripNonASCIIStringLiterals replaces non-ASCII-script content inside
// string literals with a placeholder, and drops lines whose non-ASCII
// content is a trailing line comment.
func stripNonASCIIStringLiterals(text string) string {
	lines := strings.Split(text, "\n")
	out := make([]string, 0, len(lines))
	for _, line := range lines {
		if !nonASCIIRe.MatchString(line) {
			out = append(out, line)
			continue
		}
		if idx := strings.Index(line, "//"); idx >= 0 && nonASCIIRe.MatchString(line[idx:]) {
			code := strings.TrimRight(line[:idx], " \t")
			if code == "" {
				continue
			}
			out = append(out, code)
			continue
		}
		out = append(out, nonASCIIRe.ReplaceAllString(line, "<localized>"))
	}
	return strings.Join(out, "\n")
}
