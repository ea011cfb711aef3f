package llm

import (
	"errors"
	"regexp"
	"strconv"
	"strings"
)

// ErrParse is returned when ParseIntListLiteral exhausts every fallback tier.
var ErrParse = errors.New("llm: could not parse literal")

var (
	reasoningOpen  = regexp.MustCompile(`(?is)<(think|reasoning|scratchpad)>`)
	reasoningClose = regexp.MustCompile(`(?is)</(think|reasoning|scratchpad)>`)
	fencedBlockRe  = regexp.MustCompile("(?s)```[a-zA-Z0-9_-]*\\s*(.*?)```")
	bracketedRe    = regexp.MustCompile(`(?s)(\[[^][]*(?:\[[^][]*][^][]*)*]|\{[^{}]*(?:\{[^{}]*}[^{}]*)*})`)
	intRunRe       = regexp.MustCompile(`-?\d+`)
)

// StripReasoningTags discards everything up to and including the first
// matched closing reasoning delimiter, provided a matching opening delimiter
// was seen first. Text without a matched pair is returned unchanged.
func StripReasoningTags(text string) string {
	openLoc := reasoningOpen.FindStringIndex(text)
	if openLoc == nil {
		return text
	}
	closeLoc := reasoningClose.FindStringIndex(text[openLoc[0]:])
	if closeLoc == nil {
		return text
	}
	cut := openLoc[0] + closeLoc[1]
	return strings.TrimSpace(text[cut:])
}

// ParseIntListLiteral interprets text as a Python-style list/dict literal of
// integers, trying tiers in order:
//  1. unwrap a fenced code block if one surrounds the value,
//  2. else greedy-match the first top-level [...] or {...} substring,
//  3. else scan line by line for a line that starts with '[' and ends with ']',
//  4. else extract all integer runs in the text.
//
// Only when every tier fails does this return ErrParse.
func ParseIntListLiteral(text string) ([]int, error) {
	candidates := []string{}

	if m := fencedBlockRe.FindStringSubmatch(text); m != nil {
		candidates = append(candidates, strings.TrimSpace(m[1]))
	}
	if m := bracketedRe.FindString(text); m != "" {
		candidates = append(candidates, m)
	}
	for _, line := range strings.Split(text, "\n") {
		l := strings.TrimSpace(line)
		if strings.HasPrefix(l, "[") && strings.HasSuffix(l, "]") {
			candidates = append(candidates, l)
		}
	}

	for _, c := range candidates {
		if ints, ok := extractIntsStrict(c); ok {
			return ints, nil
		}
	}

	// Final fallback: scan the whole text for integer runs.
	if ints := extractAllInts(text); len(ints) > 0 {
		return ints, nil
	}

	return nil, ErrParse
}

// extractIntsStrict requires the candidate to look like a list/dict literal
// (contains brackets/braces) before extracting the integers inside it.
func extractIntsStrict(s string) ([]int, bool) {
	if !strings.ContainsAny(s, "[]{}") {
		return nil, false
	}
	ints := extractAllInts(s)
	if len(ints) == 0 {
		return nil, false
	}
	return ints, true
}

func extractAllInts(s string) []int {
	matches := intRunRe.FindAllString(s, -1)
	out := make([]int, 0, len(matches))
	for _, m := range matches {
		n, err := strconv.Atoi(m)
		if err != nil {
			continue
		}
		out = append(out, n)
	}
	return out
}
