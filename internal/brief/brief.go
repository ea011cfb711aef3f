// Package brief parses the natural-language requirement that drives a
// generation run, canonically read from the target project's README.md.
package brief

import (
	"bufio"
	"regexp"
	"strings"
)

// Requirement represents the distilled generation request parsed from a
// single Markdown input. It intentionally keeps only the fields the rest of
// the pipeline needs.
type Requirement struct {
	// Title is the first heading, used for report labeling.
	Title string
	// Text is the requirement body handed to the planner and generator.
	Text string
	// LayoutHint is an optional "layout: list" style hint line.
	LayoutHint string
	// Raw is the original input for traceability if needed downstream.
	Raw string
}

var (
	headingRe    = regexp.MustCompile(`^\s{0,3}#{1,6}\s+(.+?)\s*$`)
	layoutLineRe = regexp.MustCompile(`(?i)^\s*layout\s*[:\-]\s*(.+?)\s*$`)
)

// Parse parses a Markdown string into a Requirement. The parser is
// deliberately conservative and deterministic: the first heading becomes the
// title, a "layout:" line becomes the hint, and everything that is neither
// becomes the requirement text.
func Parse(input string) Requirement {
	scanner := bufio.NewScanner(strings.NewReader(input))
	scanner.Split(bufio.ScanLines)

	req := Requirement{Raw: input}
	var body []string

	for scanner.Scan() {
		line := scanner.Text()
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			body = append(body, "")
			continue
		}

		if req.Title == "" {
			if m := headingRe.FindStringSubmatch(trimmed); len(m) == 2 {
				req.Title = strings.TrimSpace(stripTrailingPunctuation(m[1]))
				continue
			}
		}
		if req.LayoutHint == "" {
			if m := layoutLineRe.FindStringSubmatch(trimmed); len(m) == 2 {
				req.LayoutHint = strings.TrimSpace(m[1])
				continue
			}
		}
		body = append(body, line)
	}

	req.Text = strings.TrimSpace(strings.Join(body, "\n"))
	if req.Text == "" {
		// A heading-only README still names what to build.
		req.Text = req.Title
	}
	if req.Title == "" {
		req.Title = deriveTitleFromText(req.Text)
	}
	return req
}

func deriveTitleFromText(text string) string {
	for _, line := range strings.Split(text, "\n") {
		s := strings.TrimSpace(line)
		if s == "" {
			continue
		}
		s = strings.NewReplacer("`", "", "*", "").Replace(s)
		s = stripTrailingPunctuation(s)
		if len(s) > 80 {
			s = s[:80]
		}
		return s
	}
	return ""
}

func stripTrailingPunctuation(s string) string {
	return strings.TrimRight(s, " #:-")
}
