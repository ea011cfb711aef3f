// Package report renders a completed control-loop run as a Markdown report,
// a machine-readable JSON manifest sidecar, and an optional PDF.
package report

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/arkforge/codegen-rag/internal/loop"
)

// fileEntry is a compact record of one generated file.
type fileEntry struct {
	Path   string `json:"path"`
	SHA256 string `json:"sha256"`
	Chars  int    `json:"chars"`
}

// issueEntry mirrors the normalized issue shape for the sidecar manifest.
type issueEntry struct {
	Severity string `json:"severity"`
	Message  string `json:"message"`
	FilePath string `json:"file_path"`
	Line     int    `json:"line"`
	Backend  string `json:"backend"`
}

// Meta captures high-level run details that aid reproducibility.
type Meta struct {
	Model       string    `json:"model"`
	LLMBaseURL  string    `json:"llm_base_url"`
	Attempts    int       `json:"attempts"`
	Resolved    bool      `json:"resolved"`
	TokenUsage  int       `json:"token_usage"`
	GeneratedAt time.Time `json:"generated_at"`
}

func computeSHA256Hex(text string) string {
	h := sha256.Sum256([]byte(text))
	return hex.EncodeToString(h[:])
}

// RenderMarkdown produces the human-readable run report.
func RenderMarkdown(res loop.Result, meta Meta) string {
	var b strings.Builder
	b.WriteString("# Code generation run report\n\n")
	b.WriteString("Requirement:\n\n")
	b.WriteString("> ")
	b.WriteString(strings.ReplaceAll(strings.TrimSpace(res.Requirement), "\n", "\n> "))
	b.WriteString("\n\n")

	if res.Resolved {
		b.WriteString(fmt.Sprintf("**Result: resolved** after %d fix attempt(s) in %s.\n\n", res.Attempts, res.Elapsed.Round(time.Millisecond)))
	} else {
		b.WriteString(fmt.Sprintf("**Result: unresolved** after %d attempt(s) in %s.\n\n", res.Attempts, res.Elapsed.Round(time.Millisecond)))
		if res.Diagnostic != "" {
			b.WriteString("Last diagnostic: ")
			b.WriteString(res.Diagnostic)
			b.WriteString("\n\n")
		}
	}

	b.WriteString("## Generated files\n\n")
	for _, e := range fileEntries(res.Files) {
		b.WriteString("- `")
		b.WriteString(e.Path)
		b.WriteString("` — sha256=")
		b.WriteString(e.SHA256)
		b.WriteString("; chars=")
		b.WriteString(strconv.Itoa(e.Chars))
		b.WriteString("\n")
	}
	if len(res.Files) == 0 {
		b.WriteString("(none)\n")
	}

	if res.Analysis.TotalErrors > 0 {
		b.WriteString("\n## Fix analysis\n\n")
		b.WriteString("- Errors analyzed: ")
		b.WriteString(strconv.Itoa(res.Analysis.TotalErrors))
		b.WriteString("\n- Auto-fixable: ")
		b.WriteString(strconv.Itoa(res.Analysis.AutoFixable))
		b.WriteString("\n- Manual review needed: ")
		b.WriteString(strconv.Itoa(res.Analysis.ManualReviewNeeded))
		if counts := res.Analysis.TypeCounts(); len(counts) > 0 {
			b.WriteString("\n- Error types: ")
			b.WriteString(strings.Join(counts, ", "))
		}
		b.WriteString("\n- Recommendation: ")
		b.WriteString(res.Analysis.Recommendation)
		b.WriteString("\n")
	}

	if len(res.Issues) > 0 {
		b.WriteString("\n## Remaining issues\n\n")
		for i, is := range res.Issues {
			b.WriteString(strconv.Itoa(i + 1))
			b.WriteString(". [")
			b.WriteString(string(is.Severity))
			b.WriteString("] ")
			b.WriteString(is.Message)
			if is.FilePath != "" {
				b.WriteString(" (")
				b.WriteString(is.FilePath)
				if is.Line > 0 {
					b.WriteString(":")
					b.WriteString(strconv.Itoa(is.Line))
				}
				b.WriteString(")")
			}
			b.WriteString("\n")
		}
	}

	b.WriteString("\n## Manifest\n\n")
	b.WriteString("- Model: ")
	b.WriteString(strings.TrimSpace(meta.Model))
	b.WriteString("\n- LLM base URL: ")
	b.WriteString(strings.TrimSpace(meta.LLMBaseURL))
	b.WriteString("\n- Fix attempts: ")
	b.WriteString(strconv.Itoa(res.Attempts))
	b.WriteString("\n- Token usage: ")
	b.WriteString(strconv.Itoa(res.TokenUsage))
	b.WriteString("\n- Generated: ")
	b.WriteString(meta.GeneratedAt.UTC().Format(time.RFC3339))
	b.WriteString("\n")
	return b.String()
}

// MarshalManifestJSON encodes a machine-readable sidecar manifest.
func MarshalManifestJSON(res loop.Result, meta Meta) ([]byte, error) {
	issues := make([]issueEntry, 0, len(res.Issues))
	for _, is := range res.Issues {
		issues = append(issues, issueEntry{
			Severity: string(is.Severity),
			Message:  is.Message,
			FilePath: is.FilePath,
			Line:     is.Line,
			Backend:  is.BackendID,
		})
	}
	type analysisEntry struct {
		TotalErrors    int    `json:"total_errors"`
		AutoFixable    int    `json:"auto_fixable"`
		ManualReview   int    `json:"manual_review_needed"`
		Recommendation string `json:"recommendation"`
	}
	payload := struct {
		Meta     Meta          `json:"meta"`
		Files    []fileEntry   `json:"files"`
		Issues   []issueEntry  `json:"issues"`
		Analysis analysisEntry `json:"analysis"`
	}{
		Meta:   meta,
		Files:  fileEntries(res.Files),
		Issues: issues,
		Analysis: analysisEntry{
			TotalErrors:    res.Analysis.TotalErrors,
			AutoFixable:    res.Analysis.AutoFixable,
			ManualReview:   res.Analysis.ManualReviewNeeded,
			Recommendation: res.Analysis.Recommendation,
		},
	}
	return json.MarshalIndent(payload, "", "  ")
}

// ManifestSidecarPath returns a sidecar JSON path next to the output Markdown.
func ManifestSidecarPath(outputPath string) string {
	return outputPath + ".manifest.json"
}

func fileEntries(files map[string]string) []fileEntry {
	paths := make([]string, 0, len(files))
	for p := range files {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	out := make([]fileEntry, 0, len(paths))
	for _, p := range paths {
		content := files[p]
		out = append(out, fileEntry{Path: p, SHA256: computeSHA256Hex(content), Chars: len(content)})
	}
	return out
}
