package codegen

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"
	"github.com/rs/zerolog/log"

	"github.com/arkforge/codegen-rag/internal/cache"
	"github.com/arkforge/codegen-rag/internal/errfilter"
	"github.com/arkforge/codegen-rag/internal/evidence"
)

// ChatClient abstracts the OpenAI client dependency for testability.
type ChatClient interface {
	CreateChatCompletion(ctx context.Context, request openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// FileErrors groups a file's surviving issues for an error-fixing round.
type FileErrors struct {
	Path     string
	Analyses []errfilter.ErrorAnalysis
	// RawMessages are fallback messages for issues that produced no analysis.
	RawMessages []string
	// RawExcerpts are excerpts of the combined analyzer output, at most three,
	// each truncated before prompting.
	RawExcerpts []string
}

// Agent is the code generation agent. It composes prompts for the two
// task types (initial generation, error fixing) and applies the sanitation
// pipeline to every model response. It never substitutes a template when
// sanitation fails.
type Agent struct {
	Client  ChatClient
	Model   string
	Cache   *cache.LLMCache
	Verbose bool
}

const (
	maxRawExcerptChars   = 500
	maxFixReferenceChars = 150
	maxGenReferenceChars = 1500
	maxRawExcerpts       = 3
)

// GenerateFile produces the content for one planned file from the requirement
// and reference materials. One LLM call per FilePlan.
func (a *Agent) GenerateFile(ctx context.Context, requirement string, plan FilePlan, refs []evidence.Item) (string, error) {
	if a.Client == nil || strings.TrimSpace(a.Model) == "" {
		return "", errors.New("codegen agent not configured")
	}
	system := generationSystemMessage()
	user := buildGenerationPrompt(requirement, plan, refs)
	return a.complete(ctx, system, user, plan.Path)
}

// FixFile rewrites one file using its filtered errors and reference solutions
// from a fresh search.
func (a *Agent) FixFile(ctx context.Context, requirement, current string, errs FileErrors, refs []evidence.Item) (string, error) {
	if a.Client == nil || strings.TrimSpace(a.Model) == "" {
		return "", errors.New("codegen agent not configured")
	}
	system := fixingSystemMessage()
	user := buildFixPrompt(requirement, current, errs, refs)
	return a.complete(ctx, system, user, errs.Path)
}

func (a *Agent) complete(ctx context.Context, system, user, path string) (string, error) {
	// Cache by model+prompt to allow deterministic re-runs, the same way the
	// rest of the pipeline caches LLM responses.
	if a.Cache != nil {
		key := cache.StageKey("codegen", a.Model, system+"\n\n"+user)
		if raw, ok, _ := a.Cache.Get(ctx, key); ok {
			var out struct {
				Code string `json:"code"`
			}
			if err := json.Unmarshal(raw, &out); err == nil && strings.TrimSpace(out.Code) != "" {
				return out.Code, nil
			}
		}
	}
	if a.Verbose {
		log.Debug().Str("stage", "codegen").Str("model", a.Model).Str("path", path).Int("system_len", len(system)).Int("user_len", len(user)).Msg("codegen prompt")
	}

	resp, err := a.Client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: a.Model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: system},
			{Role: openai.ChatMessageRoleUser, Content: user},
		},
		Temperature: 0.1,
		N:           1,
	})
	if err != nil {
		return "", fmt.Errorf("codegen call: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("no choices from model")
	}

	code, err := Sanitize(resp.Choices[0].Message.Content, path)
	if err != nil {
		return "", err
	}

	if a.Cache != nil {
		payload, _ := json.Marshal(map[string]string{"code": code})
		_ = a.Cache.Save(ctx, cache.StageKey("codegen", a.Model, system+"\n\n"+user), payload)
	}
	return code, nil
}

// generationSystemMessage is intentionally terse: the model must output only
// source code, no prose and no fenced-block markers.
func generationSystemMessage() string {
	return "You write complete ArkTS source files for HarmonyOS applications. Output ONLY the file's source code. No explanation, no markdown, no code fences."
}

func fixingSystemMessage() string {
	return "You repair ArkTS source files so they compile. Output ONLY the full corrected file. No explanation, no markdown, no code fences, no non-ASCII text outside string literals."
}

func buildGenerationPrompt(requirement string, plan FilePlan, refs []evidence.Item) string {
	var sb strings.Builder
	sb.WriteString("Requirement:\n")
	sb.WriteString(requirement)
	sb.WriteString("\n\nFile to create: ")
	sb.WriteString(plan.Path)
	sb.WriteString(" (")
	sb.WriteString(string(plan.Kind))
	sb.WriteString(")")
	if plan.Purpose != "" {
		sb.WriteString("\nPurpose: ")
		sb.WriteString(plan.Purpose)
	}
	if plan.Outline != "" {
		sb.WriteString("\nOutline:\n")
		sb.WriteString(plan.Outline)
	}
	writeReferences(&sb, refs, maxGenReferenceChars)
	return sb.String()
}

func buildFixPrompt(requirement, current string, errs FileErrors, refs []evidence.Item) string {
	var sb strings.Builder
	sb.WriteString("Requirement:\n")
	sb.WriteString(requirement)
	sb.WriteString("\n\nFile: ")
	sb.WriteString(errs.Path)
	sb.WriteString("\nCurrent content:\n")
	sb.WriteString(current)
	sb.WriteString("\n\nErrors to fix:\n")
	n := 1
	for _, ea := range errs.Analyses {
		sb.WriteString(fmt.Sprintf("%d. [%s/%s] %s", n, ea.Type, ea.Severity, ea.OriginalMessage))
		if ea.LocationHint != "" {
			sb.WriteString(" (at ")
			sb.WriteString(ea.LocationHint)
			sb.WriteString(")")
		}
		if ea.FixDescription != "" {
			sb.WriteString("\n   Suggested fix: ")
			sb.WriteString(ea.FixDescription)
		}
		sb.WriteString("\n")
		n++
	}
	for _, msg := range errs.RawMessages {
		sb.WriteString(fmt.Sprintf("%d. %s\n", n, msg))
		n++
	}
	excerpts := errs.RawExcerpts
	if len(excerpts) > maxRawExcerpts {
		excerpts = excerpts[:maxRawExcerpts]
	}
	for _, ex := range excerpts {
		sb.WriteString("Analyzer output excerpt:\n")
		sb.WriteString(truncate(ex, maxRawExcerptChars))
		sb.WriteString("\n")
	}
	writeReferences(&sb, refs, maxFixReferenceChars)
	return sb.String()
}

func writeReferences(sb *strings.Builder, refs []evidence.Item, maxChars int) {
	if len(refs) == 0 {
		return
	}
	sb.WriteString("\nReference solutions:\n")
	for i, it := range refs {
		sb.WriteString(fmt.Sprintf("%d. %s: %s\n", i+1, it.Title, truncate(it.Text, maxChars)))
	}
}

func truncate(s string, max int) string {
	s = strings.TrimSpace(s)
	if len(s) <= max {
		return s
	}
	return s[:max]
}
