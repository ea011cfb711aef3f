// Package planner derives a ProjectPlan — the set of files to generate — from
// a natural-language requirement, using the LLM with a deterministic
// template-profile fallback.
package planner

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"
	"github.com/rs/zerolog/log"

	"github.com/arkforge/codegen-rag/internal/cache"
	"github.com/arkforge/codegen-rag/internal/codegen"
	"github.com/arkforge/codegen-rag/internal/evidence"
	"github.com/arkforge/codegen-rag/internal/llm"
	"github.com/arkforge/codegen-rag/internal/template"
)

// planPayload is the strict JSON contract the model must return.
type planPayload struct {
	Layout string `json:"layout"`
	Files  []struct {
		Path    string `json:"path"`
		Kind    string `json:"kind"`
		Purpose string `json:"purpose"`
		Outline string `json:"outline"`
	} `json:"files"`
}

// ProjectPlanner calls an OpenAI-compatible endpoint and enforces a JSON-only
// contract, merging the result with the matched layout profile's required
// slots.
type ProjectPlanner struct {
	Client  llm.Client
	Model   string
	Cache   *cache.LLMCache
	Verbose bool
	// CacheOnly, when true, returns from cache and fails fast if missing.
	CacheOnly bool
}

func buildSystemMessage() string {
	return "You are a planning assistant for HarmonyOS application generation. Respond with strict JSON only, no narration. " +
		"The JSON schema is {\"layout\": string, \"files\": [{\"path\": string, \"kind\": \"source\"|\"resource\"|\"manifest\", \"purpose\": string, \"outline\": string}]}. " +
		"Paths must be project-relative under entry/. layout is one of: page, list, form."
}

// Plan derives a ProjectPlan for the requirement. If the model returns
// non-JSON or an unusable payload, an error is returned so callers can fall
// back to FallbackPlan.
func (p *ProjectPlanner) Plan(ctx context.Context, requirement string, refs []evidence.Item) (codegen.ProjectPlan, error) {
	if p.Client == nil || p.Model == "" {
		return codegen.ProjectPlan{}, errors.New("planner not configured")
	}

	system := buildSystemMessage()
	user := buildUserPrompt(requirement, refs)
	if p.Cache != nil {
		key := cache.StageKey("planner", p.Model, system+"\n\n"+user)
		if raw, ok, _ := p.Cache.Get(ctx, key); ok {
			var plan codegen.ProjectPlan
			if err := json.Unmarshal(raw, &plan); err == nil && len(plan.Files) > 0 {
				return plan, nil
			}
		}
	}
	if p.CacheOnly {
		return codegen.ProjectPlan{}, errors.New("planner cache-only: not found")
	}
	if p.Verbose {
		// Log prompt skeleton only; avoid logging raw excerpts or sensitive data
		log.Debug().Str("stage", "planner").Str("model", p.Model).Int("system_len", len(system)).Int("user_len", len(user)).Msg("planner prompt")
	}

	resp, err := p.Client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: p.Model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: system},
			{Role: openai.ChatMessageRoleUser, Content: user},
		},
		Temperature: 0.1,
		N:           1,
	})
	if err != nil {
		return codegen.ProjectPlan{}, fmt.Errorf("planner call: %w", err)
	}
	if len(resp.Choices) == 0 {
		return codegen.ProjectPlan{}, errors.New("no choices")
	}

	raw := strings.TrimSpace(llm.StripReasoningTags(resp.Choices[0].Message.Content))
	raw = unwrapJSONFence(raw)
	var payload planPayload
	if err := json.Unmarshal([]byte(raw), &payload); err != nil {
		return codegen.ProjectPlan{}, fmt.Errorf("parse planner json: %w", err)
	}

	plan := codegen.ProjectPlan{Requirement: requirement}
	for _, f := range payload.Files {
		path := sanitizePath(f.Path)
		if path == "" {
			continue
		}
		plan.Files = append(plan.Files, codegen.FilePlan{
			Path:    path,
			Kind:    normalizeKind(f.Kind),
			Purpose: strings.TrimSpace(f.Purpose),
			Outline: strings.TrimSpace(f.Outline),
		})
	}

	layout := payload.Layout
	if layout == "" {
		layout = requirement
	}
	plan.Files = template.MergeRequiredFiles(plan.Files, template.GetProfile(layout))
	if len(plan.Files) == 0 {
		return codegen.ProjectPlan{}, errors.New("insufficient planner output")
	}

	if p.Cache != nil {
		if b, err := json.Marshal(plan); err == nil {
			_ = p.Cache.Save(ctx, cache.StageKey("planner", p.Model, system+"\n\n"+user), b)
		}
	}
	return plan, nil
}

// FallbackPlan produces a deterministic plan from the layout profile matched
// against the requirement text, for when the LLM planner is unavailable or
// returns invalid output.
func FallbackPlan(requirement string) codegen.ProjectPlan {
	profile := template.GetProfile(requirement)
	return codegen.ProjectPlan{
		Requirement: requirement,
		Files:       append([]codegen.FilePlan{}, profile.Files...),
	}
}

func buildUserPrompt(requirement string, refs []evidence.Item) string {
	var sb strings.Builder
	sb.WriteString("Requirement:\n")
	sb.WriteString(requirement)
	if len(refs) > 0 {
		sb.WriteString("\n\nPrecedents from similar applications:\n")
		n := 0
		for _, it := range refs {
			if strings.TrimSpace(it.Text) == "" {
				continue
			}
			sb.WriteString("- ")
			sb.WriteString(it.Title)
			sb.WriteString(": ")
			sb.WriteString(clip(it.Text, 300))
			sb.WriteString("\n")
			n++
			if n >= 5 {
				break
			}
		}
	}
	return sb.String()
}

var jsonFencePrefixes = []string{"```json", "```"}

func unwrapJSONFence(s string) string {
	for _, p := range jsonFencePrefixes {
		if strings.HasPrefix(s, p) {
			s = strings.TrimPrefix(s, p)
			s = strings.TrimSuffix(strings.TrimSpace(s), "```")
			return strings.TrimSpace(s)
		}
	}
	return s
}

// sanitizePath keeps only clean project-relative paths under entry/.
func sanitizePath(p string) string {
	p = strings.TrimSpace(p)
	p = strings.TrimPrefix(p, "./")
	if p == "" || strings.HasPrefix(p, "/") || strings.Contains(p, "..") {
		return ""
	}
	if !strings.HasPrefix(p, "entry/") {
		return ""
	}
	return p
}

func normalizeKind(k string) codegen.FileKind {
	switch strings.ToLower(strings.TrimSpace(k)) {
	case "resource":
		return codegen.KindResource
	case "manifest":
		return codegen.KindManifest
	default:
		return codegen.KindSource
	}
}

func clip(s string, max int) string {
	s = strings.TrimSpace(s)
	if len(s) <= max {
		return s
	}
	return s[:max]
}
