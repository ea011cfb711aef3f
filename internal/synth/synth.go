// Package synth turns retrieved evidence into prose answers: one call over
// the top local items for local-only search, and one merge call combining a
// local and an online answer for hybrid search.
package synth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"github.com/arkforge/codegen-rag/internal/cache"
	"github.com/arkforge/codegen-rag/internal/evidence"
	"github.com/arkforge/codegen-rag/internal/llm"
)

// ChatClient abstracts the OpenAI client dependency for testability.
type ChatClient interface {
	CreateChatCompletion(ctx context.Context, request openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// Synthesizer calls the LLM to produce answers grounded in retrieved items.
type Synthesizer struct {
	Client  ChatClient
	Model   string
	Cache   *cache.LLMCache
	Verbose bool
	// MaxItems caps how many items are included in the prompt; zero means 8.
	MaxItems int
}

// FromItems answers query using only the given items. It returns an error
// when the model is unreachable or returns nothing.
func (s *Synthesizer) FromItems(ctx context.Context, query string, items []evidence.Item) (string, error) {
	if s == nil || s.Client == nil || strings.TrimSpace(s.Model) == "" {
		return "", errors.New("synthesizer not configured")
	}
	system := "Answer the question using ONLY the provided documents. Be concise and factual. Reference documents by their bracketed index like [1]."
	user := buildItemsPrompt(query, items, s.maxItems())
	return s.complete(ctx, system, user)
}

// MergeAnswers combines a local and an online answer into one response. The
// inputs may be placeholders describing a failed branch; the merge keeps that
// information visible rather than hiding it.
func (s *Synthesizer) MergeAnswers(ctx context.Context, query, localAnswer, onlineAnswer string) (string, error) {
	if s == nil || s.Client == nil || strings.TrimSpace(s.Model) == "" {
		return "", errors.New("synthesizer not configured")
	}
	system := "Merge the two draft answers into one coherent answer to the question. Keep any notes about failed or unavailable sources. Do not invent content absent from both drafts."
	var sb strings.Builder
	sb.WriteString("Question: ")
	sb.WriteString(query)
	sb.WriteString("\n\nLocal answer:\n")
	sb.WriteString(strings.TrimSpace(localAnswer))
	sb.WriteString("\n\nOnline answer:\n")
	sb.WriteString(strings.TrimSpace(onlineAnswer))
	return s.complete(ctx, system, sb.String())
}

func (s *Synthesizer) maxItems() int {
	if s.MaxItems > 0 {
		return s.MaxItems
	}
	return 8
}

func (s *Synthesizer) complete(ctx context.Context, system, user string) (string, error) {
	// Cache by model+prompt to allow deterministic re-runs.
	if s.Cache != nil {
		key := cache.StageKey("synth", s.Model, system+"\n\n"+user)
		if raw, ok, _ := s.Cache.Get(ctx, key); ok {
			var out struct {
				Answer string `json:"answer"`
			}
			if err := json.Unmarshal(raw, &out); err == nil && strings.TrimSpace(out.Answer) != "" {
				return out.Answer, nil
			}
		}
	}

	resp, err := s.Client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: s.Model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: system},
			{Role: openai.ChatMessageRoleUser, Content: user},
		},
		Temperature: 0.1,
		N:           1,
	})
	if err != nil {
		return "", fmt.Errorf("synthesis call: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("no choices from model")
	}
	out := strings.TrimSpace(llm.StripReasoningTags(resp.Choices[0].Message.Content))
	if out == "" {
		return "", errors.New("empty synthesis output")
	}
	if s.Cache != nil {
		payload, _ := json.Marshal(map[string]string{"answer": out})
		_ = s.Cache.Save(ctx, cache.StageKey("synth", s.Model, system+"\n\n"+user), payload)
	}
	return out, nil
}

func buildItemsPrompt(query string, items []evidence.Item, max int) string {
	var sb strings.Builder
	sb.WriteString("Question: ")
	sb.WriteString(query)
	sb.WriteString("\n\nDocuments:\n")
	for i, it := range items {
		if i >= max {
			break
		}
		sb.WriteString("[")
		sb.WriteString(strconv.Itoa(i + 1))
		sb.WriteString("] ")
		sb.WriteString(it.Title)
		if it.URL != "" {
			sb.WriteString(" (")
			sb.WriteString(it.URL)
			sb.WriteString(")")
		}
		sb.WriteString("\n")
		sb.WriteString(it.Text)
		sb.WriteString("\n\n")
	}
	return sb.String()
}
