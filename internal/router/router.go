// Package router implements the Collection Router: choosing which
// vector-index partitions to search for a given question.
package router

import (
	"context"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"github.com/arkforge/codegen-rag/internal/budget"
	"github.com/rs/zerolog/log"
)

// ChatClient mirrors the minimal OpenAI client surface used across the core.
type ChatClient interface {
	CreateChatCompletion(ctx context.Context, request openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// Decision is the router's output: the selected collections plus the token
// usage spent deciding.
type Decision struct {
	Collections []string
	TokenUsage  int
}

// Router selects a subset of known collections for a query. When routing is
// disabled, or on any failure, it degrades to returning every collection.
type Router struct {
	Client      ChatClient
	Model       string
	Collections []string
	Enabled     bool
}

func (r *Router) all() Decision {
	return Decision{Collections: append([]string(nil), r.Collections...)}
}

// Route returns the collections to search for query. Routing failure (LLM
// error, empty/unparseable response) degrades to all-collections.
func (r *Router) Route(ctx context.Context, query string) Decision {
	if !r.Enabled || r.Client == nil || strings.TrimSpace(r.Model) == "" || len(r.Collections) == 0 {
		return r.all()
	}

	system := "You choose which document collections are relevant to a question. " +
		"Respond with a comma-separated list of collection names from the provided set only, " +
		"or the single word 'all' if unsure."
	user := "Collections: " + strings.Join(r.Collections, ", ") + "\nQuestion: " + query

	resp, err := r.Client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: r.Model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: system},
			{Role: openai.ChatMessageRoleUser, Content: user},
		},
		Temperature: 0,
		N:           1,
	})
	tokens := budget.EstimateTokens(system) + budget.EstimateTokens(user)
	if err != nil || len(resp.Choices) == 0 {
		log.Warn().Err(err).Msg("router: LLM selection failed, degrading to all collections")
		d := r.all()
		d.TokenUsage = tokens
		return d
	}

	raw := strings.TrimSpace(resp.Choices[0].Message.Content)
	tokens += budget.EstimateTokens(raw)
	if strings.EqualFold(raw, "all") || raw == "" {
		d := r.all()
		d.TokenUsage = tokens
		return d
	}

	known := make(map[string]string, len(r.Collections))
	for _, c := range r.Collections {
		known[strings.ToLower(c)] = c
	}
	selected := make([]string, 0, len(r.Collections))
	seen := map[string]struct{}{}
	for _, part := range strings.Split(raw, ",") {
		name := strings.ToLower(strings.TrimSpace(part))
		if canon, ok := known[name]; ok {
			if _, dup := seen[canon]; !dup {
				seen[canon] = struct{}{}
				selected = append(selected, canon)
			}
		}
	}
	if len(selected) == 0 {
		d := r.all()
		d.TokenUsage = tokens
		return d
	}
	return Decision{Collections: selected, TokenUsage: tokens}
}
