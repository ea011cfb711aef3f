// Package cor implements the Chain-of-Retrieval Engine: iterative
// sub-query generation, fan-out retrieval, per-iteration answers, and a
// supporting-document filter with an error-safe fallback.
package cor

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	openai "github.com/sashabaranov/go-openai"
	"golang.org/x/sync/errgroup"

	"github.com/arkforge/codegen-rag/internal/budget"
	"github.com/arkforge/codegen-rag/internal/evidence"
	"github.com/arkforge/codegen-rag/internal/llm"
	"github.com/arkforge/codegen-rag/internal/router"
)

// NoRelevantInformation is the negative literal the intermediate-answer
// prompt is instructed to return verbatim.
const NoRelevantInformation = "No relevant information found"

// ChatClient mirrors the minimal OpenAI client surface used across the core.
type ChatClient interface {
	CreateChatCompletion(ctx context.Context, request openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// Embedder turns query text into a dense vector for the evidence store.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// IntermediateStep is one iteration's record.
type IntermediateStep struct {
	SubQuery           string
	IntermediateAnswer string
	SupportingItems    []evidence.Item
}

// Result is the terminal output of a chain-of-retrieval run.
type Result struct {
	FinalAnswer  string
	Steps        []IntermediateStep
	Items        []evidence.Item
	TokenUsage   int
	StoppedEarly bool
}

// Config bounds a single run.
type Config struct {
	MaxIter       int
	EarlyStopping bool
	TopK          int
}

// Engine is the chain-of-retrieval engine.
type Engine struct {
	Client   ChatClient
	Model    string
	Router   *router.Router
	Embedder Embedder
	Store    evidence.Store
}

// DefaultMaxIter is the iteration cap callers use when none is configured.
const DefaultMaxIter = 4

// Run executes the iterative retrieval loop for query against the given
// config. MaxIter bounds the iterations exactly: zero runs none and goes
// straight to the final synthesis over an empty pool.
//
// Failure handling follows two tracks: retrieval failures degrade to empty
// item sets and a failed supporting-document selection keeps every retrieved
// item, but an LLM failure on a required call (sub-query synthesis, the
// intermediate answer, the final synthesis) aborts the run with an error so
// the control loop can count the attempt as failed.
func (e *Engine) Run(ctx context.Context, query string, cfg Config) (Result, error) {
	maxIter := cfg.MaxIter
	if maxIter < 0 {
		maxIter = 0
	}

	var steps []IntermediateStep
	var pool []evidence.Item
	var runningContext strings.Builder
	tokens := 0
	stoppedEarly := false

	for i := 0; i < maxIter; i++ {
		subQuery, subTokens, err := e.synthesizeSubQuery(ctx, query, runningContext.String())
		tokens += subTokens
		if err != nil {
			return Result{Steps: steps, Items: pool, TokenUsage: tokens}, fmt.Errorf("sub-query synthesis: %w", err)
		}

		items, retrieveTokens := e.retrieve(ctx, subQuery)
		tokens += retrieveTokens
		pool = evidence.Dedup(append(pool, items...))

		answer, answerTokens, err := e.intermediateAnswer(ctx, subQuery, items)
		tokens += answerTokens
		if err != nil {
			return Result{Steps: steps, Items: pool, TokenUsage: tokens}, fmt.Errorf("intermediate answer: %w", err)
		}

		var supporting []evidence.Item
		if !strings.EqualFold(strings.TrimSpace(answer), NoRelevantInformation) {
			idx, filterTokens := e.supportingIndices(ctx, subQuery, answer, items)
			tokens += filterTokens
			supporting = selectByIndex(items, idx)
		}

		steps = append(steps, IntermediateStep{
			SubQuery:           subQuery,
			IntermediateAnswer: answer,
			SupportingItems:    supporting,
		})
		runningContext.WriteString("Intermediate query ")
		runningContext.WriteString(strconv.Itoa(i + 1))
		runningContext.WriteString(": ")
		runningContext.WriteString(subQuery)
		runningContext.WriteString("\nIntermediate answer ")
		runningContext.WriteString(strconv.Itoa(i + 1))
		runningContext.WriteString(": ")
		runningContext.WriteString(answer)
		runningContext.WriteString("\n")

		if cfg.EarlyStopping {
			stop, stopTokens := e.earlyStop(ctx, runningContext.String())
			tokens += stopTokens
			if stop {
				stoppedEarly = true
				break
			}
		}
	}

	final, finalTokens, err := e.finalAnswer(ctx, pool, runningContext.String())
	tokens += finalTokens
	if err != nil {
		return Result{Steps: steps, Items: pool, TokenUsage: tokens, StoppedEarly: stoppedEarly}, fmt.Errorf("final synthesis: %w", err)
	}

	return Result{
		FinalAnswer:  final,
		Steps:        steps,
		Items:        pool,
		TokenUsage:   tokens,
		StoppedEarly: stoppedEarly,
	}, nil
}

func (e *Engine) chat(ctx context.Context, system, user string) (string, int, error) {
	if e.Client == nil {
		return "", 0, errors.New("cor: llm client not configured")
	}
	resp, err := e.Client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: e.Model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: system},
			{Role: openai.ChatMessageRoleUser, Content: user},
		},
		Temperature: 0.2,
		N:           1,
	})
	tokens := budget.EstimateTokens(system) + budget.EstimateTokens(user)
	if err != nil {
		return "", tokens, fmt.Errorf("llm call: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", tokens, errors.New("llm call: no choices")
	}
	text := llm.StripReasoningTags(resp.Choices[0].Message.Content)
	return strings.TrimSpace(text), tokens + budget.EstimateTokens(text), nil
}

func (e *Engine) synthesizeSubQuery(ctx context.Context, query, context string) (string, int, error) {
	system := "Given a main question and the research so far, ask exactly one simple follow-up question that would help answer it. Respond with only the question."
	user := "Main question: " + query
	if context != "" {
		user += "\n\nResearch so far:\n" + context
	}
	sub, tokens, err := e.chat(ctx, system, user)
	if err != nil {
		return "", tokens, err
	}
	if sub == "" {
		sub = query
	}
	return sub, tokens, nil
}

func (e *Engine) retrieve(ctx context.Context, subQuery string) ([]evidence.Item, int) {
	decision := router.Decision{Collections: []string{""}}
	tokens := 0
	if e.Router != nil {
		decision = e.Router.Route(ctx, subQuery)
		tokens += decision.TokenUsage
	}

	var vec []float32
	if e.Embedder != nil {
		if v, err := e.Embedder.Embed(ctx, subQuery); err == nil {
			vec = v
		}
	}

	if e.Store == nil {
		return nil, tokens
	}

	results := make([][]evidence.Item, len(decision.Collections))
	g, gctx := errgroup.WithContext(ctx)
	for i, coll := range decision.Collections {
		i, coll := i, coll
		g.Go(func() error {
			items, err := e.Store.Search(gctx, coll, vec, subQuery, 5)
			if err != nil {
				return nil
			}
			results[i] = items
			return nil
		})
	}
	_ = g.Wait()

	var merged []evidence.Item
	for _, r := range results {
		merged = append(merged, r...)
	}
	return evidence.Dedup(merged), tokens
}

func (e *Engine) intermediateAnswer(ctx context.Context, subQuery string, items []evidence.Item) (string, int, error) {
	if len(items) == 0 {
		return NoRelevantInformation, 0, nil
	}
	system := "Answer the question concisely using only the provided documents. If they do not contain relevant information, respond with exactly: " + NoRelevantInformation
	user := "Question: " + subQuery + "\n\nDocuments:\n" + formatItems(items)
	answer, tokens, err := e.chat(ctx, system, user)
	if err != nil {
		return "", tokens, err
	}
	if answer == "" {
		return NoRelevantInformation, tokens, nil
	}
	return answer, tokens, nil
}

// supportingIndices never fails: any exception while selecting indices (LLM
// failure included) keeps every retrieved item as an error-safe superset.
func (e *Engine) supportingIndices(ctx context.Context, subQuery, answer string, items []evidence.Item) ([]int, int) {
	system := "List the indices (0-based) of the documents below that support the given answer. Respond with only a list like [0, 2]."
	user := "Question: " + subQuery + "\nAnswer: " + answer + "\n\nDocuments:\n" + formatItems(items)
	raw, tokens, err := e.chat(ctx, system, user)
	if err != nil || raw == "" {
		return allIndices(len(items)), tokens
	}
	idx, perr := llm.ParseIntListLiteral(raw)
	if perr != nil {
		return allIndices(len(items)), tokens
	}
	return idx, tokens
}

// earlyStop is advisory: a failed sufficiency probe means "keep going".
func (e *Engine) earlyStop(ctx context.Context, context string) (bool, int) {
	system := "Answer only Yes or No: does the research so far sufficiently answer the main question?"
	raw, tokens, err := e.chat(ctx, system, context)
	if err != nil {
		return false, tokens
	}
	return strings.EqualFold(strings.TrimSpace(raw), "yes"), tokens
}

func (e *Engine) finalAnswer(ctx context.Context, items []evidence.Item, context string) (string, int, error) {
	system := "Synthesize a final answer to the main question using the retrieved documents and the research context."
	user := "Documents:\n" + formatItems(items) + "\n\nResearch context:\n" + context
	answer, tokens, err := e.chat(ctx, system, user)
	if err != nil {
		return "", tokens, err
	}
	if answer == "" && len(items) == 0 {
		answer = NoRelevantInformation
	}
	return answer, tokens, nil
}

func formatItems(items []evidence.Item) string {
	var b strings.Builder
	for i, it := range items {
		b.WriteString("[")
		b.WriteString(strconv.Itoa(i))
		b.WriteString("] ")
		b.WriteString(it.Title)
		b.WriteString(": ")
		b.WriteString(it.Text)
		b.WriteString("\n")
	}
	return b.String()
}

// selectByIndex keeps only items addressed by idx that are in bounds,
// dropping anything out of bounds.
func selectByIndex(items []evidence.Item, idx []int) []evidence.Item {
	out := make([]evidence.Item, 0, len(idx))
	for _, i := range idx {
		if i >= 0 && i < len(items) {
			out = append(out, items[i])
		}
	}
	return out
}

func allIndices(n int) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = i
	}
	return out
}
