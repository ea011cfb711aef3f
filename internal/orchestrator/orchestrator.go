// Package orchestrator implements the Search Orchestrator:
// adaptive mode dispatch over local/online/hybrid/chain search, per-session
// context, and confidence scoring.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"golang.org/x/sync/errgroup"

	"github.com/arkforge/codegen-rag/internal/budget"
	"github.com/arkforge/codegen-rag/internal/cor"
	"github.com/arkforge/codegen-rag/internal/evidence"
	"github.com/arkforge/codegen-rag/internal/llm"
	"github.com/arkforge/codegen-rag/internal/synth"
	"github.com/arkforge/codegen-rag/internal/verify"
)

// Mode selects the search strategy.
type Mode string

const (
	ModeLocalOnly  Mode = "local_only"
	ModeOnlineOnly Mode = "online_only"
	ModeHybrid     Mode = "hybrid"
	ModeChain      Mode = "chain_of_search"
	ModeAdaptive   Mode = "adaptive"
)

// QueryType is the LLM-classified query category used by adaptive mode
// selection.
type QueryType string

const (
	QueryFactual        QueryType = "factual"
	QueryProcedural     QueryType = "procedural"
	QueryConceptual     QueryType = "conceptual"
	QueryTroubleshoot   QueryType = "troubleshooting"
	QueryCodeExample    QueryType = "code_example"
	QueryGeneral        QueryType = "general"
)

var codeGenTriggers = []string{
	"generate code", "code example", "write code",
	"генерировать код", "写代码", "コードを生成",
}

// OnlineScraper is the web search/scrape surface, returning ranked
// snippets.
type OnlineScraper interface {
	Search(ctx context.Context, query string) ([]evidence.Item, error)
}

// ChatClient mirrors the minimal OpenAI client surface used across the core.
type ChatClient interface {
	CreateChatCompletion(ctx context.Context, request openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// SearchResult is the orchestrator's output.
type SearchResult struct {
	Query        string
	FinalAnswer  string
	Items        []evidence.Item
	ModeUsed     Mode
	QueryType    QueryType
	Confidence   float64
	Elapsed      time.Duration
	TokenUsage   int
	Metadata     map[string]string
}

// sessionEntry is one (query, answer, items) triple retained in history.
type sessionEntry struct {
	Query  string
	Answer string
	Items  []evidence.Item
}

// SearchContext is the per-session state: bounded history,
// single-writer per session.
type SearchContext struct {
	mu            sync.Mutex
	QueryHistory  []string
	SearchHistory []sessionEntry
	MaxHistory    int
}

func (c *SearchContext) append(query, answer string, items []evidence.Item) {
	c.mu.Lock()
	defer c.mu.Unlock()
	max := c.MaxHistory
	if max <= 0 {
		max = 10
	}
	c.QueryHistory = append(c.QueryHistory, query)
	c.SearchHistory = append(c.SearchHistory, sessionEntry{Query: query, Answer: answer, Items: items})
	if len(c.QueryHistory) > max {
		c.QueryHistory = c.QueryHistory[len(c.QueryHistory)-max:]
	}
	if len(c.SearchHistory) > max {
		c.SearchHistory = c.SearchHistory[len(c.SearchHistory)-max:]
	}
}

// Orchestrator dispatches searches across the configured retrieval modes.
type Orchestrator struct {
	Client  ChatClient
	Model   string
	Scraper OnlineScraper
	CoR     *cor.Engine
	// Synth, when configured, produces the local-only answer and the hybrid
	// merge via one LLM call each; without it (or when its call fails) the
	// local-only answer is the chain engine's final answer and the hybrid
	// merge joins the two branch answers as plain text.
	Synth *synth.Synthesizer
	// MaxHistory bounds per-session history (max_context_length).
	MaxHistory int
	// Verifier, when configured, audits chain-of-search answers against
	// their evidence and records the support ratio in result metadata.
	Verifier *verify.Verifier

	mu       sync.Mutex
	sessions map[string]*SearchContext
	stats    RunStats
}

// RunStats aggregates searches across the orchestrator's lifetime: query and
// success counters, per-mode usage and a running average response time.
type RunStats struct {
	TotalQueries      int
	SuccessfulQueries int
	ModeUsage         map[Mode]int
	AverageElapsed    time.Duration
}

// Stats returns a copy of the accumulated run statistics.
func (o *Orchestrator) Stats() RunStats {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := o.stats
	out.ModeUsage = make(map[Mode]int, len(o.stats.ModeUsage))
	for m, n := range o.stats.ModeUsage {
		out.ModeUsage[m] = n
	}
	return out
}

// ClearContext drops one session's context, or every session when key is
// empty.
func (o *Orchestrator) ClearContext(key string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if key == "" {
		o.sessions = nil
		return
	}
	delete(o.sessions, key)
}

func (o *Orchestrator) recordSearch(mode Mode, elapsed time.Duration, ok bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.stats.TotalQueries++
	if o.stats.ModeUsage == nil {
		o.stats.ModeUsage = map[Mode]int{}
	}
	o.stats.ModeUsage[mode]++
	if ok {
		n := o.stats.SuccessfulQueries
		o.stats.AverageElapsed = (o.stats.AverageElapsed*time.Duration(n) + elapsed) / time.Duration(n+1)
		o.stats.SuccessfulQueries = n + 1
	}
}

func (o *Orchestrator) sessionFor(key string) *SearchContext {
	if key == "" {
		return nil
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.sessions == nil {
		o.sessions = map[string]*SearchContext{}
	}
	ctx, ok := o.sessions[key]
	if !ok {
		ctx = &SearchContext{MaxHistory: o.MaxHistory}
		o.sessions[key] = ctx
	}
	return ctx
}

// Search dispatches query to the requested (or adaptively chosen) mode and
// returns a SearchResult.
//
// Errors distinguish failure tracks: an unreachable retriever or scraper
// degrades to placeholder content inside the result, while an LLM failure on
// the selected mode's own calls (local-only synthesis, the chain engine) is
// fatal to the step and surfaces as a non-nil error so the control loop can
// count the attempt as failed. Hybrid search isolates per-branch failures
// into textual placeholders and never fails as a whole.
func (o *Orchestrator) Search(ctx context.Context, query, sessionKey string, mode Mode, corCfg cor.Config) (SearchResult, error) {
	start := time.Now()
	qt := QueryGeneral
	tokens := 0

	if strings.TrimSpace(query) == "" {
		return SearchResult{
			Query:      query,
			ModeUsed:   mode,
			QueryType:  qt,
			Confidence: 0.5,
			Elapsed:    time.Since(start),
			Metadata:   map[string]string{},
		}, nil
	}

	resolvedMode := mode
	if mode == ModeAdaptive || mode == "" {
		var classifyTokens int
		resolvedMode, qt, classifyTokens = o.selectAdaptiveMode(ctx, query)
		tokens += classifyTokens
	}

	var answer string
	var items []evidence.Item
	var modeTokens int
	var modeErr error

	switch resolvedMode {
	case ModeLocalOnly:
		answer, items, modeTokens, modeErr = o.localOnly(ctx, query, corCfg)
	case ModeOnlineOnly:
		answer, items, modeTokens = o.onlineOnly(ctx, query)
	case ModeChain:
		if o.CoR == nil {
			// No chain engine configured: degrade to hybrid.
			answer, items, modeTokens = o.hybrid(ctx, query, corCfg)
			resolvedMode = ModeHybrid
		} else {
			res, err := o.CoR.Run(ctx, query, corCfg)
			answer, items, modeTokens = res.FinalAnswer, res.Items, res.TokenUsage
			modeErr = err
		}
	default:
		answer, items, modeTokens = o.hybrid(ctx, query, corCfg)
		resolvedMode = ModeHybrid
	}
	tokens += modeTokens
	if modeErr != nil {
		o.recordSearch(resolvedMode, time.Since(start), false)
		return SearchResult{
			Query:      query,
			Items:      items,
			ModeUsed:   resolvedMode,
			QueryType:  qt,
			Elapsed:    time.Since(start),
			TokenUsage: tokens,
			Metadata:   map[string]string{},
		}, fmt.Errorf("%s search: %w", resolvedMode, modeErr)
	}

	o.recordSearch(resolvedMode, time.Since(start), true)
	if sessionKey != "" {
		o.sessionFor(sessionKey).append(query, answer, items)
	}

	confidence := confidenceScore(resolvedMode, items, answer)

	metadata := map[string]string{}
	if o.Verifier != nil && resolvedMode == ModeChain && answer != "" {
		if vres, err := o.Verifier.Verify(ctx, answer, items); err == nil {
			metadata["support_ratio"] = strconv.FormatFloat(vres.SupportRatio, 'f', 2, 64)
			metadata["support_method"] = vres.Method
		}
	}

	return SearchResult{
		Query:       query,
		FinalAnswer: answer,
		Items:       items,
		ModeUsed:    resolvedMode,
		QueryType:   qt,
		Confidence:  confidence,
		Elapsed:     time.Since(start),
		TokenUsage:  tokens,
		Metadata:    metadata,
	}, nil
}

func (o *Orchestrator) selectAdaptiveMode(ctx context.Context, query string) (Mode, QueryType, int) {
	lower := strings.ToLower(query)
	for _, trigger := range codeGenTriggers {
		if strings.Contains(lower, trigger) {
			return ModeHybrid, QueryCodeExample, 0
		}
	}

	qt, tokens := o.classifyQueryType(ctx, query)
	switch qt {
	case QueryTroubleshoot:
		return ModeOnlineOnly, qt, tokens
	case QueryFactual:
		return ModeHybrid, qt, tokens
	case QueryProcedural, QueryConceptual:
		return ModeChain, qt, tokens
	default:
		return ModeHybrid, qt, tokens
	}
}

func (o *Orchestrator) classifyQueryType(ctx context.Context, query string) (QueryType, int) {
	if o.Client == nil {
		return QueryGeneral, 0
	}
	system := "Classify the question into exactly one of: factual, procedural, conceptual, troubleshooting, code_example, general. Respond with only the label."
	resp, err := o.Client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: o.Model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: system},
			{Role: openai.ChatMessageRoleUser, Content: query},
		},
		Temperature: 0,
		N:           1,
	})
	tokens := budget.EstimateTokens(system) + budget.EstimateTokens(query)
	if err != nil || len(resp.Choices) == 0 {
		return QueryGeneral, tokens
	}
	label := strings.ToLower(strings.TrimSpace(llm.StripReasoningTags(resp.Choices[0].Message.Content)))
	tokens += budget.EstimateTokens(label)
	switch QueryType(label) {
	case QueryFactual, QueryProcedural, QueryConceptual, QueryTroubleshoot, QueryCodeExample:
		return QueryType(label), tokens
	default:
		return QueryGeneral, tokens
	}
}

func (o *Orchestrator) localOnly(ctx context.Context, query string, corCfg cor.Config) (string, []evidence.Item, int, error) {
	if o.CoR == nil {
		return "", nil, 0, errors.New("local search unavailable: no chain engine configured")
	}
	res, err := o.CoR.Run(ctx, query, corCfg)
	if err != nil {
		return "", res.Items, res.TokenUsage, err
	}
	answer := res.FinalAnswer
	tokens := res.TokenUsage
	if o.Synth != nil && len(res.Items) > 0 {
		if synthesized, serr := o.Synth.FromItems(ctx, query, res.Items); serr == nil {
			answer = synthesized
			tokens += budget.EstimateTokens(synthesized)
		}
	}
	return answer, res.Items, tokens, nil
}

func (o *Orchestrator) onlineOnly(ctx context.Context, query string) (string, []evidence.Item, int) {
	if o.Scraper == nil {
		return "online search unavailable", nil, 0
	}
	items, err := o.Scraper.Search(ctx, query)
	if err != nil {
		return "online search failed: " + err.Error(), nil, 0
	}
	answer := synthesizeFromItems(items)
	return answer, items, 0
}

// hybrid runs local and online branches concurrently; a branch failure
// becomes a textual placeholder in the merged answer rather than a fatal
// error.
func (o *Orchestrator) hybrid(ctx context.Context, query string, corCfg cor.Config) (string, []evidence.Item, int) {
	var localAnswer, onlineAnswer string
	var localItems, onlineItems []evidence.Item
	var localTokens, onlineTokens int

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer recoverBranch(&localAnswer, "local")
		var lerr error
		localAnswer, localItems, localTokens, lerr = o.localOnly(gctx, query, corCfg)
		if lerr != nil {
			localAnswer = "local branch failed: " + lerr.Error()
		}
		return nil
	})
	g.Go(func() error {
		defer recoverBranch(&onlineAnswer, "online")
		onlineAnswer, onlineItems, onlineTokens = o.onlineOnly(gctx, query)
		return nil
	})
	_ = g.Wait()

	merged := append(append([]evidence.Item{}, localItems...), onlineItems...)
	merged = evidence.Dedup(merged)

	answer := mergeAnswers(localAnswer, onlineAnswer)
	tokens := localTokens + onlineTokens
	if o.Synth != nil && localAnswer != "" && onlineAnswer != "" {
		if synthesized, err := o.Synth.MergeAnswers(ctx, query, localAnswer, onlineAnswer); err == nil {
			answer = synthesized
			tokens += budget.EstimateTokens(synthesized)
		}
	}
	return answer, merged, tokens
}

func recoverBranch(dst *string, label string) {
	if r := recover(); r != nil {
		*dst = label + " branch failed: " + toString(r)
	}
}

func toString(v interface{}) string {
	if err, ok := v.(error); ok {
		return err.Error()
	}
	if s, ok := v.(string); ok {
		return s
	}
	return "unknown error"
}

func mergeAnswers(local, online string) string {
	local = strings.TrimSpace(local)
	online = strings.TrimSpace(online)
	switch {
	case local == "" && online == "":
		return ""
	case local == "":
		return online
	case online == "":
		return local
	default:
		return local + "\n\n" + online
	}
}

func synthesizeFromItems(items []evidence.Item) string {
	var b strings.Builder
	for _, it := range items {
		if it.Text == "" {
			continue
		}
		b.WriteString(it.Text)
		b.WriteString("\n")
	}
	return strings.TrimSpace(b.String())
}

// confidenceScore computes the heuristic confidence formula: base 0.5, plus
// min(0.1*|sources|, 0.3), plus a mode bonus, plus +0.1 for a mid-length
// answer, capped at 1.0.
func confidenceScore(mode Mode, items []evidence.Item, answer string) float64 {
	score := 0.5

	bonus := 0.1 * float64(len(items))
	if bonus > 0.3 {
		bonus = 0.3
	}
	score += bonus

	switch mode {
	case ModeHybrid:
		score += 0.2
	case ModeChain:
		score += 0.15
	case ModeLocalOnly, ModeOnlineOnly:
		score += 0.1
	}

	n := len(answer)
	if n >= 100 && n <= 2000 {
		score += 0.1
	}

	if score > 1.0 {
		score = 1.0
	}
	return score
}
