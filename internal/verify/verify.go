// Package verify audits how well a synthesized answer is supported by the
// evidence items it was derived from. It asks the LLM to map claims to
// supporting item indices and falls back to a deterministic token-overlap
// heuristic when the model is unavailable or returns an unusable payload.
package verify

import (
	"context"
	"encoding/json"
	"errors"
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

// Claim is one audited statement from the answer.
type Claim struct {
	Text          string `json:"text"`
	Supported     bool   `json:"supported"`
	SourceIndexes []int  `json:"source_indexes"`
}

// Result is the audit outcome. Method records whether the LLM or the
// deterministic fallback produced it.
type Result struct {
	Claims       []Claim
	SupportRatio float64
	Method       string
}

// Verifier runs the support audit.
type Verifier struct {
	Client ChatClient
	Model  string
	Cache  *cache.LLMCache
}

// Verify audits answer against items. An empty answer is an error; otherwise
// it never fails hard: when the LLM path is unusable it returns the
// deterministic fallback result and a nil error.
func (v *Verifier) Verify(ctx context.Context, answer string, items []evidence.Item) (Result, error) {
	answer = strings.TrimSpace(answer)
	if answer == "" {
		return Result{Method: "none"}, errors.New("verify: empty answer")
	}
	if v == nil || v.Client == nil || strings.TrimSpace(v.Model) == "" {
		return fallbackVerify(answer, items), nil
	}

	system := "You audit whether an answer is supported by numbered documents. " +
		"Respond with strict JSON only: [{\"text\": string, \"supported\": bool, \"source_indexes\": int[]}] — one entry per distinct claim in the answer. Indexes are 0-based."
	user := buildUserMessage(answer, items)

	if v.Cache != nil {
		key := cache.StageKey("verify", v.Model, system+"\n\n"+user)
		if raw, ok, _ := v.Cache.Get(ctx, key); ok {
			var claims []Claim
			if err := json.Unmarshal(raw, &claims); err == nil && len(claims) > 0 {
				return normalize(claims, len(items), "llm-cache"), nil
			}
		}
	}

	resp, err := v.Client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: v.Model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: system},
			{Role: openai.ChatMessageRoleUser, Content: user},
		},
		Temperature: 0,
		N:           1,
	})
	if err != nil || len(resp.Choices) == 0 {
		return fallbackVerify(answer, items), nil
	}
	raw := strings.TrimSpace(llm.StripReasoningTags(resp.Choices[0].Message.Content))
	raw = trimJSONFence(raw)
	var claims []Claim
	if err := json.Unmarshal([]byte(raw), &claims); err != nil || len(claims) == 0 {
		return fallbackVerify(answer, items), nil
	}
	if v.Cache != nil {
		if b, err := json.Marshal(claims); err == nil {
			_ = v.Cache.Save(ctx, cache.StageKey("verify", v.Model, system+"\n\n"+user), b)
		}
	}
	return normalize(claims, len(items), "llm"), nil
}

func buildUserMessage(answer string, items []evidence.Item) string {
	var sb strings.Builder
	sb.WriteString("Answer:\n")
	sb.WriteString(answer)
	sb.WriteString("\n\nDocuments:\n")
	for i, it := range items {
		sb.WriteString("[")
		sb.WriteString(strconv.Itoa(i))
		sb.WriteString("] ")
		sb.WriteString(it.Title)
		sb.WriteString(": ")
		sb.WriteString(clip(it.Text, 600))
		sb.WriteString("\n")
	}
	return sb.String()
}

// fallbackVerify is deterministic: each sentence of the answer is a claim,
// supported when at least two meaningful tokens of it appear in some item.
func fallbackVerify(answer string, items []evidence.Item) Result {
	sentences := splitIntoSentences(answer)
	claims := make([]Claim, 0, len(sentences))
	for _, s := range sentences {
		if !looksLikeSentence(s) {
			continue
		}
		c := Claim{Text: s}
		for i, it := range items {
			if tokenOverlap(s, it.Text) >= 2 {
				c.Supported = true
				c.SourceIndexes = append(c.SourceIndexes, i)
			}
		}
		claims = append(claims, c)
	}
	return normalize(claims, len(items), "fallback")
}

func normalize(claims []Claim, itemCount int, method string) Result {
	supported := 0
	for i := range claims {
		idx := claims[i].SourceIndexes[:0]
		for _, n := range claims[i].SourceIndexes {
			if n >= 0 && n < itemCount {
				idx = append(idx, n)
			}
		}
		claims[i].SourceIndexes = idx
		if len(idx) == 0 && method != "fallback" {
			claims[i].Supported = false
		}
		if claims[i].Supported {
			supported++
		}
	}
	ratio := 0.0
	if len(claims) > 0 {
		ratio = float64(supported) / float64(len(claims))
	}
	return Result{Claims: claims, SupportRatio: ratio, Method: method}
}

func splitIntoSentences(s string) []string {
	var out []string
	var cur strings.Builder
	for _, r := range s {
		cur.WriteRune(r)
		if r == '.' || r == '!' || r == '?' || r == '\n' {
			if t := strings.TrimSpace(cur.String()); t != "" {
				out = append(out, t)
			}
			cur.Reset()
		}
	}
	if t := strings.TrimSpace(cur.String()); t != "" {
		out = append(out, t)
	}
	return out
}

// looksLikeSentence filters fragments: a claim needs at least three words and
// one letter.
func looksLikeSentence(s string) bool {
	if len(strings.Fields(s)) < 3 {
		return false
	}
	for _, r := range s {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') {
			return true
		}
	}
	return false
}

func tokenOverlap(claim, text string) int {
	text = strings.ToLower(text)
	n := 0
	seen := map[string]struct{}{}
	for _, tok := range strings.Fields(strings.ToLower(claim)) {
		tok = strings.Trim(tok, ".,;:()[]'\"!?")
		if len(tok) < 4 {
			continue
		}
		if _, dup := seen[tok]; dup {
			continue
		}
		seen[tok] = struct{}{}
		if strings.Contains(text, tok) {
			n++
		}
	}
	return n
}

func trimJSONFence(s string) string {
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```")
		s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	}
	return strings.TrimSpace(s)
}

func clip(s string, max int) string {
	s = strings.TrimSpace(s)
	if len(s) <= max {
		return s
	}
	return s[:max]
}
