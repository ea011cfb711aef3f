package llmtools

import (
	"regexp"
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

var (
	finalFenceRe = regexp.MustCompile("(?s)```final\\s*\\n(.*?)```")
	finalTagRe   = regexp.MustCompile(`(?s)<final>(.*?)</final>`)
)

// ParseHarmony extracts the final answer and any tool calls from a chat
// completion. Models in harmony-style modes wrap their deliverable in a
// ```final fence or a <final> tag around analysis text; when neither marker
// is present the whole content is the answer. A response carrying tool calls
// has no final answer yet — the calls take precedence.
func ParseHarmony(resp openai.ChatCompletionResponse) (string, []ToolCall) {
	calls := ParseToolCalls(resp)
	if len(calls) > 0 {
		return "", calls
	}
	if len(resp.Choices) == 0 {
		return "", nil
	}
	content := resp.Choices[0].Message.Content
	if m := finalFenceRe.FindStringSubmatch(content); m != nil {
		return strings.TrimSpace(m[1]), nil
	}
	if m := finalTagRe.FindStringSubmatch(content); m != nil {
		return strings.TrimSpace(m[1]), nil
	}
	return strings.TrimSpace(content), nil
}
