package planner

import (
	"context"
	"errors"
	"strings"
	"testing"

	openai "github.com/sashabaranov/go-openai"

	"github.com/arkforge/codegen-rag/internal/codegen"
	"github.com/arkforge/codegen-rag/internal/evidence"
	"github.com/arkforge/codegen-rag/internal/template"
)

type fakeChat struct {
	reply string
	err   error
}

func (f *fakeChat) CreateChatCompletion(_ context.Context, _ openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	if f.err != nil {
		return openai.ChatCompletionResponse{}, f.err
	}
	return openai.ChatCompletionResponse{
		Choices: []openai.ChatCompletionChoice{{Message: openai.ChatCompletionMessage{Content: f.reply}}},
	}, nil
}

func TestPlanParsesJSONAndMergesProfileSlots(t *testing.T) {
	reply := `{"layout":"list","files":[
		{"path":"entry/src/main/ets/pages/Index.ets","kind":"source","purpose":"todo list page","outline":"List + add button"},
		{"path":"/etc/passwd","kind":"source","purpose":"bad"},
		{"path":"entry/../escape.ets","kind":"source","purpose":"bad"}
	]}`
	p := &ProjectPlanner{Client: &fakeChat{reply: reply}, Model: "m"}

	plan, err := p.Plan(context.Background(), "todo list app", nil)
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	paths := map[string]codegen.FilePlan{}
	for _, f := range plan.Files {
		paths[f.Path] = f
	}
	if _, bad := paths["/etc/passwd"]; bad {
		t.Fatal("absolute path survived sanitation")
	}
	for _, p := range paths {
		if strings.Contains(p.Path, "..") {
			t.Fatalf("traversal path survived: %q", p.Path)
		}
	}
	if paths[template.EntryPagePath].Purpose != "todo list page" {
		t.Fatal("proposed entry page lost")
	}
	// list profile slots must be merged in
	if _, ok := paths[template.StringResourcePath]; !ok {
		t.Fatal("string resource slot missing")
	}
	if _, ok := paths["entry/src/main/ets/components/ListItem.ets"]; !ok {
		t.Fatal("list profile component missing")
	}
}

func TestPlanUnwrapsFencedJSON(t *testing.T) {
	reply := "```json\n{\"layout\":\"page\",\"files\":[{\"path\":\"entry/src/main/ets/pages/Index.ets\",\"kind\":\"source\",\"purpose\":\"p\"}]}\n```"
	p := &ProjectPlanner{Client: &fakeChat{reply: reply}, Model: "m"}
	plan, err := p.Plan(context.Background(), "weather page", nil)
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	if len(plan.Files) == 0 {
		t.Fatal("no files planned")
	}
}

func TestPlanErrorsOnNonJSON(t *testing.T) {
	p := &ProjectPlanner{Client: &fakeChat{reply: "I think you should create an Index page."}, Model: "m"}
	if _, err := p.Plan(context.Background(), "todo app", nil); err == nil {
		t.Fatal("expected error for non-JSON planner output")
	}
}

func TestPlanPropagatesLLMError(t *testing.T) {
	p := &ProjectPlanner{Client: &fakeChat{err: errors.New("down")}, Model: "m"}
	if _, err := p.Plan(context.Background(), "todo app", nil); err == nil {
		t.Fatal("expected error when LLM is down")
	}
}

func TestFallbackPlanIsDeterministicAndComplete(t *testing.T) {
	a := FallbackPlan("todo list app")
	b := FallbackPlan("todo list app")
	if len(a.Files) != len(b.Files) {
		t.Fatal("fallback plan not deterministic")
	}
	paths := map[string]bool{}
	for _, f := range a.Files {
		paths[f.Path] = true
	}
	for _, want := range []string{template.EntryPagePath, template.StringResourcePath, template.ModuleManifestPath} {
		if !paths[want] {
			t.Fatalf("fallback plan missing %s", want)
		}
	}
}

func TestPlanUsesReferencePrecedents(t *testing.T) {
	chat := &recordingChat{reply: `{"layout":"page","files":[{"path":"entry/src/main/ets/pages/Index.ets","kind":"source","purpose":"p"}]}`}
	p := &ProjectPlanner{Client: chat, Model: "m"}
	refs := []evidence.Item{{Title: "Window resize docs", Text: "Use onAreaChange with a state variable"}}
	if _, err := p.Plan(context.Background(), "resizable view", refs); err != nil {
		t.Fatalf("Plan: %v", err)
	}
	if !strings.Contains(chat.lastUser, "onAreaChange") {
		t.Fatal("reference precedent not included in prompt")
	}
}

type recordingChat struct {
	reply    string
	lastUser string
}

func (f *recordingChat) CreateChatCompletion(_ context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	for _, m := range req.Messages {
		if m.Role == openai.ChatMessageRoleUser {
			f.lastUser = m.Content
		}
	}
	return openai.ChatCompletionResponse{
		Choices: []openai.ChatCompletionChoice{{Message: openai.ChatCompletionMessage{Content: f.reply}}},
	}, nil
}
