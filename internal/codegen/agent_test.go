package codegen

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	openai "github.com/sashabaranov/go-openai"

	"github.com/arkforge/codegen-rag/internal/errfilter"
	"github.com/arkforge/codegen-rag/internal/evidence"
)

type fakeChat struct {
	reply    string
	err      error
	lastUser string
	calls    int
}

func (f *fakeChat) CreateChatCompletion(_ context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	f.calls++
	for _, m := range req.Messages {
		if m.Role == openai.ChatMessageRoleUser {
			f.lastUser = m.Content
		}
	}
	if f.err != nil {
		return openai.ChatCompletionResponse{}, f.err
	}
	return openai.ChatCompletionResponse{
		Choices: []openai.ChatCompletionChoice{{Message: openai.ChatCompletionMessage{Content: f.reply}}},
	}, nil
}

func TestGenerateFileSanitizesModelOutput(t *testing.T) {
	chat := &fakeChat{reply: "```ets\n" + validBody + "\n```"}
	a := &Agent{Client: chat, Model: "test-model"}
	plan := FilePlan{Path: "entry/src/main/ets/pages/Index.ets", Kind: KindSource, Purpose: "entry page"}

	got, err := a.GenerateFile(context.Background(), "todo list app", plan, nil)
	if err != nil {
		t.Fatalf("GenerateFile: %v", err)
	}
	if strings.Contains(got, "```") {
		t.Fatalf("fence survived: %q", got)
	}
	if !strings.Contains(chat.lastUser, "todo list app") || !strings.Contains(chat.lastUser, plan.Path) {
		t.Fatalf("prompt missing requirement or path:\n%s", chat.lastUser)
	}
}

func TestGenerateFilePropagatesGenerationError(t *testing.T) {
	chat := &fakeChat{reply: "Sorry, I can only answer questions about cooking."}
	a := &Agent{Client: chat, Model: "test-model"}
	_, err := a.GenerateFile(context.Background(), "todo app", FilePlan{Path: "Index.ets"}, nil)
	var ge *GenerationError
	if !errors.As(err, &ge) {
		t.Fatalf("expected GenerationError, got %v", err)
	}
}

func TestFixFilePromptCarriesErrorsAndReferences(t *testing.T) {
	chat := &fakeChat{reply: validBody}
	a := &Agent{Client: chat, Model: "test-model"}

	longExcerpt := strings.Repeat("x", 900)
	longRef := strings.Repeat("r", 400)
	errs := FileErrors{
		Path: "entry/src/main/ets/pages/Index.ets",
		Analyses: []errfilter.ErrorAnalysis{{
			ErrorID:         "e1",
			OriginalMessage: "cannot find module '@ohos.router'",
			Type:            errfilter.ErrorImport,
			Severity:        errfilter.PriorityHigh,
			FixDescription:  "Apply resolve-or-add-import for a import issue",
			LocationHint:    "1:8",
		}},
		RawMessages: []string{"unexpected token at line 9"},
		RawExcerpts: []string{longExcerpt, "b", "c", "never-included"},
	}
	refs := []evidence.Item{{Title: "Router docs", Text: longRef}}

	if _, err := a.FixFile(context.Background(), "todo app", validBody, errs, refs); err != nil {
		t.Fatalf("FixFile: %v", err)
	}

	user := chat.lastUser
	if !strings.Contains(user, "cannot find module") || !strings.Contains(user, "unexpected token") {
		t.Fatalf("prompt missing error details:\n%s", user)
	}
	if !strings.Contains(user, "resolve-or-add-import") {
		t.Fatalf("prompt missing fix description:\n%s", user)
	}
	if strings.Contains(user, "never-included") {
		t.Fatal("more than three raw excerpts were included")
	}
	if strings.Contains(user, longExcerpt) {
		t.Fatal("raw excerpt was not truncated to 500 chars")
	}
	if !strings.Contains(user, longExcerpt[:500]) {
		t.Fatal("truncated excerpt missing from prompt")
	}
	if strings.Contains(user, longRef) {
		t.Fatal("reference solution was not truncated to 150 chars")
	}
	if !strings.Contains(user, longRef[:150]) {
		t.Fatal("truncated reference missing from prompt")
	}
}

func TestFixFilePropagatesLLMError(t *testing.T) {
	chat := &fakeChat{err: errors.New("upstream down")}
	a := &Agent{Client: chat, Model: "test-model"}
	_, err := a.FixFile(context.Background(), "todo app", validBody, FileErrors{Path: "Index.ets"}, nil)
	if err == nil || !strings.Contains(err.Error(), "upstream down") {
		t.Fatalf("expected wrapped LLM error, got %v", err)
	}
}

func TestWriteFileCreatesMissingDirectories(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "entry", "src", "main", "ets", "pages", "Index.ets")
	if err := WriteFile(target, []byte(validBody)); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	b, err := os.ReadFile(target)
	if err != nil {
		t.Fatalf("read back: %v", err)
	}
	if string(b) != validBody {
		t.Fatal("content mismatch after write")
	}
}

func TestWriteFileRejectsEmptyContent(t *testing.T) {
	if err := WriteFile(filepath.Join(t.TempDir(), "x.ets"), nil); err == nil {
		t.Fatal("expected error for empty content")
	}
}
