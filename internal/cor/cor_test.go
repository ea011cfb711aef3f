package cor

import (
	"context"
	"errors"
	"strings"
	"testing"

	openai "github.com/sashabaranov/go-openai"

	"github.com/arkforge/codegen-rag/internal/evidence"
)

type fakeChat struct {
	responses []string
	i         int
}

func (f *fakeChat) CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	if f.i >= len(f.responses) {
		f.i = len(f.responses) - 1
	}
	r := f.responses[f.i]
	f.i++
	return openai.ChatCompletionResponse{
		Choices: []openai.ChatCompletionChoice{{Message: openai.ChatCompletionMessage{Content: r}}},
	}, nil
}

type fakeStore struct {
	items []evidence.Item
}

func (s *fakeStore) Search(ctx context.Context, collection string, vector []float32, queryText string, topK int) ([]evidence.Item, error) {
	return s.items, nil
}

func TestEngine_Run_RespectsMaxIterBound(t *testing.T) {
	chat := &fakeChat{responses: []string{
		"follow-up question?", "No relevant information found", "final answer",
	}}
	e := &Engine{Client: chat, Model: "test", Store: &fakeStore{}}
	res, err := e.Run(context.Background(), "how do I build a list?", Config{MaxIter: 3})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(res.Steps) > 3 {
		t.Fatalf("expected at most 3 intermediate steps, got %d", len(res.Steps))
	}
}

func TestEngine_Run_ZeroMaxIterYieldsEmptyContext(t *testing.T) {
	e := &Engine{Client: &fakeChat{responses: []string{"final"}}, Model: "test"}
	res, err := e.Run(context.Background(), "q", Config{MaxIter: 0})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(res.Steps) != 0 {
		t.Fatalf("zero max_iter must produce an empty intermediate context, got %d steps", len(res.Steps))
	}
	if res.FinalAnswer == "" {
		t.Fatalf("final answer should still be synthesized from zero evidence")
	}
}

func TestEngine_Run_NoEarlyStopMatchesIterationCount(t *testing.T) {
	chat := &fakeChat{responses: []string{
		"q1", "answer one", "[0]",
		"q2", "answer two", "[0]",
		"final synthesis",
	}}
	e := &Engine{Client: chat, Model: "test", Store: &fakeStore{items: []evidence.Item{{SourceID: "a", Text: "doc"}}}}
	res, err := e.Run(context.Background(), "main question", Config{MaxIter: 2, EarlyStopping: false})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(res.Steps) != 2 {
		t.Fatalf("expected exactly 2 steps with early stopping off, got %d", len(res.Steps))
	}
}

func TestSelectByIndex_DropsOutOfBounds(t *testing.T) {
	items := []evidence.Item{{SourceID: "a"}, {SourceID: "b"}}
	got := selectByIndex(items, []int{0, 5, -1, 1})
	if len(got) != 2 || got[0].SourceID != "a" || got[1].SourceID != "b" {
		t.Fatalf("unexpected selection: %+v", got)
	}
}

func TestAllIndices(t *testing.T) {
	got := allIndices(3)
	want := []int{0, 1, 2}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, got)
		}
	}
}

func TestEngine_Run_SupportingFilterSelectsIndexedItems(t *testing.T) {
	docs := []evidence.Item{
		{SourceID: "d1", Title: "onAreaChange", Text: "Use onAreaChange with a state variable"},
		{SourceID: "d2", Title: "unrelated", Text: "Grid layout guide"},
	}
	chat := &fakeChat{responses: []string{
		"How to handle window resize in ArkTS?",
		"Use onAreaChange with a state variable",
		"[0]",
		"final answer",
	}}
	e := &Engine{Client: chat, Model: "test", Store: &fakeStore{items: docs}}
	res, err := e.Run(context.Background(), "How to handle window resize in ArkTS", Config{MaxIter: 1})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(res.Steps) != 1 {
		t.Fatalf("expected 1 step, got %d", len(res.Steps))
	}
	sup := res.Steps[0].SupportingItems
	if len(sup) != 1 || sup[0].SourceID != "d1" {
		t.Fatalf("expected only the indexed document to support the answer, got %+v", sup)
	}
	if len(res.Items) != 2 {
		t.Fatalf("expected the full deduplicated pool of 2 items, got %d", len(res.Items))
	}
}

func TestEngine_Run_NegativeAnswerSkipsSupportingCall(t *testing.T) {
	docs := []evidence.Item{{SourceID: "d1", Text: "something"}}
	chat := &fakeChat{responses: []string{
		"sub question?",
		NoRelevantInformation,
		"final answer",
	}}
	e := &Engine{Client: chat, Model: "test", Store: &fakeStore{items: docs}}
	res, err := e.Run(context.Background(), "q", Config{MaxIter: 1})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(res.Steps[0].SupportingItems) != 0 {
		t.Fatalf("no supporting items should be recorded for the negative answer")
	}
	// The third canned response must have gone to the final synthesis, not to
	// a supporting-documents call.
	if res.FinalAnswer != "final answer" {
		t.Fatalf("FinalAnswer = %q", res.FinalAnswer)
	}
}

type erroringChat struct{}

func (erroringChat) CreateChatCompletion(context.Context, openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	return openai.ChatCompletionResponse{}, errors.New("connection refused")
}

// An LLM failure on a required call aborts the run with an error instead of
// degrading into an empty answer.
func TestEngine_Run_LLMFailureIsFatal(t *testing.T) {
	e := &Engine{Client: erroringChat{}, Model: "test", Store: &fakeStore{}}
	_, err := e.Run(context.Background(), "q", Config{MaxIter: 2})
	if err == nil {
		t.Fatal("expected error when the LLM is unreachable")
	}
	if !strings.Contains(err.Error(), "sub-query synthesis") {
		t.Fatalf("error should name the failed step, got %v", err)
	}
}

// A failing supporting-document call keeps every retrieved item instead of
// failing the run.
func TestEngine_Run_SupportingCallFailureKeepsAllItems(t *testing.T) {
	docs := []evidence.Item{{SourceID: "d1", Text: "alpha"}, {SourceID: "d2", Text: "beta"}}
	// Sub-query and answer succeed; the third (supporting) call gets
	// unparseable prose and the fourth goes to the final synthesis, so
	// nothing errors.
	chat := &fakeChat{responses: []string{
		"sub question?",
		"an answer grounded in the documents",
		"prose with no indices whatsoever",
		"final answer",
	}}
	e := &Engine{Client: chat, Model: "test", Store: &fakeStore{items: docs}}
	res, err := e.Run(context.Background(), "q", Config{MaxIter: 1})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(res.Steps[0].SupportingItems) != 2 {
		t.Fatalf("parse failure must keep all items, got %d", len(res.Steps[0].SupportingItems))
	}
}
