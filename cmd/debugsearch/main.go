// debugsearch is a developer smoke tool: it runs a raw SearxNG query and,
// when an LLM endpoint is configured, drives the tool-calling loop with the
// minimal tool surface so prompt/tool interplay can be inspected offline.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/arkforge/codegen-rag/internal/fetch"
	"github.com/arkforge/codegen-rag/internal/llmtools"
	"github.com/arkforge/codegen-rag/internal/search"
)

func main() {
	base := os.Getenv("SEARX_URL")
	if base == "" {
		base = "http://localhost:8888"
	}
	q := "How to handle window resize in ArkTS"
	if len(os.Args) > 1 {
		q = os.Args[1]
	}
	httpClient := &http.Client{Timeout: 20 * time.Second}
	prov := &search.SearxNG{BaseURL: base, HTTPClient: httpClient, UserAgent: "debugsearch/1.0"}
	ctx, cancel := context.WithTimeout(context.Background(), 90*time.Second)
	defer cancel()

	res, err := prov.Search(ctx, q, 5)
	fmt.Println("search err:", err)
	for i, r := range res {
		fmt.Printf("%d. %s — %s\n", i+1, r.Title, r.URL)
	}

	llmBase := os.Getenv("LLM_BASE_URL")
	model := os.Getenv("LLM_MODEL")
	if llmBase == "" || model == "" {
		return
	}

	reg, err := llmtools.NewMinimalRegistry(llmtools.MinimalDeps{
		SearchProvider: prov,
		FetchClient: &fetch.Client{
			HTTPClient:        httpClient,
			UserAgent:         "debugsearch/1.0",
			MaxAttempts:       2,
			PerRequestTimeout: 15 * time.Second,
		},
		MaxResultChars: 4000,
	})
	if err != nil {
		fmt.Println("registry err:", err)
		return
	}

	cfg := openai.DefaultConfig(os.Getenv("LLM_API_KEY"))
	cfg.BaseURL = llmBase
	orch := &llmtools.Orchestrator{
		Client:       openai.NewClientWithConfig(cfg),
		Registry:     reg,
		MaxToolCalls: 8,
		MaxWallClock: 60 * time.Second,
	}
	final, transcript, err := orch.Run(ctx, openai.ChatCompletionRequest{Model: model},
		"You are a documentation research assistant. Use the tools to ground your answer.",
		q, nil)
	fmt.Println("tool loop err:", err)
	fmt.Println("transcript messages:", len(transcript))
	fmt.Println("final:", final)
}
