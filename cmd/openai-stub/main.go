package main

import (
	"encoding/json"
	"log"
	"net/http"
	"os"
	"strings"
)

type chatRequest struct {
	Model    string `json:"model"`
	Messages []struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"messages"`
}

// openai-stub is a deterministic OpenAI-compatible endpoint for offline runs
// and integration tests. It pattern-matches the pipeline's system prompts and
// returns canned, well-formed responses for each stage.
func main() {
	model := os.Getenv("MODEL_ID")
	if strings.TrimSpace(model) == "" {
		model = "test-model"
	}
	addr := os.Getenv("ADDR")
	if strings.TrimSpace(addr) == "" {
		addr = ":8081"
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/v1/models", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"data": []map[string]any{{"id": model, "object": "model"}},
		})
	})
	mux.HandleFunc("/v1/embeddings", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		vec := make([]float64, 8)
		for i := range vec {
			vec[i] = 0.125
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"data": []map[string]any{{"object": "embedding", "index": 0, "embedding": vec}},
		})
	})
	mux.HandleFunc("/v1/chat/completions", func(w http.ResponseWriter, r *http.Request) {
		defer r.Body.Close()
		var req chatRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		sys := ""
		if len(req.Messages) > 0 {
			sys = strings.TrimSpace(req.Messages[0].Content)
		}
		var content string
		switch {
		case strings.Contains(sys, "planning assistant"):
			plan := map[string]any{
				"layout": "page",
				"files": []map[string]any{{
					"path":    "entry/src/main/ets/pages/Index.ets",
					"kind":    "source",
					"purpose": "entry page",
					"outline": "single page with a Text component",
				}},
			}
			b, _ := json.Marshal(plan)
			content = string(b)
		case strings.Contains(sys, "write complete ArkTS source files") || strings.Contains(sys, "repair ArkTS source files"):
			content = "@Entry\n@Component\nstruct Index {\n  @State message: string = 'Hello'\n  build() {\n    Column() {\n      Text(this.message)\n    }\n  }\n}"
		case strings.Contains(sys, "exactly one simple follow-up question"):
			content = "What UI component displays scrolling content?"
		case strings.Contains(sys, "Answer only Yes or No"):
			content = "Yes"
		case strings.Contains(sys, "List the indices"):
			content = "[0]"
		case strings.Contains(sys, "Classify the question"):
			content = "procedural"
		case strings.Contains(sys, "document collections"):
			content = "all"
		case strings.Contains(sys, "audit whether an answer is supported"):
			content = `[{"text":"stub claim","supported":true,"source_indexes":[0]}]`
		default:
			// Intermediate answers, synthesis and merge prompts share this path.
			content = "Use the List component with ForEach over a typed data source."
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{
				{"message": map[string]string{"role": "assistant", "content": content}},
			},
			"usage": map[string]int{"total_tokens": 42},
		})
	})

	log.Printf("openai-stub listening on %s (model=%s)", addr, model)
	if err := http.ListenAndServe(addr, mux); err != nil {
		log.Fatal(err)
	}
}
