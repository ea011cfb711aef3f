package devops

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// TestMake_DXTargets verifies developer experience targets exist in the
// Makefile and reference the expected docker compose invocations and cache
// pruning.
func TestMake_DXTargets(t *testing.T) {
	root := findRepoRoot(t)
	b, err := os.ReadFile(filepath.Join(root, "Makefile"))
	if err != nil {
		t.Fatalf("Makefile missing: %v", err)
	}
	mk := string(b)

	for _, target := range []string{"\nup:", "\ndown:", "\nlogs:", "\nrebuild:", "\ntest:", "\nclean:"} {
		if !strings.Contains(mk, target) {
			t.Fatalf("Makefile should define a %q target", strings.TrimSpace(target))
		}
	}

	if !strings.Contains(mk, "--profile dev up -d") {
		t.Fatalf("up target should use docker compose with dev profile")
	}
	if !strings.Contains(mk, "--build") || !strings.Contains(mk, "--force-recreate") {
		t.Fatalf("rebuild target should include --build and --force-recreate")
	}
	if !strings.Contains(mk, "logs -f") {
		t.Fatalf("logs target should follow compose logs")
	}
	if !strings.Contains(mk, "--profile test up -d stub-llm") || !strings.Contains(mk, "go test ./...") {
		t.Fatalf("test target should start stub-llm (test profile) and run go test")
	}
	if !strings.Contains(mk, "codegen_http_cache") || !strings.Contains(mk, "codegen_llm_cache") {
		t.Fatalf("clean target should remove cache volumes codegen_http_cache and codegen_llm_cache")
	}
	if !strings.Contains(mk, ".codegen-cache") {
		t.Fatalf("clean target should also remove the local .codegen-cache directory")
	}
}

// TestMake_WaitHealthy verifies the wait helper exists and polls compose
// health status rather than sleeping a fixed duration.
func TestMake_WaitHealthy(t *testing.T) {
	root := findRepoRoot(t)
	b, err := os.ReadFile(filepath.Join(root, "Makefile"))
	if err != nil {
		t.Fatalf("Makefile missing: %v", err)
	}
	mk := string(b)
	if !strings.Contains(mk, "wait-healthy:") {
		t.Fatalf("Makefile should define wait-healthy")
	}
	if !strings.Contains(mk, "healthy") || !strings.Contains(mk, "ps") {
		t.Fatalf("wait-healthy should poll compose ps for health status")
	}
	for _, dependent := range []string{"up:", "test:"} {
		idx := strings.Index(mk, "\n"+dependent)
		if idx < 0 {
			continue
		}
		rest := mk[idx:]
		end := strings.Index(rest[1:], "\n\n")
		if end < 0 {
			end = len(rest) - 1
		}
		if !strings.Contains(rest[:end+1], "wait-healthy") {
			t.Fatalf("%s target should invoke wait-healthy before proceeding", strings.TrimSuffix(dependent, ":"))
		}
	}
}
