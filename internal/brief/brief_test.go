package brief

import (
	"strings"
	"testing"
)

func TestParseHeadingAndBody(t *testing.T) {
	in := "# Todo App\n\nBuild a todo list with add, complete and delete.\n"
	r := Parse(in)
	if r.Title != "Todo App" {
		t.Fatalf("Title = %q", r.Title)
	}
	if !strings.Contains(r.Text, "todo list") {
		t.Fatalf("Text = %q", r.Text)
	}
	if strings.Contains(r.Text, "# Todo App") {
		t.Fatal("heading leaked into body text")
	}
}

func TestParseLayoutHint(t *testing.T) {
	in := "# Notes\nlayout: list\nA notes app with a scrolling list."
	r := Parse(in)
	if r.LayoutHint != "list" {
		t.Fatalf("LayoutHint = %q", r.LayoutHint)
	}
	if strings.Contains(r.Text, "layout:") {
		t.Fatal("layout hint leaked into body text")
	}
}

func TestParseHeadingOnlyInput(t *testing.T) {
	r := Parse("# Weather widget\n")
	if r.Text != "Weather widget" {
		t.Fatalf("Text = %q", r.Text)
	}
}

func TestParseNoHeadingDerivesTitle(t *testing.T) {
	r := Parse("Build a *calculator* with history.\nMore detail here.")
	if r.Title == "" || strings.Contains(r.Title, "*") {
		t.Fatalf("Title = %q", r.Title)
	}
	if !strings.Contains(r.Text, "More detail") {
		t.Fatalf("Text = %q", r.Text)
	}
}

func TestParseEmptyInput(t *testing.T) {
	r := Parse("")
	if r.Title != "" || r.Text != "" {
		t.Fatalf("unexpected: %+v", r)
	}
}
