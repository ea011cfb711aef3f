// Package template defines project-layout profiles: the canonical file sets
// a generated HarmonyOS application of a given shape should contain. The
// planner merges a profile's required slots into the model-proposed plan so
// every project carries its entry page, string resources and module manifest.
package template

import (
	"strings"

	"github.com/arkforge/codegen-rag/internal/codegen"
)

// Type represents the supported application layouts
type Type string

const (
	// Page is a single-page application with one entry page
	Page Type = "page"
	// List is a list-driven application with an item component
	List Type = "list"
	// Form is a data-entry application with an input form page
	Form Type = "form"
	// Default represents the minimal standard layout
	Default Type = ""
)

// Canonical project-relative slots shared by every layout.
const (
	EntryPagePath      = "entry/src/main/ets/pages/Index.ets"
	StringResourcePath = "entry/src/main/resources/base/element/string.json"
	ModuleManifestPath = "entry/src/main/module.json5"
)

// Profile defines the file layout and prompt guidance for an application type
type Profile struct {
	Type           Type
	Name           string
	Description    string
	Files          []codegen.FilePlan
	SystemHint     string
	UserPromptHint string
}

// GetProfile returns the appropriate profile for the given layout hint. Free
// text is accepted: a requirement string maps conservatively onto a layout.
func GetProfile(layout string) Profile {
	switch Type(normalizeType(layout)) {
	case List:
		return listProfile()
	case Form:
		return formProfile()
	case Page:
		return pageProfile()
	default:
		return defaultProfile()
	}
}

// normalizeType converts string input to canonical Type value
func normalizeType(s string) string {
	v := strings.ToLower(strings.TrimSpace(s))
	switch v {
	case "page", "single page", "single-page":
		return string(Page)
	case "list", "list view", "todo", "feed":
		return string(List)
	case "form", "input", "entry form", "data entry":
		return string(Form)
	default:
		// Map substrings conservatively
		if strings.Contains(v, "list") || strings.Contains(v, "todo") || strings.Contains(v, "feed") {
			return string(List)
		}
		if strings.Contains(v, "form") || strings.Contains(v, "input") || strings.Contains(v, "login") {
			return string(Form)
		}
		if strings.Contains(v, "page") {
			return string(Page)
		}
		return string(Default)
	}
}

func baseFiles() []codegen.FilePlan {
	return []codegen.FilePlan{
		{Path: EntryPagePath, Kind: codegen.KindSource, Purpose: "application entry page"},
		{Path: StringResourcePath, Kind: codegen.KindResource, Purpose: "string resources"},
		{Path: ModuleManifestPath, Kind: codegen.KindManifest, Purpose: "module manifest"},
	}
}

func pageProfile() Profile {
	return Profile{
		Type:        Page,
		Name:        "Single Page App",
		Description: "One entry page carrying the whole UI",
		Files:       baseFiles(),
		SystemHint:  "Keep all UI state in the entry page component.",
	}
}

func listProfile() Profile {
	files := baseFiles()
	files = append(files, codegen.FilePlan{
		Path:    "entry/src/main/ets/components/ListItem.ets",
		Kind:    codegen.KindSource,
		Purpose: "reusable list item component",
	}, codegen.FilePlan{
		Path:    "entry/src/main/ets/model/DataModel.ets",
		Kind:    codegen.KindSource,
		Purpose: "observable data model backing the list",
	})
	return Profile{
		Type:           List,
		Name:           "List App",
		Description:    "List-driven application with a reusable item component and a data model",
		Files:          files,
		SystemHint:     "Drive the list from an @Observed data model; keep the item renderer a separate component.",
		UserPromptHint: "Use List/ForEach with a typed data model.",
	}
}

func formProfile() Profile {
	files := baseFiles()
	files = append(files, codegen.FilePlan{
		Path:    "entry/src/main/ets/components/FormField.ets",
		Kind:    codegen.KindSource,
		Purpose: "labeled input field component",
	})
	return Profile{
		Type:           Form,
		Name:           "Form App",
		Description:    "Data-entry application with validated input fields",
		Files:          files,
		SystemHint:     "Validate inputs in @State-backed handlers before submission.",
		UserPromptHint: "Use TextInput with state bindings and explicit validation.",
	}
}

func defaultProfile() Profile {
	return Profile{
		Type:        Default,
		Name:        "Minimal App",
		Description: "Minimal standard layout",
		Files:       baseFiles(),
	}
}

// MergeRequiredFiles overlays a profile's required slots onto a proposed plan:
// proposed entries are kept in order, and any profile file missing from the
// proposal is appended. Matching is by whitespace-trimmed path.
func MergeRequiredFiles(proposed []codegen.FilePlan, profile Profile) []codegen.FilePlan {
	seen := make(map[string]struct{}, len(proposed))
	out := make([]codegen.FilePlan, 0, len(proposed)+len(profile.Files))
	for _, fp := range proposed {
		key := strings.TrimSpace(fp.Path)
		if key == "" {
			continue
		}
		if _, dup := seen[key]; dup {
			continue
		}
		fp.Path = key
		seen[key] = struct{}{}
		out = append(out, fp)
	}
	for _, fp := range profile.Files {
		if _, ok := seen[fp.Path]; !ok {
			seen[fp.Path] = struct{}{}
			out = append(out, fp)
		}
	}
	return out
}
