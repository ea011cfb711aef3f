// Package checker implements the Unified Code Checker: language
// detection, back-end dispatch, and issue/score fusion.
package checker

import (
	"encoding/json"
	"regexp"
	"strings"

	"github.com/arkforge/codegen-rag/internal/analyzer"
)

var (
	arkDecoratorRe = regexp.MustCompile(`@(Entry|Component|State|Prop|Link|Observed|ObjectLink|Builder|Watch|Provide|Consume)\b`)
	arkComponentRe = regexp.MustCompile(`\b(Column|Row|Stack|Text|Button|Image|List|Grid|Flex)\s*\(`)

	tsRe = regexp.MustCompile(`(?m)^\s*(export\s+)?(interface|type|enum)\s+\w+|:\s*(string|number|boolean|any|void)\b|<\w+>`)
	jsRe = regexp.MustCompile(`\b(function|const|let|var|=>|require\(|module\.exports)\b`)

	javaRe   = regexp.MustCompile(`\b(public|private)\s+(static\s+)?(class|void|final)\b|\bpackage\s+[\w.]+;`)
	pythonRe = regexp.MustCompile(`(?m)^\s*def\s+\w+\(|^\s*import\s+\w+|^\s*class\s+\w+.*:\s*$`)
	cCppRe   = regexp.MustCompile(`#include\s*[<"]|\bstd::|\bint\s+main\s*\(`)
	vueRe    = regexp.MustCompile(`<template>|<script\s+setup|export\s+default\s*\{`)
	htmlRe   = regexp.MustCompile(`(?i)<!DOCTYPE html>|<html[\s>]`)
	cssRe    = regexp.MustCompile(`[.#]?[\w-]+\s*\{[^}]*:[^}]*\}`)
)

// DetectLanguage runs a prioritized detection cascade over raw code
// text and returns the best-matching canonical language.
func DetectLanguage(code string) analyzer.Language {
	switch {
	case arkDecoratorRe.MatchString(code) || arkComponentRe.MatchString(code):
		return analyzer.LangArkTS
	case tsRe.MatchString(code):
		return analyzer.LangTypeScript
	case jsRe.MatchString(code):
		return analyzer.LangJavaScript
	case javaRe.MatchString(code):
		return analyzer.LangJava
	case pythonRe.MatchString(code):
		return analyzer.LangPython
	case cCppContainsCpp(code):
		return analyzer.LangCPP
	case cCppRe.MatchString(code):
		return analyzer.LangC
	case vueRe.MatchString(code):
		return analyzer.LangVue
	case htmlRe.MatchString(code):
		return analyzer.LangHTML
	case cssRe.MatchString(code):
		return analyzer.LangCSS
	case isJSON(code):
		return analyzer.LangJSON
	default:
		return analyzer.LangUnknown
	}
}

var cppOnlyRe = regexp.MustCompile(`\bstd::|\bclass\s+\w+|\btemplate\s*<|\bnamespace\s+\w+|#include\s*<\w+>`)

func cCppContainsCpp(code string) bool {
	return cCppRe.MatchString(code) && cppOnlyRe.MatchString(code)
}

// isJSON reports whether code parses as a JSON value. A full parse attempt
// is preferred over a balanced-brace heuristic (see DESIGN.md).
func isJSON(code string) bool {
	trimmed := strings.TrimSpace(code)
	if trimmed == "" {
		return false
	}
	var v interface{}
	return json.Unmarshal([]byte(trimmed), &v) == nil
}
