// Package model defines the data types shared by every stage of the
// instrumentation pipeline: source files, function records, probe plans,
// transformers, cache entries, and the work items/results the dispatcher
// shuttles between them.
package model

import "strings"

// Language identifies the source language of a file. The core ships
// structured analyzers for the languages below; any other identifier is
// still accepted as long as an Oracle-backed analyzer can produce an
// AnalysisResult for it (see internal/analyzer).
type Language string

const (
	LanguageGo         Language = "go"
	LanguagePython     Language = "py"
	LanguageJavaScript Language = "js"
	LanguageTypeScript Language = "ts"
)

// KnownLanguages lists the languages with a built-in structured analyzer.
var KnownLanguages = []Language{LanguageGo, LanguagePython, LanguageJavaScript, LanguageTypeScript}

// HasStructuredAnalyzer reports whether l is one of the languages the core
// ships a grammar-driven analyzer for.
func (l Language) HasStructuredAnalyzer() bool {
	for _, known := range KnownLanguages {
		if known == l {
			return true
		}
	}
	return false
}

// ParseLanguage normalizes a free-form string (e.g. a file extension or a
// user-supplied identifier) into a Language. Unknown values pass through
// unchanged so Oracle-only languages remain usable.
func ParseLanguage(s string) Language {
	s = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(s), "."))
	switch s {
	case "py", "python", "pyw":
		return LanguagePython
	case "js", "jsx", "mjs", "cjs", "javascript":
		return LanguageJavaScript
	case "ts", "tsx", "typescript":
		return LanguageTypeScript
	case "go", "golang":
		return LanguageGo
	default:
		return Language(s)
	}
}
