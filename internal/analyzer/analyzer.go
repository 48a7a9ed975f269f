// Package analyzer implements the Source Analyzer (C1) and Probe Plan
// Builder (C2): parsing a source file into Function Records and, for each
// one, a deterministic Probe Plan. Two interchangeable strategies sit
// behind the Analyzer interface - a grammar-driven structured strategy per
// language, and an oracle fallback for languages (or inputs) the structured
// strategy cannot handle.
package analyzer

import (
	"context"
	"fmt"

	"scriptforge/internal/model"
)

// AnalysisResult is the output of analyzing one Source File: every Function
// Record found, each already carrying its own Probe Plan.
type AnalysisResult struct {
	Functions []model.FunctionRecord
	Plans     map[string]model.ProbePlan // keyed by FunctionRecord.Name
}

// ParseError is returned when a source file cannot be analyzed at all. An
// unparseable file fails outright - no partial plan is produced.
type ParseError struct {
	Path    string
	Message string
	Cause   error
}

func (e *ParseError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("analyzer: parse error in %s: %s", e.Path, e.Message)
	}
	return fmt.Sprintf("analyzer: parse error: %s", e.Message)
}

func (e *ParseError) Unwrap() error { return e.Cause }

// Analyzer is a single analysis strategy for one language.
type Analyzer interface {
	// Analyze parses source and returns every Function Record plus its
	// Probe Plan. Returns *ParseError on unparseable input.
	Analyze(ctx context.Context, source model.SourceFile) (AnalysisResult, error)

	// Language reports which language this analyzer handles.
	Language() model.Language
}

// Registry dispatches to the structured analyzer for a language when one is
// registered, falling back to the oracle analyzer (if configured) when the
// structured analyzer fails or no structured analyzer is registered, per
// the "Failure semantics" degraded-mode policy.
type Registry struct {
	structured map[model.Language]Analyzer
	oracle     Analyzer
}

// NewRegistry builds an empty registry. Register structured analyzers with
// Register; set an oracle fallback with SetOracleFallback.
func NewRegistry() *Registry {
	return &Registry{structured: make(map[model.Language]Analyzer)}
}

// Register installs a structured-strategy analyzer for its language.
func (r *Registry) Register(a Analyzer) {
	r.structured[a.Language()] = a
}

// SetOracleFallback installs the analyzer used when the structured strategy
// is unavailable or fails. A nil fallback disables the fallback.
func (r *Registry) SetOracleFallback(a Analyzer) {
	r.oracle = a
}

// Analyze runs the structured strategy for source.Language if one is
// registered; on failure (or absence), retries via the oracle fallback if
// one is configured, returning that fallback's result and error as they
// are. Without a fallback, the structured error is returned (or, if there
// was no structured analyzer at all, a ParseError reporting that no
// analyzer is registered for the language).
func (r *Registry) Analyze(ctx context.Context, source model.SourceFile) (AnalysisResult, error) {
	structured, ok := r.structured[source.Language]
	if !ok {
		if r.oracle != nil {
			return r.oracle.Analyze(ctx, source)
		}
		return AnalysisResult{}, &ParseError{Path: source.Path, Message: fmt.Sprintf("no analyzer registered for language %q", source.Language)}
	}

	result, err := structured.Analyze(ctx, source)
	if err == nil {
		return result, nil
	}

	if r.oracle == nil {
		return AnalysisResult{}, err
	}
	return r.oracle.Analyze(ctx, source)
}
