// Package composer stitches per-function Work Results back into the
// original source file. The descending-offset substitution algorithm is
// this package's own, written in a plain-functions-over-model-types style
// with no interfaces where one implementation suffices.
package composer

import (
	"bytes"
	"sort"

	"scriptforge/internal/logging"
	"scriptforge/internal/model"
)

// Item pairs one Function Record with the Work Result produced for it.
type Item struct {
	Function model.FunctionRecord
	Result   model.WorkResult
}

// Compose stitches source_bytes and a list of (function_record, WorkResult)
// pairs into a FileCompositionResult. Items are sorted internally by
// descending StartOffset (callers may pass them in any order) so each
// substitution never invalidates the offsets of records not yet applied.
func Compose(sourceBytes []byte, items []Item) model.FileCompositionResult {
	type indexed struct {
		Item
		origIndex int
	}
	ordered := make([]indexed, len(items))
	for i, it := range items {
		ordered[i] = indexed{Item: it, origIndex: i}
	}
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Function.StartOffset > ordered[j].Function.StartOffset
	})

	out := append([]byte(nil), sourceBytes...)
	statuses := make([]model.FunctionStatus, len(items))
	replaced := 0

	for _, entry := range ordered {
		fn := entry.Function
		result := entry.Result

		status := model.FunctionStatus{FunctionName: fn.Name, Success: result.Success, Cached: result.Cached}

		if !result.Success {
			status.ReasonKind = result.ReasonKind
			status.Details = result.Details
			logging.ComposerDebug("composer: leaving %s unchanged (failure: %s: %s)", fn.Name, result.ReasonKind, result.Details)
			statuses[entry.origIndex] = status
			continue
		}

		if fn.StartOffset < 0 || fn.EndOffset > len(out) || fn.StartOffset > fn.EndOffset {
			status.Success = false
			status.ReasonKind = model.KindExecution
			status.Details = "function span out of range for current source bytes"
			logging.Get(logging.CategoryComposer).Warn("composer: %s span [%d,%d) invalid against %d source bytes", fn.Name, fn.StartOffset, fn.EndOffset, len(out))
			statuses[entry.origIndex] = status
			continue
		}

		text := result.Text
		lineStart := bytes.LastIndexByte(out[:fn.StartOffset], '\n') + 1
		if string(out[lineStart:fn.StartOffset]) != fn.IndentPrefix {
			text = ensureIndentPrefix(text, fn.IndentPrefix)
		}

		var next []byte
		next = append(next, out[:fn.StartOffset]...)
		next = append(next, []byte(text)...)
		next = append(next, out[fn.EndOffset:]...)
		out = next

		replaced++
		statuses[entry.origIndex] = status
	}

	logging.Composer("composer: replaced %d/%d function spans", replaced, len(items))
	return model.FileCompositionResult{InstrumentedSource: out, ReplacedCount: replaced, PerFunctionStatuses: statuses}
}

// ensureIndentPrefix re-applies the function's original leading
// indentation when the instrumented text doesn't already start with it.
// Compose calls it only when the bytes before the span on its first line
// are not already that indentation, so a kept indent is never doubled.
func ensureIndentPrefix(text, indentPrefix string) string {
	if indentPrefix == "" {
		return text
	}
	if hasPrefix(text, indentPrefix) {
		return text
	}
	return indentPrefix + text
}

func hasPrefix(s, prefix string) bool {
	if len(prefix) > len(s) {
		return false
	}
	return s[:len(prefix)] == prefix
}
