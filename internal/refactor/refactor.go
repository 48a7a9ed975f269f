// Package refactor implements a bounded state machine that asks the oracle
// to rewrite a Transformer that failed validation, re-validates the
// rewrite, and repeats up to a configured attempt count. The rewrite
// prompt reuses the generator package's oracle I/O contract language.
package refactor

import (
	"context"
	"fmt"

	"scriptforge/internal/lessons"
	"scriptforge/internal/logging"
	"scriptforge/internal/model"
	"scriptforge/internal/oracle"
	"scriptforge/internal/validator"
)

// State names the refactor loop's current position.
type State string

const (
	StateDraft            State = "Draft"
	StateValidated        State = "Validated"
	StateFailedGeneration State = "FailedGeneration"
	StateFailedValidation State = "FailedValidation"
	StateExhausted        State = "Exhausted"
	StateAccepted         State = "Accepted"
)

// Exhausted reports that the loop ran out of attempts without producing a
// Transformer that validates; Reasons carries the last attempt's validation
// reasons so the caller's failure report is actionable.
type Exhausted struct {
	FunctionName string
	Reasons      []string
}

func (e *Exhausted) Error() string {
	return fmt.Sprintf("refactor: exhausted attempts for %s: %v", e.FunctionName, e.Reasons)
}

const rewritePromptPreamble = `You previously wrote a Transformer program that failed validation. Rewrite
it to fix every problem listed below while preserving everything it already
did correctly. Keep the same I/O contract: read one file path argument,
write instrumented text to stdout, exit 0 on success, byte-identical output
across repeated runs, no side effects outside the process.
Respond with ONLY the corrected Go source inside a single fenced code
block.`

// Loop runs the bounded refactor state machine against one candidate
// Transformer that a Validator has already rejected.
type Loop struct {
	Oracle      oracle.Oracle
	Validator   *validator.Validator
	Lessons     *lessons.Corpus
	MaxAttempts int
}

// New builds a Loop with the default bound of 3 attempts.
func New(o oracle.Oracle, v *validator.Validator, corpus *lessons.Corpus) *Loop {
	return &Loop{Oracle: o, Validator: v, Lessons: corpus, MaxAttempts: 3}
}

// Refactor drives the bounded rewrite loop for transformer, which failed
// validation with reasons, until a rewrite validates or attempts run out
// (returning an *Exhausted error). attemptsSoFar is the number of refactor
// rewrites already consumed before this call (0 on the first invocation,
// following a Draft -> FailedValidation transition from the initial
// Generator output).
func (l *Loop) Refactor(ctx context.Context, transformer model.Transformer, reasons []string, fn model.FunctionRecord, plan model.ProbePlan, lang model.Language, attemptsSoFar int) (model.Transformer, error) {
	state := StateFailedValidation
	current := transformer
	currentReasons := reasons
	attempts := attemptsSoFar

	for {
		if attempts+1 > l.MaxAttempts {
			state = StateExhausted
			logging.Get(logging.CategoryRefactor).Warn("refactor: %s exhausted after %d attempts", fn.Name, attempts)
			return model.Transformer{}, &Exhausted{FunctionName: fn.Name, Reasons: currentReasons}
		}

		attempts++
		logging.Refactor("refactor: %s attempt %d/%d (state=%s)", fn.Name, attempts, l.MaxAttempts, state)

		rewritten, err := l.rewrite(ctx, current, currentReasons, fn, plan, lang)
		if err != nil {
			state = StateFailedGeneration
			logging.Get(logging.CategoryRefactor).Warn("refactor: %s generation failed on attempt %d: %v", fn.Name, attempts, err)
			currentReasons = []string{err.Error()}
			continue
		}
		rewritten.RefactorAttempt = attempts
		state = StateDraft

		result := l.Validator.Validate(ctx, rewritten, fn, plan, lang)
		if result.Status == validator.Valid {
			state = StateValidated
			logging.RefactorDebug("refactor: %s validated on attempt %d", fn.Name, attempts)
			return rewritten, nil
		}

		state = StateFailedValidation
		current = rewritten
		currentReasons = result.Reasons
	}
}

// rewrite asks the oracle to produce a corrected Transformer, given the
// prior source, the reasons it failed, and the lesson corpus - the
// FailedValidation -> Draft transition.
func (l *Loop) rewrite(ctx context.Context, prior model.Transformer, reasons []string, fn model.FunctionRecord, plan model.ProbePlan, lang model.Language) (model.Transformer, error) {
	userPrompt := fmt.Sprintf(
		"Function name: %s\nTarget language: %s\n\nPrevious Transformer source:\n```go\n%s\n```\n\nValidation failures to fix:\n%s\n\nLesson notes for %s:\n%s",
		fn.Name, lang, prior.Source, formatReasons(reasons), lang, l.Lessons.Render(lang),
	)

	raw, err := oracle.Complete(ctx, l.Oracle, rewritePromptPreamble, userPrompt)
	if err != nil {
		return model.Transformer{}, fmt.Errorf("refactor rewrite: %w", err)
	}

	source := oracle.ExtractCode(raw)
	if source == "" {
		return model.Transformer{}, fmt.Errorf("refactor rewrite: oracle returned empty source")
	}

	return model.Transformer{
		Source:       source,
		Mode:         model.GeneratorOracle,
		Language:     lang,
		FunctionName: fn.Name,
		Plan:         plan,
	}, nil
}

func formatReasons(reasons []string) string {
	out := ""
	for _, r := range reasons {
		out += "- " + r + "\n"
	}
	return out
}
