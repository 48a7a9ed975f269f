package generator

import (
	"context"
	"encoding/json"
	"fmt"

	"scriptforge/internal/lessons"
	"scriptforge/internal/model"
	"scriptforge/internal/oracle"
)

// GenerationError wraps a failure to produce any candidate Transformer, by
// either path, for one Work Item. Non-fatal to the batch.
type GenerationError struct {
	FunctionName string
	Message      string
	Cause        error
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("generator: %s: %s", e.FunctionName, e.Message)
}

func (e *GenerationError) Unwrap() error { return e.Cause }

const transformerContractPrompt = `You write a single, self-contained Go program - a "Transformer" - that
rewrites one function's original source text into an instrumented version.

Contract (must hold exactly):
- The program reads exactly one command-line argument: a path to a file
  containing the function's original text.
- It writes the instrumented text to stdout and exits 0 on success.
- Diagnostics, if any, go to stderr. Non-zero exit on any failure.
- Two runs on identical input bytes MUST produce byte-identical stdout.
- Stdout must end with a single newline if and only if the input did.
- The program must have no side effects outside itself: no network access,
  no reads outside its own working directory, no process spawning, no
  dynamic code evaluation.
- It must insert, exactly once each, every probe-call line listed below,
  and must not delete, reorder, or duplicate any other token of the
  original function text.
- Respond with ONLY the Go source inside a single fenced code block.`

// oraclePlanSite is one entry of a flattened, JSON-friendly view of a Probe Plan used to
// describe the required insertions to the oracle - the plan's own Go types
// aren't directly JSON-round-trippable in a model-friendly shape.
type oraclePlanSite struct {
	Kind   string `json:"kind"`
	Line   int    `json:"line"`
	Anchor string `json:"anchor"`
	Call   string `json:"probe_call_text"`
}

func planForPrompt(lang model.Language, plan model.ProbePlan) []byte {
	var sites []oraclePlanSite
	for _, s := range plan.Sites {
		sites = append(sites, oraclePlanSite{
			Kind:   string(s.Kind),
			Line:   s.Line,
			Anchor: string(s.Anchor),
			Call:   RenderProbeCall(lang, s),
		})
	}
	data, _ := json.MarshalIndent(sites, "", "  ")
	return data
}

// OracleGenerate implements the oracle fallback path: the external
// analyzer is asked to emit a Transformer satisfying the same I/O contract
// the template path produces, given the function text, the required probe
// insertions, and the language's lesson corpus.
func OracleGenerate(ctx context.Context, o oracle.Oracle, fn model.FunctionRecord, plan model.ProbePlan, lang model.Language, corpus *lessons.Corpus) (model.Transformer, error) {
	prompt := fmt.Sprintf(
		"Target language of the function being instrumented: %s\nFunction name: %s\n\nOriginal function text:\n```\n%s\n```\n\nRequired insertions (apply each exactly once):\n```json\n%s\n```\n\nLesson notes for %s:\n%s",
		lang, fn.Name, string(fn.BodyBytes), planForPrompt(lang, plan), lang, corpus.Render(lang),
	)

	raw, err := oracle.Complete(ctx, o, transformerContractPrompt, prompt)
	if err != nil {
		return model.Transformer{}, &GenerationError{FunctionName: fn.Name, Message: "oracle generation unavailable", Cause: err}
	}

	source := oracle.ExtractCode(raw)
	if source == "" {
		return model.Transformer{}, &GenerationError{FunctionName: fn.Name, Message: "oracle returned empty transformer source"}
	}

	return model.Transformer{
		Source:       source,
		Mode:         model.GeneratorOracle,
		Language:     lang,
		FunctionName: fn.Name,
		Plan:         plan,
	}, nil
}
