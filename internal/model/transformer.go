package model

// GeneratorMode records which path produced a Transformer.
type GeneratorMode string

const (
	GeneratorTemplate GeneratorMode = "template"
	GeneratorOracle   GeneratorMode = "oracle"
)

// Transformer is a self-contained program artifact: given the original
// function text on disk, it deterministically emits the instrumented text
// on stdout. internal/sandbox is the only package allowed to invoke one.
type Transformer struct {
	// Source is the Transformer's own program text (e.g. a small Go
	// program). It is what gets written to the cache's .prog file and run
	// by the sandbox.
	Source string

	// Mode records how Source was produced.
	Mode GeneratorMode

	// Language is the target language of the function this Transformer
	// instruments (not necessarily the implementation language of Source).
	Language Language

	// FunctionName names the function this Transformer was generated for;
	// used as a sanity check on cache hit.
	FunctionName string

	// Plan is embedded so the Transformer is self-contained: the full Probe
	// Plan travels with the program that applies it.
	Plan ProbePlan

	// RefactorAttempt is 0 for a first-generation Transformer, and the
	// 1-indexed refactor attempt number for a Transformer produced by the
	// Refactor Loop.
	RefactorAttempt int
}

// GeneratedTest is a program that asserts properties of a Transformer
// against a fixed Function Record (see behavioral checks). Stored
// alongside its Transformer in the Script Cache.
type GeneratedTest struct {
	Source       string
	FunctionName string
	Language     Language
}
