// Package generator implements the Transformer Generator (C3): producing a
// standalone, deterministic Transformer program for one function, trying
// the template path first and falling back to the external analyzer
// (oracle) when the template can't handle the function's language.
package generator

import (
	"context"
	"errors"

	"scriptforge/internal/lessons"
	"scriptforge/internal/logging"
	"scriptforge/internal/model"
	"scriptforge/internal/oracle"
)

// Generator ties the template and oracle paths together: it produces a
// Transformer from a function record, its probe plan, and the target
// language, consulting the lesson corpus on the oracle path.
type Generator struct {
	Oracle  oracle.Oracle
	Lessons *lessons.Corpus
}

// New builds a Generator. A nil corpus is treated as empty.
func New(o oracle.Oracle, corpus *lessons.Corpus) *Generator {
	if corpus == nil {
		corpus = lessons.Empty()
	}
	return &Generator{Oracle: o, Lessons: corpus}
}

// Generate produces a candidate Transformer for fn under plan. The template
// path runs first; it only yields to the oracle path when the template
// synthesizer raises TemplateNotApplicable, per the choice policy.
func (g *Generator) Generate(ctx context.Context, fn model.FunctionRecord, plan model.ProbePlan, lang model.Language) (model.Transformer, error) {
	t, err := TemplateGenerate(fn, plan, lang)
	if err == nil {
		logging.Generator("template path produced transformer for %s (%s)", fn.Name, lang)
		return t, nil
	}

	var notApplicable *TemplateNotApplicable
	if !errors.As(err, &notApplicable) {
		return model.Transformer{}, &GenerationError{FunctionName: fn.Name, Message: "template generation failed", Cause: err}
	}

	logging.GeneratorDebug("template not applicable for %s (%s), falling back to oracle", fn.Name, lang)
	t, oerr := OracleGenerate(ctx, g.Oracle, fn, plan, lang, g.Lessons)
	if oerr != nil {
		return model.Transformer{}, oerr
	}
	logging.Generator("oracle path produced transformer for %s (%s)", fn.Name, lang)
	return t, nil
}
