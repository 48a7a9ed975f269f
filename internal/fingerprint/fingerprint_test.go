package fingerprint

import (
	"testing"

	"scriptforge/internal/model"
)

func plan(sites ...model.ProbeSite) model.ProbePlan {
	return model.ProbePlan{FunctionName: "f", Sites: sites}
}

func TestComputeStableAcrossLeadingOffset(t *testing.T) {
	fnA := model.FunctionRecord{
		Name:      "f",
		BodyBytes: []byte("func f() {\n\tx := 1\n\treturn x\n}"),
		StartLine: 10,
		EndLine:   13,
		Language:  model.LanguageGo,
	}
	fnB := fnA
	fnB.StartLine = 100
	fnB.EndLine = 103

	siteA := model.ProbeSite{Kind: model.ProbeVarChange, Line: 11, Column: 2, Anchor: model.AnchorAfter, Payload: model.VarChangePayload{VariableName: "x"}}
	siteB := siteA
	siteB.Line = 101

	da := Compute(fnA, model.LanguageGo, plan(siteA), "v1")
	db := Compute(fnB, model.LanguageGo, plan(siteB), "v1")

	if da != db {
		t.Fatalf("expected fingerprints to match across differing absolute line numbers: %s vs %s", da, db)
	}
}

func TestComputeDiffersOnLessonCorpusVersion(t *testing.T) {
	fn := model.FunctionRecord{Name: "f", BodyBytes: []byte("func f() {}"), StartLine: 1, EndLine: 1}
	d1 := Compute(fn, model.LanguageGo, plan(), "v1")
	d2 := Compute(fn, model.LanguageGo, plan(), "v2")
	if d1 == d2 {
		t.Fatalf("expected differing lesson corpus versions to produce different fingerprints")
	}
}

func TestComputeDiffersOnLanguage(t *testing.T) {
	fn := model.FunctionRecord{Name: "f", BodyBytes: []byte("def f(): pass"), StartLine: 1, EndLine: 1}
	d1 := Compute(fn, model.LanguageGo, plan(), "v1")
	d2 := Compute(fn, model.LanguagePython, plan(), "v1")
	if d1 == d2 {
		t.Fatalf("expected differing languages to produce different fingerprints")
	}
}

func TestComputeIgnoresTrailingWhitespace(t *testing.T) {
	fn1 := model.FunctionRecord{Name: "f", BodyBytes: []byte("func f() {  \n\treturn\t\n}"), StartLine: 1, EndLine: 3}
	fn2 := model.FunctionRecord{Name: "f", BodyBytes: []byte("func f() {\n\treturn\n}"), StartLine: 1, EndLine: 3}
	d1 := Compute(fn1, model.LanguageGo, plan(), "v1")
	d2 := Compute(fn2, model.LanguageGo, plan(), "v1")
	if d1 != d2 {
		t.Fatalf("expected trailing whitespace to be stripped before hashing")
	}
}

func TestComputeDiffersOnProbePlan(t *testing.T) {
	fn := model.FunctionRecord{Name: "f", BodyBytes: []byte("func f() {}"), StartLine: 1, EndLine: 1}
	site := model.ProbeSite{Kind: model.ProbeFuncEntry, Line: 1, Column: 1, Anchor: model.AnchorAfter, Payload: model.EmptyPayload{}}
	d1 := Compute(fn, model.LanguageGo, plan(), "v1")
	d2 := Compute(fn, model.LanguageGo, plan(site), "v1")
	if d1 == d2 {
		t.Fatalf("expected differing probe plans to produce different fingerprints")
	}
}

func TestShortIsEightHexChars(t *testing.T) {
	fn := model.FunctionRecord{Name: "f", BodyBytes: []byte("func f() {}"), StartLine: 1, EndLine: 1}
	d := Compute(fn, model.LanguageGo, plan(), "v1")
	if len(d.Short()) != 8 {
		t.Fatalf("expected 8-char short form, got %q", d.Short())
	}
}
