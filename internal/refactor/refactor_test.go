package refactor

import (
	"context"
	"os/exec"
	"testing"

	"scriptforge/internal/lessons"
	"scriptforge/internal/model"
	"scriptforge/internal/sandbox"
	"scriptforge/internal/validator"
)

func skipIfNoGoToolchain(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("go"); err != nil {
		t.Skip("go toolchain not available in this environment")
	}
}

func sampleFunction() model.FunctionRecord {
	body := []byte("func Add(a, b int) int {\n\treturn a + b\n}\n")
	return model.FunctionRecord{Name: "Add", StartLine: 1, EndLine: 3, BodyBytes: body, Language: model.LanguageGo}
}

func samplePlan() model.ProbePlan {
	plan := model.ProbePlan{
		FunctionName: "Add",
		Sites: []model.ProbeSite{
			{Kind: model.ProbeFuncEntry, Line: 1, Column: 1, Anchor: model.AnchorAfter, Payload: model.EmptyPayload{}},
		},
	}
	plan.Sort()
	return plan
}

type stubOracle struct {
	responses []string
	calls     int
}

func (s *stubOracle) Complete(ctx context.Context, prompt string) (string, error) {
	idx := s.calls
	if idx >= len(s.responses) {
		idx = len(s.responses) - 1
	}
	s.calls++
	return s.responses[idx], nil
}

func TestRefactorSucceedsOnSecondAttempt(t *testing.T) {
	skipIfNoGoToolchain(t)

	fn := sampleFunction()
	plan := samplePlan()

	badSource := "```go\npackage main\n\nimport (\n\t\"fmt\"\n\t\"os\"\n)\n\nfunc main() {\n\tdata, _ := os.ReadFile(os.Args[1])\n\tfmt.Print(string(data))\n}\n```"
	goodSource := "```go\npackage main\n\nimport (\n\t\"fmt\"\n\t\"os\"\n)\n\nfunc main() {\n\tdata, _ := os.ReadFile(os.Args[1])\n\tfmt.Print(string(data) + \"__probe.Emit(\\\"func_entry\\\", \\\"\\\", nil)\\n\")\n}\n```"

	o := &stubOracle{responses: []string{badSource, goodSource}}
	val := validator.New(sandbox.New())
	loop := New(o, val, lessons.Empty())

	failing := model.Transformer{Source: "package main\nfunc main() {}\n", FunctionName: "Add", Language: model.LanguageGo, Plan: plan}
	reasons := []string{"behavioral: missing probe call"}

	_, err := loop.Refactor(context.Background(), failing, reasons, fn, plan, model.LanguageGo, 0)
	if err != nil {
		t.Fatalf("expected eventual success, got %v", err)
	}
	if o.calls != 2 {
		t.Fatalf("expected exactly 2 oracle calls, got %d", o.calls)
	}
}

func TestRefactorExhaustsAfterMaxAttempts(t *testing.T) {
	fn := sampleFunction()
	plan := samplePlan()

	o := &stubOracle{responses: []string{"not valid go at all {{{"}}
	val := validator.New(sandbox.New())
	loop := New(o, val, lessons.Empty())
	loop.MaxAttempts = 2

	failing := model.Transformer{Source: "package main\nfunc main() {}\n", FunctionName: "Add", Language: model.LanguageGo, Plan: plan}

	_, err := loop.Refactor(context.Background(), failing, []string{"syntactic: bad"}, fn, plan, model.LanguageGo, 0)
	if err == nil {
		t.Fatalf("expected exhaustion error")
	}
	if _, ok := err.(*Exhausted); !ok {
		t.Fatalf("expected *Exhausted, got %T: %v", err, err)
	}
	if o.calls != 2 {
		t.Fatalf("expected exactly MaxAttempts oracle calls, got %d", o.calls)
	}
}

func TestRefactorStopsImmediatelyWhenAttemptsSoFarAlreadyAtBound(t *testing.T) {
	fn := sampleFunction()
	plan := samplePlan()
	o := &stubOracle{responses: []string{"```go\npackage main\nfunc main() {}\n```"}}
	val := validator.New(sandbox.New())
	loop := New(o, val, lessons.Empty())
	loop.MaxAttempts = 3

	failing := model.Transformer{Source: "package main\nfunc main() {}\n", FunctionName: "Add", Language: model.LanguageGo, Plan: plan}

	_, err := loop.Refactor(context.Background(), failing, []string{"x"}, fn, plan, model.LanguageGo, 3)
	if err == nil {
		t.Fatalf("expected immediate exhaustion")
	}
	if o.calls != 0 {
		t.Fatalf("expected no oracle calls when already at bound, got %d", o.calls)
	}
}
