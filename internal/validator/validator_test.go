package validator

import (
	"context"
	"os/exec"
	"strings"
	"testing"

	"scriptforge/internal/generator"
	"scriptforge/internal/model"
	"scriptforge/internal/sandbox"
)

func skipIfNoGoToolchain(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("go"); err != nil {
		t.Skip("go toolchain not available in this environment")
	}
}

func sampleFunction() model.FunctionRecord {
	body := []byte("func Add(a, b int) int {\n\treturn a + b\n}\n")
	return model.FunctionRecord{
		Name:         "Add",
		StartOffset:  0,
		EndOffset:    len(body),
		StartLine:    1,
		EndLine:      3,
		IndentPrefix: "",
		BodyBytes:    body,
		Language:     model.LanguageGo,
	}
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

func TestValidatorAcceptsWellFormedTemplateTransformer(t *testing.T) {
	skipIfNoGoToolchain(t)

	fn := sampleFunction()
	plan := samplePlan()
	tr, err := generator.TemplateGenerate(fn, plan, model.LanguageGo)
	if err != nil {
		t.Fatalf("template generate: %v", err)
	}

	val := New(sandbox.New())
	res := val.Validate(context.Background(), tr, fn, plan, model.LanguageGo)
	if res.Status != Valid {
		t.Fatalf("expected Valid, got %s with reasons %v", res.Status, res.Reasons)
	}
}

func TestValidatorRejectsSyntaxError(t *testing.T) {
	fn := sampleFunction()
	plan := samplePlan()
	tr := model.Transformer{Source: "package main\nfunc main( {\n", FunctionName: "Add", Language: model.LanguageGo}

	val := New(sandbox.New())
	res := val.Validate(context.Background(), tr, fn, plan, model.LanguageGo)
	if res.Status != Invalid {
		t.Fatalf("expected Invalid for syntax error")
	}
	if len(res.Reasons) == 0 {
		t.Fatalf("expected at least one reason")
	}
}

func TestValidatorRejectsProgramThatDoesNotCompile(t *testing.T) {
	fn := sampleFunction()
	plan := samplePlan()
	// Parses fine, but references an undefined identifier - the parse-only
	// check passes and the interpreter compile check must catch it.
	tr := model.Transformer{
		Source:       "package main\n\nfunc main() {\n\tundefinedCall()\n}\n",
		FunctionName: "Add",
		Language:     model.LanguageGo,
	}

	val := New(sandbox.New())
	res := val.Validate(context.Background(), tr, fn, plan, model.LanguageGo)
	if res.Status != Invalid {
		t.Fatalf("expected Invalid for non-compiling program")
	}
	found := false
	for _, r := range res.Reasons {
		if strings.Contains(r, "does not compile") {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected a compile reason, got %v", res.Reasons)
	}
}

func TestValidatorRejectsDeniedImport(t *testing.T) {
	skipIfNoGoToolchain(t)

	fn := sampleFunction()
	plan := samplePlan()
	tr := model.Transformer{
		Source: `package main

import (
	"fmt"
	"os/exec"
)

func main() {
	exec.Command("echo", "hi").Run()
	fmt.Println("done")
}
`,
		FunctionName: "Add",
		Language:     model.LanguageGo,
	}

	val := New(sandbox.New())
	res := val.Validate(context.Background(), tr, fn, plan, model.LanguageGo)
	if res.Status != Invalid {
		t.Fatalf("expected Invalid for denied import")
	}
	found := false
	for _, r := range res.Reasons {
		if r == `policy: forbidden import "os/exec"` {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected a policy reason naming os/exec, got %v", res.Reasons)
	}
}

func TestValidatorRejectsTransformerThatDropsProbeCalls(t *testing.T) {
	skipIfNoGoToolchain(t)

	fn := sampleFunction()
	plan := samplePlan()
	// A transformer that simply echoes input back, never inserting the
	// required probe call - the behavioral check's probe-count assertion
	// must catch this.
	tr := model.Transformer{
		Source: `package main

import (
	"fmt"
	"os"
)

func main() {
	data, _ := os.ReadFile(os.Args[1])
	fmt.Print(string(data))
}
`,
		FunctionName: "Add",
		Language:     model.LanguageGo,
		Plan:         plan,
	}

	val := New(sandbox.New())
	res := val.Validate(context.Background(), tr, fn, plan, model.LanguageGo)
	if res.Status != Invalid {
		t.Fatalf("expected Invalid when no probe call is inserted, got Valid")
	}
}
