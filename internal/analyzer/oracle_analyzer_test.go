package analyzer

import (
	"context"
	"testing"

	"scriptforge/internal/model"
)

// stubJSONOracle answers every prompt with a fixed analysis payload.
type stubJSONOracle string

func (s stubJSONOracle) Complete(ctx context.Context, prompt string) (string, error) {
	return string(s), nil
}

func TestOracleAnalyzerConvertsAnalysisJSON(t *testing.T) {
	payload := `{"functions":[{"name":"risky","start_line":1,"end_line":3,"probe_sites":[
  {"kind":"func_entry","line":1,"column":9,"anchor":"after"},
  {"kind":"var_change","line":2,"column":5,"anchor":"after","variable_name":"x"},
  {"kind":"exc_caught","line":2,"column":1,"anchor":"after","handler_name":"ValueError"},
  {"kind":"return_value","line":3,"column":5,"anchor":"before","expression_text":"x"},
  {"kind":"bogus","line":2,"column":1,"anchor":"before"}
]}]}`
	src := "def risky():\n    x = 1\n    return x\n"

	a := NewOracleAnalyzer(stubJSONOracle(payload), model.LanguagePython)
	result, err := a.Analyze(context.Background(), model.NewSourceFile(model.LanguagePython, []byte(src), "r.py"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(result.Functions) != 1 {
		t.Fatalf("expected 1 function, got %d", len(result.Functions))
	}
	fn := result.Functions[0]
	if fn.Name != "risky" || fn.StartLine != 1 || fn.EndLine != 3 {
		t.Fatalf("unexpected function record: %+v", fn)
	}
	if fn.StartOffset != 0 || fn.EndOffset != len(src) {
		t.Fatalf("expected span [0,%d), got [%d,%d)", len(src), fn.StartOffset, fn.EndOffset)
	}
	if string(fn.BodyBytes) != src {
		t.Fatalf("expected body bytes rebuilt from the span, got %q", fn.BodyBytes)
	}

	plan := result.Plans["risky"]
	if len(plan.Sites) != 4 {
		t.Fatalf("expected the unknown-kind site to be dropped, leaving 4, got %d: %+v", len(plan.Sites), plan.Sites)
	}

	var sawVar, sawExc, sawReturn bool
	for _, s := range plan.Sites {
		switch s.Kind {
		case model.ProbeVarChange:
			sawVar = true
			if p, ok := s.Payload.(model.VarChangePayload); !ok || p.VariableName != "x" {
				t.Fatalf("expected var_change payload naming x, got %+v", s.Payload)
			}
		case model.ProbeExcCaught:
			sawExc = true
			if p, ok := s.Payload.(model.ExcPayload); !ok || p.HandlerName != "ValueError" {
				t.Fatalf("expected exc_caught payload naming ValueError, got %+v", s.Payload)
			}
		case model.ProbeReturnValue:
			sawReturn = true
			if p, ok := s.Payload.(model.ReturnPayload); !ok || p.ExpressionText != "x" {
				t.Fatalf("expected return_value payload carrying x, got %+v", s.Payload)
			}
		}
	}
	if !sawVar || !sawExc || !sawReturn {
		t.Fatalf("expected var_change, exc_caught and return_value sites, got %+v", plan.Sites)
	}
}

func TestOracleAnalyzerUnparseableJSONIsParseError(t *testing.T) {
	a := NewOracleAnalyzer(stubJSONOracle("this is not json"), model.LanguagePython)
	_, err := a.Analyze(context.Background(), model.NewSourceFile(model.LanguagePython, []byte("def f(): pass\n"), "f.py"))
	if err == nil {
		t.Fatalf("expected an error for unparseable oracle output")
	}
	if _, ok := err.(*ParseError); !ok {
		t.Fatalf("expected *ParseError, got %T", err)
	}
}
