package validator

import (
	"fmt"
	"strconv"
	"strings"

	"scriptforge/internal/generator"
	"scriptforge/internal/model"
)

// SynthesizeTest is the exported form of synthesizeTest, used by callers
// that need the same Generated Test body that Validate runs internally -
// chiefly the orchestrator, which persists it alongside a newly accepted
// Transformer in the Script Cache so a later cache hit can re-run the
// identical behavioral check.
func SynthesizeTest(fn model.FunctionRecord, plan model.ProbePlan, lang model.Language) model.GeneratedTest {
	return synthesizeTest(fn, plan, lang)
}

// synthesizeTest builds the Generated Test: a standalone Go program that,
// given a Transformer's own source file and a fixed Function Record,
// asserts the four behavioral properties - exit code 0, every probe-call
// text present exactly once, every non-inserted token preserved in its
// original order, and determinism across two runs. Unlike the Transformer
// under test, this harness is core-synthesized (never oracle-authored), so
// it is trusted to shell out to `go run` itself - the policy deny-list
// governs the candidate Transformer, not the test harness validating it.

func synthesizeTest(fn model.FunctionRecord, plan model.ProbePlan, lang model.Language) model.GeneratedTest {
	var calls []string
	for _, site := range plan.Sites {
		calls = append(calls, generator.RenderProbeCall(lang, site))
	}

	var b strings.Builder
	b.WriteString("package main\n\n")
	b.WriteString("import (\n\t\"bytes\"\n\t\"fmt\"\n\t\"os\"\n\t\"os/exec\"\n\t\"strings\"\n)\n\n")

	b.WriteString("var originalText = ")
	b.WriteString(strconv.Quote(string(fn.BodyBytes)))
	b.WriteString("\n\n")

	b.WriteString("var expectedCalls = []string{\n")
	for _, c := range calls {
		b.WriteString("\t" + strconv.Quote(c) + ",\n")
	}
	b.WriteString("}\n\n")

	b.WriteString(testMainBody)
	return model.GeneratedTest{Source: b.String(), FunctionName: fn.Name, Language: lang}
}

// testMainBody is fixed across every synthesized test: it takes the
// transformer's source path and a scratch directory, writes the embedded
// original function text to an input file, runs the transformer against it
// twice (determinism), and checks the four behavioral properties.
const testMainBody = `func run(transformerPath, inputPath string) (string, error) {
	cmd := exec.Command("go", "run", transformerPath, inputPath)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("transformer exited non-zero: %v (stderr: %s)", err, stderr.String())
	}
	return stdout.String(), nil
}

func stripInsertedLines(text string) string {
	lines := strings.Split(text, "\n")
	var out []string
	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		isInserted := false
		for _, call := range expectedCalls {
			if trimmed == strings.TrimSpace(call) {
				isInserted = true
				break
			}
		}
		if !isInserted {
			out = append(out, line)
		}
	}
	return strings.Join(out, "\n")
}

func main() {
	if len(os.Args) < 3 {
		fmt.Fprintln(os.Stderr, "usage: test <transformer-source-path> <scratch-dir>")
		os.Exit(1)
	}
	transformerPath := os.Args[1]
	scratchDir := os.Args[2]

	inputPath := scratchDir + "/input.src"
	if err := os.WriteFile(inputPath, []byte(originalText), 0644); err != nil {
		fmt.Fprintln(os.Stderr, "write input:", err)
		os.Exit(1)
	}

	first, err := run(transformerPath, inputPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "first run failed:", err)
		os.Exit(1)
	}

	second, err := run(transformerPath, inputPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "second run failed:", err)
		os.Exit(1)
	}
	if first != second {
		fmt.Fprintln(os.Stderr, "determinism check failed: two runs produced different output")
		os.Exit(1)
	}

	for _, call := range expectedCalls {
		count := strings.Count(first, call)
		if count != 1 {
			fmt.Fprintf(os.Stderr, "probe count mismatch: %q appeared %d times, want 1\n", call, count)
			os.Exit(1)
		}
	}

	gotTokens := strings.Fields(stripInsertedLines(first))
	wantTokens := strings.Fields(originalText)
	if len(gotTokens) != len(wantTokens) {
		fmt.Fprintf(os.Stderr, "token preservation check failed: got %d tokens outside insertions, want %d\n", len(gotTokens), len(wantTokens))
		os.Exit(1)
	}
	for i := range gotTokens {
		if gotTokens[i] != wantTokens[i] {
			fmt.Fprintf(os.Stderr, "token preservation check failed at index %d: got %q, want %q\n", i, gotTokens[i], wantTokens[i])
			os.Exit(1)
		}
	}

	fmt.Println("ok")
}
`
