package generator

import (
	"fmt"
	"strconv"
	"strings"

	"scriptforge/internal/model"
)

// TemplateNotApplicable is raised by TemplateGenerate when no built-in
// template synthesizer covers the function's language, per the
// "Choice policy" - the generator falls back to the oracle path in that
// case rather than failing the Work Item outright.
type TemplateNotApplicable struct {
	Language model.Language
}

func (e *TemplateNotApplicable) Error() string {
	return fmt.Sprintf("generator: no template synthesizer for language %q", e.Language)
}

// TemplateGenerate implements the template path: it does not embed a
// parser at runtime. Instead it bakes the pre-computed, pre-sorted Probe
// Plan into a small standalone Go program's source, which at runtime does
// pure text splicing - splitting the original function text into lines and
// inserting each probe-call line at its recorded position, in the plan's
// already-descending order, so earlier insertions never have their offsets
// invalidated by later ones.
func TemplateGenerate(fn model.FunctionRecord, plan model.ProbePlan, lang model.Language) (model.Transformer, error) {
	if !lang.HasStructuredAnalyzer() {
		return model.Transformer{}, &TemplateNotApplicable{Language: lang}
	}

	source := buildTemplateProgram(fn, plan, lang)
	return model.Transformer{
		Source:       source,
		Mode:         model.GeneratorTemplate,
		Language:     lang,
		FunctionName: fn.Name,
		Plan:         plan,
	}, nil
}

// buildTemplateProgram renders the Transformer's own implementation (always
// a Go program, regardless of the target function's language - only the
// probe-call text embedded inside it is rendered in the target language's
// syntax, via RenderProbeCall).
func buildTemplateProgram(fn model.FunctionRecord, plan model.ProbePlan, lang model.Language) string {
	var b strings.Builder
	b.WriteString("package main\n\n")
	b.WriteString("import (\n\t\"fmt\"\n\t\"os\"\n\t\"strings\"\n)\n\n")
	b.WriteString("type insertion struct {\n\tLine   int\n\tAfter  bool\n\tText   string\n}\n\n")

	b.WriteString("// insertions is the embedded Probe Plan for " + strconv.Quote(fn.Name) + ", pre-sorted\n")
	b.WriteString("// descending by (line, column, anchor) at generation time.\n")
	b.WriteString("var insertions = []insertion{\n")
	for _, site := range plan.Sites {
		text := RenderProbeCall(lang, site)
		// Site lines count from the top of the file; the Transformer's
		// input is the function text alone, whose line 1 is fn.StartLine.
		line := site.Line
		if fn.StartLine > 0 {
			line = site.Line - fn.StartLine + 1
		}
		b.WriteString(fmt.Sprintf("\t{Line: %d, After: %t, Text: %s},\n", line, site.Anchor == model.AnchorAfter, strconv.Quote(text)))
	}
	b.WriteString("}\n\n")

	b.WriteString(templateMainBody)
	return b.String()
}

// templateMainBody is the fixed runtime logic every template-path
// Transformer shares: read the original function text from the single
// positional argument, splice in each insertion at its line with the
// anchor line's own indentation, and emit the result to stdout - matching
// the I/O contract (exit 0 on success, stdout ends with a newline iff
// the input did, no side effects outside this process).
const templateMainBody = `func leadingIndent(s string) string {
	i := 0
	for i < len(s) && (s[i] == ' ' || s[i] == '\t') {
		i++
	}
	return s[:i]
}

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, "usage: transformer <path-to-function-source>")
		os.Exit(1)
	}

	data, err := os.ReadFile(os.Args[1])
	if err != nil {
		fmt.Fprintln(os.Stderr, "transformer: read input:", err)
		os.Exit(1)
	}

	text := string(data)
	trailingNewline := strings.HasSuffix(text, "\n")
	text = strings.ReplaceAll(text, "\r\n", "\n")
	lines := strings.Split(strings.TrimSuffix(text, "\n"), "\n")

	for _, ins := range insertions {
		idx := ins.Line - 1
		if idx < 0 || idx > len(lines) {
			continue
		}
		anchorLine := ""
		if idx < len(lines) {
			anchorLine = lines[idx]
		} else if idx > 0 {
			anchorLine = lines[idx-1]
		}
		rendered := leadingIndent(anchorLine) + ins.Text

		if ins.After {
			if idx+1 > len(lines) {
				lines = append(lines, rendered)
				continue
			}
			lines = append(lines[:idx+1], append([]string{rendered}, lines[idx+1:]...)...)
		} else {
			lines = append(lines[:idx], append([]string{rendered}, lines[idx:]...)...)
		}
	}

	out := strings.Join(lines, "\n")
	if trailingNewline {
		out += "\n"
	}
	fmt.Print(out)
}
`
