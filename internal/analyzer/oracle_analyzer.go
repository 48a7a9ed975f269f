package analyzer

import (
	"context"
	"encoding/json"
	"fmt"

	"scriptforge/internal/logging"
	"scriptforge/internal/model"
	"scriptforge/internal/oracle"
)

// oracleAnalysis is the JSON shape the oracle is asked to emit: a
// deliberately flat schema so a text-completion model can produce it
// reliably without nested-type ambiguity.
type oracleAnalysis struct {
	Functions []oracleFunction `json:"functions"`
}

type oracleFunction struct {
	Name       string       `json:"name"`
	StartLine  int          `json:"start_line"`
	EndLine    int          `json:"end_line"`
	ProbeSites []oracleSite `json:"probe_sites"`
}

type oracleSite struct {
	Kind           string `json:"kind"`
	Line           int    `json:"line"`
	Column         int    `json:"column"`
	Anchor         string `json:"anchor"`
	VariableName   string `json:"variable_name,omitempty"`
	LoopVariable   string `json:"loop_variable,omitempty"`
	ConditionText  string `json:"condition_text,omitempty"`
	BranchID       string `json:"branch_id,omitempty"`
	HandlerName    string `json:"handler_name,omitempty"`
	Operation      string `json:"operation,omitempty"`
	ReceiverText   string `json:"receiver_text,omitempty"`
	MethodName     string `json:"method_name,omitempty"`
	ExpressionText string `json:"expression_text,omitempty"`
}

const oracleAnalyzerSystemPrompt = `You analyze source code and return a JSON object describing every function
and its instrumentation probe sites. Respond with ONLY a single JSON object matching this shape:
{"functions":[{"name":"...","start_line":1,"end_line":10,"probe_sites":[
  {"kind":"func_entry|func_exit|loop_entry|loop_exit|cond_entry|cond_exit|var_change|exc_enter|exc_caught|exc_exit|array_create|array_modify|array_access|call_trace|return_value",
   "line":1,"column":1,"anchor":"before|after", ...kind-specific fields}
]}]}
Line and column are 1-indexed and relative to the original file. Do not include any prose outside the JSON object.`

// OracleAnalyzer implements the C1 "oracle strategy" fallback: the external
// analyzer is asked to return a JSON AnalysisResult directly, at the cost
// of one oracle call per file.
type OracleAnalyzer struct {
	oracle oracle.Oracle
	lang   model.Language
}

// NewOracleAnalyzer builds a fallback analyzer bound to a specific
// language (the registry picks it only when no structured analyzer
// handles that language, or the structured analyzer failed).
func NewOracleAnalyzer(o oracle.Oracle, lang model.Language) *OracleAnalyzer {
	return &OracleAnalyzer{oracle: o, lang: lang}
}

func (a *OracleAnalyzer) Language() model.Language { return a.lang }

func (a *OracleAnalyzer) Analyze(ctx context.Context, source model.SourceFile) (AnalysisResult, error) {
	prompt := fmt.Sprintf("Language: %s\nFile: %s\n\n```\n%s\n```", source.Language, source.Path, string(source.Bytes))

	raw, err := oracle.Complete(ctx, a.oracle, oracleAnalyzerSystemPrompt, prompt)
	if err != nil {
		return AnalysisResult{}, &ParseError{Path: source.Path, Message: "oracle analysis unavailable", Cause: err}
	}

	extracted := oracle.ExtractCode(raw)

	var parsed oracleAnalysis
	if err := json.Unmarshal([]byte(extracted), &parsed); err != nil {
		return AnalysisResult{}, &ParseError{Path: source.Path, Message: "oracle returned unparseable analysis JSON", Cause: err}
	}

	result := AnalysisResult{Plans: make(map[string]model.ProbePlan)}
	lines := splitLines(source.Bytes)

	for _, fn := range parsed.Functions {
		rec := buildRecordFromOracle(fn, source, lines)
		result.Functions = append(result.Functions, rec)

		var sites []model.ProbeSite
		for _, s := range fn.ProbeSites {
			site, ok := convertOracleSite(s)
			if !ok {
				logging.Get(logging.CategoryAnalyzer).Warn("oracle analyzer: skipping site of unknown kind %q for %s", s.Kind, fn.Name)
				continue
			}
			sites = append(sites, site)
		}
		result.Plans[fn.Name] = BuildPlan(fn.Name, sites)
	}

	logging.Analyzer("oracle analyzer: %s produced %d function records", source.Path, len(result.Functions))
	return result, nil
}

func buildRecordFromOracle(fn oracleFunction, source model.SourceFile, lines []string) model.FunctionRecord {
	startOffset := lineStartOffset(lines, fn.StartLine)
	endOffset := lineStartOffset(lines, fn.EndLine+1)
	if endOffset == 0 || endOffset > len(source.Bytes) {
		endOffset = len(source.Bytes)
	}

	sig := ""
	if fn.StartLine > 0 && fn.StartLine <= len(lines) {
		sig = lines[fn.StartLine-1]
	}

	return model.FunctionRecord{
		Name:          fn.Name,
		SignatureText: sig,
		StartOffset:   startOffset,
		EndOffset:     endOffset,
		StartLine:     fn.StartLine,
		EndLine:       fn.EndLine,
		IndentPrefix:  leadingIndent(lines, fn.StartLine),
		BodyBytes:     source.Bytes[startOffset:endOffset],
		Language:      source.Language,
	}
}

func convertOracleSite(s oracleSite) (model.ProbeSite, bool) {
	anchor := model.AnchorAfter
	if s.Anchor == string(model.AnchorBefore) {
		anchor = model.AnchorBefore
	}

	site := model.ProbeSite{
		Kind:     model.ProbeKind(s.Kind),
		Line:     s.Line,
		Column:   s.Column,
		Anchor:   anchor,
		BranchID: s.BranchID,
	}

	switch model.ProbeKind(s.Kind) {
	case model.ProbeFuncEntry, model.ProbeFuncExit, model.ProbeLoopExit:
		site.Payload = model.EmptyPayload{}
	case model.ProbeLoopEntry:
		site.Payload = model.LoopPayload{LoopVariable: s.LoopVariable}
	case model.ProbeCondEntry, model.ProbeCondExit:
		site.Payload = model.CondPayload{ConditionText: s.ConditionText, BranchID: s.BranchID}
	case model.ProbeVarChange:
		site.Payload = model.VarChangePayload{VariableName: s.VariableName}
	case model.ProbeExcEnter, model.ProbeExcCaught, model.ProbeExcExit:
		site.Payload = model.ExcPayload{HandlerName: s.HandlerName}
	case model.ProbeArrayCreate, model.ProbeArrayModify, model.ProbeArrayAccess:
		site.Payload = model.ArrayPayload{VariableName: s.VariableName, Operation: s.Operation}
	case model.ProbeCallTrace:
		site.Payload = model.CallPayload{ReceiverText: s.ReceiverText, MethodName: s.MethodName}
	case model.ProbeReturnValue:
		site.Payload = model.ReturnPayload{ExpressionText: s.ExpressionText}
	default:
		return model.ProbeSite{}, false
	}

	return site, true
}

func splitLines(b []byte) []string {
	var lines []string
	start := 0
	for i, c := range b {
		if c == '\n' {
			lines = append(lines, string(b[start:i]))
			start = i + 1
		}
	}
	lines = append(lines, string(b[start:]))
	return lines
}

func lineStartOffset(lines []string, line int) int {
	if line <= 1 {
		return 0
	}
	offset := 0
	for i := 0; i < line-1 && i < len(lines); i++ {
		offset += len(lines[i]) + 1
	}
	return offset
}
