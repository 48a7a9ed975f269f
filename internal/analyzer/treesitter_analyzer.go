package analyzer

import (
	"context"
	"fmt"
	"strings"

	"scriptforge/internal/logging"
	"scriptforge/internal/model"

	"github.com/google/uuid"
	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/javascript"
	"github.com/smacker/go-tree-sitter/python"
	"github.com/smacker/go-tree-sitter/typescript/typescript"
)

// grammar collects the node-type vocabulary that differs between Python and
// the ECMAScript family; the walker below is otherwise language-agnostic.
type grammar struct {
	sitterLang  *sitter.Language
	functionDef []string // node types that introduce a new Function Record
	returnStmt  string
	forLoop     []string
	whileLoop   []string
	ifStmt      string
	tryStmt     string
	catchClause string
	assignment  string
	assignLHS   string
	callExpr    string
	callFunc    string
	memberExpr  string
	memberObj   string
	subscript   string
	arrayLit    []string
}

var pythonGrammar = grammar{
	sitterLang:  python.GetLanguage(),
	functionDef: []string{"function_definition"},
	returnStmt:  "return_statement",
	forLoop:     []string{"for_statement"},
	whileLoop:   []string{"while_statement"},
	ifStmt:      "if_statement",
	tryStmt:     "try_statement",
	catchClause: "except_clause",
	assignment:  "assignment",
	assignLHS:   "left",
	callExpr:    "call",
	callFunc:    "function",
	memberExpr:  "attribute",
	memberObj:   "object",
	subscript:   "subscript",
	arrayLit:    []string{"list", "dictionary", "set"},
}

var javascriptGrammar = grammar{
	sitterLang:  javascript.GetLanguage(),
	functionDef: []string{"function_declaration", "method_definition", "arrow_function", "function"},
	returnStmt:  "return_statement",
	forLoop:     []string{"for_statement", "for_in_statement"},
	whileLoop:   []string{"while_statement"},
	ifStmt:      "if_statement",
	tryStmt:     "try_statement",
	catchClause: "catch_clause",
	assignment:  "assignment_expression",
	assignLHS:   "left",
	callExpr:    "call_expression",
	callFunc:    "function",
	memberExpr:  "member_expression",
	memberObj:   "object",
	subscript:   "subscript_expression",
	arrayLit:    []string{"array", "object"},
}

var typescriptGrammar = grammar{
	sitterLang:  typescript.GetLanguage(),
	functionDef: []string{"function_declaration", "method_definition", "arrow_function", "function"},
	returnStmt:  "return_statement",
	forLoop:     []string{"for_statement", "for_in_statement"},
	whileLoop:   []string{"while_statement"},
	ifStmt:      "if_statement",
	tryStmt:     "try_statement",
	catchClause: "catch_clause",
	assignment:  "assignment_expression",
	assignLHS:   "left",
	callExpr:    "call_expression",
	callFunc:    "function",
	memberExpr:  "member_expression",
	memberObj:   "object",
	subscript:   "subscript_expression",
	arrayLit:    []string{"array", "object"},
}

// TreeSitterAnalyzer is the structured strategy shared by Python,
// JavaScript and TypeScript, parameterized by a grammar table.
type TreeSitterAnalyzer struct {
	lang    model.Language
	grammar grammar
	parser  *sitter.Parser
}

func newTreeSitterAnalyzer(lang model.Language, g grammar) *TreeSitterAnalyzer {
	p := sitter.NewParser()
	p.SetLanguage(g.sitterLang)
	return &TreeSitterAnalyzer{lang: lang, grammar: g, parser: p}
}

// NewPythonAnalyzer builds the Python structured analyzer.
func NewPythonAnalyzer() *TreeSitterAnalyzer {
	return newTreeSitterAnalyzer(model.LanguagePython, pythonGrammar)
}

// NewJavaScriptAnalyzer builds the JavaScript structured analyzer.
func NewJavaScriptAnalyzer() *TreeSitterAnalyzer {
	return newTreeSitterAnalyzer(model.LanguageJavaScript, javascriptGrammar)
}

// NewTypeScriptAnalyzer builds the TypeScript structured analyzer.
func NewTypeScriptAnalyzer() *TreeSitterAnalyzer {
	return newTreeSitterAnalyzer(model.LanguageTypeScript, typescriptGrammar)
}

func (a *TreeSitterAnalyzer) Language() model.Language { return a.lang }

func (a *TreeSitterAnalyzer) Analyze(ctx context.Context, source model.SourceFile) (AnalysisResult, error) {
	tree, err := a.parser.ParseCtx(ctx, nil, source.Bytes)
	if err != nil {
		return AnalysisResult{}, &ParseError{Path: source.Path, Message: "tree-sitter parse failed", Cause: err}
	}
	defer tree.Close()

	if tree.RootNode().HasError() {
		return AnalysisResult{}, &ParseError{Path: source.Path, Message: "tree-sitter produced an error node"}
	}

	w := &tsWalker{grammar: a.grammar, lang: a.lang, source: source.Bytes, plans: make(map[string]model.ProbePlan)}
	w.findFunctions(tree.RootNode(), "")

	logging.AnalyzerDebug("tree-sitter analyzer (%s): %s produced %d function records", a.lang, source.Path, len(w.records))
	return AnalysisResult{Functions: w.records, Plans: w.plans}, nil
}

type tsWalker struct {
	grammar grammar
	lang    model.Language
	source  []byte
	records []model.FunctionRecord
	plans   map[string]model.ProbePlan
}

func (w *tsWalker) text(n *sitter.Node) string {
	if n == nil {
		return ""
	}
	return string(w.source[n.StartByte():n.EndByte()])
}

func (w *tsWalker) isFunctionDef(nodeType string) bool {
	for _, t := range w.grammar.functionDef {
		if t == nodeType {
			return true
		}
	}
	return false
}

// findFunctions recursively locates every function-like node and builds a
// Function Record + Probe Plan for each, recursing into each function's
// body to find further nested functions (which get their own records,
// while their sites also fold into the enclosing plan via collectSites
// below).
func (w *tsWalker) findFunctions(node *sitter.Node, parentRef string) {
	count := int(node.NamedChildCount())
	for i := 0; i < count; i++ {
		child := node.NamedChild(i)
		if w.isFunctionDef(child.Type()) {
			name := w.functionName(child)
			w.buildRecord(name, child, parentRef)
			body := child.ChildByFieldName("body")
			if body != nil {
				w.findFunctions(body, name)
			}
			continue
		}
		w.findFunctions(child, parentRef)
	}
}

func (w *tsWalker) functionName(node *sitter.Node) string {
	if nameNode := node.ChildByFieldName("name"); nameNode != nil {
		return w.text(nameNode)
	}
	return fmt.Sprintf("anonymous@%d", node.StartPoint().Row+1)
}

func (w *tsWalker) buildRecord(name string, node *sitter.Node, parentRef string) {
	startLine := int(node.StartPoint().Row) + 1
	endLine := int(node.EndPoint().Row) + 1
	lines := strings.Split(string(w.source), "\n")
	indent := leadingIndent(lines, startLine)

	sig := ""
	if startLine > 0 && startLine <= len(lines) {
		sig = strings.TrimSpace(lines[startLine-1])
	}

	rec := model.FunctionRecord{
		Name:          name,
		SignatureText: sig,
		StartOffset:   int(node.StartByte()),
		EndOffset:     int(node.EndByte()),
		StartLine:     startLine,
		EndLine:       endLine,
		IndentPrefix:  indent,
		BodyBytes:     w.source[node.StartByte():node.EndByte()],
		Language:      w.lang,
		ParentRef:     parentRef,
	}
	w.records = append(w.records, rec)

	sites := w.collectSites(node, startLine)
	sites = append(sites, w.boundarySites(node)...)
	w.plans[name] = BuildPlan(name, sites)
}

func (w *tsWalker) boundarySites(fnNode *sitter.Node) []model.ProbeSite {
	body := fnNode.ChildByFieldName("body")
	if body == nil {
		return nil
	}
	start := body.StartPoint()
	end := body.EndPoint()
	return []model.ProbeSite{
		{Kind: model.ProbeFuncEntry, Line: int(start.Row) + 1, Column: int(start.Column) + 1, Anchor: model.AnchorAfter, Payload: model.EmptyPayload{}},
		{Kind: model.ProbeFuncExit, Line: int(end.Row) + 1, Column: int(end.Column) + 1, Anchor: model.AnchorBefore, Payload: model.EmptyPayload{}},
	}
}

// collectSites walks every node under fnNode's subtree, looking for the
// construct kinds. Unlike findFunctions it does not stop at nested
// function boundaries - an outer function's plan includes its closures'
// sites too, since the Composer rewrites the outer function as one unit.
func (w *tsWalker) collectSites(node *sitter.Node, funcStartLine int) []model.ProbeSite {
	var sites []model.ProbeSite
	g := w.grammar

	var visit func(n *sitter.Node)
	visit = func(n *sitter.Node) {
		nt := n.Type()
		switch {
		case nt == g.returnStmt:
			pos := n.StartPoint()
			expr := ""
			if n.NamedChildCount() > 0 {
				expr = w.text(n.NamedChild(0))
			}
			sites = append(sites,
				model.ProbeSite{Kind: model.ProbeFuncExit, Line: int(pos.Row) + 1, Column: int(pos.Column) + 1, Anchor: model.AnchorBefore, Payload: model.EmptyPayload{}},
				model.ProbeSite{Kind: model.ProbeReturnValue, Line: int(pos.Row) + 1, Column: int(pos.Column) + 1, Anchor: model.AnchorBefore, Payload: model.ReturnPayload{ExpressionText: expr}},
			)

		case contains(g.forLoop, nt) || contains(g.whileLoop, nt):
			w.addLoopSites(&sites, n)

		case nt == g.ifStmt:
			w.addCondSites(&sites, n)

		case nt == g.tryStmt:
			w.addExcSites(&sites, n)

		case nt == g.assignment:
			w.addVarChangeSite(&sites, n)

		case nt == g.callExpr:
			w.addCallSite(&sites, n)

		case contains(g.arrayLit, nt):
			pos := n.StartPoint()
			sites = append(sites, model.ProbeSite{
				Kind: model.ProbeArrayCreate, Line: int(pos.Row) + 1, Column: int(pos.Column) + 1,
				Anchor: model.AnchorAfter, Payload: model.ArrayPayload{Operation: "create"},
			})
		}

		for i := 0; i < int(n.NamedChildCount()); i++ {
			child := n.NamedChild(i)
			if w.isFunctionDef(child.Type()) {
				// nested function: own record handles its own boundary sites, but its body is still walked for fold-in
				if body := child.ChildByFieldName("body"); body != nil {
					visit(body)
				}
				continue
			}
			visit(child)
		}
	}
	visit(node)
	return sites
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func (w *tsWalker) addLoopSites(sites *[]model.ProbeSite, loopNode *sitter.Node) {
	body := loopNode.ChildByFieldName("body")
	if body == nil {
		return
	}
	correlation := uuid.NewString()
	start := body.StartPoint()
	end := loopNode.EndPoint()

	var loopVar string
	if left := loopNode.ChildByFieldName("left"); left != nil {
		loopVar = w.text(left)
	}

	*sites = append(*sites,
		model.ProbeSite{Kind: model.ProbeLoopEntry, Line: int(start.Row) + 1, Column: int(start.Column) + 1, Anchor: model.AnchorAfter, Payload: model.LoopPayload{LoopVariable: loopVar}, CorrelationToken: correlation},
		model.ProbeSite{Kind: model.ProbeLoopExit, Line: int(end.Row) + 1, Column: int(end.Column) + 1, Anchor: model.AnchorAfter, Payload: model.LoopPayload{LoopVariable: loopVar}, CorrelationToken: correlation},
	)
}

func (w *tsWalker) addCondSites(sites *[]model.ProbeSite, ifNode *sitter.Node) {
	condNode := ifNode.ChildByFieldName("condition")
	condText := w.text(condNode)
	start := ifNode.StartPoint()
	end := ifNode.EndPoint()
	branchID := fmt.Sprintf("branch_%d_%d", start.Row+1, start.Column+1)

	*sites = append(*sites,
		model.ProbeSite{Kind: model.ProbeCondEntry, Line: int(start.Row) + 1, Column: int(start.Column) + 1, Anchor: model.AnchorAfter, Payload: model.CondPayload{ConditionText: condText, BranchID: branchID}, BranchID: branchID},
		model.ProbeSite{Kind: model.ProbeCondExit, Line: int(end.Row) + 1, Column: int(end.Column) + 1, Anchor: model.AnchorBefore, Payload: model.CondPayload{ConditionText: condText, BranchID: branchID}, BranchID: branchID},
	)

	if alt := ifNode.ChildByFieldName("alternative"); alt != nil {
		altStart := alt.StartPoint()
		altEnd := alt.EndPoint()
		altID := fmt.Sprintf("branch_%d_%d", altStart.Row+1, altStart.Column+1)
		*sites = append(*sites,
			model.ProbeSite{Kind: model.ProbeCondEntry, Line: int(altStart.Row) + 1, Column: int(altStart.Column) + 1, Anchor: model.AnchorAfter, Payload: model.CondPayload{ConditionText: "else", BranchID: altID}, BranchID: altID},
			model.ProbeSite{Kind: model.ProbeCondExit, Line: int(altEnd.Row) + 1, Column: int(altEnd.Column) + 1, Anchor: model.AnchorBefore, Payload: model.CondPayload{ConditionText: "else", BranchID: altID}, BranchID: altID},
		)
	}
}

func (w *tsWalker) addExcSites(sites *[]model.ProbeSite, tryNode *sitter.Node) {
	correlation := uuid.NewString()
	start := tryNode.StartPoint()
	end := tryNode.EndPoint()

	*sites = append(*sites, model.ProbeSite{
		Kind: model.ProbeExcEnter, Line: int(start.Row) + 1, Column: int(start.Column) + 1,
		Anchor: model.AnchorAfter, Payload: model.ExcPayload{}, CorrelationToken: correlation,
	})

	for i := 0; i < int(tryNode.NamedChildCount()); i++ {
		child := tryNode.NamedChild(i)
		if child.Type() != w.grammar.catchClause {
			continue
		}
		pos := child.StartPoint()
		handlerName := ""
		if paramNode := child.ChildByFieldName("parameter"); paramNode != nil {
			handlerName = w.text(paramNode)
		}
		*sites = append(*sites, model.ProbeSite{
			Kind: model.ProbeExcCaught, Line: int(pos.Row) + 1, Column: int(pos.Column) + 1,
			Anchor: model.AnchorAfter, Payload: model.ExcPayload{HandlerName: handlerName}, CorrelationToken: correlation,
		})
	}

	*sites = append(*sites, model.ProbeSite{
		Kind: model.ProbeExcExit, Line: int(end.Row) + 1, Column: int(end.Column) + 1,
		Anchor: model.AnchorBefore, Payload: model.ExcPayload{}, CorrelationToken: correlation,
	})
}

func (w *tsWalker) addVarChangeSite(sites *[]model.ProbeSite, assignNode *sitter.Node) {
	lhs := assignNode.ChildByFieldName(w.grammar.assignLHS)
	if lhs == nil {
		return
	}
	pos := assignNode.EndPoint()
	name := w.text(lhs)

	if lhs.Type() == w.grammar.subscript {
		obj := lhs.ChildByFieldName("object")
		*sites = append(*sites, model.ProbeSite{
			Kind: model.ProbeArrayModify, Line: int(pos.Row) + 1, Column: int(pos.Column) + 1,
			Anchor: model.AnchorAfter, Payload: model.ArrayPayload{VariableName: w.text(obj), Operation: "index-assign"},
		})
		return
	}

	*sites = append(*sites, model.ProbeSite{
		Kind: model.ProbeVarChange, Line: int(pos.Row) + 1, Column: int(pos.Column) + 1,
		Anchor: model.AnchorAfter, Payload: model.VarChangePayload{VariableName: name},
	})
}

func (w *tsWalker) addCallSite(sites *[]model.ProbeSite, callNode *sitter.Node) {
	fn := callNode.ChildByFieldName(w.grammar.callFunc)
	if fn == nil || fn.Type() != w.grammar.memberExpr {
		return // only calls with a receiver expression are annotated
	}
	receiver := fn.ChildByFieldName(w.grammar.memberObj)
	method := fn.ChildByFieldName("property")
	if method == nil {
		method = fn.ChildByFieldName("attribute")
	}
	pos := callNode.StartPoint()
	*sites = append(*sites, model.ProbeSite{
		Kind: model.ProbeCallTrace, Line: int(pos.Row) + 1, Column: int(pos.Column) + 1,
		Anchor: model.AnchorBefore,
		Payload: model.CallPayload{
			ReceiverText: w.text(receiver),
			MethodName:   w.text(method),
		},
	})
}
