package analyzer

import (
	"context"
	"fmt"
	"go/ast"
	"go/parser"
	"go/token"
	"strings"

	"scriptforge/internal/logging"
	"scriptforge/internal/model"

	"github.com/google/uuid"
)

// GoAnalyzer is the structured strategy for Go source, built on go/ast - the
// same parser the rest of this codebase uses for Go source inspection.
type GoAnalyzer struct{}

// NewGoAnalyzer constructs a Go structured analyzer.
func NewGoAnalyzer() *GoAnalyzer { return &GoAnalyzer{} }

func (a *GoAnalyzer) Language() model.Language { return model.LanguageGo }

func (a *GoAnalyzer) Analyze(ctx context.Context, source model.SourceFile) (AnalysisResult, error) {
	fset := token.NewFileSet()
	file, err := parser.ParseFile(fset, source.Path, source.Bytes, parser.ParseComments)
	if err != nil {
		return AnalysisResult{}, &ParseError{Path: source.Path, Message: "go/parser failed", Cause: err}
	}

	lines := strings.Split(string(source.Bytes), "\n")

	result := AnalysisResult{Plans: make(map[string]model.ProbePlan)}

	for _, decl := range file.Decls {
		fn, ok := decl.(*ast.FuncDecl)
		if !ok || fn.Body == nil {
			continue
		}
		w := &goWalker{fset: fset, lines: lines, source: source.Bytes}
		w.walkFunc(fn.Name.Name, fn, "")
		result.Functions = append(result.Functions, w.records...)
		for name, plan := range w.plans {
			result.Plans[name] = plan
		}
	}

	logging.AnalyzerDebug("go analyzer: %s produced %d function records", source.Path, len(result.Functions))
	return result, nil
}

// goWalker accumulates Function Records and Probe Plans while walking one
// top-level FuncDecl, recursing into nested function literals so that an
// inner closure contributes its sites to every enclosing function's plan
// (per the nested-function policy) while also getting its own record.
type goWalker struct {
	fset    *token.FileSet
	lines   []string
	source  []byte
	records []model.FunctionRecord
	plans   map[string]model.ProbePlan
}

func (w *goWalker) walkFunc(name string, fn *ast.FuncDecl, parentRef string) {
	if w.plans == nil {
		w.plans = make(map[string]model.ProbePlan)
	}

	startLine := w.fset.Position(fn.Pos()).Line
	endLine := w.fset.Position(fn.End()).Line
	startOffset := w.fset.Position(fn.Pos()).Offset
	endOffset := w.fset.Position(fn.End()).Offset

	indent := leadingIndent(w.lines, startLine)
	sig := ""
	if startLine > 0 && startLine <= len(w.lines) {
		sig = strings.TrimSpace(w.lines[startLine-1])
	}

	var params []string
	if fn.Type.Params != nil {
		for _, field := range fn.Type.Params.List {
			for _, n := range field.Names {
				params = append(params, n.Name)
			}
		}
	}

	rec := model.FunctionRecord{
		Name:          name,
		SignatureText: sig,
		ParamNames:    params,
		StartOffset:   startOffset,
		EndOffset:     endOffset,
		StartLine:     startLine,
		EndLine:       endLine,
		IndentPrefix:  indent,
		BodyBytes:     w.source[startOffset:endOffset],
		Language:      model.LanguageGo,
		ParentRef:     parentRef,
	}
	w.records = append(w.records, rec)

	sites := w.collectSites(fn.Body, startLine)
	sites = append(sites, w.funcBoundarySites(fn)...)
	w.plans[name] = BuildPlan(name, sites)

	// Nested function literals get their own Function Record, scoped to
	// just their own body; the enclosing plan above already absorbed
	// their sites via collectSites' recursion.
	ast.Inspect(fn.Body, func(n ast.Node) bool {
		lit, ok := n.(*ast.FuncLit)
		if !ok {
			return true
		}
		litName := fmt.Sprintf("%s.closure@%d", name, w.fset.Position(lit.Pos()).Line)
		w.walkFuncLit(litName, lit, name)
		return true
	})
}

func (w *goWalker) walkFuncLit(name string, lit *ast.FuncLit, parentRef string) {
	startLine := w.fset.Position(lit.Pos()).Line
	endLine := w.fset.Position(lit.End()).Line
	startOffset := w.fset.Position(lit.Pos()).Offset
	endOffset := w.fset.Position(lit.End()).Offset
	indent := leadingIndent(w.lines, startLine)

	rec := model.FunctionRecord{
		Name:          name,
		SignatureText: strings.TrimSpace(w.lines[startLine-1]),
		StartOffset:   startOffset,
		EndOffset:     endOffset,
		StartLine:     startLine,
		EndLine:       endLine,
		IndentPrefix:  indent,
		BodyBytes:     w.source[startOffset:endOffset],
		Language:      model.LanguageGo,
		ParentRef:     parentRef,
	}
	w.records = append(w.records, rec)

	sites := w.collectSites(lit.Body, startLine)
	w.plans[name] = BuildPlan(name, sites)
}

// funcBoundarySites produces the func_entry/func_exit pair required even
// for a one-line function with no explicit return.
func (w *goWalker) funcBoundarySites(fn *ast.FuncDecl) []model.ProbeSite {
	bodyStart := w.fset.Position(fn.Body.Lbrace)
	bodyEnd := w.fset.Position(fn.Body.Rbrace)

	entry := model.ProbeSite{
		Kind:    model.ProbeFuncEntry,
		Line:    bodyStart.Line,
		Column:  bodyStart.Column,
		Anchor:  model.AnchorAfter,
		Payload: model.EmptyPayload{},
	}

	sites := []model.ProbeSite{entry}

	if !bodyEndsInReturn(fn.Body) {
		sites = append(sites, model.ProbeSite{
			Kind:    model.ProbeFuncExit,
			Line:    bodyEnd.Line,
			Column:  bodyEnd.Column,
			Anchor:  model.AnchorBefore,
			Payload: model.EmptyPayload{},
		})
	}
	return sites
}

func bodyEndsInReturn(body *ast.BlockStmt) bool {
	if len(body.List) == 0 {
		return false
	}
	_, ok := body.List[len(body.List)-1].(*ast.ReturnStmt)
	return ok
}

// collectSites walks stmt-level constructs within a function body (not
// descending into nested FuncLit bodies further than needed to find them -
// their own sites are collected separately, but they are *also*
// folded into the enclosing plan here, since the composer rewrites the
// outer function as a whole).
func (w *goWalker) collectSites(body ast.Node, funcStartLine int) []model.ProbeSite {
	var sites []model.ProbeSite
	assigned := make(map[string]bool)

	var visit func(n ast.Node) bool
	visit = func(n ast.Node) bool {
		switch node := n.(type) {
		case *ast.ReturnStmt:
			pos := w.fset.Position(node.Pos())
			expr := ""
			if len(node.Results) > 0 {
				expr = exprText(w.source, w.fset, node.Results[0])
			}
			sites = append(sites,
				model.ProbeSite{Kind: model.ProbeFuncExit, Line: pos.Line, Column: pos.Column, Anchor: model.AnchorBefore, Payload: model.EmptyPayload{}},
				model.ProbeSite{Kind: model.ProbeReturnValue, Line: pos.Line, Column: pos.Column, Anchor: model.AnchorBefore, Payload: model.ReturnPayload{ExpressionText: expr}},
			)

		case *ast.ForStmt:
			w.addLoopSites(&sites, node, node.Body)
		case *ast.RangeStmt:
			w.addLoopSites(&sites, node, node.Body)

		case *ast.IfStmt:
			w.addCondSites(&sites, node.Pos(), node.Cond, node.Body, node.End())

		case *ast.SwitchStmt:
			for _, clause := range node.Body.List {
				cc, ok := clause.(*ast.CaseClause)
				if !ok {
					continue
				}
				var condText string
				if len(cc.List) > 0 {
					condText = exprText(w.source, w.fset, cc.List[0])
				} else {
					condText = "default"
				}
				w.addBranchSites(&sites, cc.Pos(), condText, cc.End())
			}

		case *ast.DeferStmt:
			w.addRecoverSites(&sites, node, body)

		case *ast.AssignStmt:
			for _, lhs := range node.Lhs {
				name := identName(lhs)
				if name == "" || name == "_" {
					continue
				}
				pos := w.fset.Position(node.End())
				if isIndexExpr(lhs) {
					sites = append(sites, model.ProbeSite{
						Kind: model.ProbeArrayModify, Line: pos.Line, Column: pos.Column,
						Anchor: model.AnchorAfter, Payload: model.ArrayPayload{VariableName: name, Operation: "index-assign"},
					})
					continue
				}
				sites = append(sites, model.ProbeSite{
					Kind: model.ProbeVarChange, Line: pos.Line, Column: pos.Column,
					Anchor: model.AnchorAfter, Payload: model.VarChangePayload{VariableName: name},
				})
				assigned[name] = true
			}

		case *ast.CallExpr:
			if sel, ok := node.Fun.(*ast.SelectorExpr); ok {
				pos := w.fset.Position(node.Pos())
				sites = append(sites, model.ProbeSite{
					Kind: model.ProbeCallTrace, Line: pos.Line, Column: pos.Column,
					Anchor: model.AnchorBefore,
					Payload: model.CallPayload{
						ReceiverText: exprText(w.source, w.fset, sel.X),
						MethodName:   sel.Sel.Name,
					},
				})
			}

		case *ast.CompositeLit:
			switch node.Type.(type) {
			case *ast.ArrayType, *ast.MapType:
				pos := w.fset.Position(node.Pos())
				sites = append(sites, model.ProbeSite{
					Kind: model.ProbeArrayCreate, Line: pos.Line, Column: pos.Column,
					Anchor: model.AnchorAfter, Payload: model.ArrayPayload{Operation: "create"},
				})
			}
		}
		return true
	}

	ast.Inspect(body, visit)
	return sites
}

func (w *goWalker) addLoopSites(sites *[]model.ProbeSite, loop ast.Stmt, loopBody *ast.BlockStmt) {
	correlation := uuid.NewString()
	startPos := w.fset.Position(loopBody.Lbrace)
	endPos := w.fset.Position(loop.End())

	var loopVar string
	if rs, ok := loop.(*ast.RangeStmt); ok {
		loopVar = identName(rs.Key)
	}

	*sites = append(*sites,
		model.ProbeSite{Kind: model.ProbeLoopEntry, Line: startPos.Line, Column: startPos.Column, Anchor: model.AnchorAfter, Payload: model.LoopPayload{LoopVariable: loopVar}, CorrelationToken: correlation},
		model.ProbeSite{Kind: model.ProbeLoopExit, Line: endPos.Line, Column: endPos.Column, Anchor: model.AnchorAfter, Payload: model.LoopPayload{LoopVariable: loopVar}, CorrelationToken: correlation},
	)
}

func (w *goWalker) addCondSites(sites *[]model.ProbeSite, pos token.Pos, cond ast.Expr, body *ast.BlockStmt, end token.Pos) {
	condText := ""
	if cond != nil {
		condText = exprText(w.source, w.fset, cond)
	}
	w.addBranchSites(sites, pos, condText, end)
}

func (w *goWalker) addBranchSites(sites *[]model.ProbeSite, pos token.Pos, condText string, end token.Pos) {
	startPos := w.fset.Position(pos)
	endPos := w.fset.Position(end)
	branchID := fmt.Sprintf("branch_%d_%d", startPos.Line, startPos.Column)

	*sites = append(*sites,
		model.ProbeSite{Kind: model.ProbeCondEntry, Line: startPos.Line, Column: startPos.Column, Anchor: model.AnchorAfter, Payload: model.CondPayload{ConditionText: condText, BranchID: branchID}, BranchID: branchID},
		model.ProbeSite{Kind: model.ProbeCondExit, Line: endPos.Line, Column: endPos.Column, Anchor: model.AnchorBefore, Payload: model.CondPayload{ConditionText: condText, BranchID: branchID}, BranchID: branchID},
	)
}

// addRecoverSites emits the exc_enter/exc_caught/exc_exit triad for a
// deferred recover handler: exc_enter where the handler is installed (the
// protected region starts there), exc_caught at the recover branch inside
// the deferred literal, and exc_exit before every return of the protected
// body (or at its end when it has none). All three share one correlation
// token so a runtime receiver can pair them, same as addLoopSites.
func (w *goWalker) addRecoverSites(sites *[]model.ProbeSite, d *ast.DeferStmt, protected ast.Node) {
	lit, ok := d.Call.Fun.(*ast.FuncLit)
	if !ok {
		return
	}
	caughtPos, handlerName, ok := recoverBranch(lit)
	if !ok {
		return
	}

	correlation := uuid.NewString()
	enterPos := w.fset.Position(d.Pos())
	caught := w.fset.Position(caughtPos)

	*sites = append(*sites,
		model.ProbeSite{Kind: model.ProbeExcEnter, Line: enterPos.Line, Column: enterPos.Column, Anchor: model.AnchorAfter, Payload: model.ExcPayload{}, CorrelationToken: correlation},
		model.ProbeSite{Kind: model.ProbeExcCaught, Line: caught.Line, Column: caught.Column, Anchor: model.AnchorAfter, Payload: model.ExcPayload{HandlerName: handlerName}, CorrelationToken: correlation},
	)

	exits := 0
	ast.Inspect(protected, func(n ast.Node) bool {
		if _, ok := n.(*ast.FuncLit); ok {
			return false
		}
		if ret, ok := n.(*ast.ReturnStmt); ok {
			pos := w.fset.Position(ret.Pos())
			*sites = append(*sites, model.ProbeSite{Kind: model.ProbeExcExit, Line: pos.Line, Column: pos.Column, Anchor: model.AnchorBefore, Payload: model.ExcPayload{}, CorrelationToken: correlation})
			exits++
		}
		return true
	})
	if exits == 0 {
		pos := w.fset.Position(protected.End())
		*sites = append(*sites, model.ProbeSite{Kind: model.ProbeExcExit, Line: pos.Line, Column: pos.Column, Anchor: model.AnchorBefore, Payload: model.ExcPayload{}, CorrelationToken: correlation})
	}
}

// recoverBranch locates the `if r := recover(); r != nil` branch inside a
// deferred handler, returning its position and the bound variable's name.
// A bare recover() call that never branches on the result is still a
// handler; it reports the call position and an empty name. ok is false
// when the literal never calls recover at all (a plain cleanup defer).
func recoverBranch(lit *ast.FuncLit) (pos token.Pos, handlerName string, ok bool) {
	ast.Inspect(lit.Body, func(n ast.Node) bool {
		if ok {
			return false
		}
		if ifStmt, isIf := n.(*ast.IfStmt); isIf && containsRecoverCall(ifStmt) {
			pos = ifStmt.Pos()
			if assign, isAssign := ifStmt.Init.(*ast.AssignStmt); isAssign && len(assign.Lhs) == 1 {
				handlerName = identName(assign.Lhs[0])
			}
			ok = true
			return false
		}
		if isRecoverCall(n) {
			pos = n.Pos()
			ok = true
			return false
		}
		return true
	})
	return pos, handlerName, ok
}

func containsRecoverCall(n ast.Node) bool {
	found := false
	ast.Inspect(n, func(c ast.Node) bool {
		if isRecoverCall(c) {
			found = true
			return false
		}
		return true
	})
	return found
}

func isRecoverCall(n ast.Node) bool {
	call, ok := n.(*ast.CallExpr)
	if !ok {
		return false
	}
	ident, ok := call.Fun.(*ast.Ident)
	return ok && ident.Name == "recover"
}

func isIndexExpr(e ast.Expr) bool {
	_, ok := e.(*ast.IndexExpr)
	return ok
}

func identName(e ast.Expr) string {
	switch v := e.(type) {
	case *ast.Ident:
		return v.Name
	case *ast.IndexExpr:
		return identName(v.X)
	case *ast.SelectorExpr:
		return v.Sel.Name
	}
	return ""
}

func exprText(source []byte, fset *token.FileSet, e ast.Expr) string {
	start := fset.Position(e.Pos()).Offset
	end := fset.Position(e.End()).Offset
	if start < 0 || end > len(source) || start > end {
		return ""
	}
	return string(source[start:end])
}

func leadingIndent(lines []string, line int) string {
	if line <= 0 || line > len(lines) {
		return ""
	}
	text := lines[line-1]
	i := 0
	for i < len(text) && (text[i] == ' ' || text[i] == '\t') {
		i++
	}
	return text[:i]
}
