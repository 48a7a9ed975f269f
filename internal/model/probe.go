package model

import (
	"sort"
	"strconv"
)

// ProbeKind tags the runtime event a ProbeSite will emit. Kept as a closed
// set of string constants rather than a loosely-typed tag so the template
// generator can switch exhaustively over it.
type ProbeKind string

const (
	ProbeFuncEntry   ProbeKind = "func_entry"
	ProbeFuncExit    ProbeKind = "func_exit"
	ProbeLoopEntry   ProbeKind = "loop_entry"
	ProbeLoopExit    ProbeKind = "loop_exit"
	ProbeCondEntry   ProbeKind = "cond_entry"
	ProbeCondExit    ProbeKind = "cond_exit"
	ProbeVarChange   ProbeKind = "var_change"
	ProbeExcEnter    ProbeKind = "exc_enter"
	ProbeExcCaught   ProbeKind = "exc_caught"
	ProbeExcExit     ProbeKind = "exc_exit"
	ProbeArrayCreate ProbeKind = "array_create"
	ProbeArrayModify ProbeKind = "array_modify"
	ProbeArrayAccess ProbeKind = "array_access"
	ProbeCallTrace   ProbeKind = "call_trace"
	ProbeReturnValue ProbeKind = "return_value"
)

// Anchor places an insertion immediately before or after the referenced line.
type Anchor string

const (
	AnchorBefore Anchor = "before"
	AnchorAfter  Anchor = "after"
)

// order gives "after" precedence over "before" at an identical
// (line, column) so that after-insertions sort ahead of
// before-insertions at the same position.
func (a Anchor) order() int {
	if a == AnchorAfter {
		return 0
	}
	return 1
}

// Payload carries the kind-specific data a probe-call needs to render its
// arguments. Each concrete type below corresponds to exactly one ProbeKind
// (a closed tagged variant); the template and oracle generators type-switch
// over Payload rather than indexing into a loosely-typed map.
type Payload interface {
	isPayload()
}

// VarChangePayload describes a var_change site.
type VarChangePayload struct {
	VariableName string
}

func (VarChangePayload) isPayload() {}

// LoopPayload describes loop_entry/loop_exit sites.
type LoopPayload struct {
	LoopVariable string
}

func (LoopPayload) isPayload() {}

// CondPayload describes cond_entry/cond_exit sites.
type CondPayload struct {
	ConditionText string
	BranchID      string
}

func (CondPayload) isPayload() {}

// ExcPayload describes exc_enter/exc_caught/exc_exit sites.
type ExcPayload struct {
	HandlerName string // empty for exc_enter/exc_exit
}

func (ExcPayload) isPayload() {}

// ArrayPayload describes array_create/array_modify/array_access sites.
type ArrayPayload struct {
	VariableName string
	Operation    string // "create", "index-assign", "append", "index-read", ...
}

func (ArrayPayload) isPayload() {}

// CallPayload describes call_trace sites - only "significant" calls (those
// with a receiver expression) are annotated, to limit noise.
type CallPayload struct {
	ReceiverText string
	MethodName   string
}

func (CallPayload) isPayload() {}

// ReturnPayload describes a return_value site.
type ReturnPayload struct {
	ExpressionText string
}

func (ReturnPayload) isPayload() {}

// EmptyPayload is used by kinds that need no extra data (func_entry,
// func_exit, loop_entry, loop_exit without a named loop variable, etc).
type EmptyPayload struct{}

func (EmptyPayload) isPayload() {}

// ProbeSite is a single insertion point within a function.
type ProbeSite struct {
	Kind    ProbeKind
	Line    int // 1-indexed, relative to the original file
	Column  int // 1-indexed
	Anchor  Anchor
	Payload Payload

	// BranchID is a stable token for cond_* sites, derived deterministically
	// from (line, column, kind); duplicated onto the site (in addition to
	// CondPayload) so non-conditional consumers can still group branches.
	BranchID string

	// CorrelationToken ties together the entry/exit pair of a compound
	// construct (e.g. a loop_entry and its loop_exit, or an exc_enter and
	// its exc_exit) so a runtime receiver can correlate them.
	CorrelationToken string
}

// Key returns the tuple identity used by the Probe Plan's uniqueness
// invariant (no two sites share it).
func (p ProbeSite) Key() string {
	return string(p.Kind) + "|" + strconv.Itoa(p.Line) + "|" + strconv.Itoa(p.Column) + "|" + string(p.Anchor) + "|" + payloadKey(p.Payload)
}

// ProbePlan is the ordered, canonical set of Probe Sites for one function.
type ProbePlan struct {
	FunctionName string
	Sites        []ProbeSite
}

// Sort orders Sites by (line desc, column desc, anchor_order),
// ties broken by kind lexicographic order. Applying insertions in this
// order guarantees earlier entries in the slice never have their offsets
// invalidated by a later (already-applied) insertion - the whole scheme
// that lets the Transformer template splice text without re-parsing.
func (p *ProbePlan) Sort() {
	sort.SliceStable(p.Sites, func(i, j int) bool {
		a, b := p.Sites[i], p.Sites[j]
		if a.Line != b.Line {
			return a.Line > b.Line
		}
		if a.Column != b.Column {
			return a.Column > b.Column
		}
		if a.Anchor.order() != b.Anchor.order() {
			return a.Anchor.order() < b.Anchor.order()
		}
		return a.Kind < b.Kind
	})
}

// Dedup removes sites sharing an identical (line, column, anchor, kind,
// payload) key, keeping the first occurrence. Call after Sort so the
// retained copy is deterministic.
func (p *ProbePlan) Dedup() {
	seen := make(map[string]bool, len(p.Sites))
	out := p.Sites[:0]
	for _, s := range p.Sites {
		k := s.Key()
		if seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, s)
	}
	p.Sites = out
}

func payloadKey(p Payload) string {
	switch v := p.(type) {
	case VarChangePayload:
		return "var:" + v.VariableName
	case LoopPayload:
		return "loop:" + v.LoopVariable
	case CondPayload:
		return "cond:" + v.BranchID + ":" + v.ConditionText
	case ExcPayload:
		return "exc:" + v.HandlerName
	case ArrayPayload:
		return "arr:" + v.VariableName + ":" + v.Operation
	case CallPayload:
		return "call:" + v.ReceiverText + "." + v.MethodName
	case ReturnPayload:
		return "ret:" + v.ExpressionText
	default:
		return "empty"
	}
}
