package generator

import (
	"fmt"
	"strconv"
	"strings"

	"scriptforge/internal/model"
)

// probeArg is one ordered key/value pair extracted from a Probe Site's
// Payload, rendered language-specifically by RenderProbeCall below. The
// core treats the actual runtime telemetry library as an opaque
// collaborator; these helpers only need to agree with
// themselves on a call shape that carries the kind and its payload fields.
type probeArg struct {
	Key   string
	Value string
}

func payloadArgs(p model.Payload) []probeArg {
	switch v := p.(type) {
	case model.VarChangePayload:
		return []probeArg{{"variable", v.VariableName}}
	case model.LoopPayload:
		if v.LoopVariable == "" {
			return nil
		}
		return []probeArg{{"loop_var", v.LoopVariable}}
	case model.CondPayload:
		return []probeArg{{"condition", v.ConditionText}, {"branch_id", v.BranchID}}
	case model.ExcPayload:
		if v.HandlerName == "" {
			return nil
		}
		return []probeArg{{"handler", v.HandlerName}}
	case model.ArrayPayload:
		return []probeArg{{"variable", v.VariableName}, {"operation", v.Operation}}
	case model.CallPayload:
		return []probeArg{{"receiver", v.ReceiverText}, {"method", v.MethodName}}
	case model.ReturnPayload:
		return []probeArg{{"expression", v.ExpressionText}}
	default:
		return nil
	}
}

// RenderProbeCall renders a single-line probe-call statement in lang's
// surface syntax. The call always names the site's kind first and its
// correlation token (if any) so a runtime receiver can pair entry/exit
// events; everything else comes from the site's Payload.
func RenderProbeCall(lang model.Language, site model.ProbeSite) string {
	args := payloadArgs(site.Payload)
	switch lang {
	case model.LanguagePython:
		return pythonCall(site, args)
	case model.LanguageJavaScript, model.LanguageTypeScript:
		return jsCall(site, args)
	default: // model.LanguageGo and any unrecognized target fall back to Go syntax
		return goCall(site, args)
	}
}

func goCall(site model.ProbeSite, args []probeArg) string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("__probe.Emit(%s", strconv.Quote(string(site.Kind))))
	if site.CorrelationToken != "" {
		b.WriteString(fmt.Sprintf(", %s", strconv.Quote(site.CorrelationToken)))
	} else {
		b.WriteString(`, ""`)
	}
	if len(args) == 0 {
		b.WriteString(", nil)")
		return b.String()
	}
	b.WriteString(", map[string]string{")
	for i, a := range args {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(fmt.Sprintf("%s: %s", strconv.Quote(a.Key), strconv.Quote(a.Value)))
	}
	b.WriteString("})")
	return b.String()
}

func pythonCall(site model.ProbeSite, args []probeArg) string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("__probe.emit(%s, %s", pyStr(string(site.Kind)), pyStr(site.CorrelationToken)))
	b.WriteString(", {")
	for i, a := range args {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(fmt.Sprintf("%s: %s", pyStr(a.Key), pyStr(a.Value)))
	}
	b.WriteString("})")
	return b.String()
}

func jsCall(site model.ProbeSite, args []probeArg) string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("__probe.emit(%s, %s", jsStr(string(site.Kind)), jsStr(site.CorrelationToken)))
	b.WriteString(", {")
	for i, a := range args {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(fmt.Sprintf("%s: %s", jsIdentOrStr(a.Key), jsStr(a.Value)))
	}
	b.WriteString("});")
	return b.String()
}

func pyStr(s string) string { return strconv.Quote(s) }
func jsStr(s string) string { return strconv.Quote(s) }

// jsIdentOrStr renders an object key unquoted when it is already a valid
// bare identifier, matching how handwritten JS/TS literals look.
func jsIdentOrStr(s string) string {
	if s == "" {
		return strconv.Quote(s)
	}
	for i, r := range s {
		if r == '_' || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (i > 0 && r >= '0' && r <= '9') {
			continue
		}
		return strconv.Quote(s)
	}
	return s
}
