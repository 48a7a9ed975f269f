// Package validator runs three checks a candidate Transformer must pass
// before the cache will accept it: syntactic, policy (forbidden-construct),
// and behavioral (generated-test). The policy check inverts a
// whitelist-style import scan into a deny-list: Transformers run as real
// subprocesses rather than in an embedded interpreter and so can safely use
// most of the stdlib - only the constructs that would let one escape its
// sandbox are forbidden.
package validator

import (
	"context"
	"go/parser"
	"go/token"
	"strconv"
	"strings"
	"time"

	"github.com/traefik/yaegi/interp"
	"github.com/traefik/yaegi/stdlib"

	"scriptforge/internal/logging"
	"scriptforge/internal/model"
	"scriptforge/internal/sandbox"
)

// Status is the outcome of Validate.
type Status string

const (
	Valid   Status = "Valid"
	Invalid Status = "Invalid"
)

// Result is the outcome of validation: Valid, or Invalid with reasons.
type Result struct {
	Status  Status
	Reasons []string
}

// deniedImports are packages a Transformer must never import: each would
// let it reach outside the sandbox (process control, raw syscalls, unsafe
// memory, the network) or defeat static review (plugin-loaded code).
var deniedImports = []string{
	"os/exec",
	"syscall",
	"unsafe",
	"net",
	"net/http",
	"net/rpc",
	"plugin",
	"debug/gosym",
	"runtime/debug",
}

// deniedSubstrings catches dynamic-evaluation constructs that import
// scanning alone would miss (reflection-driven calls, cgo).
var deniedSubstrings = []string{
	"reflect.NewAt",
	"/*#cgo",
	"C.CString",
}

// Validator runs the three checks against a candidate Transformer.
type Validator struct {
	Sandbox           *sandbox.Sandbox
	BehavioralTimeout time.Duration
}

// New builds a Validator with a default behavioral-check timeout.
func New(sb *sandbox.Sandbox) *Validator {
	return &Validator{Sandbox: sb, BehavioralTimeout: 10 * time.Second}
}

// Validate runs all three checks against transformer for fn/plan/lang.
// Syntactic failure short-circuits
// (a program that doesn't parse can't be usefully policy- or behavior-
// checked), but policy and behavioral checks both run and accumulate
// reasons so a single refactor round can address every defect at once.
func (v *Validator) Validate(ctx context.Context, transformer model.Transformer, fn model.FunctionRecord, plan model.ProbePlan, lang model.Language) Result {
	if reasons := syntacticCheck(transformer.Source); len(reasons) > 0 {
		logging.Validator("validator: %s failed syntactic check: %v", transformer.FunctionName, reasons)
		return Result{Status: Invalid, Reasons: reasons}
	}

	var reasons []string
	reasons = append(reasons, policyCheck(transformer.Source)...)

	test := synthesizeTest(fn, plan, lang)
	behavioralReasons := v.behavioralCheck(ctx, transformer, test)
	reasons = append(reasons, behavioralReasons...)

	if len(reasons) > 0 {
		logging.Validator("validator: %s invalid: %v", transformer.FunctionName, reasons)
		return Result{Status: Invalid, Reasons: reasons}
	}

	logging.ValidatorDebug("validator: %s passed all checks", transformer.FunctionName)
	return Result{Status: Valid}
}

// syntacticCheck implements check 1: the Transformer's own program text
// must parse as Go (every Transformer, template- or oracle-produced, is a
// standalone Go program regardless of the target function's language).
// After the parse, the source is also compiled under a yaegi interpreter
// so type errors surface here as a cheap, in-process reason instead of as
// an opaque `go run` compile failure inside the behavioral check's
// sandbox run.
func syntacticCheck(source string) []string {
	fset := token.NewFileSet()
	if _, err := parser.ParseFile(fset, "transformer.go", source, parser.AllErrors); err != nil {
		return []string{"syntactic: " + err.Error()}
	}

	i := interp.New(interp.Options{})
	if err := i.Use(stdlib.Symbols); err != nil {
		// Interpreter setup failure is our problem, not the candidate's;
		// fall through to the behavioral check rather than rejecting.
		logging.Get(logging.CategoryValidator).Warn("validator: yaegi stdlib load failed, skipping compile check: %v", err)
		return nil
	}
	if _, err := i.Compile(source); err != nil {
		return []string{"syntactic: does not compile: " + err.Error()}
	}
	return nil
}

// policyCheck implements check 2: a deny-list scan over import statements
// and a handful of dynamic-evaluation substrings. Every detected occurrence
// contributes its own reason, so a refactor prompt can list them all rather
// than discovering violations one at a time.
func policyCheck(source string) []string {
	var reasons []string
	for _, pkg := range deniedImports {
		if importsPackage(source, pkg) {
			reasons = append(reasons, "policy: forbidden import \""+pkg+"\"")
		}
	}
	for _, sub := range deniedSubstrings {
		if strings.Contains(source, sub) {
			reasons = append(reasons, "policy: forbidden construct \""+sub+"\"")
		}
	}
	return reasons
}

// importsPackage does a textual scan (rather than a full go/ast import
// walk) for the quoted import path: any occurrence counts, whether in a
// single `import "pkg"` line, a grouped `import (...)` block, or elsewhere
// in the source such as a string literal. Validate runs it only on source
// that has already passed the syntactic check.
func importsPackage(source, pkg string) bool {
	quoted := `"` + pkg + `"`
	return strings.Contains(source, quoted)
}

// behavioralCheck implements check 3: run the Generated Test under the
// Sandbox and translate its outcome into reasons. The test itself checks
// exit 0, probe calls present exactly once, token preservation, and
// determinism; the Validator's job here is just to run it and surface a
// non-zero exit or timeout as a reason string.
func (v *Validator) behavioralCheck(ctx context.Context, transformer model.Transformer, test model.GeneratedTest) []string {
	res, err := v.Sandbox.ExecuteTest(ctx, test, transformer, v.BehavioralTimeout)
	if err != nil {
		return []string{"behavioral: sandbox error: " + err.Error()}
	}
	if res.TimedOut {
		return []string{"behavioral: generated test timed out after " + v.BehavioralTimeout.String()}
	}
	if res.ExitCode != 0 {
		detail := strings.TrimSpace(string(res.Stderr))
		if detail == "" {
			detail = "no diagnostic output"
		}
		return []string{"behavioral: generated test exited " + strconv.Itoa(res.ExitCode) + ": " + detail}
	}
	return nil
}
