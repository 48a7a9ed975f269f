package analyzer

import "scriptforge/internal/model"

// BuildPlan implements the Probe Plan Builder (C2): a pure, I/O-free
// reduction of a function's raw, traversal-order Probe Sites into a
// canonical, deterministic plan. Every structured
// analyzer funnels its discovered sites through here rather than sorting
// and deduplicating inline, keeping the "from analysis details, produce a
// plan" contract a single reusable step independent of how the sites were
// discovered.
func BuildPlan(functionName string, sites []model.ProbeSite) model.ProbePlan {
	plan := model.ProbePlan{FunctionName: functionName, Sites: sites}
	plan.Sort()
	plan.Dedup()
	return plan
}
