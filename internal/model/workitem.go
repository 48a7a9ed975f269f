package model

import "time"

// WorkItem is one function's unit of work as it flows through the Parallel
// Dispatcher. Owned by the dispatcher for the duration of processing.
type WorkItem struct {
	Function              FunctionRecord
	Plan                  ProbePlan
	Fingerprint           string
	OriginalFunctionBytes []byte
}

// WorkResult is the outcome of processing one WorkItem. Exactly one of the
// two constructors below should be used; a Failure never aborts the batch.
type WorkResult struct {
	Success  bool
	Text     string
	Cached   bool
	Duration time.Duration

	ReasonKind ErrorKind
	Details    string
}

// SuccessResult builds a successful WorkResult.
func SuccessResult(text string, cached bool, duration time.Duration) WorkResult {
	return WorkResult{Success: true, Text: text, Cached: cached, Duration: duration}
}

// FailureResult builds a failed WorkResult. The Composer treats this as
// "leave the original function bytes in place".
func FailureResult(kind ErrorKind, details string) WorkResult {
	return WorkResult{Success: false, ReasonKind: kind, Details: details}
}

// FunctionStatus is the caller-visible, per-function outcome summary
// returned alongside a FileCompositionResult.
type FunctionStatus struct {
	FunctionName string
	Success      bool
	Cached       bool
	ReasonKind   ErrorKind
	Details      string
}

// FileCompositionResult is the top-level output of an instrument_file run.
type FileCompositionResult struct {
	InstrumentedSource  []byte
	ReplacedCount       int
	PerFunctionStatuses []FunctionStatus
}
