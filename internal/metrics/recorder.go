package metrics

import "time"

// ResultLabel enumerates per-package results for counters.
type ResultLabel string

const (
	ResultSuccess     ResultLabel = "success"
	ResultPrecompiled ResultLabel = "precompiled"
	ResultLocked      ResultLabel = "locked"
	ResultNothingToDo ResultLabel = "nothing_to_do"
	ResultFailed      ResultLabel = "failed"
)

// RunOutcomeLabel is the final status of a run.
type RunOutcomeLabel string

const (
	RunSuccess  RunOutcomeLabel = "success"
	RunFailed   RunOutcomeLabel = "failed"
	RunCanceled RunOutcomeLabel = "canceled"
)

// Recorder defines observability hooks for a compile run. All methods must be safe to call on
// the NoopRecorder, which is the default.
type Recorder interface {
	ObservePackageDuration(pkg string, d time.Duration)
	IncPackageResult(result ResultLabel)
	IncPrecompileAttempt(adapter string, hit bool)
	IncCommand(step string, success bool)
	ObserveRunDuration(d time.Duration)
	IncRunOutcome(outcome RunOutcomeLabel)
}

// NoopRecorder is a Recorder that does nothing (default when metrics not configured).
type NoopRecorder struct{}

func (NoopRecorder) ObservePackageDuration(string, time.Duration) {}
func (NoopRecorder) IncPackageResult(ResultLabel)                 {}
func (NoopRecorder) IncPrecompileAttempt(string, bool)            {}
func (NoopRecorder) IncCommand(string, bool)                      {}
func (NoopRecorder) ObserveRunDuration(time.Duration)             {}
func (NoopRecorder) IncRunOutcome(RunOutcomeLabel)                {}
