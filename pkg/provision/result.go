package provision

import "fmt"

// Result is the outcome of a full pipeline run. When Failure is set,
// CompletedSteps holds exactly the steps that ran to completion before
// it; no step is partially counted as done.
type Result struct {
	CompletedSteps []string
	Failure        *StepFailure
}

// Succeeded reports whether every step ran to completion.
func (r *Result) Succeeded() bool { return r.Failure == nil }

// StepFailure identifies the first failing step and its cause. It is the
// error the runner returns, so callers can classify the cause with
// errors.As through Unwrap.
type StepFailure struct {
	Step  string
	Cause error
}

func (f *StepFailure) Error() string {
	return fmt.Sprintf("step %q failed: %v", f.Step, f.Cause)
}

func (f *StepFailure) Unwrap() error { return f.Cause }
