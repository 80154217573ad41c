package provision

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/systemstart/provision-runner/pkg/api"
	"github.com/systemstart/provision-runner/pkg/steps"
)

// Runner executes a recipe's steps strictly in declaration order.
// Execution is fail-fast: the first failing step aborts the run and no
// later step executes. There is no rollback; completed steps are
// individually idempotent, so rerunning the pipeline from the top is the
// recovery path.
type Runner struct {
	// ScratchDir holds transient artifacts for the run. The runner never
	// removes it; cleanup happens through remove steps, so a failed run
	// leaves its artifacts in place for diagnosis.
	ScratchDir string
	// Context is the global template context; the recipe's own context
	// is merged over it.
	Context map[string]any
	// NewStep constructs a Step from its config. Overridable for tests.
	NewStep func(cfg api.StepConfig) (steps.Step, error)
}

// NewRunner creates a Runner with the default step factory.
func NewRunner(scratchDir string, globalContext map[string]any) *Runner {
	return &Runner{
		ScratchDir: scratchDir,
		Context:    globalContext,
		NewStep:    steps.NewStep,
	}
}

// Run executes the recipe and returns its Result. The returned error, if
// any, is the *StepFailure also recorded in the Result.
func (r *Runner) Run(recipe *api.Recipe) (*Result, error) {
	data := MergeContext(r.Context, recipe.Context)
	outputs := make(map[string]string)
	result := &Result{}

	for _, cfg := range recipe.Steps {
		if !cfg.IsIdempotent() {
			slog.Warn("step is not declared idempotent; a rerun after failure may repeat its effects",
				"step", cfg.Name)
		}
		slog.Info("running step", "step", cfg.Name, "type", cfg.Type)

		step, err := r.NewStep(cfg)
		if err != nil {
			return fail(result, cfg.Name, err)
		}

		res, err := step.Run(steps.StepContext{
			ScratchDir:   r.ScratchDir,
			WorkDir:      recipe.Dir,
			TemplateData: data,
			Outputs:      outputs,
		})
		if err != nil {
			return fail(result, cfg.Name, err)
		}

		if res != nil && res.ArtifactPath != "" {
			outputs[cfg.Name] = res.ArtifactPath
		}
		result.CompletedSteps = append(result.CompletedSteps, cfg.Name)
		slog.Info("step succeeded", "step", cfg.Name)
	}

	return result, nil
}

func fail(result *Result, step string, cause error) (*Result, error) {
	f := &StepFailure{Step: step, Cause: cause}
	result.Failure = f
	return result, f
}

// Describe returns a human-readable listing of the steps a run would
// execute, in order, without executing anything.
func Describe(recipe *api.Recipe) string {
	var b strings.Builder
	for i, cfg := range recipe.Steps {
		marker := ""
		if !cfg.IsIdempotent() {
			marker = "  (not idempotent)"
		}
		fmt.Fprintf(&b, "%2d. [%s] %s%s\n", i+1, cfg.Type, cfg.Name, marker)
	}
	return b.String()
}
