package steps

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/hashicorp/go-multierror"
	"github.com/systemstart/provision-runner/pkg/api"
)

type removeStep struct {
	name string
	cfg  *api.RemoveConfig
}

// NewRemoveStep creates a remove step. Cleanup is an ordinary pipeline
// step rather than a finally-phase: a failure earlier in the run leaves
// its artifacts on disk for diagnosis instead of erasing the evidence.
func NewRemoveStep(name string, cfg *api.RemoveConfig) Step {
	return &removeStep{name: name, cfg: cfg}
}

func (s *removeStep) Name() string { return s.name }

func (s *removeStep) Run(ctx StepContext) (*StepResult, error) {
	var merr *multierror.Error

	for _, ref := range s.cfg.Of {
		path, ok := ctx.Outputs[ref]
		if !ok {
			merr = multierror.Append(merr, fmt.Errorf("step %q produced no artifact to remove", ref))
			continue
		}
		merr = multierror.Append(merr, s.removePath(path))
	}

	for _, path := range s.cfg.Paths {
		merr = multierror.Append(merr, s.removePath(path))
	}

	return &StepResult{}, merr.ErrorOrNil()
}

// removePath deletes path recursively. A path that is already gone is a
// no-op, keeping the step safe to rerun.
func (s *removeStep) removePath(path string) error {
	slog.Info("removing artifact", "step", s.name, "path", path)
	if err := os.RemoveAll(path); err != nil {
		return fmt.Errorf("removing %s: %w", path, err)
	}
	return nil
}
