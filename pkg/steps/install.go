package steps

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"

	shellwords "github.com/mattn/go-shellwords"
	"github.com/systemstart/provision-runner/pkg/api"
)

type installStep struct {
	name string
	cfg  *api.InstallConfig
}

// NewInstallStep creates an install step.
func NewInstallStep(name string, cfg *api.InstallConfig) Step {
	return &installStep{name: name, cfg: cfg}
}

func (s *installStep) Name() string { return s.name }

// Run executes the bundle's declared install command with the extracted
// root as working directory. Each invocation gets its own copy of the
// ambient environment, so one bundle's installer cannot leak variables
// into the next.
func (s *installStep) Run(ctx StepContext) (*StepResult, error) {
	rootDir, ok := ctx.Outputs[s.cfg.Bundle]
	if !ok {
		return nil, &InstallError{Command: s.cfg.Command, ExitStatus: -1,
			Err: fmt.Errorf("step %q produced no bundle root", s.cfg.Bundle)}
	}

	argv, err := shellwords.Parse(s.cfg.Command)
	if err != nil {
		return nil, &InstallError{Command: s.cfg.Command, ExitStatus: -1,
			Err: fmt.Errorf("parsing install command: %w", err)}
	}
	if len(argv) == 0 {
		return nil, &InstallError{Command: s.cfg.Command, ExitStatus: -1,
			Err: fmt.Errorf("install command is empty")}
	}

	slog.Info("running bundle installer", "step", s.name, "dir", rootDir, "command", s.cfg.Command)

	cmd := exec.Command(argv[0], argv[1:]...)
	cmd.Dir = rootDir
	cmd.Env = append([]string(nil), os.Environ()...)

	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out

	if err := cmd.Run(); err != nil {
		return nil, &InstallError{
			Command:    s.cfg.Command,
			ExitStatus: exitStatus(err),
			Output:     out.String(),
			Err:        err,
		}
	}

	return &StepResult{}, nil
}

// exitStatus extracts the subprocess exit code, or -1 when the command
// never ran to completion.
func exitStatus(err error) int {
	var ee *exec.ExitError
	if errors.As(err, &ee) {
		return ee.ExitCode()
	}
	return -1
}
