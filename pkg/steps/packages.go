package steps

import (
	"bytes"
	"fmt"
	"log/slog"
	"os"
	"os/exec"

	"github.com/systemstart/provision-runner/pkg/api"
)

// Default package-manager argv prefixes. For the system source the first
// manager found in PATH wins; recipes pin a specific one via
// packages.manager.
var systemManagers = [][]string{
	{"apt-get", "install", "-y"},
	{"dnf", "install", "-y"},
	{"yum", "install", "-y"},
	{"apk", "add"},
}

var languageRuntimeManagers = [][]string{
	{"pip", "install"},
	{"pip3", "install"},
}

type packagesStep struct {
	name string
	cfg  *api.PackagesConfig
}

// NewPackagesStep creates a packages step.
func NewPackagesStep(name string, cfg *api.PackagesConfig) Step {
	return &packagesStep{name: name, cfg: cfg}
}

func (s *packagesStep) Name() string { return s.name }

func (s *packagesStep) Run(ctx StepContext) (*StepResult, error) {
	source := s.cfg.Source
	if source == "" {
		source = api.SourceSystem
	}

	argv, err := s.managerArgv(source)
	if err != nil {
		return nil, &PackageError{Source: source, Names: s.cfg.Names, ExitStatus: -1, Err: err}
	}

	args := append(argv[1:len(argv):len(argv)], s.cfg.Names...)

	slog.Info("installing packages", "step", s.name, "source", source, "manager", argv[0], "count", len(s.cfg.Names))

	cmd := exec.Command(argv[0], args...)
	cmd.Env = packageManagerEnv(argv[0])

	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out

	if err := cmd.Run(); err != nil {
		return nil, &PackageError{
			Source:     source,
			Names:      s.cfg.Names,
			ExitStatus: exitStatus(err),
			Output:     out.String(),
			Err:        err,
		}
	}

	return &StepResult{}, nil
}

// managerArgv resolves the package-manager command line prefix: an
// explicit recipe override, or the first default manager present in PATH.
func (s *packagesStep) managerArgv(source string) ([]string, error) {
	if len(s.cfg.Manager) > 0 {
		if _, err := exec.LookPath(s.cfg.Manager[0]); err != nil {
			return nil, fmt.Errorf("package manager %q not found in PATH: %w", s.cfg.Manager[0], err)
		}
		return s.cfg.Manager, nil
	}

	candidates := systemManagers
	if source == api.SourceLanguageRuntime {
		candidates = languageRuntimeManagers
	}

	for _, argv := range candidates {
		if _, err := exec.LookPath(argv[0]); err == nil {
			return argv, nil
		}
	}
	return nil, fmt.Errorf("no %s package manager found in PATH", source)
}

// packageManagerEnv returns a copy of the ambient environment, with the
// non-interactive frontend forced for apt so installs never block on a
// prompt.
func packageManagerEnv(manager string) []string {
	env := append([]string(nil), os.Environ()...)
	if manager == "apt-get" {
		env = append(env, "DEBIAN_FRONTEND=noninteractive")
	}
	return env
}
