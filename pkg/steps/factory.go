package steps

import (
	"fmt"

	"github.com/systemstart/provision-runner/pkg/api"
)

// NewStep creates a Step implementation from a StepConfig.
func NewStep(cfg api.StepConfig) (Step, error) {
	switch cfg.Type {
	case api.StepTypePackages:
		return NewPackagesStep(cfg.Name, cfg.Packages), nil
	case api.StepTypeFetch:
		return NewFetchStep(cfg.Name, cfg.Fetch), nil
	case api.StepTypeExtract:
		return NewExtractStep(cfg.Name, cfg.Extract), nil
	case api.StepTypeInstall:
		return NewInstallStep(cfg.Name, cfg.Install), nil
	case api.StepTypeRender:
		return NewRenderStep(cfg.Name, cfg.Render), nil
	case api.StepTypeRemove:
		return NewRemoveStep(cfg.Name, cfg.Remove), nil
	case api.StepTypeBundle:
		return nil, fmt.Errorf("bundle steps are expanded at load time, not executed directly")
	default:
		return nil, fmt.Errorf("unknown step type: %s", cfg.Type)
	}
}
