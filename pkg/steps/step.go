package steps

// StepContext provides the runtime context for a step.
type StepContext struct {
	// ScratchDir holds transient artifacts (downloads, extraction
	// directories). The caller owns its eventual removal; cleanup during
	// the run happens through ordinary remove steps.
	ScratchDir string
	// WorkDir is the recipe directory, the base for relative fragment
	// source paths.
	WorkDir      string
	TemplateData map[string]any
	// Outputs maps earlier step names to the filesystem paths they
	// produced (downloaded archives, extracted bundle roots).
	Outputs map[string]string
}

// StepResult holds the output of a step.
type StepResult struct {
	// ArtifactPath is the path the step left on disk, if any. The runner
	// records it so later steps can reference it by step name.
	ArtifactPath string
}

// Step is the interface all provisioning steps implement.
type Step interface {
	Name() string
	Run(ctx StepContext) (*StepResult, error)
}
