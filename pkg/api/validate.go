package api

import (
	"fmt"
	"net/url"
)

var validStepTypes = map[string]bool{
	StepTypePackages: true,
	StepTypeFetch:    true,
	StepTypeExtract:  true,
	StepTypeInstall:  true,
	StepTypeRender:   true,
	StepTypeRemove:   true,
}

var validPackageSources = map[string]bool{
	SourceSystem:          true,
	SourceLanguageRuntime: true,
}

var validArchiveFormats = map[string]bool{
	FormatTarGz: true,
	FormatTarXz: true,
	FormatZip:   true,
}

// producers tracks which earlier steps leave an artifact on disk, so
// later steps can reference them by name.
type producers struct {
	fetched   map[string]bool
	extracted map[string]bool
}

// Validate checks the recipe for errors. It expects bundle shorthand
// steps to have been expanded already.
func (r *Recipe) Validate() error {
	if len(r.Steps) == 0 {
		return fmt.Errorf("recipe has no steps")
	}

	names := make(map[string]int)
	known := producers{
		fetched:   make(map[string]bool),
		extracted: make(map[string]bool),
	}

	for i, step := range r.Steps {
		if step.Name == "" {
			return fmt.Errorf("step %d: name is required", i)
		}
		if prev, exists := names[step.Name]; exists {
			return fmt.Errorf("step %d: duplicate step name %q (first defined at step %d)", i, step.Name, prev)
		}
		names[step.Name] = i

		if !validStepTypes[step.Type] {
			return fmt.Errorf("step %q: unknown type %q", step.Name, step.Type)
		}

		if err := validateStepConfig(step, known); err != nil {
			return fmt.Errorf("step %q: %w", step.Name, err)
		}

		switch step.Type {
		case StepTypeFetch:
			known.fetched[step.Name] = true
		case StepTypeExtract:
			known.extracted[step.Name] = true
		}
	}

	return nil
}

func validateStepConfig(step StepConfig, known producers) error {
	switch step.Type {
	case StepTypePackages:
		return validatePackagesConfig(step)
	case StepTypeFetch:
		return validateFetchConfig(step)
	case StepTypeExtract:
		return validateExtractConfig(step, known)
	case StepTypeInstall:
		return validateInstallConfig(step, known)
	case StepTypeRender:
		return validateRenderConfig(step)
	case StepTypeRemove:
		return validateRemoveConfig(step, known)
	}
	return nil
}

func validatePackagesConfig(step StepConfig) error {
	if step.Packages == nil {
		return fmt.Errorf("packages config is required")
	}
	if len(step.Packages.Names) == 0 {
		return fmt.Errorf("packages.names must not be empty")
	}
	if src := step.Packages.Source; src != "" && !validPackageSources[src] {
		return fmt.Errorf("packages.source %q is not valid (valid: %s, %s)", src, SourceSystem, SourceLanguageRuntime)
	}
	return nil
}

func validateFetchConfig(step StepConfig) error {
	if step.Fetch == nil {
		return fmt.Errorf("fetch config is required")
	}
	if step.Fetch.URL == "" {
		return fmt.Errorf("fetch.url is required")
	}
	u, err := url.Parse(step.Fetch.URL)
	if err != nil {
		return fmt.Errorf("fetch.url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("fetch.url %q: scheme must be http or https", step.Fetch.URL)
	}
	return nil
}

func validateExtractConfig(step StepConfig, known producers) error {
	if step.Extract == nil {
		return fmt.Errorf("extract config is required")
	}
	if step.Extract.Archive == "" {
		return fmt.Errorf("extract.archive is required")
	}
	if !known.fetched[step.Extract.Archive] {
		return fmt.Errorf("extract.archive %q does not reference an earlier fetch step", step.Extract.Archive)
	}
	if f := step.Extract.Format; f != "" && !validArchiveFormats[f] {
		return fmt.Errorf("extract.format %q is not valid (valid: %s, %s, %s)", f, FormatTarGz, FormatTarXz, FormatZip)
	}
	return nil
}

func validateInstallConfig(step StepConfig, known producers) error {
	if step.Install == nil {
		return fmt.Errorf("install config is required")
	}
	if step.Install.Bundle == "" {
		return fmt.Errorf("install.bundle is required")
	}
	if !known.extracted[step.Install.Bundle] {
		return fmt.Errorf("install.bundle %q does not reference an earlier extract step", step.Install.Bundle)
	}
	if step.Install.Command == "" {
		return fmt.Errorf("install.command is required")
	}
	return nil
}

func validateRenderConfig(step StepConfig) error {
	if step.Render == nil {
		return fmt.Errorf("render config is required")
	}
	if len(step.Render.Fragments) == 0 {
		return fmt.Errorf("render.fragments must not be empty")
	}
	for i, frag := range step.Render.Fragments {
		if err := validateFragment(frag); err != nil {
			return fmt.Errorf("fragment %d: %w", i, err)
		}
	}
	return nil
}

func validateFragment(frag Fragment) error {
	switch {
	case frag.VHost != nil:
		if frag.Destination == "" {
			return fmt.Errorf("destination is required for a vhost fragment")
		}
		if frag.Source != "" || frag.SourceDir != "" {
			return fmt.Errorf("vhost fragments must not set source or sourceDir")
		}
		return validateVHost(frag.VHost)
	case frag.SourceDir != "":
		if frag.DestinationDir == "" {
			return fmt.Errorf("destinationDir is required when sourceDir is set")
		}
		if frag.Source != "" || frag.Destination != "" {
			return fmt.Errorf("sourceDir fragments must not set source or destination")
		}
	case frag.Source != "":
		if frag.Destination == "" {
			return fmt.Errorf("destination is required when source is set")
		}
	default:
		return fmt.Errorf("one of source, sourceDir or vhost is required")
	}
	return nil
}

func validateVHost(v *VHostConfig) error {
	if v.ServerName == "" {
		return fmt.Errorf("vhost.serverName is required")
	}
	if w := v.WSGI; w != nil {
		if w.ScriptAlias == "" {
			return fmt.Errorf("vhost.wsgi.scriptAlias is required")
		}
		if w.Script == "" {
			return fmt.Errorf("vhost.wsgi.script is required")
		}
		if w.ProcessGroup == "" {
			return fmt.Errorf("vhost.wsgi.processGroup is required")
		}
	}
	if s := v.Static; s != nil {
		if s.URLPrefix == "" {
			return fmt.Errorf("vhost.static.urlPrefix is required")
		}
		if s.Directory == "" {
			return fmt.Errorf("vhost.static.directory is required")
		}
	}
	return nil
}

func validateRemoveConfig(step StepConfig, known producers) error {
	if step.Remove == nil {
		return fmt.Errorf("remove config is required")
	}
	if len(step.Remove.Of) == 0 && len(step.Remove.Paths) == 0 {
		return fmt.Errorf("remove needs at least one of 'of' or 'paths'")
	}
	for _, ref := range step.Remove.Of {
		if !known.fetched[ref] && !known.extracted[ref] {
			return fmt.Errorf("remove.of %q does not reference an earlier fetch or extract step", ref)
		}
	}
	return nil
}
