package steps

import (
	"bytes"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"text/template"

	"github.com/Masterminds/sprig/v3"
	"github.com/bmatcuk/doublestar/v4"
	"github.com/systemstart/provision-runner/pkg/api"
)

type renderStep struct {
	name string
	cfg  *api.RenderConfig
}

// NewRenderStep creates a render step.
func NewRenderStep(name string, cfg *api.RenderConfig) Step {
	return &renderStep{name: name, cfg: cfg}
}

func (s *renderStep) Name() string { return s.name }

// Run places every fragment into the configuration tree. Each write is a
// whole-file replacement of a file this pipeline owns: rendering never
// reads or merges the destination, so re-rendering is byte-identical and
// foreign configuration is never touched.
func (s *renderStep) Run(ctx StepContext) (*StepResult, error) {
	for _, frag := range s.cfg.Fragments {
		if err := s.renderFragment(ctx, frag); err != nil {
			return nil, err
		}
	}
	return &StepResult{}, nil
}

func (s *renderStep) renderFragment(ctx StepContext, frag api.Fragment) error {
	switch {
	case frag.VHost != nil:
		return s.renderVHostFragment(ctx, frag)
	case frag.SourceDir != "":
		return s.renderDirFragment(ctx, frag)
	default:
		return s.renderFileFragment(ctx, frag)
	}
}

func (s *renderStep) renderVHostFragment(ctx StepContext, frag api.Fragment) error {
	content, err := RenderVHost(frag.VHost, ctx.TemplateData)
	if err != nil {
		return &ConfigError{Fragment: frag.Destination, Err: err}
	}
	if err := placeFragment(frag.Destination, content); err != nil {
		return &ConfigError{Fragment: frag.Destination, Err: err}
	}
	slog.Info("rendered vhost fragment", "step", s.name, "destination", frag.Destination)
	return nil
}

func (s *renderStep) renderFileFragment(ctx StepContext, frag api.Fragment) error {
	source := frag.Source
	if !filepath.IsAbs(source) {
		source = filepath.Join(ctx.WorkDir, source)
	}

	content, err := renderTemplateFile(source, ctx.TemplateData)
	if err != nil {
		return &ConfigError{Fragment: frag.Destination, Err: err}
	}
	if err := placeFragment(frag.Destination, content); err != nil {
		return &ConfigError{Fragment: frag.Destination, Err: err}
	}
	slog.Info("rendered fragment", "step", s.name, "source", frag.Source, "destination", frag.Destination)
	return nil
}

func (s *renderStep) renderDirFragment(ctx StepContext, frag api.Fragment) error {
	sourceDir := frag.SourceDir
	if !filepath.IsAbs(sourceDir) {
		sourceDir = filepath.Join(ctx.WorkDir, sourceDir)
	}

	files, err := filterFiles(os.DirFS(sourceDir), frag.Include, frag.Exclude)
	if err != nil {
		return &ConfigError{Fragment: frag.DestinationDir, Err: fmt.Errorf("filtering fragment files: %w", err)}
	}

	slog.Info("rendering fragment directory", "step", s.name, "sourceDir", frag.SourceDir, "count", len(files))

	for _, file := range files {
		content, err := renderTemplateFile(filepath.Join(sourceDir, file), ctx.TemplateData)
		if err != nil {
			return &ConfigError{Fragment: file, Err: err}
		}
		dest := filepath.Join(frag.DestinationDir, file)
		if err := placeFragment(dest, content); err != nil {
			return &ConfigError{Fragment: dest, Err: err}
		}
	}
	return nil
}

func renderTemplateFile(path string, data map[string]any) ([]byte, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading fragment source: %w", err)
	}

	tmpl, err := template.New(filepath.Base(path)).Funcs(sprig.FuncMap()).Parse(string(content))
	if err != nil {
		return nil, fmt.Errorf("parsing fragment template: %w", err)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return nil, fmt.Errorf("executing fragment template: %w", err)
	}
	return buf.Bytes(), nil
}

// placeFragment writes a fragment as a whole-file replacement. The
// serving process reads these, so they stay world-readable but only
// owner-writable.
func placeFragment(dest string, content []byte) error {
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return fmt.Errorf("creating parent directories: %w", err)
	}
	if err := os.WriteFile(dest, content, 0o644); err != nil {
		return fmt.Errorf("writing fragment: %w", err)
	}
	return nil
}

func globFS(fsys fs.FS, patterns []string) ([]string, error) {
	var result []string
	for _, pattern := range patterns {
		matches, err := doublestar.Glob(fsys, pattern)
		if err != nil {
			return nil, fmt.Errorf("glob %q: %w", pattern, err)
		}
		result = append(result, matches...)
	}
	slices.Sort(result)
	return slices.Compact(result), nil
}

func filterFiles(fsys fs.FS, include, exclude []string) ([]string, error) {
	if len(include) == 0 {
		include = []string{"**/*"}
	}

	included, err := globFS(fsys, include)
	if err != nil {
		return nil, fmt.Errorf("include filter: %w", err)
	}

	excluded, err := globFS(fsys, exclude)
	if err != nil {
		return nil, fmt.Errorf("exclude filter: %w", err)
	}

	var result []string
	for _, f := range included {
		info, err := fs.Stat(fsys, f)
		if err != nil {
			return nil, fmt.Errorf("stat %s: %w", f, err)
		}
		if info.IsDir() || slices.Contains(excluded, f) {
			continue
		}
		result = append(result, f)
	}
	return result, nil
}
