package steps

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/systemstart/provision-runner/pkg/api"
)

func renderContext(t *testing.T, workDir string) StepContext {
	t.Helper()
	return StepContext{
		WorkDir: workDir,
		TemplateData: map[string]any{
			"domain":  "example.org",
			"appName": "accounting",
		},
	}
}

func TestRender_FileFragment(t *testing.T) {
	workDir := t.TempDir()
	destDir := t.TempDir()
	writeTestFile(t, filepath.Join(workDir, "app.conf.tmpl"), "ServerAdmin admin@{{ .domain }}\n# {{ .appName | upper }}\n")

	dest := filepath.Join(destDir, "conf.d", "app.conf")
	step := NewRenderStep("conf", &api.RenderConfig{Fragments: []api.Fragment{
		{Source: "app.conf.tmpl", Destination: dest},
	}})

	if _, err := step.Run(renderContext(t, workDir)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got := readTestFile(t, dest)
	if got != "ServerAdmin admin@example.org\n# ACCOUNTING\n" {
		t.Errorf("unexpected rendered content: %q", got)
	}

	info, err := os.Stat(dest)
	if err != nil {
		t.Fatal(err)
	}
	if info.Mode().Perm() != 0o644 {
		t.Errorf("fragments must be world-readable and owner-writable, got %v", info.Mode().Perm())
	}
}

func TestRender_ReplacesExistingDestination(t *testing.T) {
	workDir := t.TempDir()
	dest := filepath.Join(t.TempDir(), "app.conf")
	writeTestFile(t, filepath.Join(workDir, "app.conf.tmpl"), "short\n")
	writeTestFile(t, dest, "a much longer stale configuration that must disappear entirely\n")

	step := NewRenderStep("conf", &api.RenderConfig{Fragments: []api.Fragment{
		{Source: "app.conf.tmpl", Destination: dest},
	}})

	if _, err := step.Run(renderContext(t, workDir)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if got := readTestFile(t, dest); got != "short\n" {
		t.Errorf("destination must be replaced whole, got %q", got)
	}
}

func TestRender_RerunIsByteIdentical(t *testing.T) {
	workDir := t.TempDir()
	dest := filepath.Join(t.TempDir(), "app.conf")
	writeTestFile(t, filepath.Join(workDir, "app.conf.tmpl"), "ServerName {{ .domain }}\n")

	step := NewRenderStep("conf", &api.RenderConfig{Fragments: []api.Fragment{
		{Source: "app.conf.tmpl", Destination: dest},
	}})
	ctx := renderContext(t, workDir)

	if _, err := step.Run(ctx); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	first := readTestFile(t, dest)

	// Corrupt the destination between runs; rendering never reads it.
	writeTestFile(t, dest, "manual edit\n")

	if _, err := step.Run(ctx); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if second := readTestFile(t, dest); second != first {
		t.Errorf("re-render diverged: %q vs %q", first, second)
	}
}

func TestRender_DirFragment(t *testing.T) {
	workDir := t.TempDir()
	destDir := filepath.Join(t.TempDir(), "conf.d")
	writeTestFile(t, filepath.Join(workDir, "fragments", "app.conf"), "ServerName {{ .domain }}\n")
	writeTestFile(t, filepath.Join(workDir, "fragments", "ssl", "tls.conf"), "SSLEngine on\n")
	writeTestFile(t, filepath.Join(workDir, "fragments", "local.conf"), "# operator-local, never deployed\n")
	writeTestFile(t, filepath.Join(workDir, "fragments", "README.md"), "docs\n")

	step := NewRenderStep("conf", &api.RenderConfig{Fragments: []api.Fragment{
		{
			SourceDir:      "fragments",
			DestinationDir: destDir,
			Include:        []string{"**/*.conf"},
			Exclude:        []string{"local.conf"},
		},
	}})

	if _, err := step.Run(renderContext(t, workDir)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if got := readTestFile(t, filepath.Join(destDir, "app.conf")); got != "ServerName example.org\n" {
		t.Errorf("unexpected rendered content: %q", got)
	}
	if got := readTestFile(t, filepath.Join(destDir, "ssl", "tls.conf")); got != "SSLEngine on\n" {
		t.Errorf("nested fragment missing or wrong: %q", got)
	}
	for _, name := range []string{"local.conf", "README.md"} {
		if _, err := os.Stat(filepath.Join(destDir, name)); !os.IsNotExist(err) {
			t.Errorf("%s should have been filtered out", name)
		}
	}
}

func TestRender_DirFragmentDefaultInclude(t *testing.T) {
	workDir := t.TempDir()
	destDir := filepath.Join(t.TempDir(), "out")
	writeTestFile(t, filepath.Join(workDir, "fragments", "a.conf"), "a\n")
	writeTestFile(t, filepath.Join(workDir, "fragments", "sub", "b.conf"), "b\n")

	step := NewRenderStep("conf", &api.RenderConfig{Fragments: []api.Fragment{
		{SourceDir: "fragments", DestinationDir: destDir},
	}})

	if _, err := step.Run(renderContext(t, workDir)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	for _, name := range []string{"a.conf", filepath.Join("sub", "b.conf")} {
		if _, err := os.Stat(filepath.Join(destDir, name)); err != nil {
			t.Errorf("expected %s to be rendered: %v", name, err)
		}
	}
}

func TestRender_MissingSource(t *testing.T) {
	step := NewRenderStep("conf", &api.RenderConfig{Fragments: []api.Fragment{
		{Source: "nope.tmpl", Destination: filepath.Join(t.TempDir(), "out.conf")},
	}})

	_, err := step.Run(renderContext(t, t.TempDir()))

	var cfgErr *ConfigError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("expected ConfigError, got %v", err)
	}
	if !strings.Contains(err.Error(), "reading fragment source") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestRender_BadTemplate(t *testing.T) {
	workDir := t.TempDir()
	writeTestFile(t, filepath.Join(workDir, "bad.tmpl"), "{{ .domain")

	step := NewRenderStep("conf", &api.RenderConfig{Fragments: []api.Fragment{
		{Source: "bad.tmpl", Destination: filepath.Join(t.TempDir(), "out.conf")},
	}})

	_, err := step.Run(renderContext(t, workDir))

	var cfgErr *ConfigError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("expected ConfigError, got %v", err)
	}
	if !strings.Contains(err.Error(), "parsing fragment template") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestRender_VHostFragment(t *testing.T) {
	dest := filepath.Join(t.TempDir(), "vhost.conf")

	step := NewRenderStep("conf", &api.RenderConfig{Fragments: []api.Fragment{
		{
			Destination: dest,
			VHost: &api.VHostConfig{
				ServerName: "{{ .domain }}",
				RequireTLS: true,
			},
		},
	}})

	if _, err := step.Run(renderContext(t, t.TempDir())); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got := readTestFile(t, dest)
	if !strings.Contains(got, "ServerName example.org") {
		t.Errorf("context not applied to vhost fragment:\n%s", got)
	}
}
