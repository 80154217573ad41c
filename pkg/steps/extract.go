package steps

import (
	"archive/tar"
	"archive/zip"
	"compress/gzip"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/systemstart/provision-runner/pkg/api"
	"github.com/ulikunitz/xz"
)

type extractStep struct {
	name string
	cfg  *api.ExtractConfig
}

// NewExtractStep creates an extract step.
func NewExtractStep(name string, cfg *api.ExtractConfig) Step {
	return &extractStep{name: name, cfg: cfg}
}

func (s *extractStep) Name() string { return s.name }

// Run unpacks the archive produced by the referenced fetch step into a
// fresh directory under the scratch dir. Archive contents are not
// trusted: entries that would land outside the destination are rejected
// before anything is written. The archive must produce exactly one
// top-level directory, and when the recipe declares an expected root
// name the two must match, so the pipeline never installs the wrong
// tree silently.
func (s *extractStep) Run(ctx StepContext) (*StepResult, error) {
	archivePath, ok := ctx.Outputs[s.cfg.Archive]
	if !ok {
		return nil, &ExtractionError{Archive: s.cfg.Archive, Err: fmt.Errorf("step %q produced no archive", s.cfg.Archive)}
	}

	destDir, err := os.MkdirTemp(ctx.ScratchDir, "extract-*")
	if err != nil {
		return nil, &ExtractionError{Archive: archivePath, Err: fmt.Errorf("creating scratch directory: %w", err)}
	}

	format := s.cfg.Format
	if format == "" {
		format = inferFormat(archivePath)
	}

	slog.Info("extracting archive", "step", s.name, "archive", archivePath, "format", format, "dest", destDir)

	if err := extractArchive(archivePath, destDir, format); err != nil {
		return nil, &ExtractionError{Archive: archivePath, Err: err}
	}

	root, err := s.validateRoot(archivePath, destDir)
	if err != nil {
		return nil, err
	}

	return &StepResult{ArtifactPath: filepath.Join(destDir, root)}, nil
}

// validateRoot enforces the "one root directory containing the bundle"
// shape and the declared root name.
func (s *extractStep) validateRoot(archivePath, destDir string) (string, error) {
	entries, err := os.ReadDir(destDir)
	if err != nil {
		return "", &ExtractionError{Archive: archivePath, Err: err}
	}
	if len(entries) != 1 {
		return "", &StructureError{
			Archive: archivePath,
			Reason:  fmt.Sprintf("expected exactly one top-level entry, found %d", len(entries)),
		}
	}
	if !entries[0].IsDir() {
		return "", &StructureError{
			Archive: archivePath,
			Reason:  fmt.Sprintf("top-level entry %q is not a directory", entries[0].Name()),
		}
	}

	root := entries[0].Name()
	if s.cfg.Root != "" && root != s.cfg.Root {
		return "", &StructureError{
			Archive: archivePath,
			Reason:  fmt.Sprintf("extracted root %q does not match declared root %q", root, s.cfg.Root),
		}
	}
	return root, nil
}

func inferFormat(archivePath string) string {
	switch {
	case strings.HasSuffix(archivePath, ".tar.gz"), strings.HasSuffix(archivePath, ".tgz"):
		return api.FormatTarGz
	case strings.HasSuffix(archivePath, ".tar.xz"), strings.HasSuffix(archivePath, ".txz"):
		return api.FormatTarXz
	case strings.HasSuffix(archivePath, ".zip"):
		return api.FormatZip
	default:
		return filepath.Ext(archivePath)
	}
}

func extractArchive(archivePath, destDir, format string) error {
	switch format {
	case api.FormatZip:
		return extractZip(archivePath, destDir)
	case api.FormatTarGz, api.FormatTarXz:
		f, err := os.Open(archivePath)
		if err != nil {
			return fmt.Errorf("opening archive: %w", err)
		}
		defer f.Close()

		var r io.Reader
		if format == api.FormatTarGz {
			gz, err := gzip.NewReader(f)
			if err != nil {
				return fmt.Errorf("reading gzip stream: %w", err)
			}
			defer gz.Close()
			r = gz
		} else {
			xr, err := xz.NewReader(f)
			if err != nil {
				return fmt.Errorf("reading xz stream: %w", err)
			}
			r = xr
		}
		return extractTar(r, destDir)
	default:
		return fmt.Errorf("unsupported archive format %q", format)
	}
}

func extractTar(r io.Reader, destDir string) error {
	tr := tar.NewReader(r)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("reading tar stream: %w", err)
		}

		target, ok := securePath(destDir, hdr.Name)
		if !ok {
			return fmt.Errorf("entry %q escapes the destination directory", hdr.Name)
		}
		if target == "" {
			continue
		}

		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, hdr.FileInfo().Mode().Perm()|0o700); err != nil {
				return fmt.Errorf("creating directory %s: %w", target, err)
			}
		case tar.TypeReg:
			if err := writeEntry(target, tr, hdr.FileInfo().Mode().Perm()); err != nil {
				return err
			}
		case tar.TypeSymlink:
			if !localLink(destDir, target, hdr.Linkname) {
				return fmt.Errorf("symlink %q -> %q escapes the destination directory", hdr.Name, hdr.Linkname)
			}
			if err := os.MkdirAll(filepath.Dir(target), 0o750); err != nil {
				return fmt.Errorf("creating parent directory for %s: %w", target, err)
			}
			if err := os.Symlink(hdr.Linkname, target); err != nil {
				return fmt.Errorf("creating symlink %s: %w", target, err)
			}
		default:
			slog.Debug("skipping unsupported tar entry", "name", hdr.Name, "type", hdr.Typeflag)
		}
	}
}

func extractZip(archivePath, destDir string) error {
	zr, err := zip.OpenReader(archivePath)
	if err != nil {
		return fmt.Errorf("opening zip archive: %w", err)
	}
	defer zr.Close()

	for _, f := range zr.File {
		target, ok := securePath(destDir, f.Name)
		if !ok {
			return fmt.Errorf("entry %q escapes the destination directory", f.Name)
		}
		if target == "" {
			continue
		}

		if f.FileInfo().IsDir() {
			if err := os.MkdirAll(target, f.Mode().Perm()|0o700); err != nil {
				return fmt.Errorf("creating directory %s: %w", target, err)
			}
			continue
		}

		rc, err := f.Open()
		if err != nil {
			return fmt.Errorf("opening zip entry %q: %w", f.Name, err)
		}
		writeErr := writeEntry(target, rc, f.Mode().Perm())
		rc.Close()
		if writeErr != nil {
			return writeErr
		}
	}
	return nil
}

func writeEntry(target string, r io.Reader, perm os.FileMode) error {
	if err := os.MkdirAll(filepath.Dir(target), 0o750); err != nil {
		return fmt.Errorf("creating parent directory for %s: %w", target, err)
	}
	f, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, perm|0o400)
	if err != nil {
		return fmt.Errorf("creating %s: %w", target, err)
	}
	_, copyErr := io.Copy(f, r)
	closeErr := f.Close()
	if copyErr != nil {
		return fmt.Errorf("writing %s: %w", target, copyErr)
	}
	if closeErr != nil {
		return fmt.Errorf("closing %s: %w", target, closeErr)
	}
	return nil
}

// securePath resolves an archive entry name below destDir. The empty
// target with ok=true means "skip this entry" (the archive's own "."
// entry). ok=false means the name is absolute or climbs out of destDir.
func securePath(destDir, name string) (string, bool) {
	clean := filepath.Clean(filepath.FromSlash(name))
	if clean == "." {
		return "", true
	}
	if !filepath.IsLocal(clean) {
		return "", false
	}
	return filepath.Join(destDir, clean), true
}

// localLink reports whether a symlink with the given target stays inside
// destDir, judged lexically from the link's own location.
func localLink(destDir, linkPath, linkTarget string) bool {
	if filepath.IsAbs(linkTarget) {
		return false
	}
	resolved := filepath.Join(filepath.Dir(linkPath), linkTarget)
	rel, err := filepath.Rel(destDir, resolved)
	if err != nil {
		return false
	}
	return filepath.IsLocal(rel)
}
