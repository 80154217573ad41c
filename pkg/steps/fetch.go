package steps

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/systemstart/provision-runner/pkg/api"
)

type fetchStep struct {
	name string
	cfg  *api.FetchConfig
}

// NewFetchStep creates a fetch step.
func NewFetchStep(name string, cfg *api.FetchConfig) Step {
	return &fetchStep{name: name, cfg: cfg}
}

func (s *fetchStep) Name() string { return s.name }

// Run downloads the archive into a fresh directory under the scratch
// dir. Redirects are followed; any non-2xx response is a failure, never
// written to disk as if it were the archive. There is no retry here:
// transient failures surface to the caller, who reruns the pipeline.
func (s *fetchStep) Run(ctx StepContext) (*StepResult, error) {
	if s.cfg.SHA256 == "" {
		slog.Warn("archive has no sha256 pin; reruns are only as reproducible as the source reference",
			"step", s.name, "url", s.cfg.URL)
	}

	slog.Info("fetching archive", "step", s.name, "url", s.cfg.URL)

	resp, err := http.Get(s.cfg.URL)
	if err != nil {
		return nil, &FetchError{URL: s.cfg.URL, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &FetchError{URL: s.cfg.URL, StatusCode: resp.StatusCode}
	}

	dir, err := os.MkdirTemp(ctx.ScratchDir, "fetch-*")
	if err != nil {
		return nil, &FetchError{URL: s.cfg.URL, Err: fmt.Errorf("creating scratch directory: %w", err)}
	}
	dest := filepath.Join(dir, archiveFileName(s.cfg.URL))

	if err := s.writeArchive(dest, resp.Body); err != nil {
		// Never leave a partial file behind as if it were the archive.
		os.Remove(dest)
		return nil, &FetchError{URL: s.cfg.URL, Err: err}
	}

	return &StepResult{ArtifactPath: dest}, nil
}

func (s *fetchStep) writeArchive(dest string, body io.Reader) error {
	f, err := os.Create(dest)
	if err != nil {
		return fmt.Errorf("creating archive file: %w", err)
	}

	h := sha256.New()
	n, copyErr := io.Copy(io.MultiWriter(f, h), body)
	closeErr := f.Close()
	if copyErr != nil {
		return fmt.Errorf("writing archive: %w", copyErr)
	}
	if closeErr != nil {
		return fmt.Errorf("closing archive file: %w", closeErr)
	}

	sum := hex.EncodeToString(h.Sum(nil))
	if s.cfg.SHA256 != "" && !strings.EqualFold(sum, s.cfg.SHA256) {
		return fmt.Errorf("sha256 mismatch: got %s, want %s", sum, s.cfg.SHA256)
	}

	slog.Info("fetched archive", "step", s.name, "bytes", n, "sha256", sum)
	return nil
}

// archiveFileName derives a local file name from the source URL path.
func archiveFileName(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "archive"
	}
	name := path.Base(u.Path)
	if name == "" || name == "." || name == "/" {
		return "archive"
	}
	return name
}
