package main

import (
	"errors"
	"testing"

	"github.com/systemstart/provision-runner/pkg/provision"
	"github.com/systemstart/provision-runner/pkg/steps"
)

func TestExitCode(t *testing.T) {
	tests := []struct {
		name  string
		cause error
		want  int
	}{
		{
			"fetch failure",
			&steps.FetchError{URL: "https://example.org/a.tar.gz", StatusCode: 404},
			exitFetchFailed,
		},
		{
			"extraction failure",
			&steps.ExtractionError{Archive: "a.tar.gz", Err: errors.New("reading gzip stream: unexpected EOF")},
			exitExtractFailed,
		},
		{
			"structure failure",
			&steps.StructureError{Archive: "a.tar.gz", Reason: "expected exactly one top-level entry, found 2"},
			exitExtractFailed,
		},
		{
			"package failure",
			&steps.PackageError{Source: "system", Names: []string{"httpd"}, ExitStatus: 100},
			exitPackageInstallFailed,
		},
		{
			"installer failure",
			&steps.InstallError{Command: "make install", ExitStatus: 2},
			exitBundleInstallFailed,
		},
		{
			"render failure",
			&steps.ConfigError{Fragment: "/etc/httpd/conf.d/a.conf", Err: errors.New("bad template")},
			exitConfigRenderFailed,
		},
		{
			"untyped failure",
			errors.New("unknown step type"),
			exitPipelineFailed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// The runner always surfaces causes wrapped in a StepFailure.
			err := &provision.StepFailure{Step: "step", Cause: tt.cause}
			if got := exitCode(err); got != tt.want {
				t.Errorf("exitCode(%v) = %d, want %d", err, got, tt.want)
			}
		})
	}
}

func TestExitCode_ClassCodesAreDistinct(t *testing.T) {
	codes := []int{
		exitFetchFailed,
		exitExtractFailed,
		exitPackageInstallFailed,
		exitBundleInstallFailed,
		exitConfigRenderFailed,
		exitPipelineFailed,
	}
	seen := make(map[int]bool)
	for _, code := range codes {
		if seen[code] {
			t.Fatalf("exit code %d assigned to more than one failure class", code)
		}
		seen[code] = true
	}
}
