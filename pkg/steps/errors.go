package steps

import (
	"fmt"
	"strings"
)

// The step error taxonomy. Every error is terminal for the current run:
// the runner aborts at the first failure and surfaces exactly one of
// these, with enough context to diagnose without rerunning.

// FetchError reports a failed archive download. StatusCode is zero when
// the failure happened before an HTTP response arrived (transport error,
// checksum mismatch, local write failure).
type FetchError struct {
	URL        string
	StatusCode int
	Err        error
}

func (e *FetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("fetching %s: unexpected status %d", e.URL, e.StatusCode)
	}
	return fmt.Sprintf("fetching %s: %v", e.URL, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// ExtractionError reports a corrupt or unsafe archive, including entries
// that would land outside the destination directory.
type ExtractionError struct {
	Archive string
	Err     error
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("extracting %s: %v", e.Archive, e.Err)
}

func (e *ExtractionError) Unwrap() error { return e.Err }

// StructureError reports an archive whose extracted shape does not match
// the expected single root directory.
type StructureError struct {
	Archive string
	Reason  string
}

func (e *StructureError) Error() string {
	return fmt.Sprintf("archive %s: %s", e.Archive, e.Reason)
}

// PackageError reports a package-manager invocation that exited non-zero.
// Output holds the tool's combined stdout and stderr.
type PackageError struct {
	Source     string
	Names      []string
	ExitStatus int
	Output     string
	Err        error
}

func (e *PackageError) Error() string {
	return fmt.Sprintf("installing %s packages [%s]: exit status %d", e.Source, strings.Join(e.Names, " "), e.ExitStatus)
}

func (e *PackageError) Unwrap() error { return e.Err }

// InstallError reports a bundle installer command that exited non-zero.
type InstallError struct {
	Command    string
	ExitStatus int
	Output     string
	Err        error
}

func (e *InstallError) Error() string {
	return fmt.Sprintf("bundle installer %q: exit status %d", e.Command, e.ExitStatus)
}

func (e *InstallError) Unwrap() error { return e.Err }

// ConfigError reports a configuration fragment that could not be
// rendered or placed.
type ConfigError struct {
	Fragment string
	Err      error
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("rendering fragment %s: %v", e.Fragment, e.Err)
}

func (e *ConfigError) Unwrap() error { return e.Err }
