package api

const (
	StepTypePackages = "packages"
	StepTypeBundle   = "bundle"
	StepTypeFetch    = "fetch"
	StepTypeExtract  = "extract"
	StepTypeInstall  = "install"
	StepTypeRender   = "render"
	StepTypeRemove   = "remove"

	SourceSystem          = "system"
	SourceLanguageRuntime = "language-runtime"

	FormatTarGz = "tar.gz"
	FormatTarXz = "tar.xz"
	FormatZip   = "zip"
)

// Recipe is the provisioning recipe file format.
type Recipe struct {
	Context map[string]any `yaml:"context"`
	Steps   []StepConfig   `yaml:"steps"`

	// Set by the loader, not from YAML.
	Dir      string `yaml:"-"`
	FilePath string `yaml:"-"`
}

// StepConfig defines a single provisioning step. Exactly one of the
// action-specific configs must be set, matching Type. Steps are value
// objects: constructed once at load time and never mutated afterwards.
type StepConfig struct {
	Name       string          `yaml:"name"`
	Type       string          `yaml:"type"`
	Idempotent *bool           `yaml:"idempotent,omitempty"`
	Packages   *PackagesConfig `yaml:"packages,omitempty"`
	Bundle     *BundleSpec     `yaml:"bundle,omitempty"`
	Fetch      *FetchConfig    `yaml:"fetch,omitempty"`
	Extract    *ExtractConfig  `yaml:"extract,omitempty"`
	Install    *InstallConfig  `yaml:"install,omitempty"`
	Render     *RenderConfig   `yaml:"render,omitempty"`
	Remove     *RemoveConfig   `yaml:"remove,omitempty"`
}

// IsIdempotent reports whether re-executing the step is declared safe.
// An explicit per-step setting wins; otherwise every action defaults to
// idempotent except install, since arbitrary bundle installers give no
// such guarantee.
func (s StepConfig) IsIdempotent() bool {
	if s.Idempotent != nil {
		return *s.Idempotent
	}
	return s.Type != StepTypeInstall
}

// PackagesConfig configures the packages step.
type PackagesConfig struct {
	Source string   `yaml:"source"`
	Names  []string `yaml:"names"`
	// Manager overrides the package-manager argv prefix, e.g.
	// [yum, install, -y]. Package names are appended to it.
	Manager []string `yaml:"manager,omitempty"`
}

// BundleSpec identifies a remote software bundle. A bundle step is
// shorthand: the loader expands it into the canonical
// fetch/extract/install/cleanup sequence.
type BundleSpec struct {
	URL    string `yaml:"url"`
	Format string `yaml:"format,omitempty"`
	SHA256 string `yaml:"sha256,omitempty"`
	// Root is the top-level directory the archive must produce.
	Root    string `yaml:"root"`
	Install string `yaml:"install"`
}

// FetchConfig configures the fetch step.
type FetchConfig struct {
	URL    string `yaml:"url"`
	SHA256 string `yaml:"sha256,omitempty"`
}

// ExtractConfig configures the extract step.
type ExtractConfig struct {
	// Archive names the earlier fetch step whose artifact is extracted.
	Archive string `yaml:"archive"`
	Format  string `yaml:"format,omitempty"`
	// Root is the expected top-level directory name. Empty accepts any
	// single root directory.
	Root string `yaml:"root,omitempty"`
}

// InstallConfig configures the install step.
type InstallConfig struct {
	// Bundle names the earlier extract step whose root directory the
	// command runs in.
	Bundle  string `yaml:"bundle"`
	Command string `yaml:"command"`
}

// RenderConfig configures the render step.
type RenderConfig struct {
	Fragments []Fragment `yaml:"fragments"`
}

// Fragment is a pipeline-owned configuration artifact. Three forms exist:
// a single template file (Source -> Destination), a glob-selected template
// directory (SourceDir -> DestinationDir), and a declarative virtual host
// (VHost -> Destination). Destinations are always whole-file replacements.
type Fragment struct {
	Source         string       `yaml:"source,omitempty"`
	Destination    string       `yaml:"destination,omitempty"`
	SourceDir      string       `yaml:"sourceDir,omitempty"`
	Include        []string     `yaml:"include,omitempty"`
	Exclude        []string     `yaml:"exclude,omitempty"`
	DestinationDir string       `yaml:"destinationDir,omitempty"`
	VHost          *VHostConfig `yaml:"vhost,omitempty"`
}

// VHostConfig declares a serving virtual host.
type VHostConfig struct {
	ServerName string `yaml:"serverName"`
	// RequireTLS emits a rule redirecting any non-TLS request to the
	// HTTPS equivalent of the same host and path.
	RequireTLS bool `yaml:"requireTls"`
	// PassAuthorizationHeader forwards the inbound Authorization header
	// to the hosted application, which the server otherwise strips.
	PassAuthorizationHeader bool          `yaml:"passAuthorizationHeader"`
	SSLCertificateFile      string        `yaml:"sslCertificateFile,omitempty"`
	SSLCertificateKeyFile   string        `yaml:"sslCertificateKeyFile,omitempty"`
	WSGI                    *WSGIConfig   `yaml:"wsgi,omitempty"`
	Static                  *StaticConfig `yaml:"static,omitempty"`
}

// WSGIConfig binds a URL path prefix to a named application process group.
type WSGIConfig struct {
	ScriptAlias  string `yaml:"scriptAlias"`
	Script       string `yaml:"script"`
	ProcessGroup string `yaml:"processGroup"`
	// SocketPrefix keeps the group's IPC sockets distinct from other
	// process groups on the same host.
	SocketPrefix string `yaml:"socketPrefix,omitempty"`
	Processes    int    `yaml:"processes,omitempty"`
	Threads      int    `yaml:"threads,omitempty"`
}

// StaticConfig maps a URL path prefix to a filesystem directory.
type StaticConfig struct {
	URLPrefix string `yaml:"urlPrefix"`
	Directory string `yaml:"directory"`
}

// RemoveConfig configures the remove step.
type RemoveConfig struct {
	// Of names earlier steps whose produced artifacts are removed.
	Of []string `yaml:"of,omitempty"`
	// Paths are explicit filesystem paths to remove.
	Paths []string `yaml:"paths,omitempty"`
}
