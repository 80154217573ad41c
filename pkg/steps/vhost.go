package steps

import (
	"bytes"
	"fmt"
	"text/template"

	"github.com/Masterminds/sprig/v3"
	"github.com/systemstart/provision-runner/pkg/api"
)

// mod_wsgi defaults for the daemon process group.
const (
	defaultWSGIProcesses = 1
	defaultWSGIThreads   = 15
)

// vhostTemplate is the serving-configuration dialect this pipeline owns:
// an Apache virtual host pair hosting a WSGI application. The port-80
// host only exists to bounce traffic to TLS; RewriteRule preserves the
// request path, and the query string is carried over by default since
// the substitution has none of its own.
const vhostTemplate = `# Managed by provision-runner; rewritten in full on every run. Do not edit.
<VirtualHost *:80>
    ServerName {{ .ServerName }}
{{- if .RequireTLS }}
    RewriteEngine On
    RewriteCond %{HTTPS} !=on
    RewriteRule ^/?(.*) https://%{SERVER_NAME}/$1 [R,L]
{{- end }}
</VirtualHost>
{{ if and .WSGI .WSGI.SocketPrefix }}
WSGISocketPrefix {{ .WSGI.SocketPrefix }}
{{ end }}
<VirtualHost *:443>
    ServerName {{ .ServerName }}
    SSLEngine on
{{- if .SSLCertificateFile }}
    SSLCertificateFile {{ .SSLCertificateFile }}
{{- end }}
{{- if .SSLCertificateKeyFile }}
    SSLCertificateKeyFile {{ .SSLCertificateKeyFile }}
{{- end }}
{{- if .PassAuthorizationHeader }}
    WSGIPassAuthorization On
{{- end }}
{{- with .WSGI }}
    WSGIDaemonProcess {{ .ProcessGroup }} processes={{ .Processes }} threads={{ .Threads }}
    WSGIProcessGroup {{ .ProcessGroup }}
    WSGIScriptAlias {{ .ScriptAlias }} {{ .Script }}
{{- end }}
{{- with .Static }}
    Alias {{ .URLPrefix }} {{ .Directory }}
    <Directory {{ .Directory }}>
        Require all granted
    </Directory>
{{- end }}
</VirtualHost>
`

// RenderVHost produces the serving configuration for a declarative
// virtual-host fragment. String fields may themselves be templates over
// the recipe context (e.g. serverName: "{{ .domain }}"). The result is a
// pure function of the fragment and context; the destination is never
// consulted.
func RenderVHost(v *api.VHostConfig, data map[string]any) ([]byte, error) {
	resolved, err := resolveVHost(v, data)
	if err != nil {
		return nil, err
	}

	tmpl, err := template.New("vhost").Parse(vhostTemplate)
	if err != nil {
		return nil, fmt.Errorf("parsing vhost template: %w", err)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, resolved); err != nil {
		return nil, fmt.Errorf("executing vhost template: %w", err)
	}
	return buf.Bytes(), nil
}

// resolveVHost returns a copy with context interpolated into the string
// fields and mod_wsgi defaults applied. The original fragment is a value
// object and stays untouched.
func resolveVHost(v *api.VHostConfig, data map[string]any) (*api.VHostConfig, error) {
	out := *v

	fields := []*string{
		&out.ServerName,
		&out.SSLCertificateFile,
		&out.SSLCertificateKeyFile,
	}
	if v.WSGI != nil {
		w := *v.WSGI
		if w.Processes == 0 {
			w.Processes = defaultWSGIProcesses
		}
		if w.Threads == 0 {
			w.Threads = defaultWSGIThreads
		}
		out.WSGI = &w
		fields = append(fields, &w.ScriptAlias, &w.Script, &w.ProcessGroup, &w.SocketPrefix)
	}
	if v.Static != nil {
		st := *v.Static
		out.Static = &st
		fields = append(fields, &st.URLPrefix, &st.Directory)
	}

	for _, f := range fields {
		resolved, err := resolveField(*f, data)
		if err != nil {
			return nil, err
		}
		*f = resolved
	}
	return &out, nil
}

func resolveField(value string, data map[string]any) (string, error) {
	tmpl, err := template.New("field").Funcs(sprig.FuncMap()).Parse(value)
	if err != nil {
		return "", fmt.Errorf("parsing field %q: %w", value, err)
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("resolving field %q: %w", value, err)
	}
	return buf.String(), nil
}
