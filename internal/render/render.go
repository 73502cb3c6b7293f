// Package render produces the configuration files pushed to PodNet nodes.
// Template data is checked against a JSON schema before rendering.
package render

import (
	"bytes"
	"embed"
	"encoding/json"
	"fmt"
	"strings"
	"text/template"

	"github.com/xeipuuv/gojsonschema"
)

//go:embed templates/*.tmpl schemas/*.json
var files embed.FS

var templates = template.Must(template.New("").Option("missingkey=error").ParseFS(files, "templates/*.tmpl"))

type DHCPRange struct {
	Start     string `json:"ip_start" yaml:"ip_start"`
	End       string `json:"ip_end" yaml:"ip_end"`
	Mask      string `json:"mask,omitempty" yaml:"mask"`
	LeaseTime string `json:"lease_time" yaml:"lease_time"`
}

type DHCPHost struct {
	MAC      string `json:"mac" yaml:"mac"`
	IP       string `json:"ip" yaml:"ip"`
	Hostname string `json:"hostname,omitempty" yaml:"hostname"`
}

type Dnsmasq struct {
	Namespace string      `json:"namespace"`
	PIDFile   string      `json:"pidfile"`
	HostsFile string      `json:"hostsfile"`
	Ranges    []DHCPRange `json:"ranges"`
	Hosts     []DHCPHost  `json:"hosts"`
}

type Nginx struct {
	Namespace string   `json:"namespace"`
	PIDFile   string   `json:"pidfile"`
	Root      string   `json:"root"`
	Listen    []string `json:"listen"`
}

// ValidationError lists every schema violation of a template's data.
type ValidationError struct {
	Template string
	Problems []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid data for %s: %s", e.Template, strings.Join(e.Problems, "; "))
}

func DnsmasqConf(d Dnsmasq) (string, error) {
	return render("dnsmasq.conf.tmpl", "dnsmasq.json", d.withEmptyLists())
}

func DnsmasqHosts(d Dnsmasq) (string, error) {
	return render("dnsmasq.hosts.tmpl", "dnsmasq.json", d.withEmptyLists())
}

func NginxConf(n Nginx) (string, error) {
	if n.Listen == nil {
		n.Listen = []string{}
	}
	return render("nginx.conf.tmpl", "nginx.json", n)
}

// Metadata validates a cloud-init metadata document and renders it as
// indented JSON with sorted keys.
func Metadata(m map[string]any) (string, error) {
	if m == nil {
		m = map[string]any{}
	}
	if err := validate("metadata", "metadata.json", m); err != nil {
		return "", err
	}
	out, err := json.MarshalIndent(m, "", " ")
	if err != nil {
		return "", fmt.Errorf("render metadata: %w", err)
	}
	return string(out) + "\n", nil
}

// withEmptyLists replaces nil slices, which marshal to null, with empty ones.
func (d Dnsmasq) withEmptyLists() Dnsmasq {
	if d.Ranges == nil {
		d.Ranges = []DHCPRange{}
	}
	if d.Hosts == nil {
		d.Hosts = []DHCPHost{}
	}
	return d
}

func render(name, schema string, data any) (string, error) {
	if err := validate(name, schema, data); err != nil {
		return "", err
	}
	var buf bytes.Buffer
	if err := templates.ExecuteTemplate(&buf, name, data); err != nil {
		return "", fmt.Errorf("render %s: %w", name, err)
	}
	return strings.TrimLeft(buf.String(), "\n"), nil
}

func validate(name, schema string, data any) error {
	schemaData, err := files.ReadFile("schemas/" + schema)
	if err != nil {
		return fmt.Errorf("read schema %s: %w", schema, err)
	}
	doc, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("marshal %s data: %w", name, err)
	}

	result, err := gojsonschema.Validate(gojsonschema.NewBytesLoader(schemaData), gojsonschema.NewBytesLoader(doc))
	if err != nil {
		return fmt.Errorf("validate %s data: %w", name, err)
	}
	if result.Valid() {
		return nil
	}
	problems := make([]string, 0, len(result.Errors()))
	for _, e := range result.Errors() {
		problems = append(problems, fmt.Sprintf("%s: %s", e.Field(), e.Description()))
	}
	return &ValidationError{Template: name, Problems: problems}
}
