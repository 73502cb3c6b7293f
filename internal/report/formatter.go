package report

import (
	"fmt"
	"strings"
)

type payload struct {
	label  string
	status int
}

// Formatter appends node context to failure messages: the config file, the
// node and its role, and every payload that already succeeded.
type Formatter struct {
	ConfigFile string

	hosts     []string
	succeeded map[string][]payload
}

func NewFormatter(configFile string) *Formatter {
	return &Formatter{ConfigFile: configFile, succeeded: make(map[string][]payload)}
}

func (f *Formatter) AddSuccessful(host, label string, status int) {
	if _, ok := f.succeeded[host]; !ok {
		f.hosts = append(f.hosts, host)
	}
	f.succeeded[host] = append(f.succeeded[host], payload{label: label, status: status})
}

func (f *Formatter) ConnectFailure(head, host string, role Role, err error) string {
	var b strings.Builder
	b.WriteString(head)
	fmt.Fprintf(&b, "\nerror: %v\n\n", err)
	f.writeContext(&b, host, role)
	return strings.TrimRight(b.String(), "\n")
}

func (f *Formatter) CommandFailure(head, host string, role Role, status int, stdout, stderr string) string {
	var b strings.Builder
	b.WriteString(head)
	fmt.Fprintf(&b, "\nstatus: %d\nSTDOUT: %s\nSTDERR: %s\n\n", status, strings.TrimSpace(stdout), strings.TrimSpace(stderr))
	f.writeContext(&b, host, role)
	return strings.TrimRight(b.String(), "\n")
}

func (f *Formatter) writeContext(b *strings.Builder, host string, role Role) {
	if f.ConfigFile != "" {
		fmt.Fprintf(b, "Config file: %s\n", f.ConfigFile)
	}
	switch role {
	case RoleHost:
		fmt.Fprintf(b, "Host: %s\n", host)
	default:
		fmt.Fprintf(b, "PodNet: %s (enabled: %t)\n", host, role == RoleActive)
	}
	if len(f.hosts) == 0 {
		return
	}
	b.WriteString("\nSuccessful payloads:\n")
	for _, h := range f.hosts {
		fmt.Fprintf(b, "  %s:\n", h)
		for _, p := range f.succeeded[h] {
			fmt.Fprintf(b, "    %s (status %d)\n", p.label, p.status)
		}
	}
}
