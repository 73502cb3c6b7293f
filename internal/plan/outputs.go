package plan

import "strings"

type Output struct {
	Status int
	Stdout string
	Stderr string
}

// Outputs holds the results of steps that already ran on the current node.
type Outputs map[string]Output

func (o Outputs) Set(label string, status int, stdout, stderr string) {
	o[label] = Output{Status: status, Stdout: strings.TrimSpace(stdout), Stderr: strings.TrimSpace(stderr)}
}

func (o Outputs) Stdout(label string) string { return o[label].Stdout }

func (o Outputs) Ran(label string) bool {
	_, ok := o[label]
	return ok
}

// Found reports a probe that exited 0 and printed something.
func (o Outputs) Found(label string) bool {
	out, ok := o[label]
	return ok && out.Status == 0 && out.Stdout != ""
}

// Exited reports whether label ran and exited with status.
func (o Outputs) Exited(label string, status int) bool {
	out, ok := o[label]
	return ok && out.Status == status
}
