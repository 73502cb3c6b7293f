// Package plan describes the ordered remote steps of one primitive operation.
package plan

import (
	"fmt"
	"strings"
)

type Operation string

const (
	OpBuild  Operation = "build"
	OpScrub  Operation = "scrub"
	OpRead   Operation = "read"
	OpUpdate Operation = "update"
)

// Mutates reports whether the operation changes node state.
func (o Operation) Mutates() bool { return o != OpRead }

// FailureKind distinguishes "could not run" from "ran and failed".
type FailureKind string

const (
	FailConnect FailureKind = "connect"
	FailCommand FailureKind = "command"
)

// Step is one remote command with its success rule.
type Step struct {
	Label string
	// Command is the static shell payload. CommandFn, when set, takes
	// precedence and may derive the payload from earlier outputs.
	Command   string
	CommandFn func(Outputs) string
	// When makes the step conditional. A false result skips the step.
	When func(Outputs) bool
	// Accept decides success from the exit status and trimmed stdout.
	// Nil means ExitZero.
	Accept Predicate
	// Record names the read data field filled with this step's stdout.
	Record string
	// Messages overrides the default failure template per kind.
	Messages map[FailureKind]string
}

// Payload resolves the command text against the outputs collected so far.
func (s Step) Payload(out Outputs) string {
	if s.CommandFn != nil {
		return s.CommandFn(out)
	}
	return s.Command
}

func (s Step) Enabled(out Outputs) bool {
	return s.When == nil || s.When(out)
}

func (s Step) Accepts(status int, stdout string) bool {
	accept := s.Accept
	if accept == nil {
		accept = ExitZero
	}
	return accept(status, strings.TrimSpace(stdout))
}

// Plan is an ordered list of steps. The same plan runs against each node.
type Plan struct {
	Primitive string
	Operation Operation
	// Resource is a short human description used in success messages,
	// e.g. "/etc/netns/ns1100/dnsmasq.conf".
	Resource string
	// Success overrides the default confirmation text.
	Success string
	Steps   []Step
}

// Validate checks the plan is runnable.
func (p Plan) Validate() error {
	if strings.TrimSpace(p.Primitive) == "" {
		return fmt.Errorf("plan has no primitive name")
	}
	switch p.Operation {
	case OpBuild, OpScrub, OpRead, OpUpdate:
	default:
		return fmt.Errorf("plan %s: unknown operation %q", p.Primitive, p.Operation)
	}
	if len(p.Steps) == 0 {
		return fmt.Errorf("plan %s %s has no steps", p.Primitive, p.Operation)
	}
	seen := make(map[string]struct{}, len(p.Steps))
	for i, s := range p.Steps {
		if strings.TrimSpace(s.Label) == "" {
			return fmt.Errorf("plan %s %s: step %d has no label", p.Primitive, p.Operation, i+1)
		}
		if _, dup := seen[s.Label]; dup {
			return fmt.Errorf("plan %s %s: duplicate step label %q", p.Primitive, p.Operation, s.Label)
		}
		seen[s.Label] = struct{}{}
		if s.Command == "" && s.CommandFn == nil {
			return fmt.Errorf("plan %s %s: step %q has no command", p.Primitive, p.Operation, s.Label)
		}
	}
	return nil
}

// Index returns the 1-based position of label, or 0.
func (p Plan) Index(label string) int {
	for i, s := range p.Steps {
		if s.Label == label {
			return i + 1
		}
	}
	return 0
}

// RecordFields lists the read data fields in step order.
func (p Plan) RecordFields() []string {
	var out []string
	for _, s := range p.Steps {
		if s.Record != "" {
			out = append(out, s.Record)
		}
	}
	return out
}
