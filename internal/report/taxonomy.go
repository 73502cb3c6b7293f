// Package report owns the numbered operator messages of every operation.
//
// Codes are stable per operation:
//
//	base+1..9    input and template validation
//	base+11..19  config.json resolution
//	base+20+2k-1 step k could not run on the active node (or host)
//	base+20+2k   step k ran and failed on the active node (or host)
//	base+60+2k-1 step k could not run on the standby node
//	base+60+2k   step k ran and failed on the standby node
//
// with base 3000 for build, 3100 for scrub, 3200 for read and 3300 for
// update. Success codes are 1000, 1100, 1200 and 1300.
package report

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/Bibi40k/podnet-primitives/internal/plan"
)

type Role string

const (
	RoleActive  Role = "active"
	RoleStandby Role = "standby"
	RoleHost    Role = "host"
)

const (
	activeSlot  = 20
	standbySlot = 60
)

func Base(op plan.Operation) int {
	switch op {
	case plan.OpScrub:
		return 3100
	case plan.OpRead:
		return 3200
	case plan.OpUpdate:
		return 3300
	default:
		return 3000
	}
}

func SuccessCode(op plan.Operation) int {
	return Base(op) - 2000
}

// StepCode returns the code for the k-th step (1-based).
func StepCode(op plan.Operation, role Role, k int, kind plan.FailureKind) int {
	slot := activeSlot
	if role == RoleStandby {
		slot = standbySlot
	}
	code := Base(op) + slot + 2*k
	if kind == plan.FailConnect {
		code--
	}
	return code
}

// Vars fill the placeholders of a template.
type Vars struct {
	Label     string
	Host      string
	Active    string
	Resource  string
	Operation plan.Operation
	Status    int
}

func (v Vars) replacer(role Role) *strings.Replacer {
	return strings.NewReplacer(
		"{label}", v.Label,
		"{host}", v.Host,
		"{node}", nodePhrase(role, v.Host),
		"{active}", v.Active,
		"{resource}", v.Resource,
		"{operation}", string(v.Operation),
		"{status}", strconv.Itoa(v.Status),
	)
}

func nodePhrase(role Role, host string) string {
	switch role {
	case RoleActive:
		return "the enabled PodNet " + host
	case RoleStandby:
		return "the disabled PodNet " + host
	default:
		return "the host " + host
	}
}

type Entry struct {
	Code     int
	Template string
	role     Role
}

func (e Entry) Format(v Vars) string {
	return fmt.Sprintf("%d: %s", e.Code, v.replacer(e.role).Replace(e.Template))
}

type Key struct {
	Label string
	Role  Role
	Kind  plan.FailureKind
}

const (
	defaultConnectClause = "failed to connect to {node} for {label} payload"
	defaultCommandClause = "failed to run {label} payload on {node}. Payload exited with status {status}"
)

// Taxonomy is the message table of one plan.
type Taxonomy struct {
	plan    plan.Plan
	entries map[Key]Entry
}

func NewTaxonomy(p plan.Plan) *Taxonomy {
	t := &Taxonomy{plan: p, entries: make(map[Key]Entry, len(p.Steps)*6)}
	for i, s := range p.Steps {
		k := i + 1
		for _, kind := range []plan.FailureKind{plan.FailConnect, plan.FailCommand} {
			clause := s.Messages[kind]
			if clause == "" {
				clause = defaultConnectClause
				if kind == plan.FailCommand {
					clause = defaultCommandClause
				}
			}
			for _, role := range []Role{RoleActive, RoleStandby, RoleHost} {
				t.entries[Key{Label: s.Label, Role: role, Kind: kind}] = Entry{
					Code:     StepCode(p.Operation, role, k, kind),
					Template: compose(p.Operation, role, clause),
					role:     role,
				}
			}
		}
	}
	return t
}

func compose(op plan.Operation, role Role, clause string) string {
	if role == RoleStandby && op.Mutates() {
		return "Successfully ran {operation} for {resource} on the enabled PodNet {active} but " + clause +
			". The PodNet nodes are no longer in sync."
	}
	return capitalize(clause) + "."
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

func (t *Taxonomy) Lookup(label string, role Role, kind plan.FailureKind) (Entry, bool) {
	e, ok := t.entries[Key{Label: label, Role: role, Kind: kind}]
	return e, ok
}

// Success returns the confirmation entry. hostOnly selects the single host
// wording used by host primitives.
func (t *Taxonomy) Success(hostOnly bool) Entry {
	tmpl := t.plan.Success
	if tmpl == "" {
		verb := map[plan.Operation]string{
			plan.OpBuild:  "built",
			plan.OpScrub:  "scrubbed",
			plan.OpRead:   "read",
			plan.OpUpdate: "updated",
		}[t.plan.Operation]
		where := "on both PodNet nodes"
		if hostOnly {
			where = "on the host {host}"
		}
		tmpl = fmt.Sprintf("Successfully %s {resource} %s.", verb, where)
	}
	role := RoleActive
	if hostOnly {
		role = RoleHost
	}
	return Entry{Code: SuccessCode(t.plan.Operation), Template: tmpl, role: role}
}

// InputMessage numbers a validation or template error (offset 1..9).
func InputMessage(op plan.Operation, offset int, err error) string {
	return fmt.Sprintf("%d: %v", Base(op)+offset, err)
}
