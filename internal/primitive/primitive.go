// Package primitive defines the PodNet and host primitives and runs them.
//
// Each primitive turns its inputs into a plan per operation. The Runner
// validates inputs, resolves the PodNet pair from config.json on every call
// and hands the plan to the orchestrator.
package primitive

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"regexp"
	"strings"
	"time"

	"github.com/Bibi40k/podnet-primitives/internal/orchestrator"
	"github.com/Bibi40k/podnet-primitives/internal/plan"
	"github.com/Bibi40k/podnet-primitives/internal/podnet"
	"github.com/Bibi40k/podnet-primitives/internal/report"
	"github.com/Bibi40k/podnet-primitives/pkg/model"
)

// Primitive is anything that can describe its operations as plans.
type Primitive interface {
	Name() string
	Operations() []plan.Operation
	Validate(op plan.Operation) error
	Plan(op plan.Operation) (plan.Plan, error)
}

// HostPrimitive runs against a single hypervisor host instead of the PodNet
// pair.
type HostPrimitive interface {
	Primitive
	Host() string
}

// Offsets of input errors within an operation's code range.
const (
	OffsetFirstTemplate  = 1
	OffsetSecondTemplate = 2
	OffsetName           = 3
	OffsetField          = 4
	OffsetPath           = 5
	OffsetSize           = 6
	OffsetHost           = 7
	OffsetOperation      = 8
)

// InputError is a caller mistake caught before any remote call.
type InputError struct {
	Offset int
	Err    error
}

func (e *InputError) Error() string { return e.Err.Error() }
func (e *InputError) Unwrap() error { return e.Err }

func inputErr(offset int, format string, args ...any) *InputError {
	return &InputError{Offset: offset, Err: fmt.Errorf(format, args...)}
}

var (
	namespacePattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,15}$`)
	ifnamePattern    = regexp.MustCompile(`^[A-Za-z0-9_.-]{1,15}$`)
	filenamePattern  = regexp.MustCompile(`^[A-Za-z0-9_.-]+$`)
)

const maxIfname = 15

func validateNamespace(name string) error {
	if !namespacePattern.MatchString(name) {
		return inputErr(OffsetName, "invalid namespace %q: want 1-15 letters, digits, '-' or '_'", name)
	}
	return nil
}

func validateIfname(field, name string) error {
	if !ifnamePattern.MatchString(name) {
		return inputErr(OffsetField, "invalid %s %q: want 1-15 letters, digits, '.', '-' or '_'", field, name)
	}
	return nil
}

func validateAbsPath(field, p string) error {
	if !strings.HasPrefix(p, "/") {
		return inputErr(OffsetPath, "%s %q must be an absolute path", field, p)
	}
	clean := path.Clean(p)
	if clean == "/" {
		return inputErr(OffsetPath, "%s must not be the root directory", field)
	}
	if clean != strings.TrimRight(p, "/") {
		return inputErr(OffsetPath, "%s %q must be a clean path", field, p)
	}
	return nil
}

func supports(p Primitive, op plan.Operation) error {
	for _, o := range p.Operations() {
		if o == op {
			return nil
		}
	}
	return inputErr(OffsetOperation, "%s does not support %s", p.Name(), op)
}

// Runner executes primitives through an orchestrator.
type Runner struct {
	Orchestrator *orchestrator.Orchestrator
	ConfigPath   string
	Logger       *slog.Logger

	resolve func(string) (podnet.Resolution, error)
}

func NewRunner(o *orchestrator.Orchestrator, configPath string, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{Orchestrator: o, ConfigPath: configPath, Logger: logger, resolve: podnet.Resolve}
}

// Run validates p, resolves the PodNet pair and runs op on both nodes.
func (r *Runner) Run(ctx context.Context, p Primitive, op plan.Operation) model.Report {
	logger := r.Logger.With("primitive", p.Name(), "operation", string(op))
	if err := r.check(p, op); err != nil {
		return early(p, op, err)
	}

	res, err := r.resolve(r.ConfigPath)
	if err != nil {
		logger.Error("resolve podnet config", "path", r.ConfigPath, "error", err)
		rep := early(p, op, err)
		rep.Messages = []string{report.ConfigMessage(op, err)}
		return rep
	}
	logger.Debug("podnet pair resolved", "config", res.Path, "active", res.Pair.Active, "standby", res.Pair.Standby)

	pl, err := p.Plan(op)
	if err != nil {
		return early(p, op, err)
	}
	if op == plan.OpRead {
		return r.Orchestrator.Inspect(ctx, pl, res.Pair)
	}
	return r.Orchestrator.Apply(ctx, pl, res.Pair)
}

// RunHost validates p and runs op on its host.
func (r *Runner) RunHost(ctx context.Context, p HostPrimitive, op plan.Operation) model.Report {
	if err := r.check(p, op); err != nil {
		return early(p, op, err)
	}
	if strings.TrimSpace(p.Host()) == "" {
		return early(p, op, inputErr(OffsetHost, "host is required"))
	}
	pl, err := p.Plan(op)
	if err != nil {
		return early(p, op, err)
	}
	if op == plan.OpRead {
		return r.Orchestrator.InspectHost(ctx, pl, p.Host())
	}
	return r.Orchestrator.ApplyHost(ctx, pl, p.Host())
}

func (r *Runner) check(p Primitive, op plan.Operation) error {
	if err := supports(p, op); err != nil {
		return err
	}
	return p.Validate(op)
}

// early builds the report of an operation that failed before any remote call.
func early(p Primitive, op plan.Operation, err error) model.Report {
	now := time.Now().UTC()
	msg := report.InputMessage(op, OffsetOperation, err)
	var ie *InputError
	if errors.As(err, &ie) {
		msg = report.InputMessage(op, ie.Offset, ie.Err)
	}
	return model.Report{
		Primitive: p.Name(),
		Operation: string(op),
		Messages:  []string{msg},
		StartedAt: now,
		EndedAt:   now,
		Failure:   err,
	}
}
