// Package orchestrator runs a plan against a PodNet HA pair or a single host.
//
// Mutations (Apply, ApplyHost) stop at the first failed step. On a pair the
// active node runs the whole plan before the standby node is touched, so an
// active failure leaves the standby unchanged. Reads (Inspect, InspectHost)
// run every step on every node and collect whatever they can.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/Bibi40k/podnet-primitives/internal/plan"
	"github.com/Bibi40k/podnet-primitives/internal/podnet"
	"github.com/Bibi40k/podnet-primitives/internal/report"
	"github.com/Bibi40k/podnet-primitives/internal/ssh"
	"github.com/Bibi40k/podnet-primitives/pkg/model"
)

// Executor runs one command on one host. Failures to obtain an exit status
// are returned as *ssh.ConnectError.
type Executor interface {
	Execute(ctx context.Context, host, command string) (ssh.Result, error)
}

// Observer receives step and operation outcomes, e.g. for metrics.
type Observer interface {
	StepFinished(p plan.Plan, role report.Role, label string, outcome Outcome)
	OperationFinished(p plan.Plan, success bool, elapsed time.Duration)
}

type Options struct {
	// ConfigFile is quoted in failure messages.
	ConfigFile    string
	HumanProgress bool
	Progress      io.Writer
	Observer      Observer
}

type Orchestrator struct {
	exec     Executor
	logger   *slog.Logger
	opts     Options
	newRunID func() string
	now      func() time.Time
}

func New(exec Executor, logger *slog.Logger, opts Options) *Orchestrator {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if opts.Progress == nil {
		opts.Progress = io.Discard
	}
	return &Orchestrator{
		exec:     exec,
		logger:   logger,
		opts:     opts,
		newRunID: uuid.NewString,
		now:      time.Now,
	}
}

// Apply runs a build, scrub or update plan on the active node, then on the
// standby node.
func (o *Orchestrator) Apply(ctx context.Context, p plan.Plan, pair podnet.NodePair) model.Report {
	r, ok := o.begin(p, pair.Active, false)
	if !ok {
		return r.finish()
	}
	if serr := o.runNode(ctx, r, pair.Active, report.RoleActive, true); serr != nil {
		r.rep.Failure = serr
		return r.finish()
	}
	if serr := o.runNode(ctx, r, pair.Standby, report.RoleStandby, true); serr != nil {
		r.rep.Failure = &report.AsymmetricStateError{Active: pair.Active, Standby: pair.Standby, Step: serr}
		r.logger.Warn("pair diverged", "active", pair.Active, "standby", pair.Standby, "step", serr.Label)
		return r.finish()
	}
	r.succeed(report.Vars{Resource: p.Resource, Active: pair.Active, Operation: p.Operation}, false)
	return r.finish()
}

// Inspect runs a read plan on both nodes without halting on failures.
func (o *Orchestrator) Inspect(ctx context.Context, p plan.Plan, pair podnet.NodePair) model.Report {
	r, ok := o.begin(p, pair.Active, true)
	if !ok {
		return r.finish()
	}
	r.seed(pair.Active, pair.Standby)
	errA := o.runNode(ctx, r, pair.Active, report.RoleActive, false)
	errB := o.runNode(ctx, r, pair.Standby, report.RoleStandby, false)
	if failure := joinStepErrors(errA, errB); failure != nil {
		r.rep.Failure = failure
		return r.finish()
	}
	r.succeed(report.Vars{Resource: p.Resource, Active: pair.Active, Operation: p.Operation}, false)
	return r.finish()
}

// ApplyHost runs a mutation plan on a single hypervisor host.
func (o *Orchestrator) ApplyHost(ctx context.Context, p plan.Plan, host string) model.Report {
	r, ok := o.begin(p, host, false)
	if !ok {
		return r.finish()
	}
	if serr := o.runNode(ctx, r, host, report.RoleHost, true); serr != nil {
		r.rep.Failure = serr
		return r.finish()
	}
	r.succeed(report.Vars{Resource: p.Resource, Host: host, Operation: p.Operation}, true)
	return r.finish()
}

// InspectHost runs a read plan on a single hypervisor host.
func (o *Orchestrator) InspectHost(ctx context.Context, p plan.Plan, host string) model.Report {
	r, ok := o.begin(p, host, true)
	if !ok {
		return r.finish()
	}
	r.seed(host)
	if serr := o.runNode(ctx, r, host, report.RoleHost, false); serr != nil {
		r.rep.Failure = serr
		return r.finish()
	}
	r.succeed(report.Vars{Resource: p.Resource, Host: host, Operation: p.Operation}, true)
	return r.finish()
}

func joinStepErrors(errs ...*report.StepError) error {
	var out []error
	for _, e := range errs {
		if e != nil {
			out = append(out, e)
		}
	}
	switch len(out) {
	case 0:
		return nil
	case 1:
		return out[0]
	default:
		return errors.Join(out...)
	}
}

type run struct {
	o       *Orchestrator
	logger  *slog.Logger
	plan    plan.Plan
	tax     *report.Taxonomy
	fmtr    *report.Formatter
	rep     model.Report
	active  string
	started time.Time
}

func (o *Orchestrator) begin(p plan.Plan, active string, read bool) (*run, bool) {
	id := o.newRunID()
	r := &run{
		o:      o,
		logger: o.logger.With("run_id", id, "primitive", p.Primitive, "operation", string(p.Operation)),
		plan:   p,
		tax:    report.NewTaxonomy(p),
		fmtr:   report.NewFormatter(o.opts.ConfigFile),
		active: active,
		rep: model.Report{
			RunID:     id,
			Primitive: p.Primitive,
			Operation: string(p.Operation),
			Messages:  []string{},
			StartedAt: o.now().UTC(),
		},
		started: o.now(),
	}
	if err := p.Validate(); err != nil {
		r.rep.Failure = err
		r.rep.Messages = append(r.rep.Messages, report.InputMessage(p.Operation, 9, err))
		r.logger.Error("invalid plan", "error", err)
		return r, false
	}
	if read != (p.Operation == plan.OpRead) {
		err := fmt.Errorf("plan %s %s cannot run as a %s", p.Primitive, p.Operation, map[bool]string{true: "read", false: "mutation"}[read])
		r.rep.Failure = err
		r.rep.Messages = append(r.rep.Messages, report.InputMessage(p.Operation, 9, err))
		r.logger.Error("invalid plan", "error", err)
		return r, false
	}
	r.logger.Info("operation start", "steps", len(p.Steps), "resource", p.Resource)
	return r, true
}

// seed pre-populates every record field of every node with null.
func (r *run) seed(hosts ...string) {
	fields := r.plan.RecordFields()
	r.rep.Data = make(map[string]model.NodeData, len(hosts))
	for _, h := range hosts {
		node := make(model.NodeData, len(fields))
		for _, f := range fields {
			node[f] = nil
		}
		r.rep.Data[h] = node
	}
}

func (r *run) succeed(v report.Vars, hostOnly bool) {
	r.rep.Success = true
	r.rep.Messages = append(r.rep.Messages, r.tax.Success(hostOnly).Format(v))
}

func (r *run) finish() model.Report {
	r.rep.EndedAt = r.o.now().UTC()
	elapsed := r.o.now().Sub(r.started)
	if r.o.opts.Observer != nil {
		r.o.opts.Observer.OperationFinished(r.plan, r.rep.Success, elapsed)
	}
	if r.rep.Success {
		r.logger.Info("operation success", "duration", elapsed.String())
	} else {
		r.logger.Error("operation failed", "duration", elapsed.String(), "error", r.rep.Failure)
	}
	return r.rep
}
