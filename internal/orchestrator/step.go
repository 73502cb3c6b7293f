package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Bibi40k/podnet-primitives/internal/plan"
	"github.com/Bibi40k/podnet-primitives/internal/report"
	"github.com/Bibi40k/podnet-primitives/internal/ssh"
	"github.com/Bibi40k/podnet-primitives/pkg/model"
)

type OutcomeKind string

const (
	OutcomeSuccess        OutcomeKind = "success"
	OutcomeSkipped        OutcomeKind = "skipped"
	OutcomeConnectFailure OutcomeKind = "connect_failure"
	OutcomeCommandFailure OutcomeKind = "command_failure"
)

type Outcome struct {
	Kind     OutcomeKind
	Status   int
	Stdout   string
	Stderr   string
	Err      error
	Duration time.Duration
}

// runStep executes one step on host. Completed commands, accepted or not,
// are recorded in out so later steps can branch on them.
func (o *Orchestrator) runStep(ctx context.Context, step plan.Step, host string, out plan.Outputs) Outcome {
	if !step.Enabled(out) {
		return Outcome{Kind: OutcomeSkipped}
	}
	started := time.Now()
	if err := ctx.Err(); err != nil {
		return Outcome{Kind: OutcomeConnectFailure, Err: err}
	}

	res, err := o.exec.Execute(ctx, host, step.Payload(out))
	d := time.Since(started)
	if err != nil {
		var connErr *ssh.ConnectError
		if !errors.As(err, &connErr) {
			err = &ssh.ConnectError{Host: host, Op: "run", Err: err}
		}
		return Outcome{Kind: OutcomeConnectFailure, Stdout: res.Stdout, Stderr: res.Stderr, Err: err, Duration: d}
	}

	out.Set(step.Label, res.Status, res.Stdout, res.Stderr)
	kind := OutcomeCommandFailure
	if step.Accepts(res.Status, res.Stdout) {
		kind = OutcomeSuccess
	}
	return Outcome{Kind: kind, Status: res.Status, Stdout: res.Stdout, Stderr: res.Stderr, Duration: d}
}

// runNode runs the plan on one node. With halt set it returns at the first
// failure; otherwise it keeps going and returns the first failure seen.
func (o *Orchestrator) runNode(ctx context.Context, r *run, host string, role report.Role, halt bool) *report.StepError {
	out := plan.Outputs{}
	total := len(r.plan.Steps)
	logger := r.logger.With("host", host, "role", string(role))
	var first *report.StepError

	for i, step := range r.plan.Steps {
		current := i + 1
		if o.opts.HumanProgress {
			fmt.Fprintf(o.opts.Progress, "\033[36m[%d/%d]\033[0m \033[1m%s\033[0m \033[90m%s %s\033[0m\n", current, total, humanStepLabel(step.Label), role, host)
		} else {
			logger.Info("step start", "step", step.Label, "progress", fmt.Sprintf("[%d/%d]", current, total))
		}

		oc := o.runStep(ctx, step, host, out)
		r.recordStep(step, host, role, oc)
		if o.opts.Observer != nil {
			o.opts.Observer.StepFinished(r.plan, role, step.Label, oc)
		}
		if oc.Stdout != "" || oc.Stderr != "" {
			logger.Debug("step output", "step", step.Label, "stdout", strings.TrimSpace(oc.Stdout), "stderr", strings.TrimSpace(oc.Stderr))
		}

		switch oc.Kind {
		case OutcomeSkipped:
			if o.opts.HumanProgress {
				fmt.Fprintf(o.opts.Progress, "  \033[90m- skipped\033[0m\n")
			}
			logger.Debug("step skipped", "step", step.Label)
			continue
		case OutcomeSuccess:
			r.fmtr.AddSuccessful(host, step.Label, oc.Status)
			if step.Record != "" && r.rep.Data != nil {
				v := out.Stdout(step.Label)
				r.rep.Data[host][step.Record] = &v
			}
			if o.opts.HumanProgress {
				fmt.Fprintf(o.opts.Progress, "  \033[32m✓ done\033[0m in %s\n", oc.Duration.Truncate(time.Millisecond))
			} else {
				logger.Info("step success", "step", step.Label, "duration", oc.Duration.String())
			}
			continue
		}

		serr := r.fail(step, host, role, oc)
		if o.opts.HumanProgress {
			fmt.Fprintf(o.opts.Progress, "  \033[31m✗ failed\033[0m in %s\n", oc.Duration.Truncate(time.Millisecond))
		}
		logger.Error("step failed", "step", step.Label, "code", serr.Code, "kind", string(serr.Kind), "status", serr.Status, "error", serr)
		if halt {
			return serr
		}
		if first == nil {
			first = serr
		}
	}
	return first
}

func (r *run) fail(step plan.Step, host string, role report.Role, oc Outcome) *report.StepError {
	kind := plan.FailCommand
	if oc.Kind == OutcomeConnectFailure {
		kind = plan.FailConnect
	}
	entry, _ := r.tax.Lookup(step.Label, role, kind)
	head := entry.Format(report.Vars{
		Label:     step.Label,
		Host:      host,
		Active:    r.active,
		Resource:  r.plan.Resource,
		Operation: r.plan.Operation,
		Status:    oc.Status,
	})

	var msg string
	if kind == plan.FailConnect {
		msg = r.fmtr.ConnectFailure(head, host, role, oc.Err)
	} else {
		msg = r.fmtr.CommandFailure(head, host, role, oc.Status, oc.Stdout, oc.Stderr)
	}
	r.rep.Messages = append(r.rep.Messages, msg)
	return &report.StepError{Code: entry.Code, Label: step.Label, Host: host, Role: role, Kind: kind, Status: oc.Status, Err: oc.Err}
}

func (r *run) recordStep(step plan.Step, host string, role report.Role, oc Outcome) {
	res := model.StepResult{Name: step.Label, Host: host, Role: string(role), Duration: oc.Duration}
	switch oc.Kind {
	case OutcomeSkipped:
		res.Status = model.StepStatusSkipped
	case OutcomeSuccess:
		res.Status = model.StepStatusSuccess
		status := oc.Status
		res.ExitStatus = &status
	case OutcomeCommandFailure:
		res.Status = model.StepStatusFailed
		status := oc.Status
		res.ExitStatus = &status
		res.Message = fmt.Sprintf("exited with status %d", oc.Status)
	default:
		res.Status = model.StepStatusFailed
		res.Message = fmt.Sprint(oc.Err)
	}
	r.rep.Steps = append(r.rep.Steps, res)
}

func humanStepLabel(step string) string {
	return strings.ReplaceAll(step, "_", "-")
}
