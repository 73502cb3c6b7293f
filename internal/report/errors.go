package report

import (
	"errors"
	"fmt"

	"github.com/Bibi40k/podnet-primitives/internal/plan"
)

var (
	ErrConnect = errors.New("node unreachable")
	ErrCommand = errors.New("remote command failed")
)

// StepError is the failure of one step on one node.
type StepError struct {
	Code   int
	Label  string
	Host   string
	Role   Role
	Kind   plan.FailureKind
	Status int
	Err    error
}

func (e *StepError) Error() string {
	if e.Kind == plan.FailConnect {
		return fmt.Sprintf("%s on %s node %s: %v", e.Label, e.Role, e.Host, e.Err)
	}
	return fmt.Sprintf("%s on %s node %s exited with status %d", e.Label, e.Role, e.Host, e.Status)
}

func (e *StepError) Is(target error) bool {
	if e.Kind == plan.FailConnect {
		return target == ErrConnect
	}
	return target == ErrCommand
}

func (e *StepError) Unwrap() error { return e.Err }

// AsymmetricStateError means the active node was changed but the standby
// node was not. Retrying the standby alone converges the pair.
type AsymmetricStateError struct {
	Active  string
	Standby string
	Step    *StepError
}

func (e *AsymmetricStateError) Error() string {
	return fmt.Sprintf("applied on active %s but not on standby %s: %v", e.Active, e.Standby, e.Step)
}

func (e *AsymmetricStateError) Unwrap() error { return e.Step }
