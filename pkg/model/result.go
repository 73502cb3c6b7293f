package model

import "time"

type StepStatus string

const (
	StepStatusSuccess StepStatus = "success"
	StepStatusFailed  StepStatus = "failed"
	StepStatusSkipped StepStatus = "skipped"
)

type StepResult struct {
	Name       string        `json:"name"`
	Host       string        `json:"host"`
	Role       string        `json:"role"`
	Status     StepStatus    `json:"status"`
	ExitStatus *int          `json:"exit_status,omitempty"`
	Duration   time.Duration `json:"duration"`
	Message    string        `json:"message,omitempty"`
}

// NodeData holds the fields a read operation collected from one node.
// A nil value means the field could not be read.
type NodeData map[string]*string

// Report is the outcome of one build, scrub, update or read operation.
type Report struct {
	RunID     string              `json:"run_id,omitempty"`
	Primitive string              `json:"primitive"`
	Operation string              `json:"operation"`
	Success   bool                `json:"success"`
	Messages  []string            `json:"messages"`
	Data      map[string]NodeData `json:"data,omitempty"`
	StartedAt time.Time           `json:"started_at"`
	EndedAt   time.Time           `json:"ended_at"`
	Steps     []StepResult        `json:"steps,omitempty"`

	// Failure is the typed error behind a failed report.
	Failure error `json:"-"`
}

// Err returns the typed failure, or nil when the report succeeded.
func (r Report) Err() error {
	if r.Success {
		return nil
	}
	return r.Failure
}

// BuildResult returns the (success, messages) pair produced by build, scrub
// and update operations.
func (r Report) BuildResult() (bool, []string) {
	return r.Success, r.Messages
}

// ReadResult returns the (success, data, messages) triple produced by read
// operations.
func (r Report) ReadResult() (bool, map[string]NodeData, []string) {
	return r.Success, r.Data, r.Messages
}

// Value returns the recorded field for host, or "" and false when it is
// missing or null.
func (r Report) Value(host, field string) (string, bool) {
	node, ok := r.Data[host]
	if !ok {
		return "", false
	}
	v, ok := node[field]
	if !ok || v == nil {
		return "", false
	}
	return *v, true
}
