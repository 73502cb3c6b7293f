package metrics

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Bibi40k/podnet-primitives/internal/orchestrator"
	"github.com/Bibi40k/podnet-primitives/internal/plan"
	"github.com/Bibi40k/podnet-primitives/internal/report"
)

func TestRecorderCountsSteps(t *testing.T) {
	r := NewRecorder()
	p := plan.Plan{Primitive: "dhcpns", Operation: plan.OpBuild}

	r.StepFinished(p, report.RoleActive, "find_process", orchestrator.Outcome{Kind: orchestrator.OutcomeSuccess})
	r.StepFinished(p, report.RoleActive, "create_config", orchestrator.Outcome{Kind: orchestrator.OutcomeSuccess})
	r.StepFinished(p, report.RoleStandby, "find_process", orchestrator.Outcome{Kind: orchestrator.OutcomeConnectFailure})
	r.OperationFinished(p, false, 1500*time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(r.steps.WithLabelValues("dhcpns", "build", "active", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.steps.WithLabelValues("dhcpns", "build", "standby", "connect_failure")))
	assert.Equal(t, 0.0, testutil.ToFloat64(r.lastSuccess.WithLabelValues("dhcpns", "build")))
	assert.Equal(t, 1, testutil.CollectAndCount(r.duration))
}

func TestRecorderWritesTextfile(t *testing.T) {
	r := NewRecorder()
	r.OperationFinished(plan.Plan{Primitive: "ns", Operation: plan.OpScrub}, true, time.Second)

	path := filepath.Join(t.TempDir(), "podnet.prom")
	require.NoError(t, r.WriteTextfile(path))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `podnet_last_operation_success{operation="scrub",primitive="ns"} 1`)
}
