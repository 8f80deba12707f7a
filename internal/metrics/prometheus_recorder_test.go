package metrics

import (
	"testing"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestPrometheusRecorderCounts(t *testing.T) {
	reg := prom.NewRegistry()
	r := NewPrometheusRecorder(reg)

	r.IncClassifiedError("missing_file")
	r.IncClassifiedError("missing_file")
	r.IncDecision("rewrite")
	r.IncSessionOutcome("succeeded")
	r.IncProbeFailure()
	r.AddActiveSessions(2)
	r.AddActiveSessions(-1)
	r.ObserveAttempt(AttemptFailed, 3*time.Second)
	r.ObserveSessionDuration(10 * time.Second)

	require.Equal(t, 2.0, testutil.ToFloat64(r.classified.WithLabelValues("missing_file")))
	require.Equal(t, 1.0, testutil.ToFloat64(r.decisions.WithLabelValues("rewrite")))
	require.Equal(t, 1.0, testutil.ToFloat64(r.outcomes.WithLabelValues("succeeded")))
	require.Equal(t, 1.0, testutil.ToFloat64(r.probeFailures))
	require.Equal(t, 1.0, testutil.ToFloat64(r.activeSessions))
	require.Equal(t, 1, testutil.CollectAndCount(r.attemptDuration))
}

func TestNilRecorderIsSafe(t *testing.T) {
	var r *PrometheusRecorder
	require.NotPanics(t, func() {
		r.IncDecision("giveup")
		r.ObserveAttempt(AttemptSucceeded, time.Second)
		r.AddActiveSessions(1)
	})
}

func TestNoopRecorderSatisfiesInterface(t *testing.T) {
	var r Recorder = NoopRecorder{}
	r.IncSessionOutcome("exhausted")
}
