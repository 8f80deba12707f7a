// Package metrics exposes build-session observability hooks.
package metrics

import "time"

// AttemptResult labels the outcome of one build attempt.
type AttemptResult string

const (
	AttemptSucceeded AttemptResult = "succeeded"
	AttemptFailed    AttemptResult = "failed"
	AttemptCancelled AttemptResult = "cancelled"
)

// Recorder defines observability hooks for the build-monitor loop. Implementations
// may forward to Prometheus; NoopRecorder is used when metrics are not configured.
type Recorder interface {
	ObserveAttempt(result AttemptResult, d time.Duration)
	IncClassifiedError(category string)
	IncDecision(kind string)
	IncSessionOutcome(status string)
	ObserveSessionDuration(d time.Duration)
	IncProbeFailure()
	AddActiveSessions(delta int)
}

// NoopRecorder is a Recorder that does nothing.
type NoopRecorder struct{}

func (NoopRecorder) ObserveAttempt(AttemptResult, time.Duration) {}
func (NoopRecorder) IncClassifiedError(string)                   {}
func (NoopRecorder) IncDecision(string)                          {}
func (NoopRecorder) IncSessionOutcome(string)                    {}
func (NoopRecorder) ObserveSessionDuration(time.Duration)        {}
func (NoopRecorder) IncProbeFailure()                            {}
func (NoopRecorder) AddActiveSessions(int)                       {}
