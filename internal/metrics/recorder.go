// Package metrics provides observability hooks for build runs.
package metrics

import "time"

// Outcome labels for run counters.
const (
	OutcomeSuccess  = "success"
	OutcomeWarnings = "warnings"
	OutcomeFailed   = "failed"
)

// Recorder defines observability hooks for build run metrics. Implementations
// may forward to Prometheus, OpenTelemetry, etc. All methods must be safe on
// the NoopRecorder so injection stays optional.
type Recorder interface {
	ObserveRunDuration(d time.Duration)
	IncRunOutcome(outcome string)
	SetMatchCount(category string, n int)
	SetExitCode(code int)
}

// NoopRecorder is a Recorder that does nothing (default when metrics are not
// configured).
type NoopRecorder struct{}

func (NoopRecorder) ObserveRunDuration(time.Duration) {}
func (NoopRecorder) IncRunOutcome(string)             {}
func (NoopRecorder) SetMatchCount(string, int)        {}
func (NoopRecorder) SetExitCode(int)                  {}
