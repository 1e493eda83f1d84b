package metrics

import (
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"
)

// PushRecorder implements Recorder with Prometheus metrics pushed to a
// Pushgateway after the run, the usual pattern for short-lived batch jobs.
type PushRecorder struct {
	registry    *prom.Registry
	pusher      *push.Pusher
	runDuration prom.Histogram
	runOutcome  *prom.CounterVec
	matchCount  *prom.GaugeVec
	exitCode    prom.Gauge
}

// NewPushRecorder constructs and registers the run metrics and a pusher
// targeting gatewayURL under the given job name.
func NewPushRecorder(gatewayURL, job string) *PushRecorder {
	reg := prom.NewRegistry()
	pr := &PushRecorder{
		registry: reg,
		runDuration: prom.NewHistogram(prom.HistogramOpts{
			Namespace: "buildwrap",
			Name:      "run_duration_seconds",
			Help:      "Total wrapped build duration",
			Buckets:   prom.DefBuckets,
		}),
		runOutcome: prom.NewCounterVec(prom.CounterOpts{
			Namespace: "buildwrap",
			Name:      "run_outcomes_total",
			Help:      "Run outcomes by final status",
		}, []string{"outcome"}),
		matchCount: prom.NewGaugeVec(prom.GaugeOpts{
			Namespace: "buildwrap",
			Name:      "run_matches",
			Help:      "Classified output lines in the last run, by category",
		}, []string{"category"}),
		exitCode: prom.NewGauge(prom.GaugeOpts{
			Namespace: "buildwrap",
			Name:      "run_exit_code",
			Help:      "Exit code of the last wrapped build",
		}),
	}
	reg.MustRegister(pr.runDuration, pr.runOutcome, pr.matchCount, pr.exitCode)
	pr.pusher = push.New(gatewayURL, job).Gatherer(reg)
	return pr
}

func (p *PushRecorder) ObserveRunDuration(d time.Duration) {
	if p == nil {
		return
	}
	p.runDuration.Observe(d.Seconds())
}

func (p *PushRecorder) IncRunOutcome(outcome string) {
	if p == nil {
		return
	}
	p.runOutcome.WithLabelValues(outcome).Inc()
}

func (p *PushRecorder) SetMatchCount(category string, n int) {
	if p == nil {
		return
	}
	p.matchCount.WithLabelValues(category).Set(float64(n))
}

func (p *PushRecorder) SetExitCode(code int) {
	if p == nil {
		return
	}
	p.exitCode.Set(float64(code))
}

// Push sends the collected metrics to the gateway. Called once after the run;
// failures are the caller's to log, never fatal.
func (p *PushRecorder) Push() error {
	if p == nil {
		return nil
	}
	return p.pusher.Push()
}
