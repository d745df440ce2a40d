// Package metrics holds the Prometheus collectors for payment-session outcomes.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Recorder groups the gateway's collectors. A nil *Recorder records nothing, so components
// built without metrics need no special casing.
type Recorder struct {
	SessionsTotal          *prometheus.CounterVec
	ChallengeStatusTotal   *prometheus.CounterVec
	SafetyNetCaughtTotal   *prometheus.CounterVec
	SignatureFailuresTotal *prometheus.CounterVec
	AccessorDuration       *prometheus.HistogramVec
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Recorder {
	r := &Recorder{
		SessionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "payx_payment_sessions_total",
				Help: "Total number of payment session operations by operation and outcome",
			},
			[]string{"operation", "outcome"},
		),
		ChallengeStatusTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "payx_challenge_status_total",
				Help: "Total number of sessions reaching each challenge status",
			},
			[]string{"status"},
		),
		SafetyNetCaughtTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "payx_safety_net_caught_total",
				Help: "Total number of failures converted to a decline by the safety net",
			},
			[]string{"operation"},
		),
		SignatureFailuresTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "payx_signature_verification_failures_total",
				Help: "Total number of session signature verification failures by session kind",
			},
			[]string{"kind"},
		),
		AccessorDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "payx_accessor_request_duration_seconds",
				Help:    "Latency of downstream accessor calls",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"service", "action", "code"},
		),
	}

	reg.MustRegister(r.SessionsTotal)
	reg.MustRegister(r.ChallengeStatusTotal)
	reg.MustRegister(r.SafetyNetCaughtTotal)
	reg.MustRegister(r.SignatureFailuresTotal)
	reg.MustRegister(r.AccessorDuration)

	return r
}

// NewRegistry returns a registry with the Go and process collectors plus a Recorder.
func NewRegistry() (*prometheus.Registry, *Recorder) {
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	return registry, New(registry)
}

func (r *Recorder) SessionOperation(operation, outcome string) {
	if r == nil {
		return
	}
	r.SessionsTotal.WithLabelValues(operation, outcome).Inc()
}

func (r *Recorder) ChallengeStatus(status string) {
	if r == nil {
		return
	}
	r.ChallengeStatusTotal.WithLabelValues(status).Inc()
}

func (r *Recorder) SafetyNetCaught(operation string) {
	if r == nil {
		return
	}
	r.SafetyNetCaughtTotal.WithLabelValues(operation).Inc()
}

func (r *Recorder) SignatureFailure(kind string) {
	if r == nil {
		return
	}
	r.SignatureFailuresTotal.WithLabelValues(kind).Inc()
}

func (r *Recorder) AccessorRequest(service, action, code string, elapsed time.Duration) {
	if r == nil {
		return
	}
	r.AccessorDuration.WithLabelValues(service, action, code).Observe(elapsed.Seconds())
}
