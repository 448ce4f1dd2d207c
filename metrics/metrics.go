// Package metrics exposes the session runtime's Prometheus instrumentation
// as a small struct of pre-registered collectors handed to the component
// that drives them rather than relying on package-level globals.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Registry holds every collector the session runtime updates.
type Registry struct {
	RequestsSent    prometheus.Counter
	RequestsRetried prometheus.Counter
	RequestTimeouts prometheus.Counter
	PendingSize     prometheus.Gauge
	ConflictNotices prometheus.Counter
	Reconnects      prometheus.Counter
}

// NewRegistry constructs a Registry and registers every collector on reg.
func NewRegistry(reg prometheus.Registerer) *Registry {
	r := &Registry{
		RequestsSent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "liana_business_session",
			Name:      "requests_sent_total",
			Help:      "Requests written to the WebSocket connection.",
		}),
		RequestsRetried: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "liana_business_session",
			Name:      "requests_retried_total",
			Help:      "Requests resent after exceeding the per-request timeout.",
		}),
		RequestTimeouts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "liana_business_session",
			Name:      "request_timeouts_total",
			Help:      "Requests abandoned after exhausting their retry budget.",
		}),
		PendingSize: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "liana_business_session",
			Name:      "pending_requests",
			Help:      "Number of requests currently awaiting a response.",
		}),
		ConflictNotices: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "liana_business_session",
			Name:      "conflict_notices_total",
			Help:      "Edit-conflict prompts surfaced to the reducer.",
		}),
		Reconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "liana_business_session",
			Name:      "reconnects_total",
			Help:      "Successful connect handshakes, including the first one.",
		}),
	}
	reg.MustRegister(r.RequestsSent, r.RequestsRetried, r.RequestTimeouts,
		r.PendingSize, r.ConflictNotices, r.Reconnects)
	return r
}
