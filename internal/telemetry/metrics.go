// Package telemetry holds the Prometheus collectors for the optimization
// loop.
package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "adpilot"

// Metrics groups every collector the service exports. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	RunsCreated       *prometheus.CounterVec
	RunTransitions    *prometheus.CounterVec
	Anomalies         *prometheus.CounterVec
	Recommendations   *prometheus.CounterVec
	ApprovalDecisions *prometheus.CounterVec
	ActionResults     *prometheus.CounterVec
	LocalSyncFailures prometheus.Counter
	PlatformRequests  *prometheus.HistogramVec
	HTTPRequests      *prometheus.HistogramVec
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		RunsCreated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_created_total",
			Help:      "Automation runs created, by trigger type.",
		}, []string{"trigger"}),
		RunTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "run_transitions_total",
			Help:      "Run lifecycle transitions, by target status.",
		}, []string{"status"}),
		Anomalies: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "anomalies_detected_total",
			Help:      "Anomalies detected, by type and severity.",
		}, []string{"type", "severity"}),
		Recommendations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "recommendations_total",
			Help:      "Recommendations generated, by kind and priority.",
		}, []string{"kind", "priority"}),
		ApprovalDecisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "approval_decisions_total",
			Help:      "Approval gate outcomes, by decision and result.",
		}, []string{"decision", "result"}),
		ActionResults: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "action_results_total",
			Help:      "Executed actions, by action kind and result status.",
		}, []string{"action", "status"}),
		LocalSyncFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "local_sync_failures_total",
			Help:      "Local campaign write-backs that failed after a successful platform call.",
		}),
		PlatformRequests: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "platform_request_duration_seconds",
			Help:      "Advertising platform call latency, by operation and outcome.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"op", "outcome"}),
		HTTPRequests: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP API latency, by route pattern and status code.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route", "code"}),
	}
	reg.MustRegister(
		m.RunsCreated,
		m.RunTransitions,
		m.Anomalies,
		m.Recommendations,
		m.ApprovalDecisions,
		m.ActionResults,
		m.LocalSyncFailures,
		m.PlatformRequests,
		m.HTTPRequests,
	)
	return m
}

// RunCreated counts a new run.
func (m *Metrics) RunCreated(trigger string) {
	if m == nil {
		return
	}
	m.RunsCreated.WithLabelValues(trigger).Inc()
}

// Transition counts a run reaching status.
func (m *Metrics) Transition(status string) {
	if m == nil {
		return
	}
	m.RunTransitions.WithLabelValues(status).Inc()
}

// Anomaly counts one detected anomaly.
func (m *Metrics) Anomaly(typ, severity string) {
	if m == nil {
		return
	}
	m.Anomalies.WithLabelValues(typ, severity).Inc()
}

// Recommendation counts one generated recommendation.
func (m *Metrics) Recommendation(kind, priority string) {
	if m == nil {
		return
	}
	m.Recommendations.WithLabelValues(kind, priority).Inc()
}

// Decision counts one approval gate outcome. result is "accepted" or the
// name of the rejecting check.
func (m *Metrics) Decision(decision, result string) {
	if m == nil {
		return
	}
	m.ApprovalDecisions.WithLabelValues(decision, result).Inc()
}

// ActionResult counts one executed action.
func (m *Metrics) ActionResult(action, status string) {
	if m == nil {
		return
	}
	m.ActionResults.WithLabelValues(action, status).Inc()
}

// LocalSyncFailed counts a failed local write-back.
func (m *Metrics) LocalSyncFailed() {
	if m == nil {
		return
	}
	m.LocalSyncFailures.Inc()
}

// PlatformRequest observes one platform call.
func (m *Metrics) PlatformRequest(op, outcome string, seconds float64) {
	if m == nil {
		return
	}
	m.PlatformRequests.WithLabelValues(op, outcome).Observe(seconds)
}

// HTTPRequest observes one API request.
func (m *Metrics) HTTPRequest(method, route, code string, seconds float64) {
	if m == nil {
		return
	}
	m.HTTPRequests.WithLabelValues(method, route, code).Observe(seconds)
}
