package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for background check processing. A nil
// *Metrics is valid and records nothing.
type Metrics struct {
	// Checks requested by provider and check type
	ChecksRequested *prometheus.CounterVec

	// Provider calls by provider, operation and result
	ProviderCalls   *prometheus.CounterVec
	ProviderLatency *prometheus.HistogramVec

	// Submissions or refreshes that fell back to the simulation adapter
	Fallbacks *prometheus.CounterVec

	// Status transitions by origin (refresh, webhook, sweep)
	Transitions *prometheus.CounterVec

	WebhooksReceived *prometheus.CounterVec

	NotificationsSent *prometheus.CounterVec

	RenewalRunDuration prometheus.Histogram
}

// New registers every metric with reg. Pass prometheus.NewRegistry() in
// tests to avoid duplicate registration.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		ChecksRequested: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "vetting_checks_requested_total",
			Help: "Background checks requested by provider and check type",
		}, []string{"provider", "check_type"}),

		ProviderCalls: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "vetting_provider_calls_total",
			Help: "Calls to external providers by operation and result",
		}, []string{"provider", "operation", "result"}), // result: "ok" or a failure reason

		ProviderLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "vetting_provider_call_duration_seconds",
			Help:    "Duration of calls to external providers",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 15},
		}, []string{"provider", "operation"}),

		Fallbacks: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "vetting_provider_fallbacks_total",
			Help: "Provider failures handled by the fallback policy",
		}, []string{"provider", "reason"}),

		Transitions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "vetting_check_transitions_total",
			Help: "Background check status transitions",
		}, []string{"from", "to", "origin"}),

		WebhooksReceived: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "vetting_webhooks_received_total",
			Help: "Inbound provider webhooks by result",
		}, []string{"provider", "result"}),

		NotificationsSent: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "vetting_notifications_total",
			Help: "Notifications handed to the dispatcher by kind",
		}, []string{"kind"}),

		RenewalRunDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "vetting_renewal_run_duration_seconds",
			Help:    "Duration of a full renewal scheduler pass",
			Buckets: []float64{0.1, 0.5, 1, 5, 15, 30, 60, 120, 300},
		}),
	}
}

func (m *Metrics) IncChecksRequested(provider, checkType string) {
	if m != nil {
		m.ChecksRequested.WithLabelValues(provider, checkType).Inc()
	}
}

// ObserveProviderCall records one call to an external provider.
func (m *Metrics) ObserveProviderCall(provider, operation, result string, d time.Duration) {
	if m != nil {
		m.ProviderCalls.WithLabelValues(provider, operation, result).Inc()
		m.ProviderLatency.WithLabelValues(provider, operation).Observe(d.Seconds())
	}
}

func (m *Metrics) IncFallback(provider, reason string) {
	if m != nil {
		m.Fallbacks.WithLabelValues(provider, reason).Inc()
	}
}

func (m *Metrics) IncTransition(from, to, origin string) {
	if m != nil {
		m.Transitions.WithLabelValues(from, to, origin).Inc()
	}
}

func (m *Metrics) IncWebhook(provider, result string) {
	if m != nil {
		m.WebhooksReceived.WithLabelValues(provider, result).Inc()
	}
}

func (m *Metrics) IncNotification(kind string) {
	if m != nil {
		m.NotificationsSent.WithLabelValues(kind).Inc()
	}
}

func (m *Metrics) ObserveRenewalRun(d time.Duration) {
	if m != nil {
		m.RenewalRunDuration.Observe(d.Seconds())
	}
}
