// Package metrics exposes the registry service counters and latency
// histograms in prometheus format.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	metricRegistrationName   = "push_registry_registration_total"
	metricUnregistrationName = "push_registry_unregistration_total"
	metricBadRequestName     = "push_registry_bad_request_total"
	metricSuccessName        = "push_dispatch_success_total"
	metricFailureName        = "push_dispatch_failure_total"
	metricRemovalName        = "push_dispatch_removal_total"
	metricDispatchName       = "push_dispatch_duration_seconds"
	metricDroppedName        = "push_delivery_dropped_total"
)

// Metrics owns its own registry so several services can coexist in one
// process. A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	registration   *prometheus.CounterVec
	unregistration prometheus.Counter
	badRequest     *prometheus.CounterVec
	success        *prometheus.CounterVec
	failure        *prometheus.CounterVec
	removal        *prometheus.CounterVec
	dispatch       *prometheus.HistogramVec
	dropped        *prometheus.CounterVec
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		registration: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: metricRegistrationName,
			Help: "Number of device tokens registered or refreshed.",
		}, []string{"platform"}),
		unregistration: prometheus.NewCounter(prometheus.CounterOpts{
			Name: metricUnregistrationName,
			Help: "Number of device tokens unregistered by clients.",
		}),
		badRequest: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: metricBadRequestName,
			Help: "Requests to the registry API that were rejected.",
		}, []string{"route"}),
		success: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: metricSuccessName,
			Help: "Number of dispatch batches accepted by the provider.",
		}, []string{"platform"}),
		failure: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: metricFailureName,
			Help: "Number of dispatch batches that failed.",
		}, []string{"platform"}),
		removal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: metricRemovalName,
			Help: "Number of tokens removed after the provider rejected them.",
		}, []string{"platform"}),
		dispatch: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name: metricDispatchName,
			Help: "Provider dispatch latency distribution.",
		}, []string{"platform"}),
		dropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: metricDroppedName,
			Help: "Delivery requests dropped without dispatch.",
		}, []string{"reason"}),
	}

	m.registry.MustRegister(m.registration, m.unregistration, m.badRequest)
	m.registry.MustRegister(m.success, m.failure, m.removal, m.dispatch, m.dropped)
	return m
}

// Handler serves the registry in the prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func (m *Metrics) IncRegistration(platform string) {
	if m != nil {
		m.registration.WithLabelValues(platform).Inc()
	}
}

func (m *Metrics) IncUnregistration() {
	if m != nil {
		m.unregistration.Inc()
	}
}

func (m *Metrics) IncBadRequest(route string) {
	if m != nil {
		m.badRequest.WithLabelValues(route).Inc()
	}
}

func (m *Metrics) IncSuccess(platform string) {
	if m != nil {
		m.success.WithLabelValues(platform).Inc()
	}
}

func (m *Metrics) IncFailure(platform string) {
	if m != nil {
		m.failure.WithLabelValues(platform).Inc()
	}
}

func (m *Metrics) AddRemoval(platform string, n int) {
	if m != nil && n > 0 {
		m.removal.WithLabelValues(platform).Add(float64(n))
	}
}

func (m *Metrics) ObserveDispatch(platform string, elapsed time.Duration) {
	if m != nil {
		m.dispatch.WithLabelValues(platform).Observe(elapsed.Seconds())
	}
}

func (m *Metrics) IncDropped(reason string) {
	if m != nil {
		m.dropped.WithLabelValues(reason).Inc()
	}
}
