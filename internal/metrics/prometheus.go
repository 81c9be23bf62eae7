// Package metrics provides Prometheus-based metrics recording for conversations.
package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/thebtf/wallroll/internal/session"
)

const namespace = "wallroll"

// PrometheusRecorder records conversation and HTTP metrics on its own registry.
type PrometheusRecorder struct {
	registry *prometheus.Registry

	messagesTotal   *prometheus.CounterVec
	rejectionsTotal *prometheus.CounterVec
	rollsNeeded     prometheus.Histogram
	requestDuration *prometheus.HistogramVec
}

// NewPrometheusRecorder creates a recorder with a fresh registry.
// Go runtime and process collectors are registered alongside.
func NewPrometheusRecorder() *PrometheusRecorder {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &PrometheusRecorder{
		registry: reg,
		messagesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "messages_total",
				Help:      "Total number of handled messages by outcome and step",
			},
			[]string{"outcome", "step"},
		),
		rejectionsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "input_rejections_total",
				Help:      "Total number of rejected answers by error kind and step",
			},
			[]string{"kind", "step"},
		),
		rollsNeeded: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "rolls_needed",
				Help:      "Rolls recommended per completed calculation",
				Buckets:   []float64{1, 2, 4, 6, 8, 10, 15, 20, 30, 50},
			},
		),
		requestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "Duration of HTTP requests in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"route", "method", "status"},
		),
	}
}

// Observe records a handled message.
func (p *PrometheusRecorder) Observe(_ context.Context, ev session.Event) {
	step := ev.Step.String()
	p.messagesTotal.WithLabelValues(ev.Type, step).Inc()

	if ev.ErrorKind != "" {
		p.rejectionsTotal.WithLabelValues(ev.ErrorKind, step).Inc()
	}
	if ev.Result != nil {
		p.rollsNeeded.Observe(float64(ev.Result.RollsNeeded))
	}
}

// ObserveRequest records the duration of an HTTP request.
func (p *PrometheusRecorder) ObserveRequest(route, method, status string, duration time.Duration) {
	p.requestDuration.WithLabelValues(route, method, status).Observe(duration.Seconds())
}

// Registry returns the registry metrics are recorded on.
func (p *PrometheusRecorder) Registry() *prometheus.Registry {
	return p.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (p *PrometheusRecorder) Handler() http.Handler {
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{Registry: p.registry})
}

var _ session.Observer = (*PrometheusRecorder)(nil)
