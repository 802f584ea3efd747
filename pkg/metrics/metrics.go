// Package metrics exposes retry activity of the Outpost client as
// Prometheus metrics.
package metrics

import (
	"strconv"
	"time"

	"github.com/outpost-run/outpost-go/pkg/retry"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "outpost_client"

// Observer records every physical attempt made by a retrying transport.
type Observer struct {
	Attempts  *prometheus.CounterVec
	Retries   *prometheus.CounterVec
	Responses *prometheus.CounterVec
	Waits     prometheus.Histogram
}

var _ retry.Observer = (*Observer)(nil)

// NewObserver creates the metrics and registers them with reg. A nil reg
// registers with the default registry.
func NewObserver(reg prometheus.Registerer) *Observer {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Observer{
		Attempts: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "attempts_total",
				Help:      "Total number of HTTP attempts by method",
			},
			[]string{"method"},
		),
		Retries: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "retries_total",
				Help:      "Total number of attempts beyond the first by method",
			},
			[]string{"method"},
		),
		Responses: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "responses_total",
				Help:      "Total number of attempt outcomes by method and status code (0 on transport errors)",
			},
			[]string{"method", "code"},
		),
		Waits: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "backoff_seconds",
				Help:      "Waits chosen before retrying",
				Buckets:   prometheus.ExponentialBuckets(0.05, 2, 12), // 50ms to ~100s
			},
		),
	}
}

// Attempt implements retry.Observer.
func (o *Observer) Attempt(method string, attempt int) {
	o.Attempts.WithLabelValues(method).Inc()
	if attempt > 1 {
		o.Retries.WithLabelValues(method).Inc()
	}
}

// Response implements retry.Observer.
func (o *Observer) Response(method string, code int, _ error) {
	o.Responses.WithLabelValues(method, strconv.Itoa(code)).Inc()
}

// Backoff implements retry.Observer.
func (o *Observer) Backoff(wait time.Duration) {
	o.Waits.Observe(wait.Seconds())
}

// WriteTextfile writes the metrics gathered by g to path in the text
// exposition format, for collection by a node exporter.
func WriteTextfile(path string, g prometheus.Gatherer) error {
	return prometheus.WriteToTextfile(path, g) //nolint:wrapcheck
}
