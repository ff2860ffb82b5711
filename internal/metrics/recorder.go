// Package metrics exposes Prometheus metrics for the estimation service.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "pkengine"

// Outcomes of an estimate request
const (
	OutcomeDosed       = "dosed"
	OutcomeUnavailable = "dose_unavailable"
	OutcomeInvalid     = "invalid"
	OutcomeFailed      = "failed"
)

var latencyBuckets = []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5}

// Recorder owns a registry and the service's collectors. Each Recorder has its
// own registry so servers in tests do not collide.
type Recorder struct {
	registry        *prometheus.Registry
	estimates       *prometheus.CounterVec
	evaluations     prometheus.Histogram
	halvings        prometheus.Histogram
	requestTotal    *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
}

// NewRecorder creates a Recorder with Go runtime and process collectors
func NewRecorder() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		estimates: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "estimates_total",
			Help:      "Number of processed estimate requests by outcome",
		}, []string{"outcome"}),
		evaluations: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "objective_evaluations",
			Help:      "Objective evaluations per Bayesian update",
			Buckets:   prometheus.ExponentialBuckets(16, 2, 10),
		}),
		halvings: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "step_halvings",
			Help:      "Step size halvings per Bayesian update",
			Buckets:   prometheus.LinearBuckets(0, 2, 11),
		}),
		requestTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Count of processed HTTP requests",
		}, []string{"method", "route", "status"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "Latency distribution of HTTP handlers",
			Buckets:   latencyBuckets,
		}, []string{"method", "route"}),
	}

	r.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		r.estimates,
		r.evaluations,
		r.halvings,
		r.requestTotal,
		r.requestDuration,
	)
	return r
}

// Registry returns the underlying registry
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

// Handler serves the registry in the Prometheus exposition format
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}

// RecordEstimate counts one estimate request
func (r *Recorder) RecordEstimate(outcome string) {
	r.estimates.WithLabelValues(outcome).Inc()
}

// RecordOptimization records the cost of one Bayesian update
func (r *Recorder) RecordOptimization(evaluations, halvings int) {
	r.evaluations.Observe(float64(evaluations))
	r.halvings.Observe(float64(halvings))
}

// Instrument wraps next with request counting and latency measurement
func (r *Recorder) Instrument(route string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		recorder := &responseRecorder{ResponseWriter: w}
		start := time.Now()
		next(recorder, req)
		status := recorder.status
		if status == 0 {
			status = http.StatusOK
		}
		r.requestTotal.WithLabelValues(req.Method, route, strconv.Itoa(status)).Inc()
		r.requestDuration.WithLabelValues(req.Method, route).Observe(time.Since(start).Seconds())
	}
}

type responseRecorder struct {
	http.ResponseWriter
	status int
}

func (rr *responseRecorder) WriteHeader(code int) {
	rr.status = code
	rr.ResponseWriter.WriteHeader(code)
}

func (rr *responseRecorder) Write(b []byte) (int, error) {
	if rr.status == 0 {
		rr.status = http.StatusOK
	}
	return rr.ResponseWriter.Write(b)
}
