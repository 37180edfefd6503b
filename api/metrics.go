package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shiroyk/runjs/errs"
)

// metrics the run metrics of one server
type metrics struct {
	registry *prometheus.Registry
	runs     *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

func newMetrics() *metrics {
	m := &metrics{
		registry: prometheus.NewRegistry(),
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "runjs",
			Name:      "runs_total",
			Help:      "Number of runs by backend and outcome.",
		}, []string{"backend", "status"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "runjs",
			Name:      "run_duration_seconds",
			Help:      "Duration of runs by backend.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"backend"}),
	}
	m.registry.MustRegister(m.runs, m.duration)
	return m
}

// observe records a finished run.
func (m *metrics) observe(backend string, start time.Time, err error) {
	status := "ok"
	if err != nil {
		status = "error"
		if kind, ok := errs.KindOf(err); ok {
			status = strings.ReplaceAll(string(kind), " ", "_")
		}
	}
	m.runs.WithLabelValues(backend, status).Inc()
	m.duration.WithLabelValues(backend).Observe(time.Since(start).Seconds())
}

func (m *metrics) handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
