package worker

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type metrics struct {
	registry          *prometheus.Registry
	jobsTotal         *prometheus.CounterVec
	jobDuration       *prometheus.HistogramVec
	activeJobs        prometheus.Gauge
	stylesTotal       *prometheus.CounterVec
	bytesWrittenTotal prometheus.Counter
}

func newMetrics() *metrics {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	m := &metrics{
		registry: registry,
		jobsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pixelcache_worker_warm_jobs_total",
			Help: "Total warm jobs by final status.",
		}, []string{"status"}),
		jobDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "pixelcache_worker_warm_job_duration_seconds",
			Help:    "Total processing duration for each warm job.",
			Buckets: prometheus.DefBuckets,
		}, []string{"status"}),
		activeJobs: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "pixelcache_worker_active_jobs",
			Help: "Current number of warm jobs being processed.",
		}),
		stylesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pixelcache_worker_styles_total",
			Help: "Styles warmed by pipeline outcome.",
		}, []string{"kind"}),
		bytesWrittenTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pixelcache_worker_bytes_written_total",
			Help: "Bytes of freshly computed images written to the cache bucket.",
		}),
	}

	registry.MustRegister(
		m.jobsTotal,
		m.jobDuration,
		m.activeJobs,
		m.stylesTotal,
		m.bytesWrittenTotal,
	)
	return m
}

func (m *metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
