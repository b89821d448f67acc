package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "regionocr"

// Metrics holds the service's Prometheus instruments
type Metrics struct {
	registry *prometheus.Registry

	jobsCreated      prometheus.Counter
	jobTransitions   *prometheus.CounterVec
	regionsProcessed *prometheus.CounterVec
	pipelineDuration *prometheus.HistogramVec
	exportsTotal     *prometheus.CounterVec
	exportBytes      prometheus.Histogram
	uploadBytes      prometheus.Histogram

	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec
	httpSent     *prometheus.CounterVec
}

// New creates the instruments on a fresh registry, together with the Go
// runtime and process collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		jobsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "jobs_created_total",
			Help:      "Total number of jobs created from uploads",
		}),
		jobTransitions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "job_transitions_total",
				Help:      "Job status transitions by target status",
			},
			[]string{"to"},
		),
		regionsProcessed: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "regions_processed_total",
				Help:      "Regions processed by the pipeline by final status",
			},
			[]string{"status"},
		),
		pipelineDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "pipeline_duration_seconds",
				Help:      "Wall time of pipeline runs",
				Buckets:   prometheus.ExponentialBuckets(0.005, 2, 12),
			},
			[]string{"result"},
		),
		exportsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "exports_total",
				Help:      "HWPX exports by result",
			},
			[]string{"result"},
		),
		exportBytes: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "export_size_bytes",
			Help:      "Size of written HWPX archives",
			Buckets:   prometheus.ExponentialBuckets(512, 4, 8),
		}),
		uploadBytes: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "upload_size_bytes",
			Help:      "Size of uploaded images",
			Buckets:   prometheus.ExponentialBuckets(1024, 4, 8),
		}),
		httpRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "HTTP requests by method, route and status",
			},
			[]string{"method", "route", "status"},
		),
		httpDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request latency by method and route",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
		httpSent: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_response_bytes_total",
				Help:      "Total bytes sent in HTTP responses",
			},
			[]string{"method", "route"},
		),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.jobsCreated,
		m.jobTransitions,
		m.regionsProcessed,
		m.pipelineDuration,
		m.exportsTotal,
		m.exportBytes,
		m.uploadBytes,
		m.httpRequests,
		m.httpDuration,
		m.httpSent,
	)
	return m
}

// Registry exposes the underlying registry for additional collectors
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the registry in the Prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) RecordJobCreated(uploadSize int) {
	m.jobsCreated.Inc()
	m.uploadBytes.Observe(float64(uploadSize))
}

func (m *Metrics) RecordTransition(to string) {
	m.jobTransitions.WithLabelValues(to).Inc()
}

func (m *Metrics) RecordRegion(status string) {
	m.regionsProcessed.WithLabelValues(status).Inc()
}

func (m *Metrics) ObservePipeline(result string, d time.Duration) {
	m.pipelineDuration.WithLabelValues(result).Observe(d.Seconds())
}

func (m *Metrics) RecordExport(result string, size int64) {
	m.exportsTotal.WithLabelValues(result).Inc()
	if size > 0 {
		m.exportBytes.Observe(float64(size))
	}
}

// Middleware records request counts, latency and response size. Requests are
// labelled with the matched route template to keep cardinality bounded.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(rw, r)

		route := "unmatched"
		if cr := mux.CurrentRoute(r); cr != nil {
			if tpl, err := cr.GetPathTemplate(); err == nil {
				route = tpl
			}
		}
		m.httpRequests.WithLabelValues(r.Method, route, strconv.Itoa(rw.statusCode)).Inc()
		m.httpDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
		if rw.bytesWritten > 0 {
			m.httpSent.WithLabelValues(r.Method, route).Add(float64(rw.bytesWritten))
		}
	})
}

type responseWriter struct {
	http.ResponseWriter
	bytesWritten int
	statusCode   int
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	n, err := rw.ResponseWriter.Write(b)
	rw.bytesWritten += n
	return n, err
}

func (rw *responseWriter) WriteHeader(statusCode int) {
	rw.statusCode = statusCode
	rw.ResponseWriter.WriteHeader(statusCode)
}
