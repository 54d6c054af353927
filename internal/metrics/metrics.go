package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Registry holds all Prometheus metrics.
type Registry struct {
	*prometheus.Registry

	// HTTP metrics
	httpRequestsTotal    *prometheus.CounterVec
	httpRequestDuration  *prometheus.HistogramVec
	httpRequestsInFlight prometheus.Gauge

	// Simulation metrics
	runsTotal      *prometheus.CounterVec
	runDuration    prometheus.Histogram
	simulatedDays  prometheus.Counter
	rebalances     prometheus.Counter
	delistings     prometheus.Counter
	feedFetches    *prometheus.CounterVec
	jobsActive     *prometheus.GaugeVec
	purchasesTotal prometheus.Counter
}

// NewRegistry creates a new metrics registry with all metrics registered.
func NewRegistry() *Registry {
	reg := prometheus.NewRegistry()

	// Register Go runtime metrics
	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	r := &Registry{
		Registry: reg,

		httpRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),

		httpRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),

		httpRequestsInFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "http_requests_in_flight",
				Help: "Number of HTTP requests currently in flight",
			},
		),
	}

	reg.MustRegister(r.httpRequestsTotal)
	reg.MustRegister(r.httpRequestDuration)
	reg.MustRegister(r.httpRequestsInFlight)

	r.runsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "portsim_runs_total",
			Help: "Total number of simulation runs",
		},
		[]string{"status"},
	)
	r.runDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "portsim_run_duration_seconds",
			Help:    "Simulation run duration in seconds, data loading included",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60},
		},
	)
	r.simulatedDays = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "portsim_simulated_days_total",
			Help: "Total number of trading days simulated",
		},
	)
	r.rebalances = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "portsim_rebalance_events_total",
			Help: "Total number of rebalance events executed",
		},
	)
	r.delistings = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "portsim_delistings_total",
			Help: "Total number of assets frozen as delisted",
		},
	)
	r.purchasesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "portsim_purchases_total",
			Help: "Total number of security purchases",
		},
	)
	r.feedFetches = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "portsim_feed_fetches_total",
			Help: "Total number of feed fetches",
		},
		[]string{"feed", "kind", "status"},
	)
	r.jobsActive = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "portsim_jobs_active",
			Help: "Number of active jobs",
		},
		[]string{"type"},
	)

	reg.MustRegister(r.runsTotal)
	reg.MustRegister(r.runDuration)
	reg.MustRegister(r.simulatedDays)
	reg.MustRegister(r.rebalances)
	reg.MustRegister(r.delistings)
	reg.MustRegister(r.purchasesTotal)
	reg.MustRegister(r.feedFetches)
	reg.MustRegister(r.jobsActive)

	return r
}

// RecordRequest records metrics for an HTTP request.
func (r *Registry) RecordRequest(method, path string, status int, duration float64) {
	statusStr := statusToString(status)
	r.httpRequestsTotal.WithLabelValues(method, path, statusStr).Inc()
	r.httpRequestDuration.WithLabelValues(method, path).Observe(duration)
}

// InFlightInc increments in-flight requests.
func (r *Registry) InFlightInc() {
	r.httpRequestsInFlight.Inc()
}

// InFlightDec decrements in-flight requests.
func (r *Registry) InFlightDec() {
	r.httpRequestsInFlight.Dec()
}

// Run summarises one finished simulation for RecordRun.
type Run struct {
	Status     string // complete, partial, failed
	Duration   float64
	Days       int
	Rebalances int
	Delistings int
	Purchases  int
}

// RecordRun records a simulation run.
func (r *Registry) RecordRun(run Run) {
	r.runsTotal.WithLabelValues(run.Status).Inc()
	r.runDuration.Observe(run.Duration)
	r.simulatedDays.Add(float64(run.Days))
	r.rebalances.Add(float64(run.Rebalances))
	r.delistings.Add(float64(run.Delistings))
	r.purchasesTotal.Add(float64(run.Purchases))
}

// RecordFetch records one feed call. kind is "prices" or "rates".
func (r *Registry) RecordFetch(feed, kind string, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	r.feedFetches.WithLabelValues(feed, kind, status).Inc()
}

// SetJobsActive sets the number of active jobs of a type.
func (r *Registry) SetJobsActive(jobType string, count int) {
	r.jobsActive.WithLabelValues(jobType).Set(float64(count))
}

// WriteTextfile writes every metric to path in the node_exporter textfile
// format.
func (r *Registry) WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, r.Registry)
}

func statusToString(status int) string {
	switch {
	case status >= 500:
		return "5xx"
	case status >= 400:
		return "4xx"
	case status >= 300:
		return "3xx"
	case status >= 200:
		return "2xx"
	default:
		return "1xx"
	}
}
