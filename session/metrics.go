package session

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics bundles Prometheus collectors for portal sessions. Several sessions
// may share one Metrics.
type Metrics struct {
	Registry         *prometheus.Registry
	RequestsTotal    *prometheus.CounterVec
	RequestDuration  prometheus.Histogram
	StatesTotal      *prometheus.CounterVec
	ErrorsTotal      *prometheus.CounterVec
	RecordsTotal     *prometheus.CounterVec
	SkippedRowsTotal *prometheus.CounterVec
}

// NewMetrics constructs and registers all metrics on a dedicated registry.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	requests := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "unipa_requests_total",
			Help: "Total page loads issued by portal sessions.",
		},
		[]string{"method", "mode"},
	)
	requestDuration := prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "unipa_request_duration_seconds",
			Help:    "Latency of live portal requests.",
			Buckets: prometheus.DefBuckets,
		},
	)
	states := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "unipa_classified_states_total",
			Help: "Responses by classified application state.",
		},
		[]string{"state"},
	)
	errorsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "unipa_errors_total",
			Help: "Total number of request errors by type.",
		},
		[]string{"error_type"},
	)
	records := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "unipa_records_extracted_total",
			Help: "Records extracted from portal pages by kind.",
		},
		[]string{"kind"},
	)
	skipped := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "unipa_rows_skipped_total",
			Help: "Table rows skipped during extraction by kind.",
		},
		[]string{"kind"},
	)

	registry.MustRegister(requests, requestDuration, states, errorsTotal, records, skipped)

	return &Metrics{
		Registry:         registry,
		RequestsTotal:    requests,
		RequestDuration:  requestDuration,
		StatesTotal:      states,
		ErrorsTotal:      errorsTotal,
		RecordsTotal:     records,
		SkippedRowsTotal: skipped,
	}
}

// IncRequest increments the requests counter.
func (m *Metrics) IncRequest(method, mode string) {
	if m == nil {
		return
	}
	m.RequestsTotal.WithLabelValues(method, mode).Inc()
}

// ObserveDuration records a live request duration.
func (m *Metrics) ObserveDuration(d time.Duration) {
	if m == nil {
		return
	}
	m.RequestDuration.Observe(d.Seconds())
}

// IncState counts a classified response.
func (m *Metrics) IncState(state State) {
	if m == nil {
		return
	}
	m.StatesTotal.WithLabelValues(string(state)).Inc()
}

// IncError increments the errors counter for a type label.
func (m *Metrics) IncError(errorType string) {
	if m == nil {
		return
	}
	m.ErrorsTotal.WithLabelValues(errorType).Inc()
}

// AddRecords counts extracted records of one kind.
func (m *Metrics) AddRecords(kind string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.RecordsTotal.WithLabelValues(kind).Add(float64(n))
}

// AddSkipped counts rows dropped during extraction.
func (m *Metrics) AddSkipped(kind string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.SkippedRowsTotal.WithLabelValues(kind).Add(float64(n))
}

// Totals sums every series of each registered family. Histograms report
// their sample count.
func (m *Metrics) Totals() (map[string]float64, error) {
	if m == nil {
		return nil, nil
	}
	families, err := m.Registry.Gather()
	if err != nil {
		return nil, err
	}
	totals := make(map[string]float64, len(families))
	for _, mf := range families {
		for _, metric := range mf.GetMetric() {
			switch {
			case metric.GetCounter() != nil:
				totals[mf.GetName()] += metric.GetCounter().GetValue()
			case metric.GetHistogram() != nil:
				totals[mf.GetName()] += float64(metric.GetHistogram().GetSampleCount())
			}
		}
	}
	return totals, nil
}
