// Package observability provides Prometheus collectors for the container
// lifecycle and the datasource queries run against it.
package observability

import (
	"sort"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	dto "github.com/prometheus/client_model/go"
)

const namespace = "pgsmoke"

// Outcome label values
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

// Metrics groups the collectors. A nil *Metrics is valid and records nothing.
type Metrics struct {
	containerStarts        *prometheus.CounterVec
	containerStartDuration prometheus.Histogram
	containerStops         prometheus.Counter
	queries                *prometheus.CounterVec
	queryDuration          *prometheus.HistogramVec
}

// NewMetrics creates the collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		containerStarts: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "container_starts_total",
			Help:      "Database container start attempts by outcome.",
		}, []string{"outcome"}),
		containerStartDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "container_start_duration_seconds",
			Help:      "Time from start request until the database accepted connections.",
			Buckets:   []float64{1, 2, 5, 10, 20, 30, 60, 120},
		}),
		containerStops: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "container_stops_total",
			Help:      "Database containers terminated.",
		}),
		queries: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "queries_total",
			Help:      "Statements run against the datasource by backend, operation and outcome.",
		}, []string{"backend", "operation", "outcome"}),
		queryDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "query_duration_seconds",
			Help:      "Statement latency by backend and operation.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"backend", "operation"}),
	}
}

// ObserveContainerStart records one start attempt.
func (m *Metrics) ObserveContainerStart(d time.Duration, err error) {
	if m == nil {
		return
	}
	m.containerStarts.WithLabelValues(outcome(err)).Inc()
	if err == nil {
		m.containerStartDuration.Observe(d.Seconds())
	}
}

// ObserveContainerStop records a terminated container.
func (m *Metrics) ObserveContainerStop() {
	if m == nil {
		return
	}
	m.containerStops.Inc()
}

// ObserveQuery records one statement.
func (m *Metrics) ObserveQuery(backend, operation string, d time.Duration, err error) {
	if m == nil {
		return
	}
	m.queries.WithLabelValues(backend, operation, outcome(err)).Inc()
	m.queryDuration.WithLabelValues(backend, operation).Observe(d.Seconds())
}

func outcome(err error) string {
	if err != nil {
		return OutcomeFailure
	}
	return OutcomeSuccess
}

// Sample is a flattened counter value, used for end-of-run summaries.
type Sample struct {
	Name   string
	Labels map[string]string
	Value  float64
}

// Counters gathers every counter from g, sorted by name.
func Counters(g prometheus.Gatherer) ([]Sample, error) {
	families, err := g.Gather()
	if err != nil {
		return nil, err
	}

	var samples []Sample
	for _, mf := range families {
		if mf.GetType() != dto.MetricType_COUNTER {
			continue
		}
		for _, m := range mf.GetMetric() {
			labels := make(map[string]string, len(m.GetLabel()))
			for _, lp := range m.GetLabel() {
				labels[lp.GetName()] = lp.GetValue()
			}
			samples = append(samples, Sample{
				Name:   mf.GetName(),
				Labels: labels,
				Value:  m.GetCounter().GetValue(),
			})
		}
	}
	sort.SliceStable(samples, func(i, j int) bool { return samples[i].Name < samples[j].Name })
	return samples, nil
}
