// Package metrics provides Prometheus metrics for crawls.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "newscrawl"

// Metrics holds the crawl collectors on their own registry. It implements
// discovery.Recorder.
type Metrics struct {
	registry *prometheus.Registry

	// StepAttempts counts step attempts by step and status.
	StepAttempts *prometheus.CounterVec
	// PagesExtracted counts result pages read.
	PagesExtracted prometheus.Counter
	// RecordsExtracted counts records kept from result pages.
	RecordsExtracted prometheus.Counter
	// RecordsDropped counts results dropped for lack of a URL.
	RecordsDropped prometheus.Counter
	// Crawls counts finished crawls by outcome.
	Crawls *prometheus.CounterVec
	// CrawlDuration measures whole crawls in seconds.
	CrawlDuration prometheus.Histogram
	// LastCrawlRecords is the record count of the latest crawl.
	LastCrawlRecords prometheus.Gauge
}

// New creates the collectors. Process and Go runtime collectors are
// registered alongside them.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		StepAttempts: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "step_attempts_total",
				Help:      "Total number of crawl step attempts",
			},
			[]string{"step", "status"},
		),
		PagesExtracted: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pages_extracted_total",
			Help:      "Total number of result pages extracted",
		}),
		RecordsExtracted: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_extracted_total",
			Help:      "Total number of records extracted",
		}),
		RecordsDropped: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_dropped_total",
			Help:      "Total number of results dropped without a URL",
		}),
		Crawls: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "crawls_total",
				Help:      "Total number of crawls by outcome",
			},
			[]string{"outcome"},
		),
		CrawlDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "crawl_duration_seconds",
			Help:      "Duration of crawls in seconds",
			Buckets:   []float64{1, 5, 10, 30, 60, 120, 300, 600},
		}),
		LastCrawlRecords: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_crawl_records",
			Help:      "Number of records collected by the latest crawl",
		}),
	}
}

// Registry returns the registry holding every collector.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveStep records one attempt at a crawl step.
func (m *Metrics) ObserveStep(step string, _ int, err error) {
	status := "success"
	if err != nil {
		status = "failure"
	}
	m.StepAttempts.WithLabelValues(step, status).Inc()
}

// ObservePage records one extracted page.
func (m *Metrics) ObservePage(records, dropped int) {
	m.PagesExtracted.Inc()
	m.RecordsExtracted.Add(float64(records))
	m.RecordsDropped.Add(float64(dropped))
}

// ObserveCrawl records a finished crawl.
func (m *Metrics) ObserveCrawl(outcome string, _, records int, elapsed time.Duration) {
	m.Crawls.WithLabelValues(outcome).Inc()
	m.CrawlDuration.Observe(elapsed.Seconds())
	m.LastCrawlRecords.Set(float64(records))
}
