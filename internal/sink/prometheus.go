package sink

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/masahif/dataexplore/internal/crawler"
)

// PrometheusSink exports per-page crawl metrics via Prometheus
type PrometheusSink struct {
	pages         *prometheus.CounterVec
	fetchDuration *prometheus.HistogramVec
	linksFound    prometheus.Counter
	lastSequence  prometheus.Gauge
}

// NewPrometheusSink registers the collectors against the provided registry.
func NewPrometheusSink(reg prometheus.Registerer) (*PrometheusSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	s := &PrometheusSink{
		pages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dataexplore_pages_total",
			Help: "Processed URLs partitioned by outcome.",
		}, []string{"outcome"}),
		fetchDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "dataexplore_fetch_duration_seconds",
			Help:    "Page fetch duration partitioned by outcome.",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
		}, []string{"outcome"}),
		linksFound: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "dataexplore_links_found_total",
			Help: "In-scope links found on fetched pages.",
		}),
		lastSequence: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "dataexplore_last_sequence",
			Help: "Sequence number of the most recent event.",
		}),
	}
	for _, collector := range []prometheus.Collector{
		s.pages,
		s.fetchDuration,
		s.linksFound,
		s.lastSequence,
	} {
		if err := reg.Register(collector); err != nil {
			return nil, fmt.Errorf("register crawl collector: %w", err)
		}
	}
	return s, nil
}

// Consume updates the collectors from evt. It is safe for concurrent use.
func (s *PrometheusSink) Consume(_ context.Context, evt crawler.CrawlEvent) error {
	outcome := outcomeLabel(evt)
	s.pages.WithLabelValues(outcome).Inc()
	if evt.Outcome != crawler.OutcomeBlocked {
		s.fetchDuration.WithLabelValues(outcome).Observe(evt.Elapsed.Seconds())
	}
	if evt.LinkCount > 0 {
		s.linksFound.Add(float64(evt.LinkCount))
	}
	s.lastSequence.Set(float64(evt.Sequence))
	return nil
}

// outcomeLabel collapses status codes into classes to bound label cardinality
func outcomeLabel(evt crawler.CrawlEvent) string {
	switch evt.Outcome {
	case crawler.OutcomeBlocked:
		return "blocked"
	case crawler.OutcomeError:
		return "error"
	}
	switch {
	case evt.StatusCode >= 200 && evt.StatusCode < 300:
		return "2xx"
	case evt.StatusCode >= 300 && evt.StatusCode < 400:
		return "3xx"
	case evt.StatusCode >= 400 && evt.StatusCode < 500:
		return "4xx"
	case evt.StatusCode >= 500:
		return "5xx"
	default:
		return "other"
	}
}

// NewMetricsServer serves g on /metrics at addr
func NewMetricsServer(addr string, g prometheus.Gatherer) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(g, promhttp.HandlerOpts{}))
	return &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
}
