// Package metrics exposes pipeline activity as Prometheus metrics.
//
// A Collector owns its own registry. Its IngestionMonitor and SearchMonitor
// plug into ingestion.Pipeline and search.Searcher; Handler serves the
// registry in the Prometheus text format.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/poiesic/recall/core"
	"github.com/poiesic/recall/ingestion"
	"github.com/poiesic/recall/search"
)

const namespace = "recall"

// Collector records ingestion and query metrics.
type Collector struct {
	registry *prometheus.Registry

	ingestions     *prometheus.CounterVec
	ingestedChunks prometheus.Counter
	ingestDuration prometheus.Histogram

	queries       *prometheus.CounterVec
	queryHits     prometheus.Histogram
	queryDuration prometheus.Histogram

	stages *prometheus.CounterVec

	watchOnce sync.Once
	records   atomic.Pointer[func() int]
}

// New creates a Collector with a fresh registry that also carries the Go
// runtime and process collectors.
func New() *Collector {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(registry)

	return &Collector{
		registry: registry,
		ingestions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ingestions_total",
			Help:      "Ingestion calls by outcome.",
		}, []string{"status"}),
		ingestedChunks: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ingested_chunks_total",
			Help:      "Chunks committed to the index.",
		}),
		ingestDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "ingestion_duration_seconds",
			Help:      "Time spent per ingestion call, lock wait included.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 14),
		}),
		queries: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "queries_total",
			Help:      "Queries by outcome.",
		}, []string{"status"}),
		queryHits: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "query_hits",
			Help:      "Chunks returned per successful query.",
			Buckets:   prometheus.LinearBuckets(0, 1, 11),
		}),
		queryDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "query_duration_seconds",
			Help:      "Time spent per query, embedding included.",
			Buckets:   prometheus.DefBuckets,
		}),
		stages: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stage_transitions_total",
			Help:      "Pipeline stage entries by flow.",
		}, []string{"flow", "stage"}),
	}
}

// Registry returns the registry metrics are registered with.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler serves the registry for scraping.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{Registry: c.registry})
}

// WatchIndex exports the current number of index records, read on every scrape.
// The gauge is registered once; later calls replace the source it reads.
func (c *Collector) WatchIndex(records func() int) {
	c.records.Store(&records)
	c.watchOnce.Do(func() {
		promauto.With(c.registry).NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "index_records",
			Help:      "Records in the published vector index.",
		}, func() float64 {
			return float64((*c.records.Load())())
		})
	})
}

// IngestionMonitor returns a monitor feeding this collector.
func (c *Collector) IngestionMonitor() ingestion.Monitor {
	return &ingestionMonitor{c: c}
}

// SearchMonitor returns a monitor feeding this collector.
func (c *Collector) SearchMonitor() search.Monitor {
	return &searchMonitor{c: c}
}

type ingestionMonitor struct{ c *Collector }

func (m *ingestionMonitor) Start(_ string, _ int) {}

func (m *ingestionMonitor) Stage(stage core.Stage) {
	m.c.stages.WithLabelValues("ingestion", stage.String()).Inc()
}

func (m *ingestionMonitor) Finish(result *ingestion.Result, elapsed time.Duration, err error) {
	m.c.ingestions.WithLabelValues(Status(err)).Inc()
	m.c.ingestDuration.Observe(elapsed.Seconds())
	if result != nil {
		m.c.ingestedChunks.Add(float64(result.ChunkCount))
	}
}

type searchMonitor struct{ c *Collector }

func (m *searchMonitor) Start(_ string) {}

func (m *searchMonitor) Stage(stage core.Stage) {
	m.c.stages.WithLabelValues("query", stage.String()).Inc()
}

func (m *searchMonitor) Finish(results []core.QueryResult, elapsed time.Duration, err error) {
	m.c.queries.WithLabelValues(Status(err)).Inc()
	m.c.queryDuration.Observe(elapsed.Seconds())
	if err == nil {
		m.c.queryHits.Observe(float64(len(results)))
	}
}

// Status maps an error to a low-cardinality label value.
func Status(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, core.ErrValidation):
		return "validation"
	case errors.Is(err, core.ErrEmbedding):
		return "embedding"
	case errors.Is(err, core.ErrIndex):
		return "index"
	case errors.Is(err, core.ErrPersistence):
		return "persistence"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "canceled"
	default:
		return "error"
	}
}
