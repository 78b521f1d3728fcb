package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "gamefeeds"

// Metrics holds the feed generation counters
type Metrics struct {
	Registry *prometheus.Registry

	RecordsFetched  *prometheus.CounterVec
	RecordsAccepted *prometheus.CounterVec
	RecordsRejected *prometheus.CounterVec
	PagesFetched    *prometheus.CounterVec
	FeedRuns        *prometheus.CounterVec
	TrailerLookups  *prometheus.CounterVec
	LastSuccess     *prometheus.GaugeVec
}

// New registers the metrics on a fresh registry
func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		Registry: reg,
		RecordsFetched: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_fetched_total",
			Help:      "Raw catalog records received, by feed.",
		}, []string{"feed"}),
		RecordsAccepted: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_accepted_total",
			Help:      "Records written to a feed, by feed.",
		}, []string{"feed"}),
		RecordsRejected: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_rejected_total",
			Help:      "Records dropped by the filters, by feed and reason.",
		}, []string{"feed", "reason"}),
		PagesFetched: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pages_fetched_total",
			Help:      "Catalog page requests that succeeded, by feed.",
		}, []string{"feed"}),
		FeedRuns: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "feed_runs_total",
			Help:      "Feed generations, by feed and status.",
		}, []string{"feed", "status"}),
		TrailerLookups: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "trailer_lookups_total",
			Help:      "Trailer lookups, by outcome (found, missing, error).",
		}, []string{"outcome"}),
		LastSuccess: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_success_timestamp_seconds",
			Help:      "Unix time of the last completed generation, by feed.",
		}, []string{"feed"}),
	}
}
