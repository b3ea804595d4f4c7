// Package metrics holds the Prometheus instrumentation shared by the
// ingestion pipeline. Collectors are registered on the default registry and
// exposed by the run subcommand's /metrics endpoint.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// UpstreamFetches counts upstream HTTP calls by protocol and outcome
	// (ok, network, timeout, server, auth, parse, unknown).
	UpstreamFetches = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "catalogd_upstream_fetches_total",
		Help: "Upstream fetches by protocol and outcome.",
	}, []string{"protocol", "outcome"})

	// ParserSkips counts malformed records dropped by a parser or mapper
	// without failing the surrounding document.
	ParserSkips = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "catalogd_parser_skipped_records_total",
		Help: "Malformed records skipped during parsing or mapping.",
	}, []string{"format"})

	// CacheReads counts cache lookups by kind and result (hit, miss, stale).
	CacheReads = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "catalogd_cache_reads_total",
		Help: "Cache reads by data kind and result.",
	}, []string{"kind", "result"})

	// RefreshCoalesced counts refresh calls that attached to an in-flight
	// fetch instead of issuing their own upstream call.
	RefreshCoalesced = promauto.NewCounter(prometheus.CounterOpts{
		Name: "catalogd_refresh_coalesced_total",
		Help: "Refreshes coalesced into an already-running fetch.",
	})

	// StaleServed counts reads answered from stale cache after an upstream
	// failure.
	StaleServed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "catalogd_stale_served_total",
		Help: "Reads served from stale cache after upstream failure.",
	}, []string{"kind"})

	// SnapshotItems reports the item count of the last good snapshot.
	SnapshotItems = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "catalogd_snapshot_items",
		Help: "Items in the most recent snapshot per source and kind.",
	}, []string{"source", "kind"})
)
