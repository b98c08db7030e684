package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	PayoutsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "liquidity_reward_payouts_total",
			Help: "Payouts handled by the settlement pipeline by outcome",
		},
		[]string{"ledger", "outcome"},
	)

	PayoutTransferDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "liquidity_reward_payout_transfer_duration_seconds",
			Help:    "Duration of a single ledger transfer including confirmation",
			Buckets: prometheus.ExponentialBuckets(0.5, 2, 10), // 0.5s to ~256s
		},
		[]string{"ledger"},
	)

	RecordsCreatedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "liquidity_reward_records_created_total",
			Help: "Daily project records written",
		},
		[]string{"scope_kind"},
	)

	CollectionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "liquidity_reward_collections_total",
			Help: "Collection runs by job and status",
		},
		[]string{"job", "status"},
	)

	CollectionDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "liquidity_reward_collection_duration_seconds",
			Help:    "Duration of collection runs",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 10), // 0.1s to ~51s
		},
		[]string{"job"},
	)

	SourceFetchTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "liquidity_reward_source_fetch_total",
			Help: "Source fetches by source and status",
		},
		[]string{"source", "status"},
	)

	JobsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "liquidity_reward_jobs_total",
			Help: "Queued jobs consumed by type and status",
		},
		[]string{"type", "status"},
	)
)
