package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	LabelKind    = "kind" // "ticket" or "bonus"
	LabelResult  = "result"
	LabelReason  = "reason"
	LabelType    = "type"
	LabelSource  = "source"
	LabelMethod  = "method"
	LabelPath    = "path"
	LabelStatus  = "status"
	KindTicket   = "ticket"
	KindBonus    = "bonus"
	SourceCache  = "cache"
	SourceOrigin = "origin"
)

var (
	SpinsSettled = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rewards_spins_settled_total",
			Help: "Spins committed, by kind and result.",
		},
		[]string{LabelKind, LabelResult},
	)

	SpinsDenied = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rewards_spins_denied_total",
			Help: "Spin attempts rejected before drawing.",
		},
		[]string{LabelKind, LabelReason},
	)

	SettleFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rewards_settle_failures_total",
			Help: "Spins whose commit failed and was rolled back.",
		},
		[]string{LabelKind},
	)

	PrizeValuePaid = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rewards_prize_value_paid_total",
			Help: "Currency credited to wallets by spins.",
		},
		[]string{LabelKind},
	)

	WalletTransactions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rewards_wallet_transactions_total",
			Help: "Wallet journal rows written outside of spins.",
		},
		[]string{LabelType},
	)

	WagerLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rewards_wager_lookups_total",
			Help: "Wager snapshot lookups by source.",
		},
		[]string{LabelSource},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "rewards_http_request_duration_seconds",
			Help:    "HTTP request latency.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{LabelMethod, LabelPath, LabelStatus},
	)
)
