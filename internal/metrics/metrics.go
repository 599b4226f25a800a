package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Prometheus 指标
var (
	AccrualPointsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "loyalty_accrual_points_total",
			Help: "Total number of points awarded by order accruals",
		},
	)

	TriggerDecisionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "loyalty_trigger_decisions_total",
			Help: "Order status events by trigger gate decision",
		},
		[]string{"decision"},
	)

	AccrualFailuresTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "loyalty_accrual_failures_total",
			Help: "Accruals that passed the trigger gate but failed to evaluate or commit",
		},
	)

	InvalidRulesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "loyalty_invalid_rules_total",
			Help: "Rules skipped during evaluation because of invalid configuration",
		},
	)

	RedemptionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "loyalty_redemptions_total",
			Help: "Redemption attempts by outcome",
		},
		[]string{"outcome"},
	)

	LedgerWriteDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "loyalty_ledger_write_duration_seconds",
			Help:    "Duration of ledger write transactions",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"type"},
	)

	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "loyalty_http_request_duration_seconds",
			Help:    "HTTP request latency by route",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route", "status"},
	)

	OutboxSendTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "loyalty_outbox_send_total",
			Help: "Notification outbox relay attempts by result",
		},
		[]string{"result"},
	)
)

var registerOnce sync.Once

// Register 注册全部指标，可重复调用
func Register() {
	registerOnce.Do(func() {
		prometheus.MustRegister(AccrualPointsTotal)
		prometheus.MustRegister(TriggerDecisionsTotal)
		prometheus.MustRegister(AccrualFailuresTotal)
		prometheus.MustRegister(InvalidRulesTotal)
		prometheus.MustRegister(RedemptionsTotal)
		prometheus.MustRegister(LedgerWriteDuration)
		prometheus.MustRegister(HTTPRequestDuration)
		prometheus.MustRegister(OutboxSendTotal)
	})
}
