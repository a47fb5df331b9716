package monitor

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Метрики цикла мониторинга
var (
	metricTicks = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "stockwatch",
		Subsystem: "monitor",
		Name:      "ticks_total",
		Help:      "Completed monitoring passes",
	})

	metricPositionsProcessed = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "stockwatch",
		Subsystem: "monitor",
		Name:      "positions_processed_total",
		Help:      "Position evaluations across all passes",
	})

	metricPositionErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "stockwatch",
		Subsystem: "monitor",
		Name:      "position_errors_total",
		Help:      "Per-position failures by reason",
	}, []string{"reason"})

	metricRiskComputations = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "stockwatch",
		Subsystem: "monitor",
		Name:      "risk_computations_total",
		Help:      "Risk engine invocations (cache misses)",
	})

	metricCooldownRejections = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "stockwatch",
		Subsystem: "monitor",
		Name:      "cooldown_rejections_total",
		Help:      "Triggers suppressed by cooldown windows",
	}, []string{"kind"})

	metricStopLossUpdates = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "stockwatch",
		Subsystem: "monitor",
		Name:      "stoploss_updates_total",
		Help:      "Stop-loss changes exceeding epsilon",
	})

	metricDropAlerts = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "stockwatch",
		Subsystem: "monitor",
		Name:      "drop_alerts_total",
		Help:      "Sharp intraday drop alerts",
	})

	metricDedupHits = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "stockwatch",
		Subsystem: "monitor",
		Name:      "event_dedup_hits_total",
		Help:      "Events suppressed as duplicates within the dedup window",
	})

	metricEventsForwarded = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "stockwatch",
		Subsystem: "monitor",
		Name:      "events_forwarded_total",
		Help:      "Novel market events forwarded as triggers",
	})

	metricTickDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "stockwatch",
		Subsystem: "monitor",
		Name:      "tick_duration_seconds",
		Help:      "Duration of a full monitoring pass",
		Buckets:   prometheus.DefBuckets,
	})
)
