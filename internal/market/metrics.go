package market

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Метрики получения цен
var (
	metricFetches = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "stockwatch",
		Subsystem: "market",
		Name:      "price_fetches_total",
		Help:      "Price fetch attempts by source and outcome",
	}, []string{"source", "outcome"})

	metricCacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "stockwatch",
		Subsystem: "market",
		Name:      "price_cache_hits_total",
		Help:      "Quote requests served from the TTL cache",
	})
)
