package stream

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Метрики hub'а подписок
var (
	metricClients = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "stockwatch",
		Subsystem: "stream",
		Name:      "clients",
		Help:      "Open subscriber connections",
	})

	metricSlowDrops = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "stockwatch",
		Subsystem: "stream",
		Name:      "slow_client_drops_total",
		Help:      "Subscribers disconnected for not keeping up",
	})
)
