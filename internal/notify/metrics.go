package notify

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Метрики доставки по каналам
var metricDeliveries = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "stockwatch",
	Subsystem: "notify",
	Name:      "deliveries_total",
	Help:      "Alert deliveries by channel and outcome",
}, []string{"channel", "outcome"})
