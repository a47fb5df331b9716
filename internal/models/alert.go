package models

import "time"

// Типы алертов (state changes), рассылаемых подписчикам
const (
	AlertTypePriceTick      = "PRICE_TICK"      // обновление цены
	AlertTypeRiskUpdate     = "RISK_UPDATE"     // пересчитан риск-скор
	AlertTypeStopLossUpdate = "STOPLOSS_UPDATE" // изменилась стоп-цена
	AlertTypePriceDrop      = "PRICE_DROP"      // резкое падение за 15 минут
	AlertTypeMarketEvent    = "MARKET_EVENT"    // новость/отчётность
)

// Severity алерта
const (
	SeverityInfo     = "info"
	SeverityWarn     = "warn"
	SeverityCritical = "critical"
)

// Alert - одно изменение состояния для доставки подписчикам
//
// Диспетчер доставляет алерт в каждый канал (stream, email, push)
// независимо и best-effort; см. internal/notify.
type Alert struct {
	Type      string    `json:"type"`
	Severity  string    `json:"severity"`
	UserID    string    `json:"userId"`
	Symbol    string    `json:"symbol,omitempty"`
	Sector    string    `json:"sector,omitempty"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`

	// Числовые поля заполняются в зависимости от типа
	Price         float64 `json:"price,omitempty"`
	RiskScore     int     `json:"riskScore,omitempty"`
	StopLoss      float64 `json:"stopLoss,omitempty"`
	AllocatedLoss float64 `json:"allocatedLoss,omitempty"`
	Weight        float64 `json:"weight,omitempty"`
	DropPct       float64 `json:"dropPercent,omitempty"`

	// Дополнительный контекст (факторы риска, заголовок новости...)
	Meta map[string]interface{} `json:"meta,omitempty"`
}

// ValidAlertType проверяет известность типа алерта
func ValidAlertType(t string) bool {
	switch t {
	case AlertTypePriceTick, AlertTypeRiskUpdate, AlertTypeStopLossUpdate,
		AlertTypePriceDrop, AlertTypeMarketEvent:
		return true
	}
	return false
}
