package models

import "time"

// Position - позиция по одному инструменту внутри портфеля
//
// Мутируется только циклом мониторинга / обработчиками триггеров
// владеющего пользователя; между пользователями не разделяется.
type Position struct {
	Symbol     string  `json:"symbol"`
	Shares     float64 `json:"shares"`
	EntryPrice float64 `json:"entryPrice"`
	Sector     string  `json:"sector,omitempty"`

	// Последняя наблюдавшаяся цена
	CurrentPrice float64 `json:"currentPrice,omitempty"`

	// Последний рассчитанный риск-скор [1,10]; 0 = ещё не рассчитан
	RiskScore int `json:"riskScore,omitempty"`

	// Стоп-цена и параметры её аллокации (см. monitor/stoploss.go)
	StopLoss      float64 `json:"stopLoss,omitempty"`
	AllocatedLoss float64 `json:"allocatedLoss,omitempty"`
	Weight        float64 `json:"weight,omitempty"`

	// Временные метки: расчёт риска и последний лог риска
	// (риск логируется не чаще LOG_THROTTLE)
	RiskUpdatedAt time.Time `json:"riskUpdatedAt,omitempty"`
	RiskLoggedAt  time.Time `json:"-"`
}

// MarketValue возвращает текущую стоимость позиции
func (p *Position) MarketValue() float64 {
	return p.Shares * p.CurrentPrice
}

// Scored сообщает, рассчитывался ли уже риск-скор
func (p *Position) Scored() bool {
	return p.RiskScore > 0
}
