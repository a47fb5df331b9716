package models

import (
	"fmt"
	"strings"
	"time"
)

// Виды внешних событий
const (
	EventKindNews     = "news"
	EventKindEarnings = "earnings"
)

// MarketEvent - внешнее событие по инструменту (новость, отчётность)
//
// События дедуплицируются по Identity() в скользящем 24-часовом окне:
// повторно увиденное событие не порождает триггер.
type MarketEvent struct {
	// Нативный id провайдера; 0 = отсутствует
	NativeID int64 `json:"id,omitempty"`

	Symbol      string    `json:"symbol"`
	Kind        string    `json:"kind"`
	Headline    string    `json:"headline"`
	Category    string    `json:"category,omitempty"`
	Source      string    `json:"source,omitempty"`
	Summary     string    `json:"summary,omitempty"`
	PublishedAt time.Time `json:"publishedAt"`

	// Для отчётностей: фактическое и ожидаемое значение EPS
	EPSActual   float64 `json:"epsActual,omitempty"`
	EPSEstimate float64 `json:"epsEstimate,omitempty"`
}

// Identity возвращает стабильную идентичность события.
//
// Нативный id провайдера, если он есть; иначе композит
// symbol|headline|category|timestamp. Заголовок нормализуется,
// чтобы одна и та же новость от разных фидов схлопывалась.
func (e *MarketEvent) Identity() string {
	if e.NativeID != 0 {
		return fmt.Sprintf("%s:%d", e.Symbol, e.NativeID)
	}
	headline := strings.ToLower(strings.TrimSpace(e.Headline))
	return fmt.Sprintf("%s|%s|%s|%d", e.Symbol, headline, e.Category, e.PublishedAt.Unix())
}

// Surprise возвращает величину earnings surprise как долю от оценки.
// Для событий без оценки - 0.
func (e *MarketEvent) Surprise() float64 {
	if e.Kind != EventKindEarnings || e.EPSEstimate == 0 {
		return 0
	}
	return (e.EPSActual - e.EPSEstimate) / e.EPSEstimate
}
