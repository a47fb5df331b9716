package monitor

import (
	"sync"

	"stockwatch/internal/risk"
	"stockwatch/pkg/utils"
)

// riskCacheKey - ключ мемоизации: оценка риска зависит от портфеля
// пользователя только номинально, но кэшируется по (user, symbol),
// чтобы сброс одного пользователя не трогал остальных
type riskCacheKey struct {
	userID string
	symbol string
}

type riskCacheEntry struct {
	refPrice float64
	result   *risk.Result
}

// RiskCache - мемо последнего результата скоринга с ценовой инвалидацией
//
// Запись привязана к цене, при которой считалась. Пока текущая цена
// отклоняется от опорной меньше чем на deltaPct процентов, пересчёт
// не нужен и отдаётся сохранённый результат.
type RiskCache struct {
	deltaPct float64

	mu      sync.Mutex
	entries map[riskCacheKey]*riskCacheEntry
}

// NewRiskCache создает кэш с порогом инвалидации в процентах
func NewRiskCache(deltaPct float64) *RiskCache {
	return &RiskCache{
		deltaPct: deltaPct,
		entries:  make(map[riskCacheKey]*riskCacheEntry),
	}
}

// Get возвращает результат, если цена не ушла дальше порога
func (c *RiskCache) Get(userID, symbol string, currentPrice float64) (*risk.Result, bool) {
	key := riskCacheKey{userID: userID, symbol: symbol}

	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	if entry.refPrice <= 0 {
		return nil, false
	}

	// PctChange возвращает долю, порог задан в процентах
	moved := utils.PctChange(entry.refPrice, currentPrice) * 100
	if moved < 0 {
		moved = -moved
	}
	if moved > c.deltaPct {
		return nil, false
	}
	return entry.result, true
}

// Put сохраняет результат с опорной ценой
func (c *RiskCache) Put(userID, symbol string, refPrice float64, result *risk.Result) {
	key := riskCacheKey{userID: userID, symbol: symbol}
	c.mu.Lock()
	c.entries[key] = &riskCacheEntry{refPrice: refPrice, result: result}
	c.mu.Unlock()
}

// Invalidate сбрасывает запись (user, symbol)
func (c *RiskCache) Invalidate(userID, symbol string) {
	c.mu.Lock()
	delete(c.entries, riskCacheKey{userID: userID, symbol: symbol})
	c.mu.Unlock()
}

// DropUser сбрасывает все записи пользователя
func (c *RiskCache) DropUser(userID string) {
	c.mu.Lock()
	for key := range c.entries {
		if key.userID == userID {
			delete(c.entries, key)
		}
	}
	c.mu.Unlock()
}
