package monitor

import (
	"sync"
	"time"

	"stockwatch/pkg/utils"
)

// pricePoint - наблюдение цены
type pricePoint struct {
	price float64
	at    time.Time
}

// DropWatcher отслеживает резкие падения цены в скользящем окне
//
// Держит по тикеру историю наблюдений за окно (15 минут) и сигналит,
// когда текущая цена упала от максимума окна больше чем на порог.
// Сам по себе watcher не шлёт уведомлений - он только детектор,
// частоту срабатываний ограничивает CooldownController.
type DropWatcher struct {
	window   time.Duration
	dropPct  float64

	mu     sync.Mutex
	points map[string][]pricePoint

	now func() time.Time
}

// NewDropWatcher создает детектор падений
// dropPct - порог в процентах (5 = падение на 5%)
func NewDropWatcher(window time.Duration, dropPct float64) *DropWatcher {
	return &DropWatcher{
		window:  window,
		dropPct: dropPct,
		points:  make(map[string][]pricePoint),
		now:     time.Now,
	}
}

// Observe регистрирует цену и возвращает процент падения от максимума
// окна, если он превышает порог; иначе (0, false)
func (w *DropWatcher) Observe(symbol string, price float64) (float64, bool) {
	if price <= 0 {
		return 0, false
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	now := w.now()
	cutoff := now.Add(-w.window)

	// Отбрасываем наблюдения старше окна
	points := w.points[symbol]
	kept := points[:0]
	for _, pt := range points {
		if pt.at.After(cutoff) {
			kept = append(kept, pt)
		}
	}

	var peak float64
	for _, pt := range kept {
		if pt.price > peak {
			peak = pt.price
		}
	}

	kept = append(kept, pricePoint{price: price, at: now})
	w.points[symbol] = kept

	if peak <= 0 || price >= peak {
		return 0, false
	}

	// PctChange возвращает долю, порог и DropPct алерта - в процентах
	dropPct := -utils.PctChange(peak, price) * 100
	if dropPct > w.dropPct {
		return dropPct, true
	}
	return 0, false
}

// Forget удаляет историю тикера
func (w *DropWatcher) Forget(symbol string) {
	w.mu.Lock()
	delete(w.points, symbol)
	w.mu.Unlock()
}

// Symbols возвращает тикеры с накопленной историей цен
func (w *DropWatcher) Symbols() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	symbols := make([]string, 0, len(w.points))
	for symbol := range w.points {
		symbols = append(symbols, symbol)
	}
	return symbols
}
