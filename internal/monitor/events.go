package monitor

import (
	"context"
	"sync"
	"time"

	"stockwatch/internal/models"
	"stockwatch/internal/provider"
	"stockwatch/pkg/utils"
)

// ============================================================
// Дедупликация событий
// ============================================================

// SeenEvents - память о виденных событиях в скользящем окне
//
// Идентичность, встреченная в пределах окна (24 часа), подавляется.
// Проверка и запись атомарны: одно событие, пришедшее из двух циклов
// опроса одновременно, даст ровно один триггер.
type SeenEvents struct {
	window time.Duration

	mu   sync.Mutex
	seen map[string]time.Time

	now func() time.Time
}

// NewSeenEvents создает хранилище с окном дедупликации
func NewSeenEvents(window time.Duration) *SeenEvents {
	return &SeenEvents{
		window: window,
		seen:   make(map[string]time.Time),
		now:    time.Now,
	}
}

// MarkIfNovel возвращает true и запоминает идентичность, если она
// не встречалась в пределах окна; повтор в окне возвращает false
func (s *SeenEvents) MarkIfNovel(identity string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if first, ok := s.seen[identity]; ok && now.Sub(first) < s.window {
		metricDedupHits.Inc()
		return false
	}
	s.seen[identity] = now
	return true
}

// Forget сбрасывает идентичность - следующее появление снова новое
// Используется вебхуком для принудительного повторного прогона
func (s *SeenEvents) Forget(identity string) {
	s.mu.Lock()
	delete(s.seen, identity)
	s.mu.Unlock()
}

// ForgetSymbol сбрасывает все идентичности с префиксом тикера
func (s *SeenEvents) ForgetSymbol(symbol string) {
	prefix := symbol + ":"
	alt := symbol + "|"
	s.mu.Lock()
	for identity := range s.seen {
		if hasPrefix(identity, prefix) || hasPrefix(identity, alt) {
			delete(s.seen, identity)
		}
	}
	s.mu.Unlock()
}

// Evict удаляет записи старше окна
// Вызывается периодически из цикла опроса
func (s *SeenEvents) Evict() {
	s.mu.Lock()
	now := s.now()
	for identity, first := range s.seen {
		if now.Sub(first) >= s.window {
			delete(s.seen, identity)
		}
	}
	s.mu.Unlock()
}

// Size возвращает число хранимых идентичностей
func (s *SeenEvents) Size() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.seen)
}

func hasPrefix(s, prefix string) bool {
	return len(s) >= len(prefix) && s[:len(prefix)] == prefix
}

// ============================================================
// Наблюдатель внешних событий
// ============================================================

// EventWatcher опрашивает новостную ленту и отчётность по всем
// отслеживаемым тикерам и пересылает новые события как форсированные
// триггеры всем держателям тикера
//
// Отказ ленты по одному тикеру пропускает только этот тикер в этом
// цикле - остальные обрабатываются дальше.
type EventWatcher struct {
	data     provider.DataProvider
	seen     *SeenEvents
	interval time.Duration
	logger   *utils.Logger

	// holdings возвращает тикер -> держатели
	holdings func(ctx context.Context) map[string][]string

	// forward доставляет новое событие держателям
	forward func(ctx context.Context, event *models.MarketEvent, userIDs []string)
}

// NewEventWatcher создает наблюдателя
func NewEventWatcher(
	data provider.DataProvider,
	seen *SeenEvents,
	interval time.Duration,
	holdings func(ctx context.Context) map[string][]string,
	forward func(ctx context.Context, event *models.MarketEvent, userIDs []string),
	logger *utils.Logger,
) *EventWatcher {
	if logger == nil {
		logger = utils.GetGlobalLogger()
	}
	return &EventWatcher{
		data:     data,
		seen:     seen,
		interval: interval,
		holdings: holdings,
		forward:  forward,
		logger:   logger.WithComponent("events"),
	}
}

// Run запускает цикл опроса до отмены контекста
func (w *EventWatcher) Run(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.logger.Info("event watcher started", utils.String("interval", w.interval.String()))

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("event watcher stopped")
			return
		case <-ticker.C:
			w.PollOnce(ctx)
			w.seen.Evict()
		}
	}
}

// PollOnce выполняет один цикл опроса по всем отслеживаемым тикерам
func (w *EventWatcher) PollOnce(ctx context.Context) {
	holdings := w.holdings(ctx)

	for symbol, userIDs := range holdings {
		if len(userIDs) == 0 {
			continue
		}
		if err := w.pollSymbol(ctx, symbol, userIDs); err != nil {
			// Отказ ленты изолирован по тикеру
			w.logger.Warn("event feed failed", utils.Symbol(symbol), utils.Err(err))
		}
		if ctx.Err() != nil {
			return
		}
	}
}

// pollSymbol собирает новости и отчётность одного тикера
func (w *EventWatcher) pollSymbol(ctx context.Context, symbol string, userIDs []string) error {
	now := time.Now()

	events, err := w.data.GetNews(ctx, symbol, now.Add(-w.interval-time.Hour), now)
	if err != nil {
		return err
	}

	if earnings, err := w.data.GetLatestEarnings(ctx, symbol); err == nil && earnings != nil {
		events = append(events, earnings)
	}

	for _, event := range events {
		if !w.seen.MarkIfNovel(event.Identity()) {
			continue
		}
		w.logger.Info("novel market event",
			utils.Symbol(symbol),
			utils.String("kind", event.Kind),
			utils.String("headline", event.Headline))
		w.forward(ctx, event, userIDs)
	}
	return nil
}
