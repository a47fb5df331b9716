// Package monitor содержит цикл мониторинга и его вспомогательные
// механизмы: окна охлаждения, ценовую инвалидацию оценок риска,
// распределение стоп-лоссов, детектор падений и наблюдателя событий.
package monitor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"stockwatch/internal/config"
	"stockwatch/internal/market"
	"stockwatch/internal/models"
	"stockwatch/internal/provider"
	"stockwatch/internal/risk"
	"stockwatch/pkg/utils"
)

// PortfolioStore - доступ движка к портфелям
type PortfolioStore interface {
	All(ctx context.Context) ([]*models.Portfolio, error)
	Get(ctx context.Context, userID string) (*models.Portfolio, error)
	Save(ctx context.Context, p *models.Portfolio) error
}

// Notifier - доставка уведомлений; реализация в пакете notify
type Notifier interface {
	Notify(ctx context.Context, p *models.Portfolio, alert *models.Alert)
}

// StreamControl - управление подписками потока котировок
type StreamControl interface {
	Subscribe(symbol string) error
	Unsubscribe(symbol string)
	Symbols() []string
}

// Deps - зависимости движка
type Deps struct {
	Config    config.MonitorConfig
	Store     PortfolioStore
	Prices    *market.PriceService
	Scorer    *risk.Engine
	Notifier  Notifier
	Stream    StreamControl // допускается nil
	Seen      *SeenEvents
	// DecryptCreds возвращает расшифрованные ключи брокера портфеля,
	// nil когда ключей нет или они нечитаемы
	DecryptCreds func(p *models.Portfolio) *models.BrokerCredentials
	Logger       *utils.Logger
}

// Engine - планировщик мониторинга
//
// Назначение:
// Обходит все портфели на фиксированном тике и по требованию
// (вебхук, обновление портфеля, событие, тик потока), прогоняя
// каждую позицию через цены, скоринг, распределение стоп-лоссов
// и доставку уведомлений.
//
// Инварианты:
// - мутации портфеля одного пользователя сериализованы per-user mutex
// - отказ одной позиции или одного пользователя изолирован,
//   обход продолжается
type Engine struct {
	cfg       config.MonitorConfig
	store     PortfolioStore
	prices    *market.PriceService
	scorer    *risk.Engine
	notifier  Notifier
	stream    StreamControl
	seen      *SeenEvents
	decrypt   func(p *models.Portfolio) *models.BrokerCredentials
	logger    *utils.Logger

	cooldowns *CooldownController
	riskCache *RiskCache
	drops     *DropWatcher

	// userID -> *sync.Mutex, сериализация мутаций портфеля
	userLocks sync.Map
}

// NewEngine создает движок мониторинга
func NewEngine(deps Deps) *Engine {
	logger := deps.Logger
	if logger == nil {
		logger = utils.GetGlobalLogger()
	}
	if deps.DecryptCreds == nil {
		deps.DecryptCreds = func(*models.Portfolio) *models.BrokerCredentials { return nil }
	}

	windows := map[TriggerKind]time.Duration{
		TriggerPeriodic:   deps.Config.RiskCooldown,
		TriggerDrop:       deps.Config.EventCooldown,
		TriggerEvent:      deps.Config.EventCooldown,
		TriggerWebhook:    deps.Config.EventCooldown,
		TriggerAllocation: deps.Config.AllocationCooldown,
	}

	return &Engine{
		cfg:       deps.Config,
		store:     deps.Store,
		prices:    deps.Prices,
		scorer:    deps.Scorer,
		notifier:  deps.Notifier,
		stream:    deps.Stream,
		seen:      deps.Seen,
		decrypt:   deps.DecryptCreds,
		logger:    logger.WithComponent("monitor"),
		cooldowns: NewCooldownController(windows),
		riskCache: NewRiskCache(deps.Config.PriceDeltaPct),
		drops:     NewDropWatcher(deps.Config.DropWindow, deps.Config.DropAlertPct),
	}
}

// Cooldowns открывает контроллер для тестов и сервисного слоя
func (e *Engine) Cooldowns() *CooldownController { return e.cooldowns }

// Run запускает цикл мониторинга до отмены контекста
func (e *Engine) Run(ctx context.Context) {
	ticker := time.NewTicker(e.cfg.TickInterval)
	defer ticker.Stop()

	e.logger.Info("monitoring loop started",
		utils.String("interval", e.cfg.TickInterval.String()))

	for {
		select {
		case <-ctx.Done():
			e.logger.Info("monitoring loop stopped")
			return
		case <-ticker.C:
			e.RunPass(ctx, false)
		}
	}
}

// RunPass выполняет один проход по всем портфелям
// Отказ одного пользователя не прерывает обход остальных
func (e *Engine) RunPass(ctx context.Context, force bool) {
	start := time.Now()

	portfolios, err := e.store.All(ctx)
	if err != nil {
		e.logger.Error("portfolio listing failed", utils.Err(err))
		return
	}

	for _, p := range portfolios {
		if ctx.Err() != nil {
			return
		}
		if err := e.ProcessUser(ctx, p.UserID, TriggerPeriodic, force); err != nil {
			e.logger.Warn("user pass failed", utils.UserID(p.UserID), utils.Err(err))
		}
	}

	e.SyncStreamSubscriptions(ctx)

	metricTicks.Inc()
	metricTickDuration.Observe(time.Since(start).Seconds())
}

// ProcessUser прогоняет портфель одного пользователя
// Вызывается из планового тика, после обновления портфеля (force=true)
// и из обработчиков событий
func (e *Engine) ProcessUser(ctx context.Context, userID string, kind TriggerKind, force bool) error {
	lock := e.userLock(userID)
	lock.Lock()
	defer lock.Unlock()

	p, err := e.store.Get(ctx, userID)
	if err != nil {
		return fmt.Errorf("load portfolio: %w", err)
	}

	creds := e.decrypt(p)

	for _, pos := range p.Positions {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		e.processPosition(ctx, p, creds, pos, kind, force)
		metricPositionsProcessed.Inc()
	}

	e.allocate(ctx, p, force)

	if err := e.store.Save(ctx, p); err != nil {
		e.logger.Warn("portfolio save failed", utils.UserID(userID), utils.Err(err))
	}
	return nil
}

// processPosition обновляет цену и оценку риска одной позиции
// Любой отказ изолирован: позиция пропускается до следующего прохода
func (e *Engine) processPosition(ctx context.Context, p *models.Portfolio, creds *models.BrokerCredentials, pos *models.Position, kind TriggerKind, force bool) {
	quote, err := e.prices.GetPrice(ctx, pos.Symbol, creds)
	if err != nil {
		metricPositionErrors.WithLabelValues("price_unavailable").Inc()
		e.logger.Warn("price unavailable, skipping",
			utils.UserID(p.UserID), utils.Symbol(pos.Symbol), utils.Err(err))
		return
	}
	pos.CurrentPrice = quote.Price

	e.notifier.Notify(ctx, p, &models.Alert{
		Type:      models.AlertTypePriceTick,
		Severity:  models.SeverityInfo,
		UserID:    p.UserID,
		Symbol:    pos.Symbol,
		Sector:    pos.Sector,
		Price:     quote.Price,
		Message:   fmt.Sprintf("%s at %.2f (%s)", pos.Symbol, quote.Price, quote.Source),
		Timestamp: time.Now(),
	})

	// Детектор падений видит каждую наблюдённую цену
	if dropPct, dropped := e.drops.Observe(pos.Symbol, quote.Price); dropped {
		e.handleDrop(ctx, p, pos, quote.Price, dropPct)
		return
	}

	e.updateRisk(ctx, p, pos, quote.Price, kind, force)
}

// updateRisk пересчитывает оценку риска позиции с учётом ценовой
// инвалидации и окна охлаждения
func (e *Engine) updateRisk(ctx context.Context, p *models.Portfolio, pos *models.Position, price float64, kind TriggerKind, force bool) {
	if cached, ok := e.riskCache.Get(p.UserID, pos.Symbol, price); ok && !force {
		pos.RiskScore = cached.Score
		return
	}

	if !e.cooldowns.Admit(p.UserID, pos.Symbol, kind, force) {
		metricCooldownRejections.WithLabelValues(string(kind)).Inc()
		e.logger.Debug("risk recompute suppressed by cooldown",
			utils.UserID(p.UserID), utils.Symbol(pos.Symbol),
			utils.String("kind", string(kind)))
		return
	}

	result := e.scorer.Score(ctx, pos.Symbol, price)
	metricRiskComputations.Inc()
	if result.Degraded {
		metricPositionErrors.WithLabelValues("scoring_degraded").Inc()
	}

	e.riskCache.Put(p.UserID, pos.Symbol, price, result)

	oldScore := pos.RiskScore
	pos.RiskScore = result.Score
	pos.RiskUpdatedAt = result.ComputedAt

	// Троттлинг логов: оценка пишется в лог не чаще LogThrottle
	if time.Since(pos.RiskLoggedAt) > e.cfg.LogThrottle {
		pos.RiskLoggedAt = time.Now()
		e.logger.Info("risk score updated",
			utils.UserID(p.UserID), utils.Symbol(pos.Symbol),
			utils.RiskScore(result.Score), utils.Price(price))
	}

	if result.Score != oldScore {
		e.notifier.Notify(ctx, p, &models.Alert{
			Type:      models.AlertTypeRiskUpdate,
			Severity:  riskSeverity(result.Score),
			UserID:    p.UserID,
			Symbol:    pos.Symbol,
			Sector:    pos.Sector,
			Price:     price,
			RiskScore: result.Score,
			Message:   fmt.Sprintf("%s risk score %d -> %d", pos.Symbol, oldScore, result.Score),
			Timestamp: time.Now(),
			Meta:      map[string]interface{}{"factors": result.Factors, "degraded": result.Degraded},
		})
	}
}

// handleDrop обрабатывает резкое падение: форсированный пересчёт
// риска и одно предупреждение, ограниченное окном drop-триггера
func (e *Engine) handleDrop(ctx context.Context, p *models.Portfolio, pos *models.Position, price, dropPct float64) {
	if !e.cooldowns.Admit(p.UserID, pos.Symbol, TriggerDrop, false) {
		metricCooldownRejections.WithLabelValues(string(TriggerDrop)).Inc()
		return
	}

	metricDropAlerts.Inc()
	e.logger.Warn("sharp price drop detected",
		utils.UserID(p.UserID), utils.Symbol(pos.Symbol),
		utils.Price(price), utils.Float64("dropPct", dropPct))

	e.notifier.Notify(ctx, p, &models.Alert{
		Type:      models.AlertTypePriceDrop,
		Severity:  models.SeverityCritical,
		UserID:    p.UserID,
		Symbol:    pos.Symbol,
		Sector:    pos.Sector,
		Price:     price,
		DropPct:   dropPct,
		Message:   fmt.Sprintf("%s dropped %.1f%% within %s", pos.Symbol, dropPct, e.cfg.DropWindow),
		Timestamp: time.Now(),
	})

	// Форсированный пересчёт: свежая оценка ляжет в кэш по новой цене,
	// совпавший плановый тик возьмёт её оттуда без второго пересчёта
	e.riskCache.Invalidate(p.UserID, pos.Symbol)
	e.updateRisk(ctx, p, pos, price, TriggerDrop, true)
}

// allocate переразмечает стоп-лоссы портфеля в своём окне охлаждения,
// независимом от пер-символьных окон
func (e *Engine) allocate(ctx context.Context, p *models.Portfolio, force bool) {
	if !e.cooldowns.Admit(p.UserID, "", TriggerAllocation, force) {
		metricCooldownRejections.WithLabelValues(string(TriggerAllocation)).Inc()
		return
	}

	maxLoss := p.MaxLossPct
	if maxLoss <= 0 {
		maxLoss = e.cfg.DefaultMaxLossPct
	}

	updates := AllocateStopLosses(p, maxLoss, e.cfg.StopEpsilon)
	for _, u := range updates {
		metricStopLossUpdates.Inc()
		var sector string
		if pos, ok := p.Positions[u.Symbol]; ok {
			sector = pos.Sector
		}
		e.notifier.Notify(ctx, p, &models.Alert{
			Type:          models.AlertTypeStopLossUpdate,
			Severity:      models.SeverityWarn,
			UserID:        p.UserID,
			Symbol:        u.Symbol,
			Sector:        sector,
			StopLoss:      u.NewStop,
			AllocatedLoss: u.AllocatedLoss,
			Weight:        u.Weight,
			Message:       fmt.Sprintf("%s stop-loss %.2f -> %.2f", u.Symbol, u.OldStop, u.NewStop),
			Timestamp:     time.Now(),
		})
	}
}

// ============================================================
// Внешние триггеры
// ============================================================

// HandleTick принимает сделку из потока котировок
// Обновляет ценовой кэш; при резком падении форсирует пересчёт
// у всех держателей тикера
func (e *Engine) HandleTick(ctx context.Context, tick provider.Tick) {
	e.prices.PutTick(tick)

	dropPct, dropped := e.drops.Observe(tick.Symbol, tick.Price)
	if !dropped {
		return
	}

	holders := e.holders(ctx)[tick.Symbol]
	for _, userID := range holders {
		userID := userID
		go func() {
			lock := e.userLock(userID)
			lock.Lock()
			defer lock.Unlock()

			p, err := e.store.Get(ctx, userID)
			if err != nil {
				return
			}
			pos, ok := p.Positions[tick.Symbol]
			if !ok {
				return
			}
			pos.CurrentPrice = tick.Price
			e.handleDrop(ctx, p, pos, tick.Price, dropPct)
			if err := e.store.Save(ctx, p); err != nil {
				e.logger.Warn("portfolio save failed", utils.UserID(userID), utils.Err(err))
			}
		}()
	}
}

// HandleEvent принимает новое внешнее событие от наблюдателя
// Пересчёт форсированный, частота ограничена окном event-триггера
func (e *Engine) HandleEvent(ctx context.Context, event *models.MarketEvent, userIDs []string) {
	metricEventsForwarded.Inc()

	for _, userID := range userIDs {
		if !e.cooldowns.Admit(userID, event.Symbol, TriggerEvent, false) {
			metricCooldownRejections.WithLabelValues(string(TriggerEvent)).Inc()
			e.logger.Debug("event trigger suppressed by cooldown",
				utils.UserID(userID), utils.Symbol(event.Symbol))
			continue
		}

		lock := e.userLock(userID)
		lock.Lock()

		p, err := e.store.Get(ctx, userID)
		if err != nil {
			lock.Unlock()
			continue
		}
		pos, ok := p.Positions[event.Symbol]
		if ok {
			e.notifier.Notify(ctx, p, &models.Alert{
				Type:      models.AlertTypeMarketEvent,
				Severity:  models.SeverityWarn,
				UserID:    userID,
				Symbol:    event.Symbol,
				Sector:    pos.Sector,
				Message:   event.Headline,
				Timestamp: time.Now(),
				Meta: map[string]interface{}{
					"kind":     event.Kind,
					"category": event.Category,
					"source":   event.Source,
				},
			})

			price := pos.CurrentPrice
			if quote, ok := e.prices.PeekPrice(event.Symbol); ok {
				price = quote.Price
			}
			if price > 0 {
				e.riskCache.Invalidate(userID, event.Symbol)
				e.updateRisk(ctx, p, pos, price, TriggerEvent, true)
			}
			if err := e.store.Save(ctx, p); err != nil {
				e.logger.Warn("portfolio save failed", utils.UserID(userID), utils.Err(err))
			}
		}
		lock.Unlock()
	}
}

// HandleWebhook форсирует сброс дедупликации и пересчёт по тикеру
// для всех держателей
func (e *Engine) HandleWebhook(ctx context.Context, symbol string) int {
	if e.seen != nil {
		e.seen.ForgetSymbol(symbol)
	}

	holders := e.holders(ctx)[symbol]
	for _, userID := range holders {
		e.cooldowns.Admit(userID, symbol, TriggerWebhook, true)

		lock := e.userLock(userID)
		lock.Lock()

		p, err := e.store.Get(ctx, userID)
		if err != nil {
			lock.Unlock()
			continue
		}
		if pos, ok := p.Positions[symbol]; ok {
			creds := e.decrypt(p)
			if quote, err := e.prices.GetPrice(ctx, symbol, creds); err == nil {
				pos.CurrentPrice = quote.Price
				e.riskCache.Invalidate(userID, symbol)
				e.updateRisk(ctx, p, pos, quote.Price, TriggerWebhook, true)
			}
			e.allocate(ctx, p, true)
			if err := e.store.Save(ctx, p); err != nil {
				e.logger.Warn("portfolio save failed", utils.UserID(userID), utils.Err(err))
			}
		}
		lock.Unlock()
	}
	return len(holders)
}

// Holdings возвращает тикер -> держатели по всем портфелям
// Используется наблюдателем событий и обработчиками триггеров
func (e *Engine) Holdings(ctx context.Context) map[string][]string {
	return e.holders(ctx)
}

func (e *Engine) holders(ctx context.Context) map[string][]string {
	portfolios, err := e.store.All(ctx)
	if err != nil {
		e.logger.Warn("portfolio listing failed", utils.Err(err))
		return nil
	}
	holders := make(map[string][]string)
	for _, p := range portfolios {
		for symbol := range p.Positions {
			holders[symbol] = append(holders[symbol], p.UserID)
		}
	}
	return holders
}

// SyncStreamSubscriptions согласует подписки потока котировок
// с множеством отслеживаемых тикеров, в пределах лимита подписок
func (e *Engine) SyncStreamSubscriptions(ctx context.Context) {
	watched := e.holders(ctx)

	// История падений тикеров, которых больше никто не держит
	for _, symbol := range e.drops.Symbols() {
		if _, ok := watched[symbol]; !ok {
			e.drops.Forget(symbol)
		}
	}

	if e.stream == nil {
		return
	}

	for _, symbol := range e.stream.Symbols() {
		if _, ok := watched[symbol]; !ok {
			e.stream.Unsubscribe(symbol)
		}
	}

	for symbol := range watched {
		if err := e.stream.Subscribe(symbol); err != nil {
			// Лимит подписок: остальные тикеры обслуживает REST опрос
			e.logger.Debug("stream subscribe skipped", utils.Symbol(symbol), utils.Err(err))
		}
	}
}

// DropUser сбрасывает всё состояние мониторинга пользователя
func (e *Engine) DropUser(userID string) {
	e.cooldowns.DropUser(userID)
	e.riskCache.DropUser(userID)
	e.userLocks.Delete(userID)
}

func (e *Engine) userLock(userID string) *sync.Mutex {
	lock, _ := e.userLocks.LoadOrStore(userID, &sync.Mutex{})
	return lock.(*sync.Mutex)
}

// riskSeverity отображает оценку в серьёзность уведомления
func riskSeverity(score int) string {
	switch {
	case score >= 8:
		return models.SeverityCritical
	case score >= 6:
		return models.SeverityWarn
	default:
		return models.SeverityInfo
	}
}
