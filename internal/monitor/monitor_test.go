package monitor

import (
	"math"
	"testing"
	"time"

	"stockwatch/internal/models"
	"stockwatch/internal/risk"
)

// ============================================================
// CooldownController
// ============================================================

func TestCooldownSuppressesSecondTrigger(t *testing.T) {
	c := NewCooldownController(map[TriggerKind]time.Duration{
		TriggerPeriodic: 15 * time.Minute,
	})
	now := time.Now()
	c.now = func() time.Time { return now }

	if !c.Admit("u1", "AAPL", TriggerPeriodic, false) {
		t.Fatal("first trigger must pass")
	}
	if c.Admit("u1", "AAPL", TriggerPeriodic, false) {
		t.Error("second trigger inside the window must be suppressed")
	}

	// После истечения окна триггер проходит снова
	now = now.Add(16 * time.Minute)
	if !c.Admit("u1", "AAPL", TriggerPeriodic, false) {
		t.Error("trigger after the window must pass")
	}
}

func TestCooldownForcedBypassesAndRearms(t *testing.T) {
	c := NewCooldownController(map[TriggerKind]time.Duration{
		TriggerEvent: 5 * time.Minute,
	})
	now := time.Now()
	c.now = func() time.Time { return now }

	if !c.Admit("u1", "AAPL", TriggerEvent, false) {
		t.Fatal("first trigger must pass")
	}

	// Форсированный проходит сквозь cooling
	now = now.Add(time.Minute)
	if !c.Admit("u1", "AAPL", TriggerEvent, true) {
		t.Fatal("forced trigger must bypass the window")
	}

	// ...но заново взводит окно: спустя 4.5 минуты от первого триггера
	// (3.5 от форсированного) неформированный всё ещё блокирован
	now = now.Add(3*time.Minute + 30*time.Second)
	if c.Admit("u1", "AAPL", TriggerEvent, false) {
		t.Error("forced trigger must re-arm the window")
	}
}

func TestCooldownKeysIndependent(t *testing.T) {
	c := NewCooldownController(map[TriggerKind]time.Duration{
		TriggerPeriodic: 15 * time.Minute,
		TriggerEvent:    5 * time.Minute,
	})

	if !c.Admit("u1", "AAPL", TriggerPeriodic, false) {
		t.Fatal("first trigger must pass")
	}

	// Другой вид, другой тикер, другой пользователь - свои окна
	if !c.Admit("u1", "AAPL", TriggerEvent, false) {
		t.Error("different trigger kind must have its own window")
	}
	if !c.Admit("u1", "MSFT", TriggerPeriodic, false) {
		t.Error("different symbol must have its own window")
	}
	if !c.Admit("u2", "AAPL", TriggerPeriodic, false) {
		t.Error("different user must have its own window")
	}
}

func TestCooldownConcurrentAdmits(t *testing.T) {
	// Одновременные триггеры по одному ключу: проходит ровно один
	c := NewCooldownController(map[TriggerKind]time.Duration{
		TriggerPeriodic: time.Minute,
	})

	const goroutines = 20
	results := make(chan bool, goroutines)
	for i := 0; i < goroutines; i++ {
		go func() {
			results <- c.Admit("u1", "AAPL", TriggerPeriodic, false)
		}()
	}

	var admitted int
	for i := 0; i < goroutines; i++ {
		if <-results {
			admitted++
		}
	}
	if admitted != 1 {
		t.Errorf("expected exactly 1 admitted trigger, got %d", admitted)
	}
}

// ============================================================
// RiskCache
// ============================================================

func TestRiskCacheDeltaInvalidation(t *testing.T) {
	cache := NewRiskCache(4.0)
	result := &risk.Result{Symbol: "AAPL", Score: 7}

	cache.Put("u1", "AAPL", 100, result)

	// Цена в пределах порога - кэш живой
	if _, ok := cache.Get("u1", "AAPL", 103); !ok {
		t.Error("expected cache hit within delta threshold")
	}
	if _, ok := cache.Get("u1", "AAPL", 97); !ok {
		t.Error("expected cache hit on small move down")
	}

	// Цена ушла дальше порога - кэш инвалидирован
	if _, ok := cache.Get("u1", "AAPL", 105); ok {
		t.Error("expected cache miss past delta threshold")
	}
	if _, ok := cache.Get("u1", "AAPL", 94); ok {
		t.Error("expected cache miss on large move down")
	}
}

func TestRiskCachePerUser(t *testing.T) {
	cache := NewRiskCache(4.0)
	cache.Put("u1", "AAPL", 100, &risk.Result{Score: 7})

	if _, ok := cache.Get("u2", "AAPL", 100); ok {
		t.Error("cache entries must be per-user")
	}

	cache.DropUser("u1")
	if _, ok := cache.Get("u1", "AAPL", 100); ok {
		t.Error("expected miss after DropUser")
	}
}

// ============================================================
// AllocateStopLosses
// ============================================================

func TestAllocateStopLossesBudgetSplit(t *testing.T) {
	// Портфель $10,000, веса риска 70/30, max-loss 5% ->
	// общий бюджет $500, позиция с весом 70% получает $350
	p := &models.Portfolio{
		UserID: "u1",
		Positions: map[string]*models.Position{
			"AAPL": {Symbol: "AAPL", Shares: 70, EntryPrice: 100, CurrentPrice: 100, RiskScore: 7},
			"MSFT": {Symbol: "MSFT", Shares: 30, EntryPrice: 100, CurrentPrice: 100, RiskScore: 3},
		},
	}

	updates := AllocateStopLosses(p, 5.0, 0.01)
	if len(updates) != 2 {
		t.Fatalf("expected 2 updates, got %d", len(updates))
	}

	bymSymbol := make(map[string]StopLossUpdate)
	for _, u := range updates {
		bymSymbol[u.Symbol] = u
	}

	if got := bymSymbol["AAPL"].AllocatedLoss; math.Abs(got-350) > 1e-9 {
		t.Errorf("expected $350 allocated to the 70%% position, got %v", got)
	}
	if got := bymSymbol["MSFT"].AllocatedLoss; math.Abs(got-150) > 1e-9 {
		t.Errorf("expected $150 allocated to the 30%% position, got %v", got)
	}

	// Сумма весов равна 1
	sum := bymSymbol["AAPL"].Weight + bymSymbol["MSFT"].Weight
	if math.Abs(sum-1.0) > 1e-9 {
		t.Errorf("weights must sum to 1, got %v", sum)
	}

	// AAPL: позиция $7000, убыток $350 -> доля 5%, стоп 95.00
	if got := p.Positions["AAPL"].StopLoss; math.Abs(got-95.00) > 1e-9 {
		t.Errorf("expected AAPL stop 95.00, got %v", got)
	}
	// MSFT: позиция $3000, убыток $150 -> доля 5%, стоп 95.00
	if got := p.Positions["MSFT"].StopLoss; math.Abs(got-95.00) > 1e-9 {
		t.Errorf("expected MSFT stop 95.00, got %v", got)
	}
}

func TestAllocateStopLossesUniformWhenUnscored(t *testing.T) {
	p := &models.Portfolio{
		UserID: "u1",
		Positions: map[string]*models.Position{
			"AAPL": {Symbol: "AAPL", Shares: 10, EntryPrice: 100, CurrentPrice: 100},
			"MSFT": {Symbol: "MSFT", Shares: 10, EntryPrice: 200, CurrentPrice: 200},
		},
	}

	updates := AllocateStopLosses(p, 5.0, 0.01)
	if len(updates) != 2 {
		t.Fatalf("expected 2 updates, got %d", len(updates))
	}

	// Без оценок риска веса равные
	for _, u := range updates {
		if math.Abs(u.Weight-0.5) > 1e-9 {
			t.Errorf("%s: expected uniform weight 0.5, got %v", u.Symbol, u.Weight)
		}
	}
}

func TestAllocateStopLossesEpsilonGate(t *testing.T) {
	p := &models.Portfolio{
		UserID: "u1",
		Positions: map[string]*models.Position{
			"AAPL": {Symbol: "AAPL", Shares: 10, EntryPrice: 100, CurrentPrice: 100, RiskScore: 5, StopLoss: 95.00},
		},
	}

	// Пересчёт даёт тот же стоп 95.00 - обновления нет
	updates := AllocateStopLosses(p, 5.0, 0.01)
	if len(updates) != 0 {
		t.Errorf("unchanged stop must not produce an update, got %d", len(updates))
	}

	// Существенно другой бюджет - обновление есть
	updates = AllocateStopLosses(p, 10.0, 0.01)
	if len(updates) != 1 {
		t.Fatalf("expected 1 update after budget change, got %d", len(updates))
	}
	if updates[0].OldStop != 95.00 {
		t.Errorf("expected old stop 95.00, got %v", updates[0].OldStop)
	}
}

func TestAllocateStopLossesSkipsUnpriced(t *testing.T) {
	p := &models.Portfolio{
		UserID: "u1",
		Positions: map[string]*models.Position{
			"AAPL": {Symbol: "AAPL", Shares: 10, EntryPrice: 100, CurrentPrice: 100, RiskScore: 5},
			"MSFT": {Symbol: "MSFT", Shares: 10, EntryPrice: 200, RiskScore: 9}, // цены нет
		},
	}

	updates := AllocateStopLosses(p, 5.0, 0.01)
	if len(updates) != 1 {
		t.Fatalf("expected 1 update (unpriced position skipped), got %d", len(updates))
	}
	if updates[0].Symbol != "AAPL" {
		t.Errorf("expected AAPL update, got %s", updates[0].Symbol)
	}
	// Вес единственной оценённой позиции равен 1
	if math.Abs(updates[0].Weight-1.0) > 1e-9 {
		t.Errorf("expected weight 1 for the only priced position, got %v", updates[0].Weight)
	}
}

func TestAllocateStopLossesEmptyOrWorthless(t *testing.T) {
	if got := AllocateStopLosses(nil, 5.0, 0.01); got != nil {
		t.Error("nil portfolio must yield no updates")
	}

	p := &models.Portfolio{UserID: "u1", Positions: map[string]*models.Position{}}
	if got := AllocateStopLosses(p, 5.0, 0.01); got != nil {
		t.Error("empty portfolio must yield no updates")
	}

	p = &models.Portfolio{
		UserID: "u1",
		Positions: map[string]*models.Position{
			"AAPL": {Symbol: "AAPL", Shares: 0, EntryPrice: 100, CurrentPrice: 100},
		},
	}
	if got := AllocateStopLosses(p, 5.0, 0.01); len(got) != 0 {
		t.Error("zero-value portfolio must yield no updates")
	}
}

// ============================================================
// DropWatcher
// ============================================================

func TestDropWatcherDetectsDrop(t *testing.T) {
	w := NewDropWatcher(15*time.Minute, 5.0)
	now := time.Now()
	w.now = func() time.Time { return now }

	w.Observe("AAPL", 100)
	now = now.Add(5 * time.Minute)

	// Падение на 6% от максимума окна
	dropPct, dropped := w.Observe("AAPL", 94)
	if !dropped {
		t.Fatal("6% drop within the window must be detected")
	}
	if math.Abs(dropPct-6.0) > 1e-9 {
		t.Errorf("expected drop of 6%%, got %v", dropPct)
	}
}

func TestDropWatcherIgnoresSmallMoves(t *testing.T) {
	w := NewDropWatcher(15*time.Minute, 5.0)
	now := time.Now()
	w.now = func() time.Time { return now }

	w.Observe("AAPL", 100)
	now = now.Add(time.Minute)

	if _, dropped := w.Observe("AAPL", 96); dropped {
		t.Error("4% move must not trigger with a 5% threshold")
	}
	if _, dropped := w.Observe("AAPL", 101); dropped {
		t.Error("upward move must not trigger")
	}
}

func TestDropWatcherWindowExpiry(t *testing.T) {
	w := NewDropWatcher(15*time.Minute, 5.0)
	now := time.Now()
	w.now = func() time.Time { return now }

	w.Observe("AAPL", 100)

	// Пик вышел из окна - сравнивать не с чем
	now = now.Add(20 * time.Minute)
	if _, dropped := w.Observe("AAPL", 90); dropped {
		t.Error("peak outside the window must not count")
	}
}

// ============================================================
// SeenEvents
// ============================================================

func TestSeenEventsDedup(t *testing.T) {
	s := NewSeenEvents(24 * time.Hour)
	now := time.Now()
	s.now = func() time.Time { return now }

	if !s.MarkIfNovel("AAPL:101") {
		t.Fatal("first occurrence must be novel")
	}

	// Та же идентичность в пределах 24 часов подавляется
	now = now.Add(12 * time.Hour)
	if s.MarkIfNovel("AAPL:101") {
		t.Error("identity repeated within 24h must be suppressed")
	}

	// За пределами окна - снова новая
	now = now.Add(13 * time.Hour)
	if !s.MarkIfNovel("AAPL:101") {
		t.Error("identity past the window must be novel again")
	}
}

func TestSeenEventsForgetSymbol(t *testing.T) {
	s := NewSeenEvents(24 * time.Hour)

	s.MarkIfNovel("AAPL:101")
	s.MarkIfNovel("AAPL|headline|company|1700000000")
	s.MarkIfNovel("MSFT:202")

	s.ForgetSymbol("AAPL")

	if !s.MarkIfNovel("AAPL:101") {
		t.Error("native-id identity must be novel after ForgetSymbol")
	}
	if !s.MarkIfNovel("AAPL|headline|company|1700000000") {
		t.Error("composite identity must be novel after ForgetSymbol")
	}
	if s.MarkIfNovel("MSFT:202") {
		t.Error("other symbols must be unaffected")
	}
}

func TestSeenEventsEvict(t *testing.T) {
	s := NewSeenEvents(24 * time.Hour)
	now := time.Now()
	s.now = func() time.Time { return now }

	s.MarkIfNovel("AAPL:101")
	s.MarkIfNovel("AAPL:102")

	now = now.Add(25 * time.Hour)
	s.MarkIfNovel("AAPL:103")
	s.Evict()

	if s.Size() != 1 {
		t.Errorf("expected 1 identity after eviction, got %d", s.Size())
	}
}
