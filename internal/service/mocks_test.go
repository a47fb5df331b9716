package service

import (
	"context"
	"sync"
	"time"

	"stockwatch/internal/models"
	"stockwatch/internal/monitor"
	"stockwatch/internal/provider"
	"stockwatch/internal/repository"
)

// ============================================================
// Ручные моки зависимостей сервисного слоя
// ============================================================

type mockStore struct {
	mu         sync.Mutex
	portfolios map[string]*models.Portfolio
	saveErr    error
}

func newMockStore() *mockStore {
	return &mockStore{portfolios: make(map[string]*models.Portfolio)}
}

func (m *mockStore) All(ctx context.Context) ([]*models.Portfolio, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*models.Portfolio, 0, len(m.portfolios))
	for _, p := range m.portfolios {
		out = append(out, p)
	}
	return out, nil
}

func (m *mockStore) Get(ctx context.Context, userID string) (*models.Portfolio, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.portfolios[userID]
	if !ok {
		return nil, repository.ErrPortfolioNotFound
	}
	return p, nil
}

func (m *mockStore) Save(ctx context.Context, p *models.Portfolio) error {
	if m.saveErr != nil {
		return m.saveErr
	}
	m.mu.Lock()
	m.portfolios[p.UserID] = p
	m.mu.Unlock()
	return nil
}

func (m *mockStore) Delete(ctx context.Context, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.portfolios[userID]; !ok {
		return repository.ErrPortfolioNotFound
	}
	delete(m.portfolios, userID)
	return nil
}

type mockMonitor struct {
	mu            sync.Mutex
	processed     []string
	forced        []bool
	dropped       []string
	webhookCalls  []string
	webhookResult int
	done          chan struct{}
}

func newMockMonitor() *mockMonitor {
	return &mockMonitor{done: make(chan struct{}, 8)}
}

func (m *mockMonitor) ProcessUser(ctx context.Context, userID string, kind monitor.TriggerKind, force bool) error {
	m.mu.Lock()
	m.processed = append(m.processed, userID)
	m.forced = append(m.forced, force)
	m.mu.Unlock()
	m.done <- struct{}{}
	return nil
}

func (m *mockMonitor) HandleWebhook(ctx context.Context, symbol string) int {
	m.mu.Lock()
	m.webhookCalls = append(m.webhookCalls, symbol)
	m.mu.Unlock()
	return m.webhookResult
}

func (m *mockMonitor) DropUser(userID string) {
	m.mu.Lock()
	m.dropped = append(m.dropped, userID)
	m.mu.Unlock()
}

func (m *mockMonitor) waitProcessed(timeout time.Duration) bool {
	select {
	case <-m.done:
		return true
	case <-time.After(timeout):
		return false
	}
}

// fixedQuoteSource - источник котировок с фиксированной ценой
type fixedQuoteSource struct {
	price float64
	err   error
}

func (s *fixedQuoteSource) Name() string { return "fixed" }

func (s *fixedQuoteSource) GetQuote(ctx context.Context, symbol string) (*provider.Quote, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &provider.Quote{Symbol: symbol, Price: s.price, Source: "fixed", Timestamp: time.Now()}, nil
}

// flatData - провайдер истории с плоским рядом цен
type flatData struct{}

func (flatData) Name() string { return "flat" }

func (flatData) GetQuote(ctx context.Context, symbol string) (*provider.Quote, error) {
	return nil, provider.ErrNoData
}

func (flatData) GetCandles(ctx context.Context, symbol string, from, to time.Time) (*provider.Candles, error) {
	closes := make([]float64, 60)
	for i := range closes {
		closes[i] = 100 + float64(i%2)
	}
	return &provider.Candles{Symbol: symbol, Closes: closes}, nil
}

func (flatData) GetFundamentals(ctx context.Context, symbol string) (*provider.Fundamentals, error) {
	return &provider.Fundamentals{Symbol: symbol, DebtToEquity: 1, InterestCoverage: 5}, nil
}

func (flatData) GetNews(ctx context.Context, symbol string, from, to time.Time) ([]*models.MarketEvent, error) {
	return nil, nil
}

func (flatData) GetLatestEarnings(ctx context.Context, symbol string) (*models.MarketEvent, error) {
	return nil, provider.ErrNoData
}

func (flatData) GetSentiment(ctx context.Context, symbol string) (*provider.Sentiment, error) {
	return nil, provider.ErrUnsupported
}
