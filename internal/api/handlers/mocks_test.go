package handlers

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"stockwatch/internal/market"
	"stockwatch/internal/models"
	"stockwatch/internal/repository"
	"stockwatch/internal/risk"
	"stockwatch/internal/service"
)

// ErrMockInternal общая ошибка для негативных сценариев
var ErrMockInternal = errors.New("mock internal error")

// ============ Mock Portfolio Service ============

// MockPortfolioService мок для PortfolioServiceInterface
type MockPortfolioService struct {
	portfolios map[string]*models.Portfolio
	endpoints  map[string]string
	updateErr  error
	getErr     error
	mu         sync.Mutex
}

// NewMockPortfolioService создает новый мок портфельного сервиса
func NewMockPortfolioService() *MockPortfolioService {
	return &MockPortfolioService{
		portfolios: make(map[string]*models.Portfolio),
		endpoints:  make(map[string]string),
	}
}

func (m *MockPortfolioService) Update(ctx context.Context, req *service.UpdatePortfolioRequest) (*models.Portfolio, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.updateErr != nil {
		return nil, m.updateErr
	}
	if req.UserID == "" {
		return nil, fmt.Errorf("userId: must not be empty")
	}
	if len(req.Stocks) == 0 {
		return nil, fmt.Errorf("stocks: portfolio must contain at least one position")
	}

	p := &models.Portfolio{
		UserID:          req.UserID,
		Positions:       make(map[string]*models.Position, len(req.Stocks)),
		MaxLossPct:      req.MaxLossPct,
		Email:           req.Email,
		TotalInvestment: req.TotalInvestment,
		UpdatedAt:       time.Now(),
	}
	for symbol, in := range req.Stocks {
		symbol = strings.ToUpper(strings.TrimSpace(symbol))
		p.Positions[symbol] = &models.Position{
			Symbol:     symbol,
			Shares:     in.Shares,
			EntryPrice: in.EntryPrice,
			Sector:     in.Sector,
		}
	}
	if req.BrokerAPIKey != "" {
		p.EncryptedCreds = "encrypted"
	}

	m.portfolios[p.UserID] = p
	return p, nil
}

func (m *MockPortfolioService) Get(ctx context.Context, userID string) (*models.Portfolio, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.getErr != nil {
		return nil, m.getErr
	}
	p, ok := m.portfolios[userID]
	if !ok {
		return nil, repository.ErrPortfolioNotFound
	}
	return p, nil
}

func (m *MockPortfolioService) Subscribe(ctx context.Context, userID, endpoint string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.portfolios[userID]; !ok {
		return repository.ErrPortfolioNotFound
	}
	if endpoint == "" {
		return fmt.Errorf("endpoint is required")
	}
	m.endpoints[userID] = endpoint
	return nil
}

// ============ Mock Quote Service ============

// MockQuoteService мок для QuoteServiceInterface.
// Цены заданы фиксированной таблицей, риск всегда 5.
type MockQuoteService struct {
	prices  map[string]float64
	bulkErr error
}

// NewMockQuoteService создает новый мок с заданными ценами
func NewMockQuoteService(prices map[string]float64) *MockQuoteService {
	return &MockQuoteService{prices: prices}
}

func (m *MockQuoteService) RiskForTicker(ctx context.Context, rawSymbol string) (float64, *risk.Result, error) {
	symbol := strings.ToUpper(strings.TrimSpace(rawSymbol))
	if symbol == "" {
		return 0, nil, fmt.Errorf("symbol must not be empty")
	}
	price, ok := m.prices[symbol]
	if !ok {
		return 0, nil, fmt.Errorf("%s: %w", symbol, market.ErrPriceUnavailable)
	}
	return price, &risk.Result{
		Symbol:     symbol,
		Score:      5,
		Composite:  0.44,
		Factors:    map[string]float64{"volatility": 0.5},
		ComputedAt: time.Now(),
	}, nil
}

func (m *MockQuoteService) RiskBulk(ctx context.Context, symbols []string) ([]service.BulkRiskItem, error) {
	if m.bulkErr != nil {
		return nil, m.bulkErr
	}
	if len(symbols) == 0 {
		return nil, fmt.Errorf("tickers list is empty")
	}
	if len(symbols) > 50 {
		return nil, fmt.Errorf("too many tickers: %d (limit 50)", len(symbols))
	}

	items := make([]service.BulkRiskItem, 0, len(symbols))
	for _, raw := range symbols {
		price, result, err := m.RiskForTicker(ctx, raw)
		item := service.BulkRiskItem{Symbol: strings.ToUpper(strings.TrimSpace(raw))}
		if err != nil {
			item.Error = err.Error()
		} else {
			item.Price = price
			item.Risk = result
		}
		items = append(items, item)
	}
	return items, nil
}

// ============ Mock Webhook Service ============

// MockWebhookService мок для WebhookServiceInterface
type MockWebhookService struct {
	holders int
	err     error
	calls   []string
	mu      sync.Mutex
}

func (m *MockWebhookService) ForceRecompute(ctx context.Context, rawSymbol string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.err != nil {
		return 0, m.err
	}
	m.calls = append(m.calls, strings.ToUpper(strings.TrimSpace(rawSymbol)))
	return m.holders, nil
}
