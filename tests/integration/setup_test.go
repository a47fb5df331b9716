// Package integration contains integration tests for the portfolio
// risk monitoring server.
//
// These tests verify the correct interaction between components:
// - API integration tests: full HTTP request cycle through all layers
//   Handler → Service → Monitor Engine → Repository
// - SSE tests: subscription, alert delivery, webhook-triggered recompute
//
// External market data is stubbed; the portfolio store is the in-memory
// implementation, so the suite runs without network or database.
package integration

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"

	"stockwatch/internal/api"
	"stockwatch/internal/config"
	"stockwatch/internal/market"
	"stockwatch/internal/models"
	"stockwatch/internal/monitor"
	"stockwatch/internal/notify"
	"stockwatch/internal/provider"
	"stockwatch/internal/repository"
	"stockwatch/internal/risk"
	"stockwatch/internal/service"
	"stockwatch/internal/stream"
)

const testWebhookSecret = "integration-test-secret"

// testEncryptionKey ровно 32 байта для AES-256
const testEncryptionKey = "0123456789abcdef0123456789abcdef"

// stubMarketData - детерминированный провайдер рыночных данных.
// Цены фиксированы таблицей, свечи синтетические.
type stubMarketData struct {
	prices map[string]float64
}

func (s *stubMarketData) Name() string { return "stub" }

func (s *stubMarketData) GetQuote(ctx context.Context, symbol string) (*provider.Quote, error) {
	price, ok := s.prices[symbol]
	if !ok {
		return nil, provider.ErrSymbolNotFound
	}
	return &provider.Quote{
		Symbol:    symbol,
		Price:     price,
		PrevClose: price * 0.99,
		Source:    "stub",
		Timestamp: time.Now(),
	}, nil
}

func (s *stubMarketData) GetCandles(ctx context.Context, symbol string, from, to time.Time) (*provider.Candles, error) {
	base, ok := s.prices[symbol]
	if !ok {
		return nil, provider.ErrNoData
	}

	candles := &provider.Candles{Symbol: symbol}
	i := 0
	for day := from; day.Before(to); day = day.Add(24 * time.Hour) {
		// Небольшая знакопеременная волатильность вокруг базовой цены
		swing := 0.01 * base
		if i%2 == 0 {
			swing = -swing
		}
		candles.Closes = append(candles.Closes, base+swing)
		candles.Timestamps = append(candles.Timestamps, day.Unix())
		i++
	}
	return candles, nil
}

func (s *stubMarketData) GetFundamentals(ctx context.Context, symbol string) (*provider.Fundamentals, error) {
	return &provider.Fundamentals{Symbol: symbol, DebtToEquity: 0.8, InterestCoverage: 6.0}, nil
}

func (s *stubMarketData) GetNews(ctx context.Context, symbol string, from, to time.Time) ([]*models.MarketEvent, error) {
	return nil, nil
}

func (s *stubMarketData) GetLatestEarnings(ctx context.Context, symbol string) (*models.MarketEvent, error) {
	return nil, provider.ErrNoData
}

func (s *stubMarketData) GetSentiment(ctx context.Context, symbol string) (*provider.Sentiment, error) {
	return &provider.Sentiment{Symbol: symbol, BullishScore: 0.55}, nil
}

// TestServer encapsulates all components needed for integration testing
type TestServer struct {
	Store            repository.PortfolioRepository
	Hub              *stream.Hub
	Engine           *monitor.Engine
	PortfolioService *service.PortfolioService
	QuoteService     *service.QuoteService
	Server           *httptest.Server
	Cleanup          func()
}

// SetupTestServer wires the full stack on top of stubbed market data
func SetupTestServer(t *testing.T) *TestServer {
	t.Helper()

	data := &stubMarketData{prices: map[string]float64{
		"AAPL": 189.50,
		"MSFT": 410.20,
		"TSLA": 242.80,
		"SPY":  520.00,
	}}

	store := repository.NewMemoryPortfolioRepository()
	prices := market.NewPriceService(data, nil, 100*time.Millisecond, nil)
	scorer := risk.NewEngine(data, "SPY", nil)

	hub := stream.NewHub(time.Hour, nil)
	dispatcher := notify.NewDispatcher(hub, notify.NewEmailSender(notifyConfigDisabled()), notify.NewPushSender(nil, time.Second), nil)

	seen := monitor.NewSeenEvents(24 * time.Hour)

	var portfolioService *service.PortfolioService

	engine := monitor.NewEngine(monitor.Deps{
		Config:   testMonitorConfig(),
		Store:    store,
		Prices:   prices,
		Scorer:   scorer,
		Notifier: dispatcher,
		Seen:     seen,
		DecryptCreds: func(p *models.Portfolio) *models.BrokerCredentials {
			return portfolioService.DecryptCreds(p)
		},
	})
	portfolioService = service.NewPortfolioService(store, engine, []byte(testEncryptionKey), nil)

	quoteService := service.NewQuoteService(prices, scorer, nil)

	router := api.SetupRoutes(&api.Dependencies{
		PortfolioService: portfolioService,
		QuoteService:     quoteService,
		Hub:              hub,
		WebhookSecret:    testWebhookSecret,
	})

	server := httptest.NewServer(router)

	return &TestServer{
		Store:            store,
		Hub:              hub,
		Engine:           engine,
		PortfolioService: portfolioService,
		QuoteService:     quoteService,
		Server:           server,
		Cleanup: func() {
			server.Close()
			hub.Stop()
		},
	}
}

func testMonitorConfig() config.MonitorConfig {
	return config.MonitorConfig{
		TickInterval:       time.Minute,
		RiskCooldown:       15 * time.Minute,
		EventCooldown:      5 * time.Minute,
		AllocationCooldown: 10 * time.Minute,
		PriceDeltaPct:      4.0,
		DropAlertPct:       5.0,
		DropWindow:         15 * time.Minute,
		LogThrottle:        5 * time.Minute,
		EventPollInterval:  5 * time.Minute,
		EventDedupWindow:   24 * time.Hour,
		PriceCacheTTL:      100 * time.Millisecond,
		KeepAliveInterval:  time.Hour,
		StopEpsilon:        0.01,
		StreamSymbolCap:    50,
		DefaultMaxLossPct:  5.0,
	}
}

func notifyConfigDisabled() config.NotifyConfig {
	// SMTP не настроен: email канал молча пропускается
	return config.NotifyConfig{}
}
