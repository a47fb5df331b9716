// Package provider предоставляет унифицированный интерфейс для работы
// с провайдерами рыночных данных (котировки, свечи, фундаментал, новости).
package provider

import (
	"context"
	"errors"
	"time"

	"stockwatch/internal/models"
)

// Ошибки провайдеров
var (
	// ErrRateLimited - провайдер вернул 429; сигнал для fallback на
	// следующий источник, retry внутри провайдера не выполняется
	ErrRateLimited = errors.New("provider rate limit exceeded")

	// ErrSymbolNotFound - провайдер не знает такой тикер
	ErrSymbolNotFound = errors.New("symbol not found")

	// ErrNoData - запрос прошёл, но данных нет (нет свечей, нет отчётностей)
	ErrNoData = errors.New("no data available")

	// ErrUnsupported - провайдер не поддерживает этот endpoint
	// (например, sentiment на free tier)
	ErrUnsupported = errors.New("endpoint not supported by provider")
)

// Quote - текущая цена инструмента
type Quote struct {
	Symbol    string    `json:"symbol"`
	Price     float64   `json:"price"`
	PrevClose float64   `json:"prevClose,omitempty"`
	Source    string    `json:"source"`
	Timestamp time.Time `json:"timestamp"`
}

// Candles - серия дневных свечей (только то, что нужно риск-движку)
type Candles struct {
	Symbol     string    `json:"symbol"`
	Closes     []float64 `json:"closes"`
	Timestamps []int64   `json:"timestamps"`
}

// Fundamentals - фундаментальные метрики для риск-сигналов
type Fundamentals struct {
	Symbol string `json:"symbol"`

	// Долг / собственный капитал (leverage)
	DebtToEquity float64 `json:"debtToEquity"`

	// Покрытие процентных платежей (interest coverage)
	InterestCoverage float64 `json:"interestCoverage"`
}

// Sentiment - агрегированный сентимент новостного потока
type Sentiment struct {
	Symbol string `json:"symbol"`

	// [0,1], 1 = максимально bullish
	BullishScore float64 `json:"bullishScore"`
}

// QuoteSource - минимальный источник цены.
//
// Реализации: Finnhub (generic), Alpaca (брокерский, с credentials).
// Ошибка ErrRateLimited трактуется вызывающим кодом как сигнал fallback.
type QuoteSource interface {
	// Name возвращает имя источника (попадает в Quote.Source и метрики)
	Name() string

	// GetQuote получает текущую цену инструмента
	GetQuote(ctx context.Context, symbol string) (*Quote, error)
}

// BrokerSource - брокерский источник: котировки под credentials пользователя
type BrokerSource interface {
	Name() string

	// GetQuoteWithCreds получает цену под брокерскими ключами пользователя
	GetQuoteWithCreds(ctx context.Context, symbol string, creds *models.BrokerCredentials) (*Quote, error)
}

// DataProvider - полный провайдер данных для риск-движка и event watcher
type DataProvider interface {
	QuoteSource

	// GetCandles получает дневные свечи за период
	GetCandles(ctx context.Context, symbol string, from, to time.Time) (*Candles, error)

	// GetFundamentals получает метрики фундаментала
	GetFundamentals(ctx context.Context, symbol string) (*Fundamentals, error)

	// GetNews получает новости по инструменту за период
	GetNews(ctx context.Context, symbol string, from, to time.Time) ([]*models.MarketEvent, error)

	// GetLatestEarnings получает последнюю отчётность
	GetLatestEarnings(ctx context.Context, symbol string) (*models.MarketEvent, error)

	// GetSentiment получает сентимент новостного потока.
	// Может вернуть ErrUnsupported - у вызывающего есть keyword fallback.
	GetSentiment(ctx context.Context, symbol string) (*Sentiment, error)
}

// IsRateLimited проверяет, является ли ошибка сигналом rate limit
func IsRateLimited(err error) bool {
	return errors.Is(err, ErrRateLimited)
}
