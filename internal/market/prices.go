// Package market отвечает за получение цен: цепочка источников
// с fallback и TTL кэш со слиянием одновременных запросов.
package market

import (
	"context"
	"errors"
	"fmt"
	"time"

	"stockwatch/internal/models"
	"stockwatch/internal/provider"
	"stockwatch/pkg/utils"
)

// ErrPriceUnavailable - все источники цены отказали
var ErrPriceUnavailable = errors.New("price unavailable from all sources")

// PriceService - получение цен с fallback между источниками
//
// Порядок источников:
//  1. Брокер пользователя (Alpaca), если у портфеля есть ключи
//  2. Общий источник (Finnhub)
//
// Когда отказали оба, возвращается ErrPriceUnavailable - вызывающий
// пропускает тикер в этом проходе, это не фатальная ошибка.
type PriceService struct {
	generic provider.QuoteSource
	broker  provider.BrokerSource
	cache   *PriceCache
	logger  *utils.Logger
}

// NewPriceService создает сервис цен
// broker может быть nil - тогда работает только общий источник
func NewPriceService(generic provider.QuoteSource, broker provider.BrokerSource, cacheTTL time.Duration, logger *utils.Logger) *PriceService {
	if logger == nil {
		logger = utils.GetGlobalLogger()
	}
	return &PriceService{
		generic: generic,
		broker:  broker,
		cache:   NewPriceCache(cacheTTL),
		logger:  logger.WithComponent("market"),
	}
}

// GetPrice возвращает текущую котировку тикера
// creds - расшифрованные ключи брокера пользователя, допускается nil
func (s *PriceService) GetPrice(ctx context.Context, symbol string, creds *models.BrokerCredentials) (*provider.Quote, error) {
	return s.cache.Get(ctx, symbol, func(ctx context.Context) (*provider.Quote, error) {
		return s.fetch(ctx, symbol, creds)
	})
}

// fetch обходит цепочку источников
func (s *PriceService) fetch(ctx context.Context, symbol string, creds *models.BrokerCredentials) (*provider.Quote, error) {
	var brokerErr error

	if s.broker != nil && creds != nil && creds.APIKey != "" {
		quote, err := s.broker.GetQuoteWithCreds(ctx, symbol, creds)
		if err == nil {
			metricFetches.WithLabelValues(s.broker.Name(), "ok").Inc()
			return quote, nil
		}
		brokerErr = err
		metricFetches.WithLabelValues(s.broker.Name(), "error").Inc()
		s.logger.Debug("broker source failed, falling back",
			utils.Symbol(symbol),
			utils.Source(s.broker.Name()),
			utils.Err(err))
	}

	quote, err := s.generic.GetQuote(ctx, symbol)
	if err == nil {
		metricFetches.WithLabelValues(s.generic.Name(), "ok").Inc()
		return quote, nil
	}
	metricFetches.WithLabelValues(s.generic.Name(), "error").Inc()

	if brokerErr != nil {
		return nil, fmt.Errorf("%w: %s: %v; %s: %v",
			ErrPriceUnavailable, s.broker.Name(), brokerErr, s.generic.Name(), err)
	}
	return nil, fmt.Errorf("%w: %s: %v", ErrPriceUnavailable, s.generic.Name(), err)
}

// PutTick обновляет кэш ценой из потока сделок
func (s *PriceService) PutTick(tick provider.Tick) {
	s.cache.Put(&provider.Quote{
		Symbol:    tick.Symbol,
		Price:     tick.Price,
		Source:    "stream",
		Timestamp: tick.Timestamp,
	})
}

// PeekPrice возвращает свежую цену из кэша без похода к провайдеру
func (s *PriceService) PeekPrice(symbol string) (*provider.Quote, bool) {
	return s.cache.Peek(symbol)
}

// Cache открывает кэш для метрик
func (s *PriceService) Cache() *PriceCache {
	return s.cache
}
