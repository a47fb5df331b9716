package service

import (
	"context"
	"fmt"
	"sync"

	"stockwatch/internal/market"
	"stockwatch/internal/risk"
	"stockwatch/pkg/utils"
)

// Лимит тикеров в одном bulk запросе
const bulkLimit = 50

// Параллелизм bulk скоринга: один тикер стоит нескольких
// запросов к провайдеру, весь запрос целиком гнать нельзя
const bulkWorkers = 8

// QuoteService - ad-hoc скоринг без привязки к хранимым портфелям
//
// Обслуживает GET /risk/{ticker} и POST /risk/bulk: цена через общий
// ценовой сервис (без брокерских ключей), оценка через движок риска.
// Кулдауны мониторинга эти запросы не трогают.
type QuoteService struct {
	prices *market.PriceService
	scorer *risk.Engine
	logger *utils.Logger
}

// BulkRiskItem - результат скоринга одного тикера в bulk запросе
type BulkRiskItem struct {
	Symbol string       `json:"symbol"`
	Price  float64      `json:"price,omitempty"`
	Risk   *risk.Result `json:"risk,omitempty"`
	Error  string       `json:"error,omitempty"`
}

// NewQuoteService создает сервис ad-hoc скоринга
func NewQuoteService(prices *market.PriceService, scorer *risk.Engine, logger *utils.Logger) *QuoteService {
	if logger == nil {
		logger = utils.GetGlobalLogger()
	}
	return &QuoteService{
		prices: prices,
		scorer: scorer,
		logger: logger.WithComponent("quotes"),
	}
}

// RiskForTicker возвращает цену и оценку риска одного тикера
func (s *QuoteService) RiskForTicker(ctx context.Context, rawSymbol string) (float64, *risk.Result, error) {
	symbol := utils.NormalizeSymbol(rawSymbol)
	if err := utils.ValidateSymbol(symbol); err != nil {
		return 0, nil, err
	}

	quote, err := s.prices.GetPrice(ctx, symbol, nil)
	if err != nil {
		return 0, nil, err
	}

	return quote.Price, s.scorer.Score(ctx, symbol, quote.Price), nil
}

// RiskBulk оценивает до bulkLimit тикеров за один вызов.
// Тикеры скорятся параллельно (не больше bulkWorkers одновременно),
// порядок элементов ответа совпадает с порядком запроса. Отказ по
// одному тикеру попадает в его элемент, остальные обрабатываются дальше.
func (s *QuoteService) RiskBulk(ctx context.Context, symbols []string) ([]BulkRiskItem, error) {
	if len(symbols) == 0 {
		return nil, fmt.Errorf("tickers list is empty")
	}
	if len(symbols) > bulkLimit {
		return nil, fmt.Errorf("too many tickers: %d (limit %d)", len(symbols), bulkLimit)
	}

	items := make([]BulkRiskItem, len(symbols))
	sem := make(chan struct{}, bulkWorkers)
	var wg sync.WaitGroup

	for i, raw := range symbols {
		symbol := utils.NormalizeSymbol(raw)
		items[i] = BulkRiskItem{Symbol: symbol}

		if err := utils.ValidateSymbol(symbol); err != nil {
			items[i].Error = err.Error()
			continue
		}

		wg.Add(1)
		go func(i int, symbol string) {
			defer wg.Done()

			sem <- struct{}{}
			defer func() { <-sem }()

			if err := ctx.Err(); err != nil {
				items[i].Error = err.Error()
				return
			}

			price, result, err := s.RiskForTicker(ctx, symbol)
			if err != nil {
				items[i].Error = err.Error()
				return
			}
			items[i].Price = price
			items[i].Risk = result
		}(i, symbol)
	}

	wg.Wait()
	return items, nil
}
