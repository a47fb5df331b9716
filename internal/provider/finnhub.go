package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"stockwatch/internal/models"
	"stockwatch/pkg/ratelimit"
	"stockwatch/pkg/retry"
)

const (
	// Лимит бесплатного тарифа Finnhub: 30 запросов в секунду
	finnhubRateLimit = 30
	finnhubBurst     = 30
)

// Finnhub реализует интерфейс DataProvider для Finnhub API
//
// Назначение:
//   - котировки (/quote) как запасной источник цен
//   - исторические свечи (/stock/candle) для волатильности и бетты
//   - фундаментальные метрики (/stock/metric) для долговой нагрузки
//   - новости и отчётность для наблюдателя событий
//
// Все запросы проходят через rate limiter, чтобы не упереться
// в HTTP 429 на бесплатном тарифе.
type Finnhub struct {
	apiKey  string
	baseURL string

	httpClient *http.Client
	limiter    *ratelimit.RateLimiter
}

// NewFinnhub создает новый клиент Finnhub
// Использует глобальный HTTP клиент с connection pooling
func NewFinnhub(apiKey, baseURL string) *Finnhub {
	if baseURL == "" {
		baseURL = "https://finnhub.io/api/v1"
	}
	return &Finnhub{
		apiKey:     apiKey,
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: GetGlobalHTTPClient().GetClient(),
		limiter:    ratelimit.NewRateLimiter(finnhubRateLimit, finnhubBurst),
	}
}

func (f *Finnhub) Name() string {
	return "finnhub"
}

// doRequest выполняет GET запрос к Finnhub API с rate limiting и retry
func (f *Finnhub) doRequest(ctx context.Context, endpoint string, params map[string]string) ([]byte, error) {
	query := url.Values{}
	for k, v := range params {
		query.Set(k, v)
	}
	query.Set("token", f.apiKey)
	reqURL := f.baseURL + endpoint + "?" + query.Encode()

	var body []byte

	cfg := retry.NetworkConfig()
	cfg.RetryIf = func(err error) bool {
		// 429 и контекстные ошибки выносим наверх без повторов:
		// rate limit лечится не повтором, а переключением источника
		if IsRateLimited(err) {
			return false
		}
		return retry.RetryIfNotContext(err)
	}

	err := retry.Do(ctx, func() error {
		if err := f.limiter.Wait(ctx); err != nil {
			return err
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
		if err != nil {
			return retry.Permanent(err)
		}

		resp, err := f.httpClient.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		switch resp.StatusCode {
		case http.StatusOK:
			// ok
		case http.StatusTooManyRequests:
			return ErrRateLimited
		case http.StatusForbidden:
			// Премиум эндпоинт на бесплатном тарифе
			return retry.Permanent(ErrUnsupported)
		default:
			err := fmt.Errorf("finnhub: %s returned status %d", endpoint, resp.StatusCode)
			if resp.StatusCode >= 400 && resp.StatusCode < 500 {
				return retry.Permanent(err)
			}
			return err
		}

		body, err = io.ReadAll(resp.Body)
		return err
	}, cfg)
	if err != nil {
		return nil, err
	}
	return body, nil
}

// GetQuote возвращает текущую котировку
// Finnhub возвращает нули по несуществующим тикерам вместо ошибки
func (f *Finnhub) GetQuote(ctx context.Context, symbol string) (*Quote, error) {
	body, err := f.doRequest(ctx, "/quote", map[string]string{"symbol": symbol})
	if err != nil {
		return nil, err
	}

	var raw struct {
		Current   float64 `json:"c"`
		PrevClose float64 `json:"pc"`
		Timestamp int64   `json:"t"`
	}
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("finnhub: parse quote for %s: %w", symbol, err)
	}

	if raw.Current == 0 && raw.Timestamp == 0 {
		return nil, ErrSymbolNotFound
	}

	return &Quote{
		Symbol:    symbol,
		Price:     raw.Current,
		PrevClose: raw.PrevClose,
		Source:    f.Name(),
		Timestamp: time.Unix(raw.Timestamp, 0),
	}, nil
}

// GetCandles возвращает дневные цены закрытия за период
func (f *Finnhub) GetCandles(ctx context.Context, symbol string, from, to time.Time) (*Candles, error) {
	body, err := f.doRequest(ctx, "/stock/candle", map[string]string{
		"symbol":     symbol,
		"resolution": "D",
		"from":       fmt.Sprintf("%d", from.Unix()),
		"to":         fmt.Sprintf("%d", to.Unix()),
	})
	if err != nil {
		return nil, err
	}

	var raw struct {
		Closes     []float64 `json:"c"`
		Timestamps []int64   `json:"t"`
		Status     string    `json:"s"`
	}
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("finnhub: parse candles for %s: %w", symbol, err)
	}

	if raw.Status != "ok" || len(raw.Closes) == 0 {
		return nil, ErrNoData
	}

	return &Candles{
		Symbol:     symbol,
		Closes:     raw.Closes,
		Timestamps: raw.Timestamps,
	}, nil
}

// GetFundamentals возвращает долговые метрики компании
// Отсутствующие метрики остаются нулевыми - скоринг трактует их как нейтральные
func (f *Finnhub) GetFundamentals(ctx context.Context, symbol string) (*Fundamentals, error) {
	body, err := f.doRequest(ctx, "/stock/metric", map[string]string{
		"symbol": symbol,
		"metric": "all",
	})
	if err != nil {
		return nil, err
	}

	var raw struct {
		Metric map[string]interface{} `json:"metric"`
	}
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("finnhub: parse metrics for %s: %w", symbol, err)
	}
	if len(raw.Metric) == 0 {
		return nil, ErrNoData
	}

	fund := &Fundamentals{Symbol: symbol}
	if v, ok := raw.Metric["totalDebt/totalEquityQuarterly"].(float64); ok {
		fund.DebtToEquity = v
	}
	if v, ok := raw.Metric["netInterestCoverageTTM"].(float64); ok {
		fund.InterestCoverage = v
	}
	return fund, nil
}

// GetNews возвращает новости компании за период
func (f *Finnhub) GetNews(ctx context.Context, symbol string, from, to time.Time) ([]*models.MarketEvent, error) {
	body, err := f.doRequest(ctx, "/company-news", map[string]string{
		"symbol": symbol,
		"from":   from.Format("2006-01-02"),
		"to":     to.Format("2006-01-02"),
	})
	if err != nil {
		return nil, err
	}

	var raw []struct {
		ID       int64  `json:"id"`
		Headline string `json:"headline"`
		Category string `json:"category"`
		Source   string `json:"source"`
		Summary  string `json:"summary"`
		Datetime int64  `json:"datetime"`
	}
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("finnhub: parse news for %s: %w", symbol, err)
	}

	events := make([]*models.MarketEvent, 0, len(raw))
	for _, item := range raw {
		if item.Headline == "" {
			continue
		}
		events = append(events, &models.MarketEvent{
			NativeID:    item.ID,
			Symbol:      symbol,
			Kind:        models.EventKindNews,
			Headline:    item.Headline,
			Category:    item.Category,
			Source:      item.Source,
			Summary:     item.Summary,
			PublishedAt: time.Unix(item.Datetime, 0),
		})
	}
	return events, nil
}

// GetLatestEarnings возвращает последний квартальный отчёт
func (f *Finnhub) GetLatestEarnings(ctx context.Context, symbol string) (*models.MarketEvent, error) {
	body, err := f.doRequest(ctx, "/stock/earnings", map[string]string{"symbol": symbol})
	if err != nil {
		return nil, err
	}

	var raw []struct {
		Actual   float64 `json:"actual"`
		Estimate float64 `json:"estimate"`
		Period   string  `json:"period"`
	}
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("finnhub: parse earnings for %s: %w", symbol, err)
	}
	if len(raw) == 0 {
		return nil, ErrNoData
	}

	// Finnhub возвращает кварталы от новых к старым
	latest := raw[0]
	published, _ := time.Parse("2006-01-02", latest.Period)

	return &models.MarketEvent{
		Symbol:      symbol,
		Kind:        models.EventKindEarnings,
		Headline:    fmt.Sprintf("%s earnings: actual %.2f vs estimate %.2f", symbol, latest.Actual, latest.Estimate),
		Category:    "earnings",
		Source:      f.Name(),
		PublishedAt: published,
		EPSActual:   latest.Actual,
		EPSEstimate: latest.Estimate,
	}, nil
}

// GetSentiment возвращает агрегированный новостной сентимент
// На бесплатном тарифе эндпоинт закрыт - возвращаем ErrUnsupported,
// скоринг переключится на свой словарный анализ заголовков
func (f *Finnhub) GetSentiment(ctx context.Context, symbol string) (*Sentiment, error) {
	body, err := f.doRequest(ctx, "/news-sentiment", map[string]string{"symbol": symbol})
	if err != nil {
		return nil, err
	}

	var raw struct {
		Sentiment struct {
			BullishPercent float64 `json:"bullishPercent"`
		} `json:"sentiment"`
	}
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("finnhub: parse sentiment for %s: %w", symbol, err)
	}

	return &Sentiment{
		Symbol:       symbol,
		BullishScore: raw.Sentiment.BullishPercent,
	}, nil
}
