package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"stockwatch/internal/models"
)

// Alpaca реализует интерфейс BrokerSource для Alpaca Market Data API
//
// В отличие от Finnhub запросы идут с ключами конкретного пользователя,
// поэтому клиент не держит ни ключей, ни rate limiter'а - лимиты
// у каждой пары ключей свои.
type Alpaca struct {
	baseURL    string
	httpClient *http.Client
}

// NewAlpaca создает новый клиент Alpaca Market Data
func NewAlpaca(baseURL string) *Alpaca {
	if baseURL == "" {
		baseURL = "https://data.alpaca.markets"
	}
	return &Alpaca{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: GetGlobalHTTPClient().GetClient(),
	}
}

func (a *Alpaca) Name() string {
	return "alpaca"
}

// GetQuoteWithCreds возвращает цену последней сделки по ключам пользователя
func (a *Alpaca) GetQuoteWithCreds(ctx context.Context, symbol string, creds *models.BrokerCredentials) (*Quote, error) {
	if creds == nil || creds.APIKey == "" || creds.APISecret == "" {
		return nil, fmt.Errorf("alpaca: missing credentials")
	}

	reqURL := fmt.Sprintf("%s/v2/stocks/%s/trades/latest", a.baseURL, symbol)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("APCA-API-KEY-ID", creds.APIKey)
	req.Header.Set("APCA-API-SECRET-KEY", creds.APISecret)

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		// ok
	case http.StatusTooManyRequests:
		return nil, ErrRateLimited
	case http.StatusNotFound:
		return nil, ErrSymbolNotFound
	default:
		return nil, fmt.Errorf("alpaca: trades/latest for %s returned status %d", symbol, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	var raw struct {
		Symbol string `json:"symbol"`
		Trade  struct {
			Price     float64   `json:"p"`
			Timestamp time.Time `json:"t"`
		} `json:"trade"`
	}
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("alpaca: parse trade for %s: %w", symbol, err)
	}

	if raw.Trade.Price <= 0 {
		return nil, ErrNoData
	}

	return &Quote{
		Symbol:    symbol,
		Price:     raw.Trade.Price,
		Source:    a.Name(),
		Timestamp: raw.Trade.Timestamp,
	}, nil
}
