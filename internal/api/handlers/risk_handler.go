package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"stockwatch/internal/market"
	"stockwatch/internal/risk"
	"stockwatch/internal/service"

	"github.com/gorilla/mux"
)

// QuoteServiceInterface - ad-hoc котировки и риск-оценки без сохранения состояния
type QuoteServiceInterface interface {
	RiskForTicker(ctx context.Context, rawSymbol string) (float64, *risk.Result, error)
	RiskBulk(ctx context.Context, symbols []string) ([]service.BulkRiskItem, error)
}

// RiskHandler отвечает за разовые запросы риск-оценки
//
// Endpoints:
// - GET /risk/{ticker} - риск-скор одного тикера
// - POST /risk/bulk - риск-скоры до 50 тикеров за один запрос
//
// Эти endpoints не трогают сохраненные портфели: котировка берется
// из общего кеша цен, оценка считается на лету.
type RiskHandler struct {
	quoteService QuoteServiceInterface
}

// NewRiskHandler создает новый RiskHandler с внедрением зависимостей
func NewRiskHandler(quoteService QuoteServiceInterface) *RiskHandler {
	return &RiskHandler{
		quoteService: quoteService,
	}
}

// RiskResponse результат оценки одного тикера
type RiskResponse struct {
	Ticker      string             `json:"ticker"`
	Price       float64            `json:"price"`
	RiskScore   int                `json:"riskScore"`
	Factors     map[string]float64 `json:"factors,omitempty"`
	Degraded    bool               `json:"degraded,omitempty"`
	Explanation string             `json:"explanation,omitempty"`
	ComputedAt  time.Time          `json:"computedAt"`
}

// BulkRiskRequest структура запроса массовой оценки
type BulkRiskRequest struct {
	Tickers []string `json:"tickers"`
}

// BulkRiskResponse результат массовой оценки с изоляцией ошибок по тикерам
type BulkRiskResponse struct {
	Results []BulkRiskItem `json:"results"`
}

// BulkRiskItem результат по одному тикеру из bulk запроса
type BulkRiskItem struct {
	Ticker      string             `json:"ticker"`
	Price       float64            `json:"price,omitempty"`
	RiskScore   int                `json:"riskScore,omitempty"`
	Factors     map[string]float64 `json:"factors,omitempty"`
	Degraded    bool               `json:"degraded,omitempty"`
	Explanation string             `json:"explanation,omitempty"`
	Error       string             `json:"error,omitempty"`
}

// GetRisk возвращает риск-скор одного тикера
// GET /risk/{ticker}
//
// Response:
// - 200 OK: оценка с разложением по факторам
// - 400 Bad Request: невалидный тикер
// - 502 Bad Gateway: цена недоступна ни из одного источника
func (h *RiskHandler) GetRisk(w http.ResponseWriter, r *http.Request) {
	if h.quoteService == nil {
		respondWithError(w, http.StatusInternalServerError, "service_unavailable", "Quote service is not available", "")
		return
	}

	ticker := mux.Vars(r)["ticker"]

	price, result, err := h.quoteService.RiskForTicker(r.Context(), ticker)
	if err != nil {
		h.handleServiceError(w, err)
		return
	}

	respondWithJSON(w, http.StatusOK, RiskResponse{
		Ticker:      result.Symbol,
		Price:       price,
		RiskScore:   result.Score,
		Factors:     result.Factors,
		Degraded:    result.Degraded,
		Explanation: result.Explanation,
		ComputedAt:  result.ComputedAt,
	})
}

// BulkRisk оценивает до 50 тикеров за один запрос
// POST /risk/bulk
//
// Request Body:
//
//	{"tickers": ["AAPL", "MSFT", "TSLA"]}
//
// Ошибка по одному тикеру не роняет весь запрос - она возвращается
// в поле error соответствующего элемента results.
//
// Response:
// - 200 OK: массив результатов в порядке запроса
// - 400 Bad Request: пустой список или больше 50 тикеров
func (h *RiskHandler) BulkRisk(w http.ResponseWriter, r *http.Request) {
	if h.quoteService == nil {
		respondWithError(w, http.StatusInternalServerError, "service_unavailable", "Quote service is not available", "")
		return
	}

	var req BulkRiskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid_request", "Invalid JSON body", err.Error())
		return
	}

	items, err := h.quoteService.RiskBulk(r.Context(), req.Tickers)
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid_request", err.Error(), "")
		return
	}

	results := make([]BulkRiskItem, 0, len(items))
	for _, item := range items {
		out := BulkRiskItem{
			Ticker: item.Symbol,
			Price:  item.Price,
			Error:  item.Error,
		}
		if item.Risk != nil {
			out.RiskScore = item.Risk.Score
			out.Factors = item.Risk.Factors
			out.Degraded = item.Risk.Degraded
			out.Explanation = item.Risk.Explanation
		}
		results = append(results, out)
	}

	respondWithJSON(w, http.StatusOK, BulkRiskResponse{Results: results})
}

// handleServiceError маппит ошибки оценки на HTTP статусы
func (h *RiskHandler) handleServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, market.ErrPriceUnavailable):
		respondWithError(w, http.StatusBadGateway, "price_unavailable", "Price unavailable from all sources", err.Error())

	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		respondWithError(w, http.StatusServiceUnavailable, "request_timeout", "Request cancelled or timed out", "")

	default:
		respondWithError(w, http.StatusBadRequest, "invalid_ticker", err.Error(), "")
	}
}
