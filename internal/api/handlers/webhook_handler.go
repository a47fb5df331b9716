package handlers

import (
	"context"
	"encoding/json"
	"net/http"
)

// WebhookServiceInterface - форсированный пересчет по внешнему сигналу
type WebhookServiceInterface interface {
	ForceRecompute(ctx context.Context, rawSymbol string) (int, error)
}

// WebhookHandler отвечает за внешние событийные сигналы
//
// Endpoints:
// - POST /webhook/event - форсированный пересчет риска по тикеру
//
// Внешняя система (новостной фид, брокер) сигналит о событии по тикеру.
// Дедупликация событий для тикера сбрасывается, риск и стоп-лоссы всех
// держателей пересчитываются в обход cooldown.
type WebhookHandler struct {
	webhookService WebhookServiceInterface
}

// NewWebhookHandler создает новый WebhookHandler с внедрением зависимостей
func NewWebhookHandler(webhookService WebhookServiceInterface) *WebhookHandler {
	return &WebhookHandler{
		webhookService: webhookService,
	}
}

// WebhookEventRequest структура входящего сигнала
type WebhookEventRequest struct {
	Ticker string `json:"ticker"`
	Reason string `json:"reason,omitempty"`
}

// WebhookEventResponse результат обработки сигнала
type WebhookEventResponse struct {
	Ticker  string `json:"ticker"`
	Holders int    `json:"holders"`
	Message string `json:"message"`
}

// HandleEvent обрабатывает внешний событийный сигнал
// POST /webhook/event
//
// Request Body:
//
//	{"ticker": "AAPL", "reason": "sec filing"}
//
// Response:
// - 200 OK: количество затронутых портфелей (0 - валидный ответ)
// - 400 Bad Request: невалидный тикер
func (h *WebhookHandler) HandleEvent(w http.ResponseWriter, r *http.Request) {
	if h.webhookService == nil {
		respondWithError(w, http.StatusInternalServerError, "service_unavailable", "Webhook service is not available", "")
		return
	}

	var req WebhookEventRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid_request", "Invalid JSON body", err.Error())
		return
	}

	if req.Ticker == "" {
		respondWithError(w, http.StatusBadRequest, "missing_ticker", "Ticker is required", "")
		return
	}

	holders, err := h.webhookService.ForceRecompute(r.Context(), req.Ticker)
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid_ticker", err.Error(), "")
		return
	}

	respondWithJSON(w, http.StatusOK, WebhookEventResponse{
		Ticker:  req.Ticker,
		Holders: holders,
		Message: "recompute triggered",
	})
}
