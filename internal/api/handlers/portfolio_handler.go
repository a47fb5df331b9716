package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"stockwatch/internal/models"
	"stockwatch/internal/repository"
	"stockwatch/internal/service"

	"github.com/gorilla/mux"
)

// PortfolioServiceInterface - операции портфельного сервиса, нужные HTTP слою
type PortfolioServiceInterface interface {
	Update(ctx context.Context, req *service.UpdatePortfolioRequest) (*models.Portfolio, error)
	Get(ctx context.Context, userID string) (*models.Portfolio, error)
	Subscribe(ctx context.Context, userID, endpoint string) error
}

// PortfolioHandler отвечает за портфели и push-подписки
//
// Endpoints:
// - POST /update-portfolio - создание/полная замена портфеля
// - GET /portfolio/{userId} - получение портфеля (без credentials)
// - POST /subscribe - регистрация push endpoint
type PortfolioHandler struct {
	portfolioService PortfolioServiceInterface
}

// NewPortfolioHandler создает новый PortfolioHandler с внедрением зависимостей
func NewPortfolioHandler(portfolioService PortfolioServiceInterface) *PortfolioHandler {
	return &PortfolioHandler{
		portfolioService: portfolioService,
	}
}

// PortfolioResponse представление портфеля наружу.
// Брокерские credentials никогда не возвращаются - только флаг их наличия.
type PortfolioResponse struct {
	UserID          string                      `json:"userId"`
	Stocks          map[string]*models.Position `json:"stocks"`
	MaxLossPct      float64                     `json:"maxLossPercent,omitempty"`
	Email           string                      `json:"userEmail,omitempty"`
	TotalInvestment float64                     `json:"totalInvestment,omitempty"`
	BrokerConnected bool                        `json:"brokerConnected"`
	PushSubscribed  bool                        `json:"pushSubscribed"`
	UpdatedAt       time.Time                   `json:"updatedAt"`
}

// SubscribeRequest структура запроса на регистрацию push endpoint
type SubscribeRequest struct {
	UserID   string `json:"userId"`
	Endpoint string `json:"endpoint"`
}

// UpdatePortfolio создает или полностью заменяет портфель пользователя
// POST /update-portfolio
//
// Request Body:
//
//	{
//	  "userId": "u1",
//	  "stocks": {"AAPL": {"shares": 10, "entryPrice": 150.0}},
//	  "brokerApiKey": "...",
//	  "brokerApiSecret": "...",
//	  "userEmail": "user@example.com",
//	  "maxLossPercent": 5,
//	  "totalInvestment": 10000
//	}
//
// Response:
// - 200 OK: сохраненный портфель (credentials скрыты)
// - 400 Bad Request: невалидные параметры
// - 500 Internal Server Error: ошибка хранилища
func (h *PortfolioHandler) UpdatePortfolio(w http.ResponseWriter, r *http.Request) {
	if h.portfolioService == nil {
		respondWithError(w, http.StatusInternalServerError, "service_unavailable", "Portfolio service is not available", "")
		return
	}

	var req service.UpdatePortfolioRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid_request", "Invalid JSON body", err.Error())
		return
	}

	portfolio, err := h.portfolioService.Update(r.Context(), &req)
	if err != nil {
		h.handleServiceError(w, err)
		return
	}

	respondWithJSON(w, http.StatusOK, portfolioToResponse(portfolio))
}

// GetPortfolio возвращает сохраненный портфель пользователя
// GET /portfolio/{userId}
//
// Response:
// - 200 OK: портфель с текущими ценами, риск-скорами и стоп-лоссами
// - 404 Not Found: портфель не найден
func (h *PortfolioHandler) GetPortfolio(w http.ResponseWriter, r *http.Request) {
	if h.portfolioService == nil {
		respondWithError(w, http.StatusInternalServerError, "service_unavailable", "Portfolio service is not available", "")
		return
	}

	userID := mux.Vars(r)["userId"]
	if userID == "" {
		respondWithError(w, http.StatusBadRequest, "missing_user_id", "User ID is required", "")
		return
	}

	portfolio, err := h.portfolioService.Get(r.Context(), userID)
	if err != nil {
		h.handleServiceError(w, err)
		return
	}

	respondWithJSON(w, http.StatusOK, portfolioToResponse(portfolio))
}

// Subscribe регистрирует push endpoint для уведомлений
// POST /subscribe
//
// Повторная подписка заменяет предыдущий endpoint (latest wins).
//
// Response:
// - 200 OK: подписка зарегистрирована
// - 400 Bad Request: невалидные параметры
// - 404 Not Found: портфель пользователя не существует
func (h *PortfolioHandler) Subscribe(w http.ResponseWriter, r *http.Request) {
	if h.portfolioService == nil {
		respondWithError(w, http.StatusInternalServerError, "service_unavailable", "Portfolio service is not available", "")
		return
	}

	var req SubscribeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid_request", "Invalid JSON body", err.Error())
		return
	}

	if req.UserID == "" {
		respondWithError(w, http.StatusBadRequest, "missing_user_id", "User ID is required", "")
		return
	}

	if err := h.portfolioService.Subscribe(r.Context(), req.UserID, req.Endpoint); err != nil {
		h.handleServiceError(w, err)
		return
	}

	respondWithJSON(w, http.StatusOK, SuccessResponse{Message: "push subscription registered"})
}

// handleServiceError маппит ошибки сервисного слоя на HTTP статусы
func (h *PortfolioHandler) handleServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, repository.ErrPortfolioNotFound):
		respondWithError(w, http.StatusNotFound, "portfolio_not_found", "Portfolio not found", "")

	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		respondWithError(w, http.StatusServiceUnavailable, "request_timeout", "Request cancelled or timed out", "")

	default:
		// Ошибки валидации приходят из сервиса с понятным текстом
		respondWithError(w, http.StatusBadRequest, "invalid_request", err.Error(), "")
	}
}

// portfolioToResponse конвертирует модель в API представление без credentials
func portfolioToResponse(p *models.Portfolio) PortfolioResponse {
	return PortfolioResponse{
		UserID:          p.UserID,
		Stocks:          p.Positions,
		MaxLossPct:      p.MaxLossPct,
		Email:           p.Email,
		TotalInvestment: p.TotalInvestment,
		BrokerConnected: p.EncryptedCreds != "",
		PushSubscribed:  p.PushEndpoint != "",
		UpdatedAt:       p.UpdatedAt,
	}
}
