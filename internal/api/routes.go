package api

import (
	"net/http"

	"stockwatch/internal/api/handlers"
	"stockwatch/internal/api/middleware"
	"stockwatch/internal/service"
	"stockwatch/internal/stream"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Dependencies содержит все зависимости для API handlers
type Dependencies struct {
	PortfolioService *service.PortfolioService
	QuoteService     *service.QuoteService
	Hub              *stream.Hub

	// Shared secret для /webhook/*; пустая строка отключает проверку
	WebhookSecret string
}

// SetupRoutes настраивает все HTTP маршруты приложения
//
// Назначение:
// Центральное место для определения всех API endpoints.
// Регистрирует handlers для каждого маршрута.
// Применяет middleware к группам маршрутов.
//
// Структура маршрутов:
//
//	├── POST /update-portfolio - создание/замена портфеля
//	├── GET  /portfolio/{userId} - портфель (credentials скрыты)
//	├── POST /subscribe - регистрация push endpoint
//	├── GET  /events/{userId} - SSE поток алертов
//	├── GET  /risk/{ticker} - разовая риск-оценка
//	├── POST /risk/bulk - риск-оценки до 50 тикеров
//	├── /webhook/ (защищен shared secret)
//	│   └── POST /event - форсированный пересчет по внешнему сигналу
//	├── GET  /health - проверка живости
//	└── GET  /metrics - Prometheus метрики
//
// Middleware применяется в следующем порядке:
// 1. Recovery (для всех маршрутов)
// 2. Logging (для всех маршрутов)
// 3. CORS (для всех маршрутов)
// 4. WebhookAuth (только для /webhook/*)
func SetupRoutes(deps *Dependencies) *mux.Router {
	router := mux.NewRouter()

	// Глобальные middleware (применяются ко всем маршрутам)
	router.Use(middleware.Recovery)
	router.Use(middleware.Logging)
	router.Use(middleware.CORS)

	// Создание handlers с внедрением зависимостей
	var portfolioHandler *handlers.PortfolioHandler
	if deps != nil && deps.PortfolioService != nil {
		portfolioHandler = handlers.NewPortfolioHandler(deps.PortfolioService)
	}

	var riskHandler *handlers.RiskHandler
	if deps != nil && deps.QuoteService != nil {
		riskHandler = handlers.NewRiskHandler(deps.QuoteService)
	}

	var streamHandler *handlers.StreamHandler
	if deps != nil && deps.Hub != nil {
		streamHandler = handlers.NewStreamHandler(deps.Hub)
	}

	var webhookHandler *handlers.WebhookHandler
	if deps != nil && deps.PortfolioService != nil {
		webhookHandler = handlers.NewWebhookHandler(deps.PortfolioService)
	}

	// Portfolio routes
	if portfolioHandler != nil {
		router.HandleFunc("/update-portfolio", portfolioHandler.UpdatePortfolio).Methods("POST")
		router.HandleFunc("/portfolio/{userId}", portfolioHandler.GetPortfolio).Methods("GET")
		router.HandleFunc("/subscribe", portfolioHandler.Subscribe).Methods("POST")
	}

	// Risk routes
	if riskHandler != nil {
		router.HandleFunc("/risk/bulk", riskHandler.BulkRisk).Methods("POST")
		router.HandleFunc("/risk/{ticker}", riskHandler.GetRisk).Methods("GET")
	}

	// SSE stream
	if streamHandler != nil {
		router.HandleFunc("/events/{userId}", streamHandler.StreamEvents).Methods("GET")
	}

	// Webhook routes (защищены shared secret)
	if webhookHandler != nil {
		webhook := router.PathPrefix("/webhook").Subrouter()
		if deps != nil {
			webhook.Use(middleware.WebhookAuth(deps.WebhookSecret))
		}
		webhook.HandleFunc("/event", webhookHandler.HandleEvent).Methods("POST")
	}

	// Prometheus метрики
	router.Handle("/metrics", promhttp.Handler()).Methods("GET")

	// Health check endpoint
	router.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	}).Methods("GET")

	return router
}
