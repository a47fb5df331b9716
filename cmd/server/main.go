package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
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
	"stockwatch/pkg/utils"

	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
)

func main() {
	// .env для локальной разработки; в production переменные приходят из окружения
	_ = godotenv.Load()

	// Загрузка конфигурации
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Инициализация логгера
	logger := utils.InitGlobalLogger(utils.LogConfig{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
	})
	defer logger.Sync()

	// Инициализация хранилища портфелей
	store, db, err := initStore(cfg)
	if err != nil {
		logger.Fatal("failed to init portfolio store", utils.Err(err))
	}
	if db != nil {
		defer db.Close()
	}

	// Провайдеры рыночных данных
	finnhub := provider.NewFinnhub(cfg.Providers.FinnhubAPIKey, cfg.Providers.FinnhubBaseURL)
	alpaca := provider.NewAlpaca(cfg.Providers.AlpacaBaseURL)

	// Сервис цен: кэш с TTL поверх брокерского и общего источников
	prices := market.NewPriceService(finnhub, alpaca, cfg.Monitor.PriceCacheTTL, logger)

	// Риск-движок
	scorer := risk.NewEngine(finnhub, cfg.Providers.BenchmarkSymbol, logger)

	// Hub SSE подписчиков
	hub := stream.NewHub(cfg.Monitor.KeepAliveInterval, logger)
	go hub.RunKeepAlive()

	// Каналы доставки уведомлений
	dispatcher := notify.NewDispatcher(
		hub,
		notify.NewEmailSender(cfg.Notify),
		notify.NewPushSender(nil, cfg.Notify.PushTimeout),
		logger,
	)

	// Стриминговый фид цен (опционально)
	var priceStream *provider.FinnhubStream
	var streamControl monitor.StreamControl
	if cfg.Providers.StreamEnabled && cfg.Providers.FinnhubAPIKey != "" {
		priceStream = provider.NewFinnhubStream(
			cfg.Providers.FinnhubAPIKey,
			cfg.Providers.FinnhubWSURL,
			cfg.Monitor.StreamSymbolCap,
			logger,
		)
		streamControl = priceStream
	}

	// Дедупликация рыночных событий
	seen := monitor.NewSeenEvents(cfg.Monitor.EventDedupWindow)

	// Портфельный сервис и движок ссылаются друг на друга:
	// движку нужна расшифровка credentials, сервису - форсированные
	// проходы. Разрываем цикл замыканием на переменную сервиса.
	var portfolioService *service.PortfolioService

	// Движок мониторинга
	engine := monitor.NewEngine(monitor.Deps{
		Config:   cfg.Monitor,
		Store:    store,
		Prices:   prices,
		Scorer:   scorer,
		Notifier: dispatcher,
		Stream:   streamControl,
		Seen:     seen,
		DecryptCreds: func(p *models.Portfolio) *models.BrokerCredentials {
			return portfolioService.DecryptCreds(p)
		},
		Logger: logger,
	})
	portfolioService = service.NewPortfolioService(store, engine, []byte(cfg.Security.EncryptionKey), logger)

	rootCtx, rootCancel := context.WithCancel(context.Background())
	defer rootCancel()

	// Тики стримингового фида уходят в движок
	if priceStream != nil {
		priceStream.SetOnTick(func(tick provider.Tick) {
			engine.HandleTick(rootCtx, tick)
		})
		if err := priceStream.Connect(); err != nil {
			// Поток цен вспомогательный: мониторинг работает и на одном REST
			logger.Warn("price stream connect failed, continuing without it", utils.Err(err))
		}
	}

	// Основной цикл мониторинга
	go engine.Run(rootCtx)

	// Watcher новостей и отчётностей
	watcher := monitor.NewEventWatcher(
		finnhub,
		seen,
		cfg.Monitor.EventPollInterval,
		engine.Holdings,
		engine.HandleEvent,
		logger,
	)
	go watcher.Run(rootCtx)

	// Разовые котировки и риск-оценки
	quoteService := service.NewQuoteService(prices, scorer, logger)

	// Настройка зависимостей для API
	deps := &api.Dependencies{
		PortfolioService: portfolioService,
		QuoteService:     quoteService,
		Hub:              hub,
		WebhookSecret:    cfg.Security.WebhookSecret,
	}

	// Настройка HTTP роутера
	router := api.SetupRoutes(deps)

	// HTTP сервер. WriteTimeout нулевой: /events/{userId} держит
	// соединение открытым сколько живет подписчик
	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 0,
		IdleTimeout:  60 * time.Second,
	}

	// Запуск сервера в отдельной горутине
	go func() {
		logger.Info("starting server", utils.String("addr", server.Addr))
		if cfg.Server.UseHTTPS {
			if err := server.ListenAndServeTLS(cfg.Server.CertFile, cfg.Server.KeyFile); err != nil && err != http.ErrServerClosed {
				logger.Fatal("server failed", utils.Err(err))
			}
		} else {
			if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Fatal("server failed", utils.Err(err))
			}
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")

	// Останавливаем фоновые циклы и поток цен
	rootCancel()
	if priceStream != nil {
		if err := priceStream.Close(); err != nil {
			logger.Warn("error closing price stream", utils.Err(err))
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Error("server forced to shutdown", utils.Err(err))
	}

	// Закрываем SSE соединения и общий HTTP клиент
	hub.Stop()
	provider.CloseGlobalClient()

	logger.Info("server exited")
}

// initStore создает хранилище портфелей по DB_DRIVER.
// Возвращает *sql.DB только для postgres, чтобы main мог его закрыть.
func initStore(cfg *config.Config) (repository.PortfolioRepository, *sql.DB, error) {
	switch cfg.Database.Driver {
	case "postgres":
		db, err := sql.Open("postgres", cfg.Database.DSN())
		if err != nil {
			return nil, nil, fmt.Errorf("open postgres: %w", err)
		}

		db.SetMaxOpenConns(25)
		db.SetMaxIdleConns(5)
		db.SetConnMaxLifetime(5 * time.Minute)

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := db.PingContext(ctx); err != nil {
			db.Close()
			return nil, nil, fmt.Errorf("ping postgres (%s): %w", cfg.Database.DSNWithoutPassword(), err)
		}

		repo := repository.NewPostgresPortfolioRepository(db)
		if err := repo.Migrate(ctx); err != nil {
			db.Close()
			return nil, nil, fmt.Errorf("migrate: %w", err)
		}
		return repo, db, nil

	default:
		return repository.NewMemoryPortfolioRepository(), nil, nil
	}
}
