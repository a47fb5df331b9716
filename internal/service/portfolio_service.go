// Package service содержит бизнес-логику над репозиториями:
// валидацию и сборку портфелей, шифрование брокерских ключей,
// ad-hoc скоринг без привязки к хранимым портфелям.
package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"stockwatch/internal/models"
	"stockwatch/internal/monitor"
	"stockwatch/pkg/crypto"
	"stockwatch/pkg/utils"
)

// PositionInput - позиция из запроса обновления портфеля
type PositionInput struct {
	Shares     float64 `json:"shares"`
	EntryPrice float64 `json:"entryPrice"`
	Sector     string  `json:"sector,omitempty"`
}

// UpdatePortfolioRequest - тело POST /update-portfolio
type UpdatePortfolioRequest struct {
	UserID          string                   `json:"userId"`
	Stocks          map[string]PositionInput `json:"stocks"`
	BrokerAPIKey    string                   `json:"brokerApiKey,omitempty"`
	BrokerAPISecret string                   `json:"brokerApiSecret,omitempty"`
	Email           string                   `json:"userEmail,omitempty"`
	MaxLossPct      float64                  `json:"maxLossPercent,omitempty"`
	TotalInvestment float64                  `json:"totalInvestment,omitempty"`
}

// PortfolioService - управление портфелями
//
// Портфель заменяется целиком: состояние мониторинга пользователя
// (окна охлаждения, кэш оценок) сбрасывается, после сохранения
// запускается форсированный первичный проход.
type PortfolioService struct {
	store   PortfolioStore
	monitor PortfolioMonitor

	// Ключ AES-256 для брокерских credentials
	encryptionKey []byte

	logger *utils.Logger
}

// NewPortfolioService создает сервис портфелей
func NewPortfolioService(store PortfolioStore, mon PortfolioMonitor, encryptionKey []byte, logger *utils.Logger) *PortfolioService {
	if logger == nil {
		logger = utils.GetGlobalLogger()
	}
	return &PortfolioService{
		store:         store,
		monitor:       mon,
		encryptionKey: encryptionKey,
		logger:        logger.WithComponent("portfolio"),
	}
}

// Update валидирует запрос, заменяет портфель и запускает
// форсированный первичный проход мониторинга
func (s *PortfolioService) Update(ctx context.Context, req *UpdatePortfolioRequest) (*models.Portfolio, error) {
	if err := utils.ValidateUserID(req.UserID); err != nil {
		return nil, fmt.Errorf("userId: %w", err)
	}
	if len(req.Stocks) == 0 {
		return nil, fmt.Errorf("stocks: portfolio must contain at least one position")
	}
	if err := utils.ValidateEmail(req.Email); err != nil {
		return nil, fmt.Errorf("userEmail: %w", err)
	}
	if err := utils.ValidateMaxLossPct(req.MaxLossPct); err != nil {
		return nil, fmt.Errorf("maxLossPercent: %w", err)
	}

	p := &models.Portfolio{
		UserID:          req.UserID,
		Positions:       make(map[string]*models.Position, len(req.Stocks)),
		Email:           req.Email,
		MaxLossPct:      req.MaxLossPct,
		TotalInvestment: req.TotalInvestment,
	}

	for rawSymbol, input := range req.Stocks {
		symbol := utils.NormalizeSymbol(rawSymbol)
		if err := utils.ValidateSymbol(symbol); err != nil {
			return nil, fmt.Errorf("stocks[%s]: %w", rawSymbol, err)
		}
		if err := utils.ValidateShares(input.Shares); err != nil {
			return nil, fmt.Errorf("stocks[%s].shares: %w", symbol, err)
		}
		if err := utils.ValidateEntryPrice(input.EntryPrice); err != nil {
			return nil, fmt.Errorf("stocks[%s].entryPrice: %w", symbol, err)
		}
		p.Positions[symbol] = &models.Position{
			Symbol:     symbol,
			Shares:     input.Shares,
			EntryPrice: input.EntryPrice,
			Sector:     input.Sector,
		}
	}

	// Возможный PushEndpoint прежнего портфеля переносится:
	// подписка переживает замену портфеля
	if prev, err := s.store.Get(ctx, req.UserID); err == nil {
		p.PushEndpoint = prev.PushEndpoint
	}

	if req.BrokerAPIKey != "" && req.BrokerAPISecret != "" {
		encrypted, err := s.encryptCreds(&models.BrokerCredentials{
			APIKey:    req.BrokerAPIKey,
			APISecret: req.BrokerAPISecret,
		})
		if err != nil {
			return nil, fmt.Errorf("broker credentials: %w", err)
		}
		p.EncryptedCreds = encrypted
	}

	if err := s.store.Save(ctx, p); err != nil {
		return nil, fmt.Errorf("save portfolio: %w", err)
	}

	s.logger.Info("portfolio replaced",
		utils.UserID(p.UserID), utils.Int("positions", len(p.Positions)))

	// Сброс состояния мониторинга и первичный форсированный проход.
	// Проход асинхронный: ответ API не ждёт скоринга всех позиций.
	if s.monitor != nil {
		s.monitor.DropUser(p.UserID)
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
			defer cancel()
			if err := s.monitor.ProcessUser(ctx, p.UserID, monitor.TriggerPeriodic, true); err != nil {
				s.logger.Warn("initial pass failed", utils.UserID(p.UserID), utils.Err(err))
			}
		}()
	}

	return p, nil
}

// Get возвращает портфель пользователя
func (s *PortfolioService) Get(ctx context.Context, userID string) (*models.Portfolio, error) {
	if err := utils.ValidateUserID(userID); err != nil {
		return nil, err
	}
	return s.store.Get(ctx, userID)
}

// Subscribe регистрирует push-эндпоинт пользователя (последний wins)
func (s *PortfolioService) Subscribe(ctx context.Context, userID, endpoint string) error {
	if err := utils.ValidateUserID(userID); err != nil {
		return err
	}
	if endpoint == "" {
		return fmt.Errorf("endpoint is required")
	}

	p, err := s.store.Get(ctx, userID)
	if err != nil {
		return err
	}
	p.PushEndpoint = endpoint
	return s.store.Save(ctx, p)
}

// ForceRecompute форсирует сброс дедупликации и пересчёт по тикеру
// для всех держателей; возвращает число затронутых пользователей
func (s *PortfolioService) ForceRecompute(ctx context.Context, rawSymbol string) (int, error) {
	symbol := utils.NormalizeSymbol(rawSymbol)
	if err := utils.ValidateSymbol(symbol); err != nil {
		return 0, err
	}
	if s.monitor == nil {
		return 0, nil
	}
	return s.monitor.HandleWebhook(ctx, symbol), nil
}

// DecryptCreds возвращает расшифрованные брокерские ключи портфеля
// nil - когда ключей нет или разобрать их не удалось
func (s *PortfolioService) DecryptCreds(p *models.Portfolio) *models.BrokerCredentials {
	if p == nil || p.EncryptedCreds == "" {
		return nil
	}

	plaintext, err := crypto.Decrypt(p.EncryptedCreds, s.encryptionKey)
	if err != nil {
		s.logger.Warn("credentials decryption failed", utils.UserID(p.UserID), utils.Err(err))
		return nil
	}

	var creds models.BrokerCredentials
	if err := json.Unmarshal([]byte(plaintext), &creds); err != nil {
		s.logger.Warn("credentials unmarshal failed", utils.UserID(p.UserID), utils.Err(err))
		return nil
	}
	return &creds
}

func (s *PortfolioService) encryptCreds(creds *models.BrokerCredentials) (string, error) {
	payload, err := json.Marshal(creds)
	if err != nil {
		return "", err
	}
	return crypto.Encrypt(string(payload), s.encryptionKey)
}
