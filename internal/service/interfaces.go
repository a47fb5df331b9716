package service

import (
	"context"

	"stockwatch/internal/monitor"
	"stockwatch/internal/repository"
)

// PortfolioMonitor - то, что сервисному слою нужно от движка
// мониторинга; реализуется monitor.Engine
type PortfolioMonitor interface {
	ProcessUser(ctx context.Context, userID string, kind monitor.TriggerKind, force bool) error
	HandleWebhook(ctx context.Context, symbol string) int
	DropUser(userID string)
}

// PortfolioStore - псевдоним для читаемости сигнатур сервиса
type PortfolioStore = repository.PortfolioRepository
