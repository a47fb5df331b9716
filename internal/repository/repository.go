// Package repository хранит портфели пользователей.
//
// Две реализации одного интерфейса: in-memory (по умолчанию,
// состояние живёт до рестарта процесса) и postgres (durable).
// Кэши цен и оценок, окна охлаждения и память о событиях всегда
// остаются в памяти процесса - это быстрые, восстановимые структуры.
package repository

import (
	"context"
	"errors"

	"stockwatch/internal/models"
)

// Ошибки репозитория портфелей
var (
	ErrPortfolioNotFound = errors.New("portfolio not found")
)

// PortfolioRepository - хранилище портфелей
type PortfolioRepository interface {
	// All возвращает все портфели
	All(ctx context.Context) ([]*models.Portfolio, error)

	// Get возвращает портфель пользователя или ErrPortfolioNotFound
	Get(ctx context.Context, userID string) (*models.Portfolio, error)

	// Save создает или целиком заменяет портфель
	Save(ctx context.Context, p *models.Portfolio) error

	// Delete удаляет портфель; отсутствие - ErrPortfolioNotFound
	Delete(ctx context.Context, userID string) error
}
