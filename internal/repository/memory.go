package repository

import (
	"context"
	"sync"
	"time"

	"stockwatch/internal/models"
)

// MemoryPortfolioRepository - in-memory хранилище портфелей
//
// Отдаёт и принимает глубокие копии, как это делала бы БД:
// вызывающий не может изменить хранимое состояние мимо Save.
type MemoryPortfolioRepository struct {
	mu         sync.RWMutex
	portfolios map[string]*models.Portfolio
}

// NewMemoryPortfolioRepository создает пустое хранилище
func NewMemoryPortfolioRepository() *MemoryPortfolioRepository {
	return &MemoryPortfolioRepository{
		portfolios: make(map[string]*models.Portfolio),
	}
}

func (r *MemoryPortfolioRepository) All(ctx context.Context) ([]*models.Portfolio, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*models.Portfolio, 0, len(r.portfolios))
	for _, p := range r.portfolios {
		out = append(out, p.Clone())
	}
	return out, nil
}

func (r *MemoryPortfolioRepository) Get(ctx context.Context, userID string) (*models.Portfolio, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.portfolios[userID]
	if !ok {
		return nil, ErrPortfolioNotFound
	}
	return p.Clone(), nil
}

func (r *MemoryPortfolioRepository) Save(ctx context.Context, p *models.Portfolio) error {
	clone := p.Clone()
	clone.UpdatedAt = time.Now()

	r.mu.Lock()
	r.portfolios[p.UserID] = clone
	r.mu.Unlock()
	return nil
}

func (r *MemoryPortfolioRepository) Delete(ctx context.Context, userID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.portfolios[userID]; !ok {
		return ErrPortfolioNotFound
	}
	delete(r.portfolios, userID)
	return nil
}
