package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	_ "github.com/lib/pq"

	"stockwatch/internal/models"
)

// PostgresPortfolioRepository - портфели в PostgreSQL
//
// Схема:
//
//	CREATE TABLE IF NOT EXISTS portfolios (
//	    user_id          TEXT PRIMARY KEY,
//	    positions        JSONB NOT NULL DEFAULT '{}',
//	    encrypted_creds  TEXT NOT NULL DEFAULT '',
//	    max_loss_pct     DOUBLE PRECISION NOT NULL DEFAULT 0,
//	    email            TEXT NOT NULL DEFAULT '',
//	    push_endpoint    TEXT NOT NULL DEFAULT '',
//	    total_investment DOUBLE PRECISION NOT NULL DEFAULT 0,
//	    updated_at       TIMESTAMPTZ NOT NULL DEFAULT now()
//	);
//
// Позиции лежат единым JSONB: портфель заменяется целиком одним
// вызовом, поколоночные апдейты не требуются.
type PostgresPortfolioRepository struct {
	db *sql.DB
}

// NewPostgresPortfolioRepository создает репозиторий поверх *sql.DB
func NewPostgresPortfolioRepository(db *sql.DB) *PostgresPortfolioRepository {
	return &PostgresPortfolioRepository{db: db}
}

// Migrate создает таблицу портфелей
func (r *PostgresPortfolioRepository) Migrate(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS portfolios (
			user_id          TEXT PRIMARY KEY,
			positions        JSONB NOT NULL DEFAULT '{}',
			encrypted_creds  TEXT NOT NULL DEFAULT '',
			max_loss_pct     DOUBLE PRECISION NOT NULL DEFAULT 0,
			email            TEXT NOT NULL DEFAULT '',
			push_endpoint    TEXT NOT NULL DEFAULT '',
			total_investment DOUBLE PRECISION NOT NULL DEFAULT 0,
			updated_at       TIMESTAMPTZ NOT NULL DEFAULT now()
		)`)
	return err
}

const portfolioColumns = `user_id, positions, encrypted_creds, max_loss_pct, email, push_endpoint, total_investment, updated_at`

func (r *PostgresPortfolioRepository) All(ctx context.Context) ([]*models.Portfolio, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+portfolioColumns+` FROM portfolios`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*models.Portfolio
	for rows.Next() {
		p, err := scanPortfolio(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (r *PostgresPortfolioRepository) Get(ctx context.Context, userID string) (*models.Portfolio, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+portfolioColumns+` FROM portfolios WHERE user_id = $1`, userID)

	p, err := scanPortfolio(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrPortfolioNotFound
		}
		return nil, err
	}
	return p, nil
}

func (r *PostgresPortfolioRepository) Save(ctx context.Context, p *models.Portfolio) error {
	positions, err := json.Marshal(p.Positions)
	if err != nil {
		return err
	}

	p.UpdatedAt = time.Now()

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO portfolios (`+portfolioColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (user_id) DO UPDATE SET
			positions        = EXCLUDED.positions,
			encrypted_creds  = EXCLUDED.encrypted_creds,
			max_loss_pct     = EXCLUDED.max_loss_pct,
			email            = EXCLUDED.email,
			push_endpoint    = EXCLUDED.push_endpoint,
			total_investment = EXCLUDED.total_investment,
			updated_at       = EXCLUDED.updated_at`,
		p.UserID, positions, p.EncryptedCreds, p.MaxLossPct,
		p.Email, p.PushEndpoint, p.TotalInvestment, p.UpdatedAt,
	)
	return err
}

func (r *PostgresPortfolioRepository) Delete(ctx context.Context, userID string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM portfolios WHERE user_id = $1`, userID)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrPortfolioNotFound
	}
	return nil
}

// scanner покрывает *sql.Row и *sql.Rows
type scanner interface {
	Scan(dest ...interface{}) error
}

func scanPortfolio(s scanner) (*models.Portfolio, error) {
	p := &models.Portfolio{}
	var positionsJSON []byte

	err := s.Scan(
		&p.UserID,
		&positionsJSON,
		&p.EncryptedCreds,
		&p.MaxLossPct,
		&p.Email,
		&p.PushEndpoint,
		&p.TotalInvestment,
		&p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	p.Positions = make(map[string]*models.Position)
	if len(positionsJSON) > 0 {
		if err := json.Unmarshal(positionsJSON, &p.Positions); err != nil {
			return nil, err
		}
	}
	return p, nil
}
