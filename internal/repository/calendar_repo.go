package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"studia-backend/internal/models"
)

type CalendarRepo struct {
	pool *pgxpool.Pool
}

func NewCalendarRepo(pool *pgxpool.Pool) *CalendarRepo {
	return &CalendarRepo{pool: pool}
}

// GetIntegration returns the user's most recently updated calendar
// integration, nil when the user never connected a calendar.
func (r *CalendarRepo) GetIntegration(ctx context.Context, userID uuid.UUID) (*models.CalendarIntegration, error) {
	c := &models.CalendarIntegration{}
	err := r.pool.QueryRow(ctx, `
		SELECT id, user_id, provider, access_token, refresh_token, expires_at, last_sync_at, created_at, updated_at
		FROM calendar_integrations
		WHERE user_id = $1
		ORDER BY updated_at DESC
		LIMIT 1
	`, userID).Scan(
		&c.ID, &c.UserID, &c.Provider, &c.AccessToken, &c.RefreshToken,
		&c.ExpiresAt, &c.LastSyncAt, &c.CreatedAt, &c.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return c, nil
}

func (r *CalendarRepo) UpdateTokens(ctx context.Context, id uuid.UUID, accessToken string, expiresAt *time.Time) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE calendar_integrations
		SET access_token = $2, expires_at = $3, updated_at = NOW()
		WHERE id = $1
	`, id, accessToken, expiresAt)
	return err
}

// TouchLastSync stamps last_sync_at whether or not conflicts were found, so
// the next check has a reference point.
func (r *CalendarRepo) TouchLastSync(ctx context.Context, id uuid.UUID, at time.Time) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE calendar_integrations
		SET last_sync_at = $2, updated_at = $2
		WHERE id = $1
	`, id, at)
	return err
}
