package repository

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"studia-backend/internal/models"
)

type StudyPlanRepo struct {
	pool *pgxpool.Pool
}

func NewStudyPlanRepo(pool *pgxpool.Pool) *StudyPlanRepo {
	return &StudyPlanRepo{pool: pool}
}

// GetOwned returns the plan only when it belongs to the user; nil otherwise.
// Session actions verify ownership before touching any session row.
func (r *StudyPlanRepo) GetOwned(ctx context.Context, planID, userID uuid.UUID) (*models.StudyPlan, error) {
	p := &models.StudyPlan{}
	err := r.pool.QueryRow(ctx, `
		SELECT id, user_id, title, status, timezone, created_at
		FROM study_plans
		WHERE id = $1 AND user_id = $2
	`, planID, userID).Scan(&p.ID, &p.UserID, &p.Title, &p.Status, &p.Timezone, &p.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return p, nil
}
