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

const sessionColumns = `id, user_id, plan_id, course_id, lesson_id, title, description, notes,
	start_time, end_time, status, started_at, completed_at, completion_method, self_evaluation,
	was_rescheduled, rescheduled_from, external_event_id, calendar_provider, is_ai_generated,
	created_at, updated_at`

type StudySessionRepo struct {
	pool *pgxpool.Pool
}

func NewStudySessionRepo(pool *pgxpool.Pool) *StudySessionRepo {
	return &StudySessionRepo{pool: pool}
}

func scanSession(row pgx.Row) (*models.StudySession, error) {
	s := &models.StudySession{}
	err := row.Scan(
		&s.ID, &s.UserID, &s.PlanID, &s.CourseID, &s.LessonID, &s.Title, &s.Description, &s.Notes,
		&s.StartTime, &s.EndTime, &s.Status, &s.StartedAt, &s.CompletedAt, &s.CompletionMethod, &s.SelfEvaluation,
		&s.WasRescheduled, &s.RescheduledFrom, &s.ExternalEventID, &s.CalendarProvider, &s.IsAIGenerated,
		&s.CreatedAt, &s.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return s, nil
}

func (r *StudySessionRepo) Create(ctx context.Context, s *models.StudySession) error {
	query := `
		INSERT INTO study_sessions (
			id, user_id, plan_id, course_id, lesson_id, title, description,
			start_time, end_time, status, is_ai_generated
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING created_at, updated_at`

	s.ID = uuid.New()
	if s.Status == "" {
		s.Status = models.SessionPlanned
	}

	return r.pool.QueryRow(ctx, query,
		s.ID, s.UserID, s.PlanID, s.CourseID, s.LessonID, s.Title, s.Description,
		s.StartTime, s.EndTime, s.Status, s.IsAIGenerated,
	).Scan(&s.CreatedAt, &s.UpdatedAt)
}

func (r *StudySessionRepo) GetByID(ctx context.Context, id, userID uuid.UUID) (*models.StudySession, error) {
	query := `SELECT ` + sessionColumns + ` FROM study_sessions WHERE id = $1 AND user_id = $2`
	s, err := scanSession(r.pool.QueryRow(ctx, query, id, userID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return s, err
}

// ListPlanned returns the planned sessions of a plan, optionally excluding
// one id (a move/resize ignores its own prior interval).
func (r *StudySessionRepo) ListPlanned(ctx context.Context, planID uuid.UUID, excludeID *uuid.UUID) ([]models.StudySession, error) {
	query := `
		SELECT ` + sessionColumns + `
		FROM study_sessions
		WHERE plan_id = $1 AND status = 'planned'
		  AND ($2::uuid IS NULL OR id <> $2)
		ORDER BY start_time`

	rows, err := r.pool.Query(ctx, query, planID, excludeID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectSessions(rows)
}

// ListUpcomingPlanned returns a user's planned sessions inside a window,
// across plans. Used by calendar reconciliation.
func (r *StudySessionRepo) ListUpcomingPlanned(ctx context.Context, userID uuid.UUID, from, to time.Time) ([]models.StudySession, error) {
	query := `
		SELECT ` + sessionColumns + `
		FROM study_sessions
		WHERE user_id = $1 AND status = 'planned'
		  AND start_time < $3 AND end_time > $2
		ORDER BY start_time`

	rows, err := r.pool.Query(ctx, query, userID, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectSessions(rows)
}

// ListSynced returns sessions linked to an external calendar event.
func (r *StudySessionRepo) ListSynced(ctx context.Context, userID uuid.UUID) ([]models.StudySession, error) {
	query := `
		SELECT ` + sessionColumns + `
		FROM study_sessions
		WHERE user_id = $1 AND external_event_id IS NOT NULL
		ORDER BY start_time`

	rows, err := r.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectSessions(rows)
}

func collectSessions(rows pgx.Rows) ([]models.StudySession, error) {
	var out []models.StudySession
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *s)
	}
	return out, rows.Err()
}

// UpdateInterval moves a session and stamps the reschedule markers.
func (r *StudySessionRepo) UpdateInterval(ctx context.Context, id, userID uuid.UUID, start, end, at time.Time) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE study_sessions
		SET start_time = $3,
			end_time = $4,
			was_rescheduled = TRUE,
			rescheduled_from = $5,
			updated_at = $5
		WHERE id = $1 AND user_id = $2
	`, id, userID, start, end, at)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// UpdateDetails patches the free-text fields; nil pointers keep the current
// value.
func (r *StudySessionRepo) UpdateDetails(ctx context.Context, id, userID uuid.UUID, title, description, notes *string) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE study_sessions
		SET title = COALESCE($3, title),
			description = COALESCE($4, description),
			notes = COALESCE($5, notes),
			updated_at = NOW()
		WHERE id = $1 AND user_id = $2
	`, id, userID, title, description, notes)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (r *StudySessionRepo) Delete(ctx context.Context, id, userID uuid.UUID) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
		DELETE FROM study_sessions WHERE id = $1 AND user_id = $2
	`, id, userID)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// MarkStarted flips a session to in_progress the first time a tracking starts
// against it. Guarded on started_at so it fires once.
func (r *StudySessionRepo) MarkStarted(ctx context.Context, id uuid.UUID, at time.Time) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE study_sessions
		SET started_at = $2, status = 'in_progress', updated_at = $2
		WHERE id = $1 AND started_at IS NULL
	`, id, at)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// CloseIfInProgress is the cascade endpoint: terminal transition guarded on
// current status so concurrent closers race safely.
func (r *StudySessionRepo) CloseIfInProgress(ctx context.Context, id uuid.UUID, at time.Time, method string) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE study_sessions
		SET status = 'completed',
			completed_at = $2,
			completion_method = $3,
			updated_at = NOW()
		WHERE id = $1 AND status = 'in_progress'
	`, id, at, method)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// CompleteByUser is the explicit user-driven completion, with optional
// self-evaluation and notes.
func (r *StudySessionRepo) CompleteByUser(ctx context.Context, id, userID uuid.UUID, at time.Time, selfEvaluation *int, notes *string) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE study_sessions
		SET status = 'completed',
			completed_at = $3,
			completion_method = 'manual',
			self_evaluation = $4,
			notes = COALESCE($5, notes),
			updated_at = NOW()
		WHERE id = $1 AND user_id = $2 AND status <> 'completed'
	`, id, userID, at, selfEvaluation, notes)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}
