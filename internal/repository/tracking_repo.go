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

const trackingColumns = `id, user_id, lesson_id, session_id, plan_id, status, start_trigger, end_trigger,
	started_at, video_started_at, video_ended_at, post_content_start_at,
	lia_first_message_at, lia_last_message_at, last_activity_at, completed_at, next_analysis_at,
	t_lesson_minutes, t_video_minutes, t_materials_minutes, t_restante_minutes,
	created_at, updated_at`

type TrackingRepo struct {
	pool *pgxpool.Pool
}

func NewTrackingRepo(pool *pgxpool.Pool) *TrackingRepo {
	return &TrackingRepo{pool: pool}
}

func scanTracking(row pgx.Row) (*models.LessonTracking, error) {
	t := &models.LessonTracking{}
	err := row.Scan(
		&t.ID, &t.UserID, &t.LessonID, &t.SessionID, &t.PlanID, &t.Status, &t.StartTrigger, &t.EndTrigger,
		&t.StartedAt, &t.VideoStartedAt, &t.VideoEndedAt, &t.PostContentStartAt,
		&t.LiaFirstMessageAt, &t.LiaLastMessageAt, &t.LastActivityAt, &t.CompletedAt, &t.NextAnalysisAt,
		&t.TLessonMinutes, &t.TVideoMinutes, &t.TMaterialsMinutes, &t.TRestanteMinutes,
		&t.CreatedAt, &t.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return t, nil
}

func (r *TrackingRepo) Create(ctx context.Context, t *models.LessonTracking) error {
	query := `
		INSERT INTO lesson_trackings (
			id, user_id, lesson_id, session_id, plan_id, status, start_trigger,
			started_at, video_started_at, last_activity_at,
			t_lesson_minutes, t_video_minutes, t_materials_minutes, t_restante_minutes
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		RETURNING created_at, updated_at`

	t.ID = uuid.New()
	t.Status = models.TrackingInProgress

	return r.pool.QueryRow(ctx, query,
		t.ID, t.UserID, t.LessonID, t.SessionID, t.PlanID, t.Status, t.StartTrigger,
		t.StartedAt, t.VideoStartedAt, t.LastActivityAt,
		t.TLessonMinutes, t.TVideoMinutes, t.TMaterialsMinutes, t.TRestanteMinutes,
	).Scan(&t.CreatedAt, &t.UpdatedAt)
}

func (r *TrackingRepo) GetByID(ctx context.Context, id, userID uuid.UUID) (*models.LessonTracking, error) {
	query := `SELECT ` + trackingColumns + ` FROM lesson_trackings WHERE id = $1 AND user_id = $2`
	t, err := scanTracking(r.pool.QueryRow(ctx, query, id, userID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return t, err
}

// GetActiveForLesson returns the in_progress record for the (user, lesson,
// session) triple, nil when none exists. A nil sessionID matches records
// without a session.
func (r *TrackingRepo) GetActiveForLesson(ctx context.Context, userID, lessonID uuid.UUID, sessionID *uuid.UUID) (*models.LessonTracking, error) {
	query := `
		SELECT ` + trackingColumns + `
		FROM lesson_trackings
		WHERE user_id = $1 AND lesson_id = $2 AND status = 'in_progress'
		  AND session_id IS NOT DISTINCT FROM $3
		ORDER BY started_at DESC
		LIMIT 1`
	t, err := scanTracking(r.pool.QueryRow(ctx, query, userID, lessonID, sessionID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return t, err
}

// GetLatestActiveForLesson ignores the session scoping; completion requests
// keyed by lesson id use the most recent in_progress record.
func (r *TrackingRepo) GetLatestActiveForLesson(ctx context.Context, userID, lessonID uuid.UUID) (*models.LessonTracking, error) {
	query := `
		SELECT ` + trackingColumns + `
		FROM lesson_trackings
		WHERE user_id = $1 AND lesson_id = $2 AND status = 'in_progress'
		ORDER BY started_at DESC
		LIMIT 1`
	t, err := scanTracking(r.pool.QueryRow(ctx, query, userID, lessonID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return t, err
}

func (r *TrackingRepo) GetActiveForUser(ctx context.Context, userID uuid.UUID) (*models.LessonTracking, error) {
	query := `
		SELECT ` + trackingColumns + `
		FROM lesson_trackings
		WHERE user_id = $1 AND status = 'in_progress'
		ORDER BY started_at DESC
		LIMIT 1`
	t, err := scanTracking(r.pool.QueryRow(ctx, query, userID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return t, err
}

// ListDue returns records whose scheduled analysis time has passed. A nil
// userID scans all users (scheduled sweep).
func (r *TrackingRepo) ListDue(ctx context.Context, now time.Time, userID *uuid.UUID) ([]models.LessonTracking, error) {
	query := `
		SELECT ` + trackingColumns + `
		FROM lesson_trackings
		WHERE status = 'in_progress'
		  AND next_analysis_at IS NOT NULL
		  AND next_analysis_at <= $1
		  AND ($2::uuid IS NULL OR user_id = $2)
		ORDER BY next_analysis_at`

	rows, err := r.pool.Query(ctx, query, now, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.LessonTracking
	for rows.Next() {
		t, err := scanTracking(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *t)
	}
	return out, rows.Err()
}

// TouchActivity stamps last_activity_at on an in_progress record. Used by the
// idempotent start path.
func (r *TrackingRepo) TouchActivity(ctx context.Context, id uuid.UUID, at time.Time) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE lesson_trackings
		SET last_activity_at = $2, updated_at = $2
		WHERE id = $1 AND status = 'in_progress'
	`, id, at)
	return err
}

// ApplyEvent writes the field patch produced by one recorded event. Set-once
// fields go through COALESCE so a replayed event leaves the first value in
// place.
func (r *TrackingRepo) ApplyEvent(ctx context.Context, id uuid.UUID, p models.TrackingPatch, at time.Time) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE lesson_trackings
		SET video_ended_at        = COALESCE(video_ended_at, $2),
			post_content_start_at = COALESCE(post_content_start_at, $3),
			lia_first_message_at  = COALESCE(lia_first_message_at, $4),
			lia_last_message_at   = COALESCE($5, lia_last_message_at),
			last_activity_at      = COALESCE($6, last_activity_at),
			next_analysis_at      = COALESCE(next_analysis_at, $7),
			updated_at            = $8
		WHERE id = $1 AND status = 'in_progress'
	`, id, p.VideoEndedAt, p.PostContentStartAt, p.LiaFirstMessageAt, p.LiaLastMessageAt, p.LastActivityAt, p.NextAnalysisAt, at)
	return err
}

// CompleteIfInProgress performs the terminal transition guarded on current
// status. Returns false when another writer got there first.
func (r *TrackingRepo) CompleteIfInProgress(ctx context.Context, id, userID uuid.UUID, completedAt time.Time, endTrigger string) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE lesson_trackings
		SET status = 'completed',
			completed_at = $3,
			end_trigger = $4,
			next_analysis_at = NULL,
			updated_at = NOW()
		WHERE id = $1 AND user_id = $2 AND status = 'in_progress'
	`, id, userID, completedAt, endTrigger)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// RescheduleAnalysis pushes next_analysis_at forward for a still-alive record.
func (r *TrackingRepo) RescheduleAnalysis(ctx context.Context, id uuid.UUID, at time.Time) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE lesson_trackings
		SET next_analysis_at = $2, updated_at = NOW()
		WHERE id = $1 AND status = 'in_progress'
	`, id, at)
	return err
}

// CountActiveForSession counts the in_progress siblings of a session, for the
// cascade-closure decision.
func (r *TrackingRepo) CountActiveForSession(ctx context.Context, sessionID uuid.UUID) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM lesson_trackings
		WHERE session_id = $1 AND status = 'in_progress'
	`, sessionID).Scan(&n)
	return n, err
}
