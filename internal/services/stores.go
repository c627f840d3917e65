package services

import (
	"context"
	"time"

	"github.com/google/uuid"

	"studia-backend/internal/models"
)

// TrackingStore is the persistence surface of the tracking core. Implemented
// by repository.TrackingRepo; tests substitute an in-memory version.
type TrackingStore interface {
	Create(ctx context.Context, t *models.LessonTracking) error
	GetByID(ctx context.Context, id, userID uuid.UUID) (*models.LessonTracking, error)
	GetActiveForLesson(ctx context.Context, userID, lessonID uuid.UUID, sessionID *uuid.UUID) (*models.LessonTracking, error)
	GetLatestActiveForLesson(ctx context.Context, userID, lessonID uuid.UUID) (*models.LessonTracking, error)
	GetActiveForUser(ctx context.Context, userID uuid.UUID) (*models.LessonTracking, error)
	ListDue(ctx context.Context, now time.Time, userID *uuid.UUID) ([]models.LessonTracking, error)
	TouchActivity(ctx context.Context, id uuid.UUID, at time.Time) error
	ApplyEvent(ctx context.Context, id uuid.UUID, p models.TrackingPatch, at time.Time) error
	CompleteIfInProgress(ctx context.Context, id, userID uuid.UUID, completedAt time.Time, endTrigger string) (bool, error)
	RescheduleAnalysis(ctx context.Context, id uuid.UUID, at time.Time) error
	CountActiveForSession(ctx context.Context, sessionID uuid.UUID) (int, error)
}

// SessionStore is the study-session surface shared by the tracking cascade,
// the planner and calendar reconciliation.
type SessionStore interface {
	Create(ctx context.Context, s *models.StudySession) error
	GetByID(ctx context.Context, id, userID uuid.UUID) (*models.StudySession, error)
	ListPlanned(ctx context.Context, planID uuid.UUID, excludeID *uuid.UUID) ([]models.StudySession, error)
	ListUpcomingPlanned(ctx context.Context, userID uuid.UUID, from, to time.Time) ([]models.StudySession, error)
	ListSynced(ctx context.Context, userID uuid.UUID) ([]models.StudySession, error)
	UpdateInterval(ctx context.Context, id, userID uuid.UUID, start, end, at time.Time) (bool, error)
	UpdateDetails(ctx context.Context, id, userID uuid.UUID, title, description, notes *string) (bool, error)
	Delete(ctx context.Context, id, userID uuid.UUID) (bool, error)
	MarkStarted(ctx context.Context, id uuid.UUID, at time.Time) (bool, error)
	CloseIfInProgress(ctx context.Context, id uuid.UUID, at time.Time, method string) (bool, error)
	CompleteByUser(ctx context.Context, id, userID uuid.UUID, at time.Time, selfEvaluation *int, notes *string) (bool, error)
}

// PlanStore resolves plan ownership before session mutations.
type PlanStore interface {
	GetOwned(ctx context.Context, planID, userID uuid.UUID) (*models.StudyPlan, error)
}

// CalendarStore persists the external-calendar link.
type CalendarStore interface {
	GetIntegration(ctx context.Context, userID uuid.UUID) (*models.CalendarIntegration, error)
	UpdateTokens(ctx context.Context, id uuid.UUID, accessToken string, expiresAt *time.Time) error
	TouchLastSync(ctx context.Context, id uuid.UUID, at time.Time) error
}

// EventPublisher pushes live updates to the owning user's sockets. A nil
// publisher is a no-op.
type EventPublisher interface {
	PublishUpdate(ctx context.Context, userID uuid.UUID, msg models.WSMessage)
}
