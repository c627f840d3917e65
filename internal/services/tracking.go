package services

import (
	"context"
	"time"

	"github.com/google/uuid"

	"studia-backend/internal/models"
)

const (
	// minAnalysisDelay floors the first-message analysis delay so trivial
	// remainders don't trigger near-instant analysis.
	minAnalysisDelay = 5 * time.Minute

	// activityAnalysisDelay is the fallback scheduling window for learners
	// who are active but never messaged the assistant.
	activityAnalysisDelay = 5 * time.Minute
)

// completionMethods maps a tracking end trigger to the method stamped on the
// session the cascade closes.
var completionMethods = map[string]string{
	models.EndTriggerQuizSubmitted:      models.MethodQuiz,
	models.EndTriggerContextChanged:     models.MethodContextChanged,
	models.EndTriggerLiaInactivity:      models.MethodLiaInactivity,
	models.EndTriggerActivityInactivity: models.MethodActivityInactivity,
}

func completionMethodFor(endTrigger string) string {
	if m, ok := completionMethods[endTrigger]; ok {
		return m
	}
	return models.MethodManual
}

// firstAnalysisDelay sizes the delay committed to on the learner's first
// assistant message: the estimated remaining work, floored at five minutes.
func firstAnalysisDelay(restanteMinutes int) time.Duration {
	d := time.Duration(restanteMinutes) * time.Minute
	if d < minAnalysisDelay {
		return minAnalysisDelay
	}
	return d
}

type TrackingService struct {
	trackings TrackingStore
	sessions  SessionStore
	events    EventPublisher
	now       func() time.Time
}

func NewTrackingService(trackings TrackingStore, sessions SessionStore, events EventPublisher) *TrackingService {
	return &TrackingService{
		trackings: trackings,
		sessions:  sessions,
		events:    events,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

type StartTrackingInput struct {
	LessonID  uuid.UUID
	SessionID *uuid.UUID
	PlanID    *uuid.UUID
	Trigger   string
	Estimates *models.TimeEstimates
}

type StartTrackingResult struct {
	Tracking *models.LessonTracking `json:"tracking"`
	IsNew    bool                   `json:"is_new"`
}

// StartTracking opens a tracking record for a lesson attempt. Repeated start
// signals for the same (user, lesson, session) touch the existing record
// instead of creating a duplicate, so page reloads are safe.
func (s *TrackingService) StartTracking(ctx context.Context, userID uuid.UUID, in StartTrackingInput) (*StartTrackingResult, error) {
	if in.LessonID == uuid.Nil {
		return nil, &ValidationError{Fields: map[string]string{"lesson_id": "Lesson ID is required"}}
	}

	trigger := in.Trigger
	switch trigger {
	case "":
		trigger = models.StartTriggerManual
	case models.StartTriggerVideoPlay, models.StartTriggerPageLoad, models.StartTriggerManual:
	default:
		return nil, &ValidationError{Fields: map[string]string{"trigger": "trigger must be video_play, page_load, or manual"}}
	}

	now := s.now()

	existing, err := s.trackings.GetActiveForLesson(ctx, userID, in.LessonID, in.SessionID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		if err := s.trackings.TouchActivity(ctx, existing.ID, now); err != nil {
			return nil, err
		}
		existing.LastActivityAt = &now
		return &StartTrackingResult{Tracking: existing, IsNew: false}, nil
	}

	est := models.TimeEstimates{}
	if in.Estimates != nil {
		est = *in.Estimates
	}

	t := &models.LessonTracking{
		UserID:            userID,
		LessonID:          in.LessonID,
		SessionID:         in.SessionID,
		PlanID:            in.PlanID,
		StartTrigger:      trigger,
		StartedAt:         now,
		LastActivityAt:    &now,
		TLessonMinutes:    est.LessonMinutes,
		TVideoMinutes:     est.VideoMinutes,
		TMaterialsMinutes: est.MaterialsMinutes,
		TRestanteMinutes:  est.RemainingMinutes(),
	}
	if trigger == models.StartTriggerVideoPlay {
		t.VideoStartedAt = &now
	}

	if err := s.trackings.Create(ctx, t); err != nil {
		return nil, err
	}

	// First tracking against a session flips it to in_progress, once.
	if in.SessionID != nil {
		if _, err := s.sessions.MarkStarted(ctx, *in.SessionID, now); err != nil {
			return nil, err
		}
	}

	return &StartTrackingResult{Tracking: t, IsNew: true}, nil
}

// RecordEvent appends one lifecycle event to an in_progress tracking record.
// Set-once fields make replayed deliveries no-ops; the meaningful transition
// (first assistant message) schedules the nudge analysis.
func (s *TrackingService) RecordEvent(ctx context.Context, userID, trackingID uuid.UUID, eventType string) error {
	rec, err := s.trackings.GetByID(ctx, trackingID, userID)
	if err != nil {
		return err
	}
	if rec == nil {
		return &NotFoundError{Message: "Tracking record not found"}
	}
	if rec.Status != models.TrackingInProgress {
		return &ConflictError{Message: "Tracking record is already completed"}
	}

	now := s.now()
	patch := models.TrackingPatch{LastActivityAt: &now}

	switch eventType {
	case models.EventVideoEnded:
		patch.VideoEndedAt = &now
		patch.PostContentStartAt = &now

	case models.EventLiaMessage:
		patch.LiaLastMessageAt = &now
		if rec.LiaFirstMessageAt == nil {
			patch.LiaFirstMessageAt = &now
			next := now.Add(firstAnalysisDelay(rec.TRestanteMinutes))
			patch.NextAnalysisAt = &next
		}

	case models.EventActivity:
		if rec.PostContentStartAt != nil && rec.NextAnalysisAt == nil {
			next := now.Add(activityAnalysisDelay)
			patch.NextAnalysisAt = &next
		}

	default:
		return &ValidationError{Fields: map[string]string{"event_type": "event_type must be video_ended, lia_message, or activity"}}
	}

	return s.trackings.ApplyEvent(ctx, rec.ID, patch, now)
}

type CompleteTrackingInput struct {
	TrackingID *uuid.UUID
	LessonID   *uuid.UUID
	EndTrigger string
}

type CompleteTrackingResult struct {
	TrackingID    *uuid.UUID `json:"tracking_id,omitempty"`
	Completed     bool       `json:"completed"`
	SessionClosed bool       `json:"session_closed"`
}

// CompleteTracking finalizes a tracking record and cascades to its session.
// A record that already completed (or never existed for the lesson) is a
// benign no-op: completion requests legitimately race the sweeper.
func (s *TrackingService) CompleteTracking(ctx context.Context, userID uuid.UUID, in CompleteTrackingInput) (*CompleteTrackingResult, error) {
	if in.EndTrigger == "" {
		return nil, &ValidationError{Fields: map[string]string{"end_trigger": "End trigger is required"}}
	}
	if in.TrackingID == nil && in.LessonID == nil {
		return nil, &ValidationError{Fields: map[string]string{"tracking_id": "tracking_id or lesson_id is required"}}
	}

	var rec *models.LessonTracking
	var err error
	if in.TrackingID != nil {
		rec, err = s.trackings.GetByID(ctx, *in.TrackingID, userID)
	} else {
		rec, err = s.trackings.GetLatestActiveForLesson(ctx, userID, *in.LessonID)
	}
	if err != nil {
		return nil, err
	}
	if rec == nil {
		if in.TrackingID != nil {
			return nil, &NotFoundError{Message: "Tracking record not found"}
		}
		// No active record for the lesson: already finalized elsewhere.
		return &CompleteTrackingResult{Completed: false}, nil
	}

	now := s.now()
	return s.finalize(ctx, rec, now, now, in.EndTrigger)
}

// finalize performs the guarded terminal transition and runs the session
// cascade. Shared by explicit completion and the reconciliation sweeper.
func (s *TrackingService) finalize(ctx context.Context, rec *models.LessonTracking, now, completedAt time.Time, endTrigger string) (*CompleteTrackingResult, error) {
	ok, err := s.trackings.CompleteIfInProgress(ctx, rec.ID, rec.UserID, completedAt, endTrigger)
	if err != nil {
		return nil, err
	}
	if !ok {
		// Lost the race: someone else finalized it. Still a success.
		return &CompleteTrackingResult{TrackingID: &rec.ID, Completed: false}, nil
	}

	sessionClosed := false
	if rec.SessionID != nil {
		remaining, err := s.trackings.CountActiveForSession(ctx, *rec.SessionID)
		if err != nil {
			return nil, err
		}
		if remaining == 0 {
			sessionClosed, err = s.sessions.CloseIfInProgress(ctx, *rec.SessionID, now, completionMethodFor(endTrigger))
			if err != nil {
				return nil, err
			}
		}
	}

	if s.events != nil {
		s.events.PublishUpdate(ctx, rec.UserID, models.WSMessage{
			Type: "tracking_completed",
			Payload: models.TrackingUpdate{
				TrackingID:    rec.ID,
				LessonID:      rec.LessonID,
				Status:        models.TrackingCompleted,
				EndTrigger:    endTrigger,
				SessionClosed: sessionClosed,
				SessionID:     rec.SessionID,
			},
		})
	}

	return &CompleteTrackingResult{TrackingID: &rec.ID, Completed: true, SessionClosed: sessionClosed}, nil
}

// GetActiveTracking returns the caller's most recent in_progress record, nil
// when none is open.
func (s *TrackingService) GetActiveTracking(ctx context.Context, userID uuid.UUID) (*models.LessonTracking, error) {
	return s.trackings.GetActiveForUser(ctx, userID)
}
