package services

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"studia-backend/internal/models"
)

const (
	minSessionDuration = 5 * time.Minute
	maxSessionDuration = 180 * time.Minute
)

// overlaps reports whether the half-open intervals [s1,e1) and [s2,e2)
// intersect. Touching endpoints do not overlap.
func overlaps(s1, e1, s2, e2 time.Time) bool {
	return s1.Before(e2) && e1.After(s2)
}

// findConflict returns the first session whose interval overlaps the
// candidate, or nil.
func findConflict(sessions []models.StudySession, start, end time.Time) *models.StudySession {
	for i := range sessions {
		if overlaps(start, end, sessions[i].StartTime, sessions[i].EndTime) {
			return &sessions[i]
		}
	}
	return nil
}

type PlannerService struct {
	plans    PlanStore
	sessions SessionStore
	now      func() time.Time
}

func NewPlannerService(plans PlanStore, sessions SessionStore) *PlannerService {
	return &PlannerService{
		plans:    plans,
		sessions: sessions,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// ownedPlan resolves plan ownership before any session mutation. Missing and
// foreign plans are indistinguishable to the caller.
func (s *PlannerService) ownedPlan(ctx context.Context, planID, userID uuid.UUID) (*models.StudyPlan, error) {
	plan, err := s.plans.GetOwned(ctx, planID, userID)
	if err != nil {
		return nil, err
	}
	if plan == nil {
		return nil, &NotFoundError{Message: "Study plan not found"}
	}
	return plan, nil
}

// CheckConflict evaluates a candidate interval against the plan's planned
// sessions. Completed and cancelled sessions never block.
func (s *PlannerService) CheckConflict(ctx context.Context, planID uuid.UUID, start, end time.Time, excludeID *uuid.UUID) (*models.StudySession, error) {
	planned, err := s.sessions.ListPlanned(ctx, planID, excludeID)
	if err != nil {
		return nil, err
	}
	return findConflict(planned, start, end), nil
}

type CreateSessionInput struct {
	Title       string
	Description *string
	StartTime   time.Time
	EndTime     time.Time
	CourseID    *uuid.UUID
	LessonID    *uuid.UUID
}

func (s *PlannerService) CreateSession(ctx context.Context, userID, planID uuid.UUID, in CreateSessionInput) (*models.StudySession, error) {
	fieldErrors := make(map[string]string)
	if in.Title == "" {
		fieldErrors["title"] = "Title is required"
	}
	if in.StartTime.IsZero() || in.EndTime.IsZero() {
		fieldErrors["start_time"] = "start_time and end_time are required"
	} else if !in.EndTime.After(in.StartTime) {
		fieldErrors["end_time"] = "end_time must be after start_time"
	}
	if len(fieldErrors) > 0 {
		return nil, &ValidationError{Fields: fieldErrors}
	}

	if _, err := s.ownedPlan(ctx, planID, userID); err != nil {
		return nil, err
	}

	conflict, err := s.CheckConflict(ctx, planID, in.StartTime, in.EndTime, nil)
	if err != nil {
		return nil, err
	}
	if conflict != nil {
		return nil, &ConflictError{Message: fmt.Sprintf("Conflict with existing session: %q", conflict.Title)}
	}

	session := &models.StudySession{
		UserID:      userID,
		PlanID:      planID,
		CourseID:    in.CourseID,
		LessonID:    in.LessonID,
		Title:       in.Title,
		Description: in.Description,
		StartTime:   in.StartTime,
		EndTime:     in.EndTime,
		Status:      models.SessionPlanned,
	}
	if err := s.sessions.Create(ctx, session); err != nil {
		return nil, err
	}
	return session, nil
}

// MoveSession relocates a session, ignoring its own prior interval for the
// conflict check.
func (s *PlannerService) MoveSession(ctx context.Context, userID, planID, sessionID uuid.UUID, newStart, newEnd time.Time) error {
	if newStart.IsZero() || newEnd.IsZero() || !newEnd.After(newStart) {
		return &ValidationError{Fields: map[string]string{"new_start_time": "a valid new interval is required"}}
	}

	if _, err := s.ownedPlan(ctx, planID, userID); err != nil {
		return err
	}

	conflict, err := s.CheckConflict(ctx, planID, newStart, newEnd, &sessionID)
	if err != nil {
		return err
	}
	if conflict != nil {
		return &ConflictError{Message: fmt.Sprintf("Conflict with existing session: %q", conflict.Title)}
	}

	ok, err := s.sessions.UpdateInterval(ctx, sessionID, userID, newStart, newEnd, s.now())
	if err != nil {
		return err
	}
	if !ok {
		return &NotFoundError{Message: "Session not found"}
	}
	return nil
}

// ResizeSession recomputes end_time from the new duration and re-runs the
// overlap check before committing.
func (s *PlannerService) ResizeSession(ctx context.Context, userID, planID, sessionID uuid.UUID, durationMinutes int) error {
	duration := time.Duration(durationMinutes) * time.Minute
	if duration < minSessionDuration || duration > maxSessionDuration {
		return &ValidationError{Fields: map[string]string{"duration_minutes": "Duration must be between 5 and 180 minutes"}}
	}

	if _, err := s.ownedPlan(ctx, planID, userID); err != nil {
		return err
	}

	session, err := s.sessions.GetByID(ctx, sessionID, userID)
	if err != nil {
		return err
	}
	if session == nil {
		return &NotFoundError{Message: "Session not found"}
	}

	newEnd := session.StartTime.Add(duration)
	conflict, err := s.CheckConflict(ctx, planID, session.StartTime, newEnd, &sessionID)
	if err != nil {
		return err
	}
	if conflict != nil {
		return &ConflictError{Message: fmt.Sprintf("Conflict with existing session: %q", conflict.Title)}
	}

	_, err = s.sessions.UpdateInterval(ctx, sessionID, userID, session.StartTime, newEnd, s.now())
	return err
}

// UpdateSession patches the free-text fields only.
func (s *PlannerService) UpdateSession(ctx context.Context, userID, planID, sessionID uuid.UUID, title, description, notes *string) error {
	if title == nil && description == nil && notes == nil {
		return &ValidationError{Fields: map[string]string{"fields": "No updatable fields supplied"}}
	}

	if _, err := s.ownedPlan(ctx, planID, userID); err != nil {
		return err
	}

	ok, err := s.sessions.UpdateDetails(ctx, sessionID, userID, title, description, notes)
	if err != nil {
		return err
	}
	if !ok {
		return &NotFoundError{Message: "Session not found"}
	}
	return nil
}

func (s *PlannerService) DeleteSession(ctx context.Context, userID, planID, sessionID uuid.UUID) error {
	if _, err := s.ownedPlan(ctx, planID, userID); err != nil {
		return err
	}

	ok, err := s.sessions.Delete(ctx, sessionID, userID)
	if err != nil {
		return err
	}
	if !ok {
		return &NotFoundError{Message: "Session not found"}
	}
	return nil
}

// CompleteSession is the explicit user-driven close, with an optional
// self-evaluation.
func (s *PlannerService) CompleteSession(ctx context.Context, userID, planID, sessionID uuid.UUID, selfEvaluation *int, notes *string) error {
	if _, err := s.ownedPlan(ctx, planID, userID); err != nil {
		return err
	}

	ok, err := s.sessions.CompleteByUser(ctx, sessionID, userID, s.now(), selfEvaluation, notes)
	if err != nil {
		return err
	}
	if !ok {
		return &NotFoundError{Message: "Session not found or already completed"}
	}
	return nil
}

type RescheduleBatchResult struct {
	SuccessCount int `json:"success_count"`
	ErrorCount   int `json:"error_count"`
}

// RescheduleBatch applies N interval updates concurrently without pairwise
// conflict pre-checks. Partial success is an accepted outcome: each item
// stands or falls on its own, nothing is rolled back.
func (s *PlannerService) RescheduleBatch(ctx context.Context, userID, planID uuid.UUID, items []models.SessionReschedule) (*RescheduleBatchResult, error) {
	if len(items) == 0 {
		return nil, &ValidationError{Fields: map[string]string{"sessions": "At least one reschedule item is required"}}
	}

	if _, err := s.ownedPlan(ctx, planID, userID); err != nil {
		return nil, err
	}

	now := s.now()
	outcomes := make(chan error, len(items))
	var wg sync.WaitGroup

	for _, item := range items {
		wg.Add(1)
		go func(item models.SessionReschedule) {
			defer wg.Done()
			ok, err := s.sessions.UpdateInterval(ctx, item.SessionID, userID, item.NewStart, item.NewEnd, now)
			if err == nil && !ok {
				err = &NotFoundError{Message: "Session not found"}
			}
			outcomes <- err
		}(item)
	}

	wg.Wait()
	close(outcomes)

	result := &RescheduleBatchResult{}
	for err := range outcomes {
		if err != nil {
			result.ErrorCount++
			log.Printf("reschedule batch: %v", err)
		} else {
			result.SuccessCount++
		}
	}
	return result, nil
}
