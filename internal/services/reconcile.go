package services

import (
	"context"
	"log"
	"time"

	"github.com/google/uuid"

	"studia-backend/internal/models"
)

const (
	// inactivityThreshold is how long a learner must be silent before a
	// tracking record is finalized by the sweeper.
	inactivityThreshold = 5 * time.Minute

	// sweepRetryBackoff reschedules records that are still alive.
	sweepRetryBackoff = 5 * time.Minute
)

// sweepDecision is the outcome of evaluating one overdue record.
type sweepDecision struct {
	complete       bool
	endTrigger     string
	completedAt    time.Time
	nextAnalysisAt time.Time
}

// evaluateTracking applies the inactivity rules to one record. Assistant
// inactivity is checked first; general activity only when the assistant flow
// does not fire. Completion timestamps are backdated to the moment the
// learner actually went inactive, not the moment the sweep happened to run.
func evaluateTracking(rec models.LessonTracking, now time.Time) sweepDecision {
	if rec.LiaFirstMessageAt != nil && rec.LiaLastMessageAt != nil {
		if now.Sub(*rec.LiaLastMessageAt) >= inactivityThreshold {
			return sweepDecision{
				complete:    true,
				endTrigger:  models.EndTriggerLiaInactivity,
				completedAt: rec.LiaLastMessageAt.Add(inactivityThreshold),
			}
		}
	}

	if rec.LastActivityAt != nil && now.Sub(*rec.LastActivityAt) >= inactivityThreshold {
		return sweepDecision{
			complete:    true,
			endTrigger:  models.EndTriggerActivityInactivity,
			completedAt: rec.LastActivityAt.Add(inactivityThreshold),
		}
	}

	return sweepDecision{nextAnalysisAt: now.Add(sweepRetryBackoff)}
}

type ReconcileResult struct {
	Processed int `json:"processed"`
	Completed int `json:"completed"`
}

type ReconcileService struct {
	trackings TrackingStore
	tracking  *TrackingService
}

func NewReconcileService(trackings TrackingStore, tracking *TrackingService) *ReconcileService {
	return &ReconcileService{trackings: trackings, tracking: tracking}
}

// Run sweeps overdue tracking records. A nil userID sweeps all users (the
// scheduled variant); otherwise only the given user's records. The sweep is
// level-triggered: safe to call redundantly or concurrently, since every
// terminal mutation is conditioned on current state.
func (s *ReconcileService) Run(ctx context.Context, userID *uuid.UUID, now time.Time) (*ReconcileResult, error) {
	due, err := s.trackings.ListDue(ctx, now, userID)
	if err != nil {
		return nil, err
	}

	result := &ReconcileResult{}
	for i := range due {
		rec := due[i]
		result.Processed++

		decision := evaluateTracking(rec, now)
		if !decision.complete {
			if err := s.trackings.RescheduleAnalysis(ctx, rec.ID, decision.nextAnalysisAt); err != nil {
				log.Printf("reconcile: failed to reschedule tracking %s: %v", rec.ID, err)
			}
			continue
		}

		res, err := s.tracking.finalize(ctx, &rec, now, decision.completedAt, decision.endTrigger)
		if err != nil {
			log.Printf("reconcile: failed to finalize tracking %s: %v", rec.ID, err)
			continue
		}
		if res.Completed {
			result.Completed++
		}
	}

	return result, nil
}
