package services

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"studia-backend/internal/models"
)

const (
	// calendarLookahead is the window checked for conflicts with external
	// calendar events.
	calendarLookahead = 14 * 24 * time.Hour

	// eventDriftTolerance absorbs minor start-time differences before an
	// external event counts as modified.
	eventDriftTolerance = 5 * time.Minute
)

// CalendarProvider fetches a user's events from the external calendar.
type CalendarProvider interface {
	GetCalendarEvents(ctx context.Context, integration *models.CalendarIntegration, from, to time.Time) ([]models.CalendarEvent, error)
}

type CalendarService struct {
	sessions  SessionStore
	calendars CalendarStore
	provider  CalendarProvider
	now       func() time.Time
}

func NewCalendarService(sessions SessionStore, calendars CalendarStore, provider CalendarProvider) *CalendarService {
	return &CalendarService{
		sessions:  sessions,
		calendars: calendars,
		provider:  provider,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// CheckCalendarChanges intersects the external calendar against the learner's
// upcoming planned sessions and reports discrepancies. Report-only: it never
// moves a session. last_sync_at is stamped on every successful check, with or
// without conflicts.
func (s *CalendarService) CheckCalendarChanges(ctx context.Context, userID uuid.UUID) (*models.CalendarCheckResult, error) {
	result := &models.CalendarCheckResult{Changes: []models.CalendarChange{}}

	integration, err := s.calendars.GetIntegration(ctx, userID)
	if err != nil {
		return nil, err
	}
	if integration == nil {
		// No calendar connected: nothing to reconcile.
		return result, nil
	}

	now := s.now()
	from, to := now, now.Add(calendarLookahead)

	events, err := s.provider.GetCalendarEvents(ctx, integration, from, to)
	if err != nil {
		return nil, fmt.Errorf("calendar provider: %w", err)
	}

	planned, err := s.sessions.ListUpcomingPlanned(ctx, userID, from, to)
	if err != nil {
		return nil, err
	}

	result.Changes = append(result.Changes, detectConflicts(planned, events)...)

	synced, err := s.sessions.ListSynced(ctx, userID)
	if err != nil {
		return nil, err
	}
	result.Changes = append(result.Changes, detectEventDrift(synced, events, from, to)...)

	for _, c := range result.Changes {
		if c.Type == models.ChangeConflict {
			result.HasConflicts = true
			break
		}
	}

	if err := s.calendars.TouchLastSync(ctx, integration.ID, now); err != nil {
		return nil, err
	}

	return result, nil
}

// detectConflicts reports every planned session overlapping an external
// event, using the same half-open predicate as the session resolver.
func detectConflicts(sessions []models.StudySession, events []models.CalendarEvent) []models.CalendarChange {
	var changes []models.CalendarChange
	for _, ev := range events {
		for i := range sessions {
			sess := &sessions[i]
			if !overlaps(ev.Start, ev.End, sess.StartTime, sess.EndTime) {
				continue
			}
			// Sessions created from a synced event naturally occupy the same
			// slot as themselves.
			if sess.ExternalEventID != nil && *sess.ExternalEventID == ev.ID {
				continue
			}
			changes = append(changes, models.CalendarChange{
				Type:            models.ChangeConflict,
				SessionID:       sess.ID,
				SessionTitle:    sess.Title,
				EventID:         ev.ID,
				EventTitle:      ev.Title,
				EventStart:      ev.Start,
				SuggestedAction: fmt.Sprintf("Move session %q to a free slot", sess.Title),
			})
		}
	}
	return changes
}

// detectEventDrift reports synced sessions whose linked event vanished from
// the calendar or drifted beyond tolerance.
func detectEventDrift(synced []models.StudySession, events []models.CalendarEvent, from, to time.Time) []models.CalendarChange {
	eventsByID := make(map[string]models.CalendarEvent, len(events))
	for _, ev := range events {
		eventsByID[ev.ID] = ev
	}

	var changes []models.CalendarChange
	for i := range synced {
		sess := &synced[i]
		if sess.ExternalEventID == nil {
			continue
		}
		// Only judge sessions inside the fetched window; anything outside it
		// would look deleted when it simply wasn't fetched.
		if !sess.StartTime.Before(to) || !sess.EndTime.After(from) {
			continue
		}

		ev, found := eventsByID[*sess.ExternalEventID]
		if !found {
			changes = append(changes, models.CalendarChange{
				Type:            models.ChangeDeletedEvent,
				SessionID:       sess.ID,
				SessionTitle:    sess.Title,
				EventID:         *sess.ExternalEventID,
				SuggestedAction: fmt.Sprintf("The calendar event for %q was deleted; remove or re-sync the session", sess.Title),
			})
			continue
		}

		drift := sess.StartTime.Sub(ev.Start)
		if drift < 0 {
			drift = -drift
		}
		if drift > eventDriftTolerance {
			changes = append(changes, models.CalendarChange{
				Type:            models.ChangeModifiedEvent,
				SessionID:       sess.ID,
				SessionTitle:    sess.Title,
				EventID:         ev.ID,
				EventTitle:      ev.Title,
				EventStart:      ev.Start,
				SuggestedAction: fmt.Sprintf("The calendar event for %q moved; update the session to match", sess.Title),
			})
		}
	}
	return changes
}
