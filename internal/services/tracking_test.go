package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"studia-backend/internal/models"
)

type capturedUpdate struct {
	userID uuid.UUID
	msg    models.WSMessage
}

type memPublisher struct {
	updates []capturedUpdate
}

func (p *memPublisher) PublishUpdate(_ context.Context, userID uuid.UUID, msg models.WSMessage) {
	p.updates = append(p.updates, capturedUpdate{userID: userID, msg: msg})
}

func newTestTrackingService(now time.Time) (*TrackingService, *memTrackingStore, *memSessionStore, *memPublisher) {
	trackings := newMemTrackingStore()
	sessions := newMemSessionStore()
	pub := &memPublisher{}
	svc := NewTrackingService(trackings, sessions, pub)
	svc.now = fixedClock(now)
	return svc, trackings, sessions, pub
}

func TestStartTracking_CreatesNewRecord(t *testing.T) {
	now := time.Date(2026, 3, 10, 10, 0, 0, 0, time.UTC)
	svc, trackings, _, _ := newTestTrackingService(now)
	userID, lessonID := uuid.New(), uuid.New()

	res, err := svc.StartTracking(context.Background(), userID, StartTrackingInput{
		LessonID: lessonID,
		Trigger:  models.StartTriggerVideoPlay,
		Estimates: &models.TimeEstimates{
			LessonMinutes: 30, VideoMinutes: 10, MaterialsMinutes: 5,
		},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !res.IsNew {
		t.Fatalf("expected IsNew=true on first start")
	}

	rec := trackings.get(res.Tracking.ID)
	if rec.Status != models.TrackingInProgress {
		t.Fatalf("expected status in_progress, got %s", rec.Status)
	}
	if rec.VideoStartedAt == nil || !rec.VideoStartedAt.Equal(now) {
		t.Fatalf("expected video_play start to stamp video_started_at")
	}
	if rec.TRestanteMinutes != 15 {
		t.Fatalf("expected t_restante=15, got %d", rec.TRestanteMinutes)
	}
}

func TestStartTracking_IdempotentPerLessonAndSession(t *testing.T) {
	now := time.Date(2026, 3, 10, 10, 0, 0, 0, time.UTC)
	svc, _, _, _ := newTestTrackingService(now)
	userID, lessonID := uuid.New(), uuid.New()

	first, err := svc.StartTracking(context.Background(), userID, StartTrackingInput{LessonID: lessonID})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	later := now.Add(2 * time.Minute)
	svc.now = fixedClock(later)

	second, err := svc.StartTracking(context.Background(), userID, StartTrackingInput{LessonID: lessonID})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if second.IsNew {
		t.Fatalf("repeated start must reuse the active record")
	}
	if second.Tracking.ID != first.Tracking.ID {
		t.Fatalf("expected the same record, got %s and %s", first.Tracking.ID, second.Tracking.ID)
	}
	if second.Tracking.LastActivityAt == nil || !second.Tracking.LastActivityAt.Equal(later) {
		t.Fatalf("repeated start must refresh last_activity_at")
	}
}

func TestStartTracking_DifferentSessionGetsOwnRecord(t *testing.T) {
	now := time.Date(2026, 3, 10, 10, 0, 0, 0, time.UTC)
	svc, _, sessions, _ := newTestTrackingService(now)
	userID, lessonID := uuid.New(), uuid.New()
	sessionID := sessions.add(models.StudySession{UserID: userID, PlanID: uuid.New(), Title: "Math"})

	bare, err := svc.StartTracking(context.Background(), userID, StartTrackingInput{LessonID: lessonID})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	within, err := svc.StartTracking(context.Background(), userID, StartTrackingInput{
		LessonID:  lessonID,
		SessionID: &sessionID,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !within.IsNew {
		t.Fatalf("same lesson in a different session must open a new record")
	}
	if within.Tracking.ID == bare.Tracking.ID {
		t.Fatalf("expected distinct records per session context")
	}

	sess := sessions.get(sessionID)
	if sess.Status != models.SessionInProgress || sess.StartedAt == nil {
		t.Fatalf("first tracking against a session must mark it started")
	}
}

func TestStartTracking_RejectsUnknownTrigger(t *testing.T) {
	svc, _, _, _ := newTestTrackingService(time.Now().UTC())

	_, err := svc.StartTracking(context.Background(), uuid.New(), StartTrackingInput{
		LessonID: uuid.New(),
		Trigger:  "teleport",
	})
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
}

func TestRecordEvent_FirstMessageSchedulesAnalysis(t *testing.T) {
	now := time.Date(2026, 3, 10, 10, 0, 0, 0, time.UTC)
	svc, trackings, _, _ := newTestTrackingService(now)
	userID := uuid.New()

	res, err := svc.StartTracking(context.Background(), userID, StartTrackingInput{
		LessonID:  uuid.New(),
		Estimates: &models.TimeEstimates{LessonMinutes: 30, VideoMinutes: 10, MaterialsMinutes: 5},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	msgAt := now.Add(3 * time.Minute)
	svc.now = fixedClock(msgAt)
	if err := svc.RecordEvent(context.Background(), userID, res.Tracking.ID, models.EventLiaMessage); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	rec := trackings.get(res.Tracking.ID)
	if rec.LiaFirstMessageAt == nil || !rec.LiaFirstMessageAt.Equal(msgAt) {
		t.Fatalf("first message must stamp lia_first_message_at")
	}
	want := msgAt.Add(15 * time.Minute)
	if rec.NextAnalysisAt == nil || !rec.NextAnalysisAt.Equal(want) {
		t.Fatalf("expected next_analysis_at=%v, got %v", want, rec.NextAnalysisAt)
	}

	// A second message moves the last-message anchor but never the schedule.
	laterAt := msgAt.Add(2 * time.Minute)
	svc.now = fixedClock(laterAt)
	if err := svc.RecordEvent(context.Background(), userID, res.Tracking.ID, models.EventLiaMessage); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	rec = trackings.get(res.Tracking.ID)
	if !rec.LiaFirstMessageAt.Equal(msgAt) {
		t.Fatalf("lia_first_message_at must be set-once")
	}
	if rec.LiaLastMessageAt == nil || !rec.LiaLastMessageAt.Equal(laterAt) {
		t.Fatalf("lia_last_message_at must advance on every message")
	}
	if !rec.NextAnalysisAt.Equal(want) {
		t.Fatalf("next_analysis_at must not move on later messages, got %v", rec.NextAnalysisAt)
	}
}

func TestRecordEvent_FirstMessageFloorsDelayAtFiveMinutes(t *testing.T) {
	now := time.Date(2026, 3, 10, 10, 0, 0, 0, time.UTC)
	svc, trackings, _, _ := newTestTrackingService(now)
	userID := uuid.New()

	res, err := svc.StartTracking(context.Background(), userID, StartTrackingInput{
		LessonID:  uuid.New(),
		Estimates: &models.TimeEstimates{LessonMinutes: 10, VideoMinutes: 10},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := svc.RecordEvent(context.Background(), userID, res.Tracking.ID, models.EventLiaMessage); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	rec := trackings.get(res.Tracking.ID)
	want := now.Add(5 * time.Minute)
	if rec.NextAnalysisAt == nil || !rec.NextAnalysisAt.Equal(want) {
		t.Fatalf("expected floored next_analysis_at=%v, got %v", want, rec.NextAnalysisAt)
	}
}

func TestRecordEvent_VideoEndedIsSetOnce(t *testing.T) {
	now := time.Date(2026, 3, 10, 10, 0, 0, 0, time.UTC)
	svc, trackings, _, _ := newTestTrackingService(now)
	userID := uuid.New()

	res, err := svc.StartTracking(context.Background(), userID, StartTrackingInput{LessonID: uuid.New()})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := svc.RecordEvent(context.Background(), userID, res.Tracking.ID, models.EventVideoEnded); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	svc.now = fixedClock(now.Add(time.Minute))
	if err := svc.RecordEvent(context.Background(), userID, res.Tracking.ID, models.EventVideoEnded); err != nil {
		t.Fatalf("replayed delivery must be accepted: %v", err)
	}

	rec := trackings.get(res.Tracking.ID)
	if rec.VideoEndedAt == nil || !rec.VideoEndedAt.Equal(now) {
		t.Fatalf("video_ended_at must keep the first value, got %v", rec.VideoEndedAt)
	}
	if rec.PostContentStartAt == nil || !rec.PostContentStartAt.Equal(now) {
		t.Fatalf("post_content_start_at must keep the first value, got %v", rec.PostContentStartAt)
	}
}

func TestRecordEvent_ActivitySchedulesFallbackOnlyAfterVideo(t *testing.T) {
	now := time.Date(2026, 3, 10, 10, 0, 0, 0, time.UTC)
	svc, trackings, _, _ := newTestTrackingService(now)
	userID := uuid.New()

	res, err := svc.StartTracking(context.Background(), userID, StartTrackingInput{LessonID: uuid.New()})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Before the post-content phase: activity only refreshes the heartbeat.
	if err := svc.RecordEvent(context.Background(), userID, res.Tracking.ID, models.EventActivity); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec := trackings.get(res.Tracking.ID); rec.NextAnalysisAt != nil {
		t.Fatalf("activity before post-content must not schedule analysis")
	}

	if err := svc.RecordEvent(context.Background(), userID, res.Tracking.ID, models.EventVideoEnded); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	actAt := now.Add(time.Minute)
	svc.now = fixedClock(actAt)
	if err := svc.RecordEvent(context.Background(), userID, res.Tracking.ID, models.EventActivity); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	rec := trackings.get(res.Tracking.ID)
	want := actAt.Add(5 * time.Minute)
	if rec.NextAnalysisAt == nil || !rec.NextAnalysisAt.Equal(want) {
		t.Fatalf("expected fallback next_analysis_at=%v, got %v", want, rec.NextAnalysisAt)
	}
	if rec.LastActivityAt == nil || !rec.LastActivityAt.Equal(actAt) {
		t.Fatalf("activity must refresh last_activity_at")
	}
}

func TestRecordEvent_CompletedRecordIsTerminal(t *testing.T) {
	now := time.Date(2026, 3, 10, 10, 0, 0, 0, time.UTC)
	svc, trackings, _, _ := newTestTrackingService(now)
	userID := uuid.New()

	res, err := svc.StartTracking(context.Background(), userID, StartTrackingInput{LessonID: uuid.New()})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := svc.CompleteTracking(context.Background(), userID, CompleteTrackingInput{
		TrackingID: &res.Tracking.ID,
		EndTrigger: models.EndTriggerQuizSubmitted,
	}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	err = svc.RecordEvent(context.Background(), userID, res.Tracking.ID, models.EventActivity)
	var cerr *ConflictError
	if !errors.As(err, &cerr) {
		t.Fatalf("expected ConflictError on a completed record, got %v", err)
	}

	rec := trackings.get(res.Tracking.ID)
	if rec.LastActivityAt != nil && rec.LastActivityAt.After(now) {
		t.Fatalf("completed record must not be mutated by late events")
	}
}

func TestRecordEvent_UnknownTracking(t *testing.T) {
	svc, _, _, _ := newTestTrackingService(time.Now().UTC())

	err := svc.RecordEvent(context.Background(), uuid.New(), uuid.New(), models.EventActivity)
	var nerr *NotFoundError
	if !errors.As(err, &nerr) {
		t.Fatalf("expected NotFoundError, got %v", err)
	}
}

func TestCompleteTracking_CascadesToSessionOnLastRecord(t *testing.T) {
	now := time.Date(2026, 3, 10, 10, 0, 0, 0, time.UTC)
	svc, _, sessions, pub := newTestTrackingService(now)
	userID := uuid.New()
	sessionID := sessions.add(models.StudySession{UserID: userID, PlanID: uuid.New(), Title: "Physics"})

	first, err := svc.StartTracking(context.Background(), userID, StartTrackingInput{LessonID: uuid.New(), SessionID: &sessionID})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	second, err := svc.StartTracking(context.Background(), userID, StartTrackingInput{LessonID: uuid.New(), SessionID: &sessionID})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	res, err := svc.CompleteTracking(context.Background(), userID, CompleteTrackingInput{
		TrackingID: &first.Tracking.ID,
		EndTrigger: models.EndTriggerQuizSubmitted,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !res.Completed || res.SessionClosed {
		t.Fatalf("session must stay open while a sibling tracking is active")
	}
	if sessions.get(sessionID).Status != models.SessionInProgress {
		t.Fatalf("session closed too early")
	}

	res, err = svc.CompleteTracking(context.Background(), userID, CompleteTrackingInput{
		TrackingID: &second.Tracking.ID,
		EndTrigger: models.EndTriggerContextChanged,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !res.Completed || !res.SessionClosed {
		t.Fatalf("closing the last tracking must close the session")
	}

	sess := sessions.get(sessionID)
	if sess.Status != models.SessionCompleted {
		t.Fatalf("expected session completed, got %s", sess.Status)
	}
	if sess.CompletionMethod == nil || *sess.CompletionMethod != models.MethodContextChanged {
		t.Fatalf("expected completion method context_changed, got %v", sess.CompletionMethod)
	}

	if len(pub.updates) != 2 {
		t.Fatalf("expected one live update per completion, got %d", len(pub.updates))
	}
	if pub.updates[0].msg.Type != "tracking_completed" {
		t.Fatalf("unexpected update type %q", pub.updates[0].msg.Type)
	}
}

func TestCompleteTracking_ByLessonWithNoActiveRecordIsNoOp(t *testing.T) {
	svc, _, _, _ := newTestTrackingService(time.Now().UTC())
	lessonID := uuid.New()

	res, err := svc.CompleteTracking(context.Background(), uuid.New(), CompleteTrackingInput{
		LessonID:   &lessonID,
		EndTrigger: models.EndTriggerManual,
	})
	if err != nil {
		t.Fatalf("expected benign no-op, got %v", err)
	}
	if res.Completed {
		t.Fatalf("nothing to complete, Completed must be false")
	}
}

func TestCompleteTracking_AlreadyCompletedIsBenign(t *testing.T) {
	now := time.Date(2026, 3, 10, 10, 0, 0, 0, time.UTC)
	svc, trackings, _, _ := newTestTrackingService(now)
	userID := uuid.New()

	res, err := svc.StartTracking(context.Background(), userID, StartTrackingInput{LessonID: uuid.New()})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := svc.CompleteTracking(context.Background(), userID, CompleteTrackingInput{
		TrackingID: &res.Tracking.ID,
		EndTrigger: models.EndTriggerQuizSubmitted,
	}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	again, err := svc.CompleteTracking(context.Background(), userID, CompleteTrackingInput{
		TrackingID: &res.Tracking.ID,
		EndTrigger: models.EndTriggerManual,
	})
	if err != nil {
		t.Fatalf("repeated completion must not error: %v", err)
	}
	if again.Completed {
		t.Fatalf("second completion must lose the guarded transition")
	}

	rec := trackings.get(res.Tracking.ID)
	if rec.EndTrigger == nil || *rec.EndTrigger != models.EndTriggerQuizSubmitted {
		t.Fatalf("first completion's end trigger must stick, got %v", rec.EndTrigger)
	}
}

func TestCompletionMethodFor(t *testing.T) {
	cases := map[string]string{
		models.EndTriggerQuizSubmitted:      models.MethodQuiz,
		models.EndTriggerContextChanged:     models.MethodContextChanged,
		models.EndTriggerLiaInactivity:      models.MethodLiaInactivity,
		models.EndTriggerActivityInactivity: models.MethodActivityInactivity,
		models.EndTriggerManual:             models.MethodManual,
		"something_else":                    models.MethodManual,
	}
	for trigger, want := range cases {
		if got := completionMethodFor(trigger); got != want {
			t.Fatalf("completionMethodFor(%q)=%q, want %q", trigger, got, want)
		}
	}
}

func TestFirstAnalysisDelay(t *testing.T) {
	cases := []struct {
		restante int
		want     time.Duration
	}{
		{restante: 15, want: 15 * time.Minute},
		{restante: 5, want: 5 * time.Minute},
		{restante: 3, want: 5 * time.Minute},
		{restante: 0, want: 5 * time.Minute},
	}
	for _, c := range cases {
		if got := firstAnalysisDelay(c.restante); got != c.want {
			t.Fatalf("firstAnalysisDelay(%d)=%v, want %v", c.restante, got, c.want)
		}
	}
}
