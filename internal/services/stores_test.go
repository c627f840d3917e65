package services

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"studia-backend/internal/models"
)

// In-memory store fakes. They reproduce the repository semantics that the
// services rely on: set-once COALESCE writes and status-guarded transitions.

type memTrackingStore struct {
	mu      sync.Mutex
	records map[uuid.UUID]*models.LessonTracking
}

func newMemTrackingStore() *memTrackingStore {
	return &memTrackingStore{records: make(map[uuid.UUID]*models.LessonTracking)}
}

func (m *memTrackingStore) Create(_ context.Context, t *models.LessonTracking) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t.ID = uuid.New()
	t.Status = models.TrackingInProgress
	cp := *t
	m.records[t.ID] = &cp
	return nil
}

func (m *memTrackingStore) GetByID(_ context.Context, id, userID uuid.UUID) (*models.LessonTracking, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[id]
	if !ok || rec.UserID != userID {
		return nil, nil
	}
	cp := *rec
	return &cp, nil
}

func (m *memTrackingStore) GetActiveForLesson(_ context.Context, userID, lessonID uuid.UUID, sessionID *uuid.UUID) (*models.LessonTracking, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, rec := range m.records {
		if rec.UserID != userID || rec.LessonID != lessonID || rec.Status != models.TrackingInProgress {
			continue
		}
		if !sameOptionalID(rec.SessionID, sessionID) {
			continue
		}
		cp := *rec
		return &cp, nil
	}
	return nil, nil
}

func (m *memTrackingStore) GetLatestActiveForLesson(_ context.Context, userID, lessonID uuid.UUID) (*models.LessonTracking, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var latest *models.LessonTracking
	for _, rec := range m.records {
		if rec.UserID != userID || rec.LessonID != lessonID || rec.Status != models.TrackingInProgress {
			continue
		}
		if latest == nil || rec.StartedAt.After(latest.StartedAt) {
			latest = rec
		}
	}
	if latest == nil {
		return nil, nil
	}
	cp := *latest
	return &cp, nil
}

func (m *memTrackingStore) GetActiveForUser(_ context.Context, userID uuid.UUID) (*models.LessonTracking, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var latest *models.LessonTracking
	for _, rec := range m.records {
		if rec.UserID != userID || rec.Status != models.TrackingInProgress {
			continue
		}
		if latest == nil || rec.StartedAt.After(latest.StartedAt) {
			latest = rec
		}
	}
	if latest == nil {
		return nil, nil
	}
	cp := *latest
	return &cp, nil
}

func (m *memTrackingStore) ListDue(_ context.Context, now time.Time, userID *uuid.UUID) ([]models.LessonTracking, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.LessonTracking
	for _, rec := range m.records {
		if rec.Status != models.TrackingInProgress || rec.NextAnalysisAt == nil {
			continue
		}
		if rec.NextAnalysisAt.After(now) {
			continue
		}
		if userID != nil && rec.UserID != *userID {
			continue
		}
		out = append(out, *rec)
	}
	return out, nil
}

func (m *memTrackingStore) TouchActivity(_ context.Context, id uuid.UUID, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if rec, ok := m.records[id]; ok && rec.Status == models.TrackingInProgress {
		rec.LastActivityAt = &at
		rec.UpdatedAt = at
	}
	return nil
}

func (m *memTrackingStore) ApplyEvent(_ context.Context, id uuid.UUID, p models.TrackingPatch, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[id]
	if !ok || rec.Status != models.TrackingInProgress {
		return nil
	}
	if rec.VideoEndedAt == nil && p.VideoEndedAt != nil {
		rec.VideoEndedAt = p.VideoEndedAt
	}
	if rec.PostContentStartAt == nil && p.PostContentStartAt != nil {
		rec.PostContentStartAt = p.PostContentStartAt
	}
	if rec.LiaFirstMessageAt == nil && p.LiaFirstMessageAt != nil {
		rec.LiaFirstMessageAt = p.LiaFirstMessageAt
	}
	if p.LiaLastMessageAt != nil {
		rec.LiaLastMessageAt = p.LiaLastMessageAt
	}
	if p.LastActivityAt != nil {
		rec.LastActivityAt = p.LastActivityAt
	}
	if rec.NextAnalysisAt == nil && p.NextAnalysisAt != nil {
		rec.NextAnalysisAt = p.NextAnalysisAt
	}
	rec.UpdatedAt = at
	return nil
}

func (m *memTrackingStore) CompleteIfInProgress(_ context.Context, id, userID uuid.UUID, completedAt time.Time, endTrigger string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[id]
	if !ok || rec.UserID != userID || rec.Status != models.TrackingInProgress {
		return false, nil
	}
	rec.Status = models.TrackingCompleted
	rec.CompletedAt = &completedAt
	rec.EndTrigger = &endTrigger
	rec.NextAnalysisAt = nil
	return true, nil
}

func (m *memTrackingStore) RescheduleAnalysis(_ context.Context, id uuid.UUID, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if rec, ok := m.records[id]; ok && rec.Status == models.TrackingInProgress {
		rec.NextAnalysisAt = &at
	}
	return nil
}

func (m *memTrackingStore) CountActiveForSession(_ context.Context, sessionID uuid.UUID) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, rec := range m.records {
		if rec.SessionID != nil && *rec.SessionID == sessionID && rec.Status == models.TrackingInProgress {
			n++
		}
	}
	return n, nil
}

func (m *memTrackingStore) get(id uuid.UUID) *models.LessonTracking {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[id]
	if !ok {
		return nil
	}
	cp := *rec
	return &cp
}

func sameOptionalID(a, b *uuid.UUID) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

type memSessionStore struct {
	mu       sync.Mutex
	sessions map[uuid.UUID]*models.StudySession
}

func newMemSessionStore() *memSessionStore {
	return &memSessionStore{sessions: make(map[uuid.UUID]*models.StudySession)}
}

func (m *memSessionStore) add(s models.StudySession) uuid.UUID {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	if s.Status == "" {
		s.Status = models.SessionPlanned
	}
	m.sessions[s.ID] = &s
	return s.ID
}

func (m *memSessionStore) Create(_ context.Context, s *models.StudySession) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s.ID = uuid.New()
	if s.Status == "" {
		s.Status = models.SessionPlanned
	}
	cp := *s
	m.sessions[s.ID] = &cp
	return nil
}

func (m *memSessionStore) GetByID(_ context.Context, id, userID uuid.UUID) (*models.StudySession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok || s.UserID != userID {
		return nil, nil
	}
	cp := *s
	return &cp, nil
}

func (m *memSessionStore) ListPlanned(_ context.Context, planID uuid.UUID, excludeID *uuid.UUID) ([]models.StudySession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.StudySession
	for _, s := range m.sessions {
		if s.PlanID != planID || s.Status != models.SessionPlanned {
			continue
		}
		if excludeID != nil && s.ID == *excludeID {
			continue
		}
		out = append(out, *s)
	}
	return out, nil
}

func (m *memSessionStore) ListUpcomingPlanned(_ context.Context, userID uuid.UUID, from, to time.Time) ([]models.StudySession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.StudySession
	for _, s := range m.sessions {
		if s.UserID != userID || s.Status != models.SessionPlanned {
			continue
		}
		if s.StartTime.Before(to) && s.EndTime.After(from) {
			out = append(out, *s)
		}
	}
	return out, nil
}

func (m *memSessionStore) ListSynced(_ context.Context, userID uuid.UUID) ([]models.StudySession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.StudySession
	for _, s := range m.sessions {
		if s.UserID == userID && s.ExternalEventID != nil {
			out = append(out, *s)
		}
	}
	return out, nil
}

func (m *memSessionStore) UpdateInterval(_ context.Context, id, userID uuid.UUID, start, end, at time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok || s.UserID != userID {
		return false, nil
	}
	s.StartTime = start
	s.EndTime = end
	s.WasRescheduled = true
	s.RescheduledFrom = &at
	s.UpdatedAt = at
	return true, nil
}

func (m *memSessionStore) UpdateDetails(_ context.Context, id, userID uuid.UUID, title, description, notes *string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok || s.UserID != userID {
		return false, nil
	}
	if title != nil {
		s.Title = *title
	}
	if description != nil {
		s.Description = description
	}
	if notes != nil {
		s.Notes = notes
	}
	return true, nil
}

func (m *memSessionStore) Delete(_ context.Context, id, userID uuid.UUID) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok || s.UserID != userID {
		return false, nil
	}
	delete(m.sessions, id)
	return true, nil
}

func (m *memSessionStore) MarkStarted(_ context.Context, id uuid.UUID, at time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok || s.StartedAt != nil {
		return false, nil
	}
	s.StartedAt = &at
	s.Status = models.SessionInProgress
	return true, nil
}

func (m *memSessionStore) CloseIfInProgress(_ context.Context, id uuid.UUID, at time.Time, method string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok || s.Status != models.SessionInProgress {
		return false, nil
	}
	s.Status = models.SessionCompleted
	s.CompletedAt = &at
	s.CompletionMethod = &method
	return true, nil
}

func (m *memSessionStore) CompleteByUser(_ context.Context, id, userID uuid.UUID, at time.Time, selfEvaluation *int, notes *string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok || s.UserID != userID || s.Status == models.SessionCompleted {
		return false, nil
	}
	method := models.MethodManual
	s.Status = models.SessionCompleted
	s.CompletedAt = &at
	s.CompletionMethod = &method
	s.SelfEvaluation = selfEvaluation
	if notes != nil {
		s.Notes = notes
	}
	return true, nil
}

func (m *memSessionStore) get(id uuid.UUID) *models.StudySession {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil
	}
	cp := *s
	return &cp
}

type memPlanStore struct {
	plans map[uuid.UUID]*models.StudyPlan
}

func newMemPlanStore() *memPlanStore {
	return &memPlanStore{plans: make(map[uuid.UUID]*models.StudyPlan)}
}

func (m *memPlanStore) add(userID uuid.UUID) uuid.UUID {
	id := uuid.New()
	m.plans[id] = &models.StudyPlan{ID: id, UserID: userID, Title: "Plan", Status: "active", Timezone: "UTC"}
	return id
}

func (m *memPlanStore) GetOwned(_ context.Context, planID, userID uuid.UUID) (*models.StudyPlan, error) {
	p, ok := m.plans[planID]
	if !ok || p.UserID != userID {
		return nil, nil
	}
	cp := *p
	return &cp, nil
}

type memCalendarStore struct {
	integration *models.CalendarIntegration
	lastSyncAt  *time.Time
}

func (m *memCalendarStore) GetIntegration(_ context.Context, userID uuid.UUID) (*models.CalendarIntegration, error) {
	if m.integration == nil || m.integration.UserID != userID {
		return nil, nil
	}
	cp := *m.integration
	return &cp, nil
}

func (m *memCalendarStore) UpdateTokens(_ context.Context, id uuid.UUID, accessToken string, expiresAt *time.Time) error {
	if m.integration != nil && m.integration.ID == id {
		m.integration.AccessToken = accessToken
		m.integration.ExpiresAt = expiresAt
	}
	return nil
}

func (m *memCalendarStore) TouchLastSync(_ context.Context, id uuid.UUID, at time.Time) error {
	if m.integration == nil || m.integration.ID != id {
		return errors.New("unknown integration")
	}
	m.lastSyncAt = &at
	m.integration.LastSyncAt = &at
	return nil
}

type staticProvider struct {
	events []models.CalendarEvent
	err    error
}

func (p *staticProvider) GetCalendarEvents(_ context.Context, _ *models.CalendarIntegration, _, _ time.Time) ([]models.CalendarEvent, error) {
	return p.events, p.err
}

// fixedClock pins a service's notion of now.
func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}
