package models

import (
	"time"

	"github.com/google/uuid"
)

// Session statuses
const (
	SessionPlanned    = "planned"
	SessionInProgress = "in_progress"
	SessionCompleted  = "completed"
)

// Completion methods stamped on a closed session
const (
	MethodQuiz               = "quiz"
	MethodContextChanged     = "context_changed"
	MethodManual             = "manual"
	MethodLiaInactivity      = "lia_inactivity"
	MethodActivityInactivity = "activity_inactivity"
)

// StudySession is one scheduled study block inside a plan. Intervals are
// half-open: [StartTime, EndTime).
type StudySession struct {
	ID       uuid.UUID  `json:"id"`
	UserID   uuid.UUID  `json:"user_id"`
	PlanID   uuid.UUID  `json:"plan_id"`
	CourseID *uuid.UUID `json:"course_id,omitempty"`
	LessonID *uuid.UUID `json:"lesson_id,omitempty"`

	Title       string  `json:"title"`
	Description *string `json:"description,omitempty"`
	Notes       *string `json:"notes,omitempty"`

	StartTime time.Time `json:"start_time"`
	EndTime   time.Time `json:"end_time"`

	Status           string     `json:"status"`
	StartedAt        *time.Time `json:"started_at,omitempty"`
	CompletedAt      *time.Time `json:"completed_at,omitempty"`
	CompletionMethod *string    `json:"completion_method,omitempty"`
	SelfEvaluation   *int       `json:"self_evaluation,omitempty"`

	WasRescheduled  bool       `json:"was_rescheduled"`
	RescheduledFrom *time.Time `json:"rescheduled_from,omitempty"`

	ExternalEventID  *string `json:"external_event_id,omitempty"`
	CalendarProvider *string `json:"calendar_provider,omitempty"`

	IsAIGenerated bool      `json:"is_ai_generated"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// StudyPlan is the scoping container for sessions. Conflict checks never
// cross plan boundaries.
type StudyPlan struct {
	ID        uuid.UUID `json:"id"`
	UserID    uuid.UUID `json:"user_id"`
	Title     string    `json:"title"`
	Status    string    `json:"status"`
	Timezone  string    `json:"timezone"`
	CreatedAt time.Time `json:"created_at"`
}

// SessionReschedule is one item of a batch reschedule request.
type SessionReschedule struct {
	SessionID uuid.UUID `json:"session_id"`
	NewStart  time.Time `json:"new_start_time"`
	NewEnd    time.Time `json:"new_end_time"`
}
