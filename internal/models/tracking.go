package models

import (
	"time"

	"github.com/google/uuid"
)

// Tracking statuses
const (
	TrackingInProgress = "in_progress"
	TrackingCompleted  = "completed"
)

// Start triggers
const (
	StartTriggerVideoPlay = "video_play"
	StartTriggerPageLoad  = "page_load"
	StartTriggerManual    = "manual"
)

// End triggers
const (
	EndTriggerQuizSubmitted      = "quiz_submitted"
	EndTriggerContextChanged     = "context_changed"
	EndTriggerManual             = "manual"
	EndTriggerLiaInactivity      = "lia_inactivity_5m"
	EndTriggerActivityInactivity = "activity_inactivity_5m"
)

// Event types accepted by the event recorder
const (
	EventVideoEnded = "video_ended"
	EventLiaMessage = "lia_message"
	EventActivity   = "activity"
)

// LessonTracking is the per-attempt record of a learner working through one
// lesson instance. Created on the first start signal, finalized exactly once.
type LessonTracking struct {
	ID        uuid.UUID  `json:"id"`
	UserID    uuid.UUID  `json:"user_id"`
	LessonID  uuid.UUID  `json:"lesson_id"`
	SessionID *uuid.UUID `json:"session_id,omitempty"`
	PlanID    *uuid.UUID `json:"plan_id,omitempty"`

	Status       string  `json:"status"`
	StartTrigger string  `json:"start_trigger"`
	EndTrigger   *string `json:"end_trigger,omitempty"`

	StartedAt          time.Time  `json:"started_at"`
	VideoStartedAt     *time.Time `json:"video_started_at,omitempty"`
	VideoEndedAt       *time.Time `json:"video_ended_at,omitempty"`
	PostContentStartAt *time.Time `json:"post_content_start_at,omitempty"`
	LiaFirstMessageAt  *time.Time `json:"lia_first_message_at,omitempty"`
	LiaLastMessageAt   *time.Time `json:"lia_last_message_at,omitempty"`
	LastActivityAt     *time.Time `json:"last_activity_at,omitempty"`
	CompletedAt        *time.Time `json:"completed_at,omitempty"`
	NextAnalysisAt     *time.Time `json:"next_analysis_at,omitempty"`

	TLessonMinutes    int `json:"t_lesson_minutes"`
	TVideoMinutes     int `json:"t_video_minutes"`
	TMaterialsMinutes int `json:"t_materials_minutes"`
	TRestanteMinutes  int `json:"t_restante_minutes"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TimeEstimates are the content-length estimates supplied when tracking
// starts. They are frozen for the lifetime of the record.
type TimeEstimates struct {
	LessonMinutes    int `json:"lesson_minutes"`
	VideoMinutes     int `json:"video_minutes"`
	MaterialsMinutes int `json:"materials_minutes"`
}

// RemainingMinutes is the estimated non-video content remaining, used to size
// the first analysis delay.
func (e TimeEstimates) RemainingMinutes() int {
	rest := e.LessonMinutes - e.VideoMinutes - e.MaterialsMinutes
	if rest < 0 {
		return 0
	}
	return rest
}

// TrackingPatch carries the field writes produced by one recorded event.
// Nil pointers are left untouched; set-once fields are written with COALESCE
// so replayed events are no-ops.
type TrackingPatch struct {
	VideoEndedAt       *time.Time
	PostContentStartAt *time.Time
	LiaFirstMessageAt  *time.Time
	LiaLastMessageAt   *time.Time
	LastActivityAt     *time.Time
	NextAnalysisAt     *time.Time
}
