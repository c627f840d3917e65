package models

import (
	"time"

	"github.com/google/uuid"
)

// CalendarIntegration holds the OAuth material linking a user to an external
// calendar provider.
type CalendarIntegration struct {
	ID           uuid.UUID  `json:"id"`
	UserID       uuid.UUID  `json:"user_id"`
	Provider     string     `json:"provider"`
	AccessToken  string     `json:"-"`
	RefreshToken string     `json:"-"`
	ExpiresAt    *time.Time `json:"expires_at,omitempty"`
	LastSyncAt   *time.Time `json:"last_sync_at,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// CalendarEvent is one event fetched from the external provider.
type CalendarEvent struct {
	ID    string    `json:"id"`
	Title string    `json:"title"`
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Calendar change kinds
const (
	ChangeConflict      = "conflict"
	ChangeDeletedEvent  = "deleted_event"
	ChangeModifiedEvent = "modified_event"
)

// CalendarChange reports one discrepancy between the plan and the external
// calendar. Report-only: sessions are never moved automatically.
type CalendarChange struct {
	Type            string    `json:"type"`
	SessionID       uuid.UUID `json:"session_id"`
	SessionTitle    string    `json:"session_title"`
	EventID         string    `json:"event_id,omitempty"`
	EventTitle      string    `json:"event_title,omitempty"`
	EventStart      time.Time `json:"event_start,omitempty"`
	SuggestedAction string    `json:"suggested_action,omitempty"`
}

// CalendarCheckResult is the outcome of one check-changes run.
type CalendarCheckResult struct {
	Changes      []CalendarChange `json:"changes"`
	HasConflicts bool             `json:"has_conflicts"`
}
