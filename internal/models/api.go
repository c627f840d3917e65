package models

import "github.com/google/uuid"

type APIError struct {
	Code      string            `json:"code"`
	Message   string            `json:"message"`
	Fields    map[string]string `json:"fields,omitempty"`
	RequestID string            `json:"request_id"`
}

type ErrorResponse struct {
	Error APIError `json:"error"`
}

// WSMessage is the envelope pushed to connected clients.
type WSMessage struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
}

// TrackingUpdate notifies a client that one of its tracking records changed
// state (completed by the sweeper, session cascade fired, ...).
type TrackingUpdate struct {
	TrackingID    uuid.UUID  `json:"tracking_id"`
	LessonID      uuid.UUID  `json:"lesson_id"`
	Status        string     `json:"status"`
	EndTrigger    string     `json:"end_trigger,omitempty"`
	SessionClosed bool       `json:"session_closed"`
	SessionID     *uuid.UUID `json:"session_id,omitempty"`
}

// ReconcileJob is the payload pushed on the reconcile queue. Scope is either
// a single user or the whole table (scheduled sweep).
type ReconcileJob struct {
	ID     uuid.UUID  `json:"id"`
	Scope  string     `json:"scope"` // "user" | "all"
	UserID *uuid.UUID `json:"user_id,omitempty"`
}
