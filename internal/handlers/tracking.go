package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"studia-backend/internal/middleware"
	"studia-backend/internal/models"
	"studia-backend/internal/services"
)

type TrackingHandler struct {
	tracking  *services.TrackingService
	reconcile *services.ReconcileService
}

func NewTrackingHandler(tracking *services.TrackingService, reconcile *services.ReconcileService) *TrackingHandler {
	return &TrackingHandler{tracking: tracking, reconcile: reconcile}
}

func (h *TrackingHandler) Start(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	var req struct {
		LessonID  string                `json:"lesson_id"`
		SessionID *string               `json:"session_id"`
		PlanID    *string               `json:"plan_id"`
		Trigger   string                `json:"trigger"`
		Estimates *models.TimeEstimates `json:"time_estimates"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Invalid request body", r))
		return
	}

	lessonID, err := uuid.Parse(req.LessonID)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Invalid lesson_id", r))
		return
	}

	sessionID, ok := parseOptionalID(req.SessionID)
	if !ok {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Invalid session_id", r))
		return
	}
	planID, ok := parseOptionalID(req.PlanID)
	if !ok {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Invalid plan_id", r))
		return
	}

	result, err := h.tracking.StartTracking(r.Context(), userID, services.StartTrackingInput{
		LessonID:  lessonID,
		SessionID: sessionID,
		PlanID:    planID,
		Trigger:   req.Trigger,
		Estimates: req.Estimates,
	})
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	status := http.StatusOK
	if result.IsNew {
		status = http.StatusCreated
	}
	writeJSON(w, status, result)
}

func (h *TrackingHandler) RecordEvent(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	trackingID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Invalid tracking ID", r))
		return
	}

	var req struct {
		EventType string `json:"event_type"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Invalid request body", r))
		return
	}

	if err := h.tracking.RecordEvent(r.Context(), userID, trackingID, req.EventType); err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"message": "Event recorded"})
}

func (h *TrackingHandler) Complete(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	var req struct {
		TrackingID *string `json:"tracking_id"`
		LessonID   *string `json:"lesson_id"`
		EndTrigger string  `json:"end_trigger"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Invalid request body", r))
		return
	}

	trackingID, ok := parseOptionalID(req.TrackingID)
	if !ok {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Invalid tracking_id", r))
		return
	}
	lessonID, ok := parseOptionalID(req.LessonID)
	if !ok {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Invalid lesson_id", r))
		return
	}

	result, err := h.tracking.CompleteTracking(r.Context(), userID, services.CompleteTrackingInput{
		TrackingID: trackingID,
		LessonID:   lessonID,
		EndTrigger: req.EndTrigger,
	})
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

func (h *TrackingHandler) GetActive(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	tracking, err := h.tracking.GetActiveTracking(r.Context(), userID)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"tracking": tracking})
}

// Reconcile is the authenticated fallback sweep for the caller's own records,
// for clients that suspect the scheduled sweep missed them.
func (h *TrackingHandler) Reconcile(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	result, err := h.reconcile.Run(r.Context(), &userID, time.Now().UTC())
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

func parseOptionalID(s *string) (*uuid.UUID, bool) {
	if s == nil || *s == "" {
		return nil, true
	}
	id, err := uuid.Parse(*s)
	if err != nil {
		return nil, false
	}
	return &id, true
}
