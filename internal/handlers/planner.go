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

type PlannerHandler struct {
	planner *services.PlannerService
}

func NewPlannerHandler(planner *services.PlannerService) *PlannerHandler {
	return &PlannerHandler{planner: planner}
}

func (h *PlannerHandler) CreateSession(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	planID, err := uuid.Parse(chi.URLParam(r, "planId"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Invalid plan ID", r))
		return
	}

	var req struct {
		Title       string    `json:"title"`
		Description *string   `json:"description"`
		StartTime   time.Time `json:"start_time"`
		EndTime     time.Time `json:"end_time"`
		CourseID    *string   `json:"course_id"`
		LessonID    *string   `json:"lesson_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Invalid request body", r))
		return
	}

	courseID, ok := parseOptionalID(req.CourseID)
	if !ok {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Invalid course_id", r))
		return
	}
	lessonID, ok := parseOptionalID(req.LessonID)
	if !ok {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Invalid lesson_id", r))
		return
	}

	session, err := h.planner.CreateSession(r.Context(), userID, planID, services.CreateSessionInput{
		Title:       req.Title,
		Description: req.Description,
		StartTime:   req.StartTime,
		EndTime:     req.EndTime,
		CourseID:    courseID,
		LessonID:    lessonID,
	})
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]interface{}{"session": session})
}

// Actions dispatches the confirmed plan actions (move, resize, update,
// delete, complete, batch reschedule) against one plan.
func (h *PlannerHandler) Actions(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	planID, err := uuid.Parse(chi.URLParam(r, "planId"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Invalid plan ID", r))
		return
	}

	var req struct {
		Action string `json:"action"`

		SessionID *string `json:"session_id"`

		NewStartTime *time.Time `json:"new_start_time"`
		NewEndTime   *time.Time `json:"new_end_time"`

		NewDurationMinutes *int `json:"new_duration_minutes"`

		Title       *string `json:"title"`
		Description *string `json:"description"`
		Notes       *string `json:"notes"`

		SelfEvaluation *int `json:"self_evaluation"`

		Sessions []models.SessionReschedule `json:"sessions"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Invalid request body", r))
		return
	}

	sessionID, ok := parseOptionalID(req.SessionID)
	if !ok {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Invalid session_id", r))
		return
	}

	needsSession := req.Action != "reschedule_sessions"
	if needsSession && sessionID == nil {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "session_id is required", r))
		return
	}

	switch req.Action {
	case "move_session":
		if req.NewStartTime == nil || req.NewEndTime == nil {
			writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "new_start_time and new_end_time are required", r))
			return
		}
		err = h.planner.MoveSession(r.Context(), userID, planID, *sessionID, *req.NewStartTime, *req.NewEndTime)

	case "resize_session":
		if req.NewDurationMinutes == nil {
			writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "new_duration_minutes is required", r))
			return
		}
		err = h.planner.ResizeSession(r.Context(), userID, planID, *sessionID, *req.NewDurationMinutes)

	case "update_session":
		err = h.planner.UpdateSession(r.Context(), userID, planID, *sessionID, req.Title, req.Description, req.Notes)

	case "delete_session":
		err = h.planner.DeleteSession(r.Context(), userID, planID, *sessionID)

	case "complete_session":
		err = h.planner.CompleteSession(r.Context(), userID, planID, *sessionID, req.SelfEvaluation, req.Notes)

	case "reschedule_sessions":
		var result *services.RescheduleBatchResult
		result, err = h.planner.RescheduleBatch(r.Context(), userID, planID, req.Sessions)
		if err == nil {
			writeJSON(w, http.StatusOK, result)
			return
		}

	default:
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Unknown action: "+req.Action, r))
		return
	}

	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"message": "Action applied"})
}
