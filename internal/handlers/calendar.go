package handlers

import (
	"net/http"

	"studia-backend/internal/middleware"
	"studia-backend/internal/services"
)

type CalendarHandler struct {
	calendar *services.CalendarService
}

func NewCalendarHandler(calendar *services.CalendarService) *CalendarHandler {
	return &CalendarHandler{calendar: calendar}
}

func (h *CalendarHandler) CheckChanges(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	result, err := h.calendar.CheckCalendarChanges(r.Context(), userID)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, result)
}
