package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"

	"studia-backend/internal/models"
	"studia-backend/internal/services"
)

func TestParseOptionalID(t *testing.T) {
	valid := uuid.New().String()
	empty := ""
	garbage := "not-a-uuid"

	tests := []struct {
		name   string
		input  *string
		wantID bool
		wantOK bool
	}{
		{"nil is absent", nil, false, true},
		{"empty string is absent", &empty, false, true},
		{"valid uuid", &valid, true, true},
		{"garbage rejected", &garbage, false, false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			id, ok := parseOptionalID(tc.input)
			if ok != tc.wantOK {
				t.Fatalf("Expected ok=%v, got %v", tc.wantOK, ok)
			}
			if (id != nil) != tc.wantID {
				t.Fatalf("Expected id present=%v, got %v", tc.wantID, id)
			}
			if id != nil && id.String() != valid {
				t.Errorf("Expected %q, got %q", valid, id.String())
			}
		})
	}
}

func TestHandleServiceError_StatusMapping(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{"validation", &services.ValidationError{Fields: map[string]string{"title": "Title is required"}}, http.StatusBadRequest, "VALIDATION_ERROR"},
		{"conflict", &services.ConflictError{Message: "Conflict with existing session"}, http.StatusConflict, "CONFLICT"},
		{"not found", &services.NotFoundError{Message: "Session not found"}, http.StatusNotFound, "NOT_FOUND"},
		{"unauthorized", &services.UnauthorizedError{Message: "Invalid credentials"}, http.StatusUnauthorized, "UNAUTHORIZED"},
		{"rate limited", &services.RateLimitError{Message: "Too many requests"}, http.StatusTooManyRequests, "RATE_LIMITED"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rr := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodPost, "/api/v1/tracking/start", nil)

			handleServiceError(rr, req, tc.err)

			if rr.Code != tc.wantStatus {
				t.Fatalf("Expected status %d, got %d", tc.wantStatus, rr.Code)
			}

			var resp models.ErrorResponse
			if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
				t.Fatalf("Failed to parse error response: %v", err)
			}
			if resp.Error.Code != tc.wantCode {
				t.Errorf("Expected code %q, got %q", tc.wantCode, resp.Error.Code)
			}
		})
	}
}

func TestValidationErrorResponse_IncludesFields(t *testing.T) {
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/plans/abc/sessions", nil)

	handleServiceError(rr, req, &services.ValidationError{Fields: map[string]string{
		"end_time": "end_time must be after start_time",
	}})

	var resp models.ErrorResponse
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("Failed to parse error response: %v", err)
	}
	if resp.Error.Fields["end_time"] == "" {
		t.Errorf("Expected field-level detail for end_time, got %+v", resp.Error.Fields)
	}
}
