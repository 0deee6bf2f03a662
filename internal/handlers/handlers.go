package handlers

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"focus-walker/internal/database"
	"focus-walker/internal/geocoding"
	"focus-walker/internal/mission"
	"focus-walker/internal/routing"
	"focus-walker/internal/stream"
)

// Handler provides common handler utilities and dependencies
type Handler struct {
	DB       database.DataStore
	Geocoder geocoding.Geocoder
	Session  *mission.Session
	Hub      *stream.Hub
}

// ErrorResponse represents an API error
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail contains error information
type ErrorDetail struct {
	Code    string      `json:"code"`
	Message string      `json:"message"`
	Details interface{} `json:"details,omitempty"`
}

// writeJSON writes a JSON response
func (h *Handler) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// writeError writes a JSON error response
func (h *Handler) writeError(w http.ResponseWriter, status int, code, message string, details interface{}) {
	h.writeJSON(w, status, ErrorResponse{
		Error: ErrorDetail{
			Code:    code,
			Message: message,
			Details: details,
		},
	})
}

// handleNotFound handles 404 errors
func (h *Handler) handleNotFound(w http.ResponseWriter, message string) {
	h.writeError(w, http.StatusNotFound, "NOT_FOUND", message, nil)
}

// handleValidationError handles 400 errors
func (h *Handler) handleValidationError(w http.ResponseWriter, message string) {
	h.writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", message, nil)
}

// handleGeocodingError handles 422 errors for geocoding failures
func (h *Handler) handleGeocodingError(w http.ResponseWriter, err error) {
	h.writeError(w, http.StatusUnprocessableEntity, "GEOCODING_FAILED", err.Error(), nil)
}

// handleRoutingError maps route acquisition failures
func (h *Handler) handleRoutingError(w http.ResponseWriter, err error) {
	var unavailable *routing.ErrRouteUnavailable
	switch {
	case errors.Is(err, routing.ErrNoRouteFound):
		h.writeError(w, http.StatusUnprocessableEntity, "NO_ROUTE_FOUND", "No walking route between these points", nil)
	case errors.As(err, &unavailable):
		h.writeError(w, http.StatusBadGateway, "ROUTE_UNAVAILABLE", unavailable.Reason, nil)
	default:
		h.handleInternalError(w, err)
	}
}

// handleMissionError maps session errors to status codes
func (h *Handler) handleMissionError(w http.ResponseWriter, err error) {
	var invalid *database.ErrInvalidSettings
	var persistence *mission.PersistenceError
	switch {
	case h.checkNotFound(err):
		h.handleNotFound(w, "Mission not found")
	case errors.Is(err, mission.ErrMissionInProgress):
		h.writeError(w, http.StatusConflict, "MISSION_IN_PROGRESS", err.Error(), nil)
	case errors.Is(err, mission.ErrNoMission),
		errors.Is(err, mission.ErrNotPaused),
		errors.Is(err, mission.ErrNotInProgress),
		errors.Is(err, mission.ErrCannotStart):
		h.writeError(w, http.StatusConflict, "INVALID_STATE", err.Error(), nil)
	case errors.As(err, &invalid):
		h.writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", invalid.Error(), map[string]string{"field": invalid.Field})
	case errors.As(err, &persistence):
		log.Printf("[ERROR] Persistence failure: op=%s mission_id=%s err=%v", persistence.Op, persistence.MissionID, persistence.Err)
		h.writeError(w, http.StatusServiceUnavailable, "PERSISTENCE_FAILED", "Progress could not be saved", map[string]string{"op": persistence.Op})
	default:
		h.handleInternalError(w, err)
	}
}

// handleInternalError handles 500 errors
func (h *Handler) handleInternalError(w http.ResponseWriter, err error) {
	log.Printf("[ERROR] Internal error: %v", err)
	h.writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "An error occurred. Please try again.", nil)
}

// checkNotFound checks if an error is a not found error
func (h *Handler) checkNotFound(err error) bool {
	return errors.Is(err, database.ErrNotFound)
}

// HandleHealthCheck handles GET /api/v1/health
func (h *Handler) HandleHealthCheck(w http.ResponseWriter, r *http.Request) {
	status := "ok"
	dbStatus := "connected"

	if err := h.DB.HealthCheck(r.Context()); err != nil {
		status = "degraded"
		dbStatus = "error"
	}
	if h.Session.Status().Degraded {
		status = "degraded"
	}

	h.writeJSON(w, http.StatusOK, map[string]string{
		"status":   status,
		"version":  "1.0.0",
		"database": dbStatus,
	})
}
