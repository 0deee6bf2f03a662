package handlers

import (
	"encoding/json"
	"log"
	"net/http"
)

// HandleGetSettings handles GET /api/v1/settings
func (h *Handler) HandleGetSettings(w http.ResponseWriter, r *http.Request) {
	log.Printf("[HTTP] GET /api/v1/settings")
	h.writeJSON(w, http.StatusOK, h.Session.Settings())
}

// HandleUpdateSettings handles PUT /api/v1/settings. Fields missing from
// the body keep their current values.
func (h *Handler) HandleUpdateSettings(w http.ResponseWriter, r *http.Request) {
	settings := h.Session.Settings()
	if err := json.NewDecoder(r.Body).Decode(&settings); err != nil {
		log.Printf("[HTTP] PUT /api/v1/settings: invalid_body err=%v", err)
		h.handleValidationError(w, "Invalid request body")
		return
	}

	if err := h.Session.UpdateSettings(r.Context(), settings); err != nil {
		log.Printf("[ERROR] Failed to update settings: err=%v", err)
		h.handleMissionError(w, err)
		return
	}

	log.Printf("[HTTP] Updated settings: speed_kmh=%.1f rest_minutes=%.0f proximity_m=%.0f",
		settings.WalkingSpeedKmh, settings.RestIntervalMinutes, settings.ProximityThresholdMeters)
	h.writeJSON(w, http.StatusOK, settings)
}
