package handlers

import (
	"log"
	"net/http"
	"strconv"

	"focus-walker/internal/geocoding"
	"focus-walker/internal/models"
)

// HandleReverseGeocode handles GET /api/v1/geocoding/reverse?lat=&lng=
func (h *Handler) HandleReverseGeocode(w http.ResponseWriter, r *http.Request) {
	lat, latErr := strconv.ParseFloat(r.URL.Query().Get("lat"), 64)
	lng, lngErr := strconv.ParseFloat(r.URL.Query().Get("lng"), 64)
	if latErr != nil || lngErr != nil {
		h.handleValidationError(w, "lat and lng are required")
		return
	}

	p := models.RenderPoint{Lat: lat, Lng: lng}
	if !p.ToCalc().Valid() {
		h.handleValidationError(w, "Coordinates out of range")
		return
	}

	log.Printf("[HTTP] GET /api/v1/geocoding/reverse: lat=%.6f lng=%.6f", lat, lng)
	place, err := h.Geocoder.Reverse(r.Context(), p)
	if err != nil {
		log.Printf("[ERROR] Reverse geocoding failed: lat=%.6f lng=%.6f err=%v", lat, lng, err)
		h.handleGeocodingError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, place)
}

// HandlePlaceSearch handles GET /api/v1/geocoding/search?q=
func (h *Handler) HandlePlaceSearch(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q")
	log.Printf("[HTTP] GET /api/v1/geocoding/search: query=%s", query)

	if len(query) < 3 {
		h.writeJSON(w, http.StatusOK, []geocoding.Place{})
		return
	}

	results, err := h.Geocoder.Search(r.Context(), query, 5)
	if err != nil {
		log.Printf("[ERROR] Failed to search places: query=%s err=%v", query, err)
		h.writeJSON(w, http.StatusOK, []geocoding.Place{})
		return
	}

	if results == nil {
		results = []geocoding.Place{}
	}

	log.Printf("[HTTP] GET /api/v1/geocoding/search: query=%s results_count=%d", query, len(results))
	h.writeJSON(w, http.StatusOK, results)
}
