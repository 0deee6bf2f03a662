package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"

	"focus-walker/internal/mission"
	"focus-walker/internal/models"
)

// PlanRouteRequest is the body of POST /api/v1/route
type PlanRouteRequest struct {
	Start *models.RenderPoint `json:"start"`
	End   *models.RenderPoint `json:"end"`
	Name  string              `json:"name"`
}

// AcknowledgeRequest is the body of POST /api/v1/mission/resume
type AcknowledgeRequest struct {
	Note  string `json:"note"`
	Photo string `json:"photo"`
}

// MissionDisplay holds figures formatted in the user's units
type MissionDisplay struct {
	DistanceDone  string `json:"distance_done"`
	TotalDistance string `json:"total_distance"`
	TimeLeft      string `json:"time_left"`
}

// MissionResponse is the session status plus formatted figures
type MissionResponse struct {
	mission.Status
	Display MissionDisplay `json:"display"`
}

func (h *Handler) missionResponse() MissionResponse {
	st := h.Session.Status()
	m := st.Snapshot.Metrics
	return MissionResponse{
		Status: st,
		Display: MissionDisplay{
			DistanceDone:  FormatDistance(m.DistanceDoneMeters, st.Settings.UseMiles),
			TotalDistance: FormatDistance(m.TotalDistanceMeters, st.Settings.UseMiles),
			TimeLeft:      FormatDuration(m.TimeLeftSeconds),
		},
	}
}

// HandlePlanRoute handles POST /api/v1/route
func (h *Handler) HandlePlanRoute(w http.ResponseWriter, r *http.Request) {
	var req PlanRouteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.Printf("[HTTP] POST /api/v1/route: invalid_body err=%v", err)
		h.handleValidationError(w, "Invalid request body")
		return
	}

	if req.Start == nil || req.End == nil {
		h.handleValidationError(w, "Start and end are required")
		return
	}
	if !req.Start.ToCalc().Valid() || !req.End.ToCalc().Valid() {
		h.handleValidationError(w, "Coordinates out of range")
		return
	}

	log.Printf("[HTTP] POST /api/v1/route: start=(%.6f,%.6f) end=(%.6f,%.6f)",
		req.Start.Lat, req.Start.Lng, req.End.Lat, req.End.Lng)

	m, err := h.Session.PlanRoute(r.Context(), *req.Start, *req.End, req.Name)
	if err != nil {
		if errors.Is(err, mission.ErrMissionInProgress) {
			h.handleMissionError(w, err)
			return
		}
		log.Printf("[ERROR] Route planning failed: err=%v", err)
		h.handleRoutingError(w, err)
		return
	}

	log.Printf("[HTTP] Planned mission: id=%s distance=%.0f", m.ID, m.Metrics.TotalDistanceMeters)
	h.writeJSON(w, http.StatusCreated, h.missionResponse())
}

// HandleGetMission handles GET /api/v1/mission
func (h *Handler) HandleGetMission(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, h.missionResponse())
}

// HandleStartMission handles POST /api/v1/mission/start
func (h *Handler) HandleStartMission(w http.ResponseWriter, r *http.Request) {
	log.Printf("[HTTP] POST /api/v1/mission/start")
	if err := h.Session.Start(r.Context()); err != nil {
		h.handleMissionError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, h.missionResponse())
}

// HandleResumeMission handles POST /api/v1/mission/resume. It logs the
// checkpoint the mission is paused at and resumes walking.
func (h *Handler) HandleResumeMission(w http.ResponseWriter, r *http.Request) {
	var req AcknowledgeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		log.Printf("[HTTP] POST /api/v1/mission/resume: invalid_body err=%v", err)
		h.handleValidationError(w, "Invalid request body")
		return
	}

	result, err := h.Session.Acknowledge(r.Context(), req.Note, req.Photo)
	if err != nil && result == nil {
		h.handleMissionError(w, err)
		return
	}

	resp := map[string]interface{}{
		"checkpoint": result,
		"mission":    h.missionResponse(),
	}
	if err != nil {
		// resumed, but the log entry was not saved
		log.Printf("[ERROR] Checkpoint log not saved: checkpoint=%s err=%v", result.CheckpointID, err)
		resp["warning"] = "Checkpoint note could not be saved"
	}

	log.Printf("[HTTP] Resumed mission: checkpoint=%s", result.CheckpointID)
	h.writeJSON(w, http.StatusOK, resp)
}

// HandleEndMission handles POST /api/v1/mission/end
func (h *Handler) HandleEndMission(w http.ResponseWriter, r *http.Request) {
	log.Printf("[HTTP] POST /api/v1/mission/end")
	if err := h.Session.End(r.Context()); err != nil {
		if errors.Is(err, mission.ErrNotInProgress) {
			h.handleMissionError(w, err)
			return
		}
		log.Printf("[ERROR] Mission ended but not saved: err=%v", err)
	}
	h.writeJSON(w, http.StatusOK, h.missionResponse())
}

// HandleResetMission handles POST /api/v1/mission/reset
func (h *Handler) HandleResetMission(w http.ResponseWriter, r *http.Request) {
	log.Printf("[HTTP] POST /api/v1/mission/reset")
	if err := h.Session.Reset(r.Context()); err != nil {
		h.handleMissionError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, h.missionResponse())
}

// HandleListMissions handles GET /api/v1/missions
func (h *Handler) HandleListMissions(w http.ResponseWriter, r *http.Request) {
	missions, err := h.Session.History(r.Context())
	if err != nil {
		h.handleMissionError(w, err)
		return
	}
	if missions == nil {
		missions = []models.MissionState{}
	}

	log.Printf("[HTTP] GET /api/v1/missions: count=%d", len(missions))
	h.writeJSON(w, http.StatusOK, missions)
}

// HandleGetMissionByID handles GET /api/v1/missions/{id}
func (h *Handler) HandleGetMissionByID(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	m, err := h.Session.GetMission(r.Context(), id)
	if err != nil {
		h.handleMissionError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, m)
}

// HandleDeleteMission handles DELETE /api/v1/missions/{id}
func (h *Handler) HandleDeleteMission(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	log.Printf("[HTTP] DELETE /api/v1/missions/%s", id)

	if err := h.Session.DeleteMission(r.Context(), id); err != nil {
		var persistence *mission.PersistenceError
		if errors.As(err, &persistence) && persistence.Op == "delete logs" {
			h.writeError(w, http.StatusMultiStatus, "PARTIAL_DELETE", err.Error(), map[string]string{"mission_id": id})
			return
		}
		h.handleMissionError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// HandleGetLogs handles GET /api/v1/missions/{id}/logs
func (h *Handler) HandleGetLogs(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	logs, err := h.Session.Logs(r.Context(), id)
	if err != nil {
		h.handleMissionError(w, err)
		return
	}
	if logs == nil {
		logs = []models.CheckpointLogEntry{}
	}
	h.writeJSON(w, http.StatusOK, logs)
}
