package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/sawpanic/hedgemesh/internal/risk"
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type stateResponse struct {
	PendingCount int    `json:"pending_count"`
	RunningCount int    `json:"running_count"`
	RiskMode     string `json:"risk_mode"`
	AutoHalt     bool   `json:"auto_halt"`
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	s.metrics.PendingQueueDepth.Set(float64(s.scheduler.PendingCount()))
	s.metrics.RunningJobs.Set(float64(s.scheduler.RunningCount()))

	writeJSON(w, http.StatusOK, stateResponse{
		PendingCount: s.scheduler.PendingCount(),
		RunningCount: s.scheduler.RunningCount(),
		RiskMode:     string(s.riskEval.Mode()),
		AutoHalt:     s.riskEval.AutoHalt(),
	})
}

type killRequest struct {
	Venue string `json:"venue"` // empty means global
}

func (s *Server) handleKill(w http.ResponseWriter, r *http.Request) {
	var req killRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && r.ContentLength != 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	if req.Venue == "" {
		s.riskEval.SetGlobalKillSwitch(true)
		s.supervisor.SetGlobalKillSwitch(true)
		s.metrics.KillSwitchOn.Set(1)
		writeJSON(w, http.StatusOK, map[string]string{"status": "global kill switch engaged"})
		return
	}
	s.riskEval.SetVenueKillSwitch(req.Venue, true)
	s.supervisor.SetVenueKillSwitch(req.Venue, true)
	writeJSON(w, http.StatusOK, map[string]string{"status": "venue kill switch engaged", "venue": req.Venue})
}

func (s *Server) handleResume(w http.ResponseWriter, r *http.Request) {
	var req killRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && r.ContentLength != 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	if req.Venue == "" {
		s.riskEval.SetGlobalKillSwitch(false)
		s.supervisor.SetGlobalKillSwitch(false)
		s.riskEval.ResetAutoHalt()
		s.metrics.KillSwitchOn.Set(0)
		writeJSON(w, http.StatusOK, map[string]string{"status": "global kill switch released"})
		return
	}
	s.riskEval.SetVenueKillSwitch(req.Venue, false)
	s.supervisor.SetVenueKillSwitch(req.Venue, false)
	writeJSON(w, http.StatusOK, map[string]string{"status": "venue kill switch released", "venue": req.Venue})
}

type modeRequest struct {
	Mode string `json:"mode"`
}

func (s *Server) handleMode(w http.ResponseWriter, r *http.Request) {
	var req modeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	if err := s.riskEval.SetMode(risk.Mode(req.Mode)); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "mode updated", "mode": req.Mode})
}

type overrideRequest struct {
	Enabled bool `json:"enabled"`
}

// handleOverride sets the operator's live soft-reject override switch.
// Every tick, marketContextFor reads the current value into
// risk.Context.ManualOverride, so this takes effect on the very next
// tick and stays in force until toggled off again — it is not a
// per-job acknowledgment.
func (s *Server) handleOverride(w http.ResponseWriter, r *http.Request) {
	if s.cfgStore == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "no config store configured"})
		return
	}
	var req overrideRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	s.cfgStore.SetManualOverride(req.Enabled)
	writeJSON(w, http.StatusOK, map[string]interface{}{"status": "manual override updated", "enabled": req.Enabled})
}

func (s *Server) handleReload(w http.ResponseWriter, r *http.Request) {
	if s.cfgStore == nil || s.cfgPath == "" {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "no reloadable config configured"})
		return
	}
	if err := s.cfgStore.Reload(s.cfgPath); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "config reloaded"})
}

func (s *Server) handleNotFound(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusNotFound, map[string]string{"error": "not found"})
}
