package api

import (
	"net/http"
	"strings"

	"supersim/internal/errors"
	"supersim/internal/isa"
)

// SavePresetRequest stores a CPU configuration under a name.
type SavePresetRequest struct {
	Name        string        `json:"name"`
	Description string        `json:"description,omitempty"`
	Config      isa.CpuConfig `json:"config"`
}

// ConfigRequest replaces the active CPU configuration, either inline or from a
// stored preset. Reload restarts the simulation from tick 0 with it.
type ConfigRequest struct {
	Preset string         `json:"preset,omitempty"`
	Config *isa.CpuConfig `json:"config,omitempty"`
	Reload bool           `json:"reload,omitempty"`
}

func (s *Server) requireDB(w http.ResponseWriter) bool {
	if s.db == nil {
		ServiceUnavailable(w, "presets require a database")
		return false
	}
	return true
}

func (s *Server) handleListPresets(w http.ResponseWriter, r *http.Request) {
	if !s.requireDB(w) {
		return
	}
	presets, err := s.db.ListPresets()
	if err != nil {
		WriteError(w, err)
		return
	}
	WriteJSON(w, map[string]interface{}{
		"presets": presets,
		"count":   len(presets),
	}, http.StatusOK)
}

// handleSavePreset handles POST /isa/presets
func (s *Server) handleSavePreset(w http.ResponseWriter, r *http.Request) {
	if !s.requireDB(w) {
		return
	}
	var req SavePresetRequest
	if err := decodeBody(r, &req); err != nil {
		BadRequest(w, err.Error())
		return
	}
	p, err := s.db.SavePreset(req.Name, req.Description, req.Config)
	if err != nil {
		WriteError(w, err)
		return
	}
	WriteJSON(w, p, http.StatusOK)
}

func (s *Server) handleGetPreset(w http.ResponseWriter, r *http.Request) {
	if !s.requireDB(w) {
		return
	}
	p, err := s.db.GetPreset(r.PathValue("name"))
	if err != nil {
		WriteError(w, err)
		return
	}
	WriteJSON(w, p, http.StatusOK)
}

func (s *Server) handleDeletePreset(w http.ResponseWriter, r *http.Request) {
	if !s.requireDB(w) {
		return
	}
	name := r.PathValue("name")
	if err := s.db.DeletePreset(name); err != nil {
		WriteError(w, err)
		return
	}
	WriteJSON(w, map[string]string{"deleted": name}, http.StatusOK)
}

func (s *Server) handleGetConfig(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, s.session.Controller.Config().CpuConfig, http.StatusOK)
}

// handlePutConfig handles PUT /isa/config
func (s *Server) handlePutConfig(w http.ResponseWriter, r *http.Request) {
	var req ConfigRequest
	if err := decodeBody(r, &req); err != nil {
		BadRequest(w, err.Error())
		return
	}

	var cpu isa.CpuConfig
	switch {
	case strings.TrimSpace(req.Preset) != "" && req.Config != nil:
		BadRequest(w, "give either preset or config, not both")
		return
	case strings.TrimSpace(req.Preset) != "":
		if !s.requireDB(w) {
			return
		}
		p, err := s.db.GetPreset(req.Preset)
		if err != nil {
			WriteError(w, err)
			return
		}
		cpu = p.Config
	case req.Config != nil:
		cpu = *req.Config
	default:
		WriteError(w, errors.Newf(errors.InvalidRequest, "preset or config is required"))
		return
	}
	if err := cpu.Validate(); err != nil {
		WriteError(w, err)
		return
	}

	cfg := s.session.Controller.Config()
	cfg.CpuConfig = cpu
	s.session.Controller.SetConfig(cfg)
	s.logger.Info("CPU configuration replaced", "name", cpu.Name, "preset", req.Preset)

	if req.Reload {
		if _, err := s.session.Controller.Reload(r.Context()); err != nil {
			WriteError(w, err)
			return
		}
	}
	WriteJSON(w, cpu, http.StatusOK)
}
