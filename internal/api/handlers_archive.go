package api

import (
	"net/http"

	"supersim/internal/errors"
)

// SaveArchiveRequest archives the displayed snapshot.
type SaveArchiveRequest struct {
	Label string `json:"label,omitempty"`
}

func (s *Server) requireArchives(w http.ResponseWriter) bool {
	if s.archives == nil {
		ServiceUnavailable(w, "archives require an archive directory")
		return false
	}
	return true
}

func (s *Server) handleListArchives(w http.ResponseWriter, r *http.Request) {
	if !s.requireArchives(w) {
		return
	}
	metas, err := s.archives.List()
	if err != nil {
		WriteError(w, err)
		return
	}
	WriteJSON(w, map[string]interface{}{
		"archives": metas,
		"count":    len(metas),
	}, http.StatusOK)
}

// handleSaveArchive handles POST /archives
func (s *Server) handleSaveArchive(w http.ResponseWriter, r *http.Request) {
	if !s.requireArchives(w) {
		return
	}
	var req SaveArchiveRequest
	if err := decodeBody(r, &req); err != nil {
		BadRequest(w, err.Error())
		return
	}
	snap := s.session.Snapshot()
	if snap == nil {
		WriteError(w, errors.Newf(errors.NoSnapshot, "no snapshot is loaded"))
		return
	}
	meta, err := s.archives.Save(snap, req.Label)
	if err != nil {
		WriteError(w, err)
		return
	}
	WriteJSON(w, meta, http.StatusCreated)
}

func (s *Server) handleGetArchive(w http.ResponseWriter, r *http.Request) {
	if !s.requireArchives(w) {
		return
	}
	entry, err := s.archives.Load(r.PathValue("id"))
	if err != nil {
		WriteError(w, err)
		return
	}
	WriteJSON(w, entry.Meta, http.StatusOK)
}

// handleArchiveView handles GET /archives/{id}/views/{view}?arg=...
func (s *Server) handleArchiveView(w http.ResponseWriter, r *http.Request) {
	if !s.requireArchives(w) {
		return
	}
	entry, err := s.archives.Load(r.PathValue("id"))
	if err != nil {
		WriteError(w, err)
		return
	}
	v, err := s.archiveViews.Select(entry.Snapshot, r.PathValue("view"), r.URL.Query().Get("arg"))
	if err != nil {
		WriteError(w, err)
		return
	}
	WriteJSON(w, v, http.StatusOK)
}

func (s *Server) handleDeleteArchive(w http.ResponseWriter, r *http.Request) {
	if !s.requireArchives(w) {
		return
	}
	id := r.PathValue("id")
	if err := s.archives.Delete(id); err != nil {
		WriteError(w, err)
		return
	}
	WriteJSON(w, map[string]string{"deleted": id}, http.StatusOK)
}
