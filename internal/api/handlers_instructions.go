package api

import (
	"net/http"

	"supersim/internal/errors"
)

// HoverRequest asks for the instruction under a cursor.
type HoverRequest struct {
	Text string `json:"text"`
	Pos  int    `json:"pos"`
	Side int    `json:"side,omitempty"`
}

func (s *Server) handleListInstructions(w http.ResponseWriter, r *http.Request) {
	names, err := s.session.Instructions.Names()
	if err != nil {
		WriteError(w, err)
		return
	}
	WriteJSON(w, map[string]interface{}{
		"instructions": names,
		"count":        len(names),
	}, http.StatusOK)
}

func (s *Server) handleGetInstruction(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	d, ok, err := s.session.Instructions.Lookup(name)
	if err != nil {
		WriteError(w, err)
		return
	}
	if !ok {
		WriteError(w, errors.Newf(errors.ObjectNotFound, "no instruction %q", name))
		return
	}
	WriteJSON(w, d, http.StatusOK)
}

func (s *Server) handleReloadInstructions(w http.ResponseWriter, r *http.Request) {
	if err := s.session.Instructions.Reload(r.Context()); err != nil {
		WriteError(w, err)
		return
	}
	WriteJSON(w, s.session.Instructions.Status(), http.StatusOK)
}

// handleHover handles POST /instructions/hover. A cursor that is not on a known
// instruction answers 204.
func (s *Server) handleHover(w http.ResponseWriter, r *http.Request) {
	var req HoverRequest
	if err := decodeBody(r, &req); err != nil {
		BadRequest(w, err.Error())
		return
	}
	h, err := s.session.Instructions.Hover(req.Text, req.Pos, req.Side)
	if err != nil {
		WriteError(w, err)
		return
	}
	if h == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	WriteJSON(w, h, http.StatusOK)
}
