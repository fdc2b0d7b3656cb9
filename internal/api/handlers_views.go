package api

import (
	"net/http"

	"supersim/internal/views"
)

// writeView answers with a view over the displayed snapshot.
func (s *Server) writeView(w http.ResponseWriter, view, arg string) {
	v, err := s.session.Selectors.Select(s.session.Snapshot(), view, arg)
	if err != nil {
		WriteError(w, err)
		return
	}
	WriteJSON(w, v, http.StatusOK)
}

func (s *Server) handleRegisters(w http.ResponseWriter, r *http.Request) {
	s.writeView(w, views.ViewRegisters, "")
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	s.writeView(w, views.ViewRegisters, r.PathValue("key"))
}

func (s *Server) handleProgram(w http.ResponseWriter, r *http.Request) {
	s.writeView(w, views.ViewProgram, "")
}

func (s *Server) handleIssueWindow(w http.ResponseWriter, r *http.Request) {
	s.writeView(w, views.ViewIssue, r.PathValue("unit"))
}

func (s *Server) handleFunctionUnits(w http.ResponseWriter, r *http.Request) {
	s.writeView(w, views.ViewUnits, r.PathValue("unit"))
}

func (s *Server) handleCache(w http.ResponseWriter, r *http.Request) {
	s.writeView(w, views.ViewCache, "")
}

func (s *Server) handleReorderBuffer(w http.ResponseWriter, r *http.Request) {
	s.writeView(w, views.ViewROB, "")
}

func (s *Server) handleFetch(w http.ResponseWriter, r *http.Request) {
	s.writeView(w, views.ViewFetch, "")
}

func (s *Server) handleDecode(w http.ResponseWriter, r *http.Request) {
	s.writeView(w, views.ViewDecode, "")
}

func (s *Server) handleObject(w http.ResponseWriter, r *http.Request) {
	s.writeView(w, views.ViewObject, r.PathValue("id"))
}
