package api

import (
	"context"
	"net/http"

	"supersim/internal/snapshot"
	"supersim/internal/tick"
)

// TickRequest asks for one tick.
type TickRequest struct {
	Tick *int64 `json:"tick"`
}

// TickResponse reports the committed controller state after a request.
type TickResponse struct {
	Status  tick.Status `json:"status"`
	Tick    int64       `json:"tick"`
	Objects int         `json:"objects"`
}

type tickFunc func(ctx context.Context) (*snapshot.Snapshot, error)

// runTick performs one controller request. A failed request still answers with
// the error status mapped from its code.
func (s *Server) runTick(w http.ResponseWriter, r *http.Request, fn tickFunc) {
	snap, err := fn(r.Context())
	if err != nil {
		WriteError(w, err)
		return
	}
	WriteJSON(w, TickResponse{
		Status:  s.session.Controller.Status(),
		Tick:    snap.Tick(),
		Objects: snap.Len(),
	}, http.StatusOK)
}

// handleTickRequest handles POST /tick with body {"tick": n}
func (s *Server) handleTickRequest(w http.ResponseWriter, r *http.Request) {
	var req TickRequest
	if err := decodeBody(r, &req); err != nil {
		BadRequest(w, err.Error())
		return
	}
	if req.Tick == nil {
		BadRequest(w, "tick is required")
		return
	}
	t := *req.Tick
	s.runTick(w, r, func(ctx context.Context) (*snapshot.Snapshot, error) {
		return s.session.Controller.Request(ctx, t)
	})
}

func (s *Server) handleTickForward(w http.ResponseWriter, r *http.Request) {
	s.runTick(w, r, s.session.Controller.StepForward)
}

func (s *Server) handleTickBackward(w http.ResponseWriter, r *http.Request) {
	s.runTick(w, r, s.session.Controller.StepBackward)
}

func (s *Server) handleTickReload(w http.ResponseWriter, r *http.Request) {
	s.runTick(w, r, s.session.Controller.Reload)
}

func (s *Server) handleTickStatus(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, s.session.Controller.Status(), http.StatusOK)
}

// handleTickHistory handles GET /tick/history?limit=n
func (s *Server) handleTickHistory(w http.ResponseWriter, r *http.Request) {
	if s.db == nil {
		ServiceUnavailable(w, "tick history requires a database")
		return
	}
	records, err := s.db.RecentTicks(QueryParamInt(r, "limit", 50))
	if err != nil {
		WriteError(w, err)
		return
	}
	WriteJSON(w, map[string]interface{}{
		"records": records,
		"count":   len(records),
	}, http.StatusOK)
}
