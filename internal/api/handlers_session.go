package api

import (
	"net/http"

	"supersim/internal/diagnostics"
	"supersim/internal/isa"
	"supersim/internal/session"
	"supersim/internal/snapshot"
)

// SetCodeRequest replaces the simulated program.
type SetCodeRequest struct {
	Code string `json:"code"`
	// Simulate restarts the simulation from tick 0 with the new program.
	Simulate bool `json:"simulate,omitempty"`
}

// HighlightRequest names a simulated instruction. Unhighlight only clears the
// highlight when the ID matches it.
type HighlightRequest struct {
	ID *int64 `json:"id"`
}

func (s *Server) handleSessionState(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, newSessionInfo(s.session.State()), http.StatusOK)
}

// handleSetCode handles PUT /session/code
func (s *Server) handleSetCode(w http.ResponseWriter, r *http.Request) {
	var req SetCodeRequest
	if err := decodeBody(r, &req); err != nil {
		BadRequest(w, err.Error())
		return
	}
	s.session.SetCode(req.Code)
	s.logger.Info("Program replaced", "bytes", len(req.Code), "requestID", GetRequestID(r.Context()))

	if req.Simulate {
		if _, err := s.session.Controller.Reload(r.Context()); err != nil {
			WriteError(w, err)
			return
		}
	}
	WriteJSON(w, newSessionInfo(s.session.State()), http.StatusOK)
}

func toID(n *int64) *snapshot.ID {
	if n == nil {
		return nil
	}
	id := snapshot.ID(*n)
	return &id
}

// handleHighlight handles POST /session/highlight
func (s *Server) handleHighlight(w http.ResponseWriter, r *http.Request) {
	var req HighlightRequest
	if err := decodeBody(r, &req); err != nil {
		BadRequest(w, err.Error())
		return
	}
	if req.ID == nil {
		BadRequest(w, "id is required")
		return
	}
	st := s.session.Dispatch(session.HighlightSimCode{ID: toID(req.ID)})
	WriteJSON(w, newSessionInfo(st), http.StatusOK)
}

// handleUnhighlight handles POST /session/unhighlight
func (s *Server) handleUnhighlight(w http.ResponseWriter, r *http.Request) {
	var req HighlightRequest
	if err := decodeBody(r, &req); err != nil {
		BadRequest(w, err.Error())
		return
	}
	st := s.session.Dispatch(session.Unhighlight{ID: toID(req.ID)})
	WriteJSON(w, newSessionInfo(st), http.StatusOK)
}

// ParseRequest checks assembly. Without memory locations the ones of the active
// configuration are used.
type ParseRequest struct {
	Code            string               `json:"code"`
	MemoryLocations []isa.MemoryLocation `json:"memoryLocations,omitempty"`
}

// ParseResponse carries editor-ready assembly diagnostics.
type ParseResponse struct {
	Success     bool                     `json:"success"`
	Diagnostics []diagnostics.Diagnostic `json:"diagnostics"`
}

// CompileRequest compiles C code.
type CompileRequest struct {
	Code  string   `json:"code"`
	Flags []string `json:"flags,omitempty"`
}

// CompileResult is the compiler output with editor-ready diagnostics in the C
// source.
type CompileResult struct {
	Success     bool                     `json:"success"`
	Program     string                   `json:"program,omitempty"`
	AsmToC      []int                    `json:"asmToC,omitempty"`
	Error       string                   `json:"error,omitempty"`
	Diagnostics []diagnostics.Diagnostic `json:"diagnostics"`
}

// handleParseAsm handles POST /diagnostics/parse
func (s *Server) handleParseAsm(w http.ResponseWriter, r *http.Request) {
	if s.diag == nil {
		ServiceUnavailable(w, "diagnostics require a simulator")
		return
	}
	var req ParseRequest
	if err := decodeBody(r, &req); err != nil {
		BadRequest(w, err.Error())
		return
	}
	memory := req.MemoryLocations
	if memory == nil {
		memory = s.session.Controller.Config().MemoryLocations
	}

	resp, err := s.diag.ParseAsm(r.Context(), req.Code, memory)
	if err != nil {
		WriteError(w, err)
		return
	}
	diags, err := diagnostics.Transform(resp.Errors, req.Code)
	if err != nil {
		WriteError(w, err)
		return
	}
	WriteJSON(w, ParseResponse{Success: resp.Success, Diagnostics: diags}, http.StatusOK)
}

// handleCompile handles POST /diagnostics/compile
func (s *Server) handleCompile(w http.ResponseWriter, r *http.Request) {
	if s.diag == nil {
		ServiceUnavailable(w, "compilation requires a simulator")
		return
	}
	var req CompileRequest
	if err := decodeBody(r, &req); err != nil {
		BadRequest(w, err.Error())
		return
	}

	resp, err := s.diag.Compile(r.Context(), req.Code, req.Flags)
	if err != nil {
		WriteError(w, err)
		return
	}
	diags, err := diagnostics.Transform(resp.CompilerErrors, req.Code)
	if err != nil {
		WriteError(w, err)
		return
	}
	WriteJSON(w, CompileResult{
		Success:     resp.Success,
		Program:     resp.Program,
		AsmToC:      resp.AsmToC,
		Error:       resp.Error,
		Diagnostics: diags,
	}, http.StatusOK)
}
