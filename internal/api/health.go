package api

import (
	"net/http"
	"runtime"
	"time"

	"supersim/internal/instrdesc"
	"supersim/internal/session"
	"supersim/internal/tick"
	"supersim/internal/version"
)

// HealthResponse represents the health check response
type HealthResponse struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	Version   string    `json:"version"`
}

// ReadyResponse represents the readiness check response
type ReadyResponse struct {
	Status    string            `json:"status"`
	Timestamp time.Time         `json:"timestamp"`
	Checks    map[string]bool   `json:"checks"`
	Details   map[string]string `json:"details,omitempty"`
}

// StatusResponse is the combined state of the running service.
type StatusResponse struct {
	Timestamp    time.Time         `json:"timestamp"`
	Uptime       string            `json:"uptime"`
	Build        version.BuildInfo `json:"build"`
	Controller   tick.Status       `json:"controller"`
	Session      SessionInfo       `json:"session"`
	Instructions instrdesc.Status  `json:"instructions"`
	Views        ViewStats         `json:"views"`
	Stream       StreamInfo        `json:"stream"`
	Memory       MemoryInfo        `json:"memory"`
	Storage      StorageInfo       `json:"storage"`
}

// ViewStats reports selector memo efficiency.
type ViewStats struct {
	Hits   uint64 `json:"hits"`
	Misses uint64 `json:"misses"`
}

// StreamInfo reports WebSocket subscribers.
type StreamInfo struct {
	Clients int `json:"clients"`
}

// MemoryInfo contains memory usage information
type MemoryInfo struct {
	AllocMB      float64 `json:"allocMb"`
	SysMB        float64 `json:"sysMb"`
	NumGC        uint32  `json:"numGc"`
	NumGoroutine int     `json:"numGoroutine"`
}

// StorageInfo reports which stores are attached.
type StorageInfo struct {
	Database   string `json:"database,omitempty"`
	ArchiveDir string `json:"archiveDir,omitempty"`
}

// handleHealth is a liveness check; it never touches the simulator.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now(),
		Version:   version.Version,
	}, http.StatusOK)
}

// handleReady reports ready once a snapshot is displayed and the instruction
// descriptions are loaded.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	checks := map[string]bool{}
	details := map[string]string{}

	st := s.session.Controller.Status()
	checks["snapshot"] = s.session.Snapshot() != nil
	if st.Error != "" {
		details["snapshot"] = st.Error
	}

	instr := s.session.Instructions.Status()
	checks["instructions"] = instr.State == instrdesc.Loaded.String()
	if instr.Error != "" {
		details["instructions"] = instr.Error
	}

	status, code := "ready", http.StatusOK
	for _, ok := range checks {
		if !ok {
			status, code = "not_ready", http.StatusServiceUnavailable
			break
		}
	}

	resp := ReadyResponse{Status: status, Timestamp: time.Now(), Checks: checks}
	if len(details) > 0 {
		resp.Details = details
	}
	WriteJSON(w, resp, code)
}

// handleStatus returns everything an operator wants on one page.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	hits, misses := s.session.Selectors.Stats()
	resp := StatusResponse{
		Timestamp:    time.Now(),
		Uptime:       time.Since(s.startedAt).Round(time.Second).String(),
		Build:        version.Get(),
		Controller:   s.session.Controller.Status(),
		Session:      newSessionInfo(s.session.State()),
		Instructions: s.session.Instructions.Status(),
		Views:        ViewStats{Hits: hits, Misses: misses},
		Stream:       StreamInfo{Clients: s.hub.Len()},
		Memory: MemoryInfo{
			AllocMB:      float64(m.Alloc) / 1024 / 1024,
			SysMB:        float64(m.Sys) / 1024 / 1024,
			NumGC:        m.NumGC,
			NumGoroutine: runtime.NumGoroutine(),
		},
	}
	if s.db != nil {
		resp.Storage.Database = s.db.Path()
	}
	if s.archives != nil {
		resp.Storage.ArchiveDir = s.archives.Dir()
	}
	WriteJSON(w, resp, http.StatusOK)
}

// SessionInfo is the JSON form of the session state.
type SessionInfo struct {
	Tick                 int64  `json:"tick"`
	HasSnapshot          bool   `json:"hasSnapshot"`
	CodeLength           int    `json:"codeLength"`
	LastError            string `json:"lastError,omitempty"`
	HighlightedSimCode   *int64 `json:"highlightedSimCode,omitempty"`
	HighlightedInputCode *int64 `json:"highlightedInputCode,omitempty"`
}

func newSessionInfo(st session.State) SessionInfo {
	info := SessionInfo{
		Tick:        st.Tick(),
		HasSnapshot: st.Snapshot != nil,
		CodeLength:  len(st.Code),
	}
	if st.LastError != nil {
		info.LastError = st.LastError.Error()
	}
	if st.HighlightedSimCode != nil {
		id := int64(*st.HighlightedSimCode)
		info.HighlightedSimCode = &id
	}
	if st.HighlightedInputCode != nil {
		id := int64(*st.HighlightedInputCode)
		info.HighlightedInputCode = &id
	}
	return info
}
