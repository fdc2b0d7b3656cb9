package api

import (
	"net/http"

	"supersim/internal/metrics"
	"supersim/internal/version"
)

// registerRoutes registers all API routes
func (s *Server) registerRoutes() {
	// Health and readiness checks
	s.router.HandleFunc("GET /health", s.handleHealth)
	s.router.HandleFunc("GET /ready", s.handleReady)
	s.router.HandleFunc("GET /status", s.handleStatus)
	s.router.Handle("GET /metrics", metrics.Handler())

	// Views over the displayed snapshot
	s.router.HandleFunc("GET /views/registers", s.handleRegisters)
	s.router.HandleFunc("GET /views/registers/{key}", s.handleRegister)
	s.router.HandleFunc("GET /views/program", s.handleProgram)
	s.router.HandleFunc("GET /views/issue/{unit}", s.handleIssueWindow)
	s.router.HandleFunc("GET /views/units/{unit}", s.handleFunctionUnits)
	s.router.HandleFunc("GET /views/cache", s.handleCache)
	s.router.HandleFunc("GET /views/rob", s.handleReorderBuffer)
	s.router.HandleFunc("GET /views/fetch", s.handleFetch)
	s.router.HandleFunc("GET /views/decode", s.handleDecode)
	s.router.HandleFunc("GET /views/objects/{id}", s.handleObject)

	// Tick navigation
	s.router.HandleFunc("POST /tick", s.handleTickRequest)
	s.router.HandleFunc("POST /tick/forward", s.handleTickForward)
	s.router.HandleFunc("POST /tick/backward", s.handleTickBackward)
	s.router.HandleFunc("POST /tick/reload", s.handleTickReload)
	s.router.HandleFunc("GET /tick/status", s.handleTickStatus)
	s.router.HandleFunc("GET /tick/history", s.handleTickHistory)

	// Session
	s.router.HandleFunc("GET /session", s.handleSessionState)
	s.router.HandleFunc("PUT /session/code", s.handleSetCode)
	s.router.HandleFunc("POST /session/highlight", s.handleHighlight)
	s.router.HandleFunc("POST /session/unhighlight", s.handleUnhighlight)

	// Editor diagnostics
	s.router.HandleFunc("POST /diagnostics/parse", s.handleParseAsm)
	s.router.HandleFunc("POST /diagnostics/compile", s.handleCompile)

	// CPU configuration
	s.router.HandleFunc("GET /isa/presets", s.handleListPresets)
	s.router.HandleFunc("POST /isa/presets", s.handleSavePreset)
	s.router.HandleFunc("GET /isa/presets/{name}", s.handleGetPreset)
	s.router.HandleFunc("DELETE /isa/presets/{name}", s.handleDeletePreset)
	s.router.HandleFunc("GET /isa/config", s.handleGetConfig)
	s.router.HandleFunc("PUT /isa/config", s.handlePutConfig)

	// Instruction descriptions
	s.router.HandleFunc("GET /instructions", s.handleListInstructions)
	s.router.HandleFunc("GET /instructions/{name}", s.handleGetInstruction)
	s.router.HandleFunc("POST /instructions/reload", s.handleReloadInstructions)
	s.router.HandleFunc("POST /instructions/hover", s.handleHover)

	// Archived snapshots
	s.router.HandleFunc("GET /archives", s.handleListArchives)
	s.router.HandleFunc("POST /archives", s.handleSaveArchive)
	s.router.HandleFunc("GET /archives/{id}", s.handleGetArchive)
	s.router.HandleFunc("GET /archives/{id}/views/{view}", s.handleArchiveView)
	s.router.HandleFunc("DELETE /archives/{id}", s.handleDeleteArchive)

	// Controller transitions
	s.router.HandleFunc("GET /ws", s.handleStream)

	// Root endpoint
	s.router.HandleFunc("GET /{$}", s.handleRoot)
}

// handleRoot handles the root endpoint
func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, map[string]interface{}{
		"name":    "supersim API",
		"version": version.Version,
		"endpoints": []string{
			"GET /health - Health check",
			"GET /ready - Readiness check",
			"GET /status - Controller, session and instruction status",
			"GET /metrics - Prometheus metrics",
			"GET /views/registers - Register table by identifier and alias",
			"GET /views/registers/{key} - One register",
			"GET /views/program - Program listing with labels",
			"GET /views/issue/{unit} - Issue window of a unit class",
			"GET /views/units/{unit} - Function units of a unit class",
			"GET /views/cache - L1 cache",
			"GET /views/rob - Reorder buffer",
			"GET /views/fetch - Fetch stage",
			"GET /views/decode - Decode stage",
			"GET /views/objects/{id} - Any identified object, resolved",
			"POST /tick - Simulate to a tick",
			"POST /tick/forward - Step one tick forward",
			"POST /tick/backward - Step one tick backward, staying at 0 from tick 0",
			"POST /tick/reload - Restart the simulation at tick 0",
			"GET /tick/status - Controller status",
			"GET /tick/history - Recorded controller transitions",
			"GET /session - Session state",
			"PUT /session/code - Replace the simulated program",
			"POST /session/highlight - Highlight a simulated instruction",
			"POST /session/unhighlight - Clear a highlight",
			"POST /diagnostics/parse - Assembly diagnostics",
			"POST /diagnostics/compile - Compile C to assembly",
			"GET /isa/presets - List CPU presets",
			"POST /isa/presets - Save a CPU preset",
			"GET /isa/presets/{name} - Get a CPU preset",
			"DELETE /isa/presets/{name} - Delete a CPU preset",
			"GET /isa/config - Active CPU configuration",
			"PUT /isa/config - Replace the active CPU configuration",
			"GET /instructions - Instruction names",
			"GET /instructions/{name} - Instruction description",
			"POST /instructions/reload - Reload instruction descriptions",
			"POST /instructions/hover - Hover tooltip at a position",
			"GET /archives - List archived snapshots",
			"POST /archives - Archive the displayed snapshot",
			"GET /archives/{id} - Archived snapshot metadata",
			"GET /archives/{id}/views/{view} - View over an archived snapshot",
			"DELETE /archives/{id} - Delete an archived snapshot",
			"GET /ws - Stream of controller transitions",
		},
	}, http.StatusOK)
}
