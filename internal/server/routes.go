package server

import (
	"net/http"
)

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() *http.ServeMux {
	mux := http.NewServeMux()

	// WebSocket route
	mux.HandleFunc("/ws", s.app.WSHandler.HandleWebSocket)

	// API routes - Sessions
	// GET (list) and POST (create), the grouped view, then /{id}[/end|/stats]
	mux.HandleFunc("/api/sessions", s.handleSessionsRoute)
	mux.HandleFunc("/api/sessions/grouped", s.app.SessionHandler.GroupedBatchesHandler)
	mux.HandleFunc("/api/sessions/", s.app.SessionHandler.SessionRouter)

	// API routes - Batches
	// GET (list) and POST (submit), then /{id}[/jobs|/cancel]
	mux.HandleFunc("/api/batches", s.handleBatchesRoute)
	mux.HandleFunc("/api/batches/", s.app.BatchHandler.BatchRouter)

	// API routes - Jobs
	mux.HandleFunc("/api/jobs/", s.app.JobHandler.JobRouter) // GET /{id}, POST /{id}/cancel

	// API routes - Maintenance
	mux.HandleFunc("/api/maintenance/cleanup", s.app.MaintenanceHandler.CleanupHandler)

	// API routes - System
	mux.HandleFunc("/api/version", s.app.APIHandler.VersionHandler)
	mux.HandleFunc("/api/health", s.app.APIHandler.HealthHandler)

	// Catch-all for unknown API routes
	mux.HandleFunc("/api/", s.app.APIHandler.NotFoundHandler)

	return mux
}

// handleSessionsRoute dispatches /api/sessions by method
func (s *Server) handleSessionsRoute(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.app.SessionHandler.ListSessionsHandler(w, r)
	case http.MethodPost:
		s.app.SessionHandler.CreateSessionHandler(w, r)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// handleBatchesRoute dispatches /api/batches by method
func (s *Server) handleBatchesRoute(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.app.BatchHandler.ListBatchesHandler(w, r)
	case http.MethodPost:
		s.app.BatchHandler.SubmitHandler(w, r)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}
