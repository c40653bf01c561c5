// internal/server/routes.go
package server

import (
	"net/http"

	"github.com/gorilla/mux"
)

// Route binds one API path to its handler
type Route struct {
	Name    string
	Methods []string
	Pattern string
	Handler http.HandlerFunc
	Auth    func(http.Handler) http.Handler
}

func (s *Server) routes() []Route {
	agent := agentAuth(s.cfg.AgentSecret)
	admin := adminAuth(s.cfg.AdminToken)

	return []Route{
		{"health", []string{"GET"}, "/health", s.handleHealth, nil},

		// agent synchronization protocol
		{"register", []string{"POST"}, "/api/agent/register", s.handleRegister, agent},
		{"heartbeat", []string{"POST"}, "/api/agent/heartbeat", s.handleHeartbeat, agent},
		{"agent-checks", []string{"GET"}, "/api/agent/checks", s.handleAgentChecks, agent},
		{"results", []string{"POST"}, "/api/agent/results", s.handleResults, agent},

		// admin API
		{"list-endpoints", []string{"GET"}, "/api/endpoints", s.handleListEndpoints, admin},
		{"get-endpoint", []string{"GET"}, "/api/endpoints/{id}", s.handleGetEndpoint, admin},
		{"delete-endpoint", []string{"DELETE"}, "/api/endpoints/{id}", s.handleDeleteEndpoint, admin},
		{"set-endpoint-status", []string{"PUT"}, "/api/endpoints/{id}/status", s.handleSetEndpointStatus, admin},
		{"list-checks", []string{"GET"}, "/api/checks", s.handleListChecks, admin},
		{"create-check", []string{"POST"}, "/api/checks", s.handleCreateCheck, admin},
		{"get-check", []string{"GET"}, "/api/checks/{id}", s.handleGetCheck, admin},
		{"update-check", []string{"PUT"}, "/api/checks/{id}", s.handleUpdateCheck, admin},
		{"delete-check", []string{"DELETE"}, "/api/checks/{id}", s.handleDeleteCheck, admin},
		{"list-results", []string{"GET"}, "/api/results", s.handleListResults, admin},
		{"summary", []string{"GET"}, "/api/reports/summary", s.handleSummary, admin},
	}
}

func (s *Server) newRouter() *mux.Router {
	router := mux.NewRouter()
	for _, route := range s.routes() {
		var h http.Handler = route.Handler
		if route.Auth != nil {
			h = route.Auth(h)
		}
		router.Handle(route.Pattern, logRequests(route.Name, h)).Methods(route.Methods...)
	}
	router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, "No such route")
	})
	return router
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.db.Ping(r.Context()); err != nil {
		writeError(w, http.StatusServiceUnavailable, "Database unavailable")
		return
	}
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}
