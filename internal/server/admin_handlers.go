// internal/server/admin_handlers.go
package server

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/signalnine/fleetwatch/internal/checks"
	"github.com/signalnine/fleetwatch/internal/protocol"
	"github.com/signalnine/fleetwatch/internal/store"
)

const summaryRecentResults = 10

func (s *Server) storeError(w http.ResponseWriter, what string, err error) {
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, what+" not found")
		return
	}
	log.Error().Err(err).Str("entity", what).Msg("store error")
	writeError(w, http.StatusInternalServerError, "Database error")
}

func (s *Server) handleListEndpoints(w http.ResponseWriter, r *http.Request) {
	endpoints, err := s.db.ListEndpoints(r.Context())
	if err != nil {
		s.storeError(w, "Endpoint", err)
		return
	}
	writeJSON(w, http.StatusOK, endpoints)
}

func (s *Server) handleGetEndpoint(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	ctx := r.Context()

	e, err := s.db.GetEndpoint(ctx, id)
	if err != nil {
		s.storeError(w, "Endpoint", err)
		return
	}
	detail := protocol.EndpointDetail{Endpoint: *e}

	snap, err := s.db.LatestSnapshot(ctx, id)
	switch {
	case err == nil:
		detail.LatestSnapshot = snap
	case !errors.Is(err, store.ErrNotFound):
		s.storeError(w, "Snapshot", err)
		return
	}

	detail.LatestResults, err = s.db.LatestResults(ctx, id)
	if err != nil {
		s.storeError(w, "Results", err)
		return
	}
	writeJSON(w, http.StatusOK, detail)
}

func (s *Server) handleDeleteEndpoint(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	if err := s.db.DeleteEndpoint(r.Context(), id); err != nil {
		s.storeError(w, "Endpoint", err)
		return
	}
	log.Info().Str("endpoint_id", id.String()).Msg("endpoint deleted")
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleSetEndpointStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req protocol.StatusUpdateRequest
	if !decodeJSON(w, r, s.cfg.MaxPayloadBytes, &req) {
		return
	}
	if !req.Status.Valid() {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("Invalid status %q", req.Status))
		return
	}

	if err := s.deriver.Override(r.Context(), id, req.Status); err != nil {
		s.storeError(w, "Endpoint", err)
		return
	}
	e, err := s.db.GetEndpoint(r.Context(), id)
	if err != nil {
		s.storeError(w, "Endpoint", err)
		return
	}
	writeJSON(w, http.StatusOK, e)
}

func (s *Server) handleListChecks(w http.ResponseWriter, r *http.Request) {
	defs, err := s.db.ListChecks(r.Context())
	if err != nil {
		s.storeError(w, "Check", err)
		return
	}
	writeJSON(w, http.StatusOK, defs)
}

func (s *Server) handleGetCheck(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	def, err := s.db.GetCheck(r.Context(), id)
	if err != nil {
		s.storeError(w, "Check", err)
		return
	}
	writeJSON(w, http.StatusOK, def)
}

func (s *Server) handleCreateCheck(w http.ResponseWriter, r *http.Request) {
	var req protocol.CheckRequest
	if !decodeJSON(w, r, s.cfg.MaxPayloadBytes, &req) {
		return
	}

	def := protocol.CheckDefinition{Enabled: true}
	if err := applyCheckRequest(&def, req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := s.db.CreateCheck(r.Context(), &def); err != nil {
		s.storeError(w, "Check", err)
		return
	}
	s.checks.invalidate()

	log.Info().Str("check_id", def.ID.String()).Str("kind", def.Kind).Str("check", def.Name).Msg("check created")
	writeJSON(w, http.StatusCreated, def)
}

func (s *Server) handleUpdateCheck(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req protocol.CheckRequest
	if !decodeJSON(w, r, s.cfg.MaxPayloadBytes, &req) {
		return
	}
	ctx := r.Context()

	def, err := s.db.GetCheck(ctx, id)
	if err != nil {
		s.storeError(w, "Check", err)
		return
	}
	if err := applyCheckRequest(def, req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := s.db.UpdateCheck(ctx, def); err != nil {
		s.storeError(w, "Check", err)
		return
	}
	s.checks.invalidate()
	writeJSON(w, http.StatusOK, def)
}

func (s *Server) handleDeleteCheck(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	if err := s.db.DeleteCheck(r.Context(), id); err != nil {
		s.storeError(w, "Check", err)
		return
	}
	s.checks.invalidate()
	w.WriteHeader(http.StatusNoContent)
}

// applyCheckRequest merges req into def and validates the result.
// Parameters must always fit the schema of the final kind.
func applyCheckRequest(def *protocol.CheckDefinition, req protocol.CheckRequest) error {
	if req.Name != nil {
		def.Name = strings.TrimSpace(*req.Name)
	}
	if req.Description != nil {
		def.Description = req.Description
	}
	if req.Kind != nil {
		def.Kind = *req.Kind
	}
	if req.Parameters != nil {
		def.Parameters = req.Parameters
	}
	if req.Enabled != nil {
		def.Enabled = *req.Enabled
	}
	if req.Severity != nil || def.Severity == "" {
		var raw string
		if req.Severity != nil {
			raw = *req.Severity
		}
		sev, ok := protocol.ParseSeverity(raw)
		if !ok {
			return fmt.Errorf("invalid severity %q", raw)
		}
		def.Severity = sev
	}

	if def.Name == "" {
		return errors.New("name is required")
	}
	if _, err := checks.Parse(def.Kind, def.Parameters); err != nil {
		if errors.Is(err, checks.ErrUnknownKind) {
			return fmt.Errorf("invalid check type %q", def.Kind)
		}
		return fmt.Errorf("invalid parameters: %v", err)
	}
	return nil
}

func (s *Server) handleListResults(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var f store.ResultFilter
	var err error

	if v := q.Get("endpoint_id"); v != "" {
		if f.EndpointID, err = uuid.Parse(v); err != nil {
			writeError(w, http.StatusBadRequest, "Invalid endpoint_id")
			return
		}
	}
	if v := q.Get("check_id"); v != "" {
		if f.CheckID, err = uuid.Parse(v); err != nil {
			writeError(w, http.StatusBadRequest, "Invalid check_id")
			return
		}
	}
	if v := q.Get("limit"); v != "" {
		if f.Limit, err = strconv.Atoi(v); err != nil || f.Limit <= 0 {
			writeError(w, http.StatusBadRequest, "Invalid limit")
			return
		}
	}

	results, err := s.db.ListResults(r.Context(), f)
	if err != nil {
		s.storeError(w, "Results", err)
		return
	}
	writeJSON(w, http.StatusOK, results)
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	counts, err := s.db.EndpointCounts(ctx)
	if err != nil {
		s.storeError(w, "Summary", err)
		return
	}
	total, enabled, err := s.db.CheckCounts(ctx)
	if err != nil {
		s.storeError(w, "Summary", err)
		return
	}
	recent, err := s.db.RecentResults(ctx, summaryRecentResults)
	if err != nil {
		s.storeError(w, "Summary", err)
		return
	}

	sum := protocol.Summary{
		OnlineEndpoints:   counts[protocol.EndpointOnline],
		OfflineEndpoints:  counts[protocol.EndpointOffline],
		WarningEndpoints:  counts[protocol.EndpointWarning],
		CriticalEndpoints: counts[protocol.EndpointCritical],
		TotalChecks:       total,
		EnabledChecks:     enabled,
		RecentResults:     recent,
	}
	for _, n := range counts {
		sum.TotalEndpoints += n
	}
	writeJSON(w, http.StatusOK, sum)
}
