// internal/server/agent_handlers.go
package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/signalnine/fleetwatch/internal/protocol"
	"github.com/signalnine/fleetwatch/internal/store"
)

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req protocol.RegisterRequest
	if !decodeJSON(w, r, s.cfg.MaxPayloadBytes, &req) {
		return
	}
	req.Hostname = strings.TrimSpace(req.Hostname)
	if req.Hostname == "" {
		writeError(w, http.StatusBadRequest, "hostname is required")
		return
	}

	e, t, err := s.db.UpsertEndpoint(r.Context(), req)
	if err != nil {
		log.Error().Err(err).Str("hostname", req.Hostname).Msg("register endpoint")
		writeError(w, http.StatusInternalServerError, "Database error")
		return
	}
	s.deriver.Announce(r.Context(), t)

	log.Info().Str("endpoint_id", e.ID.String()).Str("hostname", e.Hostname).
		Str("agent_version", e.AgentVersion).Msg("endpoint registered")
	writeJSON(w, http.StatusOK, protocol.RegisterResponse{
		EndpointID: e.ID,
		Message:    "Endpoint registered successfully",
	})
}

func (s *Server) handleHeartbeat(w http.ResponseWriter, r *http.Request) {
	var req protocol.HeartbeatRequest
	if !decodeJSON(w, r, s.cfg.MaxPayloadBytes, &req) {
		return
	}
	ctx := r.Context()

	if _, err := s.db.GetEndpoint(ctx, req.EndpointID); err != nil {
		s.endpointLookupError(w, req.EndpointID, err)
		return
	}

	now := s.now()
	collectedAt := req.Snapshot.CollectedAt
	if collectedAt.IsZero() {
		collectedAt = now
	}
	if err := s.db.InsertSnapshot(ctx, req.EndpointID, collectedAt, req.Snapshot); err != nil {
		log.Error().Err(err).Str("endpoint_id", req.EndpointID.String()).Msg("store snapshot")
		writeError(w, http.StatusInternalServerError, "Database error")
		return
	}
	if err := s.deriver.Heartbeat(ctx, req.EndpointID); err != nil {
		s.endpointLookupError(w, req.EndpointID, err)
		return
	}

	writeJSON(w, http.StatusOK, protocol.HeartbeatResponse{Status: "ok", ServerTime: now.UTC()})
}

func (s *Server) handleAgentChecks(w http.ResponseWriter, r *http.Request) {
	checks, err := s.checks.enabled(r.Context())
	if err != nil {
		log.Error().Err(err).Msg("list enabled checks")
		writeError(w, http.StatusInternalServerError, "Database error")
		return
	}
	writeJSON(w, http.StatusOK, protocol.ChecksResponse{Checks: checks})
}

// resultsBatch defers decoding of each result so one bad entry does not
// reject the whole batch
type resultsBatch struct {
	EndpointID uuid.UUID         `json:"endpoint_id"`
	Results    []json.RawMessage `json:"results"`
}

func (s *Server) handleResults(w http.ResponseWriter, r *http.Request) {
	var req resultsBatch
	if !decodeJSON(w, r, s.cfg.MaxPayloadBytes, &req) {
		return
	}
	ctx := r.Context()
	logger := log.With().Str("endpoint_id", req.EndpointID.String()).Logger()

	if _, err := s.db.GetEndpoint(ctx, req.EndpointID); err != nil {
		s.endpointLookupError(w, req.EndpointID, err)
		return
	}

	var statuses []protocol.CheckStatus
	for i, raw := range req.Results {
		var sub protocol.ResultSubmission
		if err := json.Unmarshal(raw, &sub); err != nil {
			logger.Warn().Err(err).Int("index", i).Msg("skipping malformed result")
			continue
		}
		if !sub.Status.Valid() {
			logger.Warn().Str("status", string(sub.Status)).Int("index", i).Msg("skipping result with unknown status")
			continue
		}
		if sub.CollectedAt.IsZero() {
			sub.CollectedAt = s.now()
		}

		err := s.db.InsertResult(ctx, &protocol.CheckResult{
			EndpointID:  req.EndpointID,
			CheckID:     sub.CheckID,
			Status:      sub.Status,
			Message:     sub.Message,
			CollectedAt: sub.CollectedAt,
		})
		if err != nil {
			logger.Warn().Err(err).Str("check_id", sub.CheckID.String()).Msg("skipping result")
			continue
		}
		statuses = append(statuses, sub.Status)
	}

	next, err := s.deriver.Results(ctx, req.EndpointID, statuses)
	if err != nil {
		s.endpointLookupError(w, req.EndpointID, err)
		return
	}

	logger.Info().Int("submitted", len(req.Results)).Int("accepted", len(statuses)).
		Str("status", string(next)).Msg("results received")
	writeJSON(w, http.StatusOK, protocol.ResultsResponse{
		Accepted: len(statuses),
		Message:  fmt.Sprintf("Accepted %d results", len(statuses)),
	})
}

func (s *Server) endpointLookupError(w http.ResponseWriter, id uuid.UUID, err error) {
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "Endpoint not found")
		return
	}
	log.Error().Err(err).Str("endpoint_id", id.String()).Msg("endpoint lookup")
	writeError(w, http.StatusInternalServerError, "Database error")
}
