// internal/agent/agent.go
package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/codeGROOVE-dev/retry"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/signalnine/fleetwatch/internal/checks"
	"github.com/signalnine/fleetwatch/internal/config"
	"github.com/signalnine/fleetwatch/internal/hostinfo"
	"github.com/signalnine/fleetwatch/internal/protocol"
)

// registerAttempts is how many registrations one retry round makes
// before logging that the server is still unreachable
const registerAttempts = 10

// Inventory identifies the local machine
type Inventory interface {
	Identity(ctx context.Context) (hostinfo.Identity, error)
	IPAddresses() []string
}

// Snapshotter collects a system snapshot
type Snapshotter interface {
	Collect(ctx context.Context) protocol.SnapshotData
}

// Executor runs one check
type Executor interface {
	Execute(ctx context.Context, kind string, params json.RawMessage) checks.Outcome
}

// Agent registers the endpoint, then heartbeats, runs checks and reports results on a schedule
type Agent struct {
	cfg       *config.AgentConfig
	version   string
	client    *Client
	inventory Inventory
	snapshots Snapshotter
	executor  Executor

	endpointID uuid.UUID
}

// New creates an agent for the local machine
func New(cfg *config.AgentConfig, version string) *Agent {
	host := hostinfo.New()
	return &Agent{
		cfg:       cfg,
		version:   version,
		client:    NewClient(cfg.ServerURL, cfg.AgentSecret, cfg.TLSSkipVerify),
		inventory: host,
		snapshots: hostinfo.NewCollector(host),
		executor:  checks.NewEngine(host, cfg.CheckTimeout),
	}
}

// EndpointID is the id assigned by the server, or uuid.Nil before registration
func (a *Agent) EndpointID() uuid.UUID {
	return a.endpointID
}

// Run registers, retrying until it succeeds, then ticks immediately and on
// every collection interval until ctx is cancelled
func (a *Agent) Run(ctx context.Context) error {
	log.Info().
		Str("server", a.cfg.ServerURL).
		Dur("interval", a.cfg.CollectionInterval).
		Str("version", a.version).
		Msg("agent starting")

	if err := a.registerUntilSuccess(ctx); err != nil {
		log.Info().Msg("agent shutting down")
		return nil
	}

	ticker := time.NewTicker(a.cfg.CollectionInterval)
	defer ticker.Stop()

	// Run immediately on start
	a.Tick(ctx)

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("agent shutting down")
			return nil
		case <-ticker.C:
			a.Tick(ctx)
		}
	}
}

func (a *Agent) registerUntilSuccess(ctx context.Context) error {
	for {
		err := retry.Do(func() error {
			err := a.Register(ctx)
			if err != nil {
				log.Warn().Err(err).Dur("retry_in", a.cfg.RegisterBackoff).Msg("registration failed")
			}
			return err
		},
			retry.Attempts(registerAttempts),
			retry.Delay(a.cfg.RegisterBackoff),
			retry.MaxDelay(a.cfg.RegisterBackoff),
			retry.Context(ctx),
		)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		log.Error().Int("attempts", registerAttempts).Msg("server still unreachable; continuing to retry")
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(a.cfg.RegisterBackoff):
		}
	}
}

// Register makes one registration attempt and records the assigned id
func (a *Agent) Register(ctx context.Context) error {
	id, err := a.inventory.Identity(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("host identity incomplete")
	}
	hostname := a.cfg.Hostname
	if hostname == "" {
		hostname = id.Hostname
	}
	if hostname == "" {
		return fmt.Errorf("no hostname available; set hostname in config")
	}

	resp, err := a.client.Register(ctx, protocol.RegisterRequest{
		Hostname:     hostname,
		OS:           id.OS,
		OSVersion:    id.OSVersion,
		AgentVersion: a.version,
		IPAddresses:  a.inventory.IPAddresses(),
	})
	if err != nil {
		return fmt.Errorf("register: %w", err)
	}

	a.endpointID = resp.EndpointID
	log.Info().Str("endpoint_id", a.endpointID.String()).Str("hostname", hostname).Msg("registered with server")
	a.rememberEndpointID()
	return nil
}

func (a *Agent) rememberEndpointID() {
	if a.cfg.StateFile == "" {
		return
	}
	prev, err := ReadEndpointID(a.cfg.StateFile)
	if err != nil {
		log.Warn().Err(err).Msg("read state file")
	}
	if prev != uuid.Nil && prev != a.endpointID {
		log.Warn().
			Str("previous", prev.String()).
			Str("current", a.endpointID.String()).
			Msg("server assigned a new endpoint id; its history for this host starts over")
	}
	if prev != a.endpointID {
		if err := WriteEndpointID(a.cfg.StateFile, a.endpointID); err != nil {
			log.Warn().Err(err).Msg("write state file")
		}
	}
}

// Tick runs one collection cycle: heartbeat with snapshot, fetch checks,
// execute them in order, submit the batch. A failing step is logged and the
// cycle continues where it can.
func (a *Agent) Tick(ctx context.Context) {
	if a.endpointID == uuid.Nil {
		// the server forgot us on an earlier tick
		if err := a.Register(ctx); err != nil {
			log.Error().Err(err).Msg("re-registration failed")
			return
		}
	}

	snap := a.snapshots.Collect(ctx)
	if _, err := a.client.Heartbeat(ctx, a.endpointID, snap); err != nil {
		a.logPhaseError("heartbeat", err)
	}

	defs, err := a.client.FetchChecks(ctx)
	if err != nil {
		log.Error().Err(err).Msg("fetch checks failed; skipping execution this cycle")
		return
	}

	results := make([]protocol.ResultSubmission, 0, len(defs))
	for _, def := range defs {
		if ctx.Err() != nil {
			return
		}
		out := a.executor.Execute(ctx, def.Kind, def.Parameters)
		log.Debug().
			Str("check", def.Name).
			Str("kind", def.Kind).
			Str("status", string(out.Status)).
			Str("message", out.Message).
			Msg("check executed")

		results = append(results, protocol.ResultSubmission{
			CheckID:     def.ID,
			Status:      out.Status,
			Message:     out.Message,
			CollectedAt: time.Now().UTC(),
		})
	}

	if len(results) == 0 {
		return
	}

	resp, err := a.client.SubmitResults(ctx, a.endpointID, results)
	if err != nil {
		a.logPhaseError("submit results", err)
		return
	}
	log.Info().Int("submitted", len(results)).Int("accepted", resp.Accepted).Msg("results submitted")
}

func (a *Agent) logPhaseError(phase string, err error) {
	if IsNotFound(err) {
		log.Error().Err(err).Str("endpoint_id", a.endpointID.String()).
			Msgf("%s rejected: endpoint unknown to server; re-registering next cycle", phase)
		a.endpointID = uuid.Nil
		return
	}
	log.Error().Err(err).Msgf("%s failed", phase)
}
