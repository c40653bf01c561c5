// internal/protocol/admin.go
package protocol

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Endpoint is a monitored host as stored by the server
type Endpoint struct {
	ID           uuid.UUID      `json:"id"`
	Hostname     string         `json:"hostname"`
	OS           string         `json:"os"`
	OSVersion    string         `json:"os_version"`
	AgentVersion string         `json:"agent_version"`
	IPAddresses  []string       `json:"ip_addresses"`
	LastSeen     *time.Time     `json:"last_seen"`
	Status       EndpointStatus `json:"status"`
	CreatedAt    time.Time      `json:"created_at"`
}

// CheckDefinition is an admin-managed check
type CheckDefinition struct {
	ID          uuid.UUID       `json:"id"`
	Name        string          `json:"name"`
	Description *string         `json:"description"`
	Kind        string          `json:"kind"`
	Parameters  json.RawMessage `json:"parameters"`
	Severity    Severity        `json:"severity"`
	Enabled     bool            `json:"enabled"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// CheckRequest creates or updates a check definition.
// On update, nil fields keep their stored value.
type CheckRequest struct {
	Name        *string         `json:"name"`
	Description *string         `json:"description"`
	Kind        *string         `json:"kind"`
	Parameters  json.RawMessage `json:"parameters"`
	Severity    *string         `json:"severity"`
	Enabled     *bool           `json:"enabled"`
}

// CheckResult is one persisted check outcome
type CheckResult struct {
	ID          uuid.UUID   `json:"id"`
	EndpointID  uuid.UUID   `json:"endpoint_id"`
	CheckID     uuid.UUID   `json:"check_id"`
	Status      CheckStatus `json:"status"`
	Message     string      `json:"message"`
	CollectedAt time.Time   `json:"collected_at"`
	CreatedAt   time.Time   `json:"created_at"`
}

// Snapshot is a stored SnapshotData
type Snapshot struct {
	ID         uuid.UUID `json:"id"`
	EndpointID uuid.UUID `json:"endpoint_id"`
	SnapshotData
}

// EndpointDetail is the admin view of a single endpoint
type EndpointDetail struct {
	Endpoint
	LatestSnapshot *Snapshot     `json:"latest_snapshot"`
	LatestResults  []CheckResult `json:"latest_results"`
}

// StatusUpdateRequest manually overrides an endpoint status
type StatusUpdateRequest struct {
	Status EndpointStatus `json:"status"`
}

// Summary is the fleet overview report
type Summary struct {
	TotalEndpoints    int                 `json:"total_endpoints"`
	OnlineEndpoints   int                 `json:"online_endpoints"`
	OfflineEndpoints  int                 `json:"offline_endpoints"`
	WarningEndpoints  int                 `json:"warning_endpoints"`
	CriticalEndpoints int                 `json:"critical_endpoints"`
	TotalChecks       int                 `json:"total_checks"`
	EnabledChecks     int                 `json:"enabled_checks"`
	RecentResults     []RecentCheckResult `json:"recent_results"`
}

// RecentCheckResult is a result joined with the names an operator reads
type RecentCheckResult struct {
	CheckResult
	EndpointHostname string `json:"endpoint_hostname"`
	CheckName        string `json:"check_name"`
}

// StatusChange is published whenever an endpoint transitions between statuses
type StatusChange struct {
	EndpointID uuid.UUID      `json:"endpoint_id"`
	Hostname   string         `json:"hostname"`
	From       EndpointStatus `json:"from"`
	To         EndpointStatus `json:"to"`
	At         time.Time      `json:"at"`
}
