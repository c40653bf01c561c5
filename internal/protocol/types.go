// internal/protocol/types.go
package protocol

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// SecretHeader carries the shared agent secret on every agent request
const SecretHeader = "X-Agent-Secret"

// CheckStatus is the outcome of a single check execution
type CheckStatus string

const (
	StatusPass    CheckStatus = "pass"
	StatusFail    CheckStatus = "fail"
	StatusError   CheckStatus = "error"
	StatusSkipped CheckStatus = "skipped"
)

// Valid reports whether s is one of the known check statuses
func (s CheckStatus) Valid() bool {
	switch s {
	case StatusPass, StatusFail, StatusError, StatusSkipped:
		return true
	}
	return false
}

// Severity is an operator-facing label; it never affects execution
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// ParseSeverity returns the severity for s, defaulting to medium when empty
func ParseSeverity(s string) (Severity, bool) {
	switch Severity(s) {
	case "":
		return SeverityMedium, true
	case SeverityInfo, SeverityLow, SeverityMedium, SeverityHigh, SeverityCritical:
		return Severity(s), true
	}
	return "", false
}

// EndpointStatus is the derived health of an endpoint
type EndpointStatus string

const (
	EndpointOnline   EndpointStatus = "online"
	EndpointOffline  EndpointStatus = "offline"
	EndpointWarning  EndpointStatus = "warning"
	EndpointCritical EndpointStatus = "critical"
)

// Valid reports whether s is one of the known endpoint statuses
func (s EndpointStatus) Valid() bool {
	switch s {
	case EndpointOnline, EndpointOffline, EndpointWarning, EndpointCritical:
		return true
	}
	return false
}

// RegisterRequest is sent by the agent on startup
type RegisterRequest struct {
	Hostname     string   `json:"hostname"`
	OS           string   `json:"os"`
	OSVersion    string   `json:"os_version"`
	AgentVersion string   `json:"agent_version"`
	IPAddresses  []string `json:"ip_addresses"`
}

// RegisterResponse carries the server-assigned endpoint id
type RegisterResponse struct {
	EndpointID uuid.UUID `json:"endpoint_id"`
	Message    string    `json:"message"`
}

// ProcessInfo is one entry of a snapshot process list
type ProcessInfo struct {
	PID         int32   `json:"pid"`
	Name        string  `json:"name"`
	CPUUsage    float64 `json:"cpu_usage"`
	MemoryUsage uint64  `json:"memory_usage"`
}

// SoftwareInfo is one installed package
type SoftwareInfo struct {
	Name      string  `json:"name"`
	Version   *string `json:"version"`
	Publisher *string `json:"publisher"`
}

// SnapshotData is a point-in-time view of host resources
type SnapshotData struct {
	CollectedAt       time.Time      `json:"collected_at"`
	CPUUsage          float64        `json:"cpu_usage"`
	MemoryTotal       uint64         `json:"memory_total"`
	MemoryUsed        uint64         `json:"memory_used"`
	DiskTotal         uint64         `json:"disk_total"`
	DiskUsed          uint64         `json:"disk_used"`
	Processes         []ProcessInfo  `json:"processes"`
	OpenPorts         []int          `json:"open_ports"`
	InstalledSoftware []SoftwareInfo `json:"installed_software"`
}

// HeartbeatRequest refreshes liveness and carries a snapshot
type HeartbeatRequest struct {
	EndpointID uuid.UUID    `json:"endpoint_id"`
	Snapshot   SnapshotData `json:"snapshot"`
}

// HeartbeatResponse acknowledges a heartbeat
type HeartbeatResponse struct {
	Status     string    `json:"status"`
	ServerTime time.Time `json:"server_time"`
}

// AgentCheck is the agent-facing projection of an enabled check definition
type AgentCheck struct {
	ID         uuid.UUID       `json:"id"`
	Name       string          `json:"name"`
	Kind       string          `json:"kind"`
	Parameters json.RawMessage `json:"parameters"`
	Severity   Severity        `json:"severity"`
}

// ChecksResponse lists the checks an agent should run
type ChecksResponse struct {
	Checks []AgentCheck `json:"checks"`
}

// ResultSubmission is one executed check reported by an agent
type ResultSubmission struct {
	CheckID     uuid.UUID   `json:"check_id"`
	Status      CheckStatus `json:"status"`
	Message     string      `json:"message"`
	CollectedAt time.Time   `json:"collected_at"`
}

// ResultsRequest is a batch of results for one endpoint
type ResultsRequest struct {
	EndpointID uuid.UUID          `json:"endpoint_id"`
	Results    []ResultSubmission `json:"results"`
}

// ResultsResponse reports how many results were persisted
type ResultsResponse struct {
	Accepted int    `json:"accepted"`
	Message  string `json:"message"`
}

// ErrorResponse is the body of every non-2xx API response
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}
