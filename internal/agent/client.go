// internal/agent/client.go
package agent

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/signalnine/fleetwatch/internal/protocol"
)

// maxErrorBody caps how much of an error response is kept
const maxErrorBody = 4 << 10

// StatusError is returned when the server answers with a non-2xx status
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("server returned %d: %s", e.Code, e.Body)
}

// IsNotFound reports whether err is a 404 from the server
func IsNotFound(err error) bool {
	var se *StatusError
	return errors.As(err, &se) && se.Code == http.StatusNotFound
}

// Client speaks the agent side of the synchronization protocol
type Client struct {
	baseURL string
	secret  string
	http    *http.Client
}

// NewClient creates a client for the server at baseURL
func NewClient(baseURL, secret string, tlsSkipVerify bool) *Client {
	transport := &http.Transport{}
	if tlsSkipVerify {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
	}

	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		secret:  secret,
		http: &http.Client{
			Timeout:   30 * time.Second,
			Transport: transport,
		},
	}
}

// Register announces this endpoint and returns its server-assigned id
func (c *Client) Register(ctx context.Context, req protocol.RegisterRequest) (*protocol.RegisterResponse, error) {
	var resp protocol.RegisterResponse
	if err := c.do(ctx, http.MethodPost, "/api/agent/register", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Heartbeat refreshes liveness and uploads a snapshot
func (c *Client) Heartbeat(ctx context.Context, id uuid.UUID, snap protocol.SnapshotData) (*protocol.HeartbeatResponse, error) {
	var resp protocol.HeartbeatResponse
	req := protocol.HeartbeatRequest{EndpointID: id, Snapshot: snap}
	if err := c.do(ctx, http.MethodPost, "/api/agent/heartbeat", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// FetchChecks returns the enabled checks to run
func (c *Client) FetchChecks(ctx context.Context) ([]protocol.AgentCheck, error) {
	var resp protocol.ChecksResponse
	if err := c.do(ctx, http.MethodGet, "/api/agent/checks", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Checks, nil
}

// SubmitResults uploads one batch of results
func (c *Client) SubmitResults(ctx context.Context, id uuid.UUID, results []protocol.ResultSubmission) (*protocol.ResultsResponse, error) {
	var resp protocol.ResultsResponse
	req := protocol.ResultsRequest{EndpointID: id, Results: results}
	if err := c.do(ctx, http.MethodPost, "/api/agent/results", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set(protocol.SecretHeader, c.secret)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &StatusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(data))}
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	return nil
}
