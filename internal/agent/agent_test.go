// internal/agent/agent_test.go
package agent

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/signalnine/fleetwatch/internal/checks"
	"github.com/signalnine/fleetwatch/internal/config"
	"github.com/signalnine/fleetwatch/internal/hostinfo"
	"github.com/signalnine/fleetwatch/internal/protocol"
)

type fakeInventory struct{}

func (fakeInventory) Identity(ctx context.Context) (hostinfo.Identity, error) {
	return hostinfo.Identity{Hostname: "box-1", OS: "linux", OSVersion: "6.1"}, nil
}

func (fakeInventory) IPAddresses() []string { return []string{"10.0.0.5"} }

type fakeSnapshots struct{}

func (fakeSnapshots) Collect(ctx context.Context) protocol.SnapshotData {
	return protocol.SnapshotData{CPUUsage: 12.5, MemoryTotal: 1024, MemoryUsed: 512}
}

type fakeExecutor struct {
	mu    sync.Mutex
	kinds []string
}

func (f *fakeExecutor) Execute(ctx context.Context, kind string, params json.RawMessage) checks.Outcome {
	f.mu.Lock()
	f.kinds = append(f.kinds, kind)
	f.mu.Unlock()
	if kind == string(checks.KindFileExists) {
		return checks.Outcome{Status: protocol.StatusPass, Message: "File exists: /etc/hosts"}
	}
	return checks.Outcome{Status: protocol.StatusFail, Message: "Process not running: nginx"}
}

// fakeServer records what the agent sends
type fakeServer struct {
	t      *testing.T
	secret string

	mu          sync.Mutex
	ids         []uuid.UUID
	registers   []protocol.RegisterRequest
	heartbeats  []protocol.HeartbeatRequest
	submissions []protocol.ResultsRequest
	checks      []protocol.AgentCheck
	unknown     bool // answer 404 to heartbeat and results
}

func newFakeServer(t *testing.T) (*fakeServer, *httptest.Server) {
	fs := &fakeServer{t: t, secret: "s3cret"}
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/agent/register", fs.register)
	mux.HandleFunc("POST /api/agent/heartbeat", fs.heartbeat)
	mux.HandleFunc("GET /api/agent/checks", fs.listChecks)
	mux.HandleFunc("POST /api/agent/results", fs.results)

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fs.mu.Lock()
		secret := fs.secret
		fs.mu.Unlock()
		if r.Header.Get(protocol.SecretHeader) != secret {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		mux.ServeHTTP(w, r)
	}))
	t.Cleanup(ts.Close)
	return fs, ts
}

func (fs *fakeServer) register(w http.ResponseWriter, r *http.Request) {
	var req protocol.RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		fs.t.Errorf("decode register: %v", err)
	}
	id := uuid.New()
	fs.mu.Lock()
	fs.registers = append(fs.registers, req)
	fs.ids = append(fs.ids, id)
	fs.unknown = false
	fs.mu.Unlock()
	json.NewEncoder(w).Encode(protocol.RegisterResponse{EndpointID: id, Message: "registered"})
}

func (fs *fakeServer) heartbeat(w http.ResponseWriter, r *http.Request) {
	var req protocol.HeartbeatRequest
	json.NewDecoder(r.Body).Decode(&req)
	fs.mu.Lock()
	defer fs.mu.Unlock()
	if fs.unknown {
		http.Error(w, `{"error":"Not Found","message":"endpoint not found"}`, http.StatusNotFound)
		return
	}
	fs.heartbeats = append(fs.heartbeats, req)
	json.NewEncoder(w).Encode(protocol.HeartbeatResponse{Status: "ok", ServerTime: time.Now().UTC()})
}

func (fs *fakeServer) listChecks(w http.ResponseWriter, r *http.Request) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	json.NewEncoder(w).Encode(protocol.ChecksResponse{Checks: fs.checks})
}

func (fs *fakeServer) results(w http.ResponseWriter, r *http.Request) {
	var req protocol.ResultsRequest
	json.NewDecoder(r.Body).Decode(&req)
	fs.mu.Lock()
	defer fs.mu.Unlock()
	if fs.unknown {
		http.Error(w, "endpoint not found", http.StatusNotFound)
		return
	}
	fs.submissions = append(fs.submissions, req)
	json.NewEncoder(w).Encode(protocol.ResultsResponse{Accepted: len(req.Results), Message: "ok"})
}

func newTestAgent(t *testing.T, serverURL, secret string) (*Agent, *fakeExecutor) {
	t.Helper()
	cfg := &config.AgentConfig{
		ServerURL:          serverURL,
		CollectionInterval: time.Hour,
		RegisterBackoff:    10 * time.Millisecond,
		CheckTimeout:       time.Second,
		StateFile:          filepath.Join(t.TempDir(), "endpoint-id"),
		AgentSecret:        secret,
	}
	exec := &fakeExecutor{}
	a := &Agent{
		cfg:       cfg,
		version:   "test",
		client:    NewClient(cfg.ServerURL, cfg.AgentSecret, false),
		inventory: fakeInventory{},
		snapshots: fakeSnapshots{},
		executor:  exec,
	}
	return a, exec
}

func TestRegister(t *testing.T) {
	fs, ts := newFakeServer(t)
	a, _ := newTestAgent(t, ts.URL, fs.secret)

	if err := a.Register(t.Context()); err != nil {
		t.Fatalf("Register: %v", err)
	}

	if len(fs.registers) != 1 {
		t.Fatalf("registers = %d, want 1", len(fs.registers))
	}
	got := fs.registers[0]
	if got.Hostname != "box-1" || got.OS != "linux" || got.AgentVersion != "test" {
		t.Errorf("register request = %+v", got)
	}
	if a.EndpointID() != fs.ids[0] {
		t.Errorf("endpoint id = %s, want %s", a.EndpointID(), fs.ids[0])
	}

	saved, err := ReadEndpointID(a.cfg.StateFile)
	if err != nil {
		t.Fatalf("ReadEndpointID: %v", err)
	}
	if saved != fs.ids[0] {
		t.Errorf("state file id = %s, want %s", saved, fs.ids[0])
	}
}

func TestRegisterHostnameOverride(t *testing.T) {
	fs, ts := newFakeServer(t)
	a, _ := newTestAgent(t, ts.URL, fs.secret)
	a.cfg.Hostname = "custom-name"

	if err := a.Register(t.Context()); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if fs.registers[0].Hostname != "custom-name" {
		t.Errorf("hostname = %q, want custom-name", fs.registers[0].Hostname)
	}
}

func TestRegisterWrongSecret(t *testing.T) {
	fs, ts := newFakeServer(t)
	a, _ := newTestAgent(t, ts.URL, "wrong")

	err := a.Register(t.Context())
	if err == nil {
		t.Fatal("expected error for wrong secret")
	}
	if a.EndpointID() != uuid.Nil {
		t.Error("endpoint id should stay unset")
	}
	if len(fs.registers) != 0 {
		t.Error("server should not have recorded a registration")
	}
}

func TestTick(t *testing.T) {
	fs, ts := newFakeServer(t)
	fs.checks = []protocol.AgentCheck{
		{ID: uuid.New(), Name: "hosts", Kind: string(checks.KindFileExists), Parameters: json.RawMessage(`{"path":"/etc/hosts"}`)},
		{ID: uuid.New(), Name: "nginx", Kind: string(checks.KindProcessRunning), Parameters: json.RawMessage(`{"process_name":"nginx"}`)},
	}
	a, exec := newTestAgent(t, ts.URL, fs.secret)
	if err := a.Register(t.Context()); err != nil {
		t.Fatalf("Register: %v", err)
	}

	a.Tick(t.Context())

	if len(fs.heartbeats) != 1 {
		t.Fatalf("heartbeats = %d, want 1", len(fs.heartbeats))
	}
	if fs.heartbeats[0].Snapshot.CPUUsage != 12.5 {
		t.Errorf("snapshot cpu = %v, want 12.5", fs.heartbeats[0].Snapshot.CPUUsage)
	}

	// checks run in list order
	if len(exec.kinds) != 2 || exec.kinds[0] != string(checks.KindFileExists) || exec.kinds[1] != string(checks.KindProcessRunning) {
		t.Errorf("executed kinds = %v", exec.kinds)
	}

	if len(fs.submissions) != 1 {
		t.Fatalf("submissions = %d, want 1", len(fs.submissions))
	}
	sub := fs.submissions[0]
	if sub.EndpointID != a.EndpointID() {
		t.Errorf("submission endpoint = %s, want %s", sub.EndpointID, a.EndpointID())
	}
	if len(sub.Results) != 2 {
		t.Fatalf("results = %d, want 2", len(sub.Results))
	}
	if sub.Results[0].CheckID != fs.checks[0].ID || sub.Results[0].Status != protocol.StatusPass {
		t.Errorf("result[0] = %+v", sub.Results[0])
	}
	if sub.Results[1].Status != protocol.StatusFail {
		t.Errorf("result[1] status = %s, want fail", sub.Results[1].Status)
	}
	if sub.Results[0].CollectedAt.IsZero() {
		t.Error("collected_at should be set")
	}
}

func TestTickNoChecksSkipsSubmit(t *testing.T) {
	fs, ts := newFakeServer(t)
	a, _ := newTestAgent(t, ts.URL, fs.secret)
	if err := a.Register(t.Context()); err != nil {
		t.Fatalf("Register: %v", err)
	}

	a.Tick(t.Context())

	if len(fs.heartbeats) != 1 {
		t.Errorf("heartbeats = %d, want 1", len(fs.heartbeats))
	}
	if len(fs.submissions) != 0 {
		t.Errorf("submissions = %d, want 0", len(fs.submissions))
	}
}

func TestTickReregistersAfterNotFound(t *testing.T) {
	fs, ts := newFakeServer(t)
	a, _ := newTestAgent(t, ts.URL, fs.secret)
	if err := a.Register(t.Context()); err != nil {
		t.Fatalf("Register: %v", err)
	}
	first := a.EndpointID()

	// server lost the endpoint
	fs.mu.Lock()
	fs.unknown = true
	fs.mu.Unlock()

	a.Tick(t.Context())
	if a.EndpointID() != uuid.Nil {
		t.Fatal("endpoint id should be cleared after a 404")
	}

	a.Tick(t.Context())
	if len(fs.registers) != 2 {
		t.Fatalf("registers = %d, want 2", len(fs.registers))
	}
	if a.EndpointID() == first || a.EndpointID() == uuid.Nil {
		t.Errorf("endpoint id = %s, want a fresh id", a.EndpointID())
	}
	if len(fs.heartbeats) != 1 {
		t.Errorf("heartbeats = %d, want 1 after re-registration", len(fs.heartbeats))
	}

	saved, _ := ReadEndpointID(a.cfg.StateFile)
	if saved != a.EndpointID() {
		t.Errorf("state file id = %s, want %s", saved, a.EndpointID())
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	fs, ts := newFakeServer(t)
	a, _ := newTestAgent(t, ts.URL, fs.secret)

	ctx, cancel := context.WithCancel(t.Context())
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()

	deadline := time.After(5 * time.Second)
	for {
		fs.mu.Lock()
		n := len(fs.heartbeats)
		fs.mu.Unlock()
		if n > 0 {
			break
		}
		select {
		case <-deadline:
			t.Fatal("agent never sent a heartbeat")
		case <-time.After(10 * time.Millisecond):
		}
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run returned %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestRunRetriesRegistration(t *testing.T) {
	fs, ts := newFakeServer(t)
	a, _ := newTestAgent(t, ts.URL, "wrong")

	ctx, cancel := context.WithCancel(t.Context())
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	fs.mu.Lock()
	fs.secret = "wrong"
	fs.mu.Unlock()

	deadline := time.After(5 * time.Second)
	for fs.registered() == 0 {
		select {
		case <-deadline:
			t.Fatal("agent never registered after the secret was fixed")
		case <-time.After(10 * time.Millisecond):
		}
	}

	cancel()
	<-done
}

func (fs *fakeServer) registered() int {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	return len(fs.registers)
}
