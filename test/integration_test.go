// test/integration_test.go
package test

import (
	"bytes"
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/json"
	"encoding/pem"
	"math/big"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/signalnine/fleetwatch/internal/agent"
	"github.com/signalnine/fleetwatch/internal/config"
	"github.com/signalnine/fleetwatch/internal/notify"
	"github.com/signalnine/fleetwatch/internal/protocol"
	"github.com/signalnine/fleetwatch/internal/server"
	"github.com/signalnine/fleetwatch/internal/store"
)

const (
	agentSecret = "integration-secret"
	adminToken  = "integration-admin"
)

// TestIntegrationAgentLifecycle drives a real agent against a real TLS server:
// register, heartbeat, check results, then the offline sweep
func TestIntegrationAgentLifecycle(t *testing.T) {
	tempDir := t.TempDir()
	certFile, keyFile := generateTestCert(t, tempDir)

	present := filepath.Join(tempDir, "present.txt")
	if err := os.WriteFile(present, []byte("hello"), 0644); err != nil {
		t.Fatal(err)
	}

	// 1. Start the server on an ephemeral port
	cfg := &config.ServerConfig{
		ListenAddr:       "127.0.0.1:0",
		DBPath:           filepath.Join(tempDir, "fleet.db"),
		OfflineThreshold: 2 * time.Second,
		SweepInterval:    100 * time.Millisecond,
		MaxPayloadBytes:  1 << 20,
		MaxConcurrent:    10,
		TLSCert:          certFile,
		TLSKey:           keyFile,
		AgentSecret:      agentSecret,
		AdminToken:       adminToken,
	}
	db, err := store.Open(cfg.DBPath)
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	rec := &notify.Recorder{}
	srv := server.New(cfg, db, rec)

	l, err := net.Listen("tcp", cfg.ListenAddr)
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	baseURL := "https://" + l.Addr().String()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	serveErr := make(chan error, 1)
	go func() { serveErr <- srv.Serve(ctx, l) }()

	client := &http.Client{
		Transport: &http.Transport{TLSClientConfig: &tls.Config{InsecureSkipVerify: true}},
		Timeout:   10 * time.Second,
	}
	waitHealthy(t, client, baseURL)

	// 2. Define one passing and one failing check
	adminDo(t, client, "POST", baseURL+"/api/checks", map[string]any{
		"name":       "present",
		"kind":       "file_exists",
		"parameters": map[string]string{"path": present},
		"severity":   "low",
	}, http.StatusCreated, nil)
	adminDo(t, client, "POST", baseURL+"/api/checks", map[string]any{
		"name":       "missing",
		"kind":       "file_exists",
		"parameters": map[string]string{"path": filepath.Join(tempDir, "missing.txt")},
		"severity":   "high",
	}, http.StatusCreated, nil)

	// 3. Run one full agent cycle
	a := agent.New(&config.AgentConfig{
		ServerURL:          baseURL,
		CollectionInterval: time.Hour,
		Hostname:           "integration-host",
		RegisterBackoff:    100 * time.Millisecond,
		CheckTimeout:       5 * time.Second,
		StateFile:          filepath.Join(tempDir, "endpoint-id"),
		TLSSkipVerify:      true,
		AgentSecret:        agentSecret,
	}, "1.0.0-test")

	if err := a.Register(ctx); err != nil {
		t.Fatalf("Register: %v", err)
	}
	a.Tick(ctx)

	// 4. One failing result makes the endpoint a warning
	var detail protocol.EndpointDetail
	adminDo(t, client, "GET", baseURL+"/api/endpoints/"+a.EndpointID().String(), nil, http.StatusOK, &detail)
	if detail.Hostname != "integration-host" {
		t.Errorf("hostname = %q, want integration-host", detail.Hostname)
	}
	if detail.Status != protocol.EndpointWarning {
		t.Errorf("status = %q, want warning", detail.Status)
	}
	if detail.LatestSnapshot == nil {
		t.Error("expected a stored snapshot")
	}
	if len(detail.LatestResults) != 2 {
		t.Fatalf("latest results = %d, want 2", len(detail.LatestResults))
	}
	byStatus := map[protocol.CheckStatus]int{}
	for _, r := range detail.LatestResults {
		byStatus[r.Status]++
	}
	if byStatus[protocol.StatusPass] != 1 || byStatus[protocol.StatusFail] != 1 {
		t.Errorf("result statuses = %v, want one pass and one fail", byStatus)
	}

	// 5. Without heartbeats the sweeper marks it offline
	deadline := time.After(10 * time.Second)
	for {
		adminDo(t, client, "GET", baseURL+"/api/endpoints/"+a.EndpointID().String(), nil, http.StatusOK, &detail)
		if detail.Status == protocol.EndpointOffline {
			break
		}
		select {
		case <-deadline:
			t.Fatalf("endpoint never went offline, status = %q", detail.Status)
		case <-time.After(100 * time.Millisecond):
		}
	}

	var summary protocol.Summary
	adminDo(t, client, "GET", baseURL+"/api/reports/summary", nil, http.StatusOK, &summary)
	if summary.TotalEndpoints != 1 || summary.OfflineEndpoints != 1 {
		t.Errorf("summary = %+v, want 1 endpoint offline", summary)
	}
	if summary.TotalChecks != 2 || summary.EnabledChecks != 2 {
		t.Errorf("summary checks = %d/%d, want 2/2", summary.EnabledChecks, summary.TotalChecks)
	}
	for _, r := range summary.RecentResults {
		if r.EndpointHostname != "integration-host" || (r.CheckName != "present" && r.CheckName != "missing") {
			t.Errorf("recent result = %+v, want hostname and check name", r)
		}
	}

	// 6. Every transition was published in order
	want := []protocol.EndpointStatus{protocol.EndpointOnline, protocol.EndpointWarning, protocol.EndpointOffline}
	publishDeadline := time.Now().Add(5 * time.Second)
	for len(rec.Changes()) < len(want) && time.Now().Before(publishDeadline) {
		time.Sleep(20 * time.Millisecond)
	}
	var path []protocol.EndpointStatus
	for _, c := range rec.Changes() {
		path = append(path, c.To)
	}
	if len(path) != len(want) {
		t.Fatalf("published transitions = %v, want %v", path, want)
	}
	for i := range want {
		if path[i] != want[i] {
			t.Errorf("transition[%d] = %s, want %s", i, path[i], want[i])
		}
	}

	// 7. Shut down cleanly
	cancel()
	select {
	case err := <-serveErr:
		if err != nil {
			t.Errorf("Serve: %v", err)
		}
	case <-time.After(15 * time.Second):
		t.Fatal("server did not shut down")
	}
}

func waitHealthy(t *testing.T, client *http.Client, baseURL string) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		resp, err := client.Get(baseURL + "/health")
		if err == nil {
			resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				return
			}
		}
		time.Sleep(50 * time.Millisecond)
	}
	t.Fatal("server startup timeout")
}

func adminDo(t *testing.T, client *http.Client, method, url string, body any, wantStatus int, out any) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req, err := http.NewRequest(method, url, &buf)
	if err != nil {
		t.Fatalf("NewRequest: %v", err)
	}
	req.Header.Set("Authorization", "Bearer "+adminToken)
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != wantStatus {
		t.Fatalf("%s %s: status = %d, want %d", method, url, resp.StatusCode, wantStatus)
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("decode response: %v", err)
		}
	}
}

// generateTestCert creates a self-signed TLS certificate for testing
func generateTestCert(t *testing.T, dir string) (certFile, keyFile string) {
	t.Helper()

	priv, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatalf("Generate key: %v", err)
	}

	template := x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject: pkix.Name{
			CommonName: "localhost",
		},
		NotBefore:             time.Now(),
		NotAfter:              time.Now().Add(time.Hour),
		KeyUsage:              x509.KeyUsageKeyEncipherment | x509.KeyUsageDigitalSignature,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		BasicConstraintsValid: true,
		DNSNames:              []string{"localhost"},
		IPAddresses:           []net.IP{net.IPv4(127, 0, 0, 1)},
	}

	certDER, err := x509.CreateCertificate(rand.Reader, &template, &template, &priv.PublicKey, priv)
	if err != nil {
		t.Fatalf("Create certificate: %v", err)
	}

	certFile = filepath.Join(dir, "cert.pem")
	certOut, err := os.Create(certFile)
	if err != nil {
		t.Fatalf("Create cert file: %v", err)
	}
	pem.Encode(certOut, &pem.Block{Type: "CERTIFICATE", Bytes: certDER})
	certOut.Close()

	keyFile = filepath.Join(dir, "key.pem")
	keyOut, err := os.Create(keyFile)
	if err != nil {
		t.Fatalf("Create key file: %v", err)
	}
	privBytes, _ := x509.MarshalECPrivateKey(priv)
	pem.Encode(keyOut, &pem.Block{Type: "EC PRIVATE KEY", Bytes: privBytes})
	keyOut.Close()

	return certFile, keyFile
}
