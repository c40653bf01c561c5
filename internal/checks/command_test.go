//go:build !windows

// internal/checks/command_test.go
package checks

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/signalnine/fleetwatch/internal/protocol"
)

func TestCommandOutput(t *testing.T) {
	e := NewEngine(&fakeHost{}, 5*time.Second)

	tests := []struct {
		name    string
		command string
		pattern string
		want    protocol.CheckStatus
	}{
		{"stdout match", "echo compliant", "^compliant", protocol.StatusPass},
		{"stderr match", "echo oops >&2", "oops", protocol.StatusPass},
		{"no match", "echo nope", "yes", protocol.StatusFail},
		{"non-zero exit still matched", "echo partial; exit 3", "partial", protocol.StatusPass},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := execute(t, e, "command_output", map[string]string{
				"command":          tt.command,
				"expected_pattern": tt.pattern,
			})
			if out.Status != tt.want {
				t.Errorf("Status = %q, want %q (%s)", out.Status, tt.want, out.Message)
			}
		})
	}
}

func TestCommandOutputFailMessageTruncated(t *testing.T) {
	e := NewEngine(&fakeHost{}, 5*time.Second)

	out := execute(t, e, "command_output", map[string]string{
		"command":          "head -c 1000 /dev/zero | tr '\\0' 'a'",
		"expected_pattern": "b",
	})
	if out.Status != protocol.StatusFail {
		t.Fatalf("Status = %q, want fail", out.Status)
	}
	if n := strings.Count(out.Message, "a"); n > 200+5 {
		t.Errorf("message quotes %d bytes of output, want at most 200", n)
	}
}

func TestCommandOutputTimeout(t *testing.T) {
	e := NewEngine(&fakeHost{}, 200*time.Millisecond)

	start := time.Now()
	out := execute(t, e, "command_output", map[string]string{
		"command":          "sleep 10",
		"expected_pattern": ".*",
	})
	if out.Status != protocol.StatusError {
		t.Errorf("Status = %q, want error", out.Status)
	}
	if !strings.Contains(out.Message, "timed out") {
		t.Errorf("Message = %q", out.Message)
	}
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Errorf("timeout took %v", elapsed)
	}
}

func TestCommandOutputCancelled(t *testing.T) {
	e := NewEngine(&fakeHost{}, time.Minute)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	c, err := Parse("command_output", []byte(`{"command": "sleep 10", "expected_pattern": "x"}`))
	if err != nil {
		t.Fatal(err)
	}
	out := e.Run(ctx, c)
	if out.Status != protocol.StatusError {
		t.Errorf("Status = %q, want error", out.Status)
	}
}

func TestCappedBuffer(t *testing.T) {
	b := &cappedBuffer{max: 4}
	n, err := b.Write([]byte("abcdef"))
	if err != nil || n != 6 {
		t.Fatalf("Write = %d, %v", n, err)
	}
	b.Write([]byte("gh"))
	if got := string(b.Bytes()); got != "abcd" {
		t.Errorf("Bytes = %q, want %q", got, "abcd")
	}
}
