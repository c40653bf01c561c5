// internal/checks/command.go
package checks

import (
	"bytes"
	"context"
	"errors"
	"os/exec"
	"runtime"
	"sync"
	"time"
)

const (
	// maxOutputSize caps captured command output
	maxOutputSize = 1 << 20
	// maxMessageOutput is how much output a fail message quotes
	maxMessageOutput = 200
)

// runCommand executes c.Command through the platform shell.
// SECURITY: commands come from check definitions, which only server admins can write.
// Anyone holding the admin token can run arbitrary commands on every agent host
// with the agent's privileges.
func runCommand(ctx context.Context, c CommandOutput, timeout time.Duration) Outcome {
	start := time.Now()
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	name, args := shellCommand(c.Command)
	cmd := exec.CommandContext(ctx, name, args...)

	// stdout and stderr share one buffer, in arrival order
	out := &cappedBuffer{max: maxOutputSize}
	cmd.Stdout = out
	cmd.Stderr = out
	cmd.WaitDelay = time.Second

	err := cmd.Run()
	switch ctx.Err() {
	case context.DeadlineExceeded:
		return errorf("Command timed out after %s", time.Since(start).Round(time.Millisecond))
	case context.Canceled:
		return errorf("Command cancelled")
	}
	if err != nil {
		var exitErr *exec.ExitError
		if !errors.As(err, &exitErr) {
			return errorf("Failed to execute command: %v", err)
		}
		// A non-zero exit still produced output worth matching
	}

	output := out.Bytes()
	if c.ExpectedPattern.Match(output) {
		return pass("Command output matches expected pattern")
	}
	return fail("Command output does not match pattern. Output: %s", truncate(string(output), maxMessageOutput))
}

func shellCommand(command string) (string, []string) {
	if runtime.GOOS == "windows" {
		return "cmd", []string{"/C", command}
	}
	return "sh", []string{"-c", command}
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

// cappedBuffer keeps the first max bytes written and discards the rest
type cappedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
	max int
}

func (b *cappedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if room := b.max - b.buf.Len(); room > 0 {
		if len(p) > room {
			b.buf.Write(p[:room])
		} else {
			b.buf.Write(p)
		}
	}
	return len(p), nil
}

func (b *cappedBuffer) Bytes() []byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Bytes()
}
