// internal/checks/process.go
package checks

import (
	"context"
	"strings"
)

func (e *Engine) runProcessRunning(ctx context.Context, c ProcessRunning) Outcome {
	names, err := e.host.ProcessNames(ctx)
	if err != nil {
		return errorf("Failed to list processes: %v", err)
	}

	want := strings.ToLower(c.Name)
	for _, name := range names {
		if strings.Contains(strings.ToLower(name), want) {
			return pass("Process is running: %s", name)
		}
	}
	return fail("Process not running: %s", c.Name)
}

func (e *Engine) runPortOpen(c PortOpen) Outcome {
	if e.host.PortInUse(c.Port) {
		return pass("Port %d is open/listening", c.Port)
	}
	return fail("Port %d is not listening", c.Port)
}
