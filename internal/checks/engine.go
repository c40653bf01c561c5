// internal/checks/engine.go
package checks

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/signalnine/fleetwatch/internal/protocol"
)

// DefaultTimeout bounds a single command_output execution
const DefaultTimeout = 60 * time.Second

// Outcome is the result of executing one check
type Outcome struct {
	Status  protocol.CheckStatus `json:"status"`
	Message string               `json:"message"`
}

// Host is the slice of the local machine the engine inspects
type Host interface {
	ProcessNames(ctx context.Context) ([]string, error)
	PortInUse(port int) bool
}

// Engine executes checks against a Host
type Engine struct {
	host    Host
	timeout time.Duration
}

// NewEngine creates an engine. A non-positive timeout uses DefaultTimeout.
func NewEngine(host Host, timeout time.Duration) *Engine {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Engine{host: host, timeout: timeout}
}

// Execute validates params for kind and runs the check.
// It never returns a Go error: every failure is reported as an Outcome.
func (e *Engine) Execute(ctx context.Context, kind string, params json.RawMessage) Outcome {
	c, err := Parse(kind, params)
	if err != nil {
		if errors.Is(err, ErrUnknownKind) {
			return errorf("Unknown check type: %s", kind)
		}
		var verr *ValidationError
		if errors.As(err, &verr) {
			return errorf("Invalid parameters: %v", verr.Err)
		}
		return errorf("Invalid parameters: %v", err)
	}
	return e.Run(ctx, c)
}

// Run executes an already validated check
func (e *Engine) Run(ctx context.Context, c Check) (out Outcome) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Str("kind", string(c.Kind())).Interface("panic", r).Msg("check panicked")
			out = errorf("Check execution failed: %v", r)
		}
	}()

	switch c := c.(type) {
	case FileExists:
		return runFileExists(c)
	case FileContent:
		return runFileContent(c)
	case RegistryKey:
		return registryLookup(c)
	case ConfigSetting:
		return runConfigSetting(c)
	case ProcessRunning:
		return e.runProcessRunning(ctx, c)
	case PortOpen:
		return e.runPortOpen(c)
	case CommandOutput:
		return runCommand(ctx, c, e.timeout)
	}
	return errorf("Unknown check type: %s", c.Kind())
}

func pass(format string, args ...any) Outcome {
	return Outcome{Status: protocol.StatusPass, Message: fmt.Sprintf(format, args...)}
}

func fail(format string, args ...any) Outcome {
	return Outcome{Status: protocol.StatusFail, Message: fmt.Sprintf(format, args...)}
}

func errorf(format string, args ...any) Outcome {
	return Outcome{Status: protocol.StatusError, Message: fmt.Sprintf(format, args...)}
}

func skipped(format string, args ...any) Outcome {
	return Outcome{Status: protocol.StatusSkipped, Message: fmt.Sprintf(format, args...)}
}
