// internal/agent/state.go
package agent

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// ReadEndpointID reads the endpoint id saved by a previous run.
// Returns uuid.Nil if the file doesn't exist or is corrupt.
func ReadEndpointID(path string) (uuid.UUID, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return uuid.Nil, nil
	}
	if err != nil {
		return uuid.Nil, err
	}

	id, err := uuid.Parse(strings.TrimSpace(string(data)))
	if err != nil {
		// Corrupt file - treat as a first run
		return uuid.Nil, nil
	}

	return id, nil
}

// WriteEndpointID saves the endpoint id to the state file.
// Creates parent directories if needed.
func WriteEndpointID(path string, id uuid.UUID) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	return os.WriteFile(path, []byte(id.String()+"\n"), 0644)
}
