// cmd/fleetwatch/util.go
package main

import (
	"strings"

	"github.com/signalnine/fleetwatch/internal/checks"
)

func kindList() string {
	names := make([]string, len(checks.Kinds))
	for i, k := range checks.Kinds {
		names[i] = string(k)
	}
	return strings.Join(names, ", ")
}
