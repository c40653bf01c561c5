// internal/server/cache.go
package server

import (
	"context"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/signalnine/fleetwatch/internal/protocol"
	"github.com/signalnine/fleetwatch/internal/store"
)

const (
	enabledChecksKey = "enabled"
	checkCacheTTL    = 30 * time.Second
)

// checkCache holds the agent projection of enabled checks.
// Every admin write to check definitions purges it.
type checkCache struct {
	db  *store.DB
	lru *expirable.LRU[string, []protocol.AgentCheck]
}

func newCheckCache(db *store.DB, ttl time.Duration) *checkCache {
	return &checkCache{
		db:  db,
		lru: expirable.NewLRU[string, []protocol.AgentCheck](1, nil, ttl),
	}
}

func (c *checkCache) enabled(ctx context.Context) ([]protocol.AgentCheck, error) {
	if checks, ok := c.lru.Get(enabledChecksKey); ok {
		return checks, nil
	}

	defs, err := c.db.ListEnabledChecks(ctx)
	if err != nil {
		return nil, err
	}
	checks := make([]protocol.AgentCheck, 0, len(defs))
	for _, d := range defs {
		checks = append(checks, protocol.AgentCheck{
			ID:         d.ID,
			Name:       d.Name,
			Kind:       d.Kind,
			Parameters: d.Parameters,
			Severity:   d.Severity,
		})
	}
	c.lru.Add(enabledChecksKey, checks)
	return checks, nil
}

func (c *checkCache) invalidate() {
	c.lru.Purge()
}
