// Package cache provides a small TTL key-value cache used for tenant
// validation results and control-store read caching. Two implementations are
// shipped: an in-process map for single-node deployments and a Redis-backed
// one for fleets that must share invalidation.
package cache

import (
	"context"
	"time"
)

// Cache stores short-lived string values keyed by string.
type Cache interface {
	// Get returns the value and true when present and unexpired.
	Get(ctx context.Context, key string) (string, bool, error)
	// Set stores value for ttl; ttl <= 0 means no expiry.
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	// Delete removes the key; deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error
}
