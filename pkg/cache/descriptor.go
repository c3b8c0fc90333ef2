package cache

import (
	"context"
	"time"

	"github.com/subfrost/walletd/pkg/querykeys"
)

// Descriptor declares one cached resource. Builders in pkg/queries produce
// them; nothing else should hand-assemble a Key.
type Descriptor[T any] struct {
	Key querykeys.Key
	// Enabled false means a dependency (usually the provider) is not ready.
	// Fetch then returns ErrDisabled instead of running the fetch function.
	Enabled bool
	Fetch   func(ctx context.Context) (T, error)
	// StaleTime bounds how long a stored value is served without refetching.
	// Zero means the value never goes stale on its own and is refreshed only
	// by invalidation.
	StaleTime time.Duration
	// RefetchInterval is non-zero only for the height descriptor, the single
	// self-refreshing entry. The poll scheduler reads it.
	RefetchInterval time.Duration
	// GCTime is how long an entry nobody reads is kept before Sweep drops it.
	// Zero means DefaultGCTime; negative keeps the entry for the client's life.
	GCTime time.Duration
}

// DefaultGCTime applies to descriptors that leave GCTime unset.
const DefaultGCTime = 5 * time.Minute

// Invalidator is the single cross-cutting dirtying operation: mark every entry
// whose domain tag differs from domain as stale.
type Invalidator interface {
	InvalidateExcept(domain string) int
}
