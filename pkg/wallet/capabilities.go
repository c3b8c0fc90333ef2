package wallet

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"
)

// Enricher returns an address's UTXOs split into spendable, asset-carrying
// and pending sets.
type Enricher interface {
	EnrichedUTXOs(ctx context.Context, address string) (Enriched, error)
}

// UTXOLister is the lower fidelity fallback: plain spendable outputs with no
// asset tagging.
type UTXOLister interface {
	SpendableUTXOs(ctx context.Context, address string) ([]UTXO, error)
}

// AssetBalancer returns per-asset balances for an address from the asset indexer.
type AssetBalancer interface {
	AssetBalances(ctx context.Context, address string) ([]AssetBalance, error)
}

// MempoolSpender returns the confirmed value of an address currently being
// spent by mempool transactions.
type MempoolSpender interface {
	MempoolSpent(ctx context.Context, address string) (uint64, error)
}

// TokenReflector resolves display metadata for an asset id nobody else
// describes.
type TokenReflector interface {
	ReflectToken(ctx context.Context, assetID string) (TokenInfo, error)
}

// ErrTimeout is returned when a capability call loses the race against its timer.
var ErrTimeout = fmt.Errorf("%w: timed out", ErrTransientFetch)

// callWithTimeout races fn against d. Whichever settles first wins; a result
// arriving after the timer fired lands in a buffered channel nobody reads and
// is dropped. A panicking capability is reported as an error.
func callWithTimeout[T any](ctx context.Context, d time.Duration, fn func(context.Context) (T, error)) (T, error) {
	ctx, cancel := context.WithTimeout(ctx, d)
	defer cancel()

	type result struct {
		v   T
		err error
	}
	ch := make(chan result, 1)
	go func() {
		defer func() {
			if rec := recover(); rec != nil {
				var zero T
				ch <- result{zero, fmt.Errorf("%w: capability panic: %v\n%s", ErrTransientFetch, rec, debug.Stack())}
			}
		}()
		v, err := fn(ctx)
		ch <- result{v, err}
	}()

	select {
	case r := <-ch:
		return r.v, r.err
	case <-ctx.Done():
		var zero T
		return zero, fmt.Errorf("%w after %s", ErrTimeout, d)
	}
}
