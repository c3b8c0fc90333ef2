package wallet

import (
	"context"
	"errors"
	"sync/atomic"
)

var errBoom = errors.New("boom")

type enricherFunc func(ctx context.Context, address string) (Enriched, error)

func (f enricherFunc) EnrichedUTXOs(ctx context.Context, address string) (Enriched, error) {
	return f(ctx, address)
}

type listerFunc func(ctx context.Context, address string) ([]UTXO, error)

func (f listerFunc) SpendableUTXOs(ctx context.Context, address string) ([]UTXO, error) {
	return f(ctx, address)
}

type balancerFunc func(ctx context.Context, address string) ([]AssetBalance, error)

func (f balancerFunc) AssetBalances(ctx context.Context, address string) ([]AssetBalance, error) {
	return f(ctx, address)
}

type mempoolFunc func(ctx context.Context, address string) (uint64, error)

func (f mempoolFunc) MempoolSpent(ctx context.Context, address string) (uint64, error) {
	return f(ctx, address)
}

type reflectorFunc func(ctx context.Context, id string) (TokenInfo, error)

func (f reflectorFunc) ReflectToken(ctx context.Context, id string) (TokenInfo, error) {
	return f(ctx, id)
}

func failingEnricher() enricherFunc {
	return func(context.Context, string) (Enriched, error) { return Enriched{}, errBoom }
}

func failingLister() listerFunc {
	return func(context.Context, string) ([]UTXO, error) { return nil, errBoom }
}

func failingBalancer() balancerFunc {
	return func(context.Context, string) ([]AssetBalance, error) { return nil, errBoom }
}

// countingBalancer returns fixed balances per address and counts calls.
type countingBalancer struct {
	byAddress map[string][]AssetBalance
	fail      map[string]bool
	calls     atomic.Int32
}

func (c *countingBalancer) AssetBalances(_ context.Context, address string) ([]AssetBalance, error) {
	c.calls.Add(1)
	if c.fail[address] {
		return nil, errBoom
	}
	return c.byAddress[address], nil
}
