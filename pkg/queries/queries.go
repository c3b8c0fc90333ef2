// Package queries holds one descriptor builder per cached resource. Every
// builder derives its key from pkg/querykeys and is enabled only when its
// provider is ready and its inputs are present. Only Height self-refreshes.
package queries

import (
	"context"
	"fmt"
	"time"

	"github.com/alitto/pond/v2"

	"github.com/subfrost/walletd/pkg/cache"
	"github.com/subfrost/walletd/pkg/querykeys"
	"github.com/subfrost/walletd/pkg/rpc"
	"github.com/subfrost/walletd/pkg/wallet"
)

const (
	// HeightRefetchInterval is the poll cadence of the height descriptor.
	HeightRefetchInterval = 10 * time.Second
	// HeightStaleTime is how long a read of the height is served from cache.
	HeightStaleTime = 8 * time.Second
	// FallbackBTCPrice is served when no price source answers.
	FallbackBTCPrice = 90000.0
	// FallbackFrbtcPremium is a 0.1% premium, one unit per thousand.
	FallbackFrbtcPremium = 100_000
)

// HeightReader reads the current chain height (poller.Chain in production).
type HeightReader interface {
	Height(ctx context.Context) (uint64, error)
}

// Provider is the subset of the provider handle the builders use.
type Provider interface {
	Ready() bool
	wallet.Enricher
	wallet.TokenReflector
	AddressTxs(ctx context.Context, address string) ([]rpc.Transaction, error)
	FeeEstimates(ctx context.Context) (rpc.FeeEstimates, error)
	BTCPrice(ctx context.Context) (float64, error)
	FrbtcPremium(ctx context.Context, frbtcID string) (rpc.FrbtcPremium, error)
	PoolDetails(ctx context.Context, poolID string) (rpc.PoolMetadata, error)
}

// Deps is everything the builders close over.
type Deps struct {
	Network    string
	Provider   Provider
	Heights    HeightReader
	Aggregator *wallet.Aggregator
	Sellable   *wallet.SellableResolver
	Tokens     wallet.TokenTable
	// Pool runs the per-item fan-out of TokenDisplay and PoolsMetadata. A
	// nil Pool gets a pool sized to the request for the duration of a fetch.
	Pool       pond.Pool
}

func (d Deps) ready() bool { return d.Provider != nil && d.Provider.Ready() }

func (d Deps) tokens() wallet.TokenTable {
	if d.Tokens == nil {
		return wallet.KnownTokens
	}
	return d.Tokens
}

// fanOut runs fn for every index in [0, n) and waits for all of them.
func (d Deps) fanOut(ctx context.Context, n int, fn func(ctx context.Context, i int)) {
	if n == 0 {
		return
	}
	pool := d.Pool
	if pool == nil {
		pool = pond.NewPool(n)
		defer pool.StopAndWait()
	}
	group := pool.NewGroupContext(ctx)
	groupCtx := group.Context()
	for i := 0; i < n; i++ {
		group.Submit(func() {
			if groupCtx.Err() != nil {
				return
			}
			fn(groupCtx, i)
		})
	}
	_ = group.Wait()
}

// Height is the single self-refreshing descriptor. It stays enabled while the
// provider is not ready since the chain falls back to the bootstrap endpoint.
func Height(d Deps) cache.Descriptor[uint64] {
	desc := cache.Descriptor[uint64]{
		Key:             querykeys.Height(d.Network),
		Enabled:         d.Heights != nil,
		StaleTime:       HeightStaleTime,
		RefetchInterval: HeightRefetchInterval,
	}
	if d.Heights != nil {
		desc.Fetch = d.Heights.Height
	}
	return desc
}

// EnrichedWallet aggregates the wallet snapshot over addrs.
func EnrichedWallet(d Deps, addrs []wallet.WalletAddress) cache.Descriptor[*wallet.WalletSnapshot] {
	ids := make([]string, 0, len(addrs))
	for _, a := range addrs {
		if a.Address != "" {
			ids = append(ids, string(a.Kind)+":"+a.Address)
		}
	}
	return cache.Descriptor[*wallet.WalletSnapshot]{
		Key:     querykeys.EnrichedWallet(d.Network, ids),
		Enabled: d.ready() && d.Aggregator != nil && len(ids) > 0,
		Fetch: func(ctx context.Context) (*wallet.WalletSnapshot, error) {
			return d.Aggregator.Aggregate(ctx, addrs), nil
		},
	}
}

// BTCBalance is address's plain spendable balance in satoshis.
func BTCBalance(d Deps, address string) cache.Descriptor[uint64] {
	return cache.Descriptor[uint64]{
		Key:     querykeys.BTCBalance(d.Network, address),
		Enabled: d.ready() && address != "",
		Fetch: func(ctx context.Context) (uint64, error) {
			enriched, err := d.Provider.EnrichedUTXOs(ctx, address)
			if err != nil {
				return 0, err
			}
			var sats uint64
			for _, u := range enriched.Spendable {
				sats += u.ValueSats
			}
			return sats, nil
		},
	}
}

// SellableCurrencies lists the assets the wallet can sell.
func SellableCurrencies(d Deps, req wallet.SellableRequest) cache.Descriptor[[]wallet.Currency] {
	return cache.Descriptor[[]wallet.Currency]{
		Key:     querykeys.SellableCurrencies(d.Network, req.WalletAddress, req.Addresses, req.AllowList),
		Enabled: d.ready() && d.Sellable != nil && req.WalletAddress != "",
		Fetch: func(ctx context.Context) ([]wallet.Currency, error) {
			return d.Sellable.Resolve(ctx, req), nil
		},
	}
}

// TransactionHistory is address's non-coinbase history.
func TransactionHistory(d Deps, address string) cache.Descriptor[[]rpc.Transaction] {
	return cache.Descriptor[[]rpc.Transaction]{
		Key:     querykeys.Transactions(d.Network, address),
		Enabled: d.ready() && address != "",
		Fetch: func(ctx context.Context) ([]rpc.Transaction, error) {
			return d.Provider.AddressTxs(ctx, address)
		},
	}
}

// FeeEstimates falls back to the default rates when the estimator fails.
func FeeEstimates(d Deps) cache.Descriptor[rpc.FeeEstimates] {
	return cache.Descriptor[rpc.FeeEstimates]{
		Key:     querykeys.FeeEstimates(d.Network),
		Enabled: d.ready(),
		Fetch: func(ctx context.Context) (rpc.FeeEstimates, error) {
			fees, err := d.Provider.FeeEstimates(ctx)
			if err != nil {
				return rpc.FeeEstimates{
					Fast:        rpc.DefaultFastFee,
					Medium:      rpc.DefaultMediumFee,
					Slow:        rpc.DefaultSlowFee,
					LastUpdated: time.Now().UTC(),
				}, nil
			}
			return fees, nil
		},
	}
}

// BTCPrice falls back to FallbackBTCPrice when no price is available.
func BTCPrice(d Deps) cache.Descriptor[float64] {
	return cache.Descriptor[float64]{
		Key:     querykeys.BTCPrice(d.Network),
		Enabled: d.ready(),
		Fetch: func(ctx context.Context) (float64, error) {
			price, err := d.Provider.BTCPrice(ctx)
			if err != nil || price <= 0 {
				return FallbackBTCPrice, nil
			}
			return price, nil
		},
	}
}

// TokenDisplay resolves display metadata for ids: the known table first,
// then reflection of the rest in parallel. Ids nobody describes get a
// synthetic "Token <id>" name.
func TokenDisplay(d Deps, ids []string) cache.Descriptor[map[string]wallet.TokenInfo] {
	return cache.Descriptor[map[string]wallet.TokenInfo]{
		Key:     querykeys.TokenDisplay(d.Network, ids),
		Enabled: d.ready() && len(ids) > 0,
		Fetch: func(ctx context.Context) (map[string]wallet.TokenInfo, error) {
			out := make(map[string]wallet.TokenInfo, len(ids))
			var unknown []string
			for _, id := range ids {
				if info, ok := d.tokens().Lookup(id); ok {
					out[id] = info
					continue
				}
				unknown = append(unknown, id)
			}

			reflected := make([]wallet.TokenInfo, len(unknown))
			d.fanOut(ctx, len(unknown), func(ctx context.Context, i int) {
				rctx, cancel := context.WithTimeout(ctx, wallet.DefaultReflectTimeout)
				defer cancel()
				info, err := d.Provider.ReflectToken(rctx, unknown[i])
				if err != nil {
					return
				}
				reflected[i] = info
			})

			for i, id := range unknown {
				info := reflected[i]
				if info.Name == "" && info.Symbol == "" {
					info = wallet.TokenInfo{Name: "Token " + id, Symbol: id}
				}
				if info.Decimals == 0 {
					info.Decimals = wallet.DefaultDecimals
				}
				out[id] = info
			}
			return out, nil
		},
	}
}

// FrbtcPremium reads the frBTC wrap premium. A failed read answers the
// fallback schedule with IsLive false and the failure in Error.
func FrbtcPremium(d Deps, frbtcID string) cache.Descriptor[rpc.FrbtcPremium] {
	return cache.Descriptor[rpc.FrbtcPremium]{
		Key:     querykeys.FrbtcPremium(d.Network, frbtcID),
		Enabled: d.ready() && frbtcID != "",
		Fetch: func(ctx context.Context) (rpc.FrbtcPremium, error) {
			premium, err := d.Provider.FrbtcPremium(ctx, frbtcID)
			if err != nil {
				return rpc.FrbtcPremium{
					Premium:              FallbackFrbtcPremium,
					WrapFeePerThousand:   wallet.FrbtcWrapFeePerThousand,
					UnwrapFeePerThousand: wallet.FrbtcUnwrapFeePerThousand,
					Error:                err.Error(),
				}, nil
			}
			return premium, nil
		},
	}
}

// PoolsMetadata reads the details of every pool in poolIDs in parallel.
// Pools that fail are left out; the fetch fails only when none answered so
// the previous value keeps being served.
func PoolsMetadata(d Deps, poolIDs []string) cache.Descriptor[map[string]rpc.PoolMetadata] {
	return cache.Descriptor[map[string]rpc.PoolMetadata]{
		Key:     querykeys.PoolsMetadata(d.Network, poolIDs),
		Enabled: d.ready() && len(poolIDs) > 0,
		Fetch: func(ctx context.Context) (map[string]rpc.PoolMetadata, error) {
			found := make([]*rpc.PoolMetadata, len(poolIDs))
			errs := make([]error, len(poolIDs))
			d.fanOut(ctx, len(poolIDs), func(ctx context.Context, i int) {
				meta, err := d.Provider.PoolDetails(ctx, poolIDs[i])
				if err != nil {
					errs[i] = err
					return
				}
				found[i] = &meta
			})

			out := make(map[string]rpc.PoolMetadata, len(poolIDs))
			var firstErr error
			for i, id := range poolIDs {
				if found[i] != nil {
					out[id] = *found[i]
				} else if firstErr == nil {
					firstErr = errs[i]
				}
			}
			if len(out) == 0 {
				if firstErr == nil {
					firstErr = context.Canceled
				}
				return nil, fmt.Errorf("%w: no pool answered: %w", wallet.ErrTransientFetch, firstErr)
			}
			return out, nil
		},
	}
}
