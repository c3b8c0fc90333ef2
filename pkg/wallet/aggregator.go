package wallet

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/alitto/pond/v2"
	"go.uber.org/zap"
)

const (
	DefaultEnrichTimeout  = 15 * time.Second
	DefaultAssetTimeout   = 15 * time.Second
	DefaultMempoolTimeout = 10 * time.Second
	DefaultReflectTimeout = 5 * time.Second
)

// AggregatorConfig wires the capabilities an Aggregator fans out over.
// Mempool and Reflector are optional.
type AggregatorConfig struct {
	Enricher  Enricher
	Fallback  UTXOLister
	Assets    AssetBalancer
	Mempool   MempoolSpender
	Reflector TokenReflector
	Tokens    TokenTable
	Logger    *zap.Logger
	// Pool is shared with other fan-out users; a private pool is created when nil.
	Pool pond.Pool

	EnrichTimeout  time.Duration
	AssetTimeout   time.Duration
	MempoolTimeout time.Duration
	ReflectTimeout time.Duration
}

// Aggregator computes WalletSnapshots. It holds no state across calls, so
// concurrent Aggregate calls never interfere.
type Aggregator struct {
	cfg AggregatorConfig
}

// NewAggregator applies defaults to cfg.
func NewAggregator(cfg AggregatorConfig) *Aggregator {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Tokens == nil {
		cfg.Tokens = KnownTokens
	}
	if cfg.Pool == nil {
		cfg.Pool = pond.NewPool(16)
	}
	if cfg.EnrichTimeout <= 0 {
		cfg.EnrichTimeout = DefaultEnrichTimeout
	}
	if cfg.AssetTimeout <= 0 {
		cfg.AssetTimeout = DefaultAssetTimeout
	}
	if cfg.MempoolTimeout <= 0 {
		cfg.MempoolTimeout = DefaultMempoolTimeout
	}
	if cfg.ReflectTimeout <= 0 {
		cfg.ReflectTimeout = DefaultReflectTimeout
	}
	return &Aggregator{cfg: cfg}
}

// addressResult is the settled contribution of one address. Every field
// defaults to empty/zero when its capability failed.
type addressResult struct {
	utxos   Enriched
	assets  []AssetBalance
	mempool uint64
}

// Aggregate fans out over every address, waits for every call to settle and
// merges the results into a fresh snapshot. It never fails: in the worst case
// the snapshot is all zero.
func (a *Aggregator) Aggregate(ctx context.Context, addrs []WalletAddress) *WalletSnapshot {
	start := time.Now()
	addrs = uniqueAddresses(addrs)
	results := make([]addressResult, len(addrs))

	group := a.cfg.Pool.NewGroupContext(ctx)
	groupCtx := group.Context()
	for i := range addrs {
		group.Submit(func() {
			if groupCtx.Err() != nil {
				return
			}
			results[i].utxos = a.fetchUTXOs(groupCtx, addrs[i].Address)
		})
		group.Submit(func() {
			if groupCtx.Err() != nil {
				return
			}
			results[i].assets = a.fetchAssets(groupCtx, addrs[i].Address)
		})
		if a.cfg.Mempool != nil {
			group.Submit(func() {
				if groupCtx.Err() != nil {
					return
				}
				results[i].mempool = a.fetchMempoolSpent(groupCtx, addrs[i].Address)
			})
		}
	}
	if err := group.Wait(); err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, pond.ErrGroupStopped) {
		a.cfg.Logger.Warn("[balance] fan-out encountered error", zap.Error(err))
	}

	snap := NewSnapshot()
	assets := newAssetFolder(a.cfg.Tokens, a.cfg.Logger)
	for i, addr := range addrs {
		r := results[i]
		for _, u := range r.utxos.Spendable {
			snap.addUTXO(addr, u, classSpendable)
		}
		for _, u := range r.utxos.Assets {
			snap.addUTXO(addr, u, classAssets)
			assets.foldAttached(u.AttachedAssets)
		}
		for _, u := range r.utxos.Pending {
			snap.addUTXO(addr, u, classPending)
		}
		if r.mempool > 0 {
			snap.PendingOutgoingByKind[addr.Kind] += r.mempool
			snap.PendingOutgoingTotal += r.mempool
		}
	}
	for i := range addrs {
		for _, b := range results[i].assets {
			assets.foldBalance(b)
		}
	}

	a.reflectUnknown(ctx, assets)
	snap.AssetBalances = assets.list()

	a.cfg.Logger.Debug("[balance] aggregated wallet snapshot",
		zap.Int("addresses", len(addrs)),
		zap.Uint64("combinedTotal", snap.CombinedTotal),
		zap.Uint64("spendableTotal", snap.SpendableTotal),
		zap.Int("assets", len(snap.AssetBalances)),
		zap.Duration("took", time.Since(start)))
	return snap
}

// fetchUTXOs runs the enrichment capability and, only when it errors or times
// out, the plain fallback. An empty enrichment answer is authoritative.
func (a *Aggregator) fetchUTXOs(ctx context.Context, address string) Enriched {
	if a.cfg.Enricher != nil {
		enriched, err := callWithTimeout(ctx, a.cfg.EnrichTimeout, func(ctx context.Context) (Enriched, error) {
			return a.cfg.Enricher.EnrichedUTXOs(ctx, address)
		})
		if err == nil {
			return enriched
		}
		a.cfg.Logger.Warn("[balance] enriched utxos unavailable, trying fallback",
			zap.String("address", address), zap.Error(err))
	}

	if a.cfg.Fallback != nil {
		spendable, err := callWithTimeout(ctx, a.cfg.EnrichTimeout, func(ctx context.Context) ([]UTXO, error) {
			return a.cfg.Fallback.SpendableUTXOs(ctx, address)
		})
		if err == nil && len(spendable) > 0 {
			return Enriched{Spendable: spendable}
		}
		if err != nil {
			a.cfg.Logger.Error("[balance] fallback utxos failed",
				zap.String("address", address), zap.Error(err))
		}
	}
	return Enriched{}
}

func (a *Aggregator) fetchAssets(ctx context.Context, address string) []AssetBalance {
	if a.cfg.Assets == nil {
		return nil
	}
	balances, err := callWithTimeout(ctx, a.cfg.AssetTimeout, func(ctx context.Context) ([]AssetBalance, error) {
		return a.cfg.Assets.AssetBalances(ctx, address)
	})
	if err != nil {
		a.cfg.Logger.Error("[balance] asset balances failed",
			zap.String("address", address), zap.Error(err))
		return nil
	}
	return balances
}

func (a *Aggregator) fetchMempoolSpent(ctx context.Context, address string) uint64 {
	spent, err := callWithTimeout(ctx, a.cfg.MempoolTimeout, func(ctx context.Context) (uint64, error) {
		return a.cfg.Mempool.MempoolSpent(ctx, address)
	})
	if err != nil {
		a.cfg.Logger.Warn("[balance] mempool spent failed",
			zap.String("address", address), zap.Error(err))
		return 0
	}
	return spent
}

// reflectUnknown names assets that neither the table nor the asset indexer
// described. Failures leave the asset id-only.
func (a *Aggregator) reflectUnknown(ctx context.Context, f *assetFolder) {
	if a.cfg.Reflector == nil {
		return
	}
	ids := f.unresolved()
	if len(ids) == 0 {
		return
	}
	found := make([]TokenInfo, len(ids))
	group := a.cfg.Pool.NewGroupContext(ctx)
	groupCtx := group.Context()
	for i, id := range ids {
		group.Submit(func() {
			info, err := callWithTimeout(groupCtx, a.cfg.ReflectTimeout, func(ctx context.Context) (TokenInfo, error) {
				return a.cfg.Reflector.ReflectToken(ctx, id)
			})
			if err != nil {
				a.cfg.Logger.Debug("[balance] token reflect failed", zap.String("assetId", id), zap.Error(err))
				return
			}
			found[i] = info
		})
	}
	_ = group.Wait()
	for i, id := range ids {
		f.describe(id, found[i])
	}
}

type utxoClass int

const (
	classSpendable utxoClass = iota
	classAssets
	classPending
)

func (s *WalletSnapshot) addUTXO(addr WalletAddress, u UTXO, class utxoClass) {
	u = u.clone()
	u.Address = addr.Address
	u.Confirmed = class != classPending

	s.PerKindTotals[addr.Kind] += u.ValueSats
	s.CombinedTotal += u.ValueSats
	switch class {
	case classSpendable:
		s.SpendableTotal += u.ValueSats
		s.SpendableByKind[addr.Kind] += u.ValueSats
	case classAssets:
		s.LockedInAssetsTotal += u.ValueSats
	case classPending:
		s.PendingTotal += u.ValueSats
		s.PendingByKind[addr.Kind] += u.ValueSats
		if u.TxID != "" {
			set, ok := s.PendingTxIDsByKind[addr.Kind]
			if !ok {
				set = TxIDSet{}
				s.PendingTxIDsByKind[addr.Kind] = set
			}
			set.Add(u.TxID)
		}
	}

	s.UTXOsByKind[addr.Kind] = append(s.UTXOsByKind[addr.Kind], u)
	s.UTXOsCombined = append(s.UTXOsCombined, u.clone())
}

// assetFolder accumulates balances by asset id in first-seen order.
type assetFolder struct {
	tokens TokenTable
	logger *zap.Logger
	order  []string
	byID   map[string]*AssetBalance
}

func newAssetFolder(tokens TokenTable, logger *zap.Logger) *assetFolder {
	return &assetFolder{tokens: tokens, logger: logger, byID: map[string]*AssetBalance{}}
}

func (f *assetFolder) get(id string) *AssetBalance {
	if b, ok := f.byID[id]; ok {
		return b
	}
	b := &AssetBalance{AssetID: id, Decimals: DefaultDecimals}
	if info, ok := f.tokens.Lookup(id); ok {
		b.Symbol, b.Name, b.Decimals = info.Symbol, info.Name, info.Decimals
	}
	f.byID[id] = b
	f.order = append(f.order, id)
	return b
}

func (f *assetFolder) add(b *AssetBalance, amount Amount) {
	sum, err := b.Amount.Add(amount)
	if err != nil {
		f.logger.Error("[balance] dropping asset amount", zap.String("assetId", b.AssetID), zap.Error(err))
		return
	}
	b.Amount = sum
}

// foldAttached folds one UTXO's attached assets, in asset id order.
func (f *assetFolder) foldAttached(attached map[string]Amount) {
	if len(attached) == 0 {
		return
	}
	ids := make([]string, 0, len(attached))
	for id := range attached {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		f.add(f.get(id), attached[id])
	}
}

func (f *assetFolder) foldBalance(in AssetBalance) {
	if in.AssetID == "" {
		return
	}
	b := f.get(in.AssetID)
	f.add(b, in.Amount)
	if _, known := f.tokens.Lookup(in.AssetID); !known {
		if b.Name == "" && in.Name != "" {
			b.Name = in.Name
		}
		if b.Symbol == "" && in.Symbol != "" {
			b.Symbol = in.Symbol
		}
		if in.Decimals > 0 {
			b.Decimals = in.Decimals
		}
	}
	if b.PriceUSD == nil && in.PriceUSD != nil {
		p := *in.PriceUSD
		b.PriceUSD = &p
	}
	if b.PriceInSatoshi == nil && in.PriceInSatoshi != nil {
		p := *in.PriceInSatoshi
		b.PriceInSatoshi = &p
	}
}

func (f *assetFolder) unresolved() []string {
	var ids []string
	for _, id := range f.order {
		b := f.byID[id]
		if b.Name == "" && b.Symbol == "" {
			ids = append(ids, id)
		}
	}
	return ids
}

func (f *assetFolder) describe(id string, info TokenInfo) {
	b, ok := f.byID[id]
	if !ok {
		return
	}
	if info.Name != "" {
		b.Name = info.Name
	}
	if info.Symbol != "" {
		b.Symbol = info.Symbol
	}
	if info.Decimals > 0 {
		b.Decimals = info.Decimals
	}
}

func (f *assetFolder) list() []AssetBalance {
	out := make([]AssetBalance, 0, len(f.order))
	for _, id := range f.order {
		out = append(out, *f.byID[id])
	}
	return out
}

func uniqueAddresses(in []WalletAddress) []WalletAddress {
	seen := make(map[string]struct{}, len(in))
	out := make([]WalletAddress, 0, len(in))
	for _, a := range in {
		if a.Address == "" {
			continue
		}
		if _, ok := seen[a.Address]; ok {
			continue
		}
		seen[a.Address] = struct{}{}
		out = append(out, a)
	}
	return out
}
