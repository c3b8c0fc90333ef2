package queries

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alitto/pond/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/subfrost/walletd/pkg/cache"
	"github.com/subfrost/walletd/pkg/querykeys"
	"github.com/subfrost/walletd/pkg/rpc"
	"github.com/subfrost/walletd/pkg/wallet"
)

var errDown = errors.New("down")

type stubProvider struct {
	ready    bool
	enriched map[string]wallet.Enriched
	txs      []rpc.Transaction
	fees     *rpc.FeeEstimates
	price    float64
	reflect  map[string]wallet.TokenInfo
	delay    time.Duration
	premium  *rpc.FrbtcPremium
	pools    map[string]rpc.PoolMetadata
	fail     bool

	reflects atomic.Int32
}

func (s *stubProvider) Ready() bool { return s.ready }

func (s *stubProvider) EnrichedUTXOs(_ context.Context, address string) (wallet.Enriched, error) {
	if s.fail {
		return wallet.Enriched{}, errDown
	}
	return s.enriched[address], nil
}

func (s *stubProvider) ReflectToken(ctx context.Context, id string) (wallet.TokenInfo, error) {
	s.reflects.Add(1)
	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			return wallet.TokenInfo{}, ctx.Err()
		}
	}
	info, ok := s.reflect[id]
	if !ok {
		return wallet.TokenInfo{}, errDown
	}
	return info, nil
}

func (s *stubProvider) AddressTxs(context.Context, string) ([]rpc.Transaction, error) {
	if s.fail {
		return nil, errDown
	}
	return s.txs, nil
}

func (s *stubProvider) FeeEstimates(context.Context) (rpc.FeeEstimates, error) {
	if s.fees == nil {
		return rpc.FeeEstimates{}, errDown
	}
	return *s.fees, nil
}

func (s *stubProvider) BTCPrice(context.Context) (float64, error) {
	if s.price == 0 {
		return 0, errDown
	}
	return s.price, nil
}

func (s *stubProvider) FrbtcPremium(context.Context, string) (rpc.FrbtcPremium, error) {
	if s.premium == nil {
		return rpc.FrbtcPremium{}, errDown
	}
	return *s.premium, nil
}

func (s *stubProvider) PoolDetails(_ context.Context, poolID string) (rpc.PoolMetadata, error) {
	meta, ok := s.pools[poolID]
	if !ok {
		return rpc.PoolMetadata{}, errDown
	}
	return meta, nil
}

type heightFunc func(ctx context.Context) (uint64, error)

func (f heightFunc) Height(ctx context.Context) (uint64, error) { return f(ctx) }

func TestHeight_SelfRefreshing(t *testing.T) {
	d := Height(Deps{Network: "mainnet", Heights: heightFunc(func(context.Context) (uint64, error) { return 880000, nil })})
	assert.True(t, d.Enabled)
	assert.Equal(t, HeightRefetchInterval, d.RefetchInterval)
	assert.Equal(t, HeightStaleTime, d.StaleTime)
	assert.Equal(t, querykeys.DomainHeight, d.Key.Domain())

	h, err := d.Fetch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(880000), h)

	assert.False(t, Height(Deps{Network: "mainnet"}).Enabled)
}

func TestBuilders_OnlyHeightRefreshes(t *testing.T) {
	d := Deps{Network: "mainnet", Provider: &stubProvider{ready: true}}
	assert.Zero(t, BTCBalance(d, "bc1q").RefetchInterval)
	assert.Zero(t, TransactionHistory(d, "bc1q").RefetchInterval)
	assert.Zero(t, FeeEstimates(d).RefetchInterval)
	assert.Zero(t, BTCPrice(d).RefetchInterval)
	assert.Zero(t, TokenDisplay(d, []string{"2:0"}).RefetchInterval)
	assert.Zero(t, FrbtcPremium(d, wallet.FrbtcID).RefetchInterval)
	assert.Zero(t, PoolsMetadata(d, []string{"2:1"}).RefetchInterval)
}

func TestBuilders_DisabledUntilReady(t *testing.T) {
	d := Deps{Network: "mainnet", Provider: &stubProvider{}}
	assert.False(t, BTCBalance(d, "bc1q").Enabled)
	assert.False(t, TransactionHistory(d, "bc1q").Enabled)
	assert.False(t, FeeEstimates(d).Enabled)
	assert.False(t, BTCPrice(d).Enabled)
	assert.False(t, EnrichedWallet(d, []wallet.WalletAddress{{Kind: wallet.KindTaproot, Address: "bc1p"}}).Enabled)

	c := cache.New(zaptest.NewLogger(t))
	defer c.Close()
	_, err := cache.Fetch(context.Background(), c, BTCBalance(d, "bc1q"))
	assert.ErrorIs(t, err, cache.ErrDisabled)
}

func TestBuilders_DisabledWithoutInputs(t *testing.T) {
	d := Deps{Network: "mainnet", Provider: &stubProvider{ready: true}}
	assert.False(t, BTCBalance(d, "").Enabled)
	assert.False(t, TransactionHistory(d, "").Enabled)
	assert.False(t, TokenDisplay(d, nil).Enabled)
	assert.False(t, EnrichedWallet(d, nil).Enabled)
}

func TestBTCBalance_SumsSpendable(t *testing.T) {
	p := &stubProvider{ready: true, enriched: map[string]wallet.Enriched{
		"bc1q": {
			Spendable: []wallet.UTXO{{TxID: "a", ValueSats: 5000}, {TxID: "b", ValueSats: 1500}},
			Assets:    []wallet.UTXO{{TxID: "c", ValueSats: 546}},
		},
	}}
	d := Deps{Network: "mainnet", Provider: p}

	sats, err := BTCBalance(d, "bc1q").Fetch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(6500), sats)

	p.fail = true
	_, err = BTCBalance(d, "bc1q").Fetch(context.Background())
	assert.ErrorIs(t, err, errDown)
}

func TestBTCBalance_FailureKeepsLastValue(t *testing.T) {
	p := &stubProvider{ready: true, enriched: map[string]wallet.Enriched{
		"bc1q": {Spendable: []wallet.UTXO{{TxID: "a", ValueSats: 42}}},
	}}
	d := Deps{Network: "mainnet", Provider: p}
	c := cache.New(zaptest.NewLogger(t))
	defer c.Close()

	desc := BTCBalance(d, "bc1q")
	v, err := cache.Fetch(context.Background(), c, desc)
	require.NoError(t, err)
	require.Equal(t, uint64(42), v)

	p.fail = true
	c.InvalidateExcept(querykeys.DomainHeight)
	v, err = cache.Fetch(context.Background(), c, desc)
	require.NoError(t, err)
	assert.Equal(t, uint64(42), v)

	last, ok := c.Peek(desc.Key)
	require.True(t, ok)
	assert.Equal(t, uint64(42), last)
}

func TestFeeEstimates_DefaultsOnFailure(t *testing.T) {
	d := Deps{Network: "mainnet", Provider: &stubProvider{ready: true}}
	fees, err := FeeEstimates(d).Fetch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, float64(rpc.DefaultFastFee), fees.Fast)
	assert.Equal(t, float64(rpc.DefaultMediumFee), fees.Medium)
	assert.Equal(t, float64(rpc.DefaultSlowFee), fees.Slow)

	live := rpc.FeeEstimates{Fast: 40, Medium: 20, Slow: 5}
	d.Provider = &stubProvider{ready: true, fees: &live}
	fees, err = FeeEstimates(d).Fetch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, live, fees)
}

func TestBTCPrice_Fallback(t *testing.T) {
	d := Deps{Network: "mainnet", Provider: &stubProvider{ready: true}}
	price, err := BTCPrice(d).Fetch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, FallbackBTCPrice, price)

	d.Provider = &stubProvider{ready: true, price: 101234.5}
	price, err = BTCPrice(d).Fetch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 101234.5, price)
}

func TestTransactionHistory(t *testing.T) {
	txs := []rpc.Transaction{{TxID: "t1"}, {TxID: "t2"}}
	d := Deps{Network: "mainnet", Provider: &stubProvider{ready: true, txs: txs}}
	got, err := TransactionHistory(d, "bc1q").Fetch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, txs, got)
}

func TestTokenDisplay_TableThenReflectThenSynthetic(t *testing.T) {
	p := &stubProvider{ready: true, reflect: map[string]wallet.TokenInfo{
		"4:1": {Name: "Four", Symbol: "FOUR"},
	}}
	d := Deps{Network: "mainnet", Provider: p}

	got, err := TokenDisplay(d, []string{"2:0", "4:1", "9:9"}).Fetch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "DIESEL", got["2:0"].Symbol)
	assert.Equal(t, "FOUR", got["4:1"].Symbol)
	assert.Equal(t, wallet.DefaultDecimals, got["4:1"].Decimals)
	assert.Equal(t, "Token 9:9", got["9:9"].Name)
}

func TestEnrichedWallet_KeyIncludesKind(t *testing.T) {
	d := Deps{Network: "mainnet", Provider: &stubProvider{ready: true}}
	a := EnrichedWallet(d, []wallet.WalletAddress{{Kind: wallet.KindSegwit, Address: "x"}})
	b := EnrichedWallet(d, []wallet.WalletAddress{{Kind: wallet.KindTaproot, Address: "x"}})
	assert.False(t, a.Key.Equal(b.Key))
	assert.False(t, a.Enabled, "no aggregator wired")
}

func TestEnrichedWallet_Aggregates(t *testing.T) {
	p := &stubProvider{ready: true, enriched: map[string]wallet.Enriched{
		"bc1p": {Spendable: []wallet.UTXO{{TxID: "a", ValueSats: 3000}}},
	}}
	agg := wallet.NewAggregator(wallet.AggregatorConfig{Enricher: p, Logger: zaptest.NewLogger(t)})
	d := Deps{Network: "mainnet", Provider: p, Aggregator: agg}

	desc := EnrichedWallet(d, []wallet.WalletAddress{{Kind: wallet.KindTaproot, Address: "bc1p"}})
	require.True(t, desc.Enabled)
	snap, err := desc.Fetch(context.Background())
	require.NoError(t, err)
	require.NotNil(t, snap)
	assert.Equal(t, uint64(3000), snap.SpendableByKind[wallet.KindTaproot])
}

func TestTokenDisplay_ReflectsInParallel(t *testing.T) {
	p := &stubProvider{ready: true, delay: 100 * time.Millisecond, reflect: map[string]wallet.TokenInfo{
		"4:1": {Name: "Four", Symbol: "FOUR"},
		"4:2": {Name: "Five", Symbol: "FIVE"},
		"4:3": {Name: "Six", Symbol: "SIX"},
	}}
	pool := pond.NewPool(4)
	defer pool.StopAndWait()
	d := Deps{Network: "mainnet", Provider: p, Pool: pool}

	start := time.Now()
	got, err := TokenDisplay(d, []string{"4:1", "4:2", "4:3", "2:0"}).Fetch(context.Background())
	require.NoError(t, err)
	assert.Less(t, time.Since(start), 250*time.Millisecond)
	assert.Equal(t, int32(3), p.reflects.Load(), "table hits are not reflected")
	assert.Len(t, got, 4)
	assert.Equal(t, "SIX", got["4:3"].Symbol)
}

func TestFrbtcPremium_LiveAndFallback(t *testing.T) {
	d := Deps{Network: "mainnet", Provider: &stubProvider{ready: true}}
	desc := FrbtcPremium(d, wallet.FrbtcID)
	require.True(t, desc.Enabled)
	assert.Equal(t, querykeys.FrbtcPremium("mainnet", wallet.FrbtcID), desc.Key)

	got, err := desc.Fetch(context.Background())
	require.NoError(t, err)
	assert.False(t, got.IsLive)
	assert.Equal(t, uint64(FallbackFrbtcPremium), got.Premium)
	assert.Equal(t, 1.0, got.WrapFeePerThousand)
	assert.Equal(t, 1.0, got.UnwrapFeePerThousand)
	assert.Equal(t, errDown.Error(), got.Error)

	live := rpc.FrbtcPremium{Premium: 250_000, WrapFeePerThousand: 2.5, UnwrapFeePerThousand: 2.5, IsLive: true}
	d.Provider = &stubProvider{ready: true, premium: &live}
	got, err = FrbtcPremium(d, wallet.FrbtcID).Fetch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, live, got)

	assert.False(t, FrbtcPremium(d, "").Enabled)
}

func TestPoolsMetadata_KeepsAnsweredPools(t *testing.T) {
	p := &stubProvider{ready: true, pools: map[string]rpc.PoolMetadata{
		"2:77087": {PoolID: "2:77087", Name: "DIESEL / frBTC LP", TokenA: "2:0", TokenB: "32:0"},
	}}
	d := Deps{Network: "mainnet", Provider: p}

	a := PoolsMetadata(d, []string{"2:77087", "2:68441"})
	b := PoolsMetadata(d, []string{"2:68441", "2:77087"})
	assert.Equal(t, a.Key, b.Key)
	assert.Equal(t, querykeys.DomainPoolsMetadata, a.Key.Domain())

	got, err := a.Fetch(context.Background())
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "DIESEL / frBTC LP", got["2:77087"].Name)

	_, err = PoolsMetadata(d, []string{"9:9"}).Fetch(context.Background())
	assert.ErrorIs(t, err, wallet.ErrTransientFetch)
	assert.ErrorIs(t, err, errDown)

	assert.False(t, PoolsMetadata(d, nil).Enabled)
}

func TestPoolsMetadata_FailedRefreshServesPreviousValue(t *testing.T) {
	p := &stubProvider{ready: true, pools: map[string]rpc.PoolMetadata{"2:1": {PoolID: "2:1"}}}
	d := Deps{Network: "mainnet", Provider: p}
	c := cache.New(zaptest.NewLogger(t))
	defer c.Close()

	desc := PoolsMetadata(d, []string{"2:1"})
	_, err := cache.Fetch(context.Background(), c, desc)
	require.NoError(t, err)

	p.pools = nil
	c.InvalidateExcept(querykeys.DomainHeight)
	got, err := cache.Fetch(context.Background(), c, desc)
	require.NoError(t, err)
	assert.Contains(t, got, "2:1")
}
