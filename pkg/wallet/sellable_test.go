package wallet

import (
	"context"
	"testing"

	"github.com/alitto/pond/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func newTestResolver(t *testing.T, assets AssetBalancer) *SellableResolver {
	t.Helper()
	pool := pond.NewPool(4)
	t.Cleanup(pool.StopAndWait)
	return NewSellableResolver(assets, KnownTokens, pool, zaptest.NewLogger(t))
}

func names(cs []Currency) []string {
	out := make([]string, 0, len(cs))
	for _, c := range cs {
		out = append(out, c.Name+"("+c.Balance.String()+")")
	}
	return out
}

func TestResolveSortsByBalanceThenName(t *testing.T) {
	bal := &countingBalancer{byAddress: map[string][]AssetBalance{
		"w": {
			{AssetID: "7:1", Name: "Zeta", Symbol: "Z", Amount: MustAmount("500")},
			{AssetID: "7:2", Name: "Alpha", Symbol: "A", Amount: MustAmount("500")},
			{AssetID: "7:3", Name: "Beta", Symbol: "B", Amount: MustAmount("10")},
		},
	}}
	r := newTestResolver(t, bal)

	out := r.Resolve(context.Background(), SellableRequest{WalletAddress: "w"})
	assert.Equal(t, []string{"Alpha(500)", "Zeta(500)", "Beta(10)"}, names(out))

	again := r.Resolve(context.Background(), SellableRequest{WalletAddress: "w"})
	assert.Equal(t, out, again)
}

func TestResolveComparesExactBalances(t *testing.T) {
	bal := &countingBalancer{byAddress: map[string][]AssetBalance{
		"w": {
			{AssetID: "7:1", Name: "Small", Amount: MustAmount("9007199254740993")},
			{AssetID: "7:2", Name: "Big", Amount: MustAmount("9007199254740994")},
		},
	}}
	out := newTestResolver(t, bal).Resolve(context.Background(), SellableRequest{WalletAddress: "w"})
	require.Len(t, out, 2)
	assert.Equal(t, "Big", out[0].Name)
}

func TestResolveMergesAddressesAndAppliesAllowList(t *testing.T) {
	bal := &countingBalancer{byAddress: map[string][]AssetBalance{
		"w":  {{AssetID: "2:0", Amount: MustAmount("1")}, {AssetID: "8:8", Amount: MustAmount("4")}},
		"t1": {{AssetID: "2:0", Amount: MustAmount("2")}},
	}}
	r := newTestResolver(t, bal)

	out := r.Resolve(context.Background(), SellableRequest{
		WalletAddress: "w",
		Addresses:     []string{"t1", "w"},
		AllowList:     []string{"2:0"},
	})
	require.Len(t, out, 1)
	assert.Equal(t, "2:0", out[0].AssetID)
	assert.Equal(t, "3", out[0].Balance.String())
	assert.Equal(t, "DIESEL", out[0].Symbol)
	assert.Equal(t, "w", out[0].Address)
	assert.Equal(t, int32(2), bal.calls.Load())
}

func TestResolveEmptyAllowListFiltersEverything(t *testing.T) {
	bal := &countingBalancer{byAddress: map[string][]AssetBalance{
		"w": {{AssetID: "2:0", Amount: MustAmount("1")}},
	}}
	out := newTestResolver(t, bal).Resolve(context.Background(), SellableRequest{WalletAddress: "w", AllowList: []string{}})
	assert.Empty(t, out)
}

func TestResolveIsolatesFailingAddress(t *testing.T) {
	bal := &countingBalancer{
		byAddress: map[string][]AssetBalance{"ok": {{AssetID: "9:1", Amount: MustAmount("5")}}},
		fail:      map[string]bool{"w": true},
	}
	out := newTestResolver(t, bal).Resolve(context.Background(), SellableRequest{WalletAddress: "w", Addresses: []string{"ok"}})
	require.Len(t, out, 1)
	assert.Equal(t, "Token 9:1", out[0].Name)
	assert.Equal(t, "1", out[0].Symbol)
	assert.Equal(t, "w", out[0].Address)
}
