package rpc

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/subfrost/walletd/pkg/wallet"
)

func newTestClient(t *testing.T) (*fakeProvider, *HTTPClient) {
	t.Helper()
	fp, srv := newFakeProvider(t)
	return fp, NewHTTPWithOpts(Opts{Endpoints: []string{srv.URL}})
}

func TestMetashrewHeight_StringResult(t *testing.T) {
	fp, client := newTestClient(t)
	fp.results[methodMetashrewHeight] = "905123"

	h, err := client.MetashrewHeight(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(905123), h)
}

func TestHeight_RejectsGarbage(t *testing.T) {
	fp, client := newTestClient(t)
	fp.results[methodMetashrewHeight] = "not-a-number"
	fp.results[methodEsploraTip] = 0

	_, err := client.MetashrewHeight(context.Background())
	assert.True(t, errors.Is(err, wallet.ErrMalformedResponse))
	_, err = client.EsploraTipHeight(context.Background())
	assert.True(t, errors.Is(err, wallet.ErrMalformedResponse))
}

func TestBootstrapHeight_UsesNetworkSlug(t *testing.T) {
	fp, client := newTestClient(t)
	fp.results[methodMetashrewHeight] = "1200"

	h, err := client.BootstrapHeight(context.Background(), "subfrost-regtest")
	require.NoError(t, err)
	assert.Equal(t, uint64(1200), h)
	assert.Equal(t, []string{"/api/rpc/regtest"}, fp.paths)
}

func TestNetworkSlug(t *testing.T) {
	cases := map[string]string{
		"mainnet":          "mainnet",
		"testnet":          "testnet",
		"signet":           "signet",
		"regtest":          "regtest",
		"subfrost-regtest": "regtest",
		"regtest-local":    "regtest",
		"oylnet":           "mainnet",
		"":                 "mainnet",
	}
	for in, want := range cases {
		assert.Equal(t, want, NetworkSlug(in), in)
	}
}

func TestEnrichedUTXOs_ParsesEnvelopeAndLuaTables(t *testing.T) {
	fp, client := newTestClient(t)
	fp.results[methodLuaEvalSaved] = rawJSON(`{
		"returns": {
			"spendable": [{"outpoint": "aa:0", "value": 3000, "height": 100}],
			"assets": {"1": {"outpoint": "bb:1", "value": 546, "height": 99,
				"inscriptions": [{"id": "insc0", "number": 7}],
				"ord_runes": {"840000:3": {"amount": "123456789012345678901", "symbol": "R", "divisibility": 0}}}},
			"pending": {}
		}
	}`)

	got, err := client.EnrichedUTXOs(context.Background(), "bc1qx")
	require.NoError(t, err)

	require.Len(t, got.Spendable, 1)
	assert.Equal(t, "aa", got.Spendable[0].TxID)
	assert.Equal(t, uint64(3000), got.Spendable[0].ValueSats)
	assert.Equal(t, uint64(100), got.Spendable[0].BlockHeight)

	require.Len(t, got.Assets, 1)
	asset := got.Assets[0]
	assert.Equal(t, uint32(1), asset.Vout)
	assert.Equal(t, []string{"insc0"}, asset.Inscriptions)
	assert.Equal(t, "123456789012345678901", asset.AttachedAssets["840000:3"].String())

	assert.Empty(t, got.Pending)
	assert.Equal(t, []string{methodLuaEvalSaved}, fp.methods())
}

func TestEnrichedUTXOs_UploadsScriptOnCacheMiss(t *testing.T) {
	fp, client := newTestClient(t)
	fp.errors[methodLuaEvalSaved] = &RPCError{Code: -1, Message: "script not found"}
	fp.results[methodLuaEvalScript] = rawJSON(`{"spendable": [], "assets": [], "pending": [{"outpoint": "cc:2", "value": 10}]}`)

	got, err := client.EnrichedUTXOs(context.Background(), "bc1qx")
	require.NoError(t, err)
	require.Len(t, got.Pending, 1)
	assert.Equal(t, []string{methodLuaEvalSaved, methodLuaEvalScript}, fp.methods())

	fp.mu.Lock()
	defer fp.mu.Unlock()
	assert.Equal(t, balancesScriptHash, fp.calls[0].Params[0])
	assert.Equal(t, balancesScript, fp.calls[1].Params[0])
}

func TestEnrichedUTXOs_FailureIsTransient(t *testing.T) {
	fp, client := newTestClient(t)
	fp.errors[methodLuaEvalSaved] = &RPCError{Code: -1, Message: "down"}
	fp.errors[methodLuaEvalScript] = &RPCError{Code: -1, Message: "down"}

	_, err := client.EnrichedUTXOs(context.Background(), "bc1qx")
	assert.True(t, errors.Is(err, wallet.ErrTransientFetch))
}

func TestSpendableUTXOs(t *testing.T) {
	fp, client := newTestClient(t)
	fp.results[methodAddressUTXO] = rawJSON(`[
		{"txid": "aa", "vout": 1, "value": 1500, "status": {"confirmed": true, "block_height": 90}}
	]`)

	got, err := client.SpendableUTXOs(context.Background(), "bc1qx")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, wallet.UTXO{TxID: "aa", Vout: 1, ValueSats: 1500, BlockHeight: 90}, got[0])
}

func TestAssetBalances_SumsBalanceSheets(t *testing.T) {
	fp, client := newTestClient(t)
	fp.results[methodProtorunes] = rawJSON(`{"outpoints": [
		{"balance_sheet": {"cached": {"balances": [
			{"block": 2, "tx": 0, "amount": "9007199254740993"},
			{"block": 32, "tx": 0, "amount": 5}
		]}}},
		{"balance_sheet": {"cached": {"balances": [
			{"block": 2, "tx": 0, "amount": "1"}
		]}}}
	]}`)

	got, err := client.AssetBalances(context.Background(), "bc1px")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "2:0", got[0].AssetID)
	assert.Equal(t, "9007199254740994", got[0].Amount.String())
	assert.Equal(t, "32:0", got[1].AssetID)

	fp.mu.Lock()
	defer fp.mu.Unlock()
	params, ok := fp.calls[0].Params[0].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "bc1px", params["address"])
	assert.Equal(t, "1", params["protocolTag"])
}

func TestMempoolSpent_SkipsChainedInputs(t *testing.T) {
	fp, client := newTestClient(t)
	fp.results[methodAddressMempool] = rawJSON(`[
		{"txid": "m1", "vin": [
			{"txid": "c1", "vout": 0, "prevout": {"scriptpubkey_address": "bc1qme", "value": 4000}},
			{"txid": "c2", "vout": 0, "prevout": {"scriptpubkey_address": "bc1qother", "value": 7000}}
		]},
		{"txid": "m2", "vin": [
			{"txid": "m1", "vout": 1, "prevout": {"scriptpubkey_address": "bc1qme", "value": 900}}
		]}
	]`)

	spent, err := client.MempoolSpent(context.Background(), "bc1qme")
	require.NoError(t, err)
	assert.Equal(t, uint64(4000), spent)
}

func TestAddressTxs_ParsesAndDropsCoinbase(t *testing.T) {
	fp, client := newTestClient(t)
	fp.results[methodAddressTxs] = rawJSON(`[
		{"txid": "t1", "fee": 200, "status": {"confirmed": true, "block_height": 5, "block_time": 1700000000},
		 "vin": [{"txid": "p", "vout": 0, "sequence": 4294967293, "prevout": {"scriptpubkey_address": "a", "value": 1000}}],
		 "vout": [{"scriptpubkey_address": "b", "value": 800, "scriptpubkey_type": "v0_p2wpkh"}, {"value": 0, "scriptpubkey_type": "op_return"}]},
		{"txid": "cb", "vin": [{"is_coinbase": true, "sequence": 4294967295}], "vout": []}
	]`)

	txs, err := client.AddressTxs(context.Background(), "a")
	require.NoError(t, err)
	require.Len(t, txs, 1)
	tx := txs[0]
	assert.Equal(t, "t1", tx.TxID)
	assert.True(t, tx.Confirmed)
	assert.True(t, tx.IsRBF)
	assert.True(t, tx.HasOpReturn)
	assert.Equal(t, uint64(1000), tx.Inputs[0].Amount)
	assert.Equal(t, "b", tx.Outputs[0].Address)
}

func TestFeeEstimates_DefaultsAndFloor(t *testing.T) {
	fp, client := newTestClient(t)
	fp.results[methodFeeEstimates] = map[string]float64{"1": 31.5, "6": 0.4}

	fees, err := client.FeeEstimates(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 31.5, fees.Fast)
	assert.Equal(t, 1.0, fees.Medium)
	assert.Equal(t, float64(DefaultSlowFee), fees.Slow)
}

func TestBTCPrice_Shapes(t *testing.T) {
	fp, client := newTestClient(t)

	fp.results[methodBitcoinPrice] = 65000.5
	p, err := client.BTCPrice(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 65000.5, p)

	fp.results[methodBitcoinPrice] = map[string]any{"usd": 70000}
	p, err = client.BTCPrice(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 70000.0, p)

	fp.results[methodBitcoinPrice] = map[string]any{"price": 0}
	_, err = client.BTCPrice(context.Background())
	assert.True(t, errors.Is(err, wallet.ErrMalformedResponse))
}

func TestReflectToken(t *testing.T) {
	fp, client := newTestClient(t)
	fp.results[methodReflect] = map[string]any{"name": "Methane", "symbol": "CH4", "decimals": 8}

	info, err := client.ReflectToken(context.Background(), "2:16")
	require.NoError(t, err)
	assert.Equal(t, wallet.TokenInfo{Symbol: "CH4", Name: "Methane", Decimals: 8}, info)
}

func TestHandle_NotReady(t *testing.T) {
	h := NewHandle()
	assert.False(t, h.Ready())

	_, err := h.BlockCount(context.Background())
	assert.True(t, errors.Is(err, ErrProviderUnavailable))

	fp, client := newTestClient(t)
	fp.results[methodBlockCount] = 7
	h.Set(client)
	require.True(t, h.Ready())
	got, err := h.BlockCount(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(7), got)
}

func TestReflectToken_RenamesWrappedBTC(t *testing.T) {
	fp, client := newTestClient(t)
	fp.results[methodReflect] = map[string]any{"name": "SUBFROST BTC ", "symbol": " frBTC"}

	info, err := client.ReflectToken(context.Background(), "32:0")
	require.NoError(t, err)
	assert.Equal(t, "frBTC", info.Name)
	assert.Equal(t, "frBTC", info.Symbol)
}
