package rpc

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/subfrost/walletd/pkg/normalize"
	"github.com/subfrost/walletd/pkg/wallet"
)

// EnrichedUTXOs runs the balances script for address and returns its
// spendable, asset-carrying and pending outputs.
func (c *HTTPClient) EnrichedUTXOs(ctx context.Context, address string) (wallet.Enriched, error) {
	var raw json.RawMessage
	if err := c.evalScript(ctx, balancesScript, balancesScriptHash, &raw, address, protocolTagAlkanes); err != nil {
		return wallet.Enriched{}, fmt.Errorf("%w: %w", wallet.ErrTransientFetch, err)
	}
	v, err := decodeLoose(raw)
	if err != nil {
		return wallet.Enriched{}, fmt.Errorf("%w: balances: %v", wallet.ErrMalformedResponse, err)
	}
	data := normalize.Unwrap(v)
	if data == nil {
		return wallet.Enriched{}, nil
	}
	m, ok := data.(map[string]any)
	if !ok {
		return wallet.Enriched{}, fmt.Errorf("%w: balances: unexpected %T", wallet.ErrMalformedResponse, data)
	}
	return wallet.Enriched{
		Spendable: parseEnrichedList(m["spendable"]),
		Assets:    parseEnrichedList(m["assets"]),
		Pending:   parseEnrichedList(m["pending"]),
	}, nil
}

func parseEnrichedList(v any) []wallet.UTXO {
	items := normalize.ToSlice(v)
	out := make([]wallet.UTXO, 0, len(items))
	for _, item := range items {
		if u, ok := parseEnrichedUTXO(item); ok {
			out = append(out, u)
		}
	}
	return out
}

// parseEnrichedUTXO reads one script entry; entries without a usable
// outpoint are dropped.
func parseEnrichedUTXO(item any) (wallet.UTXO, bool) {
	m, ok := item.(map[string]any)
	if !ok {
		return wallet.UTXO{}, false
	}
	txid, voutStr, found := strings.Cut(GetStringField(m, "outpoint"), ":")
	if !found || txid == "" {
		return wallet.UTXO{}, false
	}
	vout, err := strconv.ParseUint(voutStr, 10, 32)
	if err != nil {
		return wallet.UTXO{}, false
	}

	u := wallet.UTXO{
		TxID:        txid,
		Vout:        uint32(vout),
		ValueSats:   GetUint64Field(m, "value"),
		BlockHeight: GetUint64Field(m, "height"),
	}
	for _, ins := range normalize.ToSlice(m["inscriptions"]) {
		switch t := ins.(type) {
		case string:
			u.Inscriptions = append(u.Inscriptions, t)
		case map[string]any:
			if id := GetStringField(t, "id"); id != "" {
				u.Inscriptions = append(u.Inscriptions, id)
			}
		}
	}
	for id, entry := range GetMapField(m, "ord_runes") {
		em, ok := entry.(map[string]any)
		if !ok {
			continue
		}
		amount, err := wallet.ParseAmount(GetStringField(em, "amount"))
		if err != nil || amount.IsZero() {
			continue
		}
		if u.AttachedAssets == nil {
			u.AttachedAssets = map[string]wallet.Amount{}
		}
		u.AttachedAssets[id] = amount
	}
	return u, true
}

type esploraStatus struct {
	Confirmed   bool   `json:"confirmed"`
	BlockHeight uint64 `json:"block_height"`
	BlockTime   int64  `json:"block_time"`
}

type esploraUTXO struct {
	TxID   string        `json:"txid"`
	Vout   uint32        `json:"vout"`
	Value  uint64        `json:"value"`
	Status esploraStatus `json:"status"`
}

// SpendableUTXOs lists address's outputs straight from esplora, without any
// asset tagging.
func (c *HTTPClient) SpendableUTXOs(ctx context.Context, address string) ([]wallet.UTXO, error) {
	var utxos []esploraUTXO
	if err := c.call(ctx, "", methodAddressUTXO, &utxos, address); err != nil {
		return nil, fmt.Errorf("%w: %w", wallet.ErrTransientFetch, err)
	}
	out := make([]wallet.UTXO, 0, len(utxos))
	for _, u := range utxos {
		out = append(out, wallet.UTXO{
			TxID:        u.TxID,
			Vout:        u.Vout,
			ValueSats:   u.Value,
			BlockHeight: u.Status.BlockHeight,
		})
	}
	return out, nil
}

// AssetBalances sums the alkanes balance sheets of every outpoint owned by
// address, keyed "block:tx".
func (c *HTTPClient) AssetBalances(ctx context.Context, address string) ([]wallet.AssetBalance, error) {
	var raw json.RawMessage
	params := map[string]any{"address": address, "protocolTag": protocolTagAlkanes}
	if err := c.call(ctx, "", methodProtorunes, &raw, params); err != nil {
		return nil, fmt.Errorf("%w: %w", wallet.ErrTransientFetch, err)
	}
	v, err := decodeLoose(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: protorunes: %v", wallet.ErrMalformedResponse, err)
	}
	m, _ := normalize.Normalize(v).(map[string]any)
	if m == nil {
		return []wallet.AssetBalance{}, nil
	}

	var order []string
	sums := map[string]wallet.Amount{}
	for _, op := range normalize.ToSlice(m["outpoints"]) {
		opm, ok := op.(map[string]any)
		if !ok {
			continue
		}
		cached := GetMapField(GetMapField(opm, "balance_sheet"), "cached")
		for _, entry := range normalize.ToSlice(cached["balances"]) {
			em, ok := entry.(map[string]any)
			if !ok {
				continue
			}
			block, tx := GetStringField(em, "block"), GetStringField(em, "tx")
			if block == "" || tx == "" {
				continue
			}
			amount, err := wallet.ParseAmount(GetStringField(em, "amount"))
			if err != nil {
				return nil, err
			}
			id := block + ":" + tx
			prev, seen := sums[id]
			if !seen {
				order = append(order, id)
			}
			sum, err := prev.Add(amount)
			if err != nil {
				return nil, err
			}
			sums[id] = sum
		}
	}

	out := make([]wallet.AssetBalance, 0, len(order))
	for _, id := range order {
		out = append(out, wallet.AssetBalance{AssetID: id, Amount: sums[id]})
	}
	return out, nil
}

type esploraPrevout struct {
	Address string `json:"scriptpubkey_address"`
	Value   uint64 `json:"value"`
}

type esploraVin struct {
	TxID       string          `json:"txid"`
	Vout       uint32          `json:"vout"`
	Prevout    *esploraPrevout `json:"prevout"`
	Sequence   uint32          `json:"sequence"`
	IsCoinbase bool            `json:"is_coinbase"`
}

type esploraVout struct {
	Address string `json:"scriptpubkey_address"`
	Value   uint64 `json:"value"`
	Script  string `json:"scriptpubkey"`
	Type    string `json:"scriptpubkey_type"`
}

type esploraTx struct {
	TxID   string        `json:"txid"`
	Vin    []esploraVin  `json:"vin"`
	Vout   []esploraVout `json:"vout"`
	Status esploraStatus `json:"status"`
	Fee    uint64        `json:"fee"`
	Weight uint64        `json:"weight"`
	Size   uint64        `json:"size"`
}

// MempoolSpent returns the value of address's confirmed outputs that mempool
// transactions are spending. Inputs chaining from other mempool transactions
// are not counted, their value was never confirmed.
func (c *HTTPClient) MempoolSpent(ctx context.Context, address string) (uint64, error) {
	var txs []esploraTx
	if err := c.call(ctx, "", methodAddressMempool, &txs, address); err != nil {
		return 0, fmt.Errorf("%w: %w", wallet.ErrTransientFetch, err)
	}
	inMempool := make(map[string]struct{}, len(txs))
	for _, tx := range txs {
		inMempool[tx.TxID] = struct{}{}
	}
	var spent uint64
	for _, tx := range txs {
		for _, in := range tx.Vin {
			if in.Prevout == nil || in.Prevout.Address != address {
				continue
			}
			if _, chained := inMempool[in.TxID]; chained {
				continue
			}
			spent += in.Prevout.Value
		}
	}
	return spent, nil
}
