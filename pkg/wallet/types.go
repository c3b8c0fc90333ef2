package wallet

import (
	"encoding/json"
	"errors"
	"sort"

	"github.com/shopspring/decimal"
)

var (
	// ErrTransientFetch covers network errors and timeouts of a capability
	// call. It is always recovered through a fallback or an empty default.
	ErrTransientFetch = errors.New("transient fetch failure")
	// ErrMalformedResponse marks an unexpected shape returned by a
	// capability. It is logged and handled like ErrTransientFetch.
	ErrMalformedResponse = errors.New("malformed response")
)

// AddressKind classifies a wallet address (e.g. native segwit, taproot).
type AddressKind string

const (
	KindSegwit  AddressKind = "segwit"
	KindTaproot AddressKind = "taproot"
)

// WalletAddress is one (kind, address) pair of a wallet account.
type WalletAddress struct {
	Kind    AddressKind `json:"kind"`
	Address string      `json:"address"`
}

// UTXO is an unspent output as seen by the wallet.
type UTXO struct {
	TxID           string            `json:"txid"`
	Vout           uint32            `json:"vout"`
	ValueSats      uint64            `json:"value"`
	Address        string            `json:"address"`
	Confirmed      bool              `json:"confirmed"`
	BlockHeight    uint64            `json:"blockHeight,omitempty"`
	AttachedAssets map[string]Amount `json:"attachedAssets,omitempty"`
	Inscriptions   []string          `json:"inscriptions,omitempty"`
}

func (u UTXO) clone() UTXO {
	out := u
	if u.AttachedAssets != nil {
		out.AttachedAssets = make(map[string]Amount, len(u.AttachedAssets))
		for k, v := range u.AttachedAssets {
			out.AttachedAssets[k] = v
		}
	}
	if u.Inscriptions != nil {
		out.Inscriptions = append([]string(nil), u.Inscriptions...)
	}
	return out
}

// Enriched is the enrichment capability's view of one address.
type Enriched struct {
	Spendable []UTXO `json:"spendable"`
	Assets    []UTXO `json:"assets"`
	Pending   []UTXO `json:"pending"`
}

// AssetBalance is the balance of one non-native asset.
type AssetBalance struct {
	AssetID        string   `json:"assetId"`
	Symbol         string   `json:"symbol"`
	Name           string   `json:"name"`
	Decimals       int      `json:"decimals"`
	Amount         Amount   `json:"amount"`
	PriceUSD       *float64 `json:"priceUsd,omitempty"`
	PriceInSatoshi *float64 `json:"priceInSatoshi,omitempty"`
}

// Display returns the amount scaled by Decimals.
func (b AssetBalance) Display() decimal.Decimal { return b.Amount.Decimal(b.Decimals) }

// MarshalJSON adds the decimal-scaled amount and, when priced, its USD value.
func (b AssetBalance) MarshalJSON() ([]byte, error) {
	type plain AssetBalance
	display := b.Display()
	return json.Marshal(struct {
		plain
		Display  string  `json:"display"`
		ValueUSD *string `json:"valueUsd,omitempty"`
	}{plain(b), display.String(), usdValue(display, b.PriceUSD)})
}

// usdValue renders amount*price to cents.
func usdValue(amount decimal.Decimal, price *float64) *string {
	if price == nil {
		return nil
	}
	v := amount.Mul(decimal.NewFromFloat(*price)).StringFixed(2)
	return &v
}

// TxIDSet is a set of transaction ids; JSON encodes it as a sorted list.
type TxIDSet map[string]struct{}

func (s TxIDSet) Add(txid string) { s[txid] = struct{}{} }

func (s TxIDSet) Has(txid string) bool {
	_, ok := s[txid]
	return ok
}

func (s TxIDSet) Len() int { return len(s) }

// Sorted returns the ids in ascending order.
func (s TxIDSet) Sorted() []string {
	out := make([]string, 0, len(s))
	for id := range s {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

func (s TxIDSet) MarshalJSON() ([]byte, error) { return json.Marshal(s.Sorted()) }

// WalletSnapshot is one point-in-time aggregation over every wallet address.
// It is built fresh on each call and never shares references with another
// snapshot.
type WalletSnapshot struct {
	PerKindTotals         map[AddressKind]uint64  `json:"perKindTotals"`
	SpendableByKind       map[AddressKind]uint64  `json:"spendableByKind"`
	PendingByKind         map[AddressKind]uint64  `json:"pendingByKind"`
	PendingOutgoingByKind map[AddressKind]uint64  `json:"pendingOutgoingByKind"`
	CombinedTotal         uint64                  `json:"combinedTotal"`
	SpendableTotal        uint64                  `json:"spendableTotal"`
	LockedInAssetsTotal   uint64                  `json:"lockedInAssetsTotal"`
	PendingTotal          uint64                  `json:"pendingTotal"`
	PendingOutgoingTotal  uint64                  `json:"pendingOutgoingTotal"`
	PendingTxIDsByKind    map[AddressKind]TxIDSet `json:"pendingTxIdsByKind"`
	AssetBalances         []AssetBalance          `json:"assetBalances"`
	UTXOsByKind           map[AddressKind][]UTXO  `json:"utxosByKind"`
	UTXOsCombined         []UTXO                  `json:"utxosCombined"`
}

// NewSnapshot returns an all-zero snapshot with empty, non-nil collections.
func NewSnapshot() *WalletSnapshot {
	return &WalletSnapshot{
		PerKindTotals:         map[AddressKind]uint64{},
		SpendableByKind:       map[AddressKind]uint64{},
		PendingByKind:         map[AddressKind]uint64{},
		PendingOutgoingByKind: map[AddressKind]uint64{},
		PendingTxIDsByKind:    map[AddressKind]TxIDSet{},
		AssetBalances:         []AssetBalance{},
		UTXOsByKind:           map[AddressKind][]UTXO{},
		UTXOsCombined:         []UTXO{},
	}
}

// PendingTxCount returns the number of distinct pending txids for kind.
func (s *WalletSnapshot) PendingTxCount(kind AddressKind) int {
	return s.PendingTxIDsByKind[kind].Len()
}

// Asset returns the balance for assetID, if present.
func (s *WalletSnapshot) Asset(assetID string) (AssetBalance, bool) {
	for _, b := range s.AssetBalances {
		if b.AssetID == assetID {
			return b, true
		}
	}
	return AssetBalance{}, false
}
