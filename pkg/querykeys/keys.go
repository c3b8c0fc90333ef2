// Package querykeys builds the deterministic, network-scoped cache keys used
// by every cached resource. Consumers never construct keys by hand.
//
// Every key is a tuple [domain, network, ...params]. The network is always at
// index 1 so invalidation predicates can filter by it. List parameters are
// de-duplicated and sorted before being folded into a single slot, so the
// key of {a,b} equals the key of {b,a}.
package querykeys

import (
	"encoding/json"

	"github.com/subfrost/walletd/pkg/utils"
)

// Domain tags (index 0 of every key).
const (
	DomainHeight = "height"

	DomainBTCPrice     = "btc-price"
	DomainFrbtcPremium = "frbtc-premium"
	DomainTokenDisplay = "token-display"
	DomainFeeEstimates = "fee-estimates"

	DomainEnrichedWallet     = "enriched-wallet"
	DomainBTCBalance         = "btc-balance"
	DomainSellableCurrencies = "sellable-currencies"

	DomainPoolsMetadata = "pools-metadata"

	DomainTransactions = "transaction-history"
)

const (
	domainIndex  = 0
	networkIndex = 1
)

// Key is an ordered cache key tuple.
type Key []string

func newKey(domain, network string, params ...string) Key {
	k := make(Key, 0, 2+len(params))
	k = append(k, domain, network)
	return append(k, params...)
}

// Domain returns the domain tag, or "" for a malformed key.
func (k Key) Domain() string {
	if len(k) <= domainIndex {
		return ""
	}
	return k[domainIndex]
}

// Network returns the network token, or "" for a malformed key.
func (k Key) Network() string {
	if len(k) <= networkIndex {
		return ""
	}
	return k[networkIndex]
}

// String returns a collision-free encoding of the tuple, used as storage id.
func (k Key) String() string {
	b, _ := json.Marshal([]string(k))
	return string(b)
}

// Equal reports whether both keys have identical tuples.
func (k Key) Equal(o Key) bool {
	if len(k) != len(o) {
		return false
	}
	for i := range k {
		if k[i] != o[i] {
			return false
		}
	}
	return true
}

// HasDomain returns a predicate matching keys in the given domain.
func HasDomain(domain string) func(Key) bool {
	return func(k Key) bool { return k.Domain() == domain }
}

// ForNetwork returns a predicate matching keys scoped to network.
func ForNetwork(network string) func(Key) bool {
	return func(k Key) bool { return k.Network() == network }
}

func list(values []string) string { return utils.SortedJoin(values) }

// Height

func Height(network string) Key { return newKey(DomainHeight, network) }

// Market data

func BTCPrice(network string) Key { return newKey(DomainBTCPrice, network) }

func FrbtcPremium(network, frbtcID string) Key {
	return newKey(DomainFrbtcPremium, network, frbtcID)
}

func TokenDisplay(network string, tokenIDs []string) Key {
	return newKey(DomainTokenDisplay, network, list(tokenIDs))
}

func FeeEstimates(network string) Key { return newKey(DomainFeeEstimates, network) }

// Account / wallet

func EnrichedWallet(network string, addresses []string) Key {
	return newKey(DomainEnrichedWallet, network, list(addresses))
}

func BTCBalance(network, address string) Key {
	return newKey(DomainBTCBalance, network, address)
}

// SellableCurrencies keys on the primary wallet address, the full address set
// and the optional allow-list. A nil allow-list and an empty one are distinct.
func SellableCurrencies(network, walletAddress string, addresses, tokenIDs []string) Key {
	tokens := "*"
	if tokenIDs != nil {
		tokens = list(tokenIDs)
	}
	return newKey(DomainSellableCurrencies, network, walletAddress, list(addresses), tokens)
}

// Pools

func PoolsMetadata(network string, poolIDs []string) Key {
	return newKey(DomainPoolsMetadata, network, list(poolIDs))
}

// History

func Transactions(network, address string) Key {
	return newKey(DomainTransactions, network, address)
}
