package controller

import (
	"net/http"
	"strings"

	"github.com/subfrost/walletd/pkg/cache"
	"github.com/subfrost/walletd/pkg/queries"
	"github.com/subfrost/walletd/pkg/wallet"
)

// Height returns the current chain height.
func (c *Controller) Height(w http.ResponseWriter, r *http.Request) {
	h, err := cache.Fetch(r.Context(), c.App.Cache, queries.Height(c.App.Deps))
	c.writeResult(w, map[string]any{"network": c.App.Network, "height": h}, err)
}

// WalletBalances aggregates the wallet snapshot over ?segwit= and ?taproot=.
func (c *Controller) WalletBalances(w http.ResponseWriter, r *http.Request) {
	addrs := walletAddresses(r)
	if len(addrs) == 0 {
		writeError(w, http.StatusBadRequest, "segwit or taproot address is required")
		return
	}
	snap, err := cache.Fetch(r.Context(), c.App.Cache, queries.EnrichedWallet(c.App.Deps, addrs))
	c.writeResult(w, snap, err)
}

// BTCBalance returns ?address='s spendable satoshis.
func (c *Controller) BTCBalance(w http.ResponseWriter, r *http.Request) {
	address := r.URL.Query().Get("address")
	if address == "" {
		writeError(w, http.StatusBadRequest, "address is required")
		return
	}
	sats, err := cache.Fetch(r.Context(), c.App.Cache, queries.BTCBalance(c.App.Deps, address))
	c.writeResult(w, map[string]any{"address": address, "sats": sats}, err)
}

// SellableCurrencies lists ?address='s sellable assets, optionally across the
// wallet's other addresses and restricted to ?tokens=.
func (c *Controller) SellableCurrencies(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	req := wallet.SellableRequest{WalletAddress: q.Get("address")}
	if req.WalletAddress == "" {
		writeError(w, http.StatusBadRequest, "address is required")
		return
	}
	for _, a := range walletAddresses(r) {
		req.Addresses = append(req.Addresses, a.Address)
	}
	if q.Has("tokens") {
		req.AllowList = splitList(q.Get("tokens"))
		if req.AllowList == nil {
			req.AllowList = []string{}
		}
	}
	currencies, err := cache.Fetch(r.Context(), c.App.Cache, queries.SellableCurrencies(c.App.Deps, req))
	c.writeResult(w, currencies, err)
}

// TransactionHistory returns ?address='s history.
func (c *Controller) TransactionHistory(w http.ResponseWriter, r *http.Request) {
	address := r.URL.Query().Get("address")
	if address == "" {
		writeError(w, http.StatusBadRequest, "address is required")
		return
	}
	txs, err := cache.Fetch(r.Context(), c.App.Cache, queries.TransactionHistory(c.App.Deps, address))
	c.writeResult(w, txs, err)
}

func (c *Controller) FeeEstimates(w http.ResponseWriter, r *http.Request) {
	fees, err := cache.Fetch(r.Context(), c.App.Cache, queries.FeeEstimates(c.App.Deps))
	c.writeResult(w, fees, err)
}

func (c *Controller) BTCPrice(w http.ResponseWriter, r *http.Request) {
	price, err := cache.Fetch(r.Context(), c.App.Cache, queries.BTCPrice(c.App.Deps))
	c.writeResult(w, map[string]any{"usd": price}, err)
}

// TokenDisplay resolves display metadata for ?ids=.
func (c *Controller) TokenDisplay(w http.ResponseWriter, r *http.Request) {
	ids := splitList(r.URL.Query().Get("ids"))
	if len(ids) == 0 {
		writeError(w, http.StatusBadRequest, "ids is required")
		return
	}
	info, err := cache.Fetch(r.Context(), c.App.Cache, queries.TokenDisplay(c.App.Deps, ids))
	c.writeResult(w, info, err)
}

// FrbtcPremium returns the wrap premium of ?id=, frBTC by default.
func (c *Controller) FrbtcPremium(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(r.URL.Query().Get("id"))
	if id == "" {
		id = wallet.FrbtcID
	}
	premium, err := cache.Fetch(r.Context(), c.App.Cache, queries.FrbtcPremium(c.App.Deps, id))
	c.writeResult(w, premium, err)
}

// PoolsMetadata returns the details of the pools in ?ids=.
func (c *Controller) PoolsMetadata(w http.ResponseWriter, r *http.Request) {
	ids := splitList(r.URL.Query().Get("ids"))
	if len(ids) == 0 {
		writeError(w, http.StatusBadRequest, "ids is required")
		return
	}
	pools, err := cache.Fetch(r.Context(), c.App.Cache, queries.PoolsMetadata(c.App.Deps, ids))
	c.writeResult(w, pools, err)
}

func walletAddresses(r *http.Request) []wallet.WalletAddress {
	q := r.URL.Query()
	var out []wallet.WalletAddress
	if a := strings.TrimSpace(q.Get("segwit")); a != "" {
		out = append(out, wallet.WalletAddress{Kind: wallet.KindSegwit, Address: a})
	}
	if a := strings.TrimSpace(q.Get("taproot")); a != "" {
		out = append(out, wallet.WalletAddress{Kind: wallet.KindTaproot, Address: a})
	}
	return out
}

func splitList(v string) []string {
	var out []string
	for _, s := range strings.Split(v, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
