package wallet

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/alitto/pond/v2"
	"go.uber.org/zap"
)

// PriceInfo carries optional pricing for a sellable currency.
type PriceInfo struct {
	Price             *float64 `json:"price,omitempty"`
	IDClubMarketplace bool     `json:"idclubMarketplace"`
}

// Currency is one sellable asset row.
type Currency struct {
	AssetID   string    `json:"id"`
	Address   string    `json:"address"`
	Name      string    `json:"name"`
	Symbol    string    `json:"symbol"`
	Decimals  int       `json:"decimals"`
	Balance   Amount    `json:"balance"`
	PriceInfo PriceInfo `json:"priceInfo"`
}

// MarshalJSON adds the decimal-scaled balance and, when priced, its USD value.
func (c Currency) MarshalJSON() ([]byte, error) {
	type plain Currency
	display := c.Balance.Decimal(c.Decimals)
	return json.Marshal(struct {
		plain
		Display  string  `json:"display"`
		ValueUSD *string `json:"valueUsd,omitempty"`
	}{plain(c), display.String(), usdValue(display, c.PriceInfo.Price)})
}

// SellableRequest selects the addresses and tradable ids to resolve.
type SellableRequest struct {
	// WalletAddress is the primary address; it is always queried and is
	// reported on every row.
	WalletAddress string
	Addresses     []string
	// AllowList restricts output to these ids. Nil means no restriction.
	AllowList []string
}

// SellableResolver lists the assets a wallet can sell.
type SellableResolver struct {
	assets  AssetBalancer
	tokens  TokenTable
	pool    pond.Pool
	timeout time.Duration
	logger  *zap.Logger
}

func NewSellableResolver(assets AssetBalancer, tokens TokenTable, pool pond.Pool, logger *zap.Logger) *SellableResolver {
	if tokens == nil {
		tokens = KnownTokens
	}
	if pool == nil {
		pool = pond.NewPool(8)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SellableResolver{
		assets:  assets,
		tokens:  tokens,
		pool:    pool,
		timeout: DefaultAssetTimeout,
		logger:  logger,
	}
}

// Resolve fans out over the request's addresses and returns the merged,
// filtered and sorted currency list. A failing address contributes nothing.
func (r *SellableResolver) Resolve(ctx context.Context, req SellableRequest) []Currency {
	addrs := req.Addresses
	if req.WalletAddress != "" {
		addrs = append([]string{req.WalletAddress}, addrs...)
	}
	addrs = dedupStrings(addrs)

	var allow map[string]struct{}
	if req.AllowList != nil {
		allow = make(map[string]struct{}, len(req.AllowList))
		for _, id := range req.AllowList {
			allow[id] = struct{}{}
		}
	}

	results := make([][]AssetBalance, len(addrs))
	if r.assets != nil {
		group := r.pool.NewGroupContext(ctx)
		groupCtx := group.Context()
		for i := range addrs {
			group.Submit(func() {
				if groupCtx.Err() != nil {
					return
				}
				balances, err := callWithTimeout(groupCtx, r.timeout, func(ctx context.Context) ([]AssetBalance, error) {
					return r.assets.AssetBalances(ctx, addrs[i])
				})
				if err != nil {
					r.logger.Warn("[sellable] asset balances failed", zap.String("address", addrs[i]), zap.Error(err))
					return
				}
				results[i] = balances
			})
		}
		if err := group.Wait(); err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, pond.ErrGroupStopped) {
			r.logger.Warn("[sellable] fan-out encountered error", zap.Error(err))
		}
	}

	byID := map[string]*Currency{}
	var order []string
	for _, balances := range results {
		for _, b := range balances {
			if b.AssetID == "" {
				continue
			}
			if allow != nil {
				if _, ok := allow[b.AssetID]; !ok {
					continue
				}
			}
			c, ok := byID[b.AssetID]
			if !ok {
				c = r.newCurrency(req.WalletAddress, b)
				byID[b.AssetID] = c
				order = append(order, b.AssetID)
			}
			sum, err := c.Balance.Add(b.Amount)
			if err != nil {
				r.logger.Error("[sellable] dropping asset amount", zap.String("assetId", b.AssetID), zap.Error(err))
				continue
			}
			c.Balance = sum
		}
	}

	out := make([]Currency, 0, len(order))
	for _, id := range order {
		out = append(out, *byID[id])
	}
	SortCurrencies(out)
	return out
}

func (r *SellableResolver) newCurrency(wallet string, b AssetBalance) *Currency {
	c := &Currency{AssetID: b.AssetID, Address: wallet, Decimals: DefaultDecimals}
	if b.Decimals > 0 {
		c.Decimals = b.Decimals
	}
	switch info, ok := r.tokens.Lookup(b.AssetID); {
	case ok:
		c.Name, c.Symbol, c.Decimals = info.Name, info.Symbol, info.Decimals
	case b.Name != "" || b.Symbol != "":
		c.Name, c.Symbol = b.Name, b.Symbol
	default:
		c.Name = "Token " + b.AssetID
		if _, after, found := strings.Cut(b.AssetID, ":"); found {
			c.Symbol = after
		} else {
			c.Symbol = b.AssetID
		}
	}
	if b.PriceUSD != nil {
		p := *b.PriceUSD
		c.PriceInfo.Price = &p
	}
	return c
}

// SortCurrencies orders by balance descending, then name, then asset id.
func SortCurrencies(cs []Currency) {
	sort.SliceStable(cs, func(i, j int) bool {
		if c := cs[i].Balance.Cmp(cs[j].Balance); c != 0 {
			return c > 0
		}
		if cs[i].Name != cs[j].Name {
			return cs[i].Name < cs[j].Name
		}
		return cs[i].AssetID < cs[j].AssetID
	})
}

func dedupStrings(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s == "" {
			continue
		}
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}
