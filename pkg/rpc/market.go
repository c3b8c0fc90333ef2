package rpc

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/subfrost/walletd/pkg/normalize"
	"github.com/subfrost/walletd/pkg/wallet"
)

// FeeEstimates are fee rates in sat/vB.
type FeeEstimates struct {
	Fast        float64   `json:"fast"`
	Medium      float64   `json:"medium"`
	Slow        float64   `json:"slow"`
	LastUpdated time.Time `json:"lastUpdated"`
}

// Default fee rates used when the estimator has no answer for a target.
const (
	DefaultFastFee   = 25
	DefaultMediumFee = 10
	DefaultSlowFee   = 2
)

// Confirmation targets, in blocks, read from the esplora estimates.
const (
	fastTarget   = "1"
	mediumTarget = "6"
	slowTarget   = "144"
)

// FeeEstimates maps esplora's target->rate table onto fast/medium/slow.
// Every rate is at least 1 sat/vB.
func (c *HTTPClient) FeeEstimates(ctx context.Context) (FeeEstimates, error) {
	var table map[string]float64
	if err := c.call(ctx, "", methodFeeEstimates, &table); err != nil {
		return FeeEstimates{}, fmt.Errorf("%w: %w", wallet.ErrTransientFetch, err)
	}
	rate := func(target string, def float64) float64 {
		r, ok := table[target]
		if !ok || r <= 0 {
			r = def
		}
		return math.Max(1, r)
	}
	return FeeEstimates{
		Fast:        rate(fastTarget, DefaultFastFee),
		Medium:      rate(mediumTarget, DefaultMediumFee),
		Slow:        rate(slowTarget, DefaultSlowFee),
		LastUpdated: time.Now().UTC(),
	}, nil
}

// BTCPrice returns the BTC/USD price. The provider answers with a bare number
// or an object carrying "usd" or "price".
func (c *HTTPClient) BTCPrice(ctx context.Context) (float64, error) {
	var raw json.RawMessage
	if err := c.call(ctx, "", methodBitcoinPrice, &raw); err != nil {
		return 0, fmt.Errorf("%w: %w", wallet.ErrTransientFetch, err)
	}
	v, err := decodeLoose(raw)
	if err != nil {
		return 0, fmt.Errorf("%w: price: %v", wallet.ErrMalformedResponse, err)
	}
	var price float64
	switch t := normalize.Normalize(v).(type) {
	case map[string]any:
		price = toFloat64(t["usd"])
		if price == 0 {
			price = toFloat64(t["price"])
		}
	default:
		price = toFloat64(t)
	}
	if price <= 0 {
		return 0, fmt.Errorf("%w: price: %s", wallet.ErrMalformedResponse, string(raw))
	}
	return price, nil
}

// ReflectToken asks the provider for an alkane's name, symbol and decimals.
func (c *HTTPClient) ReflectToken(ctx context.Context, assetID string) (wallet.TokenInfo, error) {
	var raw json.RawMessage
	if err := c.call(ctx, "", methodReflect, &raw, assetID); err != nil {
		return wallet.TokenInfo{}, fmt.Errorf("%w: %w", wallet.ErrTransientFetch, err)
	}
	v, err := decodeLoose(raw)
	if err != nil {
		return wallet.TokenInfo{}, fmt.Errorf("%w: reflect: %v", wallet.ErrMalformedResponse, err)
	}
	m, ok := normalize.Normalize(v).(map[string]any)
	if !ok {
		return wallet.TokenInfo{}, fmt.Errorf("%w: reflect %s: not an object", wallet.ErrMalformedResponse, assetID)
	}
	info := wallet.TokenInfo{
		Name:     strings.TrimSpace(strings.ReplaceAll(GetStringField(m, "name"), "SUBFROST BTC", "frBTC")),
		Symbol:   strings.TrimSpace(GetStringField(m, "symbol")),
		Decimals: int(GetUint64Field(m, "decimals")),
	}
	if info.Name == "" && info.Symbol == "" {
		return wallet.TokenInfo{}, fmt.Errorf("%w: reflect %s: no metadata", wallet.ErrMalformedResponse, assetID)
	}
	return info, nil
}
