package rpc

import (
	"context"

	"github.com/subfrost/walletd/pkg/wallet"
)

// Provider captures every provider call walletd makes. HTTPClient is the
// production implementation.
type Provider interface {
	wallet.Enricher
	wallet.UTXOLister
	wallet.AssetBalancer
	wallet.MempoolSpender
	wallet.TokenReflector

	MetashrewHeight(ctx context.Context) (uint64, error)
	BlockCount(ctx context.Context) (uint64, error)
	EsploraTipHeight(ctx context.Context) (uint64, error)

	AddressTxs(ctx context.Context, address string) ([]Transaction, error)
	FeeEstimates(ctx context.Context) (FeeEstimates, error)
	BTCPrice(ctx context.Context) (float64, error)

	FrbtcPremium(ctx context.Context, frbtcID string) (FrbtcPremium, error)
	PoolDetails(ctx context.Context, poolID string) (PoolMetadata, error)
}

// Bootstrapper reads the height before the provider is ready.
type Bootstrapper interface {
	BootstrapHeight(ctx context.Context, network string) (uint64, error)
}

// Factory produces RPC clients for a given set of endpoints.
type Factory interface {
	NewClient(endpoints []string) *HTTPClient
}

type httpFactory struct {
	opts Opts
}

// NewHTTPFactory returns a factory that builds HTTP clients with shared defaults.
func NewHTTPFactory(opts Opts) Factory {
	return &httpFactory{opts: opts}
}

func (f *httpFactory) NewClient(endpoints []string) *HTTPClient {
	o := f.opts
	o.Endpoints = endpoints
	return NewHTTPWithOpts(o)
}

var (
	_ Provider     = (*HTTPClient)(nil)
	_ Bootstrapper = (*HTTPClient)(nil)
)
