package rpc

import (
	"context"
	"fmt"
	"sync"

	"github.com/subfrost/walletd/pkg/wallet"
)

// Handle holds the provider once it is initialized. Until then Ready reports
// false and every call fails with ErrProviderUnavailable. Handle itself
// satisfies Provider, so long-lived consumers can be wired before the
// provider exists.
type Handle struct {
	mu sync.RWMutex
	p  Provider
}

func NewHandle() *Handle { return &Handle{} }

// Set installs p; nil puts the handle back into the not-ready state.
func (h *Handle) Set(p Provider) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.p = p
}

func (h *Handle) Get() (Provider, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.p, h.p != nil
}

func (h *Handle) Ready() bool {
	_, ok := h.Get()
	return ok
}

func (h *Handle) provider() (Provider, error) {
	p, ok := h.Get()
	if !ok {
		return nil, fmt.Errorf("%w: not initialized", ErrProviderUnavailable)
	}
	return p, nil
}

func (h *Handle) EnrichedUTXOs(ctx context.Context, address string) (wallet.Enriched, error) {
	p, err := h.provider()
	if err != nil {
		return wallet.Enriched{}, err
	}
	return p.EnrichedUTXOs(ctx, address)
}

func (h *Handle) SpendableUTXOs(ctx context.Context, address string) ([]wallet.UTXO, error) {
	p, err := h.provider()
	if err != nil {
		return nil, err
	}
	return p.SpendableUTXOs(ctx, address)
}

func (h *Handle) AssetBalances(ctx context.Context, address string) ([]wallet.AssetBalance, error) {
	p, err := h.provider()
	if err != nil {
		return nil, err
	}
	return p.AssetBalances(ctx, address)
}

func (h *Handle) MempoolSpent(ctx context.Context, address string) (uint64, error) {
	p, err := h.provider()
	if err != nil {
		return 0, err
	}
	return p.MempoolSpent(ctx, address)
}

func (h *Handle) ReflectToken(ctx context.Context, assetID string) (wallet.TokenInfo, error) {
	p, err := h.provider()
	if err != nil {
		return wallet.TokenInfo{}, err
	}
	return p.ReflectToken(ctx, assetID)
}

func (h *Handle) MetashrewHeight(ctx context.Context) (uint64, error) {
	p, err := h.provider()
	if err != nil {
		return 0, err
	}
	return p.MetashrewHeight(ctx)
}

func (h *Handle) BlockCount(ctx context.Context) (uint64, error) {
	p, err := h.provider()
	if err != nil {
		return 0, err
	}
	return p.BlockCount(ctx)
}

func (h *Handle) EsploraTipHeight(ctx context.Context) (uint64, error) {
	p, err := h.provider()
	if err != nil {
		return 0, err
	}
	return p.EsploraTipHeight(ctx)
}

func (h *Handle) AddressTxs(ctx context.Context, address string) ([]Transaction, error) {
	p, err := h.provider()
	if err != nil {
		return nil, err
	}
	return p.AddressTxs(ctx, address)
}

func (h *Handle) FeeEstimates(ctx context.Context) (FeeEstimates, error) {
	p, err := h.provider()
	if err != nil {
		return FeeEstimates{}, err
	}
	return p.FeeEstimates(ctx)
}

func (h *Handle) BTCPrice(ctx context.Context) (float64, error) {
	p, err := h.provider()
	if err != nil {
		return 0, err
	}
	return p.BTCPrice(ctx)
}

func (h *Handle) FrbtcPremium(ctx context.Context, frbtcID string) (FrbtcPremium, error) {
	p, err := h.provider()
	if err != nil {
		return FrbtcPremium{}, err
	}
	return p.FrbtcPremium(ctx, frbtcID)
}

func (h *Handle) PoolDetails(ctx context.Context, poolID string) (PoolMetadata, error) {
	p, err := h.provider()
	if err != nil {
		return PoolMetadata{}, err
	}
	return p.PoolDetails(ctx, poolID)
}

var _ Provider = (*Handle)(nil)
