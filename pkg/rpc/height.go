package rpc

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/subfrost/walletd/pkg/wallet"
)

// MetashrewHeight returns the indexer height. The provider answers with a
// decimal string; plain numbers are accepted too.
func (c *HTTPClient) MetashrewHeight(ctx context.Context) (uint64, error) {
	return c.height(ctx, "", methodMetashrewHeight)
}

// BlockCount returns the node's block count (getblockcount).
func (c *HTTPClient) BlockCount(ctx context.Context) (uint64, error) {
	return c.height(ctx, "", methodBlockCount)
}

// EsploraTipHeight returns the esplora tip height.
func (c *HTTPClient) EsploraTipHeight(ctx context.Context) (uint64, error) {
	return c.height(ctx, "", methodEsploraTip)
}

func (c *HTTPClient) height(ctx context.Context, path, method string) (uint64, error) {
	var raw json.RawMessage
	if err := c.call(ctx, path, method, &raw); err != nil {
		return 0, fmt.Errorf("%w: %w", wallet.ErrTransientFetch, err)
	}
	return parseHeight(method, raw)
}

// parseHeight accepts a JSON number or a decimal string. Zero is rejected so
// that a fallback chain moves on to the next source.
func parseHeight(method string, raw json.RawMessage) (uint64, error) {
	v, err := decodeLoose(raw)
	if err != nil {
		return 0, fmt.Errorf("%w: %s: %v", wallet.ErrMalformedResponse, method, err)
	}
	if s, ok := v.(string); ok {
		v = strings.TrimSpace(s)
	}
	h := toUint64(v)
	if h == 0 {
		return 0, fmt.Errorf("%w: %s: unusable height %s", wallet.ErrMalformedResponse, method, string(raw))
	}
	return h, nil
}

// NetworkSlug maps a network name onto the bootstrap route segment. Unknown
// networks map to mainnet.
func NetworkSlug(network string) string {
	switch network {
	case "mainnet", "testnet", "signet":
		return network
	case "regtest", "subfrost-regtest", "regtest-local":
		return "regtest"
	}
	return "mainnet"
}

// BootstrapHeight asks the bootstrap HTTP endpoint for the indexer height of
// network. It is used while the provider is not ready yet.
func (c *HTTPClient) BootstrapHeight(ctx context.Context, network string) (uint64, error) {
	return c.height(ctx, bootstrapPathPrefix+NetworkSlug(network), methodMetashrewHeight)
}
