package rpc

import (
	"context"
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/holiman/uint256"

	"github.com/subfrost/walletd/pkg/normalize"
	"github.com/subfrost/walletd/pkg/wallet"
)

// Contract opcodes read through alkanes_simulate.
const (
	opcodeGetPremium  = 104
	opcodePoolDetails = 999
)

const (
	// PremiumScale is the premium value of a 100% fee.
	PremiumScale = 100_000_000
	// premiumPerThousand converts a premium into a fee per 1000 units.
	premiumPerThousand = 100_000
	// simulateHeight is the height handed to read-only simulations.
	simulateHeight = 1_000_000
)

// FrbtcPremium is the wrap and unwrap fee read from the frBTC contract.
type FrbtcPremium struct {
	Premium              uint64  `json:"premium"`
	WrapFeePerThousand   float64 `json:"wrapFeePerThousand"`
	UnwrapFeePerThousand float64 `json:"unwrapFeePerThousand"`
	IsLive               bool    `json:"isLive"`
	Error                string  `json:"error,omitempty"`
}

// PoolMetadata describes one AMM pool as reported by the pool contract.
type PoolMetadata struct {
	PoolID      string        `json:"poolId"`
	Name        string        `json:"name"`
	TokenA      string        `json:"tokenA"`
	TokenB      string        `json:"tokenB"`
	ReserveA    wallet.Amount `json:"reserveA"`
	ReserveB    wallet.Amount `json:"reserveB"`
	TotalSupply wallet.Amount `json:"totalSupply"`
}

type alkaneID struct {
	Block string `json:"block"`
	Tx    string `json:"tx"`
}

func parseAlkaneID(id string) (alkaneID, error) {
	block, tx, ok := strings.Cut(id, ":")
	if !ok {
		return alkaneID{}, fmt.Errorf("alkane id %q: want block:tx", id)
	}
	if _, err := strconv.ParseUint(block, 10, 64); err != nil {
		return alkaneID{}, fmt.Errorf("alkane id %q: block: %w", id, err)
	}
	if _, err := strconv.ParseUint(tx, 10, 64); err != nil {
		return alkaneID{}, fmt.Errorf("alkane id %q: tx: %w", id, err)
	}
	return alkaneID{Block: block, Tx: tx}, nil
}

type simulateRequest struct {
	Target        alkaneID `json:"target"`
	Inputs        []string `json:"inputs"`
	Alkanes       []any    `json:"alkanes"`
	Transaction   string   `json:"transaction"`
	Block         string   `json:"block"`
	Height        string   `json:"height"`
	TxIndex       int      `json:"txindex"`
	Vout          int      `json:"vout"`
	Pointer       int      `json:"pointer"`
	RefundPointer int      `json:"refundPointer"`
}

// simulate runs a read-only call of opcode against contract and returns the
// raw bytes of the execution result.
func (c *HTTPClient) simulate(ctx context.Context, contract string, opcode int) ([]byte, error) {
	target, err := parseAlkaneID(contract)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", wallet.ErrMalformedResponse, err)
	}
	req := simulateRequest{
		Target:      target,
		Inputs:      []string{strconv.Itoa(opcode)},
		Alkanes:     []any{},
		Transaction: "0x",
		Block:       "0x",
		Height:      strconv.Itoa(simulateHeight),
	}
	var raw json.RawMessage
	if err := c.call(ctx, "", methodSimulate, &raw, req); err != nil {
		return nil, fmt.Errorf("%w: %w", wallet.ErrTransientFetch, err)
	}
	v, err := decodeLoose(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: simulate: %v", wallet.ErrMalformedResponse, err)
	}
	m, _ := normalize.Normalize(v).(map[string]any)
	exec := GetMapField(m, "execution")
	if exec == nil {
		return nil, fmt.Errorf("%w: simulate %s/%d: no execution", wallet.ErrMalformedResponse, contract, opcode)
	}
	if msg := GetStringField(exec, "error"); msg != "" {
		return nil, fmt.Errorf("%w: simulate %s/%d: %s", wallet.ErrTransientFetch, contract, opcode, msg)
	}
	data, err := executionBytes(exec["data"])
	if err != nil {
		return nil, fmt.Errorf("%w: simulate %s/%d: %v", wallet.ErrMalformedResponse, contract, opcode, err)
	}
	return data, nil
}

// executionBytes accepts the two shapes providers use for execution data: a
// 0x-prefixed hex string or an array of byte values.
func executionBytes(v any) ([]byte, error) {
	switch t := v.(type) {
	case string:
		return hex.DecodeString(strings.TrimPrefix(t, "0x"))
	case []any:
		out := make([]byte, len(t))
		for i, b := range t {
			n := toUint64(b)
			if n > 0xff {
				return nil, fmt.Errorf("byte %d out of range: %d", i, n)
			}
			out[i] = byte(n)
		}
		return out, nil
	}
	return nil, fmt.Errorf("no data")
}

// readU128 decodes a little-endian u128 from the first 16 bytes of b.
func readU128(b []byte) (*uint256.Int, error) {
	if len(b) < 16 {
		return nil, fmt.Errorf("need 16 bytes for u128, have %d", len(b))
	}
	be := make([]byte, 16)
	for i := 0; i < 16; i++ {
		be[15-i] = b[i]
	}
	return new(uint256.Int).SetBytes(be), nil
}

func u128Amount(b []byte) (wallet.Amount, error) {
	v, err := readU128(b)
	if err != nil {
		return wallet.Amount{}, err
	}
	return wallet.ParseAmount(v.Dec())
}

func u128ID(b []byte) (string, error) {
	block, err := readU128(b)
	if err != nil {
		return "", err
	}
	tx, err := readU128(b[16:])
	if err != nil {
		return "", err
	}
	return block.Dec() + ":" + tx.Dec(), nil
}

// FrbtcPremium reads the current premium of the frBTC contract.
func (c *HTTPClient) FrbtcPremium(ctx context.Context, frbtcID string) (FrbtcPremium, error) {
	data, err := c.simulate(ctx, frbtcID, opcodeGetPremium)
	if err != nil {
		return FrbtcPremium{}, err
	}
	v, err := readU128(data)
	if err != nil {
		return FrbtcPremium{}, fmt.Errorf("%w: premium: %v", wallet.ErrMalformedResponse, err)
	}
	if !v.IsUint64() || v.Uint64() > PremiumScale {
		return FrbtcPremium{}, fmt.Errorf("%w: premium %s above %d", wallet.ErrMalformedResponse, v.Dec(), PremiumScale)
	}
	premium := v.Uint64()
	perThousand := float64(premium) / premiumPerThousand
	return FrbtcPremium{
		Premium:              premium,
		WrapFeePerThousand:   perThousand,
		UnwrapFeePerThousand: perThousand,
		IsLive:               true,
	}, nil
}

// PoolDetails reads the token pair, reserves and name of an AMM pool. The
// layout is token A, token B (block and tx each), reserve A, reserve B and
// total supply as u128 values, then an optional length-prefixed name.
func (c *HTTPClient) PoolDetails(ctx context.Context, poolID string) (PoolMetadata, error) {
	data, err := c.simulate(ctx, poolID, opcodePoolDetails)
	if err != nil {
		return PoolMetadata{}, err
	}
	meta, err := decodePoolDetails(poolID, data)
	if err != nil {
		return PoolMetadata{}, fmt.Errorf("%w: pool %s: %v", wallet.ErrMalformedResponse, poolID, err)
	}
	return meta, nil
}

const poolDetailsFixed = 7 * 16

func decodePoolDetails(poolID string, b []byte) (PoolMetadata, error) {
	if len(b) < poolDetailsFixed {
		return PoolMetadata{}, fmt.Errorf("need %d bytes, have %d", poolDetailsFixed, len(b))
	}
	meta := PoolMetadata{PoolID: poolID}
	var err error
	if meta.TokenA, err = u128ID(b[0:32]); err != nil {
		return PoolMetadata{}, err
	}
	if meta.TokenB, err = u128ID(b[32:64]); err != nil {
		return PoolMetadata{}, err
	}
	if meta.ReserveA, err = u128Amount(b[64:80]); err != nil {
		return PoolMetadata{}, err
	}
	if meta.ReserveB, err = u128Amount(b[80:96]); err != nil {
		return PoolMetadata{}, err
	}
	if meta.TotalSupply, err = u128Amount(b[96:112]); err != nil {
		return PoolMetadata{}, err
	}
	rest := b[poolDetailsFixed:]
	if len(rest) >= 4 {
		n := int(binary.LittleEndian.Uint32(rest))
		if n > len(rest)-4 {
			return PoolMetadata{}, fmt.Errorf("name length %d exceeds %d remaining bytes", n, len(rest)-4)
		}
		meta.Name = string(rest[4 : 4+n])
	}
	return meta, nil
}
