package rpc

import (
	"context"
	"fmt"

	"github.com/subfrost/walletd/pkg/wallet"
)

// TxInput is one spent output of a Transaction.
type TxInput struct {
	TxID       string `json:"txid"`
	Vout       uint32 `json:"vout"`
	Address    string `json:"address"`
	Amount     uint64 `json:"amount"`
	IsCoinbase bool   `json:"isCoinbase"`
}

// TxOutput is one created output of a Transaction.
type TxOutput struct {
	Address          string `json:"address"`
	Amount           uint64 `json:"amount"`
	ScriptPubKey     string `json:"scriptPubKey"`
	ScriptPubKeyType string `json:"scriptPubKeyType"`
}

// Transaction is an address history entry.
type Transaction struct {
	TxID        string     `json:"txid"`
	BlockHeight uint64     `json:"blockHeight,omitempty"`
	BlockTime   int64      `json:"blockTime,omitempty"`
	Confirmed   bool       `json:"confirmed"`
	Fee         uint64     `json:"fee"`
	Weight      uint64     `json:"weight"`
	Size        uint64     `json:"size"`
	Inputs      []TxInput  `json:"inputs"`
	Outputs     []TxOutput `json:"outputs"`
	HasOpReturn bool       `json:"hasOpReturn"`
	IsRBF       bool       `json:"isRbf"`
	IsCoinbase  bool       `json:"isCoinbase"`
}

// rbfSequence is the highest nSequence still signalling replaceability.
const rbfSequence = 0xfffffffe

// AddressTxs returns address's transaction history, newest first as esplora
// orders it. Coinbase transactions are left out.
func (c *HTTPClient) AddressTxs(ctx context.Context, address string) ([]Transaction, error) {
	var txs []esploraTx
	if err := c.call(ctx, "", methodAddressTxs, &txs, address); err != nil {
		return nil, fmt.Errorf("%w: %w", wallet.ErrTransientFetch, err)
	}
	out := make([]Transaction, 0, len(txs))
	for _, tx := range txs {
		if tx.TxID == "" {
			continue
		}
		t := toTransaction(tx)
		if t.IsCoinbase {
			continue
		}
		out = append(out, t)
	}
	return out, nil
}

func toTransaction(tx esploraTx) Transaction {
	t := Transaction{
		TxID:        tx.TxID,
		BlockHeight: tx.Status.BlockHeight,
		BlockTime:   tx.Status.BlockTime,
		Confirmed:   tx.Status.Confirmed,
		Fee:         tx.Fee,
		Weight:      tx.Weight,
		Size:        tx.Size,
		Inputs:      make([]TxInput, 0, len(tx.Vin)),
		Outputs:     make([]TxOutput, 0, len(tx.Vout)),
	}
	for _, in := range tx.Vin {
		ti := TxInput{TxID: in.TxID, Vout: in.Vout, IsCoinbase: in.IsCoinbase}
		if in.Prevout != nil {
			ti.Address, ti.Amount = in.Prevout.Address, in.Prevout.Value
		}
		t.IsCoinbase = t.IsCoinbase || in.IsCoinbase
		t.IsRBF = t.IsRBF || in.Sequence < rbfSequence
		t.Inputs = append(t.Inputs, ti)
	}
	for _, out := range tx.Vout {
		t.HasOpReturn = t.HasOpReturn || out.Type == "op_return"
		t.Outputs = append(t.Outputs, TxOutput{
			Address:          out.Address,
			Amount:           out.Value,
			ScriptPubKey:     out.Script,
			ScriptPubKeyType: out.Type,
		})
	}
	return t
}
