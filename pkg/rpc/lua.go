package rpc

import (
	"bytes"
	"context"
	"crypto/sha256"
	_ "embed"
	"encoding/hex"
	"encoding/json"
)

//go:embed scripts/balances.lua
var balancesScript string

var balancesScriptHash = scriptHash(balancesScript)

func scriptHash(script string) string {
	sum := sha256.Sum256([]byte(script))
	return hex.EncodeToString(sum[:])
}

// evalScript runs a lua script on the provider. The saved-script form is
// tried first; on a miss the full source is uploaded.
func (c *HTTPClient) evalScript(ctx context.Context, script, hash string, out any, args ...any) error {
	err := c.call(ctx, "", methodLuaEvalSaved, out, append([]any{hash}, args...)...)
	if err == nil || ctx.Err() != nil {
		return err
	}
	return c.call(ctx, "", methodLuaEvalScript, out, append([]any{script}, args...)...)
}

// decodeLoose decodes raw into generic values, keeping numbers as json.Number
// so that large amounts survive intact.
func decodeLoose(raw json.RawMessage) (any, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	return v, nil
}
