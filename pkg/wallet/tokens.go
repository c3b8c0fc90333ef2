package wallet

// TokenInfo is static display metadata for an asset id.
type TokenInfo struct {
	Symbol   string `json:"symbol"`
	Name     string `json:"name"`
	Decimals int    `json:"decimals"`
}

// TokenTable maps asset ids to display metadata. It is read-only once built.
type TokenTable map[string]TokenInfo

// Lookup returns the entry for assetID.
func (t TokenTable) Lookup(assetID string) (TokenInfo, bool) {
	info, ok := t[assetID]
	return info, ok
}

// DefaultDecimals is assumed for assets nobody describes.
const DefaultDecimals = 8

// KnownTokens is the compiled-in table. DIESEL is 2:0 and frBTC is 32:0 on
// every network.
var KnownTokens = TokenTable{
	"2:0":     {Symbol: "DIESEL", Name: "DIESEL", Decimals: 8},
	"32:0":    {Symbol: "frBTC", Name: "Fractional BTC", Decimals: 8},
	"2:56801": {Symbol: "bUSD", Name: "Bitcoin USD", Decimals: 8},
	"2:68441": {Symbol: "DIESEL/bUSD LP", Name: "DIESEL/bUSD LP Token", Decimals: 8},
	"2:77087": {Symbol: "DIESEL/frBTC LP", Name: "DIESEL/frBTC LP Token", Decimals: 8},
}

// FrbtcID is the frBTC alkane on every network.
const FrbtcID = "32:0"

// Wrap and unwrap fees per 1000 sats assumed when the frBTC contract cannot
// be read.
const (
	FrbtcWrapFeePerThousand   = 1
	FrbtcUnwrapFeePerThousand = 1
)
