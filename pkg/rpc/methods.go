package rpc

// JSON-RPC method names understood by the provider.
const (
	// Chain height
	methodMetashrewHeight = "metashrew_height"
	methodBlockCount      = "getblockcount"
	methodEsploraTip      = "esplora_blocks:tip:height"

	// Address data
	methodLuaEvalSaved     = "lua_evalsaved"
	methodLuaEvalScript    = "lua_evalscript"
	methodAddressUTXO      = "esplora_address::utxo"
	methodAddressTxs       = "esplora_address::txs"
	methodAddressMempool   = "esplora_address::txs:mempool"
	methodProtorunes       = "alkanes_protorunesbyaddress"

	// Market and metadata
	methodFeeEstimates = "esplora_fee-estimates"
	methodBitcoinPrice = "dataapi_get_bitcoin_price"
	methodReflect      = "alkanes_reflect"
	methodSimulate     = "alkanes_simulate"
)

// bootstrapPathPrefix is followed by the network slug.
const bootstrapPathPrefix = "/api/rpc/"

// protocolTagAlkanes is the protorunes protocol tag for alkanes.
const protocolTagAlkanes = "1"
