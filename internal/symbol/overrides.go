package symbol

import "github.com/KerimSelki/crypto-vault/internal/asset"

// binanceBases maps aggregator ids to Binance base assets where the
// generic transform would produce the wrong ticker.
var binanceBases = map[asset.ID]string{
	"binancecoin":               "BNB",
	"avalanche-2":               "AVAX",
	"matic-network":             "MATIC",
	"shiba-inu":                 "SHIB",
	"internet-computer":         "ICP",
	"render-token":              "RENDER",
	"injective-protocol":        "INJ",
	"sei-network":               "SEI",
	"fetch-ai":                  "FET",
	"the-graph":                 "GRT",
	"lido-dao":                  "LDO",
	"immutable-x":               "IMX",
	"hedera-hashgraph":          "HBAR",
	"theta-token":               "THETA",
	"cosmos":                    "ATOM",
	"bitcoin-cash":              "BCH",
	"wrapped-bitcoin":           "WBTC",
	"crypto-com-chain":          "CRO",
	"elrond-erd-2":              "EGLD",
	"axie-infinity":             "AXS",
	"decentraland":              "MANA",
	"the-sandbox":               "SAND",
	"enjincoin":                 "ENJ",
	"basic-attention-token":     "BAT",
	"zilliqa":                   "ZIL",
	"harmony":                   "ONE",
	"pancakeswap-token":         "CAKE",
	"thorchain":                 "RUNE",
	"curve-dao-token":           "CRV",
	"convex-finance":            "CVX",
	"compound-governance-token": "COMP",
	"yearn-finance":             "YFI",
	"sushi":                     "SUSHI",
	"1inch":                     "1INCH",
	"gala":                      "GALA",
	"flow":                      "FLOW",
	"mina-protocol":             "MINA",
	"quant-network":             "QNT",
	"terra-luna-2":              "LUNA",
	"stepn":                     "GMT",
	"ocean-protocol":            "OCEAN",
	"rocket-pool":               "RPL",
	"staked-ether":              "STETH",
}

// BinanceTable returns the Binance override table as full USDT pairs.
func BinanceTable() Table {
	t := make(Table, len(binanceBases))
	for id, base := range binanceBases {
		t[id] = base + QuoteAsset
	}
	return t
}
