package scraper

import "strings"

// SymbolRule defines a transformation rule for normalizing exchange-specific symbols.
// Exchanges use different formats: BTC-USD, BTC/USDT, BTCUSDT, etc.
// We normalize all to the joined form used by Binance: BTCUSDT
type SymbolRule struct {
	// Suffix is the exchange-specific suffix to match (e.g., "-USD", "/USDT")
	Suffix string

	// Replacement is the normalized suffix (e.g., "USDT")
	Replacement string
}

// DefaultSymbolRules maps exchange names to their normalization rules.
// Add new exchanges here when implementing new adapters.
var DefaultSymbolRules = map[string][]SymbolRule{
	"coinbase": {
		{Suffix: "-USDT", Replacement: "USDT"},
		{Suffix: "-USDC", Replacement: "USDC"},
		{Suffix: "-USD", Replacement: "USDT"}, // Coinbase USD books are joined with USDT books
	},
	"binance": {
		{Suffix: "/USDT", Replacement: "USDT"},
		{Suffix: "-USDT", Replacement: "USDT"},
		{Suffix: "/USDC", Replacement: "USDC"},
	},
}

// NormalizeSymbol converts an exchange-specific symbol to our standard format.
// Example: "BTC-USD" (coinbase) -> "BTCUSDT"
// Example: "BTC/USDT" (binance) -> "BTCUSDT"
// Symbols without a matching rule only lose their separators and are upper-cased.
func NormalizeSymbol(exchange, symbol string) string {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))

	for _, rule := range DefaultSymbolRules[exchange] {
		if strings.HasSuffix(symbol, rule.Suffix) {
			base := strings.TrimSuffix(symbol, rule.Suffix)
			return stripSeparators(base) + rule.Replacement
		}
	}

	return stripSeparators(symbol)
}

func stripSeparators(s string) string {
	return strings.NewReplacer("/", "", "-", "", "_", "").Replace(s)
}
