package bitget

import "strings"

// NormalizeSymbol maps the exchange's raw contract symbol ("BTCUSDT") to
// the canonical form used everywhere downstream ("BTC/USDT:USDT").
// Symbols that don't look like USDT-margined contracts pass through as-is.
func NormalizeSymbol(raw string) string {
	if strings.HasSuffix(raw, "USDT") && !strings.Contains(raw, "/") {
		base := strings.TrimSuffix(raw, "USDT")
		if base != "" {
			return base + "/USDT:USDT"
		}
	}
	return raw
}

// RawSymbol is the inverse of NormalizeSymbol: "BTC/USDT:USDT" -> "BTCUSDT".
// Needed when a canonical symbol goes back into an API query.
func RawSymbol(symbol string) string {
	base, rest, found := strings.Cut(symbol, "/")
	if !found {
		return symbol
	}
	quote, _, _ := strings.Cut(rest, ":")
	return base + quote
}
