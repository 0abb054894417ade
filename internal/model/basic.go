package model

import "strings"

// NormalizeSymbol trims and upper-cases a ticker so "aapl " and "AAPL" address the same holding.
func NormalizeSymbol(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}

// NormalizeUserID trims an opaque user identifier.
func NormalizeUserID(userID string) string {
	return strings.TrimSpace(userID)
}
