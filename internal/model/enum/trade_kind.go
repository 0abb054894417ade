package enum

import "strings"

type TradeKind uint8

const (
	_tradeKind_beg TradeKind = iota
	TradeKindBuy
	TradeKindSell
	_tradeKind_end
)

func (k TradeKind) IsAvailable() bool {
	return k > _tradeKind_beg && k < _tradeKind_end
}

func (k TradeKind) String() string {
	switch k {
	case TradeKindBuy:
		return "BUY"
	case TradeKindSell:
		return "SELL"
	default:
		return "UNKNOWN"
	}
}

// ParseTradeKind accepts BUY or SELL in any letter case.
func ParseTradeKind(s string) (TradeKind, bool) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "BUY":
		return TradeKindBuy, true
	case "SELL":
		return TradeKindSell, true
	default:
		return _tradeKind_beg, false
	}
}

func (k TradeKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

func (k *TradeKind) UnmarshalText(b []byte) error {
	kind, _ := ParseTradeKind(string(b))
	*k = kind
	return nil
}
