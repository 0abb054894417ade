package api

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"
)

// userID accepts a JSON string or a JSON number, the web client sends either.
type userID string

func (u *userID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*u = ""
		return nil
	}
	if len(b) != 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*u = userID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("user_id must be a string or a number: %s", b)
	}
	*u = userID(n.String())
	return nil
}

// tradeRequest is the body of buy_stock and sell_stock. A price sent by the client is
// decoded and then ignored.
type tradeRequest struct {
	UserID userID           `json:"user_id"`
	Symbol string           `json:"symbol"`
	Shares *decimal.Decimal `json:"shares"`
	Price  *decimal.Decimal `json:"price,omitempty"`
}

func (r tradeRequest) missing() bool {
	return len(r.UserID) == 0 || len(r.Symbol) == 0 || r.Shares == nil
}

type accountRequest struct {
	UserID  userID           `json:"user_id"`
	Balance *decimal.Decimal `json:"balance"`
}
