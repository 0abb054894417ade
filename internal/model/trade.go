package model

import (
	"time"

	"stockfolio/internal/errors"
	"stockfolio/internal/model/enum"
	"stockfolio/pkg/exception"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Trade is an already priced buy or sell ready to be applied to the ledger.
type Trade struct {
	UserID string
	Symbol string
	Shares decimal.Decimal
	Price  decimal.Decimal
	Kind   enum.TradeKind
}

// Notional is shares times price.
func (t Trade) Notional() decimal.Decimal {
	return t.Shares.Mul(t.Price)
}

// Validate reports ErrInvalidInput for a trade that cannot be applied.
func (t Trade) Validate() error {
	if len(t.UserID) == 0 {
		return errors.Wrap(exception.ErrInvalidInput, "empty user id")
	}
	if len(t.Symbol) == 0 {
		return errors.Wrap(exception.ErrInvalidInput, "empty symbol")
	}
	if !t.Kind.IsAvailable() {
		return errors.Wrap(exception.ErrInvalidInput, "unknown trade kind")
	}
	if err := CheckAmount("shares", t.Shares); err != nil {
		return err
	}
	if err := CheckAmount("price", t.Price); err != nil {
		return err
	}
	if !t.Shares.IsPositive() {
		return errors.Wrapf(exception.ErrInvalidInput, "shares must be > 0, got %s", t.Shares)
	}
	if !t.Price.IsPositive() {
		return errors.Wrapf(exception.ErrInvalidInput, "price must be > 0, got %s", t.Price)
	}
	return nil
}

// TransactionRecord is the immutable log entry of one committed trade.
type TransactionRecord struct {
	ID        uuid.UUID       `json:"id"`
	UserID    string          `json:"user_id"`
	Symbol    string          `json:"symbol"`
	Shares    decimal.Decimal `json:"shares"`
	Price     decimal.Decimal `json:"price"`
	Kind      enum.TradeKind  `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
}

// CashFlow is the signed balance change caused by the record.
func (r TransactionRecord) CashFlow() decimal.Decimal {
	notional := r.Shares.Mul(r.Price)
	if r.Kind == enum.TradeKindSell {
		return notional
	}
	return notional.Neg()
}

// ShareFlow is the signed holding change caused by the record.
func (r TransactionRecord) ShareFlow() decimal.Decimal {
	if r.Kind == enum.TradeKindSell {
		return r.Shares.Neg()
	}
	return r.Shares
}
