package pg

import (
	"time"

	"stockfolio/internal/model"
	"stockfolio/internal/model/enum"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type accountRow struct {
	UserID         string          `gorm:"column:user_id;primaryKey;size:64"`
	Balance        decimal.Decimal `gorm:"column:balance;type:numeric;not null;check:balance >= 0"`
	OpeningBalance decimal.Decimal `gorm:"column:opening_balance;type:numeric;not null"`
	LastTradeAt    time.Time       `gorm:"column:last_trade_at;not null"`
	CreatedAt      time.Time       `gorm:"column:created_at"`
}

func (accountRow) TableName() string {
	return "accounts"
}

func (r accountRow) model() model.Account {
	return model.Account{
		UserID:         r.UserID,
		Balance:        r.Balance,
		OpeningBalance: r.OpeningBalance,
		LastTradeAt:    r.LastTradeAt.UTC(),
	}
}

type holdingRow struct {
	UserID    string          `gorm:"column:user_id;primaryKey;size:64"`
	Symbol    string          `gorm:"column:symbol;primaryKey;size:32;index:idx_holdings_symbol"`
	Shares    decimal.Decimal `gorm:"column:shares;type:numeric;not null;check:shares > 0"`
	LastPrice decimal.Decimal `gorm:"column:last_price;type:numeric;not null"`
	UpdatedAt time.Time       `gorm:"column:updated_at"`
}

func (holdingRow) TableName() string {
	return "holdings"
}

func (r holdingRow) model() model.Holding {
	return model.Holding{
		UserID:    r.UserID,
		Symbol:    r.Symbol,
		Shares:    r.Shares,
		LastPrice: r.LastPrice,
	}
}

// transactionRow is ordered by Seq: records clamped to the same executed_at still come back
// in commit order.
type transactionRow struct {
	ID         uuid.UUID       `gorm:"column:id;type:uuid;primaryKey"`
	Seq        int64           `gorm:"column:seq;autoIncrement;not null;index:idx_transactions_user_seq,priority:2"`
	UserID     string          `gorm:"column:user_id;size:64;not null;index:idx_transactions_user_seq,priority:1"`
	Symbol     string          `gorm:"column:symbol;size:32;not null"`
	Shares     decimal.Decimal `gorm:"column:shares;type:numeric;not null"`
	Price      decimal.Decimal `gorm:"column:price;type:numeric;not null"`
	Kind       string          `gorm:"column:type;size:4;not null"`
	ExecutedAt time.Time       `gorm:"column:executed_at;not null"`
}

func (transactionRow) TableName() string {
	return "transactions"
}

func newTransactionRow(r model.TransactionRecord) transactionRow {
	return transactionRow{
		ID:         r.ID,
		UserID:     r.UserID,
		Symbol:     r.Symbol,
		Shares:     r.Shares,
		Price:      r.Price,
		Kind:       r.Kind.String(),
		ExecutedAt: r.Timestamp,
	}
}

func (r transactionRow) model() model.TransactionRecord {
	kind, _ := enum.ParseTradeKind(r.Kind)
	return model.TransactionRecord{
		ID:        r.ID,
		UserID:    r.UserID,
		Symbol:    r.Symbol,
		Shares:    r.Shares,
		Price:     r.Price,
		Kind:      kind,
		Timestamp: r.ExecutedAt.UTC(),
	}
}
