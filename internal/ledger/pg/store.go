// Package pg is the PostgreSQL ledger.Store. Row locks come from SELECT ... FOR UPDATE inside a
// single transaction per trade.
package pg

import (
	"context"
	"time"

	"stockfolio/internal/errors"
	"stockfolio/internal/ledger"
	"stockfolio/internal/model"
	"stockfolio/pkg/exception"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var _ ledger.Store = (*Store)(nil)

var forUpdate = clause.Locking{Strength: "UPDATE"}

// Store persists the ledger through gorm.
type Store struct {
	db  *gorm.DB
	now func() time.Time
}

// New wraps an open connection. Call Migrate before first use on an empty database.
func New(db *gorm.DB) *Store {
	return &Store{db: db, now: time.Now}
}

// Migrate creates or updates the ledger tables.
func (s *Store) Migrate(ctx context.Context) error {
	if err := s.db.WithContext(ctx).AutoMigrate(&accountRow{}, &holdingRow{}, &transactionRow{}); err != nil {
		return errors.Mark(exception.ErrStoreFailure, err)
	}
	return nil
}

func (s *Store) CreateAccount(ctx context.Context, userID string, openingBalance decimal.Decimal) (model.Account, error) {
	userID = model.NormalizeUserID(userID)
	if len(userID) == 0 {
		return model.Account{}, errors.Wrap(exception.ErrInvalidInput, "empty user id")
	}
	if openingBalance.IsNegative() {
		return model.Account{}, errors.Wrap(exception.ErrInvalidInput, "opening balance must be >= 0")
	}
	if err := model.CheckAmount("opening balance", openingBalance); err != nil {
		return model.Account{}, err
	}

	row := accountRow{UserID: userID, Balance: openingBalance, OpeningBalance: openingBalance, LastTradeAt: time.Unix(0, 0).UTC()}
	res := s.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&row)
	if res.Error != nil {
		return model.Account{}, storeFailure(res.Error)
	}
	if res.RowsAffected == 0 {
		return model.Account{}, exception.ErrAccountExists
	}
	return row.model(), nil
}

func (s *Store) GetAccount(ctx context.Context, userID string) (model.Account, error) {
	var row accountRow
	if err := s.db.WithContext(ctx).Where("user_id = ?", userID).Take(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return model.Account{}, exception.ErrUserNotFound
		}
		return model.Account{}, storeFailure(err)
	}
	return row.model(), nil
}

func (s *Store) GetHolding(ctx context.Context, userID, symbol string) (model.Holding, bool, error) {
	var row holdingRow
	if err := s.db.WithContext(ctx).Where("user_id = ? AND symbol = ?", userID, symbol).Take(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return model.Holding{}, false, nil
		}
		return model.Holding{}, false, storeFailure(err)
	}
	return row.model(), true, nil
}

func (s *Store) ListHoldings(ctx context.Context, userID string) ([]model.Holding, error) {
	var rows []holdingRow
	if err := s.db.WithContext(ctx).Where("user_id = ?", userID).Order("symbol").Find(&rows).Error; err != nil {
		return nil, storeFailure(err)
	}
	result := make([]model.Holding, 0, len(rows))
	for _, row := range rows {
		result = append(result, row.model())
	}
	return result, nil
}

func (s *Store) ListDistinctHeldSymbols(ctx context.Context) ([]string, error) {
	symbols := make([]string, 0)
	if err := s.db.WithContext(ctx).Model(&holdingRow{}).Distinct("symbol").Order("symbol").Pluck("symbol", &symbols).Error; err != nil {
		return nil, storeFailure(err)
	}
	return symbols, nil
}

func (s *Store) ListTransactions(ctx context.Context, userID string) ([]model.TransactionRecord, error) {
	var rows []transactionRow
	if err := s.db.WithContext(ctx).Where("user_id = ?", userID).Order("seq").Find(&rows).Error; err != nil {
		return nil, storeFailure(err)
	}
	result := make([]model.TransactionRecord, 0, len(rows))
	for _, row := range rows {
		result = append(result, row.model())
	}
	return result, nil
}

func (s *Store) ApplyTrade(ctx context.Context, trade model.Trade) (decimal.Decimal, error) {
	if err := trade.Validate(); err != nil {
		return decimal.Decimal{}, err
	}

	var (
		balance decimal.Decimal
		applied bool
	)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var account accountRow
		if err := tx.Clauses(forUpdate).Where("user_id = ?", trade.UserID).Take(&account).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return exception.ErrUserNotFound
			}
			return err
		}

		var (
			current holdingRow
			holding *model.Holding
		)
		err := tx.Clauses(forUpdate).Where("user_id = ? AND symbol = ?", trade.UserID, trade.Symbol).Take(&current).Error
		switch {
		case err == nil:
			h := current.model()
			holding = &h
		case errors.Is(err, gorm.ErrRecordNotFound):
		default:
			return err
		}

		effect, err := model.Apply(account.model(), holding, trade, s.now())
		if err != nil {
			return err
		}

		if err := tx.Model(&accountRow{}).Where("user_id = ?", trade.UserID).Updates(map[string]any{
			"balance":       effect.Account.Balance,
			"last_trade_at": effect.Account.LastTradeAt,
		}).Error; err != nil {
			return err
		}

		now := s.now()
		switch {
		case effect.Holding == nil && holding != nil:
			err = tx.Where("user_id = ? AND symbol = ?", trade.UserID, trade.Symbol).Delete(&holdingRow{}).Error
		case effect.Holding != nil && holding != nil:
			err = tx.Model(&holdingRow{}).Where("user_id = ? AND symbol = ?", trade.UserID, trade.Symbol).Updates(map[string]any{
				"shares":     effect.Holding.Shares,
				"last_price": effect.Holding.LastPrice,
				"updated_at": now,
			}).Error
		case effect.Holding != nil:
			err = tx.Create(&holdingRow{
				UserID:    trade.UserID,
				Symbol:    trade.Symbol,
				Shares:    effect.Holding.Shares,
				LastPrice: effect.Holding.LastPrice,
				UpdatedAt: now,
			}).Error
		}
		if err != nil {
			return err
		}

		record := newTransactionRow(effect.Record)
		if err := tx.Create(&record).Error; err != nil {
			return err
		}

		balance = effect.Account.Balance
		applied = true
		return nil
	})
	if err != nil {
		return decimal.Decimal{}, tradeOutcome(err, applied)
	}
	return balance, nil
}

// tradeOutcome classifies a failed trade transaction. Once every statement succeeded the only
// failure left is COMMIT itself, which may have landed on the server, so it is reported as
// ErrCommitUnknown instead of a retryable store failure.
func tradeOutcome(err error, applied bool) error {
	if applied {
		return errors.Mark(exception.ErrCommitUnknown, err)
	}
	return classify(err)
}

// UpdateCachedPrice is one UPDATE statement: each row lock is taken by the statement itself,
// so it waits behind a trade holding the same row and never rewrites shares.
func (s *Store) UpdateCachedPrice(ctx context.Context, symbol string, price decimal.Decimal) (int, error) {
	if !price.IsPositive() {
		return 0, errors.Wrapf(exception.ErrInvalidInput, "price must be > 0, got %s", price)
	}
	if err := model.CheckAmount("price", price); err != nil {
		return 0, err
	}

	res := s.db.WithContext(ctx).Model(&holdingRow{}).Where("symbol = ?", symbol).Updates(map[string]any{
		"last_price": price,
		"updated_at": s.now(),
	})
	if res.Error != nil {
		return 0, storeFailure(res.Error)
	}
	return int(res.RowsAffected), nil
}

var domainErrors = []error{
	exception.ErrInvalidInput,
	exception.ErrUserNotFound,
	exception.ErrInsufficientFunds,
	exception.ErrInsufficientShares,
	exception.ErrCommitUnknown,
	exception.ErrInternal,
}

func classify(err error) error {
	for _, target := range domainErrors {
		if errors.Is(err, target) {
			return err
		}
	}
	return storeFailure(err)
}

func storeFailure(err error) error {
	return errors.Mark(exception.ErrStoreFailure, err)
}
