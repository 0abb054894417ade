package ledger

import (
	"context"
	"fmt"
	"slices"

	"stockfolio/internal/errors"
	"stockfolio/internal/model"
	"stockfolio/pkg/exception"

	"github.com/shopspring/decimal"
)

// Snapshot is the balance and holdings of one user rebuilt from the transaction log.
type Snapshot struct {
	Balance  decimal.Decimal
	Holdings map[string]decimal.Decimal
}

// Replay re-applies records in order on top of an account funded with openingBalance.
// Every record goes through the same checks as a live trade, so a log that would have driven
// the balance or a holding negative is reported as an error.
func Replay(userID string, openingBalance decimal.Decimal, records []model.TransactionRecord) (Snapshot, error) {
	account := model.Account{UserID: userID, Balance: openingBalance}
	holdings := make(map[string]model.Holding)

	for i, r := range records {
		var current *model.Holding
		if h, ok := holdings[r.Symbol]; ok {
			current = &h
		}

		effect, err := model.Apply(account, current, model.Trade{
			UserID: userID,
			Symbol: r.Symbol,
			Shares: r.Shares,
			Price:  r.Price,
			Kind:   r.Kind,
		}, r.Timestamp)
		if err != nil {
			return Snapshot{}, errors.Wrapf(err, "replay record %d (%s)", i, r.ID)
		}

		account = effect.Account
		if effect.Holding != nil {
			holdings[r.Symbol] = *effect.Holding
		} else {
			delete(holdings, r.Symbol)
		}
	}

	snapshot := Snapshot{Balance: account.Balance, Holdings: make(map[string]decimal.Decimal, len(holdings))}
	for symbol, h := range holdings {
		snapshot.Holdings[symbol] = h.Shares
	}
	return snapshot, nil
}

// Verify replays the user's log and compares it with the stored balance and holdings.
func Verify(ctx context.Context, store Store, userID string) (Snapshot, error) {
	account, err := store.GetAccount(ctx, userID)
	if err != nil {
		return Snapshot{}, err
	}
	records, err := store.ListTransactions(ctx, userID)
	if err != nil {
		return Snapshot{}, err
	}
	holdings, err := store.ListHoldings(ctx, userID)
	if err != nil {
		return Snapshot{}, err
	}

	snapshot, err := Replay(userID, account.OpeningBalance, records)
	if err != nil {
		return Snapshot{}, errors.Mark(exception.ErrReplayMismatch, err)
	}

	var diffs []string
	if !snapshot.Balance.Equal(account.Balance) {
		diffs = append(diffs, fmt.Sprintf("balance: stored %s, replayed %s", account.Balance, snapshot.Balance))
	}
	seen := make(map[string]struct{}, len(holdings))
	for _, h := range holdings {
		seen[h.Symbol] = struct{}{}
		replayed, ok := snapshot.Holdings[h.Symbol]
		if !ok || !replayed.Equal(h.Shares) {
			diffs = append(diffs, fmt.Sprintf("%s: stored %s, replayed %s", h.Symbol, h.Shares, replayed))
		}
	}
	for symbol, shares := range snapshot.Holdings {
		if _, ok := seen[symbol]; !ok {
			diffs = append(diffs, fmt.Sprintf("%s: stored 0, replayed %s", symbol, shares))
		}
	}

	if len(diffs) != 0 {
		slices.Sort(diffs)
		return snapshot, errors.Wrapf(exception.ErrReplayMismatch, "user %s: %v", userID, diffs)
	}
	return snapshot, nil
}
