package ledger

import (
	"cmp"
	"context"
	"slices"
	"sync"
	"time"

	"stockfolio/internal/errors"
	"stockfolio/internal/model"
	"stockfolio/pkg/exception"

	"github.com/shopspring/decimal"
)

var _ Store = (*Memory)(nil)

type holdingKey struct {
	userID string
	symbol string
}

// Memory is an in-process Store.
//
// Row locks serialize read-modify-write: an account lock per user, then a holding lock per
// (user, symbol). mu only guards publication of row values and is never held while a row is
// being computed, so unrelated rows never wait on each other. Lock entries are never pruned:
// the maps grow with every user and (user, symbol) pair ever traded, which is bounded by the
// rows the store holds anyway. Removing an entry while another goroutine holds its mutex would
// let a third goroutine lock a fresh one for the same row.
type Memory struct {
	accountLocks sync.Map // string -> *sync.Mutex
	holdingLocks sync.Map // holdingKey -> *sync.Mutex

	mu       sync.RWMutex
	accounts map[string]model.Account
	holdings map[holdingKey]model.Holding
	bySymbol map[string]map[string]struct{}
	records  map[string][]model.TransactionRecord

	now func() time.Time
}

// NewMemory creates an empty store.
func NewMemory() *Memory {
	return &Memory{
		accounts: make(map[string]model.Account),
		holdings: make(map[holdingKey]model.Holding),
		bySymbol: make(map[string]map[string]struct{}),
		records:  make(map[string][]model.TransactionRecord),
		now:      time.Now,
	}
}

func (m *Memory) lockAccount(userID string) func() {
	v, _ := m.accountLocks.LoadOrStore(userID, &sync.Mutex{})
	mu := v.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}

func (m *Memory) lockHolding(key holdingKey) func() {
	v, _ := m.holdingLocks.LoadOrStore(key, &sync.Mutex{})
	mu := v.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}

func (m *Memory) CreateAccount(ctx context.Context, userID string, openingBalance decimal.Decimal) (model.Account, error) {
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

	unlock := m.lockAccount(userID)
	defer unlock()

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.accounts[userID]; ok {
		return model.Account{}, exception.ErrAccountExists
	}
	account := model.Account{UserID: userID, Balance: openingBalance, OpeningBalance: openingBalance}
	m.accounts[userID] = account
	return account, nil
}

func (m *Memory) GetAccount(ctx context.Context, userID string) (model.Account, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	account, ok := m.accounts[userID]
	if !ok {
		return model.Account{}, exception.ErrUserNotFound
	}
	return account, nil
}

func (m *Memory) GetHolding(ctx context.Context, userID, symbol string) (model.Holding, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	h, ok := m.holdings[holdingKey{userID: userID, symbol: symbol}]
	return h, ok, nil
}

func (m *Memory) ListHoldings(ctx context.Context, userID string) ([]model.Holding, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	result := make([]model.Holding, 0)
	for key, h := range m.holdings {
		if key.userID == userID {
			result = append(result, h)
		}
	}
	slices.SortFunc(result, func(a, b model.Holding) int {
		return cmp.Compare(a.Symbol, b.Symbol)
	})
	return result, nil
}

func (m *Memory) ListDistinctHeldSymbols(ctx context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	symbols := make([]string, 0, len(m.bySymbol))
	for symbol := range m.bySymbol {
		symbols = append(symbols, symbol)
	}
	slices.Sort(symbols)
	return symbols, nil
}

func (m *Memory) ListTransactions(ctx context.Context, userID string) ([]model.TransactionRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return slices.Clone(m.records[userID]), nil
}

func (m *Memory) ApplyTrade(ctx context.Context, trade model.Trade) (decimal.Decimal, error) {
	if err := trade.Validate(); err != nil {
		return decimal.Decimal{}, err
	}

	key := holdingKey{userID: trade.UserID, symbol: trade.Symbol}
	unlockAccount := m.lockAccount(trade.UserID)
	defer unlockAccount()
	unlockHolding := m.lockHolding(key)
	defer unlockHolding()

	m.mu.RLock()
	account, ok := m.accounts[trade.UserID]
	current, held := m.holdings[key]
	m.mu.RUnlock()
	if !ok {
		return decimal.Decimal{}, exception.ErrUserNotFound
	}

	var holding *model.Holding
	if held {
		holding = &current
	}

	effect, err := model.Apply(account, holding, trade, m.now())
	if err != nil {
		return decimal.Decimal{}, err
	}

	if err := ctx.Err(); err != nil {
		return decimal.Decimal{}, errors.Mark(exception.ErrStoreFailure, err)
	}

	m.mu.Lock()
	m.accounts[trade.UserID] = effect.Account
	if effect.Holding != nil {
		m.holdings[key] = *effect.Holding
		m.indexHolding(key)
	} else {
		delete(m.holdings, key)
		m.unindexHolding(key)
	}
	m.records[trade.UserID] = append(m.records[trade.UserID], effect.Record)
	m.mu.Unlock()

	return effect.Account.Balance, nil
}

func (m *Memory) UpdateCachedPrice(ctx context.Context, symbol string, price decimal.Decimal) (int, error) {
	if !price.IsPositive() {
		return 0, errors.Wrapf(exception.ErrInvalidInput, "price must be > 0, got %s", price)
	}
	if err := model.CheckAmount("price", price); err != nil {
		return 0, err
	}

	m.mu.RLock()
	users := make([]string, 0, len(m.bySymbol[symbol]))
	for userID := range m.bySymbol[symbol] {
		users = append(users, userID)
	}
	m.mu.RUnlock()

	updated := 0
	for _, userID := range users {
		if err := ctx.Err(); err != nil {
			return updated, errors.Mark(exception.ErrStoreFailure, err)
		}
		if m.updateHoldingPrice(holdingKey{userID: userID, symbol: symbol}, price) {
			updated++
		}
	}
	return updated, nil
}

func (m *Memory) updateHoldingPrice(key holdingKey, price decimal.Decimal) bool {
	unlock := m.lockHolding(key)
	defer unlock()

	m.mu.Lock()
	defer m.mu.Unlock()
	h, ok := m.holdings[key]
	if !ok {
		return false
	}
	h.LastPrice = price
	m.holdings[key] = h
	return true
}

// indexHolding and unindexHolding must be called with mu held.
func (m *Memory) indexHolding(key holdingKey) {
	users := m.bySymbol[key.symbol]
	if users == nil {
		users = make(map[string]struct{})
		m.bySymbol[key.symbol] = users
	}
	users[key.userID] = struct{}{}
}

func (m *Memory) unindexHolding(key holdingKey) {
	users := m.bySymbol[key.symbol]
	delete(users, key.userID)
	if len(users) == 0 {
		delete(m.bySymbol, key.symbol)
	}
}
