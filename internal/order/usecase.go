package order

import (
	"context"
	"time"

	"stockfolio/internal/errors"
	"stockfolio/internal/ledger"
	"stockfolio/internal/model"
	"stockfolio/internal/model/enum"
	"stockfolio/internal/obs"
	"stockfolio/internal/oracle"
	"stockfolio/pkg/exception"
	"stockfolio/pkg/retry"

	"github.com/shopspring/decimal"
)

const (
	defaultStoreAttempts = 3
	defaultStoreTimeout  = 5 * time.Second
)

// Request is a trade intent as the request layer hands it over.
//
// Request carries no price. The fill price always comes from the oracle so a caller cannot
// pick the price it trades at.
type Request struct {
	UserID string
	Symbol string
	Shares decimal.Decimal
}

// Result is the outcome of a committed trade.
type Result struct {
	Symbol     string          `json:"symbol"`
	Shares     decimal.Decimal `json:"shares"`
	Price      decimal.Decimal `json:"price"`
	NewBalance decimal.Decimal `json:"new_balance"`
}

// Config tunes the retry of transient store failures.
type Config struct {
	StoreAttempts int
	Backoff       retry.Backoff

	// StoreTimeout bounds every store call, each retry attempt gets its own.
	StoreTimeout time.Duration
}

// Usecase validates and prices trade intents and commits them to the ledger.
type Usecase struct {
	store   ledger.Store
	oracle  oracle.Oracle
	metrics *obs.Metrics

	attempts     int
	backoff      retry.Backoff
	storeTimeout time.Duration
}

// NewUsecase wires the order processor. metrics may be nil.
func NewUsecase(store ledger.Store, o oracle.Oracle, metrics *obs.Metrics, cfg Config) *Usecase {
	attempts := cfg.StoreAttempts
	if attempts <= 0 {
		attempts = defaultStoreAttempts
	}
	backoff := cfg.Backoff
	if backoff == (retry.Backoff{}) {
		backoff = retry.DefaultBackoff()
	}
	storeTimeout := cfg.StoreTimeout
	if storeTimeout <= 0 {
		storeTimeout = defaultStoreTimeout
	}
	return &Usecase{
		store:        store,
		oracle:       o,
		metrics:      metrics,
		attempts:     attempts,
		backoff:      backoff,
		storeTimeout: storeTimeout,
	}
}

// Buy purchases req.Shares of req.Symbol at the oracle price.
func (use *Usecase) Buy(ctx context.Context, req Request) (Result, error) {
	return use.execute(ctx, req, enum.TradeKindBuy)
}

// Sell sells req.Shares of req.Symbol at the oracle price.
func (use *Usecase) Sell(ctx context.Context, req Request) (Result, error) {
	return use.execute(ctx, req, enum.TradeKindSell)
}

func (use *Usecase) execute(ctx context.Context, req Request, kind enum.TradeKind) (Result, error) {
	if use == nil || use.store == nil || use.oracle == nil {
		return Result{}, exception.ErrNilInstance
	}

	start := time.Now()
	res, err := use.trade(ctx, req, kind)
	use.metrics.ObserveTrade(kind, err, time.Since(start))
	return res, err
}

func (use *Usecase) trade(ctx context.Context, req Request, kind enum.TradeKind) (Result, error) {
	req.UserID = model.NormalizeUserID(req.UserID)
	req.Symbol = model.NormalizeSymbol(req.Symbol)
	if err := validate(req); err != nil {
		return Result{}, err
	}

	// Priced before entering the store so an oracle failure can never happen mid-mutation.
	price, err := use.oracle.Quote(ctx, req.Symbol)
	if err != nil {
		return Result{}, errors.Mark(exception.ErrUnknownSymbol, err)
	}

	trade := model.Trade{
		UserID: req.UserID,
		Symbol: req.Symbol,
		Shares: req.Shares,
		Price:  price,
		Kind:   kind,
	}

	var balance decimal.Decimal
	err = retry.Do(ctx, use.attempts, use.backoff, isRetryable, func(ctx context.Context) error {
		ctx, cancel := context.WithTimeout(ctx, use.storeTimeout)
		defer cancel()

		var err error
		balance, err = use.store.ApplyTrade(ctx, trade)
		return err
	})
	if err != nil {
		return Result{}, err
	}

	return Result{
		Symbol:     trade.Symbol,
		Shares:     trade.Shares,
		Price:      trade.Price,
		NewBalance: balance,
	}, nil
}

// Portfolio returns the balance and holdings of a user.
func (use *Usecase) Portfolio(ctx context.Context, userID string) (model.Portfolio, error) {
	userID = model.NormalizeUserID(userID)
	if len(userID) == 0 {
		return model.Portfolio{}, errors.Wrap(exception.ErrInvalidInput, "user id is required")
	}

	ctx, cancel := context.WithTimeout(ctx, use.storeTimeout)
	defer cancel()

	account, err := use.store.GetAccount(ctx, userID)
	if err != nil {
		return model.Portfolio{}, err
	}
	holdings, err := use.store.ListHoldings(ctx, userID)
	if err != nil {
		return model.Portfolio{}, err
	}
	return model.Portfolio{Balance: account.Balance, Holdings: holdings}, nil
}

// History returns the transaction log of a user, oldest first.
func (use *Usecase) History(ctx context.Context, userID string) ([]model.TransactionRecord, error) {
	userID = model.NormalizeUserID(userID)
	if len(userID) == 0 {
		return nil, errors.Wrap(exception.ErrInvalidInput, "user id is required")
	}

	ctx, cancel := context.WithTimeout(ctx, use.storeTimeout)
	defer cancel()

	if _, err := use.store.GetAccount(ctx, userID); err != nil {
		return nil, err
	}
	return use.store.ListTransactions(ctx, userID)
}

// OpenAccount funds a new account.
func (use *Usecase) OpenAccount(ctx context.Context, userID string, deposit decimal.Decimal) (model.Account, error) {
	ctx, cancel := context.WithTimeout(ctx, use.storeTimeout)
	defer cancel()

	return use.store.CreateAccount(ctx, userID, deposit)
}

func validate(req Request) error {
	if len(req.UserID) == 0 {
		return errors.Wrap(exception.ErrInvalidInput, "user id is required")
	}
	if len(req.Symbol) == 0 {
		return errors.Wrap(exception.ErrInvalidInput, "symbol is required")
	}
	if err := model.CheckAmount("shares", req.Shares); err != nil {
		return err
	}
	if !req.Shares.IsPositive() {
		return errors.Wrapf(exception.ErrInvalidInput, "shares must be > 0, got %s", req.Shares)
	}
	return nil
}

// isRetryable accepts store failures raised before the trade could have committed.
// ErrCommitUnknown is excluded: replaying a trade whose COMMIT may have landed would apply it twice.
func isRetryable(err error) bool {
	return errors.Is(err, exception.ErrStoreFailure) && !errors.Is(err, exception.ErrCommitUnknown)
}
