package exception

import "errors"

// Ledger errors
var (
	ErrUserNotFound       = errors.New("ledger: user not found")
	ErrAccountExists      = errors.New("ledger: account already exists")
	ErrInsufficientFunds  = errors.New("ledger: insufficient funds")
	ErrInsufficientShares = errors.New("ledger: insufficient shares")
	ErrStoreFailure       = errors.New("ledger: store failure")

	// ErrCommitUnknown means the commit was sent but its acknowledgement never arrived, so the
	// trade may or may not be in the ledger. It must not be retried.
	ErrCommitUnknown = errors.New("ledger: commit outcome unknown")
)

var (
	ErrReplayMismatch = errors.New("ledger: replayed log does not match stored state")
)
