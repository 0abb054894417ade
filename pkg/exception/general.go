package exception

import "errors"

// General errors
var (
	ErrInvalidInput = errors.New("invalid input")
	ErrNilInstance  = errors.New("nil instance")
	ErrInternal     = errors.New("internal error")
)

// Refresher errors
var (
	ErrRefresherRunning = errors.New("refresher: already running")
)
