package exception

import "errors"

// Oracle errors
var (
	// ErrQuoteUnavailable is returned by a price source that cannot produce a positive price.
	ErrQuoteUnavailable = errors.New("oracle: quote unavailable")

	// ErrUnknownSymbol is returned to a trade caller whose symbol could not be priced.
	ErrUnknownSymbol = errors.New("order: unknown symbol")
)
