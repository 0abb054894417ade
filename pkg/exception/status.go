package exception

import (
	"errors"
	"net/http"
)

// StatusCode maps an error kind to the HTTP status the request layer replies with.
func StatusCode(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrUserNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrAccountExists):
		return http.StatusConflict
	case errors.Is(err, ErrInvalidInput),
		errors.Is(err, ErrInsufficientFunds),
		errors.Is(err, ErrInsufficientShares),
		errors.Is(err, ErrUnknownSymbol),
		errors.Is(err, ErrQuoteUnavailable):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
