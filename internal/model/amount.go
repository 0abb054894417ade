package model

import (
	"stockfolio/internal/errors"
	"stockfolio/pkg/exception"

	"github.com/shopspring/decimal"
)

// Amounts follow numeric(36,18): at most 36 digits, at most 18 of them after the point.
const (
	MaxAmountDigits = 36
	MaxAmountScale  = 18
)

// maxCoefficientBits bounds the coefficient before it is ever formatted.
const maxCoefficientBits = 128

// CheckAmount reports ErrInvalidInput for a share count or price outside numeric(36,18).
// Trailing zeros count as written, so "1.0000000000000000000" (19 places) is rejected.
func CheckAmount(name string, d decimal.Decimal) error {
	exp := d.Exponent()
	if exp < -MaxAmountScale {
		return errors.Wrapf(exception.ErrInvalidInput, "%s has more than %d fractional digits", name, MaxAmountScale)
	}
	if exp > MaxAmountDigits {
		return errors.Wrapf(exception.ErrInvalidInput, "%s has more than %d digits", name, MaxAmountDigits)
	}

	coef := d.Coefficient()
	if coef.BitLen() > maxCoefficientBits {
		return errors.Wrapf(exception.ErrInvalidInput, "%s has more than %d digits", name, MaxAmountDigits)
	}

	digits := len(coef.Abs(coef).String())
	precision := digits + int(exp)
	if exp < 0 {
		precision = max(digits, int(-exp))
	}
	if precision > MaxAmountDigits {
		return errors.Wrapf(exception.ErrInvalidInput, "%s has more than %d digits", name, MaxAmountDigits)
	}
	return nil
}
