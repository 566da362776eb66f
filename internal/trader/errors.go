package trader

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation marks a missing or invalid caller parameter. Nothing was executed.
	ErrValidation = errors.New("validation error")

	// ErrTokenNotFound is returned when the market data provider does not know the token.
	ErrTokenNotFound = errors.New("token not found")

	// ErrNoPrice is returned when the market data snapshot of a token to buy has no positive price.
	ErrNoPrice = errors.New("market data returned no price")
)

func validationErrorf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}
