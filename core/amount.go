package core

import (
	"fmt"
	"math/big"

	"github.com/shopspring/decimal"
)

// DefaultDecimals is assumed when a requirement does not specify token
// decimals. Both ETH and LYX use 18.
const DefaultDecimals = 18

// ParseAmount converts a human-readable decimal amount from a lock document
// into exact base units. Balance comparisons are integer-only; an amount with
// more fractional digits than the token supports is rejected rather than
// rounded. Zero decimals are applied literally, for tokens without fractional
// units; callers resolve unset decimals via Requirement.AmountDecimals.
func ParseAmount(amount string, decimals int32) (*big.Int, error) {
	if decimals < 0 {
		return nil, fmt.Errorf("%w: decimals %d is negative", ErrMalformedInput, decimals)
	}
	d, err := decimal.NewFromString(amount)
	if err != nil {
		return nil, fmt.Errorf("%w: amount %q is not a decimal number", ErrMalformedInput, amount)
	}
	if d.IsNegative() {
		return nil, fmt.Errorf("%w: amount %q is negative", ErrMalformedInput, amount)
	}
	shifted := d.Shift(decimals)
	if !shifted.IsInteger() {
		return nil, fmt.Errorf("%w: amount %q has more than %d fractional digits", ErrMalformedInput, amount, decimals)
	}
	return shifted.BigInt(), nil
}
