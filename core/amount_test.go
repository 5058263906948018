package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAmount(t *testing.T) {
	got, err := ParseAmount("1.5", 18)
	require.NoError(t, err)
	assert.Equal(t, "1500000000000000000", got.String())

	got, err = ParseAmount("100", 6)
	require.NoError(t, err)
	assert.Equal(t, "100000000", got.String())

	// Explicit zero decimals stay literal: a zero-decimal token's "5" is
	// 5 base units, not 5e18.
	got, err = ParseAmount("5", 0)
	require.NoError(t, err)
	assert.Equal(t, "5", got.String())
}

func TestAmountDecimals(t *testing.T) {
	req := &Requirement{Kind: KindTokenBalance, MinAmount: "5"}
	assert.Equal(t, int32(DefaultDecimals), req.AmountDecimals())

	zero := int32(0)
	req.Decimals = &zero
	assert.Equal(t, int32(0), req.AmountDecimals())

	six := int32(6)
	req.Decimals = &six
	assert.Equal(t, int32(6), req.AmountDecimals())
}

func TestParseAmount_ExactnessPreserved(t *testing.T) {
	// A value that would lose precision as a float64.
	got, err := ParseAmount("0.123456789123456789", 18)
	require.NoError(t, err)
	assert.Equal(t, "123456789123456789", got.String())
}

func TestParseAmount_Rejections(t *testing.T) {
	_, err := ParseAmount("abc", 18)
	require.ErrorIs(t, err, ErrMalformedInput)

	_, err = ParseAmount("-1", 18)
	require.ErrorIs(t, err, ErrMalformedInput)

	// More fractional digits than the token supports must not be rounded.
	_, err = ParseAmount("0.1234567", 6)
	require.ErrorIs(t, err, ErrMalformedInput)

	_, err = ParseAmount("0.5", 0)
	require.ErrorIs(t, err, ErrMalformedInput)

	_, err = ParseAmount("1", -1)
	require.ErrorIs(t, err, ErrMalformedInput)
}
