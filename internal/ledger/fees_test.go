package ledger

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPlatformFee(t *testing.T) {
	var tests = []struct {
		name        string
		total       int64
		rate        int64
		expected    int64
		expectedErr error
	}{
		{name: "three percent of 200", total: 200, rate: 3, expected: 6},
		{name: "truncates toward zero", total: 199, rate: 3, expected: 5},
		{name: "zero rate", total: 1000, rate: 0, expected: 0},
		{name: "full rate", total: 1000, rate: 100, expected: 1000},
		{name: "no overflow on large totals", total: math.MaxInt64, rate: 100, expected: math.MaxInt64},
		{name: "negative total", total: -1, rate: 3, expectedErr: ErrInvalidQuantity},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			fee, err := PlatformFee(tt.total, tt.rate)
			if tt.expectedErr != nil {
				require.ErrorIs(t, err, tt.expectedErr)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.expected, fee)
		})
	}
}

func TestRefundValue(t *testing.T) {
	var tests = []struct {
		name        string
		quantity    int64
		unitCost    int64
		rate        int64
		expected    int64
		expectedErr error
	}{
		{name: "85 percent of 2 at 150", quantity: 2, unitCost: 150, rate: 85, expected: 255},
		{name: "truncates", quantity: 1, unitCost: 99, rate: 85, expected: 84},
		{name: "zero rate", quantity: 5, unitCost: 150, rate: 0, expected: 0},
		{name: "gross overflow", quantity: math.MaxInt64, unitCost: 2, rate: 50, expectedErr: ErrInvalidQuantity},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			v, err := RefundValue(tt.quantity, tt.unitCost, tt.rate)
			if tt.expectedErr != nil {
				require.ErrorIs(t, err, tt.expectedErr)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.expected, v)
		})
	}
}
