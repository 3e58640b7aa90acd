package payments

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pkgerrors "github.com/angelmondragon/eventpass-backend/pkg/errors"
)

func TestToMinorUnitsRoundsHalfUp(t *testing.T) {
	cases := map[string]int64{
		"19.99":   1999,
		"1.005":   101,
		"1.004":   100,
		"0.015":   2,
		"10":      1000,
		"0.29":    29,
		"4.35":    435,
		"1234.5":  123450,
		"0.01":    1,
		"0.005":   1,
		"99.995":  10000,
		"1.10":    110,
		"8.675":   868,
		"1.13499": 113,
	}
	for raw, want := range cases {
		got, err := ToMinorUnits(decimal.RequireFromString(raw))
		require.NoError(t, err, raw)
		assert.Equal(t, want, got, raw)
	}
}

func TestToMinorUnitsRejectsNonPositive(t *testing.T) {
	for _, raw := range []string{"0", "-1", "0.004"} {
		_, err := ToMinorUnits(decimal.RequireFromString(raw))
		require.Error(t, err, raw)
		assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation), raw)
	}
}

func TestToMinorUnitsRejectsProcessorOverflow(t *testing.T) {
	_, err := ToMinorUnits(decimal.RequireFromString("1000000.00"))
	require.Error(t, err)
}
