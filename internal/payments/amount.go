package payments

import (
	"github.com/shopspring/decimal"

	pkgerrors "github.com/angelmondragon/eventpass-backend/pkg/errors"
)

var hundred = decimal.NewFromInt(100)

// ToMinorUnits converts a major unit total to the processor's integer minor
// units, rounding half up. The arithmetic stays decimal so 19.99 is 1999 and
// 1.005 is 101, with no binary float drift.
func ToMinorUnits(total decimal.Decimal) (int64, error) {
	if !total.IsPositive() {
		return 0, pkgerrors.New(pkgerrors.CodeValidation, "amount must be greater than zero")
	}
	minor := total.Mul(hundred).Round(0)
	if !minor.IsPositive() {
		return 0, pkgerrors.New(pkgerrors.CodeValidation, "amount rounds to zero")
	}
	if minor.GreaterThan(decimal.NewFromInt(maxMinorAmount)) {
		return 0, pkgerrors.New(pkgerrors.CodeValidation, "amount exceeds the processor limit")
	}
	return minor.IntPart(), nil
}

// Stripe rejects anything above eight digits in minor units.
const maxMinorAmount = 99_999_999
