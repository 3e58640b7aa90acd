package enums

import "strings"

// Currency is the ISO 4217 code a checkout is charged in.
type Currency string

const (
	CurrencyUSD Currency = "USD"
	CurrencyEUR Currency = "EUR"
	CurrencyGBP Currency = "GBP"
	CurrencyCAD Currency = "CAD"
	CurrencyAUD Currency = "AUD"
)

var currencies = members[Currency]{CurrencyUSD, CurrencyEUR, CurrencyGBP, CurrencyCAD, CurrencyAUD}

func (c Currency) String() string { return string(c) }

func (c Currency) IsValid() bool { return currencies.has(c) }

// ProcessorCode is the lowercase form Stripe expects.
func (c Currency) ProcessorCode() string {
	return strings.ToLower(string(c))
}

// ParseCurrency ignores case and surrounding space.
func ParseCurrency(value string) (Currency, error) {
	return currencies.parse("currency", strings.ToUpper(strings.TrimSpace(value)))
}
