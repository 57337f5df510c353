package valueobject

import (
	"fmt"
	"strings"

	"github.com/erp/billing/internal/domain/shared"
	"github.com/shopspring/decimal"
)

// Currency represents a currency code (ISO 4217)
type Currency string

// USD is the reporting currency every amount is normalized to.
const USD Currency = "USD"

// MoneyPlaces is the number of decimal places monetary values are rounded to.
const MoneyPlaces int32 = 2

// ErrInvalidExchangeRate is returned when a non-base amount has no usable rate.
var ErrInvalidExchangeRate = shared.NewDomainError("INVALID_EXCHANGE_RATE", "exchange rate must be present and greater than zero")

// ParseCurrency normalizes and validates a three-letter currency code
func ParseCurrency(code string) (Currency, error) {
	c := Currency(strings.ToUpper(strings.TrimSpace(code)))
	if !c.IsValid() {
		return "", shared.NewDomainError("INVALID_CURRENCY", fmt.Sprintf("invalid currency code: %q", code))
	}
	return c, nil
}

// IsValid reports whether the code is three ASCII upper-case letters
func (c Currency) IsValid() bool {
	if len(c) != 3 {
		return false
	}
	for _, r := range c {
		if r < 'A' || r > 'Z' {
			return false
		}
	}
	return true
}

// String returns the string representation
func (c Currency) String() string {
	return string(c)
}

// Round2 rounds half away from zero to two decimal places.
// For the non-negative amounts a ledger carries this is round-half-up.
func Round2(d decimal.Decimal) decimal.Decimal {
	return d.Round(MoneyPlaces)
}

// HasMoneyPrecision reports whether d needs no more than MoneyPlaces decimals
func HasMoneyPrecision(d decimal.Decimal) bool {
	return d.Equal(Round2(d))
}

// Converter turns amounts expressed in a foreign currency into the base
// reporting currency using a caller-supplied rate quoted as
// "units of foreign currency per one unit of base currency".
type Converter struct {
	base Currency
}

// NewConverter creates a converter for the given base currency.
// An empty base falls back to USD.
func NewConverter(base Currency) Converter {
	if base == "" {
		base = USD
	}
	return Converter{base: base}
}

// DefaultConverter converts into USD.
var DefaultConverter = NewConverter(USD)

// Base returns the reporting currency
func (c Converter) Base() Currency {
	return c.base
}

// IsBase reports whether currency needs no conversion
func (c Converter) IsBase(currency Currency) bool {
	return currency == c.base
}

// ValidateRate checks that rate is usable for currency. Base amounts accept
// any rate (including none); foreign amounts need a strictly positive one.
func (c Converter) ValidateRate(currency Currency, rate *decimal.Decimal) error {
	if c.IsBase(currency) {
		return nil
	}
	if rate == nil || !rate.IsPositive() {
		return ErrInvalidExchangeRate
	}
	return nil
}

// ToBase converts amount into the base currency, rounded once to 2 places.
func (c Converter) ToBase(amount decimal.Decimal, currency Currency, rate *decimal.Decimal) (decimal.Decimal, error) {
	if c.IsBase(currency) {
		return amount, nil
	}
	if err := c.ValidateRate(currency, rate); err != nil {
		return decimal.Zero, err
	}
	return Round2(amount.Div(*rate)), nil
}

// FromBase converts a base amount back into currency, rounded once to 2 places.
func (c Converter) FromBase(amountBase decimal.Decimal, currency Currency, rate *decimal.Decimal) (decimal.Decimal, error) {
	if c.IsBase(currency) {
		return amountBase, nil
	}
	if err := c.ValidateRate(currency, rate); err != nil {
		return decimal.Zero, err
	}
	return Round2(amountBase.Mul(*rate)), nil
}

// ToBase converts with the DefaultConverter
func ToBase(amount decimal.Decimal, currency Currency, rate *decimal.Decimal) (decimal.Decimal, error) {
	return DefaultConverter.ToBase(amount, currency, rate)
}
