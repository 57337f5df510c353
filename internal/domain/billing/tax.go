package billing

import (
	"github.com/erp/billing/internal/domain/shared/valueobject"
	"github.com/shopspring/decimal"
)

// DefaultTaxRate is the value-added tax rate used when none is configured
var DefaultTaxRate = decimal.RequireFromString("0.19")

// TaxPolicy applies a flat value-added tax rate
type TaxPolicy struct {
	rate decimal.Decimal
}

// NewTaxPolicy creates a policy for rate, which must lie in [0, 1)
func NewTaxPolicy(rate decimal.Decimal) (TaxPolicy, error) {
	if rate.IsNegative() || rate.GreaterThanOrEqual(decimal.NewFromInt(1)) {
		return TaxPolicy{}, invalidInput("tax rate must be in [0, 1), got %s", rate)
	}
	return TaxPolicy{rate: rate}, nil
}

// Rate returns the configured rate
func (p TaxPolicy) Rate() decimal.Decimal {
	return p.rate
}

// ComputeTax returns the tax on subtotal (zero when hasTax is false) and the resulting total.
func (p TaxPolicy) ComputeTax(subtotal decimal.Decimal, hasTax bool) (taxAmount, total decimal.Decimal) {
	taxAmount = decimal.Zero
	if hasTax {
		taxAmount = valueobject.Round2(subtotal.Mul(p.rate))
	}
	return taxAmount, subtotal.Add(taxAmount)
}

// Amounts are the monetary fields of an invoice, with derived values filled in.
type Amounts struct {
	Subtotal            decimal.Decimal
	HasTax              bool
	TaxAmount           decimal.Decimal
	Total               decimal.Decimal
	Currency            valueobject.Currency
	ExchangeRate        *decimal.Decimal
	TotalInBaseCurrency decimal.Decimal
}

// Calculator derives tax, total and base-currency total for invoice amounts
type Calculator struct {
	tax       TaxPolicy
	converter valueobject.Converter
}

// NewCalculator creates a calculator
func NewCalculator(tax TaxPolicy, converter valueobject.Converter) Calculator {
	return Calculator{tax: tax, converter: converter}
}

// DefaultCalculator uses DefaultTaxRate and USD as the base currency
func DefaultCalculator() Calculator {
	return Calculator{
		tax:       TaxPolicy{rate: DefaultTaxRate},
		converter: valueobject.DefaultConverter,
	}
}

// TaxPolicy returns the tax policy in use
func (c Calculator) TaxPolicy() TaxPolicy {
	return c.tax
}

// Converter returns the currency converter in use
func (c Calculator) Converter() valueobject.Converter {
	return c.converter
}

// Compute validates the inputs and derives the remaining amount fields.
func (c Calculator) Compute(subtotal decimal.Decimal, hasTax bool, currency valueobject.Currency, rate *decimal.Decimal) (Amounts, error) {
	if subtotal.IsNegative() {
		return Amounts{}, invalidInput("subtotal must not be negative, got %s", subtotal)
	}
	if !valueobject.HasMoneyPrecision(subtotal) {
		return Amounts{}, invalidInput("subtotal %s has more than %d decimal places", subtotal, valueobject.MoneyPlaces)
	}
	if !currency.IsValid() {
		return Amounts{}, invalidInput("invalid currency code: %q", currency)
	}
	if err := c.converter.ValidateRate(currency, rate); err != nil {
		return Amounts{}, err
	}

	taxAmount, total := c.tax.ComputeTax(subtotal, hasTax)
	totalBase, err := valueobject.MustMoney(total, currency).In(c.converter, rate)
	if err != nil {
		return Amounts{}, err
	}

	return Amounts{
		Subtotal:            subtotal,
		HasTax:              hasTax,
		TaxAmount:           taxAmount,
		Total:               total,
		Currency:            currency,
		ExchangeRate:        copyDecimal(rate),
		TotalInBaseCurrency: totalBase.Amount(),
	}, nil
}

func copyDecimal(d *decimal.Decimal) *decimal.Decimal {
	if d == nil {
		return nil
	}
	v := *d
	return &v
}
