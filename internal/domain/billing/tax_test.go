package billing

import (
	"testing"

	"github.com/erp/billing/internal/domain/shared"
	"github.com/erp/billing/internal/domain/shared/valueobject"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTaxPolicy_ComputeTax(t *testing.T) {
	policy, err := NewTaxPolicy(DefaultTaxRate)
	require.NoError(t, err)

	tests := []struct {
		name      string
		subtotal  string
		hasTax    bool
		wantTax   string
		wantTotal string
	}{
		{"taxed", "4000000", true, "760000", "4760000"},
		{"untaxed", "4000000", false, "0", "4000000"},
		{"rounds half up", "0.05", true, "0.01", "0.06"},
		{"cents", "123.45", true, "23.46", "146.91"},
		{"zero", "0", true, "0", "0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tax, total := policy.ComputeTax(dec(tt.subtotal), tt.hasTax)
			assert.True(t, tax.Equal(dec(tt.wantTax)), "tax=%s", tax)
			assert.True(t, total.Equal(dec(tt.wantTotal)), "total=%s", total)
			assert.True(t, total.Equal(dec(tt.subtotal).Add(tax)))
		})
	}
}

func TestNewTaxPolicy(t *testing.T) {
	p, err := NewTaxPolicy(dec("0.16"))
	require.NoError(t, err)
	tax, _ := p.ComputeTax(dec("100"), true)
	assert.True(t, tax.Equal(dec("16")))

	for _, bad := range []string{"-0.01", "1", "1.5"} {
		_, err := NewTaxPolicy(dec(bad))
		assert.ErrorIs(t, err, shared.ErrInvalidInput, bad)
	}
}

func TestCalculator_TaxDerivationHolds(t *testing.T) {
	calc := DefaultCalculator()
	subtotals := []string{"0", "0.01", "1", "99.99", "4000000", "1234567.89"}

	for _, s := range subtotals {
		for _, hasTax := range []bool{true, false} {
			a, err := calc.Compute(dec(s), hasTax, "COP", decPtr("3900.5"))
			require.NoError(t, err)

			assert.True(t, a.Total.Equal(a.Subtotal.Add(a.TaxAmount)))
			want := decimal.Zero
			if hasTax {
				want = valueobject.Round2(a.Subtotal.Mul(DefaultTaxRate))
			}
			assert.True(t, a.TaxAmount.Equal(want))
		}
	}
}

func TestCalculator_Compute_Errors(t *testing.T) {
	calc := NewCalculator(TaxPolicy{rate: DefaultTaxRate}, valueobject.NewConverter(valueobject.USD))

	_, err := calc.Compute(dec("1"), true, "COP", nil)
	assert.ErrorIs(t, err, ErrInvalidExchangeRate)

	_, err = calc.Compute(dec("1"), true, "cop", decPtr("1"))
	assert.ErrorIs(t, err, shared.ErrInvalidInput)
}

func TestCalculator_Compute_SubCentSubtotal(t *testing.T) {
	calc := DefaultCalculator()

	_, err := calc.Compute(dec("0.025"), true, valueobject.USD, nil)
	assert.ErrorIs(t, err, shared.ErrInvalidInput)

	a, err := calc.Compute(dec("0.030"), true, valueobject.USD, nil)
	require.NoError(t, err, "trailing zeros are still two places")
	assert.True(t, a.TaxAmount.Equal(dec("0.01")))
	assert.True(t, a.TotalInBaseCurrency.Equal(dec("0.04")))
	assert.True(t, a.TotalInBaseCurrency.Equal(valueobject.Round2(a.TotalInBaseCurrency)))
}
