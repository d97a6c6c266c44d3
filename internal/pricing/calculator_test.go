package pricing

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Additional-Code/orderhub/internal/entity"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestLineTotal(t *testing.T) {
	tests := []struct {
		name string
		line Line
		want string
	}{
		{"plain", Line{Price: dec("10.00"), Quantity: 2}, "20.00"},
		{"discount and tax", Line{Price: dec("10.00"), Quantity: 3, Discount: dec("5.00"), Tax: dec("1.50")}, "26.50"},
		{"round half up", Line{Price: dec("0.125"), Quantity: 1}, "0.13"},
		{"round half up small", Line{Price: dec("0.005"), Quantity: 1}, "0.01"},
		{"round down", Line{Price: dec("0.124"), Quantity: 1}, "0.12"},
		{"zero price", Line{Price: decimal.Zero, Quantity: 4}, "0.00"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := LineTotal(tt.line)
			assert.Equal(t, tt.want, got.StringFixed(Places))
		})
	}
}

func TestComputeTwoItemScenario(t *testing.T) {
	lines := []Line{
		{Price: dec("10.00"), Quantity: 2},
		{Price: dec("5.00"), Quantity: 1},
	}

	snap := Compute(lines, Adjustments{})
	assert.Equal(t, "25.00", snap.Subtotal.StringFixed(Places))
	assert.Equal(t, "25.00", snap.Total.StringFixed(Places))

	snap = Compute(lines, Adjustments{ShippingCost: dec("3.00")})
	assert.Equal(t, "25.00", snap.Subtotal.StringFixed(Places))
	assert.Equal(t, "28.00", snap.Total.StringFixed(Places))
}

func TestComputeAdjustments(t *testing.T) {
	lines := []Line{{Price: dec("19.99"), Quantity: 3, Discount: dec("2.00"), Tax: dec("1.10")}}

	snap := Compute(lines, Adjustments{ShippingCost: dec("4.50"), Tax: dec("0.40"), Discount: dec("10.00")})

	require.Len(t, snap.LineTotals, 1)
	assert.Equal(t, "59.07", snap.LineTotals[0].StringFixed(Places))
	assert.Equal(t, "59.07", snap.Subtotal.StringFixed(Places))
	assert.Equal(t, "53.97", snap.Total.StringFixed(Places))
}

func TestValidateLine(t *testing.T) {
	assert.NoError(t, ValidateLine(Line{Price: dec("1.00"), Quantity: 1}))
	assert.ErrorIs(t, ValidateLine(Line{Price: dec("1.00"), Quantity: 0}), ErrNonPositiveQuantity)
	assert.ErrorIs(t, ValidateLine(Line{Price: dec("-1.00"), Quantity: 1}), ErrNegativeAmount)
	assert.ErrorIs(t, ValidateLine(Line{Price: dec("1.00"), Quantity: 1, Tax: dec("-0.01")}), ErrNegativeAmount)
	assert.ErrorIs(t, ValidateLine(Line{Price: dec("1.00"), Quantity: 2, Discount: dec("2.01")}), ErrDiscountTooLarge)
}

func TestCheckAmount(t *testing.T) {
	tests := []struct {
		in   string
		want error
	}{
		{"0", nil},
		{"9999999999.99", nil},
		{"0.12345678", nil},
		{"10000000000", ErrAmountOutOfRange},
		{"1e11", ErrAmountOutOfRange},
		{"1e20000000", ErrAmountOutOfRange},
		{"1e-20000000", ErrAmountOutOfRange},
		{"0.000000001", ErrAmountOutOfRange},
		{"-0.01", ErrNegativeAmount},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			d, err := decimal.NewFromString(tt.in)
			require.NoError(t, err)

			start := time.Now()
			got := CheckAmount(d)
			assert.Less(t, time.Since(start), 100*time.Millisecond)
			if tt.want == nil {
				assert.NoError(t, got)
			} else {
				assert.ErrorIs(t, got, tt.want)
			}
		})
	}
}

func TestValidateLineBounds(t *testing.T) {
	assert.ErrorIs(t, ValidateLine(Line{Price: dec("1.00"), Quantity: MaxQuantity + 1}), ErrQuantityTooLarge)
	assert.ErrorIs(t, ValidateLine(Line{Price: dec("20000.00"), Quantity: MaxQuantity}), ErrAmountOutOfRange)
	assert.NoError(t, ValidateLine(Line{Price: dec("9999.99"), Quantity: MaxQuantity}))
}

func TestApplyRejectsOverflowingTotals(t *testing.T) {
	order := &entity.Order{
		Items: []entity.OrderItem{
			{Price: dec("6000000000.00"), Quantity: 1},
			{Price: dec("6000000000.00"), Quantity: 1},
		},
	}
	assert.ErrorIs(t, Apply(order), ErrAmountOutOfRange)

	huge := &entity.Order{Items: []entity.OrderItem{{Price: dec("1e20000000"), Quantity: 1}}}
	assert.ErrorIs(t, Apply(huge), ErrAmountOutOfRange)
}

func TestValidateAdjustments(t *testing.T) {
	assert.NoError(t, ValidateAdjustments(dec("10.00"), Adjustments{ShippingCost: dec("1.00"), Discount: dec("11.00")}))
	assert.ErrorIs(t, ValidateAdjustments(dec("10.00"), Adjustments{Discount: dec("10.01")}), ErrDiscountTooLarge)
	assert.ErrorIs(t, ValidateAdjustments(dec("10.00"), Adjustments{ShippingCost: dec("-1")}), ErrNegativeAmount)
}

func TestApplyIsIdempotent(t *testing.T) {
	order := &entity.Order{
		ShippingCost: dec("3.00"),
		Items: []entity.OrderItem{
			{Price: dec("10.00"), Quantity: 2},
			{Price: dec("5.00"), Quantity: 1, Tax: dec("0.255")},
		},
	}

	require.NoError(t, Apply(order))
	first := order.Clone()
	require.NoError(t, Apply(order))

	assert.Equal(t, "20.00", order.Items[0].Subtotal.StringFixed(Places))
	assert.Equal(t, "5.26", order.Items[1].Subtotal.StringFixed(Places))
	assert.Equal(t, "25.26", order.Subtotal.StringFixed(Places))
	assert.Equal(t, "28.26", order.Total.StringFixed(Places))
	assert.True(t, first.Total.Equal(order.Total))
	assert.True(t, first.Subtotal.Equal(order.Subtotal))
}

func TestApplyRejectsInvalidItems(t *testing.T) {
	order := &entity.Order{Items: []entity.OrderItem{{Price: dec("1.00"), Quantity: -1}}}

	err := Apply(order)

	assert.ErrorIs(t, err, ErrNonPositiveQuantity)
	assert.True(t, order.Total.IsZero())
}
