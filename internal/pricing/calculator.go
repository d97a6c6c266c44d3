// Package pricing derives line-item and order totals.
//
// All amounts are rounded to two fraction digits, half away from zero
// (0.125 becomes 0.13). Inputs accepted by Validate are non-negative, so this is
// the same as round-half-up.
package pricing

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/Additional-Code/orderhub/internal/entity"
)

// Places is the number of fraction digits kept on every amount.
const Places = 2

const (
	// MaxQuantity bounds a single line's quantity.
	MaxQuantity = 1_000_000

	// maxScale is the finest input precision accepted before rounding.
	maxScale = 8
	// maxExponent matches the integer digits of MaxAmount.
	maxExponent = 10
)

// MaxAmount is the exclusive upper bound of every stored amount. Amount columns
// are NUMERIC(12,2).
var MaxAmount = decimal.New(1, maxExponent)

var (
	ErrNonPositiveQuantity = errors.New("quantity must be positive")
	ErrQuantityTooLarge    = fmt.Errorf("quantity must not exceed %d", MaxQuantity)
	ErrNegativeAmount      = errors.New("amount must not be negative")
	ErrAmountOutOfRange    = fmt.Errorf("amount must be below %s with at most %d fraction digits", MaxAmount, maxScale)
	ErrDiscountTooLarge    = errors.New("discount exceeds amount")
)

// CheckAmount rejects negative amounts and amounts that cannot be stored. It only
// inspects the exponent before comparing, so oversized inputs such as 1e20000000
// are refused without being expanded.
func CheckAmount(d decimal.Decimal) error {
	if d.IsNegative() {
		return ErrNegativeAmount
	}
	if exp := d.Exponent(); exp < -maxScale || exp > maxExponent {
		return ErrAmountOutOfRange
	}
	if d.Cmp(MaxAmount) >= 0 {
		return ErrAmountOutOfRange
	}
	return nil
}

// CheckQuantity rejects quantities outside [1, MaxQuantity].
func CheckQuantity(q int) error {
	switch {
	case q <= 0:
		return ErrNonPositiveQuantity
	case q > MaxQuantity:
		return ErrQuantityTooLarge
	}
	return nil
}

// Line is the input of a single line-item computation.
type Line struct {
	Price    decimal.Decimal
	Quantity int
	Discount decimal.Decimal
	Tax      decimal.Decimal
}

// Adjustments are the order-level amounts applied on top of the subtotal.
type Adjustments struct {
	ShippingCost decimal.Decimal
	Tax          decimal.Decimal
	Discount     decimal.Decimal
}

// Snapshot is the result of an order computation.
type Snapshot struct {
	LineTotals []decimal.Decimal
	Subtotal   decimal.Decimal
	Total      decimal.Decimal
}

// Round applies the package rounding rule.
func Round(d decimal.Decimal) decimal.Decimal {
	return d.Round(Places)
}

// LineTotal returns price*quantity - discount + tax.
func LineTotal(l Line) decimal.Decimal {
	gross := l.Price.Mul(decimal.NewFromInt(int64(l.Quantity)))
	return Round(gross.Sub(l.Discount).Add(l.Tax))
}

// Compute derives every line total, the subtotal and the order total.
// It has no side effects and returns the same snapshot for the same input.
func Compute(lines []Line, adj Adjustments) Snapshot {
	snap := Snapshot{
		LineTotals: make([]decimal.Decimal, len(lines)),
		Subtotal:   decimal.Zero,
	}
	for i, l := range lines {
		total := LineTotal(l)
		snap.LineTotals[i] = total
		snap.Subtotal = snap.Subtotal.Add(total)
	}
	snap.Subtotal = Round(snap.Subtotal)
	snap.Total = Round(snap.Subtotal.
		Add(adj.ShippingCost).
		Add(adj.Tax).
		Sub(adj.Discount))
	return snap
}

// ValidateLine rejects lines whose total could not be meaningful or stored.
func ValidateLine(l Line) error {
	if err := CheckQuantity(l.Quantity); err != nil {
		return err
	}
	for _, amount := range []decimal.Decimal{l.Price, l.Discount, l.Tax} {
		if err := CheckAmount(amount); err != nil {
			return err
		}
	}
	gross := l.Price.Mul(decimal.NewFromInt(int64(l.Quantity)))
	if gross.Add(l.Tax).Cmp(MaxAmount) >= 0 {
		return ErrAmountOutOfRange
	}
	if l.Discount.GreaterThan(gross) {
		return ErrDiscountTooLarge
	}
	return nil
}

// ValidateAdjustments rejects negative or unstorable adjustments, discounts that
// would push the total below zero and subtotals that overflow.
func ValidateAdjustments(subtotal decimal.Decimal, adj Adjustments) error {
	for _, amount := range []decimal.Decimal{adj.ShippingCost, adj.Tax, adj.Discount} {
		if err := CheckAmount(amount); err != nil {
			return err
		}
	}
	gross := subtotal.Add(adj.ShippingCost).Add(adj.Tax)
	if subtotal.Cmp(MaxAmount) >= 0 || gross.Cmp(MaxAmount) >= 0 {
		return ErrAmountOutOfRange
	}
	if adj.Discount.GreaterThan(gross) {
		return ErrDiscountTooLarge
	}
	return nil
}

// Apply recomputes item subtotals and order totals in place.
func Apply(order *entity.Order) error {
	if order == nil {
		return errors.New("nil order")
	}
	lines := make([]Line, len(order.Items))
	for i, item := range order.Items {
		for _, amount := range []decimal.Decimal{item.Price, item.Discount, item.Tax} {
			if err := CheckAmount(amount); err != nil {
				return fmt.Errorf("item %d: %w", i, err)
			}
		}
		lines[i] = Line{
			Price:    Round(item.Price),
			Quantity: item.Quantity,
			Discount: Round(item.Discount),
			Tax:      Round(item.Tax),
		}
		if err := ValidateLine(lines[i]); err != nil {
			return fmt.Errorf("item %d: %w", i, err)
		}
	}

	for _, amount := range []decimal.Decimal{order.ShippingCost, order.Tax, order.Discount} {
		if err := CheckAmount(amount); err != nil {
			return err
		}
	}
	adj := Adjustments{
		ShippingCost: Round(order.ShippingCost),
		Tax:          Round(order.Tax),
		Discount:     Round(order.Discount),
	}
	snap := Compute(lines, adj)
	if err := ValidateAdjustments(snap.Subtotal, adj); err != nil {
		return err
	}

	for i := range order.Items {
		order.Items[i].Price = lines[i].Price
		order.Items[i].Discount = lines[i].Discount
		order.Items[i].Tax = lines[i].Tax
		order.Items[i].Subtotal = snap.LineTotals[i]
	}
	order.ShippingCost = adj.ShippingCost
	order.Tax = adj.Tax
	order.Discount = adj.Discount
	order.Subtotal = snap.Subtotal
	order.Total = snap.Total
	return nil
}
