// Package pricing holds the money arithmetic for carts and orders. Every
// function is pure; callers load the rows and pass them in.
package pricing

import (
	"github.com/safar/go-shop-api/internal/models"
	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// UnitPrice is the discount price when the item has one, otherwise the list price.
func UnitPrice(item models.Item) decimal.Decimal {
	if item.DiscountPrice.Valid {
		return item.DiscountPrice.Decimal
	}
	return item.Price
}

// FinalPrice is the line total for quantity units of item.
func FinalPrice(item models.Item, quantity int) decimal.Decimal {
	return UnitPrice(item).Mul(decimal.NewFromInt(int64(quantity)))
}

// LineSavings is what the discount takes off a line; zero without a discount.
func LineSavings(item models.Item, quantity int) decimal.Decimal {
	if !item.DiscountPrice.Valid {
		return decimal.Zero
	}
	return item.Price.Sub(item.DiscountPrice.Decimal).Mul(decimal.NewFromInt(int64(quantity)))
}

// Subtotal sums the final prices of the order lines.
func Subtotal(lines []models.OrderItem) decimal.Decimal {
	total := decimal.Zero
	for _, line := range lines {
		total = total.Add(FinalPrice(line.Item, line.Quantity))
	}
	return total
}

// OrderTotal is the subtotal minus the coupon amount, never below zero.
func OrderTotal(lines []models.OrderItem, coupon *models.Coupon) decimal.Decimal {
	total := Subtotal(lines)
	if coupon != nil {
		total = total.Sub(coupon.Amount)
	}
	if total.IsNegative() {
		return decimal.Zero
	}
	return total
}

// MinorUnits converts an amount to the smallest currency unit, rounding half
// away from zero: 10.005 becomes 1001.
func MinorUnits(amount decimal.Decimal) int64 {
	return amount.Mul(hundred).Round(0).IntPart()
}
