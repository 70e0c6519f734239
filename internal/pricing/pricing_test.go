package pricing

import (
	"testing"

	"github.com/safar/go-shop-api/internal/models"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func item(price string, discount string) models.Item {
	it := models.Item{Price: dec(price)}
	if discount != "" {
		it.DiscountPrice = decimal.NullDecimal{Decimal: dec(discount), Valid: true}
	}
	return it
}

func TestFinalPrice(t *testing.T) {
	tests := []struct {
		name     string
		item     models.Item
		quantity int
		want     string
	}{
		{"list price", item("19.99", ""), 1, "19.99"},
		{"list price times quantity", item("19.99", ""), 3, "59.97"},
		{"discount price wins", item("19.99", "14.50"), 2, "29.00"},
		{"zero discount is still a discount", item("10.00", "0"), 4, "0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := FinalPrice(tt.item, tt.quantity)
			assert.True(t, got.Equal(dec(tt.want)), "expected %s, got %s", tt.want, got)
		})
	}
}

func TestFinalPriceMatchesUnitTimesQuantity(t *testing.T) {
	items := []models.Item{item("5.25", ""), item("5.25", "4.75"), item("120", "99.99")}

	for _, it := range items {
		for qty := 1; qty <= 10; qty++ {
			want := UnitPrice(it).Mul(decimal.NewFromInt(int64(qty)))
			assert.True(t, FinalPrice(it, qty).Equal(want))
		}
	}
}

func TestLineSavings(t *testing.T) {
	assert.True(t, LineSavings(item("10", ""), 3).IsZero())
	assert.True(t, LineSavings(item("10", "7.50"), 2).Equal(dec("5.00")))
}

func lines() []models.OrderItem {
	return []models.OrderItem{
		{Item: item("20.00", ""), Quantity: 2},
		{Item: item("15.00", "12.50"), Quantity: 1},
	}
}

func TestOrderTotal(t *testing.T) {
	assert.True(t, OrderTotal(lines(), nil).Equal(dec("52.50")))

	coupon := &models.Coupon{Code: "TEN", Amount: dec("10")}
	assert.True(t, OrderTotal(lines(), coupon).Equal(dec("42.50")))
}

func TestOrderTotalNeverNegative(t *testing.T) {
	coupon := &models.Coupon{Code: "HUGE", Amount: dec("500")}

	total := OrderTotal(lines(), coupon)
	assert.True(t, total.IsZero(), "expected 0, got %s", total)

	exact := &models.Coupon{Code: "EXACT", Amount: dec("52.50")}
	assert.True(t, OrderTotal(lines(), exact).IsZero())
}

func TestOrderTotalEmpty(t *testing.T) {
	assert.True(t, OrderTotal(nil, nil).IsZero())
	assert.True(t, OrderTotal(nil, &models.Coupon{Amount: dec("5")}).IsZero())
}

func TestMinorUnits(t *testing.T) {
	tests := []struct {
		amount string
		want   int64
	}{
		{"0", 0},
		{"42.50", 4250},
		{"19.99", 1999},
		{"10.005", 1001},
		{"10.004", 1000},
		{"0.295", 30},
	}

	for _, tt := range tests {
		t.Run(tt.amount, func(t *testing.T) {
			assert.Equal(t, tt.want, MinorUnits(dec(tt.amount)))
		})
	}
}
