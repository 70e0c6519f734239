package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type User struct {
	ID                 int64     `json:"id"`
	Email              string    `json:"email"`
	Name               string    `json:"name"`
	GatewayCustomerID  string    `json:"-"`
	OneClickPurchasing bool      `json:"one_click_purchasing"`
	CreatedAt          time.Time `json:"created_at"`
	UpdatedAt          time.Time `json:"updated_at"`
	Version            int       `json:"version"`
}

type Item struct {
	ID            int64               `json:"id"`
	Title         string              `json:"title"`
	Category      Category            `json:"category"`
	Price         decimal.Decimal     `json:"price"`
	DiscountPrice decimal.NullDecimal `json:"discount_price"`
	Label         Label               `json:"label"`
	Slug          string              `json:"slug"`
	Description   string              `json:"description"`
	Image         string              `json:"image"`
	CreatedAt     time.Time           `json:"created_at"`
}

// Variation is a selectable axis of an item, such as "size".
type Variation struct {
	ID     int64  `json:"id"`
	ItemID int64  `json:"item_id"`
	Name   string `json:"name"`
}

// ItemVariation is one concrete value on a Variation axis.
type ItemVariation struct {
	ID          int64     `json:"id"`
	VariationID int64     `json:"variation_id"`
	Value       string    `json:"value"`
	Attachment  string    `json:"attachment"`
	Variation   Variation `json:"variation"`
}

type OrderItem struct {
	ID         int64           `json:"id"`
	UserID     int64           `json:"user_id"`
	ItemID     int64           `json:"item_id"`
	OrderID    *int64          `json:"order_id,omitempty"`
	Quantity   int             `json:"quantity"`
	Ordered    bool            `json:"ordered"`
	CreatedAt  time.Time       `json:"created_at"`
	UpdatedAt  time.Time       `json:"updated_at"`
	Item       Item            `json:"item"`
	Variations []ItemVariation `json:"item_variations"`
}

// VariationIDs returns the ids of the selected item variations.
func (oi *OrderItem) VariationIDs() []int64 {
	ids := make([]int64, 0, len(oi.Variations))
	for _, v := range oi.Variations {
		ids = append(ids, v.ID)
	}
	return ids
}

type Order struct {
	ID                int64       `json:"id"`
	UserID            int64       `json:"user_id"`
	Status            OrderStatus `json:"status"`
	Ordered           bool        `json:"ordered"`
	OrderedDate       time.Time   `json:"ordered_date"`
	RefCode           *string     `json:"ref_code,omitempty"`
	CouponID          *int64      `json:"coupon_id,omitempty"`
	BillingAddressID  *int64      `json:"billing_address_id,omitempty"`
	ShippingAddressID *int64      `json:"shipping_address_id,omitempty"`
	PaymentID         *int64      `json:"payment_id,omitempty"`
	ChargingStartedAt *time.Time  `json:"-"`
	CreatedAt         time.Time   `json:"created_at"`
	UpdatedAt         time.Time   `json:"updated_at"`
	Version           int         `json:"version"`
	Items             []OrderItem `json:"items,omitempty"`
	Coupon            *Coupon     `json:"coupon,omitempty"`
}

type Coupon struct {
	ID     int64           `json:"id"`
	Code   string          `json:"code"`
	Amount decimal.Decimal `json:"amount"`
}

type Address struct {
	ID               int64       `json:"id"`
	UserID           int64       `json:"user"`
	StreetAddress    string      `json:"street_address"`
	ApartmentAddress string      `json:"apartment_address"`
	Country          string      `json:"country"`
	Zip              string      `json:"zip"`
	AddressType      AddressType `json:"address_type"`
	Default          bool        `json:"default"`
}

type Payment struct {
	ID              int64           `json:"id"`
	UserID          int64           `json:"user_id"`
	Amount          decimal.Decimal `json:"amount"`
	GatewayChargeID string          `json:"-"`
	CreatedAt       time.Time       `json:"timestamp"`
}

type OrderStatus string

const (
	OrderStatusOpen      OrderStatus = "open"
	OrderStatusCharging  OrderStatus = "charging"
	OrderStatusCompleted OrderStatus = "completed"
)
