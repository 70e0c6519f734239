package testutil

import (
	"context"
	"database/sql"
	"fmt"
	"sync/atomic"
	"testing"

	"github.com/safar/go-shop-api/internal/models"
	"github.com/safar/go-shop-api/internal/store"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

var seq atomic.Int64

func next() int64 { return seq.Add(1) }

// Shop is a seeded catalog: a plain shirt, a discounted jacket with size and
// colour variations, and a user with one billing and one shipping address.
type Shop struct {
	User     *models.User
	Shirt    *models.Item
	Jacket   *models.Item
	Sizes    map[string]*models.ItemVariation
	Colours  map[string]*models.ItemVariation
	Billing  *models.Address
	Shipping *models.Address
}

func Seed(t *testing.T, db *sql.DB) *Shop {
	t.Helper()
	ctx := context.Background()
	n := next()

	shop := &Shop{
		Sizes:   map[string]*models.ItemVariation{},
		Colours: map[string]*models.ItemVariation{},
	}

	shop.User = NewUser(t, db)

	var err error
	shop.Shirt, err = store.CreateItem(ctx, db, store.NewItem{
		Title:    "Plain shirt",
		Category: models.CategoryShirt,
		Price:    decimal.RequireFromString("20.00"),
		Label:    models.LabelPrimary,
		Slug:     fmt.Sprintf("plain-shirt-%d", n),
	})
	require.NoError(t, err)

	discount := decimal.RequireFromString("12.50")
	shop.Jacket, err = store.CreateItem(ctx, db, store.NewItem{
		Title:         "Rain jacket",
		Category:      models.CategoryOutwear,
		Price:         decimal.RequireFromString("15.00"),
		DiscountPrice: &discount,
		Label:         models.LabelDanger,
		Slug:          fmt.Sprintf("rain-jacket-%d", n),
	})
	require.NoError(t, err)

	size, err := store.CreateVariation(ctx, db, shop.Jacket.ID, "size")
	require.NoError(t, err)
	colour, err := store.CreateVariation(ctx, db, shop.Jacket.ID, "colour")
	require.NoError(t, err)

	for _, v := range []string{"S", "M", "L"} {
		iv, err := store.CreateItemVariation(ctx, db, size.ID, v, "")
		require.NoError(t, err)
		shop.Sizes[v] = iv
	}
	for _, v := range []string{"red", "blue"} {
		iv, err := store.CreateItemVariation(ctx, db, colour.ID, v, "")
		require.NoError(t, err)
		shop.Colours[v] = iv
	}

	shop.Billing, shop.Shipping = NewAddresses(t, db, shop.User.ID)

	return shop
}

func NewUser(t *testing.T, db *sql.DB) *models.User {
	t.Helper()
	n := next()

	user, err := store.CreateUser(context.Background(), db, fmt.Sprintf("user%d@example.com", n), fmt.Sprintf("User %d", n))
	require.NoError(t, err)
	return user
}

func NewAddresses(t *testing.T, db *sql.DB, userID int64) (billing, shipping *models.Address) {
	t.Helper()
	ctx := context.Background()

	billing, err := store.CreateAddress(ctx, db, models.Address{
		UserID:        userID,
		StreetAddress: "1 Billing Rd",
		Country:       "US",
		Zip:           "10001",
		AddressType:   models.AddressBilling,
		Default:       true,
	})
	require.NoError(t, err)

	shipping, err = store.CreateAddress(ctx, db, models.Address{
		UserID:        userID,
		StreetAddress: "2 Shipping St",
		Country:       "US",
		Zip:           "10002",
		AddressType:   models.AddressShipping,
	})
	require.NoError(t, err)

	return billing, shipping
}

func NewCoupon(t *testing.T, db *sql.DB, amount string) *models.Coupon {
	t.Helper()

	c, err := store.CreateCoupon(context.Background(), db, fmt.Sprintf("SAVE%d", next()), decimal.RequireFromString(amount))
	require.NoError(t, err)
	return c
}
