package store_test

import (
	"context"
	"fmt"
	"testing"

	"github.com/safar/go-shop-api/internal/database"
	"github.com/safar/go-shop-api/internal/models"
	"github.com/safar/go-shop-api/internal/store"
	"github.com/safar/go-shop-api/internal/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestListPaymentsCursor(t *testing.T) {
	db := testutil.NewPostgres(t)
	ctx := context.Background()
	user := testutil.NewUser(t, db)
	other := testutil.NewUser(t, db)

	for i := 0; i < 5; i++ {
		_, err := store.CreatePayment(ctx, db, user.ID, decimal.NewFromInt(int64(i+1)), fmt.Sprintf("ch_%d_%d", user.ID, i))
		require.NoError(t, err)
	}
	_, err := store.CreatePayment(ctx, db, other.ID, decimal.NewFromInt(99), fmt.Sprintf("ch_%d_x", other.ID))
	require.NoError(t, err)

	var seen []int64
	cursor := ""
	for pages := 0; pages < 10; pages++ {
		page, err := store.ListPaymentsCursor(ctx, db, user.ID, cursor, 2)
		require.NoError(t, err)

		for _, p := range page.Items.([]models.Payment) {
			assert.Equal(t, user.ID, p.UserID)
			seen = append(seen, p.ID)
		}

		if !page.HasMore {
			assert.Empty(t, page.NextCursor)
			break
		}
		cursor = page.NextCursor
	}

	require.Len(t, seen, 5)
	for i := 1; i < len(seen); i++ {
		assert.Greater(t, seen[i-1], seen[i], "payments must be newest first")
	}

	n, err := store.CountPayments(ctx, db, user.ID)
	require.NoError(t, err)
	assert.Equal(t, 5, n)
}

func TestCreatePaymentRejectsDuplicateCharge(t *testing.T) {
	db := testutil.NewPostgres(t)
	ctx := context.Background()
	user := testutil.NewUser(t, db)

	_, err := store.CreatePayment(ctx, db, user.ID, decimal.NewFromInt(10), "ch_dup")
	require.NoError(t, err)

	_, err = store.CreatePayment(ctx, db, user.ID, decimal.NewFromInt(10), "ch_dup")
	assert.True(t, database.IsUniqueViolation(err, store.ChargeIDConstraint))
}

func TestCreatePaymentWithoutCharge(t *testing.T) {
	db := testutil.NewPostgres(t)
	ctx := context.Background()
	user := testutil.NewUser(t, db)

	// any number of uncharged payments may coexist
	for i := 0; i < 2; i++ {
		p, err := store.CreatePayment(ctx, db, user.ID, decimal.Zero, "")
		require.NoError(t, err)
		assert.Empty(t, p.GatewayChargeID)
		assert.True(t, p.Amount.IsZero())
	}

	page, err := store.ListPaymentsCursor(ctx, db, user.ID, "", 10)
	require.NoError(t, err)
	payments := page.Items.([]models.Payment)
	require.Len(t, payments, 2)
	assert.Empty(t, payments[0].GatewayChargeID)
}
