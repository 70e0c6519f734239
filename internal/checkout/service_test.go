package checkout_test

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/safar/go-shop-api/internal/checkout"
	"github.com/safar/go-shop-api/internal/database"
	"github.com/safar/go-shop-api/internal/models"
	"github.com/safar/go-shop-api/internal/payment"
	"github.com/safar/go-shop-api/internal/pricing"
	"github.com/safar/go-shop-api/internal/store"
	"github.com/safar/go-shop-api/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const claimTTL = time.Minute

func newService(db *sql.DB, gw payment.Gateway) *checkout.Service {
	return checkout.NewService(db, gw, zap.NewNop(), checkout.Config{
		Currency: "usd",
		ClaimTTL: claimTTL,
	})
}

func fillCart(t *testing.T, db *sql.DB, shop *testutil.Shop) {
	t.Helper()
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		_, err := store.AddToCart(ctx, db, store.AddToCartRequest{UserID: shop.User.ID, Slug: shop.Shirt.Slug})
		require.NoError(t, err)
	}
	_, err := store.AddToCart(ctx, db, store.AddToCartRequest{
		UserID:       shop.User.ID,
		Slug:         shop.Jacket.Slug,
		VariationIDs: []int64{shop.Sizes["M"].ID, shop.Colours["blue"].ID},
	})
	require.NoError(t, err)
}

func request(shop *testutil.Shop, token string) checkout.Request {
	return checkout.Request{
		UserID:            shop.User.ID,
		Token:             token,
		BillingAddressID:  shop.Billing.ID,
		ShippingAddressID: shop.Shipping.ID,
	}
}

func openOrderStatus(t *testing.T, db *sql.DB, userID int64) models.OrderStatus {
	t.Helper()
	order, err := store.GetOpenOrder(context.Background(), db, userID)
	require.NoError(t, err)
	return order.Status
}

func TestCheckout(t *testing.T) {
	db := testutil.NewPostgres(t)
	ctx := context.Background()

	t.Run("success completes order and records one payment", func(t *testing.T) {
		shop := testutil.Seed(t, db)
		fillCart(t, db, shop)
		coupon := testutil.NewCoupon(t, db, "2.50")
		_, err := store.ApplyCoupon(ctx, db, shop.User.ID, coupon.Code)
		require.NoError(t, err)

		before, err := store.GetOpenOrder(ctx, db, shop.User.ID)
		require.NoError(t, err)
		expected := pricing.OrderTotal(before.Items, before.Coupon)

		gw := payment.NewFakeGateway()
		result, err := newService(db, gw).Checkout(ctx, request(shop, "tok_visa"))
		require.NoError(t, err)

		assert.Regexp(t, `^[a-z0-9]{20}$`, result.RefCode)
		assert.True(t, result.Amount.Equal(expected), "charged %s, expected %s", result.Amount, expected)

		charges := gw.Charges()
		require.Len(t, charges, 1)
		assert.Equal(t, int64(5000), charges[0].Amount)
		assert.Equal(t, "usd", charges[0].Currency)

		order, err := store.GetOrder(ctx, db, shop.User.ID, result.OrderID)
		require.NoError(t, err)
		assert.True(t, order.Ordered)
		assert.Equal(t, models.OrderStatusCompleted, order.Status)
		require.NotNil(t, order.RefCode)
		assert.Equal(t, result.RefCode, *order.RefCode)
		assert.Equal(t, shop.Billing.ID, *order.BillingAddressID)
		assert.Equal(t, shop.Shipping.ID, *order.ShippingAddressID)
		assert.Equal(t, result.PaymentID, *order.PaymentID)
		require.Len(t, order.Items, 2)
		for _, line := range order.Items {
			assert.True(t, line.Ordered)
		}

		n, err := store.CountPayments(ctx, db, shop.User.ID)
		require.NoError(t, err)
		assert.Equal(t, 1, n)

		user, err := store.GetUser(ctx, db, shop.User.ID)
		require.NoError(t, err)
		assert.NotEmpty(t, user.GatewayCustomerID)
		assert.True(t, user.OneClickPurchasing)

		_, err = store.GetOpenOrder(ctx, db, shop.User.ID)
		assert.ErrorIs(t, err, database.ErrOrderNotFound)

		// the next add starts a fresh cart
		line, err := store.AddToCart(ctx, db, store.AddToCartRequest{UserID: shop.User.ID, Slug: shop.Shirt.Slug})
		require.NoError(t, err)
		assert.NotEqual(t, result.OrderID, *line.OrderID)
		assert.Equal(t, 1, line.Quantity)
	})

	t.Run("declined card leaves the order open", func(t *testing.T) {
		shop := testutil.Seed(t, db)
		fillCart(t, db, shop)

		_, err := newService(db, payment.NewFakeGateway()).Checkout(ctx, request(shop, payment.FakeTokenDecline))

		var perr *payment.Error
		require.ErrorAs(t, err, &perr)
		assert.Equal(t, payment.KindDeclined, perr.Kind)
		assert.Equal(t, "Your card was declined.", perr.Message)

		order, err := store.GetOpenOrder(ctx, db, shop.User.ID)
		require.NoError(t, err)
		assert.False(t, order.Ordered)
		assert.Equal(t, models.OrderStatusOpen, order.Status)
		assert.Nil(t, order.RefCode)
		assert.Nil(t, order.PaymentID)
		assert.Len(t, order.Items, 2)

		n, err := store.CountPayments(ctx, db, shop.User.ID)
		require.NoError(t, err)
		assert.Zero(t, n)
	})

	t.Run("returning customer reuses gateway customer", func(t *testing.T) {
		shop := testutil.Seed(t, db)
		gw := payment.NewFakeGateway()
		svc := newService(db, gw)

		fillCart(t, db, shop)
		_, err := svc.Checkout(ctx, request(shop, "tok_visa"))
		require.NoError(t, err)

		fillCart(t, db, shop)
		_, err = svc.Checkout(ctx, request(shop, "tok_mastercard"))
		require.NoError(t, err)

		assert.Equal(t, 1, gw.Customers())
		assert.Len(t, gw.Charges(), 2)
	})

	t.Run("no open order", func(t *testing.T) {
		shop := testutil.Seed(t, db)

		_, err := newService(db, payment.NewFakeGateway()).Checkout(ctx, request(shop, "tok_visa"))
		assert.ErrorIs(t, err, database.ErrOrderNotFound)
	})

	t.Run("empty order", func(t *testing.T) {
		shop := testutil.Seed(t, db)
		line, err := store.AddToCart(ctx, db, store.AddToCartRequest{UserID: shop.User.ID, Slug: shop.Shirt.Slug})
		require.NoError(t, err)
		require.NoError(t, store.DeleteOrderItem(ctx, db, shop.User.ID, line.ID))

		_, err = newService(db, payment.NewFakeGateway()).Checkout(ctx, request(shop, "tok_visa"))
		assert.ErrorIs(t, err, database.ErrEmptyOrder)
		assert.Equal(t, models.OrderStatusOpen, openOrderStatus(t, db, shop.User.ID))
	})

	t.Run("addresses must match type and owner", func(t *testing.T) {
		shop := testutil.Seed(t, db)
		other := testutil.NewUser(t, db)
		otherBilling, _ := testutil.NewAddresses(t, db, other.ID)
		fillCart(t, db, shop)
		gw := payment.NewFakeGateway()
		svc := newService(db, gw)

		swapped := request(shop, "tok_visa")
		swapped.BillingAddressID, swapped.ShippingAddressID = shop.Shipping.ID, shop.Billing.ID
		_, err := svc.Checkout(ctx, swapped)
		assert.ErrorIs(t, err, database.ErrAddressNotFound)

		foreign := request(shop, "tok_visa")
		foreign.BillingAddressID = otherBilling.ID
		_, err = svc.Checkout(ctx, foreign)
		assert.ErrorIs(t, err, database.ErrAddressNotFound)

		assert.Empty(t, gw.Charges())
		assert.Equal(t, models.OrderStatusOpen, openOrderStatus(t, db, shop.User.ID))
	})

	t.Run("missing token", func(t *testing.T) {
		shop := testutil.Seed(t, db)

		_, err := newService(db, payment.NewFakeGateway()).Checkout(ctx, request(shop, " "))
		assert.ErrorIs(t, err, checkout.ErrMissingToken)
	})

	t.Run("concurrent checkouts charge once", func(t *testing.T) {
		shop := testutil.Seed(t, db)
		fillCart(t, db, shop)
		gw := payment.NewFakeGateway()
		svc := newService(db, gw)

		concurrency := 5
		var wg sync.WaitGroup
		errs := make(chan error, concurrency)

		for i := 0; i < concurrency; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := svc.Checkout(ctx, request(shop, "tok_visa"))
				errs <- err
			}()
		}

		wg.Wait()
		close(errs)

		succeeded := 0
		for err := range errs {
			if err == nil {
				succeeded++
				continue
			}
			assert.True(t,
				errors.Is(err, database.ErrCheckoutInProgress) || errors.Is(err, database.ErrOrderNotFound),
				"unexpected error: %v", err)
		}

		assert.Equal(t, 1, succeeded)
		assert.Len(t, gw.Charges(), 1)

		n, err := store.CountPayments(ctx, db, shop.User.ID)
		require.NoError(t, err)
		assert.Equal(t, 1, n)
	})

	t.Run("cart is frozen while charging", func(t *testing.T) {
		shop := testutil.Seed(t, db)
		fillCart(t, db, shop)
		gw := newBlockingGateway()
		svc := newService(db, gw)

		done := make(chan error, 1)
		go func() {
			_, err := svc.Checkout(ctx, request(shop, "tok_visa"))
			done <- err
		}()

		<-gw.entered

		_, err := store.AddToCart(ctx, db, store.AddToCartRequest{UserID: shop.User.ID, Slug: shop.Shirt.Slug})
		assert.ErrorIs(t, err, database.ErrCheckoutInProgress)

		_, err = store.ApplyCoupon(ctx, db, shop.User.ID, testutil.NewCoupon(t, db, "1").Code)
		assert.ErrorIs(t, err, database.ErrCheckoutInProgress)

		_, err = svc.Checkout(ctx, request(shop, "tok_visa"))
		assert.ErrorIs(t, err, database.ErrCheckoutInProgress)

		close(gw.release)
		require.NoError(t, <-done)
	})

	t.Run("stale claim can be taken over", func(t *testing.T) {
		shop := testutil.Seed(t, db)
		fillCart(t, db, shop)

		err := database.WithTransaction(ctx, db, database.DefaultTxOptions(), func(tx *sql.Tx) error {
			_, err := store.ClaimOpenOrder(ctx, tx, shop.User.ID, time.Now().Add(-claimTTL))
			return err
		})
		require.NoError(t, err)

		svc := newService(db, payment.NewFakeGateway())
		_, err = svc.Checkout(ctx, request(shop, "tok_visa"))
		assert.ErrorIs(t, err, database.ErrCheckoutInProgress)

		svc.SetClock(func() time.Time { return time.Now().Add(2 * claimTTL) })
		result, err := svc.Checkout(ctx, request(shop, "tok_visa"))
		require.NoError(t, err)
		assert.NotEmpty(t, result.RefCode)
	})

	t.Run("resubmitting after a lost response replays the charge", func(t *testing.T) {
		shop := testutil.Seed(t, db)
		fillCart(t, db, shop)
		gw := &lostResponseGateway{FakeGateway: payment.NewFakeGateway()}
		svc := newService(db, gw)

		_, err := svc.Checkout(ctx, request(shop, "tok_visa"))
		var perr *payment.Error
		require.ErrorAs(t, err, &perr)
		assert.Equal(t, payment.KindNetwork, perr.Kind)
		assert.Equal(t, models.OrderStatusOpen, openOrderStatus(t, db, shop.User.ID))

		result, err := svc.Checkout(ctx, request(shop, "tok_visa"))
		require.NoError(t, err)

		// the processor saw one charge; the retry got the original back
		charges := gw.Charges()
		require.Len(t, charges, 1)
		assert.Equal(t, int64(5250), charges[0].Amount)

		page, err := store.ListPaymentsCursor(ctx, db, shop.User.ID, "", 10)
		require.NoError(t, err)
		payments := page.Items.([]models.Payment)
		require.Len(t, payments, 1)
		assert.Equal(t, result.PaymentID, payments[0].ID)
		assert.Equal(t, gw.lost, payments[0].GatewayChargeID)
	})

	t.Run("cart change produces a new idempotency key", func(t *testing.T) {
		shop := testutil.Seed(t, db)
		fillCart(t, db, shop)

		order, err := store.GetOpenOrder(ctx, db, shop.User.ID)
		require.NoError(t, err)
		key := checkout.IdempotencyKey(order)

		_, err = newService(db, payment.NewFakeGateway()).Checkout(ctx, request(shop, payment.FakeTokenNetworkDown))
		require.Error(t, err)

		order, err = store.GetOpenOrder(ctx, db, shop.User.ID)
		require.NoError(t, err)
		assert.Equal(t, key, checkout.IdempotencyKey(order))

		_, err = store.AddToCart(ctx, db, store.AddToCartRequest{UserID: shop.User.ID, Slug: shop.Shirt.Slug})
		require.NoError(t, err)

		order, err = store.GetOpenOrder(ctx, db, shop.User.ID)
		require.NoError(t, err)
		assert.NotEqual(t, key, checkout.IdempotencyKey(order))
	})

	t.Run("charge already recorded for another order", func(t *testing.T) {
		shop := testutil.Seed(t, db)
		gw := &fixedChargeGateway{
			FakeGateway: payment.NewFakeGateway(),
			chargeID:    fmt.Sprintf("ch_fixed_%d", shop.User.ID),
		}
		svc := newService(db, gw)

		fillCart(t, db, shop)
		_, err := svc.Checkout(ctx, request(shop, "tok_visa"))
		require.NoError(t, err)

		fillCart(t, db, shop)
		_, err = svc.Checkout(ctx, request(shop, "tok_visa"))
		assert.ErrorIs(t, err, checkout.ErrChargeAlreadyRecorded)
		assert.NotErrorIs(t, err, checkout.ErrFinalizeFailed)

		assert.Equal(t, models.OrderStatusOpen, openOrderStatus(t, db, shop.User.ID))

		n, err := store.CountPayments(ctx, db, shop.User.ID)
		require.NoError(t, err)
		assert.Equal(t, 1, n)
	})

	t.Run("order covered by a coupon completes without a charge", func(t *testing.T) {
		shop := testutil.Seed(t, db)
		fillCart(t, db, shop)
		coupon := testutil.NewCoupon(t, db, "100")
		_, err := store.ApplyCoupon(ctx, db, shop.User.ID, coupon.Code)
		require.NoError(t, err)

		gw := payment.NewFakeGateway()
		result, err := newService(db, gw).Checkout(ctx, request(shop, "tok_visa"))
		require.NoError(t, err)
		assert.True(t, result.Amount.IsZero())

		assert.Empty(t, gw.Charges())
		assert.Zero(t, gw.Customers())

		order, err := store.GetOrder(ctx, db, shop.User.ID, result.OrderID)
		require.NoError(t, err)
		assert.Equal(t, models.OrderStatusCompleted, order.Status)
		require.NotNil(t, order.PaymentID)
		assert.Equal(t, result.PaymentID, *order.PaymentID)

		page, err := store.ListPaymentsCursor(ctx, db, shop.User.ID, "", 10)
		require.NoError(t, err)
		payments := page.Items.([]models.Payment)
		require.Len(t, payments, 1)
		assert.True(t, payments[0].Amount.IsZero())
		assert.Empty(t, payments[0].GatewayChargeID)
	})

	t.Run("failed attempt does not release a claim taken over by a newer one", func(t *testing.T) {
		shop := testutil.Seed(t, db)
		fillCart(t, db, shop)

		first := newBlockingGateway()
		first.err = payment.NewError(payment.KindNetwork, "", nil)
		firstDone := make(chan error, 1)
		go func() {
			_, err := newService(db, first).Checkout(ctx, request(shop, "tok_visa"))
			firstDone <- err
		}()
		<-first.entered

		// same processor, so the saved customer stays valid
		second := newBlockingGateway()
		second.FakeGateway = first.FakeGateway
		late := newService(db, second)
		late.SetClock(func() time.Time { return time.Now().Add(2 * claimTTL) })
		secondDone := make(chan error, 1)
		go func() {
			_, err := late.Checkout(ctx, request(shop, "tok_visa"))
			secondDone <- err
		}()
		<-second.entered

		close(first.release)
		require.Error(t, <-firstDone)

		// the newer claim still holds the cart
		assert.Equal(t, models.OrderStatusCharging, openOrderStatus(t, db, shop.User.ID))
		_, err := store.AddToCart(ctx, db, store.AddToCartRequest{UserID: shop.User.ID, Slug: shop.Shirt.Slug})
		assert.ErrorIs(t, err, database.ErrCheckoutInProgress)

		close(second.release)
		require.NoError(t, <-secondDone)
		assert.Len(t, second.Charges(), 1)
	})
}

// blockingGateway holds every charge until release is closed, then fails
// it with err when set.
type blockingGateway struct {
	*payment.FakeGateway
	entered chan struct{}
	release chan struct{}
	once    sync.Once
	err     error
}

func newBlockingGateway() *blockingGateway {
	return &blockingGateway{
		FakeGateway: payment.NewFakeGateway(),
		entered:     make(chan struct{}),
		release:     make(chan struct{}),
	}
}

func (g *blockingGateway) Charge(ctx context.Context, req payment.ChargeRequest) (string, error) {
	g.once.Do(func() { close(g.entered) })
	<-g.release
	if g.err != nil {
		return "", g.err
	}
	return g.FakeGateway.Charge(ctx, req)
}

// lostResponseGateway charges on the first call but reports a network
// failure, as when the processor's reply never arrives.
type lostResponseGateway struct {
	*payment.FakeGateway
	lost string
}

func (g *lostResponseGateway) Charge(ctx context.Context, req payment.ChargeRequest) (string, error) {
	id, err := g.FakeGateway.Charge(ctx, req)
	if err != nil || g.lost != "" {
		return id, err
	}
	g.lost = id
	return "", payment.NewError(payment.KindNetwork, "", nil)
}

// fixedChargeGateway answers every charge with the same id.
type fixedChargeGateway struct {
	*payment.FakeGateway
	chargeID string
}

func (g *fixedChargeGateway) Charge(ctx context.Context, req payment.ChargeRequest) (string, error) {
	if _, err := g.FakeGateway.Charge(ctx, req); err != nil {
		return "", err
	}
	return g.chargeID, nil
}
