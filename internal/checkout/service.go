package checkout

import (
	"context"
	"crypto/rand"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/safar/go-shop-api/internal/database"
	"github.com/safar/go-shop-api/internal/models"
	"github.com/safar/go-shop-api/internal/payment"
	"github.com/safar/go-shop-api/internal/pricing"
	"github.com/safar/go-shop-api/internal/store"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const maxRefCodeAttempts = 5

var (
	ErrMissingToken   = errors.New("payment token is required")
	ErrMissingAddress = errors.New("billing and shipping addresses are required")
	// ErrFinalizeFailed means the card was charged but the order could not be
	// completed. The underlying cause is logged, not returned.
	ErrFinalizeFailed = errors.New("order finalization failed after charge")
	// ErrChargeAlreadyRecorded means the gateway answered with a charge that
	// already paid for another order, so nothing new was charged.
	ErrChargeAlreadyRecorded = errors.New("this charge has already been recorded")
)

type Request struct {
	UserID            int64
	Token             string
	BillingAddressID  int64
	ShippingAddressID int64
}

type Result struct {
	OrderID   int64           `json:"order_id"`
	RefCode   string          `json:"ref_code"`
	PaymentID int64           `json:"payment_id"`
	Amount    decimal.Decimal `json:"amount"`
}

type Config struct {
	Currency string
	ClaimTTL time.Duration
}

type Service struct {
	db       *sql.DB
	gateway  payment.Gateway
	logger   *zap.Logger
	currency string
	claimTTL time.Duration

	random io.Reader
	now    func() time.Time
}

func NewService(db *sql.DB, gateway payment.Gateway, logger *zap.Logger, cfg Config) *Service {
	return &Service{
		db:       db,
		gateway:  gateway,
		logger:   logger,
		currency: cfg.Currency,
		claimTTL: cfg.ClaimTTL,
		random:   rand.Reader,
		now:      time.Now,
	}
}

// claim is what the charge needs from the claim transaction.
type claim struct {
	order *models.Order
	user  *models.User
	total decimal.Decimal
}

// Checkout charges the user's open order and completes it. The order is
// moved to the charging state first so a concurrent checkout of the same
// cart fails with database.ErrCheckoutInProgress. On any gateway failure
// the order goes back to open untouched and no payment is recorded. An
// order a coupon covers in full completes without contacting the gateway.
func (s *Service) Checkout(ctx context.Context, req Request) (*Result, error) {
	if strings.TrimSpace(req.Token) == "" {
		return nil, ErrMissingToken
	}
	if req.BillingAddressID <= 0 || req.ShippingAddressID <= 0 {
		return nil, ErrMissingAddress
	}

	c, err := s.claimOrder(ctx, req)
	if err != nil {
		return nil, err
	}

	logger := s.logger.With(
		zap.Int64("user_id", req.UserID),
		zap.Int64("order_id", c.order.ID),
		zap.Int("order_version", c.order.Version),
	)

	var chargeID string
	if amount := pricing.MinorUnits(c.total); amount > 0 {
		chargeID, err = s.charge(ctx, logger, req, c, amount)
		if err != nil {
			s.release(ctx, logger, c.order)
			return nil, err
		}
	} else {
		logger.Info("order total is zero, skipping charge")
	}

	result, err := s.finalize(ctx, req, c, chargeID)
	if err != nil {
		s.release(ctx, logger, c.order)

		if errors.Is(err, ErrChargeAlreadyRecorded) {
			logger.Warn("gateway returned a charge that is already recorded",
				zap.String("charge_id", chargeID),
				zap.Error(err),
			)
			return nil, err
		}

		logger.Error("charged order could not be completed",
			zap.String("charge_id", chargeID),
			zap.String("amount", c.total.StringFixed(2)),
			zap.Error(err),
		)
		return nil, fmt.Errorf("%w: order %d charge %s", ErrFinalizeFailed, c.order.ID, chargeID)
	}

	logger.Info("order completed",
		zap.String("ref_code", result.RefCode),
		zap.Int64("payment_id", result.PaymentID),
	)

	return result, nil
}

// charge saves the user's gateway customer and charges amount minor units
// to it. The caller releases the claim on error.
func (s *Service) charge(ctx context.Context, logger *zap.Logger, req Request, c *claim, amount int64) (string, error) {
	customerID, err := s.gateway.EnsureCustomer(ctx, payment.CustomerRequest{
		CustomerID: c.user.GatewayCustomerID,
		Email:      c.user.Email,
		Token:      req.Token,
	})
	if err != nil {
		logger.Info("gateway customer setup failed", zap.Error(err))
		return "", err
	}

	if customerID != c.user.GatewayCustomerID || !c.user.OneClickPurchasing {
		if err := store.SetGatewayCustomer(ctx, s.db, req.UserID, customerID); err != nil {
			return "", fmt.Errorf("save gateway customer: %w", err)
		}
	}

	chargeID, err := s.gateway.Charge(ctx, payment.ChargeRequest{
		CustomerID:     customerID,
		Amount:         amount,
		Currency:       s.currency,
		IdempotencyKey: idempotencyKey(c.order),
	})
	if err != nil {
		logger.Info("charge failed", zap.Error(err))
		return "", err
	}

	return chargeID, nil
}

func (s *Service) claimOrder(ctx context.Context, req Request) (*claim, error) {
	var c *claim
	staleBefore := s.now().Add(-s.claimTTL)

	err := database.WithRetry(ctx, s.db, database.DefaultTxOptions(), func(tx *sql.Tx) error {
		order, err := store.ClaimOpenOrder(ctx, tx, req.UserID, staleBefore)
		if err != nil {
			return err
		}

		if err := store.LoadOrderDetails(ctx, tx, order); err != nil {
			return err
		}
		if len(order.Items) == 0 {
			return database.ErrEmptyOrder
		}

		if _, err := store.GetUserAddress(ctx, tx, req.UserID, req.BillingAddressID, models.AddressBilling); err != nil {
			return err
		}
		if _, err := store.GetUserAddress(ctx, tx, req.UserID, req.ShippingAddressID, models.AddressShipping); err != nil {
			return err
		}

		user, err := store.GetUser(ctx, tx, req.UserID)
		if err != nil {
			return err
		}

		c = &claim{
			order: order,
			user:  user,
			total: pricing.OrderTotal(order.Items, order.Coupon),
		}
		return nil
	})

	if err != nil {
		return nil, err
	}

	return c, nil
}

func (s *Service) finalize(ctx context.Context, req Request, c *claim, chargeID string) (*Result, error) {
	// a cancelled request must not abandon a charge that already went through
	ctx = context.WithoutCancel(ctx)
	var result *Result

	err := database.WithRetry(ctx, s.db, database.DefaultTxOptions(), func(tx *sql.Tx) error {
		p, err := store.CreatePayment(ctx, tx, req.UserID, c.total, chargeID)
		if database.IsUniqueViolation(err, store.ChargeIDConstraint) {
			return fmt.Errorf("%w: charge %s", ErrChargeAlreadyRecorded, chargeID)
		}
		if err != nil {
			return err
		}

		refCode, err := s.uniqueRefCode(ctx, tx)
		if err != nil {
			return err
		}

		err = store.CompleteOrder(ctx, tx, store.CompleteOrderParams{
			OrderID:           c.order.ID,
			BillingAddressID:  req.BillingAddressID,
			ShippingAddressID: req.ShippingAddressID,
			PaymentID:         p.ID,
			RefCode:           refCode,
		})
		if err != nil {
			return err
		}

		result = &Result{
			OrderID:   c.order.ID,
			RefCode:   refCode,
			PaymentID: p.ID,
			Amount:    c.total,
		}
		return nil
	})

	if err != nil {
		return nil, err
	}

	return result, nil
}

func (s *Service) uniqueRefCode(ctx context.Context, q database.Querier) (string, error) {
	for attempt := 0; attempt < maxRefCodeAttempts; attempt++ {
		code, err := NewRefCode(s.random)
		if err != nil {
			return "", err
		}

		exists, err := store.RefCodeExists(ctx, q, code)
		if err != nil {
			return "", err
		}
		if !exists {
			return code, nil
		}
	}

	return "", fmt.Errorf("no free ref code after %d attempts", maxRefCodeAttempts)
}

// release reopens the order unless a newer checkout has since taken the
// claim over.
func (s *Service) release(ctx context.Context, logger *zap.Logger, order *models.Order) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()

	released, err := store.ReleaseOrderClaim(ctx, s.db, order.ID, *order.ChargingStartedAt)
	if err != nil {
		logger.Error("release order claim", zap.Error(err))
		return
	}
	if !released {
		logger.Warn("order claim was taken over, leaving it to the newer checkout")
	}
}

// idempotencyKey changes whenever the cart does, so a resubmitted checkout
// of an unchanged cart replays the original charge instead of a new one.
func idempotencyKey(order *models.Order) string {
	return fmt.Sprintf("order-%d-v%d", order.ID, order.Version)
}
