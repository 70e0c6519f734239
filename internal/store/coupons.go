package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/safar/go-shop-api/internal/database"
	"github.com/safar/go-shop-api/internal/models"
	"github.com/shopspring/decimal"
)

func CreateCoupon(ctx context.Context, db *sql.DB, code string, amount decimal.Decimal) (*models.Coupon, error) {
	c := &models.Coupon{}

	err := db.QueryRowContext(ctx,
		`INSERT INTO coupons (code, amount) VALUES ($1, $2) RETURNING id, code, amount`,
		code, amount).Scan(&c.ID, &c.Code, &c.Amount)
	if err != nil {
		return nil, fmt.Errorf("create coupon: %w", err)
	}

	return c, nil
}

func GetCouponByCode(ctx context.Context, q database.Querier, code string) (*models.Coupon, error) {
	c := &models.Coupon{}

	err := q.QueryRowContext(ctx,
		`SELECT id, code, amount FROM coupons WHERE code = $1`,
		code).Scan(&c.ID, &c.Code, &c.Amount)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, database.ErrCouponNotFound
		}
		return nil, fmt.Errorf("get coupon: %w", err)
	}

	return c, nil
}

func getCoupon(ctx context.Context, q database.Querier, id int64) (*models.Coupon, error) {
	c := &models.Coupon{}

	err := q.QueryRowContext(ctx,
		`SELECT id, code, amount FROM coupons WHERE id = $1`,
		id).Scan(&c.ID, &c.Code, &c.Amount)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, database.ErrCouponNotFound
		}
		return nil, fmt.Errorf("get coupon: %w", err)
	}

	return c, nil
}

// ApplyCoupon attaches the coupon to the user's open order, replacing any
// coupon already there. An unknown code leaves the order untouched.
func ApplyCoupon(ctx context.Context, db *sql.DB, userID int64, code string) (*models.Coupon, error) {
	var coupon *models.Coupon

	err := database.WithRetry(ctx, db, database.DefaultTxOptions(), func(tx *sql.Tx) error {
		if err := lockUser(ctx, tx, userID); err != nil {
			return err
		}

		order, err := lockOpenOrder(ctx, tx, userID)
		if err != nil {
			if errors.Is(err, database.ErrOrderNotFound) {
				return database.ErrNoActiveOrder
			}
			return err
		}

		if order.Status == models.OrderStatusCharging {
			return database.ErrCheckoutInProgress
		}

		coupon, err = GetCouponByCode(ctx, tx, code)
		if err != nil {
			return err
		}

		_, err = tx.ExecContext(ctx,
			`UPDATE orders
			 SET coupon_id = $1, version = version + 1, updated_at = NOW()
			 WHERE id = $2`,
			coupon.ID, order.ID)
		if err != nil {
			return fmt.Errorf("apply coupon: %w", err)
		}

		return nil
	})

	if err != nil {
		return nil, err
	}

	return coupon, nil
}
