package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/safar/go-shop-api/internal/database"
	"github.com/safar/go-shop-api/internal/models"
)

const orderColumns = `id, user_id, status, ordered, ordered_date, ref_code, coupon_id,
	billing_address_id, shipping_address_id, payment_id, charging_started_at,
	created_at, updated_at, version`

func scanOrder(row interface{ Scan(...any) error }, order *models.Order) error {
	return row.Scan(
		&order.ID,
		&order.UserID,
		&order.Status,
		&order.Ordered,
		&order.OrderedDate,
		&order.RefCode,
		&order.CouponID,
		&order.BillingAddressID,
		&order.ShippingAddressID,
		&order.PaymentID,
		&order.ChargingStartedAt,
		&order.CreatedAt,
		&order.UpdatedAt,
		&order.Version,
	)
}

// lockOpenOrder row-locks the user's unordered order for the rest of tx.
func lockOpenOrder(ctx context.Context, tx *sql.Tx, userID int64) (*models.Order, error) {
	order := &models.Order{}

	query := `SELECT ` + orderColumns + ` FROM orders WHERE user_id = $1 AND NOT ordered FOR UPDATE`

	if err := scanOrder(tx.QueryRowContext(ctx, query, userID), order); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, database.ErrOrderNotFound
		}
		return nil, fmt.Errorf("lock open order: %w", err)
	}

	return order, nil
}

func createOpenOrder(ctx context.Context, tx *sql.Tx, userID int64) (*models.Order, error) {
	order := &models.Order{}

	query := `
		INSERT INTO orders (user_id, status, ordered, ordered_date, created_at, updated_at, version)
		VALUES ($1, $2, FALSE, NOW(), NOW(), NOW(), 1)
		RETURNING ` + orderColumns

	if err := scanOrder(tx.QueryRowContext(ctx, query, userID, models.OrderStatusOpen), order); err != nil {
		return nil, fmt.Errorf("create order: %w", err)
	}

	return order, nil
}

func bumpOrderVersion(ctx context.Context, tx *sql.Tx, orderID int64) error {
	_, err := tx.ExecContext(ctx,
		`UPDATE orders SET version = version + 1, updated_at = NOW() WHERE id = $1`,
		orderID)
	if err != nil {
		return fmt.Errorf("bump order version: %w", err)
	}
	return nil
}

// GetOpenOrder loads the user's cart with its lines, their variations and
// the coupon from one snapshot.
func GetOpenOrder(ctx context.Context, db *sql.DB, userID int64) (*models.Order, error) {
	var order *models.Order

	err := database.WithTransaction(ctx, db, database.ReadOnlyTxOptions(), func(tx *sql.Tx) error {
		order = &models.Order{}

		query := `SELECT ` + orderColumns + ` FROM orders WHERE user_id = $1 AND NOT ordered`

		if err := scanOrder(tx.QueryRowContext(ctx, query, userID), order); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return database.ErrOrderNotFound
			}
			return fmt.Errorf("get open order: %w", err)
		}

		return LoadOrderDetails(ctx, tx, order)
	})

	if err != nil {
		return nil, err
	}

	return order, nil
}

func GetOrder(ctx context.Context, db *sql.DB, userID, id int64) (*models.Order, error) {
	order := &models.Order{}

	query := `SELECT ` + orderColumns + ` FROM orders WHERE id = $1 AND user_id = $2`

	if err := scanOrder(db.QueryRowContext(ctx, query, id, userID), order); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, database.ErrOrderNotFound
		}
		return nil, fmt.Errorf("get order: %w", err)
	}

	if err := LoadOrderDetails(ctx, db, order); err != nil {
		return nil, err
	}

	return order, nil
}

// LoadOrderDetails fills order.Items and order.Coupon.
func LoadOrderDetails(ctx context.Context, q database.Querier, order *models.Order) error {
	items, err := loadOrderLines(ctx, q, order.ID)
	if err != nil {
		return err
	}
	order.Items = items

	order.Coupon = nil
	if order.CouponID != nil {
		coupon, err := getCoupon(ctx, q, *order.CouponID)
		if err != nil && !errors.Is(err, database.ErrCouponNotFound) {
			return err
		}
		order.Coupon = coupon
	}

	return nil
}

func loadOrderLines(ctx context.Context, q database.Querier, orderID int64) ([]models.OrderItem, error) {
	query := `
		SELECT oi.id, oi.user_id, oi.item_id, oi.order_id, oi.quantity, oi.ordered, oi.created_at, oi.updated_at,
		       i.id, i.title, i.category, i.price, i.discount_price, i.label, i.slug, i.description, i.image, i.created_at
		FROM order_items oi
		JOIN items i ON i.id = oi.item_id
		WHERE oi.order_id = $1
		ORDER BY oi.id`

	rows, err := q.QueryContext(ctx, query, orderID)
	if err != nil {
		return nil, fmt.Errorf("get order items: %w", err)
	}
	defer rows.Close()

	items := []models.OrderItem{}
	index := make(map[int64]int)
	for rows.Next() {
		var oi models.OrderItem
		err := rows.Scan(
			&oi.ID,
			&oi.UserID,
			&oi.ItemID,
			&oi.OrderID,
			&oi.Quantity,
			&oi.Ordered,
			&oi.CreatedAt,
			&oi.UpdatedAt,
			&oi.Item.ID,
			&oi.Item.Title,
			&oi.Item.Category,
			&oi.Item.Price,
			&oi.Item.DiscountPrice,
			&oi.Item.Label,
			&oi.Item.Slug,
			&oi.Item.Description,
			&oi.Item.Image,
			&oi.Item.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan order item: %w", err)
		}
		oi.Variations = []models.ItemVariation{}
		index[oi.ID] = len(items)
		items = append(items, oi)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	if len(items) == 0 {
		return items, nil
	}

	variationsQuery := `
		SELECT oiv.order_item_id, iv.id, iv.variation_id, iv.value, iv.attachment, v.id, v.item_id, v.name
		FROM order_item_variations oiv
		JOIN order_items oi ON oi.id = oiv.order_item_id
		JOIN item_variations iv ON iv.id = oiv.item_variation_id
		JOIN variations v ON v.id = iv.variation_id
		WHERE oi.order_id = $1
		ORDER BY oiv.order_item_id, v.id`

	vrows, err := q.QueryContext(ctx, variationsQuery, orderID)
	if err != nil {
		return nil, fmt.Errorf("get order item variations: %w", err)
	}
	defer vrows.Close()

	for vrows.Next() {
		var orderItemID int64
		var iv models.ItemVariation
		err := vrows.Scan(
			&orderItemID,
			&iv.ID,
			&iv.VariationID,
			&iv.Value,
			&iv.Attachment,
			&iv.Variation.ID,
			&iv.Variation.ItemID,
			&iv.Variation.Name,
		)
		if err != nil {
			return nil, fmt.Errorf("scan order item variation: %w", err)
		}
		if i, ok := index[orderItemID]; ok {
			items[i].Variations = append(items[i].Variations, iv)
		}
	}

	if err := vrows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return items, nil
}

// ClaimOpenOrder moves the user's open order into the charging state. A
// charging order can only be claimed again once its claim started before
// staleBefore.
func ClaimOpenOrder(ctx context.Context, tx *sql.Tx, userID int64, staleBefore time.Time) (*models.Order, error) {
	order, err := lockOpenOrder(ctx, tx, userID)
	if err != nil {
		return nil, err
	}

	if order.Status == models.OrderStatusCharging &&
		order.ChargingStartedAt != nil && order.ChargingStartedAt.After(staleBefore) {
		return nil, database.ErrCheckoutInProgress
	}

	err = tx.QueryRowContext(ctx,
		`UPDATE orders
		 SET status = $1, charging_started_at = NOW(), updated_at = NOW()
		 WHERE id = $2
		 RETURNING status, charging_started_at, updated_at`,
		models.OrderStatusCharging, order.ID).Scan(&order.Status, &order.ChargingStartedAt, &order.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("claim order: %w", err)
	}

	return order, nil
}

// ReleaseOrderClaim returns a charging order to the open state after a
// failed charge. claimedAt is the claim's charging_started_at; a claim that
// was taken over by a newer checkout is left alone.
func ReleaseOrderClaim(ctx context.Context, db *sql.DB, orderID int64, claimedAt time.Time) (bool, error) {
	result, err := db.ExecContext(ctx,
		`UPDATE orders
		 SET status = $1, charging_started_at = NULL, updated_at = NOW()
		 WHERE id = $2 AND status = $3 AND charging_started_at = $4`,
		models.OrderStatusOpen, orderID, models.OrderStatusCharging, claimedAt)
	if err != nil {
		return false, fmt.Errorf("release order claim: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("get rows affected: %w", err)
	}

	return rowsAffected == 1, nil
}

type CompleteOrderParams struct {
	OrderID           int64
	BillingAddressID  int64
	ShippingAddressID int64
	PaymentID         int64
	RefCode           string
}

// CompleteOrder freezes the order lines and marks the charging order as
// ordered. It must run in the same transaction that records the payment.
func CompleteOrder(ctx context.Context, tx *sql.Tx, p CompleteOrderParams) error {
	_, err := tx.ExecContext(ctx,
		`UPDATE order_items SET ordered = TRUE, updated_at = NOW() WHERE order_id = $1`,
		p.OrderID)
	if err != nil {
		return fmt.Errorf("mark order items ordered: %w", err)
	}

	result, err := tx.ExecContext(ctx,
		`UPDATE orders
		 SET status = $1,
		     ordered = TRUE,
		     billing_address_id = $2,
		     shipping_address_id = $3,
		     payment_id = $4,
		     ref_code = $5,
		     charging_started_at = NULL,
		     updated_at = NOW(),
		     version = version + 1
		 WHERE id = $6 AND status = $7`,
		models.OrderStatusCompleted, p.BillingAddressID, p.ShippingAddressID, p.PaymentID, p.RefCode,
		p.OrderID, models.OrderStatusCharging)
	if err != nil {
		return fmt.Errorf("complete order: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return database.ErrOptimisticLockFailed
	}

	return nil
}

func RefCodeExists(ctx context.Context, q database.Querier, code string) (bool, error) {
	var exists bool
	err := q.QueryRowContext(ctx,
		"SELECT EXISTS(SELECT 1 FROM orders WHERE ref_code = $1)",
		code).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check ref code: %w", err)
	}
	return exists, nil
}
