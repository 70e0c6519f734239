package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"slices"

	"github.com/lib/pq"
	"github.com/safar/go-shop-api/internal/database"
	"github.com/safar/go-shop-api/internal/models"
)

type AddToCartRequest struct {
	UserID       int64
	Slug         string
	VariationIDs []int64
}

// DecrementRequest removes one unit of an item from the cart. VariationIDs
// is optional; without it the oldest line for the item is decremented.
type DecrementRequest struct {
	UserID       int64
	Slug         string
	VariationIDs []int64
}

// cartLine is a not yet ordered order item with its variation selection.
type cartLine struct {
	ID           int64
	OrderID      *int64
	Quantity     int
	VariationIDs []int64
}

// normalizeIDs returns a sorted copy of ids without duplicates.
func normalizeIDs(ids []int64) []int64 {
	out := slices.Clone(ids)
	slices.Sort(out)
	return slices.Compact(out)
}

// sameVariationSet reports whether a and b hold the same ids. Both must be
// normalized.
func sameVariationSet(a, b []int64) bool {
	return slices.Equal(a, b)
}

func findCartLines(ctx context.Context, tx *sql.Tx, userID, itemID int64) ([]cartLine, error) {
	rows, err := tx.QueryContext(ctx,
		`SELECT oi.id, oi.order_id, oi.quantity,
		        COALESCE(array_agg(oiv.item_variation_id ORDER BY oiv.item_variation_id)
		                 FILTER (WHERE oiv.item_variation_id IS NOT NULL), '{}')
		 FROM order_items oi
		 LEFT JOIN order_item_variations oiv ON oiv.order_item_id = oi.id
		 WHERE oi.user_id = $1 AND oi.item_id = $2 AND NOT oi.ordered
		 GROUP BY oi.id
		 ORDER BY oi.id`,
		userID, itemID)
	if err != nil {
		return nil, fmt.Errorf("find cart lines: %w", err)
	}
	defer rows.Close()

	var lines []cartLine
	for rows.Next() {
		var line cartLine
		var ids pq.Int64Array
		if err := rows.Scan(&line.ID, &line.OrderID, &line.Quantity, &ids); err != nil {
			return nil, fmt.Errorf("scan cart line: %w", err)
		}
		line.VariationIDs = normalizeIDs(ids)
		lines = append(lines, line)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return lines, nil
}

// AddToCart puts one unit of the item with the given variation selection in
// the user's open order, creating the order when there is none. Adding the
// same item and selection again increments the existing line.
func AddToCart(ctx context.Context, db *sql.DB, req AddToCartRequest) (*models.OrderItem, error) {
	selected := normalizeIDs(req.VariationIDs)
	var line *models.OrderItem

	err := database.WithRetry(ctx, db, database.DefaultTxOptions(), func(tx *sql.Tx) error {
		item, err := GetItemBySlug(ctx, tx, req.Slug)
		if err != nil {
			return err
		}

		if err := validateVariationSelection(ctx, tx, item.ID, selected); err != nil {
			return err
		}

		// taken before the order lookup so two first adds cannot both create a cart
		if err := lockUser(ctx, tx, req.UserID); err != nil {
			return err
		}

		order, err := lockOpenOrder(ctx, tx, req.UserID)
		if errors.Is(err, database.ErrOrderNotFound) {
			order, err = createOpenOrder(ctx, tx, req.UserID)
		}
		if err != nil {
			return err
		}

		if order.Status == models.OrderStatusCharging {
			return database.ErrCheckoutInProgress
		}

		candidates, err := findCartLines(ctx, tx, req.UserID, item.ID)
		if err != nil {
			return err
		}

		var match *cartLine
		for i := range candidates {
			if sameVariationSet(candidates[i].VariationIDs, selected) {
				match = &candidates[i]
				break
			}
		}

		line = &models.OrderItem{}
		switch {
		case match != nil && match.OrderID != nil && *match.OrderID == order.ID:
			err = tx.QueryRowContext(ctx,
				`UPDATE order_items
				 SET quantity = quantity + 1, updated_at = NOW()
				 WHERE id = $1
				 RETURNING id, user_id, item_id, order_id, quantity, ordered, created_at, updated_at`,
				match.ID).Scan(orderItemDest(line)...)
			if err != nil {
				return fmt.Errorf("increment order item: %w", err)
			}

		case match != nil:
			// dropped from the cart earlier; reuse the row as a fresh line
			err = tx.QueryRowContext(ctx,
				`UPDATE order_items
				 SET order_id = $1, quantity = 1, updated_at = NOW()
				 WHERE id = $2
				 RETURNING id, user_id, item_id, order_id, quantity, ordered, created_at, updated_at`,
				order.ID, match.ID).Scan(orderItemDest(line)...)
			if err != nil {
				return fmt.Errorf("relink order item: %w", err)
			}

		default:
			err = tx.QueryRowContext(ctx,
				`INSERT INTO order_items (user_id, item_id, order_id, quantity, ordered, created_at, updated_at)
				 VALUES ($1, $2, $3, 1, FALSE, NOW(), NOW())
				 RETURNING id, user_id, item_id, order_id, quantity, ordered, created_at, updated_at`,
				req.UserID, item.ID, order.ID).Scan(orderItemDest(line)...)
			if err != nil {
				return fmt.Errorf("create order item: %w", err)
			}

			if len(selected) > 0 {
				_, err = tx.ExecContext(ctx,
					`INSERT INTO order_item_variations (order_item_id, item_variation_id)
					 SELECT $1, unnest($2::bigint[])`,
					line.ID, pq.Array(selected))
				if err != nil {
					return fmt.Errorf("attach variations: %w", err)
				}
			}
		}

		line.Item = *item
		return bumpOrderVersion(ctx, tx, order.ID)
	})

	if err != nil {
		return nil, err
	}

	return line, nil
}

func orderItemDest(oi *models.OrderItem) []any {
	return []any{
		&oi.ID,
		&oi.UserID,
		&oi.ItemID,
		&oi.OrderID,
		&oi.Quantity,
		&oi.Ordered,
		&oi.CreatedAt,
		&oi.UpdatedAt,
	}
}

// DecrementQuantity takes one unit of the item off the user's open order.
// A line at quantity one is unlinked from the order; the row itself is kept.
func DecrementQuantity(ctx context.Context, db *sql.DB, req DecrementRequest) error {
	selected := normalizeIDs(req.VariationIDs)

	return database.WithRetry(ctx, db, database.DefaultTxOptions(), func(tx *sql.Tx) error {
		item, err := GetItemBySlug(ctx, tx, req.Slug)
		if err != nil {
			return err
		}

		if err := lockUser(ctx, tx, req.UserID); err != nil {
			return err
		}

		order, err := lockOpenOrder(ctx, tx, req.UserID)
		if err != nil {
			if errors.Is(err, database.ErrOrderNotFound) {
				return database.ErrNoActiveOrder
			}
			return err
		}

		if order.Status == models.OrderStatusCharging {
			return database.ErrCheckoutInProgress
		}

		candidates, err := findCartLines(ctx, tx, req.UserID, item.ID)
		if err != nil {
			return err
		}

		var match *cartLine
		for i := range candidates {
			c := &candidates[i]
			if c.OrderID == nil || *c.OrderID != order.ID {
				continue
			}
			if len(req.VariationIDs) > 0 && !sameVariationSet(c.VariationIDs, selected) {
				continue
			}
			match = c
			break
		}

		if match == nil {
			return database.ErrItemNotInOrder
		}

		if match.Quantity > 1 {
			_, err = tx.ExecContext(ctx,
				`UPDATE order_items SET quantity = quantity - 1, updated_at = NOW() WHERE id = $1`,
				match.ID)
		} else {
			_, err = tx.ExecContext(ctx,
				`UPDATE order_items SET order_id = NULL, updated_at = NOW() WHERE id = $1`,
				match.ID)
		}
		if err != nil {
			return fmt.Errorf("update order item quantity: %w", err)
		}

		return bumpOrderVersion(ctx, tx, order.ID)
	})
}

// DeleteOrderItem removes a not yet ordered line owned by userID.
func DeleteOrderItem(ctx context.Context, db *sql.DB, userID, id int64) error {
	return database.WithRetry(ctx, db, database.DefaultTxOptions(), func(tx *sql.Tx) error {
		if err := lockUser(ctx, tx, userID); err != nil {
			return err
		}

		var orderID *int64
		err := tx.QueryRowContext(ctx,
			`SELECT order_id FROM order_items
			 WHERE id = $1 AND user_id = $2 AND NOT ordered
			 FOR UPDATE`,
			id, userID).Scan(&orderID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return database.ErrOrderItemNotFound
			}
			return fmt.Errorf("lock order item: %w", err)
		}

		if orderID != nil {
			order, err := lockOpenOrder(ctx, tx, userID)
			if err != nil && !errors.Is(err, database.ErrOrderNotFound) {
				return err
			}
			if order != nil && order.ID == *orderID {
				if order.Status == models.OrderStatusCharging {
					return database.ErrCheckoutInProgress
				}
				if err := bumpOrderVersion(ctx, tx, order.ID); err != nil {
					return err
				}
			}
		}

		if _, err := tx.ExecContext(ctx, `DELETE FROM order_items WHERE id = $1`, id); err != nil {
			return fmt.Errorf("delete order item: %w", err)
		}

		return nil
	})
}
