package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/safar/go-shop-api/internal/database"
	"github.com/safar/go-shop-api/internal/models"
	"github.com/shopspring/decimal"
)

// ChargeIDConstraint guards against recording one gateway charge twice.
const ChargeIDConstraint = "payments_gateway_charge_id_key"

// CreatePayment records a successful gateway charge. An empty chargeID
// records an order that needed no charge. Payments are never updated.
func CreatePayment(ctx context.Context, q database.Querier, userID int64, amount decimal.Decimal, chargeID string) (*models.Payment, error) {
	p := &models.Payment{}

	err := q.QueryRowContext(ctx,
		`INSERT INTO payments (user_id, amount, gateway_charge_id, created_at)
		 VALUES ($1, $2, NULLIF($3, ''), NOW())
		 RETURNING id, user_id, amount, COALESCE(gateway_charge_id, ''), created_at`,
		userID, amount, chargeID).Scan(
		&p.ID,
		&p.UserID,
		&p.Amount,
		&p.GatewayChargeID,
		&p.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("create payment: %w", err)
	}

	return p, nil
}

func CountPayments(ctx context.Context, q database.Querier, userID int64) (int, error) {
	var n int
	err := q.QueryRowContext(ctx, `SELECT COUNT(*) FROM payments WHERE user_id = $1`, userID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count payments: %w", err)
	}
	return n, nil
}

func ListPaymentsCursor(ctx context.Context, db *sql.DB, userID int64, cursor string, limit int) (*CursorPage, error) {
	cursorData, err := DecodeCursor(cursor)
	if err != nil {
		return nil, fmt.Errorf("decode cursor: %w", err)
	}

	query := `
		SELECT id, user_id, amount, COALESCE(gateway_charge_id, ''), created_at
		FROM payments
		WHERE user_id = $1
		  AND (created_at, id) < ($2, $3)
		ORDER BY created_at DESC, id DESC
		LIMIT $4`

	rows, err := db.QueryContext(ctx, query, userID, cursorData.CreatedAt, cursorData.ID, limit+1)
	if err != nil {
		return nil, fmt.Errorf("list payments: %w", err)
	}
	defer rows.Close()

	payments := []models.Payment{}
	for rows.Next() {
		var p models.Payment
		err := rows.Scan(
			&p.ID,
			&p.UserID,
			&p.Amount,
			&p.GatewayChargeID,
			&p.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan payment: %w", err)
		}
		payments = append(payments, p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	hasMore := len(payments) > limit
	if hasMore {
		payments = payments[:limit]
	}

	var nextCursor string
	if hasMore && len(payments) > 0 {
		last := payments[len(payments)-1]
		nextCursor = EncodeCursor(Cursor{
			CreatedAt: last.CreatedAt,
			ID:        last.ID,
		})
	}

	return &CursorPage{
		Items:      payments,
		NextCursor: nextCursor,
		HasMore:    hasMore,
	}, nil
}
