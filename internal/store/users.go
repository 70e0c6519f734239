package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/safar/go-shop-api/internal/database"
	"github.com/safar/go-shop-api/internal/models"
)

const userColumns = `id, email, name, COALESCE(gateway_customer_id, ''), one_click_purchasing, created_at, updated_at, version`

func scanUser(row interface{ Scan(...any) error }, user *models.User) error {
	return row.Scan(
		&user.ID,
		&user.Email,
		&user.Name,
		&user.GatewayCustomerID,
		&user.OneClickPurchasing,
		&user.CreatedAt,
		&user.UpdatedAt,
		&user.Version,
	)
}

func CreateUser(ctx context.Context, db *sql.DB, email, name string) (*models.User, error) {
	user := &models.User{}

	query := `
		INSERT INTO users (email, name, created_at, updated_at, version)
		VALUES ($1, $2, NOW(), NOW(), 1)
		RETURNING ` + userColumns

	if err := scanUser(db.QueryRowContext(ctx, query, email, name), user); err != nil {
		return nil, fmt.Errorf("create user: %w", err)
	}

	return user, nil
}

func GetUser(ctx context.Context, q database.Querier, id int64) (*models.User, error) {
	user := &models.User{}

	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`

	if err := scanUser(q.QueryRowContext(ctx, query, id), user); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, database.ErrUserNotFound
		}
		return nil, fmt.Errorf("get user: %w", err)
	}

	return user, nil
}

// lockUser serializes cart mutations of one user.
func lockUser(ctx context.Context, tx *sql.Tx, id int64) error {
	var locked int64
	err := tx.QueryRowContext(ctx, `SELECT id FROM users WHERE id = $1 FOR UPDATE`, id).Scan(&locked)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return database.ErrUserNotFound
		}
		return fmt.Errorf("lock user: %w", err)
	}
	return nil
}

// SetGatewayCustomer records the payment gateway customer the user's card
// is attached to and enables one click purchasing.
func SetGatewayCustomer(ctx context.Context, db *sql.DB, userID int64, customerID string) error {
	result, err := db.ExecContext(ctx,
		`UPDATE users
		 SET gateway_customer_id = $1,
		     one_click_purchasing = TRUE,
		     updated_at = NOW(),
		     version = version + 1
		 WHERE id = $2`,
		customerID, userID)
	if err != nil {
		return fmt.Errorf("set gateway customer: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return database.ErrUserNotFound
	}

	return nil
}
