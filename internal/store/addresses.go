package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/safar/go-shop-api/internal/database"
	"github.com/safar/go-shop-api/internal/models"
)

const addressColumns = `id, user_id, street_address, apartment_address, country, zip, address_type, is_default`

func scanAddress(row interface{ Scan(...any) error }, a *models.Address) error {
	return row.Scan(
		&a.ID,
		&a.UserID,
		&a.StreetAddress,
		&a.ApartmentAddress,
		&a.Country,
		&a.Zip,
		&a.AddressType,
		&a.Default,
	)
}

func CreateAddress(ctx context.Context, db *sql.DB, in models.Address) (*models.Address, error) {
	if !in.AddressType.Valid() {
		return nil, fmt.Errorf("create address: unknown address type %q", in.AddressType)
	}

	a := &models.Address{}

	query := `
		INSERT INTO addresses (user_id, street_address, apartment_address, country, zip, address_type, is_default)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING ` + addressColumns

	err := scanAddress(db.QueryRowContext(ctx, query,
		in.UserID, in.StreetAddress, in.ApartmentAddress, in.Country, in.Zip, in.AddressType, in.Default), a)
	if err != nil {
		return nil, fmt.Errorf("create address: %w", err)
	}

	return a, nil
}

// GetUserAddress returns the address only when it belongs to userID and has
// the requested type.
func GetUserAddress(ctx context.Context, q database.Querier, userID, id int64, addressType models.AddressType) (*models.Address, error) {
	a := &models.Address{}

	query := `
		SELECT ` + addressColumns + `
		FROM addresses
		WHERE id = $1 AND user_id = $2 AND address_type = $3`

	if err := scanAddress(q.QueryRowContext(ctx, query, id, userID, addressType), a); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, database.ErrAddressNotFound
		}
		return nil, fmt.Errorf("get address: %w", err)
	}

	return a, nil
}
