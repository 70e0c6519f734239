package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"
	"github.com/safar/go-shop-api/internal/database"
	"github.com/safar/go-shop-api/internal/models"
	"github.com/shopspring/decimal"
)

type NewItem struct {
	Title         string
	Category      models.Category
	Price         decimal.Decimal
	DiscountPrice *decimal.Decimal
	Label         models.Label
	Slug          string
	Description   string
	Image         string
}

const itemColumns = `id, title, category, price, discount_price, label, slug, description, image, created_at`

func scanItem(row interface{ Scan(...any) error }, item *models.Item) error {
	return row.Scan(
		&item.ID,
		&item.Title,
		&item.Category,
		&item.Price,
		&item.DiscountPrice,
		&item.Label,
		&item.Slug,
		&item.Description,
		&item.Image,
		&item.CreatedAt,
	)
}

func CreateItem(ctx context.Context, db *sql.DB, in NewItem) (*models.Item, error) {
	if !in.Category.Valid() {
		return nil, fmt.Errorf("create item: unknown category %q", in.Category)
	}
	if !in.Label.Valid() {
		return nil, fmt.Errorf("create item: unknown label %q", in.Label)
	}

	discount := decimal.NullDecimal{}
	if in.DiscountPrice != nil {
		discount = decimal.NullDecimal{Decimal: *in.DiscountPrice, Valid: true}
	}

	item := &models.Item{}

	query := `
		INSERT INTO items (title, category, price, discount_price, label, slug, description, image, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW())
		RETURNING ` + itemColumns

	err := scanItem(db.QueryRowContext(ctx, query,
		in.Title, in.Category, in.Price, discount, in.Label, in.Slug, in.Description, in.Image), item)
	if err != nil {
		return nil, fmt.Errorf("create item: %w", err)
	}

	return item, nil
}

func GetItemBySlug(ctx context.Context, q database.Querier, slug string) (*models.Item, error) {
	item := &models.Item{}

	query := `SELECT ` + itemColumns + ` FROM items WHERE slug = $1`

	if err := scanItem(q.QueryRowContext(ctx, query, slug), item); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, database.ErrItemNotFound
		}
		return nil, fmt.Errorf("get item: %w", err)
	}

	return item, nil
}

func CreateVariation(ctx context.Context, db *sql.DB, itemID int64, name string) (*models.Variation, error) {
	v := &models.Variation{}

	err := db.QueryRowContext(ctx,
		`INSERT INTO variations (item_id, name) VALUES ($1, $2) RETURNING id, item_id, name`,
		itemID, name).Scan(&v.ID, &v.ItemID, &v.Name)
	if err != nil {
		return nil, fmt.Errorf("create variation: %w", err)
	}

	return v, nil
}

func CreateItemVariation(ctx context.Context, db *sql.DB, variationID int64, value, attachment string) (*models.ItemVariation, error) {
	iv := &models.ItemVariation{}

	err := db.QueryRowContext(ctx,
		`WITH inserted AS (
		     INSERT INTO item_variations (variation_id, value, attachment)
		     VALUES ($1, $2, $3)
		     RETURNING id, variation_id, value, attachment
		 )
		 SELECT ins.id, ins.variation_id, ins.value, ins.attachment, v.id, v.item_id, v.name
		 FROM inserted ins
		 JOIN variations v ON v.id = ins.variation_id`,
		variationID, value, attachment).Scan(
		&iv.ID,
		&iv.VariationID,
		&iv.Value,
		&iv.Attachment,
		&iv.Variation.ID,
		&iv.Variation.ItemID,
		&iv.Variation.Name,
	)
	if err != nil {
		return nil, fmt.Errorf("create item variation: %w", err)
	}

	return iv, nil
}

// validateVariationSelection checks that selected holds exactly one value for
// every variation axis of the item. selected must be deduplicated.
func validateVariationSelection(ctx context.Context, q database.Querier, itemID int64, selected []int64) error {
	var axes int
	err := q.QueryRowContext(ctx, `SELECT COUNT(*) FROM variations WHERE item_id = $1`, itemID).Scan(&axes)
	if err != nil {
		return fmt.Errorf("count variations: %w", err)
	}

	if len(selected) == 0 {
		if axes > 0 {
			return database.ErrMissingVariations
		}
		return nil
	}

	rows, err := q.QueryContext(ctx,
		`SELECT iv.variation_id
		 FROM item_variations iv
		 JOIN variations v ON v.id = iv.variation_id
		 WHERE v.item_id = $1 AND iv.id = ANY($2)`,
		itemID, pq.Array(selected))
	if err != nil {
		return fmt.Errorf("load selected variations: %w", err)
	}
	defer rows.Close()

	covered := make(map[int64]bool)
	found := 0
	for rows.Next() {
		var variationID int64
		if err := rows.Scan(&variationID); err != nil {
			return fmt.Errorf("scan variation: %w", err)
		}
		if covered[variationID] {
			return database.ErrInvalidVariation
		}
		covered[variationID] = true
		found++
	}

	if err := rows.Err(); err != nil {
		return fmt.Errorf("rows error: %w", err)
	}

	if found != len(selected) {
		return database.ErrInvalidVariation
	}

	if len(covered) < axes {
		return database.ErrMissingVariations
	}

	return nil
}
