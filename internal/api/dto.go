package api

import (
	"time"

	"github.com/safar/go-shop-api/internal/models"
	"github.com/safar/go-shop-api/internal/pricing"
)

type ItemDTO struct {
	ID            int64   `json:"id"`
	Title         string  `json:"title"`
	Price         string  `json:"price"`
	DiscountPrice *string `json:"discount_price"`
	Category      string  `json:"category"`
	Label         string  `json:"label"`
	Slug          string  `json:"slug"`
	Description   string  `json:"description"`
	Image         string  `json:"image"`
}

type VariationDTO struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

type ItemVariationDTO struct {
	ID         int64        `json:"id"`
	Value      string       `json:"value"`
	Attachment string       `json:"attachment"`
	Variation  VariationDTO `json:"variation"`
}

type OrderItemDTO struct {
	ID             int64              `json:"id"`
	Item           ItemDTO            `json:"item"`
	ItemVariations []ItemVariationDTO `json:"item_variations"`
	Quantity       int                `json:"quantity"`
	FinalPrice     string             `json:"final_price"`
	Savings        string             `json:"savings"`
}

type CouponDTO struct {
	ID     int64  `json:"id"`
	Code   string `json:"code"`
	Amount string `json:"amount"`
}

type OrderDTO struct {
	ID         int64          `json:"id"`
	OrderItems []OrderItemDTO `json:"order_items"`
	Coupon     *CouponDTO     `json:"coupon"`
	Total      string         `json:"total"`
}

type PaymentDTO struct {
	ID        int64     `json:"id"`
	Amount    string    `json:"amount"`
	Timestamp time.Time `json:"timestamp"`
}

func toItemDTO(item models.Item) ItemDTO {
	dto := ItemDTO{
		ID:          item.ID,
		Title:       item.Title,
		Price:       item.Price.StringFixed(2),
		Category:    item.Category.Display(),
		Label:       item.Label.Display(),
		Slug:        item.Slug,
		Description: item.Description,
		Image:       item.Image,
	}
	if item.DiscountPrice.Valid {
		discount := item.DiscountPrice.Decimal.StringFixed(2)
		dto.DiscountPrice = &discount
	}
	return dto
}

func toOrderDTO(order *models.Order) OrderDTO {
	dto := OrderDTO{
		ID:         order.ID,
		OrderItems: make([]OrderItemDTO, 0, len(order.Items)),
		Total:      pricing.OrderTotal(order.Items, order.Coupon).StringFixed(2),
	}

	for _, line := range order.Items {
		variations := make([]ItemVariationDTO, 0, len(line.Variations))
		for _, iv := range line.Variations {
			variations = append(variations, ItemVariationDTO{
				ID:         iv.ID,
				Value:      iv.Value,
				Attachment: iv.Attachment,
				Variation:  VariationDTO{ID: iv.Variation.ID, Name: iv.Variation.Name},
			})
		}

		dto.OrderItems = append(dto.OrderItems, OrderItemDTO{
			ID:             line.ID,
			Item:           toItemDTO(line.Item),
			ItemVariations: variations,
			Quantity:       line.Quantity,
			FinalPrice:     pricing.FinalPrice(line.Item, line.Quantity).StringFixed(2),
			Savings:        pricing.LineSavings(line.Item, line.Quantity).StringFixed(2),
		})
	}

	if order.Coupon != nil {
		dto.Coupon = &CouponDTO{
			ID:     order.Coupon.ID,
			Code:   order.Coupon.Code,
			Amount: order.Coupon.Amount.StringFixed(2),
		}
	}

	return dto
}

func toPaymentDTOs(payments []models.Payment) []PaymentDTO {
	out := make([]PaymentDTO, 0, len(payments))
	for _, p := range payments {
		out = append(out, PaymentDTO{
			ID:        p.ID,
			Amount:    p.Amount.StringFixed(2),
			Timestamp: p.CreatedAt,
		})
	}
	return out
}
