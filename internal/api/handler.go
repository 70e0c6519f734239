package api

import (
	"context"
	"database/sql"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/safar/go-shop-api/internal/checkout"
	"github.com/safar/go-shop-api/internal/models"
	"github.com/safar/go-shop-api/internal/store"
	"go.uber.org/zap"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

type Checkouter interface {
	Checkout(ctx context.Context, req checkout.Request) (*checkout.Result, error)
}

type Handler struct {
	db       *sql.DB
	checkout Checkouter
	logger   *zap.Logger
}

func NewHandler(db *sql.DB, checkouter Checkouter, logger *zap.Logger) *Handler {
	return &Handler{
		db:       db,
		checkout: checkouter,
		logger:   logger,
	}
}

// NewRouter mounts the public routes. Everything under /api requires the
// user id header.
func NewRouter(h *Handler, requestTimeout time.Duration) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(RequestLogger(h.logger))
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(requestTimeout))

	r.Get("/health", h.Health)

	r.Route("/api", func(r chi.Router) {
		r.Use(h.Authenticate)

		r.Get("/user-id", h.UserID)
		r.Post("/add-to-cart", h.AddToCart)
		r.Post("/order-items/update-quantity", h.UpdateQuantity)
		r.Delete("/order-items/{id}", h.DeleteOrderItem)
		r.Post("/add-coupon", h.AddCoupon)
		r.Post("/checkout", h.Checkout)
		r.Get("/order-summary", h.OrderSummary)
		r.Get("/payments", h.ListPayments)
	})

	return r
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	if err := h.db.PingContext(r.Context()); err != nil {
		h.logger.Warn("health check failed", zap.Error(err))
		h.respondJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}
	h.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) UserID(w http.ResponseWriter, r *http.Request) {
	h.respondJSON(w, http.StatusOK, map[string]int64{"userId": userIDFromContext(r.Context())})
}

type cartRequest struct {
	Slug       string  `json:"slug"`
	Variations []int64 `json:"variations"`
}

func (h *Handler) decodeCartRequest(w http.ResponseWriter, r *http.Request) (cartRequest, bool) {
	var req cartRequest
	if err := decodeJSON(r, &req); err != nil {
		h.respondError(w, http.StatusBadRequest, "Invalid request")
		return req, false
	}
	req.Slug = strings.TrimSpace(req.Slug)
	if req.Slug == "" {
		h.respondError(w, http.StatusBadRequest, "Invalid request")
		return req, false
	}
	return req, true
}

func (h *Handler) AddToCart(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decodeCartRequest(w, r)
	if !ok {
		return
	}

	_, err := store.AddToCart(r.Context(), h.db, store.AddToCartRequest{
		UserID:       userIDFromContext(r.Context()),
		Slug:         req.Slug,
		VariationIDs: req.Variations,
	})
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	h.respondJSON(w, http.StatusOK, struct{}{})
}

func (h *Handler) UpdateQuantity(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decodeCartRequest(w, r)
	if !ok {
		return
	}

	err := store.DecrementQuantity(r.Context(), h.db, store.DecrementRequest{
		UserID:       userIDFromContext(r.Context()),
		Slug:         req.Slug,
		VariationIDs: req.Variations,
	})
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	h.respondJSON(w, http.StatusOK, struct{}{})
}

func (h *Handler) DeleteOrderItem(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		h.respondError(w, http.StatusNotFound, "Order item not found")
		return
	}

	if err := store.DeleteOrderItem(r.Context(), h.db, userIDFromContext(r.Context()), id); err != nil {
		h.handleError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) AddCoupon(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Code string `json:"code"`
	}
	if err := decodeJSON(r, &req); err != nil || strings.TrimSpace(req.Code) == "" {
		h.respondError(w, http.StatusBadRequest, "Invalid data received")
		return
	}

	if _, err := store.ApplyCoupon(r.Context(), h.db, userIDFromContext(r.Context()), strings.TrimSpace(req.Code)); err != nil {
		h.handleError(w, r, err)
		return
	}

	h.respondJSON(w, http.StatusOK, messageResponse{Message: "Successfully added a coupon."})
}

type checkoutRequest struct {
	Token                   string `json:"token"`
	StripeToken             string `json:"stripeToken"`
	SelectedBillingAddress  int64  `json:"selectedBillingAddress"`
	SelectedShippingAddress int64  `json:"selectedShippingAddress"`
}

func (h *Handler) Checkout(w http.ResponseWriter, r *http.Request) {
	userID := userIDFromContext(r.Context())

	var req checkoutRequest
	if err := decodeJSON(r, &req); err != nil {
		h.respondError(w, http.StatusBadRequest, "Invalid request")
		return
	}

	token := req.Token
	if token == "" {
		token = req.StripeToken
	}

	result, err := h.checkout.Checkout(r.Context(), checkout.Request{
		UserID:            userID,
		Token:             token,
		BillingAddressID:  req.SelectedBillingAddress,
		ShippingAddressID: req.SelectedShippingAddress,
	})
	if err != nil {
		h.handleCheckoutError(w, r, userID, err)
		return
	}

	h.respondJSON(w, http.StatusOK, result)
}

func (h *Handler) OrderSummary(w http.ResponseWriter, r *http.Request) {
	order, err := store.GetOpenOrder(r.Context(), h.db, userIDFromContext(r.Context()))
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	h.respondJSON(w, http.StatusOK, toOrderDTO(order))
}

func (h *Handler) ListPayments(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	if limit < 1 || limit > maxPageSize {
		limit = defaultPageSize
	}

	cursor := r.URL.Query().Get("cursor")
	if _, err := store.DecodeCursor(cursor); err != nil {
		h.respondError(w, http.StatusBadRequest, "Invalid cursor")
		return
	}

	page, err := store.ListPaymentsCursor(r.Context(), h.db, userIDFromContext(r.Context()), cursor, limit)
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	payments, _ := page.Items.([]models.Payment)
	page.Items = toPaymentDTOs(payments)

	h.respondJSON(w, http.StatusOK, page)
}
