package api

import (
	"errors"
	"net/http"

	"github.com/safar/go-shop-api/internal/checkout"
	"github.com/safar/go-shop-api/internal/database"
	"github.com/safar/go-shop-api/internal/payment"
	"go.uber.org/zap"
)

const seriousErrorMessage = "A serious error occurred. We have been notified."

type errorMapping struct {
	err     error
	status  int
	message string
}

var errorTable = []errorMapping{
	{database.ErrUserNotFound, http.StatusUnauthorized, "Authentication credentials were not provided."},

	{database.ErrItemNotFound, http.StatusNotFound, "Item not found"},
	{database.ErrOrderNotFound, http.StatusNotFound, "You do not have an active order"},
	{database.ErrOrderItemNotFound, http.StatusNotFound, "Order item not found"},
	{database.ErrCouponNotFound, http.StatusNotFound, "This coupon does not exist"},
	{database.ErrAddressNotFound, http.StatusNotFound, "Address not found"},

	{database.ErrMissingVariations, http.StatusBadRequest, "Please specify the required variations"},
	{database.ErrInvalidVariation, http.StatusBadRequest, "Invalid variation selection"},
	{database.ErrNoActiveOrder, http.StatusBadRequest, "You do not have an active order"},
	{database.ErrItemNotInOrder, http.StatusBadRequest, "This item was not in your cart"},
	{database.ErrEmptyOrder, http.StatusBadRequest, "Your cart is empty"},
	{checkout.ErrMissingToken, http.StatusBadRequest, "Payment token is required"},
	{checkout.ErrMissingAddress, http.StatusBadRequest, "Please select a billing and a shipping address"},

	{database.ErrCheckoutInProgress, http.StatusConflict, "Checkout is already in progress for this order"},
	{database.ErrOptimisticLockFailed, http.StatusConflict, "The order was modified, please try again"},
	{checkout.ErrChargeAlreadyRecorded, http.StatusConflict, "This payment has already been recorded"},
}

var paymentStatus = map[payment.Kind]int{
	payment.KindDeclined:       http.StatusBadRequest,
	payment.KindRateLimited:    http.StatusBadRequest,
	payment.KindInvalidRequest: http.StatusBadRequest,
	payment.KindAuthFailed:     http.StatusUnauthorized,
	payment.KindNetwork:        http.StatusBadRequest,
	payment.KindGeneric:        http.StatusBadRequest,
}

// lookupError maps known domain and payment errors to a response.
func lookupError(err error) (int, string, bool) {
	for _, m := range errorTable {
		if errors.Is(err, m.err) {
			return m.status, m.message, true
		}
	}

	var perr *payment.Error
	if errors.As(err, &perr) {
		return paymentStatus[perr.Kind], perr.Message, true
	}

	return 0, "", false
}

func (h *Handler) handleError(w http.ResponseWriter, r *http.Request, err error) {
	if status, message, ok := lookupError(err); ok {
		h.respondError(w, status, message)
		return
	}

	h.logger.Error("request failed",
		zap.String("path", r.URL.Path),
		zap.String("request_id", requestID(r.Context())),
		zap.Error(err),
	)
	h.respondError(w, http.StatusInternalServerError, "internal server error")
}

// handleCheckoutError never leaks unexpected failures to the client. They
// are logged and reported as a generic 400.
func (h *Handler) handleCheckoutError(w http.ResponseWriter, r *http.Request, userID int64, err error) {
	if status, message, ok := lookupError(err); ok {
		h.respondError(w, status, message)
		return
	}

	h.logger.Error("checkout failed",
		zap.Int64("user_id", userID),
		zap.String("request_id", requestID(r.Context())),
		zap.Error(err),
	)
	h.respondError(w, http.StatusBadRequest, seriousErrorMessage)
}
