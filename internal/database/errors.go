package database

import (
	"database/sql"
	"errors"

	"github.com/lib/pq"
)

type ErrorClass int

const (
	ErrorClassPermanent ErrorClass = iota
	ErrorClassTransient
	ErrorClassDeadlock
	ErrorClassSerialization
)

func ClassifyError(err error) ErrorClass {
	if err == nil {
		return ErrorClassPermanent
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case "40001":
			return ErrorClassSerialization
		case "40P01":
			return ErrorClassDeadlock
		case "55P03":
			return ErrorClassTransient
		case "23505", "23503", "23502", "23514":
			return ErrorClassPermanent
		}
	}

	if errors.Is(err, sql.ErrNoRows) {
		return ErrorClassPermanent
	}

	return ErrorClassPermanent
}

func IsRetryable(err error) bool {
	class := ClassifyError(err)
	return class == ErrorClassTransient ||
		class == ErrorClassDeadlock ||
		class == ErrorClassSerialization
}

// IsUniqueViolation reports whether err is a unique constraint failure,
// optionally on the named constraint.
func IsUniqueViolation(err error, constraint string) bool {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) || pqErr.Code != "23505" {
		return false
	}
	return constraint == "" || pqErr.Constraint == constraint
}

// Lookup failures.
var (
	ErrUserNotFound      = errors.New("user not found")
	ErrItemNotFound      = errors.New("item not found")
	ErrOrderNotFound     = errors.New("you do not have an active order")
	ErrOrderItemNotFound = errors.New("order item not found")
	ErrCouponNotFound    = errors.New("this coupon does not exist")
	ErrAddressNotFound   = errors.New("address not found")
)

// Request validation failures against current state.
var (
	ErrMissingVariations = errors.New("please specify the required variations")
	ErrInvalidVariation  = errors.New("variation does not belong to this item")
	ErrNoActiveOrder     = errors.New("you do not have an active order")
	ErrItemNotInOrder    = errors.New("this item was not in your cart")
	ErrEmptyOrder        = errors.New("your cart is empty")
)

// Concurrency failures.
var (
	ErrCheckoutInProgress   = errors.New("checkout already in progress for this order")
	ErrOptimisticLockFailed = errors.New("optimistic lock failed")
)
