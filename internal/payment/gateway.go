package payment

import "context"

// CustomerRequest identifies the card holder. CustomerID is empty the first
// time a user pays; Token is the single use card token from the client.
type CustomerRequest struct {
	CustomerID string
	Email      string
	Token      string
}

type ChargeRequest struct {
	CustomerID string
	// Amount is in minor currency units.
	Amount         int64
	Currency       string
	IdempotencyKey string
}

// Gateway is the external card processor. Every error it returns is a *Error.
type Gateway interface {
	// EnsureCustomer creates the remote customer with the token attached, or
	// attaches the token to the existing customer, and returns its id.
	EnsureCustomer(ctx context.Context, req CustomerRequest) (string, error)
	// Charge returns the gateway charge id.
	Charge(ctx context.Context, req ChargeRequest) (string, error)
}
