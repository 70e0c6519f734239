package payment

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"
)

type StripeGateway struct {
	api *client.API
}

// NewStripeGateway returns a gateway backed by the Stripe API. The library's
// own network retries are disabled; callers resubmit with the same
// idempotency key instead.
func NewStripeGateway(secretKey string, timeout time.Duration) *StripeGateway {
	httpClient := &http.Client{Timeout: timeout}

	backendConfig := func() *stripe.BackendConfig {
		return &stripe.BackendConfig{
			HTTPClient:        httpClient,
			MaxNetworkRetries: stripe.Int64(0),
		}
	}

	api := &client.API{}
	api.Init(secretKey, &stripe.Backends{
		API:     stripe.GetBackendWithConfig(stripe.APIBackend, backendConfig()),
		Connect: stripe.GetBackendWithConfig(stripe.ConnectBackend, backendConfig()),
		Uploads: stripe.GetBackendWithConfig(stripe.UploadsBackend, backendConfig()),
	})

	return &StripeGateway{api: api}
}

func (g *StripeGateway) EnsureCustomer(ctx context.Context, req CustomerRequest) (string, error) {
	params := &stripe.CustomerParams{
		Source: stripe.String(req.Token),
	}
	params.Context = ctx

	if req.CustomerID != "" {
		customer, err := g.api.Customers.Update(req.CustomerID, params)
		if err != nil {
			return "", classifyStripeError(err)
		}
		return customer.ID, nil
	}

	params.Email = stripe.String(req.Email)
	customer, err := g.api.Customers.New(params)
	if err != nil {
		return "", classifyStripeError(err)
	}
	return customer.ID, nil
}

func (g *StripeGateway) Charge(ctx context.Context, req ChargeRequest) (string, error) {
	params := &stripe.ChargeParams{
		Amount:   stripe.Int64(req.Amount),
		Currency: stripe.String(req.Currency),
		Customer: stripe.String(req.CustomerID),
	}
	params.Context = ctx
	params.SetIdempotencyKey(req.IdempotencyKey)

	charge, err := g.api.Charges.New(params)
	if err != nil {
		return "", classifyStripeError(err)
	}
	return charge.ID, nil
}

func classifyStripeError(err error) *Error {
	var stripeErr *stripe.Error
	if !errors.As(err, &stripeErr) {
		// transport failures and timeouts never reach Stripe's error decoder
		return NewError(KindNetwork, "", err)
	}

	switch {
	case stripeErr.Type == stripe.ErrorTypeCard:
		return NewError(KindDeclined, stripeErr.Msg, err)
	case stripeErr.HTTPStatusCode == http.StatusTooManyRequests:
		return NewError(KindRateLimited, "", err)
	case stripeErr.HTTPStatusCode == http.StatusUnauthorized:
		return NewError(KindAuthFailed, "", err)
	case stripeErr.Type == stripe.ErrorTypeInvalidRequest:
		return NewError(KindInvalidRequest, "", err)
	default:
		return NewError(KindGeneric, "", err)
	}
}
