package payment

import (
	"context"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// Tokens understood by FakeGateway.
const (
	FakeTokenDecline     = "tok_chargeDeclined"
	FakeTokenRateLimit   = "tok_rateLimited"
	FakeTokenNetworkDown = "tok_networkDown"
)

// FakeGateway is an in-memory processor for local runs and tests. The
// outcome of a charge is decided by the last token attached to the customer.
type FakeGateway struct {
	mu        sync.Mutex
	tokens    map[string]string
	charges   map[string]string
	charged   []ChargeRequest
	customers int
}

func NewFakeGateway() *FakeGateway {
	return &FakeGateway{
		tokens:  make(map[string]string),
		charges: make(map[string]string),
	}
}

func (g *FakeGateway) EnsureCustomer(ctx context.Context, req CustomerRequest) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", NewError(KindNetwork, "", err)
	}
	if strings.TrimSpace(req.Token) == "" {
		return "", NewError(KindInvalidRequest, "", nil)
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	id := req.CustomerID
	if id == "" {
		id = "cus_" + uuid.NewString()
		g.customers++
	} else if _, ok := g.tokens[id]; !ok {
		return "", NewError(KindInvalidRequest, "", nil)
	}

	g.tokens[id] = req.Token
	return id, nil
}

func (g *FakeGateway) Charge(ctx context.Context, req ChargeRequest) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", NewError(KindNetwork, "", err)
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	token, ok := g.tokens[req.CustomerID]
	if !ok {
		return "", NewError(KindInvalidRequest, "", nil)
	}

	switch token {
	case FakeTokenDecline:
		return "", NewError(KindDeclined, "Your card was declined.", nil)
	case FakeTokenRateLimit:
		return "", NewError(KindRateLimited, "", nil)
	case FakeTokenNetworkDown:
		return "", NewError(KindNetwork, "", nil)
	}

	// replayed keys return the original charge, like the real processor
	if id, ok := g.charges[req.IdempotencyKey]; ok && req.IdempotencyKey != "" {
		return id, nil
	}

	id := "ch_" + uuid.NewString()
	if req.IdempotencyKey != "" {
		g.charges[req.IdempotencyKey] = id
	}
	g.charged = append(g.charged, req)
	return id, nil
}

// Charges returns a copy of the successful charges so far.
func (g *FakeGateway) Charges() []ChargeRequest {
	g.mu.Lock()
	defer g.mu.Unlock()

	out := make([]ChargeRequest, len(g.charged))
	copy(out, g.charged)
	return out
}

// Customers returns how many customers were created.
func (g *FakeGateway) Customers() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.customers
}
