package payment

import (
	"context"
	"errors"
	"time"

	"github.com/sony/gobreaker/v2"
	"go.uber.org/zap"
)

type BreakerSettings struct {
	Name        string
	MaxFailures int
	OpenTimeout time.Duration
}

// BreakerGateway stops calling the processor after repeated outages.
// Customer side failures such as declines do not count against it.
type BreakerGateway struct {
	next    Gateway
	breaker *gobreaker.CircuitBreaker[string]
}

func NewBreakerGateway(next Gateway, s BreakerSettings, logger *zap.Logger) *BreakerGateway {
	maxFailures := uint32(s.MaxFailures)
	if maxFailures == 0 {
		maxFailures = 5
	}

	settings := gobreaker.Settings{
		Name:        s.Name,
		MaxRequests: 1,
		Timeout:     s.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= maxFailures
		},
		IsSuccessful: func(err error) bool {
			if err == nil {
				return true
			}
			kind, _ := KindOf(err)
			switch kind {
			case KindDeclined, KindInvalidRequest, KindRateLimited:
				return true
			}
			return false
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("payment circuit breaker state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	}

	return &BreakerGateway{
		next:    next,
		breaker: gobreaker.NewCircuitBreaker[string](settings),
	}
}

func (g *BreakerGateway) EnsureCustomer(ctx context.Context, req CustomerRequest) (string, error) {
	id, err := g.breaker.Execute(func() (string, error) {
		return g.next.EnsureCustomer(ctx, req)
	})
	return id, breakerError(err)
}

func (g *BreakerGateway) Charge(ctx context.Context, req ChargeRequest) (string, error) {
	id, err := g.breaker.Execute(func() (string, error) {
		return g.next.Charge(ctx, req)
	})
	return id, breakerError(err)
}

func breakerError(err error) error {
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return NewError(KindNetwork, "", err)
	}
	return err
}
