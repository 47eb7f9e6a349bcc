package channel

import (
	"context"
	"time"

	"github.com/sony/gobreaker/v2"
)

// BreakerAdapter wraps an Adapter with circuit breaker protection on the
// outbound platform calls. Notify parsing is local work and bypasses the
// breaker.
type BreakerAdapter struct {
	inner   Adapter
	breaker *gobreaker.CircuitBreaker[any]
}

// BreakerConfig contains circuit breaker configuration.
type BreakerConfig struct {
	MaxRequests      uint32
	Interval         time.Duration
	Timeout          time.Duration
	FailureThreshold uint32
}

// DefaultBreakerConfig returns the default breaker configuration.
func DefaultBreakerConfig() *BreakerConfig {
	return &BreakerConfig{
		MaxRequests:      1,
		Interval:         60 * time.Second,
		Timeout:          30 * time.Second,
		FailureThreshold: 5,
	}
}

// NewBreakerAdapter wraps the given adapter with a circuit breaker.
func NewBreakerAdapter(inner Adapter, config *BreakerConfig) *BreakerAdapter {
	if config == nil {
		config = DefaultBreakerConfig()
	}

	settings := gobreaker.Settings{
		Name:        string(inner.Platform()),
		MaxRequests: config.MaxRequests,
		Interval:    config.Interval,
		Timeout:     config.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= config.FailureThreshold
		},
	}

	return &BreakerAdapter{
		inner:   inner,
		breaker: gobreaker.NewCircuitBreaker[any](settings),
	}
}

// State returns the current breaker state.
func (b *BreakerAdapter) State() gobreaker.State {
	return b.breaker.State()
}

// Platform returns the owning platform.
func (b *BreakerAdapter) Platform() PlatformType {
	return b.inner.Platform()
}

// Pay creates a payment through the breaker.
func (b *BreakerAdapter) Pay(ctx context.Context, req *PayRequest) (*PayResult, error) {
	result, err := b.breaker.Execute(func() (any, error) {
		return b.inner.Pay(ctx, req)
	})
	if err != nil {
		return nil, err
	}
	return result.(*PayResult), nil
}

// Query queries payment state through the breaker.
func (b *BreakerAdapter) Query(ctx context.Context, req *QueryRequest) (*QueryResult, error) {
	result, err := b.breaker.Execute(func() (any, error) {
		return b.inner.Query(ctx, req)
	})
	if err != nil {
		return nil, err
	}
	return result.(*QueryResult), nil
}

// Close closes the payment through the breaker.
func (b *BreakerAdapter) Close(ctx context.Context, req *QueryRequest) error {
	_, err := b.breaker.Execute(func() (any, error) {
		return nil, b.inner.Close(ctx, req)
	})
	return err
}

// Refund issues a refund through the breaker.
func (b *BreakerAdapter) Refund(ctx context.Context, req *RefundRequest) (*RefundResult, error) {
	result, err := b.breaker.Execute(func() (any, error) {
		return b.inner.Refund(ctx, req)
	})
	if err != nil {
		return nil, err
	}
	return result.(*RefundResult), nil
}

// QueryRefund queries refund state through the breaker.
func (b *BreakerAdapter) QueryRefund(ctx context.Context, req *RefundQueryRequest) (*RefundResult, error) {
	result, err := b.breaker.Execute(func() (any, error) {
		return b.inner.QueryRefund(ctx, req)
	})
	if err != nil {
		return nil, err
	}
	return result.(*RefundResult), nil
}

// ParseNotify delegates to the wrapped adapter.
func (b *BreakerAdapter) ParseNotify(ctx context.Context, params map[string]string) (*NotifyResult, error) {
	return b.inner.ParseNotify(ctx, params)
}

// ParseRefundNotify delegates to the wrapped adapter.
func (b *BreakerAdapter) ParseRefundNotify(ctx context.Context, params map[string]string) (*NotifyResult, error) {
	return b.inner.ParseRefundNotify(ctx, params)
}
