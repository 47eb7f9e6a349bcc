package channel

import (
	"context"
	"errors"
	"testing"

	"github.com/sony/gobreaker/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type flakyAdapter struct {
	err   error
	calls int
}

func (f *flakyAdapter) Platform() PlatformType { return PlatformAlipay }

func (f *flakyAdapter) Pay(ctx context.Context, req *PayRequest) (*PayResult, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return &PayResult{Credential: "https://pay.example.com/p/1"}, nil
}

func (f *flakyAdapter) Query(ctx context.Context, req *QueryRequest) (*QueryResult, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return &QueryResult{Signal: SignalPending}, nil
}

func (f *flakyAdapter) Close(ctx context.Context, req *QueryRequest) error {
	f.calls++
	return f.err
}

func (f *flakyAdapter) Refund(ctx context.Context, req *RefundRequest) (*RefundResult, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return &RefundResult{Signal: SignalPaid}, nil
}

func (f *flakyAdapter) QueryRefund(ctx context.Context, req *RefundQueryRequest) (*RefundResult, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return &RefundResult{Signal: SignalPaid}, nil
}

func (f *flakyAdapter) ParseNotify(ctx context.Context, params map[string]string) (*NotifyResult, error) {
	return &NotifyResult{Verified: true, Signal: SignalPaid}, nil
}

func (f *flakyAdapter) ParseRefundNotify(ctx context.Context, params map[string]string) (*NotifyResult, error) {
	return &NotifyResult{Verified: true, Signal: SignalPaid}, nil
}

func TestBreakerAdapterPassThrough(t *testing.T) {
	inner := &flakyAdapter{}
	b := NewBreakerAdapter(inner, nil)

	assert.Equal(t, PlatformAlipay, b.Platform())

	result, err := b.Pay(context.Background(), &PayRequest{ChargeNo: "ch_1", Channel: AlipayPage})
	require.NoError(t, err)
	assert.Equal(t, "https://pay.example.com/p/1", result.Credential)
	assert.Equal(t, gobreaker.StateClosed, b.State())
}

func TestBreakerAdapterOpensAfterConsecutiveFailures(t *testing.T) {
	inner := &flakyAdapter{err: errors.New("gateway timeout")}
	b := NewBreakerAdapter(inner, &BreakerConfig{
		MaxRequests:      1,
		FailureThreshold: 3,
	})

	for i := 0; i < 3; i++ {
		_, err := b.Query(context.Background(), &QueryRequest{ChargeNo: "ch_1"})
		require.Error(t, err)
	}
	assert.Equal(t, gobreaker.StateOpen, b.State())

	// Open breaker rejects without touching the platform.
	before := inner.calls
	_, err := b.Query(context.Background(), &QueryRequest{ChargeNo: "ch_1"})
	assert.ErrorIs(t, err, gobreaker.ErrOpenState)
	assert.Equal(t, before, inner.calls)
}

func TestBreakerAdapterNotifyBypassesBreaker(t *testing.T) {
	inner := &flakyAdapter{err: errors.New("down")}
	b := NewBreakerAdapter(inner, &BreakerConfig{MaxRequests: 1, FailureThreshold: 1})

	_, err := b.Pay(context.Background(), &PayRequest{ChargeNo: "ch_1", Channel: AlipayPage})
	require.Error(t, err)
	assert.Equal(t, gobreaker.StateOpen, b.State())

	result, err := b.ParseNotify(context.Background(), map[string]string{})
	require.NoError(t, err)
	assert.True(t, result.Verified)
}
