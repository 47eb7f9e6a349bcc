package channel

import (
	"context"
	"testing"

	"github.com/stripe/stripe-go/v76"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMapStripeIntentStatus(t *testing.T) {
	tests := []struct {
		status stripe.PaymentIntentStatus
		signal Signal
	}{
		{stripe.PaymentIntentStatusSucceeded, SignalPaid},
		{stripe.PaymentIntentStatusRequiresPaymentMethod, SignalPending},
		{stripe.PaymentIntentStatusRequiresConfirmation, SignalPending},
		{stripe.PaymentIntentStatusRequiresAction, SignalPending},
		{stripe.PaymentIntentStatusRequiresCapture, SignalPending},
		{stripe.PaymentIntentStatusProcessing, SignalPending},
		{stripe.PaymentIntentStatusCanceled, SignalClosed},
		{stripe.PaymentIntentStatus("weird"), SignalUnknown},
	}

	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			assert.Equal(t, tt.signal, mapStripeIntentStatus(tt.status))
		})
	}
}

func TestMapStripeRefundStatus(t *testing.T) {
	tests := []struct {
		status stripe.RefundStatus
		signal Signal
	}{
		{stripe.RefundStatusSucceeded, SignalPaid},
		{stripe.RefundStatusPending, SignalPending},
		{stripe.RefundStatusFailed, SignalFailed},
		{stripe.RefundStatusCanceled, SignalFailed},
		{stripe.RefundStatus("weird"), SignalUnknown},
	}

	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			assert.Equal(t, tt.signal, mapStripeRefundStatus(tt.status))
		})
	}
}

func TestStripeParseNotifyBadSignature(t *testing.T) {
	adapter := NewStripeAdapter(&StripeConfig{
		APIKey:        "sk_test_xxx",
		WebhookSecret: "whsec_test",
	})

	result, err := adapter.ParseNotify(context.Background(), map[string]string{
		RawBodyKey:         `{"id":"evt_1","type":"payment_intent.succeeded"}`,
		"Stripe-Signature": "t=1,v1=deadbeef",
	})
	require.NoError(t, err)
	assert.False(t, result.Verified)
	assert.Equal(t, SignalUnknown, result.Signal)
}

func TestStripeQueryRequiresTradeNo(t *testing.T) {
	adapter := NewStripeAdapter(&StripeConfig{APIKey: "sk_test_xxx"})

	_, err := adapter.Query(context.Background(), &QueryRequest{ChargeNo: "ch_20260101"})
	assert.Error(t, err)
}
