package channel

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/paymentintent"
	"github.com/stripe/stripe-go/v76/refund"
	"github.com/stripe/stripe-go/v76/webhook"
)

// StripeConfig holds Stripe channel configuration.
type StripeConfig struct {
	APIKey        string
	WebhookSecret string
}

// StripeAdapter implements Adapter for Stripe. The credential handed to
// the payer is the PaymentIntent client secret; the frontend drives the
// confirmation flow with it.
type StripeAdapter struct {
	webhookSecret string
}

// NewStripeAdapter creates a new Stripe adapter.
func NewStripeAdapter(config *StripeConfig) *StripeAdapter {
	stripe.Key = config.APIKey
	return &StripeAdapter{
		webhookSecret: config.WebhookSecret,
	}
}

// Platform returns the owning platform.
func (s *StripeAdapter) Platform() PlatformType {
	return PlatformStripe
}

// Pay creates a PaymentIntent for the charge.
func (s *StripeAdapter) Pay(ctx context.Context, req *PayRequest) (*PayResult, error) {
	if req.Channel != StripeCard {
		return nil, fmt.Errorf("unsupported stripe channel: %s", req.Channel)
	}

	currency := req.Currency
	if currency == "" {
		currency = "usd"
	}

	params := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(req.Amount),
		Currency: stripe.String(currency),
		AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled: stripe.Bool(true),
		},
		Description: stripe.String(req.Subject),
	}
	params.Context = ctx
	params.AddMetadata("charge_no", req.ChargeNo)
	for k, v := range req.Extra {
		params.AddMetadata(k, v)
	}

	pi, err := paymentintent.New(params)
	if err != nil {
		return nil, fmt.Errorf("create payment intent: %w", err)
	}

	return &PayResult{
		Credential:      pi.ClientSecret,
		PlatformTradeNo: pi.ID,
	}, nil
}

// Query pulls the PaymentIntent state.
func (s *StripeAdapter) Query(ctx context.Context, req *QueryRequest) (*QueryResult, error) {
	if req.PlatformTradeNo == "" {
		return nil, fmt.Errorf("stripe query requires payment intent id")
	}

	params := &stripe.PaymentIntentParams{}
	params.Context = ctx
	pi, err := paymentintent.Get(req.PlatformTradeNo, params)
	if err != nil {
		return nil, fmt.Errorf("get payment intent: %w", err)
	}

	return &QueryResult{
		Signal:          mapStripeIntentStatus(pi.Status),
		PlatformTradeNo: pi.ID,
		Amount:          pi.Amount,
	}, nil
}

// Close cancels an unconfirmed PaymentIntent.
func (s *StripeAdapter) Close(ctx context.Context, req *QueryRequest) error {
	if req.PlatformTradeNo == "" {
		return fmt.Errorf("stripe close requires payment intent id")
	}

	params := &stripe.PaymentIntentCancelParams{}
	params.Context = ctx
	if _, err := paymentintent.Cancel(req.PlatformTradeNo, params); err != nil {
		return fmt.Errorf("cancel payment intent: %w", err)
	}
	return nil
}

// Refund issues a refund against the PaymentIntent.
func (s *StripeAdapter) Refund(ctx context.Context, req *RefundRequest) (*RefundResult, error) {
	params := &stripe.RefundParams{
		PaymentIntent: stripe.String(req.PlatformTradeNo),
		Amount:        stripe.Int64(req.Amount),
	}
	params.Context = ctx
	params.AddMetadata("refund_no", req.RefundNo)
	if req.Reason != "" {
		params.AddMetadata("reason", req.Reason)
	}

	r, err := refund.New(params)
	if err != nil {
		return nil, fmt.Errorf("create refund: %w", err)
	}

	return &RefundResult{
		Signal:           mapStripeRefundStatus(r.Status),
		PlatformRefundNo: r.ID,
		Amount:           r.Amount,
	}, nil
}

// QueryRefund pulls the refund state.
func (s *StripeAdapter) QueryRefund(ctx context.Context, req *RefundQueryRequest) (*RefundResult, error) {
	if req.PlatformRefundNo == "" {
		return nil, fmt.Errorf("stripe refund query requires refund id")
	}

	params := &stripe.RefundParams{}
	params.Context = ctx
	r, err := refund.Get(req.PlatformRefundNo, params)
	if err != nil {
		return nil, fmt.Errorf("get refund: %w", err)
	}

	return &RefundResult{
		Signal:           mapStripeRefundStatus(r.Status),
		PlatformRefundNo: r.ID,
		Amount:           r.Amount,
	}, nil
}

// ParseNotify verifies the webhook signature and normalizes a
// payment_intent event. The raw body travels under RawBodyKey and the
// signature under the Stripe-Signature header name.
func (s *StripeAdapter) ParseNotify(ctx context.Context, params map[string]string) (*NotifyResult, error) {
	payload := []byte(params[RawBodyKey])

	result := &NotifyResult{
		Raw:         string(payload),
		SuccessResp: `{"received":true}`,
	}

	event, err := webhook.ConstructEvent(payload, params["Stripe-Signature"], s.webhookSecret)
	if err != nil {
		result.Verified = false
		result.Signal = SignalUnknown
		return result, nil
	}

	var pi stripe.PaymentIntent
	if err := json.Unmarshal(event.Data.Raw, &pi); err != nil {
		return nil, fmt.Errorf("parse payment intent: %w", err)
	}

	result.Verified = true
	result.BusinessNo = pi.Metadata["charge_no"]
	result.PlatformTradeNo = pi.ID
	result.Amount = pi.Amount

	switch event.Type {
	case "payment_intent.succeeded":
		result.Signal = SignalPaid
	case "payment_intent.payment_failed":
		result.Signal = SignalFailed
	case "payment_intent.canceled":
		result.Signal = SignalClosed
	default:
		result.Signal = SignalUnknown
	}
	return result, nil
}

// ParseRefundNotify verifies the webhook signature and normalizes a
// refund event.
func (s *StripeAdapter) ParseRefundNotify(ctx context.Context, params map[string]string) (*NotifyResult, error) {
	payload := []byte(params[RawBodyKey])

	result := &NotifyResult{
		Raw:         string(payload),
		SuccessResp: `{"received":true}`,
	}

	event, err := webhook.ConstructEvent(payload, params["Stripe-Signature"], s.webhookSecret)
	if err != nil {
		result.Verified = false
		result.Signal = SignalUnknown
		return result, nil
	}

	var r stripe.Refund
	if err := json.Unmarshal(event.Data.Raw, &r); err != nil {
		return nil, fmt.Errorf("parse refund: %w", err)
	}

	result.Verified = true
	result.BusinessNo = r.Metadata["refund_no"]
	result.PlatformTradeNo = r.ID
	result.Amount = r.Amount
	result.Signal = mapStripeRefundStatus(r.Status)
	return result, nil
}

// mapStripeIntentStatus maps a PaymentIntent status to a Signal.
func mapStripeIntentStatus(status stripe.PaymentIntentStatus) Signal {
	switch status {
	case stripe.PaymentIntentStatusSucceeded:
		return SignalPaid
	case stripe.PaymentIntentStatusRequiresPaymentMethod,
		stripe.PaymentIntentStatusRequiresConfirmation,
		stripe.PaymentIntentStatusRequiresAction,
		stripe.PaymentIntentStatusRequiresCapture,
		stripe.PaymentIntentStatusProcessing:
		return SignalPending
	case stripe.PaymentIntentStatusCanceled:
		return SignalClosed
	default:
		return SignalUnknown
	}
}

// mapStripeRefundStatus maps a Refund status to a Signal.
func mapStripeRefundStatus(status stripe.RefundStatus) Signal {
	switch status {
	case stripe.RefundStatusSucceeded:
		return SignalPaid
	case stripe.RefundStatusPending:
		return SignalPending
	case stripe.RefundStatusFailed, stripe.RefundStatusCanceled:
		return SignalFailed
	default:
		return SignalUnknown
	}
}
