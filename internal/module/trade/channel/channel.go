package channel

import (
	"context"
	"time"
)

// PlatformType identifies the external payment platform that owns a
// channel. Inbound notifications are routed by platform before the
// specific charge or refund is known.
type PlatformType string

const (
	PlatformAlipay PlatformType = "alipay"
	PlatformWechat PlatformType = "wechat"
	PlatformStripe PlatformType = "stripe"
)

// ChannelType identifies a specific product on a platform.
type ChannelType string

const (
	AlipayPage ChannelType = "alipay_page" // desktop web redirect
	AlipayWap  ChannelType = "alipay_wap"  // mobile web redirect
	AlipayApp  ChannelType = "alipay_app"  // app SDK
	AlipayQR   ChannelType = "alipay_qr"   // precreate / scan

	WechatNative ChannelType = "wechat_native" // QR code
	WechatH5     ChannelType = "wechat_h5"     // mobile web
	WechatJSAPI  ChannelType = "wechat_jsapi"  // in-app browser, needs openid
	WechatApp    ChannelType = "wechat_app"    // app SDK

	StripeCard ChannelType = "stripe_card" // PaymentIntent flow
)

// Platform returns the platform that owns the channel.
func (c ChannelType) Platform() PlatformType {
	switch c {
	case AlipayPage, AlipayWap, AlipayApp, AlipayQR:
		return PlatformAlipay
	case WechatNative, WechatH5, WechatJSAPI, WechatApp:
		return PlatformWechat
	case StripeCard:
		return PlatformStripe
	default:
		return ""
	}
}

// Valid reports whether the channel type is known.
func (c ChannelType) Valid() bool {
	return c.Platform() != ""
}

// Signal is the normalized settlement outcome an adapter derives from a
// push notification or a pull query.
type Signal string

const (
	SignalPaid    Signal = "paid"
	SignalPending Signal = "pending"
	SignalClosed  Signal = "closed"
	SignalFailed  Signal = "failed"
	SignalUnknown Signal = "unknown"
)

// RawBodyKey is the notify-param key carrying the raw request body for
// platforms that push JSON instead of form parameters.
const RawBodyKey = "__body__"

// PayRequest describes a charge to place with a platform.
type PayRequest struct {
	ChargeNo      string
	Channel       ChannelType
	Amount        int64 // minor units
	Currency      string
	Subject       string
	Body          string
	ExpireMinutes int
	NotifyURL     string
	ReturnURL     string
	Extra         map[string]string
}

// PayResult is the platform's answer to a pay request. Credential is the
// platform-issued payload the payer uses to complete payment: a redirect
// URL, QR content, signed SDK params or a client secret.
type PayResult struct {
	Credential      string
	PlatformTradeNo string
}

// QueryRequest identifies a charge to query on the platform.
type QueryRequest struct {
	ChargeNo        string
	PlatformTradeNo string
}

// QueryResult is the normalized outcome of a pull query.
type QueryResult struct {
	Signal          Signal
	PlatformTradeNo string
	Amount          int64
	PaidAt          time.Time
}

// RefundRequest describes a refund to issue against a settled charge.
type RefundRequest struct {
	ChargeNo        string
	PlatformTradeNo string
	RefundNo        string
	Amount          int64
	TotalAmount     int64
	Reason          string
}

// RefundQueryRequest identifies a refund to query on the platform.
type RefundQueryRequest struct {
	ChargeNo         string
	RefundNo         string
	PlatformTradeNo  string
	PlatformRefundNo string
}

// RefundResult is the platform's answer to a refund request or refund
// query. Signal is SignalPaid for a completed refund, SignalPending when
// the platform processes asynchronously.
type RefundResult struct {
	Signal           Signal
	PlatformRefundNo string
	Amount           int64
}

// NotifyResult is a parsed, authenticated platform callback. Verified is
// false when the signature check fails; callers must drop unverified
// notifications without mutating state.
type NotifyResult struct {
	BusinessNo      string // our charge_no or refund_no
	PlatformTradeNo string
	Amount          int64
	Signal          Signal
	Verified        bool
	Raw             string
	SuccessResp     string // body the platform expects on a successful ack
}

// Adapter translates generic pay/refund/query/notify requests into
// platform wire calls and back. Implementations are stateless and safe
// for concurrent use.
type Adapter interface {
	// Platform returns the platform this adapter talks to.
	Platform() PlatformType

	// Pay places a charge and returns the payment credential.
	Pay(ctx context.Context, req *PayRequest) (*PayResult, error)

	// Query pulls the current settlement state of a charge.
	Query(ctx context.Context, req *QueryRequest) (*QueryResult, error)

	// Close cancels an unpaid charge on the platform.
	Close(ctx context.Context, req *QueryRequest) error

	// Refund issues a refund against a settled charge.
	Refund(ctx context.Context, req *RefundRequest) (*RefundResult, error)

	// QueryRefund pulls the current state of a refund.
	QueryRefund(ctx context.Context, req *RefundQueryRequest) (*RefundResult, error)

	// ParseNotify authenticates and normalizes a charge notification.
	ParseNotify(ctx context.Context, params map[string]string) (*NotifyResult, error)

	// ParseRefundNotify authenticates and normalizes a refund
	// notification, for platforms that push refund outcomes.
	ParseRefundNotify(ctx context.Context, params map[string]string) (*NotifyResult, error)
}
