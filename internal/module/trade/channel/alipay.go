package channel

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/go-pay/gopay"
	"github.com/go-pay/gopay/alipay"
)

// AlipayConfig holds Alipay channel configuration.
type AlipayConfig struct {
	AppID           string // Application ID
	PrivateKey      string // RSA2 private key (PEM format)
	AlipayPublicKey string // Alipay public key for verification (PEM format)
	IsProd          bool   // Production environment flag
	ReturnURL       string // Default return URL after payment
}

// AlipayAdapter implements Adapter for Alipay.
type AlipayAdapter struct {
	client *alipay.Client
	config *AlipayConfig
}

// NewAlipayAdapter creates a new Alipay adapter.
func NewAlipayAdapter(config *AlipayConfig) (*AlipayAdapter, error) {
	client, err := alipay.NewClient(config.AppID, config.PrivateKey, config.IsProd)
	if err != nil {
		return nil, fmt.Errorf("create alipay client: %w", err)
	}

	// Set public key for auto signature verification
	client.AutoVerifySign([]byte(config.AlipayPublicKey))

	return &AlipayAdapter{
		client: client,
		config: config,
	}, nil
}

// Platform returns the owning platform.
func (a *AlipayAdapter) Platform() PlatformType {
	return PlatformAlipay
}

// Pay places a charge and returns the payment credential for the
// requested Alipay product.
func (a *AlipayAdapter) Pay(ctx context.Context, req *PayRequest) (*PayResult, error) {
	// Alipay uses yuan with 2 decimal places
	amountStr := fmt.Sprintf("%.2f", float64(req.Amount)/100)

	bm := make(gopay.BodyMap)
	bm.Set("out_trade_no", req.ChargeNo)
	bm.Set("total_amount", amountStr)
	bm.Set("subject", req.Subject)
	if req.ExpireMinutes > 0 {
		bm.Set("timeout_express", fmt.Sprintf("%dm", req.ExpireMinutes))
	}
	if req.Body != "" {
		bm.Set("body", req.Body)
	}
	if req.NotifyURL != "" {
		a.client.SetNotifyUrl(req.NotifyURL)
	}
	if req.ReturnURL != "" {
		a.client.SetReturnUrl(req.ReturnURL)
	} else if a.config.ReturnURL != "" {
		a.client.SetReturnUrl(a.config.ReturnURL)
	}
	if len(req.Extra) > 0 {
		passback, _ := json.Marshal(req.Extra)
		bm.Set("passback_params", string(passback))
	}

	switch req.Channel {
	case AlipayPage:
		bm.Set("product_code", "FAST_INSTANT_TRADE_PAY")
		payURL, err := a.client.TradePagePay(ctx, bm)
		if err != nil {
			return nil, fmt.Errorf("alipay page pay: %w", err)
		}
		return &PayResult{Credential: payURL}, nil

	case AlipayWap:
		bm.Set("product_code", "QUICK_WAP_WAY")
		payURL, err := a.client.TradeWapPay(ctx, bm)
		if err != nil {
			return nil, fmt.Errorf("alipay wap pay: %w", err)
		}
		return &PayResult{Credential: payURL}, nil

	case AlipayApp:
		bm.Set("product_code", "QUICK_MSECURITY_PAY")
		payStr, err := a.client.TradeAppPay(ctx, bm)
		if err != nil {
			return nil, fmt.Errorf("alipay app pay: %w", err)
		}
		return &PayResult{Credential: payStr}, nil

	case AlipayQR:
		bm.Set("product_code", "FACE_TO_FACE_PAYMENT")
		resp, err := a.client.TradePrecreate(ctx, bm)
		if err != nil {
			return nil, fmt.Errorf("alipay precreate: %w", err)
		}
		if resp.Response.Code != "10000" {
			return nil, fmt.Errorf("alipay error: %s - %s", resp.Response.Code, resp.Response.Msg)
		}
		return &PayResult{Credential: resp.Response.QrCode}, nil

	default:
		return nil, fmt.Errorf("unsupported alipay channel: %s", req.Channel)
	}
}

// Query pulls the settlement state of a charge.
func (a *AlipayAdapter) Query(ctx context.Context, req *QueryRequest) (*QueryResult, error) {
	bm := make(gopay.BodyMap)
	if req.PlatformTradeNo != "" {
		bm.Set("trade_no", req.PlatformTradeNo)
	} else {
		bm.Set("out_trade_no", req.ChargeNo)
	}

	resp, err := a.client.TradeQuery(ctx, bm)
	if err != nil {
		return nil, fmt.Errorf("alipay query: %w", err)
	}

	if resp.Response.Code != "10000" {
		// The payer may not have opened the cashier yet, in which case
		// the trade does not exist platform-side.
		if resp.Response.SubCode == "ACQ.TRADE_NOT_EXIST" {
			return &QueryResult{Signal: SignalPending}, nil
		}
		return nil, fmt.Errorf("alipay query error: %s - %s", resp.Response.Code, resp.Response.Msg)
	}

	var paidAt time.Time
	if resp.Response.SendPayDate != "" {
		if t, err := time.Parse("2006-01-02 15:04:05", resp.Response.SendPayDate); err == nil {
			paidAt = t
		}
	}

	return &QueryResult{
		Signal:          mapAlipayTradeStatus(resp.Response.TradeStatus),
		PlatformTradeNo: resp.Response.TradeNo,
		Amount:          yuanToMinorUnits(resp.Response.TotalAmount),
		PaidAt:          paidAt,
	}, nil
}

// Close cancels an unpaid charge.
func (a *AlipayAdapter) Close(ctx context.Context, req *QueryRequest) error {
	bm := make(gopay.BodyMap)
	if req.PlatformTradeNo != "" {
		bm.Set("trade_no", req.PlatformTradeNo)
	} else {
		bm.Set("out_trade_no", req.ChargeNo)
	}

	resp, err := a.client.TradeClose(ctx, bm)
	if err != nil {
		return fmt.Errorf("alipay close: %w", err)
	}
	if resp.Response.Code != "10000" {
		// Closing a trade the payer never opened also fails with
		// TRADE_NOT_EXIST; that is as closed as it gets.
		if resp.Response.SubCode == "ACQ.TRADE_NOT_EXIST" {
			return nil
		}
		return fmt.Errorf("alipay close error: %s - %s", resp.Response.Code, resp.Response.Msg)
	}
	return nil
}

// Refund issues a refund. Alipay completes most refunds synchronously.
func (a *AlipayAdapter) Refund(ctx context.Context, req *RefundRequest) (*RefundResult, error) {
	bm := make(gopay.BodyMap)
	if req.PlatformTradeNo != "" {
		bm.Set("trade_no", req.PlatformTradeNo)
	} else {
		bm.Set("out_trade_no", req.ChargeNo)
	}
	bm.Set("out_request_no", req.RefundNo)
	bm.Set("refund_amount", fmt.Sprintf("%.2f", float64(req.Amount)/100))
	if req.Reason != "" {
		bm.Set("refund_reason", req.Reason)
	}

	resp, err := a.client.TradeRefund(ctx, bm)
	if err != nil {
		return nil, fmt.Errorf("alipay refund: %w", err)
	}
	if resp.Response.Code != "10000" {
		return nil, fmt.Errorf("alipay refund error: %s - %s", resp.Response.Code, resp.Response.Msg)
	}

	return &RefundResult{
		Signal:           SignalPaid,
		PlatformRefundNo: resp.Response.TradeNo,
		Amount:           yuanToMinorUnits(resp.Response.RefundFee),
	}, nil
}

// QueryRefund pulls the state of a refund.
func (a *AlipayAdapter) QueryRefund(ctx context.Context, req *RefundQueryRequest) (*RefundResult, error) {
	bm := make(gopay.BodyMap)
	bm.Set("out_trade_no", req.ChargeNo)
	bm.Set("out_request_no", req.RefundNo)

	resp, err := a.client.TradeFastPayRefundQuery(ctx, bm)
	if err != nil {
		return nil, fmt.Errorf("alipay refund query: %w", err)
	}
	if resp.Response.Code != "10000" {
		return nil, fmt.Errorf("alipay refund query error: %s - %s", resp.Response.Code, resp.Response.Msg)
	}

	signal := SignalPending
	if resp.Response.RefundStatus == "REFUND_SUCCESS" {
		signal = SignalPaid
	}

	return &RefundResult{
		Signal:           signal,
		PlatformRefundNo: resp.Response.TradeNo,
		Amount:           yuanToMinorUnits(resp.Response.RefundAmount),
	}, nil
}

// ParseNotify authenticates and normalizes an Alipay trade notification.
// Alipay posts form parameters, which arrive here as a plain map.
func (a *AlipayAdapter) ParseNotify(ctx context.Context, params map[string]string) (*NotifyResult, error) {
	bm := make(gopay.BodyMap)
	for k, v := range params {
		bm.Set(k, v)
	}

	raw, _ := json.Marshal(params)
	result := &NotifyResult{
		BusinessNo:      params["out_trade_no"],
		PlatformTradeNo: params["trade_no"],
		Raw:             string(raw),
		SuccessResp:     "success",
	}

	ok, err := alipay.VerifySign(a.config.AlipayPublicKey, bm)
	if err != nil || !ok {
		result.Verified = false
		result.Signal = SignalUnknown
		return result, nil
	}

	result.Verified = true
	result.Amount = yuanToMinorUnits(params["total_amount"])
	result.Signal = mapAlipayTradeStatus(params["trade_status"])
	return result, nil
}

// ParseRefundNotify is not applicable: Alipay reports refund outcomes on
// the synchronous refund call and refund query, not via push.
func (a *AlipayAdapter) ParseRefundNotify(ctx context.Context, params map[string]string) (*NotifyResult, error) {
	return nil, errors.New("alipay does not push refund notifications")
}

// yuanToMinorUnits converts a decimal yuan string to minor units.
// Rounding is required: float truncation drops one fen on amounts like
// 19.99, which would make the parsed amount disagree with the charge.
func yuanToMinorUnits(s string) int64 {
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return int64(math.Round(f * 100))
}

// mapAlipayTradeStatus maps Alipay trade status to a Signal.
func mapAlipayTradeStatus(status string) Signal {
	switch status {
	case "WAIT_BUYER_PAY":
		return SignalPending
	case "TRADE_CLOSED":
		return SignalClosed
	case "TRADE_SUCCESS", "TRADE_FINISHED":
		return SignalPaid
	default:
		return SignalUnknown
	}
}
