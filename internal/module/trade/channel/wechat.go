package channel

import (
	"bytes"
	"context"
	"crypto/rsa"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-pay/gopay"
	"github.com/go-pay/gopay/wechat/v3"
)

// WechatConfig holds WeChat Pay channel configuration.
type WechatConfig struct {
	AppID                 string // Application ID (公众号/小程序/APP)
	MchID                 string // Merchant ID
	APIKeyV3              string // APIv3 Key
	SerialNo              string // Certificate serial number
	PrivateKey            string // Private key (PEM format)
	WechatPublicKeySerial string // WeChat platform certificate serial
	WechatPublicKey       string // WeChat platform public key (PEM format)
	IsProd                bool   // Production environment flag
}

// WechatAdapter implements Adapter for WeChat Pay APIv3.
type WechatAdapter struct {
	client *wechat.ClientV3
	config *WechatConfig
}

// NewWechatAdapter creates a new WeChat Pay adapter.
func NewWechatAdapter(config *WechatConfig) (*WechatAdapter, error) {
	client, err := wechat.NewClientV3(
		config.MchID,
		config.SerialNo,
		config.APIKeyV3,
		config.PrivateKey,
	)
	if err != nil {
		return nil, fmt.Errorf("create wechat client: %w", err)
	}

	if config.IsProd {
		client.SetPlatformCert([]byte(config.WechatPublicKey), config.WechatPublicKeySerial)
	}

	return &WechatAdapter{
		client: client,
		config: config,
	}, nil
}

// Platform returns the owning platform.
func (w *WechatAdapter) Platform() PlatformType {
	return PlatformWechat
}

// Pay places a charge and returns the payment credential for the
// requested WeChat product.
func (w *WechatAdapter) Pay(ctx context.Context, req *PayRequest) (*PayResult, error) {
	expire := time.Now().Add(time.Duration(req.ExpireMinutes) * time.Minute)

	bm := make(gopay.BodyMap)
	bm.Set("appid", w.config.AppID)
	bm.Set("mchid", w.config.MchID)
	bm.Set("description", req.Subject)
	bm.Set("out_trade_no", req.ChargeNo)
	bm.Set("time_expire", expire.Format(time.RFC3339))
	bm.Set("notify_url", req.NotifyURL)
	bm.SetBodyMap("amount", func(am gopay.BodyMap) {
		am.Set("total", req.Amount)
		am.Set("currency", "CNY")
	})
	if len(req.Extra) > 0 {
		attach, _ := json.Marshal(req.Extra)
		bm.Set("attach", string(attach))
	}

	switch req.Channel {
	case WechatNative:
		resp, err := w.client.V3TransactionNative(ctx, bm)
		if err != nil {
			return nil, fmt.Errorf("wechat native pay: %w", err)
		}
		if resp.Code != wechat.Success {
			return nil, fmt.Errorf("wechat error: %d - %s", resp.Code, resp.Error)
		}
		return &PayResult{Credential: resp.Response.CodeUrl}, nil

	case WechatH5:
		clientIP := req.Extra["client_ip"]
		if clientIP == "" {
			clientIP = "127.0.0.1"
		}
		bm.SetBodyMap("scene_info", func(sm gopay.BodyMap) {
			sm.Set("payer_client_ip", clientIP)
			sm.SetBodyMap("h5_info", func(h5 gopay.BodyMap) {
				h5.Set("type", "Wap")
			})
		})
		resp, err := w.client.V3TransactionH5(ctx, bm)
		if err != nil {
			return nil, fmt.Errorf("wechat h5 pay: %w", err)
		}
		if resp.Code != wechat.Success {
			return nil, fmt.Errorf("wechat error: %d - %s", resp.Code, resp.Error)
		}
		return &PayResult{Credential: resp.Response.H5Url}, nil

	case WechatJSAPI:
		openid := req.Extra["openid"]
		if openid == "" {
			return nil, errors.New("openid is required for jsapi payment")
		}
		bm.SetBodyMap("payer", func(pm gopay.BodyMap) {
			pm.Set("openid", openid)
		})
		resp, err := w.client.V3TransactionJsapi(ctx, bm)
		if err != nil {
			return nil, fmt.Errorf("wechat jsapi pay: %w", err)
		}
		if resp.Code != wechat.Success {
			return nil, fmt.Errorf("wechat error: %d - %s", resp.Code, resp.Error)
		}
		jsapiParams, err := w.client.PaySignOfJSAPI(w.config.AppID, resp.Response.PrepayId)
		if err != nil {
			return nil, fmt.Errorf("sign jsapi payment: %w", err)
		}
		credential, _ := json.Marshal(jsapiParams)
		return &PayResult{Credential: string(credential)}, nil

	case WechatApp:
		resp, err := w.client.V3TransactionApp(ctx, bm)
		if err != nil {
			return nil, fmt.Errorf("wechat app pay: %w", err)
		}
		if resp.Code != wechat.Success {
			return nil, fmt.Errorf("wechat error: %d - %s", resp.Code, resp.Error)
		}
		appParams, err := w.client.PaySignOfApp(w.config.AppID, resp.Response.PrepayId)
		if err != nil {
			return nil, fmt.Errorf("sign app payment: %w", err)
		}
		credential, _ := json.Marshal(appParams)
		return &PayResult{Credential: string(credential)}, nil

	default:
		return nil, fmt.Errorf("unsupported wechat channel: %s", req.Channel)
	}
}

// Query pulls the settlement state of a charge.
func (w *WechatAdapter) Query(ctx context.Context, req *QueryRequest) (*QueryResult, error) {
	var resp *wechat.QueryOrderRsp
	var err error

	if req.PlatformTradeNo != "" {
		resp, err = w.client.V3TransactionQueryOrder(ctx, wechat.TransactionId, req.PlatformTradeNo)
	} else {
		resp, err = w.client.V3TransactionQueryOrder(ctx, wechat.OutTradeNo, req.ChargeNo)
	}
	if err != nil {
		return nil, fmt.Errorf("wechat query: %w", err)
	}
	if resp.Code != wechat.Success {
		return nil, fmt.Errorf("wechat query error: %d - %s", resp.Code, resp.Error)
	}

	var paidAt time.Time
	if resp.Response.SuccessTime != "" {
		if t, err := time.Parse(time.RFC3339, resp.Response.SuccessTime); err == nil {
			paidAt = t
		}
	}

	var amount int64
	if resp.Response.Amount != nil {
		amount = int64(resp.Response.Amount.Total)
	}

	return &QueryResult{
		Signal:          mapWechatTradeState(resp.Response.TradeState),
		PlatformTradeNo: resp.Response.TransactionId,
		Amount:          amount,
		PaidAt:          paidAt,
	}, nil
}

// Close cancels an unpaid charge.
func (w *WechatAdapter) Close(ctx context.Context, req *QueryRequest) error {
	resp, err := w.client.V3TransactionCloseOrder(ctx, req.ChargeNo)
	if err != nil {
		return fmt.Errorf("wechat close: %w", err)
	}
	if resp.Code != wechat.Success {
		return fmt.Errorf("wechat close error: %d - %s", resp.Code, resp.Error)
	}
	return nil
}

// Refund issues a refund. WeChat processes refunds asynchronously and
// pushes the outcome via a refund notification.
func (w *WechatAdapter) Refund(ctx context.Context, req *RefundRequest) (*RefundResult, error) {
	bm := make(gopay.BodyMap)
	if req.PlatformTradeNo != "" {
		bm.Set("transaction_id", req.PlatformTradeNo)
	} else {
		bm.Set("out_trade_no", req.ChargeNo)
	}
	bm.Set("out_refund_no", req.RefundNo)
	if req.Reason != "" {
		bm.Set("reason", req.Reason)
	}
	bm.SetBodyMap("amount", func(am gopay.BodyMap) {
		am.Set("refund", req.Amount)
		am.Set("total", req.TotalAmount)
		am.Set("currency", "CNY")
	})

	resp, err := w.client.V3Refund(ctx, bm)
	if err != nil {
		return nil, fmt.Errorf("wechat refund: %w", err)
	}
	if resp.Code != wechat.Success {
		return nil, fmt.Errorf("wechat refund error: %d - %s", resp.Code, resp.Error)
	}

	return &RefundResult{
		Signal:           mapWechatRefundStatus(resp.Response.Status),
		PlatformRefundNo: resp.Response.RefundId,
		Amount:           int64(resp.Response.Amount.Refund),
	}, nil
}

// QueryRefund pulls the state of a refund.
func (w *WechatAdapter) QueryRefund(ctx context.Context, req *RefundQueryRequest) (*RefundResult, error) {
	resp, err := w.client.V3RefundQuery(ctx, req.RefundNo, nil)
	if err != nil {
		return nil, fmt.Errorf("wechat refund query: %w", err)
	}
	if resp.Code != wechat.Success {
		return nil, fmt.Errorf("wechat refund query error: %d - %s", resp.Code, resp.Error)
	}

	return &RefundResult{
		Signal:           mapWechatRefundStatus(resp.Response.Status),
		PlatformRefundNo: resp.Response.RefundId,
		Amount:           int64(resp.Response.Amount.Refund),
	}, nil
}

// ParseNotify authenticates, decrypts and normalizes a WeChat trade
// notification. WeChat pushes JSON with signature headers; the raw body
// travels under RawBodyKey and the Wechatpay-* headers under their own
// names.
func (w *WechatAdapter) ParseNotify(ctx context.Context, params map[string]string) (*NotifyResult, error) {
	notifyReq, raw, err := w.parseNotifyRequest(ctx, params)
	if err != nil {
		return nil, err
	}

	result := &NotifyResult{
		Raw:         raw,
		SuccessResp: wechatSuccessResp(),
	}

	if err := w.verifyNotifySign(notifyReq); err != nil {
		result.Verified = false
		result.Signal = SignalUnknown
		return result, nil
	}

	resource, err := notifyReq.DecryptPayCipherText(w.config.APIKeyV3)
	if err != nil {
		result.Verified = false
		result.Signal = SignalUnknown
		return result, nil
	}

	var amount int64
	if resource.Amount != nil {
		amount = int64(resource.Amount.Total)
	}

	result.Verified = true
	result.BusinessNo = resource.OutTradeNo
	result.PlatformTradeNo = resource.TransactionId
	result.Amount = amount
	result.Signal = mapWechatTradeState(resource.TradeState)
	return result, nil
}

// ParseRefundNotify authenticates, decrypts and normalizes a WeChat
// refund notification.
func (w *WechatAdapter) ParseRefundNotify(ctx context.Context, params map[string]string) (*NotifyResult, error) {
	notifyReq, raw, err := w.parseNotifyRequest(ctx, params)
	if err != nil {
		return nil, err
	}

	result := &NotifyResult{
		Raw:         raw,
		SuccessResp: wechatSuccessResp(),
	}

	if err := w.verifyNotifySign(notifyReq); err != nil {
		result.Verified = false
		result.Signal = SignalUnknown
		return result, nil
	}

	resource, err := notifyReq.DecryptRefundCipherText(w.config.APIKeyV3)
	if err != nil {
		result.Verified = false
		result.Signal = SignalUnknown
		return result, nil
	}

	var amount int64
	if resource.Amount != nil {
		amount = int64(resource.Amount.Refund)
	}

	result.Verified = true
	result.BusinessNo = resource.OutRefundNo
	result.PlatformTradeNo = resource.RefundId
	result.Amount = amount
	result.Signal = mapWechatRefundStatus(resource.RefundStatus)
	return result, nil
}

// parseNotifyRequest rebuilds an *http.Request from the notify params so
// the gopay SDK can parse it.
func (w *WechatAdapter) parseNotifyRequest(ctx context.Context, params map[string]string) (*wechat.V3NotifyReq, string, error) {
	body := params[RawBodyKey]

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, "/", bytes.NewReader([]byte(body)))
	if err != nil {
		return nil, "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Wechatpay-Timestamp", params["Wechatpay-Timestamp"])
	req.Header.Set("Wechatpay-Nonce", params["Wechatpay-Nonce"])
	req.Header.Set("Wechatpay-Signature", params["Wechatpay-Signature"])
	req.Header.Set("Wechatpay-Serial", params["Wechatpay-Serial"])

	notifyReq, err := wechat.V3ParseNotify(req)
	if err != nil {
		return nil, "", fmt.Errorf("parse notify: %w", err)
	}
	return notifyReq, body, nil
}

func (w *WechatAdapter) verifyNotifySign(notifyReq *wechat.V3NotifyReq) error {
	pubKey, err := parseRSAPublicKey(w.config.WechatPublicKey)
	if err != nil {
		return fmt.Errorf("parse wechat public key: %w", err)
	}
	return notifyReq.VerifySignByPK(pubKey)
}

func wechatSuccessResp() string {
	resp, _ := json.Marshal(map[string]string{
		"code":    "SUCCESS",
		"message": "OK",
	})
	return string(resp)
}

// parseRSAPublicKey parses a PEM encoded RSA public key or certificate.
func parseRSAPublicKey(pemKey string) (*rsa.PublicKey, error) {
	block, _ := pem.Decode([]byte(pemKey))
	if block == nil {
		return nil, errors.New("failed to decode PEM block")
	}

	pub, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		cert, certErr := x509.ParseCertificate(block.Bytes)
		if certErr != nil {
			return nil, fmt.Errorf("parse public key: %w", err)
		}
		rsaKey, ok := cert.PublicKey.(*rsa.PublicKey)
		if !ok {
			return nil, errors.New("certificate does not contain RSA public key")
		}
		return rsaKey, nil
	}

	rsaKey, ok := pub.(*rsa.PublicKey)
	if !ok {
		return nil, errors.New("not an RSA public key")
	}
	return rsaKey, nil
}

// mapWechatTradeState maps WeChat trade state to a Signal.
func mapWechatTradeState(state string) Signal {
	switch state {
	case "SUCCESS", "REFUND":
		return SignalPaid
	case "NOTPAY", "USERPAYING", "ACCEPT":
		return SignalPending
	case "CLOSED", "REVOKED":
		return SignalClosed
	case "PAYERROR":
		return SignalFailed
	default:
		return SignalUnknown
	}
}

// mapWechatRefundStatus maps WeChat refund status to a Signal.
func mapWechatRefundStatus(status string) Signal {
	switch status {
	case "SUCCESS":
		return SignalPaid
	case "PROCESSING":
		return SignalPending
	case "CLOSED", "ABNORMAL":
		return SignalFailed
	default:
		return SignalUnknown
	}
}
