package trade

import (
	"time"

	"github.com/payflow/server/internal/module/trade/channel"
)

// CreateChargeRequest is the payload for creating a charge.
type CreateChargeRequest struct {
	OrderNo       string            `json:"order_no" binding:"required,max=64"`
	Channel       string            `json:"channel" binding:"required"`
	Amount        int64             `json:"amount" binding:"required,gt=0"`
	Currency      string            `json:"currency" binding:"omitempty,len=3"`
	Subject       string            `json:"subject" binding:"required,max=256"`
	Body          string            `json:"body" binding:"max=512"`
	ExpireMinutes int               `json:"expire_minutes" binding:"omitempty,min=1,max=1440"`
	ReturnURL     string            `json:"return_url" binding:"omitempty,url"`
	Extra         map[string]string `json:"extra"`
}

// ChargeResponse is the API view of a charge. The payment credential is
// only present while the charge is still payable.
type ChargeResponse struct {
	ChargeNo        string              `json:"charge_no"`
	OrderNo         string              `json:"order_no"`
	Channel         channel.ChannelType `json:"channel"`
	Platform        string              `json:"platform"`
	Amount          int64               `json:"amount"`
	Currency        string              `json:"currency"`
	Subject         string              `json:"subject"`
	Status          ChargeStatus        `json:"status"`
	Credential      string              `json:"credential,omitempty"`
	PlatformTradeNo string              `json:"platform_trade_no,omitempty"`
	RefundedAmount  int64               `json:"refunded_amount"`
	ExpireAt        time.Time           `json:"expire_at"`
	PaidAt          *time.Time          `json:"paid_at,omitempty"`
	CreatedAt       time.Time           `json:"created_at"`
}

// ToResponse converts a charge to its API representation. Credentials
// are stripped once the charge can no longer be paid.
func (c *Charge) ToResponse() *ChargeResponse {
	resp := &ChargeResponse{
		ChargeNo:        c.ChargeNo,
		OrderNo:         c.OrderNo,
		Channel:         c.Channel,
		Platform:        c.Platform,
		Amount:          c.Amount,
		Currency:        c.Currency,
		Subject:         c.Subject,
		Status:          c.Status,
		PlatformTradeNo: c.PlatformTradeNo,
		RefundedAmount:  c.RefundedAmount,
		ExpireAt:        c.ExpireAt,
		PaidAt:          c.PaidAt,
		CreatedAt:       c.CreatedAt,
	}
	if c.Status == ChargeStatusWaitPay {
		resp.Credential = c.Credential
	}
	return resp
}

// CreateRefundRequest is the payload for requesting a refund.
type CreateRefundRequest struct {
	Amount int64  `json:"amount" binding:"required,gt=0"`
	Reason string `json:"reason" binding:"max=256"`
}

// RefundResponse is the API view of a refund.
type RefundResponse struct {
	RefundNo         string       `json:"refund_no"`
	ChargeNo         string       `json:"charge_no"`
	Amount           int64        `json:"amount"`
	Reason           string       `json:"reason,omitempty"`
	Status           RefundStatus `json:"status"`
	PlatformRefundNo string       `json:"platform_refund_no,omitempty"`
	SucceededAt      *time.Time   `json:"succeeded_at,omitempty"`
	CreatedAt        time.Time    `json:"created_at"`
}

// ToResponse converts a refund to its API representation.
func (r *Refund) ToResponse() *RefundResponse {
	return &RefundResponse{
		RefundNo:         r.RefundNo,
		ChargeNo:         r.ChargeNo,
		Amount:           r.Amount,
		Reason:           r.Reason,
		Status:           r.Status,
		PlatformRefundNo: r.PlatformRefundNo,
		SucceededAt:      r.SucceededAt,
		CreatedAt:        r.CreatedAt,
	}
}

// ListChargesQuery carries the filters for listing charges.
type ListChargesQuery struct {
	OrderNo string `form:"order_no"`
	Status  string `form:"status"`
	Page    int    `form:"page,default=1" binding:"omitempty,min=1"`
	PerPage int    `form:"per_page,default=20" binding:"omitempty,min=1,max=100"`
}

// StatusCount is one bucket of the charge status aggregation.
type StatusCount struct {
	Status ChargeStatus `json:"status"`
	Count  int64        `json:"count"`
}

// ChargeStatsResponse is the per-app-group charge status aggregation.
type ChargeStatsResponse struct {
	AppGroupCeiling int64         `json:"app_group_ceiling"`
	Counts          []StatusCount `json:"counts"`
}
