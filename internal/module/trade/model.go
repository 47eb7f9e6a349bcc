package trade

import (
	"time"

	"github.com/payflow/server/internal/module/trade/channel"
)

// ChargeStatus represents the lifecycle state of a charge.
type ChargeStatus string

const (
	ChargeStatusCreated ChargeStatus = "CREATED"
	ChargeStatusWaitPay ChargeStatus = "WAIT_PAY"
	ChargeStatusSuccess ChargeStatus = "SUCCESS"
	ChargeStatusClosed  ChargeStatus = "CLOSED"
	ChargeStatusFailed  ChargeStatus = "FAILED"
)

// IsTerminal reports whether the status admits no further transitions.
func (s ChargeStatus) IsTerminal() bool {
	switch s {
	case ChargeStatusSuccess, ChargeStatusClosed, ChargeStatusFailed:
		return true
	}
	return false
}

// RefundStatus represents the lifecycle state of a refund.
type RefundStatus string

const (
	RefundStatusRequested RefundStatus = "REQUESTED"
	RefundStatusSuccess   RefundStatus = "SUCCESS"
	RefundStatusFailed    RefundStatus = "FAILED"
)

// IsTerminal reports whether the status admits no further transitions.
func (s RefundStatus) IsTerminal() bool {
	return s == RefundStatusSuccess || s == RefundStatusFailed
}

// Charge represents a single payment attempt against a merchant order.
// One order may accumulate several charges over its life, but at most
// one may ever reach SUCCESS.
type Charge struct {
	ID              int64               `json:"-" gorm:"primaryKey;autoIncrement"`
	ChargeNo        string              `json:"charge_no" gorm:"uniqueIndex;not null;size:64"`
	AppID           int64               `json:"app_id" gorm:"not null;index:idx_app_order"`
	OrderNo         string              `json:"order_no" gorm:"not null;index:idx_app_order;size:64"`
	Channel         channel.ChannelType `json:"channel" gorm:"not null;size:32"`
	Platform        string              `json:"platform" gorm:"not null;index;size:16"`
	Amount          int64               `json:"amount" gorm:"not null"` // minor units
	Currency        string              `json:"currency" gorm:"not null;default:CNY;size:8"`
	Subject         string              `json:"subject" gorm:"size:256"`
	Body            string              `json:"body" gorm:"size:512"`
	Status          ChargeStatus        `json:"status" gorm:"not null;default:CREATED;index;size:16"`
	Credential      string              `json:"credential,omitempty" gorm:"type:text"`
	PlatformTradeNo string              `json:"platform_trade_no,omitempty" gorm:"index;size:64"`
	RefundedAmount  int64               `json:"refunded_amount" gorm:"not null;default:0"`
	ExpireAt        time.Time           `json:"expire_at"`
	PaidAt          *time.Time          `json:"paid_at,omitempty"`
	Version         int64               `json:"-" gorm:"not null;default:0"`
	CreatedAt       time.Time           `json:"created_at"`
	UpdatedAt       time.Time           `json:"updated_at"`
}

// TableName returns the database table name.
func (Charge) TableName() string {
	return "charges"
}

// CanRefund reports whether the charge can accept a new refund of the
// given amount without exceeding the paid total.
func (c *Charge) CanRefund(amount int64) bool {
	if c.Status != ChargeStatusSuccess {
		return false
	}
	return amount > 0 && c.RefundedAmount+amount <= c.Amount
}

// RefundableAmount returns the remaining refund headroom.
func (c *Charge) RefundableAmount() int64 {
	if c.Status != ChargeStatusSuccess {
		return 0
	}
	return c.Amount - c.RefundedAmount
}

// Refund represents a single refund attempt against a succeeded charge.
type Refund struct {
	ID               int64        `json:"-" gorm:"primaryKey;autoIncrement"`
	RefundNo         string       `json:"refund_no" gorm:"uniqueIndex;not null;size:64"`
	ChargeNo         string       `json:"charge_no" gorm:"not null;index;size:64"`
	AppID            int64        `json:"app_id" gorm:"not null;index"`
	Amount           int64        `json:"amount" gorm:"not null"`
	Reason           string       `json:"reason" gorm:"size:256"`
	Status           RefundStatus `json:"status" gorm:"not null;default:REQUESTED;index;size:16"`
	PlatformRefundNo string       `json:"platform_refund_no,omitempty" gorm:"index;size:64"`
	SucceededAt      *time.Time   `json:"succeeded_at,omitempty"`
	Version          int64        `json:"-" gorm:"not null;default:0"`
	CreatedAt        time.Time    `json:"created_at"`
	UpdatedAt        time.Time    `json:"updated_at"`
}

// TableName returns the database table name.
func (Refund) TableName() string {
	return "refunds"
}

// NotifyEvent records a received platform notification. The unique
// (platform, event_id) index is the dedupe barrier for at-least-once
// webhook delivery.
type NotifyEvent struct {
	ID          int64      `gorm:"primaryKey;autoIncrement"`
	Platform    string     `gorm:"not null;uniqueIndex:idx_platform_event;size:16"`
	EventID     string     `gorm:"not null;uniqueIndex:idx_platform_event;size:128"`
	EventType   string     `gorm:"not null;size:16"` // charge, refund
	BusinessNo  string     `gorm:"index;size:64"`
	Data        string     `gorm:"type:text"`
	Processed   bool       `gorm:"default:false"`
	ProcessedAt *time.Time
	Error       *string
	CreatedAt   time.Time
}

// TableName returns the database table name.
func (NotifyEvent) TableName() string {
	return "notify_events"
}

// AppGroupCeiling maps an app ID to the upper bound of its
// hundred-thousand block, the bucket key used for aggregate charge
// stats.
func AppGroupCeiling(appID int64) int64 {
	return appID/100000*100000 + 99999
}
