package events

import (
	"time"

	"github.com/google/uuid"
)

// Trade event type constants.
const (
	ChargeSucceededType = "ChargeSucceeded"
	ChargeClosedType    = "ChargeClosed"
	ChargeFailedType    = "ChargeFailed"
	RefundSucceededType = "RefundSucceeded"
	RefundFailedType    = "RefundFailed"
)

// BaseEvent carries the fields common to all domain events.
type BaseEvent struct {
	EventID       uuid.UUID `json:"event_id"`
	EventType     string    `json:"event_type"`
	AggregateType string    `json:"aggregate_type"`
	OccurredAt    time.Time `json:"occurred_at"`
}

// NewBaseEvent creates a new BaseEvent.
func NewBaseEvent(eventType, aggregateType string) BaseEvent {
	return BaseEvent{
		EventID:       uuid.New(),
		EventType:     eventType,
		AggregateType: aggregateType,
		OccurredAt:    time.Now(),
	}
}

// Type returns the event type.
func (e BaseEvent) Type() string { return e.EventType }

// ChargeSucceededEvent is emitted when a charge reaches SUCCESS.
type ChargeSucceededEvent struct {
	BaseEvent

	AppID    int64  `json:"app_id"`
	ChargeNo string `json:"charge_no"`
	OrderNo  string `json:"order_no"`
	Channel  string `json:"channel"`

	// Amount is the charge amount in minor units.
	Amount int64 `json:"amount"`

	// PlatformTradeNo is the platform-side transaction id.
	PlatformTradeNo string `json:"platform_trade_no,omitempty"`
}

// NewChargeSucceededEvent creates a new ChargeSucceededEvent.
func NewChargeSucceededEvent(appID int64, chargeNo, orderNo, channel string, amount int64, platformTradeNo string) *ChargeSucceededEvent {
	return &ChargeSucceededEvent{
		BaseEvent:       NewBaseEvent(ChargeSucceededType, "Charge"),
		AppID:           appID,
		ChargeNo:        chargeNo,
		OrderNo:         orderNo,
		Channel:         channel,
		Amount:          amount,
		PlatformTradeNo: platformTradeNo,
	}
}

// ChargeClosedEvent is emitted when an unpaid charge is closed.
type ChargeClosedEvent struct {
	BaseEvent

	AppID    int64  `json:"app_id"`
	ChargeNo string `json:"charge_no"`
	OrderNo  string `json:"order_no"`
}

// NewChargeClosedEvent creates a new ChargeClosedEvent.
func NewChargeClosedEvent(appID int64, chargeNo, orderNo string) *ChargeClosedEvent {
	return &ChargeClosedEvent{
		BaseEvent: NewBaseEvent(ChargeClosedType, "Charge"),
		AppID:     appID,
		ChargeNo:  chargeNo,
		OrderNo:   orderNo,
	}
}

// RefundSucceededEvent is emitted when a refund reaches SUCCESS.
type RefundSucceededEvent struct {
	BaseEvent

	AppID    int64  `json:"app_id"`
	RefundNo string `json:"refund_no"`
	ChargeNo string `json:"charge_no"`

	// Amount is the refunded amount in minor units.
	Amount int64 `json:"amount"`
}

// NewRefundSucceededEvent creates a new RefundSucceededEvent.
func NewRefundSucceededEvent(appID int64, refundNo, chargeNo string, amount int64) *RefundSucceededEvent {
	return &RefundSucceededEvent{
		BaseEvent: NewBaseEvent(RefundSucceededType, "Refund"),
		AppID:     appID,
		RefundNo:  refundNo,
		ChargeNo:  chargeNo,
		Amount:    amount,
	}
}
