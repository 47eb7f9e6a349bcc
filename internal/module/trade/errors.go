package trade

import "errors"

// Module errors.
var (
	ErrChargeNotFound         = errors.New("charge not found")
	ErrRefundNotFound         = errors.New("refund not found")
	ErrInvalidTransition      = errors.New("invalid state transition")
	ErrInvalidChannel         = errors.New("invalid channel")
	ErrChannelNotEnabled      = errors.New("channel not enabled")
	ErrOrderAlreadyPaid       = errors.New("order already paid")
	ErrChargeNotRefundable    = errors.New("charge not refundable")
	ErrNotifyNotVerified      = errors.New("notification signature not verified")
	ErrNotifyNotHandled       = errors.New("notification not handled")
	ErrConcurrentModification = errors.New("concurrent modification")
	ErrDuplicateNotifyEvent   = errors.New("notify event already recorded")
)
