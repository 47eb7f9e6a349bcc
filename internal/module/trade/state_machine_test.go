package trade

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/payflow/server/internal/module/trade/channel"
)

func TestApplyChargeSignal(t *testing.T) {
	tests := []struct {
		name    string
		current ChargeStatus
		signal  channel.Signal
		want    ChargeStatus
		changed bool
	}{
		{"created pending moves to wait_pay", ChargeStatusCreated, channel.SignalPending, ChargeStatusWaitPay, true},
		{"created paid moves to success", ChargeStatusCreated, channel.SignalPaid, ChargeStatusSuccess, true},
		{"wait_pay paid moves to success", ChargeStatusWaitPay, channel.SignalPaid, ChargeStatusSuccess, true},
		{"wait_pay closed moves to closed", ChargeStatusWaitPay, channel.SignalClosed, ChargeStatusClosed, true},
		{"wait_pay failed moves to failed", ChargeStatusWaitPay, channel.SignalFailed, ChargeStatusFailed, true},
		{"wait_pay pending is a no-op", ChargeStatusWaitPay, channel.SignalPending, ChargeStatusWaitPay, false},
		{"wait_pay unknown is a no-op", ChargeStatusWaitPay, channel.SignalUnknown, ChargeStatusWaitPay, false},
		{"success absorbs paid", ChargeStatusSuccess, channel.SignalPaid, ChargeStatusSuccess, false},
		{"success absorbs closed", ChargeStatusSuccess, channel.SignalClosed, ChargeStatusSuccess, false},
		{"closed absorbs paid", ChargeStatusClosed, channel.SignalPaid, ChargeStatusClosed, false},
		{"failed absorbs closed", ChargeStatusFailed, channel.SignalClosed, ChargeStatusFailed, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, changed := ApplyChargeSignal(tt.current, tt.signal)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.changed, changed)
		})
	}
}

func TestApplyRefundSignal(t *testing.T) {
	tests := []struct {
		name    string
		current RefundStatus
		signal  channel.Signal
		want    RefundStatus
		changed bool
	}{
		{"requested paid moves to success", RefundStatusRequested, channel.SignalPaid, RefundStatusSuccess, true},
		{"requested failed moves to failed", RefundStatusRequested, channel.SignalFailed, RefundStatusFailed, true},
		{"requested closed moves to failed", RefundStatusRequested, channel.SignalClosed, RefundStatusFailed, true},
		{"requested pending is a no-op", RefundStatusRequested, channel.SignalPending, RefundStatusRequested, false},
		{"success absorbs failed", RefundStatusSuccess, channel.SignalFailed, RefundStatusSuccess, false},
		{"failed absorbs paid", RefundStatusFailed, channel.SignalPaid, RefundStatusFailed, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, changed := ApplyRefundSignal(tt.current, tt.signal)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.changed, changed)
		})
	}
}

func TestStateMachineTransitions(t *testing.T) {
	sm := NewStateMachine()

	assert.True(t, sm.CanTransition(ChargeStatusCreated, ChargeStatusWaitPay))
	assert.True(t, sm.CanTransition(ChargeStatusCreated, ChargeStatusFailed))
	assert.True(t, sm.CanTransition(ChargeStatusWaitPay, ChargeStatusSuccess))
	assert.True(t, sm.CanTransition(ChargeStatusWaitPay, ChargeStatusClosed))
	assert.False(t, sm.CanTransition(ChargeStatusCreated, ChargeStatusSuccess))
	assert.False(t, sm.CanTransition(ChargeStatusSuccess, ChargeStatusClosed))
	assert.False(t, sm.CanTransition(ChargeStatusClosed, ChargeStatusWaitPay))

	charge := &Charge{Status: ChargeStatusWaitPay}
	assert.NoError(t, sm.Transition(charge, ChargeStatusSuccess))
	assert.Equal(t, ChargeStatusSuccess, charge.Status)

	err := sm.Transition(charge, ChargeStatusClosed)
	assert.ErrorIs(t, err, ErrInvalidTransition)
	assert.Equal(t, ChargeStatusSuccess, charge.Status)
}

func TestChargeStatusIsTerminal(t *testing.T) {
	assert.False(t, ChargeStatusCreated.IsTerminal())
	assert.False(t, ChargeStatusWaitPay.IsTerminal())
	assert.True(t, ChargeStatusSuccess.IsTerminal())
	assert.True(t, ChargeStatusClosed.IsTerminal())
	assert.True(t, ChargeStatusFailed.IsTerminal())
}
