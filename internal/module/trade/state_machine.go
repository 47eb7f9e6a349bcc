package trade

import (
	"fmt"

	"github.com/payflow/server/internal/module/trade/channel"
)

// StateMachine validates and executes charge and refund state
// transitions. Transitions are driven by normalized platform signals,
// never by raw platform status strings.
type StateMachine struct {
	chargeTransitions map[ChargeStatus][]ChargeStatus
}

// NewStateMachine creates a new trade state machine.
func NewStateMachine() *StateMachine {
	return &StateMachine{
		chargeTransitions: map[ChargeStatus][]ChargeStatus{
			ChargeStatusCreated: {ChargeStatusWaitPay, ChargeStatusFailed},
			ChargeStatusWaitPay: {ChargeStatusSuccess, ChargeStatusClosed, ChargeStatusFailed},
			ChargeStatusSuccess: {}, // Terminal state
			ChargeStatusClosed:  {}, // Terminal state
			ChargeStatusFailed:  {}, // Terminal state
		},
	}
}

// CanTransition checks if a charge transition from `from` to `to` is valid.
func (sm *StateMachine) CanTransition(from, to ChargeStatus) bool {
	allowed, ok := sm.chargeTransitions[from]
	if !ok {
		return false
	}
	for _, s := range allowed {
		if s == to {
			return true
		}
	}
	return false
}

// Transition attempts to move a charge to a new state.
func (sm *StateMachine) Transition(c *Charge, to ChargeStatus) error {
	if !sm.CanTransition(c.Status, to) {
		return fmt.Errorf("%w: cannot transition from %s to %s", ErrInvalidTransition, c.Status, to)
	}
	c.Status = to
	return nil
}

// ApplyChargeSignal folds a platform signal into the current charge
// status and reports whether anything changed. Terminal states absorb
// every signal, so replayed notifications and late queries are no-ops.
func ApplyChargeSignal(current ChargeStatus, signal channel.Signal) (ChargeStatus, bool) {
	if current.IsTerminal() {
		return current, false
	}

	switch signal {
	case channel.SignalPaid:
		return ChargeStatusSuccess, true
	case channel.SignalClosed:
		return ChargeStatusClosed, true
	case channel.SignalFailed:
		return ChargeStatusFailed, true
	case channel.SignalPending:
		if current == ChargeStatusCreated {
			return ChargeStatusWaitPay, true
		}
		return current, false
	default:
		return current, false
	}
}

// ApplyRefundSignal folds a platform signal into the current refund
// status and reports whether anything changed.
func ApplyRefundSignal(current RefundStatus, signal channel.Signal) (RefundStatus, bool) {
	if current.IsTerminal() {
		return current, false
	}

	switch signal {
	case channel.SignalPaid:
		return RefundStatusSuccess, true
	case channel.SignalFailed, channel.SignalClosed:
		return RefundStatusFailed, true
	default:
		return current, false
	}
}
