package trade

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAppGroupCeiling(t *testing.T) {
	tests := []struct {
		appID int64
		want  int64
	}{
		{1, 99999},
		{99999, 99999},
		{100000, 199999},
		{123456, 199999},
		{200001, 299999},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, AppGroupCeiling(tt.appID))
	}
}

func TestChargeCanRefund(t *testing.T) {
	charge := &Charge{Status: ChargeStatusSuccess, Amount: 1000, RefundedAmount: 300}

	assert.True(t, charge.CanRefund(700))
	assert.True(t, charge.CanRefund(1))
	assert.False(t, charge.CanRefund(701))
	assert.False(t, charge.CanRefund(0))
	assert.False(t, charge.CanRefund(-5))
	assert.Equal(t, int64(700), charge.RefundableAmount())

	charge.Status = ChargeStatusWaitPay
	assert.False(t, charge.CanRefund(100))
	assert.Equal(t, int64(0), charge.RefundableAmount())
}

func TestChargeToResponseStripsCredential(t *testing.T) {
	charge := &Charge{
		ChargeNo:   "ch_1",
		Status:     ChargeStatusWaitPay,
		Credential: "https://pay.example.com/p/1",
	}
	assert.Equal(t, "https://pay.example.com/p/1", charge.ToResponse().Credential)

	for _, status := range []ChargeStatus{ChargeStatusCreated, ChargeStatusSuccess, ChargeStatusClosed, ChargeStatusFailed} {
		charge.Status = status
		assert.Empty(t, charge.ToResponse().Credential, "credential must be hidden in %s", status)
	}
}
