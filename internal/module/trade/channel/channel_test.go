package channel

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestChannelTypePlatform(t *testing.T) {
	tests := []struct {
		channel  ChannelType
		platform PlatformType
	}{
		{AlipayPage, PlatformAlipay},
		{AlipayWap, PlatformAlipay},
		{AlipayApp, PlatformAlipay},
		{AlipayQR, PlatformAlipay},
		{WechatNative, PlatformWechat},
		{WechatH5, PlatformWechat},
		{WechatJSAPI, PlatformWechat},
		{WechatApp, PlatformWechat},
		{StripeCard, PlatformStripe},
		{ChannelType("unionpay_page"), ""},
	}

	for _, tt := range tests {
		t.Run(string(tt.channel), func(t *testing.T) {
			assert.Equal(t, tt.platform, tt.channel.Platform())
		})
	}
}

func TestChannelTypeValid(t *testing.T) {
	assert.True(t, WechatNative.Valid())
	assert.True(t, StripeCard.Valid())
	assert.False(t, ChannelType("").Valid())
	assert.False(t, ChannelType("carrier_pigeon").Valid())
}

func TestMapAlipayTradeStatus(t *testing.T) {
	tests := []struct {
		status string
		signal Signal
	}{
		{"WAIT_BUYER_PAY", SignalPending},
		{"TRADE_SUCCESS", SignalPaid},
		{"TRADE_FINISHED", SignalPaid},
		{"TRADE_CLOSED", SignalClosed},
		{"SOMETHING_ELSE", SignalUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.status, func(t *testing.T) {
			assert.Equal(t, tt.signal, mapAlipayTradeStatus(tt.status))
		})
	}
}

func TestYuanToMinorUnits(t *testing.T) {
	tests := []struct {
		yuan string
		fen  int64
	}{
		{"19.99", 1999},
		{"0.29", 29},
		{"10.00", 1000},
		{"0.01", 1},
		{"1234.56", 123456},
		{"not-a-number", 0},
	}

	for _, tt := range tests {
		t.Run(tt.yuan, func(t *testing.T) {
			assert.Equal(t, tt.fen, yuanToMinorUnits(tt.yuan))
		})
	}
}

func TestMapWechatTradeState(t *testing.T) {
	tests := []struct {
		state  string
		signal Signal
	}{
		{"SUCCESS", SignalPaid},
		{"REFUND", SignalPaid},
		{"NOTPAY", SignalPending},
		{"USERPAYING", SignalPending},
		{"ACCEPT", SignalPending},
		{"CLOSED", SignalClosed},
		{"REVOKED", SignalClosed},
		{"PAYERROR", SignalFailed},
		{"WHATEVER", SignalUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.state, func(t *testing.T) {
			assert.Equal(t, tt.signal, mapWechatTradeState(tt.state))
		})
	}
}

func TestMapWechatRefundStatus(t *testing.T) {
	tests := []struct {
		status string
		signal Signal
	}{
		{"SUCCESS", SignalPaid},
		{"PROCESSING", SignalPending},
		{"CLOSED", SignalFailed},
		{"ABNORMAL", SignalFailed},
		{"UNEXPECTED", SignalUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.status, func(t *testing.T) {
			assert.Equal(t, tt.signal, mapWechatRefundStatus(tt.status))
		})
	}
}
