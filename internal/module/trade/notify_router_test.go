package trade

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/payflow/server/internal/module/trade/channel"
	"github.com/payflow/server/internal/shared/events"
	"github.com/payflow/server/internal/shared/metrics"
)

func newTestRouter(repo Repository, adapter channel.Adapter) (*NotifyRouter, *MockScheduler) {
	registry := NewRegistry()
	if adapter != nil {
		registry.Register(adapter)
	}
	bus := events.NewBus(zap.NewNop())
	m := metrics.New(prometheus.NewRegistry())
	scheduler := new(MockScheduler)
	chargeService := NewChargeService(repo, registry, scheduler, bus, m,
		ChargeServiceConfig{NotifyBaseURL: "https://api.example.com"}, zap.NewNop())
	refundService := NewRefundService(RefundServiceConfig{}, repo, registry, bus, m, zap.NewNop())
	return NewNotifyRouter(repo, registry, chargeService, refundService, m, zap.NewNop()), scheduler
}

func waitPayCharge() *Charge {
	return &Charge{
		ChargeNo: "ch_1",
		AppID:    1001,
		Channel:  channel.AlipayPage,
		Platform: "alipay",
		Amount:   1000,
		Status:   ChargeStatusWaitPay,
	}
}

func TestHandleChargeNotify(t *testing.T) {
	ctx := context.Background()
	params := map[string]string{"out_trade_no": "ch_1"}

	t.Run("verified paid notification settles the charge", func(t *testing.T) {
		repo := new(MockRepository)
		adapter := new(MockAdapter)
		router, scheduler := newTestRouter(repo, adapter)

		adapter.On("ParseNotify", ctx, params).Return(&channel.NotifyResult{
			BusinessNo:      "ch_1",
			PlatformTradeNo: "2026082922001",
			Amount:          1000,
			Signal:          channel.SignalPaid,
			Verified:        true,
			SuccessResp:     "success",
		}, nil)
		repo.On("GetCharge", ctx, "ch_1").Return(waitPayCharge(), nil)
		repo.On("GetNotifyEvent", ctx, "alipay", "2026082922001:paid").Return(nil, nil)
		repo.On("CreateNotifyEvent", ctx, mock.AnythingOfType("*trade.NotifyEvent")).Return(nil)
		repo.On("UpdateCharge", ctx, mock.MatchedBy(func(c *Charge) bool {
			return c.Status == ChargeStatusSuccess
		}), mock.Anything).Return(nil)
		scheduler.On("Cancel", ctx, "ch_1").Return(nil)
		repo.On("MarkNotifyEventProcessed", ctx, mock.Anything, nil).Return(nil)

		resp, err := router.HandleChargeNotify(ctx, "alipay", params)
		require.NoError(t, err)
		assert.Equal(t, "success", resp)
		repo.AssertExpectations(t)
	})

	t.Run("unverified notification is rejected", func(t *testing.T) {
		repo := new(MockRepository)
		adapter := new(MockAdapter)
		router, _ := newTestRouter(repo, adapter)

		adapter.On("ParseNotify", ctx, params).Return(&channel.NotifyResult{Verified: false}, nil)

		_, err := router.HandleChargeNotify(ctx, "alipay", params)
		assert.ErrorIs(t, err, ErrNotifyNotVerified)
		repo.AssertNotCalled(t, "GetCharge", mock.Anything, mock.Anything)
	})

	t.Run("replayed notification acknowledges without reprocessing", func(t *testing.T) {
		repo := new(MockRepository)
		adapter := new(MockAdapter)
		router, _ := newTestRouter(repo, adapter)

		adapter.On("ParseNotify", ctx, params).Return(&channel.NotifyResult{
			BusinessNo:      "ch_1",
			PlatformTradeNo: "2026082922001",
			Signal:          channel.SignalPaid,
			Verified:        true,
			SuccessResp:     "success",
		}, nil)
		repo.On("GetCharge", ctx, "ch_1").Return(waitPayCharge(), nil)
		repo.On("GetNotifyEvent", ctx, "alipay", "2026082922001:paid").Return(&NotifyEvent{
			ID: 7, Processed: true,
		}, nil)

		resp, err := router.HandleChargeNotify(ctx, "alipay", params)
		require.NoError(t, err)
		assert.Equal(t, "success", resp)
		repo.AssertNotCalled(t, "UpdateCharge", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("redelivery after a failed attempt reprocesses the event", func(t *testing.T) {
		repo := new(MockRepository)
		adapter := new(MockAdapter)
		router, scheduler := newTestRouter(repo, adapter)

		adapter.On("ParseNotify", ctx, params).Return(&channel.NotifyResult{
			BusinessNo:      "ch_1",
			PlatformTradeNo: "2026082922001",
			Amount:          1000,
			Signal:          channel.SignalPaid,
			Verified:        true,
			SuccessResp:     "success",
		}, nil)
		repo.On("GetCharge", ctx, "ch_1").Return(waitPayCharge(), nil)
		prevErr := "update charge: connection reset"
		repo.On("GetNotifyEvent", ctx, "alipay", "2026082922001:paid").Return(&NotifyEvent{
			ID: 7, Processed: true, Error: &prevErr,
		}, nil)
		repo.On("UpdateCharge", ctx, mock.MatchedBy(func(c *Charge) bool {
			return c.Status == ChargeStatusSuccess
		}), mock.Anything).Return(nil)
		scheduler.On("Cancel", ctx, "ch_1").Return(nil)
		repo.On("MarkNotifyEventProcessed", ctx, int64(7), nil).Return(nil)

		resp, err := router.HandleChargeNotify(ctx, "alipay", params)
		require.NoError(t, err)
		assert.Equal(t, "success", resp)
		repo.AssertNotCalled(t, "CreateNotifyEvent", mock.Anything, mock.Anything)
		repo.AssertExpectations(t)
	})

	t.Run("concurrent duplicate insert acknowledges without reprocessing", func(t *testing.T) {
		repo := new(MockRepository)
		adapter := new(MockAdapter)
		router, _ := newTestRouter(repo, adapter)

		adapter.On("ParseNotify", ctx, params).Return(&channel.NotifyResult{
			BusinessNo:      "ch_1",
			PlatformTradeNo: "2026082922001",
			Amount:          1000,
			Signal:          channel.SignalPaid,
			Verified:        true,
			SuccessResp:     "success",
		}, nil)
		repo.On("GetCharge", ctx, "ch_1").Return(waitPayCharge(), nil)
		repo.On("GetNotifyEvent", ctx, "alipay", "2026082922001:paid").Return(nil, nil)
		repo.On("CreateNotifyEvent", ctx, mock.Anything).Return(ErrDuplicateNotifyEvent)

		resp, err := router.HandleChargeNotify(ctx, "alipay", params)
		require.NoError(t, err)
		assert.Equal(t, "success", resp)
		repo.AssertNotCalled(t, "UpdateCharge", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("amount mismatch is not handled", func(t *testing.T) {
		repo := new(MockRepository)
		adapter := new(MockAdapter)
		router, _ := newTestRouter(repo, adapter)

		adapter.On("ParseNotify", ctx, params).Return(&channel.NotifyResult{
			BusinessNo: "ch_1",
			Amount:     999,
			Signal:     channel.SignalPaid,
			Verified:   true,
		}, nil)
		repo.On("GetCharge", ctx, "ch_1").Return(waitPayCharge(), nil)

		_, err := router.HandleChargeNotify(ctx, "alipay", params)
		assert.ErrorIs(t, err, ErrNotifyNotHandled)
	})

	t.Run("unknown business number is not handled", func(t *testing.T) {
		repo := new(MockRepository)
		adapter := new(MockAdapter)
		router, _ := newTestRouter(repo, adapter)

		adapter.On("ParseNotify", ctx, params).Return(&channel.NotifyResult{
			BusinessNo:      "ch_ghost",
			PlatformTradeNo: "2026082922099",
			Signal:          channel.SignalPaid,
			Verified:        true,
		}, nil)
		repo.On("GetCharge", ctx, "ch_ghost").Return(nil, ErrChargeNotFound)
		repo.On("GetChargeByPlatformTradeNo", ctx, "alipay", "2026082922099").Return(nil, ErrChargeNotFound)

		_, err := router.HandleChargeNotify(ctx, "alipay", params)
		assert.ErrorIs(t, err, ErrNotifyNotHandled)
	})

	t.Run("unknown platform is rejected", func(t *testing.T) {
		repo := new(MockRepository)
		router, _ := newTestRouter(repo, nil)

		_, err := router.HandleChargeNotify(ctx, "unionpay", params)
		assert.ErrorIs(t, err, ErrChannelNotEnabled)
	})
}

func TestHandleRefundNotify(t *testing.T) {
	ctx := context.Background()
	params := map[string]string{channel.RawBodyKey: "{}"}

	t.Run("verified success notification resolves the refund", func(t *testing.T) {
		repo := new(MockRepository)
		adapter := new(MockAdapter)
		adapter.platform = channel.PlatformWechat
		router, _ := newTestRouter(repo, adapter)

		adapter.On("ParseRefundNotify", ctx, params).Return(&channel.NotifyResult{
			BusinessNo:      "re_1",
			PlatformTradeNo: "50300001",
			Amount:          250,
			Signal:          channel.SignalPaid,
			Verified:        true,
			SuccessResp:     `{"code":"SUCCESS","message":"OK"}`,
		}, nil)
		repo.On("GetRefund", ctx, "re_1").Return(&Refund{
			RefundNo: "re_1", ChargeNo: "ch_1", AppID: 1001, Amount: 250,
			Status: RefundStatusRequested,
		}, nil)
		repo.On("GetNotifyEvent", ctx, "wechat", "50300001:paid").Return(nil, nil)
		repo.On("CreateNotifyEvent", ctx, mock.AnythingOfType("*trade.NotifyEvent")).Return(nil)
		repo.On("UpdateRefund", ctx, mock.MatchedBy(func(r *Refund) bool {
			return r.Status == RefundStatusSuccess && r.PlatformRefundNo == "50300001"
		}), mock.Anything).Return(nil)
		repo.On("GetCharge", ctx, "ch_1").Return(succeededCharge(), nil)
		repo.On("UpdateCharge", ctx, mock.Anything, mock.Anything).Return(nil)
		repo.On("MarkNotifyEventProcessed", ctx, mock.Anything, nil).Return(nil)

		resp, err := router.HandleRefundNotify(ctx, "wechat", params)
		require.NoError(t, err)
		assert.Equal(t, `{"code":"SUCCESS","message":"OK"}`, resp)
		repo.AssertExpectations(t)
	})

	t.Run("unknown refund is not handled", func(t *testing.T) {
		repo := new(MockRepository)
		adapter := new(MockAdapter)
		adapter.platform = channel.PlatformWechat
		router, _ := newTestRouter(repo, adapter)

		adapter.On("ParseRefundNotify", ctx, params).Return(&channel.NotifyResult{
			BusinessNo: "re_ghost",
			Signal:     channel.SignalPaid,
			Verified:   true,
		}, nil)
		repo.On("GetRefund", ctx, "re_ghost").Return(nil, ErrRefundNotFound)

		_, err := router.HandleRefundNotify(ctx, "wechat", params)
		assert.ErrorIs(t, err, ErrNotifyNotHandled)
	})
}
