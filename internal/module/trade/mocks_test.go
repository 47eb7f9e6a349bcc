package trade

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/payflow/server/internal/module/trade/channel"
)

// --- Mock Implementations ---

type MockRepository struct {
	mock.Mock
}

func (m *MockRepository) CreateCharge(ctx context.Context, charge *Charge) error {
	args := m.Called(ctx, charge)
	return args.Error(0)
}

func (m *MockRepository) GetCharge(ctx context.Context, chargeNo string) (*Charge, error) {
	args := m.Called(ctx, chargeNo)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*Charge), args.Error(1)
}

func (m *MockRepository) GetChargeByPlatformTradeNo(ctx context.Context, platform, platformTradeNo string) (*Charge, error) {
	args := m.Called(ctx, platform, platformTradeNo)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*Charge), args.Error(1)
}

func (m *MockRepository) UpdateCharge(ctx context.Context, charge *Charge, expectedVersion int64) error {
	args := m.Called(ctx, charge, expectedVersion)
	return args.Error(0)
}

func (m *MockRepository) ListChargesByOrder(ctx context.Context, appID int64, orderNo string) ([]*Charge, error) {
	args := m.Called(ctx, appID, orderNo)
	return args.Get(0).([]*Charge), args.Error(1)
}

func (m *MockRepository) ListCharges(ctx context.Context, appID int64, query *ListChargesQuery) ([]*Charge, int64, error) {
	args := m.Called(ctx, appID, query)
	return args.Get(0).([]*Charge), args.Get(1).(int64), args.Error(2)
}

func (m *MockRepository) CountByStatus(ctx context.Context, appIDFrom, appIDTo int64) ([]StatusCount, error) {
	args := m.Called(ctx, appIDFrom, appIDTo)
	return args.Get(0).([]StatusCount), args.Error(1)
}

func (m *MockRepository) CreateRefund(ctx context.Context, refund *Refund) error {
	args := m.Called(ctx, refund)
	return args.Error(0)
}

func (m *MockRepository) GetRefund(ctx context.Context, refundNo string) (*Refund, error) {
	args := m.Called(ctx, refundNo)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*Refund), args.Error(1)
}

func (m *MockRepository) UpdateRefund(ctx context.Context, refund *Refund, expectedVersion int64) error {
	args := m.Called(ctx, refund, expectedVersion)
	return args.Error(0)
}

func (m *MockRepository) ListRefundsByCharge(ctx context.Context, chargeNo string) ([]*Refund, error) {
	args := m.Called(ctx, chargeNo)
	return args.Get(0).([]*Refund), args.Error(1)
}

func (m *MockRepository) CreateNotifyEvent(ctx context.Context, event *NotifyEvent) error {
	args := m.Called(ctx, event)
	return args.Error(0)
}

func (m *MockRepository) GetNotifyEvent(ctx context.Context, platform, eventID string) (*NotifyEvent, error) {
	args := m.Called(ctx, platform, eventID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*NotifyEvent), args.Error(1)
}

func (m *MockRepository) MarkNotifyEventProcessed(ctx context.Context, id int64, processErr error) error {
	args := m.Called(ctx, id, processErr)
	return args.Error(0)
}

type MockAdapter struct {
	mock.Mock
	platform channel.PlatformType
}

func (m *MockAdapter) Platform() channel.PlatformType {
	if m.platform != "" {
		return m.platform
	}
	return channel.PlatformAlipay
}

func (m *MockAdapter) Pay(ctx context.Context, req *channel.PayRequest) (*channel.PayResult, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*channel.PayResult), args.Error(1)
}

func (m *MockAdapter) Query(ctx context.Context, req *channel.QueryRequest) (*channel.QueryResult, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*channel.QueryResult), args.Error(1)
}

func (m *MockAdapter) Close(ctx context.Context, req *channel.QueryRequest) error {
	args := m.Called(ctx, req)
	return args.Error(0)
}

func (m *MockAdapter) Refund(ctx context.Context, req *channel.RefundRequest) (*channel.RefundResult, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*channel.RefundResult), args.Error(1)
}

func (m *MockAdapter) QueryRefund(ctx context.Context, req *channel.RefundQueryRequest) (*channel.RefundResult, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*channel.RefundResult), args.Error(1)
}

func (m *MockAdapter) ParseNotify(ctx context.Context, params map[string]string) (*channel.NotifyResult, error) {
	args := m.Called(ctx, params)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*channel.NotifyResult), args.Error(1)
}

func (m *MockAdapter) ParseRefundNotify(ctx context.Context, params map[string]string) (*channel.NotifyResult, error) {
	args := m.Called(ctx, params)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*channel.NotifyResult), args.Error(1)
}

type MockScheduler struct {
	mock.Mock
}

func (m *MockScheduler) Schedule(ctx context.Context, chargeNo string, fireAt time.Time) error {
	args := m.Called(ctx, chargeNo, fireAt)
	return args.Error(0)
}

func (m *MockScheduler) Cancel(ctx context.Context, chargeNo string) error {
	args := m.Called(ctx, chargeNo)
	return args.Error(0)
}

func (m *MockScheduler) Due(ctx context.Context, now time.Time, limit int64) ([]string, error) {
	args := m.Called(ctx, now, limit)
	return args.Get(0).([]string), args.Error(1)
}

func (m *MockScheduler) Remove(ctx context.Context, chargeNo string) error {
	args := m.Called(ctx, chargeNo)
	return args.Error(0)
}
