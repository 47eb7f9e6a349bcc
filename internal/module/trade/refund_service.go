package trade

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/avast/retry-go/v4"
	"go.uber.org/zap"

	"github.com/payflow/server/internal/module/trade/channel"
	"github.com/payflow/server/internal/shared/events"
	"github.com/payflow/server/internal/shared/metrics"
)

// RefundServiceConfig carries the tunables of the refund service.
type RefundServiceConfig struct {
	ChannelCallTimeout time.Duration
}

// RefundService implements the refund lifecycle against succeeded
// charges.
type RefundService struct {
	cfg      RefundServiceConfig
	repo     Repository
	registry *Registry
	bus      *events.Bus
	metrics  *metrics.Metrics
	logger   *zap.Logger
}

// NewRefundService creates a new refund service.
func NewRefundService(
	cfg RefundServiceConfig,
	repo Repository,
	registry *Registry,
	bus *events.Bus,
	m *metrics.Metrics,
	logger *zap.Logger,
) *RefundService {
	return &RefundService{
		cfg:      cfg,
		repo:     repo,
		registry: registry,
		bus:      bus,
		metrics:  m,
		logger:   logger,
	}
}

func (s *RefundService) channelContext(ctx context.Context) (context.Context, context.CancelFunc) {
	timeout := s.cfg.ChannelCallTimeout
	if timeout <= 0 {
		timeout = defaultChannelCallTimeout
	}
	return context.WithTimeout(ctx, timeout)
}

// Request creates a refund against a succeeded charge and submits it to
// the platform. Platforms that settle refunds synchronously resolve the
// refund in the same call; the rest resolve through notifications or
// refresh.
func (s *RefundService) Request(ctx context.Context, appID int64, chargeNo string, req *CreateRefundRequest) (*Refund, error) {
	charge, err := s.repo.GetCharge(ctx, chargeNo)
	if err != nil {
		return nil, err
	}
	if charge.AppID != appID {
		return nil, ErrChargeNotFound
	}
	if charge.Status != ChargeStatusSuccess {
		return nil, fmt.Errorf("%w: charge %s is %s", ErrChargeNotRefundable, chargeNo, charge.Status)
	}

	// In-flight refunds reserve headroom until they resolve. Only
	// settled refunds are in RefundedAmount, so requested ones have to
	// be counted here or concurrent requests could overdraw the charge.
	siblings, err := s.repo.ListRefundsByCharge(ctx, chargeNo)
	if err != nil {
		return nil, err
	}
	var pending int64
	for _, sib := range siblings {
		if sib.Status == RefundStatusRequested {
			pending += sib.Amount
		}
	}
	if !charge.CanRefund(pending + req.Amount) {
		return nil, fmt.Errorf("%w: charge %s, refundable %d, requested %d",
			ErrChargeNotRefundable, chargeNo, charge.RefundableAmount()-pending, req.Amount)
	}

	adapter, err := s.registry.GetByChannel(charge.Channel)
	if err != nil {
		return nil, err
	}

	refund := &Refund{
		RefundNo: newRefundNo(),
		ChargeNo: charge.ChargeNo,
		AppID:    appID,
		Amount:   req.Amount,
		Reason:   req.Reason,
		Status:   RefundStatusRequested,
	}
	if err := s.repo.CreateRefund(ctx, refund); err != nil {
		return nil, err
	}

	refundCtx, cancel := s.channelContext(ctx)
	result, err := adapter.Refund(refundCtx, &channel.RefundRequest{
		ChargeNo:        charge.ChargeNo,
		PlatformTradeNo: charge.PlatformTradeNo,
		RefundNo:        refund.RefundNo,
		Amount:          req.Amount,
		TotalAmount:     charge.Amount,
		Reason:          req.Reason,
	})
	cancel()
	if err != nil {
		refund.Status = RefundStatusFailed
		if uErr := s.repo.UpdateRefund(ctx, refund, refund.Version); uErr != nil {
			s.logger.Error("failed to mark refund failed",
				zap.String("refund_no", refund.RefundNo),
				zap.Error(uErr),
			)
		}
		return nil, fmt.Errorf("channel refund: %w", err)
	}

	s.metrics.RefundsRequested.WithLabelValues(string(charge.Channel)).Inc()
	s.logger.Info("refund requested",
		zap.String("refund_no", refund.RefundNo),
		zap.String("charge_no", charge.ChargeNo),
		zap.Int64("amount", req.Amount),
	)

	return s.applySignal(ctx, refund, result.Signal, result.PlatformRefundNo)
}

// Get returns a refund owned by the app.
func (s *RefundService) Get(ctx context.Context, appID int64, refundNo string) (*Refund, error) {
	refund, err := s.repo.GetRefund(ctx, refundNo)
	if err != nil {
		return nil, err
	}
	if refund.AppID != appID {
		return nil, ErrRefundNotFound
	}
	return refund, nil
}

// ListByCharge returns the refunds of a charge owned by the app.
func (s *RefundService) ListByCharge(ctx context.Context, appID int64, chargeNo string) ([]*Refund, error) {
	charge, err := s.repo.GetCharge(ctx, chargeNo)
	if err != nil {
		return nil, err
	}
	if charge.AppID != appID {
		return nil, ErrChargeNotFound
	}
	return s.repo.ListRefundsByCharge(ctx, chargeNo)
}

// QueryAndRefresh pulls the live platform refund state and folds it
// into the refund. A transport failure returns the last known state.
func (s *RefundService) QueryAndRefresh(ctx context.Context, appID int64, refundNo string) (*Refund, error) {
	refund, err := s.Get(ctx, appID, refundNo)
	if err != nil {
		return nil, err
	}
	if refund.Status.IsTerminal() {
		return refund, nil
	}

	charge, err := s.repo.GetCharge(ctx, refund.ChargeNo)
	if err != nil {
		return nil, err
	}

	adapter, err := s.registry.GetByChannel(charge.Channel)
	if err != nil {
		return nil, err
	}

	queryCtx, cancel := s.channelContext(ctx)
	result, err := adapter.QueryRefund(queryCtx, &channel.RefundQueryRequest{
		ChargeNo:         refund.ChargeNo,
		RefundNo:         refund.RefundNo,
		PlatformTradeNo:  charge.PlatformTradeNo,
		PlatformRefundNo: refund.PlatformRefundNo,
	})
	cancel()
	if err != nil {
		s.logger.Warn("channel refund query failed, returning last known state",
			zap.String("refund_no", refund.RefundNo),
			zap.Error(err),
		)
		return refund, nil
	}

	return s.applySignal(ctx, refund, result.Signal, result.PlatformRefundNo)
}

// ApplySignal folds an externally observed signal into the refund.
func (s *RefundService) ApplySignal(ctx context.Context, refund *Refund, signal channel.Signal, platformRefundNo string) (*Refund, error) {
	return s.applySignal(ctx, refund, signal, platformRefundNo)
}

func (s *RefundService) applySignal(ctx context.Context, refund *Refund, signal channel.Signal, platformRefundNo string) (*Refund, error) {
	current := refund
	err := retry.Do(
		func() error {
			next, changed := ApplyRefundSignal(current.Status, signal)
			if !changed {
				return nil
			}

			current.Status = next
			if platformRefundNo != "" {
				current.PlatformRefundNo = platformRefundNo
			}
			if next == RefundStatusSuccess {
				now := time.Now()
				current.SucceededAt = &now
			}

			if err := s.repo.UpdateRefund(ctx, current, current.Version); err != nil {
				if errors.Is(err, ErrConcurrentModification) {
					fresh, getErr := s.repo.GetRefund(ctx, current.RefundNo)
					if getErr != nil {
						return retry.Unrecoverable(getErr)
					}
					current = fresh
				}
				return err
			}

			if next == RefundStatusSuccess {
				if err := s.settleCharge(ctx, current); err != nil {
					return retry.Unrecoverable(err)
				}
				s.bus.Publish(events.NewRefundSucceededEvent(current.AppID, current.RefundNo, current.ChargeNo, current.Amount))
				s.logger.Info("refund succeeded",
					zap.String("refund_no", current.RefundNo),
					zap.String("charge_no", current.ChargeNo),
				)
			}
			return nil
		},
		retry.Attempts(2),
		retry.RetryIf(func(err error) bool {
			return errors.Is(err, ErrConcurrentModification)
		}),
		retry.LastErrorOnly(true),
		retry.Context(ctx),
	)
	if err != nil {
		return nil, err
	}
	return current, nil
}

// settleCharge adds the refunded amount to the charge. Applied exactly
// once per refund; the refund's own terminal transition guards replays.
func (s *RefundService) settleCharge(ctx context.Context, refund *Refund) error {
	return retry.Do(
		func() error {
			charge, err := s.repo.GetCharge(ctx, refund.ChargeNo)
			if err != nil {
				return retry.Unrecoverable(err)
			}
			charge.RefundedAmount += refund.Amount
			return s.repo.UpdateCharge(ctx, charge, charge.Version)
		},
		retry.Attempts(2),
		retry.RetryIf(func(err error) bool {
			return errors.Is(err, ErrConcurrentModification)
		}),
		retry.LastErrorOnly(true),
		retry.Context(ctx),
	)
}
