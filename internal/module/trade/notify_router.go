package trade

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/payflow/server/internal/module/trade/channel"
	"github.com/payflow/server/internal/shared/metrics"
)

// NotifyRouter dispatches inbound platform notifications. Each
// notification is verified by its adapter, deduplicated against the
// notify event log, and applied to the owning charge or refund.
type NotifyRouter struct {
	repo          Repository
	registry      *Registry
	chargeService *ChargeService
	refundService *RefundService
	metrics       *metrics.Metrics
	logger        *zap.Logger
}

// NewNotifyRouter creates a new notification router.
func NewNotifyRouter(
	repo Repository,
	registry *Registry,
	chargeService *ChargeService,
	refundService *RefundService,
	m *metrics.Metrics,
	logger *zap.Logger,
) *NotifyRouter {
	return &NotifyRouter{
		repo:          repo,
		registry:      registry,
		chargeService: chargeService,
		refundService: refundService,
		metrics:       m,
		logger:        logger,
	}
}

// HandleChargeNotify processes a payment notification. It returns the
// platform-specific acknowledgment body on success. Replayed
// notifications acknowledge without reprocessing.
func (r *NotifyRouter) HandleChargeNotify(ctx context.Context, platform string, params map[string]string) (string, error) {
	adapter, err := r.registry.Get(channel.PlatformType(platform))
	if err != nil {
		r.metrics.NotifiesHandled.WithLabelValues(platform, "unknown_platform").Inc()
		return "", err
	}

	result, err := adapter.ParseNotify(ctx, params)
	if err != nil {
		r.metrics.NotifiesHandled.WithLabelValues(platform, "parse_error").Inc()
		return "", fmt.Errorf("parse notify: %w", err)
	}
	if !result.Verified {
		r.metrics.NotifiesHandled.WithLabelValues(platform, "unverified").Inc()
		return "", ErrNotifyNotVerified
	}

	charge, err := r.resolveCharge(ctx, platform, result)
	if err != nil {
		r.metrics.NotifiesHandled.WithLabelValues(platform, "not_handled").Inc()
		return "", err
	}

	if result.Amount > 0 && result.Amount != charge.Amount {
		r.logger.Warn("notify amount mismatch",
			zap.String("platform", platform),
			zap.String("charge_no", charge.ChargeNo),
			zap.Int64("charge_amount", charge.Amount),
			zap.Int64("notify_amount", result.Amount),
		)
		r.metrics.NotifiesHandled.WithLabelValues(platform, "amount_mismatch").Inc()
		return "", fmt.Errorf("%w: amount mismatch for charge %s", ErrNotifyNotHandled, charge.ChargeNo)
	}

	event := &NotifyEvent{
		Platform:   platform,
		EventID:    notifyEventID(result),
		EventType:  "charge",
		BusinessNo: charge.ChargeNo,
		Data:       result.Raw,
	}
	dup, err := r.recordEvent(ctx, event)
	if err != nil {
		r.metrics.NotifiesHandled.WithLabelValues(platform, "error").Inc()
		return "", err
	}
	if dup {
		r.metrics.NotifiesHandled.WithLabelValues(platform, "duplicate").Inc()
		return result.SuccessResp, nil
	}

	_, processErr := r.chargeService.ApplySignal(ctx, charge, result.Signal, result.PlatformTradeNo, RefreshSourceNotify)
	if err := r.repo.MarkNotifyEventProcessed(ctx, event.ID, processErr); err != nil {
		r.logger.Error("failed to mark notify event processed",
			zap.Int64("event_id", event.ID),
			zap.Error(err),
		)
	}
	if processErr != nil {
		r.metrics.NotifiesHandled.WithLabelValues(platform, "error").Inc()
		return "", processErr
	}

	r.metrics.NotifiesHandled.WithLabelValues(platform, "handled").Inc()
	return result.SuccessResp, nil
}

// HandleRefundNotify processes a refund notification.
func (r *NotifyRouter) HandleRefundNotify(ctx context.Context, platform string, params map[string]string) (string, error) {
	adapter, err := r.registry.Get(channel.PlatformType(platform))
	if err != nil {
		r.metrics.NotifiesHandled.WithLabelValues(platform, "unknown_platform").Inc()
		return "", err
	}

	result, err := adapter.ParseRefundNotify(ctx, params)
	if err != nil {
		r.metrics.NotifiesHandled.WithLabelValues(platform, "parse_error").Inc()
		return "", fmt.Errorf("parse refund notify: %w", err)
	}
	if !result.Verified {
		r.metrics.NotifiesHandled.WithLabelValues(platform, "unverified").Inc()
		return "", ErrNotifyNotVerified
	}

	refund, err := r.repo.GetRefund(ctx, result.BusinessNo)
	if err != nil {
		r.metrics.NotifiesHandled.WithLabelValues(platform, "not_handled").Inc()
		if errors.Is(err, ErrRefundNotFound) {
			return "", fmt.Errorf("%w: refund %s", ErrNotifyNotHandled, result.BusinessNo)
		}
		return "", err
	}

	event := &NotifyEvent{
		Platform:   platform,
		EventID:    notifyEventID(result),
		EventType:  "refund",
		BusinessNo: refund.RefundNo,
		Data:       result.Raw,
	}
	dup, err := r.recordEvent(ctx, event)
	if err != nil {
		r.metrics.NotifiesHandled.WithLabelValues(platform, "error").Inc()
		return "", err
	}
	if dup {
		r.metrics.NotifiesHandled.WithLabelValues(platform, "duplicate").Inc()
		return result.SuccessResp, nil
	}

	_, processErr := r.refundService.ApplySignal(ctx, refund, result.Signal, result.PlatformTradeNo)
	if err := r.repo.MarkNotifyEventProcessed(ctx, event.ID, processErr); err != nil {
		r.logger.Error("failed to mark notify event processed",
			zap.Int64("event_id", event.ID),
			zap.Error(err),
		)
	}
	if processErr != nil {
		r.metrics.NotifiesHandled.WithLabelValues(platform, "error").Inc()
		return "", processErr
	}

	r.metrics.NotifiesHandled.WithLabelValues(platform, "handled").Inc()
	return result.SuccessResp, nil
}

// resolveCharge locates the charge a notification targets. Adapters
// normalize the platform's business number to our charge number; the
// platform trade number is the fallback for notifications that predate
// the mapping.
func (r *NotifyRouter) resolveCharge(ctx context.Context, platform string, result *channel.NotifyResult) (*Charge, error) {
	if result.BusinessNo != "" {
		charge, err := r.repo.GetCharge(ctx, result.BusinessNo)
		if err == nil {
			return charge, nil
		}
		if !errors.Is(err, ErrChargeNotFound) {
			return nil, err
		}
	}

	if result.PlatformTradeNo != "" {
		charge, err := r.repo.GetChargeByPlatformTradeNo(ctx, platform, result.PlatformTradeNo)
		if err == nil {
			return charge, nil
		}
		if !errors.Is(err, ErrChargeNotFound) {
			return nil, err
		}
	}

	return nil, fmt.Errorf("%w: no charge for business no %q", ErrNotifyNotHandled, result.BusinessNo)
}

// recordEvent records the notify event, reporting whether this
// delivery can be acknowledged without reprocessing. Only an event that
// was already processed cleanly is a replay; a recorded event whose
// processing failed is picked up again by the redelivery, reusing the
// existing row. The unique index closes the race between two concurrent
// deliveries of the same notification.
func (r *NotifyRouter) recordEvent(ctx context.Context, event *NotifyEvent) (bool, error) {
	existing, err := r.repo.GetNotifyEvent(ctx, event.Platform, event.EventID)
	if err != nil {
		return false, err
	}
	if existing != nil {
		if existing.Processed && existing.Error == nil {
			return true, nil
		}
		event.ID = existing.ID
		return false, nil
	}

	if err := r.repo.CreateNotifyEvent(ctx, event); err != nil {
		if errors.Is(err, ErrDuplicateNotifyEvent) {
			// A concurrent delivery inserted the row first; it carries
			// the processing.
			r.logger.Info("notify event already recorded",
				zap.String("platform", event.Platform),
				zap.String("event_id", event.EventID),
			)
			return true, nil
		}
		return false, err
	}
	return false, nil
}

// notifyEventID derives the dedupe key for a notification.
func notifyEventID(result *channel.NotifyResult) string {
	if result.PlatformTradeNo != "" {
		return fmt.Sprintf("%s:%s", result.PlatformTradeNo, result.Signal)
	}
	return fmt.Sprintf("%s:%s", result.BusinessNo, result.Signal)
}
