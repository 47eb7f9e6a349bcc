package trade

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/payflow/server/internal/module/trade/channel"
	"github.com/payflow/server/internal/shared/events"
	"github.com/payflow/server/internal/shared/metrics"
)

// Refresh sources, recorded in metrics so pull and push reconciliation
// can be told apart.
const (
	RefreshSourceAPI     = "api"
	RefreshSourceNotify  = "notify"
	RefreshSourceTimeout = "timeout"
)

// defaultChannelCallTimeout bounds outbound platform calls when no
// timeout is configured.
const defaultChannelCallTimeout = 10 * time.Second

// ChargeServiceConfig contains charge service configuration.
type ChargeServiceConfig struct {
	NotifyBaseURL        string
	DefaultExpireMinutes int
	ChannelCallTimeout   time.Duration
}

// ChargeService implements the charge lifecycle: creation against a
// channel, pull-based refresh, push-based notification application, and
// timeout close.
type ChargeService struct {
	repo      Repository
	registry  *Registry
	sm        *StateMachine
	scheduler CloseScheduler
	bus       *events.Bus
	metrics   *metrics.Metrics
	cfg       ChargeServiceConfig
	logger    *zap.Logger
}

// NewChargeService creates a new charge service.
func NewChargeService(
	repo Repository,
	registry *Registry,
	scheduler CloseScheduler,
	bus *events.Bus,
	m *metrics.Metrics,
	cfg ChargeServiceConfig,
	logger *zap.Logger,
) *ChargeService {
	if cfg.DefaultExpireMinutes <= 0 {
		cfg.DefaultExpireMinutes = 120
	}
	return &ChargeService{
		repo:      repo,
		registry:  registry,
		sm:        NewStateMachine(),
		scheduler: scheduler,
		bus:       bus,
		metrics:   m,
		cfg:       cfg,
		logger:    logger,
	}
}

// channelContext bounds an outbound platform call. A hung platform must
// not hold the caller's request open.
func (s *ChargeService) channelContext(ctx context.Context) (context.Context, context.CancelFunc) {
	timeout := s.cfg.ChannelCallTimeout
	if timeout <= 0 {
		timeout = defaultChannelCallTimeout
	}
	return context.WithTimeout(ctx, timeout)
}

// Create creates a charge for an order, or returns the still-payable
// charge from an earlier attempt on the same channel. An order that has
// already been paid rejects every further attempt. The platform is
// asked first and the charge persisted only on acceptance, so a
// rejected or crashed attempt leaves no unpayable row behind.
func (s *ChargeService) Create(ctx context.Context, appID int64, req *CreateChargeRequest) (*Charge, error) {
	ch := channel.ChannelType(req.Channel)
	if !ch.Valid() {
		return nil, fmt.Errorf("%w: %s", ErrInvalidChannel, req.Channel)
	}

	adapter, err := s.registry.GetByChannel(ch)
	if err != nil {
		return nil, err
	}

	existing, err := s.repo.ListChargesByOrder(ctx, appID, req.OrderNo)
	if err != nil {
		return nil, err
	}
	for _, c := range existing {
		if c.Status == ChargeStatusSuccess {
			return nil, fmt.Errorf("%w: order %s", ErrOrderAlreadyPaid, req.OrderNo)
		}
	}
	for _, c := range existing {
		if !c.Status.IsTerminal() && c.Channel == ch {
			return c, nil
		}
	}

	expireMinutes := req.ExpireMinutes
	if expireMinutes <= 0 {
		expireMinutes = s.cfg.DefaultExpireMinutes
	}

	charge := &Charge{
		ChargeNo: newChargeNo(),
		AppID:    appID,
		OrderNo:  req.OrderNo,
		Channel:  ch,
		Platform: string(ch.Platform()),
		Amount:   req.Amount,
		Currency: req.Currency,
		Subject:  req.Subject,
		Body:     req.Body,
		Status:   ChargeStatusCreated,
		ExpireAt: time.Now().Add(time.Duration(expireMinutes) * time.Minute),
	}
	if charge.Currency == "" {
		charge.Currency = "CNY"
	}

	payCtx, cancel := s.channelContext(ctx)
	result, err := adapter.Pay(payCtx, &channel.PayRequest{
		ChargeNo:      charge.ChargeNo,
		Channel:       ch,
		Amount:        charge.Amount,
		Currency:      charge.Currency,
		Subject:       charge.Subject,
		Body:          charge.Body,
		ExpireMinutes: expireMinutes,
		NotifyURL:     s.notifyURL(ch.Platform()),
		ReturnURL:     req.ReturnURL,
		Extra:         req.Extra,
	})
	cancel()
	if err != nil {
		return nil, fmt.Errorf("channel pay: %w", err)
	}

	if err := s.sm.Transition(charge, ChargeStatusWaitPay); err != nil {
		return nil, err
	}
	charge.Credential = result.Credential
	charge.PlatformTradeNo = result.PlatformTradeNo

	if err := s.repo.CreateCharge(ctx, charge); err != nil {
		return nil, err
	}

	if err := s.scheduler.Schedule(ctx, charge.ChargeNo, charge.ExpireAt); err != nil {
		// The platform-side expiry still bounds the charge; the next
		// refresh will observe the close.
		s.logger.Error("failed to schedule close task",
			zap.String("charge_no", charge.ChargeNo),
			zap.Error(err),
		)
	}

	s.metrics.ChargesCreated.WithLabelValues(string(ch)).Inc()
	s.logger.Info("charge created",
		zap.String("charge_no", charge.ChargeNo),
		zap.String("order_no", charge.OrderNo),
		zap.String("channel", string(ch)),
		zap.Int64("amount", charge.Amount),
	)
	return charge, nil
}

// Get returns a charge owned by the app.
func (s *ChargeService) Get(ctx context.Context, appID int64, chargeNo string) (*Charge, error) {
	charge, err := s.repo.GetCharge(ctx, chargeNo)
	if err != nil {
		return nil, err
	}
	if charge.AppID != appID {
		return nil, ErrChargeNotFound
	}
	return charge, nil
}

// List returns the app's charges matching the query.
func (s *ChargeService) List(ctx context.Context, appID int64, query *ListChargesQuery) ([]*Charge, int64, error) {
	return s.repo.ListCharges(ctx, appID, query)
}

// Stats returns the charge status aggregation for the app's group.
func (s *ChargeService) Stats(ctx context.Context, appID int64) (*ChargeStatsResponse, error) {
	ceiling := AppGroupCeiling(appID)
	counts, err := s.repo.CountByStatus(ctx, ceiling-99999, ceiling)
	if err != nil {
		return nil, err
	}
	return &ChargeStatsResponse{
		AppGroupCeiling: ceiling,
		Counts:          counts,
	}, nil
}

// QueryAndRefresh pulls the live platform state and folds it into the
// charge. A platform transport failure is not an error here; the last
// known state is returned and the next refresh retries.
func (s *ChargeService) QueryAndRefresh(ctx context.Context, appID int64, chargeNo, source string) (*Charge, error) {
	charge, err := s.Get(ctx, appID, chargeNo)
	if err != nil {
		return nil, err
	}
	if charge.Status.IsTerminal() {
		return charge, nil
	}

	adapter, err := s.registry.GetByChannel(charge.Channel)
	if err != nil {
		return nil, err
	}

	queryCtx, cancel := s.channelContext(ctx)
	result, err := adapter.Query(queryCtx, &channel.QueryRequest{
		ChargeNo:        charge.ChargeNo,
		PlatformTradeNo: charge.PlatformTradeNo,
	})
	cancel()
	if err != nil {
		s.logger.Warn("channel query failed, returning last known state",
			zap.String("charge_no", charge.ChargeNo),
			zap.Error(err),
		)
		s.metrics.ChargeRefreshes.WithLabelValues(source, "query_error").Inc()
		return charge, nil
	}

	return s.applySignal(ctx, charge, result.Signal, result.PlatformTradeNo, source)
}

// ApplySignal folds an externally observed signal into the charge,
// retrying once when a concurrent refresh got there first.
func (s *ChargeService) ApplySignal(ctx context.Context, charge *Charge, signal channel.Signal, platformTradeNo, source string) (*Charge, error) {
	return s.applySignal(ctx, charge, signal, platformTradeNo, source)
}

func (s *ChargeService) applySignal(ctx context.Context, charge *Charge, signal channel.Signal, platformTradeNo, source string) (*Charge, error) {
	current := charge
	err := retry.Do(
		func() error {
			next, changed := ApplyChargeSignal(current.Status, signal)
			if !changed {
				return nil
			}

			current.Status = next
			if platformTradeNo != "" {
				current.PlatformTradeNo = platformTradeNo
			}
			if next != ChargeStatusWaitPay {
				current.Credential = ""
			}
			if next == ChargeStatusSuccess {
				now := time.Now()
				current.PaidAt = &now
			}

			if err := s.repo.UpdateCharge(ctx, current, current.Version); err != nil {
				if errors.Is(err, ErrConcurrentModification) {
					fresh, getErr := s.repo.GetCharge(ctx, current.ChargeNo)
					if getErr != nil {
						return retry.Unrecoverable(getErr)
					}
					current = fresh
				}
				return err
			}

			s.afterTransition(ctx, current)
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
		s.metrics.ChargeRefreshes.WithLabelValues(source, "error").Inc()
		return nil, err
	}

	s.metrics.ChargeRefreshes.WithLabelValues(source, strings.ToLower(string(current.Status))).Inc()
	return current, nil
}

// afterTransition runs the side effects of a charge reaching a terminal
// state.
func (s *ChargeService) afterTransition(ctx context.Context, charge *Charge) {
	switch charge.Status {
	case ChargeStatusSuccess:
		if err := s.scheduler.Cancel(ctx, charge.ChargeNo); err != nil {
			s.logger.Warn("failed to cancel close task",
				zap.String("charge_no", charge.ChargeNo),
				zap.Error(err),
			)
		}
		s.bus.Publish(events.NewChargeSucceededEvent(
			charge.AppID, charge.ChargeNo, charge.OrderNo,
			string(charge.Channel), charge.Amount, charge.PlatformTradeNo,
		))
		s.logger.Info("charge succeeded",
			zap.String("charge_no", charge.ChargeNo),
			zap.String("order_no", charge.OrderNo),
		)
	case ChargeStatusClosed:
		s.bus.Publish(events.NewChargeClosedEvent(charge.AppID, charge.ChargeNo, charge.OrderNo))
		s.logger.Info("charge closed",
			zap.String("charge_no", charge.ChargeNo),
		)
	case ChargeStatusFailed:
		s.logger.Info("charge failed",
			zap.String("charge_no", charge.ChargeNo),
		)
	}
}

// CloseByTimeout closes an expired charge. The live platform state is
// consulted first so a payment that raced the deadline is honored
// instead of closed.
func (s *ChargeService) CloseByTimeout(ctx context.Context, chargeNo string) error {
	charge, err := s.repo.GetCharge(ctx, chargeNo)
	if err != nil {
		if errors.Is(err, ErrChargeNotFound) {
			return nil
		}
		return err
	}

	refreshed, err := s.QueryAndRefresh(ctx, charge.AppID, chargeNo, RefreshSourceTimeout)
	if err != nil {
		return err
	}
	if refreshed.Status.IsTerminal() {
		return nil
	}

	adapter, err := s.registry.GetByChannel(refreshed.Channel)
	if err != nil {
		return err
	}

	closeCtx, cancel := s.channelContext(ctx)
	err = adapter.Close(closeCtx, &channel.QueryRequest{
		ChargeNo:        refreshed.ChargeNo,
		PlatformTradeNo: refreshed.PlatformTradeNo,
	})
	cancel()
	if err != nil {
		return fmt.Errorf("channel close: %w", err)
	}

	if _, err := s.applySignal(ctx, refreshed, channel.SignalClosed, "", RefreshSourceTimeout); err != nil {
		return err
	}

	s.metrics.CloseTasksFired.Inc()
	return nil
}

func (s *ChargeService) notifyURL(platform channel.PlatformType) string {
	return fmt.Sprintf("%s/webhooks/%s", strings.TrimRight(s.cfg.NotifyBaseURL, "/"), platform)
}

func newChargeNo() string {
	return "ch_" + strings.ReplaceAll(uuid.NewString(), "-", "")
}

func newRefundNo() string {
	return "re_" + strings.ReplaceAll(uuid.NewString(), "-", "")
}
