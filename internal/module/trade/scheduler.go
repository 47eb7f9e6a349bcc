package trade

import (
	"context"
	"fmt"
	"strconv"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// CloseScheduler schedules timeout-close tasks for charges. Delivery is
// at least once; the firing path re-checks the live charge state before
// closing anything.
type CloseScheduler interface {
	Schedule(ctx context.Context, chargeNo string, fireAt time.Time) error
	Cancel(ctx context.Context, chargeNo string) error
	Due(ctx context.Context, now time.Time, limit int64) ([]string, error)
	Remove(ctx context.Context, chargeNo string) error
}

// RedisCloseScheduler stores pending close tasks in a Redis sorted set
// scored by fire time.
type RedisCloseScheduler struct {
	client goredis.UniversalClient
	key    string
}

// NewRedisCloseScheduler creates a Redis-backed close scheduler.
func NewRedisCloseScheduler(client goredis.UniversalClient) *RedisCloseScheduler {
	return &RedisCloseScheduler{
		client: client,
		key:    "payflow:charge:close_queue",
	}
}

// Schedule enqueues a close task. Re-scheduling an already queued
// charge just moves its fire time.
func (s *RedisCloseScheduler) Schedule(ctx context.Context, chargeNo string, fireAt time.Time) error {
	err := s.client.ZAdd(ctx, s.key, goredis.Z{
		Score:  float64(fireAt.Unix()),
		Member: chargeNo,
	}).Err()
	if err != nil {
		return fmt.Errorf("schedule close task: %w", err)
	}
	return nil
}

// Cancel drops a pending close task.
func (s *RedisCloseScheduler) Cancel(ctx context.Context, chargeNo string) error {
	if err := s.client.ZRem(ctx, s.key, chargeNo).Err(); err != nil {
		return fmt.Errorf("cancel close task: %w", err)
	}
	return nil
}

// Due returns up to limit charge numbers whose fire time has passed.
func (s *RedisCloseScheduler) Due(ctx context.Context, now time.Time, limit int64) ([]string, error) {
	members, err := s.client.ZRangeByScore(ctx, s.key, &goredis.ZRangeBy{
		Min:   "-inf",
		Max:   strconv.FormatInt(now.Unix(), 10),
		Count: limit,
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("fetch due close tasks: %w", err)
	}
	return members, nil
}

// Remove drops a fired close task.
func (s *RedisCloseScheduler) Remove(ctx context.Context, chargeNo string) error {
	return s.Cancel(ctx, chargeNo)
}

// CloseFunc performs the timeout close for one charge.
type CloseFunc func(ctx context.Context, chargeNo string) error

// CloseWorker polls the scheduler and fires due close tasks. Outbound
// platform calls are rate limited so a large due batch cannot hammer
// the platform.
type CloseWorker struct {
	scheduler    CloseScheduler
	closeFn      CloseFunc
	pollInterval time.Duration
	batchSize    int64
	limiter      *rate.Limiter
	logger       *zap.Logger
	stop         chan struct{}
}

// CloseWorkerConfig contains close worker configuration.
type CloseWorkerConfig struct {
	PollInterval time.Duration
	BatchSize    int64
	RatePerSec   float64
}

// NewCloseWorker creates a new close worker.
func NewCloseWorker(scheduler CloseScheduler, closeFn CloseFunc, cfg *CloseWorkerConfig, logger *zap.Logger) *CloseWorker {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 5 * time.Second
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	if cfg.RatePerSec <= 0 {
		cfg.RatePerSec = 10
	}

	return &CloseWorker{
		scheduler:    scheduler,
		closeFn:      closeFn,
		pollInterval: cfg.PollInterval,
		batchSize:    cfg.BatchSize,
		limiter:      rate.NewLimiter(rate.Limit(cfg.RatePerSec), int(cfg.RatePerSec)),
		logger:       logger,
		stop:         make(chan struct{}),
	}
}

// Start begins polling in a background goroutine.
func (w *CloseWorker) Start() {
	go w.run()
}

// Stop stops the worker.
func (w *CloseWorker) Stop() {
	close(w.stop)
}

func (w *CloseWorker) run() {
	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-w.stop:
			return
		case <-ticker.C:
			w.drainDue()
		}
	}
}

func (w *CloseWorker) drainDue() {
	ctx, cancel := context.WithTimeout(context.Background(), w.pollInterval)
	defer cancel()

	due, err := w.scheduler.Due(ctx, time.Now(), w.batchSize)
	if err != nil {
		w.logger.Error("failed to fetch due close tasks", zap.Error(err))
		return
	}

	for _, chargeNo := range due {
		if err := w.limiter.Wait(ctx); err != nil {
			return
		}

		if err := w.closeFn(ctx, chargeNo); err != nil {
			// Leave the task queued so the next poll retries it.
			w.logger.Error("failed to close charge",
				zap.String("charge_no", chargeNo),
				zap.Error(err),
			)
			continue
		}

		if err := w.scheduler.Remove(ctx, chargeNo); err != nil {
			w.logger.Error("failed to remove close task",
				zap.String("charge_no", chargeNo),
				zap.Error(err),
			)
		}
	}
}
