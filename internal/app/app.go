package app

import (
	"fmt"

	"github.com/gin-gonic/gin"
	"github.com/payflow/server/internal/module/trade"
	"github.com/payflow/server/internal/module/trade/channel"
	"github.com/payflow/server/internal/shared/cache"
	"github.com/payflow/server/internal/shared/config"
	"github.com/payflow/server/internal/shared/database"
	"github.com/payflow/server/internal/shared/events"
	"github.com/payflow/server/internal/shared/logger"
	"github.com/payflow/server/internal/shared/metrics"
	"github.com/payflow/server/internal/shared/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// App represents the application.
type App struct {
	config *config.Config
	db     *gorm.DB
	redis  redis.UniversalClient
	router *gin.Engine
	logger *zap.Logger

	eventBus *events.Bus
	metrics  *metrics.Metrics

	tradeHandler   *trade.Handler
	webhookHandler *trade.WebhookHandler
	closeWorker    *trade.CloseWorker
}

// New creates a new application with all dependencies wired.
func New(cfg *config.Config) (*App, error) {
	zapLogger, err := logger.New(&cfg.Log)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	db, err := database.New(&cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("init database: %w", err)
	}
	if err := db.AutoMigrate(&trade.Charge{}, &trade.Refund{}, &trade.NotifyEvent{}); err != nil {
		return nil, fmt.Errorf("migrate database: %w", err)
	}

	redisClient, err := cache.NewRedisClient(&cfg.Redis)
	if err != nil {
		return nil, fmt.Errorf("init redis: %w", err)
	}

	m := metrics.New(prometheus.DefaultRegisterer)
	eventBus := events.NewBus(zapLogger)

	registry := trade.NewRegistry()
	if err := registerChannels(registry, &cfg.Channels, zapLogger); err != nil {
		return nil, fmt.Errorf("init channels: %w", err)
	}

	repo := trade.NewRepository(db)
	scheduler := trade.NewRedisCloseScheduler(redisClient)

	chargeService := trade.NewChargeService(repo, registry, scheduler, eventBus, m, trade.ChargeServiceConfig{
		NotifyBaseURL:        cfg.Trade.NotifyBaseURL,
		DefaultExpireMinutes: cfg.Trade.DefaultExpireMinutes,
		ChannelCallTimeout:   cfg.Trade.ChannelCallTimeout,
	}, zapLogger)
	refundService := trade.NewRefundService(trade.RefundServiceConfig{
		ChannelCallTimeout: cfg.Trade.ChannelCallTimeout,
	}, repo, registry, eventBus, m, zapLogger)
	notifyRouter := trade.NewNotifyRouter(repo, registry, chargeService, refundService, m, zapLogger)

	closeWorker := trade.NewCloseWorker(scheduler, chargeService.CloseByTimeout, &trade.CloseWorkerConfig{
		PollInterval: cfg.Trade.ClosePollInterval,
		RatePerSec:   float64(cfg.Trade.ClosePollRate),
	}, zapLogger)

	app := &App{
		config:         cfg,
		db:             db,
		redis:          redisClient,
		logger:         zapLogger,
		eventBus:       eventBus,
		metrics:        m,
		tradeHandler:   trade.NewHandler(chargeService, refundService),
		webhookHandler: trade.NewWebhookHandler(notifyRouter, zapLogger),
		closeWorker:    closeWorker,
	}

	app.setupRouter()
	app.closeWorker.Start()

	return app, nil
}

// registerChannels builds an adapter per enabled platform. Each outbound
// adapter is wrapped with a circuit breaker.
func registerChannels(registry *trade.Registry, cfg *config.ChannelsConfig, logger *zap.Logger) error {
	breakerCfg := channel.DefaultBreakerConfig()

	if cfg.Alipay.Enabled {
		adapter, err := channel.NewAlipayAdapter(&channel.AlipayConfig{
			AppID:           cfg.Alipay.AppID,
			PrivateKey:      cfg.Alipay.PrivateKey,
			AlipayPublicKey: cfg.Alipay.AlipayPublicKey,
			IsProd:          cfg.Alipay.IsProd,
			ReturnURL:       cfg.Alipay.ReturnURL,
		})
		if err != nil {
			return fmt.Errorf("alipay: %w", err)
		}
		registry.Register(channel.NewBreakerAdapter(adapter, breakerCfg))
		logger.Info("payment channel enabled", zap.String("platform", "alipay"))
	}

	if cfg.Wechat.Enabled {
		adapter, err := channel.NewWechatAdapter(&channel.WechatConfig{
			AppID:                 cfg.Wechat.AppID,
			MchID:                 cfg.Wechat.MchID,
			APIKeyV3:              cfg.Wechat.APIKeyV3,
			SerialNo:              cfg.Wechat.SerialNo,
			PrivateKey:            cfg.Wechat.PrivateKey,
			WechatPublicKeySerial: cfg.Wechat.WechatPublicKeySerial,
			WechatPublicKey:       cfg.Wechat.WechatPublicKey,
			IsProd:                cfg.Wechat.IsProd,
		})
		if err != nil {
			return fmt.Errorf("wechat: %w", err)
		}
		registry.Register(channel.NewBreakerAdapter(adapter, breakerCfg))
		logger.Info("payment channel enabled", zap.String("platform", "wechat"))
	}

	if cfg.Stripe.Enabled {
		adapter := channel.NewStripeAdapter(&channel.StripeConfig{
			APIKey:        cfg.Stripe.APIKey,
			WebhookSecret: cfg.Stripe.WebhookSecret,
		})
		registry.Register(channel.NewBreakerAdapter(adapter, breakerCfg))
		logger.Info("payment channel enabled", zap.String("platform", "stripe"))
	}

	return nil
}

// setupRouter configures the HTTP router.
func (a *App) setupRouter() {
	if a.config.Log.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(middleware.Recovery(a.logger))
	router.Use(middleware.RequestID())
	router.Use(middleware.Logging(a.logger))
	router.Use(middleware.CORS(middleware.DefaultCORSConfig()))
	router.Use(middleware.Metrics(a.metrics))

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := router.Group("/api/v1")
	api.Use(middleware.AppAuth(a.config.Auth.JWTSecret))
	a.tradeHandler.RegisterRoutes(api)

	// Platform callbacks authenticate by signature, not by merchant token.
	webhooks := router.Group("/webhooks")
	a.webhookHandler.RegisterRoutes(webhooks)

	a.router = router
}

// Router returns the HTTP router.
func (a *App) Router() *gin.Engine {
	return a.router
}

// Stop gracefully stops the application.
func (a *App) Stop() {
	a.closeWorker.Stop()

	if err := a.redis.Close(); err != nil {
		a.logger.Error("close redis", zap.Error(err))
	}
	if err := database.Close(a.db); err != nil {
		a.logger.Error("close database", zap.Error(err))
	}

	a.logger.Info("application stopped")
	_ = a.logger.Sync()
}
