package provider

import (
	"errors"

	"github.com/tripnest/paycore/internal/cache"
	"github.com/tripnest/paycore/internal/config"
	"github.com/tripnest/paycore/internal/logger"
	"github.com/tripnest/paycore/internal/models"
	"github.com/tripnest/paycore/internal/payment"
	"github.com/tripnest/paycore/internal/payment/stripe"
	"github.com/tripnest/paycore/internal/queue"
	"github.com/tripnest/paycore/internal/repository"
	"github.com/tripnest/paycore/internal/service"

	"gorm.io/gorm"
)

// Container 依赖注入容器
type Container struct {
	Config      *config.Config
	DB          *gorm.DB
	QueueClient *queue.Client

	// 启动期凭证校验结果，healthz 对外展示
	PaymentConfig service.PaymentConfigValidation

	// Repositories
	PaymentRepo repository.PaymentRepository

	// Gateways
	PaymentGateway payment.Gateway

	// Services
	AuthService    *service.AuthService
	PaymentService *service.PaymentService
}

// NewContainer 初始化容器，凭证无效时返回 ErrConfiguration
func NewContainer(cfg *config.Config, validation service.PaymentConfigValidation) (*Container, error) {
	if cfg == nil {
		return nil, errors.New("config is nil")
	}
	if models.DB == nil {
		return nil, errors.New("database not initialized")
	}

	// 初始化缓存
	if err := cache.InitRedis(&cfg.Redis); err != nil {
		logger.Warnw("provider_init_redis_failed", "error", err)
	}

	// 初始化队列客户端（未启用时返回禁用客户端，告警仍写入错误日志）
	queueClient, err := queue.NewClient(&cfg.Queue)
	if err != nil {
		logger.Errorw("provider_init_queue_client_failed", "error", err)
		queueClient, _ = queue.NewClient(nil)
	}
	if !queueClient.Enabled() {
		logger.Warnw("provider_queue_disabled", "impact", "reconciliation alerts only reach the error log")
	}

	c := &Container{
		Config:        cfg,
		DB:            models.DB,
		QueueClient:   queueClient,
		PaymentConfig: validation,
	}

	// 1. 初始化 Repositories
	c.initRepositories()

	// 2. 初始化 Gateways
	if err := c.initGateways(); err != nil {
		c.Close()
		return nil, err
	}

	// 3. 初始化 Services
	c.initServices()

	return c, nil
}

func (c *Container) initRepositories() {
	c.PaymentRepo = repository.NewPaymentRepository(c.DB)
}

func (c *Container) initGateways() error {
	paymentCfg := c.Config.Payment
	client, err := stripe.NewClient(stripe.Config{
		SecretKey:          paymentCfg.SecretKey,
		PublishableKey:     paymentCfg.PublishableKey,
		APIBaseURL:         paymentCfg.APIBaseURL,
		Timeout:            paymentCfg.Timeout(),
		MinimumAmount:      paymentCfg.MinimumAmount,
		PaymentMethodTypes: paymentCfg.PaymentMethodTypes,
		RetryInitial:       paymentCfg.RetrieveRetry.InitialInterval(),
		RetryMaxInterval:   paymentCfg.RetrieveRetry.MaxInterval(),
		RetryMaxRetries:    int32(paymentCfg.RetrieveRetry.MaxRetries),
	})
	if err != nil {
		logger.Errorw("provider_init_payment_gateway_failed", "error", err)
		return err
	}
	c.PaymentGateway = client
	return nil
}

func (c *Container) initServices() {
	c.AuthService = service.NewAuthService(c.Config.JWT)
	ledgerRetry := c.Config.Payment.LedgerRetry
	c.PaymentService = service.NewPaymentService(c.PaymentGateway, c.PaymentRepo, c.QueueClient, service.RetryPolicy{
		InitialInterval: ledgerRetry.InitialInterval(),
		MaxInterval:     ledgerRetry.MaxInterval(),
		MaxRetries:      int32(ledgerRetry.MaxRetries),
	})
	c.PaymentService.SetReadBackTimeout(c.Config.Payment.Timeout())
}

// Close 释放容器持有的外部连接
func (c *Container) Close() {
	if c == nil {
		return
	}
	if err := c.QueueClient.Close(); err != nil {
		logger.Warnw("provider_close_queue_client_failed", "error", err)
	}
	if err := cache.Close(); err != nil {
		logger.Warnw("provider_close_redis_failed", "error", err)
	}
}
