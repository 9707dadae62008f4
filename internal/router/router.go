package router

import (
	"github.com/tripnest/paycore/internal/cache"
	"github.com/tripnest/paycore/internal/config"
	adminhandlers "github.com/tripnest/paycore/internal/http/handlers/admin"
	publichandlers "github.com/tripnest/paycore/internal/http/handlers/public"
	"github.com/tripnest/paycore/internal/http/response"
	"github.com/tripnest/paycore/internal/logger"
	"github.com/tripnest/paycore/internal/provider"

	"github.com/gin-gonic/gin"
)

// SetupRouter 初始化路由
func SetupRouter(cfg *config.Config, c *provider.Container) *gin.Engine {
	log := logger.L
	if log == nil {
		log = logger.Init(cfg.Server.Mode, cfg.Log.ToLoggerOptions())
	}
	r := gin.New()

	// 初始化 Handler（按公开/后台分组）
	publicHandler := publichandlers.New(c)
	adminHandler := adminhandlers.New(c)
	redisClient := cache.Client()
	paymentRule := RateLimitRule{
		Prefix:        "payments",
		WindowSeconds: cfg.Security.PaymentRateLimit.WindowSeconds,
		MaxRequests:   cfg.Security.PaymentRateLimit.MaxRequests,
		Message:       "too many payment requests, retry in %d seconds",
	}

	// 中间件
	r.Use(gin.Recovery())
	r.Use(RequestIDMiddleware())
	r.Use(LoggerMiddleware(log))
	r.Use(CORSMiddleware(cfg.CORS))

	r.GET("/healthz", publicHandler.Healthz)

	// API 路由组
	apiV1 := r.Group("/api/v1")
	{
		payments := apiV1.Group("/payments")
		payments.Use(RateLimitMiddleware(redisClient, paymentRule, KeyByIPAndJSONField("reservation_id")))
		{
			payments.POST("", publicHandler.CreatePayment)
			payments.POST("/confirm", publicHandler.ConfirmPayment)
			payments.GET("/status", publicHandler.GetPaymentStatus)
		}

		// 管理端接口
		admin := apiV1.Group("/admin")
		admin.Use(AdminJWTAuthMiddleware(c.AuthService))
		{
			admin.GET("/payments", adminHandler.GetAdminPayments)
			admin.GET("/payments/export", adminHandler.ExportAdminPayments)
			admin.GET("/payments/:id", adminHandler.GetAdminPayment)
			admin.POST("/payments/:id/refund", adminHandler.RefundPayment)
		}
	}

	r.NoRoute(func(ctx *gin.Context) {
		response.NotFound(ctx, "route not found")
	})

	return r
}
