package main

import (
	"flag"
	"fmt"
	"os"
	"strings"
	"syscall"

	"github.com/tripnest/paycore/internal/app"
	"github.com/tripnest/paycore/internal/config"
	"github.com/tripnest/paycore/internal/logger"
	"github.com/tripnest/paycore/internal/models"
	"github.com/tripnest/paycore/internal/service"

	"github.com/gin-gonic/gin"
)

const (
	ansiReset = "\033[0m"
	ansiBold  = "\033[1m"
	ansiDim   = "\033[2m"
	ansiCyan  = "\033[36m"
)

func main() {
	// 解析命令行参数
	var mode string
	var issueAdminToken string
	flag.StringVar(&mode, "mode", app.ModeAll, "启动模式: all (默认), api, worker")
	flag.StringVar(&issueAdminToken, "issue-admin-token", "", "为指定操作员签发管理端令牌后退出")
	flag.Parse()

	// 加载配置
	cfg := config.Load()
	logger.Init(cfg.Server.Mode, cfg.Log.ToLoggerOptions())
	stdLog := logger.StdLogger()

	if cfg.Server.Mode == "release" {
		if isWeakSecret(cfg.JWT.SecretKey) {
			stdLog.Fatalf("jwt secret is weak or still the default, configure a strong random key")
		}
	} else if isWeakSecret(cfg.JWT.SecretKey) {
		stdLog.Printf("warning: jwt secret is weak or still the default")
	}

	if operator := strings.TrimSpace(issueAdminToken); operator != "" {
		token, expiresAt, err := service.NewAuthService(cfg.JWT).GenerateJWT(operator)
		if err != nil {
			stdLog.Fatalf("issue admin token failed: %v", err)
		}
		logger.Infow("admin_token_issued", "operator", operator, "expires_at", expiresAt)
		fmt.Println(token)
		return
	}

	printStartupBanner(cfg)

	// 初始化数据库
	if err := models.InitDB(cfg.Database.Driver, cfg.Database.DSN, models.DBPoolConfig{
		MaxOpenConns:           cfg.Database.Pool.MaxOpenConns,
		MaxIdleConns:           cfg.Database.Pool.MaxIdleConns,
		ConnMaxLifetimeSeconds: cfg.Database.Pool.ConnMaxLifetimeSeconds,
		ConnMaxIdleTimeSeconds: cfg.Database.Pool.ConnMaxIdleTimeSeconds,
	}, cfg.Server.Mode == "debug"); err != nil {
		stdLog.Fatalf("database init failed: %v", err)
	}

	// 自动迁移账本表
	if err := models.AutoMigrate(); err != nil {
		stdLog.Fatalf("database migrate failed: %v", err)
	}

	// 设置 Gin 模式
	if cfg.Server.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	if err := app.Run(app.Options{
		Config:  cfg,
		Logger:  logger.S(),
		Signals: []os.Signal{syscall.SIGINT, syscall.SIGTERM},
		Mode:    mode,
	}); err != nil {
		stdLog.Fatalf("service run failed: %v", err)
	}
}

func printStartupBanner(cfg *config.Config) {
	fmt.Println(ansiCyan + ansiBold + "paycore" + ansiReset + ansiDim + "  reservation payment service" + ansiReset)
	fmt.Printf(ansiDim+"environment=%s  secret_key=%s\n"+ansiReset,
		cfg.Server.Environment, logger.MaskSecret(cfg.Payment.SecretKey))
	fmt.Println(ansiDim + "--------------------------------------------------------------" + ansiReset)
}

func isWeakSecret(secret string) bool {
	if len(secret) < 32 {
		return true
	}
	normalized := strings.ToLower(secret)
	if strings.Contains(normalized, "change-me") ||
		strings.Contains(normalized, "change-in-production") ||
		strings.Contains(normalized, "your-secret-key") {
		return true
	}
	return false
}
