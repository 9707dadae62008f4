package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/tripnest/paycore/internal/logger"

	"github.com/spf13/viper"
)

// Config 应用配置结构
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Log      LogConfig      `mapstructure:"log"`
	Database DatabaseConfig `mapstructure:"database"`
	JWT      JWTConfig      `mapstructure:"jwt"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Queue    QueueConfig    `mapstructure:"queue"`
	CORS     CORSConfig     `mapstructure:"cors"`
	Security SecurityConfig `mapstructure:"security"`
	Payment  PaymentConfig  `mapstructure:"payment"`
}

// ServerConfig 服务器配置
type ServerConfig struct {
	Host        string `mapstructure:"host"`
	Port        string `mapstructure:"port"`
	Mode        string `mapstructure:"mode"`        // debug / release
	Environment string `mapstructure:"environment"` // production / staging / development
}

// LogConfig 日志配置
type LogConfig struct {
	Dir        string `mapstructure:"dir"`
	Filename   string `mapstructure:"filename"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
	Compress   bool   `mapstructure:"compress"`
}

// ToLoggerOptions 转换为 logger 配置
func (c LogConfig) ToLoggerOptions() logger.Options {
	return logger.Options{
		Dir:        c.Dir,
		Filename:   c.Filename,
		MaxSizeMB:  c.MaxSizeMB,
		MaxBackups: c.MaxBackups,
		MaxAgeDays: c.MaxAgeDays,
		Compress:   c.Compress,
	}
}

// DatabasePoolConfig 数据库连接池配置
type DatabasePoolConfig struct {
	MaxOpenConns           int `mapstructure:"max_open_conns"`
	MaxIdleConns           int `mapstructure:"max_idle_conns"`
	ConnMaxLifetimeSeconds int `mapstructure:"conn_max_lifetime_seconds"`
	ConnMaxIdleTimeSeconds int `mapstructure:"conn_max_idle_time_seconds"`
}

// DatabaseConfig 数据库配置
type DatabaseConfig struct {
	Driver string             `mapstructure:"driver"` // 数据库驱动（sqlite/postgres）
	DSN    string             `mapstructure:"dsn"`    // 数据库连接串
	Pool   DatabasePoolConfig `mapstructure:"pool"`
}

// JWTConfig 管理端 JWT 配置
type JWTConfig struct {
	SecretKey   string `mapstructure:"secret"`
	ExpireHours int    `mapstructure:"expire_hours"`
	Issuer      string `mapstructure:"issuer"`
}

// RedisConfig Redis 配置
type RedisConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Prefix   string `mapstructure:"prefix"`
}

// QueueConfig 异步队列配置
type QueueConfig struct {
	Enabled          bool           `mapstructure:"enabled"`
	Host             string         `mapstructure:"host"`
	Port             int            `mapstructure:"port"`
	Password         string         `mapstructure:"password"`
	DB               int            `mapstructure:"db"`
	Concurrency      int            `mapstructure:"concurrency"`
	Queues           map[string]int `mapstructure:"queues"`
	LedgerSyncRetry  int            `mapstructure:"ledger_sync_max_retry"`
	AlertMaxRetry    int            `mapstructure:"alert_max_retry"`
	ShutdownTimeoutS int            `mapstructure:"shutdown_timeout_seconds"`
}

// CORSConfig 跨域配置
type CORSConfig struct {
	AllowedOrigins   []string `mapstructure:"allowed_origins"`
	AllowedMethods   []string `mapstructure:"allowed_methods"`
	AllowedHeaders   []string `mapstructure:"allowed_headers"`
	AllowCredentials bool     `mapstructure:"allow_credentials"`
	MaxAge           int      `mapstructure:"max_age"`
}

// SecurityConfig 安全配置
type SecurityConfig struct {
	PaymentRateLimit RateLimitConfig `mapstructure:"payment_rate_limit"`
}

// RateLimitConfig 接口限流配置
type RateLimitConfig struct {
	WindowSeconds int `mapstructure:"window_seconds"`
	MaxRequests   int `mapstructure:"max_requests"`
}

// PaymentConfig 支付处理方配置
type PaymentConfig struct {
	SecretKey          string      `mapstructure:"secret_key"`
	PublishableKey     string      `mapstructure:"publishable_key"`
	APIBaseURL         string      `mapstructure:"api_base_url"`
	TimeoutSeconds     int         `mapstructure:"timeout_seconds"`
	MinimumAmount      int64       `mapstructure:"minimum_amount"`
	PaymentMethodTypes []string    `mapstructure:"payment_method_types"`
	LedgerRetry        RetryConfig `mapstructure:"ledger_retry"`
	RetrieveRetry      RetryConfig `mapstructure:"retrieve_retry"`
}

// Timeout 处理方请求超时
func (c PaymentConfig) Timeout() time.Duration {
	if c.TimeoutSeconds <= 0 {
		return 12 * time.Second
	}
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// RetryConfig 指数退避重试配置
type RetryConfig struct {
	InitialIntervalMS int `mapstructure:"initial_interval_ms"`
	MaxIntervalMS     int `mapstructure:"max_interval_ms"`
	MaxRetries        int `mapstructure:"max_retries"`
}

// InitialInterval 首次重试间隔
func (c RetryConfig) InitialInterval() time.Duration {
	return time.Duration(c.InitialIntervalMS) * time.Millisecond
}

// MaxInterval 最大重试间隔
func (c RetryConfig) MaxInterval() time.Duration {
	return time.Duration(c.MaxIntervalMS) * time.Millisecond
}

// Load 从 config.yml 加载配置，解析失败直接 panic
func Load() *Config {
	cfg, err := LoadWith(viper.GetViper())
	if err != nil {
		logger.Errorw("config_unmarshal_failed", "error", err)
		panic(fmt.Errorf("配置解析失败: %w", err))
	}
	return cfg
}

// LoadWith 使用指定 viper 实例加载配置
func LoadWith(v *viper.Viper) (*Config, error) {
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")     // 从当前目录查找
	v.AddConfigPath("../")   // 如果从 cmd/server 运行
	v.AddConfigPath("./etc") // etc 文件夹

	setDefaults(v)

	// 环境变量支持（例如 payment.secret_key -> PAYMENT_SECRET_KEY）
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := v.ReadInConfig(); err != nil {
		logger.Warnw("config_file_read_failed",
			"error", err,
			"fallback", "env_or_defaults",
		)
	} else {
		logger.Infow("config_file_loaded", "file", v.ConfigFileUsed())
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	cfg.Server.Environment = strings.ToLower(strings.TrimSpace(cfg.Server.Environment))
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.mode", "debug")
	v.SetDefault("server.environment", "development")
	v.SetDefault("log.dir", "")
	v.SetDefault("log.filename", "paycore.log")
	v.SetDefault("log.max_size_mb", 100)
	v.SetDefault("log.max_backups", 7)
	v.SetDefault("log.max_age_days", 30)
	v.SetDefault("log.compress", true)
	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.dsn", "./db/paycore.db")
	v.SetDefault("database.pool.max_open_conns", 1)
	v.SetDefault("database.pool.max_idle_conns", 1)
	v.SetDefault("database.pool.conn_max_lifetime_seconds", 0)
	v.SetDefault("database.pool.conn_max_idle_time_seconds", 0)
	v.SetDefault("jwt.secret", "change-me-in-production")
	v.SetDefault("jwt.expire_hours", 24)
	v.SetDefault("jwt.issuer", "paycore")
	v.SetDefault("redis.enabled", true)
	v.SetDefault("redis.host", "127.0.0.1")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.prefix", "pc")
	v.SetDefault("queue.enabled", true)
	v.SetDefault("queue.host", "127.0.0.1")
	v.SetDefault("queue.port", 6379)
	v.SetDefault("queue.password", "")
	v.SetDefault("queue.db", 1)
	v.SetDefault("queue.concurrency", 10)
	v.SetDefault("queue.queues", map[string]int{
		"default":  5,
		"critical": 10,
	})
	v.SetDefault("queue.ledger_sync_max_retry", 25)
	v.SetDefault("queue.alert_max_retry", 10)
	v.SetDefault("queue.shutdown_timeout_seconds", 10)
	v.SetDefault("cors.allowed_origins", []string{"*"})
	v.SetDefault("cors.allowed_methods", []string{"GET", "POST", "OPTIONS"})
	v.SetDefault("cors.allowed_headers", []string{
		"Content-Type",
		"Content-Length",
		"Accept-Encoding",
		"Authorization",
		"Cache-Control",
		"X-Requested-With",
		"X-Request-ID",
	})
	v.SetDefault("cors.allow_credentials", true)
	v.SetDefault("cors.max_age", 600)
	v.SetDefault("security.payment_rate_limit.window_seconds", 60)
	v.SetDefault("security.payment_rate_limit.max_requests", 20)
	v.SetDefault("payment.secret_key", "")
	v.SetDefault("payment.publishable_key", "")
	v.SetDefault("payment.api_base_url", "https://api.stripe.com")
	v.SetDefault("payment.timeout_seconds", 12)
	v.SetDefault("payment.minimum_amount", 50)
	v.SetDefault("payment.payment_method_types", []string{"card"})
	v.SetDefault("payment.ledger_retry.initial_interval_ms", 100)
	v.SetDefault("payment.ledger_retry.max_interval_ms", 2000)
	v.SetDefault("payment.ledger_retry.max_retries", 5)
	v.SetDefault("payment.retrieve_retry.initial_interval_ms", 200)
	v.SetDefault("payment.retrieve_retry.max_interval_ms", 2000)
	v.SetDefault("payment.retrieve_retry.max_retries", 3)
}
