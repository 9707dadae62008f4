package queue

import (
	"fmt"
	"strings"

	"github.com/tripnest/paycore/internal/config"
	"github.com/tripnest/paycore/internal/constants"

	"github.com/hibiken/asynq"
)

const (
	// DefaultQueue 默认队列名称
	DefaultQueue = constants.QueueDefault
	// CriticalQueue 关键队列名称，账本补写使用
	CriticalQueue = constants.QueueCritical

	defaultLedgerSyncMaxRetry = 25
	defaultAlertMaxRetry      = 10
)

// Client 队列客户端封装
type Client struct {
	client             *asynq.Client
	enabled            bool
	defaultQueue       string
	ledgerSyncMaxRetry int
	alertMaxRetry      int
}

// NewClient 创建队列客户端
func NewClient(cfg *config.QueueConfig) (*Client, error) {
	if cfg == nil || !cfg.Enabled {
		return &Client{enabled: false, defaultQueue: DefaultQueue}, nil
	}
	opt := buildRedisOpt(cfg)
	client := asynq.NewClient(opt)
	return &Client{
		client:             client,
		enabled:            true,
		defaultQueue:       DefaultQueue,
		ledgerSyncMaxRetry: positiveOr(cfg.LedgerSyncRetry, defaultLedgerSyncMaxRetry),
		alertMaxRetry:      positiveOr(cfg.AlertMaxRetry, defaultAlertMaxRetry),
	}, nil
}

// Enabled 判断是否启用
func (c *Client) Enabled() bool {
	return c != nil && c.enabled && c.client != nil
}

// Close 关闭客户端
func (c *Client) Close() error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Close()
}

// EnqueueReconciliationAlert 推送孤儿意图告警任务
func (c *Client) EnqueueReconciliationAlert(payload ReconciliationAlertPayload, opts ...asynq.Option) error {
	if !c.Enabled() {
		return ErrQueueDisabled
	}
	task, err := NewReconciliationAlertTask(payload)
	if err != nil {
		return err
	}
	options := append([]asynq.Option{asynq.Queue(c.defaultQueue), asynq.MaxRetry(c.alertMaxRetry)}, opts...)
	_, err = c.client.Enqueue(task, options...)
	return err
}

// EnqueueLedgerSync 推送账本补写任务到关键队列
func (c *Client) EnqueueLedgerSync(payload LedgerSyncPayload, opts ...asynq.Option) error {
	if !c.Enabled() {
		return ErrQueueDisabled
	}
	task, err := NewLedgerSyncTask(payload)
	if err != nil {
		return err
	}
	options := append([]asynq.Option{asynq.Queue(CriticalQueue), asynq.MaxRetry(c.ledgerSyncMaxRetry)}, opts...)
	_, err = c.client.Enqueue(task, options...)
	return err
}

// BuildServerConfig 生成队列服务配置
func BuildServerConfig(cfg *config.QueueConfig) (asynq.RedisClientOpt, asynq.Config) {
	opt := buildRedisOpt(cfg)
	concurrency := 10
	if cfg != nil && cfg.Concurrency > 0 {
		concurrency = cfg.Concurrency
	}
	queues := map[string]int{CriticalQueue: 10, DefaultQueue: 5}
	if cfg != nil && len(cfg.Queues) > 0 {
		queues = cfg.Queues
	}
	return opt, asynq.Config{
		Concurrency: concurrency,
		Queues:      queues,
	}
}

func buildRedisOpt(cfg *config.QueueConfig) asynq.RedisClientOpt {
	host := "127.0.0.1"
	port := 6379
	password := ""
	db := 0
	if cfg != nil {
		if strings.TrimSpace(cfg.Host) != "" {
			host = strings.TrimSpace(cfg.Host)
		}
		if cfg.Port > 0 {
			port = cfg.Port
		}
		password = cfg.Password
		db = cfg.DB
	}
	return asynq.RedisClientOpt{
		Addr:     fmt.Sprintf("%s:%d", host, port),
		Password: password,
		DB:       db,
	}
}

func positiveOr(value, fallback int) int {
	if value > 0 {
		return value
	}
	return fallback
}
