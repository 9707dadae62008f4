package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/tripnest/paycore/internal/constants"
	"github.com/tripnest/paycore/internal/logger"
	"github.com/tripnest/paycore/internal/provider"
	"github.com/tripnest/paycore/internal/queue"
	"github.com/tripnest/paycore/internal/service"

	"github.com/hibiken/asynq"
)

// ledgerReconciler 消费者依赖的支付对账能力
type ledgerReconciler interface {
	SyncLedgerStatus(ctx context.Context, input queue.LedgerSyncPayload) error
	InvestigateOrphanIntent(ctx context.Context, alert queue.ReconciliationAlertPayload) error
}

// Consumer 异步任务消费者
type Consumer struct {
	*provider.Container
	reconciler ledgerReconciler
}

// NewConsumer 创建消费者
func NewConsumer(c *provider.Container) *Consumer {
	consumer := &Consumer{Container: c}
	if c != nil && c.PaymentService != nil {
		consumer.reconciler = c.PaymentService
	}
	return consumer
}

// Register 注册消费者
func (c *Consumer) Register(mux *asynq.ServeMux) {
	if c == nil || mux == nil {
		logger.Debugw("worker_register_skip_nil", "consumer_nil", c == nil, "mux_nil", mux == nil)
		return
	}
	mux.HandleFunc(constants.TaskPaymentLedgerSync, c.handleLedgerSync)
	mux.HandleFunc(constants.TaskPaymentReconciliationAlert, c.handleReconciliationAlert)
}

func (c *Consumer) handleLedgerSync(ctx context.Context, task *asynq.Task) error {
	if c == nil || task == nil || c.reconciler == nil {
		logger.Warnw("worker_ledger_sync_skip_nil", "consumer_nil", c == nil, "task_nil", task == nil)
		return fmt.Errorf("ledger sync consumer not ready: %w", asynq.SkipRetry)
	}
	var payload queue.LedgerSyncPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		logger.Errorw("worker_ledger_sync_unmarshal_failed", "error", err, "payload", string(task.Payload()))
		return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
	}
	if err := c.reconciler.SyncLedgerStatus(ctx, payload); err != nil {
		if errors.Is(err, service.ErrLedgerSyncAbandoned) {
			logger.Errorw("worker_ledger_sync_abandoned",
				"payment_id", payload.PaymentID,
				"external_id", payload.ExternalID,
				"target_status", payload.TargetStatus,
				"error", err,
			)
			return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
		}
		logger.Warnw("worker_ledger_sync_failed",
			"payment_id", payload.PaymentID,
			"target_status", payload.TargetStatus,
			"error", err,
		)
		return err
	}
	return nil
}

func (c *Consumer) handleReconciliationAlert(ctx context.Context, task *asynq.Task) error {
	if c == nil || task == nil || c.reconciler == nil {
		logger.Warnw("worker_reconciliation_alert_skip_nil", "consumer_nil", c == nil, "task_nil", task == nil)
		return fmt.Errorf("reconciliation consumer not ready: %w", asynq.SkipRetry)
	}
	var payload queue.ReconciliationAlertPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		logger.Errorw("worker_reconciliation_alert_unmarshal_failed", "error", err, "payload", string(task.Payload()))
		return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
	}
	if err := c.reconciler.InvestigateOrphanIntent(ctx, payload); err != nil {
		if errors.Is(err, service.ErrLedgerSyncAbandoned) {
			logger.Errorw("worker_reconciliation_alert_abandoned",
				"external_id", payload.ExternalID,
				"reservation_id", payload.ReservationID,
				"reason", payload.Reason,
				"error", err,
			)
			return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
		}
		logger.Warnw("worker_reconciliation_alert_failed", "external_id", payload.ExternalID, "error", err)
		return err
	}
	return nil
}
