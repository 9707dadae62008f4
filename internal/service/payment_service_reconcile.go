package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/tripnest/paycore/internal/constants"
	"github.com/tripnest/paycore/internal/payment"
	"github.com/tripnest/paycore/internal/queue"
)

// ErrLedgerSyncAbandoned 补写目标已不可达（记录缺失或已进入其他终态），重试无意义
var ErrLedgerSyncAbandoned = errors.New("ledger sync abandoned")

// SyncLedgerStatus 幂等地补写账本状态，记录已处于目标状态视为成功
func (s *PaymentService) SyncLedgerStatus(ctx context.Context, input queue.LedgerSyncPayload) error {
	if input.PaymentID == 0 || strings.TrimSpace(input.TargetStatus) == "" {
		return fmt.Errorf("%w: invalid ledger sync payload", ErrLedgerSyncAbandoned)
	}
	log := paymentLogger("payment_id", input.PaymentID, "external_id", input.ExternalID, "target_status", input.TargetStatus)

	record, err := s.paymentRepo.GetByID(ctx, input.PaymentID)
	if err != nil {
		return err
	}
	if record == nil {
		log.Errorw("payment_ledger_sync_record_missing")
		return fmt.Errorf("%w: payment %d not found", ErrLedgerSyncAbandoned, input.PaymentID)
	}
	if record.Status == input.TargetStatus {
		log.Infow("payment_ledger_sync_already_applied")
		return nil
	}

	expected := input.ExpectedStatus
	if len(expected) == 0 {
		expected = activeStatuses
	}
	if _, err := s.paymentRepo.UpdateStatus(ctx, record.ID, expected, input.TargetStatus, input.Metadata); err != nil {
		if errors.Is(err, payment.ErrConflict) {
			current, getErr := s.paymentRepo.GetByID(ctx, record.ID)
			if getErr == nil && current != nil && current.Status == input.TargetStatus {
				log.Infow("payment_ledger_sync_already_applied")
				return nil
			}
			log.Errorw("payment_ledger_sync_conflict", "current_status", record.Status, "error", err)
			return fmt.Errorf("%w: %v", ErrLedgerSyncAbandoned, err)
		}
		return err
	}
	log.Infow("payment_ledger_sync_applied", "previous_status", record.Status)
	return nil
}

// InvestigateOrphanIntent 读取处理方意图并与账本比对，能安全收敛时直接写回账本
func (s *PaymentService) InvestigateOrphanIntent(ctx context.Context, alert queue.ReconciliationAlertPayload) error {
	externalID := strings.TrimSpace(alert.ExternalID)
	if externalID == "" {
		return fmt.Errorf("%w: reconciliation alert without external id", ErrLedgerSyncAbandoned)
	}
	log := paymentLogger("external_id", externalID, "reservation_id", alert.ReservationID, "reason", alert.Reason)

	intent, err := s.gateway.RetrieveIntent(ctx, externalID)
	if err != nil {
		if errors.Is(err, payment.ErrNotFound) || payment.IsOperatorError(err) {
			log.Errorw("payment_orphan_intent_unreadable", "error", err)
			return fmt.Errorf("%w: %v", ErrLedgerSyncAbandoned, err)
		}
		return err
	}

	record, err := s.paymentRepo.GetByExternalReference(ctx, externalID)
	if err != nil {
		return err
	}
	if record == nil {
		log.Errorw("payment_orphan_intent_detected",
			"external_status", intent.Status,
			"amount", payment.FormatMinorAmount(intent.Amount, intent.Currency),
			"currency", intent.Currency,
			"livemode", intent.Livemode,
		)
		return nil
	}

	target, err := MapExternalStatus(intent.Status)
	if err != nil {
		log.Errorw("payment_orphan_intent_status_unknown", "payment_id", record.ID, "external_status", intent.Status)
		return nil
	}
	if record.Status == target {
		log.Infow("payment_orphan_intent_linked", "payment_id", record.ID, "status", record.Status)
		return nil
	}
	if !CanTransition(record.Status, target) {
		log.Errorw("payment_orphan_intent_diverged",
			"payment_id", record.ID,
			"ledger_status", record.Status,
			"external_status", intent.Status,
		)
		return nil
	}
	if _, err := s.paymentRepo.UpdateStatus(ctx, record.ID, []string{record.Status}, target, map[string]interface{}{
		constants.MetaKeyExternalStatus:     intent.Status,
		constants.MetaKeyReconciliationNote: "reconciled from processor state (" + alert.Reason + ")",
	}); err != nil {
		if errors.Is(err, payment.ErrConflict) {
			log.Infow("payment_orphan_intent_raced", "payment_id", record.ID, "error", err)
			return nil
		}
		return err
	}
	log.Infow("payment_orphan_intent_reconciled", "payment_id", record.ID, "from", record.Status, "to", target)
	return nil
}
