package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/tripnest/paycore/internal/constants"
	"github.com/tripnest/paycore/internal/logger"
	"github.com/tripnest/paycore/internal/models"
	"github.com/tripnest/paycore/internal/payment"
	"github.com/tripnest/paycore/internal/queue"
	"github.com/tripnest/paycore/internal/repository"

	"github.com/ecodeclub/ekit/retry"
	"github.com/hibiken/asynq"
	"go.uber.org/zap"
)

const (
	maxReservationIDLength = 128
	defaultReadBackTimeout = 12 * time.Second
)

// 账本自有的元数据键，调用方传入的同名键会被丢弃
var reservedMetadataKeys = map[string]struct{}{
	constants.MetaKeyDeclineCode:        {},
	constants.MetaKeyErrorType:          {},
	constants.MetaKeyErrorMessage:       {},
	constants.MetaKeyFailedAt:           {},
	constants.MetaKeyRefundAmount:       {},
	constants.MetaKeyRefundReason:       {},
	constants.MetaKeyRefundedAt:         {},
	constants.MetaKeyExternalStatus:     {},
	constants.MetaKeyPaymentMethodRef:   {},
	constants.MetaKeyConfirmedAt:        {},
	constants.MetaKeyReconciliationNote: {},
}

// PaymentAlertPublisher 运维通道：孤儿意图告警与账本补写
type PaymentAlertPublisher interface {
	EnqueueReconciliationAlert(payload queue.ReconciliationAlertPayload, opts ...asynq.Option) error
	EnqueueLedgerSync(payload queue.LedgerSyncPayload, opts ...asynq.Option) error
}

// RetryPolicy 账本写入的指数退避参数
type RetryPolicy struct {
	InitialInterval time.Duration
	MaxInterval     time.Duration
	MaxRetries      int32
}

// PaymentService 支付编排服务：按顺序协调处理方与账本，并在两者不一致时兜底
type PaymentService struct {
	gateway     payment.Gateway
	paymentRepo repository.PaymentRepository
	alerts      PaymentAlertPublisher
	ledgerRetry RetryPolicy
	// 确认出错后回查处理方状态的超时，独立于调用方 ctx
	readBackTimeout time.Duration
	now             func() time.Time
	sleep           func(time.Duration)
}

// NewPaymentService 创建支付编排服务
func NewPaymentService(gateway payment.Gateway, paymentRepo repository.PaymentRepository, alerts PaymentAlertPublisher, ledgerRetry RetryPolicy) *PaymentService {
	if ledgerRetry.InitialInterval <= 0 {
		ledgerRetry.InitialInterval = 100 * time.Millisecond
	}
	if ledgerRetry.MaxInterval < ledgerRetry.InitialInterval {
		ledgerRetry.MaxInterval = ledgerRetry.InitialInterval
	}
	if ledgerRetry.MaxRetries <= 0 {
		ledgerRetry.MaxRetries = 5
	}
	return &PaymentService{
		gateway:         gateway,
		paymentRepo:     paymentRepo,
		alerts:          alerts,
		ledgerRetry:     ledgerRetry,
		readBackTimeout: defaultReadBackTimeout,
		now:             time.Now,
		sleep:           time.Sleep,
	}
}

// SetReadBackTimeout 设置确认出错后回查处理方状态的超时
func (s *PaymentService) SetReadBackTimeout(timeout time.Duration) {
	if timeout <= 0 {
		timeout = defaultReadBackTimeout
	}
	s.readBackTimeout = timeout
}

// RequestPaymentInput 发起支付请求
type RequestPaymentInput struct {
	ReservationID     string
	Amount            int64
	Currency          string
	PaymentMethodKind string
	Metadata          map[string]string
}

// RequestPaymentResult 发起支付结果
type RequestPaymentResult struct {
	PaymentID    uint
	ClientSecret string
	Record       *models.PaymentRecord
	Reused       bool
}

// RefundInput 退款请求，Amount 为 0 表示全额
type RefundInput struct {
	PaymentID uint
	Amount    int64
	Reason    string
}

func paymentLogger(kv ...interface{}) *zap.SugaredLogger {
	if len(kv) == 0 {
		return logger.S()
	}
	return logger.SW(kv...)
}

// GatewayMode 返回当前处理方凭证模式
func (s *PaymentService) GatewayMode() payment.Mode {
	return s.gateway.Mode()
}

// RequestPayment 创建处理方意图并写入 pending 账本记录
func (s *PaymentService) RequestPayment(ctx context.Context, input RequestPaymentInput) (*RequestPaymentResult, error) {
	normalized, err := s.validateRequest(input)
	if err != nil {
		return nil, err
	}
	log := paymentLogger(
		"reservation_id", normalized.ReservationID,
		"amount", normalized.Amount,
		"currency", normalized.Currency,
	)

	active, err := s.paymentRepo.GetActiveByReservationID(ctx, normalized.ReservationID)
	if err != nil {
		return nil, err
	}
	if active != nil {
		if active.Status == constants.PaymentStatusPending && active.Amount == normalized.Amount && active.Currency == normalized.Currency {
			log.Infow("payment_create_reuse_pending", "payment_id", active.ID, "external_id", active.ExternalReference)
			return &RequestPaymentResult{PaymentID: active.ID, ClientSecret: active.ClientSecret, Record: active, Reused: true}, nil
		}
		log.Warnw("payment_create_conflict_active",
			"payment_id", active.ID,
			"active_status", active.Status,
			"active_amount", active.Amount,
			"active_currency", active.Currency,
		)
		return nil, fmt.Errorf("%w: reservation %s already has an active payment %d in status %s",
			payment.ErrConflict, normalized.ReservationID, active.ID, active.Status)
	}

	latest, err := s.paymentRepo.GetByReservationID(ctx, normalized.ReservationID)
	if err != nil {
		return nil, err
	}
	if latest != nil && latest.Status == constants.PaymentStatusSucceeded {
		log.Warnw("payment_create_conflict_paid", "payment_id", latest.ID, "external_id", latest.ExternalReference)
		return nil, fmt.Errorf("%w: reservation %s is already paid by payment %d",
			payment.ErrConflict, normalized.ReservationID, latest.ID)
	}

	attempts, err := s.paymentRepo.CountByReservationID(ctx, normalized.ReservationID)
	if err != nil {
		return nil, err
	}
	idempotencyKey := BuildIdempotencyKey(normalized.ReservationID, attempts+1)

	intent, err := s.gateway.CreateIntent(ctx, payment.CreateIntentInput{
		ReservationID:  normalized.ReservationID,
		Amount:         normalized.Amount,
		Currency:       normalized.Currency,
		IdempotencyKey: idempotencyKey,
		Metadata:       normalized.Metadata,
	})
	if err != nil {
		s.logGatewayError(log, "payment_create_intent_failed", err)
		return nil, err
	}

	metadata := models.JSON{}
	for key, value := range normalized.Metadata {
		metadata[key] = value
	}
	metadata[constants.MetaKeyExternalStatus] = intent.Status
	record := &models.PaymentRecord{
		ReservationID:     normalized.ReservationID,
		Amount:            normalized.Amount,
		Currency:          normalized.Currency,
		Status:            constants.PaymentStatusPending,
		PaymentMethodKind: normalized.PaymentMethodKind,
		ExternalReference: intent.ExternalID,
		ClientSecret:      intent.ClientSecret,
		IdempotencyKey:    idempotencyKey,
		Metadata:          metadata,
	}
	if err := s.paymentRepo.Create(ctx, record); err != nil {
		if errors.Is(err, repository.ErrLedgerDuplicate) {
			existing, getErr := s.paymentRepo.GetByExternalReference(ctx, intent.ExternalID)
			if getErr == nil && existing != nil {
				log.Infow("payment_create_reuse_concurrent", "payment_id", existing.ID, "external_id", existing.ExternalReference)
				return &RequestPaymentResult{PaymentID: existing.ID, ClientSecret: existing.ClientSecret, Record: existing, Reused: true}, nil
			}
			if getErr != nil {
				err = getErr
			}
		}
		warning := &payment.ReconciliationWarning{
			ExternalID:    intent.ExternalID,
			ReservationID: normalized.ReservationID,
			Err:           err,
		}
		s.publishReconciliationAlert(queue.ReconciliationAlertPayload{
			ExternalID:     intent.ExternalID,
			ReservationID:  normalized.ReservationID,
			Amount:         normalized.Amount,
			Currency:       normalized.Currency,
			ExternalStatus: intent.Status,
			Reason:         "ledger_create_failed",
		}, err)
		return nil, warning
	}

	log.Infow("payment_request_success",
		"payment_id", record.ID,
		"external_id", record.ExternalReference,
		"idempotency_key", idempotencyKey,
		"gateway_mode", string(s.gateway.Mode()),
	)
	return &RequestPaymentResult{PaymentID: record.ID, ClientSecret: record.ClientSecret, Record: record}, nil
}

// CompletePayment 确认预订当前的支付意图并把结果写回账本
func (s *PaymentService) CompletePayment(ctx context.Context, reservationID, paymentMethodRef string) (*models.PaymentRecord, error) {
	reservationID = strings.TrimSpace(reservationID)
	paymentMethodRef = strings.TrimSpace(paymentMethodRef)
	if reservationID == "" {
		return nil, payment.NewValidationError("reservation id is required")
	}
	if paymentMethodRef == "" {
		return nil, payment.NewValidationError("payment method is required")
	}

	record, err := s.paymentRepo.GetByReservationID(ctx, reservationID)
	if err != nil {
		return nil, err
	}
	if record == nil || !record.IsActive() {
		return nil, fmt.Errorf("%w: no pending payment for reservation %s", payment.ErrNotFound, reservationID)
	}
	log := paymentLogger(
		"reservation_id", reservationID,
		"payment_id", record.ID,
		"external_id", record.ExternalReference,
	)

	intent, err := s.gateway.ConfirmIntent(ctx, record.ExternalReference, paymentMethodRef)
	if err != nil {
		s.logGatewayError(log, "payment_confirm_failed", err)
		return nil, s.handleConfirmError(ctx, record, paymentMethodRef, err)
	}

	updated, err := s.applyExternalStatus(ctx, record, intent, map[string]interface{}{
		constants.MetaKeyPaymentMethodRef: paymentMethodRef,
	})
	if err != nil {
		return nil, err
	}
	log.Infow("payment_complete_success", "status", updated.Status, "external_status", intent.Status)
	return updated, nil
}

// Refund 对已成功（或处理中）的支付退款，处理方失败时账本保持不变
func (s *PaymentService) Refund(ctx context.Context, input RefundInput) (*models.PaymentRecord, error) {
	if input.PaymentID == 0 {
		return nil, payment.NewValidationError("payment id is required")
	}
	record, err := s.paymentRepo.GetByID(ctx, input.PaymentID)
	if err != nil {
		return nil, err
	}
	if record == nil {
		return nil, fmt.Errorf("%w: payment %d", payment.ErrNotFound, input.PaymentID)
	}
	if !CanRefund(record.Status) {
		return nil, fmt.Errorf("%w: payment %d in status %s cannot be refunded", payment.ErrConflict, record.ID, record.Status)
	}
	if input.Amount < 0 {
		return nil, payment.NewValidationError("Refund amount must not be negative")
	}
	if input.Amount > record.Amount {
		return nil, payment.NewValidationError("Refund amount cannot exceed %s %s",
			payment.FormatMinorAmount(record.Amount, record.Currency), strings.ToUpper(record.Currency))
	}
	refundAmount := input.Amount
	if refundAmount == 0 {
		refundAmount = record.Amount
	}
	reason := strings.TrimSpace(input.Reason)
	log := paymentLogger(
		"payment_id", record.ID,
		"reservation_id", record.ReservationID,
		"external_id", record.ExternalReference,
		"refund_amount", payment.FormatMinorAmount(refundAmount, record.Currency),
	)

	if err := s.gateway.RefundIntent(ctx, payment.RefundInput{
		ExternalID:     record.ExternalReference,
		Amount:         refundAmount,
		Reason:         reason,
		IdempotencyKey: fmt.Sprintf("refund:%d:%d", record.ID, refundAmount),
	}); err != nil {
		s.logGatewayError(log, "payment_refund_failed", err)
		return nil, err
	}

	updated, err := s.writeStatus(ctx, record, refundableStatuses, constants.PaymentStatusCanceled, map[string]interface{}{
		constants.MetaKeyRefundAmount: refundAmount,
		constants.MetaKeyRefundReason: reason,
		constants.MetaKeyRefundedAt:   s.now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		return nil, err
	}
	log.Infow("payment_refund_success")
	return updated, nil
}

// GetStatus 读取预订最近的支付记录，不存在时返回 nil
func (s *PaymentService) GetStatus(ctx context.Context, reservationID string) (*models.PaymentRecord, error) {
	reservationID = strings.TrimSpace(reservationID)
	if reservationID == "" {
		return nil, payment.NewValidationError("reservation id is required")
	}
	return s.paymentRepo.GetByReservationID(ctx, reservationID)
}

// GetPayment 根据账本ID读取
func (s *PaymentService) GetPayment(ctx context.Context, id uint) (*models.PaymentRecord, error) {
	record, err := s.paymentRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if record == nil {
		return nil, fmt.Errorf("%w: payment %d", payment.ErrNotFound, id)
	}
	return record, nil
}

// ListPayments 管理端账本列表
func (s *PaymentService) ListPayments(ctx context.Context, filter repository.PaymentListFilter) ([]models.PaymentRecord, int64, error) {
	if filter.Status != "" && !IsKnownPaymentStatus(filter.Status) {
		return nil, 0, payment.NewValidationError("unknown payment status %q", filter.Status)
	}
	return s.paymentRepo.ListAdmin(ctx, filter)
}

// BuildIdempotencyKey 由预订ID与尝试序号确定性生成创建意图的幂等键
func BuildIdempotencyKey(reservationID string, attempt int64) string {
	return fmt.Sprintf("resv:%s:attempt:%d", reservationID, attempt)
}

func (s *PaymentService) validateRequest(input RequestPaymentInput) (RequestPaymentInput, error) {
	input.ReservationID = strings.TrimSpace(input.ReservationID)
	if input.ReservationID == "" {
		return input, payment.NewValidationError("reservation id is required")
	}
	if len(input.ReservationID) > maxReservationIDLength {
		return input, payment.NewValidationError("reservation id must be at most %d characters", maxReservationIDLength)
	}
	if input.Amount <= 0 {
		return input, payment.NewValidationError("Amount must be a positive integer in minor units")
	}
	currency, ok := payment.NormalizeCurrency(input.Currency)
	if !ok {
		return input, payment.NewValidationError("currency must be a three-letter ISO code")
	}
	input.Currency = currency
	if minimum := s.gateway.MinimumAmount(currency); input.Amount < minimum {
		return input, payment.MinimumAmountError(minimum, currency)
	}
	kind := strings.ToLower(strings.TrimSpace(input.PaymentMethodKind))
	switch kind {
	case "":
		kind = constants.PaymentMethodKindCard
	case constants.PaymentMethodKindCard, constants.PaymentMethodKindWallet:
	default:
		return input, payment.NewValidationError("unsupported payment method kind %q", input.PaymentMethodKind)
	}
	input.PaymentMethodKind = kind
	metadata := make(map[string]string, len(input.Metadata))
	for key, value := range input.Metadata {
		key = strings.TrimSpace(key)
		if key == "" {
			continue
		}
		if _, reserved := reservedMetadataKeys[key]; reserved {
			paymentLogger("reservation_id", input.ReservationID).Warnw("payment_metadata_reserved_key_dropped", "key", key)
			continue
		}
		metadata[key] = value
	}
	input.Metadata = metadata
	return input, nil
}

// handleConfirmError 确认失败时写回账本。结果不确定的错误先向处理方查询真实状态，避免把已扣款的支付标记为失败
func (s *PaymentService) handleConfirmError(ctx context.Context, record *models.PaymentRecord, paymentMethodRef string, confirmErr error) error {
	if isAmbiguousGatewayError(confirmErr) {
		readCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.readBackTimeout)
		defer cancel()
		intent, err := s.gateway.RetrieveIntent(readCtx, record.ExternalReference)
		if err != nil {
			s.publishReconciliationAlert(queue.ReconciliationAlertPayload{
				ExternalID:    record.ExternalReference,
				ReservationID: record.ReservationID,
				PaymentID:     record.ID,
				Amount:        record.Amount,
				Currency:      record.Currency,
				Reason:        "confirm_outcome_unknown",
			}, confirmErr)
			return confirmErr
		}
		if _, applyErr := s.applyExternalStatus(ctx, record, intent, map[string]interface{}{
			constants.MetaKeyPaymentMethodRef:   paymentMethodRef,
			constants.MetaKeyReconciliationNote: "status read back after confirm error: " + confirmErr.Error(),
		}); applyErr != nil {
			return applyErr
		}
		return confirmErr
	}

	if _, err := s.writeStatus(ctx, record, activeStatuses, constants.PaymentStatusFailed, failureMetadata(confirmErr, paymentMethodRef, s.now())); err != nil {
		paymentLogger("payment_id", record.ID).Errorw("payment_mark_failed_error", "error", err, "confirm_error", confirmErr)
	}
	return confirmErr
}

// applyExternalStatus 映射处理方状态并按状态机写入账本
func (s *PaymentService) applyExternalStatus(ctx context.Context, record *models.PaymentRecord, intent *payment.Intent, extra map[string]interface{}) (*models.PaymentRecord, error) {
	target, err := MapExternalStatus(intent.Status)
	if err != nil {
		paymentLogger("payment_id", record.ID, "external_id", record.ExternalReference).
			Errorw("payment_external_status_unknown", "external_status", intent.Status)
		s.publishReconciliationAlert(queue.ReconciliationAlertPayload{
			ExternalID:     record.ExternalReference,
			ReservationID:  record.ReservationID,
			PaymentID:      record.ID,
			Amount:         record.Amount,
			Currency:       record.Currency,
			ExternalStatus: intent.Status,
			Reason:         "unknown_external_status",
		}, err)
		return nil, err
	}
	if target != record.Status && !CanTransition(record.Status, target) {
		return nil, fmt.Errorf("%w: payment %d cannot move from %s to %s", payment.ErrConflict, record.ID, record.Status, target)
	}
	metadata := map[string]interface{}{
		constants.MetaKeyExternalStatus: intent.Status,
	}
	for key, value := range extra {
		metadata[key] = value
	}
	if target == constants.PaymentStatusSucceeded {
		metadata[constants.MetaKeyConfirmedAt] = s.now().UTC().Format(time.RFC3339)
	}
	return s.writeStatus(ctx, record, activeStatuses, target, metadata)
}

// writeStatus 条件写入账本；非冲突类失败按指数退避重试，耗尽后升级为关键补写任务
func (s *PaymentService) writeStatus(ctx context.Context, record *models.PaymentRecord, expected []string, target string, metadata map[string]interface{}) (*models.PaymentRecord, error) {
	// 处理方已执行的结果不能因调用方断开而丢失
	writeCtx := context.WithoutCancel(ctx)
	log := paymentLogger("payment_id", record.ID, "external_id", record.ExternalReference, "target_status", target)

	updated, err := s.paymentRepo.UpdateStatus(writeCtx, record.ID, expected, target, metadata)
	if err == nil || !isRetryableLedgerError(err) {
		return updated, err
	}

	strategy, strategyErr := retry.NewExponentialBackoffRetryStrategy(s.ledgerRetry.InitialInterval, s.ledgerRetry.MaxInterval, s.ledgerRetry.MaxRetries)
	if strategyErr == nil {
		for {
			next, ok := strategy.Next()
			if !ok {
				break
			}
			log.Warnw("payment_ledger_write_retry", "wait_ms", next.Milliseconds(), "error", err)
			s.sleep(next)
			updated, err = s.paymentRepo.UpdateStatus(writeCtx, record.ID, expected, target, metadata)
			if err == nil || !isRetryableLedgerError(err) {
				return updated, err
			}
		}
	}

	log.Errorw("payment_ledger_sync_exhausted",
		"reservation_id", record.ReservationID,
		"expected_status", expected,
		"error", err,
	)
	payload := queue.LedgerSyncPayload{
		PaymentID:      record.ID,
		ExternalID:     record.ExternalReference,
		ExpectedStatus: expected,
		TargetStatus:   target,
		Metadata:       metadata,
	}
	if s.alerts == nil {
		log.Errorw("payment_ledger_sync_enqueue_failed", "error", "alert publisher not configured")
	} else if enqueueErr := s.alerts.EnqueueLedgerSync(payload); enqueueErr != nil {
		log.Errorw("payment_ledger_sync_enqueue_failed", "error", enqueueErr, "payload", payload)
	}
	return nil, &payment.ReconciliationWarning{
		ExternalID:    record.ExternalReference,
		ReservationID: record.ReservationID,
		Err:           err,
	}
}

func (s *PaymentService) publishReconciliationAlert(payload queue.ReconciliationAlertPayload, cause error) {
	log := paymentLogger(
		"external_id", payload.ExternalID,
		"reservation_id", payload.ReservationID,
		"reason", payload.Reason,
	)
	log.Errorw("payment_reconciliation_required",
		"payment_id", payload.PaymentID,
		"amount", payload.Amount,
		"currency", payload.Currency,
		"external_status", payload.ExternalStatus,
		"error", cause,
	)
	if s.alerts == nil {
		return
	}
	if err := s.alerts.EnqueueReconciliationAlert(payload); err != nil {
		log.Errorw("payment_reconciliation_alert_enqueue_failed", "error", err)
	}
}

func (s *PaymentService) logGatewayError(log *zap.SugaredLogger, event string, err error) {
	switch {
	case payment.IsOperatorError(err):
		log.Errorw(event, "error", err, "operator_action_required", true)
	case errors.Is(err, payment.ErrCard), errors.Is(err, payment.ErrValidation):
		log.Infow(event, "error", err)
	default:
		log.Warnw(event, "error", err)
	}
}

// isAmbiguousGatewayError 处理方是否可能已执行请求
func isAmbiguousGatewayError(err error) bool {
	return errors.Is(err, payment.ErrGatewayRequestFailed) ||
		errors.Is(err, payment.ErrGatewayResponseInvalid) ||
		errors.Is(err, payment.ErrConflict) ||
		errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, context.Canceled)
}

func isRetryableLedgerError(err error) bool {
	return !errors.Is(err, payment.ErrConflict) && !errors.Is(err, payment.ErrNotFound)
}

func failureMetadata(err error, paymentMethodRef string, now time.Time) map[string]interface{} {
	metadata := map[string]interface{}{
		constants.MetaKeyErrorMessage:     err.Error(),
		constants.MetaKeyFailedAt:         now.UTC().Format(time.RFC3339),
		constants.MetaKeyPaymentMethodRef: paymentMethodRef,
	}
	var cardErr *payment.CardError
	switch {
	case errors.As(err, &cardErr):
		metadata[constants.MetaKeyErrorType] = "card_error"
		metadata[constants.MetaKeyDeclineCode] = cardErr.Code
		metadata[constants.MetaKeyErrorMessage] = cardErr.Message
	case errors.Is(err, payment.ErrAuthentication):
		metadata[constants.MetaKeyErrorType] = "authentication_error"
	case errors.Is(err, payment.ErrModeMismatch):
		metadata[constants.MetaKeyErrorType] = "mode_mismatch_error"
	case errors.Is(err, payment.ErrConfiguration):
		metadata[constants.MetaKeyErrorType] = "configuration_error"
	case errors.Is(err, payment.ErrValidation):
		metadata[constants.MetaKeyErrorType] = "validation_error"
	case errors.Is(err, payment.ErrNotFound):
		metadata[constants.MetaKeyErrorType] = "not_found_error"
	default:
		metadata[constants.MetaKeyErrorType] = "gateway_error"
	}
	return metadata
}
