package queue

import (
	"encoding/json"

	"github.com/tripnest/paycore/internal/constants"

	"github.com/hibiken/asynq"
)

const (
	// TaskPaymentReconciliationAlert 孤儿意图告警任务
	TaskPaymentReconciliationAlert = constants.TaskPaymentReconciliationAlert
	// TaskPaymentLedgerSync 账本补写任务
	TaskPaymentLedgerSync = constants.TaskPaymentLedgerSync
)

// ReconciliationAlertPayload 外部意图已创建但账本缺失（或状态未知）的告警载荷
type ReconciliationAlertPayload struct {
	ExternalID     string `json:"external_id"`
	ReservationID  string `json:"reservation_id"`
	PaymentID      uint   `json:"payment_id,omitempty"`
	Amount         int64  `json:"amount"`
	Currency       string `json:"currency"`
	ExternalStatus string `json:"external_status,omitempty"`
	Reason         string `json:"reason"`
}

// LedgerSyncPayload 处理方已确认但账本写入失败时的补写载荷
type LedgerSyncPayload struct {
	PaymentID      uint                   `json:"payment_id"`
	ExternalID     string                 `json:"external_id"`
	ExpectedStatus []string               `json:"expected_status"`
	TargetStatus   string                 `json:"target_status"`
	Metadata       map[string]interface{} `json:"metadata"`
}

// NewReconciliationAlertTask 创建孤儿意图告警任务
func NewReconciliationAlertTask(payload ReconciliationAlertPayload) (*asynq.Task, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskPaymentReconciliationAlert, body), nil
}

// NewLedgerSyncTask 创建账本补写任务
func NewLedgerSyncTask(payload LedgerSyncPayload) (*asynq.Task, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskPaymentLedgerSync, body), nil
}
