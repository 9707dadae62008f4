package constants

// 支付记录状态常量（封闭集合）
const (
	PaymentStatusPending    = "pending"
	PaymentStatusProcessing = "processing"
	PaymentStatusSucceeded  = "succeeded"
	PaymentStatusFailed     = "failed"
	PaymentStatusCanceled   = "canceled"
)

// 支付处理方（外部）意图状态常量
const (
	IntentStatusRequiresPaymentMethod = "requires_payment_method"
	IntentStatusRequiresConfirmation  = "requires_confirmation"
	IntentStatusRequiresAction        = "requires_action"
	IntentStatusProcessing            = "processing"
	IntentStatusSucceeded             = "succeeded"
	IntentStatusCanceled              = "canceled"
)

// 支付方式类型常量
const (
	PaymentMethodKindCard   = "card"
	PaymentMethodKindWallet = "wallet"
)

// 卡片拒付原因常量
const (
	CardDeclineDeclined          = "declined"
	CardDeclineInsufficientFunds = "insufficient_funds"
	CardDeclineExpired           = "expired"
	CardDeclineIncorrectCVC      = "incorrect_cvc"
	CardDeclineOther             = "other"
)

// 凭证模式常量
const (
	GatewayModeTest = "test"
	GatewayModeLive = "live"
)

// 部署环境常量
const (
	EnvironmentProduction  = "production"
	EnvironmentStaging     = "staging"
	EnvironmentDevelopment = "development"
)

// 支付记录 metadata 键
const (
	MetaKeyDeclineCode        = "declineCode"
	MetaKeyErrorType          = "errorType"
	MetaKeyErrorMessage       = "errorMessage"
	MetaKeyFailedAt           = "failedAt"
	MetaKeyRefundAmount       = "refundAmount"
	MetaKeyRefundReason       = "reason"
	MetaKeyRefundedAt         = "refundedAt"
	MetaKeyExternalStatus     = "externalStatus"
	MetaKeyPaymentMethodRef   = "paymentMethodRef"
	MetaKeyConfirmedAt        = "confirmedAt"
	MetaKeyReconciliationNote = "reconciliationNote"
)

// 异步队列与任务常量
const (
	QueueDefault                   = "default"
	QueueCritical                  = "critical"
	TaskPaymentReconciliationAlert = "payment:reconciliation_alert"
	TaskPaymentLedgerSync          = "payment:ledger_sync"
)

// 角色常量
const (
	RoleAdmin = "admin"
)
