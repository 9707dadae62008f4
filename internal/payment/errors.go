package payment

import (
	"errors"
	"fmt"
	"strings"

	"github.com/tripnest/paycore/internal/constants"
)

// 支付子系统统一错误分类，适配器与编排服务共用。
var (
	ErrConfiguration          = errors.New("payment configuration invalid")
	ErrValidation             = errors.New("payment validation failed")
	ErrCard                   = errors.New("payment card rejected")
	ErrAuthentication         = errors.New("payment gateway authentication failed")
	ErrModeMismatch           = errors.New("payment gateway mode mismatch")
	ErrNotFound               = errors.New("payment not found")
	ErrConflict               = errors.New("payment state conflict")
	ErrReconciliation         = errors.New("payment reconciliation required")
	ErrUnknownExternalStatus  = errors.New("unknown external payment status")
	ErrGatewayRequestFailed   = errors.New("payment gateway request failed")
	ErrGatewayResponseInvalid = errors.New("payment gateway response invalid")
)

// ValidationError 调用方可修正的输入错误，消息原样返回给调用方。
type ValidationError struct {
	Message string
}

// NewValidationError 创建输入校验错误
func NewValidationError(format string, args ...interface{}) *ValidationError {
	return &ValidationError{Message: fmt.Sprintf(format, args...)}
}

func (e *ValidationError) Error() string {
	return e.Message
}

// Is 支持 errors.Is(err, ErrValidation)
func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// CardError 卡片层面的拒付，用户可更换支付方式重试。
type CardError struct {
	Code        string
	DeclineCode string
	Message     string
}

// NewCardError 按处理方返回的错误码归类卡片错误
func NewCardError(code, declineCode, message string) *CardError {
	return &CardError{
		Code:        ClassifyCardDecline(code, declineCode),
		DeclineCode: strings.TrimSpace(declineCode),
		Message:     strings.TrimSpace(message),
	}
}

func (e *CardError) Error() string {
	if e.Message == "" {
		return "card error: " + e.Code
	}
	return "card error: " + e.Code + ": " + e.Message
}

// Is 支持 errors.Is(err, ErrCard)
func (e *CardError) Is(target error) bool {
	return target == ErrCard
}

// ReconciliationWarning 外部意图已创建但账本写入失败，必须送达运维通道。
type ReconciliationWarning struct {
	ExternalID    string
	ReservationID string
	Err           error
}

func (w *ReconciliationWarning) Error() string {
	msg := fmt.Sprintf("orphaned external intent %s for reservation %s", w.ExternalID, w.ReservationID)
	if w.Err == nil {
		return msg
	}
	return msg + ": " + w.Err.Error()
}

// Is 支持 errors.Is(err, ErrReconciliation)
func (w *ReconciliationWarning) Is(target error) bool {
	return target == ErrReconciliation
}

func (w *ReconciliationWarning) Unwrap() error {
	return w.Err
}

// ClassifyCardDecline 将处理方错误码收敛为封闭的拒付原因集合
func ClassifyCardDecline(code, declineCode string) string {
	for _, candidate := range []string{declineCode, code} {
		switch strings.ToLower(strings.TrimSpace(candidate)) {
		case "insufficient_funds":
			return constants.CardDeclineInsufficientFunds
		case "expired_card":
			return constants.CardDeclineExpired
		case "incorrect_cvc", "invalid_cvc":
			return constants.CardDeclineIncorrectCVC
		case "card_declined", "generic_decline", "do_not_honor", "declined":
			return constants.CardDeclineDeclined
		}
	}
	return constants.CardDeclineOther
}

// IsOperatorError 判断是否需要运维介入（对终端用户降级为"支付系统不可用"）
func IsOperatorError(err error) bool {
	return errors.Is(err, ErrConfiguration) || errors.Is(err, ErrAuthentication) || errors.Is(err, ErrModeMismatch)
}
