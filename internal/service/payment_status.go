package service

import (
	"fmt"
	"strings"

	"github.com/tripnest/paycore/internal/constants"
	"github.com/tripnest/paycore/internal/payment"
)

// paymentTransitions 账本状态机，failed/canceled 为终态
var paymentTransitions = map[string]map[string]struct{}{
	constants.PaymentStatusPending: {
		constants.PaymentStatusProcessing: {},
		constants.PaymentStatusSucceeded:  {},
		constants.PaymentStatusFailed:     {},
		constants.PaymentStatusCanceled:   {},
	},
	constants.PaymentStatusProcessing: {
		constants.PaymentStatusSucceeded: {},
		constants.PaymentStatusFailed:    {},
	},
	constants.PaymentStatusSucceeded: {
		constants.PaymentStatusCanceled: {},
	},
	constants.PaymentStatusFailed:   {},
	constants.PaymentStatusCanceled: {},
}

// refundableStatuses 允许退款的状态，退款后统一落为 canceled
var refundableStatuses = []string{constants.PaymentStatusSucceeded, constants.PaymentStatusProcessing}

// activeStatuses 非终态集合
var activeStatuses = []string{constants.PaymentStatusPending, constants.PaymentStatusProcessing}

// externalStatusMapping 处理方状态到账本状态的完整映射，未列出的状态一律报错
var externalStatusMapping = map[string]string{
	constants.IntentStatusSucceeded:             constants.PaymentStatusSucceeded,
	constants.IntentStatusProcessing:            constants.PaymentStatusProcessing,
	constants.IntentStatusRequiresPaymentMethod: constants.PaymentStatusPending,
	constants.IntentStatusRequiresConfirmation:  constants.PaymentStatusPending,
	constants.IntentStatusRequiresAction:        constants.PaymentStatusPending,
	constants.IntentStatusCanceled:              constants.PaymentStatusCanceled,
}

// CanTransition 判断状态流转是否合法
func CanTransition(from, to string) bool {
	targets, ok := paymentTransitions[from]
	if !ok {
		return false
	}
	_, ok = targets[to]
	return ok
}

// CanRefund 判断当前状态是否允许退款
func CanRefund(status string) bool {
	return containsString(refundableStatuses, status)
}

// IsKnownPaymentStatus 判断是否为合法账本状态
func IsKnownPaymentStatus(status string) bool {
	_, ok := paymentTransitions[status]
	return ok
}

// MapExternalStatus 将处理方意图状态映射为账本状态
func MapExternalStatus(externalStatus string) (string, error) {
	status, ok := externalStatusMapping[strings.ToLower(strings.TrimSpace(externalStatus))]
	if !ok {
		return "", fmt.Errorf("%w: %q", payment.ErrUnknownExternalStatus, externalStatus)
	}
	return status, nil
}

func containsString(items []string, target string) bool {
	for _, item := range items {
		if item == target {
			return true
		}
	}
	return false
}
