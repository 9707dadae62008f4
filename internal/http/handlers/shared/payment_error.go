package shared

import (
	"errors"

	"github.com/tripnest/paycore/internal/http/response"
	"github.com/tripnest/paycore/internal/payment"

	"github.com/gin-gonic/gin"
)

const (
	msgPaymentUnavailable  = "payment system unavailable"
	msgPaymentUnconfirmed  = "payment could not be recorded; support has been notified"
	msgPaymentNotFound     = "payment not found"
	msgPaymentUpstream     = "payment processor request failed"
	msgPaymentInternal     = "payment request failed"
	logEventPaymentHandler = "payment_handler_error"
)

// mappedHandlerError 定义支付错误到接口错误响应的映射关系。message 为空时原样返回错误信息。
type mappedHandlerError struct {
	target  error
	code    int
	message string
}

var paymentErrorRules = []mappedHandlerError{
	{target: payment.ErrConfiguration, code: response.CodeServiceUnavailable, message: msgPaymentUnavailable},
	{target: payment.ErrAuthentication, code: response.CodeServiceUnavailable, message: msgPaymentUnavailable},
	{target: payment.ErrModeMismatch, code: response.CodeServiceUnavailable, message: msgPaymentUnavailable},
	{target: payment.ErrReconciliation, code: response.CodeBadGateway, message: msgPaymentUnconfirmed},
	{target: payment.ErrNotFound, code: response.CodeNotFound, message: msgPaymentNotFound},
	{target: payment.ErrConflict, code: response.CodeConflict},
	{target: payment.ErrUnknownExternalStatus, code: response.CodeBadGateway, message: msgPaymentUpstream},
	{target: payment.ErrGatewayRequestFailed, code: response.CodeBadGateway, message: msgPaymentUpstream},
	{target: payment.ErrGatewayResponseInvalid, code: response.CodeBadGateway, message: msgPaymentUpstream},
}

// RespondPaymentError 将支付错误分类映射为接口响应；运维类错误对调用方降级，完整信息只进日志。
func RespondPaymentError(c *gin.Context, err error) {
	log := RequestLog(c)

	var validationErr *payment.ValidationError
	if errors.As(err, &validationErr) {
		log.Infow(logEventPaymentHandler, "code", response.CodeBadRequest, "error", err)
		response.Error(c, response.CodeBadRequest, validationErr.Message)
		return
	}
	var cardErr *payment.CardError
	if errors.As(err, &cardErr) {
		log.Infow(logEventPaymentHandler, "code", response.CodeBadRequest, "decline_code", cardErr.Code, "error", err)
		message := cardErr.Message
		if message == "" {
			message = "card declined"
		}
		response.ErrorWithData(c, response.CodeBadRequest, message, gin.H{"decline_code": cardErr.Code})
		return
	}

	var warning *payment.ReconciliationWarning
	if errors.As(err, &warning) {
		log.Errorw(logEventPaymentHandler,
			"code", response.CodeBadGateway,
			"external_id", warning.ExternalID,
			"reservation_id", warning.ReservationID,
			"error", err,
		)
		response.Error(c, response.CodeBadGateway, msgPaymentUnconfirmed)
		return
	}

	for _, rule := range paymentErrorRules {
		if !errors.Is(err, rule.target) {
			continue
		}
		message := rule.message
		if message == "" {
			message = err.Error()
		}
		if rule.code >= response.CodeInternal {
			log.Errorw(logEventPaymentHandler, "code", rule.code, "error", err, "operator_action_required", payment.IsOperatorError(err))
		} else {
			log.Warnw(logEventPaymentHandler, "code", rule.code, "error", err)
		}
		response.Error(c, rule.code, message)
		return
	}

	log.Errorw(logEventPaymentHandler, "code", response.CodeInternal, "error", err)
	response.Error(c, response.CodeInternal, msgPaymentInternal)
}
