package public

import (
	"net/http"
	"strings"

	"github.com/tripnest/paycore/internal/cache"
	"github.com/tripnest/paycore/internal/http/response"
	"github.com/tripnest/paycore/internal/service"

	"github.com/gin-gonic/gin"
)

// CreatePaymentRequest 发起支付请求
type CreatePaymentRequest struct {
	ReservationID     string            `json:"reservation_id" binding:"required"`
	Amount            int64             `json:"amount" binding:"required"`
	Currency          string            `json:"currency" binding:"required"`
	PaymentMethodKind string            `json:"payment_method_kind"`
	Metadata          map[string]string `json:"metadata"`
}

// ConfirmPaymentRequest 确认支付请求
type ConfirmPaymentRequest struct {
	ReservationID    string `json:"reservation_id" binding:"required"`
	PaymentMethodRef string `json:"payment_method_ref" binding:"required"`
}

// PaymentStatusQuery 查询支付状态
type PaymentStatusQuery struct {
	ReservationID string `form:"reservation_id" binding:"required"`
}

// CreatePayment 为预订创建支付意图并返回客户端确认令牌
func (h *Handler) CreatePayment(c *gin.Context) {
	var req CreatePaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, response.CodeBadRequest, "reservation_id, amount and currency are required", nil)
		return
	}

	result, err := h.PaymentService.RequestPayment(c.Request.Context(), service.RequestPaymentInput{
		ReservationID:     req.ReservationID,
		Amount:            req.Amount,
		Currency:          req.Currency,
		PaymentMethodKind: req.PaymentMethodKind,
		Metadata:          req.Metadata,
	})
	if err != nil {
		respondPaymentError(c, err)
		return
	}

	resp := gin.H{
		"payment_id":      result.PaymentID,
		"client_secret":   result.ClientSecret,
		"publishable_key": strings.TrimSpace(h.Config.Payment.PublishableKey),
		"reused":          result.Reused,
	}
	if result.Record != nil {
		resp["status"] = result.Record.Status
		resp["amount"] = result.Record.Amount
		resp["currency"] = result.Record.Currency
	}
	response.Success(c, resp)
}

// ConfirmPayment 使用客户端收集的支付方式确认当前支付
func (h *Handler) ConfirmPayment(c *gin.Context) {
	var req ConfirmPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, response.CodeBadRequest, "reservation_id and payment_method_ref are required", nil)
		return
	}

	record, err := h.PaymentService.CompletePayment(c.Request.Context(), req.ReservationID, req.PaymentMethodRef)
	if err != nil {
		respondPaymentError(c, err)
		return
	}
	response.Success(c, paymentView(record))
}

// GetPaymentStatus 查询预订最近一次支付
func (h *Handler) GetPaymentStatus(c *gin.Context) {
	var query PaymentStatusQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		respondError(c, response.CodeBadRequest, "reservation_id is required", nil)
		return
	}

	record, err := h.PaymentService.GetStatus(c.Request.Context(), query.ReservationID)
	if err != nil {
		respondPaymentError(c, err)
		return
	}
	if record == nil {
		response.NotFound(c, "payment not found")
		return
	}
	response.Success(c, paymentView(record))
}

// Healthz 健康检查：处理方凭证模式、启动期告警与依赖连通性
func (h *Handler) Healthz(c *gin.Context) {
	status := "ok"
	checks := gin.H{}

	if sqlDB, err := h.DB.DB(); err != nil {
		status = "degraded"
		checks["database"] = err.Error()
	} else if err := sqlDB.PingContext(c.Request.Context()); err != nil {
		status = "degraded"
		checks["database"] = err.Error()
	} else {
		checks["database"] = "ok"
	}

	if err := cache.Ping(c.Request.Context()); err != nil {
		status = "degraded"
		checks["redis"] = err.Error()
	} else if cache.Enabled() {
		checks["redis"] = "ok"
	} else {
		checks["redis"] = "disabled"
	}

	if h.QueueClient.Enabled() {
		checks["queue"] = "ok"
	} else {
		checks["queue"] = "disabled"
	}

	warnings := h.PaymentConfig.Warnings
	if warnings == nil {
		warnings = []string{}
	}
	code := http.StatusOK
	if status != "ok" {
		code = http.StatusServiceUnavailable
	}
	c.JSON(code, response.Response{
		StatusCode: response.CodeOK,
		Msg:        status,
		Data: gin.H{
			"status":       status,
			"gateway_mode": h.PaymentService.GatewayMode(),
			"environment":  h.Config.Server.Environment,
			"warnings":     warnings,
			"checks":       checks,
		},
	})
}
