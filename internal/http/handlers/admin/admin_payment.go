package admin

import (
	"encoding/csv"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/tripnest/paycore/internal/constants"
	handlershared "github.com/tripnest/paycore/internal/http/handlers/shared"
	"github.com/tripnest/paycore/internal/http/response"
	"github.com/tripnest/paycore/internal/models"
	"github.com/tripnest/paycore/internal/payment"
	"github.com/tripnest/paycore/internal/repository"
	"github.com/tripnest/paycore/internal/service"

	"github.com/gin-gonic/gin"
)

// RefundPaymentRequest 管理端退款请求，amount 省略或为 0 表示全额
type RefundPaymentRequest struct {
	Amount int64  `json:"amount"`
	Reason string `json:"reason"`
}

const adminPaymentExportBatchSize = 500

// RefundPayment 对成功的支付发起退款
func (h *Handler) RefundPayment(c *gin.Context) {
	operator, ok := getOperator(c)
	if !ok {
		return
	}
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		respondError(c, response.CodeBadRequest, "invalid payment id", nil)
		return
	}
	var req RefundPaymentRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			respondError(c, response.CodeBadRequest, "invalid refund request", nil)
			return
		}
	}

	record, err := h.PaymentService.Refund(c.Request.Context(), service.RefundInput{
		PaymentID: uint(id),
		Amount:    req.Amount,
		Reason:    req.Reason,
	})
	if err != nil {
		respondPaymentError(c, err)
		return
	}
	requestLog(c).Infow("admin_payment_refunded",
		"operator", operator,
		"payment_id", record.ID,
		"reservation_id", record.ReservationID,
		"refund_amount", record.Metadata[constants.MetaKeyRefundAmount],
	)
	response.Success(c, handlershared.NewPaymentView(record))
}

// GetAdminPayments 获取支付记录列表
func (h *Handler) GetAdminPayments(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "20"))
	page, pageSize = normalizePagination(page, pageSize)

	filter, err := buildAdminPaymentFilter(c, page, pageSize)
	if err != nil {
		respondError(c, response.CodeBadRequest, "invalid filter: "+err.Error(), nil)
		return
	}

	records, total, err := h.PaymentService.ListPayments(c.Request.Context(), filter)
	if err != nil {
		respondPaymentError(c, err)
		return
	}
	response.SuccessWithPage(c, handlershared.NewPaymentViews(records), response.BuildPagination(page, pageSize, total))
}

// GetAdminPayment 获取支付记录详情
func (h *Handler) GetAdminPayment(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		respondError(c, response.CodeBadRequest, "invalid payment id", nil)
		return
	}
	record, err := h.PaymentService.GetPayment(c.Request.Context(), uint(id))
	if err != nil {
		respondPaymentError(c, err)
		return
	}
	response.Success(c, handlershared.NewPaymentView(record))
}

// ExportAdminPayments 导出支付记录 CSV
func (h *Handler) ExportAdminPayments(c *gin.Context) {
	filter, err := buildAdminPaymentFilter(c, 1, adminPaymentExportBatchSize)
	if err != nil {
		respondError(c, response.CodeBadRequest, "invalid filter: "+err.Error(), nil)
		return
	}

	records, _, err := h.PaymentService.ListPayments(c.Request.Context(), filter)
	if err != nil {
		respondPaymentError(c, err)
		return
	}

	filename := fmt.Sprintf("payments_%s.csv", time.Now().Format("20060102_150405"))
	c.Header("Content-Type", "text/csv; charset=utf-8")
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=\"%s\"", filename))

	writer := csv.NewWriter(c.Writer)
	if err := writer.Write([]string{
		"id",
		"reservation_id",
		"status",
		"amount",
		"currency",
		"payment_method_kind",
		"external_reference",
		"decline_code",
		"refund_amount",
		"created_at",
		"updated_at",
	}); err != nil {
		requestLog(c).Errorw("admin_payment_export_header_write_failed", "error", err)
		return
	}

	page := 1
	for {
		if len(records) > 0 {
			if err := writeAdminPaymentCSVRows(writer, records); err != nil {
				requestLog(c).Errorw("admin_payment_export_rows_write_failed", "page", page, "error", err)
				return
			}
			writer.Flush()
			if err := writer.Error(); err != nil {
				requestLog(c).Errorw("admin_payment_export_flush_failed", "page", page, "error", err)
				return
			}
		}
		if len(records) < adminPaymentExportBatchSize {
			break
		}
		page++
		filter.Page = page
		records, _, err = h.PaymentService.ListPayments(c.Request.Context(), filter)
		if err != nil {
			requestLog(c).Errorw("admin_payment_export_batch_fetch_failed", "page", page, "error", err)
			return
		}
	}
}

func parseTimeNullable(raw string) (*time.Time, error) {
	if raw == "" {
		return nil, nil
	}
	parsed, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return nil, err
	}
	return &parsed, nil
}

func buildAdminPaymentFilter(c *gin.Context, page, pageSize int) (repository.PaymentListFilter, error) {
	createdFrom, err := parseTimeNullable(strings.TrimSpace(c.Query("created_from")))
	if err != nil {
		return repository.PaymentListFilter{}, err
	}
	createdTo, err := parseTimeNullable(strings.TrimSpace(c.Query("created_to")))
	if err != nil {
		return repository.PaymentListFilter{}, err
	}

	return repository.PaymentListFilter{
		Page:          page,
		PageSize:      pageSize,
		ReservationID: strings.TrimSpace(c.Query("reservation_id")),
		Status:        strings.TrimSpace(c.Query("status")),
		Currency:      strings.TrimSpace(c.Query("currency")),
		DeclineCode:   strings.TrimSpace(c.Query("decline_code")),
		CreatedFrom:   createdFrom,
		CreatedTo:     createdTo,
	}, nil
}

func writeAdminPaymentCSVRows(writer *csv.Writer, records []models.PaymentRecord) error {
	for _, record := range records {
		if err := writer.Write([]string{
			strconv.FormatUint(uint64(record.ID), 10),
			record.ReservationID,
			record.Status,
			payment.FormatMinorAmount(record.Amount, record.Currency),
			record.Currency,
			record.PaymentMethodKind,
			record.ExternalReference,
			metadataText(record.Metadata, constants.MetaKeyDeclineCode),
			metadataText(record.Metadata, constants.MetaKeyRefundAmount),
			record.CreatedAt.Format(time.RFC3339),
			record.UpdatedAt.Format(time.RFC3339),
		}); err != nil {
			return err
		}
	}
	return nil
}

func metadataText(metadata models.JSON, key string) string {
	value, ok := metadata[key]
	if !ok || value == nil {
		return ""
	}
	if number, isFloat := value.(float64); isFloat {
		return strconv.FormatFloat(number, 'f', -1, 64)
	}
	return fmt.Sprint(value)
}
