package shared

import (
	"strings"
	"time"

	"github.com/tripnest/paycore/internal/models"
	"github.com/tripnest/paycore/internal/payment"
)

// PaymentView 对外展示的账本记录，不含 client_secret
type PaymentView struct {
	ID                uint                   `json:"id"`
	ReservationID     string                 `json:"reservation_id"`
	Amount            int64                  `json:"amount"`
	AmountDisplay     string                 `json:"amount_display"`
	Currency          string                 `json:"currency"`
	Status            string                 `json:"status"`
	PaymentMethodKind string                 `json:"payment_method_kind"`
	ExternalReference string                 `json:"external_reference"`
	Metadata          map[string]interface{} `json:"metadata"`
	CreatedAt         time.Time              `json:"created_at"`
	UpdatedAt         time.Time              `json:"updated_at"`
}

// NewPaymentView 转换账本记录
func NewPaymentView(record *models.PaymentRecord) *PaymentView {
	if record == nil {
		return nil
	}
	metadata := map[string]interface{}{}
	for key, value := range record.Metadata {
		metadata[key] = value
	}
	return &PaymentView{
		ID:                record.ID,
		ReservationID:     record.ReservationID,
		Amount:            record.Amount,
		AmountDisplay:     payment.FormatMinorAmount(record.Amount, record.Currency) + " " + strings.ToUpper(record.Currency),
		Currency:          record.Currency,
		Status:            record.Status,
		PaymentMethodKind: record.PaymentMethodKind,
		ExternalReference: record.ExternalReference,
		Metadata:          metadata,
		CreatedAt:         record.CreatedAt,
		UpdatedAt:         record.UpdatedAt,
	}
}

// NewPaymentViews 批量转换
func NewPaymentViews(records []models.PaymentRecord) []*PaymentView {
	views := make([]*PaymentView, 0, len(records))
	for idx := range records {
		views = append(views, NewPaymentView(&records[idx]))
	}
	return views
}
