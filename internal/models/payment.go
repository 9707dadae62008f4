package models

import (
	"time"

	"github.com/tripnest/paycore/internal/constants"
)

// PaymentRecord 支付账本记录，每次支付尝试一条，永不删除
type PaymentRecord struct {
	ID                uint      `gorm:"primarykey" json:"id"`                                                                              // 主键
	ReservationID     string    `gorm:"type:varchar(128);not null;index:idx_payment_records_reservation,priority:1" json:"reservation_id"` // 预订ID
	Amount            int64     `gorm:"not null" json:"amount"`                                                                            // 金额（最小货币单位）
	Currency          string    `gorm:"type:varchar(8);not null" json:"currency"`                                                          // 币种
	Status            string    `gorm:"type:varchar(32);not null;index" json:"status"`                                                     // 支付状态
	PaymentMethodKind string    `gorm:"type:varchar(32)" json:"payment_method_kind"`                                                       // 支付方式类型（card/wallet）
	ExternalReference string    `gorm:"type:varchar(255);not null;uniqueIndex" json:"external_reference"`                                  // 处理方意图ID
	ClientSecret      string    `gorm:"type:varchar(255)" json:"-"`                                                                        // 客户端确认令牌
	IdempotencyKey    string    `gorm:"type:varchar(255);index" json:"idempotency_key"`                                                    // 创建意图使用的幂等键
	Metadata          JSON      `gorm:"type:json" json:"metadata"`                                                                         // 附加信息（合并更新）
	CreatedAt         time.Time `gorm:"index:idx_payment_records_reservation,priority:2" json:"created_at"`                                // 创建时间
	UpdatedAt         time.Time `gorm:"index" json:"updated_at"`                                                                           // 更新时间
}

// TableName 指定表名
func (PaymentRecord) TableName() string {
	return "payment_records"
}

// IsActive 是否处于非终态
func (r *PaymentRecord) IsActive() bool {
	if r == nil {
		return false
	}
	return r.Status == constants.PaymentStatusPending || r.Status == constants.PaymentStatusProcessing
}

