package repository

import "time"

// PaymentListFilter 查询账本列表的过滤条件
type PaymentListFilter struct {
	Page          int
	PageSize      int
	ReservationID string
	Status        string
	Currency      string
	DeclineCode   string
	CreatedFrom   *time.Time
	CreatedTo     *time.Time
}
