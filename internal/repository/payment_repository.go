package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/tripnest/paycore/internal/constants"
	"github.com/tripnest/paycore/internal/models"
	"github.com/tripnest/paycore/internal/payment"

	"gorm.io/gorm"
)

var (
	// ErrLedgerDuplicate 外部引用已存在
	ErrLedgerDuplicate = errors.New("payment record external reference already exists")
	// ErrStatusGuard 条件写入被拒绝，当前状态不在预期集合内
	ErrStatusGuard = fmt.Errorf("%w: ledger status guard rejected", payment.ErrConflict)
)

// PaymentRepository 支付账本数据访问接口
type PaymentRepository interface {
	Create(ctx context.Context, record *models.PaymentRecord) error
	GetByID(ctx context.Context, id uint) (*models.PaymentRecord, error)
	GetByReservationID(ctx context.Context, reservationID string) (*models.PaymentRecord, error)
	GetByExternalReference(ctx context.Context, externalReference string) (*models.PaymentRecord, error)
	GetActiveByReservationID(ctx context.Context, reservationID string) (*models.PaymentRecord, error)
	CountByReservationID(ctx context.Context, reservationID string) (int64, error)
	UpdateStatus(ctx context.Context, id uint, expected []string, newStatus string, metadataDelta map[string]interface{}) (*models.PaymentRecord, error)
	ListAdmin(ctx context.Context, filter PaymentListFilter) ([]models.PaymentRecord, int64, error)
}

// GormPaymentRepository GORM 实现
type GormPaymentRepository struct {
	db  *gorm.DB
	now func() time.Time
}

// NewPaymentRepository 创建支付账本仓库
func NewPaymentRepository(db *gorm.DB) *GormPaymentRepository {
	return &GormPaymentRepository{db: db, now: time.Now}
}

// Create 创建支付记录，外部引用重复时返回 ErrLedgerDuplicate
func (r *GormPaymentRepository) Create(ctx context.Context, record *models.PaymentRecord) error {
	if record == nil {
		return errors.New("payment record is nil")
	}
	if strings.TrimSpace(record.ExternalReference) == "" {
		return errors.New("payment record external reference is required")
	}
	now := r.now()
	record.CreatedAt = now
	record.UpdatedAt = now
	if record.Metadata == nil {
		record.Metadata = models.JSON{}
	}
	if err := r.db.WithContext(ctx).Create(record).Error; err != nil {
		if isDuplicateKeyError(err) {
			return fmt.Errorf("%w: %s", ErrLedgerDuplicate, record.ExternalReference)
		}
		return err
	}
	return nil
}

// GetByID 根据 ID 获取支付记录
func (r *GormPaymentRepository) GetByID(ctx context.Context, id uint) (*models.PaymentRecord, error) {
	if id == 0 {
		return nil, nil
	}
	var record models.PaymentRecord
	if err := r.db.WithContext(ctx).First(&record, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &record, nil
}

// GetByReservationID 获取预订最近创建的支付记录
func (r *GormPaymentRepository) GetByReservationID(ctx context.Context, reservationID string) (*models.PaymentRecord, error) {
	reservationID = strings.TrimSpace(reservationID)
	if reservationID == "" {
		return nil, nil
	}
	return r.findLatest(r.db.WithContext(ctx).Where("reservation_id = ?", reservationID))
}

// GetActiveByReservationID 获取预订最近的非终态支付记录
func (r *GormPaymentRepository) GetActiveByReservationID(ctx context.Context, reservationID string) (*models.PaymentRecord, error) {
	reservationID = strings.TrimSpace(reservationID)
	if reservationID == "" {
		return nil, nil
	}
	return r.findLatest(r.db.WithContext(ctx).Where("reservation_id = ? AND status IN ?",
		reservationID,
		[]string{constants.PaymentStatusPending, constants.PaymentStatusProcessing},
	))
}

// GetByExternalReference 根据处理方意图ID获取支付记录
func (r *GormPaymentRepository) GetByExternalReference(ctx context.Context, externalReference string) (*models.PaymentRecord, error) {
	externalReference = strings.TrimSpace(externalReference)
	if externalReference == "" {
		return nil, nil
	}
	return r.findLatest(r.db.WithContext(ctx).Where("external_reference = ?", externalReference))
}

// CountByReservationID 统计预订的支付尝试次数
func (r *GormPaymentRepository) CountByReservationID(ctx context.Context, reservationID string) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.PaymentRecord{}).
		Where("reservation_id = ?", strings.TrimSpace(reservationID)).
		Count(&count).Error
	return count, err
}

// UpdateStatus 条件更新状态：仅当当前状态属于 expected 时写入，metadata 合并而非替换
func (r *GormPaymentRepository) UpdateStatus(ctx context.Context, id uint, expected []string, newStatus string, metadataDelta map[string]interface{}) (*models.PaymentRecord, error) {
	if id == 0 || len(expected) == 0 || strings.TrimSpace(newStatus) == "" {
		return nil, errors.New("invalid status update")
	}
	var updated *models.PaymentRecord
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var current models.PaymentRecord
		if err := tx.First(&current, id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("%w: payment record %d", payment.ErrNotFound, id)
			}
			return err
		}
		if !containsStatus(expected, current.Status) {
			return fmt.Errorf("%w: record %d is %s", ErrStatusGuard, id, current.Status)
		}
		merged := current.Metadata.Merge(metadataDelta)
		now := r.now()
		result := tx.Model(&models.PaymentRecord{}).
			Where("id = ? AND status IN ?", id, expected).
			Updates(map[string]interface{}{
				"status":     newStatus,
				"metadata":   merged,
				"updated_at": now,
			})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return fmt.Errorf("%w: record %d changed concurrently", ErrStatusGuard, id)
		}
		current.Status = newStatus
		current.Metadata = merged
		current.UpdatedAt = now
		updated = &current
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// ListAdmin 管理端账本列表
func (r *GormPaymentRepository) ListAdmin(ctx context.Context, filter PaymentListFilter) ([]models.PaymentRecord, int64, error) {
	query := r.db.WithContext(ctx).Model(&models.PaymentRecord{})

	if filter.ReservationID != "" {
		query = query.Where("reservation_id = ?", filter.ReservationID)
	}
	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}
	if filter.Currency != "" {
		query = query.Where("currency = ?", strings.ToLower(filter.Currency))
	}
	if filter.DeclineCode != "" {
		query = query.Where(jsonTextExpr(r.db, "metadata", constants.MetaKeyDeclineCode)+" = ?", filter.DeclineCode)
	}
	if filter.CreatedFrom != nil {
		query = query.Where("created_at >= ?", *filter.CreatedFrom)
	}
	if filter.CreatedTo != nil {
		query = query.Where("created_at <= ?", *filter.CreatedTo)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	query = applyPagination(query, filter.Page, filter.PageSize)

	var records []models.PaymentRecord
	if err := query.Order("created_at desc, id desc").Find(&records).Error; err != nil {
		return nil, 0, err
	}
	return records, total, nil
}

func (r *GormPaymentRepository) findLatest(query *gorm.DB) (*models.PaymentRecord, error) {
	var record models.PaymentRecord
	result := query.Order("created_at desc, id desc").Limit(1).Find(&record)
	if result.Error != nil {
		return nil, result.Error
	}
	if result.RowsAffected == 0 {
		return nil, nil
	}
	return &record, nil
}

func containsStatus(statuses []string, status string) bool {
	for _, item := range statuses {
		if item == status {
			return true
		}
	}
	return false
}
