package main

import (
	"fmt"
	"time"

	"github.com/tripnest/paycore/internal/config"
	"github.com/tripnest/paycore/internal/constants"
	"github.com/tripnest/paycore/internal/logger"
	"github.com/tripnest/paycore/internal/models"
	"github.com/tripnest/paycore/internal/service"
)

// 本地开发用的演示账本数据，外部意图ID为虚构值，不对应任何处理方对象
func main() {
	cfg := config.Load()
	logger.Init(cfg.Server.Mode, cfg.Log.ToLoggerOptions())
	stdLog := logger.StdLogger()
	if err := models.InitDB(cfg.Database.Driver, cfg.Database.DSN, models.DBPoolConfig{
		MaxOpenConns:           cfg.Database.Pool.MaxOpenConns,
		MaxIdleConns:           cfg.Database.Pool.MaxIdleConns,
		ConnMaxLifetimeSeconds: cfg.Database.Pool.ConnMaxLifetimeSeconds,
		ConnMaxIdleTimeSeconds: cfg.Database.Pool.ConnMaxIdleTimeSeconds,
	}, false); err != nil {
		stdLog.Fatalf("Failed to connect database: %v", err)
	}

	// 自动迁移
	if err := models.AutoMigrate(); err != nil {
		stdLog.Fatalf("Failed to migrate database: %v", err)
	}

	now := time.Now().UTC()
	records := []models.PaymentRecord{
		{
			ReservationID:     "resv-demo-1",
			Amount:            5000,
			Currency:          "usd",
			Status:            constants.PaymentStatusSucceeded,
			PaymentMethodKind: constants.PaymentMethodKindCard,
			Metadata: models.JSON{
				constants.MetaKeyExternalStatus: "succeeded",
				constants.MetaKeyConfirmedAt:    now.Add(-48 * time.Hour).Format(time.RFC3339),
			},
			CreatedAt: now.Add(-48 * time.Hour),
		},
		{
			ReservationID:     "resv-demo-2",
			Amount:            12000,
			Currency:          "eur",
			Status:            constants.PaymentStatusFailed,
			PaymentMethodKind: constants.PaymentMethodKindCard,
			Metadata: models.JSON{
				constants.MetaKeyDeclineCode:  constants.CardDeclineInsufficientFunds,
				constants.MetaKeyErrorType:    "card_error",
				constants.MetaKeyErrorMessage: "Your card has insufficient funds.",
				constants.MetaKeyFailedAt:     now.Add(-24 * time.Hour).Format(time.RFC3339),
			},
			CreatedAt: now.Add(-24 * time.Hour),
		},
		{
			ReservationID:     "resv-demo-3",
			Amount:            8000,
			Currency:          "usd",
			Status:            constants.PaymentStatusCanceled,
			PaymentMethodKind: constants.PaymentMethodKindWallet,
			Metadata: models.JSON{
				constants.MetaKeyRefundAmount: 8000,
				constants.MetaKeyRefundReason: "guest cancelled",
				constants.MetaKeyRefundedAt:   now.Add(-6 * time.Hour).Format(time.RFC3339),
			},
			CreatedAt: now.Add(-12 * time.Hour),
		},
		{
			ReservationID:     "resv-demo-4",
			Amount:            3000,
			Currency:          "gbp",
			Status:            constants.PaymentStatusPending,
			PaymentMethodKind: constants.PaymentMethodKindCard,
			Metadata: models.JSON{
				constants.MetaKeyExternalStatus: "requires_payment_method",
			},
			CreatedAt: now,
		},
	}

	for idx := range records {
		record := records[idx]
		record.ExternalReference = fmt.Sprintf("pi_demo_%s", record.ReservationID)
		record.IdempotencyKey = service.BuildIdempotencyKey(record.ReservationID, 1)
		record.UpdatedAt = record.CreatedAt

		var existing models.PaymentRecord
		result := models.DB.Where("external_reference = ?", record.ExternalReference).Limit(1).Find(&existing)
		if result.Error != nil {
			stdLog.Printf("Failed to query payment %s: %v", record.ExternalReference, result.Error)
			continue
		}
		if result.RowsAffected > 0 {
			stdLog.Printf("Payment already exists: %s", record.ExternalReference)
			continue
		}
		if err := models.DB.Create(&record).Error; err != nil {
			stdLog.Printf("Failed to create payment %s: %v", record.ExternalReference, err)
			continue
		}
		stdLog.Printf("Created payment: %s (%s)", record.ReservationID, record.Status)
	}

	stdLog.Printf("Seed completed")
}
