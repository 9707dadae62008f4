//go:build integration
// +build integration

package repository

import (
	"context"
	"errors"
	"os"
	"strings"
	"testing"

	"github.com/tripnest/paycore/internal/constants"
	"github.com/tripnest/paycore/internal/models"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

// setupPostgresIntegrationDB 初始化 PostgreSQL 集成测试数据库。
func setupPostgresIntegrationDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := strings.TrimSpace(os.Getenv("TEST_POSTGRES_DSN"))
	if dsn == "" {
		t.Skip("skip postgres integration test: TEST_POSTGRES_DSN is empty")
	}

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open postgres failed: %v", err)
	}

	_ = db.Migrator().DropTable(&models.PaymentRecord{})
	if err := db.AutoMigrate(&models.PaymentRecord{}); err != nil {
		t.Fatalf("migrate postgres models failed: %v", err)
	}

	t.Cleanup(func() {
		_ = db.Migrator().DropTable(&models.PaymentRecord{})
		sqlDB, err := db.DB()
		if err == nil {
			_ = sqlDB.Close()
		}
	})

	return db
}

func TestPostgresPaymentLedger(t *testing.T) {
	db := setupPostgresIntegrationDB(t)
	repo := NewPaymentRepository(db)
	ctx := context.Background()

	record := &models.PaymentRecord{
		ReservationID:     "PG-R1",
		Amount:            5000,
		Currency:          "usd",
		Status:            constants.PaymentStatusPending,
		ExternalReference: "pi_pg_1",
		ClientSecret:      "pi_pg_1_secret",
	}
	if err := repo.Create(ctx, record); err != nil {
		t.Fatalf("create record failed: %v", err)
	}

	duplicate := *record
	duplicate.ID = 0
	if err := repo.Create(ctx, &duplicate); !errors.Is(err, ErrLedgerDuplicate) {
		t.Fatalf("expected duplicate error, got %v", err)
	}

	if _, err := repo.UpdateStatus(ctx, record.ID,
		[]string{constants.PaymentStatusPending},
		constants.PaymentStatusFailed,
		map[string]interface{}{constants.MetaKeyDeclineCode: constants.CardDeclineExpired},
	); err != nil {
		t.Fatalf("update status failed: %v", err)
	}

	rows, total, err := repo.ListAdmin(ctx, PaymentListFilter{DeclineCode: constants.CardDeclineExpired})
	if err != nil {
		t.Fatalf("list by decline code failed: %v", err)
	}
	if total != 1 || len(rows) != 1 || rows[0].ID != record.ID {
		t.Fatalf("decline filter want 1 got total=%d len=%d", total, len(rows))
	}
}
