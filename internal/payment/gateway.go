package payment

import (
	"context"
	"strings"

	"github.com/tripnest/paycore/internal/constants"
)

// Mode 凭证模式（test/live）
type Mode string

const (
	ModeTest Mode = constants.GatewayModeTest
	ModeLive Mode = constants.GatewayModeLive
)

// CreateIntentInput 创建支付意图输入
type CreateIntentInput struct {
	ReservationID  string
	Amount         int64
	Currency       string
	IdempotencyKey string
	Metadata       map[string]string
}

// RefundInput 退款输入，Amount 为 0 表示全额退款
type RefundInput struct {
	ExternalID     string
	Amount         int64
	Reason         string
	IdempotencyKey string
}

// Intent 外部支付意图快照
type Intent struct {
	ExternalID   string
	ClientSecret string
	Status       string
	Amount       int64
	Currency     string
	Livemode     bool
}

// Gateway 外部支付处理方的唯一接入点。
// 变更类调用（Create/Confirm/Refund）不得在没有幂等键的情况下盲目重试。
type Gateway interface {
	Mode() Mode
	MinimumAmount(currency string) int64
	CreateIntent(ctx context.Context, input CreateIntentInput) (*Intent, error)
	ConfirmIntent(ctx context.Context, externalID, paymentMethodRef string) (*Intent, error)
	RefundIntent(ctx context.Context, input RefundInput) error
	RetrieveIntent(ctx context.Context, externalID string) (*Intent, error)
}

// DetectSecretKeyMode 根据密钥前缀识别模式（sk_/rk_）
func DetectSecretKeyMode(key string) (Mode, bool) {
	key = strings.TrimSpace(key)
	switch {
	case strings.HasPrefix(key, "sk_test_"), strings.HasPrefix(key, "rk_test_"):
		return ModeTest, true
	case strings.HasPrefix(key, "sk_live_"), strings.HasPrefix(key, "rk_live_"):
		return ModeLive, true
	default:
		return "", false
	}
}

// DetectPublishableKeyMode 根据公钥前缀识别模式（pk_）
func DetectPublishableKeyMode(key string) (Mode, bool) {
	key = strings.TrimSpace(key)
	switch {
	case strings.HasPrefix(key, "pk_test_"):
		return ModeTest, true
	case strings.HasPrefix(key, "pk_live_"):
		return ModeLive, true
	default:
		return "", false
	}
}
