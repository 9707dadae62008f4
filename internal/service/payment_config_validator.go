package service

import (
	"fmt"
	"strings"

	"github.com/tripnest/paycore/internal/config"
	"github.com/tripnest/paycore/internal/constants"
	"github.com/tripnest/paycore/internal/logger"
	"github.com/tripnest/paycore/internal/payment"
)

// PaymentConfigValidation 凭证校验结果
type PaymentConfigValidation struct {
	Valid    bool         `json:"valid"`
	Errors   []string     `json:"errors"`
	Warnings []string     `json:"warnings"`
	Mode     payment.Mode `json:"mode"`
}

// Err 校验失败时返回 ErrConfiguration
func (v PaymentConfigValidation) Err() error {
	if v.Valid {
		return nil
	}
	return fmt.Errorf("%w: %s", payment.ErrConfiguration, strings.Join(v.Errors, "; "))
}

// PaymentConfigValidator 启动期处理方凭证检查，失败时进程不接收流量
type PaymentConfigValidator struct {
	secretKey      string
	publishableKey string
	environment    string
}

// NewPaymentConfigValidator 创建凭证校验器
func NewPaymentConfigValidator(cfg config.PaymentConfig, environment string) *PaymentConfigValidator {
	return &PaymentConfigValidator{
		secretKey:      strings.TrimSpace(cfg.SecretKey),
		publishableKey: strings.TrimSpace(cfg.PublishableKey),
		environment:    strings.ToLower(strings.TrimSpace(environment)),
	}
}

// Validate 校验凭证存在性、前缀与模式一致性
func (v *PaymentConfigValidator) Validate() PaymentConfigValidation {
	result := PaymentConfigValidation{Errors: []string{}, Warnings: []string{}}

	var secretMode, publishableMode payment.Mode
	var secretOK, publishableOK bool
	if v.secretKey == "" {
		result.Errors = append(result.Errors, "payment secret key is missing")
	} else if secretMode, secretOK = payment.DetectSecretKeyMode(v.secretKey); !secretOK {
		result.Errors = append(result.Errors, "payment secret key must start with sk_test_, sk_live_, rk_test_ or rk_live_")
	}
	if v.publishableKey == "" {
		result.Errors = append(result.Errors, "payment publishable key is missing")
	} else if publishableMode, publishableOK = payment.DetectPublishableKeyMode(v.publishableKey); !publishableOK {
		result.Errors = append(result.Errors, "payment publishable key must start with pk_test_ or pk_live_")
	}

	if secretOK && publishableOK && secretMode != publishableMode {
		result.Errors = append(result.Errors, fmt.Sprintf(
			"payment credential mode mismatch: secret key is %s mode but publishable key is %s mode",
			secretMode, publishableMode,
		))
	}
	if secretOK {
		result.Mode = secretMode
	}

	if secretOK {
		isProduction := v.environment == constants.EnvironmentProduction
		switch {
		case isProduction && secretMode == payment.ModeTest:
			result.Warnings = append(result.Warnings, "production environment is using test mode payment credentials; no real charges will be made")
		case !isProduction && secretMode == payment.ModeLive:
			result.Warnings = append(result.Warnings, fmt.Sprintf("live mode payment credentials in %s environment; real funds will move", v.envLabel()))
		}
	}

	result.Valid = len(result.Errors) == 0
	return result
}

// ValidateAndLog 校验并输出日志，失败时返回 ErrConfiguration
func (v *PaymentConfigValidator) ValidateAndLog() (PaymentConfigValidation, error) {
	result := v.Validate()
	for _, warning := range result.Warnings {
		logger.Warnw("payment_config_warning", "warning", warning, "mode", string(result.Mode), "environment", v.envLabel())
	}
	if !result.Valid {
		logger.Errorw("payment_config_invalid", "errors", result.Errors, "environment", v.envLabel())
		return result, result.Err()
	}
	logger.Infow("payment_config_valid", "mode", string(result.Mode), "environment", v.envLabel())
	return result, nil
}

func (v *PaymentConfigValidator) envLabel() string {
	if v.environment == "" {
		return "unspecified"
	}
	return v.environment
}
