package payment

import (
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
)

var currencyCodePattern = regexp.MustCompile(`^[a-z]{3}$`)

var zeroDecimalCurrencies = map[string]struct{}{
	"BIF": {},
	"CLP": {},
	"DJF": {},
	"GNF": {},
	"JPY": {},
	"KMF": {},
	"KRW": {},
	"MGA": {},
	"PYG": {},
	"RWF": {},
	"UGX": {},
	"VND": {},
	"VUV": {},
	"XAF": {},
	"XOF": {},
	"XPF": {},
}

// NormalizeCurrency 统一为小写 ISO 币种代码，非法时返回 false
func NormalizeCurrency(currency string) (string, bool) {
	normalized := strings.ToLower(strings.TrimSpace(currency))
	return normalized, currencyCodePattern.MatchString(normalized)
}

// CurrencyScale 返回币种最小单位的小数位数
func CurrencyScale(currency string) int {
	upper := strings.ToUpper(strings.TrimSpace(currency))
	if _, ok := zeroDecimalCurrencies[upper]; ok {
		return 0
	}
	return 2
}

// FormatMinorAmount 将最小货币单位格式化为可读金额
func FormatMinorAmount(minor int64, currency string) string {
	scale := int32(CurrencyScale(currency))
	return decimal.NewFromInt(minor).Shift(-scale).StringFixed(scale)
}

// MinimumAmountError 生成最小金额校验错误
func MinimumAmountError(minimum int64, currency string) *ValidationError {
	if CurrencyScale(currency) == 2 {
		return NewValidationError("Amount must be at least %d cents", minimum)
	}
	return NewValidationError("Amount must be at least %s %s", FormatMinorAmount(minimum, currency), strings.ToUpper(strings.TrimSpace(currency)))
}
