package stripe

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/tripnest/paycore/internal/logger"
	"github.com/tripnest/paycore/internal/payment"

	"github.com/ecodeclub/ekit/retry"
)

var (
	ErrConfigInvalid   = errors.New("stripe config invalid")
	ErrRequestFailed   = errors.New("stripe request failed")
	ErrResponseInvalid = errors.New("stripe response invalid")
)

const (
	defaultAPIBaseURL         = "https://api.stripe.com"
	defaultTimeout            = 12 * time.Second
	defaultMinimumAmount      = 50
	defaultRetryInitial       = 200 * time.Millisecond
	defaultRetryMaxInterval   = 2 * time.Second
	defaultRetryMaxRetries    = 3
	similarObjectOtherModeMsg = "a similar object exists in"
)

// Config Stripe 渠道配置。
type Config struct {
	SecretKey          string
	PublishableKey     string
	APIBaseURL         string
	Timeout            time.Duration
	MinimumAmount      int64
	PaymentMethodTypes []string
	RetryInitial       time.Duration
	RetryMaxInterval   time.Duration
	RetryMaxRetries    int32
}

// Client Stripe PaymentIntents 适配器，实现 payment.Gateway。
type Client struct {
	cfg        Config
	mode       payment.Mode
	httpClient *http.Client
}

var _ payment.Gateway = (*Client)(nil)

// ValidateConfig 校验配置。
func ValidateConfig(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("%w: config is nil", ErrConfigInvalid)
	}
	if strings.TrimSpace(cfg.SecretKey) == "" {
		return fmt.Errorf("%w: secret_key is required", ErrConfigInvalid)
	}
	if _, ok := payment.DetectSecretKeyMode(cfg.SecretKey); !ok {
		return fmt.Errorf("%w: secret_key prefix is invalid", ErrConfigInvalid)
	}
	if _, err := url.ParseRequestURI(strings.TrimSpace(cfg.APIBaseURL)); err != nil {
		return fmt.Errorf("%w: api_base_url is invalid", ErrConfigInvalid)
	}
	return nil
}

// NewClient 创建适配器，构造时一次性识别凭证模式。
func NewClient(cfg Config) (*Client, error) {
	cfg.normalize()
	if err := ValidateConfig(&cfg); err != nil {
		return nil, mapStripeError(err)
	}
	mode, _ := payment.DetectSecretKeyMode(cfg.SecretKey)
	if mode == payment.ModeLive {
		logger.Warnw("payment_gateway_live_mode", "provider", "stripe", "api_base_url", cfg.APIBaseURL)
	} else {
		logger.Infow("payment_gateway_mode", "provider", "stripe", "mode", string(mode))
	}
	return &Client{
		cfg:        cfg,
		mode:       mode,
		httpClient: &http.Client{Timeout: cfg.Timeout},
	}, nil
}

// Mode 返回凭证模式
func (c *Client) Mode() payment.Mode {
	return c.mode
}

// MinimumAmount 返回处理方允许的最小金额（最小货币单位）。
// 配置值按两位小数币种计，零小数币种按主单位折算，至少为 1
func (c *Client) MinimumAmount(currency string) int64 {
	minimum := c.cfg.MinimumAmount
	if payment.CurrencyScale(currency) == 0 {
		minimum /= 100
		if minimum < 1 {
			minimum = 1
		}
	}
	return minimum
}

// CreateIntent 创建 PaymentIntent。
func (c *Client) CreateIntent(ctx context.Context, input payment.CreateIntentInput) (*payment.Intent, error) {
	if err := c.ready(); err != nil {
		return nil, err
	}
	reservationID := strings.TrimSpace(input.ReservationID)
	if reservationID == "" {
		return nil, payment.NewValidationError("reservation id is required")
	}
	currency, ok := payment.NormalizeCurrency(input.Currency)
	if !ok {
		return nil, payment.NewValidationError("currency must be a three-letter ISO code")
	}
	if input.Amount < c.MinimumAmount(currency) {
		return nil, payment.MinimumAmountError(c.MinimumAmount(currency), currency)
	}
	if strings.TrimSpace(input.IdempotencyKey) == "" {
		return nil, fmt.Errorf("%w: idempotency key is required for create", payment.ErrValidation)
	}

	form := url.Values{}
	form.Set("amount", strconv.FormatInt(input.Amount, 10))
	form.Set("currency", currency)
	form.Set("metadata[reservation_id]", reservationID)
	keys := make([]string, 0, len(input.Metadata))
	for key := range input.Metadata {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		if strings.TrimSpace(key) == "" || key == "reservation_id" {
			continue
		}
		form.Set("metadata["+key+"]", input.Metadata[key])
	}
	for _, pmType := range c.cfg.PaymentMethodTypes {
		form.Add("payment_method_types[]", pmType)
	}

	logger.Debugw("payment_gateway_create_intent",
		"reservation_id", reservationID,
		"amount", payment.FormatMinorAmount(input.Amount, currency),
		"currency", currency,
		"idempotency_key", input.IdempotencyKey,
	)
	raw, err := c.doRequest(ctx, http.MethodPost, "/v1/payment_intents", form, input.IdempotencyKey)
	if err != nil {
		return nil, err
	}
	intent, err := c.parseIntent(raw)
	if err != nil {
		return nil, err
	}
	if intent.ClientSecret == "" {
		return nil, fmt.Errorf("%w: missing client_secret", payment.ErrGatewayResponseInvalid)
	}
	return intent, nil
}

// ConfirmIntent 确认 PaymentIntent。幂等键由意图 ID 与支付方式派生，重复确认不会产生第二笔扣款。
func (c *Client) ConfirmIntent(ctx context.Context, externalID, paymentMethodRef string) (*payment.Intent, error) {
	if err := c.ready(); err != nil {
		return nil, err
	}
	externalID = strings.TrimSpace(externalID)
	paymentMethodRef = strings.TrimSpace(paymentMethodRef)
	if externalID == "" {
		return nil, payment.NewValidationError("external id is required")
	}
	if paymentMethodRef == "" {
		return nil, payment.NewValidationError("payment method is required")
	}
	form := url.Values{}
	form.Set("payment_method", paymentMethodRef)
	path := fmt.Sprintf("/v1/payment_intents/%s/confirm", url.PathEscape(externalID))
	raw, err := c.doRequest(ctx, http.MethodPost, path, form, ConfirmIdempotencyKey(externalID, paymentMethodRef))
	if err != nil {
		return nil, err
	}
	return c.parseIntent(raw)
}

// RefundIntent 对 PaymentIntent 发起退款。
func (c *Client) RefundIntent(ctx context.Context, input payment.RefundInput) error {
	if err := c.ready(); err != nil {
		return err
	}
	externalID := strings.TrimSpace(input.ExternalID)
	if externalID == "" {
		return payment.NewValidationError("external id is required")
	}
	if input.Amount < 0 {
		return payment.NewValidationError("refund amount must not be negative")
	}
	form := url.Values{}
	form.Set("payment_intent", externalID)
	if input.Amount > 0 {
		form.Set("amount", strconv.FormatInt(input.Amount, 10))
	}
	form.Set("reason", "requested_by_customer")
	if reason := strings.TrimSpace(input.Reason); reason != "" {
		form.Set("metadata[reason]", reason)
	}
	key := strings.TrimSpace(input.IdempotencyKey)
	if key == "" {
		key = RefundIdempotencyKey(externalID, input.Amount)
	}
	raw, err := c.doRequest(ctx, http.MethodPost, "/v1/refunds", form, key)
	if err != nil {
		return err
	}
	switch strings.ToLower(readString(raw, "status")) {
	case "failed", "canceled":
		return fmt.Errorf("%w: refund %s", payment.ErrConflict, readString(raw, "status"))
	}
	return nil
}

// RetrieveIntent 查询 PaymentIntent。只读调用，传输失败按指数退避有限重试。
func (c *Client) RetrieveIntent(ctx context.Context, externalID string) (*payment.Intent, error) {
	if err := c.ready(); err != nil {
		return nil, err
	}
	externalID = strings.TrimSpace(externalID)
	if externalID == "" {
		return nil, payment.NewValidationError("external id is required")
	}
	strategy, err := retry.NewExponentialBackoffRetryStrategy(c.cfg.RetryInitial, c.cfg.RetryMaxInterval, c.cfg.RetryMaxRetries)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", payment.ErrConfiguration, err)
	}
	path := fmt.Sprintf("/v1/payment_intents/%s", url.PathEscape(externalID))
	for {
		raw, err := c.doRequest(ctx, http.MethodGet, path, nil, "")
		if err == nil {
			return c.parseIntent(raw)
		}
		if !errors.Is(err, payment.ErrGatewayRequestFailed) {
			return nil, err
		}
		next, ok := strategy.Next()
		if !ok {
			return nil, err
		}
		logger.Debugw("payment_gateway_retrieve_retry", "external_id", externalID, "wait_ms", next.Milliseconds(), "error", err)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(next):
		}
	}
}

// ConfirmIdempotencyKey 确认请求的幂等键
func ConfirmIdempotencyKey(externalID, paymentMethodRef string) string {
	return "confirm:" + strings.TrimSpace(externalID) + ":" + strings.TrimSpace(paymentMethodRef)
}

// RefundIdempotencyKey 退款请求的幂等键
func RefundIdempotencyKey(externalID string, amount int64) string {
	return "refund:" + strings.TrimSpace(externalID) + ":" + strconv.FormatInt(amount, 10)
}

func (c *Client) ready() error {
	if c == nil || strings.TrimSpace(c.cfg.SecretKey) == "" || c.mode == "" {
		return fmt.Errorf("%w: stripe client not configured", payment.ErrConfiguration)
	}
	return nil
}

func (c *Client) parseIntent(raw map[string]interface{}) (*payment.Intent, error) {
	intent := &payment.Intent{
		ExternalID:   readString(raw, "id"),
		ClientSecret: readString(raw, "client_secret"),
		Status:       strings.ToLower(readString(raw, "status")),
		Amount:       readInt64(raw, "amount"),
		Currency:     strings.ToLower(readString(raw, "currency")),
		Livemode:     readBool(raw, "livemode"),
	}
	if intent.ExternalID == "" {
		return nil, fmt.Errorf("%w: missing payment intent id", payment.ErrGatewayResponseInvalid)
	}
	if _, ok := raw["livemode"]; ok && intent.Livemode != (c.mode == payment.ModeLive) {
		return nil, fmt.Errorf("%w: intent %s livemode=%t with %s credentials", payment.ErrModeMismatch, intent.ExternalID, intent.Livemode, c.mode)
	}
	return intent, nil
}

func (c *Config) normalize() {
	c.SecretKey = strings.TrimSpace(c.SecretKey)
	c.PublishableKey = strings.TrimSpace(c.PublishableKey)
	c.APIBaseURL = strings.TrimRight(strings.TrimSpace(c.APIBaseURL), "/")
	if c.APIBaseURL == "" {
		c.APIBaseURL = defaultAPIBaseURL
	}
	if c.Timeout <= 0 {
		c.Timeout = defaultTimeout
	}
	if c.MinimumAmount <= 0 {
		c.MinimumAmount = defaultMinimumAmount
	}
	if c.RetryInitial <= 0 {
		c.RetryInitial = defaultRetryInitial
	}
	if c.RetryMaxInterval <= 0 {
		c.RetryMaxInterval = defaultRetryMaxInterval
	}
	if c.RetryMaxRetries <= 0 {
		c.RetryMaxRetries = defaultRetryMaxRetries
	}
	if len(c.PaymentMethodTypes) == 0 {
		c.PaymentMethodTypes = []string{"card"}
	} else {
		normalized := make([]string, 0, len(c.PaymentMethodTypes))
		for _, item := range c.PaymentMethodTypes {
			trimmed := strings.ToLower(strings.TrimSpace(item))
			if trimmed == "" {
				continue
			}
			normalized = append(normalized, trimmed)
		}
		if len(normalized) == 0 {
			normalized = []string{"card"}
		}
		sort.Strings(normalized)
		c.PaymentMethodTypes = normalized
	}
}

func (c *Client) doRequest(ctx context.Context, method, path string, form url.Values, idempotencyKey string) (map[string]interface{}, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	endpoint := c.cfg.APIBaseURL + path
	var body io.Reader
	if form != nil {
		body = strings.NewReader(form.Encode())
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return nil, mapStripeError(fmt.Errorf("%w: build request failed", ErrRequestFailed))
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.SecretKey)
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	if idempotencyKey != "" {
		req.Header.Set("Idempotency-Key", idempotencyKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, mapStripeError(fmt.Errorf("%w: %v", ErrRequestFailed, err))
	}
	defer resp.Body.Close()
	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, mapStripeError(fmt.Errorf("%w: read response failed", ErrResponseInvalid))
	}
	raw, decodeErr := decodeRawMap(respBody)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, classifyErrorResponse(resp.StatusCode, raw)
	}
	if decodeErr != nil {
		return nil, mapStripeError(decodeErr)
	}
	return raw, nil
}

// classifyErrorResponse 将 Stripe 错误响应归类到统一错误分类
func classifyErrorResponse(statusCode int, raw map[string]interface{}) error {
	errRaw := readMap(raw, "error")
	errType := strings.ToLower(readString(errRaw, "type"))
	code := strings.ToLower(readString(errRaw, "code"))
	declineCode := strings.ToLower(readString(errRaw, "decline_code"))
	message := readString(errRaw, "message")

	switch {
	case strings.Contains(strings.ToLower(message), similarObjectOtherModeMsg):
		return fmt.Errorf("%w: %s", payment.ErrModeMismatch, message)
	case statusCode == http.StatusUnauthorized || errType == "authentication_error":
		return fmt.Errorf("%w: %s", payment.ErrAuthentication, message)
	case statusCode == http.StatusPaymentRequired || errType == "card_error":
		return payment.NewCardError(code, declineCode, message)
	case code == "amount_too_small" || code == "amount_too_large":
		return &payment.ValidationError{Message: message}
	case code == "payment_intent_unexpected_state" || code == "charge_already_refunded" ||
		code == "charge_disputed" || statusCode == http.StatusConflict || errType == "idempotency_error":
		return fmt.Errorf("%w: %s", payment.ErrConflict, message)
	case statusCode == http.StatusNotFound || code == "resource_missing":
		return fmt.Errorf("%w: %s", payment.ErrNotFound, message)
	case statusCode == http.StatusTooManyRequests || statusCode >= 500:
		return fmt.Errorf("%w: status %d: %s", payment.ErrGatewayRequestFailed, statusCode, message)
	case errType == "invalid_request_error":
		return &payment.ValidationError{Message: message}
	default:
		return fmt.Errorf("%w: status %d: %s", payment.ErrGatewayResponseInvalid, statusCode, message)
	}
}

// mapStripeError 将适配器内部错误映射到统一错误分类
func mapStripeError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrConfigInvalid):
		return fmt.Errorf("%w: %v", payment.ErrConfiguration, err)
	case errors.Is(err, ErrRequestFailed):
		return fmt.Errorf("%w: %v", payment.ErrGatewayRequestFailed, err)
	case errors.Is(err, ErrResponseInvalid):
		return fmt.Errorf("%w: %v", payment.ErrGatewayResponseInvalid, err)
	default:
		return err
	}
}

func decodeRawMap(body []byte) (map[string]interface{}, error) {
	var raw map[string]interface{}
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("%w: decode response failed", ErrResponseInvalid)
	}
	return raw, nil
}

func readString(raw map[string]interface{}, key string) string {
	if raw == nil || strings.TrimSpace(key) == "" {
		return ""
	}
	value, ok := raw[key]
	if !ok || value == nil {
		return ""
	}
	switch typed := value.(type) {
	case string:
		return strings.TrimSpace(typed)
	case json.Number:
		return strings.TrimSpace(typed.String())
	case float64:
		return strings.TrimSpace(strconv.FormatInt(int64(typed), 10))
	default:
		return ""
	}
}

func readMap(raw map[string]interface{}, key string) map[string]interface{} {
	if raw == nil {
		return nil
	}
	mapped, ok := raw[key].(map[string]interface{})
	if !ok {
		return nil
	}
	return mapped
}

func readBool(raw map[string]interface{}, key string) bool {
	if raw == nil {
		return false
	}
	value, ok := raw[key].(bool)
	return ok && value
}

func readInt64(raw map[string]interface{}, key string) int64 {
	if raw == nil || strings.TrimSpace(key) == "" {
		return 0
	}
	value, ok := raw[key]
	if !ok || value == nil {
		return 0
	}
	switch typed := value.(type) {
	case float64:
		return int64(typed)
	case json.Number:
		parsed, err := typed.Int64()
		if err != nil {
			return 0
		}
		return parsed
	case string:
		parsed, err := strconv.ParseInt(strings.TrimSpace(typed), 10, 64)
		if err != nil {
			return 0
		}
		return parsed
	default:
		return 0
	}
}
