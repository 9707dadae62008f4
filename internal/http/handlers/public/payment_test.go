package public

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/tripnest/paycore/internal/config"
	"github.com/tripnest/paycore/internal/constants"
	"github.com/tripnest/paycore/internal/models"
	"github.com/tripnest/paycore/internal/payment"
	"github.com/tripnest/paycore/internal/provider"
	"github.com/tripnest/paycore/internal/queue"
	"github.com/tripnest/paycore/internal/repository"
	"github.com/tripnest/paycore/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
)

type handlerTestGateway struct {
	mu      sync.Mutex
	seq     int
	intents map[string]*payment.Intent
	confirm int
}

func newHandlerTestGateway() *handlerTestGateway {
	return &handlerTestGateway{intents: map[string]*payment.Intent{}}
}

func (g *handlerTestGateway) Mode() payment.Mode { return payment.ModeTest }

func (g *handlerTestGateway) MinimumAmount(string) int64 { return 50 }

func (g *handlerTestGateway) CreateIntent(_ context.Context, input payment.CreateIntentInput) (*payment.Intent, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.seq++
	id := fmt.Sprintf("pi_handler_%d", g.seq)
	intent := &payment.Intent{
		ExternalID:   id,
		ClientSecret: id + "_secret",
		Status:       "requires_payment_method",
		Amount:       input.Amount,
		Currency:     input.Currency,
	}
	g.intents[id] = intent
	copied := *intent
	return &copied, nil
}

func (g *handlerTestGateway) ConfirmIntent(_ context.Context, externalID, paymentMethodRef string) (*payment.Intent, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.confirm++
	intent, ok := g.intents[externalID]
	if !ok {
		return nil, fmt.Errorf("%w: no such intent", payment.ErrGatewayRequestFailed)
	}
	if paymentMethodRef == "pm_card_insufficient" {
		intent.Status = "requires_payment_method"
		return nil, payment.NewCardError("card_declined", "insufficient_funds", "Your card has insufficient funds.")
	}
	intent.Status = "succeeded"
	copied := *intent
	return &copied, nil
}

func (g *handlerTestGateway) RefundIntent(context.Context, payment.RefundInput) error { return nil }

func (g *handlerTestGateway) RetrieveIntent(_ context.Context, externalID string) (*payment.Intent, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	intent, ok := g.intents[externalID]
	if !ok {
		return nil, fmt.Errorf("%w: no such intent", payment.ErrGatewayRequestFailed)
	}
	copied := *intent
	return &copied, nil
}

func setupPublicPaymentHandlerTest(t *testing.T) (*gin.Engine, *handlerTestGateway, *gorm.DB) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	dsn := fmt.Sprintf("file:public_payment_handler_test_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite failed: %v", err)
	}
	if err := db.AutoMigrate(&models.PaymentRecord{}); err != nil {
		t.Fatalf("auto migrate failed: %v", err)
	}
	queueClient, err := queue.NewClient(nil)
	if err != nil {
		t.Fatalf("new queue client failed: %v", err)
	}

	cfg := &config.Config{}
	cfg.Server.Environment = "production"
	cfg.Payment.PublishableKey = "pk_test_handler"

	gateway := newHandlerTestGateway()
	paymentRepo := repository.NewPaymentRepository(db)
	h := New(&provider.Container{
		Config:      cfg,
		DB:          db,
		QueueClient: queueClient,
		PaymentConfig: service.PaymentConfigValidation{
			Valid:    true,
			Mode:     payment.ModeTest,
			Warnings: []string{"test credentials in production: no real charges will be made"},
		},
		PaymentRepo:    paymentRepo,
		PaymentGateway: gateway,
		PaymentService: service.NewPaymentService(gateway, paymentRepo, queueClient, service.RetryPolicy{}),
	})

	r := gin.New()
	r.GET("/healthz", h.Healthz)
	r.POST("/payments", h.CreatePayment)
	r.POST("/payments/confirm", h.ConfirmPayment)
	r.GET("/payments/status", h.GetPaymentStatus)
	return r, gateway, db
}

type envelope struct {
	StatusCode int                    `json:"status_code"`
	Msg        string                 `json:"msg"`
	Data       map[string]interface{} `json:"data"`
}

func doJSON(t *testing.T, r *gin.Engine, method, path, body string) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	var resp envelope
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal response failed: %v body=%s", err, w.Body.String())
	}
	return w, resp
}

func TestCreateConfirmAndStatus(t *testing.T) {
	r, _, _ := setupPublicPaymentHandlerTest(t)

	w, resp := doJSON(t, r, http.MethodPost, "/payments", `{"reservation_id":"R1","amount":5000,"currency":"usd"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("create status want 200 got %d body=%s", w.Code, w.Body.String())
	}
	if resp.Data["client_secret"] != "pi_handler_1_secret" || resp.Data["publishable_key"] != "pk_test_handler" {
		t.Fatalf("unexpected create data: %v", resp.Data)
	}
	if resp.Data["status"] != constants.PaymentStatusPending || resp.Data["reused"] != false {
		t.Fatalf("unexpected create status: %v", resp.Data)
	}

	w, resp = doJSON(t, r, http.MethodPost, "/payments", `{"reservation_id":"R1","amount":5000,"currency":"usd"}`)
	if w.Code != http.StatusOK || resp.Data["reused"] != true {
		t.Fatalf("identical request should reuse pending payment: %d %v", w.Code, resp.Data)
	}

	w, resp = doJSON(t, r, http.MethodPost, "/payments/confirm", `{"reservation_id":"R1","payment_method_ref":"pm_card_visa"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("confirm status want 200 got %d body=%s", w.Code, w.Body.String())
	}
	if resp.Data["status"] != constants.PaymentStatusSucceeded {
		t.Fatalf("confirm should succeed, got %v", resp.Data["status"])
	}
	if _, leaked := resp.Data["client_secret"]; leaked {
		t.Fatalf("payment view must not expose client secret")
	}

	w, resp = doJSON(t, r, http.MethodGet, "/payments/status?reservation_id=R1", "")
	if w.Code != http.StatusOK || resp.Data["status"] != constants.PaymentStatusSucceeded {
		t.Fatalf("status lookup unexpected: %d %v", w.Code, resp.Data)
	}
	if resp.Data["amount_display"] != "50.00 USD" {
		t.Fatalf("amount display want 50.00 USD got %v", resp.Data["amount_display"])
	}
}

func TestCreatePaymentValidation(t *testing.T) {
	r, gateway, _ := setupPublicPaymentHandlerTest(t)

	cases := []struct {
		name    string
		body    string
		wantMsg string
	}{
		{name: "missing fields", body: `{"reservation_id":"R2"}`, wantMsg: "reservation_id, amount and currency are required"},
		{name: "below minimum", body: `{"reservation_id":"R2","amount":25,"currency":"usd"}`, wantMsg: "Amount must be at least 50 cents"},
		{name: "bad json", body: `{"reservation_id":`, wantMsg: "reservation_id, amount and currency are required"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w, resp := doJSON(t, r, http.MethodPost, "/payments", tc.body)
			if w.Code != http.StatusBadRequest || resp.StatusCode != 400 {
				t.Fatalf("want 400 got http=%d code=%d", w.Code, resp.StatusCode)
			}
			if resp.Msg != tc.wantMsg {
				t.Fatalf("msg want %q got %q", tc.wantMsg, resp.Msg)
			}
		})
	}
	if gateway.seq != 0 {
		t.Fatalf("invalid requests must not reach the gateway, got %d intents", gateway.seq)
	}
}

func TestConfirmPaymentDeclined(t *testing.T) {
	r, _, db := setupPublicPaymentHandlerTest(t)

	if w, _ := doJSON(t, r, http.MethodPost, "/payments", `{"reservation_id":"R3","amount":5000,"currency":"usd"}`); w.Code != http.StatusOK {
		t.Fatalf("create status want 200 got %d", w.Code)
	}
	w, resp := doJSON(t, r, http.MethodPost, "/payments/confirm", `{"reservation_id":"R3","payment_method_ref":"pm_card_insufficient"}`)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("declined want 400 got %d", w.Code)
	}
	if resp.Data["decline_code"] != constants.CardDeclineInsufficientFunds {
		t.Fatalf("decline code want insufficient_funds got %v", resp.Data["decline_code"])
	}
	if resp.Msg != "Your card has insufficient funds." {
		t.Fatalf("unexpected decline message: %s", resp.Msg)
	}

	var stored models.PaymentRecord
	if err := db.Where("reservation_id = ?", "R3").First(&stored).Error; err != nil {
		t.Fatalf("load payment failed: %v", err)
	}
	if stored.Status != constants.PaymentStatusFailed {
		t.Fatalf("ledger status want failed got %s", stored.Status)
	}
}

func TestConfirmAndStatusNotFound(t *testing.T) {
	r, gateway, _ := setupPublicPaymentHandlerTest(t)

	w, _ := doJSON(t, r, http.MethodPost, "/payments/confirm", `{"reservation_id":"missing","payment_method_ref":"pm_card_visa"}`)
	if w.Code != http.StatusNotFound {
		t.Fatalf("confirm without payment want 404 got %d", w.Code)
	}
	if gateway.confirm != 0 {
		t.Fatalf("gateway confirm should not be called")
	}

	w, _ = doJSON(t, r, http.MethodGet, "/payments/status?reservation_id=missing", "")
	if w.Code != http.StatusNotFound {
		t.Fatalf("status without payment want 404 got %d", w.Code)
	}

	w, _ = doJSON(t, r, http.MethodGet, "/payments/status", "")
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status without reservation want 400 got %d", w.Code)
	}
}

func TestCreatePaymentConflictOnDifferentAmount(t *testing.T) {
	r, _, _ := setupPublicPaymentHandlerTest(t)

	if w, _ := doJSON(t, r, http.MethodPost, "/payments", `{"reservation_id":"R4","amount":5000,"currency":"usd"}`); w.Code != http.StatusOK {
		t.Fatalf("create status want 200 got %d", w.Code)
	}
	w, resp := doJSON(t, r, http.MethodPost, "/payments", `{"reservation_id":"R4","amount":6000,"currency":"usd"}`)
	if w.Code != http.StatusConflict || resp.StatusCode != 409 {
		t.Fatalf("different amount want 409 got http=%d code=%d", w.Code, resp.StatusCode)
	}
}

func TestHealthz(t *testing.T) {
	r, _, _ := setupPublicPaymentHandlerTest(t)

	w, resp := doJSON(t, r, http.MethodGet, "/healthz", "")
	if w.Code != http.StatusOK {
		t.Fatalf("healthz want 200 got %d body=%s", w.Code, w.Body.String())
	}
	if resp.Data["gateway_mode"] != string(payment.ModeTest) || resp.Data["environment"] != "production" {
		t.Fatalf("unexpected healthz data: %v", resp.Data)
	}
	warnings, _ := resp.Data["warnings"].([]interface{})
	if len(warnings) != 1 {
		t.Fatalf("expected one startup warning, got %v", resp.Data["warnings"])
	}
	checks, _ := resp.Data["checks"].(map[string]interface{})
	if checks["database"] != "ok" || checks["queue"] != "disabled" || checks["redis"] != "disabled" {
		t.Fatalf("unexpected checks: %v", checks)
	}
}
