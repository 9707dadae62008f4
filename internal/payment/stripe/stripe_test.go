package stripe

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/tripnest/paycore/internal/constants"
	"github.com/tripnest/paycore/internal/payment"
)

func newTestClient(t *testing.T, secretKey string, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	client, err := NewClient(Config{
		SecretKey:        secretKey,
		PublishableKey:   "pk_test_123",
		APIBaseURL:       server.URL,
		Timeout:          2 * time.Second,
		RetryInitial:     time.Millisecond,
		RetryMaxInterval: 2 * time.Millisecond,
		RetryMaxRetries:  2,
	})
	if err != nil {
		t.Fatalf("new client failed: %v", err)
	}
	return client
}

func writeJSON(w http.ResponseWriter, status int, body map[string]interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func stripeError(errType, code, declineCode, message string) map[string]interface{} {
	return map[string]interface{}{
		"error": map[string]interface{}{
			"type":         errType,
			"code":         code,
			"decline_code": declineCode,
			"message":      message,
		},
	}
}

func TestNewClientDetectsMode(t *testing.T) {
	client, err := NewClient(Config{SecretKey: " sk_test_abc "})
	if err != nil {
		t.Fatalf("new client failed: %v", err)
	}
	if client.Mode() != payment.ModeTest {
		t.Fatalf("expected test mode, got %s", client.Mode())
	}
	if client.cfg.APIBaseURL != defaultAPIBaseURL {
		t.Fatalf("unexpected default api base url: %s", client.cfg.APIBaseURL)
	}
	if client.MinimumAmount("usd") != 50 {
		t.Fatalf("unexpected minimum amount: %d", client.MinimumAmount("usd"))
	}
	if client.MinimumAmount("jpy") != 1 {
		t.Fatalf("zero-decimal minimum should scale to major units, got %d", client.MinimumAmount("jpy"))
	}
	scaled, err := NewClient(Config{SecretKey: "sk_test_abc", MinimumAmount: 5000})
	if err != nil {
		t.Fatalf("new client failed: %v", err)
	}
	if scaled.MinimumAmount("eur") != 5000 || scaled.MinimumAmount("JPY") != 50 {
		t.Fatalf("unexpected scaled minimums: eur=%d jpy=%d", scaled.MinimumAmount("eur"), scaled.MinimumAmount("JPY"))
	}

	live, err := NewClient(Config{SecretKey: "rk_live_abc"})
	if err != nil {
		t.Fatalf("new live client failed: %v", err)
	}
	if live.Mode() != payment.ModeLive {
		t.Fatalf("expected live mode, got %s", live.Mode())
	}
}

func TestNewClientRejectsMissingOrMalformedKey(t *testing.T) {
	for _, key := range []string{"", "   ", "pk_test_abc", "sk_abc"} {
		if _, err := NewClient(Config{SecretKey: key}); !errors.Is(err, payment.ErrConfiguration) {
			t.Fatalf("key %q: expected configuration error, got %v", key, err)
		}
	}
}

func TestCreateIntentSendsIdempotencyKey(t *testing.T) {
	var gotKey, gotAuth, gotReservation, gotAmount string
	client := newTestClient(t, "sk_test_abc", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/v1/payment_intents" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		_ = r.ParseForm()
		gotKey = r.Header.Get("Idempotency-Key")
		gotAuth = r.Header.Get("Authorization")
		gotReservation = r.PostForm.Get("metadata[reservation_id]")
		gotAmount = r.PostForm.Get("amount")
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"id":            "pi_123",
			"client_secret": "pi_123_secret_abc",
			"status":        "requires_payment_method",
			"amount":        5000,
			"currency":      "usd",
			"livemode":      false,
		})
	})

	intent, err := client.CreateIntent(context.Background(), payment.CreateIntentInput{
		ReservationID:  "R1",
		Amount:         5000,
		Currency:       "USD",
		IdempotencyKey: "resv:R1:attempt:1",
	})
	if err != nil {
		t.Fatalf("create intent failed: %v", err)
	}
	if intent.ExternalID != "pi_123" || intent.ClientSecret != "pi_123_secret_abc" {
		t.Fatalf("unexpected intent: %+v", intent)
	}
	if intent.Status != constants.IntentStatusRequiresPaymentMethod {
		t.Fatalf("unexpected status: %s", intent.Status)
	}
	if gotKey != "resv:R1:attempt:1" {
		t.Fatalf("unexpected idempotency key: %s", gotKey)
	}
	if gotAuth != "Bearer sk_test_abc" {
		t.Fatalf("unexpected auth header: %s", gotAuth)
	}
	if gotReservation != "R1" || gotAmount != "5000" {
		t.Fatalf("unexpected form: reservation=%s amount=%s", gotReservation, gotAmount)
	}
}

func TestCreateIntentBelowMinimumMakesNoRequest(t *testing.T) {
	var calls int32
	client := newTestClient(t, "sk_test_abc", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		writeJSON(w, http.StatusOK, map[string]interface{}{"id": "pi_x"})
	})

	_, err := client.CreateIntent(context.Background(), payment.CreateIntentInput{
		ReservationID:  "R2",
		Amount:         10,
		Currency:       "usd",
		IdempotencyKey: "resv:R2:attempt:1",
	})
	var validationErr *payment.ValidationError
	if !errors.As(err, &validationErr) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if validationErr.Message != "Amount must be at least 50 cents" {
		t.Fatalf("unexpected message: %s", validationErr.Message)
	}
	if atomic.LoadInt32(&calls) != 0 {
		t.Fatalf("expected no request to processor")
	}
}

func TestCreateIntentModeMismatchFromLivemodeFlag(t *testing.T) {
	client := newTestClient(t, "sk_test_abc", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"id":            "pi_live",
			"client_secret": "secret",
			"status":        "requires_payment_method",
			"livemode":      true,
		})
	})
	_, err := client.CreateIntent(context.Background(), payment.CreateIntentInput{
		ReservationID:  "R1",
		Amount:         5000,
		Currency:       "usd",
		IdempotencyKey: "k",
	})
	if !errors.Is(err, payment.ErrModeMismatch) {
		t.Fatalf("expected mode mismatch, got %v", err)
	}
}

func TestConfirmIntentClassifiesErrors(t *testing.T) {
	cases := []struct {
		name   string
		status int
		body   map[string]interface{}
		check  func(err error) bool
	}{
		{
			name:   "card declined",
			status: http.StatusPaymentRequired,
			body:   stripeError("card_error", "card_declined", "generic_decline", "Your card was declined."),
			check: func(err error) bool {
				var cardErr *payment.CardError
				return errors.As(err, &cardErr) && cardErr.Code == constants.CardDeclineDeclined
			},
		},
		{
			name:   "insufficient funds",
			status: http.StatusPaymentRequired,
			body:   stripeError("card_error", "card_declined", "insufficient_funds", "Your card has insufficient funds."),
			check: func(err error) bool {
				var cardErr *payment.CardError
				return errors.As(err, &cardErr) && cardErr.Code == constants.CardDeclineInsufficientFunds
			},
		},
		{
			name:   "authentication",
			status: http.StatusUnauthorized,
			body:   stripeError("invalid_request_error", "", "", "Invalid API Key provided"),
			check:  func(err error) bool { return errors.Is(err, payment.ErrAuthentication) },
		},
		{
			name:   "mode mismatch",
			status: http.StatusNotFound,
			body: stripeError("invalid_request_error", "resource_missing", "",
				"No such payment_intent: 'pi_1'; a similar object exists in live mode, but a test mode key was used to make this request."),
			check: func(err error) bool { return errors.Is(err, payment.ErrModeMismatch) },
		},
		{
			name:   "missing",
			status: http.StatusNotFound,
			body:   stripeError("invalid_request_error", "resource_missing", "", "No such payment_intent: 'pi_1'"),
			check:  func(err error) bool { return errors.Is(err, payment.ErrNotFound) },
		},
		{
			name:   "unexpected state",
			status: http.StatusBadRequest,
			body:   stripeError("invalid_request_error", "payment_intent_unexpected_state", "", "already succeeded"),
			check:  func(err error) bool { return errors.Is(err, payment.ErrConflict) },
		},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			client := newTestClient(t, "sk_test_abc", func(w http.ResponseWriter, r *http.Request) {
				writeJSON(w, tc.status, tc.body)
			})
			_, err := client.ConfirmIntent(context.Background(), "pi_1", "pm_card")
			if err == nil || !tc.check(err) {
				t.Fatalf("unexpected error classification: %v", err)
			}
		})
	}
}

func TestConfirmIntentUsesDerivedIdempotencyKey(t *testing.T) {
	keys := make(chan string, 2)
	client := newTestClient(t, "sk_test_abc", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/payment_intents/pi_1/confirm" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		keys <- r.Header.Get("Idempotency-Key")
		writeJSON(w, http.StatusOK, map[string]interface{}{"id": "pi_1", "status": "succeeded", "livemode": false})
	})
	for i := 0; i < 2; i++ {
		intent, err := client.ConfirmIntent(context.Background(), "pi_1", "pm_ok")
		if err != nil {
			t.Fatalf("confirm failed: %v", err)
		}
		if intent.Status != constants.IntentStatusSucceeded {
			t.Fatalf("unexpected status: %s", intent.Status)
		}
	}
	first, second := <-keys, <-keys
	if first == "" || first != second {
		t.Fatalf("expected identical idempotency keys, got %q and %q", first, second)
	}
}

func TestRefundIntentConflict(t *testing.T) {
	client := newTestClient(t, "sk_test_abc", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusBadRequest, stripeError("invalid_request_error", "charge_already_refunded", "", "Charge has already been refunded."))
	})
	err := client.RefundIntent(context.Background(), payment.RefundInput{ExternalID: "pi_1", Amount: 2000})
	if !errors.Is(err, payment.ErrConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
}

func TestRefundIntentSendsAmountAndReason(t *testing.T) {
	var amount, reason, key string
	client := newTestClient(t, "sk_test_abc", func(w http.ResponseWriter, r *http.Request) {
		_ = r.ParseForm()
		amount = r.PostForm.Get("amount")
		reason = r.PostForm.Get("metadata[reason]")
		key = r.Header.Get("Idempotency-Key")
		writeJSON(w, http.StatusOK, map[string]interface{}{"id": "re_1", "status": "succeeded"})
	})
	if err := client.RefundIntent(context.Background(), payment.RefundInput{ExternalID: "pi_1", Amount: 2000, Reason: "partial"}); err != nil {
		t.Fatalf("refund failed: %v", err)
	}
	if amount != "2000" || reason != "partial" {
		t.Fatalf("unexpected refund form amount=%s reason=%s", amount, reason)
	}
	if key != RefundIdempotencyKey("pi_1", 2000) {
		t.Fatalf("unexpected idempotency key: %s", key)
	}
}

func TestRetrieveIntentRetriesTransientFailures(t *testing.T) {
	var calls int32
	client := newTestClient(t, "sk_test_abc", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			t.Errorf("unexpected method: %s", r.Method)
		}
		if atomic.AddInt32(&calls, 1) < 3 {
			writeJSON(w, http.StatusServiceUnavailable, stripeError("api_error", "", "", "try again"))
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{"id": "pi_1", "status": "processing", "livemode": false})
	})
	intent, err := client.RetrieveIntent(context.Background(), "pi_1")
	if err != nil {
		t.Fatalf("retrieve failed: %v", err)
	}
	if intent.Status != constants.IntentStatusProcessing {
		t.Fatalf("unexpected status: %s", intent.Status)
	}
	if atomic.LoadInt32(&calls) != 3 {
		t.Fatalf("expected 3 calls, got %d", calls)
	}
}

func TestRetrieveIntentGivesUpAfterMaxRetries(t *testing.T) {
	var calls int32
	client := newTestClient(t, "sk_test_abc", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		writeJSON(w, http.StatusBadGateway, stripeError("api_error", "", "", "down"))
	})
	_, err := client.RetrieveIntent(context.Background(), "pi_1")
	if !errors.Is(err, payment.ErrGatewayRequestFailed) {
		t.Fatalf("expected request failed, got %v", err)
	}
	if atomic.LoadInt32(&calls) != 3 {
		t.Fatalf("expected initial call plus 2 retries, got %d", calls)
	}
}
