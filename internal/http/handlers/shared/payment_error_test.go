package shared

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/tripnest/paycore/internal/payment"

	"github.com/gin-gonic/gin"
)

type paymentErrorBody struct {
	StatusCode int                    `json:"status_code"`
	Msg        string                 `json:"msg"`
	Data       map[string]interface{} `json:"data"`
}

func respondForTest(t *testing.T, err error) (int, paymentErrorBody) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	RespondPaymentError(c, err)
	var body paymentErrorBody
	if decodeErr := json.Unmarshal(w.Body.Bytes(), &body); decodeErr != nil {
		t.Fatalf("unmarshal response failed: %v", decodeErr)
	}
	return w.Code, body
}

func TestRespondPaymentErrorMapping(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
		msg    string
	}{
		{name: "validation", err: payment.MinimumAmountError(50, "usd"), status: http.StatusBadRequest, msg: "Amount must be at least 50 cents"},
		{name: "card", err: payment.NewCardError("card_declined", "insufficient_funds", "Your card has insufficient funds."), status: http.StatusBadRequest, msg: "Your card has insufficient funds."},
		{name: "not found", err: fmt.Errorf("%w: payment 9", payment.ErrNotFound), status: http.StatusNotFound, msg: "payment not found"},
		{name: "conflict", err: fmt.Errorf("%w: payment 3 in status pending cannot be refunded", payment.ErrConflict), status: http.StatusConflict, msg: "payment state conflict: payment 3 in status pending cannot be refunded"},
		{name: "authentication", err: fmt.Errorf("%w: invalid api key sk_live_xxx", payment.ErrAuthentication), status: http.StatusServiceUnavailable, msg: "payment system unavailable"},
		{name: "mode mismatch", err: payment.ErrModeMismatch, status: http.StatusServiceUnavailable, msg: "payment system unavailable"},
		{name: "configuration", err: payment.ErrConfiguration, status: http.StatusServiceUnavailable, msg: "payment system unavailable"},
		{name: "reconciliation", err: &payment.ReconciliationWarning{ExternalID: "pi_1", ReservationID: "R1", Err: errors.New("disk full")}, status: http.StatusBadGateway, msg: msgPaymentUnconfirmed},
		{name: "gateway down", err: fmt.Errorf("%w: timeout", payment.ErrGatewayRequestFailed), status: http.StatusBadGateway, msg: msgPaymentUpstream},
		{name: "unknown", err: errors.New("boom"), status: http.StatusInternalServerError, msg: msgPaymentInternal},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			status, body := respondForTest(t, tc.err)
			if status != tc.status || body.StatusCode != tc.status {
				t.Fatalf("status want %d got http=%d body=%d", tc.status, status, body.StatusCode)
			}
			if body.Msg != tc.msg {
				t.Fatalf("message want %q got %q", tc.msg, body.Msg)
			}
		})
	}
}

func TestRespondPaymentErrorHidesOperatorDetail(t *testing.T) {
	_, body := respondForTest(t, fmt.Errorf("%w: invalid api key sk_live_secret", payment.ErrAuthentication))
	if strings.Contains(body.Msg, "sk_live") {
		t.Fatalf("operator detail leaked to caller: %s", body.Msg)
	}
}

func TestRespondPaymentErrorCardDeclineCode(t *testing.T) {
	_, body := respondForTest(t, payment.NewCardError("expired_card", "", ""))
	if body.Data["decline_code"] != "expired" {
		t.Fatalf("expected decline code, got %+v", body.Data)
	}
	if body.Msg != "card declined" {
		t.Fatalf("unexpected message: %s", body.Msg)
	}
}
