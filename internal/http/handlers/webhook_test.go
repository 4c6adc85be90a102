package handlers

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/juicyfox/juicybot/internal/payments"
)

type fakeDispatcher struct {
	status int
	got    []byte
}

func (f *fakeDispatcher) Dispatch(_ context.Context, raw []byte) int {
	f.got = raw
	return f.status
}

type fakePayments struct {
	res payments.WebhookResult
	err error
}

func (f *fakePayments) HandleWebhook(context.Context, []byte) (payments.WebhookResult, error) {
	return f.res, f.err
}

func newRouter(h *Handler) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.POST("/webhook", h.TelegramWebhook)
	r.POST("/payments/cryptobot", h.CryptoWebhook)
	return r
}

func TestTelegramWebhook_StatusPassthrough(t *testing.T) {
	for _, status := range []int{http.StatusOK, http.StatusNoContent} {
		d := &fakeDispatcher{status: status}
		r := newRouter(New(d, &fakePayments{}))

		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader(`{"update_id":1}`))
		r.ServeHTTP(w, req)

		if w.Code != status {
			t.Fatalf("status = %d, want %d", w.Code, status)
		}
		if string(d.got) != `{"update_id":1}` {
			t.Fatalf("dispatcher got %q", d.got)
		}
	}
}

func TestCryptoWebhook_AlwaysOK(t *testing.T) {
	cases := []struct {
		name string
		p    *fakePayments
	}{
		{"processed", &fakePayments{res: payments.WebhookResult{
			Event:   payments.CanonicalEvent{InvoiceID: "inv1", Status: "paid"},
			Granted: true,
		}}},
		{"duplicate", &fakePayments{res: payments.WebhookResult{
			Event:     payments.CanonicalEvent{InvoiceID: "inv1", Status: "paid"},
			Duplicate: true,
		}}},
		{"rejected", &fakePayments{err: errors.New("no invoice in payload")}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := newRouter(New(&fakeDispatcher{status: http.StatusNoContent}, tc.p))

			w := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodPost, "/payments/cryptobot", strings.NewReader(`{}`))
			r.ServeHTTP(w, req)

			if w.Code != http.StatusOK {
				t.Fatalf("status = %d, want 200", w.Code)
			}
			if body := w.Body.String(); !strings.Contains(body, `"ok":true`) {
				t.Fatalf("body = %s", body)
			}
		})
	}
}
