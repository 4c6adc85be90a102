package payments

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/juicyfox/juicybot/internal/config"
	"github.com/juicyfox/juicybot/internal/domain"
	"github.com/juicyfox/juicybot/internal/repo"
)

type fakeGranter struct {
	events []CanonicalEvent
	err    error
}

func (f *fakeGranter) ProcessPaid(_ context.Context, ev CanonicalEvent) error {
	f.events = append(f.events, ev)
	return f.err
}

func newWebhookService(t *testing.T, granter *fakeGranter) (*Service, *gorm.DB) {
	t.Helper()
	db, err := repo.OpenSQLite(filepath.Join(t.TempDir(), "test.sqlite"))
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := repo.AutoMigrate(db); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	cfg := config.Config{
		PaymentProvider: "cryptobot",
		PaymentClaimTTL: 24 * time.Hour,
	}
	return NewService(db, cfg, granter, zerolog.Nop()), db
}

func paidBody(invoiceID string) []byte {
	return []byte(`{"invoice": {"invoice_id": ` + invoiceID + `, "status": "paid", "amount": "25", "asset": "USDT", "payload": "{\"user_id\": 7, \"plan_code\": \"vip_30d\"}"}}`)
}

func TestHandleWebhook_PaidGrantsOnce(t *testing.T) {
	granter := &fakeGranter{}
	svc, _ := newWebhookService(t, granter)
	ctx := context.Background()

	res, err := svc.HandleWebhook(ctx, paidBody("100"))
	if err != nil {
		t.Fatalf("first webhook: %v", err)
	}
	if res.Duplicate || !res.Granted {
		t.Fatalf("unexpected result: %+v", res)
	}
	if len(granter.events) != 1 || granter.events[0].InvoiceID != "100" {
		t.Fatalf("granter not invoked once: %+v", granter.events)
	}

	// Provider re-posts the same webhook.
	res, err = svc.HandleWebhook(ctx, paidBody("100"))
	if err != nil {
		t.Fatalf("duplicate webhook: %v", err)
	}
	if !res.Duplicate || res.Granted {
		t.Fatalf("duplicate not suppressed: %+v", res)
	}
	if len(granter.events) != 1 {
		t.Fatalf("duplicate reached the granter: %d calls", len(granter.events))
	}
}

func TestHandleWebhook_StringInvoiceIDGrants(t *testing.T) {
	granter := &fakeGranter{}
	svc, _ := newWebhookService(t, granter)
	ctx := context.Background()

	// Provider-defined ids are not always numeric.
	raw := []byte(`{"invoice":{"invoice_id":"inv1","status":"paid","amount":"25.00","currency":"USD","payload":"{\"user_id\":7,\"plan_code\":\"vip_30d\"}"}}`)

	res, err := svc.HandleWebhook(ctx, raw)
	if err != nil {
		t.Fatalf("string-id webhook: %v", err)
	}
	if !res.Granted || res.Event.InvoiceID != "inv1" {
		t.Fatalf("unexpected result: %+v", res)
	}
	if len(granter.events) != 1 || granter.events[0].InvoiceID != "inv1" {
		t.Fatalf("granter not invoked: %+v", granter.events)
	}

	res, err = svc.HandleWebhook(ctx, raw)
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	if !res.Duplicate || len(granter.events) != 1 {
		t.Fatalf("replay not suppressed: %+v", res)
	}
}

func TestHandleWebhook_ActiveDoesNotBlockPaid(t *testing.T) {
	granter := &fakeGranter{}
	svc, _ := newWebhookService(t, granter)
	ctx := context.Background()

	active := []byte(`{"invoice": {"invoice_id": 500, "status": "active", "amount": "25", "asset": "USDT"}}`)
	res, err := svc.HandleWebhook(ctx, active)
	if err != nil {
		t.Fatalf("active webhook: %v", err)
	}
	if res.Duplicate || res.Granted {
		t.Fatalf("active ping mishandled: %+v", res)
	}

	res, err = svc.HandleWebhook(ctx, paidBody("500"))
	if err != nil {
		t.Fatalf("paid webhook: %v", err)
	}
	if !res.Granted {
		t.Fatalf("paid after active must still grant: %+v", res)
	}
	if len(granter.events) != 1 {
		t.Fatalf("granter calls = %d", len(granter.events))
	}

	// Repeated active pings hit the per-status event index.
	res, err = svc.HandleWebhook(ctx, active)
	if err != nil {
		t.Fatalf("second active webhook: %v", err)
	}
	if !res.Duplicate {
		t.Fatalf("repeated active not deduplicated: %+v", res)
	}
}

func TestHandleWebhook_RecordsEventRow(t *testing.T) {
	svc, db := newWebhookService(t, &fakeGranter{})
	ctx := context.Background()

	if _, err := svc.HandleWebhook(ctx, paidBody("200")); err != nil {
		t.Fatalf("webhook: %v", err)
	}

	total, err := repo.SumPaidByUser(ctx, db, 7)
	if err != nil {
		t.Fatalf("sum: %v", err)
	}
	if !total.Equal(decimal.RequireFromString("25")) {
		t.Fatalf("event row missing or wrong: %s", total)
	}
}

func TestHandleWebhook_TerminalStatusClearsPendingInvoice(t *testing.T) {
	svc, db := newWebhookService(t, &fakeGranter{})
	ctx := context.Background()

	if err := repo.CreatePendingInvoice(ctx, db, domain.PendingInvoice{
		InvoiceID: "300", UserID: 7, PlanCode: "vip_30d",
	}); err != nil {
		t.Fatalf("seed pending: %v", err)
	}

	raw := []byte(`{"invoice": {"invoice_id": 300, "status": "expired", "amount": "25", "asset": "USDT"}}`)
	res, err := svc.HandleWebhook(ctx, raw)
	if err != nil {
		t.Fatalf("webhook: %v", err)
	}
	if res.Granted {
		t.Fatal("expired invoice must not grant")
	}
	if _, err := repo.GetPendingInvoice(ctx, db, "300"); err != repo.ErrNotFound {
		t.Fatalf("pending invoice not cleared: %v", err)
	}
}

func TestHandleWebhook_GrantFailureStillAcked(t *testing.T) {
	granter := &fakeGranter{err: context.DeadlineExceeded}
	svc, _ := newWebhookService(t, granter)

	res, err := svc.HandleWebhook(context.Background(), paidBody("400"))
	if err != nil {
		t.Fatalf("grant failure must not surface: %v", err)
	}
	if res.Granted {
		t.Fatal("failed grant reported as granted")
	}
}

func TestHandleWebhook_MalformedBody(t *testing.T) {
	svc, _ := newWebhookService(t, &fakeGranter{})

	if _, err := svc.HandleWebhook(context.Background(), []byte(`{"no": "invoice"}`)); err == nil {
		t.Fatal("expected normalize error")
	}
}
