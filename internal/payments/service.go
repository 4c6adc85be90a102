// Webhook-side payment processing: claim, normalize, record, settle, grant.
package payments

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/juicyfox/juicybot/internal/config"
	"github.com/juicyfox/juicybot/internal/dispatch"
	"github.com/juicyfox/juicybot/internal/domain"
	"github.com/juicyfox/juicybot/internal/metrics"
	"github.com/juicyfox/juicybot/internal/repo"
)

// Granter issues access for paid events. Implemented by the access package.
type Granter interface {
	ProcessPaid(ctx context.Context, ev CanonicalEvent) error
}

// WebhookResult summarizes one processed provider webhook.
type WebhookResult struct {
	Event     CanonicalEvent
	Duplicate bool
	Granted   bool
}

// Service handles inbound provider webhooks end to end.
type Service struct {
	db      *gorm.DB
	cfg     config.Config
	granter Granter
	log     zerolog.Logger
}

// NewService wires the webhook pipeline.
func NewService(db *gorm.DB, cfg config.Config, granter Granter, log zerolog.Logger) *Service {
	return &Service{db: db, cfg: cfg, granter: granter, log: log}
}

// HandleWebhook processes one raw provider webhook body. Duplicates are
// reported, not errored; the HTTP layer answers {ok:true} regardless.
func (s *Service) HandleWebhook(ctx context.Context, raw []byte) (WebhookResult, error) {
	ev, err := Normalize(s.cfg.PaymentProvider, raw)
	if err != nil {
		return WebhookResult{}, fmt.Errorf("normalize: %w", err)
	}
	metrics.PaymentEvents.WithLabelValues(ev.Status).Inc()

	// Terminal re-posts of the same invoice within the TTL are suppressed
	// before any row is written; the unique event index below backstops
	// claims that have already expired. Non-terminal statuses (an "active"
	// ping) never take the claim, so they cannot block the paid webhook
	// that follows them. Their only dedup is the event index.
	if terminalStatus(ev.Status) {
		key := dispatch.PaymentKey(ev.Provider, ev.InvoiceID)
		claimed, err := repo.Claim(ctx, s.db, key, s.cfg.PaymentClaimTTL)
		if err != nil {
			return WebhookResult{Event: ev}, fmt.Errorf("payment claim: %w", err)
		}
		if !claimed {
			return WebhookResult{Event: ev, Duplicate: true}, nil
		}
	}

	duplicate, err := repo.InsertPaymentEvent(ctx, s.db, domain.PaymentEvent{
		Provider:  ev.Provider,
		InvoiceID: ev.InvoiceID,
		Status:    ev.Status,
		Amount:    ev.Amount,
		Currency:  ev.Currency,
		Meta:      ev.MetaJSON(),
	})
	if err != nil {
		return WebhookResult{Event: ev}, fmt.Errorf("record payment event: %w", err)
	}
	if duplicate {
		return WebhookResult{Event: ev, Duplicate: true}, nil
	}

	// Terminal settlement clears the pending invoice either way.
	if terminalStatus(ev.Status) {
		if err := repo.DeletePendingInvoice(ctx, s.db, ev.InvoiceID); err != nil {
			s.log.Warn().Err(err).Str("invoice_id", ev.InvoiceID).Msg("pending invoice cleanup failed")
		}
	}

	if ev.Status != domain.PayStatusPaid {
		return WebhookResult{Event: ev}, nil
	}
	if err := s.granter.ProcessPaid(ctx, ev); err != nil {
		// The payment row is already durable; grant failures are operator
		// remediation, not webhook retries.
		s.log.Error().Err(err).
			Str("invoice_id", ev.InvoiceID).
			Msg("access grant failed for paid invoice")
		return WebhookResult{Event: ev}, nil
	}
	return WebhookResult{Event: ev, Granted: true}, nil
}

// terminalStatus reports whether a canonical status ends the invoice's life.
func terminalStatus(s string) bool {
	switch s {
	case domain.PayStatusPaid, domain.PayStatusExpired, domain.PayStatusCancelled:
		return true
	}
	return false
}
