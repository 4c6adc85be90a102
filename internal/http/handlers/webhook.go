// Package handlers provides the HTTP handlers for the webhook ingress and the
// health probes.
//
// Handlers are transport-thin: they read the raw body, hand it to the
// dispatcher or payment service, and translate the result into a status code.
// Both webhook endpoints acknowledge everything they can parse; a 5xx answer
// would only make Telegram or the payment provider re-deliver a body that
// already failed, so delivery errors are absorbed here and surfaced through
// logs and metrics instead.
package handlers

import (
	"context"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/juicyfox/juicybot/internal/http/middleware"
	"github.com/juicyfox/juicybot/internal/payments"
)

// UpdateDispatcher consumes raw Telegram update bodies.
type UpdateDispatcher interface {
	Dispatch(ctx context.Context, raw []byte) int
}

// PaymentWebhook consumes raw payment-provider webhook bodies.
type PaymentWebhook interface {
	HandleWebhook(ctx context.Context, raw []byte) (payments.WebhookResult, error)
}

// Handler bundles the webhook endpoints and their dependencies.
type Handler struct {
	dispatcher UpdateDispatcher
	payments   PaymentWebhook
}

// New constructs the handler set.
func New(d UpdateDispatcher, p PaymentWebhook) *Handler {
	return &Handler{dispatcher: d, payments: p}
}

// TelegramWebhook handles POST /webhook. The dispatcher decides the status,
// which is always 200 or 204.
func (h *Handler) TelegramWebhook(c *gin.Context) {
	raw, err := io.ReadAll(c.Request.Body)
	if err != nil {
		// Oversized or broken body. Acknowledge so Telegram drops the update.
		middleware.LoggerFrom(c).Warn().Err(err).Msg("webhook body read failed")
		c.Status(http.StatusOK)
		return
	}
	c.Status(h.dispatcher.Dispatch(c.Request.Context(), raw))
}

// CryptoWebhook handles POST /payments/cryptobot. It always answers
// 200 {"ok":true}: the provider retries on anything else, and the idempotency
// claim plus the unique event index make retries harmless anyway.
func (h *Handler) CryptoWebhook(c *gin.Context) {
	raw, err := io.ReadAll(c.Request.Body)
	if err != nil {
		middleware.LoggerFrom(c).Warn().Err(err).Msg("payment webhook body read failed")
		c.JSON(http.StatusOK, gin.H{"ok": true})
		return
	}

	res, err := h.payments.HandleWebhook(c.Request.Context(), raw)
	lg := middleware.LoggerFrom(c)
	switch {
	case err != nil:
		lg.Warn().Err(err).Msg("payment webhook rejected")
	case res.Duplicate:
		lg.Info().Str("invoice_id", res.Event.InvoiceID).Msg("payment webhook duplicate")
	default:
		lg.Info().
			Str("invoice_id", res.Event.InvoiceID).
			Str("status", res.Event.Status).
			Bool("granted", res.Granted).
			Msg("payment webhook processed")
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}
