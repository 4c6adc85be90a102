// Package payments talks to the crypto payment provider and turns its
// webhook payloads into canonical events the rest of the backbone consumes.
package payments

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/juicyfox/juicybot/internal/domain"
)

// ErrNoInvoice is returned for webhook bodies without an invoice object.
var ErrNoInvoice = errors.New("payload has no invoice")

// CanonicalEvent is the provider-agnostic payment event shape.
type CanonicalEvent struct {
	Provider  string
	InvoiceID string
	Status    string
	Amount    decimal.Decimal
	Currency  string
	// Meta is the JSON object encoded into the invoice payload at creation
	// time (user_id, plan_code, ...). Empty object when undecodable.
	Meta map[string]any
}

// MetaJSON returns the canonical JSON encoding of Meta for persistence.
func (e CanonicalEvent) MetaJSON() string {
	if len(e.Meta) == 0 {
		return "{}"
	}
	b, err := json.Marshal(e.Meta)
	if err != nil {
		return "{}"
	}
	return string(b)
}

// MetaInt64 extracts an integer meta field; webhook JSON delivers numbers as
// float64 and sometimes strings.
func (e CanonicalEvent) MetaInt64(key string) (int64, bool) {
	switch v := e.Meta[key].(type) {
	case float64:
		return int64(v), true
	case json.Number:
		if i, err := v.Int64(); err == nil {
			return i, true
		}
	case string:
		var i int64
		if _, err := fmt.Sscan(v, &i); err == nil {
			return i, true
		}
	}
	return 0, false
}

// MetaString extracts a string meta field.
func (e CanonicalEvent) MetaString(key string) (string, bool) {
	s, ok := e.Meta[key].(string)
	return s, ok
}

// flexID is a provider-defined identifier that arrives either as a JSON
// string or as a bare number.
type flexID string

func (f *flexID) UnmarshalJSON(b []byte) error {
	s := string(b)
	if s == "null" {
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var v string
		if err := json.Unmarshal(b, &v); err != nil {
			return err
		}
		*f = flexID(v)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*f = flexID(n.String())
	return nil
}

// webhookInvoice mirrors the provider's invoice object. Field aliases cover
// both historical shapes ("invoice_id" vs "id", "currency" vs "asset").
type webhookInvoice struct {
	InvoiceID flexID `json:"invoice_id"`
	ID        flexID `json:"id"`
	Status    string `json:"status"`
	Amount    string `json:"amount"`
	Currency  string `json:"currency"`
	Asset     string `json:"asset"`
	Payload   string `json:"payload"`
}

type webhookBody struct {
	Invoice *webhookInvoice `json:"invoice"`
}

// Normalize converts a raw provider webhook body into a CanonicalEvent.
// The mapping is shape-idempotent: feeding the canonical form back through
// produces the same result.
func Normalize(provider string, raw []byte) (CanonicalEvent, error) {
	var body webhookBody
	if err := json.Unmarshal(raw, &body); err != nil {
		return CanonicalEvent{}, fmt.Errorf("decode webhook body: %w", err)
	}
	if body.Invoice == nil {
		return CanonicalEvent{}, ErrNoInvoice
	}
	inv := body.Invoice

	invoiceID := string(inv.InvoiceID)
	if invoiceID == "" {
		invoiceID = string(inv.ID)
	}
	if invoiceID == "" {
		return CanonicalEvent{}, errors.New("invoice id missing")
	}

	amount, err := decimal.NewFromString(strings.TrimSpace(inv.Amount))
	if err != nil {
		amount = decimal.Zero
	}

	meta := map[string]any{}
	if inv.Payload != "" {
		if err := json.Unmarshal([]byte(inv.Payload), &meta); err != nil {
			meta = map[string]any{}
		}
	}

	return CanonicalEvent{
		Provider:  provider,
		InvoiceID: invoiceID,
		Status:    canonicalStatus(inv.Status),
		Amount:    amount,
		Currency:  firstNonEmpty(inv.Currency, inv.Asset),
		Meta:      meta,
	}, nil
}

// canonicalStatus maps provider statuses onto the canonical set.
func canonicalStatus(s string) string {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "paid":
		return domain.PayStatusPaid
	case "expired":
		return domain.PayStatusExpired
	case "cancelled", "canceled":
		return domain.PayStatusCancelled
	case "active":
		return domain.PayStatusPending
	default:
		return domain.PayStatusUnknown
	}
}

func firstNonEmpty(a, b string) string {
	if a != "" {
		return a
	}
	return b
}
