// Idempotency key construction for external events.
//
// Update keys prefer the platform-assigned update_id; payloads without one
// fall back to a digest of the canonicalized body so retried deliveries of
// the same payload still collapse onto one key.
package dispatch

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// UpdateKey derives the idempotency key for a raw update body.
func UpdateKey(botID int64, raw []byte) string {
	var probe struct {
		UpdateID *int64 `json:"update_id"`
	}
	if err := json.Unmarshal(raw, &probe); err == nil && probe.UpdateID != nil {
		return fmt.Sprintf("telegram:%d:%d", botID, *probe.UpdateID)
	}
	sum := sha256.Sum256(canonicalJSON(raw))
	return fmt.Sprintf("telegram:%d:payload:%s", botID, hex.EncodeToString(sum[:]))
}

// PaymentKey derives the idempotency key for a provider invoice event.
func PaymentKey(provider, invoiceID string) string {
	return fmt.Sprintf("%s:%s", provider, invoiceID)
}

// canonicalJSON re-encodes raw with object keys sorted ascending and no
// insignificant whitespace. encoding/json already sorts map keys on marshal,
// so a decode/encode round trip is the canonical form. Bodies that fail to
// decode are hashed as-is.
func canonicalJSON(raw []byte) []byte {
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return raw
	}
	out, err := json.Marshal(v)
	if err != nil {
		return raw
	}
	return out
}
