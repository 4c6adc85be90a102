package dispatch

import (
	"strings"
	"testing"
)

func TestUpdateKey_UsesUpdateID(t *testing.T) {
	key := UpdateKey(42, []byte(`{"update_id": 1001, "message": {"text": "hi"}}`))
	if key != "telegram:42:1001" {
		t.Fatalf("unexpected key %q", key)
	}
}

func TestUpdateKey_PayloadFallbackIsStable(t *testing.T) {
	// Same object, different key order and whitespace.
	a := UpdateKey(42, []byte(`{"b": 2, "a": 1}`))
	b := UpdateKey(42, []byte(`{ "a": 1,   "b": 2 }`))
	if a != b {
		t.Fatalf("canonicalization failed: %q vs %q", a, b)
	}
	if !strings.HasPrefix(a, "telegram:42:payload:") {
		t.Fatalf("unexpected fallback key %q", a)
	}

	c := UpdateKey(42, []byte(`{"a": 1, "b": 3}`))
	if a == c {
		t.Fatal("distinct payloads collided")
	}
}

func TestUpdateKey_BotScoped(t *testing.T) {
	raw := []byte(`{"update_id": 7}`)
	if UpdateKey(1, raw) == UpdateKey(2, raw) {
		t.Fatal("keys must be scoped per bot")
	}
}

func TestPaymentKey(t *testing.T) {
	if got := PaymentKey("cryptobot", "inv9"); got != "cryptobot:inv9" {
		t.Fatalf("unexpected key %q", got)
	}
}
