package relay

import (
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func TestComposeHeader(t *testing.T) {
	until := time.Date(2026, 10, 1, 12, 30, 0, 0, time.UTC)
	h := composeHeader("Lena", until, decimal.RequireFromString("35.5"), "de")
	want := "Lena • 2026-10-01 • $35.50 • 🇩🇪"
	if h != want {
		t.Fatalf("expected %q, got %q", want, h)
	}
}

func TestComposeHeader_NoSubscription(t *testing.T) {
	h := composeHeader("@anon", time.Time{}, decimal.Zero, "")
	if !strings.Contains(h, "no sub") || !strings.Contains(h, "$0.00") || !strings.Contains(h, "🌐") {
		t.Fatalf("unexpected header %q", h)
	}
}

func TestCountryFlag(t *testing.T) {
	cases := []struct {
		lang string
		want string
	}{
		{"de", "🇩🇪"},
		{"pt-BR", "🇧🇷"},
		{"en", "🇺🇸"},
		{"ru", "🇷🇺"},
		{"", "🌐"},
		{"???", "🌐"},
	}
	for _, tc := range cases {
		if got := countryFlag(tc.lang); got != tc.want {
			t.Fatalf("%q: expected %q, got %q", tc.lang, tc.want, got)
		}
	}
}

func TestHeaderMap_EvictsOldest(t *testing.T) {
	m, err := NewHeaderMap(2)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	m.Put(1, 100)
	m.Put(2, 200)
	m.Put(3, 300)

	if _, ok := m.Get(1); ok {
		t.Fatal("oldest entry should have been evicted")
	}
	if v, ok := m.Get(3); !ok || v != 300 {
		t.Fatalf("newest entry lost: %v %v", v, ok)
	}
	if m.Len() != 2 {
		t.Fatalf("expected len 2, got %d", m.Len())
	}
}
