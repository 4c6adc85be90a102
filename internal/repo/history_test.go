package repo

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/juicyfox/juicybot/internal/domain"
)

func TestBumpStreak(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	day := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	if err := BumpStreak(ctx, db, 7, day); err != nil {
		t.Fatalf("first bump: %v", err)
	}
	s, err := GetStreak(ctx, db, 7)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if s.Days != 1 || s.LastDay != "2026-03-10" {
		t.Fatalf("unexpected streak: %+v", s)
	}

	// Same day is a no-op.
	if err := BumpStreak(ctx, db, 7, day.Add(3*time.Hour)); err != nil {
		t.Fatalf("same-day bump: %v", err)
	}
	s, _ = GetStreak(ctx, db, 7)
	if s.Days != 1 {
		t.Fatalf("same-day bump changed streak: %+v", s)
	}

	// Next day extends.
	if err := BumpStreak(ctx, db, 7, day.AddDate(0, 0, 1)); err != nil {
		t.Fatalf("next-day bump: %v", err)
	}
	s, _ = GetStreak(ctx, db, 7)
	if s.Days != 2 {
		t.Fatalf("expected streak 2, got %+v", s)
	}

	// A gap resets to 1.
	if err := BumpStreak(ctx, db, 7, day.AddDate(0, 0, 5)); err != nil {
		t.Fatalf("gap bump: %v", err)
	}
	s, _ = GetStreak(ctx, db, 7)
	if s.Days != 1 || s.LastDay != "2026-03-15" {
		t.Fatalf("expected reset streak, got %+v", s)
	}
}

func TestGetStreak_Missing(t *testing.T) {
	db := newTestDB(t)
	if _, err := GetStreak(context.Background(), db, 404); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestListRelayMessages_PagesNewestFirst(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	for i := 0; i < 5; i++ {
		err := AppendRelayMessage(ctx, db, domain.RelayMessage{
			UserID:    7,
			Direction: domain.RelayDirIn,
			Kind:      domain.PostKindText,
			Text:      time.Duration(i).String(),
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
		})
		if err != nil {
			t.Fatalf("append %d: %v", i, err)
		}
	}
	if err := AppendRelayMessage(ctx, db, domain.RelayMessage{
		UserID:    8,
		Direction: domain.RelayDirOut,
		Kind:      domain.PostKindText,
		Text:      "other user",
		CreatedAt: base,
	}); err != nil {
		t.Fatalf("append other: %v", err)
	}

	page, err := ListRelayMessages(ctx, db, 7, 0, 3)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(page) != 3 {
		t.Fatalf("expected 3 rows, got %d", len(page))
	}
	if !page[0].CreatedAt.After(page[1].CreatedAt) {
		t.Fatalf("not newest first: %v, %v", page[0].CreatedAt, page[1].CreatedAt)
	}

	rest, err := ListRelayMessages(ctx, db, 7, 3, 3)
	if err != nil {
		t.Fatalf("list page 2: %v", err)
	}
	if len(rest) != 2 {
		t.Fatalf("expected 2 remaining rows, got %d", len(rest))
	}
}
