package repo

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/juicyfox/juicybot/internal/domain"
)

func TestUpsertRelayUser_RefreshesExistingRow(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	if err := UpsertRelayUser(ctx, db, domain.RelayUser{
		UserID: 7, Username: "old", FullName: "Old Name", Lang: "en",
	}); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if err := UpsertRelayUser(ctx, db, domain.RelayUser{
		UserID: 7, Username: "new", FullName: "New Name", Lang: "de",
	}); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	u, err := GetRelayUser(ctx, db, 7)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if u.Username != "new" || u.Lang != "de" {
		t.Fatalf("row not refreshed: %+v", u)
	}

	n, err := CountRelayUsers(ctx, db)
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 1 {
		t.Fatalf("upsert created a second row: %d", n)
	}
}

func TestGetRelayUser_Missing(t *testing.T) {
	db := newTestDB(t)
	if _, err := GetRelayUser(context.Background(), db, 404); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestListRelayUserIDs_Ordered(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	for _, id := range []int64{30, 10, 20} {
		if err := UpsertRelayUser(ctx, db, domain.RelayUser{UserID: id}); err != nil {
			t.Fatalf("seed %d: %v", id, err)
		}
	}

	ids, err := ListRelayUserIDs(ctx, db)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	want := []int64{10, 20, 30}
	if len(ids) != len(want) {
		t.Fatalf("expected %d ids, got %d", len(want), len(ids))
	}
	for i := range want {
		if ids[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, ids)
		}
	}
}

func TestAccessGrants(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	now := time.Now().UTC()

	if ok, err := HasActiveGrant(ctx, db, 7, now); err != nil || ok {
		t.Fatalf("expected no grant: ok=%v err=%v", ok, err)
	}
	if _, err := LatestGrantUntil(ctx, db, 7); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	if _, err := InsertAccessGrant(ctx, db, domain.AccessGrant{
		UserID: 7, PlanCode: "chat_10d", InviteLink: "https://t.me/+a", Until: now.Add(-time.Hour),
	}); err != nil {
		t.Fatalf("insert expired: %v", err)
	}
	if ok, _ := HasActiveGrant(ctx, db, 7, now); ok {
		t.Fatal("expired grant must not authorize")
	}

	until := now.Add(30 * 24 * time.Hour).Truncate(time.Second)
	if _, err := InsertAccessGrant(ctx, db, domain.AccessGrant{
		UserID: 7, PlanCode: "vip_30d", InviteLink: "https://t.me/+b", Until: until,
	}); err != nil {
		t.Fatalf("insert active: %v", err)
	}

	if ok, _ := HasActiveGrant(ctx, db, 7, now); !ok {
		t.Fatal("active grant must authorize")
	}
	got, err := LatestGrantUntil(ctx, db, 7)
	if err != nil {
		t.Fatalf("latest until: %v", err)
	}
	if !got.Equal(until) {
		t.Fatalf("expected %s, got %s", until, got)
	}

	n, err := CountGrantsByPlan(ctx, db, 7, "vip_30d")
	if err != nil {
		t.Fatalf("count by plan: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 vip grant, got %d", n)
	}
}
