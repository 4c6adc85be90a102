package repo

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"
)

func TestClaim_FirstCallWins(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	claimed, err := Claim(ctx, db, "telegram:1:100", time.Minute)
	if err != nil {
		t.Fatalf("first claim: %v", err)
	}
	if !claimed {
		t.Fatal("expected first claim to return true")
	}

	claimed, err = Claim(ctx, db, "telegram:1:100", time.Minute)
	if err != nil {
		t.Fatalf("second claim: %v", err)
	}
	if claimed {
		t.Fatal("expected duplicate claim to return false")
	}
}

func TestClaim_ExpiredKeyCanBeReclaimed(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	if claimed, err := Claim(ctx, db, "k", -time.Second); err != nil || !claimed {
		t.Fatalf("seed claim: claimed=%v err=%v", claimed, err)
	}

	// The seeded row is already expired, so the key is free again.
	claimed, err := Claim(ctx, db, "k", time.Minute)
	if err != nil {
		t.Fatalf("reclaim: %v", err)
	}
	if !claimed {
		t.Fatal("expected expired key to be reclaimable")
	}
}

func TestClaim_DistinctKeysAreIndependent(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		key := fmt.Sprintf("telegram:1:%d", i)
		claimed, err := Claim(ctx, db, key, time.Minute)
		if err != nil {
			t.Fatalf("claim %s: %v", key, err)
		}
		if !claimed {
			t.Fatalf("expected fresh key %s to claim", key)
		}
	}
}

func TestClaim_ConcurrentCallersExactlyOneWinner(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	const callers = 8
	var wg sync.WaitGroup
	wins := make(chan bool, callers)

	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			claimed, err := Claim(ctx, db, "contested", time.Minute)
			if err != nil {
				t.Errorf("claim: %v", err)
				return
			}
			wins <- claimed
		}()
	}
	wg.Wait()
	close(wins)

	winners := 0
	for w := range wins {
		if w {
			winners++
		}
	}
	if winners != 1 {
		t.Fatalf("expected exactly 1 winner, got %d", winners)
	}
}

func TestPurgeExpiredClaims(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	if _, err := Claim(ctx, db, "old", -time.Hour); err != nil {
		t.Fatalf("seed expired: %v", err)
	}
	if _, err := Claim(ctx, db, "fresh", time.Hour); err != nil {
		t.Fatalf("seed fresh: %v", err)
	}

	n, err := PurgeExpiredClaims(ctx, db, time.Now().UTC())
	if err != nil {
		t.Fatalf("purge: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 purged row, got %d", n)
	}

	// The fresh key must still be held.
	claimed, err := Claim(ctx, db, "fresh", time.Hour)
	if err != nil {
		t.Fatalf("reclaim fresh: %v", err)
	}
	if claimed {
		t.Fatal("purge must not release unexpired claims")
	}
}
