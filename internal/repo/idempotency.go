// Idempotency store: recently-seen external event keys with TTL.
//
// Claim is the only write path. It must return true exactly once per key
// within the TTL window, under concurrent callers in this process and in any
// other process sharing the database file. Atomicity comes from running the
// expired-row eviction and the insert inside one transaction; SQLite
// serializes writers, so two racing claims cannot both insert.
package repo

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/juicyfox/juicybot/internal/domain"
)

// Claim records key for ttl and reports whether this call was the first to
// observe it. A false result means the key is already claimed and unexpired.
func Claim(ctx context.Context, db *gorm.DB, key string, ttl time.Duration) (bool, error) {
	now := time.Now().UTC()
	row := domain.IdempotencyKey{
		Key:       key,
		ClaimedAt: now,
		ExpiresAt: now.Add(ttl),
	}

	var claimed bool
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// Drop a stale row for this key so the insert below can take over.
		if err := tx.Where("key = ? AND expires_at <= ?", key, now).
			Delete(&domain.IdempotencyKey{}).Error; err != nil {
			return err
		}
		if err := tx.Create(&row).Error; err != nil {
			if isUniqueViolation(err) {
				return nil // already claimed
			}
			return err
		}
		claimed = true
		return nil
	})
	if err != nil {
		return false, err
	}
	return claimed, nil
}

// PurgeExpiredClaims removes expired idempotency rows and returns the number
// deleted. Called opportunistically; correctness never depends on it.
func PurgeExpiredClaims(ctx context.Context, db *gorm.DB, now time.Time) (int64, error) {
	res := db.WithContext(ctx).
		Where("expires_at <= ?", now).
		Delete(&domain.IdempotencyKey{})
	return res.RowsAffected, res.Error
}
