// Access grants: immutable records of issued invite links.
package repo

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/juicyfox/juicybot/internal/domain"
)

// InsertAccessGrant records a successful grant.
func InsertAccessGrant(ctx context.Context, db *gorm.DB, g domain.AccessGrant) (*domain.AccessGrant, error) {
	if g.ID == "" {
		g.ID = uuid.NewString()
	}
	if g.CreatedAt.IsZero() {
		g.CreatedAt = time.Now().UTC()
	}
	if err := db.WithContext(ctx).Create(&g).Error; err != nil {
		return nil, err
	}
	return &g, nil
}

// HasActiveGrant reports whether the user holds any unexpired grant. This is
// the relay authorization gate.
func HasActiveGrant(ctx context.Context, db *gorm.DB, userID int64, now time.Time) (bool, error) {
	var n int64
	err := db.WithContext(ctx).
		Model(&domain.AccessGrant{}).
		Where("user_id = ? AND until > ?", userID, now).
		Count(&n).Error
	return n > 0, err
}

// LatestGrantUntil returns the furthest expiry across the user's grants, or
// ErrNotFound when the user has none.
func LatestGrantUntil(ctx context.Context, db *gorm.DB, userID int64) (time.Time, error) {
	var g domain.AccessGrant
	err := db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("until DESC").
		First(&g).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return time.Time{}, ErrNotFound
	}
	if err != nil {
		return time.Time{}, err
	}
	return g.Until, nil
}

// CountGrantsByPlan returns how many grants exist for (userID, planCode).
func CountGrantsByPlan(ctx context.Context, db *gorm.DB, userID int64, planCode string) (int64, error) {
	var n int64
	err := db.WithContext(ctx).
		Model(&domain.AccessGrant{}).
		Where("user_id = ? AND plan_code = ?", userID, planCode).
		Count(&n).Error
	return n, err
}
