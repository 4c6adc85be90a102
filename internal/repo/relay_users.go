// Relay user directory. Upserted on every inbound private message; rows are
// never deleted by the core.
package repo

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/juicyfox/juicybot/internal/domain"
)

// UpsertRelayUser inserts or refreshes the directory row for a user.
func UpsertRelayUser(ctx context.Context, db *gorm.DB, u domain.RelayUser) error {
	if u.LastSeen.IsZero() {
		u.LastSeen = time.Now().UTC()
	}
	return db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"username", "full_name", "lang", "last_seen",
		}),
	}).Create(&u).Error
}

// GetRelayUser returns the directory row for userID or ErrNotFound.
func GetRelayUser(ctx context.Context, db *gorm.DB, userID int64) (*domain.RelayUser, error) {
	var u domain.RelayUser
	err := db.WithContext(ctx).First(&u, "user_id = ?", userID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// ListRelayUserIDs returns every registered user id, ordered ascending.
// Broadcast fan-out resolves its segment through this.
func ListRelayUserIDs(ctx context.Context, db *gorm.DB) ([]int64, error) {
	var ids []int64
	err := db.WithContext(ctx).
		Model(&domain.RelayUser{}).
		Order("user_id ASC").
		Pluck("user_id", &ids).Error
	return ids, err
}

// CountRelayUsers returns the size of the directory.
func CountRelayUsers(ctx context.Context, db *gorm.DB) (int64, error) {
	var n int64
	err := db.WithContext(ctx).Model(&domain.RelayUser{}).Count(&n).Error
	return n, err
}
