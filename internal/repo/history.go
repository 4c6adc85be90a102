// Relay history and activity streaks.
package repo

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/juicyfox/juicybot/internal/domain"
)

// AppendRelayMessage logs one relayed message. The history is append-only.
func AppendRelayMessage(ctx context.Context, db *gorm.DB, m domain.RelayMessage) error {
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}
	return db.WithContext(ctx).Create(&m).Error
}

// ListRelayMessages returns a page of a user's relay history, newest first.
func ListRelayMessages(ctx context.Context, db *gorm.DB, userID int64, offset, limit int) ([]domain.RelayMessage, error) {
	if limit <= 0 {
		limit = 20
	}
	var msgs []domain.RelayMessage
	err := db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC, id DESC").
		Offset(offset).
		Limit(limit).
		Find(&msgs).Error
	return msgs, err
}

// BumpStreak advances the user's consecutive-day counter for the given UTC
// day. Same-day calls are no-ops; a gap of more than one day resets to 1.
func BumpStreak(ctx context.Context, db *gorm.DB, userID int64, day time.Time) error {
	today := day.UTC().Format("2006-01-02")
	yesterday := day.UTC().AddDate(0, 0, -1).Format("2006-01-02")

	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var s domain.Streak
		err := tx.First(&s, "user_id = ?", userID).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			return tx.Create(&domain.Streak{UserID: userID, Days: 1, LastDay: today}).Error
		case err != nil:
			return err
		}
		if s.LastDay == today {
			return nil
		}
		if s.LastDay == yesterday {
			s.Days++
		} else {
			s.Days = 1
		}
		s.LastDay = today
		return tx.Save(&s).Error
	})
}

// GetStreak returns the user's streak row or ErrNotFound.
func GetStreak(ctx context.Context, db *gorm.DB, userID int64) (*domain.Streak, error) {
	var s domain.Streak
	err := db.WithContext(ctx).First(&s, "user_id = ?", userID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}
