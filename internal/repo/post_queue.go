// Posting queue: durable scheduled jobs consumed by the single worker loop.
// Status transitions are monotonic; sent and failed rows are never touched
// again and never deleted.
package repo

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/juicyfox/juicybot/internal/domain"
	"github.com/juicyfox/juicybot/internal/sysutil"
)

// maxPersistedErrorLen bounds the error column on retry rows.
const maxPersistedErrorLen = 200

// InsertPostingJobs inserts the given jobs in one transaction. Callers set
// ChatID, Kind, Text/FileRef and RunAt; status bookkeeping is normalized here.
func InsertPostingJobs(ctx context.Context, db *gorm.DB, jobs []domain.PostingJob) error {
	if len(jobs) == 0 {
		return nil
	}
	now := time.Now().UTC()
	for i := range jobs {
		jobs[i].ID = 0
		jobs[i].Status = domain.PostStatusPending
		jobs[i].Retries = 0
		jobs[i].Error = ""
		jobs[i].CreatedAt = now
	}
	return db.WithContext(ctx).Create(&jobs).Error
}

// DuePostingJobs returns up to limit pending jobs with run_at <= now, ordered
// by run_at then id ascending. The id tiebreak keeps same-recipient jobs with
// equal run_at in enqueue order.
func DuePostingJobs(ctx context.Context, db *gorm.DB, now time.Time, limit int) ([]domain.PostingJob, error) {
	var jobs []domain.PostingJob
	err := db.WithContext(ctx).
		Where("status = ? AND run_at <= ?", domain.PostStatusPending, now).
		Order("run_at ASC, id ASC").
		Limit(limit).
		Find(&jobs).Error
	return jobs, err
}

// MarkPostingSent moves a pending job to its sent terminal state.
func MarkPostingSent(ctx context.Context, db *gorm.DB, id int64) error {
	return db.WithContext(ctx).
		Model(&domain.PostingJob{}).
		Where("id = ? AND status = ?", id, domain.PostStatusPending).
		Updates(map[string]any{"status": domain.PostStatusSent, "error": ""}).Error
}

// MarkPostingRetry bumps the retry counter, records the truncated error, and
// reschedules the job at nextRun. The row stays pending.
func MarkPostingRetry(ctx context.Context, db *gorm.DB, id int64, sendErr string, nextRun time.Time) error {
	return db.WithContext(ctx).
		Model(&domain.PostingJob{}).
		Where("id = ? AND status = ?", id, domain.PostStatusPending).
		Updates(map[string]any{
			"retries": gorm.Expr("retries + 1"),
			"error":   sysutil.Truncate(sendErr, maxPersistedErrorLen),
			"run_at":  nextRun,
		}).Error
}

// MarkPostingFailed moves a pending job to its failed terminal state after
// retry exhaustion.
func MarkPostingFailed(ctx context.Context, db *gorm.DB, id int64, sendErr string) error {
	return db.WithContext(ctx).
		Model(&domain.PostingJob{}).
		Where("id = ? AND status = ?", id, domain.PostStatusPending).
		Updates(map[string]any{
			"retries": gorm.Expr("retries + 1"),
			"status":  domain.PostStatusFailed,
			"error":   sysutil.Truncate(sendErr, maxPersistedErrorLen),
		}).Error
}
