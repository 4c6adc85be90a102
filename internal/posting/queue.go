// Package posting implements the scheduled posting engine: a durable queue
// of send jobs and the single background worker that drains it. Broadcasts
// are expanded into one row per recipient at enqueue time so the worker
// never needs to know about segments.
package posting

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/juicyfox/juicybot/internal/domain"
	"github.com/juicyfox/juicybot/internal/repo"
)

// Queue enqueues posting jobs.
type Queue struct {
	db  *gorm.DB
	log zerolog.Logger
}

// NewQueue constructs a Queue.
func NewQueue(db *gorm.DB, log zerolog.Logger) *Queue {
	return &Queue{db: db, log: log}
}

// Enqueue schedules one job for a single recipient.
func (q *Queue) Enqueue(ctx context.Context, chatID int64, kind, text, fileRef string, runAt time.Time) error {
	job := domain.PostingJob{
		ChatID:  chatID,
		Kind:    kind,
		Text:    text,
		FileRef: fileRef,
		RunAt:   runAt.UTC(),
	}
	if err := repo.InsertPostingJobs(ctx, q.db, []domain.PostingJob{job}); err != nil {
		return fmt.Errorf("enqueue posting job: %w", err)
	}
	return nil
}

// EnqueueBroadcast expands the registered-user segment into one pending row
// per recipient and returns the fan-out size. The segment is resolved now,
// not at send time.
func (q *Queue) EnqueueBroadcast(ctx context.Context, kind, text, fileRef string, runAt time.Time) (int, error) {
	ids, err := repo.ListRelayUserIDs(ctx, q.db)
	if err != nil {
		return 0, fmt.Errorf("resolve broadcast segment: %w", err)
	}
	if len(ids) == 0 {
		return 0, nil
	}
	jobs := make([]domain.PostingJob, 0, len(ids))
	for _, id := range ids {
		jobs = append(jobs, domain.PostingJob{
			ChatID:  id,
			Kind:    kind,
			Text:    text,
			FileRef: fileRef,
			RunAt:   runAt.UTC(),
		})
	}
	if err := repo.InsertPostingJobs(ctx, q.db, jobs); err != nil {
		return 0, fmt.Errorf("enqueue broadcast: %w", err)
	}
	q.log.Info().Int("recipients", len(jobs)).Time("run_at", runAt).Msg("broadcast fanned out")
	return len(jobs), nil
}
