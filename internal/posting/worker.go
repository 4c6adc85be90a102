// The posting worker. Exactly one instance may run per database; starting a
// second would double-send due rows. That invariant is enforced by
// deployment, not by locks.
package posting

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/juicyfox/juicybot/internal/domain"
	"github.com/juicyfox/juicybot/internal/metrics"
	"github.com/juicyfox/juicybot/internal/repo"
)

// Backoff caps.
const (
	baseBackoff = 30 * time.Second
	maxBackoff  = 900 * time.Second
)

// purgeInterval spaces the lazy idempotency-claim sweeps the worker
// piggybacks on its ticks.
const purgeInterval = 10 * time.Minute

// PostSender delivers one job payload to one chat.
type PostSender interface {
	SendPost(ctx context.Context, chatID int64, kind, text, fileRef string) (int, error)
}

// Worker is the single background loop draining the posting queue.
type Worker struct {
	db         *gorm.DB
	tg         PostSender
	interval   time.Duration
	batch      int
	maxRetries int
	log        zerolog.Logger

	lastPurge time.Time
}

// NewWorker constructs a Worker.
func NewWorker(db *gorm.DB, tg PostSender, interval time.Duration, batch, maxRetries int, log zerolog.Logger) *Worker {
	return &Worker{
		db:         db,
		tg:         tg,
		interval:   interval,
		batch:      batch,
		maxRetries: maxRetries,
		log:        log,
	}
}

// Run polls until the context is cancelled. A job whose run_at equals now is
// picked up on the next tick, never later than one interval.
func (w *Worker) Run(ctx context.Context) {
	w.log.Info().
		Dur("interval", w.interval).
		Int("batch", w.batch).
		Msg("posting worker started")

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.log.Info().Msg("posting worker stopped")
			return
		case <-ticker.C:
			w.ProcessOnce(ctx, time.Now().UTC())
		}
	}
}

// ProcessOnce drains one batch of due jobs. Exported so tests and the tick
// loop share the same path.
func (w *Worker) ProcessOnce(ctx context.Context, now time.Time) {
	if now.Sub(w.lastPurge) >= purgeInterval {
		w.lastPurge = now
		if n, err := repo.PurgeExpiredClaims(ctx, w.db, now); err != nil {
			w.log.Warn().Err(err).Msg("claim purge failed")
		} else if n > 0 {
			w.log.Debug().Int64("purged", n).Msg("expired idempotency claims removed")
		}
	}

	jobs, err := repo.DuePostingJobs(ctx, w.db, now, w.batch)
	if err != nil {
		w.log.Error().Err(err).Msg("due jobs query failed")
		return
	}
	metrics.PostingQueueDepth.Set(float64(len(jobs)))

	for _, job := range jobs {
		w.deliver(ctx, job, now)
	}
}

func (w *Worker) deliver(ctx context.Context, job domain.PostingJob, now time.Time) {
	_, err := w.tg.SendPost(ctx, job.ChatID, job.Kind, job.Text, job.FileRef)
	if err == nil {
		if err := repo.MarkPostingSent(ctx, w.db, job.ID); err != nil {
			w.log.Error().Err(err).Int64("job_id", job.ID).Msg("mark sent failed")
			return
		}
		metrics.PostingJobs.WithLabelValues("sent").Inc()
		return
	}

	if job.Retries+1 >= w.maxRetries {
		if mErr := repo.MarkPostingFailed(ctx, w.db, job.ID, err.Error()); mErr != nil {
			w.log.Error().Err(mErr).Int64("job_id", job.ID).Msg("mark failed failed")
			return
		}
		metrics.PostingJobs.WithLabelValues("failed").Inc()
		w.log.Error().Err(err).
			Int64("job_id", job.ID).
			Int64("chat_id", job.ChatID).
			Int("retries", job.Retries+1).
			Msg("posting job exhausted retries")
		return
	}

	next := now.Add(Backoff(job.Retries))
	if mErr := repo.MarkPostingRetry(ctx, w.db, job.ID, err.Error(), next); mErr != nil {
		w.log.Error().Err(mErr).Int64("job_id", job.ID).Msg("mark retry failed")
		return
	}
	metrics.PostingJobs.WithLabelValues("retried").Inc()
	w.log.Warn().Err(err).
		Int64("job_id", job.ID).
		Time("next_run", next).
		Msg("posting job rescheduled")
}

// Backoff returns the delay before the next attempt after the given number of
// prior failures: 30s doubling per retry, capped at 15 minutes.
func Backoff(retries int) time.Duration {
	if retries < 0 {
		retries = 0
	}
	d := baseBackoff << uint(retries)
	if d <= 0 || d > maxBackoff {
		return maxBackoff
	}
	return d
}
