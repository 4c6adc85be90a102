package repo

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/juicyfox/juicybot/internal/domain"
	"gorm.io/gorm"
)

// GetPostingJob fetches a job row by id for test assertions.
func GetPostingJob(ctx context.Context, db *gorm.DB, id int64) (*domain.PostingJob, error) {
	var j domain.PostingJob
	if err := db.WithContext(ctx).First(&j, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &j, nil
}

func TestDuePostingJobs_OrderAndCutoff(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	now := time.Now().UTC()

	jobs := []domain.PostingJob{
		{ChatID: 1, Kind: domain.PostKindText, Text: "later", RunAt: now.Add(time.Hour)},
		{ChatID: 2, Kind: domain.PostKindText, Text: "second", RunAt: now.Add(-time.Minute)},
		{ChatID: 3, Kind: domain.PostKindText, Text: "first", RunAt: now.Add(-time.Hour)},
	}
	if err := InsertPostingJobs(ctx, db, jobs); err != nil {
		t.Fatalf("insert: %v", err)
	}

	due, err := DuePostingJobs(ctx, db, now, 10)
	if err != nil {
		t.Fatalf("due: %v", err)
	}
	if len(due) != 2 {
		t.Fatalf("expected 2 due jobs, got %d", len(due))
	}
	if due[0].Text != "first" || due[1].Text != "second" {
		t.Fatalf("wrong order: %q, %q", due[0].Text, due[1].Text)
	}
}

func TestMarkPostingSent_IsTerminal(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	now := time.Now().UTC()

	if err := InsertPostingJobs(ctx, db, []domain.PostingJob{
		{ChatID: 1, Kind: domain.PostKindText, Text: "hi", RunAt: now},
	}); err != nil {
		t.Fatalf("insert: %v", err)
	}
	due, _ := DuePostingJobs(ctx, db, now, 1)
	id := due[0].ID

	if err := MarkPostingSent(ctx, db, id); err != nil {
		t.Fatalf("sent: %v", err)
	}
	// A late retry against a sent row must not move it back to pending.
	if err := MarkPostingRetry(ctx, db, id, "boom", now.Add(time.Minute)); err != nil {
		t.Fatalf("retry after sent: %v", err)
	}

	job, err := GetPostingJob(ctx, db, id)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if job.Status != domain.PostStatusSent || job.Retries != 0 {
		t.Fatalf("sent row mutated: %+v", job)
	}
}

func TestMarkPostingRetry_BumpsAndReschedules(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	now := time.Now().UTC()

	if err := InsertPostingJobs(ctx, db, []domain.PostingJob{
		{ChatID: 1, Kind: domain.PostKindPhoto, FileRef: "file123", RunAt: now},
	}); err != nil {
		t.Fatalf("insert: %v", err)
	}
	due, _ := DuePostingJobs(ctx, db, now, 1)
	id := due[0].ID

	next := now.Add(30 * time.Second).Truncate(time.Second)
	longErr := strings.Repeat("x", 500)
	if err := MarkPostingRetry(ctx, db, id, longErr, next); err != nil {
		t.Fatalf("retry: %v", err)
	}

	job, err := GetPostingJob(ctx, db, id)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if job.Status != domain.PostStatusPending {
		t.Fatalf("retried job must stay pending, got %s", job.Status)
	}
	if job.Retries != 1 {
		t.Fatalf("expected retries=1, got %d", job.Retries)
	}
	if len(job.Error) > 200 {
		t.Fatalf("error not truncated: %d bytes", len(job.Error))
	}
	if !job.RunAt.After(now) {
		t.Fatalf("job not rescheduled: run_at=%s", job.RunAt)
	}
}

func TestMarkPostingFailed_IsTerminal(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	now := time.Now().UTC()

	if err := InsertPostingJobs(ctx, db, []domain.PostingJob{
		{ChatID: 1, Kind: domain.PostKindText, Text: "hi", RunAt: now},
	}); err != nil {
		t.Fatalf("insert: %v", err)
	}
	due, _ := DuePostingJobs(ctx, db, now, 1)
	id := due[0].ID

	if err := MarkPostingFailed(ctx, db, id, "chat not found"); err != nil {
		t.Fatalf("failed: %v", err)
	}
	if err := MarkPostingSent(ctx, db, id); err != nil {
		t.Fatalf("sent after failed: %v", err)
	}

	job, _ := GetPostingJob(ctx, db, id)
	if job.Status != domain.PostStatusFailed {
		t.Fatalf("failed row mutated: %+v", job)
	}

	// Failed rows never return to the due set.
	due, _ = DuePostingJobs(ctx, db, now.Add(time.Hour), 10)
	if len(due) != 0 {
		t.Fatalf("terminal job returned as due: %+v", due)
	}
}
