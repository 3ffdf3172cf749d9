// Package jobs is the durable work queue: webhook triggers acknowledge
// immediately and enqueue here, a dispatcher claims and runs jobs, and a
// cron sweep requeues jobs stranded in running state.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type Status string

const (
	StatusPending Status = "pending"
	StatusRunning Status = "running"
	StatusDone    Status = "done"
	StatusFailed  Status = "failed"
)

// Job is one queued thread run.
type Job struct {
	ID       uuid.UUID
	ChatID   string
	RootID   string
	Force    bool
	Attempts int
}

// Queue persists jobs in Postgres.
type Queue struct {
	logger *slog.Logger
	pool   *pgxpool.Pool
}

func NewQueue(log *slog.Logger, pool *pgxpool.Pool) *Queue {
	if log == nil {
		log = slog.Default()
	}
	return &Queue{
		logger: log.With(slog.String("service", "jobs")),
		pool:   pool,
	}
}

// Enqueue inserts a pending job and returns its id.
func (q *Queue) Enqueue(ctx context.Context, chatID, rootID string, force bool) (uuid.UUID, error) {
	id := uuid.New()
	_, err := q.pool.Exec(ctx,
		`INSERT INTO thread_jobs (id, chat_id, root_id, force) VALUES ($1, $2, $3, $4)`,
		id, chatID, rootID, force,
	)
	if err != nil {
		return uuid.Nil, fmt.Errorf("enqueue job: %w", err)
	}
	q.logger.Info("job enqueued",
		slog.String("job_id", id.String()),
		slog.String("root_id", rootID),
		slog.Bool("force", force),
	)
	return id, nil
}

// Claim atomically takes the oldest pending job and marks it running.
// Returns nil when the queue is empty. SKIP LOCKED keeps concurrent
// dispatchers from claiming the same job.
func (q *Queue) Claim(ctx context.Context) (*Job, error) {
	row := q.pool.QueryRow(ctx, `
		UPDATE thread_jobs
		SET status = 'running', attempts = attempts + 1, started_at = now(), updated_at = now()
		WHERE id = (
			SELECT id FROM thread_jobs
			WHERE status = 'pending'
			ORDER BY created_at
			LIMIT 1
			FOR UPDATE SKIP LOCKED
		)
		RETURNING id, chat_id, root_id, force, attempts`)
	var job Job
	if err := row.Scan(&job.ID, &job.ChatID, &job.RootID, &job.Force, &job.Attempts); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("claim job: %w", err)
	}
	return &job, nil
}

// MarkDone records a successful run.
func (q *Queue) MarkDone(ctx context.Context, id uuid.UUID) error {
	_, err := q.pool.Exec(ctx,
		`UPDATE thread_jobs SET status = 'done', last_error = NULL, updated_at = now() WHERE id = $1`,
		id,
	)
	if err != nil {
		return fmt.Errorf("mark job done: %w", err)
	}
	return nil
}

// MarkFailed records a failed run. Non-final failures go back to pending for
// another attempt; final ones are parked as failed.
func (q *Queue) MarkFailed(ctx context.Context, id uuid.UUID, cause error, final bool) error {
	status := StatusPending
	if final {
		status = StatusFailed
	}
	causeText := ""
	if cause != nil {
		causeText = cause.Error()
	}
	_, err := q.pool.Exec(ctx,
		`UPDATE thread_jobs SET status = $2, last_error = $3, updated_at = now() WHERE id = $1`,
		id, string(status), causeText,
	)
	if err != nil {
		return fmt.Errorf("mark job failed: %w", err)
	}
	return nil
}

// RequeueStale returns to pending any job stuck in running longer than
// olderThan, e.g. after a process crash mid-run.
func (q *Queue) RequeueStale(ctx context.Context, olderThan time.Duration) (int64, error) {
	tag, err := q.pool.Exec(ctx,
		`UPDATE thread_jobs SET status = 'pending', updated_at = now()
		 WHERE status = 'running' AND started_at < $1`,
		time.Now().Add(-olderThan),
	)
	if err != nil {
		return 0, fmt.Errorf("requeue stale jobs: %w", err)
	}
	return tag.RowsAffected(), nil
}
