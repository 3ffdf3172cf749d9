package jobs

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/threadlens/threadlens/internal/config"
	"github.com/threadlens/threadlens/internal/processor"
)

// Runner is the processor surface the dispatcher drives.
type Runner interface {
	Process(ctx context.Context, job processor.Job) (processor.Summary, error)
}

type store interface {
	Claim(ctx context.Context) (*Job, error)
	MarkDone(ctx context.Context, id uuid.UUID) error
	MarkFailed(ctx context.Context, id uuid.UUID, cause error, final bool) error
}

// Dispatcher polls the queue and runs claimed jobs one at a time.
type Dispatcher struct {
	logger       *slog.Logger
	store        store
	runner       Runner
	pollInterval time.Duration
	maxAttempts  int
	cancel       context.CancelFunc
	done         chan struct{}
}

func NewDispatcher(log *slog.Logger, queue *Queue, runner Runner, cfg config.JobsConfig) *Dispatcher {
	if log == nil {
		log = slog.Default()
	}
	maxAttempts := cfg.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = config.DefaultJobMaxAttempts
	}
	return &Dispatcher{
		logger:       log.With(slog.String("service", "dispatcher")),
		store:        queue,
		runner:       runner,
		pollInterval: cfg.PollIntervalDuration(),
		maxAttempts:  maxAttempts,
	}
}

// Start launches the poll loop. Stop cancels it and waits for the in-flight
// job to finish.
func (d *Dispatcher) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	d.cancel = cancel
	d.done = make(chan struct{})
	go func() {
		defer close(d.done)
		ticker := time.NewTicker(d.pollInterval)
		defer ticker.Stop()
		for {
			d.drain(ctx)
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
		}
	}()
}

func (d *Dispatcher) Stop(ctx context.Context) error {
	if d.cancel == nil {
		return nil
	}
	d.cancel()
	select {
	case <-d.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// drain claims and runs jobs until the queue is empty or the context ends.
func (d *Dispatcher) drain(ctx context.Context) {
	for ctx.Err() == nil {
		job, err := d.store.Claim(ctx)
		if err != nil {
			d.logger.Error("claim failed", slog.Any("error", err))
			return
		}
		if job == nil {
			return
		}
		d.runJob(ctx, job)
	}
}

func (d *Dispatcher) runJob(ctx context.Context, job *Job) {
	summary, err := d.runner.Process(ctx, processor.Job{
		ChatID: job.ChatID,
		RootID: job.RootID,
		Force:  job.Force,
	})
	if err != nil {
		final := job.Attempts >= d.maxAttempts
		d.logger.Error("job failed",
			slog.String("job_id", job.ID.String()),
			slog.Int("attempt", job.Attempts),
			slog.Bool("final", final),
			slog.Any("error", err),
		)
		if merr := d.store.MarkFailed(ctx, job.ID, err, final); merr != nil {
			d.logger.Error("mark failed errored", slog.String("job_id", job.ID.String()), slog.Any("error", merr))
		}
		return
	}
	d.logger.Info("job done",
		slog.String("job_id", job.ID.String()),
		slog.Int("processed", summary.Processed),
		slog.Int("skipped", summary.Skipped),
		slog.String("outcome", summary.Outcome),
	)
	if merr := d.store.MarkDone(ctx, job.ID); merr != nil {
		d.logger.Error("mark done errored", slog.String("job_id", job.ID.String()), slog.Any("error", merr))
	}
}
