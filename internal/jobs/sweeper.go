package jobs

import (
	"context"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

const (
	sweepSchedule = "@every 5m"
	staleAfter    = 15 * time.Minute
)

type staleRequeuer interface {
	RequeueStale(ctx context.Context, olderThan time.Duration) (int64, error)
}

// Sweeper periodically requeues jobs stranded in running state.
type Sweeper struct {
	logger *slog.Logger
	cron   *cron.Cron
}

func NewSweeper(log *slog.Logger, queue staleRequeuer) (*Sweeper, error) {
	if log == nil {
		log = slog.Default()
	}
	logger := log.With(slog.String("service", "sweeper"))
	c := cron.New()
	_, err := c.AddFunc(sweepSchedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		n, err := queue.RequeueStale(ctx, staleAfter)
		if err != nil {
			logger.Error("stale sweep failed", slog.Any("error", err))
			return
		}
		if n > 0 {
			logger.Warn("stale jobs requeued", slog.Int64("count", n))
		}
	})
	if err != nil {
		return nil, err
	}
	return &Sweeper{logger: logger, cron: c}, nil
}

func (s *Sweeper) Start() {
	s.cron.Start()
}

func (s *Sweeper) Stop() {
	<-s.cron.Stop().Done()
}
