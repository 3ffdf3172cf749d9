// Package processor orchestrates one thread run: list the thread's images,
// skip what the ledger already covers, extract the rest with per-item
// failure isolation, persist progress, and publish the composed result.
package processor

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/threadlens/threadlens/internal/composer"
	"github.com/threadlens/threadlens/internal/config"
	"github.com/threadlens/threadlens/internal/extractor"
	"github.com/threadlens/threadlens/internal/ledger"
	"github.com/threadlens/threadlens/internal/messenger"
)

// Job identifies one unit of work. Force bypasses the ledger's skip logic.
type Job struct {
	ChatID string
	RootID string
	Force  bool
}

// Summary is the terminal accounting for one run. Skipped counts items
// already covered by the ledger plus items that failed in isolation.
type Summary struct {
	Processed int
	Skipped   int
	Outcome   string
}

const (
	OutcomeOK               = "ok"
	OutcomeNoImages         = "no_images"
	OutcomeAlreadyProcessed = "already_processed"
	OutcomeNoResults        = "no_results"
)

const (
	statusProcessing       = "Extracting text from the images in this thread..."
	statusNoImages         = "No images found in this thread."
	statusAlreadyProcessed = "All images in this thread have already been processed. Mention me with \"force\" to redo them."
	statusAllFailed        = "Failed to process any images in this thread."
	statusError            = "Something went wrong while processing this thread."
)

type ThreadReader interface {
	ListThreadImages(ctx context.Context, rootID string) ([]messenger.ImageRef, error)
}

type Downloader interface {
	Download(ctx context.Context, ref messenger.ImageRef) ([]byte, string, error)
}

type Extractor interface {
	Extract(ctx context.Context, data []byte, mime, name string) (extractor.Record, error)
}

type Ledger interface {
	GetProcessed(ctx context.Context, threadKey string) (map[string]struct{}, error)
	MarkProcessed(ctx context.Context, threadKey string, newIDs []string) error
}

type Messenger interface {
	PostReply(ctx context.Context, parentID, text string) (string, error)
	Update(ctx context.Context, messageID, text string) error
}

type Publisher interface {
	Publish(ctx context.Context, statusID, rootID, body string) error
}

type Service struct {
	logger    *slog.Logger
	threads   ThreadReader
	downloads Downloader
	extract   Extractor
	ledger    Ledger
	msgr      Messenger
	publisher Publisher
	maxImages int
	workers   int
}

func New(
	log *slog.Logger,
	threads ThreadReader,
	downloads Downloader,
	extract Extractor,
	led Ledger,
	msgr Messenger,
	publisher Publisher,
	cfg config.ProcessorConfig,
) *Service {
	if log == nil {
		log = slog.Default()
	}
	maxImages := cfg.MaxImages
	if maxImages <= 0 {
		maxImages = config.DefaultMaxImages
	}
	workers := cfg.Workers
	if workers <= 0 {
		workers = 1
	}
	return &Service{
		logger:    log.With(slog.String("service", "processor")),
		threads:   threads,
		downloads: downloads,
		extract:   extract,
		ledger:    led,
		msgr:      msgr,
		publisher: publisher,
		maxImages: maxImages,
		workers:   workers,
	}
}

// Process runs one job end to end. The status card is created first and is
// the only message mutated during the run; its mutations are strictly
// monotone (processing, progress, then exactly one terminal state). Failure
// to create it is fatal since there is no visible anchor to report into.
func (s *Service) Process(ctx context.Context, job Job) (Summary, error) {
	if strings.TrimSpace(job.ChatID) == "" || strings.TrimSpace(job.RootID) == "" {
		return Summary{}, fmt.Errorf("chat id and root id are required")
	}
	statusID, err := s.msgr.PostReply(ctx, job.RootID, statusProcessing)
	if err != nil {
		return Summary{}, fmt.Errorf("post status message: %w", err)
	}

	summary, err := s.run(ctx, job, statusID)
	if err != nil {
		// Best-effort error status. A failure here is swallowed so it
		// cannot mask the original error.
		if uerr := s.msgr.Update(ctx, statusID, statusError); uerr != nil {
			s.logger.Warn("error status update failed",
				slog.String("root_id", job.RootID),
				slog.Any("error", uerr),
			)
		}
		return summary, err
	}
	return summary, nil
}

func (s *Service) run(ctx context.Context, job Job, statusID string) (Summary, error) {
	refs, err := s.threads.ListThreadImages(ctx, job.RootID)
	if err != nil {
		return Summary{}, fmt.Errorf("list thread images: %w", err)
	}
	if len(refs) == 0 {
		if err := s.msgr.Update(ctx, statusID, statusNoImages); err != nil {
			return Summary{}, err
		}
		return Summary{Outcome: OutcomeNoImages}, nil
	}

	threadKey := ledger.Key(job.ChatID, job.RootID)
	eligible := refs
	alreadyDone := 0
	if !job.Force {
		done, err := s.ledger.GetProcessed(ctx, threadKey)
		if err != nil {
			return Summary{}, fmt.Errorf("read ledger: %w", err)
		}
		eligible = make([]messenger.ImageRef, 0, len(refs))
		for _, ref := range refs {
			if _, ok := done[ref.FileKey]; ok {
				continue
			}
			eligible = append(eligible, ref)
		}
		alreadyDone = len(refs) - len(eligible)
		if len(eligible) == 0 {
			if err := s.msgr.Update(ctx, statusID, statusAlreadyProcessed); err != nil {
				return Summary{}, err
			}
			return Summary{Skipped: alreadyDone, Outcome: OutcomeAlreadyProcessed}, nil
		}
	}

	remaining := 0
	if len(eligible) > s.maxImages {
		remaining = len(eligible) - s.maxImages
		eligible = eligible[:s.maxImages]
	}

	records, processedIDs := s.processItems(ctx, statusID, eligible)
	failed := len(eligible) - len(records)

	if len(processedIDs) > 0 {
		if err := s.ledger.MarkProcessed(ctx, threadKey, processedIDs); err != nil {
			return Summary{}, fmt.Errorf("write ledger: %w", err)
		}
	}

	if len(records) == 0 {
		if err := s.msgr.Update(ctx, statusID, statusAllFailed); err != nil {
			return Summary{}, err
		}
		return Summary{Skipped: alreadyDone + failed, Outcome: OutcomeNoResults}, nil
	}

	body := composer.Render(records, remaining)
	if err := s.publisher.Publish(ctx, statusID, job.RootID, body); err != nil {
		return Summary{}, fmt.Errorf("publish result: %w", err)
	}
	s.logger.Info("thread processed",
		slog.String("root_id", job.RootID),
		slog.Int("processed", len(records)),
		slog.Int("skipped", alreadyDone+failed),
		slog.Int("remaining", remaining),
	)
	return Summary{
		Processed: len(records),
		Skipped:   alreadyDone + failed,
		Outcome:   OutcomeOK,
	}, nil
}

// processItems extracts each eligible item, isolating per-item failures: a
// failed download or extraction is logged and skipped, never aborting the
// batch. Results keep the input order regardless of the strategy.
func (s *Service) processItems(ctx context.Context, statusID string, refs []messenger.ImageRef) ([]extractor.Record, []string) {
	if s.workers > 1 && len(refs) > 1 {
		return s.processItemsPool(ctx, statusID, refs)
	}
	records := make([]extractor.Record, 0, len(refs))
	ids := make([]string, 0, len(refs))
	for i, ref := range refs {
		s.updateProgress(ctx, statusID, i+1, len(refs))
		rec, ok := s.processOne(ctx, ref)
		if !ok {
			continue
		}
		records = append(records, rec)
		ids = append(ids, ref.FileKey)
	}
	return records, ids
}

// processItemsPool fans out through a bounded worker pool. Progress is
// reported by completion count since completion order is not input order.
func (s *Service) processItemsPool(ctx context.Context, statusID string, refs []messenger.ImageRef) ([]extractor.Record, []string) {
	results := make([]*extractor.Record, len(refs))
	var done atomic.Int64

	g := &errgroup.Group{}
	g.SetLimit(s.workers)
	for i, ref := range refs {
		g.Go(func() error {
			rec, ok := s.processOne(ctx, ref)
			if ok {
				results[i] = &rec
			}
			s.updateProgress(ctx, statusID, int(done.Add(1)), len(refs))
			return nil
		})
	}
	_ = g.Wait()

	records := make([]extractor.Record, 0, len(refs))
	ids := make([]string, 0, len(refs))
	for i, rec := range results {
		if rec == nil {
			continue
		}
		records = append(records, *rec)
		ids = append(ids, refs[i].FileKey)
	}
	return records, ids
}

func (s *Service) processOne(ctx context.Context, ref messenger.ImageRef) (extractor.Record, bool) {
	data, name, err := s.downloads.Download(ctx, ref)
	if err != nil {
		s.logger.Warn("image download failed, skipping",
			slog.String("file_key", ref.FileKey),
			slog.Any("error", err),
		)
		return extractor.Record{}, false
	}
	rec, err := s.extract.Extract(ctx, data, http.DetectContentType(data), name)
	if err != nil {
		s.logger.Warn("extraction failed, skipping",
			slog.String("file_key", ref.FileKey),
			slog.Any("error", err),
		)
		return extractor.Record{}, false
	}
	rec.ItemID = ref.FileKey
	if strings.TrimSpace(rec.Name) == "" {
		rec.Name = name
	}
	return rec, true
}

// updateProgress is best-effort: a failed progress patch is logged, never
// aborts the batch.
func (s *Service) updateProgress(ctx context.Context, statusID string, done, total int) {
	text := fmt.Sprintf("Processing image %d of %d...", done, total)
	if err := s.msgr.Update(ctx, statusID, text); err != nil {
		s.logger.Warn("progress update failed", slog.Any("error", err))
	}
}
