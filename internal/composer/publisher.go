package composer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/threadlens/threadlens/internal/messenger"
)

const (
	// minRetryRunes is the floor below which a rejected body is no longer
	// halved; at that point the platform error propagates.
	minRetryRunes    = 500
	truncationNotice = "_Output truncated to fit the message limit._"
)

// Sink is the messenger surface the publisher needs.
type Sink interface {
	Update(ctx context.Context, messageID, text string) error
	PostReply(ctx context.Context, parentID, text string) (string, error)
}

// Publisher delivers a composed body: the first page patches the status card
// in place, any further pages are posted as thread replies. When the platform
// rejects a page for length despite the local limit, the page is halved with
// a visible truncation notice and retried.
type Publisher struct {
	logger *slog.Logger
	sink   Sink
	limit  int
}

func NewPublisher(log *slog.Logger, sink Sink, limit int) *Publisher {
	if log == nil {
		log = slog.Default()
	}
	if limit <= 0 {
		limit = 4000
	}
	return &Publisher{
		logger: log.With(slog.String("service", "publisher")),
		sink:   sink,
		limit:  limit,
	}
}

// Publish writes body to the thread. statusID is the bot's status card,
// rootID the thread anchor for overflow pages.
func (p *Publisher) Publish(ctx context.Context, statusID, rootID, body string) error {
	pages := Paginate(body, p.limit)
	if len(pages) == 0 {
		return fmt.Errorf("empty body")
	}
	for i, page := range pages {
		send := func(ctx context.Context, text string) error {
			if i == 0 {
				return p.sink.Update(ctx, statusID, text)
			}
			_, err := p.sink.PostReply(ctx, rootID, text)
			return err
		}
		if err := p.deliver(ctx, page, send); err != nil {
			return fmt.Errorf("publish page %d/%d: %w", i+1, len(pages), err)
		}
	}
	return nil
}

func (p *Publisher) deliver(ctx context.Context, text string, send func(context.Context, string) error) error {
	for {
		err := send(ctx, text)
		if err == nil || !errors.Is(err, messenger.ErrTooLong) {
			return err
		}
		runes := []rune(text)
		if len(runes) <= minRetryRunes {
			return err
		}
		p.logger.Warn("page rejected for length, halving",
			slog.Int("runes", len(runes)),
		)
		text = strings.TrimSpace(string(runes[:len(runes)/2])) + "\n\n" + truncationNotice
	}
}
