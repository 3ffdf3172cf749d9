package composer

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/threadlens/threadlens/internal/messenger"
)

type fakeSink struct {
	acceptRunes int
	updates     []string
	replies     []string
}

func (f *fakeSink) Update(_ context.Context, _, text string) error {
	if f.acceptRunes > 0 && len([]rune(text)) > f.acceptRunes {
		return fmt.Errorf("%w: rejected", messenger.ErrTooLong)
	}
	f.updates = append(f.updates, text)
	return nil
}

func (f *fakeSink) PostReply(_ context.Context, _, text string) (string, error) {
	if f.acceptRunes > 0 && len([]rune(text)) > f.acceptRunes {
		return "", fmt.Errorf("%w: rejected", messenger.ErrTooLong)
	}
	f.replies = append(f.replies, text)
	return "om_reply", nil
}

func TestPublishSinglePagePatchesStatus(t *testing.T) {
	t.Parallel()

	sink := &fakeSink{}
	pub := NewPublisher(nil, sink, 4000)
	if err := pub.Publish(context.Background(), "om_status", "om_root", "hello"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(sink.updates) != 1 || len(sink.replies) != 0 {
		t.Fatalf("expected one patch and no replies, got %d/%d", len(sink.updates), len(sink.replies))
	}
	if sink.updates[0] != "hello" {
		t.Fatalf("unexpected status body: %q", sink.updates[0])
	}
}

func TestPublishOverflowGoesToReplies(t *testing.T) {
	t.Parallel()

	sink := &fakeSink{}
	pub := NewPublisher(nil, sink, 600)
	body := strings.Repeat("sentence in a paragraph\n\n", 100)
	if err := pub.Publish(context.Background(), "om_status", "om_root", body); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(sink.updates) != 1 {
		t.Fatalf("expected exactly one status patch, got %d", len(sink.updates))
	}
	if len(sink.replies) == 0 {
		t.Fatal("expected overflow pages as replies")
	}
}

func TestPublishHalvesOnTooLong(t *testing.T) {
	t.Parallel()

	// The sink enforces a stricter ceiling than the publisher's limit.
	sink := &fakeSink{acceptRunes: 1200}
	pub := NewPublisher(nil, sink, 4000)
	body := strings.Repeat("w", 3000)
	if err := pub.Publish(context.Background(), "om_status", "om_root", body); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(sink.updates) != 1 {
		t.Fatalf("expected one accepted patch, got %d", len(sink.updates))
	}
	if !strings.Contains(sink.updates[0], truncationNotice) {
		t.Error("halved body missing the truncation notice")
	}
	if n := len([]rune(sink.updates[0])); n > 1200 {
		t.Errorf("accepted body has %d runes, over the sink ceiling", n)
	}
}

func TestPublishPropagatesAtFloor(t *testing.T) {
	t.Parallel()

	// Nothing is ever accepted; once the body is at the floor the error
	// must surface instead of looping.
	sink := &fakeSink{acceptRunes: 1}
	pub := NewPublisher(nil, sink, 4000)
	err := pub.Publish(context.Background(), "om_status", "om_root", strings.Repeat("w", 3000))
	if err == nil {
		t.Fatal("expected error")
	}
	if !errors.Is(err, messenger.ErrTooLong) {
		t.Fatalf("expected ErrTooLong, got %v", err)
	}
}

func TestPublishEmptyBodyFails(t *testing.T) {
	t.Parallel()

	pub := NewPublisher(nil, &fakeSink{}, 4000)
	if err := pub.Publish(context.Background(), "om_status", "om_root", "  "); err == nil {
		t.Fatal("expected error for empty body")
	}
}
