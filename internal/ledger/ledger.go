// Package ledger tracks which attachments of a thread were already processed.
// The record is a JSON blob per thread key; writes are read-merge-write with a
// compare-and-swap on a version token so concurrent runs cannot lose updates.
package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"
)

var (
	// ErrNotFound is returned by a VersionedStore when no blob exists for a key.
	ErrNotFound = errors.New("ledger record not found")
	// ErrVersionConflict is returned by a VersionedStore when the expected
	// version no longer matches.
	ErrVersionConflict = errors.New("ledger version conflict")
)

const casMaxAttempts = 5

// Record is the stored per-thread ledger blob. No schema version field;
// evolving the shape is a breaking change for existing keys.
type Record struct {
	ProcessedFileIDs []string  `json:"processedFileIds"`
	LastUpdated      time.Time `json:"lastUpdated"`
}

// VersionedStore is a key-addressed blob store with conditional writes.
// Put with expectedVersion 0 creates the key and fails with
// ErrVersionConflict if it already exists; any other expectedVersion replaces
// the blob only when the stored version still matches.
type VersionedStore interface {
	Get(ctx context.Context, key string) ([]byte, int64, error)
	Put(ctx context.Context, key string, data []byte, expectedVersion int64) error
}

// Service reads and merges ledger records.
type Service struct {
	store  VersionedStore
	logger *slog.Logger
	now    func() time.Time
}

func NewService(log *slog.Logger, store VersionedStore) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{
		store:  store,
		logger: log.With(slog.String("service", "ledger")),
		now:    time.Now,
	}
}

// Key derives the stable ledger key for a thread.
func Key(chatID, rootID string) string {
	return strings.TrimSpace(chatID) + ":" + strings.TrimSpace(rootID)
}

// GetProcessed returns the processed id set for a thread. A missing record is
// an empty set, not an error.
func (s *Service) GetProcessed(ctx context.Context, threadKey string) (map[string]struct{}, error) {
	data, _, err := s.store.Get(ctx, threadKey)
	if errors.Is(err, ErrNotFound) {
		return map[string]struct{}{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("ledger get: %w", err)
	}
	var record Record
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, fmt.Errorf("ledger decode: %w", err)
	}
	ids := make(map[string]struct{}, len(record.ProcessedFileIDs))
	for _, id := range record.ProcessedFileIDs {
		if id = strings.TrimSpace(id); id != "" {
			ids[id] = struct{}{}
		}
	}
	return ids, nil
}

// MarkProcessed merges newIDs into the thread's record. The stored set only
// grows; ids already present are not duplicated. Conflicting writers retry
// against the fresh version up to casMaxAttempts times.
func (s *Service) MarkProcessed(ctx context.Context, threadKey string, newIDs []string) error {
	if len(newIDs) == 0 {
		return nil
	}
	var lastErr error
	for attempt := 0; attempt < casMaxAttempts; attempt++ {
		data, version, err := s.store.Get(ctx, threadKey)
		var existing []string
		switch {
		case errors.Is(err, ErrNotFound):
			version = 0
		case err != nil:
			return fmt.Errorf("ledger get: %w", err)
		default:
			var record Record
			if err := json.Unmarshal(data, &record); err != nil {
				return fmt.Errorf("ledger decode: %w", err)
			}
			existing = record.ProcessedFileIDs
		}

		merged, added := mergeIDs(existing, newIDs)
		if added == 0 {
			return nil
		}
		blob, err := json.Marshal(Record{ProcessedFileIDs: merged, LastUpdated: s.now().UTC()})
		if err != nil {
			return fmt.Errorf("ledger encode: %w", err)
		}
		err = s.store.Put(ctx, threadKey, blob, version)
		if err == nil {
			return nil
		}
		if !errors.Is(err, ErrVersionConflict) {
			return fmt.Errorf("ledger put: %w", err)
		}
		lastErr = err
		s.logger.Debug("ledger write conflict, retrying",
			slog.String("thread_key", threadKey),
			slog.Int("attempt", attempt+1),
		)
	}
	return fmt.Errorf("ledger put: %w", lastErr)
}

// mergeIDs unions existing and incoming ids, preserving first-seen order for
// existing entries and sorting the appended new ones for stable output. The
// added count refers to incoming ids only; a stored record that shrinks from
// dedup alone does not count as a change.
func mergeIDs(existing, incoming []string) ([]string, int) {
	seen := make(map[string]struct{}, len(existing)+len(incoming))
	merged := make([]string, 0, len(existing)+len(incoming))
	for _, id := range existing {
		if id = strings.TrimSpace(id); id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		merged = append(merged, id)
	}
	added := make([]string, 0, len(incoming))
	for _, id := range incoming {
		if id = strings.TrimSpace(id); id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		added = append(added, id)
	}
	sort.Strings(added)
	return append(merged, added...), len(added)
}
