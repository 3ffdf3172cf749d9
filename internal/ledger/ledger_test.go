package ledger

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
)

type memStore struct {
	mu       sync.Mutex
	blobs    map[string][]byte
	versions map[string]int64
	// conflictsBeforeWrite forces the first N Put calls to fail with
	// ErrVersionConflict regardless of version.
	conflictsBeforeWrite int
	putCalls             int
}

func newMemStore() *memStore {
	return &memStore{
		blobs:    map[string][]byte{},
		versions: map[string]int64{},
	}
}

func (s *memStore) Get(ctx context.Context, key string) ([]byte, int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.blobs[key]
	if !ok {
		return nil, 0, ErrNotFound
	}
	return data, s.versions[key], nil
}

func (s *memStore) Put(ctx context.Context, key string, data []byte, expectedVersion int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.putCalls++
	if s.conflictsBeforeWrite > 0 {
		s.conflictsBeforeWrite--
		return ErrVersionConflict
	}
	current, exists := s.versions[key]
	if expectedVersion == 0 {
		if exists {
			return ErrVersionConflict
		}
		s.blobs[key] = data
		s.versions[key] = 1
		return nil
	}
	if !exists || current != expectedVersion {
		return ErrVersionConflict
	}
	s.blobs[key] = data
	s.versions[key] = current + 1
	return nil
}

func (s *memStore) record(t *testing.T, key string) Record {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	var record Record
	if err := json.Unmarshal(s.blobs[key], &record); err != nil {
		t.Fatalf("decode record: %v", err)
	}
	return record
}

func TestGetProcessedMissingRecordIsEmptySet(t *testing.T) {
	t.Parallel()

	svc := NewService(nil, newMemStore())
	ids, err := svc.GetProcessed(context.Background(), Key("oc_1", "om_1"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(ids) != 0 {
		t.Fatalf("expected empty set, got %v", ids)
	}
}

func TestMarkProcessedCreatesRecord(t *testing.T) {
	t.Parallel()

	store := newMemStore()
	svc := NewService(nil, store)
	key := Key("oc_1", "om_1")

	if err := svc.MarkProcessed(context.Background(), key, []string{"b", "a"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	record := store.record(t, key)
	if len(record.ProcessedFileIDs) != 2 {
		t.Fatalf("unexpected ids: %v", record.ProcessedFileIDs)
	}
	if record.LastUpdated.IsZero() {
		t.Fatal("expected lastUpdated to be set")
	}
}

func TestMarkProcessedMergesWithoutShrinking(t *testing.T) {
	t.Parallel()

	store := newMemStore()
	svc := NewService(nil, store)
	key := Key("oc_1", "om_1")
	ctx := context.Background()

	if err := svc.MarkProcessed(ctx, key, []string{"a", "b"}); err != nil {
		t.Fatal(err)
	}
	if err := svc.MarkProcessed(ctx, key, []string{"b", "c"}); err != nil {
		t.Fatal(err)
	}

	ids, err := svc.GetProcessed(ctx, key)
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{"a", "b", "c"} {
		if _, ok := ids[want]; !ok {
			t.Fatalf("missing id %q in %v", want, ids)
		}
	}
	if len(ids) != 3 {
		t.Fatalf("expected 3 ids, got %v", ids)
	}
}

func TestMarkProcessedMonotonicAcrossRuns(t *testing.T) {
	t.Parallel()

	store := newMemStore()
	svc := NewService(nil, store)
	key := Key("oc_1", "om_1")
	ctx := context.Background()

	batches := [][]string{{"a"}, {"b", "a"}, {"c"}, {"a", "b", "c"}}
	prevSize := 0
	for _, batch := range batches {
		if err := svc.MarkProcessed(ctx, key, batch); err != nil {
			t.Fatal(err)
		}
		ids, err := svc.GetProcessed(ctx, key)
		if err != nil {
			t.Fatal(err)
		}
		if len(ids) < prevSize {
			t.Fatalf("processed set shrank: %d -> %d", prevSize, len(ids))
		}
		prevSize = len(ids)
	}
	if prevSize != 3 {
		t.Fatalf("expected 3 ids after all runs, got %d", prevSize)
	}
}

func TestMarkProcessedNoWriteWhenAllPresent(t *testing.T) {
	t.Parallel()

	store := newMemStore()
	svc := NewService(nil, store)
	key := Key("oc_1", "om_1")
	ctx := context.Background()

	if err := svc.MarkProcessed(ctx, key, []string{"a", "b"}); err != nil {
		t.Fatal(err)
	}
	writesBefore := store.putCalls
	if err := svc.MarkProcessed(ctx, key, []string{"a"}); err != nil {
		t.Fatal(err)
	}
	if store.putCalls != writesBefore {
		t.Fatal("expected no write when ids are already present")
	}
}

func TestMarkProcessedRetriesOnVersionConflict(t *testing.T) {
	t.Parallel()

	store := newMemStore()
	store.conflictsBeforeWrite = 2
	svc := NewService(nil, store)
	key := Key("oc_1", "om_1")

	if err := svc.MarkProcessed(context.Background(), key, []string{"a"}); err != nil {
		t.Fatalf("expected retry to succeed, got: %v", err)
	}
	record := store.record(t, key)
	if len(record.ProcessedFileIDs) != 1 || record.ProcessedFileIDs[0] != "a" {
		t.Fatalf("unexpected ids: %v", record.ProcessedFileIDs)
	}
}

func TestMarkProcessedGivesUpAfterMaxConflicts(t *testing.T) {
	t.Parallel()

	store := newMemStore()
	store.conflictsBeforeWrite = casMaxAttempts + 1
	svc := NewService(nil, store)

	err := svc.MarkProcessed(context.Background(), Key("oc_1", "om_1"), []string{"a"})
	if err == nil {
		t.Fatal("expected error after exhausting retries")
	}
}

func TestMergeIDsDropsBlanksAndDuplicates(t *testing.T) {
	t.Parallel()

	merged, added := mergeIDs([]string{"x", "", "x"}, []string{" ", "y", "x", "y"})
	if len(merged) != 2 || merged[0] != "x" || merged[1] != "y" {
		t.Fatalf("unexpected merge result: %v", merged)
	}
	if added != 1 {
		t.Fatalf("expected 1 added id, got %d", added)
	}
}

func TestMarkProcessedWritesDespiteDirtyStoredRecord(t *testing.T) {
	t.Parallel()

	// A record written by another client may carry duplicate or blank ids.
	// Dedup shrinks it to the same length as the incoming merge, which must
	// not mask a genuinely new id.
	store := newMemStore()
	key := Key("oc_1", "om_1")
	blob, err := json.Marshal(Record{ProcessedFileIDs: []string{"a", "a", ""}})
	if err != nil {
		t.Fatal(err)
	}
	store.blobs[key] = blob
	store.versions[key] = 1

	svc := NewService(nil, store)
	ctx := context.Background()
	if err := svc.MarkProcessed(ctx, key, []string{"b", "c"}); err != nil {
		t.Fatal(err)
	}

	ids, err := svc.GetProcessed(ctx, key)
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{"a", "b", "c"} {
		if _, ok := ids[want]; !ok {
			t.Fatalf("missing id %q in %v", want, ids)
		}
	}
	record := store.record(t, key)
	if len(record.ProcessedFileIDs) != 3 {
		t.Fatalf("expected clean 3-id record, got %v", record.ProcessedFileIDs)
	}
}
