package storage

import (
	"context"
	"sort"
	"sync"
	"time"

	"mercator-hq/constitution/pkg/evidence"
	"mercator-hq/constitution/pkg/evidence/query"
)

// MemoryStorage implements evidence.Storage in memory.
type MemoryStorage struct {
	records map[string]*evidence.Record
	mu      sync.RWMutex
}

// NewMemoryStorage creates a new in-memory storage backend.
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{records: make(map[string]*evidence.Record)}
}

// Store saves a copy of record.
func (s *MemoryStorage) Store(ctx context.Context, record *evidence.Record) error {
	if err := ctx.Err(); err != nil {
		return evidence.NewStorageError("memory", "store", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	recordCopy := copyRecord(record)
	s.records[record.ID] = recordCopy
	return nil
}

// Query returns copies of matching records, sorted and paginated.
func (s *MemoryStorage) Query(ctx context.Context, q *evidence.Query) ([]*evidence.Record, error) {
	if err := query.Validate(q); err != nil {
		return nil, err
	}
	qq := *q
	query.ApplyDefaults(&qq)

	s.mu.RLock()
	results := []*evidence.Record{}
	for _, r := range s.records {
		if qq.Matches(r) {
			results = append(results, copyRecord(r))
		}
	}
	s.mu.RUnlock()

	key := sortKey(qq.SortBy)
	sort.SliceStable(results, func(i, j int) bool {
		a, b := key(results[i]), key(results[j])
		if a.Equal(b) {
			return results[i].ID < results[j].ID
		}
		if qq.SortOrder == "asc" {
			return a.Before(b)
		}
		return a.After(b)
	})

	if qq.Offset >= len(results) {
		return []*evidence.Record{}, nil
	}
	end := qq.Offset + qq.Limit
	if end > len(results) {
		end = len(results)
	}
	return results[qq.Offset:end], nil
}

// Count returns the number of matching records.
func (s *MemoryStorage) Count(ctx context.Context, q *evidence.Query) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var n int64
	for _, r := range s.records {
		if q.Matches(r) {
			n++
		}
	}
	return n, nil
}

// Delete removes matching records.
func (s *MemoryStorage) Delete(ctx context.Context, q *evidence.Query) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	for id, r := range s.records {
		if q.Matches(r) {
			delete(s.records, id)
			n++
		}
	}
	return n, nil
}

// Close is a no-op.
func (s *MemoryStorage) Close() error {
	return nil
}

func copyRecord(r *evidence.Record) *evidence.Record {
	c := *r
	c.Violations = append([]evidence.ViolationRecord(nil), r.Violations...)
	c.Diagnostics = append([]string(nil), r.Diagnostics...)
	return &c
}

// sortKey orders records by a time derived from the sort field. Duration
// is mapped onto the zero time so all keys compare as times.
func sortKey(field string) func(*evidence.Record) time.Time {
	switch field {
	case "recorded_at":
		return func(r *evidence.Record) time.Time { return r.RecordedAt }
	case "duration":
		return func(r *evidence.Record) time.Time { return time.Time{}.Add(r.Duration) }
	}
	return func(r *evidence.Record) time.Time { return r.EvaluatedAt }
}
