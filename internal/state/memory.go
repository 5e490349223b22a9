package state

import (
	"context"
	"sort"
	"sync"
	"time"

	"dayrun/internal/day"
)

// MemoryStore keeps records in process memory. It is used by tests and by
// the memory backend for dry runs.
type MemoryStore struct {
	mu      sync.Mutex
	records map[day.Day]Record
	// FailPut, when set, is returned (wrapped) by Put to simulate storage faults.
	FailPut error
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[day.Day]Record)}
}

func (m *MemoryStore) Get(_ context.Context, d day.Day) (Record, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[d]
	return rec, ok, nil
}

func (m *MemoryStore) Put(_ context.Context, rec Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailPut != nil {
		return persistenceError("put", rec.Day.String(), m.FailPut)
	}
	now := time.Now().UTC()
	if existing, ok := m.records[rec.Day]; ok && !existing.CreatedAt.IsZero() {
		rec.CreatedAt = existing.CreatedAt
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}
	rec.UpdatedAt = now
	m.records[rec.Day] = rec
	return nil
}

func (m *MemoryStore) List(_ context.Context, filter Filter) ([]Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return filterRecords(m.records, filter), nil
}

func (m *MemoryStore) Reset(_ context.Context, d day.Day) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[d]
	if !ok {
		return nil
	}
	rec.Status = StatusPending
	rec.LastError = ""
	rec.ErrorKind = ""
	rec.UpdatedAt = time.Now().UTC()
	m.records[d] = rec
	return nil
}

func (m *MemoryStore) ReclaimInterrupted(_ context.Context, runID string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var count int64
	for d, rec := range m.records {
		if rec.Status != StatusRunning || rec.RunID == runID {
			continue
		}
		rec.Status = StatusFailed
		rec.LastError = InterruptedError
		rec.ErrorKind = ""
		rec.UpdatedAt = time.Now().UTC()
		m.records[d] = rec
		count++
	}
	return count, nil
}

func (m *MemoryStore) Close() error { return nil }

func filterRecords(records map[day.Day]Record, filter Filter) []Record {
	out := make([]Record, 0, len(records))
	for _, rec := range records {
		if filter.matches(rec) {
			out = append(out, rec)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Day.Before(out[j].Day) })
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out
}
