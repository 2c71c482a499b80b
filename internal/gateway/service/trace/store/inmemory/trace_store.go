// Package inmemory implements the trace repository on a slice, for
// tests.
package inmemory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/loomhq/loom/internal/gateway/service/trace/domain/entity"
)

// TraceStore implements repo.TraceRepository in memory.
type TraceStore struct {
	mu     sync.RWMutex
	traces []entity.Trace
}

// NewTraceStore creates an empty TraceStore.
func NewTraceStore() *TraceStore {
	return &TraceStore{}
}

func (s *TraceStore) InsertBatch(_ context.Context, traces []*entity.Trace) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range traces {
		s.traces = append(s.traces, *t)
	}
	return nil
}

// Len returns the stored row count, for tests.
func (s *TraceStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.traces)
}

func (s *TraceStore) List(_ context.Context, tenantID string, limit int, cursor string) ([]*entity.Trace, string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var rows []*entity.Trace
	for i := range s.traces {
		if s.traces[i].TenantID == tenantID {
			t := s.traces[i]
			rows = append(rows, &t)
		}
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].CreatedAt.Equal(rows[j].CreatedAt) {
			return rows[i].ID > rows[j].ID
		}
		return rows[i].CreatedAt.After(rows[j].CreatedAt)
	})

	start := 0
	if cursor != "" {
		for i, t := range rows {
			if t.ID == cursor {
				start = i + 1
				break
			}
		}
	}
	if start >= len(rows) {
		return nil, "", nil
	}
	rows = rows[start:]

	if limit > 0 && len(rows) > limit {
		page := rows[:limit]
		return page, page[len(page)-1].ID, nil
	}
	return rows, "", nil
}

func (s *TraceStore) Aggregate(_ context.Context, tenantID string, from, to time.Time) (*entity.AggregateStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := &entity.AggregateStats{}
	var latencySum int64
	for i := range s.traces {
		t := &s.traces[i]
		if t.TenantID != tenantID || t.CreatedAt.Before(from) || !t.CreatedAt.Before(to) {
			continue
		}
		stats.Count++
		latencySum += t.LatencyMs
		stats.PromptTokens += int64(t.PromptTokens)
		stats.CompletionTokens += int64(t.CompletionTokens)
		stats.TotalTokens += int64(t.TotalTokens)
	}
	if stats.Count > 0 {
		stats.AvgLatencyMs = float64(latencySum) / float64(stats.Count)
	}
	return stats, nil
}
