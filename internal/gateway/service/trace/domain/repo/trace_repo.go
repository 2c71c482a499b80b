// Package repo defines the persistence interface of the trace module.
package repo

import (
	"context"
	"time"

	"github.com/loomhq/loom/internal/gateway/service/trace/domain/entity"
)

// TraceRepository persists trace rows.
type TraceRepository interface {
	// InsertBatch appends a batch of traces.
	InsertBatch(ctx context.Context, traces []*entity.Trace) error

	// List returns a tenant's traces newest first. cursor is the opaque
	// position from a previous page, empty for the first; the returned
	// cursor is empty when the page is the last.
	List(ctx context.Context, tenantID string, limit int, cursor string) ([]*entity.Trace, string, error)

	// Aggregate rolls up a tenant's traces created in [from, to).
	Aggregate(ctx context.Context, tenantID string, from, to time.Time) (*entity.AggregateStats, error)
}
