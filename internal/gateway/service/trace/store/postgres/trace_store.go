// Package postgres implements the trace repository on PostgreSQL via
// pgx. Batches go through pgx.Batch; listing is keyset-paginated on
// (created_at, id).
package postgres

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/loomhq/loom/internal/gateway/service/trace/domain/entity"
)

const schema = `
CREATE TABLE IF NOT EXISTS traces (
	id                  TEXT PRIMARY KEY,
	tenant_id           TEXT NOT NULL,
	agent_id            TEXT,
	model               TEXT NOT NULL DEFAULT '',
	provider            TEXT NOT NULL DEFAULT '',
	request_ciphertext  BYTEA,
	request_iv          BYTEA,
	response_ciphertext BYTEA,
	response_iv         BYTEA,
	status_code         INTEGER NOT NULL DEFAULT 0,
	latency_ms          BIGINT NOT NULL DEFAULT 0,
	ttfb_ms             BIGINT NOT NULL DEFAULT 0,
	gateway_overhead_ms BIGINT NOT NULL DEFAULT 0,
	prompt_tokens       INTEGER NOT NULL DEFAULT 0,
	completion_tokens   INTEGER NOT NULL DEFAULT 0,
	total_tokens        INTEGER NOT NULL DEFAULT 0,
	created_at          TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_traces_tenant_created ON traces (tenant_id, created_at DESC, id DESC);
`

// EnsureSchema creates the trace table when it does not exist.
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	_, err := pool.Exec(ctx, schema)
	return err
}

// TraceStore implements repo.TraceRepository on PostgreSQL.
type TraceStore struct {
	pool *pgxpool.Pool
}

// NewTraceStore creates a TraceStore on the shared pool.
func NewTraceStore(pool *pgxpool.Pool) *TraceStore {
	return &TraceStore{pool: pool}
}

const traceColumns = `id, tenant_id, agent_id, model, provider,
	request_ciphertext, request_iv, response_ciphertext, response_iv,
	status_code, latency_ms, ttfb_ms, gateway_overhead_ms,
	prompt_tokens, completion_tokens, total_tokens, created_at`

func (s *TraceStore) InsertBatch(ctx context.Context, traces []*entity.Trace) error {
	batch := &pgx.Batch{}
	for _, t := range traces {
		batch.Queue(`
			INSERT INTO traces (`+traceColumns+`)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)`,
			t.ID, t.TenantID, t.AgentID, t.Model, t.Provider,
			t.RequestCiphertext, t.RequestIV, t.ResponseCiphertext, t.ResponseIV,
			t.StatusCode, t.LatencyMs, t.TTFBMs, t.GatewayOverheadMs,
			t.PromptTokens, t.CompletionTokens, t.TotalTokens, t.CreatedAt)
	}
	results := s.pool.SendBatch(ctx, batch)
	defer results.Close()
	for range traces {
		if _, err := results.Exec(); err != nil {
			return fmt.Errorf("insert trace: %w", err)
		}
	}
	return nil
}

func (s *TraceStore) List(ctx context.Context, tenantID string, limit int, cursor string) ([]*entity.Trace, string, error) {
	if limit <= 0 {
		limit = 50
	}

	var (
		rows pgx.Rows
		err  error
	)
	if cursor == "" {
		rows, err = s.pool.Query(ctx, `
			SELECT `+traceColumns+` FROM traces
			WHERE tenant_id = $1
			ORDER BY created_at DESC, id DESC LIMIT $2`, tenantID, limit+1)
	} else {
		var at time.Time
		var id string
		if at, id, err = decodeCursor(cursor); err != nil {
			return nil, "", err
		}
		rows, err = s.pool.Query(ctx, `
			SELECT `+traceColumns+` FROM traces
			WHERE tenant_id = $1 AND (created_at, id) < ($2, $3)
			ORDER BY created_at DESC, id DESC LIMIT $4`, tenantID, at, id, limit+1)
	}
	if err != nil {
		return nil, "", fmt.Errorf("list traces: %w", err)
	}
	defer rows.Close()

	var out []*entity.Trace
	for rows.Next() {
		t, err := scanTrace(rows)
		if err != nil {
			return nil, "", err
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, "", err
	}

	next := ""
	if len(out) > limit {
		out = out[:limit]
		last := out[len(out)-1]
		next = encodeCursor(last.CreatedAt, last.ID)
	}
	return out, next, nil
}

func (s *TraceStore) Aggregate(ctx context.Context, tenantID string, from, to time.Time) (*entity.AggregateStats, error) {
	stats := &entity.AggregateStats{}
	err := s.pool.QueryRow(ctx, `
		SELECT COUNT(*),
			COALESCE(AVG(latency_ms), 0),
			COALESCE(SUM(prompt_tokens), 0),
			COALESCE(SUM(completion_tokens), 0),
			COALESCE(SUM(total_tokens), 0)
		FROM traces
		WHERE tenant_id = $1 AND created_at >= $2 AND created_at < $3`,
		tenantID, from, to).
		Scan(&stats.Count, &stats.AvgLatencyMs, &stats.PromptTokens, &stats.CompletionTokens, &stats.TotalTokens)
	if err != nil {
		return nil, fmt.Errorf("aggregate traces: %w", err)
	}
	return stats, nil
}

func scanTrace(row pgx.Row) (*entity.Trace, error) {
	var t entity.Trace
	err := row.Scan(&t.ID, &t.TenantID, &t.AgentID, &t.Model, &t.Provider,
		&t.RequestCiphertext, &t.RequestIV, &t.ResponseCiphertext, &t.ResponseIV,
		&t.StatusCode, &t.LatencyMs, &t.TTFBMs, &t.GatewayOverheadMs,
		&t.PromptTokens, &t.CompletionTokens, &t.TotalTokens, &t.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("scan trace: %w", err)
	}
	return &t, nil
}

func encodeCursor(at time.Time, id string) string {
	return at.UTC().Format(time.RFC3339Nano) + "|" + id
}

func decodeCursor(cursor string) (time.Time, string, error) {
	stamp, id, ok := strings.Cut(cursor, "|")
	if !ok {
		return time.Time{}, "", fmt.Errorf("malformed cursor")
	}
	at, err := time.Parse(time.RFC3339Nano, stamp)
	if err != nil {
		return time.Time{}, "", fmt.Errorf("malformed cursor: %w", err)
	}
	return at, id, nil
}
