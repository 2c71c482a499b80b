// Package postgres implements the conversation repositories on
// PostgreSQL via pgx. Materialisation is idempotent through ON CONFLICT
// DO NOTHING plus reselect; snapshot creation serialises on a
// transaction-scoped advisory lock.
package postgres

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
)

const schema = `
CREATE TABLE IF NOT EXISTS partitions (
	id          TEXT PRIMARY KEY,
	tenant_id   TEXT NOT NULL,
	external_id TEXT NOT NULL,
	parent_id   TEXT REFERENCES partitions(id),
	title       TEXT,
	created_at  TIMESTAMPTZ NOT NULL,
	UNIQUE (tenant_id, external_id)
);

CREATE TABLE IF NOT EXISTS conversations (
	id             TEXT PRIMARY KEY,
	tenant_id      TEXT NOT NULL,
	external_id    TEXT NOT NULL,
	agent_id       TEXT,
	partition_id   TEXT REFERENCES partitions(id),
	created_at     TIMESTAMPTZ NOT NULL,
	last_active_at TIMESTAMPTZ NOT NULL,
	UNIQUE (tenant_id, external_id)
);

CREATE TABLE IF NOT EXISTS conversation_messages (
	id              TEXT PRIMARY KEY,
	conversation_id TEXT NOT NULL REFERENCES conversations(id) ON DELETE CASCADE,
	role            TEXT NOT NULL,
	ciphertext      BYTEA NOT NULL,
	iv              BYTEA NOT NULL,
	token_estimate  INTEGER NOT NULL DEFAULT 0,
	snapshot_id     TEXT,
	created_at      TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS conversation_snapshots (
	id              TEXT PRIMARY KEY,
	conversation_id TEXT NOT NULL REFERENCES conversations(id) ON DELETE CASCADE,
	ciphertext      BYTEA NOT NULL,
	iv              BYTEA NOT NULL,
	archived_count  INTEGER NOT NULL DEFAULT 0,
	created_at      TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_messages_conv_created ON conversation_messages (conversation_id, created_at);
CREATE INDEX IF NOT EXISTS idx_snapshots_conv_created ON conversation_snapshots (conversation_id, created_at DESC);
CREATE INDEX IF NOT EXISTS idx_conversations_tenant ON conversations (tenant_id, last_active_at DESC);
`

// EnsureSchema creates the conversation tables when they do not exist.
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	_, err := pool.Exec(ctx, schema)
	return err
}
