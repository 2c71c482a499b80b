// Package postgres implements the identity repositories on PostgreSQL
// via pgx. Ownership cascades (tenant → agents → api keys) are enforced
// by foreign keys.
package postgres

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
)

const schema = `
CREATE TABLE IF NOT EXISTS tenants (
	id               TEXT PRIMARY KEY,
	name             TEXT NOT NULL,
	parent_id        TEXT REFERENCES tenants(id),
	status           TEXT NOT NULL DEFAULT 'active',
	provider_config  JSONB,
	system_prompt    TEXT,
	skills           JSONB,
	mcp_endpoints    JSONB,
	available_models JSONB,
	created_at       TIMESTAMPTZ NOT NULL,
	updated_at       TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS agents (
	id                       TEXT PRIMARY KEY,
	tenant_id                TEXT NOT NULL REFERENCES tenants(id) ON DELETE CASCADE,
	name                     TEXT NOT NULL,
	provider_config          JSONB,
	system_prompt            TEXT,
	skills                   JSONB,
	mcp_endpoints            JSONB,
	available_models         JSONB,
	policies                 JSONB,
	conversations_enabled    BOOLEAN NOT NULL DEFAULT FALSE,
	conversation_token_limit INTEGER NOT NULL DEFAULT 4000,
	summary_model            TEXT,
	created_at               TIMESTAMPTZ NOT NULL,
	updated_at               TIMESTAMPTZ NOT NULL,
	UNIQUE (tenant_id, name)
);

CREATE TABLE IF NOT EXISTS users (
	id            TEXT PRIMARY KEY,
	email         TEXT NOT NULL UNIQUE,
	password_hash TEXT NOT NULL,
	created_at    TIMESTAMPTZ NOT NULL,
	updated_at    TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS tenant_memberships (
	user_id   TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
	tenant_id TEXT NOT NULL REFERENCES tenants(id) ON DELETE CASCADE,
	role      TEXT NOT NULL,
	joined_at TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (user_id, tenant_id)
);

CREATE TABLE IF NOT EXISTS invites (
	id         TEXT PRIMARY KEY,
	tenant_id  TEXT NOT NULL REFERENCES tenants(id) ON DELETE CASCADE,
	token      TEXT NOT NULL UNIQUE,
	max_uses   INTEGER,
	use_count  INTEGER NOT NULL DEFAULT 0,
	expires_at TIMESTAMPTZ NOT NULL,
	revoked_at TIMESTAMPTZ,
	created_by TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS api_keys (
	id         TEXT PRIMARY KEY,
	agent_id   TEXT NOT NULL REFERENCES agents(id) ON DELETE CASCADE,
	tenant_id  TEXT NOT NULL,
	name       TEXT NOT NULL,
	key_hash   TEXT NOT NULL,
	prefix     TEXT NOT NULL,
	status     TEXT NOT NULL DEFAULT 'active',
	revoked_at TIMESTAMPTZ,
	created_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_api_keys_key_hash ON api_keys (key_hash);
CREATE INDEX IF NOT EXISTS idx_agents_tenant ON agents (tenant_id);
CREATE INDEX IF NOT EXISTS idx_memberships_tenant ON tenant_memberships (tenant_id);
`

// EnsureSchema creates the identity tables when they do not exist yet.
// Production deployments run real migrations instead; this keeps dev and
// test environments self-contained.
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	_, err := pool.Exec(ctx, schema)
	return err
}
