package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/loomhq/loom/internal/gateway/pkg/errno"
	"github.com/loomhq/loom/internal/gateway/service/identity/domain/entity"
)

// APIKeyStore implements repo.APIKeyRepository on PostgreSQL.
type APIKeyStore struct {
	pool *pgxpool.Pool
}

// NewAPIKeyStore creates an APIKeyStore on the shared pool.
func NewAPIKeyStore(pool *pgxpool.Pool) *APIKeyStore {
	return &APIKeyStore{pool: pool}
}

const apiKeyColumns = `id, agent_id, tenant_id, name, key_hash, prefix, status, revoked_at, created_at`

func (s *APIKeyStore) Create(ctx context.Context, k *entity.APIKey) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO api_keys (`+apiKeyColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		k.ID, k.AgentID, k.TenantID, k.Name, k.KeyHash, k.Prefix, k.Status, k.RevokedAt, k.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert api key: %w", err)
	}
	return nil
}

// GetByHash is the hot path of data-plane authentication; it hits
// idx_api_keys_key_hash and returns revoked keys too so the caller can
// distinguish a bad key from a revoked one.
func (s *APIKeyStore) GetByHash(ctx context.Context, keyHash string) (*entity.APIKey, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+apiKeyColumns+` FROM api_keys WHERE key_hash = $1`, keyHash)
	return scanAPIKey(row)
}

func (s *APIKeyStore) Get(ctx context.Context, id string) (*entity.APIKey, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+apiKeyColumns+` FROM api_keys WHERE id = $1`, id)
	return scanAPIKey(row)
}

func (s *APIKeyStore) Update(ctx context.Context, k *entity.APIKey) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE api_keys SET name = $2, status = $3, revoked_at = $4 WHERE id = $1`,
		k.ID, k.Name, k.Status, k.RevokedAt)
	if err != nil {
		return fmt.Errorf("update api key: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return errno.ErrAPIKeyNotFound
	}
	return nil
}

func (s *APIKeyStore) ListByAgent(ctx context.Context, agentID string) ([]*entity.APIKey, error) {
	return s.list(ctx, `SELECT `+apiKeyColumns+` FROM api_keys WHERE agent_id = $1 ORDER BY created_at`, agentID)
}

func (s *APIKeyStore) ListByTenant(ctx context.Context, tenantID string) ([]*entity.APIKey, error) {
	return s.list(ctx, `SELECT `+apiKeyColumns+` FROM api_keys WHERE tenant_id = $1 ORDER BY created_at`, tenantID)
}

func (s *APIKeyStore) list(ctx context.Context, query, arg string) ([]*entity.APIKey, error) {
	rows, err := s.pool.Query(ctx, query, arg)
	if err != nil {
		return nil, fmt.Errorf("list api keys: %w", err)
	}
	defer rows.Close()

	var out []*entity.APIKey
	for rows.Next() {
		k, err := scanAPIKey(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, k)
	}
	return out, rows.Err()
}

func scanAPIKey(row pgx.Row) (*entity.APIKey, error) {
	var k entity.APIKey
	err := row.Scan(&k.ID, &k.AgentID, &k.TenantID, &k.Name, &k.KeyHash, &k.Prefix,
		&k.Status, &k.RevokedAt, &k.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, errno.ErrAPIKeyNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan api key: %w", err)
	}
	return &k, nil
}
