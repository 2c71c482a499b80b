package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/loomhq/loom/internal/gateway/pkg/errno"
	"github.com/loomhq/loom/internal/gateway/service/identity/domain/entity"
	"github.com/loomhq/loom/pkg/utils/json"
)

// TenantStore implements repo.TenantRepository on PostgreSQL.
type TenantStore struct {
	pool *pgxpool.Pool
}

// NewTenantStore creates a TenantStore on the shared pool.
func NewTenantStore(pool *pgxpool.Pool) *TenantStore {
	return &TenantStore{pool: pool}
}

const tenantColumns = `id, name, parent_id, status, provider_config, system_prompt,
	skills, mcp_endpoints, available_models, created_at, updated_at`

func (s *TenantStore) Create(ctx context.Context, t *entity.Tenant) error {
	pc, sk, ep, am, err := marshalOverride(&t.ConfigOverride)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO tenants (`+tenantColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		t.ID, t.Name, t.ParentID, t.Status, pc, t.SystemPrompt, sk, ep, am, t.CreatedAt, t.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert tenant: %w", err)
	}
	return nil
}

func (s *TenantStore) Get(ctx context.Context, id string) (*entity.Tenant, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+tenantColumns+` FROM tenants WHERE id = $1`, id)
	return scanTenant(row)
}

func (s *TenantStore) Update(ctx context.Context, t *entity.Tenant) error {
	pc, sk, ep, am, err := marshalOverride(&t.ConfigOverride)
	if err != nil {
		return err
	}
	tag, err := s.pool.Exec(ctx, `
		UPDATE tenants SET name = $2, parent_id = $3, status = $4, provider_config = $5,
			system_prompt = $6, skills = $7, mcp_endpoints = $8, available_models = $9,
			updated_at = $10
		WHERE id = $1`,
		t.ID, t.Name, t.ParentID, t.Status, pc, t.SystemPrompt, sk, ep, am, t.UpdatedAt)
	if err != nil {
		return fmt.Errorf("update tenant: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return errno.ErrTenantNotFound
	}
	return nil
}

func (s *TenantStore) ListChildren(ctx context.Context, parentID string) ([]*entity.Tenant, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+tenantColumns+` FROM tenants WHERE parent_id = $1 ORDER BY created_at`, parentID)
	if err != nil {
		return nil, fmt.Errorf("list children: %w", err)
	}
	defer rows.Close()

	var out []*entity.Tenant
	for rows.Next() {
		t, err := scanTenant(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func scanTenant(row pgx.Row) (*entity.Tenant, error) {
	var (
		t              entity.Tenant
		pc, sk, ep, am []byte
	)
	err := row.Scan(&t.ID, &t.Name, &t.ParentID, &t.Status, &pc, &t.SystemPrompt,
		&sk, &ep, &am, &t.CreatedAt, &t.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, errno.ErrTenantNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan tenant: %w", err)
	}
	if err := unmarshalOverride(&t.ConfigOverride, pc, sk, ep, am); err != nil {
		return nil, err
	}
	return &t, nil
}

// marshalOverride serialises the nullable jsonb columns of a ConfigOverride.
func marshalOverride(o *entity.ConfigOverride) (pc, sk, ep, am []byte, err error) {
	if o.ProviderConfig != nil {
		if pc, err = json.Marshal(o.ProviderConfig); err != nil {
			return nil, nil, nil, nil, fmt.Errorf("marshal provider config: %w", err)
		}
	}
	if o.Skills != nil {
		if sk, err = json.Marshal(o.Skills); err != nil {
			return nil, nil, nil, nil, fmt.Errorf("marshal skills: %w", err)
		}
	}
	if o.MCPEndpoints != nil {
		if ep, err = json.Marshal(o.MCPEndpoints); err != nil {
			return nil, nil, nil, nil, fmt.Errorf("marshal mcp endpoints: %w", err)
		}
	}
	if o.AvailableModels != nil {
		if am, err = json.Marshal(o.AvailableModels); err != nil {
			return nil, nil, nil, nil, fmt.Errorf("marshal available models: %w", err)
		}
	}
	return pc, sk, ep, am, nil
}

func unmarshalOverride(o *entity.ConfigOverride, pc, sk, ep, am []byte) error {
	if len(pc) > 0 {
		o.ProviderConfig = &entity.ProviderConfig{}
		if err := json.Unmarshal(pc, o.ProviderConfig); err != nil {
			return fmt.Errorf("unmarshal provider config: %w", err)
		}
	}
	if len(sk) > 0 {
		if err := json.Unmarshal(sk, &o.Skills); err != nil {
			return fmt.Errorf("unmarshal skills: %w", err)
		}
	}
	if len(ep) > 0 {
		if err := json.Unmarshal(ep, &o.MCPEndpoints); err != nil {
			return fmt.Errorf("unmarshal mcp endpoints: %w", err)
		}
	}
	if len(am) > 0 {
		if err := json.Unmarshal(am, &o.AvailableModels); err != nil {
			return fmt.Errorf("unmarshal available models: %w", err)
		}
	}
	return nil
}
