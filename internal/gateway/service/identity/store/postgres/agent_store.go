package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/loomhq/loom/internal/gateway/pkg/errno"
	"github.com/loomhq/loom/internal/gateway/service/identity/domain/entity"
	"github.com/loomhq/loom/pkg/utils/json"
)

// AgentStore implements repo.AgentRepository on PostgreSQL.
type AgentStore struct {
	pool *pgxpool.Pool
}

// NewAgentStore creates an AgentStore on the shared pool.
func NewAgentStore(pool *pgxpool.Pool) *AgentStore {
	return &AgentStore{pool: pool}
}

const agentColumns = `id, tenant_id, name, provider_config, system_prompt, skills,
	mcp_endpoints, available_models, policies, conversations_enabled,
	conversation_token_limit, summary_model, created_at, updated_at`

func (s *AgentStore) Create(ctx context.Context, a *entity.Agent) error {
	pc, sk, ep, am, err := marshalOverride(&a.ConfigOverride)
	if err != nil {
		return err
	}
	pol, err := json.Marshal(a.Policies)
	if err != nil {
		return fmt.Errorf("marshal policies: %w", err)
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO agents (`+agentColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
		a.ID, a.TenantID, a.Name, pc, a.SystemPrompt, sk, ep, am, pol,
		a.ConversationsEnabled, a.ConversationTokenLimit, nullableString(a.SummaryModel),
		a.CreatedAt, a.UpdatedAt)
	if err != nil {
		if strings.Contains(err.Error(), "agents_tenant_id_name_key") {
			return errno.ErrDuplicateName
		}
		return fmt.Errorf("insert agent: %w", err)
	}
	return nil
}

func (s *AgentStore) Get(ctx context.Context, id string) (*entity.Agent, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+agentColumns+` FROM agents WHERE id = $1`, id)
	return scanAgent(row)
}

func (s *AgentStore) GetByName(ctx context.Context, tenantID, name string) (*entity.Agent, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+agentColumns+` FROM agents WHERE tenant_id = $1 AND name = $2`, tenantID, name)
	return scanAgent(row)
}

func (s *AgentStore) Update(ctx context.Context, a *entity.Agent) error {
	pc, sk, ep, am, err := marshalOverride(&a.ConfigOverride)
	if err != nil {
		return err
	}
	pol, err := json.Marshal(a.Policies)
	if err != nil {
		return fmt.Errorf("marshal policies: %w", err)
	}
	tag, err := s.pool.Exec(ctx, `
		UPDATE agents SET name = $2, provider_config = $3, system_prompt = $4, skills = $5,
			mcp_endpoints = $6, available_models = $7, policies = $8,
			conversations_enabled = $9, conversation_token_limit = $10, summary_model = $11,
			updated_at = $12
		WHERE id = $1`,
		a.ID, a.Name, pc, a.SystemPrompt, sk, ep, am, pol,
		a.ConversationsEnabled, a.ConversationTokenLimit, nullableString(a.SummaryModel), a.UpdatedAt)
	if err != nil {
		return fmt.Errorf("update agent: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return errno.ErrAgentNotFound
	}
	return nil
}

func (s *AgentStore) Delete(ctx context.Context, id string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM agents WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete agent: %w", err)
	}
	return nil
}

func (s *AgentStore) ListByTenant(ctx context.Context, tenantID string) ([]*entity.Agent, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+agentColumns+` FROM agents WHERE tenant_id = $1 ORDER BY created_at`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("list agents: %w", err)
	}
	defer rows.Close()

	var out []*entity.Agent
	for rows.Next() {
		a, err := scanAgent(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func scanAgent(row pgx.Row) (*entity.Agent, error) {
	var (
		a                   entity.Agent
		pc, sk, ep, am, pol []byte
		summaryModel        *string
	)
	err := row.Scan(&a.ID, &a.TenantID, &a.Name, &pc, &a.SystemPrompt, &sk, &ep, &am, &pol,
		&a.ConversationsEnabled, &a.ConversationTokenLimit, &summaryModel, &a.CreatedAt, &a.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, errno.ErrAgentNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan agent: %w", err)
	}
	if err := unmarshalOverride(&a.ConfigOverride, pc, sk, ep, am); err != nil {
		return nil, err
	}
	if len(pol) > 0 {
		if err := json.Unmarshal(pol, &a.Policies); err != nil {
			return nil, fmt.Errorf("unmarshal policies: %w", err)
		}
	}
	if summaryModel != nil {
		a.SummaryModel = *summaryModel
	}
	return &a, nil
}

func nullableString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
