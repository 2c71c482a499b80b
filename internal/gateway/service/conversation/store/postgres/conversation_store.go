package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/loomhq/loom/internal/gateway/pkg/errno"
	"github.com/loomhq/loom/internal/gateway/service/conversation/domain/entity"
)

// PartitionStore implements repo.PartitionRepository on PostgreSQL.
type PartitionStore struct {
	pool *pgxpool.Pool
}

// NewPartitionStore creates a PartitionStore on the shared pool.
func NewPartitionStore(pool *pgxpool.Pool) *PartitionStore {
	return &PartitionStore{pool: pool}
}

const partitionColumns = `id, tenant_id, external_id, parent_id, title, created_at`

func (s *PartitionStore) GetOrCreate(ctx context.Context, p *entity.Partition) (*entity.Partition, error) {
	// Losing the conflict race is fine: the reselect returns the row
	// that won.
	_, err := s.pool.Exec(ctx, `
		INSERT INTO partitions (`+partitionColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (tenant_id, external_id) DO NOTHING`,
		p.ID, p.TenantID, p.ExternalID, p.ParentID, p.Title, p.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("insert partition: %w", err)
	}
	row := s.pool.QueryRow(ctx, `
		SELECT `+partitionColumns+` FROM partitions WHERE tenant_id = $1 AND external_id = $2`,
		p.TenantID, p.ExternalID)
	return scanPartition(row)
}

func (s *PartitionStore) Get(ctx context.Context, id string) (*entity.Partition, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+partitionColumns+` FROM partitions WHERE id = $1`, id)
	return scanPartition(row)
}

func (s *PartitionStore) ListByTenant(ctx context.Context, tenantID string) ([]*entity.Partition, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+partitionColumns+` FROM partitions WHERE tenant_id = $1 ORDER BY created_at`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("list partitions: %w", err)
	}
	defer rows.Close()

	var out []*entity.Partition
	for rows.Next() {
		p, err := scanPartition(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func scanPartition(row pgx.Row) (*entity.Partition, error) {
	var p entity.Partition
	err := row.Scan(&p.ID, &p.TenantID, &p.ExternalID, &p.ParentID, &p.Title, &p.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, errno.ErrPartitionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan partition: %w", err)
	}
	return &p, nil
}

// ConversationStore implements repo.ConversationRepository on PostgreSQL.
type ConversationStore struct {
	pool *pgxpool.Pool
}

// NewConversationStore creates a ConversationStore on the shared pool.
func NewConversationStore(pool *pgxpool.Pool) *ConversationStore {
	return &ConversationStore{pool: pool}
}

const conversationColumns = `id, tenant_id, external_id, agent_id, partition_id, created_at, last_active_at`

func (s *ConversationStore) GetOrCreate(ctx context.Context, c *entity.Conversation) (*entity.Conversation, error) {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO conversations (`+conversationColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (tenant_id, external_id) DO NOTHING`,
		c.ID, c.TenantID, c.ExternalID, c.AgentID, c.PartitionID, c.CreatedAt, c.LastActiveAt)
	if err != nil {
		return nil, fmt.Errorf("insert conversation: %w", err)
	}
	row := s.pool.QueryRow(ctx, `
		SELECT `+conversationColumns+` FROM conversations WHERE tenant_id = $1 AND external_id = $2`,
		c.TenantID, c.ExternalID)
	return scanConversation(row)
}

func (s *ConversationStore) Get(ctx context.Context, id string) (*entity.Conversation, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+conversationColumns+` FROM conversations WHERE id = $1`, id)
	return scanConversation(row)
}

func (s *ConversationStore) TouchLastActive(ctx context.Context, id string, t time.Time) error {
	tag, err := s.pool.Exec(ctx, `UPDATE conversations SET last_active_at = $2 WHERE id = $1`, id, t)
	if err != nil {
		return fmt.Errorf("touch conversation: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return errno.ErrConversationNotFound
	}
	return nil
}

func (s *ConversationStore) ListByTenant(ctx context.Context, tenantID string) ([]*entity.Conversation, error) {
	return s.list(ctx, `
		SELECT `+conversationColumns+` FROM conversations
		WHERE tenant_id = $1 ORDER BY last_active_at DESC`, tenantID)
}

func (s *ConversationStore) ListByPartition(ctx context.Context, partitionID string) ([]*entity.Conversation, error) {
	return s.list(ctx, `
		SELECT `+conversationColumns+` FROM conversations
		WHERE partition_id = $1 ORDER BY last_active_at DESC`, partitionID)
}

func (s *ConversationStore) list(ctx context.Context, query, arg string) ([]*entity.Conversation, error) {
	rows, err := s.pool.Query(ctx, query, arg)
	if err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}
	defer rows.Close()

	var out []*entity.Conversation
	for rows.Next() {
		c, err := scanConversation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func scanConversation(row pgx.Row) (*entity.Conversation, error) {
	var c entity.Conversation
	err := row.Scan(&c.ID, &c.TenantID, &c.ExternalID, &c.AgentID, &c.PartitionID, &c.CreatedAt, &c.LastActiveAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, errno.ErrConversationNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan conversation: %w", err)
	}
	return &c, nil
}
