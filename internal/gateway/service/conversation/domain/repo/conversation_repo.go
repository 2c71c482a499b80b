// Package repo defines the persistence interfaces of the conversation
// module.
package repo

import (
	"context"
	"time"

	"github.com/loomhq/loom/internal/gateway/service/conversation/domain/entity"
)

// PartitionRepository persists partitions.
type PartitionRepository interface {
	// GetOrCreate materialises a partition idempotently on
	// (tenant, external ID), returning the surviving row.
	GetOrCreate(ctx context.Context, p *entity.Partition) (*entity.Partition, error)
	// Get retrieves a partition by ID.
	Get(ctx context.Context, id string) (*entity.Partition, error)
	// ListByTenant returns a tenant's partitions.
	ListByTenant(ctx context.Context, tenantID string) ([]*entity.Partition, error)
}

// ConversationRepository persists conversations.
type ConversationRepository interface {
	// GetOrCreate materialises a conversation idempotently on
	// (tenant, external ID), returning the surviving row.
	GetOrCreate(ctx context.Context, c *entity.Conversation) (*entity.Conversation, error)
	// Get retrieves a conversation by ID.
	Get(ctx context.Context, id string) (*entity.Conversation, error)
	// TouchLastActive bumps the last-activity timestamp.
	TouchLastActive(ctx context.Context, id string, t time.Time) error
	// ListByTenant returns a tenant's conversations, most recent first.
	ListByTenant(ctx context.Context, tenantID string) ([]*entity.Conversation, error)
	// ListByPartition returns a partition's conversations, most recent first.
	ListByPartition(ctx context.Context, partitionID string) ([]*entity.Conversation, error)
}

// MessageRepository persists encrypted conversation turns.
type MessageRepository interface {
	// Append stores messages in order.
	Append(ctx context.Context, messages ...*entity.Message) error
	// ListAfter returns a conversation's messages with CreatedAt
	// strictly after t, ascending. A zero t returns all messages.
	ListAfter(ctx context.Context, conversationID string, t time.Time) ([]*entity.Message, error)
}

// SnapshotRepository persists conversation snapshots.
type SnapshotRepository interface {
	// Create appends a snapshot row.
	Create(ctx context.Context, s *entity.Snapshot) error
	// Latest returns the newest snapshot, or nil when none exists.
	Latest(ctx context.Context, conversationID string) (*entity.Snapshot, error)
}

// Locker serialises snapshot creation per conversation.
type Locker interface {
	// WithLock runs fn while holding the conversation's lock.
	WithLock(ctx context.Context, conversationID string, fn func(ctx context.Context) error) error
}
