// Package service implements conversation memory: materialisation,
// context loading, encrypted persistence and snapshotting.
package service

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/loomhq/loom/internal/gateway/service/conversation/domain/entity"
	"github.com/loomhq/loom/internal/gateway/service/conversation/domain/repo"
	"github.com/loomhq/loom/pkg/cryptoutil"
	"github.com/loomhq/loom/pkg/logger"
)

// ContextMessage is one decrypted turn in a loaded context.
type ContextMessage struct {
	Role    string
	Content string
	Tokens  int
}

// Context is the loaded memory of a conversation: the active snapshot's
// summary plus everything after it.
type Context struct {
	Messages      []ContextMessage
	TokenEstimate int

	LatestSnapshotID      string
	LatestSnapshotSummary string

	snapshotAt time.Time
}

// Manager owns the conversation lifecycle. All stored content is
// encrypted under the tenant's associated data.
type Manager struct {
	partitions    repo.PartitionRepository
	conversations repo.ConversationRepository
	messages      repo.MessageRepository
	snapshots     repo.SnapshotRepository
	locker        repo.Locker
	cipher        *cryptoutil.Cipher
}

// NewManager creates a Manager.
func NewManager(partitions repo.PartitionRepository, conversations repo.ConversationRepository,
	messages repo.MessageRepository, snapshots repo.SnapshotRepository,
	locker repo.Locker, cipher *cryptoutil.Cipher) *Manager {
	return &Manager{
		partitions:    partitions,
		conversations: conversations,
		messages:      messages,
		snapshots:     snapshots,
		locker:        locker,
		cipher:        cipher,
	}
}

// GetOrCreatePartition materialises a partition idempotently on
// (tenant, external ID).
func (m *Manager) GetOrCreatePartition(ctx context.Context, tenantID, externalID string, parentID *string) (*entity.Partition, error) {
	return m.partitions.GetOrCreate(ctx, &entity.Partition{
		ID:         uuid.NewString(),
		TenantID:   tenantID,
		ExternalID: externalID,
		ParentID:   parentID,
		CreatedAt:  time.Now().UTC(),
	})
}

// GetOrCreateConversation materialises a conversation idempotently on
// (tenant, external ID).
func (m *Manager) GetOrCreateConversation(ctx context.Context, tenantID, externalID string, partitionID, agentID *string) (*entity.Conversation, error) {
	now := time.Now().UTC()
	return m.conversations.GetOrCreate(ctx, &entity.Conversation{
		ID:           uuid.NewString(),
		TenantID:     tenantID,
		ExternalID:   externalID,
		AgentID:      agentID,
		PartitionID:  partitionID,
		CreatedAt:    now,
		LastActiveAt: now,
	})
}

// LoadContext decrypts the conversation's active memory: the newest
// snapshot's summary plus all messages created after it, ascending.
func (m *Manager) LoadContext(ctx context.Context, conv *entity.Conversation) (*Context, error) {
	out := &Context{}

	snap, err := m.snapshots.Latest(ctx, conv.ID)
	if err != nil {
		return nil, err
	}
	var after time.Time
	if snap != nil {
		summary, err := m.cipher.Decrypt(snap.Ciphertext, snap.IV, []byte(conv.TenantID))
		if err != nil {
			return nil, err
		}
		out.LatestSnapshotID = snap.ID
		out.LatestSnapshotSummary = string(summary)
		out.TokenEstimate += EstimateTokens(string(summary))
		out.snapshotAt = snap.CreatedAt
		after = snap.CreatedAt
	}

	rows, err := m.messages.ListAfter(ctx, conv.ID, after)
	if err != nil {
		return nil, err
	}
	for _, row := range rows {
		plain, err := m.cipher.Decrypt(row.Ciphertext, row.IV, []byte(conv.TenantID))
		if err != nil {
			return nil, err
		}
		tokens := row.TokenEstimate
		if tokens <= 0 {
			tokens = EstimateTokens(string(plain))
		}
		out.Messages = append(out.Messages, ContextMessage{Role: row.Role, Content: string(plain), Tokens: tokens})
		out.TokenEstimate += tokens
	}
	return out, nil
}

// BuildInjectionMessages renders a loaded context as chat messages
// ready to prepend to the caller's own: the snapshot summary as a
// synthetic system message, then the post-snapshot turns in order.
func (m *Manager) BuildInjectionMessages(c *Context) []map[string]any {
	var out []map[string]any
	if c.LatestSnapshotSummary != "" {
		out = append(out, map[string]any{
			"role":    "system",
			"content": "Summary of the conversation so far: " + c.LatestSnapshotSummary,
		})
	}
	for _, msg := range c.Messages {
		out = append(out, map[string]any{"role": msg.Role, "content": msg.Content})
	}
	return out
}

// StoreMessages appends the encrypted user and assistant turns and bumps
// the conversation's last activity. Runs on the fire-and-forget path;
// callers log and move on when it fails.
func (m *Manager) StoreMessages(ctx context.Context, conv *entity.Conversation, userText, assistantText string) error {
	now := time.Now().UTC()
	rows := make([]*entity.Message, 0, 2)
	for i, turn := range []struct {
		role, text string
	}{
		{entity.RoleUser, userText},
		{entity.RoleAssistant, assistantText},
	} {
		if turn.text == "" {
			continue
		}
		ct, iv, err := m.cipher.Encrypt([]byte(turn.text), []byte(conv.TenantID))
		if err != nil {
			return err
		}
		rows = append(rows, &entity.Message{
			ID:             uuid.NewString(),
			ConversationID: conv.ID,
			Role:           turn.role,
			Ciphertext:     ct,
			IV:             iv,
			TokenEstimate:  EstimateTokens(turn.text),
			// Keep insertion order stable even within one clock tick.
			CreatedAt: now.Add(time.Duration(i) * time.Microsecond),
		})
	}
	if len(rows) == 0 {
		return nil
	}
	if err := m.messages.Append(ctx, rows...); err != nil {
		return err
	}
	return m.conversations.TouchLastActive(ctx, conv.ID, now)
}

// CreateSnapshot appends an encrypted summary snapshot, serialised per
// conversation. basedOnSnapshotID is the active snapshot the caller
// loaded (empty for none); when a newer one already exists the call is
// a no-op, so concurrent requests over the limit produce one snapshot.
func (m *Manager) CreateSnapshot(ctx context.Context, conv *entity.Conversation, summary string, archivedCount int, basedOnSnapshotID string) error {
	return m.locker.WithLock(ctx, conv.ID, func(ctx context.Context) error {
		latest, err := m.snapshots.Latest(ctx, conv.ID)
		if err != nil {
			return err
		}
		if latest != nil && latest.ID != basedOnSnapshotID {
			logger.Debug("[Conversation] snapshot for %s already created concurrently", conv.ID)
			return nil
		}

		ct, iv, err := m.cipher.Encrypt([]byte(summary), []byte(conv.TenantID))
		if err != nil {
			return err
		}
		return m.snapshots.Create(ctx, &entity.Snapshot{
			ID:             uuid.NewString(),
			ConversationID: conv.ID,
			Ciphertext:     ct,
			IV:             iv,
			ArchivedCount:  archivedCount,
			CreatedAt:      time.Now().UTC(),
		})
	})
}

// NeedsSnapshot reports whether a context has outgrown the agent's
// token budget.
func (m *Manager) NeedsSnapshot(tokenEstimate, limit int) bool {
	return tokenEstimate > limit
}

// Partition and Conversation read accessors for the portal surface.

func (m *Manager) GetConversation(ctx context.Context, id string) (*entity.Conversation, error) {
	return m.conversations.Get(ctx, id)
}

func (m *Manager) ListPartitions(ctx context.Context, tenantID string) ([]*entity.Partition, error) {
	return m.partitions.ListByTenant(ctx, tenantID)
}

func (m *Manager) ListConversations(ctx context.Context, tenantID string) ([]*entity.Conversation, error) {
	return m.conversations.ListByTenant(ctx, tenantID)
}

// ListMessages returns a conversation's full decrypted transcript,
// oldest first, for portal reads.
func (m *Manager) ListMessages(ctx context.Context, conv *entity.Conversation) ([]ContextMessage, error) {
	rows, err := m.messages.ListAfter(ctx, conv.ID, time.Time{})
	if err != nil {
		return nil, err
	}
	out := make([]ContextMessage, 0, len(rows))
	for _, row := range rows {
		plain, err := m.cipher.Decrypt(row.Ciphertext, row.IV, []byte(conv.TenantID))
		if err != nil {
			return nil, err
		}
		out = append(out, ContextMessage{Role: row.Role, Content: string(plain), Tokens: row.TokenEstimate})
	}
	return out, nil
}
