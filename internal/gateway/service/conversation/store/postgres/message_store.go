package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/loomhq/loom/internal/gateway/service/conversation/domain/entity"
)

// MessageStore implements repo.MessageRepository on PostgreSQL.
type MessageStore struct {
	pool *pgxpool.Pool
}

// NewMessageStore creates a MessageStore on the shared pool.
func NewMessageStore(pool *pgxpool.Pool) *MessageStore {
	return &MessageStore{pool: pool}
}

func (s *MessageStore) Append(ctx context.Context, messages ...*entity.Message) error {
	batch := &pgx.Batch{}
	for _, m := range messages {
		batch.Queue(`
			INSERT INTO conversation_messages
				(id, conversation_id, role, ciphertext, iv, token_estimate, snapshot_id, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			m.ID, m.ConversationID, m.Role, m.Ciphertext, m.IV, m.TokenEstimate, m.SnapshotID, m.CreatedAt)
	}
	results := s.pool.SendBatch(ctx, batch)
	defer results.Close()
	for range messages {
		if _, err := results.Exec(); err != nil {
			return fmt.Errorf("append message: %w", err)
		}
	}
	return nil
}

func (s *MessageStore) ListAfter(ctx context.Context, conversationID string, t time.Time) ([]*entity.Message, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, conversation_id, role, ciphertext, iv, token_estimate, snapshot_id, created_at
		FROM conversation_messages
		WHERE conversation_id = $1 AND created_at > $2
		ORDER BY created_at`, conversationID, t)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer rows.Close()

	var out []*entity.Message
	for rows.Next() {
		var m entity.Message
		if err := rows.Scan(&m.ID, &m.ConversationID, &m.Role, &m.Ciphertext, &m.IV,
			&m.TokenEstimate, &m.SnapshotID, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		out = append(out, &m)
	}
	return out, rows.Err()
}

// SnapshotStore implements repo.SnapshotRepository on PostgreSQL.
type SnapshotStore struct {
	pool *pgxpool.Pool
}

// NewSnapshotStore creates a SnapshotStore on the shared pool.
func NewSnapshotStore(pool *pgxpool.Pool) *SnapshotStore {
	return &SnapshotStore{pool: pool}
}

func (s *SnapshotStore) Create(ctx context.Context, snap *entity.Snapshot) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO conversation_snapshots (id, conversation_id, ciphertext, iv, archived_count, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		snap.ID, snap.ConversationID, snap.Ciphertext, snap.IV, snap.ArchivedCount, snap.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert snapshot: %w", err)
	}
	return nil
}

func (s *SnapshotStore) Latest(ctx context.Context, conversationID string) (*entity.Snapshot, error) {
	var snap entity.Snapshot
	err := s.pool.QueryRow(ctx, `
		SELECT id, conversation_id, ciphertext, iv, archived_count, created_at
		FROM conversation_snapshots
		WHERE conversation_id = $1
		ORDER BY created_at DESC LIMIT 1`, conversationID).
		Scan(&snap.ID, &snap.ConversationID, &snap.Ciphertext, &snap.IV, &snap.ArchivedCount, &snap.CreatedAt)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("latest snapshot: %w", err)
	}
	return &snap, nil
}

// Locker implements repo.Locker with a transaction-scoped advisory
// lock keyed on the conversation ID, so serialisation holds across
// gateway instances sharing the database.
type Locker struct {
	pool *pgxpool.Pool
}

// NewLocker creates a Locker on the shared pool.
func NewLocker(pool *pgxpool.Pool) *Locker {
	return &Locker{pool: pool}
}

func (l *Locker) WithLock(ctx context.Context, conversationID string, fn func(ctx context.Context) error) error {
	tx, err := l.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin lock tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, conversationID); err != nil {
		return fmt.Errorf("acquire advisory lock: %w", err)
	}
	if err := fn(ctx); err != nil {
		return err
	}
	return tx.Commit(ctx)
}
