// Package inmemory implements the conversation repositories on maps,
// for tests and store-less deployments.
package inmemory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/loomhq/loom/internal/gateway/pkg/errno"
	"github.com/loomhq/loom/internal/gateway/service/conversation/domain/entity"
)

// PartitionStore implements repo.PartitionRepository in memory.
type PartitionStore struct {
	mu         sync.RWMutex
	byID       map[string]entity.Partition
	byExternal map[string]string // tenantID + "/" + externalID → ID
}

// NewPartitionStore creates an empty PartitionStore.
func NewPartitionStore() *PartitionStore {
	return &PartitionStore{
		byID:       make(map[string]entity.Partition),
		byExternal: make(map[string]string),
	}
}

func externalKey(tenantID, externalID string) string { return tenantID + "/" + externalID }

func (s *PartitionStore) GetOrCreate(_ context.Context, p *entity.Partition) (*entity.Partition, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := externalKey(p.TenantID, p.ExternalID)
	if id, ok := s.byExternal[key]; ok {
		existing := s.byID[id]
		return &existing, nil
	}
	s.byID[p.ID] = *p
	s.byExternal[key] = p.ID
	pp := *p
	return &pp, nil
}

func (s *PartitionStore) Get(_ context.Context, id string) (*entity.Partition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.byID[id]
	if !ok {
		return nil, errno.ErrPartitionNotFound
	}
	return &p, nil
}

func (s *PartitionStore) ListByTenant(_ context.Context, tenantID string) ([]*entity.Partition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*entity.Partition
	for _, p := range s.byID {
		if p.TenantID == tenantID {
			pp := p
			out = append(out, &pp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// ConversationStore implements repo.ConversationRepository in memory.
type ConversationStore struct {
	mu         sync.RWMutex
	byID       map[string]entity.Conversation
	byExternal map[string]string
}

// NewConversationStore creates an empty ConversationStore.
func NewConversationStore() *ConversationStore {
	return &ConversationStore{
		byID:       make(map[string]entity.Conversation),
		byExternal: make(map[string]string),
	}
}

func (s *ConversationStore) GetOrCreate(_ context.Context, c *entity.Conversation) (*entity.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := externalKey(c.TenantID, c.ExternalID)
	if id, ok := s.byExternal[key]; ok {
		existing := s.byID[id]
		return &existing, nil
	}
	s.byID[c.ID] = *c
	s.byExternal[key] = c.ID
	cc := *c
	return &cc, nil
}

func (s *ConversationStore) Get(_ context.Context, id string) (*entity.Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.byID[id]
	if !ok {
		return nil, errno.ErrConversationNotFound
	}
	return &c, nil
}

func (s *ConversationStore) TouchLastActive(_ context.Context, id string, t time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.byID[id]
	if !ok {
		return errno.ErrConversationNotFound
	}
	c.LastActiveAt = t
	s.byID[id] = c
	return nil
}

func (s *ConversationStore) ListByTenant(_ context.Context, tenantID string) ([]*entity.Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*entity.Conversation
	for _, c := range s.byID {
		if c.TenantID == tenantID {
			cc := c
			out = append(out, &cc)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].LastActiveAt.After(out[j].LastActiveAt) })
	return out, nil
}

func (s *ConversationStore) ListByPartition(_ context.Context, partitionID string) ([]*entity.Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*entity.Conversation
	for _, c := range s.byID {
		if c.PartitionID != nil && *c.PartitionID == partitionID {
			cc := c
			out = append(out, &cc)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].LastActiveAt.After(out[j].LastActiveAt) })
	return out, nil
}

// MessageStore implements repo.MessageRepository in memory.
type MessageStore struct {
	mu       sync.RWMutex
	messages map[string][]entity.Message // conversationID → ordered rows
}

// NewMessageStore creates an empty MessageStore.
func NewMessageStore() *MessageStore {
	return &MessageStore{messages: make(map[string][]entity.Message)}
}

func (s *MessageStore) Append(_ context.Context, messages ...*entity.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range messages {
		s.messages[m.ConversationID] = append(s.messages[m.ConversationID], *m)
	}
	return nil
}

func (s *MessageStore) ListAfter(_ context.Context, conversationID string, t time.Time) ([]*entity.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*entity.Message
	for _, m := range s.messages[conversationID] {
		if m.CreatedAt.After(t) {
			mm := m
			out = append(out, &mm)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// SnapshotStore implements repo.SnapshotRepository in memory.
type SnapshotStore struct {
	mu        sync.RWMutex
	snapshots map[string][]entity.Snapshot
}

// NewSnapshotStore creates an empty SnapshotStore.
func NewSnapshotStore() *SnapshotStore {
	return &SnapshotStore{snapshots: make(map[string][]entity.Snapshot)}
}

func (s *SnapshotStore) Create(_ context.Context, snap *entity.Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshots[snap.ConversationID] = append(s.snapshots[snap.ConversationID], *snap)
	return nil
}

func (s *SnapshotStore) Latest(_ context.Context, conversationID string) (*entity.Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rows := s.snapshots[conversationID]
	if len(rows) == 0 {
		return nil, nil
	}
	latest := rows[0]
	for _, r := range rows[1:] {
		if r.CreatedAt.After(latest.CreatedAt) {
			latest = r
		}
	}
	return &latest, nil
}

// Locker implements repo.Locker with one mutex per conversation.
type Locker struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewLocker creates an empty Locker.
func NewLocker() *Locker {
	return &Locker{locks: make(map[string]*sync.Mutex)}
}

func (l *Locker) WithLock(ctx context.Context, conversationID string, fn func(ctx context.Context) error) error {
	l.mu.Lock()
	lock, ok := l.locks[conversationID]
	if !ok {
		lock = &sync.Mutex{}
		l.locks[conversationID] = lock
	}
	l.mu.Unlock()

	lock.Lock()
	defer lock.Unlock()
	return fn(ctx)
}
