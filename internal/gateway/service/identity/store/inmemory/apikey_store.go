package inmemory

import (
	"context"
	"sync"

	"github.com/loomhq/loom/internal/gateway/pkg/errno"
	"github.com/loomhq/loom/internal/gateway/service/identity/domain/entity"
)

// APIKeyStore implements repo.APIKeyRepository in memory.
type APIKeyStore struct {
	mu   sync.RWMutex
	keys map[string]entity.APIKey
}

// NewAPIKeyStore creates an empty APIKeyStore.
func NewAPIKeyStore() *APIKeyStore {
	return &APIKeyStore{keys: make(map[string]entity.APIKey)}
}

func (s *APIKeyStore) Create(_ context.Context, key *entity.APIKey) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.keys[key.ID] = *key
	return nil
}

func (s *APIKeyStore) GetByHash(_ context.Context, keyHash string) (*entity.APIKey, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, k := range s.keys {
		if k.KeyHash == keyHash {
			kk := k
			return &kk, nil
		}
	}
	return nil, errno.ErrAPIKeyNotFound
}

func (s *APIKeyStore) Get(_ context.Context, id string) (*entity.APIKey, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	k, ok := s.keys[id]
	if !ok {
		return nil, errno.ErrAPIKeyNotFound
	}
	return &k, nil
}

func (s *APIKeyStore) Update(_ context.Context, key *entity.APIKey) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.keys[key.ID]; !ok {
		return errno.ErrAPIKeyNotFound
	}
	s.keys[key.ID] = *key
	return nil
}

func (s *APIKeyStore) ListByAgent(_ context.Context, agentID string) ([]*entity.APIKey, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*entity.APIKey
	for _, k := range s.keys {
		if k.AgentID == agentID {
			kk := k
			out = append(out, &kk)
		}
	}
	return out, nil
}

func (s *APIKeyStore) ListByTenant(_ context.Context, tenantID string) ([]*entity.APIKey, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*entity.APIKey
	for _, k := range s.keys {
		if k.TenantID == tenantID {
			kk := k
			out = append(out, &kk)
		}
	}
	return out, nil
}
