package inmemory

import (
	"context"
	"sync"

	"github.com/loomhq/loom/internal/gateway/pkg/errno"
	"github.com/loomhq/loom/internal/gateway/service/identity/domain/entity"
)

// AgentStore implements repo.AgentRepository in memory.
type AgentStore struct {
	mu     sync.RWMutex
	agents map[string]entity.Agent
}

// NewAgentStore creates an empty AgentStore.
func NewAgentStore() *AgentStore {
	return &AgentStore{agents: make(map[string]entity.Agent)}
}

func (s *AgentStore) Create(_ context.Context, agent *entity.Agent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range s.agents {
		if a.TenantID == agent.TenantID && a.Name == agent.Name {
			return errno.ErrDuplicateName
		}
	}
	s.agents[agent.ID] = *agent
	return nil
}

func (s *AgentStore) Get(_ context.Context, id string) (*entity.Agent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.agents[id]
	if !ok {
		return nil, errno.ErrAgentNotFound
	}
	return &a, nil
}

func (s *AgentStore) GetByName(_ context.Context, tenantID, name string) (*entity.Agent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, a := range s.agents {
		if a.TenantID == tenantID && a.Name == name {
			aa := a
			return &aa, nil
		}
	}
	return nil, errno.ErrAgentNotFound
}

func (s *AgentStore) Update(_ context.Context, agent *entity.Agent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.agents[agent.ID]; !ok {
		return errno.ErrAgentNotFound
	}
	s.agents[agent.ID] = *agent
	return nil
}

func (s *AgentStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.agents, id)
	return nil
}

func (s *AgentStore) ListByTenant(_ context.Context, tenantID string) ([]*entity.Agent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*entity.Agent
	for _, a := range s.agents {
		if a.TenantID == tenantID {
			aa := a
			out = append(out, &aa)
		}
	}
	return out, nil
}
