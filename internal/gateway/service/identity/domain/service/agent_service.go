package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/loomhq/loom/internal/gateway/service/identity/domain/entity"
	"github.com/loomhq/loom/internal/gateway/service/identity/domain/repo"
	"github.com/loomhq/loom/pkg/logger"
)

// AgentService manages the agents of a tenant.
type AgentService interface {
	// Create stores a new agent under a tenant. Names are unique per tenant.
	Create(ctx context.Context, agent *entity.Agent) error
	// Get retrieves an agent by ID.
	Get(ctx context.Context, id string) (*entity.Agent, error)
	// Update applies configuration changes and evicts cached provider
	// clients for the owning tenant.
	Update(ctx context.Context, agent *entity.Agent) error
	// Delete removes an agent; its API keys go with it.
	Delete(ctx context.Context, id string) error
	// ListByTenant returns a tenant's agents.
	ListByTenant(ctx context.Context, tenantID string) ([]*entity.Agent, error)
}

type agentService struct {
	agents  repo.AgentRepository
	evictor CacheEvictor
}

// NewAgentService creates an AgentService. evictor may be nil.
func NewAgentService(agents repo.AgentRepository, evictor CacheEvictor) AgentService {
	return &agentService{agents: agents, evictor: evictor}
}

func (s *agentService) Create(ctx context.Context, agent *entity.Agent) error {
	if agent.Name == "" {
		return fmt.Errorf("agent name is required")
	}
	if agent.ID == "" {
		agent.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	agent.CreatedAt = now
	agent.UpdatedAt = now
	if err := s.agents.Create(ctx, agent); err != nil {
		return err
	}
	logger.Info("[Identity] created agent %s (%s) in tenant %s", agent.ID, agent.Name, agent.TenantID)
	return nil
}

func (s *agentService) Get(ctx context.Context, id string) (*entity.Agent, error) {
	return s.agents.Get(ctx, id)
}

func (s *agentService) Update(ctx context.Context, agent *entity.Agent) error {
	agent.UpdatedAt = time.Now().UTC()
	if err := s.agents.Update(ctx, agent); err != nil {
		return err
	}
	if s.evictor != nil {
		s.evictor.Evict(agent.TenantID)
	}
	return nil
}

func (s *agentService) Delete(ctx context.Context, id string) error {
	agent, err := s.agents.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := s.agents.Delete(ctx, id); err != nil {
		return err
	}
	if s.evictor != nil {
		s.evictor.Evict(agent.TenantID)
	}
	logger.Info("[Identity] deleted agent %s", id)
	return nil
}

func (s *agentService) ListByTenant(ctx context.Context, tenantID string) ([]*entity.Agent, error) {
	return s.agents.ListByTenant(ctx, tenantID)
}
