package repo

import (
	"context"

	"github.com/loomhq/loom/internal/gateway/service/identity/domain/entity"
)

// TenantRepository defines the persistence interface for Tenant entities.
type TenantRepository interface {
	// Create stores a new tenant.
	Create(ctx context.Context, tenant *entity.Tenant) error
	// Get retrieves a tenant by ID.
	Get(ctx context.Context, id string) (*entity.Tenant, error)
	// Update updates an existing tenant.
	Update(ctx context.Context, tenant *entity.Tenant) error
	// ListChildren returns the direct children of a tenant.
	ListChildren(ctx context.Context, parentID string) ([]*entity.Tenant, error)
}

// AgentRepository defines the persistence interface for Agent entities.
type AgentRepository interface {
	// Create stores a new agent.
	Create(ctx context.Context, agent *entity.Agent) error
	// Get retrieves an agent by ID.
	Get(ctx context.Context, id string) (*entity.Agent, error)
	// GetByName retrieves an agent by (tenant, name).
	GetByName(ctx context.Context, tenantID, name string) (*entity.Agent, error)
	// Update updates an existing agent.
	Update(ctx context.Context, agent *entity.Agent) error
	// Delete removes an agent and, by ownership, its API keys.
	Delete(ctx context.Context, id string) error
	// ListByTenant returns all agents owned by a tenant.
	ListByTenant(ctx context.Context, tenantID string) ([]*entity.Agent, error)
}
