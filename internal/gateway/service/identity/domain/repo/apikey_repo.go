package repo

import (
	"context"

	"github.com/loomhq/loom/internal/gateway/service/identity/domain/entity"
)

// APIKeyRepository defines the persistence interface for API keys.
type APIKeyRepository interface {
	// Create stores a new API key row.
	Create(ctx context.Context, key *entity.APIKey) error
	// GetByHash retrieves a key by its SHA-256 hash, regardless of status.
	GetByHash(ctx context.Context, keyHash string) (*entity.APIKey, error)
	// Get retrieves a key by ID.
	Get(ctx context.Context, id string) (*entity.APIKey, error)
	// Update updates a key (revocation).
	Update(ctx context.Context, key *entity.APIKey) error
	// ListByAgent returns all keys of an agent.
	ListByAgent(ctx context.Context, agentID string) ([]*entity.APIKey, error)
	// ListByTenant returns all keys of a tenant.
	ListByTenant(ctx context.Context, tenantID string) ([]*entity.APIKey, error)
}
