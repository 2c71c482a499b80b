package service

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/loomhq/loom/internal/gateway/service/identity/domain/entity"
	"github.com/loomhq/loom/internal/gateway/service/identity/domain/repo"
	"github.com/loomhq/loom/pkg/cryptoutil"
	"github.com/loomhq/loom/pkg/logger"
)

// APIKeyService manages data-plane API keys.
type APIKeyService interface {
	// Create mints a key for an agent. The raw key is returned exactly
	// once; only its hash and display prefix persist.
	Create(ctx context.Context, agent *entity.Agent, name string) (key *entity.APIKey, raw string, err error)

	// Revoke permanently deactivates a key.
	Revoke(ctx context.Context, id string) error

	// ListByAgent returns an agent's keys.
	ListByAgent(ctx context.Context, agentID string) ([]*entity.APIKey, error)

	// ListByTenant returns a tenant's keys.
	ListByTenant(ctx context.Context, tenantID string) ([]*entity.APIKey, error)
}

type apiKeyService struct {
	keys repo.APIKeyRepository
}

// NewAPIKeyService creates an APIKeyService.
func NewAPIKeyService(keys repo.APIKeyRepository) APIKeyService {
	return &apiKeyService{keys: keys}
}

func (s *apiKeyService) Create(ctx context.Context, agent *entity.Agent, name string) (*entity.APIKey, string, error) {
	raw, prefix, err := cryptoutil.NewAPIKey()
	if err != nil {
		return nil, "", err
	}
	if name == "" {
		name = "default"
	}
	key := &entity.APIKey{
		ID:        uuid.NewString(),
		AgentID:   agent.ID,
		TenantID:  agent.TenantID,
		Name:      name,
		KeyHash:   cryptoutil.KeyHash(raw),
		Prefix:    prefix,
		Status:    entity.APIKeyActive,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.keys.Create(ctx, key); err != nil {
		return nil, "", err
	}
	logger.Info("[Identity] created api key %s (%s) for agent %s", key.ID, prefix, agent.ID)
	return key, raw, nil
}

func (s *apiKeyService) Revoke(ctx context.Context, id string) error {
	key, err := s.keys.Get(ctx, id)
	if err != nil {
		return err
	}
	if key.Status == entity.APIKeyRevoked {
		return nil
	}
	now := time.Now().UTC()
	key.Status = entity.APIKeyRevoked
	key.RevokedAt = &now
	if err := s.keys.Update(ctx, key); err != nil {
		return err
	}
	logger.Info("[Identity] revoked api key %s", id)
	return nil
}

func (s *apiKeyService) ListByAgent(ctx context.Context, agentID string) ([]*entity.APIKey, error) {
	return s.keys.ListByAgent(ctx, agentID)
}

func (s *apiKeyService) ListByTenant(ctx context.Context, tenantID string) ([]*entity.APIKey, error) {
	return s.keys.ListByTenant(ctx, tenantID)
}
