package service

import (
	"context"

	"github.com/loomhq/loom/internal/gateway/pkg/errno"
	"github.com/loomhq/loom/internal/gateway/service/identity/domain/entity"
	"github.com/loomhq/loom/internal/gateway/service/identity/domain/repo"
	"github.com/loomhq/loom/pkg/cryptoutil"
)

// Principal is the resolved identity of an authenticated data-plane
// request: the key that authenticated it, the agent it names and the
// agent's owning tenant.
type Principal struct {
	Key    *entity.APIKey
	Agent  *entity.Agent
	Tenant *entity.Tenant
}

// Authenticator resolves raw API keys into data-plane principals.
type Authenticator interface {
	// AuthenticateKey hashes the raw key, looks it up and loads the
	// agent and tenant. Unknown and revoked keys both return
	// ErrUnauthorized; suspended tenants return ErrTenantSuspended.
	AuthenticateKey(ctx context.Context, rawKey string) (*Principal, error)
}

type authenticator struct {
	keys    repo.APIKeyRepository
	agents  repo.AgentRepository
	tenants repo.TenantRepository
}

// NewAuthenticator creates an Authenticator.
func NewAuthenticator(keys repo.APIKeyRepository, agents repo.AgentRepository, tenants repo.TenantRepository) Authenticator {
	return &authenticator{keys: keys, agents: agents, tenants: tenants}
}

func (a *authenticator) AuthenticateKey(ctx context.Context, rawKey string) (*Principal, error) {
	if rawKey == "" {
		return nil, errno.ErrUnauthorized
	}
	key, err := a.keys.GetByHash(ctx, cryptoutil.KeyHash(rawKey))
	if err != nil {
		return nil, errno.ErrUnauthorized
	}
	if !key.IsActive() {
		return nil, errno.ErrUnauthorized
	}

	agent, err := a.agents.Get(ctx, key.AgentID)
	if err != nil {
		return nil, errno.ErrUnauthorized
	}
	tenant, err := a.tenants.Get(ctx, agent.TenantID)
	if err != nil {
		return nil, errno.ErrUnauthorized
	}
	if !tenant.IsActive() {
		return nil, errno.ErrTenantSuspended
	}

	return &Principal{Key: key, Agent: agent, Tenant: tenant}, nil
}
