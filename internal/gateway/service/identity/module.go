// Package identity wires the identity services: portal accounts, tenants,
// agents, memberships, API keys, and data-plane authentication.
package identity

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/loomhq/loom/internal/gateway/service/identity/domain/repo"
	"github.com/loomhq/loom/internal/gateway/service/identity/domain/service"
	"github.com/loomhq/loom/internal/gateway/service/identity/store/inmemory"
	pgstore "github.com/loomhq/loom/internal/gateway/service/identity/store/postgres"
	"github.com/loomhq/loom/pkg/logger"
)

// Config holds the configuration for the identity module.
// Follows the Config → Complete() → New(ctx, deps) convention.
type Config struct {
	// StoreType selects the persistence backend: "postgres" or "inmemory".
	// Default: "postgres" when a pool is supplied, otherwise "inmemory".
	StoreType string `json:"store_type,omitempty"`

	// PortalJWTSecret signs portal session tokens.
	PortalJWTSecret string `json:"-"`

	// TokenExpiry is the portal session lifetime (default: 24h).
	TokenExpiry time.Duration `json:"token_expiry,omitempty"`
}

// CompletedConfig is the validated and completed configuration.
type CompletedConfig struct {
	*Config
}

// Complete validates and fills defaults.
func (c *Config) Complete() CompletedConfig {
	if c.TokenExpiry <= 0 {
		c.TokenExpiry = 24 * time.Hour
	}
	return CompletedConfig{c}
}

// Dependencies holds the external resources the identity module needs.
type Dependencies struct {
	// Pool is the shared PostgreSQL pool; nil forces the in-memory store.
	Pool *pgxpool.Pool

	// Evictor invalidates cached provider clients on config changes.
	// May be nil.
	Evictor service.CacheEvictor
}

// Module is the top-level identity module holding all domain services.
type Module struct {
	Users       service.UserService
	Tenants     service.TenantService
	Agents      service.AgentService
	Memberships service.MembershipService
	APIKeys     service.APIKeyService
	Auth        service.Authenticator
	Tokens      service.TokenService

	// Repositories are exposed for sibling modules that read identity
	// state directly (the config resolver).
	TenantRepo repo.TenantRepository
	AgentRepo  repo.AgentRepository
}

// New creates and initializes the identity module from a completed config.
func (c CompletedConfig) New(ctx context.Context, deps Dependencies) (*Module, error) {
	logger.Info("[Identity] creating identity module...")

	if c.PortalJWTSecret == "" {
		return nil, fmt.Errorf("portal JWT secret is required")
	}

	storeType := c.StoreType
	if storeType == "" {
		if deps.Pool != nil {
			storeType = "postgres"
		} else {
			storeType = "inmemory"
		}
	}

	var (
		tenants     repo.TenantRepository
		agents      repo.AgentRepository
		users       repo.UserRepository
		memberships repo.MembershipRepository
		invites     repo.InviteRepository
		keys        repo.APIKeyRepository
	)

	switch storeType {
	case "postgres":
		if deps.Pool == nil {
			return nil, fmt.Errorf("postgres store requires a database pool")
		}
		if err := pgstore.EnsureSchema(ctx, deps.Pool); err != nil {
			return nil, fmt.Errorf("ensure identity schema: %w", err)
		}
		tenants = pgstore.NewTenantStore(deps.Pool)
		agents = pgstore.NewAgentStore(deps.Pool)
		users = pgstore.NewUserStore(deps.Pool)
		memberships = pgstore.NewMembershipStore(deps.Pool)
		invites = pgstore.NewInviteStore(deps.Pool)
		keys = pgstore.NewAPIKeyStore(deps.Pool)
		logger.Info("[Identity] using postgres store")
	case "inmemory":
		tenants = inmemory.NewTenantStore()
		agents = inmemory.NewAgentStore()
		users = inmemory.NewUserStore()
		memberships = inmemory.NewMembershipStore()
		invites = inmemory.NewInviteStore()
		keys = inmemory.NewAPIKeyStore()
		logger.Info("[Identity] using in-memory store")
	default:
		return nil, fmt.Errorf("unknown identity store type %q", storeType)
	}

	return &Module{
		Users:       service.NewUserService(users, tenants, agents, memberships),
		Tenants:     service.NewTenantService(tenants, memberships, deps.Evictor),
		Agents:      service.NewAgentService(agents, deps.Evictor),
		Memberships: service.NewMembershipService(memberships, invites),
		APIKeys:     service.NewAPIKeyService(keys),
		Auth:        service.NewAuthenticator(keys, agents, tenants),
		Tokens:      service.NewTokenService(c.PortalJWTSecret, c.TokenExpiry),
		TenantRepo:  tenants,
		AgentRepo:   agents,
	}, nil
}
