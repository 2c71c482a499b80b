// Package resolver computes effective agent and tenant configuration by
// walking the inheritance chain leaf first, and folds the result into
// caller-supplied chat-completions bodies under per-agent merge policies.
package resolver

import (
	"context"
	"os"

	"github.com/loomhq/loom/internal/gateway/pkg/errno"
	"github.com/loomhq/loom/internal/gateway/service/identity/domain/entity"
	"github.com/loomhq/loom/internal/gateway/service/identity/domain/repo"
)

// maxChainDepth bounds the parent walk; deeper chains are treated as
// cycles.
const maxChainDepth = 32

// Provider names accepted in provider configs.
const (
	ProviderOpenAI = "openai"
	ProviderAzure  = "azure"
)

// ChainEntry is one level of the inheritance chain, for debugging.
type ChainEntry struct {
	// Level is "agent", "tenant" or "parent".
	Level string `json:"level"`
	Name  string `json:"name"`
	ID    string `json:"id"`
}

// Effective is a fully resolved configuration: for each field, the
// nearest non-null value along agent → tenant → parents.
type Effective struct {
	Provider        *entity.ProviderConfig `json:"provider_config,omitempty"`
	SystemPrompt    *string                `json:"system_prompt,omitempty"`
	Skills          []entity.Skill         `json:"skills,omitempty"`
	MCPEndpoints    []entity.MCPEndpoint   `json:"mcp_endpoints,omitempty"`
	AvailableModels []string               `json:"available_models,omitempty"`

	Chain []ChainEntry `json:"chain"`
}

// Resolver walks tenant chains to produce effective configurations.
type Resolver struct {
	tenants repo.TenantRepository
	agents  repo.AgentRepository

	// fallbackOpenAIKey applies when an effective openai config carries
	// no key of its own.
	fallbackOpenAIKey string
}

// New creates a Resolver. fallbackOpenAIKey may be empty.
func New(tenants repo.TenantRepository, agents repo.AgentRepository, fallbackOpenAIKey string) *Resolver {
	return &Resolver{tenants: tenants, agents: agents, fallbackOpenAIKey: fallbackOpenAIKey}
}

// NewFromEnv creates a Resolver whose openai fallback key comes from
// OPENAI_API_KEY.
func NewFromEnv(tenants repo.TenantRepository, agents repo.AgentRepository) *Resolver {
	return New(tenants, agents, os.Getenv("OPENAI_API_KEY"))
}

// Resolve computes the effective configuration for an agent, walking
// agent → tenant → parents with nearest-non-null-wins per field.
func (r *Resolver) Resolve(ctx context.Context, agentID string) (*Effective, error) {
	agent, err := r.agents.Get(ctx, agentID)
	if err != nil {
		return nil, err
	}
	return r.ResolveAgent(ctx, agent)
}

// ResolveAgent is Resolve for a pre-loaded agent, sparing the data-plane
// hot path a second lookup.
func (r *Resolver) ResolveAgent(ctx context.Context, agent *entity.Agent) (*Effective, error) {
	eff := &Effective{}
	eff.absorb(&agent.ConfigOverride)
	eff.Chain = append(eff.Chain, ChainEntry{Level: "agent", Name: agent.Name, ID: agent.ID})

	if err := r.walkTenants(ctx, agent.TenantID, eff); err != nil {
		return nil, err
	}
	return eff, r.completeCredentials(eff)
}

// ResolveTenant computes the effective configuration of a tenant alone,
// for the portal's inheritance view. Credentials are completed the same
// way as on the data plane, but an incomplete provider config is not an
// error here.
func (r *Resolver) ResolveTenant(ctx context.Context, tenantID string) (*Effective, error) {
	eff := &Effective{}
	if err := r.walkTenants(ctx, tenantID, eff); err != nil {
		return nil, err
	}
	return eff, nil
}

func (r *Resolver) walkTenants(ctx context.Context, tenantID string, eff *Effective) error {
	level := "tenant"
	next := &tenantID
	for depth := 0; next != nil; depth++ {
		if depth >= maxChainDepth {
			return errno.ErrTenantCycle
		}
		t, err := r.tenants.Get(ctx, *next)
		if err != nil {
			return err
		}
		eff.absorb(&t.ConfigOverride)
		eff.Chain = append(eff.Chain, ChainEntry{Level: level, Name: t.Name, ID: t.ID})
		level = "parent"
		next = t.ParentID
	}
	return nil
}

// absorb fills each still-null field from the next level out. Called
// leaf first, so the nearest non-null value wins.
func (e *Effective) absorb(o *entity.ConfigOverride) {
	if e.Provider == nil && o.ProviderConfig != nil {
		pc := *o.ProviderConfig
		e.Provider = &pc
	}
	if e.SystemPrompt == nil && o.SystemPrompt != nil {
		sp := *o.SystemPrompt
		e.SystemPrompt = &sp
	}
	if e.Skills == nil && o.Skills != nil {
		e.Skills = append([]entity.Skill(nil), o.Skills...)
	}
	if e.MCPEndpoints == nil && o.MCPEndpoints != nil {
		e.MCPEndpoints = append([]entity.MCPEndpoint(nil), o.MCPEndpoints...)
	}
	if e.AvailableModels == nil && o.AvailableModels != nil {
		e.AvailableModels = append([]string(nil), o.AvailableModels...)
	}
}

// completeCredentials fills the openai fallback key and enforces the
// azure field requirements.
func (r *Resolver) completeCredentials(eff *Effective) error {
	if eff.Provider == nil {
		// No provider anywhere in the chain: default to openai with the
		// gateway-wide key.
		if r.fallbackOpenAIKey == "" {
			return errno.ErrProviderMisconfigured
		}
		eff.Provider = &entity.ProviderConfig{Provider: ProviderOpenAI, APIKey: r.fallbackOpenAIKey}
		return nil
	}

	switch eff.Provider.Provider {
	case ProviderOpenAI, "":
		eff.Provider.Provider = ProviderOpenAI
		if eff.Provider.APIKey == "" {
			eff.Provider.APIKey = r.fallbackOpenAIKey
		}
		if eff.Provider.APIKey == "" {
			return errno.ErrProviderMisconfigured
		}
	case ProviderAzure:
		p := eff.Provider
		if p.APIKey == "" || p.Endpoint == "" || p.Deployment == "" || p.APIVersion == "" {
			return errno.ErrProviderMisconfigured
		}
	default:
		return errno.ErrProviderMisconfigured
	}
	return nil
}
