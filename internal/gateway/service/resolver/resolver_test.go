package resolver

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loomhq/loom/internal/gateway/pkg/errno"
	"github.com/loomhq/loom/internal/gateway/service/identity/domain/entity"
	"github.com/loomhq/loom/internal/gateway/service/identity/store/inmemory"
)

func strptr(s string) *string { return &s }

func seedChain(t *testing.T) (*inmemory.TenantStore, *inmemory.AgentStore, *entity.Agent) {
	t.Helper()
	tenants := inmemory.NewTenantStore()
	agents := inmemory.NewAgentStore()
	now := time.Now().UTC()

	root := &entity.Tenant{
		ID: "root", Name: "Root", Status: entity.TenantActive,
		ConfigOverride: entity.ConfigOverride{
			ProviderConfig:  &entity.ProviderConfig{Provider: "openai", APIKey: "root-key"},
			SystemPrompt:    strptr("root prompt"),
			Skills:          []entity.Skill{{"name": "search"}},
			AvailableModels: []string{"gpt-4o", "gpt-4o-mini"},
		},
		CreatedAt: now, UpdatedAt: now,
	}
	mid := &entity.Tenant{
		ID: "mid", Name: "Mid", ParentID: strptr("root"), Status: entity.TenantActive,
		ConfigOverride: entity.ConfigOverride{
			SystemPrompt: strptr("mid prompt"),
		},
		CreatedAt: now, UpdatedAt: now,
	}
	require.NoError(t, tenants.Create(context.Background(), root))
	require.NoError(t, tenants.Create(context.Background(), mid))

	agent := &entity.Agent{
		ID: "agent", TenantID: "mid", Name: "Default",
		ConfigOverride: entity.ConfigOverride{
			Skills: []entity.Skill{{"name": "calc"}},
		},
		CreatedAt: now, UpdatedAt: now,
	}
	require.NoError(t, agents.Create(context.Background(), agent))
	return tenants, agents, agent
}

func TestResolveNearestNonNullWins(t *testing.T) {
	tenants, agents, agent := seedChain(t)
	r := New(tenants, agents, "")

	eff, err := r.ResolveAgent(context.Background(), agent)
	require.NoError(t, err)

	// Agent's own skills shadow the root's.
	assert.Equal(t, []entity.Skill{{"name": "calc"}}, eff.Skills)
	// Mid tenant's prompt shadows the root's.
	require.NotNil(t, eff.SystemPrompt)
	assert.Equal(t, "mid prompt", *eff.SystemPrompt)
	// Provider and models come from the root, the only level setting them.
	require.NotNil(t, eff.Provider)
	assert.Equal(t, "root-key", eff.Provider.APIKey)
	assert.Equal(t, []string{"gpt-4o", "gpt-4o-mini"}, eff.AvailableModels)
}

func TestResolveChainOrder(t *testing.T) {
	tenants, agents, agent := seedChain(t)
	r := New(tenants, agents, "")

	eff, err := r.ResolveAgent(context.Background(), agent)
	require.NoError(t, err)

	require.Len(t, eff.Chain, 3)
	assert.Equal(t, ChainEntry{Level: "agent", Name: "Default", ID: "agent"}, eff.Chain[0])
	assert.Equal(t, ChainEntry{Level: "tenant", Name: "Mid", ID: "mid"}, eff.Chain[1])
	assert.Equal(t, ChainEntry{Level: "parent", Name: "Root", ID: "root"}, eff.Chain[2])
}

func TestResolveMonotonicity(t *testing.T) {
	// Setting a field closer to the leaf never exposes a farther value.
	tenants, agents, agent := seedChain(t)
	r := New(tenants, agents, "")

	before, err := r.ResolveAgent(context.Background(), agent)
	require.NoError(t, err)
	require.Equal(t, "mid prompt", *before.SystemPrompt)

	agent.SystemPrompt = strptr("agent prompt")
	require.NoError(t, agents.Update(context.Background(), agent))

	after, err := r.ResolveAgent(context.Background(), agent)
	require.NoError(t, err)
	assert.Equal(t, "agent prompt", *after.SystemPrompt)
	// Untouched fields are unchanged.
	assert.Equal(t, before.Provider, after.Provider)
	assert.Equal(t, before.AvailableModels, after.AvailableModels)
}

func TestResolveOpenAIFallbackKey(t *testing.T) {
	tenants := inmemory.NewTenantStore()
	agents := inmemory.NewAgentStore()
	now := time.Now().UTC()
	require.NoError(t, tenants.Create(context.Background(), &entity.Tenant{
		ID: "t", Name: "T", Status: entity.TenantActive, CreatedAt: now, UpdatedAt: now,
	}))
	agent := &entity.Agent{ID: "a", TenantID: "t", Name: "Default", CreatedAt: now, UpdatedAt: now}
	require.NoError(t, agents.Create(context.Background(), agent))

	// No provider config anywhere and no fallback: misconfigured.
	_, err := New(tenants, agents, "").ResolveAgent(context.Background(), agent)
	assert.ErrorIs(t, err, errno.ErrProviderMisconfigured)

	// Fallback key completes the chain.
	eff, err := New(tenants, agents, "env-key").ResolveAgent(context.Background(), agent)
	require.NoError(t, err)
	require.NotNil(t, eff.Provider)
	assert.Equal(t, ProviderOpenAI, eff.Provider.Provider)
	assert.Equal(t, "env-key", eff.Provider.APIKey)
}

func TestResolveAzureRequiresAllFields(t *testing.T) {
	tenants := inmemory.NewTenantStore()
	agents := inmemory.NewAgentStore()
	now := time.Now().UTC()
	require.NoError(t, tenants.Create(context.Background(), &entity.Tenant{
		ID: "t", Name: "T", Status: entity.TenantActive,
		ConfigOverride: entity.ConfigOverride{
			ProviderConfig: &entity.ProviderConfig{
				Provider: "azure", APIKey: "k", Endpoint: "https://x.openai.azure.com",
				Deployment: "gpt4o",
			},
		},
		CreatedAt: now, UpdatedAt: now,
	}))
	agent := &entity.Agent{ID: "a", TenantID: "t", Name: "Default", CreatedAt: now, UpdatedAt: now}
	require.NoError(t, agents.Create(context.Background(), agent))

	// Missing api version.
	_, err := New(tenants, agents, "").ResolveAgent(context.Background(), agent)
	assert.ErrorIs(t, err, errno.ErrProviderMisconfigured)

	tenant, err := tenants.Get(context.Background(), "t")
	require.NoError(t, err)
	tenant.ProviderConfig.APIVersion = "2024-06-01"
	require.NoError(t, tenants.Update(context.Background(), tenant))

	eff, err := New(tenants, agents, "").ResolveAgent(context.Background(), agent)
	require.NoError(t, err)
	assert.Equal(t, ProviderAzure, eff.Provider.Provider)
}

func TestResolveTenantCycle(t *testing.T) {
	tenants := inmemory.NewTenantStore()
	agents := inmemory.NewAgentStore()
	now := time.Now().UTC()
	a := &entity.Tenant{ID: "a", Name: "A", ParentID: strptr("b"), Status: entity.TenantActive, CreatedAt: now, UpdatedAt: now}
	b := &entity.Tenant{ID: "b", Name: "B", ParentID: strptr("a"), Status: entity.TenantActive, CreatedAt: now, UpdatedAt: now}
	require.NoError(t, tenants.Create(context.Background(), a))
	require.NoError(t, tenants.Create(context.Background(), b))

	_, err := New(tenants, agents, "").ResolveTenant(context.Background(), "a")
	assert.ErrorIs(t, err, errno.ErrTenantCycle)
}
