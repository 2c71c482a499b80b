package portal

import (
	"fmt"

	"github.com/gin-gonic/gin"

	"github.com/loomhq/loom/internal/gateway/pkg/errno"
	"github.com/loomhq/loom/internal/gateway/service/identity"
	"github.com/loomhq/loom/internal/gateway/service/identity/domain/entity"
	"github.com/loomhq/loom/internal/gateway/service/resolver"
	"github.com/loomhq/loom/internal/pkg/core"
	"github.com/loomhq/loom/pkg/errorx"
)

// AgentHandler serves agent CRUD within the session's tenant.
type AgentHandler struct {
	identity *identity.Module
	resolver *resolver.Resolver
}

// NewAgentHandler creates an AgentHandler.
func NewAgentHandler(mod *identity.Module, res *resolver.Resolver) *AgentHandler {
	return &AgentHandler{identity: mod, resolver: res}
}

// loadScoped fetches an agent and verifies it belongs to the session's
// tenant. Foreign agents read as not found.
func (h *AgentHandler) loadScoped(c *gin.Context, id string) *entity.Agent {
	s := session(c)
	agent, err := h.identity.Agents.Get(c.Request.Context(), id)
	if err != nil {
		writeDomainError(c, err, "load agent %s", id)
		return nil
	}
	if agent.TenantID != s.TenantID {
		writeDomainError(c, fmt.Errorf("%w: %s", errno.ErrAgentNotFound, id), "load agent")
		return nil
	}
	return agent
}

type agentRequest struct {
	Name string `json:"name"`

	ProviderConfig  *entity.ProviderConfig `json:"provider_config,omitempty"`
	SystemPrompt    *string                `json:"system_prompt,omitempty"`
	Skills          []entity.Skill         `json:"skills,omitempty"`
	MCPEndpoints    []entity.MCPEndpoint   `json:"mcp_endpoints,omitempty"`
	AvailableModels []string               `json:"available_models,omitempty"`

	Policies *entity.MergePolicies `json:"policies,omitempty"`

	ConversationsEnabled   *bool   `json:"conversations_enabled,omitempty"`
	ConversationTokenLimit *int    `json:"conversation_token_limit,omitempty"`
	SummaryModel           *string `json:"summary_model,omitempty"`

	Clear []string `json:"clear,omitempty"`
}

func (r *agentRequest) apply(agent *entity.Agent) {
	if r.Name != "" {
		agent.Name = r.Name
	}
	applyOverrideUpdate(&agent.ConfigOverride, r.ProviderConfig, r.SystemPrompt, r.Skills, r.MCPEndpoints, r.AvailableModels, r.Clear)
	if r.Policies != nil {
		agent.Policies = *r.Policies
	}
	if r.ConversationsEnabled != nil {
		agent.ConversationsEnabled = *r.ConversationsEnabled
	}
	if r.ConversationTokenLimit != nil {
		agent.ConversationTokenLimit = *r.ConversationTokenLimit
	}
	if r.SummaryModel != nil {
		agent.SummaryModel = *r.SummaryModel
	}
}

// Create stores a new agent under the session's tenant. Owner only.
func (h *AgentHandler) Create(c *gin.Context) {
	s := requireOwner(c)
	if s == nil {
		return
	}
	var req agentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		core.WriteResponse(c, errorx.WrapC(err, ErrPortalBind, "bind agent request"), nil)
		return
	}

	agent := &entity.Agent{TenantID: s.TenantID}
	req.apply(agent)
	if err := h.identity.Agents.Create(c.Request.Context(), agent); err != nil {
		writeDomainError(c, err, "create agent %q", req.Name)
		return
	}
	core.WriteCreated(c, agent)
}

// Get returns one agent with its resolved effective configuration.
func (h *AgentHandler) Get(c *gin.Context) {
	agent := h.loadScoped(c, c.Param("id"))
	if agent == nil {
		return
	}

	eff, err := h.resolver.ResolveAgent(c.Request.Context(), agent)
	if err != nil {
		// A broken provider chain still lets the agent itself load.
		core.WriteResponse(c, nil, gin.H{"agent": agent, "effective": nil, "resolve_error": err.Error()})
		return
	}
	view, err := newEffectiveView(eff)
	if err != nil {
		core.WriteResponse(c, errorx.WrapC(err, ErrPortalInternal, "project effective config"), nil)
		return
	}
	core.WriteResponse(c, nil, gin.H{"agent": agent, "effective": view})
}

// List returns the tenant's agents.
func (h *AgentHandler) List(c *gin.Context) {
	s := session(c)
	agents, err := h.identity.Agents.ListByTenant(c.Request.Context(), s.TenantID)
	if err != nil {
		writeDomainError(c, err, "list agents of %s", s.TenantID)
		return
	}
	core.WriteResponse(c, nil, gin.H{"agents": agents})
}

// Update applies changes to one agent. Owner only.
func (h *AgentHandler) Update(c *gin.Context) {
	if requireOwner(c) == nil {
		return
	}
	agent := h.loadScoped(c, c.Param("id"))
	if agent == nil {
		return
	}
	var req agentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		core.WriteResponse(c, errorx.WrapC(err, ErrPortalBind, "bind agent request"), nil)
		return
	}

	req.apply(agent)
	if err := h.identity.Agents.Update(c.Request.Context(), agent); err != nil {
		writeDomainError(c, err, "update agent %s", agent.ID)
		return
	}
	core.WriteResponse(c, nil, agent)
}

// Delete removes one agent and, transitively, its API keys. Owner only.
func (h *AgentHandler) Delete(c *gin.Context) {
	if requireOwner(c) == nil {
		return
	}
	agent := h.loadScoped(c, c.Param("id"))
	if agent == nil {
		return
	}

	if err := h.identity.Agents.Delete(c.Request.Context(), agent.ID); err != nil {
		writeDomainError(c, err, "delete agent %s", agent.ID)
		return
	}
	core.WriteResponse(c, nil, gin.H{"deleted": agent.ID})
}
